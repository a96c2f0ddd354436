package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/court-scheduler/internal/application/usecases"
	"github.com/example/court-scheduler/internal/jobs"
	"github.com/example/court-scheduler/internal/trigger"
)

func newStatsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print job counts by status and the next booking",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := openApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			st, err := usecases.Status{Jobs: a.jobs}.Stats(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "total=%d", st.Total)
			for _, s := range jobs.Statuses() {
				fmt.Fprintf(out, " %s=%d", s, st.Counts[s])
			}
			fmt.Fprintln(out)
			if st.Next != nil {
				fmt.Fprintf(out, "next: id=%s court=%s desired=%q trigger=%q\n", st.Next.ID, st.Next.ResourceID,
					trigger.Render(st.Next.DesiredTime, a.cfg.Location), trigger.Render(st.Next.TriggerTime, a.cfg.Location))
			}
			return nil
		},
	}
}
