package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/court-scheduler/internal/application/usecases"
	"github.com/example/court-scheduler/internal/jobs"
	"github.com/example/court-scheduler/internal/trigger"
)

func newJobCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Inspect and cancel booking jobs",
	}
	cmd.AddCommand(newJobListCmd(configPath))
	cmd.AddCommand(newJobShowCmd(configPath))
	cmd.AddCommand(newJobCancelCmd(configPath))
	return cmd
}

func newJobListCmd(configPath *string) *cobra.Command {
	var (
		status   string
		court    string
		limit    int
		offset   int
		upcoming int
	)
	c := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest desired time first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := openApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			st := usecases.Status{Jobs: a.jobs}
			var js []jobs.Job
			if upcoming > 0 {
				js, err = st.Upcoming(ctx, upcoming)
			} else {
				js, err = st.List(ctx, jobs.Filter{
					Status:     jobs.Status(strings.ToLower(status)),
					ResourceID: court,
					Limit:      limit,
					Offset:     offset,
				})
			}
			if err != nil {
				return err
			}
			for _, j := range js {
				fmt.Fprintf(cmd.OutOrStdout(), "id=%s court=%s desired=%q trigger=%q status=%s attempts=%d\n",
					j.ID, j.ResourceID, trigger.Render(j.DesiredTime, a.cfg.Location), trigger.Render(j.TriggerTime, a.cfg.Location), j.Status, j.Attempts)
			}
			return nil
		},
	}
	c.Flags().StringVar(&status, "status", "", "pending, success, failed or cancelled")
	c.Flags().StringVar(&court, "court", "", "court id")
	c.Flags().IntVar(&limit, "limit", jobs.DefaultLimit, "max rows")
	c.Flags().IntVar(&offset, "offset", 0, "rows to skip")
	c.Flags().IntVar(&upcoming, "upcoming", 0, "only pending jobs desired within N days")
	return c
}

func newJobShowCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := openApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			j, err := usecases.Status{Jobs: a.jobs}.Get(ctx, args[0])
			if err != nil {
				return err
			}
			printJob(cmd.OutOrStdout(), j, a.cfg.Location)
			return nil
		},
	}
}

func newJobCancelCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a pending job",
		Long:  "Cancel a pending job. A running server disarms it on its next store sync.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := openApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			j, err := usecases.Status{Jobs: a.jobs}.Cancel(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cancelled job id=%s court=%s desired=%q\n",
				j.ID, j.ResourceID, trigger.Render(j.DesiredTime, a.cfg.Location))
			return nil
		},
	}
}

func printJob(w io.Writer, j jobs.Job, loc *time.Location) {
	fmt.Fprintf(w, "id:        %s\n", j.ID)
	fmt.Fprintf(w, "type:      %s\n", j.Kind)
	fmt.Fprintf(w, "court:     %s\n", j.ResourceID)
	fmt.Fprintf(w, "desired:   %s (%s)\n", trigger.Render(j.DesiredTime, loc), j.DesiredTime.Format(time.RFC3339))
	fmt.Fprintf(w, "trigger:   %s (%s)\n", trigger.Render(j.TriggerTime, loc), j.TriggerTime.Format(time.RFC3339))
	fmt.Fprintf(w, "duration:  %dm\n", j.Duration)
	if j.RecurrenceRule != "" {
		fmt.Fprintf(w, "rrule:     %s\n", j.RecurrenceRule)
	}
	fmt.Fprintf(w, "status:    %s\n", j.Status)
	fmt.Fprintf(w, "attempts:  %d\n", j.Attempts)
	if j.LastError != "" {
		fmt.Fprintf(w, "error:     %s\n", j.LastError)
	}
	if j.FinishedAt != nil {
		fmt.Fprintf(w, "finished:  %s\n", trigger.Render(*j.FinishedAt, loc))
	}
}
