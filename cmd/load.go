package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/court-scheduler/internal/intents"
)

func newLoadCmd(configPath *string) *cobra.Command {
	var path string
	c := &cobra.Command{
		Use:   "load",
		Short: "Reconcile the intents file into jobs once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := openApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			if path == "" {
				path = a.cfg.IntentsPath
			}

			rep, err := intents.New(a.jobs, intents.Options{Location: a.cfg.Location, Logger: a.log}).LoadFile(ctx, path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "intents=%d created=%d existing=%d skipped=%d overdue=%d\n",
				rep.Intents, rep.Created, rep.Existing, rep.Skipped, rep.Overdue)
			return nil
		},
	}
	c.Flags().StringVar(&path, "file", "", "intents file (default INTENTS_PATH)")
	return c
}
