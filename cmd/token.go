package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/court-scheduler/internal/application/usecases"
	"github.com/example/court-scheduler/internal/credential"
)

func newTokenCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the stored upstream credential",
	}
	cmd.AddCommand(newTokenSetCmd(configPath))
	cmd.AddCommand(newTokenStatusCmd(configPath))
	return cmd
}

func newTokenSetCmd(configPath *string) *cobra.Command {
	var (
		file   string
		verify bool
	)
	c := &cobra.Command{
		Use:   "set [refresh-token]",
		Short: "Install a refresh token, from the argument or a tokens file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := openApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			_, m, err := a.credentials(ctx)
			if err != nil {
				return err
			}
			svc := usecases.CredentialsService{Manager: m}
			var h credential.Health
			switch {
			case len(args) == 1:
				h, err = svc.Set(ctx, strings.TrimSpace(args[0]), verify)
			case file != "":
				h, err = svc.SetFromFile(ctx, file, verify)
			default:
				h, err = svc.SetFromFile(ctx, a.cfg.TokensPath, verify)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "refresh token stored")
			printHealth(cmd.OutOrStdout(), h)
			return nil
		},
	}
	c.Flags().StringVar(&file, "file", "", "JSON file with a refresh_token field (default TOKENS_PATH)")
	c.Flags().BoolVar(&verify, "verify", false, "exchange the token once to prove it works")
	return c
}

func newTokenStatusCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show credential health",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := openApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			_, m, err := a.credentials(ctx)
			if err != nil {
				return err
			}
			printHealth(cmd.OutOrStdout(), m.Health())
			return nil
		},
	}
}

func printHealth(w io.Writer, h credential.Health) {
	fmt.Fprintf(w, "state=%s has_token=%t access_valid=%t", h.State, h.HasToken, h.AccessValid)
	if h.RefreshKnown {
		fmt.Fprintf(w, " refresh_expires_in=%s", h.RefreshExpiresIn.Round(time.Second))
	}
	fmt.Fprintln(w)
	for _, r := range h.Critical {
		fmt.Fprintf(w, "critical: %s\n", r)
	}
	for _, r := range h.Warnings {
		fmt.Fprintf(w, "warning: %s\n", r)
	}
}
