package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/example/court-scheduler/internal/application/usecases"
	"github.com/example/court-scheduler/internal/auth"
	"github.com/example/court-scheduler/internal/execution"
	"github.com/example/court-scheduler/internal/intents"
	"github.com/example/court-scheduler/internal/internaltypes"
	"github.com/example/court-scheduler/internal/scheduler"
	"github.com/example/court-scheduler/internal/web"
)

func newServeCmd(configPath *string) *cobra.Command {
	var (
		noWatch bool
		noHTTP  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler, the intents watcher and the status API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := openApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			cfg := a.cfg

			client, tokens, err := a.credentials(ctx)
			if err != nil {
				return err
			}
			used, err := usecases.CredentialsService{Manager: tokens}.BootstrapIfMissing(ctx, cfg.TokensPath)
			if err != nil {
				a.log.Warnw("token file not imported", "path", cfg.TokensPath, "error", err)
			} else if used {
				a.log.Infow("refresh token imported", "path", cfg.TokensPath)
			}
			stopKeepalive, err := tokens.StartKeepalive(cfg.TokenKeepalive)
			if err != nil {
				return err
			}
			defer stopKeepalive()

			exec := execution.New(a.jobs, tokens, client, execution.Options{
				RetryBase: cfg.RetryBase,
				RetryMax:  cfg.RetryMaxDelay,
				Logger:    a.log.Named("execution"),
				Location:  cfg.Location,
			})
			sched := scheduler.New(a.jobs, exec, scheduler.Options{
				MaxSleep: cfg.SchedMaxSleep,
				Logger:   a.log.Named("scheduler"),
				Location: cfg.Location,
			})

			loader := intents.New(a.jobs, intents.Options{Location: cfg.Location, Logger: a.log.Named("intents")})
			if _, err := loader.LoadFile(ctx, cfg.IntentsPath); err != nil {
				if internaltypes.Is(err, internaltypes.ErrStoreUnavailable) {
					return err
				}
				a.log.Warnw("intents not loaded", "path", cfg.IntentsPath, "error", err)
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return sched.Run(gctx) })
			if !noWatch {
				g.Go(func() error {
					err := loader.Watch(gctx, cfg.IntentsPath, func(intents.Report) { sched.Notify() })
					if err != nil && !internaltypes.Is(err, internaltypes.ErrStoreUnavailable) {
						// Booking goes on without reloads.
						a.log.Errorw("intents watch stopped", "path", cfg.IntentsPath, "error", err)
						return nil
					}
					return err
				})
			}
			if !noHTTP {
				ws := &web.Server{
					Status: usecases.Status{
						Jobs:      a.jobs,
						Scheduler: sched,
						Tokens:    tokens,
					},
					Auth:     auth.NewStore(cfg.CookieHashKey, cfg.CookieBlockKey, cfg.OperatorPasswordHash),
					Location: cfg.Location,
					Logger:   a.log.Named("web"),
				}
				if !ws.Auth.LoginEnabled() {
					a.log.Warnw("OPERATOR_PASSWORD_HASH is not set; cancelling over HTTP is disabled")
				}
				g.Go(func() error { return web.Start(gctx, cfg.ListenAddr, ws.Routes(), a.log.Named("web")) })
			}
			return g.Wait()
		},
	}

	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "load intents once at startup without watching the file")
	cmd.Flags().BoolVar(&noHTTP, "no-http", false, "do not serve the status API")
	return cmd
}
