package cmd

import (
	"context"

	"go.uber.org/zap"

	"github.com/example/court-scheduler/internal/atrium"
	"github.com/example/court-scheduler/internal/config"
	"github.com/example/court-scheduler/internal/credential"
	"github.com/example/court-scheduler/internal/db"
	"github.com/example/court-scheduler/internal/infrastructure/crypto"
	"github.com/example/court-scheduler/internal/infrastructure/postgres"
	"github.com/example/court-scheduler/internal/infrastructure/sqlite"
	"github.com/example/court-scheduler/internal/jobs"
	"github.com/example/court-scheduler/internal/logging"
	"github.com/example/court-scheduler/internal/migrate"
)

// app holds what every store-backed subcommand opens first.
type app struct {
	cfg    config.Config
	log    *zap.SugaredLogger
	jobs   jobs.Store
	tokens credential.Store
}

func openApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log, err := logging.New(logging.Config{JSON: cfg.LogJSON, Level: cfg.LogLevel})
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log}

	switch cfg.DatabaseDriver {
	case config.DriverPostgres:
		d, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := migrate.Up(ctx, d); err != nil {
			d.Close()
			return nil, err
		}
		a.jobs = postgres.NewJobRepo(d)
		a.tokens = postgres.NewTokenRepo(d)
	default:
		d, err := sqlite.Open(ctx, cfg.DBPath)
		if err != nil {
			return nil, err
		}
		a.jobs = sqlite.NewJobRepo(d)
		a.tokens = sqlite.NewTokenRepo(d)
	}

	if cfg.CredEncKey != nil {
		aead, err := crypto.New(cfg.CredEncKey)
		if err != nil {
			_ = a.jobs.Close()
			return nil, err
		}
		a.tokens = credential.Sealed(a.tokens, aead)
	}
	log.Debugw("store opened", "driver", cfg.DatabaseDriver, "sealed", cfg.CredEncKey != nil)
	return a, nil
}

// credentials builds the upstream client and a credential manager loaded
// from the store.
func (a *app) credentials(ctx context.Context) (*atrium.Client, *credential.Manager, error) {
	client := atrium.New(a.cfg.Atrium, a.log.Named("atrium"))
	m := credential.NewManager(a.tokens, client, credential.Options{
		Margin:         a.cfg.TokenMargin,
		AcquireTimeout: a.cfg.AcquireTimeout,
		Logger:         a.log.Named("credential"),
	})
	if err := m.Load(ctx); err != nil {
		return nil, nil, err
	}
	return client, m, nil
}

func (a *app) Close() {
	_ = a.jobs.Close()
	_ = a.log.Sync()
}
