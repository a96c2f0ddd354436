// Package logging builds the process logger.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/example/court-scheduler/internal/internaltypes"
)

type Config struct {
	// JSON selects the production encoder; otherwise a console encoder is used.
	JSON  bool
	Level string
}

// New returns a sugared logger for cfg. An empty level means info.
func New(cfg Config) (*zap.SugaredLogger, error) {
	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	if cfg.Level != "" {
		l, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, internaltypes.Configf("LOG_LEVEL", cfg.Level, "unknown log level")
		}
		level.SetLevel(l)
	}

	if cfg.JSON {
		zc := zap.NewProductionConfig()
		zc.Level = level
		zc.OutputPaths = []string{"stdout"}
		l, err := zc.Build()
		if err != nil {
			return nil, internaltypes.Wrap(err, "build logger")
		}
		return l.Sugar(), nil
	}

	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(os.Stdout), level)
	return zap.New(core).Sugar(), nil
}
