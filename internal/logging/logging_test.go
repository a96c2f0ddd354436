package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/example/court-scheduler/internal/internaltypes"
)

func TestLevels(t *testing.T) {
	for _, cfg := range []Config{{}, {Level: "debug"}, {JSON: true, Level: "warn"}} {
		log, err := New(cfg)
		require.NoError(t, err, "%+v", cfg)
		want := zapcore.InfoLevel
		if cfg.Level != "" {
			want, err = zapcore.ParseLevel(cfg.Level)
			require.NoError(t, err)
		}
		assert.Equal(t, want, log.Level(), "%+v", cfg)
	}
}

func TestUnknownLevelNamesTheKey(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	var ce *internaltypes.ConfigurationError
	require.True(t, internaltypes.As(err, &ce))
	assert.Equal(t, "LOG_LEVEL", ce.Field)
	assert.Equal(t, "loud", ce.Value)
}
