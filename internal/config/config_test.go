package config

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/court-scheduler/internal/atrium"
	"github.com/example/court-scheduler/internal/internaltypes"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, DriverSQLite, cfg.DatabaseDriver)
	assert.Equal(t, "America/New_York", cfg.Location.String())
	assert.Equal(t, cfg.Location, cfg.Atrium.Location)
	assert.Equal(t, atrium.DefaultOccupantID, cfg.Atrium.OccupantID)
	assert.Equal(t, 2*time.Second, cfg.RetryBase)
	assert.Equal(t, 30*time.Second, cfg.RetryMaxDelay)
	assert.Equal(t, time.Minute, cfg.SchedMaxSleep)
	assert.Equal(t, "@every 20m", cfg.TokenKeepalive)
	assert.Nil(t, cfg.CredEncKey)
}

func TestEnvironmentOverrides(t *testing.T) {
	key := base64.StdEncoding.EncodeToString(make([]byte, 32))
	t.Setenv("DATABASE_DRIVER", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/courts")
	t.Setenv("TIMEZONE", "Europe/London")
	t.Setenv("RETRY_BASE", "500ms")
	t.Setenv("SUBMIT_RATE_PER_SEC", "2.5")
	t.Setenv("CRED_ENC_KEY", key)
	t.Setenv("LOG_JSON", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.DatabaseDriver)
	assert.Equal(t, "Europe/London", cfg.Location.String())
	assert.Equal(t, 500*time.Millisecond, cfg.RetryBase)
	assert.InDelta(t, 2.5, cfg.Atrium.RatePerSec, 1e-9)
	assert.Len(t, cfg.CredEncKey, 32)
	assert.True(t, cfg.LogJSON)
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "courtsched.yaml")
	require.NoError(t, os.WriteFile(path, []byte("LISTEN_ADDR: \":9090\"\nSCHED_MAX_SLEEP: 30s\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, 30*time.Second, cfg.SchedMaxSleep)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestKeyFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hash.key")
	require.NoError(t, os.WriteFile(path, []byte(base64.StdEncoding.EncodeToString(make([]byte, 32))+"\n"), 0o600))
	t.Setenv("COOKIE_HASH_KEY", path)
	t.Setenv("COOKIE_BLOCK_KEY", base64.RawStdEncoding.EncodeToString(make([]byte, 16)))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Len(t, cfg.CookieHashKey, 32)
	assert.Len(t, cfg.CookieBlockKey, 16)
}

func TestInvalidSettingsNameTheKey(t *testing.T) {
	cases := map[string]map[string]string{
		"DATABASE_DRIVER":  {"DATABASE_DRIVER": "mysql"},
		"DATABASE_URL":     {"DATABASE_DRIVER": "postgres"},
		"TIMEZONE":         {"TIMEZONE": "Mars/Olympus"},
		"RETRY_BASE":       {"RETRY_BASE": "0s"},
		"RETRY_MAX_DELAY":  {"RETRY_BASE": "1m", "RETRY_MAX_DELAY": "30s"},
		"CRED_ENC_KEY":     {"CRED_ENC_KEY": base64.StdEncoding.EncodeToString([]byte("short"))},
		"COOKIE_BLOCK_KEY": {"COOKIE_HASH_KEY": base64.StdEncoding.EncodeToString(make([]byte, 32))},
	}
	for field, env := range cases {
		t.Run(field, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			var ce *internaltypes.ConfigurationError
			require.True(t, internaltypes.As(err, &ce), "%v", err)
			assert.Equal(t, field, ce.Field)
		})
	}
}
