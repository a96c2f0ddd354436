// Package config reads process settings from the environment and an optional
// config file.
package config

import (
	"encoding/base64"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/example/court-scheduler/internal/atrium"
	"github.com/example/court-scheduler/internal/credential"
	"github.com/example/court-scheduler/internal/execution"
	"github.com/example/court-scheduler/internal/internaltypes"
	"github.com/example/court-scheduler/internal/scheduler"
	"github.com/example/court-scheduler/internal/trigger"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	ListenAddr string

	DatabaseDriver string
	DatabaseURL    string
	DBPath         string

	Timezone string
	Location *time.Location

	IntentsPath string
	TokensPath  string

	// CredEncKey seals stored tokens when set (32 bytes).
	CredEncKey []byte

	CookieHashKey        []byte
	CookieBlockKey       []byte
	OperatorPasswordHash string

	Atrium atrium.Config

	RetryBase      time.Duration
	RetryMaxDelay  time.Duration
	TokenMargin    time.Duration
	TokenKeepalive string
	AcquireTimeout time.Duration
	SchedMaxSleep  time.Duration

	LogJSON  bool
	LogLevel string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("LISTEN_ADDR", ":8080")
	v.SetDefault("DATABASE_DRIVER", DriverSQLite)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DB_PATH", "courtsched.db")
	v.SetDefault("TIMEZONE", trigger.DefaultZone)
	v.SetDefault("INTENTS_PATH", "schedules.yaml")
	v.SetDefault("TOKENS_PATH", "tokens.json")
	v.SetDefault("CRED_ENC_KEY", "")
	v.SetDefault("COOKIE_HASH_KEY", "")
	v.SetDefault("COOKIE_BLOCK_KEY", "")
	v.SetDefault("OPERATOR_PASSWORD_HASH", "")
	v.SetDefault("ATRIUM_BASE_URL", atrium.DefaultBaseURL)
	v.SetDefault("ATRIUM_AUTH_URL", atrium.DefaultAuthURL)
	v.SetDefault("ATRIUM_CLIENT_ID", atrium.DefaultClientID)
	v.SetDefault("ATRIUM_OCCUPANT_ID", atrium.DefaultOccupantID)
	v.SetDefault("SUBMIT_RATE_PER_SEC", 1.0)
	v.SetDefault("RETRY_BASE", execution.DefaultRetryBase)
	v.SetDefault("RETRY_MAX_DELAY", execution.DefaultRetryMax)
	v.SetDefault("TOKEN_MARGIN", credential.DefaultMargin)
	v.SetDefault("TOKEN_KEEPALIVE", credential.DefaultKeepalive)
	v.SetDefault("ACQUIRE_TIMEOUT", credential.DefaultAcquireTimeout)
	v.SetDefault("SCHED_MAX_SLEEP", scheduler.DefaultMaxSleep)
	v.SetDefault("LOG_JSON", false)
	v.SetDefault("LOG_LEVEL", "info")
}

// Load reads the environment, layered over path when it is non-empty.
// Keys in the file use the environment variable names.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, internaltypes.Wrapf(err, "read config %s", path)
		}
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		ListenAddr:           v.GetString("LISTEN_ADDR"),
		DatabaseDriver:       strings.ToLower(strings.TrimSpace(v.GetString("DATABASE_DRIVER"))),
		DatabaseURL:          strings.TrimSpace(v.GetString("DATABASE_URL")),
		DBPath:               v.GetString("DB_PATH"),
		Timezone:             v.GetString("TIMEZONE"),
		IntentsPath:          v.GetString("INTENTS_PATH"),
		TokensPath:           v.GetString("TOKENS_PATH"),
		OperatorPasswordHash: strings.TrimSpace(v.GetString("OPERATOR_PASSWORD_HASH")),
		Atrium: atrium.Config{
			BaseURL:    v.GetString("ATRIUM_BASE_URL"),
			AuthURL:    v.GetString("ATRIUM_AUTH_URL"),
			ClientID:   v.GetString("ATRIUM_CLIENT_ID"),
			OccupantID: v.GetString("ATRIUM_OCCUPANT_ID"),
			RatePerSec: v.GetFloat64("SUBMIT_RATE_PER_SEC"),
		},
		RetryBase:      v.GetDuration("RETRY_BASE"),
		RetryMaxDelay:  v.GetDuration("RETRY_MAX_DELAY"),
		TokenMargin:    v.GetDuration("TOKEN_MARGIN"),
		TokenKeepalive: v.GetString("TOKEN_KEEPALIVE"),
		AcquireTimeout: v.GetDuration("ACQUIRE_TIMEOUT"),
		SchedMaxSleep:  v.GetDuration("SCHED_MAX_SLEEP"),
		LogJSON:        v.GetBool("LOG_JSON"),
		LogLevel:       v.GetString("LOG_LEVEL"),
	}

	switch cfg.DatabaseDriver {
	case DriverSQLite:
		if cfg.DBPath == "" {
			return Config{}, internaltypes.Configf("DB_PATH", "", "required for the sqlite driver")
		}
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, internaltypes.Configf("DATABASE_URL", "", "required for the postgres driver")
		}
	default:
		return Config{}, internaltypes.Configf("DATABASE_DRIVER", cfg.DatabaseDriver, "expected %s or %s", DriverSQLite, DriverPostgres)
	}

	loc, err := trigger.LoadLocation(cfg.Timezone)
	if err != nil {
		return Config{}, internaltypes.Configf("TIMEZONE", cfg.Timezone, "%v", err)
	}
	cfg.Location = loc
	cfg.Atrium.Location = loc

	for key, d := range map[string]time.Duration{
		"RETRY_BASE":      cfg.RetryBase,
		"RETRY_MAX_DELAY": cfg.RetryMaxDelay,
		"TOKEN_MARGIN":    cfg.TokenMargin,
		"ACQUIRE_TIMEOUT": cfg.AcquireTimeout,
		"SCHED_MAX_SLEEP": cfg.SchedMaxSleep,
	} {
		if d <= 0 {
			return Config{}, internaltypes.Configf(key, v.GetString(key), "must be a positive duration")
		}
	}
	if cfg.RetryMaxDelay < cfg.RetryBase {
		return Config{}, internaltypes.Configf("RETRY_MAX_DELAY", cfg.RetryMaxDelay.String(), "must not be below RETRY_BASE")
	}

	if cfg.CredEncKey, err = optionalKey(v, "CRED_ENC_KEY"); err != nil {
		return Config{}, err
	}
	if cfg.CredEncKey != nil && len(cfg.CredEncKey) != 32 {
		return Config{}, internaltypes.Configf("CRED_ENC_KEY", "", "must decode to 32 bytes (got %d)", len(cfg.CredEncKey))
	}
	if cfg.CookieHashKey, err = optionalKey(v, "COOKIE_HASH_KEY"); err != nil {
		return Config{}, err
	}
	if cfg.CookieBlockKey, err = optionalKey(v, "COOKIE_BLOCK_KEY"); err != nil {
		return Config{}, err
	}
	if (cfg.CookieHashKey == nil) != (cfg.CookieBlockKey == nil) {
		return Config{}, internaltypes.Configf("COOKIE_BLOCK_KEY", "", "COOKIE_HASH_KEY and COOKIE_BLOCK_KEY are set together")
	}
	return cfg, nil
}

// optionalKey decodes a base64 value. The value may also name a file holding
// it, for secret mounts.
func optionalKey(v *viper.Viper, key string) ([]byte, error) {
	s := strings.TrimSpace(v.GetString(key))
	if s == "" {
		return nil, nil
	}
	if b, err := os.ReadFile(s); err == nil {
		s = strings.TrimSpace(string(b))
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	b, err := base64.RawStdEncoding.DecodeString(s)
	if err != nil {
		return nil, internaltypes.Configf(key, "", "invalid base64")
	}
	return b, nil
}
