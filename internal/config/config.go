package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"spendbook/internal/storage"
)

// EnvPrefix is stripped from environment variable names before they are mapped
// onto Config fields.
const EnvPrefix = "SPENDBOOK_"

// Config holds the application configuration loaded from the environment.
type Config struct {
	// Store selects the record store backend: memory, sqlite, redis or postgres.
	// Environment variable: SPENDBOOK_STORE
	Store string `koanf:"STORE"`

	// SQLitePath is the database file for the sqlite backend.
	// Environment variable: SPENDBOOK_SQLITE_PATH
	SQLitePath string `koanf:"SQLITE_PATH"`

	// RedisURL and RedisPrefix configure the redis backend.
	// Environment variables: SPENDBOOK_REDIS_URL, SPENDBOOK_REDIS_PREFIX
	RedisURL    string `koanf:"REDIS_URL"`
	RedisPrefix string `koanf:"REDIS_PREFIX"`

	// PostgresDSN is the connection string for the postgres backend.
	// Environment variable: SPENDBOOK_POSTGRES_DSN
	PostgresDSN string `koanf:"POSTGRES_DSN"`

	// AMQPURL enables publishing user events when set.
	// Environment variables: SPENDBOOK_AMQP_URL, SPENDBOOK_AMQP_EXCHANGE
	AMQPURL      string `koanf:"AMQP_URL"`
	AMQPExchange string `koanf:"AMQP_EXCHANGE"`

	// Environment variables: SPENDBOOK_LOG_LEVEL, SPENDBOOK_LOG_JSON
	LogLevel string `koanf:"LOG_LEVEL"`
	LogJSON  bool   `koanf:"LOG_JSON"`

	// Addr is where the web server listens.
	// Environment variable: SPENDBOOK_ADDR
	Addr string `koanf:"ADDR"`

	// AvatarMaxSide bounds the longest side of stored profile pictures.
	// Environment variable: SPENDBOOK_AVATAR_MAX_SIDE
	AvatarMaxSide int `koanf:"AVATAR_MAX_SIDE"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Store:         storage.BackendSQLite,
		SQLitePath:    "./data/spendbook.db",
		RedisURL:      "redis://localhost:6379/0",
		RedisPrefix:   "spendbook:",
		AMQPExchange:  "spendbook",
		LogLevel:      "INFO",
		Addr:          "127.0.0.1:8080",
		AvatarMaxSide: 200,
	}
}

// Load reads envFile (if it exists) into the process environment, then maps
// SPENDBOOK_* variables over the defaults. Variables already set in the
// environment win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	k := koanf.New(".")
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.TrimPrefix(s, EnvPrefix)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	cfg := Defaults()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf", FlatPaths: true}); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}
	return &cfg, nil
}

// StorageConfig returns the record store settings.
func (c *Config) StorageConfig() storage.Config {
	return storage.Config{
		Backend:     c.Store,
		SQLitePath:  c.SQLitePath,
		RedisURL:    c.RedisURL,
		RedisPrefix: c.RedisPrefix,
		PostgresDSN: c.PostgresDSN,
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errs []string

	if !slices.Contains(storage.Backends, c.Store) {
		errs = append(errs, fmt.Sprintf("invalid store '%s': must be one of %v", c.Store, storage.Backends))
	}

	switch c.Store {
	case storage.BackendSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, "SQLite path cannot be empty when using sqlite store")
		}
	case storage.BackendRedis:
		if c.RedisURL == "" {
			errs = append(errs, "Redis URL cannot be empty when using redis store")
		}
	case storage.BackendPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, "Postgres DSN cannot be empty when using postgres store")
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errs = append(errs, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	}

	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		errs = append(errs, fmt.Sprintf("invalid listen address '%s': %v", c.Addr, err))
	}

	if c.AvatarMaxSide < 16 || c.AvatarMaxSide > 2048 {
		errs = append(errs, fmt.Sprintf("invalid avatar max side %d: must be between 16 and 2048", c.AvatarMaxSide))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

// EnvFileFromEnv returns the .env path to load: SPENDBOOK_ENV_FILE or ".env".
func EnvFileFromEnv() string {
	if p := os.Getenv(EnvPrefix + "ENV_FILE"); p != "" {
		return p
	}
	return ".env"
}
