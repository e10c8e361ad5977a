// Package config loads application configuration from a YAML file and
// APRON_ prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment overrides. A double underscore
// separates nesting levels: APRON_SERVER__PORT sets server.port.
const EnvPrefix = "APRON_"

// Session store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Config is the root configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Log        LogConfig        `koanf:"log"`
	CORS       CORSConfig       `koanf:"cors"`
	Auth       AuthConfig       `koanf:"auth"`
	Session    SessionConfig    `koanf:"session"`
	Database   DatabaseConfig   `koanf:"database"`
	Redis      RedisConfig      `koanf:"redis"`
	Data       DataConfig       `koanf:"data"`
	Registry   RegistryConfig   `koanf:"registry"`
	Enrichment EnrichmentConfig `koanf:"enrichment"`
	Prediction PredictionConfig `koanf:"prediction"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port" validate:"required,numeric"`
	MetricsPort       string        `koanf:"metrics_port" validate:"required,numeric"`
	ReadTimeout       time.Duration `koanf:"read_timeout" validate:"gt=0"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout" validate:"gt=0"`
	WriteTimeout      time.Duration `koanf:"write_timeout" validate:"gt=0"`
	IdleTimeout       time.Duration `koanf:"idle_timeout" validate:"gt=0"`
	RequestTimeout    time.Duration `koanf:"request_timeout" validate:"gt=0"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json text"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// AuthConfig holds bearer token settings.
type AuthConfig struct {
	Enabled   bool   `koanf:"enabled"`
	SecretKey string `koanf:"secret_key" validate:"omitempty,min=32"`
	Issuer    string `koanf:"issuer"`
}

// SessionConfig selects the session store.
type SessionConfig struct {
	Store string `koanf:"store" validate:"oneof=memory postgres redis"`
}

// DatabaseConfig holds PostgreSQL settings.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns" validate:"gte=1"`
	MaxIdleConns    int           `koanf:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout" validate:"gt=0"`
	ConnectAttempts int           `koanf:"connect_attempts" validate:"gte=1"`
	Migrate         bool          `koanf:"migrate"`
}

// RedisConfig holds Redis settings.
type RedisConfig struct {
	Address  string        `koanf:"address"`
	Password string        `koanf:"password"`
	Database int           `koanf:"database" validate:"gte=0"`
	Prefix   string        `koanf:"prefix"`
	TTL      time.Duration `koanf:"ttl"`
	Timeout  time.Duration `koanf:"timeout" validate:"gt=0"`
}

// DataConfig points at the static reference data.
type DataConfig struct {
	Topology string `koanf:"topology" validate:"required"`
	Schedule string `koanf:"schedule" validate:"required"`
	Aircraft string `koanf:"aircraft"`
	// Rules overrides the built-in risk rule table when set.
	Rules string `koanf:"rules"`
}

// RegistryConfig configures the remote aircraft registry. Lookups fall back
// to the static aircraft file when BaseURL is empty or the remote misses.
type RegistryConfig struct {
	BaseURL   string        `koanf:"base_url" validate:"omitempty,url"`
	Token     string        `koanf:"token"`
	Timeout   time.Duration `koanf:"timeout"`
	RateLimit float64       `koanf:"rate_limit" validate:"gte=0"`
}

// EnrichmentConfig bounds the enrichment scheduler.
type EnrichmentConfig struct {
	Workers int           `koanf:"workers" validate:"gte=1"`
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
}

// PredictionConfig holds flight prediction defaults.
type PredictionConfig struct {
	Window time.Duration `koanf:"window" validate:"gt=0"`
}

func defaults() map[string]any {
	return map[string]any{
		"server.host":                "0.0.0.0",
		"server.port":                "8080",
		"server.metrics_port":        "9090",
		"server.read_timeout":        "15s",
		"server.read_header_timeout": "5s",
		"server.write_timeout":       "30s",
		"server.idle_timeout":        "60s",
		"server.request_timeout":     "30s",
		"log.level":                  "info",
		"log.format":                 "json",
		"session.store":              StoreMemory,
		"database.max_open_conns":    10,
		"database.max_idle_conns":    2,
		"database.conn_max_lifetime": "30m",
		"database.connect_timeout":   "30s",
		"database.connect_attempts":  5,
		"database.migrate":           true,
		"redis.address":              "localhost:6379",
		"redis.prefix":               "apronguard:session:",
		"redis.ttl":                  "72h",
		"redis.timeout":              "5s",
		"data.topology":              "data/topology.yaml",
		"data.schedule":              "data/schedule.yaml",
		"data.aircraft":              "data/aircraft.yaml",
		"registry.timeout":           "5s",
		"registry.rate_limit":        10.0,
		"enrichment.workers":         3,
		"enrichment.timeout":         "10s",
		"prediction.window":          "2h",
	}
}

// envKey maps APRON_SESSION__STORE to session.store. Comma separated
// allowed origins become a list.
func envKey(key, value string) (string, any) {
	key = strings.TrimPrefix(key, EnvPrefix)
	key = strings.ReplaceAll(strings.ToLower(key), "__", ".")
	if strings.Contains(value, ",") && strings.HasSuffix(key, "allowed_origins") {
		return key, strings.Split(value, ",")
	}
	return key, value
}

// Load reads configuration. Values are layered as defaults, then the file
// at path (skipped when empty), then environment variables.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	for key, value := range defaults() {
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("set default %s: %w", key, err)
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envKey), nil)
	if err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and cross-field requirements.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Auth.Enabled && c.Auth.SecretKey == "" {
		return errors.New("invalid config: auth.secret_key is required when auth is enabled")
	}
	switch c.Session.Store {
	case StorePostgres:
		if c.Database.URL == "" {
			return errors.New("invalid config: database.url is required for the postgres session store")
		}
	case StoreRedis:
		if c.Redis.Address == "" {
			return errors.New("invalid config: redis.address is required for the redis session store")
		}
	}
	return nil
}
