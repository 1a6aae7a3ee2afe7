package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. HANDSHAKE_REDIS_URL
const EnvPrefix = "HANDSHAKE"

const (
	BackendMemory    = "memory"
	BackendRedis     = "redis"
	BackendPostgres  = "postgres"
	BackendPinata    = "pinata"
	BackendLocal     = "local"
	BackendGoChannel = "gochannel"

	EnvironmentProduction = "production"
)

// Config is the full service configuration, one section per viper key prefix
type Config struct {
	Server   Server
	Auth     Auth
	Store    Backend
	Redis    Redis
	Registry Backend
	Postgres Postgres
	Storage  Storage
	Pinata   Pinata
	Local    Local
	Log      Log
	Events   Backend
}

type Server struct {
	Addr        string
	Environment string
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type Auth struct {
	Domain     string
	ChainID    int64         `mapstructure:"chain_id"`
	NonceTTL   time.Duration `mapstructure:"nonce_ttl"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

type Backend struct {
	Backend string
}

type Redis struct {
	URL string
}

type Postgres struct {
	DSN string
}

type Storage struct {
	Backend      string
	SignedURLTTL time.Duration `mapstructure:"signed_url_ttl"`
}

type Pinata struct {
	JWT     string
	Gateway string
}

// Local configures the self-hosted blob store
type Local struct {
	BaseURL string `mapstructure:"base_url"`
	Dir     string
	// SigningKey is a PEM file with the ES256 key for upload grants.
	// Empty means an ephemeral key; outstanding URLs die with the process.
	SigningKey string `mapstructure:"signing_key"`
}

type Log struct {
	Level string
}

var defaults = map[string]any{
	"server.addr":            ":5001",
	"server.environment":     "development",
	"server.cors_origins":    []string{"http://localhost:3000"},
	"auth.domain":            "localhost:3000",
	"auth.chain_id":          43114,
	"auth.nonce_ttl":         10 * time.Minute,
	"auth.session_ttl":       24 * time.Hour,
	"store.backend":          BackendRedis,
	"redis.url":              "redis://localhost:6379/0",
	"registry.backend":       BackendPostgres,
	"postgres.dsn":           "",
	"storage.backend":        BackendPinata,
	"storage.signed_url_ttl": 30 * time.Minute,
	"pinata.jwt":             "",
	"pinata.gateway":         "ipfs.io",
	"local.base_url":         "http://localhost:5001",
	"local.dir":              "./data/blobs",
	"local.signing_key":      "",
	"log.level":              "info",
	"events.backend":         BackendRedis,
}

// Load reads an optional YAML file and applies HANDSHAKE_* environment overrides
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		slog.Error("Unable to unmarshal config", "err", err)
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate rejects settings the chosen backends can not run with
func (c *Config) Validate() error {
	var errs []error

	check := func(name, value string, allowed ...string) {
		for _, a := range allowed {
			if value == a {
				return
			}
		}
		errs = append(errs, fmt.Errorf("%s must be one of %s, got %q", name, strings.Join(allowed, "|"), value))
	}
	check("store.backend", c.Store.Backend, BackendRedis, BackendMemory)
	check("registry.backend", c.Registry.Backend, BackendPostgres, BackendMemory)
	check("storage.backend", c.Storage.Backend, BackendPinata, BackendLocal)
	check("events.backend", c.Events.Backend, BackendRedis, BackendGoChannel)

	if c.Auth.Domain == "" {
		errs = append(errs, errors.New("auth.domain is required"))
	}
	if c.Auth.NonceTTL <= 0 || c.Auth.SessionTTL <= 0 || c.Storage.SignedURLTTL <= 0 {
		errs = append(errs, errors.New("ttls must be positive"))
	}

	needsRedis := c.Store.Backend == BackendRedis || c.Events.Backend == BackendRedis
	if needsRedis && c.Redis.URL == "" {
		errs = append(errs, errors.New("redis.url is required for redis backends"))
	}
	if c.Registry.Backend == BackendPostgres && c.Postgres.DSN == "" {
		errs = append(errs, errors.New("postgres.dsn is required for the postgres registry"))
	}
	if c.Storage.Backend == BackendPinata && c.Pinata.JWT == "" {
		errs = append(errs, errors.New("pinata.jwt is required for pinata storage"))
	}
	if c.Storage.Backend == BackendLocal && (c.Local.BaseURL == "" || c.Local.Dir == "") {
		errs = append(errs, errors.New("local.base_url and local.dir are required for local storage"))
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Production reports whether server.environment is production
func (c *Config) Production() bool {
	return c.Server.Environment == EnvironmentProduction
}

// SlogLevel parses log.level
func (l Log) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("invalid log.level %q", l.Level)
	}
	return level, nil
}
