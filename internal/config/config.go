// Package config loads reactsync settings from a YAML file, .env files and
// environment variables.
//
// Precedence, lowest to highest: built-in defaults, the YAML file, then any
// environment variable named by an `env` struct tag. .env files are loaded
// into the environment first, in this order:
//
//  1. ENV_FILE (if set, only this file)
//  2. .env.local
//  3. .env
//
// Variables already present in the environment are never overwritten by a
// .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/roach88/reactsync/internal/ratelimit"
)

// DefaultPath is the config file read when none is given. It may be absent.
const DefaultPath = "reactsync.yaml"

// DefaultDatabase is the SQLite file used for every store by default.
const DefaultDatabase = "reactsync.db"

// Rate-limit backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config is the full configuration surface.
type Config struct {
	Account   AccountConfig   `yaml:"account"`
	Service   ServiceConfig   `yaml:"service"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Storage   StorageConfig   `yaml:"storage"`
}

// AccountConfig identifies the moderating account.
type AccountConfig struct {
	Handle string `yaml:"handle" env:"REACTSYNC_HANDLE"`
	// Password is an app password, used only when no stored session works.
	Password string `yaml:"password" env:"REACTSYNC_PASSWORD"`
}

// ServiceConfig locates the platform.
type ServiceConfig struct {
	PDSHost           string  `yaml:"pds_host" env:"REACTSYNC_PDS_HOST"`
	AppViewHost       string  `yaml:"appview_host" env:"REACTSYNC_APPVIEW_HOST"`
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"REACTSYNC_REQUESTS_PER_SECOND"`
}

// WindowConfig is one rate-limit window.
type WindowConfig struct {
	Limit  int           `yaml:"limit"`
	Period time.Duration `yaml:"period"`
}

// RateLimitConfig configures the action limiter.
type RateLimitConfig struct {
	Windows   []WindowConfig `yaml:"windows"`
	MaxWait   time.Duration  `yaml:"max_wait" env:"REACTSYNC_MAX_WAIT"`
	Backend   string         `yaml:"backend" env:"REACTSYNC_RATE_LIMIT_BACKEND"`
	RedisAddr string         `yaml:"redis_addr" env:"REACTSYNC_REDIS_ADDR"`
}

// StorageConfig holds SQLite paths. Equal paths share one connection.
type StorageConfig struct {
	Sessions   string `yaml:"sessions" env:"REACTSYNC_SESSIONS_DB"`
	Candidates string `yaml:"candidates" env:"REACTSYNC_CANDIDATES_DB"`
	RateLimit  string `yaml:"rate_limit" env:"REACTSYNC_RATE_LIMIT_DB"`
}

// Default returns the built-in configuration.
//
// The windows sit below the platform's published createRecord budget of
// 1666 per hour and 11666 per day.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			PDSHost:           "https://bsky.social",
			AppViewHost:       "https://public.api.bsky.app",
			RequestsPerSecond: 5,
		},
		RateLimit: RateLimitConfig{
			Windows: []WindowConfig{
				{Limit: 1000, Period: time.Hour},
				{Limit: 10000, Period: 24 * time.Hour},
			},
			MaxWait: time.Hour,
			Backend: BackendSQLite,
		},
		Storage: StorageConfig{
			Sessions:   DefaultDatabase,
			Candidates: DefaultDatabase,
			RateLimit:  DefaultDatabase,
		},
	}
}

// Load builds a Config from defaults, the YAML file at path and the
// environment, then validates it.
//
// An empty path, or DefaultPath when it does not exist, skips the file.
func Load(path string) (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, fmt.Errorf("load environment files: %w", err)
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist) && path == DefaultPath:
			// optional
		case err != nil:
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadEnvFiles loads .env files. Missing files are ignored.
func loadEnvFiles() error {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
		return nil
	}

	if err := godotenv.Load(".env.local"); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load .env.local: %w", err)
	}
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// SetDatabase points every store at path.
func (c *Config) SetDatabase(path string) {
	c.Storage.Sessions = path
	c.Storage.Candidates = path
	c.Storage.RateLimit = path
}

// Validate checks the configuration for values no component can run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Service.PDSHost == "" {
		errs = append(errs, errors.New("service.pds_host is required"))
	}
	if c.Service.AppViewHost == "" {
		errs = append(errs, errors.New("service.appview_host is required"))
	}
	if c.Service.RequestsPerSecond <= 0 {
		errs = append(errs, fmt.Errorf("service.requests_per_second must be positive, got %v", c.Service.RequestsPerSecond))
	}

	if len(c.RateLimit.Windows) == 0 {
		errs = append(errs, errors.New("rate_limit.windows must not be empty"))
	}
	for i, w := range c.RateLimit.Windows {
		if w.Limit <= 0 {
			errs = append(errs, fmt.Errorf("rate_limit.windows[%d].limit must be positive", i))
		}
		if w.Period <= 0 {
			errs = append(errs, fmt.Errorf("rate_limit.windows[%d].period must be positive", i))
		}
	}
	if c.RateLimit.MaxWait < 0 {
		errs = append(errs, errors.New("rate_limit.max_wait must not be negative"))
	}
	switch c.RateLimit.Backend {
	case BackendSQLite:
	case BackendRedis:
		if c.RateLimit.RedisAddr == "" {
			errs = append(errs, errors.New("rate_limit.redis_addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("rate_limit.backend %q: must be %q or %q",
			c.RateLimit.Backend, BackendSQLite, BackendRedis))
	}

	if c.Storage.Sessions == "" || c.Storage.Candidates == "" {
		errs = append(errs, errors.New("storage.sessions and storage.candidates are required"))
	}
	if c.RateLimit.Backend == BackendSQLite && c.Storage.RateLimit == "" {
		errs = append(errs, errors.New("storage.rate_limit is required for the sqlite backend"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// LimiterWindows converts the configured windows for ratelimit.New.
func (r RateLimitConfig) LimiterWindows() []ratelimit.Window {
	out := make([]ratelimit.Window, len(r.Windows))
	for i, w := range r.Windows {
		out[i] = ratelimit.Window{Limit: w.Limit, Period: w.Period}
	}
	return out
}
