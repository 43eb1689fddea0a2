package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/guildhall/internal/logger"
)

const (
	defaultListenAddr      = "localhost:8000"
	defaultLoggingLevel    = logger.LevelInfo
	defaultEnvironment     = logger.EnvProduction
	defaultAccessTTL       = 15 * time.Minute
	defaultRefreshTTL      = 7 * 24 * time.Hour
	defaultRateLimitMax    = 100
	defaultRateLimitWindow = 15 * time.Minute
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the guildhall service will be run
	ListenAddr string

	// Database to connect to: postgres://... or mongodb://...
	DatabaseDSN string

	// Redis to share rate limit counters between instances. In-memory counters if empty
	RedisURL string

	// Secrets to sign access and refresh tokens. Must differ in production
	AccessSecret  string
	RefreshSecret string

	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Requests per window for authenticated routes
	RateLimitMax    int64
	RateLimitWindow time.Duration

	// Environment: development, production or test
	Environment string
}

func NewConfig() *Config {
	return &Config{
		LogLevel:        defaultLoggingLevel,
		ListenAddr:      defaultListenAddr,
		Environment:     defaultEnvironment,
		AccessTTL:       defaultAccessTTL,
		RefreshTTL:      defaultRefreshTTL,
		RateLimitMax:    defaultRateLimitMax,
		RateLimitWindow: defaultRateLimitWindow,
	}
}

func (c *Config) IsProduction() bool {
	return c.Environment == logger.EnvProduction
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = value
			}
			return nil
		}
	}
	setDuration := func(o *time.Duration) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			return (*durationValue)(o).Set(value)
		}
	}
	setInt := func(o *int64) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			*o = n
			return nil
		}
	}

	// Slice, not map: ENVIRONMENT has to win over NODE_ENV
	envs := []struct {
		key   string
		parse func(string) error
	}{
		{"RUN_ADDRESS", setString(&c.ListenAddr)},
		{"DATABASE_URI", setString(&c.DatabaseDSN)},
		{"REDIS_URL", setString(&c.RedisURL)},
		{"JWT_SECRET", setString(&c.AccessSecret)},
		{"JWT_REFRESH_SECRET", setString(&c.RefreshSecret)},
		{"JWT_EXPIRE", setDuration(&c.AccessTTL)},
		{"JWT_REFRESH_EXPIRE", setDuration(&c.RefreshTTL)},
		{"LOG_LEVEL", setString(&c.LogLevel)},
		{"NODE_ENV", setString(&c.Environment)},
		{"ENVIRONMENT", setString(&c.Environment)},
		{"RATE_LIMIT_MAX", setInt(&c.RateLimitMax)},
		{"RATE_LIMIT_WINDOW", setDuration(&c.RateLimitWindow)},
	}

	for _, env := range envs {
		if err := env.parse(getenv(env.key)); err != nil {
			return fmt.Errorf("invalid %s: %w", env.key, err)
		}
	}
	return nil
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("guildhall", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string (postgres:// or mongodb://)")
	fs.StringVarP(&c.RedisURL, "redis", "r", c.RedisURL, "Redis URL for shared rate limit counters")
	fs.StringVarP(&c.AccessSecret, "secret", "s", c.AccessSecret, "Access token secret")
	fs.StringVar(&c.RefreshSecret, "refresh-secret", c.RefreshSecret, "Refresh token secret")
	fs.Var((*durationValue)(&c.AccessTTL), "access-ttl", "Access token lifetime (like 15m)")
	fs.Var((*durationValue)(&c.RefreshTTL), "refresh-ttl", "Refresh token lifetime (like 7d)")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (development, production, test)")
	fs.Int64Var(&c.RateLimitMax, "rate-limit-max", c.RateLimitMax, "Requests allowed per rate limit window")
	fs.Var((*durationValue)(&c.RateLimitWindow), "rate-limit-window", "Rate limit window")

	return fs.Parse(args)
}

// Check config is usable. Production is stricter
func (c *Config) Validate() error {
	if c.AccessSecret == "" || c.RefreshSecret == "" {
		return errors.New("both JWT_SECRET and JWT_REFRESH_SECRET must be set")
	}
	if c.IsProduction() && c.AccessSecret == c.RefreshSecret {
		return errors.New("JWT_SECRET and JWT_REFRESH_SECRET must differ in production")
	}
	if c.DatabaseDSN == "" {
		return errors.New("DATABASE_URI must be set")
	}
	if c.RateLimitMax <= 0 || c.RateLimitWindow <= 0 {
		return errors.New("rate limit max and window must be positive")
	}
	return nil
}

// time.Duration as pflag.Value, days are allowed as well: "7d"
type durationValue time.Duration

func (d *durationValue) String() string { return time.Duration(*d).String() }
func (d *durationValue) Type() string   { return "duration" }

func (d *durationValue) Set(s string) error {
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid duration %q", s)
		}
		*d = durationValue(time.Duration(n) * 24 * time.Hour)
		return nil
	}

	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = durationValue(v)
	return nil
}
