// Package config loads process configuration from the environment and optional
// .env files.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DefaultEnvFiles are loaded, when present, before the environment is parsed.
var DefaultEnvFiles = []string{".env", ".env.local"}

type StoreOptions struct {
	Driver      string `env:"STORE_DRIVER" envDefault:"memory"`
	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"specimens.db"`
	SeedFile    string `env:"SEED_FILE"`
}

// MockOptions shape the simulated backend behaviour.
type MockOptions struct {
	Latency     time.Duration `env:"MOCK_LATENCY" envDefault:"0s"`
	FailureRate float64       `env:"MOCK_FAILURE_RATE" envDefault:"0"`
}

type AuthOptions struct {
	JWTSecret string        `env:"AUTH_JWT_SECRET"`
	TokenTTL  time.Duration `env:"AUTH_TOKEN_TTL" envDefault:"12h"`
}

// Enabled reports whether the API requires bearer tokens.
func (a AuthOptions) Enabled() bool {
	return a.JWTSecret != ""
}

type ClientOptions struct {
	APIURL   string `env:"REVIEW_API_URL" envDefault:"http://localhost:8080"`
	APIToken string `env:"REVIEW_API_TOKEN"`
}

type Config struct {
	ListenAddr         string   `env:"LISTEN_ADDR" envDefault:":8080"`
	LogLevel           string   `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat          string   `env:"LOG_FORMAT" envDefault:"text"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	MetricsPath        string   `env:"METRICS_PATH" envDefault:"/metrics"`

	Store  StoreOptions
	Mock   MockOptions
	Auth   AuthOptions
	Client ClientOptions
}

// LoadEnv loads the env files that exist and returns how many were read.
// Variables already set in the process win.
func LoadEnv(files []string) (int, error) {
	existing := make([]string, 0, len(files))
	for _, f := range files {
		if info, err := os.Stat(f); err == nil && !info.IsDir() {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return 0, fmt.Errorf("config: load env files: %w", err)
	}
	return len(existing), nil
}

// Load reads DefaultEnvFiles and parses the environment.
func Load() (*Config, error) {
	if _, err := LoadEnv(DefaultEnvFiles); err != nil {
		return nil, err
	}
	return Parse()
}

// Parse reads the current environment without touching env files.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}
	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("config: DATABASE_URL is required when STORE_DRIVER is %q", DriverPostgres)
		}
	default:
		return fmt.Errorf("config: unknown STORE_DRIVER %q", c.Store.Driver)
	}
	if c.Mock.FailureRate < 0 || c.Mock.FailureRate > 1 {
		return fmt.Errorf("config: MOCK_FAILURE_RATE must be within [0,1], got %v", c.Mock.FailureRate)
	}
	if c.Mock.Latency < 0 {
		return fmt.Errorf("config: MOCK_LATENCY must not be negative")
	}
	if c.Auth.Enabled() && c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("config: AUTH_TOKEN_TTL must be positive")
	}
	if !strings.HasPrefix(c.MetricsPath, "/") {
		return fmt.Errorf("config: METRICS_PATH must start with /")
	}
	return nil
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func NewLogger(level, format string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)

	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)

	if strings.EqualFold(format, "json") {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}
