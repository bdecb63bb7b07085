// Package config defines process configuration for the rankings engine.
//
// Configuration layers, lowest precedence first: built-in defaults, an
// optional YAML file named by SB_CONFIG, then SB_-prefixed environment
// variables. Env keys map onto nested fields with a double underscore,
// e.g. SB_DATABASE__HOST -> database.host.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// envPrefix is the prefix for all environment overrides.
const envPrefix = "SB_"

// Config contains the full process configuration.
type Config struct {
	App       AppConfig       `koanf:"app"`
	Database  DatabaseConfig  `koanf:"database"`
	Redis     RedisConfig     `koanf:"redis"`
	Ladder    LadderConfig    `koanf:"ladder"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	API       APIConfig       `koanf:"api"`
}

// AppConfig contains application-level settings.
type AppConfig struct {
	// Name appears in logs.
	Name string `koanf:"name"`

	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// DatabaseConfig contains PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	Database string `koanf:"database"`
	SSLMode  string `koanf:"ssl_mode"`
	MaxConns int32  `koanf:"max_conns"`
}

// RedisConfig contains rankings cache connection settings.
type RedisConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	PoolSize int    `koanf:"pool_size"`
}

// LadderConfig contains ladder display rules.
type LadderConfig struct {
	// PlacementGames is the lifetime-games threshold below which a rating
	// is displayed as 0.
	PlacementGames int `koanf:"placement_games"`
}

// SchedulerConfig contains background job settings.
type SchedulerConfig struct {
	// FinalizeInterval is how often the season finalization sweep runs.
	FinalizeInterval time.Duration `koanf:"finalize_interval"`

	// FinalizeJitter spreads sweep start times across instances.
	FinalizeJitter time.Duration `koanf:"finalize_jitter"`
}

// APIConfig contains the HTTP surface settings. The server carries the
// ladder read endpoints, health probes, and /metrics.
type APIConfig struct {
	// Addr is the listen address; empty disables the HTTP surface.
	Addr string `koanf:"addr"`

	// ReadTimeout bounds reading one request.
	ReadTimeout time.Duration `koanf:"read_timeout"`

	// WriteTimeout bounds writing one response.
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:            "shieldbattery-rankings",
			LogLevel:        "info",
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Database: "shieldbattery",
			SSLMode:  "disable",
			MaxConns: 10,
		},
		Redis: RedisConfig{
			Host:     "localhost",
			Port:     6379,
			PoolSize: 10,
		},
		Ladder: LadderConfig{
			PlacementGames: 5,
		},
		Scheduler: SchedulerConfig{
			FinalizeInterval: 5 * time.Minute,
			FinalizeJitter:   time.Minute,
		},
		API: APIConfig{
			Addr:         ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
	}
}

// Load builds a Config by layering defaults, optional file, and env vars.
func Load() (*Config, error) {
	k := koanf.New(".")

	if path := os.Getenv(envPrefix + "CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load file %s: %w", path, err)
		}
	}

	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.ReplaceAll(s, "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("config: load env: %w", err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the loaded configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return errors.New("config: database host must not be empty")
	}
	if c.Redis.Host == "" {
		return errors.New("config: redis host must not be empty")
	}
	if c.Ladder.PlacementGames < 0 {
		return errors.New("config: placement_games cannot be negative")
	}
	if c.Scheduler.FinalizeInterval <= 0 {
		return errors.New("config: finalize_interval must be positive")
	}
	return nil
}
