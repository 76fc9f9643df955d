// Package config loads module configuration from the environment, with an
// optional .env file and an optional YAML overlay.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// APIConfig configures the API client.
type APIConfig struct {
	BaseURL    string        `env:"SAVEMATE_API_URL" yaml:"baseUrl"`
	Token      string        `env:"SAVEMATE_API_TOKEN" yaml:"token"`
	Timeout    time.Duration `env:"SAVEMATE_API_TIMEOUT,default=10s" yaml:"timeout"`
	MaxRetries int           `env:"SAVEMATE_API_MAX_RETRIES,default=2" yaml:"maxRetries"`
	RateLimit  float64       `env:"SAVEMATE_API_RATE_LIMIT,default=0" yaml:"rateLimit"`
	Burst      int           `env:"SAVEMATE_API_BURST,default=1" yaml:"burst"`
}

// SnapshotConfig configures optional Redis snapshot persistence.
type SnapshotConfig struct {
	Enabled   bool          `env:"SAVEMATE_SNAPSHOT_ENABLED,default=false" yaml:"enabled"`
	RedisAddr string        `env:"SAVEMATE_SNAPSHOT_REDIS_ADDR,default=localhost:6379" yaml:"redisAddr"`
	RedisDB   int           `env:"SAVEMATE_SNAPSHOT_REDIS_DB,default=0" yaml:"redisDb"`
	KeyPrefix string        `env:"SAVEMATE_SNAPSHOT_KEY_PREFIX,default=ledgersync:snapshot" yaml:"keyPrefix"`
	TTL       time.Duration `env:"SAVEMATE_SNAPSHOT_TTL,default=0" yaml:"ttl"`
}

// StatsConfig configures the periodic stats refresher.
type StatsConfig struct {
	RefreshSpec string `env:"SAVEMATE_STATS_REFRESH,default=@every 5m" yaml:"refreshSpec"`
}

// Config is the full module configuration.
type Config struct {
	UserID   string         `env:"SAVEMATE_USER_ID" yaml:"userId"`
	LogLevel string         `env:"LOG_LEVEL,default=info" yaml:"logLevel"`
	API      APIConfig      `yaml:"api"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	Stats    StatsConfig    `yaml:"stats"`
}

// Load reads configuration from a .env file (when present) and the process
// environment.
func Load() (*Config, error) {
	// Missing .env is not an error; explicit environment still applies.
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFile overlays a YAML configuration file on top of environment-derived
// settings. File values win where set.
func LoadFile(path string) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		// Environment alone may be incomplete when a file supplies the rest.
		cfg = &Config{}
		_ = envdecode.Decode(cfg)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api base URL is required (SAVEMATE_API_URL)")
	}
	if c.API.Timeout < 0 {
		return fmt.Errorf("api timeout must not be negative")
	}
	if c.API.RateLimit < 0 {
		return fmt.Errorf("api rate limit must not be negative")
	}
	return nil
}
