// Package config loads the harvester settings from flags, environment and an
// optional YAML file.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// RedditConfig holds the API credentials.
type RedditConfig struct {
	ClientID     string `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret string `mapstructure:"client_secret" yaml:"client_secret"`
	Username     string `mapstructure:"username" yaml:"username"`
	Password     string `mapstructure:"password" yaml:"password"`
	UserAgent    string `mapstructure:"user_agent" yaml:"user_agent"`
	// Backend is "json" for the built in client or "graw" for the
	// go-reddit-api-wrapper client.
	Backend string `mapstructure:"backend" yaml:"backend"`
	// Rate is the request rate in requests per second.
	Rate float64 `mapstructure:"rate" yaml:"rate"`
	// BaseURL overrides the API host, for proxies and tests.
	BaseURL string `mapstructure:"base_url" yaml:"base_url,omitempty"`
}

// StorageConfig selects the relational backend.
type StorageConfig struct {
	Type    string `mapstructure:"type" yaml:"type"`
	DSN     string `mapstructure:"dsn" yaml:"dsn"`
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`
}

// Config is the effective configuration of a command.
type Config struct {
	Reddit      RedditConfig  `mapstructure:"reddit" yaml:"reddit"`
	Storage     StorageConfig `mapstructure:"storage" yaml:"storage"`
	MetricsFile string        `mapstructure:"metrics_file" yaml:"metrics_file"`
	Verbose     int           `mapstructure:"verbose" yaml:"verbose"`
}

// New returns a viper instance with defaults and environment bindings.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault("reddit.user_agent", "go-reddit-harvest/1.0")
	v.SetDefault("reddit.backend", "json")
	v.SetDefault("reddit.rate", 1.0)
	v.SetDefault("reddit.base_url", "")
	v.SetDefault("storage.type", "sqlite")
	v.SetDefault("storage.data_dir", ".")
	v.SetDefault("verbose", 0)

	env := map[string]string{
		"reddit.client_id":     "REDDIT_CLIENT_ID",
		"reddit.client_secret": "REDDIT_CLIENT_SECRET",
		"reddit.username":      "REDDIT_USERNAME",
		"reddit.password":      "REDDIT_PASSWORD",
		"reddit.user_agent":    "REDDIT_USER_AGENT",
		"storage.dsn":          "DATABASE_URL",
	}
	for key, name := range env {
		// BindEnv only fails without a key.
		_ = v.BindEnv(key, name)
	}
	v.SetEnvPrefix("HARVEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path, if set, into v and validates the result.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the combinations Load cannot default.
func (c *Config) Validate() error {
	c.Storage.Type = strings.ToLower(c.Storage.Type)
	switch c.Storage.Type {
	case "sqlite":
	case "postgres", "postgresql":
		c.Storage.Type = "postgres"
		if c.Storage.DSN == "" {
			return errors.New("storage.dsn (or DATABASE_URL) is required when storage type is postgres")
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}

	switch c.Reddit.Backend {
	case "json":
	case "graw":
		if c.Reddit.ClientID == "" || c.Reddit.ClientSecret == "" {
			return errors.New("REDDIT_CLIENT_ID and REDDIT_CLIENT_SECRET are required for the graw backend")
		}
	default:
		return fmt.Errorf("unsupported reddit backend: %s", c.Reddit.Backend)
	}

	if c.Reddit.Username != "" && c.Reddit.ClientID == "" {
		return errors.New("reddit.username needs reddit.client_id")
	}
	if c.Reddit.Rate <= 0 {
		return fmt.Errorf("reddit.rate must be positive, got %v", c.Reddit.Rate)
	}
	return nil
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.Reddit.ClientSecret != "" {
		c.Reddit.ClientSecret = "********"
	}
	if c.Reddit.Password != "" {
		c.Reddit.Password = "********"
	}
	if c.Storage.DSN != "" && strings.Contains(c.Storage.DSN, "@") {
		c.Storage.DSN = "********"
	}
	return c
}
