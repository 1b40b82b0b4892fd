// Package config loads pipeline settings from the environment and an
// optional .env file, and validates how the store connection is chosen.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// EndpointEnvVar is read when the connection comes from the environment.
const EndpointEnvVar = "ELASTICSEARCH_ENDPOINT"

var (
	// ErrConnectionMissing means no connection source was given and the
	// run is not a dry run.
	ErrConnectionMissing = errors.New("one of connection, connection-from-env or dry-run is required")
	// ErrConnectionConflict means both an explicit connection string and
	// connection-from-env were given.
	ErrConnectionConflict = errors.New("connection and connection-from-env are mutually exclusive")
)

// Config stores all configuration for the pipeline.
type Config struct {
	Connection        string `mapstructure:"CONNECTION"`
	ConnectionFromEnv bool   `mapstructure:"CONNECTION_FROM_ENV"`
	DryRun            bool   `mapstructure:"DRY_RUN"`
	MaxRank           int    `mapstructure:"MAX_RANK"`
	DropIndex         bool   `mapstructure:"DROP_INDEX"`
	CachePath         string `mapstructure:"CACHE_PATH"`
	ScrapeWorkers     int    `mapstructure:"SCRAPE_WORKERS"`
	IngestWorkers     int    `mapstructure:"INGEST_WORKERS"`
	MetricsAddr       string `mapstructure:"METRICS_ADDR"`
	BrowseURL         string `mapstructure:"BROWSE_URL"`
	ThingURL          string `mapstructure:"THING_URL"`
	FetchTimeout      int    `mapstructure:"FETCH_TIMEOUT"`
	UserAgent         string `mapstructure:"USER_AGENT"`
	LogLevel          string `mapstructure:"LOG_LEVEL"`
}

// Load reads configuration from file or environment variables.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	// Attempt to read the .env file, but don't fail if it's not present.
	// This allows configuration purely through environment variables.
	_ = viper.ReadInConfig()

	// Keys without defaults must be bound explicitly or Unmarshal will
	// not see their environment values.
	for _, key := range []string{
		"CONNECTION", "CONNECTION_FROM_ENV", "DRY_RUN",
		"MAX_RANK", "DROP_INDEX", "METRICS_ADDR",
	} {
		_ = viper.BindEnv(key)
	}

	viper.SetDefault("CACHE_PATH", ".bggcache.json")
	viper.SetDefault("SCRAPE_WORKERS", 10)
	viper.SetDefault("INGEST_WORKERS", 2)
	viper.SetDefault("BROWSE_URL", "https://boardgamegeek.com/browse/boardgame/page/%d")
	viper.SetDefault("THING_URL", "https://boardgamegeek.com/xmlapi2/thing?stats=1&id=%s")
	viper.SetDefault("FETCH_TIMEOUT", 60) // in seconds
	viper.SetDefault("USER_AGENT", "bgg-indexer/1.0")
	viper.SetDefault("LOG_LEVEL", "info")

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ResolveConnection validates the connection settings and returns the
// store connection string, empty for a storeless dry run.
func (c *Config) ResolveConnection() (string, error) {
	if c.Connection == "" && !c.ConnectionFromEnv && !c.DryRun {
		return "", ErrConnectionMissing
	}
	if c.Connection != "" && c.ConnectionFromEnv {
		return "", ErrConnectionConflict
	}
	if c.ConnectionFromEnv {
		endpoint := os.Getenv(EndpointEnvVar)
		if endpoint == "" {
			return "", fmt.Errorf("%w: %s is not set", ErrConnectionMissing, EndpointEnvVar)
		}
		return endpoint, nil
	}
	return c.Connection, nil
}
