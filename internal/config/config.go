// Package config loads service configuration from file and environment and
// the data files the validator runs against.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/storefrontlabs/pricewatch/internal/scrape"
)

// ServerConfig tunes the HTTP front end.
type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	StreamInterval time.Duration `mapstructure:"stream_interval"`
}

// LoggingConfig selects the logger profile.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// CrawlerConfig tunes the headless crawl. Selectors overlay the compiled-in
// defaults so a storefront redesign is absorbed in configuration; category
// keys must be lowercase (viper folds map keys).
type CrawlerConfig struct {
	BaseURL           string           `mapstructure:"base_url"`
	MaxSessions       int64            `mapstructure:"max_sessions"`
	NavigationTimeout time.Duration    `mapstructure:"navigation_timeout"`
	StepTimeout       time.Duration    `mapstructure:"step_timeout"`
	CaptureCart       bool             `mapstructure:"capture_cart"`
	Headless          bool             `mapstructure:"headless"`
	UserAgent         string           `mapstructure:"user_agent"`
	Preflight         bool             `mapstructure:"preflight"`
	Categories        []string         `mapstructure:"categories"`
	Selectors         scrape.Selectors `mapstructure:"selectors"`
}

// RetryConfig tunes transient-failure retries.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// MatchingConfig tunes fuzzy product-name matching.
type MatchingConfig struct {
	Threshold float64 `mapstructure:"threshold"`
}

// ReconcileConfig tunes price comparison.
type ReconcileConfig struct {
	Tolerance string `mapstructure:"tolerance"`
}

// JobsConfig bounds the job store.
type JobsConfig struct {
	MaxActive     int           `mapstructure:"max_active"`
	MaxTotal      int           `mapstructure:"max_total"`
	Retention     time.Duration `mapstructure:"retention"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// StorageConfig selects where reports and debug artifacts land. Prefix
// applies to the gcs backend only.
type StorageConfig struct {
	Backend  string `mapstructure:"backend"`
	LocalDir string `mapstructure:"local_dir"`
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
}

// DatabaseConfig enables the results repository.
type DatabaseConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
}

// PubSubConfig enables milestone publishing.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// Config is the root configuration.
type Config struct {
	Server        ServerConfig    `mapstructure:"server"`
	Logging       LoggingConfig   `mapstructure:"logging"`
	Crawler       CrawlerConfig   `mapstructure:"crawler"`
	Retry         RetryConfig     `mapstructure:"retry"`
	Matching      MatchingConfig  `mapstructure:"matching"`
	Reconcile     ReconcileConfig `mapstructure:"reconcile"`
	Jobs          JobsConfig      `mapstructure:"jobs"`
	Storage       StorageConfig   `mapstructure:"storage"`
	Database      DatabaseConfig  `mapstructure:"database"`
	PubSub        PubSubConfig    `mapstructure:"pubsub"`
	LocationsFile string          `mapstructure:"locations_file"`
	ExpectedFile  string          `mapstructure:"expected_file"`
}

// Load reads configuration from the given file (or the default search path
// when empty), overlaid with PRICEWATCH_* environment variables.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("PRICEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		// A missing default file is fine, defaults plus env apply.
		var notFound viper.ConfigFileNotFoundError
		if err := v.ReadInConfig(); err != nil && !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.request_timeout", "30s")
	v.SetDefault("server.stream_interval", "1s")
	v.SetDefault("logging.development", false)
	v.SetDefault("crawler.max_sessions", 2)
	v.SetDefault("crawler.navigation_timeout", "45s")
	v.SetDefault("crawler.step_timeout", "15s")
	v.SetDefault("crawler.capture_cart", false)
	v.SetDefault("crawler.headless", true)
	v.SetDefault("crawler.preflight", true)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay", "500ms")
	v.SetDefault("retry.max_delay", "8s")
	v.SetDefault("matching.threshold", 0.72)
	v.SetDefault("reconcile.tolerance", "0.01")
	v.SetDefault("jobs.max_active", 4)
	v.SetDefault("jobs.max_total", 100)
	v.SetDefault("jobs.retention", "24h")
	v.SetDefault("jobs.sweep_interval", "10m")
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.local_dir", "./data")
	v.SetDefault("locations_file", "./configs/locations.yaml")
	v.SetDefault("expected_file", "./configs/expected.json")
}

// Validate rejects configurations the service cannot run with.
func (c Config) Validate() error {
	if c.Crawler.BaseURL == "" {
		return fmt.Errorf("config: crawler.base_url is required")
	}
	if c.Matching.Threshold < 0 || c.Matching.Threshold > 1 {
		return fmt.Errorf("config: matching.threshold must be within [0, 1]")
	}
	switch c.Storage.Backend {
	case "memory", "local":
	case "gcs":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("config: storage.bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("config: unknown storage.backend %q", c.Storage.Backend)
	}
	if c.Database.Enabled && c.Database.DSN == "" {
		return fmt.Errorf("config: database.dsn is required when the database is enabled")
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.Topic == "") {
		return fmt.Errorf("config: pubsub.project_id and pubsub.topic are required when pubsub is enabled")
	}
	if c.LocationsFile == "" {
		return fmt.Errorf("config: locations_file is required")
	}
	if c.ExpectedFile == "" {
		return fmt.Errorf("config: expected_file is required")
	}
	return nil
}
