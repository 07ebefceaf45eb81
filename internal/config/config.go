package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration. Values come from defaults, then the YAML
// file, then SPE_* environment variables.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Remote  RemoteConfig  `yaml:"remote"`
	Sync    SyncConfig    `yaml:"sync"`
	Events  EventsConfig  `yaml:"events"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
	Logging LoggingConfig `yaml:"logging"`
	MCP     MCPConfig     `yaml:"mcp"`
}

// StorageConfig selects the local store backend.
type StorageConfig struct {
	Driver   string `yaml:"driver"` // sqlite, postgres, mysql, mongo, memory
	Path     string `yaml:"path"`
	DSN      string `yaml:"dsn"`
	Database string `yaml:"database"`
	BlobDir  string `yaml:"blob_dir"`
}

// RemoteConfig points at the document server.
type RemoteConfig struct {
	BaseURL  string `yaml:"base_url"`
	Timeout  int    `yaml:"timeout"` // seconds
	Email    string `yaml:"email"`
	Remember bool   `yaml:"remember"`
}

// SyncConfig controls background reconciliation.
type SyncConfig struct {
	Schedule     string `yaml:"schedule"` // cron expression, empty disables
	WatchCatalog bool   `yaml:"watch_catalog"`
	MaxParallel  int    `yaml:"max_parallel"`
}

// EventsConfig holds event sinks.
type EventsConfig struct {
	MQTT MQTTConfig `yaml:"mqtt"`
}

// MQTTConfig publishes state-handler events to a broker.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         int    `yaml:"qos"`
}

// MetricsConfig holds metric sinks.
type MetricsConfig struct {
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
}

// InfluxDBConfig writes save and reconcile timings.
type InfluxDBConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Token   string `yaml:"token"`
	Org     string `yaml:"org"`
	Bucket  string `yaml:"bucket"`
}

// TracingConfig enables OpenTelemetry spans.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
	Stdout  bool `yaml:"stdout"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MCPConfig toggles the tool server.
type MCPConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads configuration from path. An empty path uses defaults and
// environment overrides only.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// DataDir is where local files live by default.
func DataDir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".local", "share", "spe")
}

func defaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Driver:   "sqlite",
			Path:     filepath.Join(DataDir(), "spe.db"),
			Database: "spe",
		},
		Remote: RemoteConfig{
			Timeout: 30,
		},
		Sync: SyncConfig{
			MaxParallel: 4,
		},
		Events: EventsConfig{
			MQTT: MQTTConfig{
				Broker:      "tcp://localhost:1883",
				ClientID:    "spe",
				TopicPrefix: "spe",
				QoS:         1,
			},
		},
		Metrics: MetricsConfig{
			InfluxDB: InfluxDBConfig{
				URL:    "http://localhost:8086",
				Org:    "spe",
				Bucket: "spe",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
		MCP: MCPConfig{
			Enabled: true,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	// Storage
	if v := os.Getenv("SPE_STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = v
	}
	if v := os.Getenv("SPE_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("SPE_STORAGE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}

	// Remote
	if v := os.Getenv("SPE_REMOTE_URL"); v != "" {
		cfg.Remote.BaseURL = v
	}
	if v := os.Getenv("SPE_REMOTE_EMAIL"); v != "" {
		cfg.Remote.Email = v
	}

	// Sync
	if v := os.Getenv("SPE_SYNC_SCHEDULE"); v != "" {
		cfg.Sync.Schedule = v
	}

	// MQTT
	if v := os.Getenv("SPE_MQTT_BROKER"); v != "" {
		cfg.Events.MQTT.Broker = v
		cfg.Events.MQTT.Enabled = true
	}

	// InfluxDB
	if v := os.Getenv("SPE_INFLUXDB_TOKEN"); v != "" {
		cfg.Metrics.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("SPE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SPE_TRACING"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Tracing.Enabled = b
		}
	}
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.Path == "" {
			errs = append(errs, "storage.path is required for sqlite")
		}
	case "postgres", "mysql", "mongo", "mongodb":
		if c.Storage.DSN == "" {
			errs = append(errs, fmt.Sprintf("storage.dsn is required for %s", c.Storage.Driver))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Sprintf("storage.driver %q is not supported", c.Storage.Driver))
	}

	if c.Remote.BaseURL != "" && !strings.HasPrefix(c.Remote.BaseURL, "http://") && !strings.HasPrefix(c.Remote.BaseURL, "https://") {
		errs = append(errs, "remote.base_url must be an http(s) URL")
	}
	if c.Remote.Timeout < 1 {
		errs = append(errs, "remote.timeout must be at least 1 second")
	}

	if c.Sync.MaxParallel < 1 {
		errs = append(errs, "sync.max_parallel must be at least 1")
	}

	if c.Events.MQTT.QoS < 0 || c.Events.MQTT.QoS > 2 {
		errs = append(errs, "events.mqtt.qos must be 0, 1, or 2")
	}
	if c.Events.MQTT.Enabled && c.Events.MQTT.Broker == "" {
		errs = append(errs, "events.mqtt.broker is required when mqtt is enabled")
	}

	if c.Metrics.InfluxDB.Enabled {
		if c.Metrics.InfluxDB.URL == "" {
			errs = append(errs, "metrics.influxdb.url is required when influxdb is enabled")
		}
		if c.Metrics.InfluxDB.Bucket == "" {
			errs = append(errs, "metrics.influxdb.bucket is required when influxdb is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// RemoteTimeout returns the HTTP timeout for remote calls.
func (c *Config) RemoteTimeout() time.Duration {
	return time.Duration(c.Remote.Timeout) * time.Second
}
