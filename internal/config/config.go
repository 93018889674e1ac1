// Package config implements the load-file -> defaults -> env-override
// -> validate pipeline the teacher uses for its own configuration,
// adapted from ssw-logs-capture's log-shipping settings to the trace
// database's source adapters, HTTP query API, metrics, and snapshot
// settings.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v2"
)

// Config is the top-level configuration loaded from YAML and
// overridden by environment variables.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Sources  SourcesConfig  `yaml:"sources"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	Tracing  TracingConfig  `yaml:"tracing"`
}

type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

type SourcesConfig struct {
	Kafka  KafkaSourceConfig  `yaml:"kafka"`
	Docker DockerSourceConfig `yaml:"docker"`
	File   FileSourceConfig   `yaml:"file"`
}

type KafkaSourceConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`

	SASLEnabled bool   `yaml:"sasl_enabled"`
	SASLUser    string `yaml:"sasl_user"`
	// SASLPassword is deliberately absent from the YAML tag set: it is
	// only ever read from TRACEDB_KAFKA_SASL_PASSWORD so a credential
	// never lands in a config file on disk.
	SASLPassword  string `yaml:"-"`
	SASLMechanism string `yaml:"sasl_mechanism"` // "SCRAM-SHA-256" or "SCRAM-SHA-512"
}

type DockerSourceConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Host          string `yaml:"host"`
	ContainerName string `yaml:"container_name"`
}

type FileSourceConfig struct {
	Enabled bool     `yaml:"enabled"`
	Paths   []string `yaml:"paths"`
}

type SnapshotConfig struct {
	Enabled bool   `yaml:"enabled"`
	Codec   string `yaml:"codec"` // "none", "snappy", "lz4", "zstd"
	Path    string `yaml:"path"`
}

type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"service_name"`
	Endpoint    string  `yaml:"endpoint"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// Load follows the teacher's LoadConfig pipeline: read an optional
// YAML file, apply defaults for anything left zero, apply environment
// overrides, then validate.
func Load(configFile string) (*Config, error) {
	cfg := &Config{}

	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", configFile, err)
		}
	}

	applyDefaults(cfg)
	applyEnvironmentOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func applyDefaults(c *Config) {
	if c.HTTP.Address == "" {
		c.HTTP.Address = "127.0.0.1:8420"
	}
	if c.Metrics.Address == "" {
		c.Metrics.Address = "127.0.0.1:9420"
	}
	if c.Sources.Kafka.GroupID == "" {
		c.Sources.Kafka.GroupID = "tracedb"
	}
	if c.Sources.Kafka.SASLMechanism == "" {
		c.Sources.Kafka.SASLMechanism = "SCRAM-SHA-256"
	}
	if c.Sources.Docker.Host == "" {
		c.Sources.Docker.Host = "unix:///var/run/docker.sock"
	}
	if c.Snapshot.Codec == "" {
		c.Snapshot.Codec = "none"
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "tracedb"
	}
	if c.Tracing.SampleRatio == 0 {
		c.Tracing.SampleRatio = 1.0
	}
}

func applyEnvironmentOverrides(c *Config) {
	c.HTTP.Enabled = getEnvBool("TRACEDB_HTTP_ENABLED", c.HTTP.Enabled)
	c.HTTP.Address = getEnvString("TRACEDB_HTTP_ADDRESS", c.HTTP.Address)
	c.Metrics.Enabled = getEnvBool("TRACEDB_METRICS_ENABLED", c.Metrics.Enabled)
	c.Metrics.Address = getEnvString("TRACEDB_METRICS_ADDRESS", c.Metrics.Address)

	c.Sources.Kafka.Enabled = getEnvBool("TRACEDB_KAFKA_ENABLED", c.Sources.Kafka.Enabled)
	c.Sources.Kafka.Brokers = getEnvStringSlice("TRACEDB_KAFKA_BROKERS", c.Sources.Kafka.Brokers)
	c.Sources.Kafka.Topic = getEnvString("TRACEDB_KAFKA_TOPIC", c.Sources.Kafka.Topic)
	c.Sources.Kafka.SASLEnabled = getEnvBool("TRACEDB_KAFKA_SASL_ENABLED", c.Sources.Kafka.SASLEnabled)
	c.Sources.Kafka.SASLUser = getEnvString("TRACEDB_KAFKA_SASL_USER", c.Sources.Kafka.SASLUser)
	c.Sources.Kafka.SASLPassword = getEnvString("TRACEDB_KAFKA_SASL_PASSWORD", c.Sources.Kafka.SASLPassword)

	c.Sources.Docker.Enabled = getEnvBool("TRACEDB_DOCKER_ENABLED", c.Sources.Docker.Enabled)
	c.Sources.Docker.Host = getEnvString("TRACEDB_DOCKER_HOST", c.Sources.Docker.Host)
	c.Sources.Docker.ContainerName = getEnvString("TRACEDB_DOCKER_CONTAINER", c.Sources.Docker.ContainerName)

	c.Sources.File.Enabled = getEnvBool("TRACEDB_FILE_ENABLED", c.Sources.File.Enabled)
	c.Sources.File.Paths = getEnvStringSlice("TRACEDB_FILE_PATHS", c.Sources.File.Paths)

	c.Snapshot.Enabled = getEnvBool("TRACEDB_SNAPSHOT_ENABLED", c.Snapshot.Enabled)
	c.Snapshot.Codec = getEnvString("TRACEDB_SNAPSHOT_CODEC", c.Snapshot.Codec)
	c.Snapshot.Path = getEnvString("TRACEDB_SNAPSHOT_PATH", c.Snapshot.Path)

	c.Tracing.Enabled = getEnvBool("TRACEDB_TRACING_ENABLED", c.Tracing.Enabled)
	c.Tracing.Endpoint = getEnvString("TRACEDB_TRACING_ENDPOINT", c.Tracing.Endpoint)
}

func getEnvString(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if v := os.Getenv(key); v != "" {
		return splitNonEmpty(v, ',')
	}
	return defaultValue
}

func splitNonEmpty(s string, sep byte) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

// Validate mirrors the teacher's ConfigValidator shape (collect every
// error before failing) scaled down to this config's surface.
func Validate(c *Config) error {
	var errs []string

	if c.Sources.Kafka.Enabled && len(c.Sources.Kafka.Brokers) == 0 {
		errs = append(errs, "sources.kafka.brokers must be set when sources.kafka.enabled is true")
	}
	if c.Sources.Kafka.Enabled && c.Sources.Kafka.Topic == "" {
		errs = append(errs, "sources.kafka.topic must be set when sources.kafka.enabled is true")
	}
	if c.Sources.File.Enabled && len(c.Sources.File.Paths) == 0 {
		errs = append(errs, "sources.file.paths must be set when sources.file.enabled is true")
	}
	if c.Sources.Docker.Enabled && c.Sources.Docker.ContainerName == "" {
		errs = append(errs, "sources.docker.container_name must be set when sources.docker.enabled is true")
	}
	switch c.Snapshot.Codec {
	case "none", "snappy", "lz4", "zstd":
	default:
		errs = append(errs, fmt.Sprintf("snapshot.codec %q is not one of none|snappy|lz4|zstd", c.Snapshot.Codec))
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, "tracing.sample_ratio must be within [0,1]")
	}

	if len(errs) == 0 {
		return nil
	}
	msg := errs[0]
	for _, e := range errs[1:] {
		msg += "; " + e
	}
	return fmt.Errorf("%s", msg)
}
