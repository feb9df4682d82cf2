package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/oriys/pulsar/internal/observability"
)

// WorkerConfig holds settings for worker processes and the invoke-local tool
type WorkerConfig struct {
	// Command starts a worker. Empty means the running executable with the
	// "worker" subcommand.
	Command []string `json:"command" yaml:"command" toml:"command"`
	Tool    string   `json:"tool" yaml:"tool" toml:"tool"`
	Shell   string   `json:"shell" yaml:"shell" toml:"shell"`
	Codec   string   `json:"codec" yaml:"codec" toml:"codec"`
	// Timeout bounds one invocation. Zero means no timeout.
	Timeout Duration `json:"timeout" yaml:"timeout" toml:"timeout"`
	Strict  bool     `json:"strict" yaml:"strict" toml:"strict"`
}

// AWSConfig controls the AWS defaults layer of the worker environment
type AWSConfig struct {
	Inject  bool   `json:"inject" yaml:"inject" toml:"inject"`
	Region  string `json:"region" yaml:"region" toml:"region"`
	Profile string `json:"profile" yaml:"profile" toml:"profile"`
}

// LoggingConfig holds log output settings
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" toml:"level"`
	Format string `json:"format" yaml:"format" toml:"format"` // text, json
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled" toml:"enabled"`
	Namespace string `json:"namespace" yaml:"namespace" toml:"namespace"`
	// Textfile is written after every invocation when set.
	Textfile string `json:"textfile" yaml:"textfile" toml:"textfile"`
}

// ObservabilityConfig groups logging, tracing and metrics
type ObservabilityConfig struct {
	Logging LoggingConfig        `json:"logging" yaml:"logging" toml:"logging"`
	Tracing observability.Config `json:"tracing" yaml:"tracing" toml:"tracing"`
	Metrics MetricsConfig        `json:"metrics" yaml:"metrics" toml:"metrics"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr      string `json:"addr" yaml:"addr" toml:"addr"`
	Password  string `json:"password" yaml:"password" toml:"password"`
	DB        int    `json:"db" yaml:"db" toml:"db"`
	MaxLength int64  `json:"max_length" yaml:"max_length" toml:"max_length"`
}

// PostgresConfig holds PostgreSQL connection settings
type PostgresConfig struct {
	DSN string `json:"dsn" yaml:"dsn" toml:"dsn"`
}

// FileConfig holds settings for per-invocation JSON record files
type FileConfig struct {
	Dir       string   `json:"dir" yaml:"dir" toml:"dir"`
	MaxSize   int      `json:"max_size" yaml:"max_size" toml:"max_size"`
	Retention Duration `json:"retention" yaml:"retention" toml:"retention"`
}

// SinkConfig selects where invocation records go. Every configured
// destination receives each record.
type SinkConfig struct {
	Redis    RedisConfig    `json:"redis" yaml:"redis" toml:"redis"`
	Postgres PostgresConfig `json:"postgres" yaml:"postgres" toml:"postgres"`
	File     FileConfig     `json:"file" yaml:"file" toml:"file"`
}

// Config is the central configuration struct embedding all component configs
type Config struct {
	Worker        WorkerConfig        `json:"worker" yaml:"worker" toml:"worker"`
	AWS           AWSConfig           `json:"aws" yaml:"aws" toml:"aws"`
	Observability ObservabilityConfig `json:"observability" yaml:"observability" toml:"observability"`
	Sink          SinkConfig          `json:"sink" yaml:"sink" toml:"sink"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Worker: WorkerConfig{
			Tool:  "sls",
			Shell: "/bin/bash",
			Codec: "json",
		},
		AWS: AWSConfig{
			Inject: true,
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  "info",
				Format: "text",
			},
			Tracing: observability.Config{
				Exporter:    "otlp-http",
				Endpoint:    "localhost:4318",
				ServiceName: "pulsar",
				SampleRate:  1.0,
			},
			Metrics: MetricsConfig{
				Namespace: "pulsar",
			},
		},
		Sink: SinkConfig{
			Redis: RedisConfig{
				MaxLength: 1000,
			},
			File: FileConfig{
				MaxSize:   1 << 20,
				Retention: Duration(7 * 24 * time.Hour),
			},
		},
	}
}

// LoadFromFile loads configuration from a JSON, YAML or TOML file, chosen
// by extension. Unknown extensions are read as JSON.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}

// LoadFromEnv applies environment variable overrides to the config
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("PULSAR_WORKER_COMMAND"); v != "" {
		cfg.Worker.Command = strings.Fields(v)
	}
	if v := os.Getenv("PULSAR_TOOL"); v != "" {
		cfg.Worker.Tool = v
	}
	if v, ok := os.LookupEnv("PULSAR_SHELL"); ok {
		cfg.Worker.Shell = v
	}
	if v := os.Getenv("PULSAR_CODEC"); v != "" {
		cfg.Worker.Codec = v
	}
	if v := os.Getenv("PULSAR_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Worker.Timeout = Duration(d)
		}
	}
	if v := os.Getenv("PULSAR_STRICT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Worker.Strict = b
		}
	}
	if v := os.Getenv("PULSAR_AWS_INJECT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.AWS.Inject = b
		}
	}
	if v := os.Getenv("PULSAR_AWS_REGION"); v != "" {
		cfg.AWS.Region = v
	}
	if v := os.Getenv("PULSAR_AWS_PROFILE"); v != "" {
		cfg.AWS.Profile = v
	}
	if v := os.Getenv("PULSAR_LOG_LEVEL"); v != "" {
		cfg.Observability.Logging.Level = v
	}
	if v := os.Getenv("PULSAR_LOG_FORMAT"); v != "" {
		cfg.Observability.Logging.Format = v
	}
	if v := os.Getenv("PULSAR_TRACING_ENDPOINT"); v != "" {
		cfg.Observability.Tracing.Enabled = true
		cfg.Observability.Tracing.Endpoint = v
	}
	if v := os.Getenv("PULSAR_METRICS_FILE"); v != "" {
		cfg.Observability.Metrics.Enabled = true
		cfg.Observability.Metrics.Textfile = v
	}
	if v := os.Getenv("PULSAR_REDIS_ADDR"); v != "" {
		cfg.Sink.Redis.Addr = v
	}
	if v := os.Getenv("PULSAR_REDIS_PASSWORD"); v != "" {
		cfg.Sink.Redis.Password = v
	}
	if v := os.Getenv("PULSAR_PG_DSN"); v != "" {
		cfg.Sink.Postgres.DSN = v
	}
	if v := os.Getenv("PULSAR_RECORD_DIR"); v != "" {
		cfg.Sink.File.Dir = v
	}
}

// Load reads path (when non-empty) and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		loaded, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	LoadFromEnv(cfg)
	return cfg, nil
}

// WorkerEnv renders the settings a worker process needs as the
// environment overrides LoadFromEnv reads back.
func (c *Config) WorkerEnv() map[string]string {
	env := map[string]string{
		"PULSAR_TOOL":       c.Worker.Tool,
		"PULSAR_SHELL":      c.Worker.Shell,
		"PULSAR_TIMEOUT":    c.Worker.Timeout.String(),
		"PULSAR_STRICT":     strconv.FormatBool(c.Worker.Strict),
		"PULSAR_LOG_LEVEL":  c.Observability.Logging.Level,
		"PULSAR_LOG_FORMAT": c.Observability.Logging.Format,
	}
	if c.Observability.Tracing.Enabled && c.Observability.Tracing.Endpoint != "" {
		env["PULSAR_TRACING_ENDPOINT"] = c.Observability.Tracing.Endpoint
	}
	return env
}
