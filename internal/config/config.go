// Package config loads the executor configuration from an optional YAML file,
// the process environment and .env files.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/buildexecutor/internal/errors"
)

// Config represents the executor configuration
type Config struct {
	Logging      LoggingConfig      `yaml:"logging"`
	Docker       DockerConfig       `yaml:"docker"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Journal      JournalConfig      `yaml:"journal"`

	// SandboxDir is the task sandbox root; defaults to the working directory.
	SandboxDir string `yaml:"sandbox_dir"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// DockerConfig configures the container daemon connection.
type DockerConfig struct {
	// Host is a default daemon address used when the task descriptor has none.
	Host string `yaml:"host"`
	// BootstrapPause is how long the bootstrap waits for a local daemon.
	BootstrapPause string `yaml:"bootstrap_pause"`
	// APIVersion pins the engine API version; empty negotiates.
	APIVersion string `yaml:"api_version"`
}

// OrchestratorConfig configures the NATS transport to the orchestrator.
//
// CreateStream (default true) binds a JetStream stream named StreamName to
// the status subjects at connect. Disable it only when an operator
// provisions a stream covering {subject_prefix}.*.status; without one every
// status publish fails.
type OrchestratorConfig struct {
	NATSURL        string      `yaml:"nats_url"`
	SubjectPrefix  string      `yaml:"subject_prefix"`
	ExecutorID     string      `yaml:"executor_id"`
	CreateStream   *bool       `yaml:"create_stream"`
	StreamName     string      `yaml:"stream_name"`
	ConnectTimeout string      `yaml:"connect_timeout"`
	PublishRetry   RetryConfig `yaml:"publish_retry"`
}

// RetryConfig describes a retry/backoff policy.
type RetryConfig struct {
	Backoff      RetryBackoffMode `yaml:"backoff"`
	InitialDelay string           `yaml:"initial_delay"`
	MaxDelay     string           `yaml:"max_delay"`
	MaxRetries   int              `yaml:"max_retries"`
}

// MetricsConfig enables the Prometheus endpoint when ListenAddr is set.
type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// JournalConfig enables the local SQLite task journal.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load loads configuration from configPath. An empty path yields the defaults.
func Load(configPath string) (*Config, error) {
	if err := loadEnvFile(); err != nil {
		fmt.Fprintf(os.Stderr, "Note: .env file not found or couldn't be loaded: %v\n", err)
	}

	cfg := &Config{}
	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, errors.ConfigNotFound(configPath)
		}

		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// Expand environment variables in the YAML content
		expanded := os.ExpandEnv(string(data))

		dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && err != io.EOF {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	if err := ApplyDefaults(cfg); err != nil {
		return nil, err
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Pause returns the parsed bootstrap pause. Call after ValidateConfig.
func (d DockerConfig) Pause() time.Duration {
	p, _ := time.ParseDuration(d.BootstrapPause)
	return p
}

// StreamEnabled reports whether the driver creates the status stream.
func (o OrchestratorConfig) StreamEnabled() bool {
	return o.CreateStream == nil || *o.CreateStream
}

// Timeout returns the parsed NATS connect timeout. Call after ValidateConfig.
func (o OrchestratorConfig) Timeout() time.Duration {
	t, _ := time.ParseDuration(o.ConnectTimeout)
	return t
}
