package config

import (
	"github.com/google/uuid"
)

const (
	DefaultBootstrapPause = "10s"
	DefaultNATSURL        = "nats://127.0.0.1:4222"
	DefaultSubjectPrefix  = "build.executor"
	DefaultStreamName     = "BUILD_EXECUTOR"
	DefaultConnectTimeout = "5s"
	DefaultJournalPath    = "build-executor.db"
)

// DefaultApplier fills unset fields for one configuration domain.
type DefaultApplier interface {
	ApplyDefaults(cfg *Config) error
	Domain() string
}

type loggingDefaults struct{}

func (loggingDefaults) Domain() string { return "logging" }

func (loggingDefaults) ApplyDefaults(cfg *Config) error {
	cfg.Logging.Level = NormalizeLogLevel(string(cfg.Logging.Level))
	cfg.Logging.Format = NormalizeLogFormat(string(cfg.Logging.Format))
	return nil
}

type dockerDefaults struct{}

func (dockerDefaults) Domain() string { return "docker" }

func (dockerDefaults) ApplyDefaults(cfg *Config) error {
	if cfg.Docker.BootstrapPause == "" {
		cfg.Docker.BootstrapPause = DefaultBootstrapPause
	}
	return nil
}

type orchestratorDefaults struct{}

func (orchestratorDefaults) Domain() string { return "orchestrator" }

func (orchestratorDefaults) ApplyDefaults(cfg *Config) error {
	o := &cfg.Orchestrator
	if o.NATSURL == "" {
		o.NATSURL = DefaultNATSURL
	}
	if o.SubjectPrefix == "" {
		o.SubjectPrefix = DefaultSubjectPrefix
	}
	if o.ExecutorID == "" {
		o.ExecutorID = uuid.NewString()
	}
	if o.CreateStream == nil {
		enabled := true
		o.CreateStream = &enabled
	}
	if o.StreamName == "" {
		o.StreamName = DefaultStreamName
	}
	if o.ConnectTimeout == "" {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	r := &o.PublishRetry
	if r.Backoff == "" {
		r.Backoff = RetryBackoffExponential
	} else {
		r.Backoff = NormalizeRetryBackoff(string(r.Backoff))
	}
	if r.InitialDelay == "" {
		r.InitialDelay = "200ms"
	}
	if r.MaxDelay == "" {
		r.MaxDelay = "5s"
	}
	if r.MaxRetries == 0 {
		r.MaxRetries = 3
	}
	return nil
}

type journalDefaults struct{}

func (journalDefaults) Domain() string { return "journal" }

func (journalDefaults) ApplyDefaults(cfg *Config) error {
	if cfg.Journal.Enabled && cfg.Journal.Path == "" {
		cfg.Journal.Path = DefaultJournalPath
	}
	return nil
}

var appliers = []DefaultApplier{
	loggingDefaults{},
	dockerDefaults{},
	orchestratorDefaults{},
	journalDefaults{},
}

// ApplyDefaults runs every domain applier in order.
func ApplyDefaults(cfg *Config) error {
	for _, a := range appliers {
		if err := a.ApplyDefaults(cfg); err != nil {
			return err
		}
	}
	return nil
}
