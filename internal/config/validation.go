package config

import (
	"fmt"
	"strings"
	"time"

	"git.home.luguber.info/inful/buildexecutor/internal/errors"
)

// ValidateConfig validates a configuration that already had defaults applied.
func ValidateConfig(cfg *Config) error {
	if err := validateDuration("docker.bootstrap_pause", cfg.Docker.BootstrapPause); err != nil {
		return err
	}
	if err := validateOrchestrator(&cfg.Orchestrator); err != nil {
		return err
	}
	if cfg.Journal.Enabled && strings.TrimSpace(cfg.Journal.Path) == "" {
		return errors.ConfigRequired("journal.path")
	}
	return nil
}

func validateOrchestrator(o *OrchestratorConfig) error {
	if strings.TrimSpace(o.NATSURL) == "" {
		return errors.ConfigRequired("orchestrator.nats_url")
	}
	if strings.ContainsAny(o.SubjectPrefix, " *>") {
		return errors.ValidationFailed("orchestrator.subject_prefix",
			fmt.Sprintf("invalid NATS subject token in %q", o.SubjectPrefix))
	}
	if strings.ContainsAny(o.ExecutorID, " .*>") {
		return errors.ValidationFailed("orchestrator.executor_id",
			fmt.Sprintf("executor id %q must be a single subject token", o.ExecutorID))
	}
	if o.StreamEnabled() && strings.TrimSpace(o.StreamName) == "" {
		return errors.ConfigRequired("orchestrator.stream_name")
	}
	if err := validateDuration("orchestrator.connect_timeout", o.ConnectTimeout); err != nil {
		return err
	}
	return validateRetry("orchestrator.publish_retry", o.PublishRetry)
}

func validateRetry(field string, r RetryConfig) error {
	if !r.Backoff.Valid() {
		return errors.ValidationFailed(field+".backoff", "unknown backoff mode")
	}
	if r.MaxRetries < 0 {
		return errors.ValidationFailed(field+".max_retries", "must be >= 0")
	}
	if err := validateDuration(field+".initial_delay", r.InitialDelay); err != nil {
		return err
	}
	if err := validateDuration(field+".max_delay", r.MaxDelay); err != nil {
		return err
	}
	initial, _ := time.ParseDuration(r.InitialDelay)
	maxDelay, _ := time.ParseDuration(r.MaxDelay)
	if maxDelay < initial {
		return errors.ValidationFailed(field+".max_delay", "must be >= initial_delay")
	}
	return nil
}

func validateDuration(field, raw string) error {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return errors.ValidationFailed(field, fmt.Sprintf("invalid duration %q", raw))
	}
	if d < 0 {
		return errors.ValidationFailed(field, "must not be negative")
	}
	return nil
}
