package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateOrchestrator(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateOrchestrator() error {
	o := c.Orchestrator
	if o.SuccessThreshold < 1 || o.SuccessThreshold > 4 {
		return errors.New("orchestrator.success_threshold must be between 1 and 4")
	}
	if o.StageTimeoutSeconds < 1 {
		return errors.New("orchestrator.stage_timeout_seconds must be at least 1")
	}
	if o.RetryAttempts < 1 {
		return errors.New("orchestrator.retry_attempts must be at least 1")
	}
	if o.HeartbeatTimeoutSeconds <= o.HeartbeatIntervalSeconds {
		return errors.New("orchestrator.heartbeat_timeout_seconds must exceed heartbeat_interval_seconds")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
		return nil
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
}
