package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLLM()
	c.normalizeOrchestrator()
	c.normalizeEvents()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

func (c *Config) normalizeLLM() {
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
}

func (c *Config) normalizeOrchestrator() {
	o := &c.Orchestrator
	if o.SuccessThreshold <= 0 {
		o.SuccessThreshold = defaultSuccessThreshold
	}
	if o.StageTimeoutSeconds <= 0 {
		o.StageTimeoutSeconds = defaultStageTimeoutSeconds
	}
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = defaultRetryAttempts
	}
	if o.RetryBackoffSeconds <= 0 {
		o.RetryBackoffSeconds = defaultRetryBackoffSeconds
	}
	if o.PollIntervalSeconds < 0 {
		o.PollIntervalSeconds = defaultPollInterval
	}
	if o.ErrorRetryIntervalSeconds <= 0 {
		o.ErrorRetryIntervalSeconds = defaultErrorRetryInterval
	}
	if o.HeartbeatIntervalSeconds <= 0 {
		o.HeartbeatIntervalSeconds = defaultHeartbeatInterval
	}
	if o.HeartbeatTimeoutSeconds <= 0 {
		o.HeartbeatTimeoutSeconds = defaultHeartbeatTimeout
	}
}

func (c *Config) normalizeEvents() {
	if c.Events.BufferSize <= 0 {
		c.Events.BufferSize = defaultEventBufferSize
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
}
