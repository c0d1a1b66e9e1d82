package config

const (
	defaultDataDir             = "~/.local/share/mina"
	defaultLogDir              = "~/.local/share/mina/logs"
	defaultAPIBind             = "127.0.0.1:7319"
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultLLMBaseURL          = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel            = "google/gemini-3-flash-preview"
	defaultLLMTitle            = "Mina Post-Session Processing"
	defaultLLMTimeoutSeconds   = 60
	defaultSuccessThreshold    = 3
	defaultStageTimeoutSeconds = 30
	defaultRetryAttempts       = 3
	defaultRetryBackoffSeconds = 1
	defaultPollInterval        = 2
	defaultErrorRetryInterval  = 5
	defaultHeartbeatInterval   = 15
	defaultHeartbeatTimeout    = 120
	defaultEventBufferSize     = 512
	defaultNotifyTimeout       = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Orchestrator: Orchestrator{
			SuccessThreshold:          defaultSuccessThreshold,
			StageTimeoutSeconds:       defaultStageTimeoutSeconds,
			RetryAttempts:             defaultRetryAttempts,
			RetryBackoffSeconds:       defaultRetryBackoffSeconds,
			PollIntervalSeconds:       defaultPollInterval,
			ErrorRetryIntervalSeconds: defaultErrorRetryInterval,
			HeartbeatIntervalSeconds:  defaultHeartbeatInterval,
			HeartbeatTimeoutSeconds:   defaultHeartbeatTimeout,
		},
		Events: Events{
			BufferSize:    defaultEventBufferSize,
			LedgerEnabled: true,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Completion:     true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
