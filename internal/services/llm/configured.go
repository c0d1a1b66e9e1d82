package llm

import "mina/internal/config"

// NewConfiguredClient builds a client from the application configuration.
func NewConfiguredClient(cfg *config.Config, opts ...Option) *Client {
	settings := cfg.GetLLM()
	return NewClient(Config{
		APIKey:         settings.APIKey,
		BaseURL:        settings.BaseURL,
		Model:          settings.Model,
		Referer:        settings.Referer,
		Title:          settings.Title,
		TimeoutSeconds: settings.TimeoutSeconds,
	}, opts...)
}
