package processors

import (
	openai "github.com/sashabaranov/go-openai"

	"clipscribe/config"
)

// NewOpenAIClient builds the shared provider client. Constructed once at
// startup and injected into each provider.
func NewOpenAIClient(cfg config.Config) *openai.Client {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(clientConfig)
}
