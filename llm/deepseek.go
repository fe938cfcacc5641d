// DeepSeek Provider implementation using go-openai library.
//
// Information Hiding:
// - Uses OpenAI-compatible API with different base URL
// - Supports deepseek-chat and deepseek-reasoner models

package llm

import (
	openai "github.com/sashabaranov/go-openai"
)

const deepseekBaseURL = "https://api.deepseek.com/v1"

// NewDeepSeekProvider creates a DeepSeek provider on the OpenAI-compatible client.
func NewDeepSeekProvider(apiKey, model string, defaults GenerationDefaults) *OpenAIProvider {
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = deepseekBaseURL

	return &OpenAIProvider{
		client:   openai.NewClientWithConfig(config),
		name:     "deepseek",
		model:    model,
		defaults: defaults,
	}
}
