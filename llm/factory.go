// LLM provider construction.
//
// The CLI and server build exactly one streaming provider from settings:
//
//	streamer, err := llm.NewStreamer(llm.ProviderConfig{
//	    Type:     llm.ProviderGemini,
//	    APIKey:   key,
//	    Defaults: llm.GenerationDefaults{MaxTokens: 8192, Temperature: 0.3},
//	})
//
// Only Gemini supports document caching; see AsDocumentCacher.

package llm

import (
	"fmt"
	"math"
	"strings"
)

// ProviderType represents supported LLM providers.
type ProviderType int

const (
	// ProviderGemini is the Google Gemini provider.
	ProviderGemini ProviderType = iota
	// ProviderOpenAI is the OpenAI provider (GPT models).
	ProviderOpenAI
	// ProviderAnthropic is the Anthropic provider (Claude models).
	ProviderAnthropic
	// ProviderDeepSeek is the DeepSeek provider.
	ProviderDeepSeek
)

// Model identifiers with known rates.
const (
	ModelGeminiFlash25         = "gemini-2.5-flash"
	ModelGeminiFlashLite25     = "gemini-2.5-flash-lite"
	ModelGeminiPro25           = "gemini-2.5-pro"
	ModelGeminiFlash2          = "gemini-2.0-flash-001"
	ModelAnthropicClaudeSonnet = "claude-sonnet-4-20250514"
	ModelAnthropicClaudeHaiku  = "claude-3-5-haiku-latest"
	ModelOpenAIGPT4o           = "gpt-4o"
	ModelOpenAIGPT4oMini       = "gpt-4o-mini"
	ModelDeepSeekChat          = "deepseek-chat"
)

// MaxOutputTokens is the largest output budget any provider request can carry.
// Gemini encodes it as int32.
const MaxOutputTokens = math.MaxInt32

const (
	defaultMaxTokens   uint32  = 4096
	defaultTemperature float32 = 0.7
)

// String returns the string representation of the provider type.
func (p ProviderType) String() string {
	switch p {
	case ProviderOpenAI:
		return "openai"
	case ProviderAnthropic:
		return "anthropic"
	case ProviderDeepSeek:
		return "deepseek"
	case ProviderGemini:
		return "gemini"
	default:
		return "unknown"
	}
}

// DefaultModel returns the model used when none is configured.
func (p ProviderType) DefaultModel() string {
	switch p {
	case ProviderOpenAI:
		return ModelOpenAIGPT4o
	case ProviderAnthropic:
		return ModelAnthropicClaudeSonnet
	case ProviderDeepSeek:
		return ModelDeepSeekChat
	case ProviderGemini:
		return ModelGeminiFlash25
	default:
		return ""
	}
}

// ParseProviderType parses a provider from string (case-insensitive).
func ParseProviderType(s string) (ProviderType, error) {
	switch strings.ToLower(s) {
	case "openai", "gpt":
		return ProviderOpenAI, nil
	case "anthropic", "claude":
		return ProviderAnthropic, nil
	case "deepseek":
		return ProviderDeepSeek, nil
	case "gemini", "google", "":
		return ProviderGemini, nil
	default:
		return 0, fmt.Errorf("unknown provider: %s", s)
	}
}

// GenerationDefaults are the per-provider values a request falls back to when
// it does not set its own.
type GenerationDefaults struct {
	MaxTokens   uint32
	Temperature float32
}

// withFallbacks fills zero MaxTokens and clamps it to MaxOutputTokens.
func (d GenerationDefaults) withFallbacks() GenerationDefaults {
	if d.MaxTokens == 0 {
		d.MaxTokens = defaultMaxTokens
	}
	d.MaxTokens = clampTokens(d.MaxTokens)
	return d
}

// maxTokens returns the request override or the default, never above MaxOutputTokens.
func (d GenerationDefaults) maxTokens(req CompletionRequest) uint32 {
	if req.MaxTokens > 0 {
		return clampTokens(req.MaxTokens)
	}
	return clampTokens(d.MaxTokens)
}

// temperature returns the request override or the default.
func (d GenerationDefaults) temperature(req CompletionRequest) float32 {
	if req.Temperature != nil {
		return *req.Temperature
	}
	return d.Temperature
}

func clampTokens(n uint32) uint32 {
	if n > MaxOutputTokens {
		return MaxOutputTokens
	}
	return n
}

// ProviderConfig selects and configures one provider.
type ProviderConfig struct {
	Type   ProviderType
	APIKey string
	// Model defaults to Type.DefaultModel().
	Model string
	// Defaults with a zero Temperature are used as given; callers wanting the
	// usual 0.7 should leave Defaults unset.
	Defaults *GenerationDefaults
}

// NewStreamer builds the provider described by cfg.
func NewStreamer(cfg ProviderConfig) (Streamer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%s: API key is empty", cfg.Type)
	}

	model := cfg.Model
	if model == "" {
		model = cfg.Type.DefaultModel()
	}

	defaults := GenerationDefaults{Temperature: defaultTemperature}
	if cfg.Defaults != nil {
		defaults = *cfg.Defaults
	}
	defaults = defaults.withFallbacks()

	switch cfg.Type {
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg.APIKey, model, defaults), nil
	case ProviderAnthropic:
		return NewAnthropicProvider(cfg.APIKey, model, defaults), nil
	case ProviderDeepSeek:
		return NewDeepSeekProvider(cfg.APIKey, model, defaults), nil
	case ProviderGemini:
		return NewGeminiProvider(cfg.APIKey, model, defaults), nil
	default:
		return nil, fmt.Errorf("unknown provider type: %v", cfg.Type)
	}
}
