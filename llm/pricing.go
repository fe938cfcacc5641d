package llm

// DefaultCostPer1kTokens is used for models missing from the rate table.
const DefaultCostPer1kTokens = 0.0005

// costPer1kTokens is a blended USD rate per 1000 tokens (prompt + completion).
var costPer1kTokens = map[string]float64{
	ModelGeminiFlash25:         0.0006,
	ModelGeminiFlashLite25:     0.0002,
	ModelGeminiPro25:           0.0050,
	ModelGeminiFlash2:          0.0002,
	ModelAnthropicClaudeSonnet: 0.0090,
	ModelAnthropicClaudeHaiku:  0.0024,
	ModelOpenAIGPT4o:           0.0063,
	ModelOpenAIGPT4oMini:       0.0004,
	ModelDeepSeekChat:          0.0007,
}

// CostPer1kTokens returns the blended rate for model.
func CostPer1kTokens(model string) float64 {
	if rate, ok := costPer1kTokens[model]; ok {
		return rate
	}
	return DefaultCostPer1kTokens
}
