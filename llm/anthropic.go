// Anthropic Provider implementation using official anthropic-sdk-go.
//
// Information Hiding:
// - API endpoint and authentication
// - Request format for the Messages API, PDFs as base64 document blocks
// - Streaming via official SDK
//
// Anthropic has no equivalent of a referenced cached context, so every call
// is inline.

package llm

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider implements Streamer for Anthropic Claude.
type AnthropicProvider struct {
	client   anthropic.Client
	model    string
	defaults GenerationDefaults
}

// NewAnthropicProvider creates a new Anthropic provider.
func NewAnthropicProvider(apiKey, model string, defaults GenerationDefaults) *AnthropicProvider {
	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)

	return &AnthropicProvider{
		client:   client,
		model:    model,
		defaults: defaults,
	}
}

// Name returns the provider name.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Model returns the current model.
func (p *AnthropicProvider) Model() string {
	return p.model
}

// StreamCompletion streams a completion.
func (p *AnthropicProvider) StreamCompletion(ctx context.Context, req CompletionRequest, chunks chan<- string) (*TokenUsage, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}

	stream := p.client.Messages.NewStreaming(ctx, params)

	var usage *TokenUsage
	for stream.Next() {
		event := stream.Current()

		switch eventVariant := event.AsAny().(type) {
		case anthropic.MessageStartEvent:
			// Capture input tokens from message start
			if eventVariant.Message.Usage.InputTokens > 0 {
				usage = &TokenUsage{
					PromptTokens: uint32(eventVariant.Message.Usage.InputTokens),
				}
			}
		case anthropic.ContentBlockDeltaEvent:
			switch deltaVariant := eventVariant.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if deltaVariant.Text != "" {
					select {
					case chunks <- deltaVariant.Text:
					case <-ctx.Done():
						return usage, ctx.Err()
					}
				}
			}
		case anthropic.MessageDeltaEvent:
			// Capture output tokens from message delta
			if eventVariant.Usage.OutputTokens > 0 {
				if usage == nil {
					usage = &TokenUsage{}
				}
				usage.CompletionTokens = uint32(eventVariant.Usage.OutputTokens)
				usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
			}
		}
	}

	if stream.Err() != nil {
		return usage, fmt.Errorf("stream error: %w", stream.Err())
	}

	return usage, nil
}

func (p *AnthropicProvider) buildParams(req CompletionRequest) (anthropic.MessageNewParams, error) {
	if req.UsesCache() {
		return anthropic.MessageNewParams{}, ErrCacheUnsupported
	}

	var blocks []anthropic.ContentBlockParamUnion
	if req.Document != nil && len(req.Document.Data) > 0 {
		if req.Document.MIMETypeOrDefault() != MIMETypePDF {
			return anthropic.MessageNewParams{}, fmt.Errorf("%w: %s", ErrDocumentUnsupported, req.Document.MIMEType)
		}
		blocks = append(blocks, anthropic.NewDocumentBlock(anthropic.Base64PDFSourceParam{
			Data: base64.StdEncoding.EncodeToString(req.Document.Data),
		}))
	}
	blocks = append(blocks, anthropic.NewTextBlock(req.Prompt))

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		MaxTokens:   int64(p.defaults.maxTokens(req)),
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
		Temperature: anthropic.Float(float64(p.defaults.temperature(req))),
	}
	if len(req.StopSequences) > 0 {
		params.StopSequences = req.StopSequences
	}

	if req.SystemInstruction != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: req.SystemInstruction},
		}
	}
	return params, nil
}

// Verify AnthropicProvider implements Streamer
var _ Streamer = (*AnthropicProvider)(nil)
