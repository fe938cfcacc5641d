// OpenAI Provider implementation using go-openai library.
//
// Information Hiding:
// - API endpoint and authentication
// - Request/response format for OpenAI Chat Completions API
// - Streaming via go-openai library
//
// The chat completions API takes no PDF input, so documents are rejected.

package llm

import (
	"context"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements Streamer for OpenAI-compatible endpoints.
type OpenAIProvider struct {
	client   *openai.Client
	name     string
	model    string
	defaults GenerationDefaults
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(apiKey, model string, defaults GenerationDefaults) *OpenAIProvider {
	return &OpenAIProvider{
		client:   openai.NewClient(apiKey),
		name:     "openai",
		model:    model,
		defaults: defaults,
	}
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string {
	return p.name
}

// Model returns the current model.
func (p *OpenAIProvider) Model() string {
	return p.model
}

// StreamCompletion streams a completion.
func (p *OpenAIProvider) StreamCompletion(ctx context.Context, req CompletionRequest, chunks chan<- string) (*TokenUsage, error) {
	chatReq, err := p.buildRequest(req)
	if err != nil {
		return nil, err
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("stream creation failed: %w", err)
	}
	defer stream.Close()

	var usage *TokenUsage
	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return usage, nil
		}
		if err != nil {
			return usage, fmt.Errorf("stream recv failed: %w", err)
		}

		// Capture token usage from final chunk
		if response.Usage != nil {
			usage = &TokenUsage{
				PromptTokens:     uint32(response.Usage.PromptTokens),
				CompletionTokens: uint32(response.Usage.CompletionTokens),
				TotalTokens:      uint32(response.Usage.TotalTokens),
			}
		}

		if len(response.Choices) > 0 {
			content := response.Choices[0].Delta.Content
			if content != "" {
				select {
				case chunks <- content:
				case <-ctx.Done():
					return usage, ctx.Err()
				}
			}
		}
	}
}

func (p *OpenAIProvider) buildRequest(req CompletionRequest) (openai.ChatCompletionRequest, error) {
	if req.UsesCache() {
		return openai.ChatCompletionRequest{}, ErrCacheUnsupported
	}
	if req.Document != nil && len(req.Document.Data) > 0 {
		return openai.ChatCompletionRequest{}, fmt.Errorf("%s: %w", p.name, ErrDocumentUnsupported)
	}

	var messages []openai.ChatCompletionMessage
	if req.SystemInstruction != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemInstruction,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	return openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    messages,
		MaxTokens:   int(p.defaults.maxTokens(req)),
		Temperature: p.defaults.temperature(req),
		Stop:        req.StopSequences,
		Stream:      true,
		StreamOptions: &openai.StreamOptions{
			IncludeUsage: true,
		},
	}, nil
}

// Verify OpenAIProvider implements Streamer
var _ Streamer = (*OpenAIProvider)(nil)
