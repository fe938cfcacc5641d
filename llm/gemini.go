// Google Gemini Provider implementation using official google.golang.org/genai SDK.
//
// Information Hiding:
// - API authentication and client creation
// - File upload and processing-state lookups (Files service)
// - Cached context creation (Caches service)
// - Request assembly for cached-context vs inline calls
// - Streaming via official SDK iterator

package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiProvider implements Streamer and DocumentCacher for Google Gemini.
type GeminiProvider struct {
	client   *genai.Client
	model    string
	defaults GenerationDefaults
	initErr  error // Stores client initialization error for deferred reporting
}

// NewGeminiProvider creates a new Gemini provider.
// If client initialization fails, the error is stored and returned on first use.
func NewGeminiProvider(apiKey, model string, defaults GenerationDefaults) *GeminiProvider {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return &GeminiProvider{
			model:    model,
			defaults: defaults,
			initErr:  fmt.Errorf("failed to initialize Gemini client: %w", err),
		}
	}

	return &GeminiProvider{
		client:   client,
		model:    model,
		defaults: defaults,
	}
}

// Name returns the provider name.
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// Model returns the current model.
func (p *GeminiProvider) Model() string {
	return p.model
}

func (p *GeminiProvider) ready() error {
	if p.initErr != nil {
		return p.initErr
	}
	if p.client == nil {
		return fmt.Errorf("gemini client not initialized")
	}
	return nil
}

// UploadFile uploads a local file to the Gemini file store.
func (p *GeminiProvider) UploadFile(ctx context.Context, path, mimeType, displayName string) (*RemoteFile, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}

	file, err := p.client.Files.UploadFromPath(ctx, path, &genai.UploadFileConfig{
		MIMEType:    mimeType,
		DisplayName: displayName,
	})
	if err != nil {
		return nil, fmt.Errorf("file upload failed: %w", err)
	}
	if file == nil {
		return nil, nil
	}

	return &RemoteFile{
		Name:     file.Name,
		URI:      file.URI,
		MIMEType: file.MIMEType,
		State:    convertFileState(file.State),
	}, nil
}

// FileStatus returns the processing state of an uploaded file.
func (p *GeminiProvider) FileStatus(ctx context.Context, name string) (FileState, error) {
	if err := p.ready(); err != nil {
		return FileStateUnknown, err
	}

	file, err := p.client.Files.Get(ctx, name, nil)
	if err != nil {
		return FileStateUnknown, fmt.Errorf("file status lookup failed: %w", err)
	}
	return convertFileState(file.State), nil
}

// CreateCache creates a cached context holding the file and, if given, the
// system instruction. Returns the cache name ("cachedContents/<id>").
func (p *GeminiProvider) CreateCache(ctx context.Context, req CacheRequest) (string, error) {
	if err := p.ready(); err != nil {
		return "", err
	}

	model := req.Model
	if model == "" {
		model = p.model
	}

	cache, err := p.client.Caches.Create(ctx, model, buildCacheConfig(req))
	if err != nil {
		return "", fmt.Errorf("failed to create cache: %w", err)
	}
	if cache == nil || cache.Name == "" {
		return "", fmt.Errorf("failed to create cache: empty cache name")
	}
	return cache.Name, nil
}

// StreamCompletion streams a completion.
func (p *GeminiProvider) StreamCompletion(ctx context.Context, req CompletionRequest, chunks chan<- string) (*TokenUsage, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}

	contents := buildGeminiContents(req)
	config := p.buildGenerateConfig(req)

	var usage *TokenUsage
	// GenerateContentStream returns iter.Seq2[*GenerateContentResponse, error]
	for response, err := range p.client.Models.GenerateContentStream(ctx, p.model, contents, config) {
		if err != nil {
			return usage, fmt.Errorf("stream error: %w", err)
		}

		// Capture usage metadata from response
		if response.UsageMetadata != nil {
			usage = &TokenUsage{
				PromptTokens:     uint32(response.UsageMetadata.PromptTokenCount),
				CompletionTokens: uint32(response.UsageMetadata.CandidatesTokenCount),
				TotalTokens:      uint32(response.UsageMetadata.TotalTokenCount),
			}
		}

		text := response.Text()
		if text != "" {
			select {
			case chunks <- text:
			case <-ctx.Done():
				return usage, ctx.Err()
			}
		}
	}

	return usage, nil
}

// buildGenerateConfig maps a request onto the SDK config. A cached context
// already carries the system instruction, so it is only attached inline.
func (p *GeminiProvider) buildGenerateConfig(req CompletionRequest) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(p.defaults.temperature(req)),
		MaxOutputTokens: int32(p.defaults.maxTokens(req)),
	}
	if len(req.StopSequences) > 0 {
		config.StopSequences = req.StopSequences
	}

	if req.UsesCache() {
		config.CachedContent = req.CachedContent
		return config
	}

	if req.SystemInstruction != "" {
		config.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
	}
	return config
}

// buildGeminiContents returns the single user turn: the inline document (only
// when no cache is referenced) followed by the prompt.
func buildGeminiContents(req CompletionRequest) []*genai.Content {
	var parts []*genai.Part
	if !req.UsesCache() && req.Document != nil && len(req.Document.Data) > 0 {
		parts = append(parts, genai.NewPartFromBytes(req.Document.Data, req.Document.MIMETypeOrDefault()))
	}
	parts = append(parts, genai.NewPartFromText(req.Prompt))

	return []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
}

func buildCacheConfig(req CacheRequest) *genai.CreateCachedContentConfig {
	mimeType := req.File.MIMEType
	if mimeType == "" {
		mimeType = MIMETypePDF
	}

	config := &genai.CreateCachedContentConfig{
		TTL:         req.TTL,
		DisplayName: req.DisplayName,
		Contents: []*genai.Content{
			genai.NewContentFromParts([]*genai.Part{
				genai.NewPartFromURI(req.File.URI, mimeType),
			}, genai.RoleUser),
		},
	}
	if req.SystemInstruction != "" {
		config.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
	}
	return config
}

func convertFileState(state genai.FileState) FileState {
	switch state {
	case genai.FileStateProcessing:
		return FileStateProcessing
	case genai.FileStateActive:
		return FileStateActive
	case genai.FileStateFailed:
		return FileStateFailed
	default:
		return FileStateUnknown
	}
}

// Verify GeminiProvider implements the provider contracts
var _ Streamer = (*GeminiProvider)(nil)
var _ DocumentCacher = (*GeminiProvider)(nil)
