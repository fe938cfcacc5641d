// Package llm provides LLM provider abstractions.
//
// Provider interfaces - the narrow contracts the completion core needs.
// Each provider implementation hides:
// - API client initialization and authentication
// - Request/response format conversion
// - Provider-specific streaming and usage reporting

package llm

import (
	"context"
)

// Streamer streams completions for one model.
type Streamer interface {
	// Name returns the provider name (for logging/debugging).
	Name() string

	// Model returns the current model being used.
	Model() string

	// StreamCompletion streams a completion, sending text chunks to the
	// provided channel. It does not close chunks. Returns token usage when
	// the provider reports it.
	StreamCompletion(ctx context.Context, req CompletionRequest, chunks chan<- string) (*TokenUsage, error)
}

// FileStore is the provider's remote file store.
type FileStore interface {
	// UploadFile uploads a local file. A nil file with nil error means the
	// provider returned no usable reference.
	UploadFile(ctx context.Context, path, mimeType, displayName string) (*RemoteFile, error)

	// FileStatus returns the processing state of an uploaded file.
	FileStatus(ctx context.Context, name string) (FileState, error)
}

// CacheCreator creates remote cached contexts.
type CacheCreator interface {
	// CreateCache returns the provider-issued cache name.
	CreateCache(ctx context.Context, req CacheRequest) (string, error)
}

// DocumentCacher is a provider that can turn documents into cached contexts.
type DocumentCacher interface {
	FileStore
	CacheCreator
}

// AsDocumentCacher returns s as a DocumentCacher if it supports caching.
func AsDocumentCacher(s Streamer) (DocumentCacher, bool) {
	dc, ok := s.(DocumentCacher)
	return dc, ok
}
