// Package llm provides shared data models for LLM providers.
package llm

import (
	"strings"
	"time"
)

// MIMETypePDF is the default document type.
const MIMETypePDF = "application/pdf"

// Document is raw document content sent inline with a request.
type Document struct {
	Data     []byte
	MIMEType string
}

// MIMETypeOrDefault returns the document MIME type, defaulting to PDF.
func (d *Document) MIMETypeOrDefault() string {
	if d == nil || d.MIMEType == "" {
		return MIMETypePDF
	}
	return d.MIMEType
}

// CompletionRequest is one streaming generation call.
//
// CachedContent (provider form, "cachedContents/<id>") and the pair
// SystemInstruction/Document are mutually exclusive: a cached context already
// carries the document and its instruction.
type CompletionRequest struct {
	Prompt            string
	SystemInstruction string
	Temperature       *float32 // nil uses the provider default
	MaxTokens         uint32   // 0 uses the provider default
	StopSequences     []string
	Document          *Document
	CachedContent     string
}

// UsesCache reports whether the request references a remote cache.
func (r CompletionRequest) UsesCache() bool {
	return strings.TrimSpace(r.CachedContent) != ""
}

// TokenUsage contains token usage statistics.
type TokenUsage struct {
	PromptTokens     uint32
	CompletionTokens uint32
	TotalTokens      uint32
}

// FileState is the processing state of an uploaded file.
type FileState int

const (
	FileStateUnknown FileState = iota
	FileStateProcessing
	FileStateActive
	FileStateFailed
)

// String returns the string representation of the file state.
func (s FileState) String() string {
	switch s {
	case FileStateProcessing:
		return "processing"
	case FileStateActive:
		return "active"
	case FileStateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// RemoteFile references a file held by the provider's file store.
type RemoteFile struct {
	Name     string // Resource name used for status lookups ("files/abc")
	URI      string // URI used to reference the file from content
	MIMEType string
	State    FileState
}

// Usable reports whether the reference can be polled and cached.
func (f *RemoteFile) Usable() bool {
	return f != nil && f.Name != "" && f.URI != ""
}

// CacheRequest asks the provider to create a cached context for one file.
type CacheRequest struct {
	Model             string
	File              RemoteFile
	SystemInstruction string // bound into the cache, never resent per call
	DisplayName       string
	TTL               time.Duration
}
