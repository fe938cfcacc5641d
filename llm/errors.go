package llm

import (
	"errors"
	"strings"
)

// Sentinel errors returned by providers.
var (
	// ErrDocumentUnsupported is returned by providers that cannot take a document inline.
	ErrDocumentUnsupported = errors.New("inline document files are not supported by this provider")
	// ErrCacheUnsupported is returned when a cached context is sent to a provider without caching.
	ErrCacheUnsupported = errors.New("cached contexts are not supported by this provider")
)

// ErrorKind is the user-facing category of a provider failure.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindQuotaExceeded
	KindInvalidCredential
	KindForbidden
	KindRateLimited
	KindFileProcessing
)

// String returns the stable name of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindQuotaExceeded:
		return "quota-exceeded"
	case KindInvalidCredential:
		return "invalid-credential"
	case KindForbidden:
		return "forbidden"
	case KindRateLimited:
		return "rate-limited"
	case KindFileProcessing:
		return "file-processing-error"
	default:
		return "unknown"
	}
}

// UserMessage is a short explanation suitable for display.
func (k ErrorKind) UserMessage() string {
	switch k {
	case KindQuotaExceeded:
		return "The AI provider quota has been exceeded. Try again later or check your plan."
	case KindInvalidCredential:
		return "The AI provider rejected the API key. Check your credentials."
	case KindForbidden:
		return "The API key does not have permission for this request."
	case KindRateLimited:
		return "Too many requests. Wait a moment and try again."
	case KindFileProcessing:
		return "The document could not be processed."
	default:
		return "The AI request failed."
	}
}

// classificationRule maps an error message to a kind.
type classificationRule struct {
	kind  ErrorKind
	match func(msg string) bool
}

func containsFold(substr string) func(string) bool {
	return func(msg string) bool {
		return strings.Contains(strings.ToLower(msg), substr)
	}
}

// classificationRules is evaluated top to bottom; the first match wins.
// Substrings overlap ("invalid file", "rate limit quota"), so order matters.
var classificationRules = []classificationRule{
	{KindQuotaExceeded, containsFold("quota")},
	{KindInvalidCredential, containsFold("invalid")},
	{KindForbidden, containsFold("permission")},
	{KindRateLimited, containsFold("rate")},
	{KindFileProcessing, containsFold("file")},
}

// ClassifiedError is a provider failure tagged with a user-facing kind.
type ClassifiedError struct {
	Kind ErrorKind
	Err  error
}

// Error returns the original message unchanged.
func (e *ClassifiedError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the original error.
func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// Classify wraps err in a ClassifiedError. Nil stays nil and errors that are
// already classified are returned as is.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return err
	}
	return &ClassifiedError{Kind: classifyMessage(err.Error()), Err: err}
}

// KindOf returns the kind of a classified error, or KindUnknown.
func KindOf(err error) ErrorKind {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnknown
}

func classifyMessage(msg string) ErrorKind {
	for _, rule := range classificationRules {
		if rule.match(msg) {
			return rule.kind
		}
	}
	return KindUnknown
}
