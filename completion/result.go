package completion

import (
	"strings"

	"github.com/richinex/folio/usage"
)

// Mode says how the document reached the provider for one call.
type Mode string

const (
	// ModeCached references a remote cached context. The request carries
	// neither the document nor the system instruction.
	ModeCached Mode = "cached"
	// ModeInline sends the document (if any) and the system instruction
	// with the request.
	ModeInline Mode = "inline"
)

// Result is a live completion stream.
type Result struct {
	// Tokens yields text chunks and is closed when the stream ends.
	Tokens <-chan string
	// NewCacheID is the canonical cache id the caller should persist, or
	// empty in inline mode.
	NewCacheID string
	Mode       Mode
	// Fingerprint of the document, set by Notebook.
	Fingerprint string
	RequestID   string

	tokens  chan string
	tracker *usage.Tracker
	done    chan struct{}
	err     error
}

func newResult(requestID string, mode Mode, cacheID string, tracker *usage.Tracker, buffer int) *Result {
	tokens := make(chan string, buffer)
	return &Result{
		Tokens:     tokens,
		NewCacheID: cacheID,
		Mode:       mode,
		RequestID:  requestID,
		tokens:     tokens,
		tracker:    tracker,
		done:       make(chan struct{}),
	}
}

// Usage returns the token usage. The second result is false until the
// stream has completed successfully.
func (r *Result) Usage() (usage.Snapshot, bool) {
	return r.tracker.Snapshot()
}

// Done is closed after Tokens is closed and the error is set.
func (r *Result) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the stream ends and returns its classified error.
// Tokens must be drained by the caller or Wait may block forever.
func (r *Result) Wait() error {
	<-r.done
	return r.err
}

// Collect drains Tokens and returns the full text.
func (r *Result) Collect() (string, error) {
	var sb strings.Builder
	for chunk := range r.Tokens {
		sb.WriteString(chunk)
	}
	return sb.String(), r.Wait()
}

// finish publishes the outcome. Usage must already be recorded so it is
// visible to anyone who has seen Tokens close.
func (r *Result) finish(err error) {
	r.err = err
	close(r.tokens)
	close(r.done)
}
