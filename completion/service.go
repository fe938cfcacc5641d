// Package completion streams answers for prompts about a document, using a
// remote cached context when one can be had and inline content otherwise.
//
// Information Hiding:
// - Choice between cached and inline mode
// - Stream goroutine lifecycle and usage capture
// - Cache record lookup and persistence for notebooks
package completion

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/richinex/folio/activation"
	"github.com/richinex/folio/cacheid"
	"github.com/richinex/folio/internal/logging"
	"github.com/richinex/folio/llm"
	"github.com/richinex/folio/metrics"
	"github.com/richinex/folio/usage"
	"github.com/sirupsen/logrus"
)

// ErrEmptyPrompt is returned when the prompt has no content.
var ErrEmptyPrompt = errors.New("prompt is empty")

const defaultBufferSize = 16

// Request is one completion call.
type Request struct {
	Prompt        string
	SystemPrompt  string
	Temperature   *float32
	MaxTokens     uint32
	StopSequences []string

	// Document is sent as a cached context or inline. Empty means no document.
	Document         []byte
	DocumentMIMEType string
	// ExistingCacheID is reused instead of activating Document again.
	// It is ignored without Document.
	ExistingCacheID string
}

// Service runs completion streams against one provider.
type Service struct {
	streamer   llm.Streamer
	activator  activation.Activator
	costPer1k  float64
	bufferSize int
	log        logrus.FieldLogger
}

// Option configures a Service.
type Option func(*Service)

// WithActivator enables cached-context mode. Without one every call is inline.
func WithActivator(a activation.Activator) Option {
	return func(s *Service) {
		s.activator = a
	}
}

// WithCostPer1k overrides the per-model rate used for cost estimates.
func WithCostPer1k(cost float64) Option {
	return func(s *Service) {
		s.costPer1k = cost
	}
}

// WithBufferSize sets the token channel buffer.
func WithBufferSize(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.bufferSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Service) {
		s.log = l
	}
}

// New creates a service streaming from streamer.
func New(streamer llm.Streamer, opts ...Option) *Service {
	s := &Service{
		streamer:   streamer,
		costPer1k:  llm.CostPer1kTokens(streamer.Model()),
		bufferSize: defaultBufferSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logging.OrDiscard(s.log)
	return s
}

// Model returns the model the service streams from.
func (s *Service) Model() string {
	return s.streamer.Model()
}

// Stream starts a completion. Activation happens before it returns, so
// NewCacheID and Mode are final; tokens arrive on Result.Tokens.
// Provider failures are reported by Result.Wait as *llm.ClassifiedError.
func (s *Service) Stream(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, ErrEmptyPrompt
	}

	requestID := uuid.NewString()
	log := s.log.WithField("request_id", requestID)

	creq, cacheID, mode := s.plan(ctx, req)
	log = log.WithField("mode", string(mode))
	if cacheID != "" {
		log = log.WithField("cache_id", cacheID)
	}
	log.Debug("starting completion stream")

	res := newResult(requestID, mode, cacheID, usage.NewTracker(s.costPer1k), s.bufferSize)
	metrics.ActiveStreams.Inc()
	go s.run(ctx, creq, res, log)
	return res, nil
}

// plan picks cached-context mode when the document can be activated and
// inline mode otherwise. The two never mix.
func (s *Service) plan(ctx context.Context, req Request) (llm.CompletionRequest, string, Mode) {
	creq := llm.CompletionRequest{
		Prompt:        req.Prompt,
		Temperature:   req.Temperature,
		MaxTokens:     req.MaxTokens,
		StopSequences: req.StopSequences,
	}

	hasDocument := len(req.Document) > 0
	if hasDocument && s.activator != nil {
		providerID, ok := s.activator.Activate(ctx, activation.Input{
			Document:          req.Document,
			MIMEType:          req.DocumentMIMEType,
			SystemInstruction: req.SystemPrompt,
			ExistingCacheID:   req.ExistingCacheID,
		})
		if ok {
			creq.CachedContent = providerID
			return creq, cacheid.Normalize(providerID), ModeCached
		}
	}

	creq.SystemInstruction = req.SystemPrompt
	if hasDocument {
		creq.Document = &llm.Document{Data: req.Document, MIMEType: req.DocumentMIMEType}
	}
	return creq, "", ModeInline
}

func (s *Service) run(ctx context.Context, creq llm.CompletionRequest, res *Result, log logrus.FieldLogger) {
	defer metrics.ActiveStreams.Dec()

	tokenUsage, err := s.streamer.StreamCompletion(ctx, creq, res.tokens)
	var promptTokens, completionTokens uint32
	if err != nil {
		err = llm.Classify(err)
		kind := llm.KindOf(err)
		metrics.RecordProviderError(kind.String())
		log.WithError(err).WithField("kind", kind.String()).Error("completion stream failed")
	} else {
		if tokenUsage != nil {
			promptTokens = tokenUsage.PromptTokens
			completionTokens = tokenUsage.CompletionTokens
		}
		res.tracker.Complete(promptTokens, completionTokens)
	}

	snapshot, _ := res.tracker.Snapshot()
	metrics.RecordCompletion(s.streamer.Model(), string(res.Mode), err, promptTokens, completionTokens, snapshot.EstimatedCost)
	if err == nil {
		log.WithFields(logrus.Fields{
			"total_tokens":   snapshot.TotalTokens,
			"estimated_cost": snapshot.EstimatedCost,
		}).Info("completion stream finished")
	}

	res.finish(err)
}
