// Package activation turns raw document bytes into a remote cached context
// that later completions can reference instead of resending the document.
//
// Information Hiding:
// - Scratch file naming and cleanup
// - Upload status polling bounds
// - Per-step deadlines on provider calls
// - Provider cache id prefixes
package activation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/richinex/folio/cacheid"
	"github.com/richinex/folio/internal/logging"
	"github.com/richinex/folio/llm"
	"github.com/richinex/folio/metrics"
	"github.com/richinex/folio/model"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultPollAttempts bounds the file status checks after upload.
	DefaultPollAttempts = 3
	// DefaultPollInterval is the wait between two status checks.
	DefaultPollInterval = 2000 * time.Millisecond
	// DefaultStepTimeout bounds the upload and the cache creation calls.
	DefaultStepTimeout = 60 * time.Second

	defaultDisplayName = "folio-document"
)

var (
	// ErrNoFileReference means the upload returned nothing that can be referenced.
	ErrNoFileReference = errors.New("upload returned no usable file reference")
	// ErrFileFailed means the provider rejected the uploaded file.
	ErrFileFailed = errors.New("uploaded file failed processing")
	// ErrNotActive means the file was still processing when polling gave up.
	ErrNotActive = errors.New("uploaded file did not become active")
	// ErrProviderPanic means a provider call panicked during activation.
	ErrProviderPanic = errors.New("provider panicked during activation")
)

// Input describes one document to activate.
type Input struct {
	Document []byte
	MIMEType string
	// SystemInstruction is bound into the cache at creation time only.
	SystemInstruction string
	// ExistingCacheID short-circuits the pipeline when set.
	ExistingCacheID string
	DisplayName     string
}

// Activator is the contract the completion service depends on.
type Activator interface {
	Activate(ctx context.Context, in Input) (providerCacheID string, ok bool)
}

// Pipeline uploads a document, waits for it to be processed and creates a
// cached context over it. Failures are logged and reported as "no cache";
// they never propagate, so callers can fall back to sending the document
// inline.
type Pipeline struct {
	files  llm.FileStore
	caches llm.CacheCreator
	model  string

	ttl          time.Duration
	scratchDir   string
	pollAttempts int
	pollInterval time.Duration
	stepTimeout  time.Duration
	now          func() time.Time
	log          logrus.FieldLogger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithTTL sets the lifetime of created caches.
func WithTTL(ttl time.Duration) Option {
	return func(p *Pipeline) {
		p.ttl = model.TTLOrDefault(ttl)
	}
}

// WithScratchDir sets where documents are written before upload.
func WithScratchDir(dir string) Option {
	return func(p *Pipeline) {
		p.scratchDir = dir
	}
}

// WithPolling overrides the status poll bounds. Non-positive values keep the defaults.
func WithPolling(attempts int, interval time.Duration) Option {
	return func(p *Pipeline) {
		if attempts > 0 {
			p.pollAttempts = attempts
		}
		if interval > 0 {
			p.pollInterval = interval
		}
	}
}

// WithStepTimeout bounds the upload and cache creation calls. Zero disables the bound.
func WithStepTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		p.stepTimeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(p *Pipeline) {
		p.log = l
	}
}

// WithClock sets the time source used for scratch names and latency.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// New creates a pipeline creating caches for modelName on cacher.
func New(cacher llm.DocumentCacher, modelName string, opts ...Option) *Pipeline {
	p := &Pipeline{
		files:        cacher,
		caches:       cacher,
		model:        modelName,
		ttl:          model.DefaultCacheTTL,
		pollAttempts: DefaultPollAttempts,
		pollInterval: DefaultPollInterval,
		stepTimeout:  DefaultStepTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = logging.OrDiscard(p.log)
	return p
}

// Activate returns the provider form of a usable cache id for the document.
// An existing id is returned as is without touching the provider.
func (p *Pipeline) Activate(ctx context.Context, in Input) (string, bool) {
	if existing := cacheid.Normalize(in.ExistingCacheID); existing != "" {
		p.log.WithField("cache_id", existing).Debug("reusing existing document cache")
		metrics.RecordActivation(metrics.OutcomeReused, 0)
		return cacheid.ProviderForm(existing), true
	}

	start := p.now()
	log := p.log.WithFields(logrus.Fields{
		"model": p.model,
		"size":  humanize.Bytes(uint64(len(in.Document))),
	})

	id, err := p.activate(ctx, in, log)
	if err != nil {
		log.WithError(err).Warn("document activation failed, falling back to inline content")
		metrics.RecordActivation(metrics.OutcomeFailed, 0)
		return "", false
	}

	elapsed := p.now().Sub(start)
	log.WithFields(logrus.Fields{
		"cache_id": id,
		"elapsed":  elapsed.String(),
	}).Info("document cache created")
	metrics.RecordActivation(metrics.OutcomeCreated, elapsed.Seconds())
	return cacheid.ProviderForm(id), true
}

func (p *Pipeline) activate(ctx context.Context, in Input, log logrus.FieldLogger) (id string, err error) {
	defer func() {
		if r := recover(); r != nil {
			id, err = "", fmt.Errorf("%w: %v", ErrProviderPanic, r)
		}
	}()

	mimeType := in.MIMEType
	if mimeType == "" {
		mimeType = llm.MIMETypePDF
	}
	displayName := in.DisplayName
	if displayName == "" {
		displayName = defaultDisplayName
	}

	scratch, err := writeScratch(p.scratchDir, in.Document, mimeType, p.now())
	if err != nil {
		return "", err
	}
	defer p.cleanup(scratch, log)

	file, err := p.upload(ctx, scratch.path, mimeType, displayName)
	if err != nil {
		return "", err
	}
	log = log.WithField("file", file.Name)

	if file.State != llm.FileStateActive {
		if err := p.waitActive(ctx, file.Name, log); err != nil {
			return "", err
		}
	}

	return p.createCache(ctx, llm.CacheRequest{
		Model:             p.model,
		File:              *file,
		SystemInstruction: in.SystemInstruction,
		DisplayName:       displayName,
		TTL:               p.ttl,
	})
}

func (p *Pipeline) upload(ctx context.Context, path, mimeType, displayName string) (*llm.RemoteFile, error) {
	ctx, cancel := p.stepContext(ctx)
	defer cancel()

	file, err := p.files.UploadFile(ctx, path, mimeType, displayName)
	if err != nil {
		return nil, fmt.Errorf("failed to upload document: %w", err)
	}
	if file == nil || !file.Usable() {
		return nil, ErrNoFileReference
	}
	return file, nil
}

// waitActive polls the file status until it is active, failed, or the
// attempt bound is reached. It only sleeps between attempts.
func (p *Pipeline) waitActive(ctx context.Context, name string, log logrus.FieldLogger) error {
	for attempt := 1; attempt <= p.pollAttempts; attempt++ {
		state, err := p.files.FileStatus(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to get file status: %w", err)
		}

		switch state {
		case llm.FileStateActive:
			return nil
		case llm.FileStateFailed:
			return ErrFileFailed
		}

		log.WithFields(logrus.Fields{
			"attempt": attempt,
			"state":   state.String(),
		}).Debug("document still processing")

		if attempt < p.pollAttempts {
			if err := sleep(ctx, p.pollInterval); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("%w after %d attempts", ErrNotActive, p.pollAttempts)
}

func (p *Pipeline) createCache(ctx context.Context, req llm.CacheRequest) (string, error) {
	ctx, cancel := p.stepContext(ctx)
	defer cancel()

	id, err := p.caches.CreateCache(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to create cache: %w", err)
	}
	canonical := cacheid.Normalize(id)
	if canonical == "" {
		return "", fmt.Errorf("failed to create cache: provider returned an empty id")
	}
	return canonical, nil
}

func (p *Pipeline) cleanup(f *scratchFile, log logrus.FieldLogger) {
	if err := f.remove(); err != nil {
		log.WithError(err).WithField("path", f.path).Warn("failed to remove scratch file")
		metrics.ScratchCleanupFailures.Inc()
	}
}

func (p *Pipeline) stepContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.stepTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.stepTimeout)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ Activator = (*Pipeline)(nil)
