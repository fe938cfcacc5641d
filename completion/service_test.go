package completion

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/richinex/folio/activation"
	"github.com/richinex/folio/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)
}

// fakeStreamer records the requests it receives and replays chunks.
type fakeStreamer struct {
	mu       sync.Mutex
	chunks   []string
	usage    *llm.TokenUsage
	err      error
	requests []llm.CompletionRequest
	release  chan struct{} // when set, the stream waits on it before finishing
}

func (f *fakeStreamer) Name() string  { return "fake" }
func (f *fakeStreamer) Model() string { return "fake-model" }

func (f *fakeStreamer) StreamCompletion(ctx context.Context, req llm.CompletionRequest, chunks chan<- string) (*llm.TokenUsage, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	for _, c := range f.chunks {
		select {
		case chunks <- c:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.release != nil {
		<-f.release
	}
	return f.usage, f.err
}

func (f *fakeStreamer) lastRequest(t *testing.T) llm.CompletionRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.requests)
	return f.requests[len(f.requests)-1]
}

// fakeActivator returns a fixed outcome.
type fakeActivator struct {
	id     string
	ok     bool
	inputs []activation.Input
}

func (f *fakeActivator) Activate(ctx context.Context, in activation.Input) (string, bool) {
	f.inputs = append(f.inputs, in)
	return f.id, f.ok
}

// processingCacher never finishes processing uploaded files.
type processingCacher struct {
	uploads []string
}

func (c *processingCacher) UploadFile(ctx context.Context, path, mimeType, displayName string) (*llm.RemoteFile, error) {
	c.uploads = append(c.uploads, path)
	return &llm.RemoteFile{Name: "files/p", URI: "https://files/p", State: llm.FileStateProcessing}, nil
}

func (c *processingCacher) FileStatus(ctx context.Context, name string) (llm.FileState, error) {
	return llm.FileStateProcessing, nil
}

func (c *processingCacher) CreateCache(ctx context.Context, req llm.CacheRequest) (string, error) {
	return "", errors.New("unexpected cache creation")
}

func TestStreamCachedModeOmitsSystemInstruction(t *testing.T) {
	s := &fakeStreamer{chunks: []string{"Hello", ", ", "world"}, usage: &llm.TokenUsage{PromptTokens: 10, CompletionTokens: 5}}
	a := &fakeActivator{id: "cachedContents/abc", ok: true}
	svc := New(s, WithActivator(a))

	res, err := svc.Stream(context.Background(), Request{
		Prompt:       "what is this?",
		SystemPrompt: "be precise",
		Document:     []byte("%PDF"),
	})
	require.NoError(t, err)
	assert.Equal(t, ModeCached, res.Mode)
	assert.Equal(t, "abc", res.NewCacheID)

	text, err := res.Collect()
	require.NoError(t, err)
	assert.Equal(t, "Hello, world", text)

	req := s.lastRequest(t)
	assert.Equal(t, "cachedContents/abc", req.CachedContent)
	assert.Empty(t, req.SystemInstruction)
	assert.Nil(t, req.Document)

	require.Len(t, a.inputs, 1)
	assert.Equal(t, "be precise", a.inputs[0].SystemInstruction)
}

func TestStreamInlineModeCarriesSystemInstruction(t *testing.T) {
	s := &fakeStreamer{chunks: []string{"ok"}}
	a := &fakeActivator{ok: false}
	svc := New(s, WithActivator(a))

	temp := float32(0.2)
	res, err := svc.Stream(context.Background(), Request{
		Prompt:        "q",
		SystemPrompt:  "be precise",
		Temperature:   &temp,
		MaxTokens:     64,
		StopSequences: []string{"STOP"},
		Document:      []byte("%PDF"),
	})
	require.NoError(t, err)
	assert.Equal(t, ModeInline, res.Mode)
	assert.Empty(t, res.NewCacheID)
	_, err = res.Collect()
	require.NoError(t, err)

	req := s.lastRequest(t)
	assert.Empty(t, req.CachedContent)
	assert.Equal(t, "be precise", req.SystemInstruction)
	require.NotNil(t, req.Document)
	assert.Equal(t, []byte("%PDF"), req.Document.Data)
	assert.Equal(t, &temp, req.Temperature)
	assert.Equal(t, uint32(64), req.MaxTokens)
	assert.Equal(t, []string{"STOP"}, req.StopSequences)
}

func TestStreamFallsBackInlineWhenFileNeverActivates(t *testing.T) {
	s := &fakeStreamer{chunks: []string{"ok"}}
	cacher := &processingCacher{}
	pipeline := activation.New(cacher, "fake-model",
		activation.WithScratchDir(t.TempDir()),
		activation.WithPolling(3, time.Millisecond),
	)
	svc := New(s, WithActivator(pipeline))

	res, err := svc.Stream(context.Background(), Request{Prompt: "q", SystemPrompt: "sys", Document: []byte("%PDF-doc")})
	require.NoError(t, err)
	_, err = res.Collect()
	require.NoError(t, err)

	assert.Equal(t, ModeInline, res.Mode)
	req := s.lastRequest(t)
	assert.Empty(t, req.CachedContent, "must not reference a cache")
	require.NotNil(t, req.Document)
	assert.Equal(t, []byte("%PDF-doc"), req.Document.Data)
	assert.Equal(t, "sys", req.SystemInstruction)

	require.Len(t, cacher.uploads, 1)
	_, statErr := os.Stat(cacher.uploads[0])
	assert.True(t, os.IsNotExist(statErr), "scratch file must be removed")
}

func TestStreamWithoutDocumentIgnoresCacheID(t *testing.T) {
	s := &fakeStreamer{}
	a := &fakeActivator{id: "cachedContents/abc", ok: true}
	svc := New(s, WithActivator(a))

	res, err := svc.Stream(context.Background(), Request{Prompt: "q", SystemPrompt: "sys", ExistingCacheID: "abc"})
	require.NoError(t, err)
	_, err = res.Collect()
	require.NoError(t, err)

	assert.Empty(t, a.inputs)
	assert.Equal(t, ModeInline, res.Mode)
	req := s.lastRequest(t)
	assert.Nil(t, req.Document)
	assert.Equal(t, "sys", req.SystemInstruction)
}

func TestStreamWithoutActivatorIsInline(t *testing.T) {
	s := &fakeStreamer{}
	svc := New(s)

	res, err := svc.Stream(context.Background(), Request{Prompt: "q", Document: []byte("%PDF")})
	require.NoError(t, err)
	require.NoError(t, res.Wait())
	assert.Equal(t, ModeInline, res.Mode)
	assert.NotNil(t, s.lastRequest(t).Document)
}

func TestStreamUsageAvailableOnlyAfterCompletion(t *testing.T) {
	release := make(chan struct{})
	s := &fakeStreamer{
		chunks:  []string{"a"},
		usage:   &llm.TokenUsage{PromptTokens: 1500, CompletionTokens: 500},
		release: release,
	}
	svc := New(s, WithCostPer1k(0.5))

	res, err := svc.Stream(context.Background(), Request{Prompt: "q"})
	require.NoError(t, err)

	assert.Equal(t, "a", <-res.Tokens)
	_, ok := res.Usage()
	assert.False(t, ok, "usage must be unavailable while streaming")

	close(release)
	for range res.Tokens {
	}

	u, ok := res.Usage()
	require.True(t, ok, "usage must be readable once tokens are drained")
	assert.Equal(t, uint32(2000), u.TotalTokens)
	assert.InDelta(t, 1.0, u.EstimatedCost, 1e-9)
	require.NoError(t, res.Wait())
}

func TestStreamMissingUsageCountsAsZero(t *testing.T) {
	svc := New(&fakeStreamer{chunks: []string{"x"}})

	res, err := svc.Stream(context.Background(), Request{Prompt: "q"})
	require.NoError(t, err)
	_, err = res.Collect()
	require.NoError(t, err)

	u, ok := res.Usage()
	require.True(t, ok)
	assert.Zero(t, u.TotalTokens)
}

func TestStreamErrorIsClassified(t *testing.T) {
	s := &fakeStreamer{chunks: []string{"partial"}, err: errors.New("Request failed: quota exceeded for project")}
	svc := New(s)

	res, err := svc.Stream(context.Background(), Request{Prompt: "q"})
	require.NoError(t, err)

	text, err := res.Collect()
	assert.Equal(t, "partial", text)
	require.Error(t, err)
	assert.Equal(t, llm.KindQuotaExceeded, llm.KindOf(err))
	assert.Equal(t, "Request failed: quota exceeded for project", err.Error())

	var ce *llm.ClassifiedError
	assert.True(t, errors.As(err, &ce))

	_, ok := res.Usage()
	assert.False(t, ok, "failed streams have no usage")
}

func TestStreamEmptyPrompt(t *testing.T) {
	svc := New(&fakeStreamer{})

	_, err := svc.Stream(context.Background(), Request{Prompt: "   "})
	assert.ErrorIs(t, err, ErrEmptyPrompt)
}

func TestStreamCancelledWhileBlocked(t *testing.T) {
	s := &fakeStreamer{chunks: []string{"a", "b", "c"}}
	svc := New(s, WithBufferSize(0))

	ctx, cancel := context.WithCancel(context.Background())
	res, err := svc.Stream(ctx, Request{Prompt: "q"})
	require.NoError(t, err)

	assert.Equal(t, "a", <-res.Tokens)
	cancel()

	// Nobody receives, so the blocked send can only observe cancellation.
	<-res.Done()
	err = res.Wait()
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStreamCostDefaultsToModelRate(t *testing.T) {
	svc := New(&fakeStreamer{usage: &llm.TokenUsage{PromptTokens: 1000}})
	res, err := svc.Stream(context.Background(), Request{Prompt: "q"})
	require.NoError(t, err)
	require.NoError(t, res.Wait())

	u, ok := res.Usage()
	require.True(t, ok)
	assert.InDelta(t, llm.DefaultCostPer1kTokens, u.EstimatedCost, 1e-12)
	assert.Equal(t, "fake-model", svc.Model())
}
