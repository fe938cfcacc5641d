package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/richinex/folio/activation"
	"github.com/richinex/folio/completion"
	"github.com/richinex/folio/llm"
	"github.com/richinex/folio/model"
	"github.com/richinex/folio/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStreamer struct {
	chunks []string
	usage  *llm.TokenUsage
	err    error
}

func (f *fakeStreamer) Name() string  { return "fake" }
func (f *fakeStreamer) Model() string { return "fake-model" }

func (f *fakeStreamer) StreamCompletion(ctx context.Context, req llm.CompletionRequest, chunks chan<- string) (*llm.TokenUsage, error) {
	for _, c := range f.chunks {
		select {
		case chunks <- c:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.usage, f.err
}

type fixedActivator struct{ id string }

func (a fixedActivator) Activate(ctx context.Context, in activation.Input) (string, bool) {
	return a.id, a.id != ""
}

// readOnlyRecords satisfies CacheRecordStore without listing.
type readOnlyRecords struct{}

func (readOnlyRecords) GetCacheRecord(ctx context.Context, fingerprint string) (*model.CacheRecord, error) {
	return nil, nil
}

func (readOnlyRecords) PutCacheRecord(ctx context.Context, fingerprint, remoteCacheID, ownerID string, ttl time.Duration) (*model.CacheRecord, error) {
	return nil, errors.New("read only")
}

func newTestServer(streamer llm.Streamer, activator activation.Activator, records *storage.InMemoryStorage) *Server {
	svc := completion.New(streamer, completion.WithActivator(activator), completion.WithCostPer1k(1))
	return New(completion.NewNotebook(svc, records), records)
}

func postChat(t *testing.T, s *Server, notebook string, body ChatRequest) (*http.Response, string) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/notebooks/"+notebook+"/chat", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(data)
}

func TestChatStreamsTokensAndPersistsCache(t *testing.T) {
	records := storage.NewInMemoryStorage()
	s := newTestServer(
		&fakeStreamer{chunks: []string{"Hel", "lo"}, usage: &llm.TokenUsage{PromptTokens: 600, CompletionTokens: 400}},
		fixedActivator{id: "cachedContents/c1"},
		records,
	)

	doc := []byte("%PDF-server")
	resp, body := postChat(t, s, "nb-7", ChatRequest{Prompt: "hi", Document: doc})

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Contains(t, body, "event: token\ndata: {\"text\":\"Hel\"}\n\n")
	assert.Contains(t, body, "event: token\ndata: {\"text\":\"lo\"}\n\n")
	assert.Contains(t, body, "event: done\n")
	assert.Contains(t, body, `"cache_id":"c1"`)
	assert.Contains(t, body, `"mode":"cached"`)
	assert.Contains(t, body, `"total_tokens":1000`)

	record, err := records.GetCacheRecord(context.Background(), storage.Fingerprint(doc))
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "nb-7", record.OwnerID)
}

func TestChatReportsClassifiedError(t *testing.T) {
	s := newTestServer(
		&fakeStreamer{chunks: []string{"x"}, err: errors.New("429: rate limit hit")},
		fixedActivator{},
		storage.NewInMemoryStorage(),
	)

	_, body := postChat(t, s, "nb-1", ChatRequest{Prompt: "hi"})
	assert.Contains(t, body, "event: error\n")
	assert.Contains(t, body, `"kind":"rate-limited"`)
	assert.NotContains(t, body, "event: done")
}

func TestChatRejectsEmptyPrompt(t *testing.T) {
	s := newTestServer(&fakeStreamer{}, fixedActivator{}, storage.NewInMemoryStorage())

	resp, body := postChat(t, s, "nb-1", ChatRequest{Prompt: " "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "prompt is empty")
}

func TestChatRejectsMalformedBody(t *testing.T) {
	s := newTestServer(&fakeStreamer{}, fixedActivator{}, storage.NewInMemoryStorage())

	req := httptest.NewRequest(http.MethodPost, "/api/notebooks/nb/chat", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetCache(t *testing.T) {
	records := storage.NewInMemoryStorage()
	_, err := records.PutCacheRecord(context.Background(), "fp1", "caches/abc", "nb-1", time.Hour)
	require.NoError(t, err)
	s := newTestServer(&fakeStreamer{}, fixedActivator{}, records)

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/api/cache/fp1", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Results model.CacheRecord `json:"results"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "abc", out.Results.RemoteCacheID)

	missing, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/api/cache/nope", nil), -1)
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestListCaches(t *testing.T) {
	records := storage.NewInMemoryStorage()
	ctx := context.Background()
	_, _ = records.PutCacheRecord(ctx, "fp1", "a", "nb-1", time.Hour)
	_, _ = records.PutCacheRecord(ctx, "fp2", "b", "nb-1", time.Hour)
	_, _ = records.PutCacheRecord(ctx, "fp3", "c", "nb-2", time.Hour)
	s := newTestServer(&fakeStreamer{}, fixedActivator{}, records)

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/api/notebooks/nb-1/caches", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out struct {
		Results []model.CacheRecord `json:"results"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Len(t, out.Results, 2)
}

func TestListCachesUnsupportedBackend(t *testing.T) {
	svc := completion.New(&fakeStreamer{})
	s := New(completion.NewNotebook(svc, readOnlyRecords{}), readOnlyRecords{})

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/api/notebooks/nb-1/caches", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(&fakeStreamer{}, fixedActivator{}, storage.NewInMemoryStorage())

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/healthz", nil), -1)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = s.App().Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "folio_active_streams")
}
