package completion

import (
	"context"
	"fmt"
	"time"

	"github.com/richinex/folio/cacheid"
	"github.com/richinex/folio/internal/logging"
	"github.com/richinex/folio/model"
	"github.com/richinex/folio/storage"
	"github.com/sirupsen/logrus"
)

// Notebook runs completions for notebooks, remembering which remote cache
// holds each document so later questions reuse it.
type Notebook struct {
	service *Service
	records storage.CacheRecordStore
	ttl     time.Duration
	log     logrus.FieldLogger
}

// NotebookOption configures a Notebook.
type NotebookOption func(*Notebook)

// WithRecordTTL sets how long persisted cache records stay valid. It should
// match the TTL the activation pipeline gives remote caches.
func WithRecordTTL(ttl time.Duration) NotebookOption {
	return func(n *Notebook) {
		n.ttl = model.TTLOrDefault(ttl)
	}
}

// WithNotebookLogger sets the logger.
func WithNotebookLogger(l logrus.FieldLogger) NotebookOption {
	return func(n *Notebook) {
		n.log = l
	}
}

// NewNotebook creates a Notebook over service and records.
func NewNotebook(service *Service, records storage.CacheRecordStore, opts ...NotebookOption) *Notebook {
	n := &Notebook{
		service: service,
		records: records,
		ttl:     model.DefaultCacheTTL,
	}
	for _, opt := range opts {
		opt(n)
	}
	n.log = logging.OrDiscard(n.log)
	return n
}

// Chat streams an answer for ownerID. When req carries a document, a live
// cache record for it is reused and a newly created cache is persisted.
// Reusing a cache, including one named by the caller, does not extend its
// record.
func (n *Notebook) Chat(ctx context.Context, ownerID string, req Request) (*Result, error) {
	if len(req.Document) == 0 {
		return n.service.Stream(ctx, req)
	}

	key := model.DocumentKey{OwnerID: ownerID, Fingerprint: storage.Fingerprint(req.Document)}
	log := n.log.WithField("document", key.String())

	record, err := n.records.GetCacheRecord(ctx, key.Fingerprint)
	if err != nil {
		return nil, fmt.Errorf("failed to look up cache record: %w", err)
	}
	var storedID string
	if record != nil {
		storedID = record.RemoteCacheID
		log.WithField("cache_id", storedID).Debug("found cache record")
		if req.ExistingCacheID == "" {
			req.ExistingCacheID = storedID
		}
	}

	res, err := n.service.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	res.Fingerprint = key.Fingerprint

	if res.NewCacheID != "" && !cacheid.Equal(res.NewCacheID, storedID) {
		if _, err := n.records.PutCacheRecord(ctx, key.Fingerprint, res.NewCacheID, ownerID, n.ttl); err != nil {
			// The stream is already running; losing the record only costs a
			// new activation next time.
			log.WithError(err).Warn("failed to persist cache record")
		} else {
			log.WithField("cache_id", res.NewCacheID).Info("persisted cache record")
		}
	}
	return res, nil
}
