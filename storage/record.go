// Package storage provides cache record persistence.
//
// Information Hiding:
// - Backend choice (SQLite, Valkey, in-memory) hidden behind CacheRecordStore
// - Expiry is enforced inside Get so callers never see stale records
// - Remote cache IDs are canonicalized on the way in

package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/richinex/folio/model"
)

// CacheRecordStore persists one live cache record per document fingerprint.
type CacheRecordStore interface {
	// GetCacheRecord returns the record for fingerprint, or nil if there is
	// none or it has expired.
	GetCacheRecord(ctx context.Context, fingerprint string) (*model.CacheRecord, error)

	// PutCacheRecord stores (overwriting) the record for fingerprint with
	// ExpiresAt = now + ttl. A non-positive ttl uses model.DefaultCacheTTL.
	PutCacheRecord(ctx context.Context, fingerprint, remoteCacheID, ownerID string, ttl time.Duration) (*model.CacheRecord, error)
}

// CacheRecordLister lists live records for a notebook.
type CacheRecordLister interface {
	ListCacheRecords(ctx context.Context, ownerID string) ([]model.CacheRecord, error)
}

// Fingerprint returns the content-addressing key for a document: the hex
// SHA-256 of all of its bytes.
func Fingerprint(doc []byte) string {
	sum := sha256.Sum256(doc)
	return hex.EncodeToString(sum[:])
}

// Clock returns the current time. Stores accept one so tests can move time.
type Clock func() time.Time

// Option configures a store.
type Option func(*options)

type options struct {
	now Clock
}

// WithClock overrides the time source used for expiry.
func WithClock(now Clock) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
