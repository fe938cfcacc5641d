// Package model provides domain types shared across packages.
package model

import "time"

// DefaultCacheTTL is how long a remote document cache stays usable.
const DefaultCacheTTL = 3600 * time.Second

// CacheRecord is a remote, reusable ingestion of one document for one notebook.
// RemoteCacheID is always canonical (see package cacheid).
type CacheRecord struct {
	Fingerprint   string    `json:"fingerprint"`
	RemoteCacheID string    `json:"remote_cache_id"`
	OwnerID       string    `json:"owner_id"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Valid reports whether the record can still be used at now.
// A zero ExpiresAt or empty RemoteCacheID is the same as no cache.
func (r *CacheRecord) Valid(now time.Time) bool {
	if r == nil || r.RemoteCacheID == "" || r.ExpiresAt.IsZero() {
		return false
	}
	return now.Before(r.ExpiresAt)
}

// TTLOrDefault returns ttl, or DefaultCacheTTL when ttl is not positive.
func TTLOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultCacheTTL
	}
	return ttl
}

// DocumentKey identifies a document inside a notebook.
type DocumentKey struct {
	OwnerID     string // Notebook that owns the document
	Fingerprint string // Content hash of the document bytes
}

// String returns the canonical string representation.
func (k DocumentKey) String() string {
	return k.OwnerID + ":" + k.Fingerprint
}
