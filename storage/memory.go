// Package storage provides in-memory cache record storage.
//
// Information Hiding:
// - Map storage structure hidden from users
// - Thread-safe access via RWMutex hidden behind interface
// - Suitable for testing and ephemeral sessions

package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/richinex/folio/cacheid"
	"github.com/richinex/folio/model"
)

// InMemoryStorage implements CacheRecordStore using an in-memory map.
// Data is lost when process terminates. Expired entries stay in the map
// until overwritten; Get hides them.
type InMemoryStorage struct {
	mu      sync.RWMutex
	records map[string]model.CacheRecord
	now     Clock
}

// NewInMemoryStorage creates a new in-memory storage.
func NewInMemoryStorage(opts ...Option) *InMemoryStorage {
	o := buildOptions(opts)
	return &InMemoryStorage{
		records: make(map[string]model.CacheRecord),
		now:     o.now,
	}
}

// GetCacheRecord returns a copy of the live record for fingerprint.
func (s *InMemoryStorage) GetCacheRecord(ctx context.Context, fingerprint string) (*model.CacheRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[fingerprint]
	if !ok || !record.Valid(s.now()) {
		return nil, nil
	}
	return &record, nil
}

// PutCacheRecord stores the record for fingerprint, replacing any previous one.
func (s *InMemoryStorage) PutCacheRecord(ctx context.Context, fingerprint, remoteCacheID, ownerID string, ttl time.Duration) (*model.CacheRecord, error) {
	record := model.CacheRecord{
		Fingerprint:   fingerprint,
		RemoteCacheID: cacheid.Normalize(remoteCacheID),
		OwnerID:       ownerID,
		ExpiresAt:     s.now().Add(model.TTLOrDefault(ttl)),
	}

	s.mu.Lock()
	s.records[fingerprint] = record
	s.mu.Unlock()

	return &record, nil
}

// ListCacheRecords lists live records owned by ownerID, newest expiry first.
func (s *InMemoryStorage) ListCacheRecords(ctx context.Context, ownerID string) ([]model.CacheRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	result := []model.CacheRecord{}
	for _, r := range s.records {
		if r.OwnerID == ownerID && r.Valid(now) {
			result = append(result, r)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ExpiresAt.After(result[j].ExpiresAt)
	})
	return result, nil
}

// Len returns the number of stored entries, expired ones included.
func (s *InMemoryStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

var _ CacheRecordStore = (*InMemoryStorage)(nil)
var _ CacheRecordLister = (*InMemoryStorage)(nil)
