package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/richinex/folio/cacheid"
	"github.com/richinex/folio/model"
	valkeylib "github.com/valkey-io/valkey-go"
)

// DefaultValkeyConnectTimeout bounds the initial ping.
const DefaultValkeyConnectTimeout = 5 * time.Second

// ValkeyConfig holds the configuration for a Valkey-backed store.
type ValkeyConfig struct {
	Address        string
	Password       string
	DB             int
	KeyPrefix      string
	ConnectTimeout time.Duration
}

// ValkeyStorage implements CacheRecordStore on Valkey. Keys carry the record
// TTL so the server drops them on its own; Get still checks ExpiresAt.
type ValkeyStorage struct {
	client valkeylib.Client
	prefix string
	now    Clock
}

// OpenValkey connects to Valkey and verifies the connection with a ping.
// The caller is responsible for calling Close() when done.
func OpenValkey(cfg ValkeyConfig, opts ...Option) (*ValkeyStorage, error) {
	clientOpts := valkeylib.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
	}
	if cfg.Password != "" {
		clientOpts.Password = cfg.Password
	}

	client, err := valkeylib.NewClient(clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	timeout := cfg.ConnectTimeout
	if timeout == 0 {
		timeout = DefaultValkeyConnectTimeout
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping valkey (timeout: %v): %w", timeout, err)
	}

	return NewValkeyStorage(client, cfg.KeyPrefix, opts...), nil
}

// NewValkeyStorage wraps an existing client.
func NewValkeyStorage(client valkeylib.Client, keyPrefix string, opts ...Option) *ValkeyStorage {
	o := buildOptions(opts)
	if keyPrefix != "" && !strings.HasSuffix(keyPrefix, ":") {
		keyPrefix += ":"
	}
	return &ValkeyStorage{
		client: client,
		prefix: keyPrefix + "cache_record:",
		now:    o.now,
	}
}

// Close closes the underlying client.
func (s *ValkeyStorage) Close() error {
	s.client.Close()
	return nil
}

func (s *ValkeyStorage) key(fingerprint string) string {
	return s.prefix + fingerprint
}

// GetCacheRecord returns the live record for fingerprint.
func (s *ValkeyStorage) GetCacheRecord(ctx context.Context, fingerprint string) (*model.CacheRecord, error) {
	cmd := s.client.B().Get().Key(s.key(fingerprint)).Build()

	data, err := s.client.Do(ctx, cmd).AsBytes()
	if err != nil {
		if valkeylib.IsValkeyNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cache record: %w", err)
	}

	var record model.CacheRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache record: %w", err)
	}

	if !record.Valid(s.now()) {
		return nil, nil
	}
	return &record, nil
}

// PutCacheRecord stores the record for fingerprint with a matching key TTL.
func (s *ValkeyStorage) PutCacheRecord(ctx context.Context, fingerprint, remoteCacheID, ownerID string, ttl time.Duration) (*model.CacheRecord, error) {
	ttl = model.TTLOrDefault(ttl)
	record := &model.CacheRecord{
		Fingerprint:   fingerprint,
		RemoteCacheID: cacheid.Normalize(remoteCacheID),
		OwnerID:       ownerID,
		ExpiresAt:     s.now().Add(ttl),
	}

	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cache record: %w", err)
	}

	cmd := s.client.B().Set().
		Key(s.key(fingerprint)).
		Value(string(data)).
		Ex(ttl).
		Build()

	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return nil, fmt.Errorf("failed to save cache record: %w", err)
	}
	return record, nil
}

var _ CacheRecordStore = (*ValkeyStorage)(nil)
