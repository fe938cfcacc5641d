// Package storage provides SQLite cache record storage.
//
// Information Hiding:
// - SQLite connection management hidden behind interface
// - Schema and migration details encapsulated
// - Thread-safe via sql.DB's built-in connection pooling

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/richinex/folio/cacheid"
	"github.com/richinex/folio/model"
)

// SqliteStorage implements CacheRecordStore using SQLite.
// Thread-safe: sql.DB handles connection pooling and concurrent access.
type SqliteStorage struct {
	db  *sql.DB
	now Clock
}

// OpenSqlite opens or creates a SQLite database at the given path.
// Creates parent directories if they don't exist.
func OpenSqlite(path string, opts ...Option) (*SqliteStorage, error) {
	// Create parent directory if needed
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	return newSqlite(db, opts)
}

// NewSqliteInMemory creates an in-memory database (useful for testing).
func NewSqliteInMemory(opts ...Option) (*SqliteStorage, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}
	// Every pooled connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)

	return newSqlite(db, opts)
}

func newSqlite(db *sql.DB, opts []Option) (*SqliteStorage, error) {
	o := buildOptions(opts)
	storage := &SqliteStorage{db: db, now: o.now}
	if err := storage.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return storage, nil
}

// Close closes the database connection.
func (s *SqliteStorage) Close() error {
	return s.db.Close()
}

func (s *SqliteStorage) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS cache_records (
			fingerprint TEXT PRIMARY KEY,
			remote_cache_id TEXT,
			owner_id TEXT NOT NULL,
			expires_at INTEGER,
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		);

		CREATE INDEX IF NOT EXISTS idx_cache_records_owner
		ON cache_records(owner_id, expires_at DESC);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// GetCacheRecord returns the live record for fingerprint.
// Returns nil, nil if the row is missing, expired, or has null fields.
func (s *SqliteStorage) GetCacheRecord(ctx context.Context, fingerprint string) (*model.CacheRecord, error) {
	var ownerID string
	var remoteID sql.NullString
	var expiresAt sql.NullInt64

	err := s.db.QueryRowContext(ctx,
		"SELECT remote_cache_id, owner_id, expires_at FROM cache_records WHERE fingerprint = ?",
		fingerprint).Scan(&remoteID, &ownerID, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache record: %w", err)
	}

	if !remoteID.Valid || !expiresAt.Valid {
		return nil, nil
	}

	record := &model.CacheRecord{
		Fingerprint:   fingerprint,
		RemoteCacheID: remoteID.String,
		OwnerID:       ownerID,
		ExpiresAt:     time.UnixMilli(expiresAt.Int64),
	}
	if !record.Valid(s.now()) {
		return nil, nil
	}
	return record, nil
}

// PutCacheRecord stores the record for fingerprint, replacing any previous one.
func (s *SqliteStorage) PutCacheRecord(ctx context.Context, fingerprint, remoteCacheID, ownerID string, ttl time.Duration) (*model.CacheRecord, error) {
	record := &model.CacheRecord{
		Fingerprint:   fingerprint,
		RemoteCacheID: cacheid.Normalize(remoteCacheID),
		OwnerID:       ownerID,
		ExpiresAt:     s.now().Add(model.TTLOrDefault(ttl)),
	}

	// Convert empty id to NULL so a blank write reads back as "no cache"
	var remoteID interface{}
	if record.RemoteCacheID != "" {
		remoteID = record.RemoteCacheID
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO cache_records
		(fingerprint, remote_cache_id, owner_id, expires_at, updated_at)
		VALUES (?, ?, ?, ?, datetime('now'))`,
		record.Fingerprint,
		remoteID,
		record.OwnerID,
		record.ExpiresAt.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to store cache record: %w", err)
	}

	return record, nil
}

// ListCacheRecords lists live records owned by ownerID, newest expiry first.
func (s *SqliteStorage) ListCacheRecords(ctx context.Context, ownerID string) ([]model.CacheRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT fingerprint, remote_cache_id, expires_at
		FROM cache_records
		WHERE owner_id = ? AND remote_cache_id IS NOT NULL AND expires_at > ?
		ORDER BY expires_at DESC`,
		ownerID, s.now().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to query cache records: %w", err)
	}
	defer rows.Close()

	records := []model.CacheRecord{} // Start with empty slice, not nil
	for rows.Next() {
		var r model.CacheRecord
		var expiresAt int64
		if err := rows.Scan(&r.Fingerprint, &r.RemoteCacheID, &expiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan cache record: %w", err)
		}
		r.OwnerID = ownerID
		r.ExpiresAt = time.UnixMilli(expiresAt)
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cache records: %w", err)
	}

	return records, nil
}

// Verify SqliteStorage implements all interfaces
var _ CacheRecordStore = (*SqliteStorage)(nil)
var _ CacheRecordLister = (*SqliteStorage)(nil)
