package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

// fakeClock is a settable time source.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func TestSqlitePutThenGet(t *testing.T) {
	storage, err := NewSqliteInMemory()
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	defer storage.Close()

	ctx := context.Background()
	before := time.Now()

	if _, err := storage.PutCacheRecord(ctx, "fp-1", "cachedContents/abc123", "nb-1", 3600*time.Second); err != nil {
		t.Fatalf("PutCacheRecord failed: %v", err)
	}

	record, err := storage.GetCacheRecord(ctx, "fp-1")
	if err != nil {
		t.Fatalf("GetCacheRecord failed: %v", err)
	}
	if record == nil {
		t.Fatal("expected record, got nil")
	}
	if record.RemoteCacheID != "abc123" {
		t.Errorf("expected canonical id 'abc123', got %q", record.RemoteCacheID)
	}
	if record.OwnerID != "nb-1" {
		t.Errorf("expected owner 'nb-1', got %q", record.OwnerID)
	}

	want := before.Add(time.Hour)
	if diff := record.ExpiresAt.Sub(want); diff < -2*time.Second || diff > 2*time.Second {
		t.Errorf("expiresAt %v not within tolerance of %v", record.ExpiresAt, want)
	}
}

func TestSqliteGetMissing(t *testing.T) {
	storage, err := NewSqliteInMemory()
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	defer storage.Close()

	record, err := storage.GetCacheRecord(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("GetCacheRecord failed: %v", err)
	}
	if record != nil {
		t.Errorf("expected nil, got %+v", record)
	}
}

func TestSqliteExpiredRecordIsHidden(t *testing.T) {
	clock := newClock()
	storage, err := NewSqliteInMemory(WithClock(clock.Now))
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	defer storage.Close()

	ctx := context.Background()
	if _, err := storage.PutCacheRecord(ctx, "fp-1", "abc", "nb-1", time.Minute); err != nil {
		t.Fatalf("PutCacheRecord failed: %v", err)
	}

	clock.Advance(59 * time.Second)
	if record, _ := storage.GetCacheRecord(ctx, "fp-1"); record == nil {
		t.Fatal("expected record before expiry")
	}

	clock.Advance(time.Second)
	record, err := storage.GetCacheRecord(ctx, "fp-1")
	if err != nil {
		t.Fatalf("GetCacheRecord failed: %v", err)
	}
	if record != nil {
		t.Errorf("expected nil at expiry, got %+v", record)
	}

	// The row itself is still there
	var count int
	if err := storage.db.QueryRow("SELECT COUNT(*) FROM cache_records WHERE fingerprint = ?", "fp-1").Scan(&count); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected expired row to remain, got %d rows", count)
	}
}

func TestSqliteNullFieldsMeanNoCache(t *testing.T) {
	storage, err := NewSqliteInMemory()
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	defer storage.Close()

	ctx := context.Background()
	_, err = storage.db.Exec(
		"INSERT INTO cache_records (fingerprint, remote_cache_id, owner_id, expires_at) VALUES (?, NULL, ?, NULL)",
		"fp-null", "nb-1")
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	record, err := storage.GetCacheRecord(ctx, "fp-null")
	if err != nil {
		t.Fatalf("GetCacheRecord failed: %v", err)
	}
	if record != nil {
		t.Errorf("expected nil for null fields, got %+v", record)
	}

	// A blank id written through Put also reads back as no cache
	if _, err := storage.PutCacheRecord(ctx, "fp-blank", "  ", "nb-1", time.Hour); err != nil {
		t.Fatalf("PutCacheRecord failed: %v", err)
	}
	if record, _ := storage.GetCacheRecord(ctx, "fp-blank"); record != nil {
		t.Errorf("expected nil for blank id, got %+v", record)
	}
}

func TestSqliteOverwriteIsLastWriteWins(t *testing.T) {
	storage, err := NewSqliteInMemory()
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	defer storage.Close()

	ctx := context.Background()
	if _, err := storage.PutCacheRecord(ctx, "fp-1", "first", "nb-1", time.Hour); err != nil {
		t.Fatalf("PutCacheRecord failed: %v", err)
	}
	if _, err := storage.PutCacheRecord(ctx, "fp-1", "projects/-/locations/us-central1/cachedContents/second", "nb-2", time.Hour); err != nil {
		t.Fatalf("PutCacheRecord failed: %v", err)
	}

	record, err := storage.GetCacheRecord(ctx, "fp-1")
	if err != nil {
		t.Fatalf("GetCacheRecord failed: %v", err)
	}
	if record == nil || record.RemoteCacheID != "second" || record.OwnerID != "nb-2" {
		t.Errorf("expected second write to win, got %+v", record)
	}
}

func TestSqliteDefaultTTL(t *testing.T) {
	clock := newClock()
	storage, err := NewSqliteInMemory(WithClock(clock.Now))
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	defer storage.Close()

	record, err := storage.PutCacheRecord(context.Background(), "fp-1", "abc", "nb-1", 0)
	if err != nil {
		t.Fatalf("PutCacheRecord failed: %v", err)
	}
	if !record.ExpiresAt.Equal(clock.Now().Add(time.Hour)) {
		t.Errorf("expected default 1h ttl, got expiry %v", record.ExpiresAt)
	}
}

func TestSqliteListCacheRecords(t *testing.T) {
	clock := newClock()
	storage, err := NewSqliteInMemory(WithClock(clock.Now))
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	defer storage.Close()

	ctx := context.Background()
	mustPut := func(fp, id, owner string, ttl time.Duration) {
		t.Helper()
		if _, err := storage.PutCacheRecord(ctx, fp, id, owner, ttl); err != nil {
			t.Fatalf("PutCacheRecord failed: %v", err)
		}
	}
	mustPut("fp-short", "a", "nb-1", time.Minute)
	mustPut("fp-long", "b", "nb-1", time.Hour)
	mustPut("fp-other", "c", "nb-2", time.Hour)

	records, err := storage.ListCacheRecords(ctx, "nb-1")
	if err != nil {
		t.Fatalf("ListCacheRecords failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Fingerprint != "fp-long" {
		t.Errorf("expected newest expiry first, got %q", records[0].Fingerprint)
	}

	clock.Advance(2 * time.Minute)
	records, err = storage.ListCacheRecords(ctx, "nb-1")
	if err != nil {
		t.Fatalf("ListCacheRecords failed: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("expected expired record to drop out, got %d", len(records))
	}
}

func TestOpenSqliteCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "folio.db")

	storage, err := OpenSqlite(path)
	if err != nil {
		t.Fatalf("OpenSqlite failed: %v", err)
	}
	defer storage.Close()

	ctx := context.Background()
	if _, err := storage.PutCacheRecord(ctx, "fp-1", "abc", "nb-1", time.Hour); err != nil {
		t.Fatalf("PutCacheRecord failed: %v", err)
	}
	storage.Close()

	reopened, err := OpenSqlite(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	record, err := reopened.GetCacheRecord(ctx, "fp-1")
	if err != nil {
		t.Fatalf("GetCacheRecord failed: %v", err)
	}
	if record == nil || record.RemoteCacheID != "abc" {
		t.Errorf("expected persisted record, got %+v", record)
	}
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint([]byte("%PDF-1.7 same 32 byte prefix....AAAA"))
	b := Fingerprint([]byte("%PDF-1.7 same 32 byte prefix....BBBB"))
	if a == b {
		t.Error("documents sharing a prefix must not collide")
	}
	if len(a) != 64 {
		t.Errorf("expected hex sha256, got %d chars", len(a))
	}
	if Fingerprint([]byte("x")) != Fingerprint([]byte("x")) {
		t.Error("fingerprint must be stable")
	}
}
