package payments

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"
)

// MarkerStore holds small TTL-bounded idempotency markers keyed by string.
// Expired markers read as absent; implementations may reap them lazily.
type MarkerStore interface {
	// Get returns the marker value and whether a live marker exists.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set writes a marker with a TTL, replacing any existing one.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Delete removes a marker.
	Delete(ctx context.Context, key string) error
}

// MemoryMarkerStore is an in-memory MarkerStore for development and tests.
type MemoryMarkerStore struct {
	mu      sync.Mutex
	entries map[string]markerEntry
	now     func() time.Time
}

type markerEntry struct {
	value     string
	expiresAt time.Time
}

// NewMemoryMarkerStore creates an empty in-memory marker store.
func NewMemoryMarkerStore() *MemoryMarkerStore {
	return &MemoryMarkerStore{
		entries: make(map[string]markerEntry),
		now:     time.Now,
	}
}

// WithClock injects a clock, for tests.
func (m *MemoryMarkerStore) WithClock(now func() time.Time) *MemoryMarkerStore {
	m.now = now
	return m
}

func (m *MemoryMarkerStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return "", false, nil
	}
	if m.now().After(e.expiresAt) {
		delete(m.entries, key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (m *MemoryMarkerStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = markerEntry{value: value, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *MemoryMarkerStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}

// Compile-time check that PostgresMarkerStore implements MarkerStore.
var _ MarkerStore = (*PostgresMarkerStore)(nil)

// PostgresMarkerStore implements MarkerStore backed by PostgreSQL, with
// an expires_at column standing in for key TTLs.
type PostgresMarkerStore struct {
	db *sql.DB
}

// NewPostgresMarkerStore creates a PostgreSQL-backed marker store.
func NewPostgresMarkerStore(db *sql.DB) *PostgresMarkerStore {
	return &PostgresMarkerStore{db: db}
}

// Migrate creates the markers table if it doesn't exist.
func (p *PostgresMarkerStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS payout_markers (
			key        VARCHAR(256) PRIMARY KEY,
			value      TEXT NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_payout_markers_expiry ON payout_markers(expires_at);
	`)
	return err
}

func (p *PostgresMarkerStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := p.db.QueryRowContext(ctx, `
		SELECT value FROM payout_markers WHERE key = $1 AND expires_at > NOW()
	`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get marker: %w", err)
	}
	return value, true, nil
}

func (p *PostgresMarkerStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO payout_markers (key, value, expires_at)
		VALUES ($1, $2, NOW() + $3 * INTERVAL '1 second')
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			expires_at = EXCLUDED.expires_at
	`, key, value, int64(ttl.Seconds()))
	if err != nil {
		return fmt.Errorf("set marker: %w", err)
	}
	return nil
}

func (p *PostgresMarkerStore) Delete(ctx context.Context, key string) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM payout_markers WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete marker: %w", err)
	}
	return nil
}
