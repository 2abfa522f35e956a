package vip

import (
	"context"
	"database/sql"
	"fmt"
)

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store backed by PostgreSQL. One row per user;
// a new grant upserts over the old one.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed VIP store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the VIP table if it doesn't exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS vip_grants (
			uid        VARCHAR(64) PRIMARY KEY,
			source     VARCHAR(128) NOT NULL DEFAULT '',
			granted_at TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL
		);
	`)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, uid string) (*Grant, error) {
	g := &Grant{}
	err := p.db.QueryRowContext(ctx, `
		SELECT uid, source, granted_at, expires_at FROM vip_grants WHERE uid = $1
	`, uid).Scan(&g.UID, &g.Source, &g.GrantedAt, &g.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, ErrGrantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get vip grant: %w", err)
	}
	return g, nil
}

func (p *PostgresStore) Put(ctx context.Context, grant *Grant) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO vip_grants (uid, source, granted_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (uid) DO UPDATE SET
			source = EXCLUDED.source,
			granted_at = EXCLUDED.granted_at,
			expires_at = EXCLUDED.expires_at
	`, grant.UID, grant.Source, grant.GrantedAt, grant.ExpiresAt)
	if err != nil {
		return fmt.Errorf("put vip grant: %w", err)
	}
	return nil
}
