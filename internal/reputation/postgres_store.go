package reputation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
)

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store backed by PostgreSQL. The record itself is
// stored as a JSON document; total score, level, and version are mirrored
// into columns for ranking and conditional writes.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore creates a new PostgreSQL-backed reputation store.
func NewPostgresStore(db *sql.DB, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger}
}

// Migrate creates the reputation tables if they don't exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS reputation_records (
			uid         VARCHAR(64) PRIMARY KEY,
			record      JSONB NOT NULL,
			total_score BIGINT NOT NULL DEFAULT 0,
			level       INT NOT NULL DEFAULT 1,
			version     BIGINT NOT NULL DEFAULT 0,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_reputation_records_score ON reputation_records(total_score DESC);

		CREATE TABLE IF NOT EXISTS referrals (
			referrer_id VARCHAR(64) NOT NULL,
			referred_id VARCHAR(64) NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (referrer_id, referred_id)
		);

		CREATE TABLE IF NOT EXISTS points_log (
			id          VARCHAR(40) PRIMARY KEY,
			uid         VARCHAR(64) NOT NULL,
			event_type  VARCHAR(32) NOT NULL,
			points      INT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_points_log_uid ON points_log(uid, created_at DESC);
	`)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, uid string) (*Record, error) {
	var raw []byte
	var version int64
	err := p.db.QueryRowContext(ctx, `
		SELECT record, version FROM reputation_records WHERE uid = $1
	`, uid).Scan(&raw, &version)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get reputation record: %w", err)
	}

	rec, recovered := ParseRecordOrDefault(uid, raw)
	if recovered {
		// Availability over strict consistency: a corrupt document is
		// replaced by a fresh default rather than failing the read.
		p.logger.Warn("corrupt reputation record recovered with defaults", "uid", uid)
	}
	rec.Version = version
	return rec, nil
}

func (p *PostgresStore) GetOrCreate(ctx context.Context, uid string) (*Record, error) {
	rec, err := p.Get(ctx, uid)
	if err == nil {
		return rec, nil
	}
	if err != ErrRecordNotFound {
		return nil, err
	}

	fresh := NewRecord(uid)
	raw, err := json.Marshal(fresh)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}

	// Concurrent first access may race; the conflict arm keeps whichever
	// row won and re-reads it.
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO reputation_records (uid, record, total_score, level, version, created_at, updated_at)
		VALUES ($1, $2, 0, 1, 0, $3, $3)
		ON CONFLICT (uid) DO NOTHING
	`, uid, raw, fresh.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create reputation record: %w", err)
	}

	return p.Get(ctx, uid)
}

func (p *PostgresStore) Update(ctx context.Context, rec *Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	now := time.Now().UTC()
	res, err := p.db.ExecContext(ctx, `
		UPDATE reputation_records
		SET record = $2, total_score = $3, level = $4, version = version + 1, updated_at = $5
		WHERE uid = $1 AND version = $6
	`, rec.UID, raw, rec.TotalScore, rec.Level, now, rec.Version)
	if err != nil {
		return fmt.Errorf("update reputation record: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update reputation record: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err := p.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM reputation_records WHERE uid = $1)`, rec.UID,
		).Scan(&exists); err == nil && !exists {
			return ErrRecordNotFound
		}
		return ErrVersionConflict
	}

	rec.Version++
	rec.UpdatedAt = now
	return nil
}

func (p *PostgresStore) AddReferral(ctx context.Context, referrerID, referredID string) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO referrals (referrer_id, referred_id) VALUES ($1, $2)
	`, referrerID, referredID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateReferral
		}
		return fmt.Errorf("add referral: %w", err)
	}
	return nil
}

func (p *PostgresStore) RemoveReferral(ctx context.Context, referrerID, referredID string) error {
	_, err := p.db.ExecContext(ctx, `
		DELETE FROM referrals WHERE referrer_id = $1 AND referred_id = $2
	`, referrerID, referredID)
	if err != nil {
		return fmt.Errorf("remove referral: %w", err)
	}
	return nil
}

func (p *PostgresStore) AppendPointsLog(ctx context.Context, entry *PointsLogEntry) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO points_log (id, uid, event_type, points, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, entry.ID, entry.UID, entry.Type, entry.Points, entry.Description, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("append points log: %w", err)
	}
	return nil
}

func (p *PostgresStore) Leaderboard(ctx context.Context, limit int) ([]*LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT uid, total_score, level FROM reputation_records
		ORDER BY total_score DESC, uid ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*LeaderboardEntry
	rank := 0
	for rows.Next() {
		rank++
		e := &LeaderboardEntry{Rank: rank}
		if err := rows.Scan(&e.UID, &e.TotalScore, &e.Level); err != nil {
			return nil, fmt.Errorf("leaderboard scan: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (p *PostgresStore) UIDs(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT uid FROM reputation_records ORDER BY uid`)
	if err != nil {
		return nil, fmt.Errorf("list uids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var uids []string
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, fmt.Errorf("list uids scan: %w", err)
		}
		uids = append(uids, uid)
	}
	return uids, rows.Err()
}
