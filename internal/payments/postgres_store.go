package payments

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pitrustlab/pitrust/internal/pagination"
)

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed payment store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the payments table if it doesn't exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS payments (
			id         VARCHAR(128) PRIMARY KEY,
			uid        VARCHAR(64) NOT NULL,
			amount     NUMERIC(20, 7) NOT NULL DEFAULT 0,
			direction  VARCHAR(16) NOT NULL,
			status     VARCHAR(16) NOT NULL,
			txid       VARCHAR(128) NOT NULL DEFAULT '',
			memo       TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_payments_uid ON payments(uid, created_at DESC);
	`)
	return err
}

func (p *PostgresStore) Create(ctx context.Context, payment *Payment) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO payments (id, uid, amount, direction, status, txid, memo, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, payment.ID, payment.UID, payment.Amount, payment.Direction, payment.Status,
		payment.TxID, payment.Memo, payment.CreatedAt, payment.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Payment, error) {
	payment := &Payment{}
	err := p.db.QueryRowContext(ctx, `
		SELECT id, uid, amount, direction, status, txid, memo, created_at, updated_at
		FROM payments WHERE id = $1
	`, id).Scan(&payment.ID, &payment.UID, &payment.Amount, &payment.Direction,
		&payment.Status, &payment.TxID, &payment.Memo, &payment.CreatedAt, &payment.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return payment, nil
}

func (p *PostgresStore) Update(ctx context.Context, payment *Payment) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE payments
		SET status = $2, txid = $3, updated_at = $4
		WHERE id = $1
	`, payment.ID, payment.Status, payment.TxID, payment.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	if affected == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

func (p *PostgresStore) ListByUID(ctx context.Context, uid string, before *pagination.Cursor, limit int) ([]*Payment, error) {
	query := `
		SELECT id, uid, amount, direction, status, txid, memo, created_at, updated_at
		FROM payments WHERE uid = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	args := []any{uid, limit}
	if before != nil {
		query = `
			SELECT id, uid, amount, direction, status, txid, memo, created_at, updated_at
			FROM payments WHERE uid = $1 AND (created_at, id) < ($3, $4)
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		`
		args = append(args, before.CreatedAt, before.ID)
	}
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Payment
	for rows.Next() {
		payment := &Payment{}
		if err := rows.Scan(&payment.ID, &payment.UID, &payment.Amount, &payment.Direction,
			&payment.Status, &payment.TxID, &payment.Memo, &payment.CreatedAt, &payment.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		out = append(out, payment)
	}
	return out, rows.Err()
}
