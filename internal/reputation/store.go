package reputation

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrRecordNotFound means no reputation record exists for the uid.
	ErrRecordNotFound = errors.New("reputation record not found")
	// ErrVersionConflict means a conditional write lost a concurrent race.
	ErrVersionConflict = errors.New("reputation record version conflict")
	// ErrDuplicateReferral means the (referrer, referred) pair already exists.
	ErrDuplicateReferral = errors.New("referral already recorded")
)

// PointsLogEntry is one row of the external append-only points log.
type PointsLogEntry struct {
	ID          string    `json:"id"`
	UID         string    `json:"uid"`
	Type        string    `json:"type"`
	Points      int       `json:"points"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

// LeaderboardEntry is one row of the score ranking.
type LeaderboardEntry struct {
	Rank       int    `json:"rank"`
	UID        string `json:"uid"`
	TotalScore int    `json:"totalReputationScore"`
	Level      int    `json:"reputationLevel"`
}

// Store persists reputation state.
//
// Update is a conditional whole-record write: it succeeds only when the
// stored version matches rec.Version, then bumps the version. Callers
// re-read and retry on ErrVersionConflict.
type Store interface {
	// Get returns the record for uid, or ErrRecordNotFound.
	Get(ctx context.Context, uid string) (*Record, error)
	// GetOrCreate returns the record for uid, lazily creating a
	// zero-score record on first access.
	GetOrCreate(ctx context.Context, uid string) (*Record, error)
	// Update conditionally writes the record (see interface doc).
	Update(ctx context.Context, rec *Record) error

	// AddReferral records a (referrer, referred) pair, or
	// ErrDuplicateReferral if it exists.
	AddReferral(ctx context.Context, referrerID, referredID string) error
	// RemoveReferral deletes a pair; used to compensate a failed award.
	RemoveReferral(ctx context.Context, referrerID, referredID string) error

	// AppendPointsLog appends to the external audit log.
	AppendPointsLog(ctx context.Context, entry *PointsLogEntry) error

	// Leaderboard returns the top records by total score, descending.
	Leaderboard(ctx context.Context, limit int) ([]*LeaderboardEntry, error)

	// UIDs lists all record identifiers, for the reconcile worker.
	UIDs(ctx context.Context) ([]string, error)
}
