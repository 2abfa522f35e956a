package reputation

import (
	"encoding/json"
	"time"
)

// ScoreEvent is one entry of the per-record audit log.
type ScoreEvent struct {
	ID          string            `json:"id"`
	Type        string            `json:"type"`
	Points      int               `json:"points"`
	Timestamp   time.Time         `json:"timestamp"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// WalletSnapshot is a point-in-time wallet observation.
type WalletSnapshot struct {
	Address          string    `json:"address"`
	Balance          float64   `json:"balance"`
	TransactionCount int       `json:"transactionCount"`
	ContactsCount    int       `json:"contactsCount"`
	WalletAgeDays    int       `json:"walletAge"`
	Timestamp        time.Time `json:"timestamp"`
}

// CheckInEntry records one daily check-in.
type CheckInEntry struct {
	Date      string    `json:"date"` // YYYY-MM-DD (UTC)
	Points    int       `json:"points"`
	Streak    int       `json:"streak"`
	Timestamp time.Time `json:"timestamp"`
}

// Record is the persisted per-user reputation state. Lists are
// most-recent-first and capped; Version backs optimistic concurrency on
// the whole-record write.
type Record struct {
	UID        string `json:"uid"`
	TotalScore int    `json:"totalReputationScore"`
	Level      int    `json:"reputationLevel"`

	MainnetScore    int `json:"mainnetScore"`
	TestnetScore    int `json:"testnetScore"`
	AppPoints       int `json:"appPoints"`
	BlockchainScore int `json:"blockchainScore"`
	CheckInScore    int `json:"checkInScore"`
	AdBonusScore    int `json:"adBonusScore"`

	// AdminAdjustment accumulates signed admin deltas so the reconcile
	// pass can recompute the total without losing them.
	AdminAdjustment int `json:"adminAdjustment"`

	WalletAddress   string           `json:"walletAddress,omitempty"`
	WalletSnapshots []WalletSnapshot `json:"walletSnapshots"`
	LastScanAt      time.Time        `json:"lastScanTimestamp,omitzero"`

	ScoreEvents []ScoreEvent `json:"scoreEvents"`

	DailyCheckinHistory []CheckInEntry `json:"dailyCheckinHistory"`
	LastCheckInDate     string         `json:"lastCheckInDate,omitempty"`
	CurrentStreak       int            `json:"currentStreak"`
	LongestStreak       int            `json:"longestStreak"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewRecord creates a zero-score record for uid.
func NewRecord(uid string) *Record {
	now := time.Now().UTC()
	return &Record{
		UID:       uid,
		Level:     1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy of the record. Stores hand out clones so
// callers can mutate freely before the conditional write.
func (r *Record) Clone() *Record {
	cp := *r
	cp.WalletSnapshots = append([]WalletSnapshot(nil), r.WalletSnapshots...)
	cp.ScoreEvents = make([]ScoreEvent, len(r.ScoreEvents))
	for i, e := range r.ScoreEvents {
		cp.ScoreEvents[i] = e
		if e.Metadata != nil {
			md := make(map[string]string, len(e.Metadata))
			for k, v := range e.Metadata {
				md[k] = v
			}
			cp.ScoreEvents[i].Metadata = md
		}
	}
	cp.DailyCheckinHistory = append([]CheckInEntry(nil), r.DailyCheckinHistory...)
	return &cp
}

// PrependEvent adds an audit log entry at the front, evicting the oldest
// entry past the cap.
func (r *Record) PrependEvent(e ScoreEvent) {
	r.ScoreEvents = append([]ScoreEvent{e}, r.ScoreEvents...)
	if len(r.ScoreEvents) > MaxScoreEvents {
		r.ScoreEvents = r.ScoreEvents[:MaxScoreEvents]
	}
}

// PrependSnapshot records a wallet observation at the front, capped.
func (r *Record) PrependSnapshot(s WalletSnapshot) {
	r.WalletSnapshots = append([]WalletSnapshot{s}, r.WalletSnapshots...)
	if len(r.WalletSnapshots) > MaxWalletSnapshots {
		r.WalletSnapshots = r.WalletSnapshots[:MaxWalletSnapshots]
	}
}

// PrependCheckIn records a daily check-in at the front, capped.
func (r *Record) PrependCheckIn(e CheckInEntry) {
	r.DailyCheckinHistory = append([]CheckInEntry{e}, r.DailyCheckinHistory...)
	if len(r.DailyCheckinHistory) > MaxCheckInHistory {
		r.DailyCheckinHistory = r.DailyCheckinHistory[:MaxCheckInHistory]
	}
}

// RecomputeTotal rebuilds the total from the sub-accumulators plus the
// admin adjustment, clamps it to the record scale, and refreshes the level.
func (r *Record) RecomputeTotal() {
	total := r.MainnetScore + r.TestnetScore + r.AppPoints + r.BlockchainScore +
		r.CheckInScore + r.AdBonusScore + r.AdminAdjustment
	r.TotalScore = clampInt(total, MinRecordScore, MaxRecordScore)
	r.Level = LevelFromScore(r.TotalScore)
}

// ParseRecordOrDefault decodes a stored record, falling back to a fresh
// zero record when the payload is corrupt. The second return value reports
// whether recovery happened, so callers can log the data loss instead of
// silently swallowing it.
func ParseRecordOrDefault(uid string, data []byte) (*Record, bool) {
	if len(data) == 0 {
		return NewRecord(uid), true
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil || rec.UID == "" {
		return NewRecord(uid), true
	}
	return &rec, false
}
