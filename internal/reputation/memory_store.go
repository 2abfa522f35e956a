package reputation

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory reputation store for demo/development mode.
type MemoryStore struct {
	mu        sync.RWMutex
	records   map[string]*Record
	referrals map[string]bool // "referrer:referred"
	pointsLog []*PointsLogEntry
}

// NewMemoryStore creates a new in-memory reputation store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:   make(map[string]*Record),
		referrals: make(map[string]bool),
	}
}

func (m *MemoryStore) Get(ctx context.Context, uid string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[uid]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return rec.Clone(), nil
}

func (m *MemoryStore) GetOrCreate(ctx context.Context, uid string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[uid]
	if !ok {
		rec = NewRecord(uid)
		m.records[uid] = rec
	}
	return rec.Clone(), nil
}

func (m *MemoryStore) Update(ctx context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.records[rec.UID]
	if !ok {
		return ErrRecordNotFound
	}
	if current.Version != rec.Version {
		return ErrVersionConflict
	}

	stored := rec.Clone()
	stored.Version++
	stored.UpdatedAt = time.Now().UTC()
	m.records[rec.UID] = stored

	rec.Version = stored.Version
	rec.UpdatedAt = stored.UpdatedAt
	return nil
}

func (m *MemoryStore) AddReferral(ctx context.Context, referrerID, referredID string) error {
	key := referrerID + ":" + referredID

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.referrals[key] {
		return ErrDuplicateReferral
	}
	m.referrals[key] = true
	return nil
}

func (m *MemoryStore) RemoveReferral(ctx context.Context, referrerID, referredID string) error {
	m.mu.Lock()
	delete(m.referrals, referrerID+":"+referredID)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) AppendPointsLog(ctx context.Context, entry *PointsLogEntry) error {
	cp := *entry

	m.mu.Lock()
	m.pointsLog = append(m.pointsLog, &cp)
	m.mu.Unlock()
	return nil
}

// PointsLog returns the log entries for a uid, for tests and debugging.
func (m *MemoryStore) PointsLog(uid string) []*PointsLogEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*PointsLogEntry
	for _, e := range m.pointsLog {
		if e.UID == uid {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out
}

func (m *MemoryStore) Leaderboard(ctx context.Context, limit int) ([]*LeaderboardEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]*LeaderboardEntry, 0, len(m.records))
	for _, rec := range m.records {
		entries = append(entries, &LeaderboardEntry{
			UID:        rec.UID,
			TotalScore: rec.TotalScore,
			Level:      rec.Level,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].TotalScore != entries[j].TotalScore {
			return entries[i].TotalScore > entries[j].TotalScore
		}
		return entries[i].UID < entries[j].UID
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}

func (m *MemoryStore) UIDs(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	uids := make([]string, 0, len(m.records))
	for uid := range m.records {
		uids = append(uids, uid)
	}
	sort.Strings(uids)
	return uids, nil
}
