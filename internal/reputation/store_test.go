package reputation

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStoreVersionConflict(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	a, err := store.GetOrCreate(ctx, "user1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	b, err := store.Get(ctx, "user1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	a.CheckInScore = 10
	if err := store.Update(ctx, a); err != nil {
		t.Fatalf("first writer should win: %v", err)
	}

	b.CheckInScore = 99
	if err := store.Update(ctx, b); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("stale writer: got %v, want ErrVersionConflict", err)
	}

	got, _ := store.Get(ctx, "user1")
	if got.CheckInScore != 10 {
		t.Errorf("check-in score = %d, want 10 (stale write must not land)", got.CheckInScore)
	}
}

func TestMemoryStoreUpdateBumpsVersion(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	rec, _ := store.GetOrCreate(ctx, "user1")
	v0 := rec.Version

	rec.CheckInScore = 10
	if err := store.Update(ctx, rec); err != nil {
		t.Fatalf("update: %v", err)
	}
	if rec.Version != v0+1 {
		t.Errorf("version = %d, want %d", rec.Version, v0+1)
	}

	// The bumped version allows an immediate follow-up write.
	rec.CheckInScore = 20
	if err := store.Update(ctx, rec); err != nil {
		t.Fatalf("follow-up update: %v", err)
	}
}

func TestMemoryStoreGetMissing(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.Get(context.Background(), "ghost"); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("got %v, want ErrRecordNotFound", err)
	}
}

func TestMemoryStoreReferralUniqueness(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.AddReferral(ctx, "alice", "bob"); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if err := store.AddReferral(ctx, "alice", "bob"); !errors.Is(err, ErrDuplicateReferral) {
		t.Fatalf("duplicate add: got %v, want ErrDuplicateReferral", err)
	}
	// Different referred user under the same referrer is fine.
	if err := store.AddReferral(ctx, "alice", "carol"); err != nil {
		t.Fatalf("distinct pair: %v", err)
	}

	if err := store.RemoveReferral(ctx, "alice", "bob"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := store.AddReferral(ctx, "alice", "bob"); err != nil {
		t.Fatalf("re-add after remove: %v", err)
	}
}

func TestMemoryStoreLeaderboard(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	seed := map[string]int{"low": 100, "high": 5000, "mid": 900}
	for uid, score := range seed {
		rec, _ := store.GetOrCreate(ctx, uid)
		rec.AppPoints = score
		rec.RecomputeTotal()
		if err := store.Update(ctx, rec); err != nil {
			t.Fatalf("seed %s: %v", uid, err)
		}
	}

	entries, err := store.Leaderboard(ctx, 2)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].UID != "high" || entries[1].UID != "mid" {
		t.Errorf("order = [%s, %s], want [high, mid]", entries[0].UID, entries[1].UID)
	}
	if entries[0].TotalScore != 5000 {
		t.Errorf("top score = %d, want 5000", entries[0].TotalScore)
	}
}
