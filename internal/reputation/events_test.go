package reputation

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// fakeClock lets tests step through calendar days.
type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) Advance(d time.Duration) { f.now = f.now.Add(d) }

func newTestService(store Store) (*Service, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc := NewService(store, testLogger()).WithClock(clock.Now)
	return svc, clock
}

func TestCheckInIdempotentPerDay(t *testing.T) {
	store := NewMemoryStore()
	svc, _ := newTestService(store)
	ctx := context.Background()

	first, err := svc.CheckIn(ctx, "user1")
	if err != nil {
		t.Fatalf("first check-in failed: %v", err)
	}
	if first.AwardedPoints != CheckInBasePoints {
		t.Errorf("first check-in awarded %d, want %d", first.AwardedPoints, CheckInBasePoints)
	}

	_, err = svc.CheckIn(ctx, "user1")
	if !errors.Is(err, ErrAlreadyCheckedIn) {
		t.Fatalf("second same-day check-in: got %v, want ErrAlreadyCheckedIn", err)
	}

	rec, err := store.Get(ctx, "user1")
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if rec.CheckInScore != CheckInBasePoints {
		t.Errorf("check-in score = %d, want %d (rejection must not mutate)", rec.CheckInScore, CheckInBasePoints)
	}
	if len(rec.ScoreEvents) != 1 {
		t.Errorf("score events = %d, want 1", len(rec.ScoreEvents))
	}
	if len(rec.DailyCheckinHistory) != 1 {
		t.Errorf("check-in history = %d, want 1", len(rec.DailyCheckinHistory))
	}
}

func TestCheckInStreakContinuity(t *testing.T) {
	store := NewMemoryStore()
	svc, clock := newTestService(store)
	ctx := context.Background()

	wantStreaks := []int{1, 2, 3}
	wantPoints := []int{10, 10, 15}

	for i := range wantStreaks {
		result, err := svc.CheckIn(ctx, "user1")
		if err != nil {
			t.Fatalf("check-in day %d failed: %v", i+1, err)
		}
		if result.NewStreak != wantStreaks[i] {
			t.Errorf("day %d streak = %d, want %d", i+1, result.NewStreak, wantStreaks[i])
		}
		if result.AwardedPoints != wantPoints[i] {
			t.Errorf("day %d points = %d, want %d", i+1, result.AwardedPoints, wantPoints[i])
		}
		clock.Advance(24 * time.Hour)
	}
}

func TestCheckInStreakResetsAfterGap(t *testing.T) {
	store := NewMemoryStore()
	svc, clock := newTestService(store)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.CheckIn(ctx, "user1"); err != nil {
			t.Fatalf("check-in %d failed: %v", i, err)
		}
		clock.Advance(24 * time.Hour)
	}

	// Skip a day; the next check-in starts over at streak 1.
	clock.Advance(24 * time.Hour)
	result, err := svc.CheckIn(ctx, "user1")
	if err != nil {
		t.Fatalf("post-gap check-in failed: %v", err)
	}
	if result.NewStreak != 1 {
		t.Errorf("post-gap streak = %d, want 1", result.NewStreak)
	}
	if result.LongestStreak != 3 {
		t.Errorf("longest streak = %d, want 3", result.LongestStreak)
	}
}

func TestCheckInLongStreakBand(t *testing.T) {
	store := NewMemoryStore()
	svc, clock := newTestService(store)
	ctx := context.Background()

	var last *CheckInResult
	for i := 0; i < 7; i++ {
		result, err := svc.CheckIn(ctx, "user1")
		if err != nil {
			t.Fatalf("check-in %d failed: %v", i, err)
		}
		last = result
		clock.Advance(24 * time.Hour)
	}

	if last.NewStreak != 7 {
		t.Fatalf("streak = %d, want 7", last.NewStreak)
	}
	if last.AwardedPoints != CheckInLongStreakPoints {
		t.Errorf("day 7 points = %d, want %d", last.AwardedPoints, CheckInLongStreakPoints)
	}
}

func TestClaimAdBonusRepeatable(t *testing.T) {
	store := NewMemoryStore()
	svc, _ := newTestService(store)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := svc.ClaimAdBonus(ctx, "user1")
		if err != nil {
			t.Fatalf("claim %d failed: %v", i, err)
		}
		if result.AwardedPoints != AdBonusPoints {
			t.Errorf("claim %d awarded %d, want %d", i, result.AwardedPoints, AdBonusPoints)
		}
	}

	rec, _ := store.Get(ctx, "user1")
	if rec.AdBonusScore != 3*AdBonusPoints {
		t.Errorf("ad bonus score = %d, want %d", rec.AdBonusScore, 3*AdBonusPoints)
	}
}

func TestWalletScanFirstScan(t *testing.T) {
	store := NewMemoryStore()
	svc, _ := newTestService(store)
	ctx := context.Background()

	result, err := svc.ApplyWalletScan(ctx, "user1", WalletSnapshot{
		Address:          "GABCDEFGHIJKLMNOPQRSTUVWXYZ234567ABCDEFGHIJKLMNOPQRSTUVW",
		TransactionCount: 10,
		WalletAgeDays:    0,
	})
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if !result.IsFirstScan {
		t.Error("expected first scan")
	}
	// min(10*5, 100) = 50, age contributes 0
	if result.Delta != 50 {
		t.Errorf("first-scan delta = %d, want 50", result.Delta)
	}
}

func TestWalletScanSubsequentDelta(t *testing.T) {
	store := NewMemoryStore()
	svc, clock := newTestService(store)
	ctx := context.Background()

	_, err := svc.ApplyWalletScan(ctx, "user1", WalletSnapshot{
		Address:          "GABCDEFGHIJKLMNOPQRSTUVWXYZ234567ABCDEFGHIJKLMNOPQRSTUVW",
		TransactionCount: 10,
		ContactsCount:    2,
	})
	if err != nil {
		t.Fatalf("first scan failed: %v", err)
	}
	clock.Advance(time.Hour)

	result, err := svc.ApplyWalletScan(ctx, "user1", WalletSnapshot{
		Address:          "GABCDEFGHIJKLMNOPQRSTUVWXYZ234567ABCDEFGHIJKLMNOPQRSTUVW",
		TransactionCount: 15,
		ContactsCount:    4,
		WalletAgeDays:    400,
	})
	if err != nil {
		t.Fatalf("second scan failed: %v", err)
	}
	if result.IsFirstScan {
		t.Error("second scan must not count as first")
	}
	// txDiff 5 -> 25, contactsDiff 2 -> 4
	if result.Delta != 29 {
		t.Errorf("subsequent delta = %d, want 29", result.Delta)
	}
	if len(result.Details) == 0 {
		t.Error("expected explanatory detail strings")
	}

	rec, _ := store.Get(ctx, "user1")
	if len(rec.WalletSnapshots) != 2 {
		t.Fatalf("snapshots = %d, want 2", len(rec.WalletSnapshots))
	}
	if rec.WalletSnapshots[0].TransactionCount != 15 {
		t.Error("snapshots must be most-recent-first")
	}
}

func TestWalletScanZeroDeltaStillRecordsSnapshot(t *testing.T) {
	store := NewMemoryStore()
	svc, clock := newTestService(store)
	ctx := context.Background()

	snap := WalletSnapshot{
		Address:          "GABCDEFGHIJKLMNOPQRSTUVWXYZ234567ABCDEFGHIJKLMNOPQRSTUVW",
		TransactionCount: 10,
		ContactsCount:    2,
	}
	if _, err := svc.ApplyWalletScan(ctx, "user1", snap); err != nil {
		t.Fatalf("first scan failed: %v", err)
	}
	clock.Advance(time.Hour)

	result, err := svc.ApplyWalletScan(ctx, "user1", snap)
	if err != nil {
		t.Fatalf("second scan failed: %v", err)
	}
	if result.Delta != 0 {
		t.Errorf("unchanged wallet delta = %d, want 0", result.Delta)
	}

	rec, _ := store.Get(ctx, "user1")
	if len(rec.WalletSnapshots) != 2 {
		t.Errorf("snapshots = %d, want 2 even with zero delta", len(rec.WalletSnapshots))
	}
	if len(rec.ScoreEvents) != 1 {
		t.Errorf("score events = %d, want 1 (zero delta emits no event)", len(rec.ScoreEvents))
	}
}

func TestApplyReferralAntiDoubleAward(t *testing.T) {
	store := NewMemoryStore()
	svc, _ := newTestService(store)
	ctx := context.Background()

	result, err := svc.ApplyReferral(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("first referral failed: %v", err)
	}
	if result.Awarded != DefaultReferralAward {
		t.Errorf("awarded %d, want %d", result.Awarded, DefaultReferralAward)
	}

	_, err = svc.ApplyReferral(ctx, "alice", "bob")
	if !errors.Is(err, ErrDuplicateReferral) {
		t.Fatalf("repeat referral: got %v, want ErrDuplicateReferral", err)
	}

	rec, _ := store.Get(ctx, "alice")
	if rec.AppPoints != DefaultReferralAward {
		t.Errorf("app points = %d, want exactly one award of %d", rec.AppPoints, DefaultReferralAward)
	}

	log := store.PointsLog("alice")
	if len(log) != 1 {
		t.Errorf("points log entries = %d, want 1", len(log))
	}
}

func TestApplyReferralSelfRejected(t *testing.T) {
	store := NewMemoryStore()
	svc, _ := newTestService(store)

	_, err := svc.ApplyReferral(context.Background(), "alice", "alice")
	if !errors.Is(err, ErrSelfReferral) {
		t.Fatalf("self referral: got %v, want ErrSelfReferral", err)
	}
}

// failOnceStore injects one version conflict on the first Update.
type failOnceStore struct {
	Store
	failed bool
}

func (f *failOnceStore) Update(ctx context.Context, rec *Record) error {
	if !f.failed {
		f.failed = true
		return ErrVersionConflict
	}
	return f.Store.Update(ctx, rec)
}

func TestConflictRetrySucceeds(t *testing.T) {
	inner := NewMemoryStore()
	store := &failOnceStore{Store: inner}
	svc, _ := newTestService(store)

	result, err := svc.CheckIn(context.Background(), "user1")
	if err != nil {
		t.Fatalf("check-in should survive one version conflict: %v", err)
	}
	if result.AwardedPoints != CheckInBasePoints {
		t.Errorf("awarded %d, want %d", result.AwardedPoints, CheckInBasePoints)
	}
}

func TestAdminAdjustRequiresReason(t *testing.T) {
	store := NewMemoryStore()
	svc, _ := newTestService(store)
	ctx := context.Background()

	if _, err := svc.AdminAdjust(ctx, "user1", 500, ""); !errors.Is(err, ErrReasonRequired) {
		t.Fatalf("got %v, want ErrReasonRequired", err)
	}

	rec, err := svc.AdminAdjust(ctx, "user1", -50, "manual correction")
	if err != nil {
		t.Fatalf("adjust failed: %v", err)
	}
	if rec.AdminAdjustment != -50 {
		t.Errorf("admin adjustment = %d, want -50", rec.AdminAdjustment)
	}
	// A negative adjustment on a fresh record clamps the total at zero.
	if rec.TotalScore != 0 {
		t.Errorf("total = %d, want 0", rec.TotalScore)
	}
}

func TestReconcileRebuildsTotal(t *testing.T) {
	store := NewMemoryStore()
	svc, _ := newTestService(store)
	ctx := context.Background()

	rec, err := store.GetOrCreate(ctx, "user1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	rec.CheckInScore = 100
	rec.AppPoints = 200
	rec.TotalScore = 999999 // drifted
	if err := store.Update(ctx, rec); err != nil {
		t.Fatalf("seed update: %v", err)
	}

	if err := svc.Reconcile(ctx, "user1"); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	got, _ := store.Get(ctx, "user1")
	if got.TotalScore != 300 {
		t.Errorf("reconciled total = %d, want 300", got.TotalScore)
	}
	if got.Level != LevelFromScore(300) {
		t.Errorf("reconciled level = %d, want %d", got.Level, LevelFromScore(300))
	}
}
