package reputation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pitrustlab/pitrust/internal/idgen"
	"github.com/pitrustlab/pitrust/internal/metrics"
)

var (
	// ErrMissingUID means the caller supplied no user identifier.
	ErrMissingUID = errors.New("uid is required")
	// ErrAlreadyCheckedIn means the user already checked in today.
	ErrAlreadyCheckedIn = errors.New("already checked in today")
	// ErrReasonRequired means an admin adjustment was submitted without a reason.
	ErrReasonRequired = errors.New("adjustment reason is required")
	// ErrSelfReferral means referrer and referred are the same user.
	ErrSelfReferral = errors.New("cannot refer yourself")
)

// conflictRetries bounds conditional-write retries per event.
const conflictRetries = 3

// Broadcaster publishes score events to live subscribers. Optional.
type Broadcaster interface {
	BroadcastScoreEvent(uid string, event ScoreEvent, totalScore, level int)
}

// Service is the reputation event processor. Every event handler follows
// the same shape: validate, read, compute on a copy, single conditional
// write, retry on version conflict. A rejected event leaves no trace.
type Service struct {
	store         Store
	referralAward int
	now           func() time.Time
	broadcaster   Broadcaster
	logger        *slog.Logger
}

// NewService creates an event processor.
func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{
		store:         store,
		referralAward: DefaultReferralAward,
		now:           time.Now,
		logger:        logger,
	}
}

// WithReferralAward overrides the per-referral award amount.
func (s *Service) WithReferralAward(points int) *Service {
	s.referralAward = points
	return s
}

// WithClock injects a clock, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithBroadcaster adds a live score-event broadcaster.
func (s *Service) WithBroadcaster(b Broadcaster) *Service {
	s.broadcaster = b
	return s
}

// Record returns the reputation record for uid, creating it lazily.
func (s *Service) Record(ctx context.Context, uid string) (*Record, error) {
	if uid == "" {
		return nil, ErrMissingUID
	}
	return s.store.GetOrCreate(ctx, uid)
}

// Leaderboard returns the top records by total score.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]*LeaderboardEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.store.Leaderboard(ctx, limit)
}

// CheckInResult reports the outcome of a daily check-in.
type CheckInResult struct {
	AwardedPoints int `json:"awardedPoints"`
	NewStreak     int `json:"newStreak"`
	LongestStreak int `json:"longestStreak"`
	TotalScore    int `json:"totalReputationScore"`
	Level         int `json:"reputationLevel"`
}

// CheckIn applies a daily check-in for uid. One check-in per UTC calendar
// day; a repeat is rejected with ErrAlreadyCheckedIn and no mutation.
func (s *Service) CheckIn(ctx context.Context, uid string) (*CheckInResult, error) {
	if uid == "" {
		return nil, ErrMissingUID
	}

	var result *CheckInResult
	err := s.withConflictRetry(ctx, uid, func(rec *Record) error {
		now := s.now().UTC()
		today := now.Format("2006-01-02")
		yesterday := now.AddDate(0, 0, -1).Format("2006-01-02")

		// lastCheckInDate never regresses; equal or future dates reject.
		if rec.LastCheckInDate != "" && rec.LastCheckInDate >= today {
			metrics.CheckInRejectionsTotal.Inc()
			return ErrAlreadyCheckedIn
		}

		streak := 1
		if rec.LastCheckInDate == yesterday {
			streak = rec.CurrentStreak + 1
		}
		points := checkInPoints(streak)

		rec.CheckInScore += points
		rec.RecomputeTotal()
		rec.CurrentStreak = streak
		if streak > rec.LongestStreak {
			rec.LongestStreak = streak
		}
		rec.LastCheckInDate = today

		event := ScoreEvent{
			ID:          idgen.WithPrefix("evt_"),
			Type:        EventTypeCheckIn,
			Points:      points,
			Timestamp:   now,
			Description: fmt.Sprintf("Daily check-in (streak %d)", streak),
		}
		rec.PrependEvent(event)
		rec.PrependCheckIn(CheckInEntry{Date: today, Points: points, Streak: streak, Timestamp: now})

		result = &CheckInResult{
			AwardedPoints: points,
			NewStreak:     streak,
			LongestStreak: rec.LongestStreak,
			TotalScore:    rec.TotalScore,
			Level:         rec.Level,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.appendPointsLog(ctx, uid, EventTypeCheckIn, result.AwardedPoints,
		fmt.Sprintf("Daily check-in (streak %d)", result.NewStreak))
	metrics.ScoreEventsTotal.WithLabelValues(EventTypeCheckIn).Inc()
	s.broadcastLatest(ctx, uid)
	return result, nil
}

func checkInPoints(streak int) int {
	switch {
	case streak >= CheckInLongStreakThreshold:
		return CheckInLongStreakPoints
	case streak >= CheckInStreakThreshold:
		return CheckInStreakPoints
	default:
		return CheckInBasePoints
	}
}

// AdBonusResult reports the outcome of an ad-bonus claim.
type AdBonusResult struct {
	AwardedPoints int `json:"awardedPoints"`
	TotalScore    int `json:"totalReputationScore"`
	Level         int `json:"reputationLevel"`
}

// ClaimAdBonus awards the flat ad-bonus. Repeatable: no per-day guard.
func (s *Service) ClaimAdBonus(ctx context.Context, uid string) (*AdBonusResult, error) {
	if uid == "" {
		return nil, ErrMissingUID
	}

	var result *AdBonusResult
	err := s.withConflictRetry(ctx, uid, func(rec *Record) error {
		now := s.now().UTC()
		rec.AdBonusScore += AdBonusPoints
		rec.RecomputeTotal()
		rec.PrependEvent(ScoreEvent{
			ID:          idgen.WithPrefix("evt_"),
			Type:        EventTypeAdBonus,
			Points:      AdBonusPoints,
			Timestamp:   now,
			Description: "Ad bonus claim",
		})

		result = &AdBonusResult{
			AwardedPoints: AdBonusPoints,
			TotalScore:    rec.TotalScore,
			Level:         rec.Level,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.appendPointsLog(ctx, uid, EventTypeAdBonus, AdBonusPoints, "Ad bonus claim")
	metrics.ScoreEventsTotal.WithLabelValues(EventTypeAdBonus).Inc()
	s.broadcastLatest(ctx, uid)
	return result, nil
}

// ScanResult reports the outcome of a wallet scan.
type ScanResult struct {
	Delta       int      `json:"delta"`
	IsFirstScan bool     `json:"isFirstScan"`
	Details     []string `json:"details"`
	TotalScore  int      `json:"totalReputationScore"`
	Level       int      `json:"reputationLevel"`
}

// ApplyWalletScan compares snap against the most recent stored snapshot
// and credits the positive delta. The snapshot is always recorded, even
// when the delta is zero.
func (s *Service) ApplyWalletScan(ctx context.Context, uid string, snap WalletSnapshot) (*ScanResult, error) {
	if uid == "" {
		return nil, ErrMissingUID
	}

	var result *ScanResult
	err := s.withConflictRetry(ctx, uid, func(rec *Record) error {
		now := s.now().UTC()

		var delta int
		var details []string
		first := len(rec.WalletSnapshots) == 0

		if first {
			activity := minInt(snap.TransactionCount*FirstScanTxPointsPer, FirstScanTxCap)
			age := minInt(snap.WalletAgeDays/30*FirstScanAgePointsPer30d, FirstScanAgeCap)
			delta = activity + age
			if activity > 0 {
				details = append(details, fmt.Sprintf("%d transactions found (+%d)", snap.TransactionCount, activity))
			}
			if age > 0 {
				details = append(details, fmt.Sprintf("wallet age %d days (+%d)", snap.WalletAgeDays, age))
			}
		} else {
			prev := rec.WalletSnapshots[0]
			if diff := snap.TransactionCount - prev.TransactionCount; diff > 0 {
				pts := minInt(diff*ScanDeltaTxPointsPer, ScanDeltaTxCap)
				delta += pts
				details = append(details, fmt.Sprintf("%d new transactions (+%d)", diff, pts))
			}
			if diff := snap.ContactsCount - prev.ContactsCount; diff > 0 {
				pts := minInt(diff*ScanDeltaContactsPointsPer, ScanDeltaContactsCap)
				delta += pts
				details = append(details, fmt.Sprintf("%d new contacts (+%d)", diff, pts))
			}
		}

		if delta > 0 {
			rec.BlockchainScore += delta
			rec.RecomputeTotal()
			rec.PrependEvent(ScoreEvent{
				ID:          idgen.WithPrefix("evt_"),
				Type:        EventTypeWalletScan,
				Points:      delta,
				Timestamp:   now,
				Description: fmt.Sprintf("Wallet scan of %s", snap.Address),
				Metadata:    map[string]string{"address": snap.Address},
			})
		}

		snap.Timestamp = now
		rec.PrependSnapshot(snap)
		rec.WalletAddress = snap.Address
		rec.LastScanAt = now

		result = &ScanResult{
			Delta:       delta,
			IsFirstScan: first,
			Details:     details,
			TotalScore:  rec.TotalScore,
			Level:       rec.Level,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	switch {
	case result.IsFirstScan:
		metrics.WalletScansTotal.WithLabelValues("first").Inc()
	case result.Delta > 0:
		metrics.WalletScansTotal.WithLabelValues("delta").Inc()
	default:
		metrics.WalletScansTotal.WithLabelValues("zero").Inc()
	}
	if result.Delta > 0 {
		s.appendPointsLog(ctx, uid, EventTypeWalletScan, result.Delta, "Wallet scan of "+snap.Address)
		metrics.ScoreEventsTotal.WithLabelValues(EventTypeWalletScan).Inc()
		s.broadcastLatest(ctx, uid)
	}
	return result, nil
}

// AdminAdjust applies a signed delta directly to the total, bypassing all
// caps. Requires a reason; the caller is responsible for authenticating
// the admin out of band.
func (s *Service) AdminAdjust(ctx context.Context, uid string, delta int, reason string) (*Record, error) {
	if uid == "" {
		return nil, ErrMissingUID
	}
	if reason == "" {
		return nil, ErrReasonRequired
	}

	var updated *Record
	err := s.withConflictRetry(ctx, uid, func(rec *Record) error {
		now := s.now().UTC()
		rec.AdminAdjustment += delta
		rec.RecomputeTotal()
		rec.PrependEvent(ScoreEvent{
			ID:          idgen.WithPrefix("evt_"),
			Type:        EventTypeAdminAdjust,
			Points:      delta,
			Timestamp:   now,
			Description: reason,
		})
		updated = rec
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("admin adjustment applied", "uid", uid, "delta", delta, "reason", reason)
	s.appendPointsLog(ctx, uid, EventTypeAdminAdjust, delta, reason)
	metrics.ScoreEventsTotal.WithLabelValues(EventTypeAdminAdjust).Inc()
	return updated, nil
}

// ReferralResult reports the outcome of a referral.
type ReferralResult struct {
	Awarded    int `json:"awarded"`
	TotalScore int `json:"totalReputationScore"`
	Level      int `json:"reputationLevel"`
}

// ApplyReferral awards the referrer for bringing referredID onto the
// network. A (referrer, referred) pair is awarded at most once; a repeat
// is rejected with ErrDuplicateReferral.
func (s *Service) ApplyReferral(ctx context.Context, referrerID, referredID string) (*ReferralResult, error) {
	if referrerID == "" || referredID == "" {
		return nil, ErrMissingUID
	}
	if referrerID == referredID {
		return nil, ErrSelfReferral
	}

	if err := s.store.AddReferral(ctx, referrerID, referredID); err != nil {
		return nil, err
	}

	award := s.referralAward
	var result *ReferralResult
	err := s.withConflictRetry(ctx, referrerID, func(rec *Record) error {
		now := s.now().UTC()
		rec.AppPoints += award
		rec.RecomputeTotal()
		rec.PrependEvent(ScoreEvent{
			ID:          idgen.WithPrefix("evt_"),
			Type:        EventTypeReferral,
			Points:      award,
			Timestamp:   now,
			Description: fmt.Sprintf("Referred %s", referredID),
			Metadata:    map[string]string{"referredId": referredID},
		})
		result = &ReferralResult{Awarded: award, TotalScore: rec.TotalScore, Level: rec.Level}
		return nil
	})
	if err != nil {
		// Compensate: without the award the pair must not block a retry.
		if rmErr := s.store.RemoveReferral(ctx, referrerID, referredID); rmErr != nil {
			s.logger.Error("failed to roll back referral pair after award failure",
				"referrer", referrerID, "referred", referredID, "error", rmErr)
		}
		return nil, err
	}

	s.appendPointsLog(ctx, referrerID, EventTypeReferral, award, "Referral bonus: "+referredID)
	metrics.ScoreEventsTotal.WithLabelValues(EventTypeReferral).Inc()
	s.broadcastLatest(ctx, referrerID)
	return result, nil
}

// Reconcile rebuilds uid's total from its sub-accumulators and refreshes
// the level. Used by the periodic reconcile worker.
func (s *Service) Reconcile(ctx context.Context, uid string) error {
	return s.withConflictRetry(ctx, uid, func(rec *Record) error {
		rec.RecomputeTotal()
		return nil
	})
}

// withConflictRetry runs mutate against a fresh copy of the record and
// conditionally writes it, retrying a bounded number of times when a
// concurrent writer wins the version race. Rejections from mutate abort
// without writing.
func (s *Service) withConflictRetry(ctx context.Context, uid string, mutate func(*Record) error) error {
	var lastErr error
	for attempt := 0; attempt < conflictRetries; attempt++ {
		rec, err := s.store.GetOrCreate(ctx, uid)
		if err != nil {
			return err
		}

		if err := mutate(rec); err != nil {
			return err
		}

		err = s.store.Update(ctx, rec)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

// appendPointsLog writes to the external audit log. Best effort: the
// record is already committed, so a log failure is logged, not surfaced.
func (s *Service) appendPointsLog(ctx context.Context, uid, eventType string, points int, description string) {
	entry := &PointsLogEntry{
		ID:          idgen.WithPrefix("plg_"),
		UID:         uid,
		Type:        eventType,
		Points:      points,
		Description: description,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.AppendPointsLog(ctx, entry); err != nil {
		s.logger.Warn("failed to append points log", "uid", uid, "type", eventType, "error", err)
	}
}

func (s *Service) broadcastLatest(ctx context.Context, uid string) {
	if s.broadcaster == nil {
		return
	}
	rec, err := s.store.Get(ctx, uid)
	if err != nil || len(rec.ScoreEvents) == 0 {
		return
	}
	s.broadcaster.BroadcastScoreEvent(uid, rec.ScoreEvents[0], rec.TotalScore, rec.Level)
}
