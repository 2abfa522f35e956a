// Package reputation implements the PiTrust scoring protocol.
//
// Two scales coexist by design:
//   - the persisted record scale, 0-100000, mapped to 20 levels; and
//   - the on-demand wallet report scale, 0-1000, mapped to trust labels.
//
// The persisted totalReputationScore always lives on the record scale.
// The wallet report functions are pure and side-effect free; call sites
// choose which scale applies.
package reputation

// Record-scale bounds. totalReputationScore is clamped to this range by the
// reconcile pass (admin adjustments may push it outside between passes).
const (
	MinRecordScore = 0
	MaxRecordScore = 100000
)

// MaxWalletScore bounds the 0-1000 wallet report scale.
const MaxWalletScore = 1000

// LevelThresholds defines the 21 ascending band edges of the record scale.
// Level L covers [LevelThresholds[L-1], LevelThresholds[L]]; a score on a
// shared edge belongs to the higher band.
var LevelThresholds = [21]int{
	0, 5000, 10000, 15000, 20000, 25000, 30000, 35000, 40000, 45000, 50000,
	55000, 60000, 65000, 70000, 75000, 80000, 85000, 90000, 95000, 100000,
}

// MaxLevel is the highest reputation level.
const MaxLevel = 20

// Daily check-in awards by the streak reached with that check-in.
const (
	CheckInBasePoints          = 10
	CheckInStreakPoints        = 15 // streak >= CheckInStreakThreshold
	CheckInLongStreakPoints    = 25 // streak >= CheckInLongStreakThreshold
	CheckInStreakThreshold     = 3
	CheckInLongStreakThreshold = 7
)

// AdBonusPoints is the flat award per ad-bonus claim. Claims are repeatable;
// there is no per-day guard.
const AdBonusPoints = 5

// DefaultReferralAward is the per-referral award credited to the referrer's
// app points. Configurable via REFERRAL_AWARD_POINTS; this constant is the
// single place the award amount is defined.
const DefaultReferralAward = 100

// Wallet-scan award caps.
const (
	FirstScanTxPointsPer     = 5 // per transaction on first scan
	FirstScanTxCap           = 100
	FirstScanAgePointsPer30d = 10 // per 30 days of wallet age
	FirstScanAgeCap          = 50

	ScanDeltaTxPointsPer       = 5 // per new transaction
	ScanDeltaTxCap             = 50
	ScanDeltaContactsPointsPer = 2 // per new contact
	ScanDeltaContactsCap       = 20
)

// List caps on the persisted record. Lists are most-recent-first; the
// oldest entries are evicted once a cap is reached.
const (
	MaxScoreEvents     = 100
	MaxWalletSnapshots = 50
	MaxCheckInHistory  = 365
)

// MiningFraudGraceDays absorbs clock skew and timezone effects when
// comparing claimed mining days against account age.
const MiningFraudGraceDays = 30

// Score event types recorded in the audit log.
const (
	EventTypeCheckIn     = "daily_checkin"
	EventTypeAdBonus     = "ad_bonus"
	EventTypeWalletScan  = "wallet_scan"
	EventTypeReferral    = "referral"
	EventTypeAdminAdjust = "admin_adjust"
)
