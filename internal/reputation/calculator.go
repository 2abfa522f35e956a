package reputation

import (
	"fmt"
	"math"
)

// Sub-score caps for the wallet report. The internal sum is on a ~100-point
// scale and is rescaled x10 to the public 0-1000 wallet score; both the
// multiplier and the clamp bounds are contracts other components rely on.
const (
	ageScoreCap     = 20
	txScoreCap      = 40
	stakingScoreCap = 30
	miningScoreCap  = 10

	externalPenaltyPer   = 2
	externalPenaltyCap   = 20
	suspiciousPenaltyPer = 5
	suspiciousPenaltyCap = 30

	walletScoreMultiplier = 10
)

// WalletInput is the on-chain portion of a wallet report request.
type WalletInput struct {
	BalanceNative         float64
	AccountAgeDays        int
	TotalTransactionCount int
}

// TxSummary is the transaction-analysis aggregate (see internal/chain).
type TxSummary struct {
	TotalScore      float64
	InternalCount   int
	ExternalCount   int
	SuspiciousCount int
}

// StakingEstimate describes a wallet's staking position, if any.
type StakingEstimate struct {
	Amount       float64
	DurationDays int
	IsActive     bool
}

// MiningProof is a user-submitted mining activity claim.
type MiningProof struct {
	TotalDays      int
	SessionsPerDay int
	AbsenceDays    int
}

// SubScores is the per-component breakdown of a wallet report.
type SubScores struct {
	Age     int `json:"age"`
	Tx      int `json:"tx"`
	Staking int `json:"staking"`
	Mining  int `json:"mining"`
	Penalty int `json:"penalty"`
}

// WalletReport is the outcome of scoring a wallet on the 0-1000 scale.
type WalletReport struct {
	Total            int        `json:"total"`
	SubScores        SubScores  `json:"subScores"`
	TrustRank        TrustRank  `json:"trustRank"`
	TrustLevel       TrustLevel `json:"trustLevel"`
	MiningSuspicious bool       `json:"miningSuspicious,omitempty"`
	Breakdown        []string   `json:"breakdown,omitempty"`
}

// Calculator computes wallet reports. It is stateless and safe for
// concurrent use.
type Calculator struct{}

// NewCalculator creates a wallet report calculator.
func NewCalculator() *Calculator {
	return &Calculator{}
}

// Calculate scores a wallet. staking and mining may be nil. The VIP flag
// does not change the score; it controls how much of the breakdown is
// exposed in the report.
func (c *Calculator) Calculate(wallet WalletInput, txs TxSummary, staking *StakingEstimate, mining *MiningProof, isVIP bool) *WalletReport {
	report := &WalletReport{}
	var breakdown []string

	age := ageScore(wallet.AccountAgeDays)
	breakdown = append(breakdown, fmt.Sprintf("wallet age %d days: %d/%d", wallet.AccountAgeDays, age, ageScoreCap))

	tx := clampInt(int(math.Round(txs.TotalScore)), 0, txScoreCap)
	breakdown = append(breakdown, fmt.Sprintf("transaction activity: %d/%d", tx, txScoreCap))

	stake := stakingScore(staking)
	if staking != nil {
		breakdown = append(breakdown, fmt.Sprintf("staking %.2f Pi over %d days: %d/%d", staking.Amount, staking.DurationDays, stake, stakingScoreCap))
	}

	mine, suspicious := miningScore(mining, wallet.AccountAgeDays)
	if mining != nil {
		if suspicious {
			breakdown = append(breakdown, fmt.Sprintf("mining claim of %d days exceeds account age %d+%d: rejected", mining.TotalDays, wallet.AccountAgeDays, MiningFraudGraceDays))
		} else {
			breakdown = append(breakdown, fmt.Sprintf("mining %d days: %d/%d", mining.TotalDays, mine, miningScoreCap))
		}
	}

	penalty := minInt(txs.ExternalCount*externalPenaltyPer, externalPenaltyCap) +
		minInt(txs.SuspiciousCount*suspiciousPenaltyPer, suspiciousPenaltyCap)
	if penalty > 0 {
		breakdown = append(breakdown, fmt.Sprintf("penalties (%d external, %d suspicious): -%d", txs.ExternalCount, txs.SuspiciousCount, penalty))
	}

	raw := float64(age+tx+stake+mine-penalty) * walletScoreMultiplier
	total := int(math.Round(math.Max(0, math.Min(MaxWalletScore, raw))))

	report.SubScores = SubScores{Age: age, Tx: tx, Staking: stake, Mining: mine, Penalty: penalty}
	report.Total = total
	report.TrustRank = TrustRankFromScore(total)
	report.TrustLevel = TrustLevelFromScore(total)
	report.MiningSuspicious = suspicious

	// Non-VIP reports expose only the headline numbers.
	if isVIP {
		report.Breakdown = breakdown
	}

	return report
}

func ageScore(days int) int {
	switch {
	case days >= 365:
		return 20
	case days >= 180:
		return 15
	case days >= 30:
		return 10
	default:
		return 5
	}
}

func stakingScore(s *StakingEstimate) int {
	if s == nil {
		return 0
	}

	score := 0
	switch {
	case s.Amount >= 1000:
		score += 15
	case s.Amount >= 500:
		score += 12
	case s.Amount >= 100:
		score += 8
	case s.Amount >= 10:
		score += 4
	}

	switch {
	case s.DurationDays >= 365:
		score += 15
	case s.DurationDays >= 180:
		score += 10
	case s.DurationDays >= 90:
		score += 6
	case s.DurationDays >= 30:
		score += 3
	}

	if score > 0 && s.IsActive {
		score += 2
	}

	return minInt(score, stakingScoreCap)
}

// miningScore scores a mining claim, returning (score, suspicious). A claim
// of more mining days than the account age plus the grace window is fraud:
// the score is forced to zero and the claim flagged.
func miningScore(m *MiningProof, accountAgeDays int) (int, bool) {
	if m == nil {
		return 0, false
	}

	if m.TotalDays > accountAgeDays+MiningFraudGraceDays {
		return 0, true
	}

	score := 0
	switch {
	case m.TotalDays >= 300:
		score += 5
	case m.TotalDays >= 200:
		score += 4
	case m.TotalDays >= 100:
		score += 3
	default:
		score += 1
	}

	switch {
	case m.SessionsPerDay >= 3:
		score += 3
	case m.SessionsPerDay >= 2:
		score += 2
	default:
		score += 1
	}

	if m.TotalDays > 0 {
		absenceRate := float64(m.AbsenceDays) / float64(m.TotalDays)
		switch {
		case absenceRate > 0.30:
			score -= 2
		case absenceRate > 0.15:
			score -= 1
		}
	}

	return clampInt(score, 0, miningScoreCap), false
}

// WalletReputation computes the server-side wallet reputation figure from
// raw mainnet and testnet scores: round(0.6*mainnet + 0.2*testnet).
func WalletReputation(mainnetRaw, testnetRaw float64) int {
	return int(math.Round(0.6*mainnetRaw + 0.2*testnetRaw))
}

// TotalScore computes the record-scale grand total:
// round(0.8*(mainnet+testnet) + 0.2*appPoints).
func TotalScore(mainnetRaw, testnetRaw, appPoints float64) int {
	return int(math.Round(0.8*(mainnetRaw+testnetRaw) + 0.2*appPoints))
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
