package reputation

// LevelFromScore maps a record-scale score (0-100000) to a level 1-20.
//
// Bands are scanned from the top down and the first match wins, so a score
// exactly on a band edge belongs to the higher band. Scores outside every
// band fall back to level 1.
func LevelFromScore(score int) int {
	for level := MaxLevel; level >= 1; level-- {
		if score >= LevelThresholds[level-1] && score <= LevelThresholds[level] {
			return level
		}
	}
	return 1
}

// TrustRank is the seven-label classification of the wallet report scale.
type TrustRank string

const (
	RankVeryLowTrust  TrustRank = "Very Low Trust"
	RankLowTrust      TrustRank = "Low Trust"
	RankBuildingTrust TrustRank = "Building Trust"
	RankModerateTrust TrustRank = "Moderate Trust"
	RankGoodTrust     TrustRank = "Good Trust"
	RankHighTrust     TrustRank = "High Trust"
	RankElite         TrustRank = "Elite"
)

// TrustRankFromScore maps a wallet-report score (0-1000) to one of seven
// trust ranks at fixed cut points.
func TrustRankFromScore(score int) TrustRank {
	switch {
	case score >= 800:
		return RankElite
	case score >= 650:
		return RankHighTrust
	case score >= 500:
		return RankGoodTrust
	case score >= 350:
		return RankModerateTrust
	case score >= 200:
		return RankBuildingTrust
	case score >= 100:
		return RankLowTrust
	default:
		return RankVeryLowTrust
	}
}

// TrustLevel is the coarse four-label classification of the wallet report
// scale, used where the UI wants fewer buckets.
type TrustLevel string

const (
	TrustLow    TrustLevel = "Low"
	TrustMedium TrustLevel = "Medium"
	TrustHigh   TrustLevel = "High"
	TrustElite  TrustLevel = "Elite"
)

// TrustLevelFromScore maps a wallet-report score (0-1000) to one of four
// trust levels at fixed cut points.
func TrustLevelFromScore(score int) TrustLevel {
	switch {
	case score >= 900:
		return TrustElite
	case score >= 700:
		return TrustHigh
	case score >= 500:
		return TrustMedium
	default:
		return TrustLow
	}
}
