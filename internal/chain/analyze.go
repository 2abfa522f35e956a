package chain

import "fmt"

// Per-transaction scoring table. The reputation calculator clamps the
// aggregate, so individual values only need to be proportionate.
const (
	txBasePoints        = 1.0
	txIncomingBonus     = 0.5
	txOutgoingBonus     = 0.25
	txLargeSizeBonus    = 1.0 // amount >= 100 Pi
	txMediumSizeBonus   = 0.5 // amount >= 10 Pi
	txSuspiciousPenalty = 2.0

	// dustThreshold marks dusting transfers as suspicious.
	dustThreshold = 0.001
)

// Summary aggregates a wallet's transaction list for scoring.
type Summary struct {
	TotalScore           float64  `json:"totalScore"`
	InternalCount        int      `json:"internalCount"`
	ExternalCount        int      `json:"externalCount"`
	SuspiciousCount      int      `json:"suspiciousCount"`
	UniqueCounterparties int      `json:"uniqueCounterparties"`
	Details              []string `json:"details,omitempty"`
}

// Analyze scores each transaction and aggregates the counters the
// reputation calculator consumes.
//
// A counterparty seen more than once marks its transactions as internal
// (an established peer relationship); one-off counterparties count as
// external. Dust transfers and self-transfers are suspicious.
func Analyze(ownAddress string, txs []Transaction) Summary {
	var s Summary

	seen := make(map[string]int, len(txs))
	for _, tx := range txs {
		seen[tx.Counterparty]++
	}
	s.UniqueCounterparties = len(seen)

	for _, tx := range txs {
		points := txBasePoints

		switch tx.Direction {
		case DirectionIn:
			points += txIncomingBonus
		case DirectionOut:
			points += txOutgoingBonus
		}

		switch {
		case tx.Amount >= 100:
			points += txLargeSizeBonus
		case tx.Amount >= 10:
			points += txMediumSizeBonus
		}

		if isSuspicious(ownAddress, tx) {
			points -= txSuspiciousPenalty
			s.SuspiciousCount++
			s.Details = append(s.Details, fmt.Sprintf("suspicious transaction %s (amount %.7f)", tx.ID, tx.Amount))
		}

		if seen[tx.Counterparty] > 1 {
			s.InternalCount++
		} else {
			s.ExternalCount++
		}

		if points > 0 {
			s.TotalScore += points
		}
	}

	return s
}

func isSuspicious(ownAddress string, tx Transaction) bool {
	if tx.Amount < dustThreshold {
		return true
	}
	if tx.Counterparty == ownAddress {
		return true
	}
	return false
}
