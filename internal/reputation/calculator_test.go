package reputation

import "testing"

func TestWalletReputationFormula(t *testing.T) {
	if got := WalletReputation(30000, 5000); got != 19000 {
		t.Errorf("WalletReputation(30000, 5000) = %d, want 19000", got)
	}
	if got := WalletReputation(0, 0); got != 0 {
		t.Errorf("WalletReputation(0, 0) = %d, want 0", got)
	}
}

func TestTotalScoreFormula(t *testing.T) {
	if got := TotalScore(30000, 5000, 200); got != 28040 {
		t.Errorf("TotalScore(30000, 5000, 200) = %d, want 28040", got)
	}
	if got := TotalScore(0, 0, 0); got != 0 {
		t.Errorf("TotalScore(0, 0, 0) = %d, want 0", got)
	}
}

func TestCalculateMiningFraud(t *testing.T) {
	calc := NewCalculator()

	report := calc.Calculate(
		WalletInput{AccountAgeDays: 10},
		TxSummary{},
		nil,
		&MiningProof{TotalDays: 100, SessionsPerDay: 3},
		false,
	)

	if !report.MiningSuspicious {
		t.Error("expected mining claim of 100 days on a 10-day account to be flagged")
	}
	if report.SubScores.Mining != 0 {
		t.Errorf("expected mining score forced to 0, got %d", report.SubScores.Mining)
	}
}

func TestCalculateMiningWithinGrace(t *testing.T) {
	calc := NewCalculator()

	// 35 claimed days on a 10-day account is inside the 30-day grace window.
	report := calc.Calculate(
		WalletInput{AccountAgeDays: 10},
		TxSummary{},
		nil,
		&MiningProof{TotalDays: 35, SessionsPerDay: 1},
		false,
	)

	if report.MiningSuspicious {
		t.Error("claim inside grace window should not be flagged")
	}
	if report.SubScores.Mining <= 0 {
		t.Errorf("expected positive mining score, got %d", report.SubScores.Mining)
	}
}

func TestCalculateSubScores(t *testing.T) {
	calc := NewCalculator()

	report := calc.Calculate(
		WalletInput{AccountAgeDays: 400, TotalTransactionCount: 50},
		TxSummary{TotalScore: 25, ExternalCount: 3, SuspiciousCount: 1},
		&StakingEstimate{Amount: 500, DurationDays: 200, IsActive: true},
		nil,
		false,
	)

	if report.SubScores.Age != 20 {
		t.Errorf("age sub-score = %d, want 20", report.SubScores.Age)
	}
	if report.SubScores.Tx != 25 {
		t.Errorf("tx sub-score = %d, want 25", report.SubScores.Tx)
	}
	// 12 (amount >= 500) + 10 (duration >= 180) + 2 (active)
	if report.SubScores.Staking != 24 {
		t.Errorf("staking sub-score = %d, want 24", report.SubScores.Staking)
	}
	// 3 external * 2 + 1 suspicious * 5
	if report.SubScores.Penalty != 11 {
		t.Errorf("penalty = %d, want 11", report.SubScores.Penalty)
	}
	// (20 + 25 + 24 + 0 - 11) * 10 = 580
	if report.Total != 580 {
		t.Errorf("total = %d, want 580", report.Total)
	}
	if report.TrustRank != RankGoodTrust {
		t.Errorf("trust rank = %q, want %q", report.TrustRank, RankGoodTrust)
	}
	if report.TrustLevel != TrustMedium {
		t.Errorf("trust level = %q, want %q", report.TrustLevel, TrustMedium)
	}
}

func TestCalculateTotalClamped(t *testing.T) {
	calc := NewCalculator()

	// Heavy penalties cannot push the total below zero.
	report := calc.Calculate(
		WalletInput{AccountAgeDays: 1},
		TxSummary{TotalScore: 0, ExternalCount: 50, SuspiciousCount: 50},
		nil,
		nil,
		false,
	)
	if report.Total != 0 {
		t.Errorf("total = %d, want 0 after clamping", report.Total)
	}
}

func TestCalculateBreakdownVIPOnly(t *testing.T) {
	calc := NewCalculator()
	wallet := WalletInput{AccountAgeDays: 400, TotalTransactionCount: 50}
	txs := TxSummary{TotalScore: 25}

	plain := calc.Calculate(wallet, txs, nil, nil, false)
	if len(plain.Breakdown) != 0 {
		t.Errorf("non-VIP report should have no breakdown, got %d lines", len(plain.Breakdown))
	}

	vip := calc.Calculate(wallet, txs, nil, nil, true)
	if len(vip.Breakdown) == 0 {
		t.Error("VIP report should include a breakdown")
	}
	if vip.Total != plain.Total {
		t.Errorf("VIP flag must not change the score: %d vs %d", vip.Total, plain.Total)
	}
}
