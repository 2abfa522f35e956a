package payments

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/pitrustlab/pitrust/internal/metrics"
	"github.com/pitrustlab/pitrust/internal/validation"
)

// Marker TTLs. The pending marker blocks further payouts for the user
// until the payout settles; the idempotent marker suppresses retries of
// the same logical payout; the history marker feeds the audit surface.
const (
	PendingMarkerTTL    = 2 * time.Hour
	IdempotentMarkerTTL = 7 * 24 * time.Hour
	HistoryMarkerTTL    = 30 * 24 * time.Hour
)

// PayoutOrder is what the authority needs to move app funds to a user.
type PayoutOrder struct {
	UID     string  `json:"uid"`
	Address string  `json:"address"`
	Amount  float64 `json:"amount"`
	Memo    string  `json:"memo,omitempty"`
}

// PayoutResult reports the outcome of a payout request.
type PayoutResult struct {
	PaymentID string `json:"paymentId"`
	Duplicate bool   `json:"duplicate"`
}

func pendingKey(uid string) string {
	return "payout:pending:" + uid
}

func idempotencyKey(uid string, amountCents int64, purposeTag string) string {
	return fmt.Sprintf("payout:idem:%s:%d:%s", uid, amountCents, purposeTag)
}

func historyKey(uid, paymentID string) string {
	return fmt.Sprintf("payout:history:%s:%s", uid, paymentID)
}

// RequestPayout creates an app-to-user payout. A repeat of the same
// (uid, amount, purposeTag) within the idempotency window returns the
// original paymentId flagged duplicate, with no second authority call.
// While a payout is pending for the user, new payouts are rejected.
func (s *Service) RequestPayout(ctx context.Context, uid, address string, amount float64, purposeTag string) (*PayoutResult, error) {
	if !validation.IsValidUID(uid) {
		return nil, ErrInvalidUID
	}
	address = validation.SanitizeAddress(address)
	if !validation.IsValidPiAddress(address) {
		return nil, ErrInvalidAddress
	}
	if !validation.IsValidAmount(amount) {
		return nil, ErrInvalidAmount
	}

	amountCents := int64(math.Round(amount * 100))
	idemKey := idempotencyKey(uid, amountCents, purposeTag)

	if prior, ok, err := s.markers.Get(ctx, idemKey); err != nil {
		return nil, fmt.Errorf("idempotency check: %w", err)
	} else if ok {
		metrics.PayoutsTotal.WithLabelValues("duplicate").Inc()
		s.logger.Info("duplicate payout suppressed", "uid", uid, "payment_id", prior, "purpose", purposeTag)
		return &PayoutResult{PaymentID: prior, Duplicate: true}, nil
	}

	if _, ok, err := s.markers.Get(ctx, pendingKey(uid)); err != nil {
		return nil, fmt.Errorf("pending check: %w", err)
	} else if ok {
		metrics.PayoutsTotal.WithLabelValues("rejected_pending").Inc()
		return nil, ErrPayoutPending
	}

	paymentID, err := s.authority.CreatePayout(ctx, PayoutOrder{
		UID:     uid,
		Address: address,
		Amount:  amount,
		Memo:    purposeTag,
	})
	if err != nil {
		metrics.PayoutsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("%w: payout: %v", ErrAuthority, err)
	}

	now := s.now().UTC()
	payment := &Payment{
		ID:        paymentID,
		UID:       uid,
		Amount:    amount,
		Direction: "app_to_user",
		Status:    StatusApproved,
		Memo:      purposeTag,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, payment); err != nil {
		// Funds left already; the record must not be silently dropped.
		s.logger.Error("failed to persist payout record", "payment_id", paymentID, "uid", uid, "error", err)
	}

	// Marker writes are best-effort after the authority call succeeded: a
	// lost marker weakens idempotency but must not fail the payout.
	if err := s.markers.Set(ctx, pendingKey(uid), paymentID, PendingMarkerTTL); err != nil {
		s.logger.Warn("failed to write pending marker", "uid", uid, "error", err)
	}
	if err := s.markers.Set(ctx, idemKey, paymentID, IdempotentMarkerTTL); err != nil {
		s.logger.Warn("failed to write idempotency marker", "uid", uid, "error", err)
	}
	if err := s.markers.Set(ctx, historyKey(uid, paymentID), purposeTag, HistoryMarkerTTL); err != nil {
		s.logger.Warn("failed to write history marker", "uid", uid, "error", err)
	}

	metrics.PayoutsTotal.WithLabelValues("created").Inc()
	s.logger.Info("payout created", "uid", uid, "payment_id", paymentID, "amount", amount, "purpose", purposeTag)
	return &PayoutResult{PaymentID: paymentID, Duplicate: false}, nil
}

// ClearPendingPayout removes a user's pending-payout marker. Admin
// operation for payouts stuck short of the 2-hour expiry.
func (s *Service) ClearPendingPayout(ctx context.Context, uid string) error {
	if err := s.markers.Delete(ctx, pendingKey(uid)); err != nil {
		return fmt.Errorf("clear pending marker: %w", err)
	}
	s.logger.Info("pending payout marker cleared", "uid", uid)
	return nil
}
