// Package payments tracks Pi payment lifecycles and app-to-user payouts.
//
// Flow for user-initiated payments:
//  1. App submits the payment → approve: record created, authority notified
//  2. User signs the transaction → complete: txid stored, VIP granted
//  3. Either side backs out → cancel
//
// Payouts run the other direction (app funds → user wallet) and are guarded
// by idempotency markers so a retried request cannot pay twice.
package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pitrustlab/pitrust/internal/metrics"
	"github.com/pitrustlab/pitrust/internal/pagination"
	"github.com/pitrustlab/pitrust/internal/syncutil"
)

var (
	ErrPaymentNotFound = errors.New("payment not found")
	ErrInvalidStatus   = errors.New("invalid payment status for this operation")
	ErrPayoutPending   = errors.New("a payout is already pending for this user")
	ErrInvalidAddress  = errors.New("invalid wallet address")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidUID      = errors.New("invalid uid")
	// ErrAuthority wraps failures of the external payment platform; these
	// are retryable by the caller, unlike validation and conflict errors.
	ErrAuthority = errors.New("payment authority call failed")
)

// Status represents the state of a payment.
type Status string

const (
	StatusPending   Status = "pending"   // Created, awaiting authority approval
	StatusApproved  Status = "approved"  // Authority accepted, awaiting user txn
	StatusCompleted Status = "completed" // Transaction landed, terminal
	StatusCancelled Status = "cancelled" // Backed out, terminal
)

// Payment is one payment lifecycle record.
type Payment struct {
	ID        string    `json:"id"`
	UID       string    `json:"uid"`
	Amount    float64   `json:"amount"`
	Direction string    `json:"direction"` // "user_to_app" or "app_to_user"
	Status    Status    `json:"status"`
	TxID      string    `json:"txid,omitempty"`
	Memo      string    `json:"memo,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsTerminal returns true if the payment is in a final state.
func (p *Payment) IsTerminal() bool {
	return p.Status == StatusCompleted || p.Status == StatusCancelled
}

// Store persists payment records.
type Store interface {
	Create(ctx context.Context, p *Payment) error
	Get(ctx context.Context, id string) (*Payment, error)
	Update(ctx context.Context, p *Payment) error
	// ListByUID returns the user's payments, most recent first. A non-nil
	// before cursor restricts results to payments strictly older than it.
	ListByUID(ctx context.Context, uid string, before *pagination.Cursor, limit int) ([]*Payment, error)
}

// Authority is the external payment platform. Approve and complete are
// idempotent on the authority side, so callers may retry failed calls.
type Authority interface {
	ApprovePayment(ctx context.Context, paymentID string) error
	CompletePayment(ctx context.Context, paymentID, txid string) error
	CreatePayout(ctx context.Context, req PayoutOrder) (string, error)
}

// VIPGranter gives a user VIP after a completed payment, without this
// package importing the vip package.
type VIPGranter interface {
	GrantVIP(ctx context.Context, uid, source string) error
}

// Notifier publishes completed payments to live subscribers. Optional.
type Notifier interface {
	BroadcastPaymentCompleted(uid, paymentID string, amount float64)
}

// Service implements the payment state machine.
type Service struct {
	store     Store
	authority Authority
	markers   MarkerStore
	vip       VIPGranter
	notifier  Notifier
	now       func() time.Time
	logger    *slog.Logger
	locks     *syncutil.ContextShardedMutex // per-payment locks serialize state transitions
}

// NewService creates a payment service.
func NewService(store Store, authority Authority, markers MarkerStore, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		authority: authority,
		markers:   markers,
		locks:     syncutil.NewContextShardedMutex(),
		now:       time.Now,
		logger:    logger,
	}
}

// WithVIPGranter adds VIP granting on payment completion.
func (s *Service) WithVIPGranter(v VIPGranter) *Service {
	s.vip = v
	return s
}

// WithNotifier adds a live payment-event notifier.
func (s *Service) WithNotifier(n Notifier) *Service {
	s.notifier = n
	return s
}

// WithClock injects a clock, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Approve creates (or re-reads) the payment record and asks the authority
// to approve it. On authority failure the record stays pending, so the
// caller can retry.
func (s *Service) Approve(ctx context.Context, paymentID, uid string, amount float64) (*Payment, error) {
	unlock, err := s.locks.LockContext(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := s.now().UTC()
	p, err := s.store.Get(ctx, paymentID)
	if errors.Is(err, ErrPaymentNotFound) {
		p = &Payment{
			ID:        paymentID,
			UID:       uid,
			Amount:    amount,
			Direction: "user_to_app",
			Status:    StatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.store.Create(ctx, p); err != nil {
			return nil, fmt.Errorf("create payment record: %w", err)
		}
	} else if err != nil {
		return nil, err
	}

	if p.IsTerminal() {
		return nil, ErrInvalidStatus
	}
	if p.Status == StatusApproved {
		// Already approved; the authority call is idempotent, skip it.
		return p, nil
	}

	if err := s.authority.ApprovePayment(ctx, paymentID); err != nil {
		metrics.PaymentsTotal.WithLabelValues("approve_failed").Inc()
		return nil, fmt.Errorf("%w: approve: %v", ErrAuthority, err)
	}

	p.Status = StatusApproved
	p.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("persist approval: %w", err)
	}

	metrics.PaymentsTotal.WithLabelValues("approved").Inc()
	s.logger.Info("payment approved", "payment_id", paymentID, "uid", uid, "amount", amount)
	return p, nil
}

// Complete records the on-chain transaction and finishes the payment.
// A payment whose approval record was lost (e.g. after a restart) is
// reconstructed with uid "unknown"; VIP is granted only when the uid is
// known. On authority failure the record keeps its prior state.
func (s *Service) Complete(ctx context.Context, paymentID, txid string) (*Payment, error) {
	unlock, err := s.locks.LockContext(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := s.now().UTC()
	p, err := s.store.Get(ctx, paymentID)
	if errors.Is(err, ErrPaymentNotFound) {
		s.logger.Warn("completing payment with no approval record", "payment_id", paymentID)
		p = &Payment{
			ID:        paymentID,
			UID:       "unknown",
			Direction: "user_to_app",
			Status:    StatusApproved,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.store.Create(ctx, p); err != nil {
			return nil, fmt.Errorf("reconstruct payment record: %w", err)
		}
	} else if err != nil {
		return nil, err
	}

	if p.Status == StatusCompleted {
		return nil, ErrInvalidStatus
	}
	if p.Status == StatusCancelled {
		return nil, ErrInvalidStatus
	}

	if err := s.authority.CompletePayment(ctx, paymentID, txid); err != nil {
		metrics.PaymentsTotal.WithLabelValues("complete_failed").Inc()
		return nil, fmt.Errorf("%w: complete: %v", ErrAuthority, err)
	}

	p.Status = StatusCompleted
	p.TxID = txid
	p.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, p); err != nil {
		// The authority already completed; persisting must not be dropped.
		if retryErr := s.store.Update(ctx, p); retryErr != nil {
			s.logger.Error("failed to persist completed payment",
				"payment_id", paymentID, "txid", txid, "error", retryErr)
			return nil, fmt.Errorf("persist completion: %w", retryErr)
		}
	}

	metrics.PaymentsTotal.WithLabelValues("completed").Inc()
	s.logger.Info("payment completed", "payment_id", paymentID, "uid", p.UID, "txid", txid)

	if s.vip != nil && p.UID != "" && p.UID != "unknown" {
		if err := s.vip.GrantVIP(ctx, p.UID, paymentID); err != nil {
			// The payment itself succeeded; surface the grant failure in logs only.
			s.logger.Error("vip grant after payment failed", "payment_id", paymentID, "uid", p.UID, "error", err)
		}
	}

	if s.notifier != nil {
		s.notifier.BroadcastPaymentCompleted(p.UID, p.ID, p.Amount)
	}

	return p, nil
}

// Cancel marks a payment cancelled. Cancelling an unknown payment is a
// no-op that still reports success; cancelling a completed payment is
// rejected.
func (s *Service) Cancel(ctx context.Context, paymentID string) (*Payment, error) {
	unlock, err := s.locks.LockContext(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	p, err := s.store.Get(ctx, paymentID)
	if errors.Is(err, ErrPaymentNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if p.Status == StatusCompleted {
		return nil, ErrInvalidStatus
	}
	if p.Status == StatusCancelled {
		return p, nil
	}

	p.Status = StatusCancelled
	p.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("persist cancellation: %w", err)
	}

	metrics.PaymentsTotal.WithLabelValues("cancelled").Inc()
	s.logger.Info("payment cancelled", "payment_id", paymentID, "uid", p.UID)
	return p, nil
}

// Get returns a payment by id.
func (s *Service) Get(ctx context.Context, paymentID string) (*Payment, error) {
	return s.store.Get(ctx, paymentID)
}

// ListByUID returns a user's recent payments, newest first.
// ListByUID returns one page of the user's payments plus a cursor for the
// next page, empty when there is none.
func (s *Service) ListByUID(ctx context.Context, uid string, before *pagination.Cursor, limit int) ([]*Payment, string, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	// Fetch one extra row to learn whether another page exists.
	list, err := s.store.ListByUID(ctx, uid, before, limit+1)
	if err != nil {
		return nil, "", err
	}
	page, next, _ := pagination.ComputePage(list, limit, func(p *Payment) (time.Time, string) {
		return p.CreatedAt, p.ID
	})
	return page, next, nil
}
