// Package vip manages the paid VIP entitlement. A grant unlocks extended
// wallet-report detail for a fixed window; granting again overwrites the
// existing grant rather than stacking.
package vip

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/pitrustlab/pitrust/internal/metrics"
)

// ErrGrantNotFound means the user has never been granted VIP.
var ErrGrantNotFound = errors.New("vip grant not found")

// DefaultDuration is how long a VIP grant lasts.
const DefaultDuration = 30 * 24 * time.Hour

// Grant is a user's VIP entitlement window.
type Grant struct {
	UID       string    `json:"uid"`
	Source    string    `json:"source,omitempty"` // payment id or "admin"
	GrantedAt time.Time `json:"grantedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ActiveAt reports whether the grant covers the given instant.
func (g *Grant) ActiveAt(t time.Time) bool {
	return !t.Before(g.GrantedAt) && t.Before(g.ExpiresAt)
}

// Store persists VIP grants, one per user.
type Store interface {
	// Get returns the user's grant, or ErrGrantNotFound.
	Get(ctx context.Context, uid string) (*Grant, error)
	// Put stores the grant, replacing any existing one for the uid.
	Put(ctx context.Context, grant *Grant) error
}

// Service grants and checks VIP status.
type Service struct {
	store    Store
	duration time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewService creates a VIP service with the default grant duration.
func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		duration: DefaultDuration,
		now:      time.Now,
		logger:   logger,
	}
}

// WithDuration overrides the grant duration.
func (s *Service) WithDuration(d time.Duration) *Service {
	s.duration = d
	return s
}

// WithClock injects a clock, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Grant gives uid a fresh VIP window starting now. An existing grant is
// overwritten, not extended: paying twice does not stack.
func (s *Service) Grant(ctx context.Context, uid, source string) (*Grant, error) {
	now := s.now().UTC()
	grant := &Grant{
		UID:       uid,
		Source:    source,
		GrantedAt: now,
		ExpiresAt: now.Add(s.duration),
	}
	if err := s.store.Put(ctx, grant); err != nil {
		return nil, err
	}

	s.logger.Info("vip granted", "uid", uid, "source", source, "expires_at", grant.ExpiresAt)
	metrics.VIPGrantsTotal.Inc()
	return grant, nil
}

// Status returns the user's grant and whether it is currently active.
// A user with no grant gets (nil, false, nil).
func (s *Service) Status(ctx context.Context, uid string) (*Grant, bool, error) {
	grant, err := s.store.Get(ctx, uid)
	if err != nil {
		if errors.Is(err, ErrGrantNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return grant, grant.ActiveAt(s.now().UTC()), nil
}

// IsVIP reports whether uid holds an active grant. Satisfies the
// reputation handler's VIPChecker.
func (s *Service) IsVIP(ctx context.Context, uid string) (bool, error) {
	_, active, err := s.Status(ctx, uid)
	return active, err
}
