package service

import (
	"context"

	"github.com/fieldserve/checkout-portal/internal/clock"
	"github.com/fieldserve/checkout-portal/internal/logger"
	"github.com/fieldserve/checkout-portal/internal/model"
)

// MutationGuard gates every mutating operation on a token session. It must
// be the first side-effecting call of every mutating entry point.
type MutationGuard interface {
	Authorize(ctx context.Context, s model.TokenSession, required model.SessionStatus) error
}

// LifecycleGuard is the production guard: it discovers expiry, records it,
// and enforces that the session currently holds the status the operation
// requires.
type LifecycleGuard struct {
	sessions SessionStore
	clock    clock.Clock
}

// NewLifecycleGuard returns a guard backed by the given store and clock.
func NewLifecycleGuard(sessions SessionStore, clk clock.Clock) *LifecycleGuard {
	return &LifecycleGuard{sessions: sessions, clock: clk}
}

// Authorize fails with ErrSessionExpired when the session is past its
// expiry, writing EXPIRED to the store first. The expiry is discovered, not
// reverted, so the write is applied even though the overall operation fails.
// Otherwise it fails with ErrInvalidState unless the session holds the
// required status. The expiry write is idempotent: concurrent requests both
// observing an expired session write EXPIRED twice with no additional
// effect.
func (g *LifecycleGuard) Authorize(ctx context.Context, s model.TokenSession, required model.SessionStatus) error {
	now := g.clock.Now()
	if s.ExpiredAt(now) {
		if err := g.sessions.MarkExpired(ctx, s.Token, now); err != nil {
			// The rejection stands either way; the missed status write will
			// be retried on the next mutation attempt.
			logger.LogError("service", "Authorize", "mark expired", map[string]any{"token": s.Token}, err)
		}
		return ErrSessionExpired
	}
	if s.Status != required {
		return ErrInvalidState
	}
	return nil
}
