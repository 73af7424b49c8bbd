package service

import (
	"context"
	"errors"
	"time"

	"github.com/fieldserve/checkout-portal/internal/clock"
	"github.com/fieldserve/checkout-portal/internal/logger"
	"github.com/fieldserve/checkout-portal/internal/model"
	"github.com/fieldserve/checkout-portal/internal/queue"
	"github.com/fieldserve/checkout-portal/internal/repository"
)

// SessionService implements the customer-facing session operations:
// scheduling a booking or work order, editing notes and selected services,
// and cancelling. Every mutation runs the lifecycle guard before any other
// side effect and is backed by a conditional store write that re-checks
// status immediately before writing.
type SessionService struct {
	store  SessionStore
	guard  MutationGuard
	clock  clock.Clock
	events EventPublisher
}

// NewSessionService constructs a SessionService. events may be nil to
// disable broker notifications.
func NewSessionService(store SessionStore, guard MutationGuard, clk clock.Clock, events EventPublisher) *SessionService {
	if store == nil || guard == nil || clk == nil {
		panic("nil dependency passed to NewSessionService")
	}
	return &SessionService{store: store, guard: guard, clock: clk, events: events}
}

// View returns the session for the given token. Reads never mutate: an
// expired session is reported with its stored status, and the EXPIRED write
// happens only when a mutation discovers the expiry.
func (s *SessionService) View(ctx context.Context, token string) (model.TokenSession, error) {
	if token == "" {
		return model.TokenSession{}, ErrInvalidRequest
	}
	return s.store.GetByToken(ctx, token)
}

// Schedule sets the scheduled date on an ACTIVE booking or work-order
// session and advances it to SCHEDULED.
func (s *SessionService) Schedule(ctx context.Context, token string, date time.Time) (model.TokenSession, error) {
	if token == "" || date.IsZero() {
		return model.TokenSession{}, ErrInvalidRequest
	}
	sess, err := s.store.GetByToken(ctx, token)
	if err != nil {
		return model.TokenSession{}, err
	}
	if sess.Kind == model.KindInvoice {
		return model.TokenSession{}, ErrInvalidRequest
	}
	if err := s.guard.Authorize(ctx, sess, model.SessionActive); err != nil {
		return model.TokenSession{}, err
	}
	now := s.clock.Now()
	if err := s.store.Schedule(ctx, token, date.UTC(), now); err != nil {
		return model.TokenSession{}, s.mapStale(ctx, token, model.SessionActive, err)
	}
	updated, err := s.store.GetByToken(ctx, token)
	if err != nil {
		return model.TokenSession{}, err
	}
	if s.events != nil {
		ev := queue.SessionScheduledEvent{
			Token:         token,
			Kind:          string(updated.Kind),
			ScheduledDate: date.UTC().Format(time.RFC3339),
			ScheduledAt:   now.Format(time.RFC3339),
		}
		if err := s.events.SessionScheduled(ctx, ev); err != nil {
			logger.LogError("service", "Schedule", "publish event", map[string]any{"token": token}, err)
		}
	}
	return updated, nil
}

// UpdateNotes replaces the free-form notes on an ACTIVE session.
func (s *SessionService) UpdateNotes(ctx context.Context, token, notes string) (model.TokenSession, error) {
	return s.mutateField(ctx, token, func(now time.Time) error {
		return s.store.UpdateNotes(ctx, token, notes, now)
	})
}

// UpdateServices replaces the selected-services document on an ACTIVE
// session.
func (s *SessionService) UpdateServices(ctx context.Context, token, services string) (model.TokenSession, error) {
	return s.mutateField(ctx, token, func(now time.Time) error {
		return s.store.UpdateServices(ctx, token, services, now)
	})
}

// Cancel moves an ACTIVE session to CANCELLED.
func (s *SessionService) Cancel(ctx context.Context, token string) (model.TokenSession, error) {
	if token == "" {
		return model.TokenSession{}, ErrInvalidRequest
	}
	sess, err := s.store.GetByToken(ctx, token)
	if err != nil {
		return model.TokenSession{}, err
	}
	if err := s.guard.Authorize(ctx, sess, model.SessionActive); err != nil {
		return model.TokenSession{}, err
	}
	if !sess.Status.CanTransition(model.SessionCancelled) {
		return model.TokenSession{}, ErrInvalidState
	}
	now := s.clock.Now()
	if err := s.store.UpdateStatus(ctx, token, model.SessionActive, model.SessionCancelled, now); err != nil {
		return model.TokenSession{}, s.mapStale(ctx, token, model.SessionActive, err)
	}
	return s.store.GetByToken(ctx, token)
}

func (s *SessionService) mutateField(ctx context.Context, token string, write func(now time.Time) error) (model.TokenSession, error) {
	if token == "" {
		return model.TokenSession{}, ErrInvalidRequest
	}
	sess, err := s.store.GetByToken(ctx, token)
	if err != nil {
		return model.TokenSession{}, err
	}
	if err := s.guard.Authorize(ctx, sess, model.SessionActive); err != nil {
		return model.TokenSession{}, err
	}
	if err := write(s.clock.Now()); err != nil {
		return model.TokenSession{}, s.mapStale(ctx, token, model.SessionActive, err)
	}
	return s.store.GetByToken(ctx, token)
}

// mapStale translates a zero-row conditional write into the precise business
// rejection. The session changed between the guard check and the write, so
// re-run the guard against fresh state: a discovered expiry becomes
// ErrSessionExpired (with the EXPIRED write applied), anything else is
// ErrInvalidState.
func (s *SessionService) mapStale(ctx context.Context, token string, required model.SessionStatus, err error) error {
	if !errors.Is(err, repository.ErrStaleWrite) {
		return err
	}
	sess, getErr := s.store.GetByToken(ctx, token)
	if getErr != nil {
		return getErr
	}
	if guardErr := s.guard.Authorize(ctx, sess, required); guardErr != nil {
		return guardErr
	}
	return ErrInvalidState
}
