package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/fieldserve/checkout-portal/internal/model"
)

// SessionRepo provides data access to the token_sessions table. All writes
// are conditional on the current status so that concurrent mutations against
// the same token resolve to ErrStaleWrite instead of overwriting each other.
// Timestamps are UTC throughout.
type SessionRepo struct {
	db *sql.DB
}

// NewSessionRepo returns a new SessionRepo bound to the provided database.
func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{db: db} }

const sessionColumns = `id, token, kind, status, invoice_number, scheduled_date, notes, selected_services, expires_at, created_at, updated_at`

func scanSession(row *sql.Row) (model.TokenSession, error) {
	var s model.TokenSession
	err := row.Scan(&s.ID, &s.Token, &s.Kind, &s.Status, &s.InvoiceNumber,
		&s.ScheduledDate, &s.Notes, &s.SelectedServices, &s.ExpiresAt, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.TokenSession{}, ErrSessionNotFound
	}
	return s, err
}

// GetByToken loads the session identified by the capability token.
func (r *SessionRepo) GetByToken(ctx context.Context, token string) (model.TokenSession, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM token_sessions WHERE token = ?`, token)
	return scanSession(row)
}

// MarkExpired records a discovered expiry. Only non-terminal sessions are
// touched, so two concurrent requests both observing an expired session can
// each call this safely: the second write matches zero rows and that is not
// an error. Expiry is discovered, never reverted.
func (r *SessionRepo) MarkExpired(ctx context.Context, token string, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE token_sessions SET status = ?, updated_at = ?
		 WHERE token = ? AND status IN (?, ?)`,
		model.SessionExpired, now, token, model.SessionActive, model.SessionScheduled)
	return err
}

// Schedule transitions an ACTIVE session to SCHEDULED and records the chosen
// date. The WHERE clause re-checks status and expiry immediately before the
// write; zero matched rows means the session changed underneath the caller.
func (r *SessionRepo) Schedule(ctx context.Context, token string, date time.Time, now time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE token_sessions SET status = ?, scheduled_date = ?, updated_at = ?
		 WHERE token = ? AND status = ? AND expires_at > ?`,
		model.SessionScheduled, date, now, token, model.SessionActive, now)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// UpdateNotes replaces the session notes. Permitted only while ACTIVE.
func (r *SessionRepo) UpdateNotes(ctx context.Context, token, notes string, now time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE token_sessions SET notes = ?, updated_at = ?
		 WHERE token = ? AND status = ? AND expires_at > ?`,
		notes, now, token, model.SessionActive, now)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// UpdateServices replaces the selected-services document. Permitted only
// while ACTIVE.
func (r *SessionRepo) UpdateServices(ctx context.Context, token, services string, now time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE token_sessions SET selected_services = ?, updated_at = ?
		 WHERE token = ? AND status = ? AND expires_at > ?`,
		services, now, token, model.SessionActive, now)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// UpdateStatus applies a status transition conditional on the current
// status. Used for cancel and complete; legality of the edge is the
// caller's responsibility (see model.SessionStatus.CanTransition).
func (r *SessionRepo) UpdateStatus(ctx context.Context, token string, from, to model.SessionStatus, now time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE token_sessions SET status = ?, updated_at = ?
		 WHERE token = ? AND status = ? AND expires_at > ?`,
		to, now, token, from, now)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStaleWrite
	}
	return nil
}
