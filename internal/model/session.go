package model

import "time"

// SessionKind distinguishes the three resources a tokenized link can point
// at. Bookings and work orders share one status machine; invoice sessions
// delegate their financial state to the linked invoice row.
type SessionKind string

const (
	KindBooking   SessionKind = "BOOKING"
	KindWorkOrder SessionKind = "WORK_ORDER"
	KindInvoice   SessionKind = "INVOICE"
)

// SessionStatus is the state of a booking or work-order session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "ACTIVE"
	SessionScheduled SessionStatus = "SCHEDULED"
	SessionCompleted SessionStatus = "COMPLETED"
	SessionCancelled SessionStatus = "CANCELLED"
	SessionExpired   SessionStatus = "EXPIRED"
)

// sessionTransitions fixes the legal forward edges of the session machine.
// Transitions are monotonic: terminal states have no outgoing edges and
// nothing moves backwards.
var sessionTransitions = map[SessionStatus][]SessionStatus{
	SessionActive:    {SessionScheduled, SessionCompleted, SessionCancelled, SessionExpired},
	SessionScheduled: {SessionCompleted, SessionCancelled, SessionExpired},
}

// CanTransition reports whether moving from the current status to next is a
// legal edge of the session machine.
func (s SessionStatus) CanTransition(next SessionStatus) bool {
	for _, t := range sessionTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the status has no outgoing transitions.
func (s SessionStatus) Terminal() bool {
	return len(sessionTransitions[s]) == 0
}

// TokenSession is one row per booking, work order or invoice-payment
// context. The token is the sole capability credential for the resource:
// anyone holding it has full read/write access to the session, so tokens are
// 128-bit random values generated server-side.
type TokenSession struct {
	ID               uint64        // token_sessions.id
	Token            string        // token_sessions.token (unique, hex)
	Kind             SessionKind   // token_sessions.kind
	Status           SessionStatus // token_sessions.status
	InvoiceNumber    *string       // token_sessions.invoice_number (invoice sessions only)
	ScheduledDate    *time.Time    // token_sessions.scheduled_date (nullable)
	Notes            *string       // token_sessions.notes (nullable)
	SelectedServices *string       // token_sessions.selected_services (nullable, JSON document)
	ExpiresAt        time.Time     // token_sessions.expires_at
	CreatedAt        time.Time     // token_sessions.created_at
	UpdatedAt        time.Time     // token_sessions.updated_at
}

// ExpiredAt reports whether the session is past its expiry at the given
// instant. Mutations against an expired session must fail regardless of the
// stored status; the stored status is only corrected to EXPIRED when the
// expiry is discovered by the lifecycle guard.
func (s TokenSession) ExpiredAt(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
