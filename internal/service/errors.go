// Package service implements the portal's business operations: the session
// lifecycle guard, payment initialization, payment validation and invoice
// reconciliation.
package service

import (
	"errors"
	"fmt"
)

// ErrInvalidRequest indicates malformed or missing caller input. Reported
// with a 4xx signal, never retried automatically.
var ErrInvalidRequest = errors.New("invalid request")

// ErrSessionExpired indicates the session is past its expiry. The expiry
// write has already been applied when this is returned.
var ErrSessionExpired = errors.New("session expired")

// ErrInvalidState indicates the session is not in the status the operation
// requires. Reported distinctly from expiry so the caller can render an
// appropriate message.
var ErrInvalidState = errors.New("session in invalid state")

// ErrAlreadyProcessed indicates a duplicate validation attempt for a
// transaction that has already been finalized. The first attempt's outcome
// stands; nothing is re-applied.
var ErrAlreadyProcessed = errors.New("transaction already processed")

// PersistenceError marks a store write that failed after an upstream side
// effect already occurred. Local state and the processor ledger may now
// disagree; callers must surface this loudly, never swallow it.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
