// Package repository provides data access to the portal's MySQL store.
// Sentinel errors let higher layers distinguish failure scenarios without
// inspecting driver errors.
package repository

import "errors"

// ErrSessionNotFound is returned when no token_sessions row matches the
// supplied capability token.
var ErrSessionNotFound = errors.New("session not found")

// ErrInvoiceNotFound is returned when no invoice matches the supplied token
// or invoice number.
var ErrInvoiceNotFound = errors.New("invoice not found")

// ErrTransactionNotFound is returned when no payment transaction matches the
// supplied checkout token or transaction id.
var ErrTransactionNotFound = errors.New("payment transaction not found")

// ErrDuplicateTransaction is returned when an insert or finalization hits the
// uniqueness constraint on transaction_id or checkout_token. Callers treat
// this as "already finalized", not as a failure to surface to the customer.
var ErrDuplicateTransaction = errors.New("duplicate payment transaction")

// ErrStaleWrite is returned when a conditional update matched no rows because
// the row's status changed underneath the caller. Lost-update races resolve
// to this rejection rather than a silent overwrite.
var ErrStaleWrite = errors.New("conditional write matched no rows")
