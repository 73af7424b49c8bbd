// Package queue defines the message payloads exchanged over the broker and
// the background consumer that turns them into audit log lines.
package queue

// Queue names. Both queues are durable; downstream notification consumers
// (webhooks, email) attach to them outside this service.
const (
	PaymentValidatedQueue = "payment.validated"
	SessionScheduledQueue = "session.scheduled"
)

// PaymentValidatedEvent is published after a validation attempt has been
// committed, whether the hash matched or not. The validity flag travels with
// the event so consumers never have to guess. The verification secret is
// never part of an event.
type PaymentValidatedEvent struct {
	TransactionID string `json:"transaction_id"`
	CheckoutToken string `json:"checkout_token"`
	InvoiceNumber string `json:"invoice_number"`
	CustomerCode  string `json:"customer_code"`
	PaymentType   string `json:"payment_type"`
	Status        string `json:"status"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	HashValidated bool   `json:"hash_validated"`
	ValidatedAt   string `json:"validated_at"`
}

// SessionScheduledEvent is published when a booking or work-order session is
// successfully scheduled.
type SessionScheduledEvent struct {
	Token         string `json:"token"`
	Kind          string `json:"kind"`
	ScheduledDate string `json:"scheduled_date"`
	ScheduledAt   string `json:"scheduled_at"`
}
