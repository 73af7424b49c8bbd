package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fieldserve/checkout-portal/internal/helcim"
	"github.com/fieldserve/checkout-portal/internal/model"
	"github.com/fieldserve/checkout-portal/internal/queue"
)

// SessionStore is the persistence contract for token sessions. Satisfied by
// repository.SessionRepo; faked in tests.
type SessionStore interface {
	GetByToken(ctx context.Context, token string) (model.TokenSession, error)
	MarkExpired(ctx context.Context, token string, now time.Time) error
	Schedule(ctx context.Context, token string, date time.Time, now time.Time) error
	UpdateNotes(ctx context.Context, token, notes string, now time.Time) error
	UpdateServices(ctx context.Context, token, services string, now time.Time) error
	UpdateStatus(ctx context.Context, token string, from, to model.SessionStatus, now time.Time) error
}

// InvoiceStore is the persistence contract for invoices.
type InvoiceStore interface {
	GetByToken(ctx context.Context, token string) (model.Invoice, error)
	GetByNumber(ctx context.Context, invoiceNumber string) (model.Invoice, error)
	MarkPaid(ctx context.Context, invoiceNumber string, amountPaid decimal.Decimal, datePaid time.Time) error
	MarkDue(ctx context.Context, invoiceNumber string, now time.Time) error
	UpdateStatus(ctx context.Context, invoiceNumber string, status model.InvoiceStatus, now time.Time) error
}

// TransactionStore is the persistence contract for payment transactions.
type TransactionStore interface {
	Create(ctx context.Context, t model.PaymentTransaction) error
	GetByCheckoutToken(ctx context.Context, checkoutToken string) (model.PaymentTransaction, error)
	Finalize(ctx context.Context, p model.Finalization) error
	ListUnreconciled(ctx context.Context, now time.Time) ([]model.PaymentTransaction, error)
}

// ProcessorClient is the outbound contract with the payment processor.
// Satisfied by helcim.Client.
type ProcessorClient interface {
	Initialize(ctx context.Context, req helcim.InitializeRequest) (helcim.InitializeResponse, error)
	VerifyHash(ctx context.Context, checkoutToken, secretToken string) (string, error)
}

// EventPublisher forwards domain events to the message broker. Publishing is
// fire-and-forget: failures are logged by implementations and never fail the
// request. A nil publisher disables events.
type EventPublisher interface {
	PaymentValidated(ctx context.Context, ev queue.PaymentValidatedEvent) error
	SessionScheduled(ctx context.Context, ev queue.SessionScheduledEvent) error
}
