package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus is the financial state of an invoice. It is a separate
// machine from SessionStatus; the two share only the expiry pattern on the
// session row that fronts them.
type InvoiceStatus string

const (
	InvoiceDraft    InvoiceStatus = "DRAFT"
	InvoiceSent     InvoiceStatus = "SENT"
	InvoiceDue      InvoiceStatus = "DUE"
	InvoicePartial  InvoiceStatus = "PARTIAL"
	InvoicePaid     InvoiceStatus = "PAID"
	InvoiceVoid     InvoiceStatus = "VOID"
	InvoiceRefunded InvoiceStatus = "REFUNDED"
)

// ValidInvoiceStatus reports whether s is one of the seven recognized
// invoice statuses.
func ValidInvoiceStatus(s InvoiceStatus) bool {
	switch s {
	case InvoiceDraft, InvoiceSent, InvoiceDue, InvoicePartial, InvoicePaid, InvoiceVoid, InvoiceRefunded:
		return true
	}
	return false
}

// Invoice carries the financial fields mutated exclusively by payment
// reconciliation. Amounts use decimals; float money is how double
// settlements hide.
type Invoice struct {
	ID            uint64          // invoices.id
	InvoiceNumber string          // invoices.invoice_number (unique)
	CustomerCode  string          // invoices.customer_code
	Token         string          // invoices.token (session token fronting this invoice)
	Currency      string          // invoices.currency (ISO 4217)
	AmountDue     decimal.Decimal // invoices.amount_due
	AmountPaid    decimal.Decimal // invoices.amount_paid
	Status        InvoiceStatus   // invoices.status
	DatePaid      *time.Time      // invoices.date_paid (nullable)
	CreatedAt     time.Time       // invoices.created_at
	UpdatedAt     time.Time       // invoices.updated_at
}
