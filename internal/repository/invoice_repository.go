package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fieldserve/checkout-portal/internal/model"
)

// InvoiceRepo provides data access to the invoices table. Financial fields
// (status, amount_paid, date_paid) are mutated only through the payment
// reconciliation paths below, never by handlers directly.
type InvoiceRepo struct {
	db *sql.DB
}

// NewInvoiceRepo returns a new InvoiceRepo bound to the provided database.
func NewInvoiceRepo(db *sql.DB) *InvoiceRepo { return &InvoiceRepo{db: db} }

const invoiceColumns = `id, invoice_number, customer_code, token, currency, amount_due, amount_paid, status, date_paid, created_at, updated_at`

func scanInvoice(row *sql.Row) (model.Invoice, error) {
	var inv model.Invoice
	var due, paid string
	err := row.Scan(&inv.ID, &inv.InvoiceNumber, &inv.CustomerCode, &inv.Token, &inv.Currency,
		&due, &paid, &inv.Status, &inv.DatePaid, &inv.CreatedAt, &inv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Invoice{}, ErrInvoiceNotFound
	}
	if err != nil {
		return model.Invoice{}, err
	}
	if inv.AmountDue, err = decimal.NewFromString(due); err != nil {
		return model.Invoice{}, err
	}
	if inv.AmountPaid, err = decimal.NewFromString(paid); err != nil {
		return model.Invoice{}, err
	}
	return inv, nil
}

// GetByToken loads the invoice fronted by the given session token.
func (r *InvoiceRepo) GetByToken(ctx context.Context, token string) (model.Invoice, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE token = ?`, token)
	return scanInvoice(row)
}

// GetByNumber loads the invoice identified by its invoice number.
func (r *InvoiceRepo) GetByNumber(ctx context.Context, invoiceNumber string) (model.Invoice, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE invoice_number = ?`, invoiceNumber)
	return scanInvoice(row)
}

// MarkPaid settles the invoice in full: status PAID, amount_paid set to the
// settled amount, date_paid stamped. The condition excludes invoices already
// PAID so at most one transaction can ever move an invoice to PAID.
func (r *InvoiceRepo) MarkPaid(ctx context.Context, invoiceNumber string, amountPaid decimal.Decimal, datePaid time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE invoices SET status = ?, amount_paid = ?, date_paid = ?, updated_at = ?
		 WHERE invoice_number = ? AND status <> ?`,
		model.InvoicePaid, amountPaid.String(), datePaid, datePaid, invoiceNumber, model.InvoicePaid)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// MarkDue reverses an optimistic PAID mark after a decline is discovered:
// status back to DUE, date_paid cleared, amount_paid zeroed.
func (r *InvoiceRepo) MarkDue(ctx context.Context, invoiceNumber string, now time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE invoices SET status = ?, amount_paid = 0, date_paid = NULL, updated_at = ?
		 WHERE invoice_number = ? AND status = ?`,
		model.InvoiceDue, now, invoiceNumber, model.InvoicePaid)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// UpdateStatus applies a bare status change for the non-settlement statuses
// (VOID, REFUNDED, SENT, ...). Financial fields are untouched.
func (r *InvoiceRepo) UpdateStatus(ctx context.Context, invoiceNumber string, status model.InvoiceStatus, now time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE invoices SET status = ?, updated_at = ? WHERE invoice_number = ?`,
		status, now, invoiceNumber)
	if err != nil {
		return err
	}
	return requireRow(res)
}
