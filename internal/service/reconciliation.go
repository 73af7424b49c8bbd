package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/fieldserve/checkout-portal/internal/clock"
	"github.com/fieldserve/checkout-portal/internal/model"
	"github.com/fieldserve/checkout-portal/internal/repository"
)

// InvoiceReconciler is the only component that mutates invoice financial
// fields. It is reached exclusively through payment validation, never from a
// client-facing entry point.
type InvoiceReconciler struct {
	invoices InvoiceStore
	clock    clock.Clock
}

// NewInvoiceReconciler returns a reconciler backed by the given store.
func NewInvoiceReconciler(invoices InvoiceStore, clk clock.Clock) *InvoiceReconciler {
	if invoices == nil || clk == nil {
		panic("nil dependency passed to NewInvoiceReconciler")
	}
	return &InvoiceReconciler{invoices: invoices, clock: clk}
}

// ApplyPaymentOutcome transitions the invoice:
//
//   - PAID settles in full: datePaid stamped, amountPaid = amountDue. No
//     partial-payment accounting exists, and the conditional write ensures
//     at most one transaction ever moves an invoice to PAID; a second
//     settlement attempt returns ErrAlreadyProcessed.
//   - DUE reverses an optimistic PAID mark after a decline is discovered:
//     datePaid cleared, amountPaid zeroed. Reversing an invoice that never
//     reached PAID is a no-op.
//   - any other recognized status is a bare status change.
func (r *InvoiceReconciler) ApplyPaymentOutcome(ctx context.Context, invoiceNumber string, newStatus model.InvoiceStatus, transactionID string) error {
	if invoiceNumber == "" {
		return fmt.Errorf("%w: invoice number is required", ErrInvalidRequest)
	}
	if !model.ValidInvoiceStatus(newStatus) {
		return fmt.Errorf("%w: unrecognized invoice status %q", ErrInvalidRequest, newStatus)
	}
	inv, err := r.invoices.GetByNumber(ctx, invoiceNumber)
	if err != nil {
		return err
	}

	now := r.clock.Now()
	switch newStatus {
	case model.InvoicePaid:
		if err := r.invoices.MarkPaid(ctx, invoiceNumber, inv.AmountDue, now); err != nil {
			if errors.Is(err, repository.ErrStaleWrite) {
				return ErrAlreadyProcessed
			}
			return err
		}
		return nil
	case model.InvoiceDue:
		if err := r.invoices.MarkDue(ctx, invoiceNumber, now); err != nil {
			if errors.Is(err, repository.ErrStaleWrite) {
				return nil // nothing to revert
			}
			return err
		}
		return nil
	default:
		return r.invoices.UpdateStatus(ctx, invoiceNumber, newStatus, now)
	}
}
