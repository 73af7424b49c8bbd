package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fieldserve/checkout-portal/internal/clock"
	"github.com/fieldserve/checkout-portal/internal/helcim"
	"github.com/fieldserve/checkout-portal/internal/logger"
	"github.com/fieldserve/checkout-portal/internal/model"
)

// secretTokenTTL is how long the processor's verification secret stays
// usable after issuance.
const secretTokenTTL = 60 * time.Minute

// placeholderPrefix marks transaction ids that are synthetic: the real
// processor-assigned id is unknown until validation.
const placeholderPrefix = "init-"

var supportedCurrencies = map[string]bool{
	"CAD": true,
	"USD": true,
}

// PaymentInitService opens payment attempts with the processor and persists
// the verification secret before any token leaves the server boundary.
type PaymentInitService struct {
	processor ProcessorClient
	invoices  InvoiceStore
	txns      TransactionStore
	clock     clock.Clock
	baseURL   string
}

// NewPaymentInitService constructs a PaymentInitService. baseURL is the
// public portal URL used to build the hosted widget's return and cancel
// links.
func NewPaymentInitService(processor ProcessorClient, invoices InvoiceStore, txns TransactionStore, clk clock.Clock, baseURL string) *PaymentInitService {
	if processor == nil || invoices == nil || txns == nil || clk == nil {
		panic("nil dependency passed to NewPaymentInitService")
	}
	return &PaymentInitService{processor: processor, invoices: invoices, txns: txns, clock: clk, baseURL: baseURL}
}

// InitializeInput identifies the invoice being paid and whether the hosted
// widget should show its own confirmation screen.
type InitializeInput struct {
	Token              string
	ConfirmationScreen bool
}

// InitializeResult is everything the caller may see. The verification
// secret is deliberately absent: it must never be returned to the client.
type InitializeResult struct {
	CheckoutToken string
}

// Initialize opens a payment transaction with the processor and persists a
// PENDING PaymentTransaction carrying the verification secret. Re-initializing
// creates a new, independent attempt; the previous checkout token silently
// becomes unusable. No retry is performed here: retrying against a payment
// processor risks duplicate charges and is left to the caller.
func (s *PaymentInitService) Initialize(ctx context.Context, in InitializeInput) (InitializeResult, error) {
	if in.Token == "" {
		return InitializeResult{}, fmt.Errorf("%w: token is required", ErrInvalidRequest)
	}
	invoice, err := s.invoices.GetByToken(ctx, in.Token)
	if err != nil {
		return InitializeResult{}, err
	}
	if !invoice.AmountDue.IsPositive() {
		return InitializeResult{}, fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	if !supportedCurrencies[invoice.Currency] {
		return InitializeResult{}, fmt.Errorf("%w: unsupported currency %q", ErrInvalidRequest, invoice.Currency)
	}

	req := helcim.InitializeRequest{
		Amount:             json.Number(invoice.AmountDue.String()),
		Currency:           invoice.Currency,
		CustomerCode:       invoice.CustomerCode,
		InvoiceNumber:      invoice.InvoiceNumber,
		PaymentMethod:      "cc-ach",
		HasConvenienceFee:  0,
		ConfirmationScreen: in.ConfirmationScreen,
		ReturnURL:          fmt.Sprintf("%s/invoice/%s/payment/success", s.baseURL, in.Token),
		CancelURL:          fmt.Sprintf("%s/invoice/%s/payment/cancel", s.baseURL, in.Token),
	}
	resp, err := s.processor.Initialize(ctx, req)
	if err != nil {
		return InitializeResult{}, err
	}

	now := s.clock.Now()
	txn := model.PaymentTransaction{
		TransactionID:  placeholderPrefix + uuid.NewString(),
		CheckoutToken:  resp.CheckoutToken,
		SecretToken:    resp.SecretToken,
		InvoiceNumber:  invoice.InvoiceNumber,
		CustomerCode:   invoice.CustomerCode,
		Amount:         invoice.AmountDue,
		Currency:       invoice.Currency,
		Status:         model.TxnPending,
		HashValidated:  false,
		TokenExpiresAt: now.Add(secretTokenTTL),
		CreatedAt:      now,
	}
	if err := s.txns.Create(ctx, txn); err != nil {
		// The processor-side transaction is now orphaned; the operator
		// reconciliation listing is the mitigation.
		perr := &PersistenceError{Op: "persist pending transaction", Err: err}
		logger.LogCritical("service", "Initialize", "orphaned processor transaction",
			map[string]any{"invoice": invoice.InvoiceNumber, "checkout_token": resp.CheckoutToken}, perr)
		return InitializeResult{}, perr
	}
	return InitializeResult{CheckoutToken: resp.CheckoutToken}, nil
}
