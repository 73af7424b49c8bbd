package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fieldserve/checkout-portal/internal/clock"
	"github.com/fieldserve/checkout-portal/internal/helcim"
	"github.com/fieldserve/checkout-portal/internal/model"
	"github.com/fieldserve/checkout-portal/internal/repository"
)

func dueInvoice(token string) model.Invoice {
	return model.Invoice{
		InvoiceNumber: "INV-100",
		CustomerCode:  "CUST-7",
		Token:         token,
		Currency:      "CAD",
		AmountDue:     decimal.RequireFromString("120.50"),
		Status:        model.InvoiceDue,
	}
}

func TestInitializePersistsPendingTransaction(t *testing.T) {
	invoices := newFakeInvoiceStore(dueInvoice("tok-1"))
	txns := newFakeTxnStore()
	processor := &fakeProcessor{initResp: helcim.InitializeResponse{CheckoutToken: "chk-1", SecretToken: "sec-abc"}}
	svc := NewPaymentInitService(processor, invoices, txns, clock.NewFixed(baseTime), "https://portal.example.com")

	res, err := svc.Initialize(context.Background(), InitializeInput{Token: "tok-1"})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if res.CheckoutToken != "chk-1" {
		t.Fatalf("checkout token = %q", res.CheckoutToken)
	}

	if len(txns.created) != 1 {
		t.Fatalf("created %d transactions, want 1", len(txns.created))
	}
	txn := txns.created[0]
	if txn.Status != model.TxnPending {
		t.Fatalf("status = %s, want PENDING", txn.Status)
	}
	if txn.SecretToken != "sec-abc" {
		t.Fatalf("persisted secret = %q", txn.SecretToken)
	}
	if !strings.HasPrefix(txn.TransactionID, "init-") {
		t.Fatalf("placeholder id = %q, want init- prefix", txn.TransactionID)
	}
	if want := baseTime.Add(60 * time.Minute); !txn.TokenExpiresAt.Equal(want) {
		t.Fatalf("token expiry = %v, want %v", txn.TokenExpiresAt, want)
	}
	if !txn.Amount.Equal(decimal.RequireFromString("120.50")) {
		t.Fatalf("amount = %s", txn.Amount)
	}

	if processor.lastInit.InvoiceNumber != "INV-100" || processor.lastInit.PaymentMethod != "cc-ach" {
		t.Fatalf("processor request = %+v", processor.lastInit)
	}
	if want := "https://portal.example.com/invoice/tok-1/payment/success"; processor.lastInit.ReturnURL != want {
		t.Fatalf("return URL = %q, want %q", processor.lastInit.ReturnURL, want)
	}
}

func TestInitializeNeverExposesSecret(t *testing.T) {
	invoices := newFakeInvoiceStore(dueInvoice("tok-1"))
	processor := &fakeProcessor{initResp: helcim.InitializeResponse{CheckoutToken: "chk-1", SecretToken: "sec-abc"}}
	svc := NewPaymentInitService(processor, invoices, newFakeTxnStore(), clock.NewFixed(baseTime), "https://p.example.com")

	res, err := svc.Initialize(context.Background(), InitializeInput{Token: "tok-1"})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	// The result is what crosses the server boundary; serialize it the way
	// the handler would and make sure the secret is not in it.
	b, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}
	if strings.Contains(string(b), "sec-abc") {
		t.Fatalf("secret leaked in result: %s", b)
	}
}

func TestInitializeRejectsNonPositiveAmount(t *testing.T) {
	inv := dueInvoice("tok-1")
	inv.AmountDue = decimal.Zero
	svc := NewPaymentInitService(&fakeProcessor{}, newFakeInvoiceStore(inv), newFakeTxnStore(), clock.NewFixed(baseTime), "https://p.example.com")

	_, err := svc.Initialize(context.Background(), InitializeInput{Token: "tok-1"})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("err = %v, want ErrInvalidRequest", err)
	}
}

func TestInitializeRejectsUnsupportedCurrency(t *testing.T) {
	inv := dueInvoice("tok-1")
	inv.Currency = "EUR"
	processor := &fakeProcessor{}
	svc := NewPaymentInitService(processor, newFakeInvoiceStore(inv), newFakeTxnStore(), clock.NewFixed(baseTime), "https://p.example.com")

	_, err := svc.Initialize(context.Background(), InitializeInput{Token: "tok-1"})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("err = %v, want ErrInvalidRequest", err)
	}
	if processor.initCalls != 0 {
		t.Fatal("processor must not be called for a rejected invoice")
	}
}

func TestInitializeUnknownToken(t *testing.T) {
	svc := NewPaymentInitService(&fakeProcessor{}, newFakeInvoiceStore(), newFakeTxnStore(), clock.NewFixed(baseTime), "https://p.example.com")
	_, err := svc.Initialize(context.Background(), InitializeInput{Token: "nope"})
	if !errors.Is(err, repository.ErrInvoiceNotFound) {
		t.Fatalf("err = %v, want ErrInvoiceNotFound", err)
	}
}

func TestInitializeUpstreamFailure(t *testing.T) {
	processor := &fakeProcessor{initErr: &helcim.UpstreamError{StatusCode: 503, Message: "maintenance"}}
	txns := newFakeTxnStore()
	svc := NewPaymentInitService(processor, newFakeInvoiceStore(dueInvoice("tok-1")), txns, clock.NewFixed(baseTime), "https://p.example.com")

	_, err := svc.Initialize(context.Background(), InitializeInput{Token: "tok-1"})
	var ue *helcim.UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("err = %v, want UpstreamError", err)
	}
	if len(txns.created) != 0 {
		t.Fatal("no transaction may be persisted when the processor call fails")
	}
}

func TestInitializePersistFailureIsCritical(t *testing.T) {
	processor := &fakeProcessor{initResp: helcim.InitializeResponse{CheckoutToken: "chk-1", SecretToken: "sec-abc"}}
	txns := newFakeTxnStore()
	txns.createErr = errors.New("deadlock")
	svc := NewPaymentInitService(processor, newFakeInvoiceStore(dueInvoice("tok-1")), txns, clock.NewFixed(baseTime), "https://p.example.com")

	_, err := svc.Initialize(context.Background(), InitializeInput{Token: "tok-1"})
	var pe *PersistenceError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want PersistenceError", err)
	}
}

func TestReinitializeCreatesIndependentAttempt(t *testing.T) {
	invoices := newFakeInvoiceStore(dueInvoice("tok-1"))
	txns := newFakeTxnStore()
	processor := &fakeProcessor{initResp: helcim.InitializeResponse{CheckoutToken: "chk-1", SecretToken: "sec-1"}}
	svc := NewPaymentInitService(processor, invoices, txns, clock.NewFixed(baseTime), "https://p.example.com")

	if _, err := svc.Initialize(context.Background(), InitializeInput{Token: "tok-1"}); err != nil {
		t.Fatalf("first initialize: %v", err)
	}
	processor.initResp = helcim.InitializeResponse{CheckoutToken: "chk-2", SecretToken: "sec-2"}
	res, err := svc.Initialize(context.Background(), InitializeInput{Token: "tok-1"})
	if err != nil {
		t.Fatalf("second initialize: %v", err)
	}
	if res.CheckoutToken != "chk-2" {
		t.Fatalf("checkout token = %q", res.CheckoutToken)
	}
	if len(txns.created) != 2 {
		t.Fatalf("created %d transactions, want 2 independent attempts", len(txns.created))
	}
	if txns.created[0].TransactionID == txns.created[1].TransactionID {
		t.Fatal("placeholder ids must be unique per attempt")
	}
}
