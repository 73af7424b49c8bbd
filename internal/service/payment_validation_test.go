package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fieldserve/checkout-portal/internal/clock"
	"github.com/fieldserve/checkout-portal/internal/helcim"
	"github.com/fieldserve/checkout-portal/internal/model"
	"github.com/fieldserve/checkout-portal/internal/repository"
)

func pendingTxn(checkoutToken, secret string) model.PaymentTransaction {
	return model.PaymentTransaction{
		TransactionID:  "init-placeholder-1",
		CheckoutToken:  checkoutToken,
		SecretToken:    secret,
		InvoiceNumber:  "INV-100",
		CustomerCode:   "CUST-7",
		Amount:         decimal.RequireFromString("120.50"),
		Currency:       "CAD",
		Status:         model.TxnPending,
		TokenExpiresAt: baseTime.Add(time.Hour),
		CreatedAt:      baseTime,
	}
}

func outcomeFrom(t *testing.T, raw string) helcim.Outcome {
	t.Helper()
	var o helcim.Outcome
	if err := json.Unmarshal([]byte(raw), &o); err != nil {
		t.Fatalf("unmarshal outcome: %v", err)
	}
	return o
}

func matchingHash(t *testing.T, o helcim.Outcome, secret string) string {
	t.Helper()
	h, err := helcim.ComputeHash(o, secret)
	if err != nil {
		t.Fatalf("ComputeHash: %v", err)
	}
	return h
}

type validationFixture struct {
	svc       *PaymentValidationService
	txns      *fakeTxnStore
	invoices  *fakeInvoiceStore
	processor *fakeProcessor
	events    *fakePublisher
}

func newValidationFixture(txn model.PaymentTransaction) *validationFixture {
	f := &validationFixture{
		txns:      newFakeTxnStore(txn),
		invoices:  newFakeInvoiceStore(dueInvoice("tok-1")),
		processor: &fakeProcessor{},
		events:    &fakePublisher{},
	}
	clk := clock.NewFixed(baseTime)
	f.svc = NewPaymentValidationService(f.processor, f.txns, NewInvoiceReconciler(f.invoices, clk), clk, f.events)
	return f
}

func TestValidateApprovedCardSettlesInvoice(t *testing.T) {
	f := newValidationFixture(pendingTxn("chk-1", "sec-abc"))
	outcome := outcomeFrom(t, `{"transactionId":"25764674","status":"APPROVED","cardToken":"ct-9","approvalCode":"A1","avsResponse":"X","cvvResponse":"M"}`)
	f.processor.verifyHash = matchingHash(t, outcome, "sec-abc")

	res, err := f.svc.Validate(context.Background(), ValidateInput{
		RawOutcome: outcome, CheckoutToken: "chk-1", SecretToken: "sec-abc",
	})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !res.Success || res.AlreadyProcessed {
		t.Fatalf("result = %+v", res)
	}
	if res.TransactionID != "25764674" {
		t.Fatalf("transaction id = %q, want processor-assigned", res.TransactionID)
	}
	if res.PaymentType != model.PaymentCreditCard || res.Status != model.TxnApproved {
		t.Fatalf("type/status = %s/%s", res.PaymentType, res.Status)
	}

	txn, _ := f.txns.GetByCheckoutToken(context.Background(), "chk-1")
	if !txn.Finalized() || !txn.HashValidated {
		t.Fatalf("stored txn = %+v", txn)
	}
	if txn.Card == nil || txn.Card.CardToken != "ct-9" || txn.Card.ApprovalCode != "A1" {
		t.Fatalf("card detail = %+v", txn.Card)
	}

	inv, _ := f.invoices.GetByNumber(context.Background(), "INV-100")
	if inv.Status != model.InvoicePaid {
		t.Fatalf("invoice status = %s, want PAID", inv.Status)
	}
	if !inv.AmountPaid.Equal(inv.AmountDue) {
		t.Fatalf("amount paid = %s, want %s", inv.AmountPaid, inv.AmountDue)
	}
	if inv.DatePaid == nil {
		t.Fatal("date paid not stamped")
	}
	if len(f.events.validated) != 1 {
		t.Fatalf("published %d events, want 1", len(f.events.validated))
	}
}

func TestValidateHashMismatch(t *testing.T) {
	f := newValidationFixture(pendingTxn("chk-1", "sec-abc"))
	outcome := outcomeFrom(t, `{"transactionId":"25764674","status":"APPROVED"}`)
	f.processor.verifyHash = "completely-different-hash"

	res, err := f.svc.Validate(context.Background(), ValidateInput{
		RawOutcome: outcome, CheckoutToken: "chk-1", SecretToken: "sec-abc",
	})
	if err != nil {
		t.Fatalf("mismatch is not a transport error: %v", err)
	}
	if res.Success {
		t.Fatal("success = true on hash mismatch")
	}

	// The attempt is finalized for audit but the invoice is untouched.
	txn, _ := f.txns.GetByCheckoutToken(context.Background(), "chk-1")
	if !txn.Finalized() || txn.HashValidated {
		t.Fatalf("stored txn = %+v", txn)
	}
	inv, _ := f.invoices.GetByNumber(context.Background(), "INV-100")
	if inv.Status != model.InvoiceDue {
		t.Fatalf("invoice status = %s, want DUE", inv.Status)
	}
	if f.invoices.markPaidCalls != 0 {
		t.Fatal("MarkPaid must not run on a mismatch")
	}
}

func TestValidateForgedSecretCannotForceMatch(t *testing.T) {
	// The client claims a secret of its own choosing and reports a hash
	// computed with it. The local digest still uses the stored secret, so the
	// comparison fails.
	f := newValidationFixture(pendingTxn("chk-1", "sec-abc"))
	outcome := outcomeFrom(t, `{"transactionId":"25764674","status":"APPROVED"}`)
	f.processor.verifyHash = matchingHash(t, outcome, "attacker-secret")

	res, err := f.svc.Validate(context.Background(), ValidateInput{
		RawOutcome: outcome, CheckoutToken: "chk-1", SecretToken: "attacker-secret",
	})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if res.Success {
		t.Fatal("forged secret produced a successful validation")
	}
	inv, _ := f.invoices.GetByNumber(context.Background(), "INV-100")
	if inv.Status != model.InvoiceDue {
		t.Fatalf("invoice status = %s, want DUE", inv.Status)
	}
}

func TestValidateACHStaysPending(t *testing.T) {
	f := newValidationFixture(pendingTxn("chk-1", "sec-abc"))
	// bankToken implies ACH regardless of any claimed status.
	outcome := outcomeFrom(t, `{"transactionId":"88001","status":"APPROVED","bankToken":"bt-3","batchId":"b-12"}`)
	f.processor.verifyHash = matchingHash(t, outcome, "sec-abc")

	res, err := f.svc.Validate(context.Background(), ValidateInput{
		RawOutcome: outcome, CheckoutToken: "chk-1", SecretToken: "sec-abc",
	})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if res.PaymentType != model.PaymentACH {
		t.Fatalf("payment type = %s, want ACH", res.PaymentType)
	}
	if res.Status != model.TxnPending {
		t.Fatalf("status = %s, want PENDING until the batch clears", res.Status)
	}

	txn, _ := f.txns.GetByCheckoutToken(context.Background(), "chk-1")
	if txn.Bank == nil || txn.Bank.BankToken != "bt-3" || txn.Bank.BatchID != "b-12" {
		t.Fatalf("bank detail = %+v", txn.Bank)
	}
	// An accepted ACH debit settles the invoice optimistically.
	inv, _ := f.invoices.GetByNumber(context.Background(), "INV-100")
	if inv.Status != model.InvoicePaid {
		t.Fatalf("invoice status = %s, want PAID", inv.Status)
	}
}

func TestValidateDeclinedCardDoesNotSettle(t *testing.T) {
	f := newValidationFixture(pendingTxn("chk-1", "sec-abc"))
	outcome := outcomeFrom(t, `{"transactionId":"25764674","status":"DECLINED"}`)
	f.processor.verifyHash = matchingHash(t, outcome, "sec-abc")

	res, err := f.svc.Validate(context.Background(), ValidateInput{
		RawOutcome: outcome, CheckoutToken: "chk-1", SecretToken: "sec-abc",
	})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !res.Success || res.Status != model.TxnDeclined {
		t.Fatalf("result = %+v", res)
	}
	inv, _ := f.invoices.GetByNumber(context.Background(), "INV-100")
	if inv.Status != model.InvoiceDue {
		t.Fatalf("invoice status = %s, want DUE", inv.Status)
	}
}

func TestValidateUnrecognizedStatusTreatedAsDeclined(t *testing.T) {
	f := newValidationFixture(pendingTxn("chk-1", "sec-abc"))
	outcome := outcomeFrom(t, `{"transactionId":"25764674","status":"MAYBE"}`)
	f.processor.verifyHash = matchingHash(t, outcome, "sec-abc")

	res, err := f.svc.Validate(context.Background(), ValidateInput{
		RawOutcome: outcome, CheckoutToken: "chk-1", SecretToken: "sec-abc",
	})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if res.Status != model.TxnDeclined {
		t.Fatalf("status = %s, want DECLINED for unrecognized claim", res.Status)
	}
}

func TestValidateTwiceSettlesOnce(t *testing.T) {
	f := newValidationFixture(pendingTxn("chk-1", "sec-abc"))
	outcome := outcomeFrom(t, `{"transactionId":"25764674","status":"APPROVED"}`)
	f.processor.verifyHash = matchingHash(t, outcome, "sec-abc")
	in := ValidateInput{RawOutcome: outcome, CheckoutToken: "chk-1", SecretToken: "sec-abc"}

	first, err := f.svc.Validate(context.Background(), in)
	if err != nil {
		t.Fatalf("first validate: %v", err)
	}
	if !first.Success {
		t.Fatalf("first result = %+v", first)
	}

	second, err := f.svc.Validate(context.Background(), in)
	if err != nil {
		t.Fatalf("second validate: %v", err)
	}
	if !second.AlreadyProcessed {
		t.Fatalf("second result = %+v, want AlreadyProcessed", second)
	}
	if second.TransactionID != "25764674" {
		t.Fatalf("second transaction id = %q", second.TransactionID)
	}

	if f.invoices.markPaidCalls != 1 {
		t.Fatalf("MarkPaid calls = %d, want exactly 1", f.invoices.markPaidCalls)
	}
	if f.txns.finalizeCalls != 1 {
		t.Fatalf("Finalize calls = %d, the already-finalized short circuit must come first", f.txns.finalizeCalls)
	}
	if f.processor.verifyCalls != 1 {
		t.Fatalf("VerifyHash calls = %d, a replay must not hit the processor", f.processor.verifyCalls)
	}
}

func TestValidateUnknownCheckoutToken(t *testing.T) {
	f := newValidationFixture(pendingTxn("chk-1", "sec-abc"))
	outcome := outcomeFrom(t, `{"status":"APPROVED"}`)

	_, err := f.svc.Validate(context.Background(), ValidateInput{
		RawOutcome: outcome, CheckoutToken: "chk-unknown", SecretToken: "sec-abc",
	})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("err = %v, want ErrInvalidRequest", err)
	}
}

func TestValidateMissingFields(t *testing.T) {
	f := newValidationFixture(pendingTxn("chk-1", "sec-abc"))
	tests := []struct {
		name string
		in   ValidateInput
	}{
		{"no outcome", ValidateInput{CheckoutToken: "chk-1", SecretToken: "s"}},
		{"no checkout token", ValidateInput{RawOutcome: outcomeFrom(t, `{"a":1}`), SecretToken: "s"}},
		{"no secret", ValidateInput{RawOutcome: outcomeFrom(t, `{"a":1}`), CheckoutToken: "chk-1"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.svc.Validate(context.Background(), tc.in); !errors.Is(err, ErrInvalidRequest) {
				t.Fatalf("err = %v, want ErrInvalidRequest", err)
			}
		})
	}
}

func TestValidateProcessorUnreachableLeavesStateUntouched(t *testing.T) {
	f := newValidationFixture(pendingTxn("chk-1", "sec-abc"))
	f.processor.verifyErr = &helcim.UpstreamError{Message: "connection refused"}
	outcome := outcomeFrom(t, `{"transactionId":"25764674","status":"APPROVED"}`)

	_, err := f.svc.Validate(context.Background(), ValidateInput{
		RawOutcome: outcome, CheckoutToken: "chk-1", SecretToken: "sec-abc",
	})
	var ue *helcim.UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("err = %v, want UpstreamError", err)
	}

	txn, _ := f.txns.GetByCheckoutToken(context.Background(), "chk-1")
	if txn.Finalized() {
		t.Fatal("transaction finalized despite unreachable processor")
	}
	inv, _ := f.invoices.GetByNumber(context.Background(), "INV-100")
	if inv.Status != model.InvoiceDue {
		t.Fatalf("invoice status = %s, want DUE", inv.Status)
	}
}

func TestValidateConcurrentLoserReturnsAlreadyProcessed(t *testing.T) {
	// Both requests pass the Finalized() pre-check; the loser's conditional
	// update matches zero rows and must resolve to the winner's committed
	// outcome instead of failing the request.
	f := newValidationFixture(pendingTxn("chk-1", "sec-abc"))
	outcome := outcomeFrom(t, `{"transactionId":"25764674","status":"APPROVED"}`)
	f.processor.verifyHash = matchingHash(t, outcome, "sec-abc")

	// The winner commits between this request's pre-check and its finalize:
	// the hook fires just as the loser's conditional write runs.
	f.txns.finalizeErr = repository.ErrDuplicateTransaction
	f.txns.finalizeHook = func() {
		fin := baseTime
		stored := f.txns.byCheckout["chk-1"]
		stored.TransactionID = "25764674"
		stored.PaymentType = model.PaymentCreditCard
		stored.Status = model.TxnApproved
		stored.HashValidated = true
		stored.FinalizedAt = &fin
	}

	res, err := f.svc.Validate(context.Background(), ValidateInput{
		RawOutcome: outcome, CheckoutToken: "chk-1", SecretToken: "sec-abc",
	})
	if err != nil {
		t.Fatalf("loser validate: %v", err)
	}
	if !res.AlreadyProcessed || !res.Success {
		t.Fatalf("loser result = %+v, want winner's committed outcome", res)
	}
	if f.invoices.markPaidCalls != 0 {
		t.Fatalf("loser applied the invoice transition %d times", f.invoices.markPaidCalls)
	}
}

func TestValidateMissingTransactionIDKeepsPlaceholder(t *testing.T) {
	f := newValidationFixture(pendingTxn("chk-1", "sec-abc"))
	outcome := outcomeFrom(t, `{"status":"APPROVED"}`)
	f.processor.verifyHash = matchingHash(t, outcome, "sec-abc")

	res, err := f.svc.Validate(context.Background(), ValidateInput{
		RawOutcome: outcome, CheckoutToken: "chk-1", SecretToken: "sec-abc",
	})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if res.TransactionID != "init-placeholder-1" {
		t.Fatalf("transaction id = %q, want retained placeholder", res.TransactionID)
	}
}
