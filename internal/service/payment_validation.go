package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/fieldserve/checkout-portal/internal/clock"
	"github.com/fieldserve/checkout-portal/internal/helcim"
	"github.com/fieldserve/checkout-portal/internal/logger"
	"github.com/fieldserve/checkout-portal/internal/model"
	"github.com/fieldserve/checkout-portal/internal/queue"
	"github.com/fieldserve/checkout-portal/internal/repository"
)

// Reconciler applies the financial consequence of a validated payment.
// Satisfied by InvoiceReconciler.
type Reconciler interface {
	ApplyPaymentOutcome(ctx context.Context, invoiceNumber string, newStatus model.InvoiceStatus, transactionID string) error
}

// PaymentValidationService is the trust boundary of the payment flow. The
// client is untrusted: the only way to authenticate its reported outcome is
// to reproduce a keyed hash using the secret the client never saw, and to
// cross-check it against the hash the processor reports server-to-server.
type PaymentValidationService struct {
	processor  ProcessorClient
	txns       TransactionStore
	reconciler Reconciler
	clock      clock.Clock
	events     EventPublisher
}

// NewPaymentValidationService constructs a PaymentValidationService. events
// may be nil to disable broker notifications.
func NewPaymentValidationService(processor ProcessorClient, txns TransactionStore, reconciler Reconciler, clk clock.Clock, events EventPublisher) *PaymentValidationService {
	if processor == nil || txns == nil || reconciler == nil || clk == nil {
		panic("nil dependency passed to NewPaymentValidationService")
	}
	return &PaymentValidationService{processor: processor, txns: txns, reconciler: reconciler, clock: clk, events: events}
}

// ValidateInput is the client-reported payment outcome. SecretToken is the
// value the hosted widget echoed back: it is used only for the processor
// verification round trip, never for local hashing: a forged client must
// not be able to substitute its own secret into the digest.
type ValidateInput struct {
	RawOutcome    helcim.Outcome
	CheckoutToken string
	SecretToken   string
}

// ValidateResult reports the committed outcome. Success is false on hash
// mismatch even though no error is returned; callers must check the flag,
// not just the absence of an error.
type ValidateResult struct {
	Success          bool
	AlreadyProcessed bool
	TransactionID    string
	PaymentType      model.PaymentType
	Status           string
}

// Validate authenticates a client-reported payment outcome and, exactly
// once per transaction, commits it:
//
//  1. classify the payment type structurally (bank token field implies ACH),
//  2. recompute the keyed hash over the canonical outcome with the
//     server-persisted secret,
//  3. obtain the processor's own hash server-to-server,
//  4. persist the audit flag and, only on a match, apply the invoice
//     transition.
//
// A duplicate report for an already-finalized transaction short-circuits to
// AlreadyProcessed without re-applying any financial mutation. If the
// processor hash endpoint is unreachable no state changes at all.
func (s *PaymentValidationService) Validate(ctx context.Context, in ValidateInput) (ValidateResult, error) {
	if len(in.RawOutcome) == 0 || in.CheckoutToken == "" || in.SecretToken == "" {
		return ValidateResult{}, fmt.Errorf("%w: rawDataResponse, checkoutToken and secretToken are required", ErrInvalidRequest)
	}

	stored, err := s.txns.GetByCheckoutToken(ctx, in.CheckoutToken)
	if err != nil {
		if errors.Is(err, repository.ErrTransactionNotFound) {
			return ValidateResult{}, fmt.Errorf("%w: unknown checkout token", ErrInvalidRequest)
		}
		return ValidateResult{}, err
	}
	if stored.Finalized() {
		return alreadyProcessed(stored), nil
	}

	paymentType := classifyOutcome(in.RawOutcome)

	// Local hash always uses the secret persisted at initialization. The
	// client-claimed secret only drives the upstream round trip below; this
	// asymmetry is intentional.
	localHash, err := helcim.ComputeHash(in.RawOutcome, stored.SecretToken)
	if err != nil {
		return ValidateResult{}, fmt.Errorf("%w: malformed outcome payload", ErrInvalidRequest)
	}
	processorHash, err := s.processor.VerifyHash(ctx, in.CheckoutToken, in.SecretToken)
	if err != nil {
		// Validation cannot proceed; no state mutation has occurred.
		return ValidateResult{}, err
	}
	isValid := subtle.ConstantTimeCompare([]byte(localHash), []byte(processorHash)) == 1

	txnID := in.RawOutcome.String("transactionId")
	if txnID == "" {
		txnID = stored.TransactionID
	}
	status := settlementStatus(paymentType, in.RawOutcome)

	fin := model.Finalization{
		CheckoutToken: in.CheckoutToken,
		TransactionID: txnID,
		PaymentType:   paymentType,
		Status:        status,
		HashValidated: isValid,
		FinalizedAt:   s.clock.Now(),
	}
	switch paymentType {
	case model.PaymentCreditCard:
		fin.Card = &model.CardDetail{
			CardToken:    in.RawOutcome.String("cardToken"),
			AVSResponse:  in.RawOutcome.String("avsResponse"),
			CVVResponse:  in.RawOutcome.String("cvvResponse"),
			ApprovalCode: in.RawOutcome.String("approvalCode"),
		}
	case model.PaymentACH:
		fin.Bank = &model.BankDetail{
			BankToken: in.RawOutcome.String("bankToken"),
			BatchID:   in.RawOutcome.String("batchId"),
		}
	}

	if err := s.txns.Finalize(ctx, fin); err != nil {
		if errors.Is(err, repository.ErrDuplicateTransaction) {
			// A concurrent attempt won the conditional update, or the
			// processor reused a transaction id. Either way the first
			// finalize stands.
			if committed, getErr := s.txns.GetByCheckoutToken(ctx, in.CheckoutToken); getErr == nil && committed.Finalized() {
				return alreadyProcessed(committed), nil
			}
			return ValidateResult{AlreadyProcessed: true, TransactionID: txnID, PaymentType: paymentType, Status: status}, nil
		}
		return ValidateResult{}, err
	}

	if isValid && settles(paymentType, status) {
		if err := s.reconciler.ApplyPaymentOutcome(ctx, stored.InvoiceNumber, model.InvoicePaid, txnID); err != nil {
			if errors.Is(err, ErrAlreadyProcessed) {
				// Another transaction already settled this invoice; the
				// finalized audit row stands on its own.
				logger.LogError("service", "Validate", "invoice already settled",
					map[string]any{"invoice": stored.InvoiceNumber, "transaction_id": txnID}, err)
			} else {
				perr := &PersistenceError{Op: "apply payment outcome", Err: err}
				logger.LogCritical("service", "Validate", "validated payment not reflected on invoice",
					map[string]any{"invoice": stored.InvoiceNumber, "transaction_id": txnID}, perr)
				return ValidateResult{}, perr
			}
		}
	} else if !isValid {
		logger.LogError("service", "Validate", "hash mismatch",
			map[string]any{"invoice": stored.InvoiceNumber, "checkout_token": in.CheckoutToken},
			errors.New("local hash does not match processor hash"))
	}

	s.publishValidated(ctx, stored, txnID, paymentType, status, isValid)

	return ValidateResult{
		Success:       isValid,
		TransactionID: txnID,
		PaymentType:   paymentType,
		Status:        status,
	}, nil
}

func alreadyProcessed(t model.PaymentTransaction) ValidateResult {
	return ValidateResult{
		Success:          t.HashValidated,
		AlreadyProcessed: true,
		TransactionID:    t.TransactionID,
		PaymentType:      t.PaymentType,
		Status:           t.Status,
	}
}

// classifyOutcome derives the payment type from the shape of the outcome.
// The presence of a bank token implies ACH; anything else is a credit card.
// A client-supplied type flag would be attacker-controlled, so it is never
// consulted.
func classifyOutcome(o helcim.Outcome) model.PaymentType {
	if o.Has("bankToken") {
		return model.PaymentACH
	}
	return model.PaymentCreditCard
}

// settlementStatus maps the claimed outcome status onto the payment-type
// machine. Credit cards settle immediately to APPROVED or DECLINED; an
// unrecognized claim is treated as DECLINED. ACH stays PENDING until the
// batch clears regardless of what the widget claims.
func settlementStatus(pt model.PaymentType, o helcim.Outcome) string {
	if pt == model.PaymentACH {
		return model.TxnPending
	}
	if claimed := o.String("status"); model.ValidTxnStatus(pt, claimed) && claimed != model.TxnPending {
		return claimed
	}
	return model.TxnDeclined
}

// settles reports whether a finalized status moves money: an approved card
// charge, or an ACH debit that has been accepted into a batch.
func settles(pt model.PaymentType, status string) bool {
	switch pt {
	case model.PaymentCreditCard:
		return status == model.TxnApproved
	case model.PaymentACH:
		return status == model.TxnPending || status == model.TxnCleared
	}
	return false
}

func (s *PaymentValidationService) publishValidated(ctx context.Context, stored model.PaymentTransaction, txnID string, pt model.PaymentType, status string, isValid bool) {
	if s.events == nil {
		return
	}
	ev := queue.PaymentValidatedEvent{
		TransactionID: txnID,
		CheckoutToken: stored.CheckoutToken,
		InvoiceNumber: stored.InvoiceNumber,
		CustomerCode:  stored.CustomerCode,
		PaymentType:   string(pt),
		Status:        status,
		Amount:        stored.Amount.String(),
		Currency:      stored.Currency,
		HashValidated: isValid,
		ValidatedAt:   s.clock.Now().Format(time.RFC3339),
	}
	if err := s.events.PaymentValidated(ctx, ev); err != nil {
		logger.LogError("service", "publishValidated", "publish event",
			map[string]any{"transaction_id": txnID}, err)
	}
}
