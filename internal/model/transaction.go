package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentType classifies how a payment outcome was funded. The type is
// derived structurally from the outcome payload (presence of a bank token),
// never from a client-supplied flag.
type PaymentType string

const (
	PaymentCreditCard PaymentType = "CREDIT_CARD"
	PaymentACH        PaymentType = "ACH"
)

// Payment-type-specific sub-statuses. Credit cards settle to APPROVED or
// DECLINED at validation time; ACH stays PENDING until the batch clears.
const (
	TxnPending  = "PENDING"
	TxnApproved = "APPROVED"
	TxnDeclined = "DECLINED"
	TxnCleared  = "CLEARED"
)

// ValidTxnStatus reports whether status is legal for the given payment type.
func ValidTxnStatus(pt PaymentType, status string) bool {
	switch pt {
	case PaymentCreditCard:
		return status == TxnPending || status == TxnApproved || status == TxnDeclined
	case PaymentACH:
		return status == TxnPending || status == TxnCleared
	}
	return false
}

// CardDetail holds the card-specific audit fields recorded on a finalized
// credit-card transaction.
type CardDetail struct {
	CardToken    string // processor card token
	AVSResponse  string // address verification result
	CVVResponse  string // CVV verification result
	ApprovalCode string // issuer approval code
}

// BankDetail holds the ACH-specific audit fields recorded on a finalized
// bank-transfer transaction.
type BankDetail struct {
	BankToken string // processor bank account token
	BatchID   string // settlement batch identifier
}

// PaymentTransaction is one payment attempt against an invoice. A row is
// created PENDING at initialization with a synthetic placeholder id and is
// finalized exactly once at validation, when the processor-assigned
// transaction id, the sub-status and the hash audit flag are recorded.
//
// SecretToken must never leave the server. It is the keying material for
// hash verification and expires 60 minutes after issuance.
type PaymentTransaction struct {
	ID             uint64          // payment_transactions.id
	TransactionID  string          // payment_transactions.transaction_id (unique)
	CheckoutToken  string          // payment_transactions.checkout_token (unique)
	SecretToken    string          // payment_transactions.secret_token (server-only)
	InvoiceNumber  string          // payment_transactions.invoice_number
	CustomerCode   string          // payment_transactions.customer_code
	Amount         decimal.Decimal // payment_transactions.amount
	Currency       string          // payment_transactions.currency
	PaymentType    PaymentType     // payment_transactions.payment_type (set at finalization)
	Status         string          // payment_transactions.status
	HashValidated  bool            // payment_transactions.hash_validated (written once, never retracted)
	Card           *CardDetail     // card sub-detail (credit card only)
	Bank           *BankDetail     // bank sub-detail (ACH only)
	TokenExpiresAt time.Time       // payment_transactions.token_expires_at
	FinalizedAt    *time.Time      // payment_transactions.finalized_at (nullable)
	CreatedAt      time.Time       // payment_transactions.created_at
}

// Finalized reports whether the transaction has left PENDING. FINALIZED is
// terminal in both the valid and invalid branches.
func (t PaymentTransaction) Finalized() bool {
	return t.FinalizedAt != nil
}

// Finalization carries everything recorded when a PENDING transaction is
// settled: the processor-assigned id replacing the placeholder, the
// payment-type-specific sub-status, the hash audit flag and the sub-detail
// for exactly one payment type.
type Finalization struct {
	CheckoutToken string
	TransactionID string
	PaymentType   PaymentType
	Status        string
	HashValidated bool
	Card          *CardDetail
	Bank          *BankDetail
	FinalizedAt   time.Time
}
