package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"

	"github.com/fieldserve/checkout-portal/internal/model"
)

// TransactionRepo provides data access to the payment_transactions table.
// Uniqueness on transaction_id and checkout_token is the enforcement
// mechanism for "exactly one finalize wins": a duplicate-key violation on
// either column surfaces as ErrDuplicateTransaction, which callers treat as
// "already processed".
type TransactionRepo struct {
	db *sql.DB
}

// NewTransactionRepo returns a new TransactionRepo bound to the provided database.
func NewTransactionRepo(db *sql.DB) *TransactionRepo { return &TransactionRepo{db: db} }

const mysqlDuplicateEntry = 1062

func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}

// Create inserts a PENDING transaction carrying the processor's verification
// secret. The secret_token column never leaves the server boundary.
func (r *TransactionRepo) Create(ctx context.Context, t model.PaymentTransaction) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO payment_transactions
		 (transaction_id, checkout_token, secret_token, invoice_number, customer_code,
		  amount, currency, status, hash_validated, token_expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TransactionID, t.CheckoutToken, t.SecretToken, t.InvoiceNumber, t.CustomerCode,
		t.Amount.String(), t.Currency, t.Status, t.HashValidated, t.TokenExpiresAt, t.CreatedAt)
	if isDuplicateKey(err) {
		return ErrDuplicateTransaction
	}
	return err
}

const txnColumns = `id, transaction_id, checkout_token, secret_token, invoice_number, customer_code,
	amount, currency, payment_type, status, hash_validated,
	card_token, avs_response, cvv_response, approval_code, bank_token, batch_id,
	token_expires_at, finalized_at, created_at`

func scanTransaction(row *sql.Row) (model.PaymentTransaction, error) {
	var t model.PaymentTransaction
	var amount string
	var paymentType sql.NullString
	var cardToken, avs, cvv, approval, bankToken, batchID sql.NullString
	err := row.Scan(&t.ID, &t.TransactionID, &t.CheckoutToken, &t.SecretToken,
		&t.InvoiceNumber, &t.CustomerCode, &amount, &t.Currency, &paymentType,
		&t.Status, &t.HashValidated,
		&cardToken, &avs, &cvv, &approval, &bankToken, &batchID,
		&t.TokenExpiresAt, &t.FinalizedAt, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PaymentTransaction{}, ErrTransactionNotFound
	}
	if err != nil {
		return model.PaymentTransaction{}, err
	}
	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return model.PaymentTransaction{}, err
	}
	t.PaymentType = model.PaymentType(paymentType.String)
	if cardToken.Valid || avs.Valid || cvv.Valid || approval.Valid {
		t.Card = &model.CardDetail{
			CardToken:    cardToken.String,
			AVSResponse:  avs.String,
			CVVResponse:  cvv.String,
			ApprovalCode: approval.String,
		}
	}
	if bankToken.Valid || batchID.Valid {
		t.Bank = &model.BankDetail{BankToken: bankToken.String, BatchID: batchID.String}
	}
	return t, nil
}

// GetByCheckoutToken loads the transaction opened for the given checkout
// token. This is how validation recovers the server-persisted secret.
func (r *TransactionRepo) GetByCheckoutToken(ctx context.Context, checkoutToken string) (model.PaymentTransaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+txnColumns+` FROM payment_transactions WHERE checkout_token = ?`, checkoutToken)
	return scanTransaction(row)
}

// GetByTransactionID loads a transaction by the processor-assigned id.
func (r *TransactionRepo) GetByTransactionID(ctx context.Context, transactionID string) (model.PaymentTransaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+txnColumns+` FROM payment_transactions WHERE transaction_id = ?`, transactionID)
	return scanTransaction(row)
}

// Finalize settles a PENDING transaction with a single conditional update:
// the placeholder transaction id is replaced by the processor-assigned one,
// the sub-status and audit flag are recorded, and finalized_at marks the row
// terminal. The finalized_at IS NULL condition serializes concurrent
// validation attempts; the unique index on transaction_id catches a
// processor id reappearing under a different checkout token. A second
// attempt for the same checkout token or transaction id returns
// ErrDuplicateTransaction.
func (r *TransactionRepo) Finalize(ctx context.Context, p model.Finalization) error {
	var cardToken, avs, cvv, approval, bankToken, batchID *string
	if p.Card != nil {
		cardToken, avs, cvv, approval = &p.Card.CardToken, &p.Card.AVSResponse, &p.Card.CVVResponse, &p.Card.ApprovalCode
	}
	if p.Bank != nil {
		bankToken, batchID = &p.Bank.BankToken, &p.Bank.BatchID
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE payment_transactions
		 SET transaction_id = ?, payment_type = ?, status = ?, hash_validated = ?,
		     card_token = ?, avs_response = ?, cvv_response = ?, approval_code = ?,
		     bank_token = ?, batch_id = ?, finalized_at = ?
		 WHERE checkout_token = ? AND finalized_at IS NULL`,
		p.TransactionID, p.PaymentType, p.Status, p.HashValidated,
		cardToken, avs, cvv, approval, bankToken, batchID, p.FinalizedAt,
		p.CheckoutToken)
	if isDuplicateKey(err) {
		return ErrDuplicateTransaction
	}
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrDuplicateTransaction
	}
	return nil
}

// ListUnreconciled returns PENDING transactions whose verification secret has
// expired: payment attempts the processor may have settled but the portal
// never validated. Exposed to operators so the reconciliation gap is
// observable.
func (r *TransactionRepo) ListUnreconciled(ctx context.Context, now time.Time) ([]model.PaymentTransaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+txnColumns+` FROM payment_transactions
		 WHERE finalized_at IS NULL AND token_expires_at <= ?
		 ORDER BY created_at`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.PaymentTransaction
	for rows.Next() {
		var t model.PaymentTransaction
		var amount string
		var paymentType sql.NullString
		var cardToken, avs, cvv, approval, bankToken, batchID sql.NullString
		if err := rows.Scan(&t.ID, &t.TransactionID, &t.CheckoutToken, &t.SecretToken,
			&t.InvoiceNumber, &t.CustomerCode, &amount, &t.Currency, &paymentType,
			&t.Status, &t.HashValidated,
			&cardToken, &avs, &cvv, &approval, &bankToken, &batchID,
			&t.TokenExpiresAt, &t.FinalizedAt, &t.CreatedAt); err != nil {
			return nil, err
		}
		if t.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, err
		}
		t.PaymentType = model.PaymentType(paymentType.String)
		// Secret stays server-side even on the operator surface.
		t.SecretToken = ""
		out = append(out, t)
	}
	return out, rows.Err()
}
