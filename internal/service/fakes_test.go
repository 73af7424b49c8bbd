package service

// In-memory fakes for the store and processor contracts. They reproduce the
// conditional-write semantics of the SQL repositories (zero matched rows
// surfaces as ErrStaleWrite, duplicate finalization as
// ErrDuplicateTransaction) so the services can be tested against the same
// failure shapes they see in production.

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fieldserve/checkout-portal/internal/helcim"
	"github.com/fieldserve/checkout-portal/internal/model"
	"github.com/fieldserve/checkout-portal/internal/queue"
	"github.com/fieldserve/checkout-portal/internal/repository"
)

type fakeSessionStore struct {
	sessions         map[string]*model.TokenSession
	markExpiredCalls []string
	markExpiredErr   error
	writeErr         error // forced result of the next conditional write
	writeCalls       int   // conditional write attempts, successful or not
}

func newFakeSessionStore(sessions ...model.TokenSession) *fakeSessionStore {
	st := &fakeSessionStore{sessions: map[string]*model.TokenSession{}}
	for i := range sessions {
		s := sessions[i]
		st.sessions[s.Token] = &s
	}
	return st
}

func (st *fakeSessionStore) GetByToken(_ context.Context, token string) (model.TokenSession, error) {
	s, ok := st.sessions[token]
	if !ok {
		return model.TokenSession{}, repository.ErrSessionNotFound
	}
	return *s, nil
}

func (st *fakeSessionStore) MarkExpired(_ context.Context, token string, _ time.Time) error {
	st.markExpiredCalls = append(st.markExpiredCalls, token)
	if st.markExpiredErr != nil {
		return st.markExpiredErr
	}
	if s, ok := st.sessions[token]; ok {
		if s.Status == model.SessionActive || s.Status == model.SessionScheduled {
			s.Status = model.SessionExpired
		}
	}
	return nil
}

func (st *fakeSessionStore) conditional(token string, now time.Time, apply func(*model.TokenSession)) error {
	st.writeCalls++
	if st.writeErr != nil {
		return st.writeErr
	}
	s, ok := st.sessions[token]
	if !ok || s.Status != model.SessionActive || !s.ExpiresAt.After(now) {
		return repository.ErrStaleWrite
	}
	apply(s)
	return nil
}

func (st *fakeSessionStore) Schedule(_ context.Context, token string, date, now time.Time) error {
	return st.conditional(token, now, func(s *model.TokenSession) {
		s.Status = model.SessionScheduled
		s.ScheduledDate = &date
	})
}

func (st *fakeSessionStore) UpdateNotes(_ context.Context, token, notes string, now time.Time) error {
	return st.conditional(token, now, func(s *model.TokenSession) { s.Notes = &notes })
}

func (st *fakeSessionStore) UpdateServices(_ context.Context, token, services string, now time.Time) error {
	return st.conditional(token, now, func(s *model.TokenSession) { s.SelectedServices = &services })
}

func (st *fakeSessionStore) UpdateStatus(_ context.Context, token string, from, to model.SessionStatus, now time.Time) error {
	st.writeCalls++
	if st.writeErr != nil {
		return st.writeErr
	}
	s, ok := st.sessions[token]
	if !ok || s.Status != from || !s.ExpiresAt.After(now) {
		return repository.ErrStaleWrite
	}
	s.Status = to
	return nil
}

type fakeInvoiceStore struct {
	invoices          map[string]*model.Invoice // keyed by invoice number
	byToken           map[string]string
	markPaidCalls     int
	markDueCalls      int
	updateStatusCalls int
	err               error // forced result of every call
}

func newFakeInvoiceStore(invoices ...model.Invoice) *fakeInvoiceStore {
	st := &fakeInvoiceStore{invoices: map[string]*model.Invoice{}, byToken: map[string]string{}}
	for i := range invoices {
		inv := invoices[i]
		st.invoices[inv.InvoiceNumber] = &inv
		if inv.Token != "" {
			st.byToken[inv.Token] = inv.InvoiceNumber
		}
	}
	return st
}

func (st *fakeInvoiceStore) GetByToken(_ context.Context, token string) (model.Invoice, error) {
	if st.err != nil {
		return model.Invoice{}, st.err
	}
	num, ok := st.byToken[token]
	if !ok {
		return model.Invoice{}, repository.ErrInvoiceNotFound
	}
	return *st.invoices[num], nil
}

func (st *fakeInvoiceStore) GetByNumber(_ context.Context, invoiceNumber string) (model.Invoice, error) {
	if st.err != nil {
		return model.Invoice{}, st.err
	}
	inv, ok := st.invoices[invoiceNumber]
	if !ok {
		return model.Invoice{}, repository.ErrInvoiceNotFound
	}
	return *inv, nil
}

func (st *fakeInvoiceStore) MarkPaid(_ context.Context, invoiceNumber string, amountPaid decimal.Decimal, datePaid time.Time) error {
	st.markPaidCalls++
	if st.err != nil {
		return st.err
	}
	inv, ok := st.invoices[invoiceNumber]
	if !ok || inv.Status == model.InvoicePaid {
		return repository.ErrStaleWrite
	}
	inv.Status = model.InvoicePaid
	inv.AmountPaid = amountPaid
	inv.DatePaid = &datePaid
	return nil
}

func (st *fakeInvoiceStore) MarkDue(_ context.Context, invoiceNumber string, now time.Time) error {
	st.markDueCalls++
	if st.err != nil {
		return st.err
	}
	inv, ok := st.invoices[invoiceNumber]
	if !ok || inv.Status != model.InvoicePaid {
		return repository.ErrStaleWrite
	}
	inv.Status = model.InvoiceDue
	inv.AmountPaid = decimal.Zero
	inv.DatePaid = nil
	return nil
}

func (st *fakeInvoiceStore) UpdateStatus(_ context.Context, invoiceNumber string, status model.InvoiceStatus, _ time.Time) error {
	st.updateStatusCalls++
	if st.err != nil {
		return st.err
	}
	inv, ok := st.invoices[invoiceNumber]
	if !ok {
		return repository.ErrStaleWrite
	}
	inv.Status = status
	return nil
}

type fakeTxnStore struct {
	byCheckout    map[string]*model.PaymentTransaction
	created       []model.PaymentTransaction
	finalizeCalls int
	createErr     error
	finalizeErr   error
	finalizeHook  func() // runs before Finalize evaluates, for race simulation
}

func newFakeTxnStore(txns ...model.PaymentTransaction) *fakeTxnStore {
	st := &fakeTxnStore{byCheckout: map[string]*model.PaymentTransaction{}}
	for i := range txns {
		t := txns[i]
		st.byCheckout[t.CheckoutToken] = &t
	}
	return st
}

func (st *fakeTxnStore) Create(_ context.Context, t model.PaymentTransaction) error {
	if st.createErr != nil {
		return st.createErr
	}
	if _, ok := st.byCheckout[t.CheckoutToken]; ok {
		return repository.ErrDuplicateTransaction
	}
	st.created = append(st.created, t)
	cp := t
	st.byCheckout[t.CheckoutToken] = &cp
	return nil
}

func (st *fakeTxnStore) GetByCheckoutToken(_ context.Context, checkoutToken string) (model.PaymentTransaction, error) {
	t, ok := st.byCheckout[checkoutToken]
	if !ok {
		return model.PaymentTransaction{}, repository.ErrTransactionNotFound
	}
	return *t, nil
}

func (st *fakeTxnStore) Finalize(_ context.Context, p model.Finalization) error {
	st.finalizeCalls++
	if st.finalizeHook != nil {
		st.finalizeHook()
	}
	if st.finalizeErr != nil {
		return st.finalizeErr
	}
	t, ok := st.byCheckout[p.CheckoutToken]
	if !ok || t.Finalized() {
		return repository.ErrDuplicateTransaction
	}
	for _, other := range st.byCheckout {
		if other.CheckoutToken != p.CheckoutToken && other.TransactionID == p.TransactionID {
			return repository.ErrDuplicateTransaction
		}
	}
	fin := p.FinalizedAt
	t.TransactionID = p.TransactionID
	t.PaymentType = p.PaymentType
	t.Status = p.Status
	t.HashValidated = p.HashValidated
	t.Card = p.Card
	t.Bank = p.Bank
	t.FinalizedAt = &fin
	return nil
}

func (st *fakeTxnStore) ListUnreconciled(_ context.Context, now time.Time) ([]model.PaymentTransaction, error) {
	var out []model.PaymentTransaction
	for _, t := range st.byCheckout {
		if !t.Finalized() && !t.TokenExpiresAt.After(now) {
			cp := *t
			cp.SecretToken = ""
			out = append(out, cp)
		}
	}
	return out, nil
}

type fakeProcessor struct {
	initResp    helcim.InitializeResponse
	initErr     error
	initCalls   int
	lastInit    helcim.InitializeRequest
	verifyHash  string
	verifyErr   error
	verifyCalls int
}

func (p *fakeProcessor) Initialize(_ context.Context, req helcim.InitializeRequest) (helcim.InitializeResponse, error) {
	p.initCalls++
	p.lastInit = req
	if p.initErr != nil {
		return helcim.InitializeResponse{}, p.initErr
	}
	return p.initResp, nil
}

func (p *fakeProcessor) VerifyHash(_ context.Context, _, _ string) (string, error) {
	p.verifyCalls++
	if p.verifyErr != nil {
		return "", p.verifyErr
	}
	return p.verifyHash, nil
}

type fakePublisher struct {
	validated []queue.PaymentValidatedEvent
	scheduled []queue.SessionScheduledEvent
	err       error
}

func (p *fakePublisher) PaymentValidated(_ context.Context, ev queue.PaymentValidatedEvent) error {
	p.validated = append(p.validated, ev)
	return p.err
}

func (p *fakePublisher) SessionScheduled(_ context.Context, ev queue.SessionScheduledEvent) error {
	p.scheduled = append(p.scheduled, ev)
	return p.err
}
