// Package transactionsearch is the "Get KCB Payments" dialog of a sales
// invoice: search payment transactions, pick one, reconcile it against the
// invoice.
package transactionsearch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"kcb-payments-workbench/internal/notice"
	"kcb-payments-workbench/internal/rpc"
	"kcb-payments-workbench/internal/services/matching"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrEmptyCriteria    = errors.New("transactionsearch: at least one search criteria is required")
	ErrUnknownCandidate = errors.New("transactionsearch: transaction is not among the search results")
	ErrNotAvailable     = errors.New("transactionsearch: invoice cannot take KCB payments")
)

type Backend interface {
	SearchTransactions(ctx context.Context, args rpc.TransactionSearchArgs) ([]rpc.PaymentTransaction, error)
	ProcessPayment(ctx context.Context, args rpc.ProcessPaymentArgs) (rpc.ProcessPaymentResult, error)
	SalesInvoice(ctx context.Context, name string) (rpc.SalesInvoice, error)
}

var _ Backend = (*rpc.Client)(nil)

// Available reports whether the invoice offers the dialog: submitted, not a
// return, still owing money.
func Available(inv rpc.SalesInvoice) bool {
	return inv.DocStatus == 1 && inv.IsReturn == 0 && inv.OutstandingAmount.IsPositive()
}

// Criteria are the search dialog fields. A zero amount counts as unset.
type Criteria struct {
	CustomerName       string           `json:"customer_name"`
	PhoneNumber        string           `json:"phone_number"`
	Amount             *decimal.Decimal `json:"amount"`
	MpesaTransactionID string           `json:"mpesa_transaction_id"`
}

func (c Criteria) IsEmpty() bool {
	return strings.TrimSpace(c.CustomerName) == "" &&
		strings.TrimSpace(c.PhoneNumber) == "" &&
		(c.Amount == nil || c.Amount.IsZero()) &&
		strings.TrimSpace(c.MpesaTransactionID) == ""
}

func (c Criteria) Args() rpc.TransactionSearchArgs {
	args := rpc.TransactionSearchArgs{
		PhoneNumber:              strings.TrimSpace(c.PhoneNumber),
		Name:                     strings.TrimSpace(c.CustomerName),
		OriginatorConversationID: strings.TrimSpace(c.MpesaTransactionID),
	}
	if c.Amount != nil && !c.Amount.IsZero() {
		args.Amount = c.Amount
	}
	return args
}

// Candidate is one search hit with its match against the invoice.
type Candidate struct {
	rpc.PaymentTransaction
	Score    float64 `json:"score"`
	Decision string  `json:"decision"`
}

var (
	emptyCriteria = notice.Notice{Level: notice.Error, Title: "Validation Error", Message: "Please enter at least one search criteria."}
	noResults     = notice.Notice{Level: notice.Info, Title: "No Results", Message: "No matching payments found for the given criteria."}
	reconciled    = notice.Notice{Level: notice.Success, Title: "Success", Message: "Payment reconciled successfully."}
)

const reconcileFailed = "An error occurred while reconciling the payment."

type Dialog struct {
	backend  Backend
	notifier notice.Notifier
	log      *zap.Logger

	mu         sync.Mutex
	invoice    rpc.SalesInvoice
	open       bool
	candidates []Candidate
}

type Option func(*Dialog)

func WithNotifier(n notice.Notifier) Option {
	return func(d *Dialog) { d.notifier = n }
}

func WithLogger(l *zap.Logger) Option {
	return func(d *Dialog) { d.log = l }
}

func NewDialog(backend Backend, invoice rpc.SalesInvoice, opts ...Option) *Dialog {
	d := &Dialog{
		backend:  backend,
		invoice:  invoice,
		notifier: notice.Discard,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start loads the invoice and opens a dialog for it.
func Start(ctx context.Context, backend Backend, invoiceName string, opts ...Option) (*Dialog, error) {
	inv, err := backend.SalesInvoice(ctx, invoiceName)
	if err != nil {
		return nil, err
	}
	if !Available(inv) {
		return nil, fmt.Errorf("%w: %s", ErrNotAvailable, invoiceName)
	}
	return NewDialog(backend, inv, opts...), nil
}

func (d *Dialog) Invoice() rpc.SalesInvoice {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.invoice
}

// Open reports whether the results dialog is showing.
func (d *Dialog) Open() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

func (d *Dialog) Candidates() []Candidate {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Candidate(nil), d.candidates...)
}

// Close hides the results dialog.
func (d *Dialog) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open = false
	d.candidates = nil
}

// Search looks up payment transactions and opens the results ranked against
// the invoice. No results is not an error.
func (d *Dialog) Search(ctx context.Context, c Criteria) ([]Candidate, error) {
	if c.IsEmpty() {
		d.notifier.Notify(emptyCriteria)
		return nil, ErrEmptyCriteria
	}

	txs, err := d.backend.SearchTransactions(ctx, c.Args())
	if err != nil {
		d.log.Error("kcb payment search failed", zap.Error(err))
		d.notifier.Notify(notice.Notice{
			Level:   notice.Error,
			Title:   "Error",
			Message: rpc.UserMessage(err, "Failed to fetch KCB payment transactions."),
		})
		return nil, fmt.Errorf("searching transactions: %w", err)
	}
	if len(txs) == 0 {
		d.Close()
		d.notifier.Notify(noResults)
		return nil, nil
	}

	ranked := d.rank(txs)
	d.mu.Lock()
	d.open = true
	d.candidates = ranked
	d.mu.Unlock()
	return append([]Candidate(nil), ranked...), nil
}

func (d *Dialog) rank(txs []rpc.PaymentTransaction) []Candidate {
	inv := d.Invoice()
	target := matching.Target{CustomerName: inv.CustomerName, OutstandingAmount: inv.OutstandingAmount}
	if target.CustomerName == "" {
		target.CustomerName = inv.Customer
	}

	byName := make(map[string]rpc.PaymentTransaction, len(txs))
	in := make([]matching.Candidate, len(txs))
	for i, tx := range txs {
		byName[tx.Name] = tx
		in[i] = matching.Candidate{ID: tx.Name, PayerName: tx.FullName(), Amount: tx.Amount}
	}

	scores := matching.Rank(target, in)
	out := make([]Candidate, len(scores))
	for i, s := range scores {
		out[i] = Candidate{PaymentTransaction: byName[s.ID], Score: s.Final, Decision: s.Decision}
	}
	return out
}

// Reconcile applies one search result to the invoice. On success the
// invoice is reloaded and the dialog closes; on failure it stays open.
func (d *Dialog) Reconcile(ctx context.Context, transactionID string) (rpc.ProcessPaymentResult, error) {
	d.mu.Lock()
	known := d.open && hasCandidate(d.candidates, transactionID)
	invoice := d.invoice.Name
	d.mu.Unlock()
	if !known {
		return rpc.ProcessPaymentResult{}, fmt.Errorf("%w: %s", ErrUnknownCandidate, transactionID)
	}

	res, err := d.backend.ProcessPayment(ctx, rpc.ProcessPaymentArgs{Payment: transactionID, SalesInvoice: invoice})
	if err == nil && !res.Success {
		err = errors.New(res.Message)
	}
	if err != nil {
		d.log.Error("kcb payment reconcile failed",
			zap.String("payment", transactionID),
			zap.String("sales_invoice", invoice),
			zap.Error(err),
		)
		msg := rpc.UserMessage(err, reconcileFailed)
		if !res.Success && res.Message != "" {
			msg = res.Message
		}
		d.notifier.Notify(notice.Notice{Level: notice.Error, Title: "Error", Message: msg})
		return res, fmt.Errorf("reconciling %s: %w", transactionID, err)
	}

	d.notifier.Notify(reconciled)
	d.log.Info("kcb payment reconciled",
		zap.String("payment", transactionID),
		zap.String("sales_invoice", invoice),
		zap.String("payment_entry", res.PaymentEntry),
	)

	if inv, err := d.backend.SalesInvoice(ctx, invoice); err != nil {
		d.log.Warn("reloading sales invoice failed", zap.String("sales_invoice", invoice), zap.Error(err))
	} else {
		d.mu.Lock()
		d.invoice = inv
		d.mu.Unlock()
	}
	d.Close()
	return res, nil
}

func hasCandidate(cs []Candidate, name string) bool {
	for _, c := range cs {
		if c.Name == name {
			return true
		}
	}
	return false
}
