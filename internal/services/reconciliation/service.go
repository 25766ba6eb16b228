// Package reconciliation drives the KCB Payments Reconciliation form: two
// tables of outstanding invoices and unreconciled payments, filled from the
// backend, and a validated submit of the rows the user selected.
package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"kcb-payments-workbench/internal/notice"
	"kcb-payments-workbench/internal/rpc"

	"go.uber.org/zap"
)

// Backend is the subset of remote methods the workbench calls.
type Backend interface {
	OutstandingInvoices(ctx context.Context, q rpc.OutstandingInvoiceQuery) ([]rpc.OutstandingInvoice, error)
	UnreconciledPayments(ctx context.Context, q rpc.UnreconciledPaymentQuery) ([]rpc.UnreconciledPayment, error)
	ProcessReconciliation(ctx context.Context, args rpc.ReconciliationArgs) error
}

var _ Backend = (*rpc.Client)(nil)

type Controller struct {
	backend  Backend
	notifier notice.Notifier
	log      *zap.Logger

	mu    sync.Mutex
	state State
}

type Option func(*Controller)

func WithNotifier(n notice.Notifier) Option {
	return func(c *Controller) { c.notifier = n }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) { c.log = l }
}

func NewController(backend Backend, opts ...Option) *Controller {
	c := &Controller{
		backend:  backend,
		notifier: notice.Discard,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current snapshot.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Dispatch reduces ev into the form state and delivers its notices.
func (c *Controller) Dispatch(ev Event) State {
	st, _ := c.update(func(State) (Event, error) { return ev, nil })
	return st
}

// update builds an event from the current state and reduces it under the
// lock. A build error leaves the state untouched. Notices are delivered
// after the lock is released.
func (c *Controller) update(build func(State) (Event, error)) (State, error) {
	c.mu.Lock()
	ev, err := build(c.state)
	if err != nil {
		st := c.state
		c.mu.Unlock()
		return st, err
	}
	next, notices := Reduce(c.state, ev)
	c.state = next
	c.mu.Unlock()

	for _, n := range notices {
		c.notifier.Notify(n)
	}
	return next, nil
}

// Load runs the onload and refresh hooks.
func (c *Controller) Load(defaultCompany string) State {
	c.Dispatch(Event{Kind: Onload, Company: defaultCompany})
	return c.Dispatch(Event{Kind: Refresh})
}

func (c *Controller) SetFilters(f Filters) State {
	return c.Dispatch(Event{Kind: FiltersChanged, Filters: f})
}

// Select replaces the selection. Every row id must exist in its table.
// The selection is locked while a process call is running.
func (c *Controller) Select(sel Selection) (State, error) {
	return c.update(func(s State) (Event, error) {
		if s.Busy {
			return Event{}, ErrBusy
		}
		if err := s.validate(sel); err != nil {
			return Event{}, err
		}
		return Event{Kind: SelectionChanged, Selection: sel}, nil
	})
}

// FetchHandle tracks the two fetch calls of one Fetch.
type FetchHandle struct {
	wg sync.WaitGroup
}

// Wait blocks until both calls have completed and their results have been
// applied. A nil handle returns at once.
func (h *FetchHandle) Wait() {
	if h == nil {
		return
	}
	h.wg.Wait()
}

// Fetch clears both tables and loads them again. The two calls run
// concurrently and each applies its own result as soon as it arrives.
// It is rejected with ErrBusy while a process call is running.
func (c *Controller) Fetch(ctx context.Context) (*FetchHandle, error) {
	return c.fetch(ctx, false)
}

// fetch starts a fetch. refresh is set for the reload Process runs before
// releasing the lock.
func (c *Controller) fetch(ctx context.Context, refresh bool) (*FetchHandle, error) {
	st, err := c.update(func(s State) (Event, error) {
		if s.Busy && !refresh {
			return Event{}, ErrBusy
		}
		if s.Filters.Company == "" {
			return Event{}, ErrCompanyRequired
		}
		return Event{Kind: FetchStarted, Seq: s.fetchSeq + 1}, nil
	})
	if errors.Is(err, ErrCompanyRequired) {
		c.notifier.Notify(companyRequired)
	}
	if err != nil {
		return nil, err
	}

	filters, seq := st.Filters, st.fetchSeq
	h := &FetchHandle{}
	h.wg.Add(2)

	go func() {
		defer h.wg.Done()
		rows, err := c.backend.OutstandingInvoices(ctx, filters.InvoiceQuery())
		if err != nil {
			c.log.Error("fetching outstanding invoices failed", zap.String("company", filters.Company), zap.Error(err))
		}
		c.Dispatch(Event{Kind: InvoicesLoaded, Seq: seq, Invoices: invoiceRows(rows), Err: err})
	}()

	go func() {
		defer h.wg.Done()
		rows, err := c.backend.UnreconciledPayments(ctx, filters.PaymentQuery())
		if err != nil {
			c.log.Error("fetching unreconciled kcb payments failed", zap.String("full_name", filters.FullName), zap.Error(err))
		}
		c.Dispatch(Event{Kind: PaymentsLoaded, Seq: seq, Payments: paymentRows(rows), Err: err})
	}()

	return h, nil
}

// Process submits the selected rows. On success both tables are fetched
// again and the returned handle tracks that fetch. On failure the selection
// is kept so the user can retry.
func (c *Controller) Process(ctx context.Context) (*FetchHandle, error) {
	var req Request
	_, err := c.update(func(s State) (Event, error) {
		if s.Busy {
			return Event{}, ErrBusy
		}
		r, err := s.Request()
		if err != nil {
			return Event{}, err
		}
		req = r
		return Event{Kind: ProcessStarted}, nil
	})
	if errors.Is(err, ErrNoSelection) {
		c.notifier.Notify(noEntriesSelected)
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	defer c.Dispatch(Event{Kind: ProcessFinished})

	if err := c.backend.ProcessReconciliation(ctx, req.Args()); err != nil {
		c.log.Error("kcb reconciliation failed",
			zap.Strings("invoices", req.InvoiceNames),
			zap.Strings("payments", req.KCBNames),
			zap.Error(err),
		)
		c.Dispatch(Event{Kind: ProcessFailed, Err: err})
		return nil, fmt.Errorf("processing reconciliation: %w", err)
	}

	c.log.Info("kcb reconciliation processed",
		zap.String("company", req.Company),
		zap.Strings("invoices", req.InvoiceNames),
		zap.Strings("payments", req.KCBNames),
	)
	c.Dispatch(Event{Kind: ProcessSucceeded})

	h, err := c.fetch(ctx, true)
	if err != nil {
		c.log.Warn("refresh after reconciliation skipped", zap.Error(err))
		return nil, nil
	}
	return h, nil
}
