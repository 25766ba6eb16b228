package reconciliation

import (
	"errors"
	"fmt"

	"kcb-payments-workbench/internal/notice"
	"kcb-payments-workbench/internal/rpc"

	"github.com/shopspring/decimal"
)

var (
	ErrCompanyRequired = errors.New("reconciliation: company is required")
	ErrNoSelection     = errors.New("reconciliation: select at least one invoice and one payment")
	ErrBusy            = errors.New("reconciliation: a reconciliation is already in progress")
	ErrUnknownRow      = errors.New("reconciliation: unknown row")
)

const (
	invoiceTable = "invoices"
	paymentTable = "mpesa_payments"
)

// Filters are the workbench criteria. Company is mandatory.
type Filters struct {
	Company         string   `json:"company"`
	Customer        string   `json:"customer"`
	Currency        string   `json:"currency"`
	InvoiceName     string   `json:"invoice_name"`
	FromInvoiceDate rpc.Date `json:"from_invoice_date"`
	ToInvoiceDate   rpc.Date `json:"to_invoice_date"`
	FullName        string   `json:"full_name"`
	FromPaymentDate rpc.Date `json:"from_mpesa_payment_date"`
	ToPaymentDate   rpc.Date `json:"to_mpesa_payment_date"`
}

func (f Filters) InvoiceQuery() rpc.OutstandingInvoiceQuery {
	return rpc.OutstandingInvoiceQuery{
		Company:   f.Company,
		Currency:  f.Currency,
		Customer:  f.Customer,
		VoucherNo: f.InvoiceName,
		FromDate:  f.FromInvoiceDate,
		ToDate:    f.ToInvoiceDate,
	}
}

func (f Filters) PaymentQuery() rpc.UnreconciledPaymentQuery {
	return rpc.UnreconciledPaymentQuery{
		FullName: f.FullName,
		FromDate: f.FromPaymentDate,
		ToDate:   f.ToPaymentDate,
	}
}

// InvoicePickerFilter restricts the invoice_name picker to submitted
// invoices of the selected company and customer that still owe money.
func (f Filters) InvoicePickerFilter() map[string]any {
	return map[string]any{
		"docstatus":          1,
		"outstanding_amount": []any{">", 0},
		"company":            f.Company,
		"customer":           f.Customer,
	}
}

type InvoiceRow struct {
	RowID             string          `json:"row_id"`
	Invoice           string          `json:"invoice"`
	Date              rpc.Date        `json:"date"`
	Total             decimal.Decimal `json:"total"`
	OutstandingAmount decimal.Decimal `json:"outstanding_amount"`
}

type PaymentRow struct {
	RowID     string          `json:"row_id"`
	PaymentID string          `json:"payment_id"`
	FullName  string          `json:"full_name"`
	Date      rpc.Date        `json:"date"`
	Amount    decimal.Decimal `json:"amount"`
}

func invoiceRows(in []rpc.OutstandingInvoice) []InvoiceRow {
	if len(in) == 0 {
		return nil
	}
	rows := make([]InvoiceRow, len(in))
	for i, inv := range in {
		rows[i] = InvoiceRow{
			RowID:             rowID(invoiceTable, i),
			Invoice:           inv.VoucherNo,
			Date:              inv.PostingDate,
			Total:             inv.InvoiceAmount,
			OutstandingAmount: inv.OutstandingAmount,
		}
	}
	return rows
}

func paymentRows(in []rpc.UnreconciledPayment) []PaymentRow {
	if len(in) == 0 {
		return nil
	}
	rows := make([]PaymentRow, len(in))
	for i, p := range in {
		rows[i] = PaymentRow{
			RowID:     rowID(paymentTable, i),
			PaymentID: p.Name,
			FullName:  p.FirstName,
			Date:      p.TransactionDate,
			Amount:    p.UnreconciledAmount,
		}
	}
	return rows
}

func rowID(table string, i int) string {
	return fmt.Sprintf("%s-%d", table, i+1)
}

// Selection holds the checked row ids of each table.
type Selection struct {
	Invoices []string `json:"invoices"`
	Payments []string `json:"payments"`
}

// Request is the payload submitted for the current selection.
type Request struct {
	InvoiceNames []string
	KCBNames     []string
	Company      string
}

func (r Request) Args() rpc.ReconciliationArgs {
	return rpc.ReconciliationArgs{KCBNames: r.KCBNames, InvoiceNames: r.InvoiceNames, Company: r.Company}
}

// State is one snapshot of the workbench form. Reducers never modify a
// snapshot in place; they return a new one.
type State struct {
	Filters   Filters      `json:"filters"`
	Invoices  []InvoiceRow `json:"invoices"`
	Payments  []PaymentRow `json:"mpesa_payments"`
	Selection Selection    `json:"selection"`

	// ActionVisible shows "Reconcile KCB Payments".
	ActionVisible bool `json:"action_visible"`
	// FetchVisible shows "Get Unreconciled KCB Payments".
	FetchVisible bool `json:"fetch_visible"`
	Busy         bool `json:"busy"`

	fetchSeq    int
	pending     int
	fetchFailed bool
}

// Request resolves the selection into voucher numbers and payment ids.
func (s State) Request() (Request, error) {
	if len(s.Selection.Invoices) == 0 || len(s.Selection.Payments) == 0 {
		return Request{}, ErrNoSelection
	}

	req := Request{Company: s.Filters.Company}
	seen := make(map[string]bool)
	for _, id := range s.Selection.Invoices {
		for _, row := range s.Invoices {
			if row.RowID == id && !seen[row.Invoice] {
				seen[row.Invoice] = true
				req.InvoiceNames = append(req.InvoiceNames, row.Invoice)
			}
		}
	}
	seen = make(map[string]bool)
	for _, id := range s.Selection.Payments {
		for _, row := range s.Payments {
			if row.RowID == id && !seen[row.PaymentID] {
				seen[row.PaymentID] = true
				req.KCBNames = append(req.KCBNames, row.PaymentID)
			}
		}
	}

	if len(req.InvoiceNames) == 0 || len(req.KCBNames) == 0 {
		return Request{}, ErrNoSelection
	}
	return req, nil
}

// validate checks that every selected row id exists in its table.
func (s State) validate(sel Selection) error {
	for _, id := range sel.Invoices {
		if !hasRow(s.Invoices, id, func(r InvoiceRow) string { return r.RowID }) {
			return fmt.Errorf("%w: %s", ErrUnknownRow, id)
		}
	}
	for _, id := range sel.Payments {
		if !hasRow(s.Payments, id, func(r PaymentRow) string { return r.RowID }) {
			return fmt.Errorf("%w: %s", ErrUnknownRow, id)
		}
	}
	return nil
}

func hasRow[T any](rows []T, id string, key func(T) string) bool {
	for _, r := range rows {
		if key(r) == id {
			return true
		}
	}
	return false
}

func (s State) actionVisible() bool {
	return len(s.Invoices) > 0 && len(s.Payments) > 0
}

type EventKind int

const (
	Onload EventKind = iota
	Refresh
	FiltersChanged
	FetchStarted
	InvoicesLoaded
	PaymentsLoaded
	SelectionChanged
	ProcessStarted
	ProcessSucceeded
	ProcessFailed
	ProcessFinished
)

var eventNames = [...]string{
	Onload:           "onload",
	Refresh:          "refresh",
	FiltersChanged:   "filters_changed",
	FetchStarted:     "fetch_started",
	InvoicesLoaded:   "invoices_loaded",
	PaymentsLoaded:   "payments_loaded",
	SelectionChanged: "selection_changed",
	ProcessStarted:   "process_started",
	ProcessSucceeded: "process_succeeded",
	ProcessFailed:    "process_failed",
	ProcessFinished:  "process_finished",
}

func (k EventKind) String() string {
	if k >= 0 && int(k) < len(eventNames) {
		return eventNames[k]
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event is one change to the form. Only the fields relevant to Kind are set.
type Event struct {
	Kind      EventKind
	Company   string
	Filters   Filters
	Invoices  []InvoiceRow
	Payments  []PaymentRow
	Selection Selection
	Seq       int
	Err       error
}

type reducer func(State, Event) (State, []notice.Notice)

var reducers = map[EventKind]reducer{
	Onload:           reduceOnload,
	Refresh:          reduceRefresh,
	FiltersChanged:   reduceFiltersChanged,
	FetchStarted:     reduceFetchStarted,
	InvoicesLoaded:   reduceInvoicesLoaded,
	PaymentsLoaded:   reducePaymentsLoaded,
	SelectionChanged: reduceSelectionChanged,
	ProcessStarted:   reduceProcessStarted,
	ProcessSucceeded: reduceProcessSucceeded,
	ProcessFailed:    reduceProcessFailed,
	ProcessFinished:  reduceProcessFinished,
}

// Reduce applies ev to s. Unknown kinds leave s unchanged.
func Reduce(s State, ev Event) (State, []notice.Notice) {
	fn, ok := reducers[ev.Kind]
	if !ok {
		return s, nil
	}
	return fn(s, ev)
}

var (
	noEntriesFound = notice.Notice{
		Level:   notice.Info,
		Title:   "No Entries Found",
		Message: "No outstanding invoices or unreconciled KCB payments found for the criteria.",
	}
	noEntriesSelected = notice.Notice{
		Level:   notice.Warning,
		Title:   "No Entries Selected",
		Message: "Please select at least one invoice and one KCB payment.",
	}
	companyRequired = notice.Notice{
		Level:   notice.Warning,
		Title:   "Missing Fields",
		Message: "Company is required to fetch reconciliation entries.",
	}
	processSucceeded = notice.Notice{Level: notice.Success, Message: "Selected KCB entries processed successfully"}
	processFailed    = notice.Notice{Level: notice.Error, Message: "Reconciliation failed. Check Error Log."}
)

func reduceOnload(s State, ev Event) (State, []notice.Notice) {
	if s.Filters.Company == "" {
		s.Filters.Company = ev.Company
	}
	return s, nil
}

func reduceRefresh(s State, _ Event) (State, []notice.Notice) {
	s.ActionVisible = s.actionVisible()
	s.FetchVisible = s.Filters.Customer != ""
	return s, nil
}

func reduceFiltersChanged(s State, ev Event) (State, []notice.Notice) {
	s.Filters = ev.Filters
	s.FetchVisible = ev.Filters.Customer != ""
	return s, nil
}

func reduceFetchStarted(s State, ev Event) (State, []notice.Notice) {
	s.Invoices = nil
	s.Payments = nil
	s.Selection = Selection{}
	s.ActionVisible = false
	s.fetchSeq = ev.Seq
	s.pending = 2
	s.fetchFailed = false
	return s, nil
}

func reduceInvoicesLoaded(s State, ev Event) (State, []notice.Notice) {
	s.Invoices = ev.Invoices
	s.Selection.Invoices = nil
	s.ActionVisible = s.actionVisible()
	var out []notice.Notice
	if ev.Err != nil {
		out = append(out, loadFailed("outstanding invoices", ev.Err))
	}
	return settle(s, ev, out)
}

func reducePaymentsLoaded(s State, ev Event) (State, []notice.Notice) {
	s.Payments = ev.Payments
	s.Selection.Payments = nil
	s.ActionVisible = s.actionVisible()
	var out []notice.Notice
	if ev.Err != nil {
		out = append(out, loadFailed("unreconciled KCB payments", ev.Err))
	}
	return settle(s, ev, out)
}

// settle counts one completion of the current fetch and raises "No Entries
// Found" once both completed cleanly with nothing to show. Completions of an
// older fetch still replace their table but are not counted.
func settle(s State, ev Event, out []notice.Notice) (State, []notice.Notice) {
	if ev.Seq != s.fetchSeq || s.pending == 0 {
		return s, out
	}
	s.pending--
	if ev.Err != nil {
		s.fetchFailed = true
	}
	if s.pending == 0 && !s.fetchFailed && len(s.Invoices) == 0 && len(s.Payments) == 0 {
		out = append(out, noEntriesFound)
	}
	return s, out
}

func loadFailed(what string, err error) notice.Notice {
	return notice.Notice{
		Level:   notice.Error,
		Title:   "Error",
		Message: rpc.UserMessage(err, "Failed to fetch "+what+"."),
	}
}

func reduceSelectionChanged(s State, ev Event) (State, []notice.Notice) {
	s.Selection = Selection{
		Invoices: dedupe(ev.Selection.Invoices),
		Payments: dedupe(ev.Selection.Payments),
	}
	return s, nil
}

func dedupe(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func reduceProcessStarted(s State, _ Event) (State, []notice.Notice) {
	s.Busy = true
	return s, nil
}

func reduceProcessSucceeded(s State, _ Event) (State, []notice.Notice) {
	s.ActionVisible = s.actionVisible()
	return s, []notice.Notice{processSucceeded}
}

func reduceProcessFailed(s State, _ Event) (State, []notice.Notice) {
	return s, []notice.Notice{processFailed}
}

func reduceProcessFinished(s State, _ Event) (State, []notice.Notice) {
	s.Busy = false
	return s, nil
}
