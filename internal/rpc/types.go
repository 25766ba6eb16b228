package rpc

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar date format Frappe uses on the wire.
const DateLayout = "2006-01-02"

var dateLayouts = []string{
	DateLayout,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999",
	time.RFC3339,
}

// Date is a calendar date. The zero value encodes as "" which Frappe
// treats as an unset filter.
type Date struct {
	time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date.
func DateOf(t time.Time) Date {
	if t.IsZero() {
		return Date{}
	}
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate accepts a date, a Frappe datetime or an empty string.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOf(t), nil
		}
	}
	return Date{}, fmt.Errorf("invalid date %q", s)
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// OutstandingInvoiceQuery filters get_outstanding_invoices.
type OutstandingInvoiceQuery struct {
	Company   string `json:"company"`
	Currency  string `json:"currency"`
	Customer  string `json:"customer"`
	VoucherNo string `json:"voucher_no"`
	FromDate  Date   `json:"from_date"`
	ToDate    Date   `json:"to_date"`
}

type OutstandingInvoice struct {
	VoucherNo         string          `json:"voucher_no"`
	VoucherType       string          `json:"voucher_type,omitempty"`
	PostingDate       Date            `json:"posting_date"`
	DueDate           Date            `json:"due_date"`
	InvoiceAmount     decimal.Decimal `json:"invoice_amount"`
	PaymentAmount     decimal.Decimal `json:"payment_amount"`
	OutstandingAmount decimal.Decimal `json:"outstanding_amount"`
	Currency          string          `json:"currency,omitempty"`
}

// UnreconciledPaymentQuery filters get_unreconciled_kcb_payments.
type UnreconciledPaymentQuery struct {
	FullName string `json:"full_name"`
	FromDate Date   `json:"from_date"`
	ToDate   Date   `json:"to_date"`
}

type UnreconciledPayment struct {
	Name                     string          `json:"name"`
	MobileNumber             string          `json:"mobile_number"`
	FirstName                string          `json:"first_name"`
	LastName                 string          `json:"last_name"`
	Amount                   decimal.Decimal `json:"amount"`
	Reconciled               decimal.Decimal `json:"reconciled"`
	UnreconciledAmount       decimal.Decimal `json:"unreconciled_amount"`
	OriginatorConversationID string          `json:"originator_conversation_id"`
	TransactionDate          Date            `json:"transaction_date"`
}

// ReconciliationArgs is the payload of process_kcb_reconciliation.
type ReconciliationArgs struct {
	KCBNames     []string `json:"kcb_names"`
	InvoiceNames []string `json:"invoice_names"`
	Company      string   `json:"company"`
}

// TransactionSearchArgs is the payload of fetch_kcb_payment_transactions.
type TransactionSearchArgs struct {
	PhoneNumber              string           `json:"phone_number,omitempty"`
	Name                     string           `json:"name,omitempty"`
	Amount                   *decimal.Decimal `json:"amount,omitempty"`
	OriginatorConversationID string           `json:"originator_conversation_id,omitempty"`
}

// PaymentTransaction is a search hit. Amount is the reconcilable remainder.
type PaymentTransaction struct {
	Name                     string          `json:"name"`
	MobileNumber             string          `json:"mobile_number"`
	FirstName                string          `json:"first_name"`
	LastName                 string          `json:"last_name"`
	Amount                   decimal.Decimal `json:"amount"`
	OriginatorConversationID string          `json:"originator_conversation_id"`
}

// FullName joins the payer's first and last names.
func (p PaymentTransaction) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

type ProcessPaymentArgs struct {
	Payment      string `json:"payment"`
	SalesInvoice string `json:"sales_invoice"`
}

type ProcessPaymentResult struct {
	Success      bool   `json:"success"`
	PaymentEntry string `json:"payment_entry"`
	Message      string `json:"message"`
}

type GatewayFromMOPArgs struct {
	ModeOfPayment string `json:"mode_of_payment"`
	Company       string `json:"company"`
}

type MOPFromGatewayArgs struct {
	PaymentGateway string `json:"payment_gateway"`
	Company        string `json:"company"`
}

// STKPushArgs is the payload of generate_stk_push.
type STKPushArgs struct {
	PhoneNumber            string          `json:"phone_number"`
	RequestAmount          decimal.Decimal `json:"request_amount"`
	InvoiceNumber          string          `json:"invoice_number"`
	TransactionDescription string          `json:"transaction_description"`
	PaymentGateway         string          `json:"payment_gateway"`
	Settings               string          `json:"settings"`
	KCBMpesaSTKRequest     string          `json:"kcb_mpesa_stk_request"`
	CallbackURL            string          `json:"callback_url,omitempty"`
}

type STKPushResult struct {
	StatusCode int             `json:"status_code"`
	Response   json.RawMessage `json:"response,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// Accepted reports whether the KCB gateway accepted the push request.
func (r STKPushResult) Accepted() bool {
	return r.StatusCode == 200 || r.StatusCode == 201
}

// GetDocArgs is the payload of frappe.client.get.
type GetDocArgs struct {
	Doctype string `json:"doctype"`
	Name    string `json:"name"`
}

// SalesInvoice holds the Sales Invoice fields the forms read.
type SalesInvoice struct {
	Name              string          `json:"name"`
	Customer          string          `json:"customer"`
	CustomerName      string          `json:"customer_name"`
	Company           string          `json:"company"`
	Currency          string          `json:"currency"`
	DocStatus         int             `json:"docstatus"`
	IsReturn          int             `json:"is_return"`
	PostingDate       Date            `json:"posting_date"`
	DueDate           Date            `json:"due_date"`
	GrandTotal        decimal.Decimal `json:"grand_total"`
	OutstandingAmount decimal.Decimal `json:"outstanding_amount"`
}

// STKRequest holds the KCB Mpesa STK Request fields the retry action reads.
type STKRequest struct {
	Name             string          `json:"name"`
	PhoneNumber      string          `json:"phone_number"`
	Amount           decimal.Decimal `json:"amount"`
	TillNo           string          `json:"till_no"`
	ReferenceDoctype string          `json:"reference_doctype"`
	ReferenceName    string          `json:"reference_name"`
	TransactionDesc  string          `json:"transaction_desc"`
	PaymentGateway   string          `json:"payment_gateway"`
	KCBMpesaSettings string          `json:"kcb_mpesa_settings"`
	Status           string          `json:"status"`
}
