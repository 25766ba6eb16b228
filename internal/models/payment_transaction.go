package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	PaymentUnreconciled     = "Unreconciled"
	PaymentPartlyReconciled = "Partly Reconciled"
	PaymentReconciled       = "Reconciled"
)

// OpenPaymentStatuses are the statuses with money left to allocate.
var OpenPaymentStatuses = []string{PaymentPartlyReconciled, PaymentUnreconciled}

// PaymentTransaction is a KCB Payment Transaction received through the
// IPN notification endpoint.
type PaymentTransaction struct {
	Name                     string `gorm:"primaryKey"`
	MessageID                string
	OriginatorConversationID string `gorm:"index"`
	ChannelCode              string
	Timestamp                string
	BillReference            string
	MobileNumber             string `gorm:"index"`
	FirstName                string
	MiddleName               string
	LastName                 string
	KCBTransactionID         string          `gorm:"column:kcb_transaction_id;uniqueIndex"`
	Amount                   decimal.Decimal `gorm:"type:numeric(18,2);index"`
	Reconciled               decimal.Decimal `gorm:"type:numeric(18,2)"`
	Balance                  decimal.Decimal `gorm:"type:numeric(18,2)"`
	Currency                 string
	Narration                string
	TransactionType          string
	TransactionDate          time.Time `gorm:"index"`
	Status                   string    `gorm:"index"`
	CreatedAt                time.Time `gorm:"index"`
	UpdatedAt                time.Time
}

func (PaymentTransaction) TableName() string { return "kcb_payment_transactions" }

// Reconcilable is the amount still available for allocation.
func (p PaymentTransaction) Reconcilable() decimal.Decimal {
	return p.Amount.Sub(p.Reconciled)
}

// FullName joins the non-empty name parts.
func (p PaymentTransaction) FullName() string {
	return strings.Join(strings.Fields(p.FirstName+" "+p.MiddleName+" "+p.LastName), " ")
}

// Allocate adds amount to the reconciled total and updates the status.
func (p *PaymentTransaction) Allocate(amount decimal.Decimal) {
	p.Reconciled = p.Reconciled.Add(amount)
	if p.Amount.LessThanOrEqual(p.Reconciled) {
		p.Status = PaymentReconciled
	} else {
		p.Status = PaymentPartlyReconciled
	}
}
