package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SalesInvoice is the sandbox copy of an ERPNext Sales Invoice. DocStatus
// follows Frappe: 0 draft, 1 submitted, 2 cancelled.
type SalesInvoice struct {
	Name              string `gorm:"primaryKey"`
	Company           string `gorm:"index"`
	Customer          string `gorm:"index"`
	CustomerName      string
	Currency          string
	DebitTo           string
	PostingDate       time.Time       `gorm:"index"`
	DueDate           time.Time       `gorm:"index"`
	GrandTotal        decimal.Decimal `gorm:"type:numeric(18,2)"`
	OutstandingAmount decimal.Decimal `gorm:"type:numeric(18,2);index"`
	DocStatus         int             `gorm:"index"`
	IsReturn          bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (SalesInvoice) TableName() string { return "sales_invoices" }

// IsPaid reports whether nothing is left to collect.
func (s SalesInvoice) IsPaid() bool {
	return !s.OutstandingAmount.IsPositive()
}
