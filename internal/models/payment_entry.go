package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentEntry records money received against one or more invoices.
type PaymentEntry struct {
	Name              string `gorm:"primaryKey"`
	Company           string `gorm:"index"`
	PaymentType       string
	Party             string `gorm:"index"`
	ModeOfPayment     string
	PaidFrom          string
	PaidTo            string
	PaidAmount        decimal.Decimal `gorm:"type:numeric(18,2)"`
	UnallocatedAmount decimal.Decimal `gorm:"type:numeric(18,2)"`
	ReferenceNo       string          `gorm:"index"`
	ReferenceDate     time.Time
	PostingDate       time.Time
	References        []PaymentEntryReference `gorm:"foreignKey:PaymentEntry;references:Name"`
	CreatedAt         time.Time
}

func (PaymentEntry) TableName() string { return "payment_entries" }

// PaymentEntryReference allocates part of a payment entry to an invoice.
type PaymentEntryReference struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey"`
	PaymentEntry     string    `gorm:"index"`
	ReferenceDoctype string
	ReferenceName    string          `gorm:"index"`
	AllocatedAmount  decimal.Decimal `gorm:"type:numeric(18,2)"`
	CreatedAt        time.Time
}

func (PaymentEntryReference) TableName() string { return "payment_entry_references" }
