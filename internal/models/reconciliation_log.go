package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ReconciliationLog is an audit row written for every posted reconciliation.
type ReconciliationLog struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Action      string    `gorm:"index"`
	Company     string    `gorm:"index"`
	Customer    string
	PerformedBy string
	Details     datatypes.JSON
	CreatedAt   time.Time
}

func (ReconciliationLog) TableName() string { return "reconciliation_logs" }

// All lists every sandbox model for AutoMigrate.
func All() []any {
	return []any{
		&SalesInvoice{},
		&PaymentTransaction{},
		&PaymentEntry{},
		&PaymentEntryReference{},
		&STKRequest{},
		&MpesaSettings{},
		&ModeOfPaymentAccount{},
		&PaymentGatewayAccount{},
		&ReconciliationLog{},
	}
}
