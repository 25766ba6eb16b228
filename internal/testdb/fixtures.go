package testdb

import (
	"testing"
	"time"

	"kcb-payments-workbench/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Workbench seeds company ACME with two outstanding invoices of customer
// Jane, three unreconciled payments from her and the KCB account mapping.
func Workbench(t testing.TB, db *gorm.DB) {
	t.Helper()
	day := func(m time.Month, d int) time.Time { return time.Date(2025, m, d, 0, 0, 0, 0, time.UTC) }
	invoice := func(name string, posted time.Time, amount int64) *models.SalesInvoice {
		return &models.SalesInvoice{
			Name:              name,
			Company:           "ACME",
			Customer:          "Jane",
			CustomerName:      "Jane Wanjiru",
			Currency:          "KES",
			DebitTo:           "Debtors - ACME",
			PostingDate:       posted,
			DueDate:           posted.AddDate(0, 0, 14),
			GrandTotal:        decimal.NewFromInt(amount),
			OutstandingAmount: decimal.NewFromInt(amount),
			DocStatus:         1,
		}
	}
	payment := func(name string, on time.Time, amount int64) *models.PaymentTransaction {
		return &models.PaymentTransaction{
			Name:                     name,
			FirstName:                "Jane",
			LastName:                 "Wanjiru",
			MobileNumber:             "254712345678",
			KCBTransactionID:         "TX-" + name,
			OriginatorConversationID: "SJK" + name,
			Amount:                   decimal.NewFromInt(amount),
			Reconciled:               decimal.Zero,
			Currency:                 "KES",
			Status:                   models.PaymentUnreconciled,
			TransactionDate:          on,
		}
	}

	Seed(t, db,
		invoice("ACC-SINV-2025-00001", day(time.February, 1), 1000),
		invoice("ACC-SINV-2025-00002", day(time.February, 10), 500),
		payment("KCB-PT-2025-00001", day(time.February, 12), 1000),
		payment("KCB-PT-2025-00002", day(time.February, 13), 300),
		payment("KCB-PT-2025-00003", day(time.February, 14), 200),
		&models.ModeOfPaymentAccount{
			ModeOfPayment:  models.KCBModeOfPayment,
			Company:        "ACME",
			DefaultAccount: "KCB - ACME",
		},
	)
}
