package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestPaymentTransaction_Allocate(t *testing.T) {
	p := PaymentTransaction{Amount: decimal.NewFromInt(1000), Status: PaymentUnreconciled}

	p.Allocate(decimal.NewFromInt(400))
	assert.Equal(t, PaymentPartlyReconciled, p.Status)
	assert.True(t, p.Reconcilable().Equal(decimal.NewFromInt(600)))

	p.Allocate(decimal.NewFromInt(600))
	assert.Equal(t, PaymentReconciled, p.Status)
	assert.True(t, p.Reconcilable().IsZero())
}

func TestPaymentTransaction_FullName(t *testing.T) {
	p := PaymentTransaction{FirstName: "Jane", LastName: "Wanjiru"}
	assert.Equal(t, "Jane Wanjiru", p.FullName())

	p.MiddleName = "W."
	assert.Equal(t, "Jane W. Wanjiru", p.FullName())
}

func TestMpesaSettings_TokenValid(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	expiry := now.Add(time.Minute)

	assert.False(t, MpesaSettings{}.TokenValid(now))
	assert.True(t, MpesaSettings{AccessToken: "t", TokenExpiry: &expiry}.TokenValid(now))

	nearly := now.Add(3 * time.Second)
	assert.False(t, MpesaSettings{AccessToken: "t", TokenExpiry: &nearly}.TokenValid(now))
}

func TestSalesInvoice_IsPaid(t *testing.T) {
	assert.True(t, SalesInvoice{}.IsPaid())
	assert.False(t, SalesInvoice{OutstandingAmount: decimal.NewFromInt(1)}.IsPaid())
}
