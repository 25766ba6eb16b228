package models

// ModeOfPaymentAccount links a mode of payment to its ledger account for a
// company.
type ModeOfPaymentAccount struct {
	ID             uint   `gorm:"primaryKey"`
	ModeOfPayment  string `gorm:"index"`
	Company        string `gorm:"index"`
	DefaultAccount string `gorm:"index"`
}

func (ModeOfPaymentAccount) TableName() string { return "mode_of_payment_accounts" }

// PaymentGatewayAccount links a payment gateway to the account it settles into.
type PaymentGatewayAccount struct {
	Name           string `gorm:"primaryKey"`
	PaymentGateway string `gorm:"index"`
	PaymentAccount string `gorm:"index"`
	IsDefault      bool
}

func (PaymentGatewayAccount) TableName() string { return "payment_gateway_accounts" }

// KCBModeOfPayment is the mode of payment KCB receipts are posted under.
const KCBModeOfPayment = "KCB"
