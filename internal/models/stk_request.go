package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	STKPending    = "Pending"
	STKInProgress = "In Progress"
	STKCompleted  = "Completed"
	STKFailed     = "Failed"
)

// STKRequest is a KCB Mpesa STK Request document.
type STKRequest struct {
	Name                string `gorm:"primaryKey"`
	PhoneNumber         string
	Amount              decimal.Decimal `gorm:"type:numeric(18,2)"`
	TillNo              string
	ReferenceDoctype    string
	ReferenceName       string `gorm:"index"`
	TransactionDesc     string
	PaymentGateway      string
	KCBMpesaSettings    string `gorm:"column:kcb_mpesa_settings"`
	Status              string `gorm:"index"`
	MerchantRequestID   string `gorm:"index"`
	CheckoutRequestID   string `gorm:"index"`
	ResponseCode        string
	ResponseDescription string
	CustomerMessage     string
	ErrorMessage        string
	ErrorDescription    string
	ResultCode          *int
	ResultDesc          string
	MpesaReceiptNumber  string          `gorm:"index"`
	TransactionAmount   decimal.Decimal `gorm:"type:numeric(18,2)"`
	TransactionDate     string
	CallbackPhoneNumber string
	CallbackReceivedAt  *time.Time
	RawResponse         datatypes.JSON
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (STKRequest) TableName() string { return "kcb_mpesa_stk_requests" }

// MpesaSettings holds the KCB Buni credentials for one payment gateway.
type MpesaSettings struct {
	Name        string `gorm:"primaryKey"`
	Company     string
	Username    string
	Password    string
	Sandbox     bool
	TillNo      string
	AccessToken string
	TokenExpiry *time.Time
	UpdatedAt   time.Time
}

func (MpesaSettings) TableName() string { return "kcb_mpesa_settings" }

// TokenValid reports whether the cached token can still be used at now,
// keeping a five second margin before expiry.
func (s MpesaSettings) TokenValid(now time.Time) bool {
	if s.AccessToken == "" || s.TokenExpiry == nil {
		return false
	}
	return now.Before(s.TokenExpiry.Add(-5 * time.Second))
}
