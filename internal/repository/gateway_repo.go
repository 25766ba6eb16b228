package repository

import (
	"context"

	"kcb-payments-workbench/internal/models"

	"gorm.io/gorm"
)

type GatewayRepository struct {
	db *gorm.DB
}

func NewGatewayRepository(db *gorm.DB) *GatewayRepository {
	return &GatewayRepository{db: db}
}

func (r *GatewayRepository) WithTx(tx *gorm.DB) *GatewayRepository {
	return &GatewayRepository{db: tx}
}

// ModeOfPaymentExists reports whether any account is configured for mop.
func (r *GatewayRepository) ModeOfPaymentExists(ctx context.Context, mop string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.ModeOfPaymentAccount{}).Where("mode_of_payment = ?", mop).Count(&n).Error
	return n > 0, err
}

// ModeOfPaymentAccount returns the company's account for mop.
func (r *GatewayRepository) ModeOfPaymentAccount(ctx context.Context, mop, company string) (*models.ModeOfPaymentAccount, error) {
	var acc models.ModeOfPaymentAccount
	err := r.db.WithContext(ctx).
		Where("mode_of_payment = ? AND company = ?", mop, company).
		First(&acc).Error
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

// ModeOfPaymentByAccount returns the mode of payment settling into account.
func (r *GatewayRepository) ModeOfPaymentByAccount(ctx context.Context, account, company string) (*models.ModeOfPaymentAccount, error) {
	var acc models.ModeOfPaymentAccount
	err := r.db.WithContext(ctx).
		Where("default_account = ? AND company = ?", account, company).
		Order("id ASC").
		First(&acc).Error
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

func (r *GatewayRepository) GatewayAccountByPaymentAccount(ctx context.Context, account string) (*models.PaymentGatewayAccount, error) {
	var acc models.PaymentGatewayAccount
	if err := r.db.WithContext(ctx).First(&acc, "payment_account = ?", account).Error; err != nil {
		return nil, err
	}
	return &acc, nil
}

func (r *GatewayRepository) DefaultGatewayAccount(ctx context.Context) (*models.PaymentGatewayAccount, error) {
	var acc models.PaymentGatewayAccount
	if err := r.db.WithContext(ctx).First(&acc, "is_default = ?", true).Error; err != nil {
		return nil, err
	}
	return &acc, nil
}

// GatewayAccounts lists the accounts of a payment gateway.
func (r *GatewayRepository) GatewayAccounts(ctx context.Context, gateway string) ([]models.PaymentGatewayAccount, error) {
	var accs []models.PaymentGatewayAccount
	err := r.db.WithContext(ctx).Where("payment_gateway = ?", gateway).Order("name ASC").Find(&accs).Error
	return accs, err
}
