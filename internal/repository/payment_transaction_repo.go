package repository

import (
	"context"
	"strings"
	"time"

	"kcb-payments-workbench/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type PaymentTransactionRepository struct {
	db *gorm.DB
}

func NewPaymentTransactionRepository(db *gorm.DB) *PaymentTransactionRepository {
	return &PaymentTransactionRepository{db: db}
}

func (r *PaymentTransactionRepository) WithTx(tx *gorm.DB) *PaymentTransactionRepository {
	return &PaymentTransactionRepository{db: tx}
}

// PaymentFilter narrows FindUnreconciled.
type PaymentFilter struct {
	FullName string
	FromDate time.Time
	ToDate   time.Time
}

// FindUnreconciled returns payments with money left to allocate, newest first.
func (r *PaymentTransactionRepository) FindUnreconciled(ctx context.Context, f PaymentFilter) ([]models.PaymentTransaction, error) {
	var txs []models.PaymentTransaction

	q := r.db.WithContext(ctx).Where("status IN ?", models.OpenPaymentStatuses)
	q = nameLike(q, f.FullName)
	q = dateRange(q, "transaction_date", f.FromDate, f.ToDate)

	err := q.Order("created_at DESC").Find(&txs).Error
	return txs, err
}

// SearchFilter narrows Search. Empty fields are ignored.
type SearchFilter struct {
	PhoneNumber              string
	Name                     string
	Amount                   *decimal.Decimal
	OriginatorConversationID string
}

// Search is the manual lookup used from a sales invoice.
func (r *PaymentTransactionRepository) Search(ctx context.Context, f SearchFilter) ([]models.PaymentTransaction, error) {
	var txs []models.PaymentTransaction

	q := r.db.WithContext(ctx).Where("status IN ?", models.OpenPaymentStatuses)
	if f.PhoneNumber != "" {
		q = q.Where("mobile_number LIKE ?", "%"+f.PhoneNumber+"%")
	}
	if f.Amount != nil {
		q = q.Where("amount = ?", *f.Amount)
	}
	if f.OriginatorConversationID != "" {
		q = q.Where("originator_conversation_id LIKE ?", "%"+f.OriginatorConversationID+"%")
	}
	q = nameLike(q, f.Name)

	err := q.Order("created_at DESC").Find(&txs).Error
	return txs, err
}

func (r *PaymentTransactionRepository) GetByName(ctx context.Context, name string) (*models.PaymentTransaction, error) {
	var tx models.PaymentTransaction
	if err := r.db.WithContext(ctx).First(&tx, "name = ?", name).Error; err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *PaymentTransactionRepository) GetByKCBTransactionID(ctx context.Context, id string) (*models.PaymentTransaction, error) {
	var tx models.PaymentTransaction
	if err := r.db.WithContext(ctx).First(&tx, "kcb_transaction_id = ?", id).Error; err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *PaymentTransactionRepository) Create(ctx context.Context, tx *models.PaymentTransaction) error {
	return r.db.WithContext(ctx).Create(tx).Error
}

func (r *PaymentTransactionRepository) Save(ctx context.Context, tx *models.PaymentTransaction) error {
	return r.db.WithContext(ctx).Save(tx).Error
}

// nameLike matches name against any part of the payer's name.
func nameLike(q *gorm.DB, name string) *gorm.DB {
	if name == "" {
		return q
	}
	like := "%" + strings.ToLower(name) + "%"
	return q.Where(
		"LOWER(first_name) LIKE ? OR LOWER(middle_name) LIKE ? OR LOWER(last_name) LIKE ? OR LOWER(first_name || ' ' || last_name) LIKE ?",
		like, like, like, like,
	)
}
