package repository

import (
	"context"

	"kcb-payments-workbench/internal/models"

	"gorm.io/gorm"
)

type PaymentEntryRepository struct {
	db *gorm.DB
}

func NewPaymentEntryRepository(db *gorm.DB) *PaymentEntryRepository {
	return &PaymentEntryRepository{db: db}
}

func (r *PaymentEntryRepository) WithTx(tx *gorm.DB) *PaymentEntryRepository {
	return &PaymentEntryRepository{db: tx}
}

// Create inserts the entry together with its references.
func (r *PaymentEntryRepository) Create(ctx context.Context, pe *models.PaymentEntry) error {
	return r.db.WithContext(ctx).Create(pe).Error
}

func (r *PaymentEntryRepository) GetByName(ctx context.Context, name string) (*models.PaymentEntry, error) {
	var pe models.PaymentEntry
	if err := r.db.WithContext(ctx).Preload("References").First(&pe, "name = ?", name).Error; err != nil {
		return nil, err
	}
	return &pe, nil
}

// AddReference allocates part of an existing entry to an invoice.
func (r *PaymentEntryRepository) AddReference(ctx context.Context, ref *models.PaymentEntryReference) error {
	return r.db.WithContext(ctx).Create(ref).Error
}

// SetUnallocated stores the amount of an entry not yet allocated.
func (r *PaymentEntryRepository) SetUnallocated(ctx context.Context, pe *models.PaymentEntry) error {
	return r.db.WithContext(ctx).Model(pe).Update("unallocated_amount", pe.UnallocatedAmount).Error
}

func (r *PaymentEntryRepository) LogReconciliation(ctx context.Context, entry *models.ReconciliationLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// Logs returns the reconciliation audit trail, newest first.
func (r *PaymentEntryRepository) Logs(ctx context.Context, company string) ([]models.ReconciliationLog, error) {
	var logs []models.ReconciliationLog
	q := r.db.WithContext(ctx)
	if company != "" {
		q = q.Where("company = ?", company)
	}
	err := q.Order("created_at DESC").Find(&logs).Error
	return logs, err
}
