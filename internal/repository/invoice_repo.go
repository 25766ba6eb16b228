package repository

import (
	"context"
	"time"

	"kcb-payments-workbench/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = gorm.ErrRecordNotFound

type InvoiceRepository struct {
	db *gorm.DB
}

func NewInvoiceRepository(db *gorm.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

// Expose DB if needed
func (r *InvoiceRepository) DB() *gorm.DB {
	return r.db
}

// WithTx returns a repository bound to tx.
func (r *InvoiceRepository) WithTx(tx *gorm.DB) *InvoiceRepository {
	return &InvoiceRepository{db: tx}
}

// InvoiceFilter narrows FindOutstanding. Empty fields are ignored.
type InvoiceFilter struct {
	Company   string
	Customer  string
	Currency  string
	VoucherNo string
	FromDate  time.Time
	ToDate    time.Time
}

// FindOutstanding returns submitted, non-return invoices that still have
// an outstanding balance, earliest due date first.
func (r *InvoiceRepository) FindOutstanding(ctx context.Context, f InvoiceFilter) ([]models.SalesInvoice, error) {
	var invoices []models.SalesInvoice

	q := r.db.WithContext(ctx).
		Where("doc_status = ?", 1).
		Where("is_return = ?", false).
		Where("outstanding_amount > ?", 0)

	if f.Company != "" {
		q = q.Where("company = ?", f.Company)
	}
	if f.Customer != "" {
		q = q.Where("customer = ?", f.Customer)
	}
	if f.Currency != "" {
		q = q.Where("currency = ?", f.Currency)
	}
	if f.VoucherNo != "" {
		q = q.Where("name = ?", f.VoucherNo)
	}
	q = dateRange(q, "posting_date", f.FromDate, f.ToDate)

	err := q.Order("due_date ASC").Order("name ASC").Find(&invoices).Error
	return invoices, err
}

// GetByName fetch a single invoice by name
func (r *InvoiceRepository) GetByName(ctx context.Context, name string) (*models.SalesInvoice, error) {
	var invoice models.SalesInvoice
	if err := r.db.WithContext(ctx).First(&invoice, "name = ?", name).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

// FindByNames loads the named invoices, earliest due date first.
func (r *InvoiceRepository) FindByNames(ctx context.Context, names []string) ([]models.SalesInvoice, error) {
	var invoices []models.SalesInvoice
	err := r.db.WithContext(ctx).
		Where("name IN ?", names).
		Order("due_date ASC").Order("name ASC").
		Find(&invoices).Error
	return invoices, err
}

// Create inserts an invoice, ignoring duplicates by name.
func (r *InvoiceRepository) Create(ctx context.Context, inv *models.SalesInvoice) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(inv).Error
}

func (r *InvoiceRepository) Save(ctx context.Context, inv *models.SalesInvoice) error {
	return r.db.WithContext(ctx).Save(inv).Error
}

// dateRange applies an inclusive calendar date range on column.
func dateRange(q *gorm.DB, column string, from, to time.Time) *gorm.DB {
	if !from.IsZero() {
		q = q.Where(column+" >= ?", from)
	}
	if !to.IsZero() {
		q = q.Where(column+" < ?", to.AddDate(0, 0, 1))
	}
	return q
}
