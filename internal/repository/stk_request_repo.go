package repository

import (
	"context"
	"errors"

	"kcb-payments-workbench/internal/models"

	"gorm.io/gorm"
)

type STKRequestRepository struct {
	db *gorm.DB
}

func NewSTKRequestRepository(db *gorm.DB) *STKRequestRepository {
	return &STKRequestRepository{db: db}
}

func (r *STKRequestRepository) GetByName(ctx context.Context, name string) (*models.STKRequest, error) {
	var req models.STKRequest
	if err := r.db.WithContext(ctx).First(&req, "name = ?", name).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

// FindByCallbackIDs looks a request up by merchant request id, then by
// checkout request id.
func (r *STKRequestRepository) FindByCallbackIDs(ctx context.Context, merchantRequestID, checkoutRequestID string) (*models.STKRequest, error) {
	var req models.STKRequest
	if merchantRequestID != "" {
		err := r.db.WithContext(ctx).First(&req, "merchant_request_id = ?", merchantRequestID).Error
		if err == nil {
			return &req, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	if checkoutRequestID == "" {
		return nil, ErrNotFound
	}
	if err := r.db.WithContext(ctx).First(&req, "checkout_request_id = ?", checkoutRequestID).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

// FindCompletedByReceipt returns the completed request paid with receipt.
func (r *STKRequestRepository) FindCompletedByReceipt(ctx context.Context, receipt string) (*models.STKRequest, error) {
	var req models.STKRequest
	err := r.db.WithContext(ctx).
		Where("mpesa_receipt_number = ? AND status = ?", receipt, models.STKCompleted).
		First(&req).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *STKRequestRepository) Create(ctx context.Context, req *models.STKRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *STKRequestRepository) Save(ctx context.Context, req *models.STKRequest) error {
	return r.db.WithContext(ctx).Save(req).Error
}

func (r *STKRequestRepository) Settings(ctx context.Context, name string) (*models.MpesaSettings, error) {
	var s models.MpesaSettings
	if err := r.db.WithContext(ctx).First(&s, "name = ?", name).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *STKRequestRepository) SaveSettings(ctx context.Context, s *models.MpesaSettings) error {
	return r.db.WithContext(ctx).Save(s).Error
}
