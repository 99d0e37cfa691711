package payments

import (
	"github.com/faxsnap/faxsnap/app/models"
	"gorm.io/gorm"
)

// Repository provides DB operations used by the payments service.
type Repository interface {
	CreatePurchase(purchase *models.TokenPurchase) error
	UpdateProviderRef(purchaseID uint, providerRef string) error
	GetPurchaseByProviderRef(providerRef string) (*models.TokenPurchase, error)
	FinalizePurchase(providerRef, toStatus string) (bool, error)
	ListCompletedUngranted(limit int) ([]models.TokenPurchase, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a payments repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreatePurchase(purchase *models.TokenPurchase) error {
	return r.db.Create(purchase).Error
}

// UpdateProviderRef swaps the placeholder idempotency key for the provider's
// payment reference once the checkout session exists.
func (r *gormRepository) UpdateProviderRef(purchaseID uint, providerRef string) error {
	return r.db.Model(&models.TokenPurchase{}).
		Where("id = ?", purchaseID).
		Update("provider_payment_ref", providerRef).Error
}

func (r *gormRepository) GetPurchaseByProviderRef(providerRef string) (*models.TokenPurchase, error) {
	var purchase models.TokenPurchase
	err := r.db.Where("provider_payment_ref = ?", providerRef).First(&purchase).Error
	if err != nil {
		return nil, err
	}
	return &purchase, nil
}

// FinalizePurchase moves a pending purchase to a terminal status. The status
// predicate makes the transition a single conditional update: a redelivered
// or racing event affects zero rows and reports false.
func (r *gormRepository) FinalizePurchase(providerRef, toStatus string) (bool, error) {
	res := r.db.Model(&models.TokenPurchase{}).
		Where("provider_payment_ref = ? AND status = ?", providerRef, models.PurchaseStatusPending).
		Update("status", toStatus)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListCompletedUngranted returns completed purchases that have no grants yet,
// the healing set for a crash between purchase finalize and token issuance.
func (r *gormRepository) ListCompletedUngranted(limit int) ([]models.TokenPurchase, error) {
	var purchases []models.TokenPurchase
	err := r.db.
		Where("status = ?", models.PurchaseStatusCompleted).
		Where("NOT EXISTS (SELECT 1 FROM token_grants WHERE token_grants.source_purchase_id = token_purchases.id)").
		Order("id ASC").
		Limit(limit).
		Find(&purchases).Error
	return purchases, err
}
