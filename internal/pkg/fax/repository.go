package fax

import (
	"time"

	"github.com/faxsnap/faxsnap/app/models"
	"gorm.io/gorm"
)

// Repository provides DB operations used by the fax service.
type Repository interface {
	CreateFax(record *models.FaxRecord) error
	GetByUUID(uuid string) (*models.FaxRecord, error)
	GetByProviderFaxID(providerFaxID string) (*models.FaxRecord, error)
	ListByOwner(ownerID uint, offset, limit int) ([]models.FaxRecord, error)
	AdvanceStatus(providerFaxID, toStatus string, at time.Time) (bool, error)
	AppendEventLog(entry *models.FaxEventLog) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a fax repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreateFax(record *models.FaxRecord) error {
	return r.db.Create(record).Error
}

func (r *gormRepository) GetByUUID(uuid string) (*models.FaxRecord, error) {
	var record models.FaxRecord
	err := r.db.Where("uuid = ?", uuid).First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *gormRepository) GetByProviderFaxID(providerFaxID string) (*models.FaxRecord, error) {
	var record models.FaxRecord
	err := r.db.Where("provider_fax_id = ?", providerFaxID).First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *gormRepository) ListByOwner(ownerID uint, offset, limit int) ([]models.FaxRecord, error) {
	var records []models.FaxRecord
	err := r.db.Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&records).Error
	return records, err
}

// AdvanceStatus applies a forward-only transition as one conditional update.
// The status predicate restricts the move to lower-ranked states, so an
// out-of-order or duplicated webhook affects zero rows and reports false.
func (r *gormRepository) AdvanceStatus(providerFaxID, toStatus string, at time.Time) (bool, error) {
	prior := priorStatuses(toStatus)
	if len(prior) == 0 {
		return false, nil
	}
	res := r.db.Model(&models.FaxRecord{}).
		Where("provider_fax_id = ? AND status IN ?", providerFaxID, prior).
		Updates(map[string]interface{}{
			"status":     toStatus,
			"updated_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *gormRepository) AppendEventLog(entry *models.FaxEventLog) error {
	return r.db.Create(entry).Error
}
