package ledger

import (
	"time"

	"github.com/faxsnap/faxsnap/app/models"
	"gorm.io/gorm"
)

// Repository provides DB operations used by the ledger service.
type Repository interface {
	CreateGrants(grants []models.TokenGrant) error
	CreateGrantsForPurchase(purchaseID uint, grants []models.TokenGrant) (bool, error)
	ConsumeAvailable(ownerID uint, n int, now time.Time) (int, error)
	CountAvailable(ownerID uint, now time.Time) (int64, error)
	CountAvailableExpiringBefore(ownerID uint, now, until time.Time) (int64, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a ledger repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

// CreateGrants inserts all grants in a single transaction: either every row
// exists afterwards or none do.
func (r *gormRepository) CreateGrants(grants []models.TokenGrant) error {
	if len(grants) == 0 {
		return nil
	}
	return r.db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(&grants).Error
	})
}

// ConsumeAvailable marks the n soonest-expiring available grants as consumed.
// The row lock taken by the SELECT ... FOR UPDATE closes the window between
// two concurrent consumers racing for the last grant; if fewer than n grants
// are lockable the transaction rolls back and nothing is consumed.
func (r *gormRepository) ConsumeAvailable(ownerID uint, n int, now time.Time) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var ids []uint
		if err := tx.Raw(
			"SELECT id FROM token_grants WHERE owner_id = ? AND consumed_at IS NULL AND expires_at > ? ORDER BY expires_at ASC, id ASC LIMIT ? FOR UPDATE",
			ownerID, now, n,
		).Scan(&ids).Error; err != nil {
			return err
		}
		if len(ids) < n {
			return ErrInsufficientTokens
		}
		res := tx.Model(&models.TokenGrant{}).
			Where("id IN ? AND consumed_at IS NULL", ids).
			Update("consumed_at", now)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != int64(n) {
			return ErrInsufficientTokens
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (r *gormRepository) CountAvailable(ownerID uint, now time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&models.TokenGrant{}).
		Where("owner_id = ? AND consumed_at IS NULL AND expires_at > ?", ownerID, now).
		Count(&count).Error
	return count, err
}

func (r *gormRepository) CountAvailableExpiringBefore(ownerID uint, now, until time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&models.TokenGrant{}).
		Where("owner_id = ? AND consumed_at IS NULL AND expires_at > ? AND expires_at <= ?", ownerID, now, until).
		Count(&count).Error
	return count, err
}

// CreateGrantsForPurchase inserts the batch only if the purchase has no grants
// yet. The purchase row is locked first, so a webhook delivery and a
// reconciler sweep issuing for the same purchase serialize here and exactly
// one of them inserts.
func (r *gormRepository) CreateGrantsForPurchase(purchaseID uint, grants []models.TokenGrant) (bool, error) {
	if len(grants) == 0 {
		return false, nil
	}
	created := false
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var lockedID uint
		if err := tx.Raw(
			"SELECT id FROM token_purchases WHERE id = ? FOR UPDATE", purchaseID,
		).Scan(&lockedID).Error; err != nil {
			return err
		}
		var existing int64
		if err := tx.Model(&models.TokenGrant{}).
			Where("source_purchase_id = ?", purchaseID).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return nil
		}
		if err := tx.Create(&grants).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	return created, err
}
