package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/faxsnap/faxsnap/app/models"
	"gorm.io/gorm"
)

// GrantLifetime is how long a purchased token stays usable.
const GrantLifetime = 6 // months

// Service owns token grant issuance and consumption. All mutation goes through
// the repository's atomic operations; the service never caches balances.
type Service struct {
	repo Repository
}

// NewService creates a ledger service from an injected repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// NewServiceFromDB creates a ledger service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db))
}

// DefaultExpiry returns the expiration timestamp for grants issued now.
func DefaultExpiry(now time.Time) time.Time {
	return now.AddDate(0, GrantLifetime, 0)
}

// GrantTokens creates count grants for the owner as one atomic unit. The
// caller is responsible for event-level deduplication; use
// GrantTokensForPurchase when the grants belong to a purchase so issuance
// itself is retry-safe.
func (s *Service) GrantTokens(ctx context.Context, ownerID uint, count int, purchaseID *uint, expiresAt time.Time) error {
	_ = ctx
	if ownerID == 0 {
		return errors.New("owner_id is required")
	}
	if count <= 0 {
		return fmt.Errorf("grant count must be positive, got %d", count)
	}

	grants := make([]models.TokenGrant, count)
	for i := range grants {
		grants[i] = models.TokenGrant{
			OwnerID:          ownerID,
			SourcePurchaseID: purchaseID,
			ExpiresAt:        expiresAt,
		}
	}
	if err := s.repo.CreateGrants(grants); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// GrantTokensForPurchase issues grants for a completed purchase. It is
// idempotent by purchase id: the repository checks for existing grants and
// inserts inside one transaction holding a lock on the purchase row, so a
// webhook delivery racing the reconciler sweep cannot double-issue. A crash
// between "purchase completed" and "tokens granted" is healed by simply
// re-running the call.
func (s *Service) GrantTokensForPurchase(ctx context.Context, ownerID, purchaseID uint, count int, expiresAt time.Time) (bool, error) {
	_ = ctx
	if ownerID == 0 {
		return false, errors.New("owner_id is required")
	}
	if purchaseID == 0 {
		return false, errors.New("purchase_id is required")
	}
	if count <= 0 {
		return false, fmt.Errorf("grant count must be positive, got %d", count)
	}

	pid := purchaseID
	grants := make([]models.TokenGrant, count)
	for i := range grants {
		grants[i] = models.TokenGrant{
			OwnerID:          ownerID,
			SourcePurchaseID: &pid,
			ExpiresAt:        expiresAt,
		}
	}
	created, err := s.repo.CreateGrantsForPurchase(purchaseID, grants)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return created, nil
}

// ConsumeTokens atomically consumes n available grants, soonest-expiring
// first. It returns ErrInsufficientTokens without touching any grant when
// fewer than n are available; the result of this call is the gate for sending
// a fax, never a prior balance read.
func (s *Service) ConsumeTokens(ctx context.Context, ownerID uint, n int) (int, error) {
	_ = ctx
	if ownerID == 0 {
		return 0, errors.New("owner_id is required")
	}
	consumed, err := s.repo.ConsumeAvailable(ownerID, n, time.Now())
	if err != nil {
		if errors.Is(err, ErrInsufficientTokens) {
			return 0, ErrInsufficientTokens
		}
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return consumed, nil
}

// AvailableCount returns how many grants the owner can currently spend. Used
// for display; the atomic ConsumeTokens result gates actual sends.
func (s *Service) AvailableCount(ctx context.Context, ownerID uint) (int64, error) {
	_ = ctx
	count, err := s.repo.CountAvailable(ownerID, time.Now())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return count, nil
}

// ExpiringSoonCount returns how many available grants expire within the given
// window, for dashboard warnings.
func (s *Service) ExpiringSoonCount(ctx context.Context, ownerID uint, window time.Duration) (int64, error) {
	_ = ctx
	now := time.Now()
	count, err := s.repo.CountAvailableExpiringBefore(ownerID, now, now.Add(window))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return count, nil
}
