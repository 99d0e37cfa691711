package models

import "time"

// TokenGrant is one unit of fax credit. A grant is available while it has not
// been consumed and has not passed its expiration. Grants are never deleted;
// consumption sets ConsumedAt exactly once.
type TokenGrant struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	OwnerID          uint       `gorm:"not null;index:idx_token_grants_owner_available,priority:1" json:"owner_id"`
	SourcePurchaseID *uint      `gorm:"index" json:"source_purchase_id,omitempty"`
	ExpiresAt        time.Time  `gorm:"not null;index:idx_token_grants_owner_available,priority:2" json:"expires_at"`
	ConsumedAt       *time.Time `gorm:"type:timestamp;default:null;index" json:"consumed_at,omitempty"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// Available reports whether the grant can still pay for a fax at the given time.
func (g *TokenGrant) Available(now time.Time) bool {
	return g.ConsumedAt == nil && g.ExpiresAt.After(now)
}
