package models

import "time"

const (
	PurchaseStatusPending   = "pending"
	PurchaseStatusCompleted = "completed"
	PurchaseStatusFailed    = "failed"
)

// TokenPurchase records one checkout attempt for a token package. The status
// moves pending -> completed or pending -> failed exactly once; the transition
// is driven solely by payment provider webhooks, never by the checkout
// creation response.
type TokenPurchase struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	OwnerID            uint      `gorm:"not null;index" json:"owner_id"`
	ProviderPaymentRef string    `gorm:"type:varchar(191);not null;uniqueIndex:ux_token_purchases_provider_ref" json:"provider_payment_ref"`
	PackageID          string    `gorm:"type:varchar(50);not null" json:"package_id"`
	TokenCount         int       `gorm:"not null" json:"token_count"`
	AmountCents        int64     `gorm:"not null" json:"amount_cents"`
	Status             string    `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
