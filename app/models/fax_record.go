package models

import "time"

const (
	FaxStatusPending   = "pending"
	FaxStatusSending   = "sending"
	FaxStatusDelivered = "delivered"
	FaxStatusFailed    = "failed"
)

// FaxRecord is one fax send attempt and its delivery lifecycle. Status only
// moves forward (pending -> sending -> delivered/failed); stale webhooks are
// ignored by the conditional update in the fax repository.
type FaxRecord struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	UUID            string    `gorm:"type:varchar(36);not null;uniqueIndex" json:"uuid"`
	OwnerID         uint      `gorm:"not null;index" json:"owner_id"`
	RecipientNumber string    `gorm:"type:varchar(20);not null" json:"recipient_number"`
	DocumentURL     string    `gorm:"type:varchar(500);not null" json:"document_url"`
	CoverMessage    string    `gorm:"type:text" json:"cover_message,omitempty"`
	ProviderFaxID   *string   `gorm:"type:varchar(191);uniqueIndex:ux_fax_records_provider_fax" json:"provider_fax_id,omitempty"`
	Status          string    `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	TokensUsed      int       `gorm:"not null;default:1" json:"tokens_used"`
	CreatedAt       time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
