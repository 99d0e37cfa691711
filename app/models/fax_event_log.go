package models

import "time"

// FaxEventLog is the append-only audit trail of raw fax provider events. Every
// inbound event is recorded here regardless of whether it changed any state.
// The trail exists for operational debugging and may be pruned.
type FaxEventLog struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	ProviderFaxID string    `gorm:"type:varchar(191);not null;index" json:"provider_fax_id"`
	EventType     string    `gorm:"type:varchar(100);not null" json:"event_type"`
	Status        string    `gorm:"type:varchar(50)" json:"status"`
	PayloadJSON   string    `gorm:"type:longtext;not null" json:"payload_json"`
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
