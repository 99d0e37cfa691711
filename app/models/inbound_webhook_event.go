package models

import "time"

// Webhook source constants used by the dedup inbox.
const (
	WebhookSourceStripe = "stripe"
	WebhookSourceTelnyx = "telnyx"
)

// InboundWebhookEvent is the dedup ledger for external events. The unique
// (source, provider_event_id) key makes admission an atomic insert-if-absent;
// a conflicting insert marks the delivery as a duplicate that must still be
// acknowledged with success.
type InboundWebhookEvent struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Source          string     `gorm:"type:varchar(20);not null;index:ux_inbound_webhook_events_source_event,unique,priority:1" json:"source"`
	ProviderEventID string     `gorm:"type:varchar(191);not null;default:'';index:ux_inbound_webhook_events_source_event,unique,priority:2" json:"provider_event_id"`
	EventType       string     `gorm:"type:varchar(100);not null;index" json:"event_type"`
	PayloadJSON     string     `gorm:"type:longtext;not null" json:"payload_json"`
	ReceivedAt      time.Time  `gorm:"autoCreateTime;index" json:"received_at"`
	ProcessedAt     *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ProcessingError string     `gorm:"type:text" json:"processing_error"`
}
