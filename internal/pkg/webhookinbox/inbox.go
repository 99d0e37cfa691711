// Package webhookinbox is the durable dedup ledger for inbound provider
// events. Admission is a single insert-if-absent against the unique
// (source, provider_event_id) key, so concurrent redeliveries of the same
// event resolve to exactly one fresh admission.
package webhookinbox

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/faxsnap/faxsnap/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AdmitInput is the normalized inbound event to record.
type AdmitInput struct {
	Source          string
	ProviderEventID string
	EventType       string
	PayloadJSON     string
}

// Repository provides DB operations used by the inbox.
type Repository interface {
	CreateEventIfNotExists(event *models.InboundWebhookEvent) (bool, *models.InboundWebhookEvent, error)
	MarkProcessed(id uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates an inbox repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreateEventIfNotExists(event *models.InboundWebhookEvent) (bool, *models.InboundWebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "source"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.InboundWebhookEvent
	if err := r.db.Where("source = ? AND provider_event_id = ?", event.Source, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.InboundWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

// Inbox decides exactly-once application of external events.
type Inbox struct {
	repo Repository
}

// NewInbox creates an inbox from an injected repository.
func NewInbox(repo Repository) *Inbox {
	return &Inbox{repo: repo}
}

// NewInboxFromDB creates an inbox from a GORM DB handle.
func NewInboxFromDB(db *gorm.DB) *Inbox {
	return NewInbox(NewRepository(db))
}

// Admit records the event and reports whether it is fresh. A false result is
// a duplicate delivery: the caller must skip side effects but still respond
// with success, since webhook senders retry on anything else.
func (i *Inbox) Admit(ctx context.Context, in AdmitInput) (bool, *models.InboundWebhookEvent, error) {
	_ = ctx
	source := strings.ToLower(strings.TrimSpace(in.Source))
	if source == "" {
		return false, nil, errors.New("source is required")
	}

	event := &models.InboundWebhookEvent{
		Source:          source,
		ProviderEventID: EventID(in.ProviderEventID, in.PayloadJSON),
		EventType:       strings.TrimSpace(in.EventType),
		PayloadJSON:     in.PayloadJSON,
	}
	return i.repo.CreateEventIfNotExists(event)
}

// MarkProcessed records the processing outcome on the stored event.
func (i *Inbox) MarkProcessed(ctx context.Context, eventID uint, processingErr error) error {
	_ = ctx
	if eventID == 0 {
		return errors.New("event id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return i.repo.MarkProcessed(eventID, errMsg)
}

// EventID returns the provider event id, or a payload hash when the provider
// did not assign one, so the dedup key is always populated.
func EventID(providerEventID, payloadJSON string) string {
	id := strings.TrimSpace(providerEventID)
	if id != "" {
		return id
	}
	sum := sha256.Sum256([]byte(payloadJSON))
	return "hash:" + hex.EncodeToString(sum[:])
}
