package fax

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/faxsnap/faxsnap/app/models"
	"github.com/faxsnap/faxsnap/internal/pkg/ledger"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// recipientPattern accepts an optional leading + followed by up to 15 digits,
// first digit 1-9.
var recipientPattern = regexp.MustCompile(`^\+?[1-9][0-9]{0,14}$`)

var validate = validator.New()

// Service owns fax submission and the delivery state machine.
type Service struct {
	repo   Repository
	ledger *ledger.Service
	sender Sender
}

// NewService creates a fax service from injected collaborators.
func NewService(repo Repository, ledgerSvc *ledger.Service, sender Sender) *Service {
	return &Service{repo: repo, ledger: ledgerSvc, sender: sender}
}

// NewServiceFromDB creates a fax service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, sender Sender) *Service {
	return NewService(NewRepository(db), ledger.NewServiceFromDB(db), sender)
}

// SendFaxInput is one submission request.
type SendFaxInput struct {
	OwnerID         uint   `validate:"required"`
	RecipientNumber string `validate:"required"`
	SenderNumber    string
	DocumentURL     string `validate:"required,url"`
	CoverMessage    string `validate:"max=1000"`
}

// NormalizeRecipient validates the destination number and returns it in
// +<digits> form.
func NormalizeRecipient(raw string) (string, error) {
	number := strings.TrimSpace(raw)
	number = strings.ReplaceAll(number, " ", "")
	number = strings.ReplaceAll(number, "-", "")
	if !recipientPattern.MatchString(number) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRecipient, raw)
	}
	if !strings.HasPrefix(number, "+") {
		number = "+" + number
	}
	return number, nil
}

// SendFax is the synchronous submission path: validate, atomically consume a
// token, submit to the provider, record the attempt.
//
// The token consumption result is the gate; there is deliberately no
// read-balance pre-check that could race a concurrent send. Known limitation:
// if the provider call fails after the token was consumed, the token is not
// refunded. The failure is surfaced as ErrProviderUnavailable so callers can
// tell it apart from a rejection before consumption.
func (s *Service) SendFax(ctx context.Context, in SendFaxInput) (*models.FaxRecord, error) {
	if err := validate.Struct(in); err != nil {
		return nil, fmt.Errorf("invalid fax submission: %w", err)
	}
	recipient, err := NormalizeRecipient(in.RecipientNumber)
	if err != nil {
		return nil, err
	}

	if _, err := s.ledger.ConsumeTokens(ctx, in.OwnerID, 1); err != nil {
		return nil, err
	}

	acceptance, err := s.sender.SendFax(ctx, recipient, in.SenderNumber, in.DocumentURL)
	if err != nil {
		log.Errorf("[Fax] provider rejected send for user %d after token consumption: %v", in.OwnerID, err)
		return nil, err
	}

	providerFaxID := acceptance.ID
	record := &models.FaxRecord{
		UUID:            uuid.NewString(),
		OwnerID:         in.OwnerID,
		RecipientNumber: recipient,
		DocumentURL:     in.DocumentURL,
		CoverMessage:    in.CoverMessage,
		ProviderFaxID:   &providerFaxID,
		Status:          StatusFromAcceptance(acceptance.Status),
		TokensUsed:      1,
	}
	if err := s.repo.CreateFax(record); err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrStorageUnavailable, err)
	}
	return record, nil
}

// GetFax returns one fax owned by the given user.
func (s *Service) GetFax(ctx context.Context, ownerID uint, uuid string) (*models.FaxRecord, error) {
	_ = ctx
	record, err := s.repo.GetByUUID(uuid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ledger.ErrStorageUnavailable, err)
	}
	if record.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return record, nil
}

// ListFaxes returns the owner's send history, newest first.
func (s *Service) ListFaxes(ctx context.Context, ownerID uint, offset, limit int) ([]models.FaxRecord, error) {
	_ = ctx
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	records, err := s.repo.ListByOwner(ownerID, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrStorageUnavailable, err)
	}
	return records, nil
}

// AuditStatusEvent appends the raw event to the delivery trail without
// applying any transition. Redelivered events take this path: the state was
// already applied on first delivery, but every inbound copy leaves a trail
// entry.
func (s *Service) AuditStatusEvent(ctx context.Context, ev *StatusEvent, rawPayload []byte) error {
	_ = ctx
	return s.appendEventLog(ev, rawPayload)
}

func (s *Service) appendEventLog(ev *StatusEvent, rawPayload []byte) error {
	faxID := ev.FaxID
	if faxID == "" {
		faxID = "unknown"
	}
	if err := s.repo.AppendEventLog(&models.FaxEventLog{
		ProviderFaxID: faxID,
		EventType:     ev.EventType,
		Status:        ev.Status,
		PayloadJSON:   string(rawPayload),
	}); err != nil {
		return fmt.Errorf("%w: %v", ledger.ErrStorageUnavailable, err)
	}
	return nil
}

// ApplyStatusEvent records the raw event in the audit trail and applies the
// forward-only transition it implies. It returns whether any fax changed
// state. Events for unknown types or unknown fax ids are audited and dropped;
// only storage failures bubble up so the webhook responds retry-worthy.
func (s *Service) ApplyStatusEvent(ctx context.Context, ev *StatusEvent, rawPayload []byte) (bool, error) {
	_ = ctx
	if err := s.appendEventLog(ev, rawPayload); err != nil {
		return false, err
	}

	toStatus, known := StatusForEvent(ev.EventType)
	if !known || ev.FaxID == "" {
		return false, nil
	}

	if _, err := s.repo.GetByProviderFaxID(ev.FaxID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// A record cannot be backfilled without owner and token context.
			log.Warnf("[Fax] status event %s for unknown provider fax id %s", ev.EventType, ev.FaxID)
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ledger.ErrStorageUnavailable, err)
	}

	changed, err := s.repo.AdvanceStatus(ev.FaxID, toStatus, time.Now())
	if err != nil {
		return false, fmt.Errorf("%w: %v", ledger.ErrStorageUnavailable, err)
	}
	if !changed {
		log.Infof("[Fax] ignoring stale %s event for fax %s", ev.EventType, ev.FaxID)
	}
	return changed, nil
}
