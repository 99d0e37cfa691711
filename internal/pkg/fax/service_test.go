package fax

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/faxsnap/faxsnap/app/models"
	"github.com/faxsnap/faxsnap/internal/pkg/ledger"
	"gorm.io/gorm"
)

type memFaxRepo struct {
	mu      sync.Mutex
	nextID  uint
	records map[string]*models.FaxRecord // keyed by uuid
	events  []models.FaxEventLog

	createErr error
}

func newMemFaxRepo() *memFaxRepo {
	return &memFaxRepo{records: map[string]*models.FaxRecord{}}
}

func (r *memFaxRepo) CreateFax(record *models.FaxRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	r.nextID++
	record.ID = r.nextID
	clone := *record
	r.records[record.UUID] = &clone
	return nil
}

func (r *memFaxRepo) GetByUUID(uuid string) (*models.FaxRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[uuid]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	clone := *record
	return &clone, nil
}

func (r *memFaxRepo) GetByProviderFaxID(providerFaxID string) (*models.FaxRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, record := range r.records {
		if record.ProviderFaxID != nil && *record.ProviderFaxID == providerFaxID {
			clone := *record
			return &clone, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memFaxRepo) ListByOwner(ownerID uint, offset, limit int) ([]models.FaxRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.FaxRecord
	for _, record := range r.records {
		if record.OwnerID == ownerID {
			out = append(out, *record)
		}
	}
	return out, nil
}

func (r *memFaxRepo) AdvanceStatus(providerFaxID, toStatus string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prior := priorStatuses(toStatus)
	for _, record := range r.records {
		if record.ProviderFaxID == nil || *record.ProviderFaxID != providerFaxID {
			continue
		}
		for _, p := range prior {
			if record.Status == p {
				record.Status = toStatus
				record.UpdatedAt = at
				return true, nil
			}
		}
		return false, nil
	}
	return false, nil
}

func (r *memFaxRepo) AppendEventLog(entry *models.FaxEventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *entry)
	return nil
}

// memGrantRepo backs a real ledger.Service so SendFax exercises the actual
// consume-first gate.
type memGrantRepo struct {
	mu     sync.Mutex
	nextID uint
	grants []*models.TokenGrant
}

func (r *memGrantRepo) CreateGrants(grants []models.TokenGrant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range grants {
		r.nextID++
		grants[i].ID = r.nextID
		clone := grants[i]
		r.grants = append(r.grants, &clone)
	}
	return nil
}

func (r *memGrantRepo) ConsumeAvailable(ownerID uint, n int, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var available []*models.TokenGrant
	for _, g := range r.grants {
		if g.OwnerID == ownerID && g.Available(now) {
			available = append(available, g)
		}
	}
	if len(available) < n {
		return 0, ledger.ErrInsufficientTokens
	}
	for i := 0; i < len(available); i++ {
		for j := i + 1; j < len(available); j++ {
			if available[j].ExpiresAt.Before(available[i].ExpiresAt) {
				available[i], available[j] = available[j], available[i]
			}
		}
	}
	for i := 0; i < n; i++ {
		at := now
		available[i].ConsumedAt = &at
	}
	return n, nil
}

func (r *memGrantRepo) CountAvailable(ownerID uint, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, g := range r.grants {
		if g.OwnerID == ownerID && g.Available(now) {
			count++
		}
	}
	return count, nil
}

func (r *memGrantRepo) CountAvailableExpiringBefore(ownerID uint, now, until time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, g := range r.grants {
		if g.OwnerID == ownerID && g.Available(now) && !g.ExpiresAt.After(until) {
			count++
		}
	}
	return count, nil
}

func (r *memGrantRepo) CreateGrantsForPurchase(purchaseID uint, grants []models.TokenGrant) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range r.grants {
		if g.SourcePurchaseID != nil && *g.SourcePurchaseID == purchaseID {
			return false, nil
		}
	}
	for i := range grants {
		r.nextID++
		grants[i].ID = r.nextID
		clone := grants[i]
		r.grants = append(r.grants, &clone)
	}
	return true, nil
}

type fakeSender struct {
	mu         sync.Mutex
	calls      int
	lastTo     string
	acceptance *FaxAcceptance
	err        error
}

func (s *fakeSender) SendFax(ctx context.Context, to, from, mediaURL string) (*FaxAcceptance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.lastTo = to
	if s.err != nil {
		return nil, s.err
	}
	return s.acceptance, nil
}

func grantTokens(t *testing.T, repo *memGrantRepo, ownerID uint, count int, expiresAt time.Time) {
	t.Helper()
	grants := make([]models.TokenGrant, count)
	for i := range grants {
		grants[i] = models.TokenGrant{OwnerID: ownerID, ExpiresAt: expiresAt}
	}
	if err := repo.CreateGrants(grants); err != nil {
		t.Fatalf("CreateGrants: %v", err)
	}
}

func TestSendFax_NoTokensRejectedBeforeProvider(t *testing.T) {
	faxRepo := newMemFaxRepo()
	grantRepo := &memGrantRepo{}
	sender := &fakeSender{acceptance: &FaxAcceptance{ID: "fx-1", Status: "queued"}}
	svc := NewService(faxRepo, ledger.NewService(grantRepo), sender)

	_, err := svc.SendFax(context.Background(), SendFaxInput{
		OwnerID:         1,
		RecipientNumber: "+15551234567",
		DocumentURL:     "https://files.example.com/doc.pdf",
	})
	if !errors.Is(err, ledger.ErrInsufficientTokens) {
		t.Fatalf("expected ErrInsufficientTokens, got %v", err)
	}
	if sender.calls != 0 {
		t.Fatalf("provider was called %d times for a rejected send", sender.calls)
	}
	if len(faxRepo.records) != 0 {
		t.Fatalf("expected no fax record, got %d", len(faxRepo.records))
	}
}

func TestSendFax_ConsumesSoonestExpiringToken(t *testing.T) {
	faxRepo := newMemFaxRepo()
	grantRepo := &memGrantRepo{}
	now := time.Now()
	grantTokens(t, grantRepo, 1, 1, now.AddDate(0, 6, 0))
	grantTokens(t, grantRepo, 1, 1, now.AddDate(0, 1, 0)) // expires first

	sender := &fakeSender{acceptance: &FaxAcceptance{ID: "fx-42", Status: "queued"}}
	svc := NewService(faxRepo, ledger.NewService(grantRepo), sender)

	record, err := svc.SendFax(context.Background(), SendFaxInput{
		OwnerID:         1,
		RecipientNumber: "+1 555 123 4567",
		DocumentURL:     "https://files.example.com/doc.pdf",
		CoverMessage:    "see attached",
	})
	if err != nil {
		t.Fatalf("SendFax: %v", err)
	}
	if record.Status != models.FaxStatusPending {
		t.Fatalf("expected pending record, got %s", record.Status)
	}
	if record.ProviderFaxID == nil || *record.ProviderFaxID != "fx-42" {
		t.Fatalf("provider fax id not recorded: %+v", record.ProviderFaxID)
	}
	if record.TokensUsed != 1 {
		t.Fatalf("expected 1 token used, got %d", record.TokensUsed)
	}
	if sender.lastTo != "+15551234567" {
		t.Fatalf("recipient not normalized before provider call: %q", sender.lastTo)
	}

	// The soonest-expiring grant is the one consumed.
	for _, g := range grantRepo.grants {
		soon := g.ExpiresAt.Before(now.AddDate(0, 2, 0))
		if soon && g.ConsumedAt == nil {
			t.Fatal("soonest-expiring grant was not consumed")
		}
		if !soon && g.ConsumedAt != nil {
			t.Fatal("later-expiring grant consumed out of order")
		}
	}
}

func TestSendFax_AcceptanceStatusMapsToSending(t *testing.T) {
	faxRepo := newMemFaxRepo()
	grantRepo := &memGrantRepo{}
	grantTokens(t, grantRepo, 1, 1, time.Now().AddDate(0, 6, 0))
	sender := &fakeSender{acceptance: &FaxAcceptance{ID: "fx-7", Status: "sending"}}
	svc := NewService(faxRepo, ledger.NewService(grantRepo), sender)

	record, err := svc.SendFax(context.Background(), SendFaxInput{
		OwnerID:         1,
		RecipientNumber: "+15551234567",
		DocumentURL:     "https://files.example.com/doc.pdf",
	})
	if err != nil {
		t.Fatalf("SendFax: %v", err)
	}
	if record.Status != models.FaxStatusSending {
		t.Fatalf("expected sending, got %s", record.Status)
	}
}

func TestSendFax_InvalidRecipientConsumesNothing(t *testing.T) {
	faxRepo := newMemFaxRepo()
	grantRepo := &memGrantRepo{}
	grantTokens(t, grantRepo, 1, 1, time.Now().AddDate(0, 6, 0))
	sender := &fakeSender{acceptance: &FaxAcceptance{ID: "fx-1", Status: "queued"}}
	svc := NewService(faxRepo, ledger.NewService(grantRepo), sender)

	_, err := svc.SendFax(context.Background(), SendFaxInput{
		OwnerID:         1,
		RecipientNumber: "not-a-number",
		DocumentURL:     "https://files.example.com/doc.pdf",
	})
	if !errors.Is(err, ErrInvalidRecipient) {
		t.Fatalf("expected ErrInvalidRecipient, got %v", err)
	}
	count, _ := grantRepo.CountAvailable(1, time.Now())
	if count != 1 {
		t.Fatalf("token consumed for a rejected submission, balance %d", count)
	}
}

func TestSendFax_ProviderFailureAfterConsumption(t *testing.T) {
	faxRepo := newMemFaxRepo()
	grantRepo := &memGrantRepo{}
	grantTokens(t, grantRepo, 1, 1, time.Now().AddDate(0, 6, 0))
	sender := &fakeSender{err: ErrProviderUnavailable}
	svc := NewService(faxRepo, ledger.NewService(grantRepo), sender)

	_, err := svc.SendFax(context.Background(), SendFaxInput{
		OwnerID:         1,
		RecipientNumber: "+15551234567",
		DocumentURL:     "https://files.example.com/doc.pdf",
	})
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
	if len(faxRepo.records) != 0 {
		t.Fatalf("expected no fax record on provider failure, got %d", len(faxRepo.records))
	}
	// The token stays consumed; the failure surfaces distinctly so the caller
	// knows consumption already happened.
	count, _ := grantRepo.CountAvailable(1, time.Now())
	if count != 0 {
		t.Fatalf("expected consumed token to stay consumed, balance %d", count)
	}
}

func TestGetFax_OwnershipEnforced(t *testing.T) {
	faxRepo := newMemFaxRepo()
	providerID := "fx-1"
	if err := faxRepo.CreateFax(&models.FaxRecord{
		UUID:          "abc-123",
		OwnerID:       1,
		Status:        models.FaxStatusPending,
		ProviderFaxID: &providerID,
	}); err != nil {
		t.Fatalf("CreateFax: %v", err)
	}
	svc := NewService(faxRepo, ledger.NewService(&memGrantRepo{}), &fakeSender{})

	if _, err := svc.GetFax(context.Background(), 1, "abc-123"); err != nil {
		t.Fatalf("owner lookup failed: %v", err)
	}
	if _, err := svc.GetFax(context.Background(), 2, "abc-123"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign owner, got %v", err)
	}
	if _, err := svc.GetFax(context.Background(), 1, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing uuid, got %v", err)
	}
}

func applyEvent(t *testing.T, svc *Service, eventType, faxID string) bool {
	t.Helper()
	changed, err := svc.ApplyStatusEvent(context.Background(), &StatusEvent{
		EventID:   "evt-" + eventType,
		EventType: eventType,
		FaxID:     faxID,
	}, []byte(`{}`))
	if err != nil {
		t.Fatalf("ApplyStatusEvent(%s): %v", eventType, err)
	}
	return changed
}

func TestApplyStatusEvent_ForwardProgression(t *testing.T) {
	faxRepo := newMemFaxRepo()
	providerID := "fx-9"
	if err := faxRepo.CreateFax(&models.FaxRecord{
		UUID:          "u-9",
		OwnerID:       1,
		Status:        models.FaxStatusPending,
		ProviderFaxID: &providerID,
	}); err != nil {
		t.Fatalf("CreateFax: %v", err)
	}
	svc := NewService(faxRepo, ledger.NewService(&memGrantRepo{}), &fakeSender{})

	if !applyEvent(t, svc, "fax.sending", "fx-9") {
		t.Fatal("pending -> sending should apply")
	}
	if !applyEvent(t, svc, "fax.delivered", "fx-9") {
		t.Fatal("sending -> delivered should apply")
	}

	// A late sending event must not demote a delivered fax.
	if applyEvent(t, svc, "fax.sending", "fx-9") {
		t.Fatal("stale sending event demoted a delivered fax")
	}
	record, err := faxRepo.GetByProviderFaxID("fx-9")
	if err != nil {
		t.Fatalf("GetByProviderFaxID: %v", err)
	}
	if record.Status != models.FaxStatusDelivered {
		t.Fatalf("expected delivered, got %s", record.Status)
	}

	// Terminal states never flip.
	if applyEvent(t, svc, "fax.failed", "fx-9") {
		t.Fatal("delivered fax moved to failed")
	}
}

func TestApplyStatusEvent_UnknownFaxAuditedNotFatal(t *testing.T) {
	faxRepo := newMemFaxRepo()
	svc := NewService(faxRepo, ledger.NewService(&memGrantRepo{}), &fakeSender{})

	changed, err := svc.ApplyStatusEvent(context.Background(), &StatusEvent{
		EventID:   "evt-1",
		EventType: "fax.delivered",
		FaxID:     "fx-unknown",
	}, []byte(`{"data":{}}`))
	if err != nil {
		t.Fatalf("unknown fax id should not be an error: %v", err)
	}
	if changed {
		t.Fatal("nothing should change for an unknown fax id")
	}
	if len(faxRepo.events) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(faxRepo.events))
	}
}

func TestAuditStatusEvent_RedeliveryLeavesTrailWithoutTransition(t *testing.T) {
	faxRepo := newMemFaxRepo()
	providerID := "fx-9"
	if err := faxRepo.CreateFax(&models.FaxRecord{
		UUID:          "u-9",
		OwnerID:       1,
		Status:        models.FaxStatusPending,
		ProviderFaxID: &providerID,
	}); err != nil {
		t.Fatalf("CreateFax: %v", err)
	}
	svc := NewService(faxRepo, ledger.NewService(&memGrantRepo{}), &fakeSender{})

	ev := &StatusEvent{EventID: "evt-7", EventType: "fax.delivered", FaxID: "fx-9"}
	payload := []byte(`{"data":{"id":"evt-7"}}`)

	if !applyEvent(t, svc, "fax.delivered", "fx-9") {
		t.Fatal("first delivery should apply")
	}
	// The provider redelivers the same event; only the trail grows.
	if err := svc.AuditStatusEvent(context.Background(), ev, payload); err != nil {
		t.Fatalf("AuditStatusEvent() = %v", err)
	}
	if len(faxRepo.events) != 2 {
		t.Fatalf("expected 2 trail entries after the redelivery, got %d", len(faxRepo.events))
	}
	record, err := faxRepo.GetByProviderFaxID("fx-9")
	if err != nil {
		t.Fatalf("GetByProviderFaxID: %v", err)
	}
	if record.Status != models.FaxStatusDelivered {
		t.Fatalf("redelivery changed status to %s", record.Status)
	}
}

func TestApplyStatusEvent_UnknownTypeAudited(t *testing.T) {
	faxRepo := newMemFaxRepo()
	providerID := "fx-9"
	if err := faxRepo.CreateFax(&models.FaxRecord{
		UUID:          "u-9",
		OwnerID:       1,
		Status:        models.FaxStatusPending,
		ProviderFaxID: &providerID,
	}); err != nil {
		t.Fatalf("CreateFax: %v", err)
	}
	svc := NewService(faxRepo, ledger.NewService(&memGrantRepo{}), &fakeSender{})

	changed, err := svc.ApplyStatusEvent(context.Background(), &StatusEvent{
		EventID:   "evt-2",
		EventType: "fax.recording.saved",
		FaxID:     "fx-9",
	}, []byte(`{}`))
	if err != nil || changed {
		t.Fatalf("unknown event type should audit and no-op, got changed=%v err=%v", changed, err)
	}
	if len(faxRepo.events) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(faxRepo.events))
	}
	record, _ := faxRepo.GetByProviderFaxID("fx-9")
	if record.Status != models.FaxStatusPending {
		t.Fatalf("unknown event type changed status to %s", record.Status)
	}
}
