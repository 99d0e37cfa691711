package payments

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/faxsnap/faxsnap/app/models"
	"github.com/faxsnap/faxsnap/internal/pkg/ledger"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service reconciles payment provider events into purchases and token grants.
type Service struct {
	repo   Repository
	ledger *ledger.Service
	client *StripeClient
}

// NewService creates a payments service from injected collaborators.
func NewService(repo Repository, ledgerSvc *ledger.Service, client *StripeClient) *Service {
	return &Service{repo: repo, ledger: ledgerSvc, client: client}
}

// NewServiceFromDB creates a payments service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, client *StripeClient) *Service {
	return NewService(NewRepository(db), ledger.NewServiceFromDB(db), client)
}

// CheckoutResult is what the client needs to redirect to the provider.
type CheckoutResult struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// InitiateCheckout creates a pending purchase and a provider checkout session
// for the package. The session response is only a redirect reference; the
// purchase is finalized exclusively by the signed webhook. On a provider
// failure the pending row remains for later reconciliation or cleanup.
func (s *Service) InitiateCheckout(ctx context.Context, ownerID uint, packageID, successURL, cancelURL string) (*CheckoutResult, error) {
	if ownerID == 0 {
		return nil, errors.New("owner_id is required")
	}
	pkg, err := FindPackage(strings.TrimSpace(packageID))
	if err != nil {
		return nil, err
	}

	purchase := &models.TokenPurchase{
		OwnerID:            ownerID,
		ProviderPaymentRef: "chk_" + uuid.NewString(),
		PackageID:          pkg.ID,
		TokenCount:         pkg.Tokens,
		AmountCents:        pkg.AmountCents,
		Status:             models.PurchaseStatusPending,
	}
	if err := s.repo.CreatePurchase(purchase); err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrStorageUnavailable, err)
	}

	session, err := s.client.CreateCheckoutSession(ctx, CheckoutSessionParams{
		LineItemName:        LineItemName(pkg.Tokens),
		LineItemDescription: fmt.Sprintf("%s for FaxSnap (expires %d months after purchase)", LineItemName(pkg.Tokens), ledger.GrantLifetime),
		AmountCents:         pkg.AmountCents,
		SuccessURL:          successURL,
		CancelURL:           cancelURL,
		Metadata: map[string]string{
			"user_id":    strconv.FormatUint(uint64(ownerID), 10),
			"tokens":     strconv.Itoa(pkg.Tokens),
			"package_id": pkg.ID,
		},
	})
	if err != nil {
		return nil, err
	}

	ref := session.PaymentIntent
	if ref == "" {
		ref = session.ID
	}
	if err := s.repo.UpdateProviderRef(purchase.ID, ref); err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrStorageUnavailable, err)
	}

	return &CheckoutResult{SessionID: session.ID, URL: session.URL}, nil
}

// ApplyCheckoutCompleted finalizes the matching pending purchase and issues
// its token grants. Finalize and issuance form one retriable reconciliation
// unit: issuance is idempotent by purchase id, so a crash in between is
// healed by ReconcileUngranted or by the provider's redelivery.
func (s *Service) ApplyCheckoutCompleted(ctx context.Context, ev *CheckoutCompletedEvent) error {
	if !ev.Paid {
		log.Infof("[Payments] checkout session %s completed without payment, ignoring", ev.SessionID)
		return nil
	}

	// Purchases created before the payment intent existed are keyed by the
	// checkout session id, so the session id is the lookup fallback.
	var refs []string
	if ev.PaymentIntent != "" {
		refs = append(refs, ev.PaymentIntent)
	}
	if ev.SessionID != "" && ev.SessionID != ev.PaymentIntent {
		refs = append(refs, ev.SessionID)
	}

	var purchase *models.TokenPurchase
	var transitioned bool
	for _, ref := range refs {
		tr, err := s.repo.FinalizePurchase(ref, models.PurchaseStatusCompleted)
		if err != nil {
			return fmt.Errorf("%w: %v", ledger.ErrStorageUnavailable, err)
		}
		p, err := s.repo.GetPurchaseByProviderRef(ref)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return fmt.Errorf("%w: %v", ledger.ErrStorageUnavailable, err)
		}
		purchase, transitioned = p, tr
		break
	}
	if purchase == nil {
		// No local purchase to reconcile against. Responding with an error
		// would make the provider retry forever, so log and accept.
		log.Warnf("[Payments] paid event for unknown payment refs %v (owner %d), no purchase finalized", refs, ev.OwnerID)
		return nil
	}
	if !transitioned && purchase.Status != models.PurchaseStatusCompleted {
		log.Warnf("[Payments] paid event for purchase %d in status %s, not finalizing", purchase.ID, purchase.Status)
		return nil
	}

	created, err := s.ledger.GrantTokensForPurchase(ctx, purchase.OwnerID, purchase.ID, purchase.TokenCount, ledger.DefaultExpiry(time.Now()))
	if err != nil {
		return err
	}
	if created {
		log.Infof("[Payments] granted %d tokens to user %d for purchase %d", purchase.TokenCount, purchase.OwnerID, purchase.ID)
	}
	return nil
}

// ApplyPaymentFailed marks the matching pending purchase as failed. No grants
// are ever issued for a failed payment.
func (s *Service) ApplyPaymentFailed(ctx context.Context, ev *PaymentFailedEvent) error {
	_ = ctx
	transitioned, err := s.repo.FinalizePurchase(ev.PaymentIntent, models.PurchaseStatusFailed)
	if err != nil {
		return fmt.Errorf("%w: %v", ledger.ErrStorageUnavailable, err)
	}
	if !transitioned {
		log.Warnf("[Payments] payment failure for ref %s matched no pending purchase", ev.PaymentIntent)
	}
	return nil
}

// ReconcileUngranted re-drives token issuance for completed purchases that
// have no grants, healing partial failures between finalize and issuance.
// It returns how many purchases were healed.
func (s *Service) ReconcileUngranted(ctx context.Context, limit int) (int, error) {
	purchases, err := s.repo.ListCompletedUngranted(limit)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ledger.ErrStorageUnavailable, err)
	}

	healed := 0
	for _, purchase := range purchases {
		created, err := s.ledger.GrantTokensForPurchase(ctx, purchase.OwnerID, purchase.ID, purchase.TokenCount, ledger.DefaultExpiry(time.Now()))
		if err != nil {
			return healed, err
		}
		if created {
			log.Warnf("[Payments] reconciled purchase %d: issued %d missing grants for user %d", purchase.ID, purchase.TokenCount, purchase.OwnerID)
			healed++
		}
	}
	return healed, nil
}
