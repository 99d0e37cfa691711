package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/faxsnap/faxsnap/app/models"
	"github.com/faxsnap/faxsnap/internal/pkg/env"
	"github.com/faxsnap/faxsnap/internal/pkg/payments"
	"github.com/faxsnap/faxsnap/internal/pkg/webhookinbox"
)

// HandleStripeWebhook processes payment provider deliveries. The flow is
// verify signature, admit into the dedup inbox, then apply. Anything the
// provider must not redeliver gets a 2xx; only transient storage failures
// return 5xx so the provider retries.
func HandleStripeWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := c.Get("Stripe-Signature")
	secret := env.GetEnv("STRIPE_WEBHOOK_SECRET", "")

	if !payments.VerifyStripeWebhookSignature(rawBody, signature, secret, time.Now()) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
	}

	event, err := payments.ParseStripeEvent(rawBody)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	fresh, stored, err := webhookInbox.Admit(ctx, webhookinbox.AdmitInput{
		Source:          models.WebhookSourceStripe,
		ProviderEventID: event.ID,
		EventType:       event.Type,
		PayloadJSON:     string(rawBody),
	})
	if err != nil {
		fiberlog.Errorf("[Payments] failed to record webhook event %s: %v", event.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	if !fresh {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	}

	switch event.Type {
	case payments.EventCheckoutCompleted:
		completed, err := event.ParseCheckoutCompleted()
		if err != nil {
			_ = webhookInbox.MarkProcessed(ctx, stored.ID, err)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
		}
		if err := paymentsService.ApplyCheckoutCompleted(ctx, completed); err != nil {
			_ = webhookInbox.MarkProcessed(ctx, stored.ID, err)
			fiberlog.Errorf("[Payments] applying checkout completion %s failed: %v", event.ID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "event_apply_failed"})
		}
		invalidateTokenBalance(completed.OwnerID)

	case payments.EventPaymentIntentFailed:
		failed, err := event.ParsePaymentFailed()
		if err != nil {
			_ = webhookInbox.MarkProcessed(ctx, stored.ID, err)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
		}
		if err := paymentsService.ApplyPaymentFailed(ctx, failed); err != nil {
			_ = webhookInbox.MarkProcessed(ctx, stored.ID, err)
			fiberlog.Errorf("[Payments] applying payment failure %s failed: %v", event.ID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "event_apply_failed"})
		}

	default:
		_ = webhookInbox.MarkProcessed(ctx, stored.ID, nil)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
	}

	if err := webhookInbox.MarkProcessed(ctx, stored.ID, nil); err != nil {
		fiberlog.Warnf("[Payments] failed to mark event %s processed: %v", event.ID, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}
