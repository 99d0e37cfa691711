package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/faxsnap/faxsnap/app/models"
	"github.com/faxsnap/faxsnap/internal/pkg/fax"
	"github.com/faxsnap/faxsnap/internal/pkg/webhookinbox"
)

// HandleTelnyxWebhook processes fax status deliveries. Unknown event types and
// unknown fax ids are audited and acknowledged; the provider only sees a 5xx
// when storage rejected the event, which is worth a retry.
func HandleTelnyxWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)

	event, err := fax.ParseStatusEvent(rawBody)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	fresh, stored, err := webhookInbox.Admit(ctx, webhookinbox.AdmitInput{
		Source:          models.WebhookSourceTelnyx,
		ProviderEventID: event.EventID,
		EventType:       event.EventType,
		PayloadJSON:     string(rawBody),
	})
	if err != nil {
		fiberlog.Errorf("[Fax] failed to record webhook event %s: %v", event.EventID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	if !fresh {
		// The replay still leaves a trail entry even though no state is applied.
		if err := faxService.AuditStatusEvent(ctx, event, rawBody); err != nil {
			fiberlog.Errorf("[Fax] failed to audit duplicate event %s: %v", event.EventID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	}

	changed, err := faxService.ApplyStatusEvent(ctx, event, rawBody)
	if err != nil {
		_ = webhookInbox.MarkProcessed(ctx, stored.ID, err)
		fiberlog.Errorf("[Fax] applying status event %s failed: %v", event.EventID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "event_apply_failed"})
	}

	if err := webhookInbox.MarkProcessed(ctx, stored.ID, nil); err != nil {
		fiberlog.Warnf("[Fax] failed to mark event %s processed: %v", event.EventID, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "applied": changed})
}
