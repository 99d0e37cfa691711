package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/faxsnap/faxsnap/internal/pkg/env"
	"github.com/faxsnap/faxsnap/internal/pkg/payments"
	"github.com/faxsnap/faxsnap/internal/pkg/usercontext"
)

// HandleListPackages returns the purchasable token package catalog.
func HandleListPackages(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"packages": payments.TokenPackages})
}

// HandleCreateCheckout creates a provider checkout session for a token
// package. The purchase stays pending until the signed webhook confirms
// payment; the response only carries the redirect URL.
func HandleCreateCheckout(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	var req struct {
		PackageID  string `json:"package_id"`
		SuccessURL string `json:"success_url"`
		CancelURL  string `json:"cancel_url"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Invalid request body"})
	}

	successURL := strings.TrimSpace(req.SuccessURL)
	if successURL == "" {
		successURL = env.GetEnv("CHECKOUT_SUCCESS_URL", "")
	}
	cancelURL := strings.TrimSpace(req.CancelURL)
	if cancelURL == "" {
		cancelURL = env.GetEnv("CHECKOUT_CANCEL_URL", "")
	}
	if successURL == "" || cancelURL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "success_url and cancel_url are required"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	result, err := paymentsService.InitiateCheckout(ctx, userCtx.UserID, req.PackageID, successURL, cancelURL)
	if err != nil {
		switch {
		case errors.Is(err, payments.ErrUnknownPackage):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown_package", "message": "Unknown token package"})
		case errors.Is(err, payments.ErrProviderUnavailable):
			fiberlog.Errorf("[Payments] checkout session creation failed for user %d: %v", userCtx.UserID, err)
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "provider_unavailable", "message": "Payment provider is unavailable"})
		default:
			fiberlog.Errorf("[Payments] checkout failed for user %d: %v", userCtx.UserID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Checkout failed"})
		}
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}
