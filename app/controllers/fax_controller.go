package controllers

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/faxsnap/faxsnap/internal/pkg/cache"
	"github.com/faxsnap/faxsnap/internal/pkg/fax"
	"github.com/faxsnap/faxsnap/internal/pkg/ledger"
	"github.com/faxsnap/faxsnap/internal/pkg/usercontext"
)

const (
	tokenBalanceCacheTTL = 30 * time.Second
	expiryWarningWindow  = 30 * 24 * time.Hour
	maxDocumentBytes     = 20 * 1024 * 1024
)

func tokenBalanceCacheKey(userID uint) string {
	return fmt.Sprintf("token_balance:%d", userID)
}

func invalidateTokenBalance(userID uint) {
	if err := cache.Delete(tokenBalanceCacheKey(userID)); err != nil {
		fiberlog.Warnf("[Fax] failed to invalidate balance cache for user %d: %v", userID, err)
	}
}

// HandleSendFax submits one fax. The document arrives either as a multipart
// file upload or as a document_url pointing at an already hosted file.
func HandleSendFax(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	documentURL := strings.TrimSpace(c.FormValue("document_url"))
	if fileHeader, err := c.FormFile("document"); err == nil && fileHeader != nil {
		if docStorageClient == nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "service_unavailable", "message": "Document uploads are not enabled, submit a document_url instead"})
		}
		if fileHeader.Size > maxDocumentBytes {
			return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{"error": "document_too_large", "message": "Document exceeds the upload size limit"})
		}
		file, err := fileHeader.Open()
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_document", "message": "Could not read uploaded document"})
		}
		defer file.Close()

		ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
		if ext == "" {
			ext = ".pdf"
		}
		now := time.Now()
		key := docStorageClient.Config().GetObjectKey(uuid.NewString(), ext, now.Year(), int(now.Month()))
		result, err := docStorageClient.UploadDocument(c.Context(), key, file, fileHeader.Size, fileHeader.Header.Get("Content-Type"))
		if err != nil {
			fiberlog.Errorf("[Fax] document upload failed for user %d: %v", userCtx.UserID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Document upload failed"})
		}
		documentURL = result.PublicURL
	}

	if documentURL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Provide a document file or document_url"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
	defer cancel()

	record, err := faxService.SendFax(ctx, fax.SendFaxInput{
		OwnerID:         userCtx.UserID,
		RecipientNumber: c.FormValue("recipient_number"),
		SenderNumber:    strings.TrimSpace(c.FormValue("sender_number")),
		DocumentURL:     documentURL,
		CoverMessage:    c.FormValue("cover_message"),
	})
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInsufficientTokens):
			return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{"error": "insufficient_tokens", "message": "Not enough fax tokens, purchase a package first"})
		case errors.Is(err, fax.ErrInvalidRecipient):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_recipient", "message": "Recipient number is not a valid fax number"})
		case errors.Is(err, fax.ErrProviderUnavailable):
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "provider_unavailable", "message": "Fax provider rejected the submission"})
		default:
			if strings.Contains(err.Error(), "invalid fax submission") {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": err.Error()})
			}
			fiberlog.Errorf("[Fax] send failed for user %d: %v", userCtx.UserID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Fax submission failed"})
		}
	}

	invalidateTokenBalance(userCtx.UserID)
	return c.Status(fiber.StatusCreated).JSON(record)
}

// HandleListFaxes returns the authenticated user's send history, newest first.
func HandleListFaxes(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}
	limit := c.QueryInt("limit", 50)

	records, err := faxService.ListFaxes(context.Background(), userCtx.UserID, offset, limit)
	if err != nil {
		fiberlog.Errorf("[Fax] list failed for user %d: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load faxes"})
	}
	return c.JSON(fiber.Map{
		"faxes":  records,
		"offset": offset,
		"count":  len(records),
	})
}

// HandleGetFax returns one fax owned by the authenticated user.
func HandleGetFax(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	record, err := faxService.GetFax(context.Background(), userCtx.UserID, c.Params("uuid"))
	if err != nil {
		if errors.Is(err, fax.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Fax not found"})
		}
		fiberlog.Errorf("[Fax] lookup failed for user %d: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load fax"})
	}
	return c.JSON(record)
}

// HandleTokenBalance returns the spendable token count plus an expiring-soon
// figure for dashboard warnings. The count is cached briefly; sends and grants
// invalidate it.
func HandleTokenBalance(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	ctx := context.Background()
	key := tokenBalanceCacheKey(userCtx.UserID)

	var balance int64
	if cached, err := cache.Get(key); err == nil {
		if v, convErr := strconv.ParseInt(cached, 10, 64); convErr == nil {
			balance = v
			expiring, err := ledgerService.ExpiringSoonCount(ctx, userCtx.UserID, expiryWarningWindow)
			if err == nil {
				return c.JSON(fiber.Map{"balance": balance, "expiring_soon": expiring, "cached": true})
			}
		}
	}

	balance, err := ledgerService.AvailableCount(ctx, userCtx.UserID)
	if err != nil {
		fiberlog.Errorf("[Fax] balance lookup failed for user %d: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load token balance"})
	}
	expiring, err := ledgerService.ExpiringSoonCount(ctx, userCtx.UserID, expiryWarningWindow)
	if err != nil {
		fiberlog.Errorf("[Fax] expiring count failed for user %d: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load token balance"})
	}

	if err := cache.Set(key, strconv.FormatInt(balance, 10), tokenBalanceCacheTTL); err != nil {
		fiberlog.Warnf("[Fax] failed to cache balance for user %d: %v", userCtx.UserID, err)
	}
	return c.JSON(fiber.Map{"balance": balance, "expiring_soon": expiring})
}
