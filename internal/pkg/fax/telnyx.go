package fax

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/faxsnap/faxsnap/internal/pkg/env"
)

const defaultTelnyxAPIBaseURL = "https://api.telnyx.com/v2"

// TelnyxClient talks to the Telnyx programmable fax API. Endpoints are
// injectable so tests can point it at a local server.
type TelnyxClient struct {
	APIKey       string
	APIBaseURL   string
	ConnectionID string
	FromNumber   string

	HTTPClient *http.Client
}

// NewTelnyxClientFromEnv builds a client from TELNYX_* environment variables.
func NewTelnyxClientFromEnv() *TelnyxClient {
	return &TelnyxClient{
		APIKey:       strings.TrimSpace(env.GetEnv("TELNYX_API_KEY", "")),
		APIBaseURL:   strings.TrimRight(env.GetEnv("TELNYX_API_BASE_URL", defaultTelnyxAPIBaseURL), "/"),
		ConnectionID: strings.TrimSpace(env.GetEnv("TELNYX_CONNECTION_ID", "")),
		FromNumber:   strings.TrimSpace(env.GetEnv("TELNYX_FROM_NUMBER", "")),
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// FaxAcceptance is the provider's synchronous acknowledgement of a send.
type FaxAcceptance struct {
	ID     string
	Status string
}

// Sender is the provider call the submission orchestrator depends on.
type Sender interface {
	SendFax(ctx context.Context, to, from, mediaURL string) (*FaxAcceptance, error)
}

type telnyxFaxRequest struct {
	ConnectionID string `json:"connection_id,omitempty"`
	To           string `json:"to"`
	From         string `json:"from"`
	MediaURL     string `json:"media_url"`
	StoreMedia   bool   `json:"store_media"`
}

type telnyxFaxResponse struct {
	Data struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"data"`
	Errors []struct {
		Detail string `json:"detail"`
	} `json:"errors"`
}

// SendFax submits one fax. An empty from number falls back to the configured
// sender. Acceptance here only means the provider queued the fax; the
// delivery outcome arrives later on the status webhook.
func (c *TelnyxClient) SendFax(ctx context.Context, to, from, mediaURL string) (*FaxAcceptance, error) {
	if strings.TrimSpace(c.APIKey) == "" {
		return nil, errors.New("TELNYX_API_KEY is not configured")
	}
	if from == "" {
		from = c.FromNumber
	}

	payload, err := json.Marshal(telnyxFaxRequest{
		ConnectionID: c.ConnectionID,
		To:           to,
		From:         from,
		MediaURL:     mediaURL,
		StoreMedia:   true,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIBaseURL+"/faxes", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrProviderUnavailable, err)
	}

	var decoded telnyxFaxResponse
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := fmt.Sprintf("fax send returned %d", resp.StatusCode)
		if json.Unmarshal(body, &decoded) == nil && len(decoded.Errors) > 0 {
			detail = decoded.Errors[0].Detail
		}
		return nil, fmt.Errorf("%w: %s", ErrProviderUnavailable, detail)
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrProviderUnavailable, err)
	}
	if decoded.Data.ID == "" {
		return nil, fmt.Errorf("%w: response is missing a fax id", ErrProviderUnavailable)
	}

	return &FaxAcceptance{ID: decoded.Data.ID, Status: decoded.Data.Status}, nil
}

// StatusEvent is one inbound fax lifecycle notification.
type StatusEvent struct {
	EventID   string
	EventType string
	FaxID     string
	Status    string
}

// ParseStatusEvent decodes a Telnyx webhook delivery. Only the envelope shape
// is validated here; unknown event types are still parseable and resolve to a
// no-op downstream.
func ParseStatusEvent(payload []byte) (*StatusEvent, error) {
	var envelope struct {
		Data *struct {
			ID        string `json:"id"`
			EventType string `json:"event_type"`
			Payload   struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			} `json:"payload"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if envelope.Data == nil || envelope.Data.EventType == "" {
		return nil, fmt.Errorf("%w: missing event envelope", ErrMalformedEvent)
	}

	return &StatusEvent{
		EventID:   envelope.Data.ID,
		EventType: envelope.Data.EventType,
		FaxID:     envelope.Data.Payload.ID,
		Status:    envelope.Data.Payload.Status,
	}, nil
}
