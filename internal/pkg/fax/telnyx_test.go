package fax

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestTelnyxClient(serverURL string) *TelnyxClient {
	return &TelnyxClient{
		APIKey:       "test-key",
		APIBaseURL:   serverURL,
		ConnectionID: "conn-1",
		FromNumber:   "+15550000001",
		HTTPClient:   http.DefaultClient,
	}
}

func TestTelnyxSendFax(t *testing.T) {
	var got telnyxFaxRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/faxes" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"data":{"id":"fx-123","status":"queued"}}`))
	}))
	defer server.Close()

	client := newTestTelnyxClient(server.URL)
	acceptance, err := client.SendFax(context.Background(), "+15551234567", "", "https://files.example.com/doc.pdf")
	if err != nil {
		t.Fatalf("SendFax: %v", err)
	}
	if acceptance.ID != "fx-123" || acceptance.Status != "queued" {
		t.Fatalf("unexpected acceptance %+v", acceptance)
	}
	if got.To != "+15551234567" {
		t.Fatalf("recipient not forwarded: %q", got.To)
	}
	if got.From != "+15550000001" {
		t.Fatalf("empty from should fall back to configured number, got %q", got.From)
	}
	if got.ConnectionID != "conn-1" {
		t.Fatalf("connection id not forwarded: %q", got.ConnectionID)
	}
}

func TestTelnyxSendFax_ProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"errors":[{"detail":"to number is not faxable"}]}`))
	}))
	defer server.Close()

	client := newTestTelnyxClient(server.URL)
	_, err := client.SendFax(context.Background(), "+15551234567", "+15550000001", "https://files.example.com/doc.pdf")
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestTelnyxSendFax_MissingAPIKey(t *testing.T) {
	client := newTestTelnyxClient("http://127.0.0.1:1")
	client.APIKey = ""
	if _, err := client.SendFax(context.Background(), "+15551234567", "", "https://files.example.com/doc.pdf"); err == nil {
		t.Fatal("expected configuration error")
	}
}

func TestParseStatusEvent(t *testing.T) {
	payload := []byte(`{
		"data": {
			"id": "evt-abc",
			"event_type": "fax.delivered",
			"payload": {"id": "fx-123", "status": "delivered"}
		}
	}`)
	ev, err := ParseStatusEvent(payload)
	if err != nil {
		t.Fatalf("ParseStatusEvent: %v", err)
	}
	if ev.EventID != "evt-abc" || ev.EventType != "fax.delivered" || ev.FaxID != "fx-123" || ev.Status != "delivered" {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestParseStatusEvent_Malformed(t *testing.T) {
	cases := [][]byte{
		[]byte(`not json`),
		[]byte(`{}`),
		[]byte(`{"data":{}}`),
		[]byte(`{"data":{"payload":{"id":"fx-1"}}}`),
	}
	for _, payload := range cases {
		if _, err := ParseStatusEvent(payload); !errors.Is(err, ErrMalformedEvent) {
			t.Fatalf("expected ErrMalformedEvent for %s, got %v", payload, err)
		}
	}
}
