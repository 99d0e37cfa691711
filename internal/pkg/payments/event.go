package payments

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Stripe event types the webhook handler acts on. Anything else is recorded
// and acknowledged without side effects.
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventPaymentIntentFailed = "payment_intent.payment_failed"
)

const paymentStatusPaid = "paid"

// StripeEvent is the envelope of a Stripe webhook delivery.
type StripeEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// CheckoutCompletedEvent carries the fields the purchase reconciliation needs
// from a checkout.session.completed delivery.
type CheckoutCompletedEvent struct {
	SessionID     string
	PaymentIntent string
	Paid          bool
	OwnerID       uint
	TokenCount    int
	PackageID     string
}

// PaymentFailedEvent identifies the failed payment by its intent id.
type PaymentFailedEvent struct {
	PaymentIntent string
}

// ParseStripeEvent decodes the webhook envelope.
func ParseStripeEvent(payload []byte) (*StripeEvent, error) {
	var event StripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if event.Type == "" {
		return nil, fmt.Errorf("%w: missing event type", ErrMalformedEvent)
	}
	return &event, nil
}

// ParseCheckoutCompleted extracts the purchase metadata echoed back by the
// provider. The metadata was set at checkout creation and is the only link
// between the event and the local owner.
func (e *StripeEvent) ParseCheckoutCompleted() (*CheckoutCompletedEvent, error) {
	var object struct {
		ID            string            `json:"id"`
		PaymentIntent string            `json:"payment_intent"`
		PaymentStatus string            `json:"payment_status"`
		Metadata      map[string]string `json:"metadata"`
	}
	if err := json.Unmarshal(e.Data.Object, &object); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	ownerID, err := strconv.ParseUint(strings.TrimSpace(object.Metadata["user_id"]), 10, 64)
	if err != nil || ownerID == 0 {
		return nil, fmt.Errorf("%w: missing or invalid user_id metadata", ErrMalformedEvent)
	}
	tokens, err := strconv.Atoi(strings.TrimSpace(object.Metadata["tokens"]))
	if err != nil || tokens <= 0 {
		return nil, fmt.Errorf("%w: missing or invalid tokens metadata", ErrMalformedEvent)
	}

	return &CheckoutCompletedEvent{
		SessionID:     object.ID,
		PaymentIntent: object.PaymentIntent,
		Paid:          object.PaymentStatus == paymentStatusPaid,
		OwnerID:       uint(ownerID),
		TokenCount:    tokens,
		PackageID:     strings.TrimSpace(object.Metadata["package_id"]),
	}, nil
}

// ParsePaymentFailed extracts the payment intent id from a
// payment_intent.payment_failed delivery.
func (e *StripeEvent) ParsePaymentFailed() (*PaymentFailedEvent, error) {
	var object struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(e.Data.Object, &object); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if object.ID == "" {
		return nil, fmt.Errorf("%w: missing payment intent id", ErrMalformedEvent)
	}
	return &PaymentFailedEvent{PaymentIntent: object.ID}, nil
}
