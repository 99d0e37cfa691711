package payments

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/faxsnap/faxsnap/app/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStripeTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *StripeClient) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := &StripeClient{
		SecretKey:  "sk_test_123",
		APIBaseURL: server.URL,
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
	}
	return server, client
}

func TestCreateCheckoutSession(t *testing.T) {
	_, client := newStripeTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/checkout/sessions", r.URL.Path)
		assert.Equal(t, "Bearer sk_test_123", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "payment", r.PostForm.Get("mode"))
		assert.Equal(t, "20 Fax Tokens", r.PostForm.Get("line_items[0][price_data][product_data][name]"))
		assert.Equal(t, "1000", r.PostForm.Get("line_items[0][price_data][unit_amount]"))
		assert.Equal(t, "7", r.PostForm.Get("metadata[user_id]"))
		assert.Equal(t, "20", r.PostForm.Get("metadata[tokens]"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_123","url":"https://checkout.stripe.test/cs_123","payment_intent":"pi_456"}`))
	})

	session, err := client.CreateCheckoutSession(context.Background(), CheckoutSessionParams{
		LineItemName: "20 Fax Tokens",
		AmountCents:  1000,
		SuccessURL:   "https://faxsnap.test/dashboard?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:    "https://faxsnap.test/dashboard",
		Metadata:     map[string]string{"user_id": "7", "tokens": "20", "package_id": "popular"},
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_123", session.ID)
	assert.Equal(t, "pi_456", session.PaymentIntent)
}

func TestCreateCheckoutSession_ProviderError(t *testing.T) {
	_, client := newStripeTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":{"message":"nope"}}`))
	})

	_, err := client.CreateCheckoutSession(context.Background(), CheckoutSessionParams{
		LineItemName: "5 Fax Tokens",
		AmountCents:  300,
	})
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestInitiateCheckout(t *testing.T) {
	_, client := newStripeTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_123","url":"https://checkout.stripe.test/cs_123","payment_intent":"pi_456"}`))
	})

	purchases := &memPurchaseRepo{}
	svc := NewService(purchases, nil, client)

	result, err := svc.InitiateCheckout(context.Background(), 7, "popular", "https://faxsnap.test/ok", "https://faxsnap.test/cancel")
	require.NoError(t, err)
	assert.Equal(t, "cs_123", result.SessionID)
	assert.Equal(t, "https://checkout.stripe.test/cs_123", result.URL)

	stored, err := purchases.GetPurchaseByProviderRef("pi_456")
	require.NoError(t, err)
	assert.Equal(t, models.PurchaseStatusPending, stored.Status)
	assert.Equal(t, 20, stored.TokenCount)
	assert.EqualValues(t, 1000, stored.AmountCents)
}

func TestInitiateCheckout_ProviderDownKeepsPendingPurchase(t *testing.T) {
	_, client := newStripeTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	purchases := &memPurchaseRepo{}
	svc := NewService(purchases, nil, client)

	_, err := svc.InitiateCheckout(context.Background(), 7, "starter", "https://faxsnap.test/ok", "https://faxsnap.test/cancel")
	require.ErrorIs(t, err, ErrProviderUnavailable)
	require.Len(t, purchases.purchases, 1, "pending purchase remains for reconciliation")
	assert.Equal(t, models.PurchaseStatusPending, purchases.purchases[0].Status)
}
