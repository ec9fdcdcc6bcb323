package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creatorengine/creatorengine/internal/pkg/plans"
)

func invoiceClient(baseURL string) *Client {
	return &Client{
		APIKey:     "pk-test",
		BaseURL:    baseURL,
		AppURL:     "https://app.example.com",
		HTTPClient: http.DefaultClient,
	}
}

func TestCreateInvoice(t *testing.T) {
	var received invoiceRequest
	var apiKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey = r.Header.Get("x-api-key")
		require.Equal(t, "/invoice", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_, _ = w.Write([]byte(`{"id":5077125000,"invoice_url":"https://pay.example.com/i/5077125000"}`))
	}))
	defer server.Close()

	policy, _ := plans.ByID("pro")
	invoice, err := invoiceClient(server.URL).CreateInvoice(context.Background(), CreateInvoiceParams{
		UserID:        7,
		Policy:        policy,
		AffiliateCode: "creator",
	})
	require.NoError(t, err)
	assert.Equal(t, "5077125000", invoice.ID)
	assert.Equal(t, "https://pay.example.com/i/5077125000", invoice.HostedURL)

	assert.Equal(t, "pk-test", apiKey)
	assert.InDelta(t, policy.PriceUSD, received.PriceAmount, 0.001)
	assert.Equal(t, "usd", received.PriceCurrency)
	assert.Equal(t, BuildOrderRef(7, "pro", "creator"), received.OrderID)
	assert.Equal(t, "https://app.example.com/api/v1/webhooks/crypto", received.IPNCallbackURL)
}

func TestCreateInvoicePriceOverride(t *testing.T) {
	var received invoiceRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_, _ = w.Write([]byte(`{"id":1,"invoice_url":"https://pay.example.com/i/1"}`))
	}))
	defer server.Close()

	policy, _ := plans.ByID("pro")
	_, err := invoiceClient(server.URL).CreateInvoice(context.Background(), CreateInvoiceParams{
		UserID:        7,
		Policy:        policy,
		PriceOverride: 80.10,
	})
	require.NoError(t, err)
	assert.InDelta(t, 80.10, received.PriceAmount, 0.001)
}

func TestCreateInvoiceFreePlan(t *testing.T) {
	policy, _ := plans.ByID("free")
	_, err := invoiceClient("http://unused").CreateInvoice(context.Background(), CreateInvoiceParams{
		UserID: 7,
		Policy: policy,
	})
	assert.Error(t, err)
}

func TestCreateInvoiceMissingAPIKey(t *testing.T) {
	client := invoiceClient("http://unused")
	client.APIKey = ""

	policy, _ := plans.ByID("pro")
	_, err := client.CreateInvoice(context.Background(), CreateInvoiceParams{UserID: 7, Policy: policy})
	assert.Error(t, err)
}

func TestCreateInvoiceProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"invalid api key"}`))
	}))
	defer server.Close()

	policy, _ := plans.ByID("pro")
	_, err := invoiceClient(server.URL).CreateInvoice(context.Background(), CreateInvoiceParams{UserID: 7, Policy: policy})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}
