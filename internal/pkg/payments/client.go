package payments

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

	"github.com/creatorengine/creatorengine/internal/pkg/env"
	"github.com/creatorengine/creatorengine/internal/pkg/plans"
)

const defaultPaymentAPIBaseURL = "https://api.nowpayments.io/v1"

// Client creates hosted crypto invoices at the payment provider. The provider
// later confirms charges asynchronously through signed IPN callbacks.
type Client struct {
	APIKey     string
	BaseURL    string
	AppURL     string
	HTTPClient *http.Client
}

// NewClientFromEnv builds a payment client from environment configuration.
func NewClientFromEnv() *Client {
	return &Client{
		APIKey:  strings.TrimSpace(env.GetEnv("PAYMENT_API_KEY", "")),
		BaseURL: strings.TrimRight(env.GetEnv("PAYMENT_API_BASE_URL", defaultPaymentAPIBaseURL), "/"),
		AppURL:  strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", "http://localhost:4000"), "/"),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Invoice is the provider's answer to an invoice creation.
type Invoice struct {
	ID        string
	HostedURL string
}

// CreateInvoiceParams describes a checkout for one paid plan period.
type CreateInvoiceParams struct {
	UserID        uint
	Policy        plans.Policy
	AffiliateCode string
	PriceOverride float64
}

// PriceAmount is the amount charged for this checkout, honoring an override.
func (p CreateInvoiceParams) PriceAmount() float64 {
	if p.PriceOverride > 0 {
		return p.PriceOverride
	}
	return p.Policy.PriceUSD
}

type invoiceRequest struct {
	PriceAmount      float64 `json:"price_amount"`
	PriceCurrency    string  `json:"price_currency"`
	OrderID          string  `json:"order_id"`
	OrderDescription string  `json:"order_description"`
	IPNCallbackURL   string  `json:"ipn_callback_url"`
	SuccessURL       string  `json:"success_url"`
	CancelURL        string  `json:"cancel_url"`
}

type invoiceResponse struct {
	ID         json.Number `json:"id"`
	InvoiceURL string      `json:"invoice_url"`
}

// CreateInvoice creates a hosted invoice for a paid plan. Free plans are not
// payable and return an error.
func (c *Client) CreateInvoice(ctx context.Context, params CreateInvoiceParams) (*Invoice, error) {
	if strings.TrimSpace(c.APIKey) == "" {
		return nil, errors.New("PAYMENT_API_KEY is not configured")
	}
	if !params.Policy.IsPaid() {
		return nil, fmt.Errorf("plan %s is not payable", params.Policy.ID)
	}

	reqBody := invoiceRequest{
		PriceAmount:      params.PriceAmount(),
		PriceCurrency:    "usd",
		OrderID:          BuildOrderRef(params.UserID, params.Policy.ID, params.AffiliateCode),
		OrderDescription: fmt.Sprintf("Creator Engine %s Plan - %d days", params.Policy.Name, params.Policy.DurationDays),
		IPNCallbackURL:   c.AppURL + "/api/v1/webhooks/crypto",
		SuccessURL:       c.AppURL + "/dashboard?payment=success&plan=" + params.Policy.ID,
		CancelURL:        c.AppURL + "/pricing?payment=cancelled",
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/invoice", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("x-api-key", c.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("payment provider error (%d): %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var ir invoiceResponse
	if err := json.Unmarshal(raw, &ir); err != nil {
		return nil, fmt.Errorf("invalid payment provider response: %w", err)
	}

	return &Invoice{
		ID:        ir.ID.String(),
		HostedURL: ir.InvoiceURL,
	}, nil
}
