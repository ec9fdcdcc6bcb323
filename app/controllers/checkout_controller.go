package controllers

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/creatorengine/creatorengine/app/repository"
	"github.com/creatorengine/creatorengine/internal/pkg/payments"
	"github.com/creatorengine/creatorengine/internal/pkg/plans"
	"github.com/creatorengine/creatorengine/internal/pkg/usercontext"
)

type checkoutRequest struct {
	Plan          string `json:"plan"`
	AffiliateCode string `json:"affiliate_code"`
}

// HandleCreateCheckout creates a hosted crypto invoice for a paid plan. The
// affiliate code is carried inside the order reference; the price shown here
// already includes the first-payment referral discount, but the discount is
// re-validated when the payment confirms.
func HandleCreateCheckout(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var req checkoutRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid JSON body")
	}

	policy, err := plans.ByID(req.Plan)
	if err != nil || !policy.IsPaid() {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Unknown or free plan")
	}

	repos := repository.GetGlobalFactory()
	code := strings.ToLower(strings.TrimSpace(req.AffiliateCode))
	discounted := false
	if code != "" {
		affiliate, err := repos.GetAffiliateRepository().GetActiveByCode(code)
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Affiliate lookup failed")
			}
			code = ""
		} else if affiliate.UserID == userCtx.UserID {
			// Self-referral earns no discount and no commission.
			code = ""
		}
	}
	if code != "" {
		prior, err := repos.GetPaymentRepository().CountConfirmedByUser(userCtx.UserID, "")
		if err != nil {
			return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Payment history lookup failed")
		}
		discounted = prior == 0
	}

	params := payments.CreateInvoiceParams{
		UserID:        userCtx.UserID,
		Policy:        policy,
		AffiliateCode: code,
	}
	if discounted {
		params.PriceOverride = payments.ExpectedPrice(policy, true)
	}

	invoice, err := getPaymentClient().CreateInvoice(context.Background(), params)
	if err != nil {
		log.Errorf("[Payments] invoice creation failed for user %d: %v", userCtx.UserID, err)
		return jsonError(c, fiber.StatusBadGateway, "payment_provider_error", "Could not create invoice")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"invoice_id":  invoice.ID,
		"invoice_url": invoice.HostedURL,
		"plan":        policy.ID,
		"amount":      params.PriceAmount(),
		"discounted":  discounted,
	})
}
