package controllers

import (
	"encoding/json"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/creatorengine/creatorengine/app/models"
	"github.com/creatorengine/creatorengine/app/repository"
	"github.com/creatorengine/creatorengine/internal/pkg/env"
	"github.com/creatorengine/creatorengine/internal/pkg/payments"
	"github.com/creatorengine/creatorengine/internal/pkg/statistics"
)

const cryptoWebhookProvider = "nowpayments"

// HandleCryptoWebhook is the payment provider's IPN entrypoint. The raw
// payload is first verified against the IPN secret, then recorded for audit,
// then handed to the reconciler. Processing is idempotent end to end, so a
// 2xx is returned for duplicates and the provider stops retrying.
func HandleCryptoWebhook(c *fiber.Ctx) error {
	raw := c.Body()
	signature := c.Get("x-nowpayments-sig")
	secret := env.GetEnv("PAYMENT_IPN_SECRET", "")

	if secret == "" {
		log.Error("[Payments] PAYMENT_IPN_SECRET is not configured, rejecting webhook")
		return jsonError(c, fiber.StatusServiceUnavailable, "not_configured", "Webhook processing unavailable")
	}

	valid := payments.VerifyIPNSignature(raw, signature, secret)

	var ipn payments.IPN
	if err := json.Unmarshal(raw, &ipn); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid JSON payload")
	}

	// Record the delivery before acting on it. The (provider, event id) unique
	// key also dedupes byte-identical redeliveries at the audit level.
	eventRepo := repository.GetGlobalFactory().GetWebhookEventRepository()
	_, stored, err := eventRepo.CreateIfNotExists(&models.PaymentWebhookEvent{
		Provider:        cryptoWebhookProvider,
		ProviderEventID: fmt.Sprintf("%d:%s", ipn.PaymentID, ipn.PaymentStatus),
		EventType:       ipn.PaymentStatus,
		PayloadJSON:     string(raw),
		SignatureValid:  valid,
	})
	if err != nil {
		log.Errorf("[Payments] could not record webhook event: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to record webhook")
	}

	if !valid {
		log.Warnf("[Payments] invalid IPN signature for payment %d", ipn.PaymentID)
		if err := eventRepo.MarkProcessed(stored.ID, "invalid signature"); err != nil {
			log.Errorf("[Payments] could not mark webhook event %d: %v", stored.ID, err)
		}
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Invalid signature")
	}

	result, err := getReconciler().Process(ipn)
	if err != nil {
		log.Errorf("[Payments] reconciliation failed for payment %d: %v", ipn.PaymentID, err)
		if merr := eventRepo.MarkProcessed(stored.ID, err.Error()); merr != nil {
			log.Errorf("[Payments] could not mark webhook event %d: %v", stored.ID, merr)
		}
		// A malformed order reference will never become processable; retrying
		// it forever helps nobody, so report it as a client error.
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Could not reconcile payment")
	}

	if err := eventRepo.MarkProcessed(stored.ID, ""); err != nil {
		log.Errorf("[Payments] could not mark webhook event %d: %v", stored.ID, err)
	}

	if result.Outcome == payments.OutcomeConfirmed {
		statistics.ResetCacheUpdateTimer()
	}

	return c.JSON(fiber.Map{"status": "ok", "outcome": result.Outcome})
}
