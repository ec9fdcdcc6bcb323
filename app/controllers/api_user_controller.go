package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/creatorengine/creatorengine/app/models"
	"github.com/creatorengine/creatorengine/app/repository"
	"github.com/creatorengine/creatorengine/internal/pkg/plans"
	"github.com/creatorengine/creatorengine/internal/pkg/usercontext"
)

// HandleGetUserAccount returns the caller's ledger view: plan, quota usage
// and expiry. Expiry downgrade is applied lazily so the answer reflects the
// plan actually in force.
func HandleGetUserAccount(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	account, err := getQuotaLedger().ApplyExpiryIfNeeded(userCtx.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "User not found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load user")
	}

	policy, perr := plans.ByID(account.Plan)
	if perr != nil {
		policy = plans.Free()
	}

	remaining := account.MonthlyQuota - account.QuotaUsed
	if remaining < 0 {
		remaining = 0
	}

	return c.JSON(fiber.Map{
		"id":         account.ID,
		"username":   account.Name,
		"email":      account.Email,
		"status":     account.Status,
		"is_admin":   account.Role == models.ROLE_ADMIN,
		"created_at": account.CreatedAt.UTC().Format(time.RFC3339),
		"plan": fiber.Map{
			"id":              account.Plan,
			"name":            policy.Name,
			"expires_at":      formatTimePtr(account.PlanExpiresAt),
			"monthly_quota":   account.MonthlyQuota,
			"quota_used":      account.QuotaUsed,
			"quota_remaining": remaining,
			"limits": fiber.Map{
				"max_variants_per_job":    policy.MaxVariantsPerJob,
				"max_faceswaps_per_month": policy.MaxFaceswapsPerMonth,
				"watermark_removal":       policy.WatermarkRemoval,
			},
		},
		"api_key": fiber.Map{
			"prefix":       account.APIKeyPrefix,
			"issued_at":    formatTimePtr(account.APIKeyIssuedAt),
			"last_used_at": formatTimePtr(account.APIKeyLastUsedAt),
		},
	})
}

// HandleDeleteAccount terminates the caller's account: jobs and variants are
// removed, the referral code is retired and uploaded objects are dropped.
// Payment history stays for bookkeeping.
func HandleDeleteAccount(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	if err := getAccountTerminator().Terminate(context.Background(), userCtx.UserID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "User not found")
		}
		log.Errorf("[Accounts] termination failed for user %d: %v", userCtx.UserID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Account deletion failed")
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// HandleListPayments returns the caller's payment history, paged.
func HandleListPayments(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	offset, limit := parsePagination(c)

	paymentsList, err := repository.GetGlobalFactory().GetPaymentRepository().ListByUser(userCtx.UserID, offset, limit)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load payments")
	}

	items := make([]fiber.Map, 0, len(paymentsList))
	for _, p := range paymentsList {
		items = append(items, fiber.Map{
			"charge_id":       p.ChargeID,
			"plan":            p.Plan,
			"amount":          p.Amount,
			"currency":        p.Currency,
			"crypto_currency": p.CryptoCurrency,
			"status":          p.Status,
			"confirmed_at":    formatTimePtr(p.ConfirmedAt),
			"created_at":      p.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	return c.JSON(fiber.Map{"payments": items})
}
