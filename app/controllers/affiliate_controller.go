package controllers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/creatorengine/creatorengine/internal/pkg/affiliate"
	"github.com/creatorengine/creatorengine/internal/pkg/usercontext"
)

// HandleEnrollAffiliate enrolls the caller into the affiliate program.
// Repeated calls return the existing record.
func HandleEnrollAffiliate(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	record, err := getAffiliateEngine().Enroll(userCtx.UserID)
	if err != nil {
		log.Errorf("[Affiliate] enroll failed for user %d: %v", userCtx.UserID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Enrollment failed")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"code":       record.Code,
		"is_active":  record.IsActive,
		"created_at": record.CreatedAt.UTC().Format(time.RFC3339),
	})
}

// HandleGetAffiliate returns the caller's affiliate stats.
func HandleGetAffiliate(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	stats, err := getAffiliateEngine().GetStats(userCtx.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "Not enrolled in the affiliate program")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load affiliate stats")
	}

	return c.JSON(stats)
}

type updateAffiliateCodeRequest struct {
	Code string `json:"code"`
}

// HandleUpdateAffiliateCode replaces the caller's referral code.
func HandleUpdateAffiliateCode(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var req updateAffiliateCodeRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid JSON body")
	}

	record, err := getAffiliateEngine().UpdateCode(userCtx.UserID, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, affiliate.ErrInvalidCode):
			return jsonError(c, fiber.StatusBadRequest, "bad_request", err.Error())
		case errors.Is(err, affiliate.ErrCodeTaken):
			return jsonError(c, fiber.StatusConflict, "conflict", err.Error())
		case errors.Is(err, gorm.ErrRecordNotFound):
			return jsonError(c, fiber.StatusNotFound, "not_found", "Not enrolled in the affiliate program")
		default:
			return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to update code")
		}
	}

	return c.JSON(fiber.Map{"code": record.Code, "is_active": record.IsActive})
}

// HandleListCommissions returns the caller's commission history, paged.
func HandleListCommissions(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	offset, limit := parsePagination(c)

	commissions, total, err := getAffiliateEngine().ListCommissions(userCtx.UserID, offset, limit)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "Not enrolled in the affiliate program")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load commissions")
	}

	items := make([]fiber.Map, 0, len(commissions))
	for _, commission := range commissions {
		items = append(items, fiber.Map{
			"id":         commission.ID,
			"amount":     commission.Amount,
			"status":     commission.Status,
			"created_at": commission.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	return c.JSON(fiber.Map{"commissions": items, "total": total})
}
