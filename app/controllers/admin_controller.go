package controllers

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/creatorengine/creatorengine/app/repository"
	"github.com/creatorengine/creatorengine/internal/pkg/env"
	"github.com/creatorengine/creatorengine/internal/pkg/middleware"
	"github.com/creatorengine/creatorengine/internal/pkg/plans"
	"github.com/creatorengine/creatorengine/internal/pkg/security"
	"github.com/creatorengine/creatorengine/internal/pkg/statistics"
)

type adminAuthRequest struct {
	Password string `json:"password"`
}

// HandleAdminAuth exchanges the admin password for a signed session token,
// set both as cookie and returned in the body for script use.
func HandleAdminAuth(c *fiber.Ctx) error {
	var req adminAuthRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid JSON body")
	}

	configured := env.GetEnv("ADMIN_PASSWORD", "")
	if !security.VerifyAdminPassword(req.Password, configured) {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Invalid admin password")
	}

	secret := env.GetEnv("ADMIN_SESSION_SECRET", "")
	token, err := security.GenerateAdminToken(secret, time.Now())
	if err != nil {
		log.Errorf("[Admin] token generation failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Could not create session")
	}

	c.Cookie(&fiber.Cookie{
		Name:     middleware.AdminSessionCookie,
		Value:    token,
		Expires:  time.Now().Add(security.AdminSessionMaxAge),
		HTTPOnly: true,
		Secure:   env.GetEnv("APP_ENV", "dev") == "prod",
		SameSite: "Strict",
	})

	return c.JSON(fiber.Map{"token": token})
}

// HandleAdminListUsers lists accounts, optionally filtered by a search query.
func HandleAdminListUsers(c *fiber.Ctx) error {
	repo := repository.GetGlobalFactory().GetUserRepository()

	if query := c.Query("q"); query != "" {
		users, err := repo.Search(query)
		if err != nil {
			return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Search failed")
		}
		return c.JSON(fiber.Map{"users": users, "total": len(users)})
	}

	offset, limit := parsePagination(c)
	users, err := repo.List(offset, limit)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to list users")
	}
	total, err := repo.Count()
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to count users")
	}

	return c.JSON(fiber.Map{"users": users, "total": total})
}

type adminUpdateUserRequest struct {
	Plan         string `json:"plan"`
	DurationDays int    `json:"duration_days"`
}

// HandleAdminUpdateUser overrides an account's plan. The change goes through
// the same ledger writer as payment confirmations so quota always matches the
// assigned plan.
func HandleAdminUpdateUser(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid user id")
	}

	var req adminUpdateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid JSON body")
	}

	policy, err := plans.ByID(req.Plan)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Unknown plan")
	}

	repo := repository.GetGlobalFactory().GetUserRepository()
	if _, err := repo.GetByID(uint(id)); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "User not found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load user")
	}

	var expiresAt *time.Time
	if policy.IsPaid() {
		days := req.DurationDays
		if days <= 0 {
			days = policy.DurationDays
		}
		expiry := time.Now().Add(time.Duration(days) * 24 * time.Hour)
		expiresAt = &expiry
	}

	if err := getQuotaLedger().ApplyPlanChange(uint(id), policy, expiresAt); err != nil {
		log.Errorf("[Admin] plan override failed for user %d: %v", id, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Plan change failed")
	}
	log.Infof("[Admin] user %d set to plan %s", id, policy.ID)

	user, err := repo.GetByID(uint(id))
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to reload user")
	}
	return c.JSON(user)
}

// HandleAdminListPayments lists all payments, paged.
func HandleAdminListPayments(c *fiber.Ctx) error {
	offset, limit := parsePagination(c)

	repo := repository.GetGlobalFactory().GetPaymentRepository()
	paymentsList, err := repo.List(offset, limit)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to list payments")
	}
	total, err := repo.Count()
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to count payments")
	}

	return c.JSON(fiber.Map{"payments": paymentsList, "total": total})
}

// HandleAdminFinancialStats returns the cached revenue and commission stats.
func HandleAdminFinancialStats(c *fiber.Ctx) error {
	return c.JSON(statistics.GetFinancialStats())
}
