package controllers

import (
	"crypto/hmac"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/creatorengine/creatorengine/internal/pkg/env"
	"github.com/creatorengine/creatorengine/internal/pkg/jobs"
)

// HandleJobCallback receives asynchronous results from the compute provider.
// The route is authenticated by the shared callback secret, not an API key;
// deliveries arrive at least once and the apply path is idempotent.
func HandleJobCallback(c *fiber.Ctx) error {
	secret := env.GetEnv("COMPUTE_CALLBACK_SECRET", "")
	if secret == "" || !hmac.Equal([]byte(c.Get("X-Callback-Secret")), []byte(secret)) {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Invalid callback secret")
	}

	var in jobs.CallbackInput
	if err := c.BodyParser(&in); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid JSON body")
	}

	jobUUID := c.Params("id")
	if err := getJobRegistry().ApplyCallback(jobUUID, in); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "Job not found")
		}
		if jobs.IsValidationError(err) {
			return jsonError(c, fiber.StatusBadRequest, "bad_request", err.Error())
		}
		log.Errorf("[Jobs] callback for job %s failed: %v", jobUUID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Callback processing failed")
	}

	return c.JSON(fiber.Map{"status": "ok"})
}
