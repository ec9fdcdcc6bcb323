package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/creatorengine/creatorengine/internal/pkg/env"
	"github.com/creatorengine/creatorengine/internal/pkg/security"
	"github.com/creatorengine/creatorengine/internal/pkg/usercontext"
)

// AdminSessionCookie is the cookie carrying the signed admin token.
const AdminSessionCookie = "admin_session"

// AdminAuthMiddleware guards admin routes with the stateless signed token
// issued by the admin login endpoint. The token can also arrive in the
// X-Admin-Token header for script access.
func AdminAuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := c.Cookies(AdminSessionCookie)
		if token == "" {
			token = c.Get("X-Admin-Token")
		}
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Admin login required"})
		}

		secret := env.GetEnv("ADMIN_SESSION_SECRET", "")
		if err := security.VerifyAdminToken(token, secret, time.Now()); err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid or expired admin session"})
		}

		c.Locals(usercontext.KeyIsAdmin, true)
		return c.Next()
	}
}
