package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/creatorengine/creatorengine/app/controllers"
	"github.com/creatorengine/creatorengine/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(limiter.Config{Max: 120}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1")

	// Provider-facing routes authenticate with their own secrets, not an
	// API key: the compute callback and the payment IPN webhook.
	v1.Post("/jobs/:id/callback", controllers.HandleJobCallback)
	v1.Post("/webhooks/crypto", controllers.HandleCryptoWebhook)

	authed := v1.Group("", middleware.APIKeyAuthMiddleware())

	authed.Post("/jobs", controllers.HandleCreateJob)
	authed.Get("/jobs", controllers.HandleListJobs)
	authed.Get("/jobs/:id", controllers.HandleGetJob)
	authed.Post("/jobs/:id/submit", controllers.HandleSubmitJob)
	authed.Delete("/jobs/:id", controllers.HandleDeleteJob)
	authed.Get("/jobs/:id/variants", controllers.HandleGetJobVariants)

	authed.Post("/checkout", controllers.HandleCreateCheckout)
	authed.Get("/payments", controllers.HandleListPayments)

	authed.Post("/affiliate", controllers.HandleEnrollAffiliate)
	authed.Get("/affiliate", controllers.HandleGetAffiliate)
	authed.Patch("/affiliate", controllers.HandleUpdateAffiliateCode)
	authed.Get("/affiliate/commissions", controllers.HandleListCommissions)

	authed.Get("/account", controllers.HandleGetUserAccount)
	authed.Delete("/account", controllers.HandleDeleteAccount)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
