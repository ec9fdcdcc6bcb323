package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/creatorengine/creatorengine/app/controllers"
	"github.com/creatorengine/creatorengine/internal/pkg/middleware"
)

type AdminRouter struct {
}

func (h AdminRouter) InstallRouter(app *fiber.App) {
	admin := app.Group("/admin/api")
	admin.Post("/auth", controllers.HandleAdminAuth)

	protected := admin.Group("", middleware.AdminAuthMiddleware())
	protected.Get("/users", controllers.HandleAdminListUsers)
	protected.Patch("/users/:id", controllers.HandleAdminUpdateUser)
	protected.Get("/payments", controllers.HandleAdminListPayments)
	protected.Get("/financial-stats", controllers.HandleAdminFinancialStats)
}

func NewAdminRouter() *AdminRouter {
	return &AdminRouter{}
}
