package router

import (
	"github.com/faxsnap/faxsnap/app/controllers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// Wire services before any route can fire.
	controllers.InitializeControllers()

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"service": "faxsnap", "status": "ok"})
	})

	// Provider webhooks are unauthenticated endpoints; each controller verifies
	// the delivery itself (signature or provider fax id match) and replies 200
	// for anything that must not be redelivered. The cors middleware answers
	// OPTIONS preflights here, the same as on the api group.
	webhooks := app.Group("/webhooks", cors.New())
	webhooks.Post("/stripe", controllers.HandleStripeWebhook)
	webhooks.Post("/telnyx", controllers.HandleTelnyxWebhook)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
