package router

import (
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis"

	"github.com/faxsnap/faxsnap/app/controllers"
	"github.com/faxsnap/faxsnap/internal/pkg/cache"
	"github.com/faxsnap/faxsnap/internal/pkg/env"
	"github.com/faxsnap/faxsnap/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", cors.New(), limiter.New(limiter.Config{
		Max:        60,
		Expiration: 1 * time.Minute,
		Storage:    newLimiterStorage(),
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes, all behind API key auth
	v1 := api.Group("/v1", middleware.APIKeyAuthMiddleware())
	v1.Post("/faxes", controllers.HandleSendFax)
	v1.Get("/faxes", controllers.HandleListFaxes)
	v1.Get("/faxes/:uuid", controllers.HandleGetFax)
	v1.Get("/tokens/balance", controllers.HandleTokenBalance)
	v1.Get("/packages", controllers.HandleListPackages)
	v1.Post("/checkout/sessions", controllers.HandleCreateCheckout)
}

// newLimiterStorage backs the rate limiter with Redis so limits hold across
// instances. Uses database 1 (cache uses DB 0).
func newLimiterStorage() *redis.Storage {
	host := "localhost"
	port := 6379
	password := env.GetEnv("CACHE_PASSWORD", "")
	if cacheClient := cache.GetClient(); cacheClient != nil {
		addr := cacheClient.Options().Addr
		if h, p, err := net.SplitHostPort(addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		if p := cacheClient.Options().Password; p != "" {
			password = p
		}
	}

	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: 1,
		Reset:    false,
	})
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
