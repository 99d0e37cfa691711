package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/faxsnap/faxsnap/app/repository"
	"github.com/faxsnap/faxsnap/internal/pkg/cache"
	"github.com/faxsnap/faxsnap/internal/pkg/database"
	"github.com/faxsnap/faxsnap/internal/pkg/env"
	"github.com/faxsnap/faxsnap/internal/pkg/payments"
	"github.com/faxsnap/faxsnap/internal/pkg/router"
)

const reconcileInterval = 5 * time.Minute

func main() {
	app := NewApplication()

	startGrantReconciler()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()
	repository.InitializeFactory(database.GetDB())

	// init fiber app
	app := fiber.New(fiber.Config{
		BodyLimit: 25 * 1024 * 1024, // fax documents arrive as multipart uploads
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "admin"): env.GetEnv("METRICS_PASSWORD", "test"),
		},
	}), monitor.New())

	// ROUTER
	router.InstallRouter(app)

	return app
}

// startGrantReconciler periodically re-drives token issuance for completed
// purchases that are missing grants, healing crashes between payment
// finalization and grant creation.
func startGrantReconciler() {
	svc := payments.NewServiceFromDB(database.GetDB(), payments.NewStripeClientFromEnv())
	go func() {
		ticker := time.NewTicker(reconcileInterval)
		defer ticker.Stop()
		for range ticker.C {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			healed, err := svc.ReconcileUngranted(ctx, 100)
			cancel()
			if err != nil {
				log.Printf("grant reconciler: %v", err)
				continue
			}
			if healed > 0 {
				log.Printf("grant reconciler healed %d purchases", healed)
			}
		}
	}()
}
