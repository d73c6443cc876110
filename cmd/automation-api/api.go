package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/dubaigit/task-mail-sub006/pkg/metrics"
	"github.com/dubaigit/task-mail-sub006/pkg/services"
	"github.com/dubaigit/task-mail-sub006/pkg/web"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger     *slog.Logger
	automation *services.Automation
	metrics    *metrics.Collector
}

func NewAPI(logger *slog.Logger, automation *services.Automation, collector *metrics.Collector) *API {
	return &API{
		logger:     logger,
		automation: automation,
		metrics:    collector,
	}
}

func (a *API) App() *fiber.App {
	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Mail Automation API")
	})

	if a.metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(a.metrics.Handler()))
	}

	web.NewAPIHandlers(a.automation).Register(app)

	return app
}

// Start serves until ctx is cancelled, then shuts the server down.
func (a *API) Start(ctx context.Context, port int) error {
	app := a.App()

	go func() {
		<-ctx.Done()

		err := app.Shutdown()
		if err != nil {
			a.logger.Error("Failed to shut down API", "error", err)
		}
	}()

	a.logger.InfoContext(ctx, "Starting API", "port", port)

	return app.Listen(":" + strconv.Itoa(port))
}
