package server

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"

	"tirepos/internal/http/handlers"
	"tirepos/internal/http/middleware"
	applog "tirepos/internal/log"
)

// MaxBodySize caps request bodies (1 MiB).
const MaxBodySize = 1 << 20

type Options struct {
	Deps *handlers.Deps
	// Redis enables the Idempotency-Key guard on sale creation when set.
	Redis          *redis.Client
	IdempotencyTTL time.Duration
	RatePerMinute  int
	Gatherer       prometheus.Gatherer
	AccessLog      io.Writer
}

// New assembles the fiber app: middleware, API routes, receipt view and /metrics.
func New(opts Options) *fiber.App {
	app := fiber.New(fiber.Config{
		Views:                 handlers.Views(),
		ErrorHandler:          handlers.ErrorHandler,
		DisableStartupMessage: true,
	})
	// Global body size guard
	app.Server().MaxRequestBodySize = MaxBodySize

	accessLog := opts.AccessLog
	if accessLog == nil {
		accessLog = os.Stdout
	}

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(logger.New(logger.Config{
		Format: "${time} ${locals:requestid} ${status} ${method} ${path} ${latency}\n",
		Output: accessLog,
	}))
	app.Use(helmet.New())
	app.Use(opts.Deps.Metrics.Middleware())

	if opts.RatePerMinute > 0 {
		app.Use(limiter.New(limiter.Config{
			Max:        opts.RatePerMinute,
			Expiration: time.Minute,
			Next: func(c *fiber.Ctx) bool {
				p := c.Path()
				return p == "/healthz" || p == "/metrics" || strings.HasPrefix(p, "/static/")
			},
			LimitReached: func(c *fiber.Ctx) error {
				applog.Security(c, "rate.limit.hit", nil)
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
					"error": handlers.ErrorBody{Code: "RATE_LIMITED", Message: "rate limit exceeded, retry soon"},
				})
			},
		}))
	}

	var idem fiber.Handler
	if opts.Redis != nil {
		idem = middleware.Idem{R: opts.Redis, TTL: opts.IdempotencyTTL}.Handler()
	}
	handlers.Register(app, opts.Deps, idem)

	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	app.Use(func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "Page not found")
	})
	return app
}
