package httpapi

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/settld/core/internal/committer"
	"github.com/settld/core/internal/httpapi/auth"
	"github.com/settld/core/internal/httpapi/dto"
	"github.com/settld/core/internal/metrics"
	"github.com/settld/core/internal/ratelimit"
	"github.com/settld/core/internal/store"
	"github.com/settld/core/pkg/errs"
	"github.com/settld/core/pkg/obs/log"
)

// App bundles every dependency the HTTP layer needs, constructed once in
// cmd/server and handed to NewRouter, mirroring the teacher's bootstrap
// pattern of a flat deps struct threaded into NewRouter(deps...).
type App struct {
	Store       store.Store
	Committer   *committer.Committer
	RateLimiter *ratelimit.Limiter
	Metrics     *metrics.Metrics
	Logger      log.Logger
	JWT         *auth.Middleware
	Fleet       FleetIndex

	BuildVersion      string
	ServiceName       string
	ExportsHMACSecret string
}

func (a *App) logger(c *fiber.Ctx) log.Logger {
	if l := log.FromContext(c.UserContext()); l != nil {
		return l
	}

	if a.Logger != nil {
		return a.Logger
	}

	return &log.NoneLogger{}
}

func (a *App) fallbackLogger() log.Logger {
	if a.Logger != nil {
		return a.Logger
	}

	return &log.NoneLogger{}
}

// NewRouter builds the fiber.App and registers every route, mirroring the
// teacher's NewRouter(deps...) *fiber.App idiom: middleware chain first,
// then one route-registration call per resource group.
func NewRouter(a *App) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return WithError(c, err)
		},
	})

	app.Use(withCORS())
	app.Use(withRequestID())
	app.Use(withBuildHeaders(a.BuildVersion))
	app.Use(withTenancy())
	app.Use(withProtocolNegotiation())
	app.Use(withHTTPLogging(a.fallbackLogger()))
	app.Use(a.withMetrics())
	app.Use(a.withRateLimit())

	a.registerSystemRoutes(app)
	a.registerIngestRoutes(app)
	a.registerJobRoutes(app)
	a.registerRobotRoutes(app)
	a.registerOperatorRoutes(app)
	a.registerAgentRoutes(app)
	a.registerMarketplaceRoutes(app)
	a.registerRunRoutes(app)
	a.registerOpsRoutes(app)
	a.registerExportRoutes(app)

	return app
}

// registerSystemRoutes wires the read-only surfaces: metrics, healthz,
// capabilities, and a static openapi.json stub (SPEC_FULL.md's Non-goals
// exclude a generated OpenAPI document; routes are documented in code
// instead, the way this file's comments do).
func (a *App) registerSystemRoutes(app *fiber.App) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(a.Metrics.Registry, promhttp.HandlerOpts{})))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		if _, err := a.Store.StreamHead(c.UserContext(), "healthcheck/probe/probe"); err != nil {
			return jsonError(c, fiber.StatusServiceUnavailable, "STORE_UNAVAILABLE", err.Error(), nil)
		}

		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Get("/capabilities", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"protocols":  SupportedProtocols,
			"current":    CurrentProtocol,
			"build":      a.BuildVersion,
			"scopes": []string{
				"ops_read", "ops_write", "finance_read", "finance_write", "audit_read",
				"governance_tenant_read", "governance_tenant_write",
				"governance_global_read", "governance_global_write",
			},
		})
	})

	app.Get("/openapi.json", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"openapi": "3.0.3",
			"info":    fiber.Map{"title": "settld", "version": a.BuildVersion},
			"paths":   fiber.Map{},
		})
	})
}

// withMetrics records one ObserveHTTP sample per completed request.
func (a *App) withMetrics() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		route := c.Route().Path
		if route == "" {
			route = c.Path()
		}

		a.Metrics.ObserveHTTP(c.Method(), route, strconv.Itoa(c.Response().StatusCode()), time.Since(start).Seconds())

		return err
	}
}

// decodeBody unmarshals the request body into dst and runs dto.Validate. It
// never writes to c itself — callers pass the returned error to WithError,
// matching the teacher's decoderHandler.FiberHandlerFunc which resolves
// decode/validate failures through the same error-mapping path as domain
// errors rather than special-casing them.
func decodeBody(c *fiber.Ctx, dst any) error {
	if err := json.Unmarshal(c.Body(), dst); err != nil {
		return errs.ValidationFieldsError{Code: errs.ErrBadRequest.Error(), Message: "malformed request body: " + err.Error()}
	}

	return dto.Validate(dst)
}
