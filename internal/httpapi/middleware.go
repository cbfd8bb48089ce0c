package httpapi

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/google/uuid"

	"github.com/settld/core/pkg/obs/log"
)

// withRequestID stamps x-request-id the way the teacher's
// WithCorrelationID stamps X-Correlation-ID, and carries both headers
// through so a caller's own correlation id survives if one was sent.
func withRequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		cid := c.Get(HeaderCorrelationID)
		if cid == "" {
			cid = uuid.NewString()
		}

		rid := uuid.NewString()

		c.Set(HeaderCorrelationID, cid)
		c.Set(HeaderRequestID, rid)
		c.Request().Header.Set(HeaderCorrelationID, cid)

		return c.Next()
	}
}

// withBuildHeaders stamps the protocol/build response headers on every
// response regardless of outcome.
func withBuildHeaders(buildVersion string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set(HeaderProtocol, CurrentProtocol)
		c.Set(HeaderSupportedProtocols, strings.Join(SupportedProtocols, ","))
		c.Set(HeaderBuild, buildVersion)

		return c.Next()
	}
}

// withTenancy resolves the caller's tenant id from HeaderTenantID, falling
// back to DefaultTenantID, and stores it in Locals for handlers.
func withTenancy() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenantID := c.Get(HeaderTenantID)
		if tenantID == "" {
			tenantID = DefaultTenantID
		}

		c.Locals("tenantID", tenantID)

		return c.Next()
	}
}

func tenantID(c *fiber.Ctx) string {
	if v, ok := c.Locals("tenantID").(string); ok {
		return v
	}

	return DefaultTenantID
}

// withProtocolNegotiation enforces spec.md §6's x-settld-protocol contract:
// absent is allowed (implies CurrentProtocol), too old is 426, too new or
// deprecated is 400.
func withProtocolNegotiation() fiber.Handler {
	return func(c *fiber.Ctx) error {
		requested := c.Get(HeaderProtocol)
		if requested == "" {
			return c.Next()
		}

		cmp, err := compareSemver(requested, CurrentProtocol)
		if err != nil {
			return jsonError(c, fiber.StatusBadRequest, "PROTOCOL_MALFORMED", "x-settld-protocol is not a valid semver", nil)
		}

		if cmp > 0 {
			return jsonError(c, fiber.StatusBadRequest, "PROTOCOL_TOO_NEW", "requested protocol is newer than any version this build supports", nil)
		}

		below, err := compareSemver(requested, MinSupportedProtocol)
		if err == nil && below < 0 {
			return c.Status(fiber.StatusUpgradeRequired).JSON(envelope{
				Error: "requested protocol is older than the minimum this build supports",
				Code:  "PROTOCOL_TOO_OLD",
			})
		}

		deprecated, err := compareSemver(requested, DeprecatedBelow)
		if err == nil && deprecated < 0 {
			return jsonError(c, fiber.StatusBadRequest, "PROTOCOL_DEPRECATED", "requested protocol has been deprecated", nil)
		}

		return c.Next()
	}
}

// compareSemver compares two "major.minor.patch" strings, returning
// -1/0/1. There is no third-party semver library anywhere in the retrieval
// pack, so this stays stdlib — the comparison is three integer splits, not
// a case where a dependency earns its weight.
func compareSemver(a, b string) (int, error) {
	av, err := splitSemver(a)
	if err != nil {
		return 0, err
	}

	bv, err := splitSemver(b)
	if err != nil {
		return 0, err
	}

	for i := 0; i < 3; i++ {
		if av[i] != bv[i] {
			if av[i] < bv[i] {
				return -1, nil
			}

			return 1, nil
		}
	}

	return 0, nil
}

func splitSemver(v string) ([3]int, error) {
	var out [3]int

	parts := strings.SplitN(v, ".", 3)
	if len(parts) != 3 {
		return out, fiber.NewError(fiber.StatusBadRequest, "malformed semver")
	}

	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return out, err
		}

		out[i] = n
	}

	return out, nil
}

// withHTTPLogging logs one access-log line per request in the teacher's
// CLF-derived style, skipping the health endpoint the same way
// WithHTTPLogging skips "/health".
func withHTTPLogging(logger log.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Path() == "/healthz" {
			return c.Next()
		}

		start := time.Now()
		reqLogger := logger.WithFields(HeaderCorrelationID, c.Get(HeaderCorrelationID), "tenantId", tenantID(c))
		c.SetUserContext(log.ContextWithLogger(c.UserContext(), reqLogger))

		err := c.Next()

		reqLogger.Infof("%s %s %d %s", c.Method(), c.Path(), c.Response().StatusCode(), time.Since(start))

		return err
	}
}

// withRateLimit enforces the Limiter's per-tenant token bucket ahead of
// every write; GET requests and deployments with no RateLimiter configured
// (no Redis URL set, so App.RateLimiter is nil) pass through untouched.
func (a *App) withRateLimit() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodGet || a.RateLimiter == nil {
			return c.Next()
		}

		allowed, err := a.RateLimiter.Allow(c.UserContext(), tenantID(c), "write")
		if err != nil {
			a.logger(c).Warnf("httpapi: rate limiter unavailable, allowing request: %v", err)
			return c.Next()
		}

		if !allowed {
			return jsonError(c, fiber.StatusTooManyRequests, "RATE_LIMITED", "too many requests for this tenant", nil)
		}

		return c.Next()
	}
}

// withCORS mirrors the teacher's WithCORS: a permissive default, overridable
// by env in cmd/server's bootstrap, not here.
func withCORS() fiber.Handler {
	return cors.New(cors.Config{
		AllowOrigins:     "*",
		AllowMethods:     "POST, GET, OPTIONS, PUT, DELETE, PATCH",
		AllowHeaders:     "Accept, Content-Type, Content-Length, Authorization, " + HeaderTenantID + ", " + HeaderProtocol + ", " + HeaderIdempotencyKey + ", " + HeaderExpectedPrevChainHash,
		AllowCredentials: true,
	})
}
