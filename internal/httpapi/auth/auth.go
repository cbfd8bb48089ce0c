// Package auth implements bearer-token authentication for settld's ops
// surface: a JWT carrying a space-separated "scope" claim, verified against
// a configured HMAC secret, the way the teacher's withJWT.go parses and
// caches a token's claims before any WithScope check — simplified to a
// single shared-secret verifier since settld has no Casdoor-style OIDC
// provider to delegate to.
package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/settld/core/pkg/errs"
)

// Scope is one of the bearer-token scopes spec.md §6 enumerates.
type Scope string

const (
	ScopeOpsRead         Scope = "ops_read"
	ScopeOpsWrite        Scope = "ops_write"
	ScopeFinanceRead     Scope = "finance_read"
	ScopeFinanceWrite    Scope = "finance_write"
	ScopeAuditRead       Scope = "audit_read"
	ScopeGovernanceTenantRead  Scope = "governance_tenant_read"
	ScopeGovernanceTenantWrite Scope = "governance_tenant_write"
	ScopeGovernanceGlobalRead  Scope = "governance_global_read"
	ScopeGovernanceGlobalWrite Scope = "governance_global_write"
)

// claimsContextKey is the fiber.Locals key a verified token's claim set is
// stored under.
const claimsContextKey = "settld_auth_claims"

// Middleware verifies bearer tokens signed with Secret using HS256.
type Middleware struct {
	Secret []byte
}

// New constructs a Middleware over a shared HMAC secret.
func New(secret string) *Middleware {
	return &Middleware{Secret: []byte(secret)}
}

// Claims is the parsed token payload settld cares about.
type Claims struct {
	Subject string
	Scopes  map[string]bool
}

// Protect verifies the Authorization: Bearer header and stores the parsed
// claims in Locals for a later WithScope check.
func (m *Middleware) Protect() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := bearerToken(c)
		if tokenString == "" {
			return errs.UnauthorizedError{Code: errs.ErrUnauthorized.Error(), Message: "missing bearer token"}
		}

		token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}

			return m.Secret, nil
		})
		if err != nil || !token.Valid {
			return errs.UnauthorizedError{Code: errs.ErrUnauthorized.Error(), Message: "invalid or expired bearer token"}
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return errs.UnauthorizedError{Code: errs.ErrUnauthorized.Error(), Message: "malformed token claims"}
		}

		parsed := Claims{Scopes: map[string]bool{}}

		if sub, ok := claims["sub"].(string); ok {
			parsed.Subject = sub
		}

		if scope, ok := claims["scope"].(string); ok {
			for _, s := range strings.Fields(scope) {
				parsed.Scopes[s] = true
			}
		}

		c.Locals(claimsContextKey, parsed)

		return c.Next()
	}
}

// WithScope rejects the request unless the verified token carries one of
// the required scopes.
func (m *Middleware) WithScope(required ...Scope) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, ok := c.Locals(claimsContextKey).(Claims)
		if !ok {
			return errs.UnauthorizedError{Code: errs.ErrUnauthorized.Error(), Message: "missing bearer token"}
		}

		for _, s := range required {
			if claims.Scopes[string(s)] {
				return c.Next()
			}
		}

		return errs.ForbiddenError{Code: errs.ErrForbidden.Error(), Message: "caller lacks the required scope"}
	}
}

func bearerToken(c *fiber.Ctx) string {
	header := c.Get(fiber.HeaderAuthorization)

	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}

	return ""
}
