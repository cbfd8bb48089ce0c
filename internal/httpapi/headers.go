// Package httpapi wires settld's Fiber HTTP surface: tenancy, protocol
// negotiation, idempotency, OCC precondition and rate-limit middleware in
// front of the event-append write path, plus the read-only system endpoints
// (/metrics, /healthz, /capabilities). Grounded on the teacher's
// common/net/http package (withCorrelationID.go, withLogging.go,
// withCORS.go, withJWT.go, errors.go, handler.go) translated to use
// pkg/errs's sentinel hierarchy instead of the teacher's common.*Error
// types, and on components/ledger/internal/bootstrap/http/routes.go's
// NewRouter(deps...) *fiber.App idiom.
package httpapi

const (
	HeaderTenantID          = "x-settld-tenant-id"
	HeaderProtocol          = "x-settld-protocol"
	HeaderSupportedProtocols = "x-settld-supported-protocols"
	HeaderBuild             = "x-settld-build"
	HeaderIdempotencyKey    = "x-idempotency-key"
	HeaderExpectedPrevChainHash = "x-proxy-expected-prev-chain-hash"
	HeaderRequestID         = "x-request-id"
	HeaderCorrelationID     = "X-Correlation-ID"

	DefaultTenantID = "default"
)

// SupportedProtocols is the set of protocol versions this build accepts, in
// ascending order. CurrentProtocol is advertised back on every response.
var SupportedProtocols = []string{"1.0.0", "1.1.0", "1.2.0"}

const (
	CurrentProtocol    = "1.2.0"
	MinSupportedProtocol = "1.0.0"
	DeprecatedBelow    = "1.0.0"
)
