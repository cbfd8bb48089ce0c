// Package errs implements the typed-error hierarchy used across settld.
// Domain and validator code returns a sentinel (see codes.go) wrapped with
// context via errors.Is-compatible chains; Translate turns that sentinel
// into one of the kinds below, which the HTTP layer maps to a status code.
package errs

import (
	"errors"
	"fmt"
)

// ValidationError indicates a request or payload failed a structural or
// cross-event business rule.
type ValidationError struct {
	EntityType string
	Code       string
	Title      string
	Message    string
	Err        error
}

func (e ValidationError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s - %s", e.Code, e.Message)
	}

	return e.Message
}

func (e ValidationError) Unwrap() error { return e.Err }

// EntityNotFoundError indicates the referenced aggregate, stream, or
// resource does not exist.
type EntityNotFoundError struct {
	EntityType string
	Code       string
	Title      string
	Message    string
	Err        error
}

func (e EntityNotFoundError) Error() string { return e.Message }
func (e EntityNotFoundError) Unwrap() error { return e.Err }

// EntityConflictError indicates an OCC conflict, duplicate, or state
// collision (PREV_CHAIN_HASH_MISMATCH, duplicate dedupe key, etc).
type EntityConflictError struct {
	EntityType string
	Code       string
	Title      string
	Message    string
	Err        error
}

func (e EntityConflictError) Error() string { return e.Message }
func (e EntityConflictError) Unwrap() error { return e.Err }

// PreconditionError indicates a required precondition header or state was
// missing (expected-prev-chain-hash, etc).
type PreconditionError struct {
	EntityType string
	Code       string
	Title      string
	Message    string
	Err        error
}

func (e PreconditionError) Error() string { return e.Message }
func (e PreconditionError) Unwrap() error { return e.Err }

// UnauthorizedError indicates missing or invalid credentials.
type UnauthorizedError struct {
	EntityType string
	Code       string
	Title      string
	Message    string
	Err        error
}

func (e UnauthorizedError) Error() string { return e.Message }
func (e UnauthorizedError) Unwrap() error { return e.Err }

// ForbiddenError indicates an authenticated caller lacking the required
// scope or signer authority.
type ForbiddenError struct {
	EntityType string
	Code       string
	Title      string
	Message    string
	Err        error
}

func (e ForbiddenError) Error() string { return e.Message }
func (e ForbiddenError) Unwrap() error { return e.Err }

// InternalError wraps unexpected failures (store unavailable, etc).
type InternalError struct {
	EntityType string
	Code       string
	Title      string
	Message    string
	Err        error
}

func (e InternalError) Error() string { return e.Message }
func (e InternalError) Unwrap() error { return e.Err }

// FieldValidations maps a request field name to why it failed validation.
type FieldValidations map[string]string

// ValidationFieldsError is returned by the HTTP DTO validation layer before
// a request ever reaches domain code.
type ValidationFieldsError struct {
	EntityType string
	Code       string
	Title      string
	Message    string
	Fields     FieldValidations
}

func (e ValidationFieldsError) Error() string { return e.Message }

// Translate maps a sentinel business-error code (see codes.go) to one of the
// typed errors above, filling in a stable code/title/message. entityType
// names the aggregate involved (e.g. "job", "agentWallet"); args format into
// the message the way fmt.Sprintf does.
//
//nolint:gocyclo
func Translate(err error, entityType string, args ...any) error {
	switch {
	case errors.Is(err, ErrEntityNotFound):
		return EntityNotFoundError{
			EntityType: entityType,
			Code:       ErrEntityNotFound.Error(),
			Title:      "Entity Not Found",
			Message:    fmt.Sprintf("No %s was found for the given identifier.", entityType),
		}
	case errors.Is(err, ErrPrevChainHashMismatch):
		return EntityConflictError{
			EntityType: entityType,
			Code:       ErrPrevChainHashMismatch.Error(),
			Title:      "Event Append Conflict",
			Message:    "event append conflict: expected prevChainHash does not match the current stream head",
			Err:        err,
		}
	case errors.Is(err, ErrChainBreak):
		return ValidationError{
			EntityType: entityType,
			Code:       ErrChainBreak.Error(),
			Title:      "Chain Break",
			Message:    "event prevChainHash does not link to the predecessor's chainHash",
		}
	case errors.Is(err, ErrPayloadHashMismatch):
		return ValidationError{
			EntityType: entityType,
			Code:       ErrPayloadHashMismatch.Error(),
			Title:      "Payload Hash Mismatch",
			Message:    "recomputed payloadHash does not match the stored value",
		}
	case errors.Is(err, ErrSignatureInvalid):
		return ValidationError{
			EntityType: entityType,
			Code:       ErrSignatureInvalid.Error(),
			Title:      "Signature Invalid",
			Message:    "event signature did not verify against the registered signer key",
		}
	case errors.Is(err, ErrUnknownSignerKey):
		return ValidationError{
			EntityType: entityType,
			Code:       ErrUnknownSignerKey.Error(),
			Title:      "Unknown Signer Key",
			Message:    "signerKeyId does not match any active key for the actor",
		}
	case errors.Is(err, ErrSignatureRequired):
		return ValidationError{
			EntityType: entityType,
			Code:       ErrSignatureRequired.Error(),
			Title:      "Signature Required",
			Message:    fmt.Sprintf("event type requires a signature from %v", args),
		}
	case errors.Is(err, ErrProofRequired):
		return ValidationError{
			EntityType: entityType,
			Code:       ErrProofRequired.Error(),
			Title:      "Proof Required",
			Message:    "settlement requires a fresh PROOF_EVALUATED matching the latest completion anchor",
		}
	case errors.Is(err, ErrProofStale):
		return ValidationError{
			EntityType: entityType,
			Code:       ErrProofStale.Error(),
			Title:      "Proof Stale",
			Message:    "the latest PROOF_EVALUATED no longer matches the current facts hash",
		}
	case errors.Is(err, ErrProofInsufficient):
		return ValidationError{
			EntityType: entityType,
			Code:       ErrProofInsufficient.Error(),
			Title:      "Proof Insufficient",
			Message:    "proof status is INSUFFICIENT_EVIDENCE and no matching SETTLEMENT_FORFEITED was found",
		}
	case errors.Is(err, ErrSettlementProofRefRequired):
		return ValidationError{
			EntityType: entityType,
			Code:       ErrSettlementProofRefRequired.Error(),
			Title:      "Settlement Proof Reference Required",
			Message:    "settlementProofRef must exactly match the fresh proof",
		}
	case errors.Is(err, ErrMonthClosed):
		return EntityConflictError{
			EntityType: entityType,
			Code:       ErrMonthClosed.Error(),
			Title:      "Month Closed",
			Message:    fmt.Sprintf("the accounting period %v is closed; reopen it before appending this event", args),
		}
	case errors.Is(err, ErrIdempotencyKeyConflict):
		return EntityConflictError{
			EntityType: entityType,
			Code:       ErrIdempotencyKeyConflict.Error(),
			Title:      "Idempotency Key Conflict",
			Message:    "the idempotency key was reused with a different request body",
		}
	case errors.Is(err, ErrInsufficientEscrow):
		return EntityConflictError{
			EntityType: entityType,
			Code:       ErrInsufficientEscrow.Error(),
			Title:      "Insufficient Escrow",
			Message:    "the wallet does not hold enough escrow-locked funds for this release or refund",
		}
	case errors.Is(err, ErrNegativeWalletBalance):
		return ValidationError{
			EntityType: entityType,
			Code:       ErrNegativeWalletBalance.Error(),
			Title:      "Negative Wallet Balance",
			Message:    "operation would drive available or escrowLocked below zero",
		}
	case errors.Is(err, ErrEscrowLedgerMismatch):
		return InternalError{
			EntityType: entityType,
			Code:       ErrEscrowLedgerMismatch.Error(),
			Title:      "Escrow Ledger Mismatch",
			Message:    "projected ledger balance does not equal the wallet snapshot",
		}
	case errors.Is(err, ErrIllegalTransition):
		return ValidationError{
			EntityType: entityType,
			Code:       ErrIllegalTransition.Error(),
			Title:      "Illegal Transition",
			Message:    fmt.Sprintf("event is not a legal transition from the current state: %v", args),
		}
	case errors.Is(err, ErrReservationOverlap):
		return EntityConflictError{
			EntityType: entityType,
			Code:       ErrReservationOverlap.Error(),
			Title:      "Reservation Overlap",
			Message:    "robot already has an overlapping reservation for this window",
		}
	case errors.Is(err, ErrEvidenceContentTypeForbidden):
		return ValidationError{
			EntityType: entityType,
			Code:       ErrEvidenceContentTypeForbidden.Error(),
			Title:      "Evidence Content Type Forbidden",
			Message:    fmt.Sprintf("content type is not on the allowlist: %v", args),
		}
	case errors.Is(err, ErrEvidenceTooLarge):
		return ValidationError{
			EntityType: entityType,
			Code:       ErrEvidenceTooLarge.Error(),
			Title:      "Evidence Too Large",
			Message:    "evidence payload exceeds the configured size ceiling",
		}
	case errors.Is(err, ErrEvidenceQuotaExceeded):
		return ValidationError{
			EntityType: entityType,
			Code:       ErrEvidenceQuotaExceeded.Error(),
			Title:      "Evidence Quota Exceeded",
			Message:    "the job has reached its maximum evidence count",
		}
	case errors.Is(err, ErrContractHashMismatch):
		return ValidationError{
			EntityType: entityType,
			Code:       ErrContractHashMismatch.Error(),
			Title:      "Contract Hash Mismatch",
			Message:    "policyHash does not match the compiled active contract",
		}
	case errors.Is(err, ErrDuplicateDeliveryDedupeKey):
		return EntityConflictError{
			EntityType: entityType,
			Code:       ErrDuplicateDeliveryDedupeKey.Error(),
			Title:      "Duplicate Delivery",
			Message:    "a delivery with this dedupe key already exists",
		}
	case errors.Is(err, ErrMaintenanceAlreadyRunning):
		return EntityConflictError{
			EntityType: entityType,
			Code:       ErrMaintenanceAlreadyRunning.Error(),
			Title:      "Maintenance Already Running",
			Message:    "a maintenance run is already in progress for this tenant",
		}
	case errors.Is(err, ErrFinanceExportBlocked):
		return EntityConflictError{
			EntityType: entityType,
			Code:       ErrFinanceExportBlocked.Error(),
			Title:      "Finance Export Blocked",
			Message:    "the finance export gate is in strict mode and the account map is missing",
		}
	case errors.Is(err, ErrMissingFieldsInRequest):
		return ValidationError{
			EntityType: entityType,
			Code:       ErrMissingFieldsInRequest.Error(),
			Title:      "Missing Fields In Request",
			Message:    "the request is missing one or more required fields",
		}
	case errors.Is(err, ErrUnexpectedFieldsInRequest):
		return ValidationError{
			EntityType: entityType,
			Code:       ErrUnexpectedFieldsInRequest.Error(),
			Title:      "Unexpected Fields In Request",
			Message:    "the request contains fields that are not accepted by this endpoint",
		}
	case errors.Is(err, ErrRateLimited):
		return EntityConflictError{
			EntityType: entityType,
			Code:       ErrRateLimited.Error(),
			Title:      "Rate Limited",
			Message:    "the tenant token bucket is exhausted; retry after the indicated delay",
		}
	case errors.Is(err, ErrTenantQuotaExceeded):
		return EntityConflictError{
			EntityType: entityType,
			Code:       ErrTenantQuotaExceeded.Error(),
			Title:      "Tenant Quota Exceeded",
			Message:    fmt.Sprintf("tenant quota exceeded: %v", args),
		}
	case errors.Is(err, ErrPreconditionRequired):
		return PreconditionError{
			EntityType: entityType,
			Code:       ErrPreconditionRequired.Error(),
			Title:      "Precondition Required",
			Message:    "x-proxy-expected-prev-chain-hash header is required for this write",
		}
	case errors.Is(err, ErrUnauthorized):
		return UnauthorizedError{
			EntityType: entityType,
			Code:       ErrUnauthorized.Error(),
			Title:      "Unauthorized",
			Message:    "missing or invalid credentials",
		}
	case errors.Is(err, ErrForbidden):
		return ForbiddenError{
			EntityType: entityType,
			Code:       ErrForbidden.Error(),
			Title:      "Forbidden",
			Message:    "the caller lacks the required scope or signer authority",
		}
	case errors.Is(err, ErrBadRequest):
		return ValidationError{
			EntityType: entityType,
			Code:       ErrBadRequest.Error(),
			Title:      "Bad Request",
			Message:    fmt.Sprintf("%v", args),
		}
	default:
		return err
	}
}

// AsCode reports whether err (or anything in its chain) carries the typed
// Code field, and returns it.
func AsCode(err error) (string, bool) {
	var v interface{ Error() string }

	switch e := err.(type) {
	case ValidationError:
		return e.Code, true
	case EntityNotFoundError:
		return e.Code, true
	case EntityConflictError:
		return e.Code, true
	case PreconditionError:
		return e.Code, true
	case UnauthorizedError:
		return e.Code, true
	case ForbiddenError:
		return e.Code, true
	case InternalError:
		return e.Code, true
	case ValidationFieldsError:
		return e.Code, true
	}

	_ = v

	if inner := errors.Unwrap(err); inner != nil {
		return AsCode(inner)
	}

	return "", false
}
