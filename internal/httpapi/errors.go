package httpapi

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/settld/core/pkg/errs"
)

// envelope is the stable error body shape every non-2xx response shares,
// matching spec.md §6's `{error, code, details?}`.
type envelope struct {
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Details map[string]any    `json:"details,omitempty"`
	Fields  errs.FieldValidations `json:"fields,omitempty"`
}

// WithError maps err to an HTTP response, dispatching on the typed errors
// pkg/errs.Translate produces the same way the teacher's WithError type
// switches on common.EntityNotFoundError / common.EntityConflictError /
// common.ValidationError.
func WithError(c *fiber.Ctx, err error) error {
	var (
		notFound    errs.EntityNotFoundError
		conflict    errs.EntityConflictError
		validation  errs.ValidationError
		precond     errs.PreconditionError
		unauthed    errs.UnauthorizedError
		forbidden   errs.ForbiddenError
		internal    errs.InternalError
		fieldsErr   errs.ValidationFieldsError
	)

	switch {
	case errors.As(err, &notFound):
		return jsonError(c, fiber.StatusNotFound, notFound.Code, notFound.Message, nil)
	case errors.As(err, &conflict):
		return jsonError(c, fiber.StatusConflict, conflict.Code, conflict.Message, nil)
	case errors.As(err, &validation):
		return jsonError(c, fiber.StatusBadRequest, validation.Code, validation.Message, nil)
	case errors.As(err, &precond):
		return jsonError(c, fiber.StatusPreconditionRequired, precond.Code, precond.Message, nil)
	case errors.As(err, &unauthed):
		return jsonError(c, fiber.StatusUnauthorized, unauthed.Code, unauthed.Message, nil)
	case errors.As(err, &forbidden):
		return jsonError(c, fiber.StatusForbidden, forbidden.Code, forbidden.Message, nil)
	case errors.As(err, &fieldsErr):
		return c.Status(fiber.StatusBadRequest).JSON(envelope{
			Error: fieldsErr.Message, Code: fieldsErr.Code, Fields: fieldsErr.Fields,
		})
	case errors.As(err, &internal):
		return jsonError(c, fiber.StatusInternalServerError, internal.Code, internal.Message, nil)
	default:
		return jsonError(c, fiber.StatusInternalServerError, "", err.Error(), nil)
	}
}

func jsonError(c *fiber.Ctx, status int, code, message string, details map[string]any) error {
	return c.Status(status).JSON(envelope{Error: message, Code: code, Details: details})
}

// preconditionRequired writes the 428 response for a missing
// x-proxy-expected-prev-chain-hash header, a case the typed-error hierarchy
// alone can't distinguish from a generic precondition error because no
// aggregate has been resolved yet at the point it's detected.
func preconditionRequired(c *fiber.Ctx) error {
	return jsonError(c, fiber.StatusPreconditionRequired, errs.ErrPreconditionRequired.Error(),
		"x-proxy-expected-prev-chain-hash header is required for this write", nil)
}

// chainHashConflict writes the 409 response for a mismatched precondition
// header, including the current and expected hashes the way the committer's
// OCC conflict does.
func chainHashConflict(c *fiber.Ctx, expected, actual string) error {
	return jsonError(c, fiber.StatusConflict, errs.ErrPrevChainHashMismatch.Error(),
		"expected prevChainHash does not match the current stream head",
		map[string]any{"expected": expected, "actual": actual})
}
