package httpapi

import (
	"github.com/gofiber/fiber/v2"

	"github.com/settld/core/internal/httpapi/dto"
	"github.com/settld/core/internal/store"
)

const aggregateOperator = "operator"

var operatorActionEventTypes = map[string]string{
	"shift/start":      "OPERATOR_SHIFT_STARTED",
	"shift/end":        "OPERATOR_SHIFT_ENDED",
	"coverage/reserve": "OPERATOR_COVERAGE_RESERVED",
	"coverage/release": "OPERATOR_COVERAGE_RELEASED",
}

func (a *App) registerOperatorRoutes(app *fiber.App) {
	app.Post("/operators/register", a.idempotent(a.handleRegisterOperator))

	for action, eventType := range operatorActionEventTypes {
		app.Post("/operators/:id/"+action, a.idempotent(a.appendEventHandler(store.OpOperatorEventsAppended, aggregateOperator, eventType)))
	}

	app.Post("/operators/:id/events", a.idempotent(a.appendEventHandler(store.OpOperatorEventsAppended, aggregateOperator, "OPERATOR_COVERAGE_RESERVED")))
}

// handleRegisterOperator appends OPERATOR_REGISTERED, seeding a new
// operator stream.
func (a *App) handleRegisterOperator(c *fiber.Ctx) error {
	var req dto.RegisterOperatorRequest
	if err := decodeBody(c, &req); err != nil {
		return WithError(c, err)
	}

	env := dto.EventEnvelope{Payload: map[string]any{
		"zoneId":        req.ZoneID,
		"signerKeyId":   req.SignerKeyID,
		"maxConcurrent": req.MaxConcurrent,
	}}

	ev, err := a.appendOne(c, store.OpOperatorEventsAppended, aggregateOperator, req.OperatorID, "OPERATOR_REGISTERED", env, "")
	if err != nil {
		return WithError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"operatorId": req.OperatorID, "eventId": ev.ID, "chainHash": ev.ChainHash,
	})
}
