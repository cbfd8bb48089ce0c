package httpapi

import (
	"github.com/gofiber/fiber/v2"

	"github.com/settld/core/internal/httpapi/dto"
	"github.com/settld/core/internal/store"
)

const aggregateRobot = "robot"

var robotActionEventTypes = map[string]string{
	"heartbeat":  "ROBOT_HEARTBEAT",
	"reserve":    "ROBOT_RESERVED",
	"dispatch":   "ROBOT_DISPATCHED",
	"release":    "ROBOT_RELEASED",
	"quarantine": "ROBOT_QUARANTINED",
	"stall":      "ROBOT_STALL_RECORDED",
	"retire":     "ROBOT_RETIRED",
}

func (a *App) registerRobotRoutes(app *fiber.App) {
	app.Post("/robots/register", a.idempotent(a.handleRegisterRobot))

	for action, eventType := range robotActionEventTypes {
		app.Post("/robots/:id/"+action, a.idempotent(a.appendEventHandler(store.OpRobotEventsAppended, aggregateRobot, eventType)))
	}

	app.Post("/robots/:id/events", a.idempotent(a.appendEventHandler(store.OpRobotEventsAppended, aggregateRobot, "ROBOT_TRUST_SCORE_UPDATED")))
}

// handleRegisterRobot appends ROBOT_REGISTERED, seeding a new robot stream.
func (a *App) handleRegisterRobot(c *fiber.Ctx) error {
	var req dto.RegisterRobotRequest
	if err := decodeBody(c, &req); err != nil {
		return WithError(c, err)
	}

	env := dto.EventEnvelope{Payload: map[string]any{
		"zoneId":      req.ZoneID,
		"signerKeyId": req.SignerKeyID,
	}}

	ev, err := a.appendOne(c, store.OpRobotEventsAppended, aggregateRobot, req.RobotID, "ROBOT_REGISTERED", env, "")
	if err != nil {
		return WithError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"robotId": req.RobotID, "eventId": ev.ID, "chainHash": ev.ChainHash,
	})
}
