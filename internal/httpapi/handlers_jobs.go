package httpapi

import (
	"github.com/gofiber/fiber/v2"

	"github.com/settld/core/internal/httpapi/dto"
	"github.com/settld/core/internal/store"
)

const aggregateJob = "job"

// jobActionEventTypes maps spec.md §6's job sub-action path segments to the
// event type internal/domain/job.apply recognizes. "dispatch" has no direct
// job event of its own — booking a job is what the dispatch worker reacts
// to (see internal/outbox/workers/dispatch.go) — so a direct POST to it
// records a DISPATCH_REQUESTED re-ask, handled the same as any other
// generic event append.
var jobActionEventTypes = map[string]string{
	"quote":         "JOB_QUOTED",
	"book":          "BOOKED",
	"dispatch":      "DISPATCH_REQUESTED",
	"reschedule":    "RESERVED",
	"cancel":        "ABORTED",
	"abort":         "ABORTING_SAFE_EXIT",
	"dispute/open":  "DISPUTE_OPENED",
	"dispute/close": "DISPUTE_CLOSED",
	"sla-credit":    "CLAIM_APPROVED",
}

func (a *App) registerJobRoutes(app *fiber.App) {
	app.Post("/jobs", a.idempotent(a.handleCreateJob))

	for action, eventType := range jobActionEventTypes {
		app.Post("/jobs/:id/"+action, a.idempotent(a.appendEventHandler(store.OpJobEventsAppended, aggregateJob, eventType)))
	}

	app.Post("/jobs/:id/events", a.idempotent(a.handleJobGenericEvent))
}

// handleCreateJob appends the JOB_CREATED event that seeds a new job
// stream. The precondition header is not required here: the stream cannot
// have a head yet, so the expected prevChainHash is always "".
func (a *App) handleCreateJob(c *fiber.Ctx) error {
	var req dto.CreateJobRequest
	if err := decodeBody(c, &req); err != nil {
		return WithError(c, err)
	}

	env := dto.EventEnvelope{Payload: map[string]any{
		"templateId": req.TemplateID,
		"customerId": req.CustomerID,
		"siteId":     req.SiteID,
	}}

	ev, err := a.appendOne(c, store.OpJobEventsAppended, aggregateJob, req.JobID, "JOB_CREATED", env, "")
	if err != nil {
		return WithError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"jobId": req.JobID, "eventId": ev.ID, "chainHash": ev.ChainHash,
	})
}

// handleJobGenericEvent is POST /jobs/{id}/events: append any job event
// type the caller supplies directly, for event kinds (HEARTBEAT,
// EVIDENCE_CAPTURED, EXECUTION_STARTED, ...) that aren't modeled as a named
// sub-action.
func (a *App) handleJobGenericEvent(c *fiber.Ctx) error {
	var body struct {
		EventType string `json:"eventType" validate:"required"`
		dto.EventEnvelope
	}

	if err := decodeBody(c, &body); err != nil {
		return WithError(c, err)
	}

	jobID := c.Params("id")

	head, ok := a.requireHead(c, streamID(tenantID(c), aggregateJob, jobID))
	if !ok {
		return nil
	}

	ev, err := a.appendOne(c, store.OpJobEventsAppended, aggregateJob, jobID, body.EventType, body.EventEnvelope, head)
	if err != nil {
		return WithError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"eventId": ev.ID, "chainHash": ev.ChainHash})
}
