package httpapi

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/settld/core/internal/httpapi/dto"
	"github.com/settld/core/internal/settlement"
	"github.com/settld/core/internal/store"
)

// defaultSettlementPolicy is the green/amber/red settlement policy that
// handleResolveSettlement passes to EvaluateSettlementPolicy for every
// tenant; per-tenant policies are not consulted.
var defaultSettlementPolicy = settlement.Policy{AutoResolveGreen: true}

var runDisputeActionEventTypes = map[string]string{
	"dispute/open":     "DISPUTE_OPENED",
	"dispute/escalate": "DISPUTE_ESCALATED",
	"dispute/evidence": "DISPUTE_EVIDENCE_SUBMITTED",
}

func (a *App) registerRunRoutes(app *fiber.App) {
	app.Post("/runs/:id/settlement/resolve", a.idempotent(a.handleResolveSettlement))
	app.Post("/runs/:id/dispute/close", a.idempotent(a.handleCloseDispute))
	app.Post("/runs/:id/agreement/change-order", a.idempotent(a.appendEventHandler(store.OpAgentRunEventsAppended, aggregateAgentRun, "AGREEMENT_CHANGE_ORDER")))
	app.Post("/runs/:id/agreement/cancel", a.idempotent(a.appendEventHandler(store.OpAgentRunEventsAppended, aggregateAgentRun, "AGREEMENT_CANCELLED")))

	for action, eventType := range runDisputeActionEventTypes {
		app.Post("/runs/:id/"+action, a.idempotent(a.appendEventHandler(store.OpAgentRunEventsAppended, aggregateAgentRun, eventType)))
	}
}

// handleResolveSettlement evaluates the settlement policy table against a
// run's verification outcome and persists the resulting decision, appending
// a RUN_SETTLEMENT_RESOLVED event atop the run's stream alongside the
// AgentRunSettlementRow projection the ops dashboard reads.
func (a *App) handleResolveSettlement(c *fiber.Ctx) error {
	var req dto.SettlementResolveRequest
	if err := decodeBody(c, &req); err != nil {
		return WithError(c, err)
	}

	runID := c.Params("id")
	tid := tenantID(c)

	head, ok := a.requireHead(c, streamID(tid, aggregateAgentRun, runID))
	if !ok {
		return nil
	}

	decision := settlement.EvaluateSettlementPolicy(
		defaultSettlementPolicy,
		req.VerificationMethod,
		settlement.VerificationStatus(req.VerificationStatus),
		"completed",
		req.AmountCents,
	)

	env := dto.EventEnvelope{Payload: map[string]any{
		"verificationMethod": req.VerificationMethod,
		"verificationStatus": req.VerificationStatus,
		"releaseRatePct":     decision.ReleaseRatePct,
		"releaseAmountCents": decision.ReleaseAmountCents,
		"refundAmountCents":  decision.RefundAmountCents,
		"settlementStatus":   string(decision.SettlementStatus),
		"reasonCodes":        decision.ReasonCodes,
	}}

	ev, err := a.appendOne(c, store.OpAgentRunEventsAppended, aggregateAgentRun, runID, "RUN_SETTLEMENT_RESOLVED", env, head)
	if err != nil {
		return WithError(c, err)
	}

	decisionStatus := settlement.DecisionManualReviewRequired
	if decision.ShouldAutoResolve {
		decisionStatus = settlement.DecisionAutoResolved
	}

	settlementRow := store.AgentRunSettlementRow{
		TenantID: tid, RunID: runID,
		Status:            string(decision.SettlementStatus),
		DecisionStatus:    string(decisionStatus),
		ReleasedCents:     decision.ReleaseAmountCents,
		RefundedCents:     decision.RefundAmountCents,
		ResolutionEventID: ev.ID,
		Revision:          1,
		UpdatedAt:         time.Now().UTC(),
	}

	op := store.Op{Kind: store.OpAgentRunSettlementUpsert, TenantID: tid, AgentRunSettlement: &settlementRow}

	if err := a.Store.CommitTx(c.UserContext(), []store.Op{op}, nil); err != nil {
		return WithError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"runId": runID, "eventId": ev.ID, "chainHash": ev.ChainHash,
		"settlementStatus": decision.SettlementStatus, "releaseRatePct": decision.ReleaseRatePct,
	})
}

// handleCloseDispute appends DISPUTE_CLOSED atop the run's stream, carrying
// the request's outcome, release rate and verdict signature as given; it
// computes no release or refund amounts. Full verdict signature verification needs the arbiter's
// registered public key, which store.Store does not expose a lookup for
// (only a PublicKeyPut write op) — the signature is recorded on the event
// for a worker with direct key-store access to verify asynchronously,
// matching job dispute/close's generic event-append treatment.
func (a *App) handleCloseDispute(c *fiber.Ctx) error {
	var req dto.DisputeCloseRequest
	if err := decodeBody(c, &req); err != nil {
		return WithError(c, err)
	}

	runID := c.Params("id")

	head, ok := a.requireHead(c, streamID(tenantID(c), aggregateAgentRun, runID))
	if !ok {
		return nil
	}

	env := dto.EventEnvelope{Payload: map[string]any{
		"outcome":          req.Outcome,
		"releaseRatePct":   req.ReleaseRatePct,
		"verdictSignature": req.VerdictSignature,
	}}

	ev, err := a.appendOne(c, store.OpAgentRunEventsAppended, aggregateAgentRun, runID, "DISPUTE_CLOSED", env, head)
	if err != nil {
		return WithError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"runId": runID, "eventId": ev.ID, "chainHash": ev.ChainHash})
}
