package httpapi

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/settld/core/internal/httpapi/dto"
	"github.com/settld/core/internal/settlement"
	"github.com/settld/core/internal/store"
	"github.com/settld/core/pkg/errs"
)

const aggregateAgentRun = "agentRun"

var agentRunActionEventTypes = map[string]string{
	"start":    "AGENT_RUN_STARTED",
	"complete": "AGENT_RUN_COMPLETED",
	"fail":     "AGENT_RUN_FAILED",
}

func (a *App) registerAgentRoutes(app *fiber.App) {
	app.Post("/agents/register", a.idempotent(a.handleRegisterAgent))
	app.Post("/agents/:id/wallet/credit", a.idempotent(a.handleCreditWallet))
	app.Post("/agents/:id/runs", a.idempotent(a.handleCreateAgentRun))

	for action, eventType := range agentRunActionEventTypes {
		app.Post("/agents/:id/runs/:runId/"+action, a.idempotent(a.appendEventHandler(store.OpAgentRunEventsAppended, aggregateAgentRun, eventType)))
	}

	app.Post("/agents/:id/runs/:runId/events", a.idempotent(a.appendEventHandler(store.OpAgentRunEventsAppended, aggregateAgentRun, "AGENT_RUN_COMPLETED")))
}

// handleRegisterAgent seeds a zero-balance wallet for a new agent. Wallet
// rows aren't stream-append ops (they're not in store.StreamAppendOpKinds),
// so this commits directly rather than going through requireHead.
func (a *App) handleRegisterAgent(c *fiber.Ctx) error {
	var req dto.RegisterAgentRequest
	if err := decodeBody(c, &req); err != nil {
		return WithError(c, err)
	}

	tid := tenantID(c)

	row := store.AgentWalletRow{
		TenantID: tid, AgentID: req.AgentID, Currency: req.Currency,
		Revision: 1, UpdatedAt: time.Now().UTC(),
	}

	op := store.Op{Kind: store.OpAgentWalletUpsert, TenantID: tid, AgentWallet: &row}

	if err := a.Store.CommitTx(c.UserContext(), []store.Op{op}, nil); err != nil {
		return WithError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"agentId": req.AgentID, "currency": req.Currency})
}

// handleCreditWallet applies settlement.Credit to the agent's current
// wallet snapshot and persists the resulting balance, the way a finance
// top-up (insurer reimbursement, manual adjustment) reaches the ledger.
func (a *App) handleCreditWallet(c *fiber.Ctx) error {
	var req dto.CreditWalletRequest
	if err := decodeBody(c, &req); err != nil {
		return WithError(c, err)
	}

	tid := tenantID(c)
	agentID := c.Params("id")

	row, ok, err := a.Store.LoadWallet(c.UserContext(), tid, agentID)
	if err != nil {
		return WithError(c, err)
	}

	if !ok {
		return WithError(c, errs.Translate(errs.ErrEntityNotFound, "agentWallet"))
	}

	wallet := settlement.Wallet{
		TenantID: row.TenantID, AgentID: row.AgentID, Currency: row.Currency,
		AvailableCents: row.AvailableCents, EscrowLockedCents: row.EscrowLockedCents, Revision: row.Revision,
	}

	updated, _, err := settlement.Credit(wallet, req.AmountCents)
	if err != nil {
		return WithError(c, err)
	}

	next := store.AgentWalletRow{
		TenantID: updated.TenantID, AgentID: updated.AgentID, Currency: updated.Currency,
		AvailableCents: updated.AvailableCents, EscrowLockedCents: updated.EscrowLockedCents,
		Revision: updated.Revision + 1, UpdatedAt: time.Now().UTC(),
	}

	op := store.Op{Kind: store.OpAgentWalletUpsert, TenantID: tid, AgentWallet: &next}

	if err := a.Store.CommitTx(c.UserContext(), []store.Op{op}, nil); err != nil {
		return WithError(c, err)
	}

	return c.JSON(fiber.Map{
		"agentId": agentID, "availableCents": next.AvailableCents, "escrowLockedCents": next.EscrowLockedCents,
	})
}

// handleCreateAgentRun seeds an agent run stream with AGENT_RUN_CREATED.
func (a *App) handleCreateAgentRun(c *fiber.Ctx) error {
	var env dto.EventEnvelope
	if err := decodeBody(c, &env); err != nil {
		return WithError(c, err)
	}

	runID := c.Params("runId")
	if runID == "" {
		runID = c.Query("runId")
	}

	ev, err := a.appendOne(c, store.OpAgentRunEventsAppended, aggregateAgentRun, runID, "AGENT_RUN_CREATED", env, "")
	if err != nil {
		return WithError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"runId": runID, "eventId": ev.ID, "chainHash": ev.ChainHash})
}
