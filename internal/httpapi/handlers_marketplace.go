package httpapi

import (
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/settld/core/internal/httpapi/dto"
	"github.com/settld/core/internal/store"
	"github.com/settld/core/pkg/errs"
)

// registerMarketplaceRoutes wires the task/bid/policy write surface.
// store.Store exposes no generic read path for marketplace tasks, bids, or
// tenant policies (CommitTx is write-only for these op kinds), so this
// group is POST-only; a read-model projection belongs to a future worker,
// not this layer.
func (a *App) registerMarketplaceRoutes(app *fiber.App) {
	app.Post("/marketplace/tasks", a.idempotent(a.handleCreateMarketplaceTask))
	app.Post("/marketplace/tasks/:id/bid", a.idempotent(a.handleBidMarketplaceTask))
	app.Post("/marketplace/tasks/:id/counter-offer", a.idempotent(a.handleCounterOfferMarketplaceTask))
	app.Post("/marketplace/tasks/:id/accept", a.idempotent(a.handleAcceptMarketplaceBid))
	app.Post("/marketplace/settlement-policies", a.idempotent(a.handlePutTenantPolicy))
}

func (a *App) handleCreateMarketplaceTask(c *fiber.Ctx) error {
	var req dto.CreateMarketplaceTaskRequest
	if err := decodeBody(c, &req); err != nil {
		return WithError(c, err)
	}

	task := store.MarketplaceTask{
		TenantID: tenantID(c), TaskID: req.TaskID, Status: "open",
		AmountCents: req.AmountCents, UpdatedAt: time.Now().UTC(),
	}

	op := store.Op{Kind: store.OpMarketplaceTaskUpsert, TenantID: tenantID(c), MarketplaceTask: &task}

	if err := a.Store.CommitTx(c.UserContext(), []store.Op{op}, nil); err != nil {
		return WithError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"taskId": req.TaskID, "status": task.Status})
}

func (a *App) handleBidMarketplaceTask(c *fiber.Ctx) error {
	return a.handleMarketplaceBid(c, "open")
}

func (a *App) handleCounterOfferMarketplaceTask(c *fiber.Ctx) error {
	return a.handleMarketplaceBid(c, "countered")
}

func (a *App) handleAcceptMarketplaceBid(c *fiber.Ctx) error {
	return a.handleMarketplaceBid(c, "accepted")
}

// handleMarketplaceBid records one bid/counter-offer/accept row against a
// task, overriding the caller-supplied status with the route's fixed
// status so the path segment, not request body, decides the transition.
func (a *App) handleMarketplaceBid(c *fiber.Ctx, status string) error {
	var req dto.BidRequest
	if err := decodeBody(c, &req); err != nil {
		return WithError(c, err)
	}

	bid := store.MarketplaceTaskBid{TaskID: c.Params("id"), AgentID: req.AgentID, AmountCents: req.AmountCents, Status: status}

	op := store.Op{Kind: store.OpMarketplaceTaskBidsSet, TenantID: tenantID(c), MarketplaceTaskBids: []store.MarketplaceTaskBid{bid}}

	if err := a.Store.CommitTx(c.UserContext(), []store.Op{op}, nil); err != nil {
		return WithError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"taskId": bid.TaskID, "agentId": bid.AgentID, "status": bid.Status})
}

func (a *App) handlePutTenantPolicy(c *fiber.Ctx) error {
	var req dto.PutTenantPolicyRequest
	if err := decodeBody(c, &req); err != nil {
		return WithError(c, err)
	}

	effectiveFrom, err := time.Parse(time.RFC3339, req.EffectiveFrom)
	if err != nil {
		return WithError(c, errs.ValidationError{
			EntityType: "tenantSettlementPolicy",
			Code:       errs.ErrBadRequest.Error(),
			Message:    "effectiveFrom must be an RFC3339 timestamp: " + err.Error(),
			Err:        err,
		})
	}

	valueJSON, err := json.Marshal(req.ValueJSON)
	if err != nil {
		return WithError(c, err)
	}

	policy := store.TenantSettlementPolicy{
		TenantID: tenantID(c), Key: req.Key, ValueJSON: valueJSON,
		EffectiveFrom: effectiveFrom, CommittedAt: time.Now().UTC(),
	}

	op := store.Op{Kind: store.OpTenantSettlementPolicyPut, TenantID: tenantID(c), TenantPolicy: &policy}

	if err := a.Store.CommitTx(c.UserContext(), []store.Op{op}, nil); err != nil {
		return WithError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"key": req.Key, "effectiveFrom": req.EffectiveFrom})
}
