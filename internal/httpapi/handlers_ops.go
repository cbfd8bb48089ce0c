package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/settld/core/internal/governance"
	"github.com/settld/core/internal/httpapi/auth"
	"github.com/settld/core/internal/store"
)

const aggregateMonth = "month"

type contractUpsertRequest struct {
	ContractID string         `json:"contractId" validate:"required"`
	Version    string         `json:"version" validate:"required"`
	Doc        map[string]any `json:"doc" validate:"required"`
	PolicyHash string         `json:"policyHash"`
	CompilerID string         `json:"compilerId"`
	Status     string         `json:"status" validate:"required,oneof=draft published signed active"`
}

type signerKeyUpsertRequest struct {
	ActorType string `json:"actorType" validate:"required"`
	ActorID   string `json:"actorId" validate:"required"`
	KeyID     string `json:"keyId" validate:"required"`
	Active    bool   `json:"active"`
}

type publicKeyPutRequest struct {
	KeyID     string `json:"keyId" validate:"required"`
	PublicKey string `json:"publicKey" validate:"required,base64"`
}

// registerOpsRoutes wires the governance/administration surface, every
// route gated by auth.Middleware.WithScope the way the teacher's protected
// admin routes require a JWTMiddleware-issued scope before the handler
// runs.
func (a *App) registerOpsRoutes(app *fiber.App) {
	ops := app.Group("/ops", a.JWT.Protect())

	ops.Post("/contracts", a.JWT.WithScope(auth.ScopeGovernanceTenantWrite), a.idempotent(a.handleUpsertContract))
	ops.Post("/signer-keys", a.JWT.WithScope(auth.ScopeGovernanceTenantWrite), a.idempotent(a.handleUpsertSignerKey))
	ops.Post("/public-keys", a.JWT.WithScope(auth.ScopeGovernanceTenantWrite), a.idempotent(a.handlePutPublicKey))
	ops.Post("/months/:id/close-request", a.JWT.WithScope(auth.ScopeFinanceWrite), a.idempotent(a.appendEventHandler(store.OpMonthEventsAppended, aggregateMonth, "MONTH_CLOSE_REQUESTED")))
	ops.Post("/months/:id/close", a.JWT.WithScope(auth.ScopeFinanceWrite), a.idempotent(a.appendEventHandler(store.OpMonthEventsAppended, aggregateMonth, "MONTH_CLOSED")))
	ops.Post("/months/:id/reopen", a.JWT.WithScope(auth.ScopeGovernanceTenantWrite), a.idempotent(a.appendEventHandler(store.OpMonthEventsAppended, aggregateMonth, "MONTH_CLOSE_REOPENED")))
}

// handleUpsertContract hashes the submitted document the way
// internal/governance.ContractHash does and persists the resulting
// contracts-as-code row.
func (a *App) handleUpsertContract(c *fiber.Ctx) error {
	var req contractUpsertRequest
	if err := decodeBody(c, &req); err != nil {
		return WithError(c, err)
	}

	hash, err := governance.ContractHash(req.Doc)
	if err != nil {
		return WithError(c, err)
	}

	docJSON, err := json.Marshal(req.Doc)
	if err != nil {
		return WithError(c, err)
	}

	row := store.Contract{
		TenantID: tenantID(c), ContractID: req.ContractID, Version: req.Version,
		DocJSON: docJSON, ContractHash: hash, PolicyHash: req.PolicyHash,
		CompilerID: req.CompilerID, Status: req.Status, UpdatedAt: time.Now().UTC(),
	}

	op := store.Op{Kind: store.OpContractUpsert, TenantID: tenantID(c), Contract: &row}

	if err := a.Store.CommitTx(c.UserContext(), []store.Op{op}, nil); err != nil {
		return WithError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"contractId": req.ContractID, "contractHash": hash})
}

func (a *App) handleUpsertSignerKey(c *fiber.Ctx) error {
	var req signerKeyUpsertRequest
	if err := decodeBody(c, &req); err != nil {
		return WithError(c, err)
	}

	row := store.SignerKeyRow{
		TenantID: tenantID(c), ActorType: req.ActorType, ActorID: req.ActorID,
		KeyID: req.KeyID, Active: req.Active, UpdatedAt: time.Now().UTC(),
	}

	op := store.Op{Kind: store.OpSignerKeyUpsert, TenantID: tenantID(c), SignerKey: &row}

	if err := a.Store.CommitTx(c.UserContext(), []store.Op{op}, nil); err != nil {
		return WithError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"actorId": req.ActorID, "keyId": req.KeyID, "active": req.Active})
}

func (a *App) handlePutPublicKey(c *fiber.Ctx) error {
	var req publicKeyPutRequest
	if err := decodeBody(c, &req); err != nil {
		return WithError(c, err)
	}

	decoded, err := base64.StdEncoding.DecodeString(req.PublicKey)
	if err != nil {
		return WithError(c, err)
	}

	row := store.PublicKeyRow{TenantID: tenantID(c), KeyID: req.KeyID, PublicKey: decoded, CreatedAt: time.Now().UTC()}

	op := store.Op{Kind: store.OpPublicKeyPut, TenantID: tenantID(c), PublicKey: &row}

	if err := a.Store.CommitTx(c.UserContext(), []store.Op{op}, nil); err != nil {
		return WithError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"keyId": req.KeyID})
}
