package httpapi

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"regexp"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/settld/core/internal/store"
	"github.com/settld/core/pkg/canonicaljson"
)

var idempotencyKeyPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,128}$`)

// idempotent wraps a write handler with spec.md §6/§8's idempotency-key
// contract: same key + same canonical body replays the stored response;
// same key + different body is a conflict; no key skips the check
// entirely (not every write endpoint requires one).
func (a *App) idempotent(handler fiber.Handler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Get(HeaderIdempotencyKey)
		if key == "" {
			return handler(c)
		}

		if !idempotencyKeyPattern.MatchString(key) {
			return jsonError(c, fiber.StatusBadRequest, "IDEMPOTENCY_KEY_MALFORMED",
				"x-idempotency-key must be 1-128 characters of [a-zA-Z0-9._-]", nil)
		}

		tid := tenantID(c)
		bodyHash := requestHash(c.Body())

		ctx := c.UserContext()

		existing, found, err := a.Store.LoadIdempotency(ctx, tid, key)
		if err != nil {
			return WithError(c, err)
		}

		if found {
			if existing.RequestHash != bodyHash {
				return jsonError(c, fiber.StatusConflict, "IDEMPOTENCY_KEY_CONFLICT",
					"the idempotency key was reused with a different request body", nil)
			}

			c.Status(existing.StatusCode)
			c.Response().Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

			return c.Send(existing.Body)
		}

		if err := handler(c); err != nil {
			return err
		}

		receipt := store.IdempotencyReceipt{
			TenantID:    tid,
			Key:         key,
			RequestHash: bodyHash,
			StatusCode:  c.Response().StatusCode(),
			Body:        append([]byte{}, c.Response().Body()...),
			CreatedAt:   time.Now().UTC(),
		}

		if err := a.putIdempotencyReceipt(ctx, receipt); err != nil {
			log := a.logger(c)
			log.Warnf("httpapi: failed to persist idempotency receipt for key %s: %v", key, err)
		}

		return nil
	}
}

func requestHash(body []byte) string {
	var v any

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	if dec.Decode(&v) == nil {
		if canon, err := canonicaljson.Marshal(v); err == nil {
			body = canon
		}
	}

	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// putIdempotencyReceipt commits the receipt through the same store write
// path every other op goes through, so it lands in the same transaction
// shape a Postgres deployment expects.
func (a *App) putIdempotencyReceipt(ctx context.Context, receipt store.IdempotencyReceipt) error {
	op := store.Op{Kind: store.OpIdempotencyPut, TenantID: receipt.TenantID, Idempotency: &receipt}
	return a.Store.CommitTx(ctx, []store.Op{op}, nil)
}
