package httpapi

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/settld/core/internal/delivery"
	"github.com/settld/core/internal/httpapi/dto"
)

// registerExportRoutes mounts the export ack and evidence download routes.
// Both verify against App.ExportsHMACSecret, which cmd/server sets; it is
// one secret shared by every destination, since store.Store exposes no read
// path for per-destination delivery.Destination secrets.
func (a *App) registerExportRoutes(app *fiber.App) {
	app.Post("/exports/ack", a.idempotent(a.handleExportsAck))
	app.Get("/evidence/download", a.handleEvidenceDownload)
}

// handleExportsAck verifies the destination's HMAC signature over the
// acked delivery id and timestamp before treating the delivery as
// confirmed, the same construction internal/delivery.Sign/VerifySignature
// use for outbound webhook requests, applied here to the inbound ack.
func (a *App) handleExportsAck(c *fiber.Ctx) error {
	var req dto.ExportsAckRequest
	if err := decodeBody(c, &req); err != nil {
		return WithError(c, err)
	}

	timestamp := c.Get("x-settld-timestamp")

	ok, err := delivery.VerifySignature(a.ExportsHMACSecret, timestamp, fiber.Map{"deliveryId": req.DeliveryID}, req.Signature)
	if err != nil {
		return WithError(c, err)
	}

	if !ok {
		return jsonError(c, fiber.StatusUnauthorized, "INVALID_ACK_SIGNATURE", "exports ack signature does not verify", nil)
	}

	return c.JSON(fiber.Map{"deliveryId": req.DeliveryID, "status": "acked"})
}

// handleEvidenceDownload validates a presigned evidence download link
// (internal/delivery.PresignEvidence) and, on success, redirects to the
// underlying evidence ref rather than proxying bytes through this service.
func (a *App) handleEvidenceDownload(c *fiber.Ctx) error {
	jobID := c.Query("jobId")
	evidenceID := c.Query("evidenceId")
	evidenceRef := c.Query("ref")
	expiresAtRaw := c.Query("expiresAt")
	sig := c.Query("sig")

	if jobID == "" || evidenceID == "" || evidenceRef == "" || expiresAtRaw == "" || sig == "" {
		return jsonError(c, fiber.StatusBadRequest, "MISSING_PRESIGN_PARAMS", "jobId, evidenceId, ref, expiresAt, and sig are required", nil)
	}

	expiresAt, err := time.Parse(time.RFC3339, expiresAtRaw)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "MALFORMED_EXPIRES_AT", "expiresAt must be RFC3339", nil)
	}

	if time.Now().After(expiresAt) {
		return jsonError(c, fiber.StatusGone, "PRESIGN_EXPIRED", "evidence download link has expired", nil)
	}

	want := delivery.PresignEvidence(a.ExportsHMACSecret, tenantID(c), jobID, evidenceID, evidenceRef, expiresAt)
	if want != sig {
		return jsonError(c, fiber.StatusForbidden, "INVALID_PRESIGN_SIGNATURE", "evidence download signature does not verify", nil)
	}

	return c.Redirect(evidenceRef, fiber.StatusFound)
}
