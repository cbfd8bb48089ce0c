package settlement

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/settld/core/pkg/canonicaljson"
	"github.com/settld/core/pkg/errs"
)

// DisputeStatus tracks an opened dispute's lifecycle.
type DisputeStatus string

const (
	DisputeNone      DisputeStatus = ""
	DisputeOpen      DisputeStatus = "open"
	DisputeEscalated DisputeStatus = "escalated"
	DisputeClosed    DisputeStatus = "closed"
)

// DisputeOutcome is the arbiter's verdict classification.
type DisputeOutcome string

const (
	OutcomeUpheld   DisputeOutcome = "upheld"
	OutcomePartial  DisputeOutcome = "partial"
	OutcomeRejected DisputeOutcome = "rejected"
)

// VerdictCore is the canonical, signed body of a DisputeVerdict.v1 artifact.
// Its canonical JSON encoding is what the arbiter actually signs.
type VerdictCore struct {
	SchemaVersion  string         `json:"schemaVersion"`
	RunID          string         `json:"runId"`
	DisputeID      string         `json:"disputeId"`
	ArbiterAgentID string         `json:"arbiterAgentId"`
	Outcome        DisputeOutcome `json:"outcome"`
	ReleaseRatePct int            `json:"releaseRatePct"`
	Rationale      string         `json:"rationale"`
	DecidedAt      time.Time      `json:"decidedAt"`
}

// SignVerdict signs VerdictCore's canonical JSON encoding with the arbiter's
// private key, returning a base64 signature.
func SignVerdict(core VerdictCore, priv ed25519.PrivateKey) (string, error) {
	canon, err := canonicaljson.Marshal(core)
	if err != nil {
		return "", fmt.Errorf("settlement: canonicalize verdict core: %w", err)
	}

	sig := ed25519.Sign(priv, canon)

	return base64.StdEncoding.EncodeToString(sig), nil
}

// VerifyVerdict recomputes VerdictCore's canonical JSON and checks sig
// against the arbiter's registered public key.
func VerifyVerdict(core VerdictCore, sig string, pub ed25519.PublicKey) error {
	canon, err := canonicaljson.Marshal(core)
	if err != nil {
		return fmt.Errorf("settlement: canonicalize verdict core: %w", err)
	}

	raw, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		return fmt.Errorf("%w: malformed verdict signature encoding", errs.ErrSignatureInvalid)
	}

	if !ed25519.Verify(pub, canon, raw) {
		return fmt.Errorf("%w: dispute verdict signature does not verify", errs.ErrSignatureInvalid)
	}

	return nil
}

// DisputeWindow reports whether now is still within disputeWindowDays of
// settledAt.
func DisputeWindow(settledAt time.Time, disputeWindowDays int, now time.Time) bool {
	if disputeWindowDays <= 0 {
		return false
	}

	return now.Before(settledAt.AddDate(0, 0, disputeWindowDays))
}

// ApplyVerdict computes the wallet movement a dispute verdict implies,
// relative to the settlement's already-released/refunded cents. It returns
// the additional release (to payee) and refund (to payer) needed to reach
// the verdict's releaseRatePct of the original amount.
func ApplyVerdict(core VerdictCore, originalAmountCents, alreadyReleasedCents int64) (additionalReleaseCents, additionalRefundCents int64) {
	targetRelease := applyPct(originalAmountCents, core.ReleaseRatePct)

	delta := targetRelease - alreadyReleasedCents
	if delta > 0 {
		return delta, 0
	}

	if delta < 0 {
		return 0, -delta
	}

	return 0, 0
}

// KillFee computes the amount retained (released to payee) when an
// agreement is cancelled mid-run, per killFeeRatePct.
func KillFee(amountCents int64, killFeeRatePct int) (releaseCents, refundCents int64) {
	releaseCents = applyPct(amountCents, killFeeRatePct)
	refundCents = amountCents - releaseCents

	return releaseCents, refundCents
}
