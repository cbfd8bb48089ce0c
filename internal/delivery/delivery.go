// Package delivery implements settld's outbound delivery rail: webhook and
// s3-style destinations, dedupe/order keys, HMAC signing, exponential
// backoff with jitter, and the DNS/URL safety checks every outbound request
// passes through first. Grounded on the teacher's outbox state machine
// (internal/outbox) for the status lifecycle and on
// pkg/mretry's documented default backoff constants for retry shape.
package delivery

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/settld/core/pkg/canonicaljson"
)

// Kind enumerates the destination transport.
type Kind string

const (
	KindWebhook Kind = "webhook"
	KindS3      Kind = "s3"
)

// Destination is a tenant-configured delivery target.
type Destination struct {
	TenantID      string
	DestinationID string
	Kind          Kind
	URL           string // webhook endpoint, or s3 bucket/prefix
	Secret        string // HMAC signing secret (webhook) or presign secret (s3)
	ScopeKey      string // stable grouping key for ordering, e.g. "job:<jobId>"
	Priority      int
}

// Delivery is one queued attempt to hand an artifact to a destination.
type Delivery struct {
	TenantID      string
	DeliveryID    string
	DestinationID string
	ArtifactType  string
	ArtifactID    string
	ArtifactHash  string
	ScopeKey      string
	OrderSeq      int64
	Priority      int
	Status        Status
	Attempts      int
	NextAttemptAt time.Time
	LastError     string
	CreatedAt     time.Time
}

// Status is the delivery lifecycle state, mirroring the outbox package's
// shape (pending/processing/acked/failed) but with its own name so a
// delivery row is never confused with an outbox message.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusAcked      Status = "acked"
	StatusFailed     Status = "failed"
)

// DedupeKey returns the unique key that prevents the same artifact from
// being queued twice for the same destination: "{tenantId}:{destinationId}:{artifactType}:{artifactId}:{artifactHash}".
func DedupeKey(tenantID, destinationID, artifactType, artifactID, artifactHash string) string {
	return fmt.Sprintf("%s:%s:%s:%s:%s", tenantID, destinationID, artifactType, artifactID, artifactHash)
}

// OrderKey returns the key deliveries for the same scope are sorted by, so a
// destination always observes them in (orderSeq, priority, artifactId) order
// within a scope: "{scopeKey}\n{orderSeq}\n{priority}\n{artifactId}".
func OrderKey(scopeKey string, orderSeq int64, priority int, artifactID string) string {
	return fmt.Sprintf("%s\n%d\n%d\n%s", scopeKey, orderSeq, priority, artifactID)
}

// Sign computes the webhook HMAC signature:
// base64(HMAC-SHA256(secret, timestamp || "." || canonicalJson(body))).
func Sign(secret string, timestamp string, body any) (string, error) {
	canon, err := canonicaljson.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("delivery: canonicalize body: %w", err)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(canon)

	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// VerifySignature recomputes Sign and compares it in constant time.
func VerifySignature(secret, timestamp string, body any, signature string) (bool, error) {
	want, err := Sign(secret, timestamp, body)
	if err != nil {
		return false, err
	}

	return hmac.Equal([]byte(want), []byte(signature)), nil
}

// DefaultPresignMaxSeconds is PROXY_EVIDENCE_PRESIGN_MAX_SECONDS' default.
const DefaultPresignMaxSeconds = 300

// MaxPresignSeconds is PROXY_EVIDENCE_PRESIGN_MAX_SECONDS' hard cap.
const MaxPresignSeconds = 3600

// PresignEvidence computes the hex digest that authorizes a time-boxed
// evidence download: sha256(secret||tenantId||jobId||evidenceId||evidenceRef||expiresAt).
func PresignEvidence(secret, tenantID, jobID, evidenceID, evidenceRef string, expiresAt time.Time) string {
	h := sha256.New()
	h.Write([]byte(secret))
	h.Write([]byte(tenantID))
	h.Write([]byte(jobID))
	h.Write([]byte(evidenceID))
	h.Write([]byte(evidenceRef))
	h.Write([]byte(expiresAt.UTC().Format(time.RFC3339)))

	return hex.EncodeToString(h.Sum(nil))
}

// ClampPresignTTL clamps a requested presign TTL (seconds) to (0,
// MaxPresignSeconds], defaulting to DefaultPresignMaxSeconds when requested
// is non-positive.
func ClampPresignTTL(requestedSeconds int) int {
	if requestedSeconds <= 0 {
		return DefaultPresignMaxSeconds
	}

	if requestedSeconds > MaxPresignSeconds {
		return MaxPresignSeconds
	}

	return requestedSeconds
}
