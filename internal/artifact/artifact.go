// Package artifact builds content-addressed, hash-stable documents that
// workers hand off to the delivery rails: work certificates, settlement
// statements, proof receipts, dispute verdicts, and month-close finance
// packs. Every artifact's id is derived from its own hash, so the same
// inputs always produce the same artifact — re-running a worker tick after
// a crash is always safe.
package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/settld/core/pkg/canonicaljson"
)

// Body is the core payload every artifact wraps: a schema version, proofs
// tying it back to the event(s) that produced it, and the artifact-specific
// payload.
type Body struct {
	SchemaVersion   string         `json:"schemaVersion"`
	TenantID        string         `json:"tenantId"`
	SourceEventID   string         `json:"sourceEventId"`
	SourceChainHash string         `json:"sourceChainHash"`
	GeneratedAt     time.Time      `json:"generatedAt"`
	Payload         map[string]any `json:"payload"`
}

// Hash returns sha256(canonicalJson(body)), hex-encoded — the artifactHash.
func Hash(body Body) (string, error) {
	canon, err := canonicaljson.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("artifact: canonicalize body: %w", err)
	}

	sum := sha256.Sum256(canon)

	return hex.EncodeToString(sum[:]), nil
}

// Ref is what's left after an artifact is built and stored: just enough to
// address and deliver it.
type Ref struct {
	TenantID     string
	ArtifactID   string
	ArtifactType string
	ArtifactHash string
	Body         Body
}

// New builds a Body, computes its hash, and derives an artifactId of the
// form "art_<type>_<hash prefix>" — stable across retries since it depends
// only on content.
func New(tenantID, artifactType, sourceEventID, sourceChainHash string, payload map[string]any, generatedAt time.Time) (Ref, error) {
	body := Body{
		SchemaVersion:   artifactType + ".v1",
		TenantID:        tenantID,
		SourceEventID:   sourceEventID,
		SourceChainHash: sourceChainHash,
		GeneratedAt:     generatedAt,
		Payload:         payload,
	}

	hash, err := Hash(body)
	if err != nil {
		return Ref{}, err
	}

	return Ref{
		TenantID:     tenantID,
		ArtifactID:   fmt.Sprintf("art_%s_%s", artifactType, hash[:16]),
		ArtifactType: artifactType,
		ArtifactHash: hash,
		Body:         body,
	}, nil
}
