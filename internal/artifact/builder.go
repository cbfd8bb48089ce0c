package artifact

import (
	"context"
	"time"

	"github.com/settld/core/internal/domain/job"
)

// Index persists artifact metadata for hash-addressed lookup — backed by
// the Mongo collection named in SPEC_FULL's DOMAIN STACK, keyed by
// (tenantId, artifactId) with artifactHash immutable per id.
type Index interface {
	Put(ctx context.Context, ref Ref) error
	Get(ctx context.Context, tenantID, artifactID string) (Ref, bool, error)
}

// Builder constructs the job-derived artifact types the artifact worker
// enqueues: WorkCertificate.v1, SettlementStatement.v1, ProofReceipt.v1.
type Builder struct {
	Index Index
	Clock func() time.Time
}

func (b Builder) now() time.Time {
	if b.Clock != nil {
		return b.Clock()
	}

	return time.Now().UTC()
}

// BuildWorkCertificate builds WorkCertificate.v1 from a completed job.
func (b Builder) BuildWorkCertificate(tenantID string, j job.State, sourceEventID string) (Ref, error) {
	payload := map[string]any{
		"jobId":       j.JobID,
		"customerId":  j.CustomerID,
		"siteId":      j.SiteID,
		"robotId":     j.ReservedRobotID,
		"operatorId":  j.OperatorID,
		"evidenceIDs": evidenceIDs(j),
	}

	return b.build(tenantID, "WorkCertificate", sourceEventID, j.LastChainHash, payload)
}

// BuildSettlementStatement builds SettlementStatement.v1 from a settled job.
func (b Builder) BuildSettlementStatement(tenantID string, j job.State, sourceEventID string) (Ref, error) {
	payload := map[string]any{
		"jobId":     j.JobID,
		"status":    string(j.Status),
		"holdId":    j.SettlementHoldID,
		"claims":    j.Claims,
	}

	return b.build(tenantID, "SettlementStatement", sourceEventID, j.LastChainHash, payload)
}

// BuildProofReceipt builds ProofReceipt.v1 from a job's latest proof event.
func (b Builder) BuildProofReceipt(tenantID string, j job.State, sourceEventID string) (Ref, error) {
	payload := map[string]any{
		"jobId":  j.JobID,
		"holdId": j.SettlementHoldID,
	}

	return b.build(tenantID, "ProofReceipt", sourceEventID, j.LastChainHash, payload)
}

func (b Builder) build(tenantID, artifactType, sourceEventID, sourceChainHash string, payload map[string]any) (Ref, error) {
	ref, err := New(tenantID, artifactType, sourceEventID, sourceChainHash, payload, b.now())
	if err != nil {
		return Ref{}, err
	}

	if b.Index != nil {
		if err := b.Index.Put(context.Background(), ref); err != nil {
			return Ref{}, err
		}
	}

	return ref, nil
}

func evidenceIDs(j job.State) []string {
	ids := make([]string, 0, len(j.Evidence))
	for _, e := range j.Evidence {
		ids = append(ids, e.EvidenceID)
	}

	return ids
}
