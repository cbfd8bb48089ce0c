package workers

import (
	"context"
	"fmt"

	"github.com/settld/core/internal/domain/event"
	"github.com/settld/core/internal/domain/job"
	"github.com/settld/core/internal/outbox"
	"github.com/settld/core/internal/proofgate"
	"github.com/settld/core/internal/store"
)

// ZoneCoverageRequirement resolves the zones a job's policy requires to be
// covered before its proof can PASS.
type ZoneCoverageRequirement interface {
	RequiredZones(tenantID, jobID string) ([]string, error)
}

// Proof consumes PROOF_EVAL_ENQUEUE messages, recomputes the zone-coverage
// facts hash at the job's latest completion anchor, and appends
// PROOF_EVALUATED with status PASS or INSUFFICIENT_EVIDENCE.
type Proof struct {
	Deps
	Requirements ZoneCoverageRequirement
}

// Tick claims PROOF_EVAL_ENQUEUE messages and evaluates each job's proof.
func (w *Proof) Tick(ctx context.Context, maxMessages int) (int, error) {
	msgs := w.Store.ClaimOutbox("PROOF_EVAL_ENQUEUE", "proof-worker", maxMessages)
	processed := 0

	for _, msg := range msgs {
		if err := w.process(ctx, msg); err != nil {
			w.Store.MarkOutboxFailed(msg.ID, err.Error())
			w.logger().Warnf("proof: %s failed: %v", msg.ID, err)

			continue
		}

		w.Store.MarkOutboxProcessed([]string{msg.ID})
		processed++
	}

	return processed, nil
}

func (w *Proof) process(ctx context.Context, msg *outbox.Message) error {
	streamID := payloadString(msg, "streamId")

	events, err := w.Store.LoadEvents(ctx, streamID)
	if err != nil {
		return fmt.Errorf("proof: load %s: %w", streamID, err)
	}

	before, err := job.Reduce(events)
	if err != nil {
		return fmt.Errorf("proof: reduce %s: %w", streamID, err)
	}

	anchor, ok := proofgate.CompletionAnchor(events)
	if !ok {
		// Nothing to evaluate yet; idempotent no-op (can happen if a
		// re-enqueue races ahead of the completion event landing).
		return nil
	}

	customerPolicyHash, _ := before.PolicySnapshot["customerPolicyHash"].(string)
	operatorPolicyHash, _ := before.PolicySnapshot["operatorPolicyHash"].(string)

	var requiredZones []string
	if w.Requirements != nil {
		requiredZones, err = w.Requirements.RequiredZones(msg.TenantID, before.JobID)
		if err != nil {
			return err
		}
	}

	facts, factsHash, err := proofgate.VerifyZoneCoverageProofV1(before.JobID, events, anchor, customerPolicyHash, operatorPolicyHash, requiredZones)
	if err != nil {
		return err
	}

	status := "PASS"
	for _, required := range facts.RequiredZones {
		if !containsString(facts.ZonesCovered, required) {
			status = "INSUFFICIENT_EVIDENCE"

			break
		}
	}

	ev, err := event.CreateEvent(streamID, "PROOF_EVALUATED", event.Actor{Type: event.ActorSystem, ID: "proof-worker"},
		map[string]any{
			"evaluatedAtChainHash": anchor,
			"customerPolicyHash":   customerPolicyHash,
			"factsHash":            factsHash,
			"status":               status,
		}, before.LastChainHash, w.now())
	if err != nil {
		return err
	}

	return w.Committer.CommitTx(ctx, []store.Op{{
		Kind:     store.OpJobEventsAppended,
		StreamID: streamID,
		TenantID: msg.TenantID,
		Events:   []event.Event{ev},
	}}, nil)
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}

	return false
}
