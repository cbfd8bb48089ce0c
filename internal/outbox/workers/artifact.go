package workers

import (
	"context"
	"fmt"

	"github.com/settld/core/internal/artifact"
	"github.com/settld/core/internal/domain/job"
	"github.com/settld/core/internal/outbox"
)

// ArtifactBuilder constructs and persists one hash-addressed artifact for a
// job event, returning its artifactId/hash so a delivery can be enqueued
// against it.
type ArtifactBuilder interface {
	BuildWorkCertificate(tenantID string, j job.State, sourceEventID string) (artifact.Ref, error)
	BuildSettlementStatement(tenantID string, j job.State, sourceEventID string) (artifact.Ref, error)
	BuildProofReceipt(tenantID string, j job.State, sourceEventID string) (artifact.Ref, error)
}

// DeliveryEnqueuer schedules a delivery for a freshly built artifact.
type DeliveryEnqueuer interface {
	EnqueueForArtifact(tenantID string, ref artifact.Ref) error
}

// Artifact consumes the ARTIFACT_ENQUEUE_* topics the committer derives
// from job-event appends and builds the corresponding content-addressed
// artifact, then hands it to DeliveryEnqueuer.
type Artifact struct {
	Deps
	Builder  ArtifactBuilder
	Delivery DeliveryEnqueuer
}

var artifactTopics = map[string]func(*Artifact, string, job.State, string) (artifactRefOrErr){
	"ARTIFACT_ENQUEUE_WORK_CERTIFICATE": func(a *Artifact, tenantID string, j job.State, sourceEventID string) artifactRefOrErr {
		ref, err := a.Builder.BuildWorkCertificate(tenantID, j, sourceEventID)
		return artifactRefOrErr{ref, err}
	},
	"ARTIFACT_ENQUEUE_SETTLEMENT_STATEMENT": func(a *Artifact, tenantID string, j job.State, sourceEventID string) artifactRefOrErr {
		ref, err := a.Builder.BuildSettlementStatement(tenantID, j, sourceEventID)
		return artifactRefOrErr{ref, err}
	},
	"ARTIFACT_ENQUEUE_PROOF_RECEIPT": func(a *Artifact, tenantID string, j job.State, sourceEventID string) artifactRefOrErr {
		ref, err := a.Builder.BuildProofReceipt(tenantID, j, sourceEventID)
		return artifactRefOrErr{ref, err}
	},
}

type artifactRefOrErr struct {
	ref artifact.Ref
	err error
}

// Tick claims messages across every ARTIFACT_ENQUEUE_* topic.
func (w *Artifact) Tick(ctx context.Context, maxMessages int) (int, error) {
	processed := 0

	for topic, build := range artifactTopics {
		remaining := maxMessages - processed
		if remaining <= 0 {
			break
		}

		msgs := w.Store.ClaimOutbox(topic, "artifact-worker", remaining)

		for _, msg := range msgs {
			if err := w.process(ctx, msg, build); err != nil {
				w.Store.MarkOutboxFailed(msg.ID, err.Error())
				w.logger().Warnf("artifact: %s failed: %v", msg.ID, err)

				continue
			}

			w.Store.MarkOutboxProcessed([]string{msg.ID})
			processed++
		}
	}

	return processed, nil
}

func (w *Artifact) process(ctx context.Context, msg *outbox.Message, build func(*Artifact, string, job.State, string) artifactRefOrErr) error {
	streamID := payloadString(msg, "streamId")
	sourceEventID := payloadString(msg, "sourceEventId")

	events, err := w.Store.LoadEvents(ctx, streamID)
	if err != nil {
		return fmt.Errorf("artifact: load %s: %w", streamID, err)
	}

	j, err := job.Reduce(events)
	if err != nil {
		return fmt.Errorf("artifact: reduce %s: %w", streamID, err)
	}

	result := build(w, msg.TenantID, j, sourceEventID)
	if result.err != nil {
		return result.err
	}

	if w.Delivery != nil {
		if err := w.Delivery.EnqueueForArtifact(msg.TenantID, result.ref); err != nil {
			return err
		}
	}

	return nil
}
