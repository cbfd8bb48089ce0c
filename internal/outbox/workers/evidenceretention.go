package workers

import (
	"context"
	"fmt"

	"github.com/settld/core/internal/domain/event"
	"github.com/settld/core/internal/domain/job"
	"github.com/settld/core/internal/outbox"
	"github.com/settld/core/internal/store"
)

// EvidenceObjectStore deletes the blob backing an evidence item; its
// implementation is out of this repo's scope but the interface is not — the
// worker must observe a real delete outcome before it appends EVIDENCE_EXPIRED.
type EvidenceObjectStore interface {
	Delete(ctx context.Context, tenantID, evidenceRef string) error
}

// EvidenceRetentionPolicy resolves how many days a tenant retains evidence
// objects before they expire.
type EvidenceRetentionPolicy interface {
	RetentionDays(tenantID string) (int, error)
}

// EvidenceRetention consumes EVIDENCE_RETENTION_SWEEP messages: for each
// evidence item on the named job past its tenant's retention window, deletes
// the backing object and appends EVIDENCE_EXPIRED.
type EvidenceRetention struct {
	Deps
	Objects EvidenceObjectStore
	Policy  EvidenceRetentionPolicy
}

// Tick claims pending EVIDENCE_RETENTION_SWEEP messages and processes each.
func (w *EvidenceRetention) Tick(ctx context.Context, maxMessages int) (int, error) {
	msgs := w.Store.ClaimOutbox("EVIDENCE_RETENTION_SWEEP", "evidenceretention-worker", maxMessages)
	processed := 0

	for _, msg := range msgs {
		if err := w.process(ctx, msg); err != nil {
			w.Store.MarkOutboxFailed(msg.ID, err.Error())
			w.logger().Warnf("evidenceretention: %s failed: %v", msg.ID, err)

			continue
		}

		w.Store.MarkOutboxProcessed([]string{msg.ID})
		processed++
	}

	return processed, nil
}

func (w *EvidenceRetention) process(ctx context.Context, msg *outbox.Message) error {
	streamID := payloadString(msg, "streamId")

	events, err := w.Store.LoadEvents(ctx, streamID)
	if err != nil {
		return fmt.Errorf("evidenceretention: load %s: %w", streamID, err)
	}

	j, err := job.Reduce(events)
	if err != nil {
		return fmt.Errorf("evidenceretention: reduce %s: %w", streamID, err)
	}

	days, err := w.Policy.RetentionDays(msg.TenantID)
	if err != nil {
		return err
	}

	cutoff := w.now().AddDate(0, 0, -days)

	var expired []event.Event

	prev := j.LastChainHash

	for _, ev := range j.Evidence {
		if ev.CapturedAt.After(cutoff) {
			continue
		}

		if j.HasExpired(ev.EvidenceID) {
			continue
		}

		if w.Objects != nil {
			if err := w.Objects.Delete(ctx, msg.TenantID, ev.EvidenceRef); err != nil {
				return fmt.Errorf("evidenceretention: delete %s: %w", ev.EvidenceID, err)
			}
		}

		next, err := event.CreateEvent(streamID, "EVIDENCE_EXPIRED", event.Actor{Type: event.ActorRetention, ID: "evidenceretention-worker"},
			map[string]any{"evidenceId": ev.EvidenceID}, prev, w.now())
		if err != nil {
			return err
		}

		expired = append(expired, next)
		prev = next.ChainHash
	}

	if len(expired) == 0 {
		return nil
	}

	return w.Committer.CommitTx(ctx, []store.Op{{
		Kind:     store.OpJobEventsAppended,
		StreamID: streamID,
		TenantID: msg.TenantID,
		Events:   expired,
	}}, nil)
}
