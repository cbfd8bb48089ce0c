package workers

import (
	"context"
	"fmt"

	"github.com/settld/core/internal/domain/event"
	"github.com/settld/core/internal/domain/job"
	"github.com/settld/core/internal/domain/operator"
	"github.com/settld/core/internal/outbox"
	"github.com/settld/core/internal/store"
)

// OperatorQueue drains ESCALATION_NEEDED/OPERATOR_ASSIST messages: appends
// ASSIST_QUEUED, then either ASSIST_ASSIGNED (an on-shift, in-zone operator
// with spare capacity was found) or ASSIST_TIMEOUT.
type OperatorQueue struct {
	Deps
	Fleet FleetDirectory
}

// Tick claims up to maxMessages assist-queue messages across both topics.
func (w *OperatorQueue) Tick(ctx context.Context, maxMessages int) (int, error) {
	processed := 0

	for _, topic := range []string{"ESCALATION_NEEDED", "OPERATOR_ASSIST"} {
		msgs := w.Store.ClaimOutbox(topic, "operatorqueue-worker", maxMessages-processed)

		for _, msg := range msgs {
			if err := w.process(ctx, msg); err != nil {
				w.Store.MarkOutboxFailed(msg.ID, err.Error())
				w.logger().Warnf("operatorqueue: %s failed: %v", msg.ID, err)

				continue
			}

			w.Store.MarkOutboxProcessed([]string{msg.ID})
			processed++
		}

		if processed >= maxMessages {
			break
		}
	}

	return processed, nil
}

func (w *OperatorQueue) process(ctx context.Context, msg *outbox.Message) error {
	streamID := payloadString(msg, "streamId")

	events, err := w.Store.LoadEvents(ctx, streamID)
	if err != nil {
		return fmt.Errorf("operatorqueue: load %s: %w", streamID, err)
	}

	before, err := job.Reduce(events)
	if err != nil {
		return fmt.Errorf("operatorqueue: reduce %s: %w", streamID, err)
	}

	now := w.now()
	prev := before.LastChainHash

	queued, err := appendEvent(&prev, streamID, "ASSIST_QUEUED", event.Actor{Type: event.ActorSystem, ID: "operatorqueue-worker"}, map[string]any{}, now)
	if err != nil {
		return err
	}

	events2 := []event.Event{queued}

	zoneID, _ := before.PolicySnapshot["zoneId"].(string)

	operators, err := w.Fleet.OperatorsInZone(msg.TenantID, zoneID)
	if err != nil {
		return err
	}

	var chosen *OperatorCandidate
	for i := range operators {
		o := operators[i]
		if o.State.Status == operator.StatusOnShift && (o.State.MaxConcurrent == 0 || o.State.UsedConcurrent < o.State.MaxConcurrent) {
			chosen = &operators[i]

			break
		}
	}

	if chosen != nil {
		assigned, err := appendEvent(&prev, streamID, "ASSIST_ASSIGNED", event.Actor{Type: event.ActorSystem, ID: "operatorqueue-worker"},
			map[string]any{"operatorId": chosen.State.OperatorID}, now)
		if err != nil {
			return err
		}

		events2 = append(events2, assigned)
	} else {
		timeout, err := appendEvent(&prev, streamID, "ASSIST_TIMEOUT", event.Actor{Type: event.ActorSystem, ID: "operatorqueue-worker"}, map[string]any{}, now)
		if err != nil {
			return err
		}

		events2 = append(events2, timeout)
	}

	return w.Committer.CommitTx(ctx, []store.Op{{
		Kind:     store.OpJobEventsAppended,
		StreamID: streamID,
		TenantID: msg.TenantID,
		Events:   events2,
	}}, nil)
}
