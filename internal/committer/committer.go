// Package committer implements commitTx: the single write path every
// handler and worker goes through. It enforces optimistic concurrency on
// event-stream appends, derives outbox triggers from job-event appends, and
// delegates the actual atomic apply to a store.Store implementation.
package committer

import (
	"context"
	"fmt"
	"time"

	"github.com/settld/core/internal/domain/event"
	"github.com/settld/core/internal/outbox"
	"github.com/settld/core/internal/store"
	"github.com/settld/core/pkg/errs"
)

// Committer orchestrates commitTx over a store.Store.
type Committer struct {
	Store store.Store
}

// New constructs a Committer over s.
func New(s store.Store) *Committer {
	return &Committer{Store: s}
}

// CommitTx validates every stream-append op's OCC precondition against the
// store's current head, derives any outbox triggers implied by job-event
// appends, and applies the whole batch (plus derived triggers and audit
// rows) atomically via the underlying store.
func (c *Committer) CommitTx(ctx context.Context, ops []store.Op, audit []store.AuditEntry) error {
	for _, op := range ops {
		if !store.StreamAppendOpKinds[op.Kind] {
			continue
		}

		if len(op.Events) == 0 {
			continue
		}

		head, err := c.Store.StreamHead(ctx, op.StreamID)
		if err != nil {
			return fmt.Errorf("committer: load stream head for %s: %w", op.StreamID, err)
		}

		if op.Events[0].PrevChainHash != head {
			return fmt.Errorf("%w: stream %s expected prevChainHash %q, head is %q",
				errs.ErrPrevChainHashMismatch, op.StreamID, op.Events[0].PrevChainHash, head)
		}

		for i := 1; i < len(op.Events); i++ {
			if op.Events[i].PrevChainHash != op.Events[i-1].ChainHash {
				return fmt.Errorf("%w: stream %s event %d does not chain to event %d within this batch",
					errs.ErrChainBreak, op.StreamID, i, i-1)
			}
		}
	}

	derived := deriveTriggers(ops)
	allOps := append(append([]store.Op{}, ops...), derived...)

	if err := c.Store.CommitTx(ctx, allOps, audit); err != nil {
		return err
	}

	return nil
}

// deriveTriggers inspects job-event appends in ops and returns the
// OUTBOX_ENQUEUE ops they imply: dispatch requests on BOOKED, proof-eval
// requests on completion, artifact enqueues on settlement events.
func deriveTriggers(ops []store.Op) []store.Op {
	var derived []store.Op

	now := time.Now().UTC()

	for _, op := range ops {
		if op.Kind != store.OpJobEventsAppended {
			continue
		}

		for _, ev := range op.Events {
			switch ev.Type {
			case "BOOKED":
				derived = append(derived, enqueueOp(op.TenantID, "DISPATCH_REQUESTED", ev, now))

			case "EXECUTION_COMPLETED", "JOB_EXECUTION_COMPLETED":
				derived = append(derived, enqueueOp(op.TenantID, "PROOF_EVAL_ENQUEUE", ev, now))
				derived = append(derived, enqueueOp(op.TenantID, "ARTIFACT_ENQUEUE_WORK_CERTIFICATE", ev, now))

			case "SETTLED":
				derived = append(derived, enqueueOp(op.TenantID, "ARTIFACT_ENQUEUE_SETTLEMENT_STATEMENT", ev, now))
				derived = append(derived, enqueueOp(op.TenantID, "JOB_SETTLED", ev, now))

			case "PROOF_EVALUATED":
				derived = append(derived, enqueueOp(op.TenantID, "ARTIFACT_ENQUEUE_PROOF_RECEIPT", ev, now))

			case "ESCALATION_NEEDED", "OPERATOR_ASSIST":
				derived = append(derived, enqueueOp(op.TenantID, ev.Type, ev, now))

			case "JOB_EXECUTION_STALLED":
				derived = append(derived, enqueueOp(op.TenantID, "JOB_STALLED", ev, now))
				derived = append(derived, enqueueOp(op.TenantID, "NOTIFY_OPS_JOB_STALLED", ev, now))
			}
		}
	}

	return derived
}

func enqueueOp(tenantID, topic string, ev event.Event, now time.Time) store.Op {
	return store.Op{
		Kind: store.OpOutboxEnqueue,
		Outbox: &outbox.Message{
			ID:         "obx_" + ev.ID + ":" + topic,
			TenantID:   tenantID,
			Topic:      topic,
			Payload:    map[string]any{"sourceEventId": ev.ID, "streamId": ev.StreamID, "chainHash": ev.ChainHash},
			Status:     outbox.StatusPending,
			EnqueuedAt: now,
		},
	}
}
