package workers

import (
	"context"
	"fmt"

	"github.com/settld/core/internal/domain/event"
	"github.com/settld/core/internal/domain/job"
	"github.com/settld/core/internal/outbox"
	"github.com/settld/core/internal/store"
)

// CreditLadderStep is one SLA-credit ladder entry: a breach magnitude
// threshold and the credit percentage it unlocks.
type CreditLadderStep struct {
	BreachMinutes int
	CreditPct     int
}

// SLAPolicy configures JobAccounting's SLA breach/credit behavior for a
// booking's credit policy.
type SLAPolicy struct {
	Enabled           bool
	TargetMinutes     int
	Ladder            []CreditLadderStep
	DefaultCreditCents int64
	MaxCreditCents     int64
}

// JobAccounting reacts to JOB_SETTLED by recording operator cost, detecting
// SLA breaches, and issuing SLA credits per the booking's credit policy.
type JobAccounting struct {
	Deps
}

// Tick claims JOB_SETTLED messages and posts the accounting events they
// imply.
func (w *JobAccounting) Tick(ctx context.Context, maxMessages int) (int, error) {
	msgs := w.Store.ClaimOutbox("JOB_SETTLED", "jobaccounting-worker", maxMessages)
	processed := 0

	for _, msg := range msgs {
		if err := w.process(ctx, msg); err != nil {
			w.Store.MarkOutboxFailed(msg.ID, err.Error())
			w.logger().Warnf("jobaccounting: %s failed: %v", msg.ID, err)

			continue
		}

		w.Store.MarkOutboxProcessed([]string{msg.ID})
		processed++
	}

	return processed, nil
}

func (w *JobAccounting) process(ctx context.Context, msg *outbox.Message) error {
	streamID := payloadString(msg, "streamId")

	events, err := w.Store.LoadEvents(ctx, streamID)
	if err != nil {
		return fmt.Errorf("jobaccounting: load %s: %w", streamID, err)
	}

	before, err := job.Reduce(events)
	if err != nil {
		return fmt.Errorf("jobaccounting: reduce %s: %w", streamID, err)
	}

	policy, _ := before.PolicySnapshot["slaPolicy"].(map[string]any)

	now := w.now()
	prev := before.LastChainHash

	out := []event.Event{}

	operatorCostCents, _ := before.PolicySnapshot["operatorCostCents"].(float64)

	ev, err := appendEvent(&prev, streamID, "OPERATOR_COST_RECORDED", event.Actor{Type: event.ActorAccounting, ID: "jobaccounting-worker"},
		map[string]any{"amountCents": operatorCostCents, "operatorId": before.OperatorID}, now)
	if err != nil {
		return err
	}

	out = append(out, ev)

	breached, breachMinutes := slaBreach(before, policy)

	if breached {
		ev, err = appendEvent(&prev, streamID, "SLA_BREACH_DETECTED", event.Actor{Type: event.ActorAccounting, ID: "jobaccounting-worker"},
			map[string]any{"breachMinutes": breachMinutes}, now)
		if err != nil {
			return err
		}

		out = append(out, ev)

		if creditEnabled, _ := policy["enabled"].(bool); creditEnabled {
			creditCents := slaCredit(before, policy, breachMinutes)

			if creditCents > 0 {
				ev, err = appendEvent(&prev, streamID, "SLA_CREDIT_ISSUED", event.Actor{Type: event.ActorAccounting, ID: "jobaccounting-worker"},
					map[string]any{"amountCents": creditCents}, now)
				if err != nil {
					return err
				}

				out = append(out, ev)
			}
		}
	}

	return w.Committer.CommitTx(ctx, []store.Op{{
		Kind:     store.OpJobEventsAppended,
		StreamID: streamID,
		TenantID: msg.TenantID,
		Events:   out,
	}}, nil)
}

func slaBreach(before job.State, policy map[string]any) (bool, int) {
	targetMinutes, _ := policy["targetMinutes"].(float64)
	if targetMinutes <= 0 {
		return false, 0
	}

	actualMinutes := before.LastHeartbeatAt.Sub(before.BookingWindowFrom).Minutes()
	if actualMinutes <= targetMinutes {
		return false, 0
	}

	return true, int(actualMinutes - targetMinutes)
}

func slaCredit(before job.State, policy map[string]any, breachMinutes int) int64 {
	ladder, _ := policy["ladder"].([]any)

	best := int64(0)

	for _, step := range ladder {
		m, _ := step.(map[string]any)
		breachThreshold, _ := m["breachMinutes"].(float64)
		creditPct, _ := m["creditPct"].(float64)

		if float64(breachMinutes) >= breachThreshold {
			amount, _ := before.PolicySnapshot["amountCents"].(float64)
			candidate := int64(amount * creditPct / 100)

			if candidate > best {
				best = candidate
			}
		}
	}

	if best == 0 {
		if def, ok := policy["defaultCreditCents"].(float64); ok {
			best = int64(def)
		}
	}

	if maxCredit, ok := policy["maxCreditCents"].(float64); ok && best > int64(maxCredit) {
		best = int64(maxCredit)
	}

	return best
}
