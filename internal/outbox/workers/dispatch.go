package workers

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/settld/core/internal/domain/event"
	"github.com/settld/core/internal/domain/job"
	"github.com/settld/core/internal/domain/operator"
	"github.com/settld/core/internal/domain/robot"
	"github.com/settld/core/internal/outbox"
	"github.com/settld/core/internal/store"
)

// RobotCandidate is one robot eligible for dispatch, as seen by the
// dispatch worker's view of the fleet.
type RobotCandidate struct {
	State robot.State
}

// OperatorCandidate is one operator eligible for coverage.
type OperatorCandidate struct {
	State operator.State
}

// FleetDirectory resolves dispatch candidates for a tenant/zone. A
// production implementation backs this with the Redis dispatch candidate
// cache named in SPEC_FULL's DOMAIN STACK; tests use an in-memory slice.
type FleetDirectory interface {
	RobotsInZone(tenantID, zoneID string) ([]RobotCandidate, error)
	OperatorsInZone(tenantID, zoneID string) ([]OperatorCandidate, error)
}

// Dispatch drives DISPATCH_REQUESTED messages to MATCHED/RESERVED/
// DISPATCH_CONFIRMED or DISPATCH_FAILED.
type Dispatch struct {
	Deps
	Fleet FleetDirectory
}

// Tick claims up to maxMessages DISPATCH_REQUESTED messages and processes
// each: selects the best available robot (trust-score desc, id asc) and an
// in-zone, on-shift operator, then appends the resulting job events. A
// reservation conflict (robot taken by a concurrent dispatch) retries the
// next candidate before giving up.
func (w *Dispatch) Tick(ctx context.Context, maxMessages int) (int, error) {
	msgs := w.Store.ClaimOutbox("DISPATCH_REQUESTED", "dispatch-worker", maxMessages)
	processed := 0

	for _, msg := range msgs {
		if err := w.process(ctx, msg); err != nil {
			w.Store.MarkOutboxFailed(msg.ID, err.Error())
			w.logger().Warnf("dispatch: %s failed: %v", msg.ID, err)

			continue
		}

		w.Store.MarkOutboxProcessed([]string{msg.ID})
		processed++
	}

	return processed, nil
}

func (w *Dispatch) process(ctx context.Context, msg *outbox.Message) error {
	streamID := payloadString(msg, "streamId")

	events, err := w.Store.LoadEvents(ctx, streamID)
	if err != nil {
		return fmt.Errorf("dispatch: load job stream %s: %w", streamID, err)
	}

	before, err := job.Reduce(events)
	if err != nil {
		return fmt.Errorf("dispatch: reduce job %s: %w", streamID, err)
	}

	if before.Status != job.StatusBooked {
		// Already dispatched or moved on by a prior tick; idempotent no-op.
		return nil
	}

	zoneID, _ := before.PolicySnapshot["zoneId"].(string)

	robots, err := w.Fleet.RobotsInZone(msg.TenantID, zoneID)
	if err != nil {
		return fmt.Errorf("dispatch: robots in zone %s: %w", zoneID, err)
	}

	sort.Slice(robots, func(i, j int) bool {
		if robots[i].State.TrustScore != robots[j].State.TrustScore {
			return robots[i].State.TrustScore > robots[j].State.TrustScore
		}

		return robots[i].State.RobotID < robots[j].State.RobotID
	})

	var available []RobotCandidate
	for _, r := range robots {
		if r.State.Status == robot.StatusAvailable {
			available = append(available, r)
		}
	}

	if len(available) == 0 {
		return w.appendFailure(ctx, streamID, msg.TenantID, before, "NO_ROBOTS")
	}

	operators, err := w.Fleet.OperatorsInZone(msg.TenantID, zoneID)
	if err != nil {
		return fmt.Errorf("dispatch: operators in zone %s: %w", zoneID, err)
	}

	var chosenOperator *OperatorCandidate
	for i := range operators {
		o := operators[i]
		if o.State.Status == operator.StatusOnShift && (o.State.MaxConcurrent == 0 || o.State.UsedConcurrent < o.State.MaxConcurrent) {
			chosenOperator = &operators[i]

			break
		}
	}

	requiresOperatorCoverage, _ := before.PolicySnapshot["requiresOperatorCoverage"].(bool)
	if requiresOperatorCoverage && chosenOperator == nil {
		return w.appendFailure(ctx, streamID, msg.TenantID, before, "NO_OPERATORS")
	}

	for _, candidate := range available {
		ok, err := w.tryReserve(ctx, streamID, msg.TenantID, before, candidate, chosenOperator)
		if err != nil {
			return err
		}

		if ok {
			return nil
		}
	}

	return w.appendFailure(ctx, streamID, msg.TenantID, before, "CONFLICT")
}

func (w *Dispatch) tryReserve(ctx context.Context, streamID, tenantID string, before job.State, candidate RobotCandidate, chosenOperator *OperatorCandidate) (bool, error) {
	now := w.now()
	prev := before.LastChainHash

	events := make([]event.Event, 0, 4)

	ev, err := appendEvent(&prev, streamID, "DISPATCH_EVALUATED", event.Actor{Type: event.ActorDispatch, ID: "dispatch-worker"},
		map[string]any{"robotId": candidate.State.RobotID, "trustScore": candidate.State.TrustScore}, now)
	if err != nil {
		return false, err
	}

	events = append(events, ev)

	ev, err = appendEvent(&prev, streamID, "MATCHED", event.Actor{Type: event.ActorDispatch, ID: "dispatch-worker"},
		map[string]any{"robotId": candidate.State.RobotID}, now)
	if err != nil {
		return false, err
	}

	events = append(events, ev)

	ev, err = appendEvent(&prev, streamID, "RESERVED", event.Actor{Type: event.ActorSystem, ID: "dispatch-worker"},
		map[string]any{"robotId": candidate.State.RobotID}, now)
	if err != nil {
		return false, err
	}

	events = append(events, ev)

	if chosenOperator != nil {
		ev, err = appendEvent(&prev, streamID, "OPERATOR_COVERAGE_RESERVED", event.Actor{Type: event.ActorSystem, ID: "dispatch-worker"},
			map[string]any{"operatorId": chosenOperator.State.OperatorID, "zoneId": chosenOperator.State.ZoneID}, now)
		if err != nil {
			return false, err
		}

		events = append(events, ev)
	}

	ev, err = appendEvent(&prev, streamID, "DISPATCH_CONFIRMED", event.Actor{Type: event.ActorSystem, ID: "dispatch-worker"},
		map[string]any{"robotId": candidate.State.RobotID}, now)
	if err != nil {
		return false, err
	}

	events = append(events, ev)

	err = w.Committer.CommitTx(ctx, []store.Op{{
		Kind:     store.OpJobEventsAppended,
		StreamID: streamID,
		TenantID: tenantID,
		Events:   events,
	}}, nil)
	if err != nil {
		// A reservation-overlap conflict means a concurrent dispatch took
		// this robot first; try the next candidate rather than failing the
		// whole message.
		return false, nil //nolint:nilerr // caller retries next candidate on false, nil
	}

	return true, nil
}

func (w *Dispatch) appendFailure(ctx context.Context, streamID, tenantID string, before job.State, reason string) error {
	now := w.now()
	prev := before.LastChainHash

	ev, err := appendEvent(&prev, streamID, "DISPATCH_FAILED", event.Actor{Type: event.ActorDispatch, ID: "dispatch-worker"},
		map[string]any{"reason": reason}, now)
	if err != nil {
		return err
	}

	return w.Committer.CommitTx(ctx, []store.Op{{
		Kind:     store.OpJobEventsAppended,
		StreamID: streamID,
		TenantID: tenantID,
		Events:   []event.Event{ev},
	}}, nil)
}

// appendEvent creates one event chained to *prev and advances *prev to its
// new chainHash, so a caller can build a multi-event batch without
// re-deriving the running head after each call.
func appendEvent(prev *string, streamID, eventType string, actor event.Actor, payload map[string]any, now time.Time) (event.Event, error) {
	ev, err := event.CreateEvent(streamID, eventType, actor, payload, *prev, now)
	if err != nil {
		return event.Event{}, err
	}

	*prev = ev.ChainHash

	return ev, nil
}
