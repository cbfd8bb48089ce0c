package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/settld/core/internal/domain/event"
	"github.com/settld/core/internal/domain/job"
	"github.com/settld/core/internal/store"
)

// StallTiers maps a job's service tier to the duration after which a
// missing heartbeat counts as a stall.
type StallTiers map[string]int64 // tier -> stallAfterMs

// DefaultStallAfterMs is used when a job's tier has no entry in StallTiers.
const DefaultStallAfterMs = 90_000

// Liveness appends JOB_EXECUTION_STALLED for EXECUTING/ASSISTED jobs whose
// heartbeat has gone quiet, and JOB_EXECUTION_RESUMED once it resumes.
type Liveness struct {
	Deps
	ActiveJobStreams func(tenantID string) ([]string, error)
	Tiers            StallTiers
}

// Tick scans active job streams (provided by ActiveJobStreams — a
// production implementation indexes this from the job projection table
// rather than scanning every stream) and appends stall/resume events.
func (w *Liveness) Tick(ctx context.Context, tenantID string, _ int) (int, error) {
	streamIDs, err := w.ActiveJobStreams(tenantID)
	if err != nil {
		return 0, fmt.Errorf("liveness: list active streams: %w", err)
	}

	processed := 0
	now := w.now()

	for _, streamID := range streamIDs {
		events, err := w.Store.LoadEvents(ctx, streamID)
		if err != nil {
			w.logger().Warnf("liveness: load %s: %v", streamID, err)

			continue
		}

		before, err := job.Reduce(events)
		if err != nil {
			w.logger().Warnf("liveness: reduce %s: %v", streamID, err)

			continue
		}

		ev, ok := w.evaluate(streamID, tenantID, before, now)
		if !ok {
			continue
		}

		if err := w.Committer.CommitTx(ctx, []store.Op{{
			Kind:     store.OpJobEventsAppended,
			StreamID: streamID,
			TenantID: tenantID,
			Events:   []event.Event{ev},
		}}, nil); err != nil {
			w.logger().Warnf("liveness: commit %s: %v", streamID, err)

			continue
		}

		processed++
	}

	return processed, nil
}

func (w *Liveness) evaluate(streamID, tenantID string, before job.State, now time.Time) (event.Event, bool) {
	tier, _ := before.PolicySnapshot["tier"].(string)

	stallAfterMs, ok := w.Tiers[tier]
	if !ok {
		stallAfterMs = DefaultStallAfterMs
	}

	stallAfter := time.Duration(stallAfterMs) * time.Millisecond

	switch before.Status {
	case job.StatusExecuting, job.StatusAssisted:
		if before.LastHeartbeatAt.IsZero() || now.Sub(before.LastHeartbeatAt) <= stallAfter {
			return event.Event{}, false
		}

		ev, err := event.CreateEvent(streamID, "JOB_EXECUTION_STALLED", event.Actor{Type: event.ActorSystem, ID: "liveness-worker"},
			map[string]any{"sinceHeartbeatAt": before.LastHeartbeatAt}, before.LastChainHash, now)
		if err != nil {
			return event.Event{}, false
		}

		return ev, true

	case job.StatusStalled:
		if before.LastHeartbeatAt.IsZero() || now.Sub(before.LastHeartbeatAt) > stallAfter {
			return event.Event{}, false
		}

		ev, err := event.CreateEvent(streamID, "JOB_EXECUTION_RESUMED", event.Actor{Type: event.ActorSystem, ID: "liveness-worker"},
			map[string]any{}, before.LastChainHash, now)
		if err != nil {
			return event.Event{}, false
		}

		return ev, true
	}

	return event.Event{}, false
}
