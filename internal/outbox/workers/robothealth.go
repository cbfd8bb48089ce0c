package workers

import (
	"context"
	"fmt"

	"github.com/settld/core/internal/domain/event"
	"github.com/settld/core/internal/domain/robot"
	"github.com/settld/core/internal/outbox"
	"github.com/settld/core/internal/store"
)

// StallsPerHourQuarantineThreshold auto-quarantines a robot once it racks
// up this many stalls within an hour.
const StallsPerHourQuarantineThreshold = 3

// SafetyIncidentQuarantineThreshold auto-quarantines a robot once it has
// this many safety-type incidents recorded, regardless of severity.
const SafetyIncidentQuarantineThreshold = 3

// IncidentSeverityQuarantineFloor auto-quarantines a robot on any single
// incident at or above this severity.
const IncidentSeverityQuarantineFloor = 4

// RobotHealth consumes ROBOT_INCIDENT_REPORTED and ROBOT_STALL_RECORDED
// messages and appends ROBOT_QUARANTINED once a robot crosses a safety
// threshold.
type RobotHealth struct {
	Deps
}

// Tick claims incident/stall messages and evaluates quarantine thresholds.
func (w *RobotHealth) Tick(ctx context.Context, maxMessages int) (int, error) {
	processed := 0

	for _, topic := range []string{"ROBOT_INCIDENT_REPORTED", "ROBOT_STALL_RECORDED"} {
		remaining := maxMessages - processed
		if remaining <= 0 {
			break
		}

		msgs := w.Store.ClaimOutbox(topic, "robothealth-worker", remaining)

		for _, msg := range msgs {
			if err := w.process(ctx, msg); err != nil {
				w.Store.MarkOutboxFailed(msg.ID, err.Error())
				w.logger().Warnf("robothealth: %s failed: %v", msg.ID, err)

				continue
			}

			w.Store.MarkOutboxProcessed([]string{msg.ID})
			processed++
		}
	}

	return processed, nil
}

func (w *RobotHealth) process(ctx context.Context, msg *outbox.Message) error {
	streamID := payloadString(msg, "streamId")

	events, err := w.Store.LoadEvents(ctx, streamID)
	if err != nil {
		return fmt.Errorf("robothealth: load %s: %w", streamID, err)
	}

	before, err := robot.Reduce(events)
	if err != nil {
		return fmt.Errorf("robothealth: reduce %s: %w", streamID, err)
	}

	if before.Status == robot.StatusQuarantined {
		return nil
	}

	severity, _ := msg.Payload["severity"].(float64)
	incidentType, _ := msg.Payload["incidentType"].(string)

	shouldQuarantine := severity >= IncidentSeverityQuarantineFloor ||
		incidentType == "safety" && before.StallCount >= SafetyIncidentQuarantineThreshold ||
		before.StallCount >= StallsPerHourQuarantineThreshold

	if !shouldQuarantine {
		return nil
	}

	ev, err := event.CreateEvent(streamID, "ROBOT_QUARANTINED", event.Actor{Type: event.ActorSystem, ID: "robothealth-worker"},
		map[string]any{"reason": incidentType, "severity": severity}, before.LastChainHash, w.now())
	if err != nil {
		return err
	}

	return w.Committer.CommitTx(ctx, []store.Op{{
		Kind:     store.OpRobotEventsAppended,
		StreamID: streamID,
		TenantID: msg.TenantID,
		Events:   []event.Event{ev},
	}}, nil)
}
