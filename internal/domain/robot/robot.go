// Package robot reduces a robot aggregate's event stream into its current
// identity/availability state.
package robot

import (
	"fmt"
	"time"

	"github.com/settld/core/internal/domain/event"
	"github.com/settld/core/pkg/errs"
)

// Status is the robot availability state.
type Status string

const (
	StatusRegistered  Status = "REGISTERED"
	StatusAvailable   Status = "AVAILABLE"
	StatusReserved    Status = "RESERVED"
	StatusDispatched  Status = "DISPATCHED"
	StatusQuarantined Status = "QUARANTINED"
	StatusRetired     Status = "RETIRED"
)

// State is the reduced robot aggregate.
type State struct {
	RobotID         string
	TenantID        string
	SignerKeyID     string
	ZoneID          string
	Status          Status
	TrustScore      float64
	StallCount      int
	LastHeartbeatAt time.Time
	LastChainHash   string
}

// Reduce folds a robot's event stream into its current State.
func Reduce(events []event.Event) (State, error) {
	var s State

	for _, ev := range events {
		if err := apply(&s, ev); err != nil {
			return State{}, err
		}

		s.LastChainHash = ev.ChainHash
	}

	return s, nil
}

func apply(s *State, ev event.Event) error {
	payload, _ := ev.Payload.(map[string]any)

	switch ev.Type {
	case "ROBOT_REGISTERED":
		s.RobotID = ev.StreamID
		s.Status = StatusAvailable
		s.TrustScore = 0.5

		if v, ok := payload["signerKeyId"].(string); ok {
			s.SignerKeyID = v
		}

		if v, ok := payload["zoneId"].(string); ok {
			s.ZoneID = v
		}

		return nil

	case "ROBOT_HEARTBEAT":
		if ev.Actor.ID != s.RobotID {
			return fmt.Errorf("%w: heartbeat from %q for robot %q", errs.ErrIllegalTransition, ev.Actor.ID, s.RobotID)
		}

		s.LastHeartbeatAt = ev.At

		return nil

	case "ROBOT_RESERVED":
		s.Status = StatusReserved

		return nil

	case "ROBOT_DISPATCHED":
		s.Status = StatusDispatched

		return nil

	case "ROBOT_RELEASED":
		s.Status = StatusAvailable

		return nil

	case "ROBOT_QUARANTINED":
		s.Status = StatusQuarantined

		return nil

	case "ROBOT_STALL_RECORDED":
		s.StallCount++

		return nil

	case "ROBOT_TRUST_SCORE_UPDATED":
		if v, ok := payload["trustScore"].(float64); ok {
			s.TrustScore = v
		}

		return nil

	case "ROBOT_RETIRED":
		s.Status = StatusRetired

		return nil
	}

	return nil
}
