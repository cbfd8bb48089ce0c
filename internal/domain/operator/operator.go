// Package operator reduces an operator aggregate's event stream: identity,
// signer key, zone coverage, and shift state.
package operator

import (
	"time"

	"github.com/settld/core/internal/domain/event"
)

// Status is the operator coverage state.
type Status string

const (
	StatusRegistered Status = "REGISTERED"
	StatusOnShift    Status = "ON_SHIFT"
	StatusOffShift   Status = "OFF_SHIFT"
)

// State is the reduced operator aggregate.
type State struct {
	OperatorID      string
	TenantID        string
	SignerKeyID     string
	ZoneID          string
	Status          Status
	MaxConcurrent   int
	UsedConcurrent  int
	ShiftStartedAt  time.Time
	ShiftEndedAt    time.Time
	LastChainHash   string
}

// Reduce folds an operator's event stream into its current State.
func Reduce(events []event.Event) (State, error) {
	var s State

	for _, ev := range events {
		apply(&s, ev)
		s.LastChainHash = ev.ChainHash
	}

	return s, nil
}

func apply(s *State, ev event.Event) {
	payload, _ := ev.Payload.(map[string]any)

	switch ev.Type {
	case "OPERATOR_REGISTERED":
		s.OperatorID = ev.StreamID
		s.Status = StatusOffShift

		if v, ok := payload["signerKeyId"].(string); ok {
			s.SignerKeyID = v
		}

		if v, ok := payload["zoneId"].(string); ok {
			s.ZoneID = v
		}

		if v, ok := payload["maxConcurrent"].(float64); ok {
			s.MaxConcurrent = int(v)
		}

	case "OPERATOR_SHIFT_STARTED":
		s.Status = StatusOnShift
		s.ShiftStartedAt = ev.At

	case "OPERATOR_SHIFT_ENDED":
		s.Status = StatusOffShift
		s.ShiftEndedAt = ev.At

	case "OPERATOR_COVERAGE_RESERVED":
		s.UsedConcurrent++

	case "OPERATOR_COVERAGE_RELEASED":
		if s.UsedConcurrent > 0 {
			s.UsedConcurrent--
		}
	}
}
