// Package agentrun reduces a marketplace agent-run aggregate's event
// stream: a lighter-weight FSM than job, used for agent-to-agent tasks.
package agentrun

import (
	"fmt"

	"github.com/settld/core/internal/domain/event"
	"github.com/settld/core/pkg/errs"
)

// Status is the agent-run lifecycle state.
type Status string

const (
	StatusCreated   Status = "created"
	StatusStarted   Status = "started"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

var legalTransitions = map[Status]map[Status]bool{
	StatusCreated: {StatusStarted: true, StatusFailed: true},
	StatusStarted: {StatusCompleted: true, StatusFailed: true},
}

// State is the reduced agent-run aggregate.
type State struct {
	RunID         string
	TenantID      string
	AgentID       string
	TaskID        string
	Status        Status
	AmountCents   int64
	LastChainHash string
}

// Reduce folds an agent-run's event stream into its current State.
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
	case "AGENT_RUN_CREATED":
		s.RunID = ev.StreamID
		s.Status = StatusCreated

		if v, ok := payload["agentId"].(string); ok {
			s.AgentID = v
		}

		if v, ok := payload["taskId"].(string); ok {
			s.TaskID = v
		}

		if v, ok := payload["amountCents"].(float64); ok {
			s.AmountCents = int64(v)
		}

		return nil

	case "AGENT_RUN_STARTED":
		return transition(s, StatusStarted, ev)

	case "AGENT_RUN_COMPLETED":
		return transition(s, StatusCompleted, ev)

	case "AGENT_RUN_FAILED":
		return transition(s, StatusFailed, ev)
	}

	return nil
}

func transition(s *State, to Status, ev event.Event) error {
	edges, ok := legalTransitions[s.Status]
	if !ok || !edges[to] {
		return fmt.Errorf("%w: run %s cannot move %s -> %s via %s", errs.ErrIllegalTransition, ev.StreamID, s.Status, to, ev.Type)
	}

	s.Status = to

	return nil
}
