// Package monthclose reduces a month-close aggregate's event stream. The
// stream id for this aggregate is "month:{YYYY-MM}:{basis}".
package monthclose

import (
	"fmt"

	"github.com/settld/core/internal/domain/event"
	"github.com/settld/core/pkg/errs"
)

// Status is the month-close lifecycle state.
type Status string

const (
	StatusOpen     Status = "OPEN"
	StatusClosed   Status = "CLOSED"
	StatusReopened Status = "REOPENED"
)

// State is the reduced month-close aggregate.
type State struct {
	Month            string
	Basis            string
	Status           Status
	FinancePackHash  string
	ClosedAt         string
	LastChainHash    string
}

// Reduce folds a month-close stream into its current State.
func Reduce(events []event.Event) (State, error) {
	s := State{Status: StatusOpen}

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
	case "MONTH_CLOSE_REQUESTED":
		if s.Status == StatusClosed {
			return fmt.Errorf("%w: month %s is already closed", errs.ErrMonthClosed, ev.StreamID)
		}

		return nil

	case "MONTH_CLOSED":
		if s.Status == StatusClosed {
			return fmt.Errorf("%w: month %s is already closed", errs.ErrMonthClosed, ev.StreamID)
		}

		s.Status = StatusClosed
		s.ClosedAt = ev.At.Format("2006-01-02T15:04:05Z07:00")

		if v, ok := payload["financePackHash"].(string); ok {
			s.FinancePackHash = v
		}

		return nil

	case "MONTH_CLOSE_REOPENED":
		s.Status = StatusReopened

		return nil
	}

	return nil
}

// IsClosed reports whether an event timestamped in this month would be
// rejected: closed and not yet reopened again.
func (s State) IsClosed() bool {
	return s.Status == StatusClosed
}
