// Package job reduces a job aggregate's event stream into its current state
// and rejects illegal transitions. It is a pure fold: no I/O, no clock reads
// beyond what's embedded in events.
package job

import (
	"fmt"
	"time"

	"github.com/settld/core/internal/domain/event"
	"github.com/settld/core/pkg/errs"
)

// Status is the job lifecycle state.
type Status string

const (
	StatusCreated          Status = "CREATED"
	StatusQuoted           Status = "QUOTED"
	StatusBooked           Status = "BOOKED"
	StatusMatched          Status = "MATCHED"
	StatusReserved         Status = "RESERVED"
	StatusEnRoute          Status = "EN_ROUTE"
	StatusAccessGranted    Status = "ACCESS_GRANTED"
	StatusExecuting        Status = "EXECUTING"
	StatusAssisted         Status = "ASSISTED"
	StatusStalled          Status = "STALLED"
	StatusAbortingSafeExit Status = "ABORTING_SAFE_EXIT"
	StatusCompleted        Status = "COMPLETED"
	StatusAborted          Status = "ABORTED"
	StatusSettled          Status = "SETTLED"
)

// legalTransitions enumerates the FSM edges. A status with no outgoing edge
// listed is terminal for the event types reduce recognizes; COMPLETED's only
// edge is to SETTLED, so a COMPLETED job cannot be ABORTED.
var legalTransitions = map[Status]map[Status]bool{
	StatusCreated:          {StatusQuoted: true, StatusAborted: true},
	StatusQuoted:           {StatusBooked: true, StatusAborted: true},
	StatusBooked:           {StatusMatched: true, StatusAborted: true},
	StatusMatched:          {StatusReserved: true, StatusAborted: true},
	StatusReserved:         {StatusEnRoute: true, StatusAborted: true},
	StatusEnRoute:          {StatusAccessGranted: true, StatusAborted: true},
	StatusAccessGranted:    {StatusExecuting: true, StatusAborted: true},
	StatusExecuting:        {StatusAssisted: true, StatusStalled: true, StatusCompleted: true, StatusAbortingSafeExit: true},
	StatusAssisted:         {StatusExecuting: true, StatusStalled: true, StatusCompleted: true, StatusAbortingSafeExit: true},
	StatusStalled:          {StatusExecuting: true, StatusAssisted: true, StatusAbortingSafeExit: true},
	StatusAbortingSafeExit: {StatusAborted: true},
	StatusCompleted:        {StatusSettled: true},
}

// Evidence is one captured proof-of-work item.
type Evidence struct {
	EvidenceID  string
	EvidenceRef string
	ContentType string
	SizeBytes   int64
	CapturedAt  time.Time
}

// Claim is an insurance/credit claim raised against a job.
type Claim struct {
	ClaimID    string
	Status     string
	AmountCent int64
}

// State is the reduced job aggregate.
type State struct {
	JobID             string
	TenantID          string
	Status            Status
	TemplateID        string
	CustomerID        string
	SiteID            string
	PolicySnapshot    map[string]any
	PolicyHash        string
	BookingWindowFrom time.Time
	BookingWindowTo   time.Time
	ReservedRobotID   string
	OperatorID        string
	LastHeartbeatAt   time.Time
	Evidence          []Evidence
	Claims            []Claim
	SettlementHoldID  string
	ForfeitedHoldIDs  []string
	ExpiredEvidenceIDs []string
	LastChainHash     string
}

// HasForfeiture reports whether holdID has a recorded SETTLEMENT_FORFEITED.
func (s State) HasForfeiture(holdID string) bool {
	for _, h := range s.ForfeitedHoldIDs {
		if h == holdID {
			return true
		}
	}

	return false
}

// HasExpired reports whether evidenceID already has a recorded
// EVIDENCE_EXPIRED, so a retention sweep never re-deletes the same item.
func (s State) HasExpired(evidenceID string) bool {
	for _, id := range s.ExpiredEvidenceIDs {
		if id == evidenceID {
			return true
		}
	}

	return false
}

// Reduce folds a job's event stream into its current State, rejecting
// illegal transitions as they're encountered. It is pure and deterministic:
// the same events in the same order always yield the same State or the same
// error.
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
	case "JOB_CREATED":
		s.JobID = ev.StreamID
		s.Status = StatusCreated
		assignString(&s.TemplateID, payload, "templateId")
		assignString(&s.CustomerID, payload, "customerId")
		assignString(&s.SiteID, payload, "siteId")

		return nil

	case "JOB_QUOTED":
		return transition(s, StatusQuoted, ev)

	case "BOOKED":
		if err := transition(s, StatusBooked, ev); err != nil {
			return err
		}

		assignString(&s.PolicyHash, payload, "policyHash")

		if snap, ok := payload["policySnapshot"].(map[string]any); ok {
			s.PolicySnapshot = snap
		}

		return nil

	case "MATCHED":
		return transition(s, StatusMatched, ev)

	case "RESERVED":
		if err := transition(s, StatusReserved, ev); err != nil {
			return err
		}

		assignString(&s.ReservedRobotID, payload, "robotId")

		return nil

	case "OPERATOR_COVERAGE_RESERVED":
		assignString(&s.OperatorID, payload, "operatorId")

		return nil

	case "EN_ROUTE":
		return transition(s, StatusEnRoute, ev)

	case "ACCESS_GRANTED":
		return transition(s, StatusAccessGranted, ev)

	case "EXECUTION_STARTED":
		return transition(s, StatusExecuting, ev)

	case "HEARTBEAT":
		s.LastHeartbeatAt = ev.At

		return nil

	case "JOB_EXECUTION_STALLED":
		return transition(s, StatusStalled, ev)

	case "JOB_EXECUTION_RESUMED":
		return transition(s, StatusExecuting, ev)

	case "ASSIST_ASSIGNED":
		return transition(s, StatusAssisted, ev)

	case "EXECUTION_COMPLETED", "JOB_EXECUTION_COMPLETED":
		return transition(s, StatusCompleted, ev)

	case "ABORTING_SAFE_EXIT":
		return transition(s, StatusAbortingSafeExit, ev)

	case "ABORTED":
		return transition(s, StatusAborted, ev)

	case "EVIDENCE_CAPTURED":
		ev := Evidence{CapturedAt: ev.At}
		assignString(&ev.EvidenceID, payload, "evidenceId")
		assignString(&ev.EvidenceRef, payload, "evidenceRef")
		assignString(&ev.ContentType, payload, "contentType")

		if sz, ok := payload["sizeBytes"].(float64); ok {
			ev.SizeBytes = int64(sz)
		}

		s.Evidence = append(s.Evidence, ev)

		return nil

	case "EVIDENCE_EXPIRED":
		if v, ok := payload["evidenceId"].(string); ok {
			s.ExpiredEvidenceIDs = append(s.ExpiredEvidenceIDs, v)
		}

		return nil

	case "CLAIM_APPROVED":
		c := Claim{Status: "approved"}
		assignString(&c.ClaimID, payload, "claimId")

		if amt, ok := payload["amountCents"].(float64); ok {
			c.AmountCent = int64(amt)
		}

		s.Claims = append(s.Claims, c)

		return nil

	case "SETTLEMENT_HELD":
		assignString(&s.SettlementHoldID, payload, "holdId")

		return nil

	case "SETTLEMENT_FORFEITED":
		if holdID := payload["holdId"]; holdID != nil {
			if v, ok := holdID.(string); ok {
				s.ForfeitedHoldIDs = append(s.ForfeitedHoldIDs, v)
			}
		}

		return nil

	case "SETTLED":
		return transition(s, StatusSettled, ev)
	}

	return nil
}

// transition validates s.Status -> to is legal before assigning it. Events
// with no registered edge (e.g. "SETTLED" is only legal from COMPLETED) are
// rejected with errs.ErrIllegalTransition.
func transition(s *State, to Status, ev event.Event) error {
	if to == StatusSettled {
		if s.Status != StatusCompleted {
			return fmt.Errorf("%w: SETTLED requires COMPLETED, job %s is %s", errs.ErrIllegalTransition, ev.StreamID, s.Status)
		}

		s.Status = to

		return nil
	}

	edges, ok := legalTransitions[s.Status]
	if !ok || !edges[to] {
		return fmt.Errorf("%w: job %s cannot move %s -> %s via %s", errs.ErrIllegalTransition, ev.StreamID, s.Status, to, ev.Type)
	}

	s.Status = to

	return nil
}

func assignString(dst *string, payload map[string]any, key string) {
	if payload == nil {
		return
	}

	if v, ok := payload[key].(string); ok {
		*dst = v
	}
}
