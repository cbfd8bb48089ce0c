// Package validate enforces the cross-event invariants (spec.md §4.3) that
// apply on top of the structural reducers in internal/domain/{job,robot,
// operator,agentrun,monthclose}. A reducer only knows "is this a legal FSM
// edge"; this package knows "is this specific payload, in this specific
// tenant and policy context, allowed to happen at all".
//
// Every Validate* function is pure given its Context: no I/O happens here,
// only lookups against interfaces the caller has already resolved from the
// store.
package validate

import (
	"fmt"
	"time"

	"github.com/settld/core/internal/domain/event"
	"github.com/settld/core/internal/domain/job"
	"github.com/settld/core/internal/domain/operator"
	"github.com/settld/core/internal/domain/robot"
	"github.com/settld/core/internal/domain/signerpolicy"
	"github.com/settld/core/pkg/errs"
)

// ProofGateMode controls how strictly SETTLED checks for a fresh proof.
type ProofGateMode string

const (
	ProofGateOff      ProofGateMode = "off"
	ProofGateWarn     ProofGateMode = "warn"
	ProofGateStrict   ProofGateMode = "strict"
	ProofGateHoldback ProofGateMode = "holdback"
)

// ProofRef is the settlementProofRef payload field settled against the fresh
// PROOF_EVALUATED computed by ProofChecker.
type ProofRef struct {
	EventID            string
	EvaluatedAtChainHash string
	PayloadHash        string
	FactsHash          string
	CustomerPolicyHash string
}

// ProofChecker abstracts internal/proofgate so validate never imports it
// directly (proofgate itself depends on job.State, not the reverse).
type ProofChecker interface {
	// Fresh returns the freshest PROOF_EVALUATED ref for the job this
	// checker was constructed against (one instance per job being
	// validated), or ok=false if none exists yet.
	Fresh() (ref ProofRef, status string, ok bool, err error)
}

// MonthLookup resolves whether a settledAt timestamp falls inside a closed
// accounting period for a tenant.
type MonthLookup interface {
	IsClosed(tenantID string, settledAt time.Time, basis string) (bool, error)
}

// ContractLookup resolves the compiled policyHash for a template at booking
// time, so BOOKED can assert the payload's policyHash matches.
type ContractLookup interface {
	ActivePolicyHash(tenantID, templateID string) (string, error)
}

// ReservationChecker reports whether robotID already has an overlapping
// reservation for the given window, excluding the job currently being
// reserved.
type ReservationChecker interface {
	HasOverlap(tenantID, robotID string, from, to time.Time, excludeJobID string) (bool, error)
}

// EvidencePolicy configures EVIDENCE_CAPTURED limits.
type EvidencePolicy struct {
	AllowedContentTypes map[string]bool
	MaxSizeBytes        int64
	MaxEvidencePerJob    int
	PrivacyMode          string // "minimal" or "" (full)
}

// Context bundles every dependency a job validator may need. Fields may be
// nil when the corresponding checks do not apply to the event being
// validated (e.g. ProofChecker is only consulted for SETTLED).
type Context struct {
	TenantID     string
	SignerPolicy signerpolicy.Policy
	ActiveKeys   signerpolicy.ActiveKeys
	Proof        ProofChecker
	Months       MonthLookup
	Contracts    ContractLookup
	Reservations ReservationChecker
	Evidence     EvidencePolicy
	ProofGateMode ProofGateMode
}

func payloadOf(ev event.Event) map[string]any {
	m, _ := ev.Payload.(map[string]any)
	if m == nil {
		return map[string]any{}
	}

	return m
}

func stringField(payload map[string]any, key string) string {
	v, _ := payload[key].(string)
	return v
}

func float64Field(payload map[string]any, key string) (float64, bool) {
	v, ok := payload[key].(float64)
	return v, ok
}

// ValidateJobEvent checks ev against the job's reduced state before it is
// appended, in addition to whatever internal/domain/job.Reduce would itself
// reject as an illegal FSM edge. It also enforces the signer policy for
// event types that require one.
func ValidateJobEvent(c Context, before job.State, robotState *robot.State, operatorState *operator.State, ev event.Event) error {
	if err := signerpolicy.Check(c.SignerPolicy, ev, c.ActiveKeys, c.TenantID); err != nil {
		return err
	}

	payload := payloadOf(ev)

	switch ev.Type {
	case "BOOKED":
		return validateBooked(c, payload)

	case "RESERVED":
		return validateReserved(c, before, robotState, payload, ev)

	case "OPERATOR_COVERAGE_RESERVED":
		return validateOperatorCoverage(operatorState, payload)

	case "EVIDENCE_CAPTURED":
		return validateEvidence(c, before, payload)

	case "CLAIM_APPROVED":
		return validateClaim(before, payload)

	case "SETTLED":
		return validateSettled(c, before, payload, ev)

	case "RISK_SCORED":
		return validateRiskScored(before, payload)
	}

	return nil
}

func validateBooked(c Context, payload map[string]any) error {
	if c.Contracts == nil {
		return nil
	}

	templateID := stringField(payload, "templateId")
	policyHash := stringField(payload, "policyHash")

	want, err := c.Contracts.ActivePolicyHash(c.TenantID, templateID)
	if err != nil {
		return err
	}

	if want != "" && policyHash != want {
		return fmt.Errorf("%w: booking policyHash %q does not match compiled contract %q", errs.ErrContractHashMismatch, policyHash, want)
	}

	return nil
}

func validateReserved(c Context, before job.State, robotState *robot.State, payload map[string]any, ev event.Event) error {
	robotID := stringField(payload, "robotId")

	if robotState == nil || robotState.RobotID != robotID {
		return fmt.Errorf("%w: robot %q not found", errs.ErrRobotUnavailable, robotID)
	}

	if robotState.Status != robot.StatusAvailable {
		return fmt.Errorf("%w: robot %q is %s, not available", errs.ErrRobotUnavailable, robotID, robotState.Status)
	}

	if before.SiteID != "" && robotState.ZoneID != "" && payload["zoneId"] != nil {
		if zoneID := stringField(payload, "zoneId"); zoneID != robotState.ZoneID {
			return fmt.Errorf("%w: robot %q is in zone %q, job requires %q", errs.ErrRobotUnavailable, robotID, robotState.ZoneID, zoneID)
		}
	}

	if c.Reservations != nil {
		overlap, err := c.Reservations.HasOverlap(c.TenantID, robotID, before.BookingWindowFrom, before.BookingWindowTo, before.JobID)
		if err != nil {
			return err
		}

		if overlap {
			return fmt.Errorf("%w: robot %q already reserved for an overlapping window", errs.ErrReservationOverlap, robotID)
		}
	}

	return nil
}

func validateOperatorCoverage(operatorState *operator.State, payload map[string]any) error {
	if operatorState == nil {
		return fmt.Errorf("%w: operator not found", errs.ErrOperatorUnavailable)
	}

	if operatorState.Status != operator.StatusOnShift {
		return fmt.Errorf("%w: operator %q is not on shift", errs.ErrOperatorUnavailable, operatorState.OperatorID)
	}

	zoneID := stringField(payload, "zoneId")
	if zoneID != "" && operatorState.ZoneID != zoneID {
		return fmt.Errorf("%w: operator %q covers zone %q, not %q", errs.ErrOperatorUnavailable, operatorState.OperatorID, operatorState.ZoneID, zoneID)
	}

	if operatorState.MaxConcurrent > 0 && operatorState.UsedConcurrent >= operatorState.MaxConcurrent {
		return fmt.Errorf("%w: operator %q at capacity (%d/%d)", errs.ErrOperatorUnavailable, operatorState.OperatorID, operatorState.UsedConcurrent, operatorState.MaxConcurrent)
	}

	return nil
}

// evidenceContentSeverityFloor is the minimum incident.severity that allows
// a VIDEO evidence item when the job's privacy mode is "minimal".
const evidenceContentSeverityFloor = 4

func validateEvidence(c Context, before job.State, payload map[string]any) error {
	contentType := stringField(payload, "contentType")

	if len(c.Evidence.AllowedContentTypes) > 0 && !c.Evidence.AllowedContentTypes[contentType] {
		return fmt.Errorf("%w: %q", errs.ErrEvidenceContentTypeForbidden, contentType)
	}

	if sizeBytes, ok := float64Field(payload, "sizeBytes"); ok && c.Evidence.MaxSizeBytes > 0 {
		if int64(sizeBytes) > c.Evidence.MaxSizeBytes {
			return errs.ErrEvidenceTooLarge
		}
	}

	if c.Evidence.PrivacyMode == "minimal" && contentType == "VIDEO" {
		severity, _ := float64Field(payload, "incidentSeverity")

		if severity < evidenceContentSeverityFloor {
			return fmt.Errorf("%w: VIDEO requires incident.severity >= %d under privacyMode=minimal", errs.ErrEvidenceContentTypeForbidden, evidenceContentSeverityFloor)
		}
	}

	if c.Evidence.MaxEvidencePerJob > 0 && len(before.Evidence) >= c.Evidence.MaxEvidencePerJob {
		return errs.ErrEvidenceQuotaExceeded
	}

	return nil
}

func validateClaim(before job.State, payload map[string]any) error {
	amount, _ := float64Field(payload, "amountCents")

	var jobAmount float64
	if v, ok := before.PolicySnapshot["amountCents"].(float64); ok {
		jobAmount = v
	}

	if jobAmount > 0 && amount > jobAmount {
		return fmt.Errorf("%w: claim amount %v exceeds job amount %v", errs.ErrBadRequest, amount, jobAmount)
	}

	return nil
}

func validateRiskScored(before job.State, payload map[string]any) error {
	sourceEventID := stringField(payload, "sourceEventId")
	if sourceEventID == "" {
		return fmt.Errorf("%w: RISK_SCORED requires sourceEventId", errs.ErrMissingFieldsInRequest)
	}

	if before.LastChainHash == "" {
		return fmt.Errorf("%w: RISK_SCORED requires a prior QUOTE or BOOKED event", errs.ErrBadRequest)
	}

	return nil
}

func validateSettled(c Context, before job.State, payload map[string]any, ev event.Event) error {
	if c.Months != nil {
		closed, err := c.Months.IsClosed(c.TenantID, ev.At, "accrual")
		if err != nil {
			return err
		}

		if closed {
			return fmt.Errorf("%w: %s", errs.ErrMonthClosed, ev.At.Format("2006-01"))
		}
	}

	if c.ProofGateMode == ProofGateOff {
		return nil
	}

	if c.Proof == nil {
		return nil
	}

	ref, status, ok, err := c.Proof.Fresh()
	if err != nil {
		return err
	}

	if c.ProofGateMode == ProofGateWarn {
		return nil
	}

	if !ok {
		return errs.ErrProofRequired
	}

	if status == "INSUFFICIENT_EVIDENCE" {
		holdID := stringField(payload, "holdId")
		if holdID == "" {
			holdID = before.SettlementHoldID
		}

		if holdID == "" || !before.HasForfeiture(holdID) {
			return errs.ErrProofInsufficient
		}
	}

	given := stringField(payload, "settlementProofRef")
	if given == "" {
		return errs.ErrSettlementProofRefRequired
	}

	if given != ref.EventID {
		return fmt.Errorf("%w: settlementProofRef %q does not match fresh proof %q", errs.ErrSettlementProofRefRequired, given, ref.EventID)
	}

	return nil
}
