package settlement

import (
	"github.com/shopspring/decimal"
)

// VerificationStatus is the traffic-light outcome of a run's verification.
type VerificationStatus string

const (
	VerificationGreen VerificationStatus = "green"
	VerificationAmber VerificationStatus = "amber"
	VerificationRed   VerificationStatus = "red"
)

// SettlementStatus is the terminal wallet-side outcome.
type SettlementStatus string

const (
	StatusLocked   SettlementStatus = "locked"
	StatusReleased SettlementStatus = "released"
	StatusRefunded SettlementStatus = "refunded"
)

// DecisionStatus tracks whether a settlement resolved on its own or needs a
// human.
type DecisionStatus string

const (
	DecisionPending              DecisionStatus = "pending"
	DecisionAutoResolved         DecisionStatus = "auto_resolved"
	DecisionManualReviewRequired DecisionStatus = "manual_review_required"
	DecisionManualResolved       DecisionStatus = "manual_resolved"
)

// Policy is a tenant's declarative settlement policy, evaluated against a
// run's verification outcome. Rates are expressed in whole percent
// (0-100); the rows are keyed by (verificationMethod, verificationStatus).
type Policy struct {
	Rules            []Rule
	AutoResolveGreen bool
}

// Rule is one row of the settlement policy table.
type Rule struct {
	VerificationMethod string
	VerificationStatus VerificationStatus
	ReleaseRatePct     int
	AutoResolve        bool
	ReasonCode         string
}

// Decision is the result of evaluating a Policy against a run's outcome.
type Decision struct {
	ShouldAutoResolve  bool
	ReleaseRatePct     int
	ReleaseAmountCents int64
	RefundAmountCents  int64
	SettlementStatus   SettlementStatus
	ReasonCodes        []string
}

// EvaluateSettlementPolicy implements the policy table lookup in spec.md
// §4.5. runStatus is included for symmetry with the spec's signature but
// only terminal runs (completed/failed) should ever reach this function;
// callers are expected to gate on that themselves.
func EvaluateSettlementPolicy(policy Policy, verificationMethod string, verificationStatus VerificationStatus, runStatus string, amountCents int64) Decision {
	rule, found := matchRule(policy, verificationMethod, verificationStatus)

	releaseRatePct := 0
	autoResolve := false
	reasonCodes := []string{}

	switch {
	case found:
		releaseRatePct = rule.ReleaseRatePct
		autoResolve = rule.AutoResolve
		if rule.ReasonCode != "" {
			reasonCodes = append(reasonCodes, rule.ReasonCode)
		}
	case verificationStatus == VerificationGreen:
		releaseRatePct = 100
		autoResolve = policy.AutoResolveGreen
		reasonCodes = append(reasonCodes, "default_green_full_release")
	case verificationStatus == VerificationRed:
		releaseRatePct = 0
		autoResolve = false
		reasonCodes = append(reasonCodes, "default_red_manual_review")
	default:
		releaseRatePct = 50
		autoResolve = false
		reasonCodes = append(reasonCodes, "default_amber_manual_review")
	}

	releaseAmount := applyPct(amountCents, releaseRatePct)
	refundAmount := amountCents - releaseAmount

	status := StatusLocked
	if autoResolve {
		if releaseRatePct >= 100 {
			status = StatusReleased
		} else if releaseRatePct <= 0 {
			status = StatusRefunded
		} else {
			status = StatusReleased
		}
	}

	return Decision{
		ShouldAutoResolve:  autoResolve,
		ReleaseRatePct:     releaseRatePct,
		ReleaseAmountCents: releaseAmount,
		RefundAmountCents:  refundAmount,
		SettlementStatus:   status,
		ReasonCodes:        reasonCodes,
	}
}

func matchRule(policy Policy, method string, status VerificationStatus) (Rule, bool) {
	for _, r := range policy.Rules {
		if r.VerificationMethod == method && r.VerificationStatus == status {
			return r, true
		}
	}

	return Rule{}, false
}

func applyPct(amountCents int64, pct int) int64 {
	if pct <= 0 {
		return 0
	}

	if pct >= 100 {
		return amountCents
	}

	amount := decimal.NewFromInt(amountCents)
	rate := decimal.NewFromInt(int64(pct)).Div(decimal.NewFromInt(100))

	return amount.Mul(rate).Round(0).IntPart()
}

// Milestone is one agreement milestone contributing a release-rate share.
type Milestone struct {
	MilestoneID    string
	ReleaseRatePct int
	Completed      bool
	GatesPassed    bool
}

// Agreement is the subset of a booking/agreement needed to apply milestone
// capping to a policy decision.
type Agreement struct {
	Milestones []Milestone
}

// ApplyMilestoneRelease shrinks decision.ReleaseRatePct to the lesser of the
// policy-derived rate and the sum of applicable (completed, gates-passed)
// milestone rates, and recomputes the cents fields accordingly. Per
// spec.md §4.5, the sum of all milestone rates on an agreement must equal
// 100; this function does not itself enforce that invariant — it is a
// structural invariant enforced when the agreement is created.
func ApplyMilestoneRelease(decision Decision, agreement Agreement, amountCents int64) Decision {
	if len(agreement.Milestones) == 0 {
		return decision
	}

	applicable := 0
	for _, m := range agreement.Milestones {
		if m.Completed && m.GatesPassed {
			applicable += m.ReleaseRatePct
		}
	}

	if applicable >= decision.ReleaseRatePct {
		return decision
	}

	out := decision
	out.ReleaseRatePct = applicable
	out.ReleaseAmountCents = applyPct(amountCents, applicable)
	out.RefundAmountCents = amountCents - out.ReleaseAmountCents

	return out
}
