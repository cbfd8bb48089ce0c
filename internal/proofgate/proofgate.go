// Package proofgate recomputes the zone-coverage "facts hash" for a job at
// its latest completion anchor and checks whether a PROOF_EVALUATED event
// is still fresh against that recomputation, per spec.md §4.6. It also
// derives the deterministic hold id used by SETTLEMENT_HELD/RELEASED/
// FORFEITED events.
package proofgate

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/settld/core/internal/domain/event"
	"github.com/settld/core/internal/domain/validate"
	"github.com/settld/core/pkg/canonicaljson"
)

// CompletionAnchor is the chainHash of the latest EXECUTION_COMPLETED /
// JOB_EXECUTION_COMPLETED event in a job's stream.
func CompletionAnchor(events []event.Event) (chainHash string, ok bool) {
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type == "EXECUTION_COMPLETED" || events[i].Type == "JOB_EXECUTION_COMPLETED" {
			return events[i].ChainHash, true
		}
	}

	return "", false
}

// ZoneCoverageFacts is the normalized set of facts the proof is computed
// over: every zone the job's telemetry/evidence reported covered, up to and
// including the completion anchor.
type ZoneCoverageFacts struct {
	JobID              string   `json:"jobId"`
	AnchorChainHash    string   `json:"anchorChainHash"`
	CustomerPolicyHash string   `json:"customerPolicyHash"`
	OperatorPolicyHash string   `json:"operatorPolicyHash"`
	ZonesCovered       []string `json:"zonesCovered"`
	RequiredZones      []string `json:"requiredZones"`
}

// FactsHash returns sha256(canonicalJson(facts)), hex-encoded.
func FactsHash(facts ZoneCoverageFacts) (string, error) {
	sort.Strings(facts.ZonesCovered)
	sort.Strings(facts.RequiredZones)

	canon, err := canonicaljson.Marshal(facts)
	if err != nil {
		return "", fmt.Errorf("proofgate: canonicalize facts: %w", err)
	}

	sum := sha256.Sum256(canon)

	return hex.EncodeToString(sum[:]), nil
}

// VerifyZoneCoverageProofV1 walks events up to (and including) anchorHash,
// collecting every ZONE_COVERAGE_REPORTED zone, and returns the resulting
// facts and their hash. It does not itself decide PASS/INSUFFICIENT_EVIDENCE
// — that is a worker decision (internal/outbox/workers/proof) folded back
// into a PROOF_EVALUATED event which this package then checks for freshness.
func VerifyZoneCoverageProofV1(jobID string, events []event.Event, anchorHash, customerPolicyHash, operatorPolicyHash string, requiredZones []string) (ZoneCoverageFacts, string, error) {
	facts := ZoneCoverageFacts{
		JobID:              jobID,
		AnchorChainHash:    anchorHash,
		CustomerPolicyHash: customerPolicyHash,
		OperatorPolicyHash: operatorPolicyHash,
		RequiredZones:      requiredZones,
	}

	seen := map[string]bool{}

	for _, ev := range events {
		if ev.Type == "ZONE_COVERAGE_REPORTED" {
			if payload, ok := ev.Payload.(map[string]any); ok {
				if zone, ok := payload["zoneId"].(string); ok && !seen[zone] {
					seen[zone] = true
					facts.ZonesCovered = append(facts.ZonesCovered, zone)
				}
			}
		}

		if ev.ChainHash == anchorHash {
			break
		}
	}

	hash, err := FactsHash(facts)
	if err != nil {
		return ZoneCoverageFacts{}, "", err
	}

	return facts, hash, nil
}

// HoldID derives the deterministic settlement hold identifier:
// "hold_" || sha256(completionChainHash || customerPolicyHash).
func HoldID(completionChainHash, customerPolicyHash string) string {
	h := sha256.New()
	h.Write([]byte(completionChainHash))
	h.Write([]byte(customerPolicyHash))

	return "hold_" + hex.EncodeToString(h.Sum(nil))
}

// Checker implements validate.ProofChecker for one job's event stream,
// bound to that job (JobID and Events) at construction time.
type Checker struct {
	JobID              string
	Events             []event.Event
	CustomerPolicyHash string
	OperatorPolicyHash string
	RequiredZones      []string
}

// Fresh recomputes the facts hash at the job's latest completion anchor and
// returns the freshest matching PROOF_EVALUATED, if any exists since that
// anchor. A PROOF_EVALUATED recorded before the anchor (i.e. stale — a new
// completion happened after it was computed) is not considered.
func (c Checker) Fresh() (validate.ProofRef, string, bool, error) {
	anchor, ok := CompletionAnchor(c.Events)
	if !ok {
		return validate.ProofRef{}, "", false, nil
	}

	_, factsHash, err := VerifyZoneCoverageProofV1(c.JobID, c.Events, anchor, c.CustomerPolicyHash, c.OperatorPolicyHash, c.RequiredZones)
	if err != nil {
		return validate.ProofRef{}, "", false, err
	}

	anchorIdx := -1

	for i, ev := range c.Events {
		if ev.ChainHash == anchor {
			anchorIdx = i
			break
		}
	}

	for i := len(c.Events) - 1; i > anchorIdx; i-- {
		ev := c.Events[i]
		if ev.Type != "PROOF_EVALUATED" {
			continue
		}

		payload, _ := ev.Payload.(map[string]any)
		if payload == nil {
			continue
		}

		evaluatedAtChainHash, _ := payload["evaluatedAtChainHash"].(string)
		customerPolicyHash, _ := payload["customerPolicyHash"].(string)
		gotFactsHash, _ := payload["factsHash"].(string)
		status, _ := payload["status"].(string)

		if evaluatedAtChainHash == anchor && customerPolicyHash == c.CustomerPolicyHash && gotFactsHash == factsHash {
			return validate.ProofRef{
				EventID:              ev.ID,
				EvaluatedAtChainHash: evaluatedAtChainHash,
				PayloadHash:          ev.PayloadHash,
				FactsHash:            gotFactsHash,
				CustomerPolicyHash:   customerPolicyHash,
			}, status, true, nil
		}

		// A PROOF_EVALUATED exists for this anchor but the hash no longer
		// matches (new facts arrived since it was computed) — stale.
		if evaluatedAtChainHash == anchor {
			return validate.ProofRef{}, "", false, nil
		}
	}

	return validate.ProofRef{}, "", false, nil
}
