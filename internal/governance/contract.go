// Package governance implements contracts-as-code lifecycle (draft, publish,
// sign, activate), the server-signer key registry, and tenant policy
// overrides — all three live in event streams the same way every other
// settld aggregate does, grounded on internal/domain/event and reduced the
// same way internal/domain/job is reduced.
package governance

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/settld/core/internal/domain/event"
	"github.com/settld/core/pkg/canonicaljson"
	"github.com/settld/core/pkg/errs"
)

func hashHex(b []byte) string {
	sum := sha256.Sum256(b)

	return hex.EncodeToString(sum[:])
}

// ContractStatus is a contract document's lifecycle stage.
type ContractStatus string

const (
	ContractDraft     ContractStatus = "draft"
	ContractPublished ContractStatus = "published"
	ContractSigned    ContractStatus = "signed"
	ContractActive    ContractStatus = "active"
)

// ContractState is the reduced state of one contract aggregate.
type ContractState struct {
	ContractID   string
	Status       ContractStatus
	DocJSON      map[string]any
	ContractHash string
	SignedBy     []string
	RequiredBy   []string
	PolicyHash   string
	CompilerID   string
	LastChainHash string
}

// ContractHash returns sha256(canonicalJson(doc)) hex-encoded — the value a
// CONTRACT_PUBLISHED event must carry; ReduceContract rejects a publish whose
// contractHash differs from it.
func ContractHash(doc map[string]any) (string, error) {
	canon, err := canonicaljson.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("governance: canonicalize contract doc: %w", err)
	}

	return hashHex(canon), nil
}

// ReduceContract folds a contract stream into its current state.
func ReduceContract(events []event.Event) (ContractState, error) {
	var s ContractState

	for _, ev := range events {
		if err := applyContract(&s, ev); err != nil {
			return ContractState{}, err
		}

		s.LastChainHash = ev.ChainHash
	}

	return s, nil
}

func applyContract(s *ContractState, ev event.Event) error {
	payload, _ := ev.Payload.(map[string]any)

	switch ev.Type {
	case "CONTRACT_DRAFTED":
		s.ContractID = ev.StreamID
		s.Status = ContractDraft

		if doc, ok := payload["doc"].(map[string]any); ok {
			s.DocJSON = doc
		}

		if req, ok := payload["requiredSigners"].([]any); ok {
			s.RequiredBy = toStrings(req)
		}

		return nil

	case "CONTRACT_PUBLISHED":
		if s.Status != ContractDraft {
			return fmt.Errorf("%w: contract %s must be draft to publish, is %s", errs.ErrIllegalTransition, s.ContractID, s.Status)
		}

		hash, err := ContractHash(s.DocJSON)
		if err != nil {
			return err
		}

		published, _ := payload["contractHash"].(string)
		if published != hash {
			return fmt.Errorf("%w: published contractHash does not match recomputed doc hash", errs.ErrContractHashMismatch)
		}

		s.Status = ContractPublished
		s.ContractHash = hash

		return nil

	case "CONTRACT_SIGNED":
		if s.Status != ContractPublished && s.Status != ContractSigned {
			return fmt.Errorf("%w: contract %s must be published before signing", errs.ErrIllegalTransition, s.ContractID)
		}

		if signer, ok := payload["signerId"].(string); ok {
			s.SignedBy = appendUnique(s.SignedBy, signer)
		}

		s.Status = ContractSigned

		return nil

	case "CONTRACT_ACTIVATED":
		if !allSigned(s.RequiredBy, s.SignedBy) {
			return fmt.Errorf("%w: contract %s is missing required signatures", errs.ErrIllegalTransition, s.ContractID)
		}

		assignString(&s.PolicyHash, payload, "policyHash")
		assignString(&s.CompilerID, payload, "compilerId")
		s.Status = ContractActive

		return nil
	}

	return nil
}

func allSigned(required, signed []string) bool {
	have := make(map[string]bool, len(signed))
	for _, s := range signed {
		have[s] = true
	}

	for _, r := range required {
		if !have[r] {
			return false
		}
	}

	return true
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}

	return append(list, v)
}

func toStrings(vs []any) []string {
	out := make([]string, 0, len(vs))

	for _, v := range vs {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}

	return out
}

func assignString(dst *string, payload map[string]any, key string) {
	if payload == nil {
		return
	}

	if v, ok := payload[key].(string); ok {
		*dst = v
	}
}
