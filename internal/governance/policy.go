package governance

import (
	"time"

	"github.com/settld/core/internal/domain/event"
)

// PolicyOverride is one effective-dated tenant policy value, e.g. the
// month-close hold policy mode.
type PolicyOverride struct {
	Key           string
	Value         map[string]any
	EffectiveFrom time.Time
	CommittedAt   time.Time
}

// TenantPolicyState is every override ever recorded for one tenant's
// governance stream, grouped by key.
type TenantPolicyState struct {
	Overrides     map[string][]PolicyOverride
	LastChainHash string
}

// ReduceTenantPolicy folds a tenant governance stream's
// TENANT_POLICY_OVERRIDE_SET events.
func ReduceTenantPolicy(events []event.Event) (TenantPolicyState, error) {
	s := TenantPolicyState{Overrides: map[string][]PolicyOverride{}}

	for _, ev := range events {
		if ev.Type != "TENANT_POLICY_OVERRIDE_SET" {
			s.LastChainHash = ev.ChainHash

			continue
		}

		payload, _ := ev.Payload.(map[string]any)

		key, _ := payload["key"].(string)
		value, _ := payload["value"].(map[string]any)

		effectiveFrom := ev.At
		if v, ok := payload["effectiveFrom"].(string); ok {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				effectiveFrom = t
			}
		}

		s.Overrides[key] = append(s.Overrides[key], PolicyOverride{
			Key:           key,
			Value:         value,
			EffectiveFrom: effectiveFrom,
			CommittedAt:   ev.At,
		})

		s.LastChainHash = ev.ChainHash
	}

	return s, nil
}

// EffectiveAt selects the override for key whose EffectiveFrom is the
// latest one strictly before periodEnd — "selection picks the latest
// override with effectiveFrom < periodEnd".
func (s TenantPolicyState) EffectiveAt(key string, periodEnd time.Time) (PolicyOverride, bool) {
	var best PolicyOverride

	found := false

	for _, o := range s.Overrides[key] {
		if !o.EffectiveFrom.Before(periodEnd) {
			continue
		}

		if !found || o.EffectiveFrom.After(best.EffectiveFrom) {
			best = o
			found = true
		}
	}

	return best, found
}
