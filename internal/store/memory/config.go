package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/settld/core/internal/artifact"
	"github.com/settld/core/internal/delivery"
	"github.com/settld/core/internal/outbox/workers"
)

// Destinations is a fixed, in-memory DestinationResolver keyed by
// (tenantID, destinationID) — a fixture stand-in for the destination
// configuration table a Postgres deployment would query instead.
type Destinations struct {
	mu   sync.Mutex
	byID map[string]delivery.Destination
}

// NewDestinations constructs an empty Destinations resolver.
func NewDestinations() *Destinations {
	return &Destinations{byID: map[string]delivery.Destination{}}
}

// Put registers a destination.
func (d *Destinations) Put(dest delivery.Destination) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.byID[dest.TenantID+"/"+dest.DestinationID] = dest
}

// Resolve implements workers.DestinationResolver.
func (d *Destinations) Resolve(_ context.Context, tenantID, destinationID string) (delivery.Destination, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	dest, ok := d.byID[tenantID+"/"+destinationID]
	if !ok {
		return delivery.Destination{}, fmt.Errorf("memory destinations: unknown destination %s/%s", tenantID, destinationID)
	}

	return dest, nil
}

// ForTenant returns every destination configured for tenantID, in no
// particular order — used by the artifact worker's delivery enqueuer to fan
// a freshly built artifact out to all of a tenant's configured rails.
func (d *Destinations) ForTenant(tenantID string) []delivery.Destination {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []delivery.Destination

	for _, dest := range d.byID {
		if dest.TenantID == tenantID {
			out = append(out, dest)
		}
	}

	return out
}

// ArtifactIndex is an in-memory artifact.Index keyed by (tenantID, artifactID).
type ArtifactIndex struct {
	mu   sync.Mutex
	refs map[string]artifact.Ref
}

// NewArtifactIndex constructs an empty ArtifactIndex.
func NewArtifactIndex() *ArtifactIndex {
	return &ArtifactIndex{refs: map[string]artifact.Ref{}}
}

// Put implements artifact.Index.
func (a *ArtifactIndex) Put(_ context.Context, ref artifact.Ref) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.refs[ref.TenantID+"/"+ref.ArtifactID] = ref

	return nil
}

// Get implements artifact.Index.
func (a *ArtifactIndex) Get(_ context.Context, tenantID, artifactID string) (artifact.Ref, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ref, ok := a.refs[tenantID+"/"+artifactID]

	return ref, ok, nil
}

// Load implements workers.ArtifactBodyLoader on top of the same index the
// Artifact worker populates.
func (a *ArtifactIndex) Load(ctx context.Context, tenantID, artifactID string) (any, error) {
	ref, ok, err := a.Get(ctx, tenantID, artifactID)
	if err != nil {
		return nil, err
	}

	if !ok {
		return nil, fmt.Errorf("memory artifact index: unknown artifact %s/%s", tenantID, artifactID)
	}

	return ref.Body, nil
}

// FinancePacks is an in-memory workers.FinancePackStore.
type FinancePacks struct {
	mu   sync.Mutex
	blob map[string][]byte
}

// NewFinancePacks constructs an empty FinancePacks store.
func NewFinancePacks() *FinancePacks {
	return &FinancePacks{blob: map[string][]byte{}}
}

// Put implements workers.FinancePackStore.
func (f *FinancePacks) Put(tenantID, month string, zipBytes []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := tenantID + "/" + month
	f.blob[key] = zipBytes

	return "memory://financepacks/" + key, nil
}

// Get returns a previously stored finance pack zip, for tests.
func (f *FinancePacks) Get(tenantID, month string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, ok := f.blob[tenantID+"/"+month]

	return b, ok
}

// AccountMap is a fixed in-memory workers.AccountMap fixture — the
// pluggable stand-in for the finance account-map's concrete external
// format, which spec.md explicitly leaves out of scope.
type AccountMap struct {
	mu       sync.Mutex
	byTenant map[string]map[string]string
}

// NewAccountMap constructs an empty AccountMap.
func NewAccountMap() *AccountMap {
	return &AccountMap{byTenant: map[string]map[string]string{}}
}

// Put registers a tenant's account map.
func (a *AccountMap) Put(tenantID string, accounts map[string]string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.byTenant[tenantID] = accounts
}

// Resolve implements workers.AccountMap.
func (a *AccountMap) Resolve(_ context.Context, tenantID string) (map[string]string, bool, error) {
	return a.resolve(tenantID)
}

func (a *AccountMap) resolve(tenantID string) (map[string]string, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	m, ok := a.byTenant[tenantID]

	return m, ok, nil
}

// HoldPolicy is a fixed in-memory workers.HoldPolicyResolver fixture.
type HoldPolicy struct {
	mu    sync.Mutex
	mode  map[string]workers.HoldPolicyMode
	holds map[string][]workers.OpenHold
}

// NewHoldPolicy constructs a HoldPolicy defaulting every tenant to
// block_any_open_holds, the conservative default.
func NewHoldPolicy() *HoldPolicy {
	return &HoldPolicy{mode: map[string]workers.HoldPolicyMode{}, holds: map[string][]workers.OpenHold{}}
}

// SetMode overrides a tenant's hold policy mode.
func (h *HoldPolicy) SetMode(tenantID string, mode workers.HoldPolicyMode) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.mode[tenantID] = mode
}

// SetOpenHolds sets the open holds a tenant's month currently has.
func (h *HoldPolicy) SetOpenHolds(tenantID, month string, holds []workers.OpenHold) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.holds[tenantID+"/"+month] = holds
}

// EffectiveHoldPolicy implements workers.HoldPolicyResolver.
func (h *HoldPolicy) EffectiveHoldPolicy(tenantID string, _ string) (workers.HoldPolicyMode, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	mode, ok := h.mode[tenantID]
	if !ok {
		return workers.HoldPolicyBlockAnyOpen, nil
	}

	return mode, nil
}

// OpenHolds implements workers.HoldPolicyResolver.
func (h *HoldPolicy) OpenHolds(tenantID, month string) ([]workers.OpenHold, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.holds[tenantID+"/"+month], nil
}

// EvidenceObjects is an in-memory workers.EvidenceObjectStore fixture: it
// just remembers which refs were "deleted" so tests can assert on it.
type EvidenceObjects struct {
	mu      sync.Mutex
	deleted map[string]bool
}

// NewEvidenceObjects constructs an empty EvidenceObjects store.
func NewEvidenceObjects() *EvidenceObjects {
	return &EvidenceObjects{deleted: map[string]bool{}}
}

// Delete implements workers.EvidenceObjectStore.
func (e *EvidenceObjects) Delete(_ context.Context, tenantID, evidenceRef string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.deleted[tenantID+"/"+evidenceRef] = true

	return nil
}

// Deleted reports whether Delete was called for (tenantID, evidenceRef).
func (e *EvidenceObjects) Deleted(tenantID, evidenceRef string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.deleted[tenantID+"/"+evidenceRef]
}

// EvidenceRetention is a fixed in-memory workers.EvidenceRetentionPolicy,
// defaulting every tenant to a 90-day retention window.
type EvidenceRetention struct {
	mu   sync.Mutex
	days map[string]int
}

// NewEvidenceRetention constructs an EvidenceRetention policy.
func NewEvidenceRetention() *EvidenceRetention {
	return &EvidenceRetention{days: map[string]int{}}
}

// SetDays overrides a tenant's retention window.
func (e *EvidenceRetention) SetDays(tenantID string, days int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.days[tenantID] = days
}

// RetentionDays implements workers.EvidenceRetentionPolicy.
func (e *EvidenceRetention) RetentionDays(tenantID string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if d, ok := e.days[tenantID]; ok {
		return d, nil
	}

	return 90, nil
}
