package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/settld/core/internal/artifact"
	"github.com/settld/core/internal/delivery"
)

// DeliveryStore is an in-memory delivery.Delivery row store implementing
// workers.DeliveryStore, mirroring the same claim/ack/fail shape as Store's
// outbox methods.
type DeliveryStore struct {
	mu    sync.Mutex
	rows  map[string]*delivery.Delivery
	dedup map[string]bool
}

// NewDeliveryStore constructs an empty DeliveryStore.
func NewDeliveryStore() *DeliveryStore {
	return &DeliveryStore{rows: map[string]*delivery.Delivery{}, dedup: map[string]bool{}}
}

// Enqueue inserts a new pending delivery row, rejecting a duplicate dedupe
// key the way a Postgres UNIQUE constraint would.
func (d *DeliveryStore) Enqueue(row delivery.Delivery) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := delivery.DedupeKey(row.TenantID, row.DestinationID, row.ArtifactType, row.ArtifactID, row.ArtifactHash)
	if d.dedup[key] {
		return nil
	}

	d.dedup[key] = true
	row.Status = delivery.StatusPending
	d.rows[row.DeliveryID] = &row

	return nil
}

// ClaimPendingDeliveries implements workers.DeliveryStore: claims pending
// rows whose NextAttemptAt has passed, ordered by (scopeKey, orderSeq,
// priority, artifactId).
func (d *DeliveryStore) ClaimPendingDeliveries(_ context.Context, _ string, max int) ([]*delivery.Delivery, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now().UTC()

	var eligible []*delivery.Delivery

	for _, row := range d.rows {
		if row.Status != delivery.StatusPending {
			continue
		}

		if row.NextAttemptAt.After(now) {
			continue
		}

		eligible = append(eligible, row)
	}

	sort.Slice(eligible, func(i, j int) bool {
		return delivery.OrderKey(eligible[i].ScopeKey, eligible[i].OrderSeq, eligible[i].Priority, eligible[i].ArtifactID) <
			delivery.OrderKey(eligible[j].ScopeKey, eligible[j].OrderSeq, eligible[j].Priority, eligible[j].ArtifactID)
	})

	if len(eligible) > max {
		eligible = eligible[:max]
	}

	for _, row := range eligible {
		row.Status = delivery.StatusProcessing
	}

	return eligible, nil
}

// MarkDeliveryAcked implements workers.DeliveryStore.
func (d *DeliveryStore) MarkDeliveryAcked(_ context.Context, deliveryID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	row, ok := d.rows[deliveryID]
	if !ok {
		return fmt.Errorf("memory delivery store: unknown delivery %s", deliveryID)
	}

	row.Status = delivery.StatusAcked

	return nil
}

// MarkDeliveryRetry implements workers.DeliveryStore.
func (d *DeliveryStore) MarkDeliveryRetry(_ context.Context, deliveryID string, nextAttemptAt time.Time, lastError string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	row, ok := d.rows[deliveryID]
	if !ok {
		return fmt.Errorf("memory delivery store: unknown delivery %s", deliveryID)
	}

	row.Attempts++
	row.NextAttemptAt = nextAttemptAt
	row.LastError = lastError
	row.Status = delivery.StatusPending

	return nil
}

// MarkDeliveryFailed implements workers.DeliveryStore.
func (d *DeliveryStore) MarkDeliveryFailed(_ context.Context, deliveryID string, lastError string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	row, ok := d.rows[deliveryID]
	if !ok {
		return fmt.Errorf("memory delivery store: unknown delivery %s", deliveryID)
	}

	row.Status = delivery.StatusFailed
	row.LastError = lastError

	return nil
}

// DeliveryEnqueuer implements workers.DeliveryEnqueuer by fanning a freshly
// built artifact out to every destination configured for its tenant,
// assigning each its own scope-ordered delivery row.
type DeliveryEnqueuer struct {
	Rows         *DeliveryStore
	Destinations *Destinations
}

// EnqueueForArtifact implements workers.DeliveryEnqueuer.
func (e *DeliveryEnqueuer) EnqueueForArtifact(tenantID string, ref artifact.Ref) error {
	for i, dest := range e.Destinations.ForTenant(tenantID) {
		row := delivery.Delivery{
			TenantID:      tenantID,
			DeliveryID:    uuid.NewString(),
			DestinationID: dest.DestinationID,
			ArtifactType:  ref.ArtifactType,
			ArtifactID:    ref.ArtifactID,
			ArtifactHash:  ref.ArtifactHash,
			ScopeKey:      dest.ScopeKey,
			OrderSeq:      int64(i),
			Priority:      dest.Priority,
			CreatedAt:     ref.Body.GeneratedAt,
		}

		if err := e.Rows.Enqueue(row); err != nil {
			return fmt.Errorf("memory delivery enqueuer: enqueue %s for %s: %w", ref.ArtifactID, dest.DestinationID, err)
		}
	}

	return nil
}

// AdvisoryLock is an in-memory stand-in for a Postgres advisory lock: a
// single flag per key, safe for one process.
type AdvisoryLock struct {
	mu     sync.Mutex
	locked map[string]bool
}

// NewAdvisoryLock constructs an empty AdvisoryLock.
func NewAdvisoryLock() *AdvisoryLock {
	return &AdvisoryLock{locked: map[string]bool{}}
}

// TryAcquire implements workers.AdvisoryLock.
func (l *AdvisoryLock) TryAcquire(_ context.Context, key string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.locked[key] {
		return nil, false, nil
	}

	l.locked[key] = true

	release := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.locked, key)
	}

	return release, true, nil
}
