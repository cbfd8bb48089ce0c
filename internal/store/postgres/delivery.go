package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/settld/core/internal/delivery"
)

// DeliveryStore implements workers.DeliveryStore (plus Enqueue, for the
// artifact worker's delivery-enqueuer path) against the deliveries table,
// the Postgres counterpart to store/memory's in-process DeliveryStore.
type DeliveryStore struct {
	Conn *Connection
}

// Enqueue inserts a new pending delivery row, relying on the dedupe_key
// UNIQUE constraint to make re-enqueuing the same artifact/destination pair
// a no-op rather than a duplicate delivery.
func (d *DeliveryStore) Enqueue(ctx context.Context, row delivery.Delivery) error {
	key := delivery.DedupeKey(row.TenantID, row.DestinationID, row.ArtifactType, row.ArtifactID, row.ArtifactHash)

	_, err := d.Conn.Pool.Exec(ctx, `
		INSERT INTO deliveries (delivery_id, tenant_id, destination_id, artifact_type, artifact_id, artifact_hash,
			scope_key, order_seq, priority, status, attempts, next_attempt_at, created_at, dedupe_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'pending', 0, now(), now(), $10)
		ON CONFLICT (dedupe_key) DO NOTHING`,
		row.DeliveryID, row.TenantID, row.DestinationID, row.ArtifactType, row.ArtifactID, row.ArtifactHash,
		row.ScopeKey, row.OrderSeq, row.Priority, key)
	if err != nil {
		return fmt.Errorf("postgres: enqueue delivery %s: %w", row.DeliveryID, err)
	}

	return nil
}

// ClaimPendingDeliveries implements workers.DeliveryStore, ordering by
// (scope_key, order_seq, priority, artifact_id) to match delivery.OrderKey.
func (d *DeliveryStore) ClaimPendingDeliveries(ctx context.Context, leaseOwner string, max int) ([]*delivery.Delivery, error) {
	rows, err := d.Conn.Pool.Query(ctx, `
		UPDATE deliveries SET status = 'processing'
		WHERE delivery_id IN (
			SELECT delivery_id FROM deliveries
			WHERE status = 'pending' AND next_attempt_at <= now()
			ORDER BY scope_key ASC, order_seq ASC, priority ASC, artifact_id ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING delivery_id, tenant_id, destination_id, artifact_type, artifact_id, artifact_hash,
			scope_key, order_seq, priority, status, attempts, next_attempt_at, last_error, created_at`, max)
	if err != nil {
		return nil, fmt.Errorf("postgres: claim deliveries: %w", err)
	}
	defer rows.Close()

	var out []*delivery.Delivery

	for rows.Next() {
		var row delivery.Delivery

		if err := rows.Scan(&row.DeliveryID, &row.TenantID, &row.DestinationID, &row.ArtifactType, &row.ArtifactID,
			&row.ArtifactHash, &row.ScopeKey, &row.OrderSeq, &row.Priority, &row.Status, &row.Attempts,
			&row.NextAttemptAt, &row.LastError, &row.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan delivery: %w", err)
		}

		out = append(out, &row)
	}

	_ = leaseOwner // Postgres rows carry no per-row lease owner column; SKIP LOCKED is the claim.

	return out, rows.Err()
}

// MarkDeliveryAcked implements workers.DeliveryStore.
func (d *DeliveryStore) MarkDeliveryAcked(ctx context.Context, deliveryID string) error {
	_, err := d.Conn.Pool.Exec(ctx, `UPDATE deliveries SET status = 'acked' WHERE delivery_id = $1`, deliveryID)
	if err != nil {
		return fmt.Errorf("postgres: mark delivery acked %s: %w", deliveryID, err)
	}

	return nil
}

// MarkDeliveryRetry implements workers.DeliveryStore.
func (d *DeliveryStore) MarkDeliveryRetry(ctx context.Context, deliveryID string, nextAttemptAt time.Time, lastError string) error {
	_, err := d.Conn.Pool.Exec(ctx, `
		UPDATE deliveries SET status = 'pending', attempts = attempts + 1, next_attempt_at = $2, last_error = $3
		WHERE delivery_id = $1`, deliveryID, nextAttemptAt, lastError)
	if err != nil {
		return fmt.Errorf("postgres: mark delivery retry %s: %w", deliveryID, err)
	}

	return nil
}

// MarkDeliveryFailed implements workers.DeliveryStore.
func (d *DeliveryStore) MarkDeliveryFailed(ctx context.Context, deliveryID string, lastError string) error {
	_, err := d.Conn.Pool.Exec(ctx, `
		UPDATE deliveries SET status = 'failed', last_error = $2 WHERE delivery_id = $1`, deliveryID, lastError)
	if err != nil {
		return fmt.Errorf("postgres: mark delivery failed %s: %w", deliveryID, err)
	}

	return nil
}
