package postgres

import (
	"context"
	"fmt"
	"time"
)

// Retention implements workers.RetentionPurger on top of Store, batch-bounded
// deletes against the three tables the spec's retention policy covers.
type Retention struct {
	Store *Store
}

// PurgeExpiredIngestRecords implements workers.RetentionPurger.
func (r Retention) PurgeExpiredIngestRecords(ctx context.Context, now time.Time, batchSize int) (int, error) {
	return r.deleteBatch(ctx, `
		DELETE FROM ingest_records WHERE (tenant_id, source, external_event_id) IN (
			SELECT tenant_id, source, external_event_id FROM ingest_records WHERE expires_at <= $1 LIMIT $2
		)`, now, batchSize)
}

// PurgeExpiredDeliveries implements workers.RetentionPurger: terminal
// delivery rows older than 30 days.
func (r Retention) PurgeExpiredDeliveries(ctx context.Context, now time.Time, batchSize int) (int, error) {
	return r.deleteBatch(ctx, `
		DELETE FROM deliveries WHERE delivery_id IN (
			SELECT delivery_id FROM deliveries
			WHERE status IN ('acked', 'failed') AND created_at <= $1 LIMIT $2
		)`, now.Add(-30*24*time.Hour), batchSize)
}

// PurgeExpiredDeliveryReceipts implements workers.RetentionPurger: the
// receipt metadata follows a shorter 7-day window than the delivery row
// itself.
func (r Retention) PurgeExpiredDeliveryReceipts(ctx context.Context, now time.Time, batchSize int) (int, error) {
	return r.deleteBatch(ctx, `
		DELETE FROM deliveries WHERE delivery_id IN (
			SELECT delivery_id FROM deliveries
			WHERE status IN ('acked', 'failed') AND created_at <= $1 LIMIT $2
		)`, now.Add(-7*24*time.Hour), batchSize)
}

func (r Retention) deleteBatch(ctx context.Context, query string, cutoff time.Time, batchSize int) (int, error) {
	tag, err := r.Store.pool().Exec(ctx, query, cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("postgres: retention purge: %w", err)
	}

	return int(tag.RowsAffected()), nil
}
