package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/settld/core/pkg/errs"
)

// RetentionCounters is the subset of internal/metrics this worker reports
// through, kept as a narrow interface so workers never import prometheus
// directly.
type RetentionCounters interface {
	IncMaintenanceRun(kind string)
	AddPurged(table string, n int)
}

// RetentionPurger deletes expired rows from one maintenance table and
// reports how many were removed, bounded by batchSize.
type RetentionPurger interface {
	PurgeExpiredIngestRecords(ctx context.Context, now time.Time, batchSize int) (int, error)
	PurgeExpiredDeliveries(ctx context.Context, now time.Time, batchSize int) (int, error)
	PurgeExpiredDeliveryReceipts(ctx context.Context, now time.Time, batchSize int) (int, error)
}

// AdvisoryLock serializes the retention sweep across every worker process —
// a Postgres advisory lock in production (RETENTION_CLEANUP_ADVISORY_LOCK_KEY)
// or an in-memory flag in tests/local dev, per spec.md's "Advisory lock ...
// serializes retention" shared-resources note.
type AdvisoryLock interface {
	TryAcquire(ctx context.Context, key string) (release func(), acquired bool, err error)
}

// AdvisoryLockKey is the fixed advisory-lock key name for retention cleanup.
const AdvisoryLockKey = "RETENTION_CLEANUP_ADVISORY_LOCK_KEY"

// RetentionCleanup purges expired ingest_records, deliveries, and
// delivery_receipts under a mutual-exclusion lock, bounded by a per-run
// batch budget. It is not outbox-message driven — it runs on its own ticker
// in cmd/worker, since there is no single aggregate event to react to.
type RetentionCleanup struct {
	Deps
	Purger    RetentionPurger
	Lock      AdvisoryLock
	Metrics   RetentionCounters
	BatchSize int
}

// Run attempts to acquire the advisory lock and, if successful, purges one
// batch from each expired table. A lock already held by another process is
// reported as errs.ErrMaintenanceAlreadyRunning, not a failure.
func (w *RetentionCleanup) Run(ctx context.Context) error {
	batch := w.BatchSize
	if batch <= 0 {
		batch = 500
	}

	release, acquired, err := w.Lock.TryAcquire(ctx, AdvisoryLockKey)
	if err != nil {
		return fmt.Errorf("retentioncleanup: acquire lock: %w", err)
	}

	if !acquired {
		return errs.ErrMaintenanceAlreadyRunning
	}

	defer release()

	now := w.now()

	ingestN, err := w.Purger.PurgeExpiredIngestRecords(ctx, now, batch)
	if err != nil {
		return fmt.Errorf("retentioncleanup: purge ingest_records: %w", err)
	}

	deliveryN, err := w.Purger.PurgeExpiredDeliveries(ctx, now, batch)
	if err != nil {
		return fmt.Errorf("retentioncleanup: purge deliveries: %w", err)
	}

	receiptN, err := w.Purger.PurgeExpiredDeliveryReceipts(ctx, now, batch)
	if err != nil {
		return fmt.Errorf("retentioncleanup: purge delivery_receipts: %w", err)
	}

	if w.Metrics != nil {
		w.Metrics.IncMaintenanceRun("retention_cleanup")
		w.Metrics.AddPurged("ingest_records", ingestN)
		w.Metrics.AddPurged("deliveries", deliveryN)
		w.Metrics.AddPurged("delivery_receipts", receiptN)
	}

	return nil
}
