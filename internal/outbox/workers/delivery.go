package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/settld/core/internal/delivery"
)

// DeliveryStore is the delivery-row persistence surface the Delivery worker
// drives. It is independent of OutboxStore because delivery rows are not
// outbox messages — they have their own ordering and retry shape per
// spec.md §4.8.
type DeliveryStore interface {
	ClaimPendingDeliveries(ctx context.Context, leaseOwner string, max int) ([]*delivery.Delivery, error)
	MarkDeliveryAcked(ctx context.Context, deliveryID string) error
	MarkDeliveryRetry(ctx context.Context, deliveryID string, nextAttemptAt time.Time, lastError string) error
	MarkDeliveryFailed(ctx context.Context, deliveryID string, lastError string) error
}

// DestinationResolver looks up a delivery's destination configuration.
type DestinationResolver interface {
	Resolve(ctx context.Context, tenantID, destinationID string) (delivery.Destination, error)
}

// ArtifactBodyLoader loads the artifact body a delivery row references, by
// (tenantId, artifactId), so the worker can build the wire payload.
type ArtifactBodyLoader interface {
	Load(ctx context.Context, tenantID, artifactID string) (any, error)
}

// DeliveryMetrics reports per-attempt outcomes.
type DeliveryMetrics interface {
	ObserveDelivery(kind, outcome string)
	IncDLQ(topic string)
}

// MaxDeliveryAttempts is the attempt count after which a delivery moves to
// failed/DLQ rather than retrying again.
const MaxDeliveryAttempts = 10

// Delivery claims pending delivery rows in (scopeKey, orderSeq, priority,
// artifactId) order and attempts to hand each to its destination transport,
// applying capped exponential backoff with jitter on failure.
type Delivery struct {
	Deps
	Store        DeliveryStore
	Destinations DestinationResolver
	Artifacts    ArtifactBodyLoader
	Webhook      delivery.Transport
	S3           delivery.Transport
	Pacer        *delivery.Pacer
	Backoff      delivery.Backoff
	Metrics      DeliveryMetrics
}

// Tick claims up to maxMessages pending deliveries and attempts each.
func (w *Delivery) Tick(ctx context.Context, maxMessages int) (int, error) {
	rows, err := w.Store.ClaimPendingDeliveries(ctx, "delivery-worker", maxMessages)
	if err != nil {
		return 0, fmt.Errorf("delivery: claim: %w", err)
	}

	processed := 0

	for _, row := range rows {
		if err := w.attempt(ctx, row); err != nil {
			w.logger().Warnf("delivery: %s failed: %v", row.DeliveryID, err)
		}

		processed++
	}

	return processed, nil
}

func (w *Delivery) attempt(ctx context.Context, row *delivery.Delivery) error {
	dest, err := w.Destinations.Resolve(ctx, row.TenantID, row.DestinationID)
	if err != nil {
		return w.fail(ctx, row, dest.Kind, fmt.Sprintf("resolve destination: %v", err))
	}

	if w.Pacer != nil && !w.Pacer.Allow(row.DestinationID) {
		return w.Store.MarkDeliveryRetry(ctx, row.DeliveryID, w.now().Add(time.Second), "paced")
	}

	body, err := w.Artifacts.Load(ctx, row.TenantID, row.ArtifactID)
	if err != nil {
		return w.fail(ctx, row, dest.Kind, fmt.Sprintf("load artifact: %v", err))
	}

	transport := w.transportFor(dest.Kind)
	if transport == nil {
		return w.fail(ctx, row, dest.Kind, fmt.Sprintf("no transport registered for kind %q", dest.Kind))
	}

	ok, statusOrErr, err := transport.Send(ctx, dest, body)
	if err != nil {
		return w.retryOrFail(ctx, row, dest.Kind, err.Error())
	}

	if !ok {
		return w.retryOrFail(ctx, row, dest.Kind, fmt.Sprintf("destination responded %s", statusOrErr))
	}

	if w.Metrics != nil {
		w.Metrics.ObserveDelivery(string(dest.Kind), "acked")
	}

	return w.Store.MarkDeliveryAcked(ctx, row.DeliveryID)
}

func (w *Delivery) transportFor(kind delivery.Kind) delivery.Transport {
	switch kind {
	case delivery.KindWebhook:
		return w.Webhook
	case delivery.KindS3:
		return w.S3
	default:
		return nil
	}
}

func (w *Delivery) retryOrFail(ctx context.Context, row *delivery.Delivery, kind delivery.Kind, lastError string) error {
	if row.Attempts+1 >= MaxDeliveryAttempts {
		return w.fail(ctx, row, kind, lastError)
	}

	if w.Metrics != nil {
		w.Metrics.ObserveDelivery(string(kind), "retry")
	}

	next := w.now().Add(w.Backoff.Next(row.Attempts + 1))

	return w.Store.MarkDeliveryRetry(ctx, row.DeliveryID, next, lastError)
}

func (w *Delivery) fail(ctx context.Context, row *delivery.Delivery, kind delivery.Kind, lastError string) error {
	if w.Metrics != nil {
		w.Metrics.ObserveDelivery(string(kind), "failed")
		w.Metrics.IncDLQ("delivery")
	}

	return w.Store.MarkDeliveryFailed(ctx, row.DeliveryID, lastError)
}
