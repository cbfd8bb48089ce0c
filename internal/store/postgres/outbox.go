package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/settld/core/internal/outbox"
)

// ClaimOutbox implements workers.OutboxStore: claims up to maxMessages
// pending/failed rows for topic, ordered by enqueued_at, the way the
// teacher's consumer claims rabbitmq deliveries in enqueue order.
func (s *Store) ClaimOutbox(topic, leaseOwner string, maxMessages int) []*outbox.Message {
	ctx := context.Background()

	rows, err := s.pool().Query(ctx, `
		UPDATE outbox_messages SET status = 'processing', lease_owner = $1
		WHERE id IN (
			SELECT id FROM outbox_messages
			WHERE topic = $2 AND status IN ('pending', 'failed') AND next_attempt_at <= now()
			ORDER BY enqueued_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, tenant_id, topic, payload, status, attempts, last_error, enqueued_at, next_attempt_at, lease_owner, lease_until, processed_at`,
		leaseOwner, topic, maxMessages)
	if err != nil {
		s.Conn.logger().Warnf("postgres: claim outbox %s: %v", topic, err)

		return nil
	}
	defer rows.Close()

	var claimed []*outbox.Message

	for rows.Next() {
		msg, err := scanOutboxMessage(rows)
		if err != nil {
			s.Conn.logger().Warnf("postgres: scan outbox %s: %v", topic, err)

			continue
		}

		claimed = append(claimed, msg)
	}

	return claimed
}

// MarkOutboxProcessed implements workers.OutboxStore.
func (s *Store) MarkOutboxProcessed(ids []string) {
	if len(ids) == 0 {
		return
	}

	ctx := context.Background()

	if _, err := s.pool().Exec(ctx, `
		UPDATE outbox_messages SET status = 'published', processed_at = now() WHERE id = ANY($1)`, ids); err != nil {
		s.Conn.logger().Warnf("postgres: mark outbox processed: %v", err)
	}
}

// MarkOutboxFailed implements workers.OutboxStore: increments attempts and
// either retries or dead-letters, mirroring outbox.Message.MarkDLQ.
func (s *Store) MarkOutboxFailed(id, lastError string) {
	ctx := context.Background()

	if _, err := s.pool().Exec(ctx, `
		UPDATE outbox_messages SET
			attempts = attempts + 1,
			last_error = $2,
			status = CASE WHEN attempts + 1 >= $3 THEN 'dlq' ELSE 'failed' END,
			processed_at = CASE WHEN attempts + 1 >= $3 THEN now() ELSE processed_at END
		WHERE id = $1`, id, lastError, outbox.MaxAttempts); err != nil {
		s.Conn.logger().Warnf("postgres: mark outbox failed %s: %v", id, err)
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOutboxMessage(row rowScanner) (*outbox.Message, error) {
	var (
		msg         outbox.Message
		payload     []byte
		leaseUntil  *time.Time
		processedAt *time.Time
	)

	if err := row.Scan(&msg.ID, &msg.TenantID, &msg.Topic, &payload, &msg.Status, &msg.Attempts, &msg.LastError,
		&msg.EnqueuedAt, &msg.NextAttemptAt, &msg.LeaseOwner, &leaseUntil, &processedAt); err != nil {
		return nil, err
	}

	var p map[string]any
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, err
	}

	msg.Payload = p

	if leaseUntil != nil {
		msg.LeaseUntil = *leaseUntil
	}

	msg.ProcessedAt = processedAt

	return &msg, nil
}
