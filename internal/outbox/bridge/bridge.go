// Package bridge mirrors committed outbox messages onto a RabbitMQ exchange
// for external consumers (analytics pipelines, partner integrations) that
// want the event stream without calling settld's HTTP API directly.
// Grounded on the teacher's components/consumer rabbitmq producer
// (producer.rabbitmq.go): a connection wrapper around amqp091-go plus a
// Channel.Publish call with a persistent delivery mode, adapted from the
// teacher's lib-commons connection hub to this project's own Connect-once
// wrapper shape (internal/store/postgres.Connection, internal/ratelimit.Connection).
package bridge

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/settld/core/internal/outbox"
	"github.com/settld/core/pkg/canonicaljson"
	"github.com/settld/core/pkg/obs/log"
)

// Connection holds the shared AMQP connection and channel the bridge
// publishes through. Connect is idempotent, matching the rest of the
// codebase's connection-hub shape.
type Connection struct {
	AMQPURL  string
	Exchange string
	Logger   log.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// Connect dials RabbitMQ, opens a channel, and declares Exchange as a
// durable topic exchange; safe to call repeatedly.
func (c *Connection) Connect(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ch != nil {
		return nil
	}

	conn, err := amqp.Dial(c.AMQPURL)
	if err != nil {
		return fmt.Errorf("bridge: dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("bridge: open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(c.Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()

		return fmt.Errorf("bridge: declare exchange %s: %w", c.Exchange, err)
	}

	c.conn = conn
	c.ch = ch

	return nil
}

func (c *Connection) channel() *amqp.Channel {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.ch
}

// OutboxStore is the claim/ack/fail surface the bridge drives, the same
// shape every internal/outbox/workers type consumes.
type OutboxStore interface {
	ClaimOutbox(topic, leaseOwner string, maxMessages int) []*outbox.Message
	MarkOutboxProcessed(ids []string)
	MarkOutboxFailed(id, lastError string)
}

// Bridge claims pending messages off one outbox topic and republishes each
// as a persistent AMQP message on Conn's exchange, routed by topic name.
type Bridge struct {
	Store OutboxStore
	Conn  *Connection
}

// Tick claims up to maxMessages pending messages on topic and publishes
// each to RabbitMQ, acking on success and recording the publish error
// otherwise so the message is retried on a later tick.
func (b *Bridge) Tick(ctx context.Context, topic string, maxMessages int) (int, error) {
	msgs := b.Store.ClaimOutbox(topic, "outbox-bridge", maxMessages)
	if len(msgs) == 0 {
		return 0, nil
	}

	ch := b.Conn.channel()
	if ch == nil {
		return 0, fmt.Errorf("bridge: not connected")
	}

	var acked []string

	for _, msg := range msgs {
		body, err := canonicaljson.Marshal(msg.Payload)
		if err != nil {
			b.Store.MarkOutboxFailed(msg.ID, fmt.Sprintf("marshal: %v", err))
			continue
		}

		err = ch.PublishWithContext(ctx, b.Conn.Exchange, topic, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		})
		if err != nil {
			b.Store.MarkOutboxFailed(msg.ID, fmt.Sprintf("publish: %v", err))
			continue
		}

		acked = append(acked, msg.ID)
	}

	if len(acked) > 0 {
		b.Store.MarkOutboxProcessed(acked)
	}

	return len(acked), nil
}
