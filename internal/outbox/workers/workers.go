// Package workers implements the outbox-driven background loops described
// in spec.md §4.7: each is a Tick(ctx, maxMessages) that claims pending
// outbox messages for its topic, drives the relevant aggregate forward via
// a committer.Committer, and reports how many messages it processed.
//
// Workers never hold a store lock across external I/O — everything here
// claims, does its work, and marks the outcome in three separate calls, the
// way the teacher's consumer package structures its own claim/process/ack
// loop.
package workers

import (
	"time"

	"github.com/settld/core/internal/committer"
	"github.com/settld/core/internal/domain/event"
	"github.com/settld/core/internal/outbox"
	"github.com/settld/core/internal/store"
	"github.com/settld/core/pkg/obs/log"
)

// OutboxStore is the subset of store.Store plus the claim/ack/fail
// extensions every worker needs. store/memory.Store and store/postgres
// both satisfy it structurally.
type OutboxStore interface {
	store.Store
	ClaimOutbox(topic, leaseOwner string, maxMessages int) []*outbox.Message
	MarkOutboxProcessed(ids []string)
	MarkOutboxFailed(id, lastError string)
}

// Deps bundles the dependencies every worker needs. Clock is overridable in
// tests; production code leaves it nil and now falls back to time.Now.
type Deps struct {
	Store     OutboxStore
	Committer *committer.Committer
	Logger    log.Logger
	Clock     func() time.Time
}

func (d Deps) now() time.Time {
	if d.Clock != nil {
		return d.Clock()
	}

	return time.Now().UTC()
}

func (d Deps) logger() log.Logger {
	if d.Logger != nil {
		return d.Logger
	}

	return &log.NoneLogger{}
}

// payloadString reads a string field out of an outbox message payload.
func payloadString(msg *outbox.Message, key string) string {
	if msg.Payload == nil {
		return ""
	}

	v, _ := msg.Payload[key].(string)

	return v
}

// eventPayload reads a map payload field off an event.
func eventPayload(ev event.Event) map[string]any {
	m, _ := ev.Payload.(map[string]any)
	if m == nil {
		return map[string]any{}
	}

	return m
}
