// Package outbox implements the transactional outbox: messages enqueued in
// the same commitTx as the events that triggered them, later claimed and
// processed by the worker loops in internal/outbox/workers. This file holds
// the message model and its status state machine, grounded directly on the
// teacher's outbox.postgresql status transitions.
package outbox

import "time"

// Status is the lifecycle state of one outbox message.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusPublished  Status = "published"
	StatusFailed     Status = "failed"
	StatusDLQ        Status = "dlq"
)

// transitions enumerates the legal state-machine edges.
var transitions = map[Status]map[Status]bool{
	StatusPending:    {StatusProcessing: true},
	StatusProcessing: {StatusPublished: true, StatusFailed: true},
	StatusFailed:     {StatusProcessing: true, StatusDLQ: true},
}

// CanTransitionTo reports whether moving from 'from' to 'to' is a legal
// outbox state edge.
func CanTransitionTo(from, to Status) bool {
	edges, ok := transitions[from]
	return ok && edges[to]
}

// IsTerminal reports whether status has no further legal transitions.
func IsTerminal(status Status) bool {
	return status == StatusPublished || status == StatusDLQ
}

// Message is one outbox row: a side-effect intent derived from a committed
// event, queued for a worker to pick up by Topic.
type Message struct {
	ID          string
	TenantID    string
	Topic       string
	Payload     map[string]any
	Status      Status
	Attempts    int
	LastError   string
	EnqueuedAt  time.Time
	NextAttemptAt time.Time
	LeaseOwner  string
	LeaseUntil  time.Time
	ProcessedAt *time.Time
}

// MaxAttempts is the default outboxMaxAttempts before a message is
// dead-lettered. Individual worker configs may override it.
const MaxAttempts = 10

// MarkDLQ moves a message to the DLQ, recording lastError with the DLQ
// prefix so readers can distinguish a dead letter from an ordinary retry
// failure without a separate column.
func (m *Message) MarkDLQ(lastError string) {
	m.Status = StatusDLQ
	m.LastError = "DLQ:" + lastError
	now := time.Now().UTC()
	m.ProcessedAt = &now
}
