// Package store defines the Store interface that internal/committer drives
// and the Op tagged-union that describes one atomic multi-entity write.
// Two implementations satisfy Store: internal/store/memory (tests, local
// dev) and internal/store/postgres (pgx, for production).
package store

import (
	"context"
	"time"

	"github.com/settld/core/internal/domain/event"
	"github.com/settld/core/internal/outbox"
)

// OpKind enumerates the operation kinds a commitTx call can batch, mirroring
// spec.md §4.4 exactly.
type OpKind string

const (
	OpJobEventsAppended         OpKind = "JOB_EVENTS_APPENDED"
	OpRobotEventsAppended       OpKind = "ROBOT_EVENTS_APPENDED"
	OpOperatorEventsAppended    OpKind = "OPERATOR_EVENTS_APPENDED"
	OpMonthEventsAppended       OpKind = "MONTH_EVENTS_APPENDED"
	OpAgentRunEventsAppended    OpKind = "AGENT_RUN_EVENTS_APPENDED"
	OpOutboxEnqueue             OpKind = "OUTBOX_ENQUEUE"
	OpIngestRecordsPut          OpKind = "INGEST_RECORDS_PUT"
	OpIdempotencyPut            OpKind = "IDEMPOTENCY_PUT"
	OpContractUpsert            OpKind = "CONTRACT_UPSERT"
	OpAgentWalletUpsert         OpKind = "AGENT_WALLET_UPSERT"
	OpAgentRunSettlementUpsert  OpKind = "AGENT_RUN_SETTLEMENT_UPSERT"
	OpMarketplaceTaskUpsert     OpKind = "MARKETPLACE_TASK_UPSERT"
	OpMarketplaceTaskBidsSet    OpKind = "MARKETPLACE_TASK_BIDS_SET"
	OpTenantSettlementPolicyPut OpKind = "TENANT_SETTLEMENT_POLICY_UPSERT"
	OpPublicKeyPut              OpKind = "PUBLIC_KEY_PUT"
	OpSignerKeyUpsert           OpKind = "SIGNER_KEY_UPSERT"
)

// StreamAppendOpKinds is the subset of OpKind values that append to an
// event stream and are therefore subject to OCC on prevChainHash.
var StreamAppendOpKinds = map[OpKind]bool{
	OpJobEventsAppended:      true,
	OpRobotEventsAppended:    true,
	OpOperatorEventsAppended: true,
	OpMonthEventsAppended:    true,
	OpAgentRunEventsAppended: true,
}

// IngestRecord dedupes an external event id for a bounded retention window.
type IngestRecord struct {
	TenantID       string
	Source         string
	ExternalEventID string
	ReceivedAt     time.Time
	ExpiresAt      time.Time
}

// IdempotencyReceipt is the stored response for a previously-handled
// idempotency key.
type IdempotencyReceipt struct {
	TenantID    string
	Key         string
	RequestHash string
	StatusCode  int
	Body        []byte
	CreatedAt   time.Time
}

// Contract is a contracts-as-code document at some lifecycle stage.
type Contract struct {
	TenantID    string
	ContractID  string
	Version     string
	DocJSON     []byte
	ContractHash string
	PolicyHash  string
	CompilerID  string
	Status      string // draft|published|signed|active
	SignedBy    []string
	UpdatedAt   time.Time
}

// AgentWalletRow is the persisted wallet snapshot.
type AgentWalletRow struct {
	TenantID          string
	AgentID           string
	Currency          string
	AvailableCents    int64
	EscrowLockedCents int64
	Revision          int64
	UpdatedAt         time.Time
}

// AgentRunSettlementRow is the persisted settlement state for one run.
type AgentRunSettlementRow struct {
	TenantID           string
	RunID              string
	Status             string
	DecisionStatus     string
	ReleasedCents      int64
	RefundedCents      int64
	DisputeStatus      string
	VerdictRef         string
	ResolutionEventID  string
	Revision           int64
	UpdatedAt          time.Time
}

// MarketplaceTask is a posted task awaiting bids.
type MarketplaceTask struct {
	TenantID    string
	TaskID      string
	Status      string
	AmountCents int64
	UpdatedAt   time.Time
}

// MarketplaceTaskBid is one bid (or counter-offer) against a task.
type MarketplaceTaskBid struct {
	TaskID      string
	AgentID     string
	AmountCents int64
	Status      string
}

// TenantSettlementPolicy is a tenant's effective-dated settlement/hold
// policy override.
type TenantSettlementPolicy struct {
	TenantID      string
	Key           string
	ValueJSON     []byte
	EffectiveFrom time.Time
	CommittedAt   time.Time
}

// PublicKeyRow registers a public key under a keyId for signature
// verification.
type PublicKeyRow struct {
	TenantID  string
	KeyID     string
	PublicKey []byte
	CreatedAt time.Time
}

// SignerKeyRow tracks the active/rotated/revoked signer key for an actor.
type SignerKeyRow struct {
	TenantID  string
	ActorType string
	ActorID   string
	KeyID     string
	Active    bool
	UpdatedAt time.Time
}

// Op is one unit of a commitTx call. Exactly one of the payload fields is
// populated, selected by Kind — a tagged union rather than an interface
// hierarchy, since every op kind is known statically and commitTx must be
// able to inspect and order the whole batch before applying any of it.
type Op struct {
	Kind OpKind

	StreamID      string
	TenantID      string
	AggregateType string
	Events        []event.Event

	Outbox *outbox.Message

	IngestRecords []IngestRecord
	Idempotency   *IdempotencyReceipt
	Contract      *Contract
	AgentWallet   *AgentWalletRow
	AgentRunSettlement *AgentRunSettlementRow
	MarketplaceTask     *MarketplaceTask
	MarketplaceTaskBids []MarketplaceTaskBid
	TenantPolicy        *TenantSettlementPolicy
	PublicKey           *PublicKeyRow
	SignerKey           *SignerKeyRow
}

// AuditEntry records one ops-surface write for the audit trail.
type AuditEntry struct {
	TenantID  string
	Actor     event.Actor
	Action    string
	Resource  string
	At        time.Time
	Details   map[string]any
}

// Store is the single write/read path every commitTx call and worker tick
// goes through. Both internal/store/memory and internal/store/postgres
// implement it.
type Store interface {
	// StreamHead returns the chainHash of the current head of the named
	// stream, or "" if the stream does not exist yet.
	StreamHead(ctx context.Context, streamID string) (string, error)

	// LoadEvents returns every event appended to streamID, in order.
	LoadEvents(ctx context.Context, streamID string) ([]event.Event, error)

	// CommitTx atomically applies every op in ops (and records audit, if
	// non-nil) under one transaction. See internal/committer for the OCC
	// and derived-trigger logic layered on top of this primitive.
	CommitTx(ctx context.Context, ops []Op, audit []AuditEntry) error

	// LoadWallet returns the current wallet snapshot for (tenantID, agentID).
	LoadWallet(ctx context.Context, tenantID, agentID string) (AgentWalletRow, bool, error)

	// LoadIdempotency returns a previously stored receipt for key, if any.
	LoadIdempotency(ctx context.Context, tenantID, key string) (IdempotencyReceipt, bool, error)

	// HasIngestRecord reports whether (source, externalEventID) was already
	// ingested and has not yet expired.
	HasIngestRecord(ctx context.Context, tenantID, source, externalEventID string) (bool, error)
}
