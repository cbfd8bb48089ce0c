// Package memory implements store.Store entirely in-process for tests and
// local development. A single mutex stands in for the row-level locking
// SELECT ... FOR UPDATE gives the Postgres adapter.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/settld/core/internal/domain/event"
	"github.com/settld/core/internal/outbox"
	"github.com/settld/core/internal/store"
)

// Store is an in-memory store.Store implementation.
type Store struct {
	mu sync.Mutex

	streams       map[string][]event.Event
	outboxByTopic map[string][]*outbox.Message
	outboxByID    map[string]*outbox.Message
	ingest        map[string]store.IngestRecord
	idempotency   map[string]store.IdempotencyReceipt
	contracts     map[string]store.Contract
	wallets       map[string]store.AgentWalletRow
	runSettlements map[string]store.AgentRunSettlementRow
	tasks         map[string]store.MarketplaceTask
	bids          map[string][]store.MarketplaceTaskBid
	tenantPolicies map[string][]store.TenantSettlementPolicy
	publicKeys    map[string]store.PublicKeyRow
	signerKeys    map[string]store.SignerKeyRow
	audit         []store.AuditEntry
}

// New constructs an empty in-memory Store.
func New() *Store {
	return &Store{
		streams:        map[string][]event.Event{},
		outboxByTopic:  map[string][]*outbox.Message{},
		outboxByID:     map[string]*outbox.Message{},
		ingest:         map[string]store.IngestRecord{},
		idempotency:    map[string]store.IdempotencyReceipt{},
		contracts:      map[string]store.Contract{},
		wallets:        map[string]store.AgentWalletRow{},
		runSettlements: map[string]store.AgentRunSettlementRow{},
		tasks:          map[string]store.MarketplaceTask{},
		bids:           map[string][]store.MarketplaceTaskBid{},
		tenantPolicies: map[string][]store.TenantSettlementPolicy{},
		publicKeys:     map[string]store.PublicKeyRow{},
		signerKeys:     map[string]store.SignerKeyRow{},
	}
}

// StreamHead implements store.Store.
func (s *Store) StreamHead(_ context.Context, streamID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := s.streams[streamID]
	if len(events) == 0 {
		return "", nil
	}

	return events[len(events)-1].ChainHash, nil
}

// LoadEvents implements store.Store.
func (s *Store) LoadEvents(_ context.Context, streamID string) ([]event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]event.Event, len(s.streams[streamID]))
	copy(out, s.streams[streamID])

	return out, nil
}

// LoadWallet implements store.Store.
func (s *Store) LoadWallet(_ context.Context, tenantID, agentID string) (store.AgentWalletRow, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[walletKey(tenantID, agentID)]

	return w, ok, nil
}

// LoadIdempotency implements store.Store.
func (s *Store) LoadIdempotency(_ context.Context, tenantID, key string) (store.IdempotencyReceipt, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.idempotency[tenantID+"/"+key]

	return r, ok, nil
}

// HasIngestRecord implements store.Store.
func (s *Store) HasIngestRecord(_ context.Context, tenantID, source, externalEventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.ingest[ingestKey(tenantID, source, externalEventID)]

	return ok, nil
}

// CommitTx implements store.Store: applies every op in order under the
// single process-wide mutex. Re-validates the OCC precondition for each
// stream-append op (the committer already checked it before building
// derived triggers, but re-checking here keeps this store safe to call
// directly from tests without going through internal/committer).
func (s *Store) CommitTx(_ context.Context, ops []store.Op, audit []store.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	heads := map[string]string{}
	for _, op := range ops {
		if !store.StreamAppendOpKinds[op.Kind] || len(op.Events) == 0 {
			continue
		}
		head, seen := heads[op.StreamID]
		if existing := s.streams[op.StreamID]; !seen && len(existing) > 0 {
			head = existing[len(existing)-1].ChainHash
		}
		if op.Events[0].PrevChainHash != head {
			return fmt.Errorf("memory store: stream %s OCC conflict: expected prevChainHash %q, head is %q", op.StreamID, op.Events[0].PrevChainHash, head)
		}
		heads[op.StreamID] = op.Events[len(op.Events)-1].ChainHash
	}

	for _, op := range ops {
		if err := s.apply(op); err != nil {
			return err
		}
	}

	s.audit = append(s.audit, audit...)

	return nil
}

func (s *Store) apply(op store.Op) error {
	switch op.Kind {
	case store.OpJobEventsAppended, store.OpRobotEventsAppended, store.OpOperatorEventsAppended,
		store.OpMonthEventsAppended, store.OpAgentRunEventsAppended:
		return s.appendEvents(op)

	case store.OpOutboxEnqueue:
		if op.Outbox == nil {
			return nil
		}

		if _, exists := s.outboxByID[op.Outbox.ID]; exists {
			return nil
		}

		msg := *op.Outbox
		s.outboxByID[msg.ID] = &msg
		s.outboxByTopic[msg.Topic] = append(s.outboxByTopic[msg.Topic], &msg)

		return nil

	case store.OpIngestRecordsPut:
		for _, rec := range op.IngestRecords {
			s.ingest[ingestKey(rec.TenantID, rec.Source, rec.ExternalEventID)] = rec
		}

		return nil

	case store.OpIdempotencyPut:
		if op.Idempotency == nil {
			return nil
		}

		s.idempotency[op.Idempotency.TenantID+"/"+op.Idempotency.Key] = *op.Idempotency

		return nil

	case store.OpContractUpsert:
		if op.Contract == nil {
			return nil
		}

		s.contracts[op.Contract.TenantID+"/"+op.Contract.ContractID] = *op.Contract

		return nil

	case store.OpAgentWalletUpsert:
		if op.AgentWallet == nil {
			return nil
		}

		s.wallets[walletKey(op.AgentWallet.TenantID, op.AgentWallet.AgentID)] = *op.AgentWallet

		return nil

	case store.OpAgentRunSettlementUpsert:
		if op.AgentRunSettlement == nil {
			return nil
		}

		s.runSettlements[op.AgentRunSettlement.TenantID+"/"+op.AgentRunSettlement.RunID] = *op.AgentRunSettlement

		return nil

	case store.OpMarketplaceTaskUpsert:
		if op.MarketplaceTask == nil {
			return nil
		}

		s.tasks[op.MarketplaceTask.TenantID+"/"+op.MarketplaceTask.TaskID] = *op.MarketplaceTask

		return nil

	case store.OpMarketplaceTaskBidsSet:
		if len(op.MarketplaceTaskBids) == 0 {
			return nil
		}

		s.bids[op.MarketplaceTaskBids[0].TaskID] = op.MarketplaceTaskBids

		return nil

	case store.OpTenantSettlementPolicyPut:
		if op.TenantPolicy == nil {
			return nil
		}

		s.tenantPolicies[op.TenantPolicy.TenantID+"/"+op.TenantPolicy.Key] = append(s.tenantPolicies[op.TenantPolicy.TenantID+"/"+op.TenantPolicy.Key], *op.TenantPolicy)

		return nil

	case store.OpPublicKeyPut:
		if op.PublicKey == nil {
			return nil
		}

		s.publicKeys[op.PublicKey.TenantID+"/"+op.PublicKey.KeyID] = *op.PublicKey

		return nil

	case store.OpSignerKeyUpsert:
		if op.SignerKey == nil {
			return nil
		}

		s.signerKeys[signerKey(op.SignerKey.TenantID, op.SignerKey.ActorType, op.SignerKey.ActorID)] = *op.SignerKey

		return nil
	}

	return fmt.Errorf("memory store: unknown op kind %q", op.Kind)
}

func (s *Store) appendEvents(op store.Op) error {
	if len(op.Events) == 0 {
		return nil
	}

	existing := s.streams[op.StreamID]

	head := ""
	if len(existing) > 0 {
		head = existing[len(existing)-1].ChainHash
	}

	if op.Events[0].PrevChainHash != head {
		return fmt.Errorf("memory store: stream %s OCC conflict: expected prevChainHash %q, head is %q", op.StreamID, op.Events[0].PrevChainHash, head)
	}

	s.streams[op.StreamID] = append(existing, op.Events...)

	return nil
}

func walletKey(tenantID, agentID string) string { return tenantID + "/" + agentID }

func ingestKey(tenantID, source, externalEventID string) string {
	return tenantID + "/" + source + "/" + externalEventID
}

func signerKey(tenantID string, actorType event.ActorType, actorID string) string {
	return fmt.Sprintf("%s/%s/%s", tenantID, actorType, actorID)
}

// ActiveSignerKeys adapts Store to signerpolicy.ActiveKeys.
type ActiveSignerKeys struct{ S *Store }

// ActiveKeyID implements signerpolicy.ActiveKeys.
func (a ActiveSignerKeys) ActiveKeyID(tenantID string, actorType event.ActorType, actorID string) (string, bool) {
	a.S.mu.Lock()
	defer a.S.mu.Unlock()

	row, ok := a.S.signerKeys[signerKey(tenantID, actorType, actorID)]
	if !ok || !row.Active {
		return "", false
	}

	return row.KeyID, true
}

// ClaimOutbox pops up to maxMessages pending messages for topic, marking
// them StatusProcessing and recording the leaseOwner. It mirrors the
// Postgres adapter's claimOutbox so workers can use either store
// interchangeably in tests.
func (s *Store) ClaimOutbox(topic, leaseOwner string, maxMessages int) []*outbox.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	var claimed []*outbox.Message

	for _, msg := range s.outboxByTopic[topic] {
		if len(claimed) >= maxMessages {
			break
		}

		if msg.Status != outbox.StatusPending && msg.Status != outbox.StatusFailed {
			continue
		}

		msg.Status = outbox.StatusProcessing
		msg.LeaseOwner = leaseOwner
		claimed = append(claimed, msg)
	}

	return claimed
}

// MarkOutboxProcessed transitions the named messages to published.
func (s *Store) MarkOutboxProcessed(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		if msg, ok := s.outboxByID[id]; ok {
			msg.Status = outbox.StatusPublished
		}
	}
}

// MarkOutboxFailed records a retryable failure, or dead-letters the message
// once attempts reaches outbox.MaxAttempts.
func (s *Store) MarkOutboxFailed(id, lastError string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.outboxByID[id]
	if !ok {
		return
	}

	msg.Attempts++
	msg.LastError = lastError

	if msg.Attempts >= outbox.MaxAttempts {
		msg.MarkDLQ(lastError)

		return
	}

	msg.Status = outbox.StatusFailed
}
