package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/settld/core/internal/domain/event"
	"github.com/settld/core/internal/store"
)

// Store implements store.Store on top of a pgx pool. Every commitTx call
// runs in one Postgres transaction; stream-append ops take a row lock on
// stream_heads the way the teacher's UpdateBalances locks the balance row
// before posting a transaction, so two concurrent appends to the same
// stream serialize instead of racing on the OCC check.
type Store struct {
	Conn *Connection
}

// New wraps an already-connected Connection as a store.Store.
func New(conn *Connection) *Store {
	return &Store{Conn: conn}
}

func (s *Store) pool() *pgxpool.Pool { return s.Conn.Pool }

// Migrate applies Schema. Idempotent: every statement is CREATE ... IF NOT
// EXISTS.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool().Exec(ctx, Schema)
	if err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}

	return nil
}

// StreamHead implements store.Store.
func (s *Store) StreamHead(ctx context.Context, streamID string) (string, error) {
	var head string

	err := s.pool().QueryRow(ctx, `SELECT chain_hash FROM stream_heads WHERE stream_id = $1`, streamID).Scan(&head)
	if err == pgx.ErrNoRows {
		return "", nil
	}

	if err != nil {
		return "", fmt.Errorf("postgres: stream head %s: %w", streamID, err)
	}

	return head, nil
}

// LoadEvents implements store.Store.
func (s *Store) LoadEvents(ctx context.Context, streamID string) ([]event.Event, error) {
	rows, err := s.pool().Query(ctx, `
		SELECT id, type, at, actor_type, actor_id, payload, payload_hash, prev_chain_hash, chain_hash, signature, signer_key_id
		FROM events WHERE stream_id = $1 ORDER BY seq ASC`, streamID)
	if err != nil {
		return nil, fmt.Errorf("postgres: load events %s: %w", streamID, err)
	}
	defer rows.Close()

	var out []event.Event

	for rows.Next() {
		var (
			ev        event.Event
			payload   []byte
			actorType string
		)

		if err := rows.Scan(&ev.ID, &ev.Type, &ev.At, &actorType, &ev.Actor.ID, &payload, &ev.PayloadHash,
			&ev.PrevChainHash, &ev.ChainHash, &ev.Signature, &ev.SignerKeyID); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}

		ev.V = 1
		ev.StreamID = streamID
		ev.Actor.Type = event.ActorType(actorType)

		var p any
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal payload for %s: %w", ev.ID, err)
		}

		ev.Payload = p
		out = append(out, ev)
	}

	return out, rows.Err()
}

// LoadWallet implements store.Store.
func (s *Store) LoadWallet(ctx context.Context, tenantID, agentID string) (store.AgentWalletRow, bool, error) {
	var w store.AgentWalletRow

	err := s.pool().QueryRow(ctx, `
		SELECT tenant_id, agent_id, currency, available_cents, escrow_locked_cents, revision, updated_at
		FROM agent_wallets WHERE tenant_id = $1 AND agent_id = $2`, tenantID, agentID).Scan(
		&w.TenantID, &w.AgentID, &w.Currency, &w.AvailableCents, &w.EscrowLockedCents, &w.Revision, &w.UpdatedAt)
	if err == pgx.ErrNoRows {
		return store.AgentWalletRow{}, false, nil
	}

	if err != nil {
		return store.AgentWalletRow{}, false, fmt.Errorf("postgres: load wallet %s/%s: %w", tenantID, agentID, err)
	}

	return w, true, nil
}

// LoadIdempotency implements store.Store.
func (s *Store) LoadIdempotency(ctx context.Context, tenantID, key string) (store.IdempotencyReceipt, bool, error) {
	var r store.IdempotencyReceipt

	err := s.pool().QueryRow(ctx, `
		SELECT tenant_id, key, request_hash, status_code, body, created_at
		FROM idempotency_receipts WHERE tenant_id = $1 AND key = $2`, tenantID, key).Scan(
		&r.TenantID, &r.Key, &r.RequestHash, &r.StatusCode, &r.Body, &r.CreatedAt)
	if err == pgx.ErrNoRows {
		return store.IdempotencyReceipt{}, false, nil
	}

	if err != nil {
		return store.IdempotencyReceipt{}, false, fmt.Errorf("postgres: load idempotency %s/%s: %w", tenantID, key, err)
	}

	return r, true, nil
}

// HasIngestRecord implements store.Store.
func (s *Store) HasIngestRecord(ctx context.Context, tenantID, source, externalEventID string) (bool, error) {
	var exists bool

	err := s.pool().QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM ingest_records WHERE tenant_id = $1 AND source = $2 AND external_event_id = $3 AND expires_at > now())`,
		tenantID, source, externalEventID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: has ingest record %s/%s/%s: %w", tenantID, source, externalEventID, err)
	}

	return exists, nil
}

// CommitTx implements store.Store: every op runs inside one transaction.
// Stream-append ops lock their stream_heads row with SELECT ... FOR UPDATE
// before re-validating the OCC precondition, matching the teacher's balance
// row lock ahead of posting a transaction.
func (s *Store) CommitTx(ctx context.Context, ops []store.Op, audit []store.AuditEntry) error {
	tx, err := s.pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, op := range ops {
		if err := s.applyOp(ctx, tx, op); err != nil {
			return err
		}
	}

	for _, a := range audit {
		details, err := json.Marshal(a.Details)
		if err != nil {
			return fmt.Errorf("postgres: marshal audit details: %w", err)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO audit_entries (tenant_id, actor_type, actor_id, action, resource, at, details)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			a.TenantID, string(a.Actor.Type), a.Actor.ID, a.Action, a.Resource, a.At, json.RawMessage(details)); err != nil {
			return fmt.Errorf("postgres: insert audit entry: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit tx: %w", err)
	}

	return nil
}

func (s *Store) applyOp(ctx context.Context, tx pgx.Tx, op store.Op) error {
	if store.StreamAppendOpKinds[op.Kind] {
		return s.appendEvents(ctx, tx, op)
	}

	switch op.Kind {
	case store.OpOutboxEnqueue:
		return s.enqueueOutbox(ctx, tx, op)
	case store.OpIngestRecordsPut:
		return s.putIngestRecords(ctx, tx, op)
	case store.OpIdempotencyPut:
		return s.putIdempotency(ctx, tx, op)
	case store.OpContractUpsert:
		return s.upsertContract(ctx, tx, op)
	case store.OpAgentWalletUpsert:
		return s.upsertWallet(ctx, tx, op)
	case store.OpAgentRunSettlementUpsert:
		return s.upsertRunSettlement(ctx, tx, op)
	case store.OpMarketplaceTaskUpsert:
		return s.upsertTask(ctx, tx, op)
	case store.OpMarketplaceTaskBidsSet:
		return s.setTaskBids(ctx, tx, op)
	case store.OpTenantSettlementPolicyPut:
		return s.putTenantPolicy(ctx, tx, op)
	case store.OpPublicKeyPut:
		return s.putPublicKey(ctx, tx, op)
	case store.OpSignerKeyUpsert:
		return s.upsertSignerKey(ctx, tx, op)
	}

	return fmt.Errorf("postgres: unknown op kind %q", op.Kind)
}

func (s *Store) appendEvents(ctx context.Context, tx pgx.Tx, op store.Op) error {
	if len(op.Events) == 0 {
		return nil
	}

	var head string

	err := tx.QueryRow(ctx, `SELECT chain_hash FROM stream_heads WHERE stream_id = $1 FOR UPDATE`, op.StreamID).Scan(&head)
	if err != nil && err != pgx.ErrNoRows {
		return fmt.Errorf("postgres: lock stream head %s: %w", op.StreamID, err)
	}

	if op.Events[0].PrevChainHash != head {
		return fmt.Errorf("postgres: stream %s OCC conflict: expected prevChainHash %q, head is %q", op.StreamID, op.Events[0].PrevChainHash, head)
	}

	var nextSeq int64

	if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(seq), -1) + 1 FROM events WHERE stream_id = $1`, op.StreamID).Scan(&nextSeq); err != nil {
		return fmt.Errorf("postgres: next seq %s: %w", op.StreamID, err)
	}

	for i, ev := range op.Events {
		payload, err := json.Marshal(ev.Payload)
		if err != nil {
			return fmt.Errorf("postgres: marshal payload for %s: %w", ev.ID, err)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO events (stream_id, seq, id, type, at, actor_type, actor_id, payload, payload_hash, prev_chain_hash, chain_hash, signature, signer_key_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			op.StreamID, nextSeq+int64(i), ev.ID, ev.Type, ev.At, string(ev.Actor.Type), ev.Actor.ID, json.RawMessage(payload), ev.PayloadHash,
			ev.PrevChainHash, ev.ChainHash, ev.Signature, ev.SignerKeyID); err != nil {
			return fmt.Errorf("postgres: insert event %s: %w", ev.ID, err)
		}
	}

	newHead := op.Events[len(op.Events)-1].ChainHash

	if _, err := tx.Exec(ctx, `
		INSERT INTO stream_heads (stream_id, chain_hash) VALUES ($1, $2)
		ON CONFLICT (stream_id) DO UPDATE SET chain_hash = EXCLUDED.chain_hash`, op.StreamID, newHead); err != nil {
		return fmt.Errorf("postgres: update stream head %s: %w", op.StreamID, err)
	}

	return nil
}

func (s *Store) enqueueOutbox(ctx context.Context, tx pgx.Tx, op store.Op) error {
	if op.Outbox == nil {
		return nil
	}

	payload, err := json.Marshal(op.Outbox.Payload)
	if err != nil {
		return fmt.Errorf("postgres: marshal outbox payload: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO outbox_messages (id, tenant_id, topic, payload, status, attempts, last_error, enqueued_at, next_attempt_at, lease_owner)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`,
		op.Outbox.ID, op.Outbox.TenantID, op.Outbox.Topic, json.RawMessage(payload), string(op.Outbox.Status), op.Outbox.Attempts,
		op.Outbox.LastError, op.Outbox.EnqueuedAt, op.Outbox.NextAttemptAt, op.Outbox.LeaseOwner)
	if err != nil {
		return fmt.Errorf("postgres: enqueue outbox %s: %w", op.Outbox.ID, err)
	}

	return nil
}

func (s *Store) putIngestRecords(ctx context.Context, tx pgx.Tx, op store.Op) error {
	for _, rec := range op.IngestRecords {
		if _, err := tx.Exec(ctx, `
			INSERT INTO ingest_records (tenant_id, source, external_event_id, received_at, expires_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (tenant_id, source, external_event_id) DO NOTHING`,
			rec.TenantID, rec.Source, rec.ExternalEventID, rec.ReceivedAt, rec.ExpiresAt); err != nil {
			return fmt.Errorf("postgres: put ingest record: %w", err)
		}
	}

	return nil
}

func (s *Store) putIdempotency(ctx context.Context, tx pgx.Tx, op store.Op) error {
	if op.Idempotency == nil {
		return nil
	}

	r := op.Idempotency

	_, err := tx.Exec(ctx, `
		INSERT INTO idempotency_receipts (tenant_id, key, request_hash, status_code, body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id, key) DO NOTHING`,
		r.TenantID, r.Key, r.RequestHash, r.StatusCode, r.Body, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: put idempotency %s/%s: %w", r.TenantID, r.Key, err)
	}

	return nil
}

func (s *Store) upsertContract(ctx context.Context, tx pgx.Tx, op store.Op) error {
	if op.Contract == nil {
		return nil
	}

	c := op.Contract

	_, err := tx.Exec(ctx, `
		INSERT INTO contracts (tenant_id, contract_id, version, doc_json, contract_hash, policy_hash, compiler_id, status, signed_by, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (tenant_id, contract_id) DO UPDATE SET
			version = EXCLUDED.version, doc_json = EXCLUDED.doc_json, contract_hash = EXCLUDED.contract_hash,
			policy_hash = EXCLUDED.policy_hash, compiler_id = EXCLUDED.compiler_id, status = EXCLUDED.status,
			signed_by = EXCLUDED.signed_by, updated_at = EXCLUDED.updated_at`,
		c.TenantID, c.ContractID, c.Version, json.RawMessage(c.DocJSON), c.ContractHash, c.PolicyHash, c.CompilerID, c.Status, c.SignedBy, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: upsert contract %s/%s: %w", c.TenantID, c.ContractID, err)
	}

	return nil
}

func (s *Store) upsertWallet(ctx context.Context, tx pgx.Tx, op store.Op) error {
	if op.AgentWallet == nil {
		return nil
	}

	w := op.AgentWallet

	_, err := tx.Exec(ctx, `
		INSERT INTO agent_wallets (tenant_id, agent_id, currency, available_cents, escrow_locked_cents, revision, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_id, agent_id) DO UPDATE SET
			currency = EXCLUDED.currency, available_cents = EXCLUDED.available_cents,
			escrow_locked_cents = EXCLUDED.escrow_locked_cents, revision = EXCLUDED.revision, updated_at = EXCLUDED.updated_at`,
		w.TenantID, w.AgentID, w.Currency, w.AvailableCents, w.EscrowLockedCents, w.Revision, w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: upsert wallet %s/%s: %w", w.TenantID, w.AgentID, err)
	}

	return nil
}

func (s *Store) upsertRunSettlement(ctx context.Context, tx pgx.Tx, op store.Op) error {
	if op.AgentRunSettlement == nil {
		return nil
	}

	r := op.AgentRunSettlement

	_, err := tx.Exec(ctx, `
		INSERT INTO agent_run_settlements (tenant_id, run_id, status, decision_status, released_cents, refunded_cents,
			dispute_status, verdict_ref, resolution_event_id, revision, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (tenant_id, run_id) DO UPDATE SET
			status = EXCLUDED.status, decision_status = EXCLUDED.decision_status, released_cents = EXCLUDED.released_cents,
			refunded_cents = EXCLUDED.refunded_cents, dispute_status = EXCLUDED.dispute_status, verdict_ref = EXCLUDED.verdict_ref,
			resolution_event_id = EXCLUDED.resolution_event_id, revision = EXCLUDED.revision, updated_at = EXCLUDED.updated_at`,
		r.TenantID, r.RunID, r.Status, r.DecisionStatus, r.ReleasedCents, r.RefundedCents, r.DisputeStatus,
		r.VerdictRef, r.ResolutionEventID, r.Revision, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: upsert run settlement %s/%s: %w", r.TenantID, r.RunID, err)
	}

	return nil
}

func (s *Store) upsertTask(ctx context.Context, tx pgx.Tx, op store.Op) error {
	if op.MarketplaceTask == nil {
		return nil
	}

	t := op.MarketplaceTask

	_, err := tx.Exec(ctx, `
		INSERT INTO marketplace_tasks (tenant_id, task_id, status, amount_cents, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, task_id) DO UPDATE SET
			status = EXCLUDED.status, amount_cents = EXCLUDED.amount_cents, updated_at = EXCLUDED.updated_at`,
		t.TenantID, t.TaskID, t.Status, t.AmountCents, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: upsert task %s/%s: %w", t.TenantID, t.TaskID, err)
	}

	return nil
}

func (s *Store) setTaskBids(ctx context.Context, tx pgx.Tx, op store.Op) error {
	if len(op.MarketplaceTaskBids) == 0 {
		return nil
	}

	taskID := op.MarketplaceTaskBids[0].TaskID

	if _, err := tx.Exec(ctx, `DELETE FROM marketplace_task_bids WHERE task_id = $1`, taskID); err != nil {
		return fmt.Errorf("postgres: clear bids %s: %w", taskID, err)
	}

	for _, b := range op.MarketplaceTaskBids {
		if _, err := tx.Exec(ctx, `
			INSERT INTO marketplace_task_bids (task_id, agent_id, amount_cents, status)
			VALUES ($1, $2, $3, $4)`, b.TaskID, b.AgentID, b.AmountCents, b.Status); err != nil {
			return fmt.Errorf("postgres: insert bid %s/%s: %w", b.TaskID, b.AgentID, err)
		}
	}

	return nil
}

func (s *Store) putTenantPolicy(ctx context.Context, tx pgx.Tx, op store.Op) error {
	if op.TenantPolicy == nil {
		return nil
	}

	p := op.TenantPolicy

	if _, err := tx.Exec(ctx, `
		INSERT INTO tenant_settlement_policies (tenant_id, key, value_json, effective_from, committed_at)
		VALUES ($1, $2, $3, $4, $5)`,
		p.TenantID, p.Key, json.RawMessage(p.ValueJSON), p.EffectiveFrom, p.CommittedAt); err != nil {
		return fmt.Errorf("postgres: put tenant policy %s/%s: %w", p.TenantID, p.Key, err)
	}

	return nil
}

func (s *Store) putPublicKey(ctx context.Context, tx pgx.Tx, op store.Op) error {
	if op.PublicKey == nil {
		return nil
	}

	k := op.PublicKey

	_, err := tx.Exec(ctx, `
		INSERT INTO public_keys (tenant_id, key_id, public_key, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, key_id) DO NOTHING`, k.TenantID, k.KeyID, k.PublicKey, k.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: put public key %s/%s: %w", k.TenantID, k.KeyID, err)
	}

	return nil
}

func (s *Store) upsertSignerKey(ctx context.Context, tx pgx.Tx, op store.Op) error {
	if op.SignerKey == nil {
		return nil
	}

	k := op.SignerKey

	_, err := tx.Exec(ctx, `
		INSERT INTO signer_keys (tenant_id, actor_type, actor_id, key_id, active, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id, actor_type, actor_id, key_id) DO UPDATE SET
			active = EXCLUDED.active, updated_at = EXCLUDED.updated_at`,
		k.TenantID, k.ActorType, k.ActorID, k.KeyID, k.Active, k.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: upsert signer key %s/%s/%s: %w", k.TenantID, k.ActorType, k.ActorID, err)
	}

	return nil
}
