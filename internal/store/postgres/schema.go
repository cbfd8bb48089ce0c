package postgres

// Schema is the full DDL for a settld Postgres deployment. It is not run
// automatically — bootstrap.New applies it once, for both cmd/server and
// cmd/worker, via Store.Migrate, the way the teacher's PostgresConnection.Connect runs
// its migrations directory before the service accepts traffic, minus the
// golang-migrate dependency this project does not carry (see DESIGN.md).
const Schema = `
CREATE TABLE IF NOT EXISTS stream_heads (
	stream_id   TEXT PRIMARY KEY,
	chain_hash  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS events (
	stream_id       TEXT NOT NULL,
	seq             BIGINT NOT NULL,
	id              TEXT NOT NULL,
	type            TEXT NOT NULL,
	at              TIMESTAMPTZ NOT NULL,
	actor_type      TEXT NOT NULL,
	actor_id        TEXT NOT NULL,
	payload         JSONB NOT NULL,
	payload_hash    TEXT NOT NULL,
	prev_chain_hash TEXT NOT NULL,
	chain_hash      TEXT NOT NULL,
	signature       TEXT NOT NULL DEFAULT '',
	signer_key_id   TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (stream_id, seq)
);

CREATE TABLE IF NOT EXISTS outbox_messages (
	id              TEXT PRIMARY KEY,
	tenant_id       TEXT NOT NULL,
	topic           TEXT NOT NULL,
	payload         JSONB NOT NULL,
	status          TEXT NOT NULL,
	attempts        INT NOT NULL DEFAULT 0,
	last_error      TEXT NOT NULL DEFAULT '',
	enqueued_at     TIMESTAMPTZ NOT NULL,
	next_attempt_at TIMESTAMPTZ NOT NULL,
	lease_owner     TEXT NOT NULL DEFAULT '',
	lease_until     TIMESTAMPTZ,
	processed_at    TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS outbox_messages_topic_status_idx ON outbox_messages (topic, status, next_attempt_at);

CREATE TABLE IF NOT EXISTS ingest_records (
	tenant_id         TEXT NOT NULL,
	source            TEXT NOT NULL,
	external_event_id TEXT NOT NULL,
	received_at       TIMESTAMPTZ NOT NULL,
	expires_at        TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (tenant_id, source, external_event_id)
);
CREATE INDEX IF NOT EXISTS ingest_records_expires_idx ON ingest_records (expires_at);

CREATE TABLE IF NOT EXISTS idempotency_receipts (
	tenant_id    TEXT NOT NULL,
	key          TEXT NOT NULL,
	request_hash TEXT NOT NULL,
	status_code  INT NOT NULL,
	body         BYTEA NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (tenant_id, key)
);

CREATE TABLE IF NOT EXISTS contracts (
	tenant_id     TEXT NOT NULL,
	contract_id   TEXT NOT NULL,
	version       TEXT NOT NULL,
	doc_json      JSONB NOT NULL,
	contract_hash TEXT NOT NULL,
	policy_hash   TEXT NOT NULL,
	compiler_id   TEXT NOT NULL,
	status        TEXT NOT NULL,
	signed_by     TEXT[] NOT NULL DEFAULT '{}',
	updated_at    TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (tenant_id, contract_id)
);

CREATE TABLE IF NOT EXISTS agent_wallets (
	tenant_id           TEXT NOT NULL,
	agent_id            TEXT NOT NULL,
	currency            TEXT NOT NULL,
	available_cents     BIGINT NOT NULL,
	escrow_locked_cents BIGINT NOT NULL,
	revision            BIGINT NOT NULL,
	updated_at          TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (tenant_id, agent_id)
);

CREATE TABLE IF NOT EXISTS agent_run_settlements (
	tenant_id           TEXT NOT NULL,
	run_id              TEXT NOT NULL,
	status              TEXT NOT NULL,
	decision_status     TEXT NOT NULL,
	released_cents      BIGINT NOT NULL,
	refunded_cents      BIGINT NOT NULL,
	dispute_status      TEXT NOT NULL,
	verdict_ref         TEXT NOT NULL DEFAULT '',
	resolution_event_id TEXT NOT NULL DEFAULT '',
	revision            BIGINT NOT NULL,
	updated_at          TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (tenant_id, run_id)
);

CREATE TABLE IF NOT EXISTS marketplace_tasks (
	tenant_id    TEXT NOT NULL,
	task_id      TEXT NOT NULL,
	status       TEXT NOT NULL,
	amount_cents BIGINT NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (tenant_id, task_id)
);

CREATE TABLE IF NOT EXISTS marketplace_task_bids (
	task_id      TEXT NOT NULL,
	agent_id     TEXT NOT NULL,
	amount_cents BIGINT NOT NULL,
	status       TEXT NOT NULL,
	PRIMARY KEY (task_id, agent_id)
);

CREATE TABLE IF NOT EXISTS tenant_settlement_policies (
	tenant_id      TEXT NOT NULL,
	key            TEXT NOT NULL,
	value_json     JSONB NOT NULL,
	effective_from TIMESTAMPTZ NOT NULL,
	committed_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS tenant_policies_lookup_idx ON tenant_settlement_policies (tenant_id, key, effective_from);

CREATE TABLE IF NOT EXISTS public_keys (
	tenant_id  TEXT NOT NULL,
	key_id     TEXT NOT NULL,
	public_key BYTEA NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (tenant_id, key_id)
);

CREATE TABLE IF NOT EXISTS signer_keys (
	tenant_id  TEXT NOT NULL,
	actor_type TEXT NOT NULL,
	actor_id   TEXT NOT NULL,
	key_id     TEXT NOT NULL,
	active     BOOLEAN NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (tenant_id, actor_type, actor_id, key_id)
);

CREATE TABLE IF NOT EXISTS audit_entries (
	tenant_id  TEXT NOT NULL,
	actor_type TEXT NOT NULL,
	actor_id   TEXT NOT NULL,
	action     TEXT NOT NULL,
	resource   TEXT NOT NULL,
	at         TIMESTAMPTZ NOT NULL,
	details    JSONB NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS deliveries (
	delivery_id     TEXT PRIMARY KEY,
	tenant_id       TEXT NOT NULL,
	destination_id  TEXT NOT NULL,
	artifact_type   TEXT NOT NULL,
	artifact_id     TEXT NOT NULL,
	artifact_hash   TEXT NOT NULL,
	scope_key       TEXT NOT NULL,
	order_seq       BIGINT NOT NULL,
	priority        INT NOT NULL,
	status          TEXT NOT NULL,
	attempts        INT NOT NULL DEFAULT 0,
	next_attempt_at TIMESTAMPTZ NOT NULL,
	last_error      TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL,
	dedupe_key      TEXT NOT NULL UNIQUE
);
CREATE INDEX IF NOT EXISTS deliveries_claim_idx ON deliveries (status, next_attempt_at);
`
