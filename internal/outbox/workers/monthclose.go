package workers

import (
	"context"
	"fmt"

	"github.com/settld/core/internal/artifact"
	"github.com/settld/core/internal/domain/event"
	"github.com/settld/core/internal/domain/monthclose"
	"github.com/settld/core/internal/outbox"
	"github.com/settld/core/internal/store"
)

// HoldPolicyMode controls whether open/period-originated holds block a
// month close.
type HoldPolicyMode string

const (
	HoldPolicyBlockAnyOpen          HoldPolicyMode = "block_any_open_holds"
	HoldPolicyBlockOriginatedInPeriod HoldPolicyMode = "block_holds_originated_in_period"
	HoldPolicyAllowWithDisclosure    HoldPolicyMode = "allow_with_disclosure"
)

// GateMode controls how strictly the finance export gate treats a missing
// account map: strict fails the close, warn proceeds without GL postings.
type GateMode string

const (
	GateStrict GateMode = "strict"
	GateWarn   GateMode = "warn"
)

// OpenHold describes one settlement hold relevant to a month-close
// evaluation.
type OpenHold struct {
	HoldID  string
	HeldAt  string // RFC3339
	InMonth bool   // HeldAt falls within the period being closed
}

// HoldPolicyResolver resolves the effective-dated hold policy for a tenant
// at a given period end (governance stream lookup).
type HoldPolicyResolver interface {
	EffectiveHoldPolicy(tenantID string, periodEnd string) (HoldPolicyMode, error)
	OpenHolds(tenantID, month string) ([]OpenHold, error)
}

// AccountMap resolves GL account codes for a tenant; its absence is the
// trigger for the finance export gate.
type AccountMap interface {
	Resolve(ctx context.Context, tenantID string) (map[string]string, bool, error)
}

// FinancePackStore persists the finished zip bundle (object store
// abstraction; out of scope per SPEC_FULL's Non-goals beyond this
// interface).
type FinancePackStore interface {
	Put(tenantID, month string, zipBytes []byte) (string, error)
}

// MonthClose consumes MONTH_CLOSE_REQUESTED messages: checks the hold
// policy, computes the monthly statement/finance pack, and appends
// MONTH_CLOSED (or fails cleanly on a blocked close / missing account map).
type MonthClose struct {
	Deps
	Holds    HoldPolicyResolver
	Accounts AccountMap
	Packs    FinancePackStore
	GateMode GateMode
}

// MonthCloseBlockedCounter increments a labeled counter when a close is
// blocked; wired to a Prometheus metric in production.
type MonthCloseBlockedCounter interface {
	Inc(reason string)
}

// Tick claims MONTH_CLOSE_REQUESTED messages and processes each.
func (w *MonthClose) Tick(ctx context.Context, maxMessages int, blocked MonthCloseBlockedCounter) (int, error) {
	msgs := w.Store.ClaimOutbox("MONTH_CLOSE_REQUESTED", "monthclose-worker", maxMessages)
	processed := 0

	for _, msg := range msgs {
		if err := w.process(ctx, msg, blocked); err != nil {
			w.Store.MarkOutboxFailed(msg.ID, err.Error())
			w.logger().Warnf("monthclose: %s failed: %v", msg.ID, err)

			continue
		}

		w.Store.MarkOutboxProcessed([]string{msg.ID})
		processed++
	}

	return processed, nil
}

func (w *MonthClose) process(ctx context.Context, msg *outbox.Message, blocked MonthCloseBlockedCounter) error {
	month := payloadString(msg, "month")
	basis := payloadString(msg, "basis")

	if basis == "" {
		basis = "accrual"
	}

	streamID := fmt.Sprintf("%s/month/month:%s:%s", msg.TenantID, month, basis)

	events, err := w.Store.LoadEvents(ctx, streamID)
	if err != nil {
		return fmt.Errorf("monthclose: load %s: %w", streamID, err)
	}

	before, err := monthclose.Reduce(events)
	if err != nil {
		return fmt.Errorf("monthclose: reduce %s: %w", streamID, err)
	}

	if before.IsClosed() {
		return nil
	}

	mode, err := w.Holds.EffectiveHoldPolicy(msg.TenantID, month+"-28T23:59:59Z")
	if err != nil {
		return err
	}

	holds, err := w.Holds.OpenHolds(msg.TenantID, month)
	if err != nil {
		return err
	}

	if reason, blockedOk := evaluateHoldPolicy(mode, holds); blockedOk {
		if blocked != nil {
			blocked.Inc(reason)
		}

		return w.appendFailedClose(ctx, streamID, msg.TenantID, before, reason)
	}

	accounts, ok, err := w.Accounts.Resolve(ctx, msg.TenantID)
	if err != nil {
		return err
	}

	if !ok && w.GateMode == GateStrict {
		return w.appendFailedClose(ctx, streamID, msg.TenantID, before, "account_map_missing")
	}

	gl := buildGLBatch(accounts, holds)

	stmt, hash, err := artifact.BuildMonthlyStatement(month, basis, w.now(), nil, gl)
	if err != nil {
		return err
	}

	journalCSV, err := artifact.JournalCSV(gl)
	if err != nil {
		return err
	}

	zipBytes, err := artifact.BuildFinancePackZip(stmt, journalCSV)
	if err != nil {
		return err
	}

	if w.Packs != nil {
		if _, err := w.Packs.Put(msg.TenantID, month, zipBytes); err != nil {
			return err
		}
	}

	ev, err := event.CreateEvent(streamID, "MONTH_CLOSED", event.Actor{Type: event.ActorSystem, ID: "monthclose-worker"},
		map[string]any{"financePackHash": hash}, before.LastChainHash, w.now())
	if err != nil {
		return err
	}

	return w.Committer.CommitTx(ctx, []store.Op{{
		Kind:     store.OpMonthEventsAppended,
		StreamID: streamID,
		TenantID: msg.TenantID,
		Events:   []event.Event{ev},
	}}, nil)
}

func (w *MonthClose) appendFailedClose(ctx context.Context, streamID, tenantID string, before monthclose.State, reason string) error {
	ev, err := event.CreateEvent(streamID, "MONTH_CLOSE_FAILED", event.Actor{Type: event.ActorSystem, ID: "monthclose-worker"},
		map[string]any{"reason": reason}, before.LastChainHash, w.now())
	if err != nil {
		return err
	}

	return w.Committer.CommitTx(ctx, []store.Op{{
		Kind:     store.OpMonthEventsAppended,
		StreamID: streamID,
		TenantID: tenantID,
		Events:   []event.Event{ev},
	}}, nil)
}

func evaluateHoldPolicy(mode HoldPolicyMode, holds []OpenHold) (reason string, blocked bool) {
	switch mode {
	case HoldPolicyBlockAnyOpen:
		if len(holds) > 0 {
			return "open_holds", true
		}

	case HoldPolicyBlockOriginatedInPeriod:
		for _, h := range holds {
			if h.InMonth {
				return "open_holds", true
			}
		}

	case HoldPolicyAllowWithDisclosure:
		return "", false
	}

	return "", false
}

func buildGLBatch(accounts map[string]string, holds []OpenHold) artifact.GLBatch {
	entries := make([]artifact.GLBatchEntry, 0, len(holds))

	for _, h := range holds {
		account := accounts["escrow_held"]
		if account == "" {
			account = "escrow_held"
		}

		entries = append(entries, artifact.GLBatchEntry{Account: account, DebitCents: 0, CreditCents: 0, Memo: h.HoldID})
	}

	return artifact.GLBatch{Entries: entries}
}
