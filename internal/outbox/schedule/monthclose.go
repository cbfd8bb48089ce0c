// Package schedule drives time-based event append triggers that spec.md's
// HTTP surface otherwise requires an operator to call by hand — currently
// just the month-close cron trigger. Grounded on r3e-network's use of
// robfig/cron/v3 for its own scheduled jobs, adapted to commit directly
// through internal/committer the way internal/httpapi.App.appendOne does,
// without needing a fiber.Ctx.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/settld/core/internal/committer"
	"github.com/settld/core/internal/domain/event"
	"github.com/settld/core/internal/store"
	"github.com/settld/core/pkg/obs/log"
)

// MonthCloseTrigger appends a MONTH_CLOSE_REQUESTED event onto one tenant's
// month stream on its own cron schedule, the automated counterpart to the
// POST /ops/months/:id/close-request route.
type MonthCloseTrigger struct {
	TenantID string
	MonthID  string
	CronExpr string
}

// MonthCloseScheduler runs one cron entry per configured MonthCloseTrigger,
// each appending MONTH_CLOSE_REQUESTED for its tenant/month when it fires.
type MonthCloseScheduler struct {
	Store     store.Store
	Committer *committer.Committer
	Logger    log.Logger

	cron *cron.Cron
}

// Start parses every trigger's cron expression and begins running the
// scheduler in the background; cancel ctx or call Stop to halt it.
func (s *MonthCloseScheduler) Start(ctx context.Context, triggers []MonthCloseTrigger) error {
	s.cron = cron.New()

	for _, t := range triggers {
		trigger := t

		if _, err := s.cron.AddFunc(trigger.CronExpr, func() {
			if err := s.fire(ctx, trigger); err != nil {
				s.logger().Errorf("schedule: month-close trigger %s/%s: %v", trigger.TenantID, trigger.MonthID, err)
			}
		}); err != nil {
			return fmt.Errorf("schedule: add month-close cron %q: %w", trigger.CronExpr, err)
		}
	}

	s.cron.Start()

	return nil
}

// Stop halts the cron scheduler, waiting for any in-flight job to finish.
func (s *MonthCloseScheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

func (s *MonthCloseScheduler) logger() log.Logger {
	if s.Logger != nil {
		return s.Logger
	}

	return &log.NoneLogger{}
}

func (s *MonthCloseScheduler) fire(ctx context.Context, t MonthCloseTrigger) error {
	sid := fmt.Sprintf("%s/month/%s", t.TenantID, t.MonthID)

	head, err := s.Store.StreamHead(ctx, sid)
	if err != nil {
		return fmt.Errorf("stream head: %w", err)
	}

	actor := event.Actor{Type: event.ActorSystem, ID: "month-close-scheduler"}

	payload := map[string]any{"month": t.MonthID, "basis": "scheduled"}

	ev, err := event.CreateEvent(sid, "MONTH_CLOSE_REQUESTED", actor, payload, head, time.Now())
	if err != nil {
		return fmt.Errorf("create event: %w", err)
	}

	op := store.Op{
		Kind:          store.OpMonthEventsAppended,
		StreamID:      sid,
		TenantID:      t.TenantID,
		AggregateType: "month",
		Events:        []event.Event{ev},
	}

	audit := []store.AuditEntry{{
		TenantID: t.TenantID,
		Actor:    actor,
		Action:   "MONTH_CLOSE_REQUESTED",
		Resource: sid,
		At:       ev.At,
		Details:  map[string]any{"eventId": ev.ID, "trigger": "cron"},
	}}

	return s.Committer.CommitTx(ctx, []store.Op{op}, audit)
}
