package httpapi

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/settld/core/internal/domain/event"
	"github.com/settld/core/internal/domain/operator"
	"github.com/settld/core/internal/domain/robot"
	"github.com/settld/core/internal/httpapi/dto"
	"github.com/settld/core/internal/store"
)

// FleetIndex is the dispatch-candidate directory appendOne refreshes after
// every robot/operator event, so cmd/worker's dispatch and operatorqueue
// workers always see each aggregate's latest zone/status/capacity.
type FleetIndex interface {
	PutRobot(tenantID string, state robot.State)
	PutOperator(tenantID string, state operator.State)
}

// streamID mirrors event.Stream.ID's "tenantId/aggregateType/aggregateId"
// convention without requiring callers to load the full Stream value just
// to compute it.
func streamID(tenantID, aggregateType, aggregateID string) string {
	return fmt.Sprintf("%s/%s/%s", tenantID, aggregateType, aggregateID)
}

// requireHead enforces the x-proxy-expected-prev-chain-hash precondition
// (428 if missing, 409 on mismatch) and returns the stream's current head,
// the prevChainHash the next appended event must carry.
func (a *App) requireHead(c *fiber.Ctx, sid string) (string, bool) {
	expected := c.Get(HeaderExpectedPrevChainHash)
	if expected == "" && c.Method() != fiber.MethodGet {
		_ = preconditionRequired(c)
		return "", false
	}

	head, err := a.Store.StreamHead(c.UserContext(), sid)
	if err != nil {
		_ = WithError(c, err)
		return "", false
	}

	if expected != head {
		_ = chainHashConflict(c, expected, head)
		return "", false
	}

	return head, true
}

// appendOne builds one event atop head, applies opKind-specific store Op
// wiring, and commits it through the Committer (OCC + derived outbox
// triggers). actor falls back to ActorRequester when the caller didn't
// supply one explicitly in the envelope.
func (a *App) appendOne(c *fiber.Ctx, opKind store.OpKind, aggregateType, aggregateID, eventType string, env dto.EventEnvelope, head string) (event.Event, error) {
	tid := tenantID(c)
	sid := streamID(tid, aggregateType, aggregateID)

	actor := event.Actor{Type: event.ActorRequester, ID: tid}
	if env.Actor != nil {
		actor = event.Actor{Type: event.ActorType(env.Actor.Type), ID: env.Actor.ID}
	}

	ev, err := event.CreateEvent(sid, eventType, actor, env.Payload, head, time.Now())
	if err != nil {
		return event.Event{}, err
	}

	op := store.Op{Kind: opKind, StreamID: sid, TenantID: tid, AggregateType: aggregateType, Events: []event.Event{ev}}

	audit := []store.AuditEntry{{
		TenantID: tid,
		Actor:    actor,
		Action:   eventType,
		Resource: sid,
		At:       ev.At,
		Details:  map[string]any{"eventId": ev.ID},
	}}

	if err := a.Committer.CommitTx(c.UserContext(), []store.Op{op}, audit); err != nil {
		return event.Event{}, err
	}

	a.refreshFleetIndex(c, aggregateType, sid, tid)

	return ev, nil
}

// refreshFleetIndex re-reduces a robot/operator stream after a successful
// append and republishes its state into a.Fleet, if one is wired. A reduce
// failure here never fails the request that just committed — it only means
// the dispatch worker sees a stale candidate until the next successful
// event on the same stream.
func (a *App) refreshFleetIndex(c *fiber.Ctx, aggregateType, sid, tid string) {
	if a.Fleet == nil {
		return
	}

	switch aggregateType {
	case aggregateRobot:
		events, err := a.Store.LoadEvents(c.UserContext(), sid)
		if err != nil {
			return
		}

		if state, err := robot.Reduce(events); err == nil {
			a.Fleet.PutRobot(tid, state)
		}

	case aggregateOperator:
		events, err := a.Store.LoadEvents(c.UserContext(), sid)
		if err != nil {
			return
		}

		if state, err := operator.Reduce(events); err == nil {
			a.Fleet.PutOperator(tid, state)
		}
	}
}

// appendEventHandler is the generic fiber.Handler factory every aggregate's
// "{id}/events"-style sub-action route is built from: decode the envelope,
// enforce the OCC precondition, build and commit the event, respond with
// its id and chainHash.
func (a *App) appendEventHandler(opKind store.OpKind, aggregateType, eventType string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		aggregateID := c.Params("id")

		var env dto.EventEnvelope
		if err := decodeBody(c, &env); err != nil {
			return err
		}

		head, ok := a.requireHead(c, streamID(tenantID(c), aggregateType, aggregateID))
		if !ok {
			return nil
		}

		ev, err := a.appendOne(c, opKind, aggregateType, aggregateID, eventType, env, head)
		if err != nil {
			return WithError(c, err)
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"eventId":   ev.ID,
			"chainHash": ev.ChainHash,
			"at":        ev.At,
		})
	}
}
