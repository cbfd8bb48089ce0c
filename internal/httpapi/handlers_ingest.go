package httpapi

import (
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/settld/core/internal/domain/event"
	"github.com/settld/core/internal/store"
)

// ingestEventDTO is one pre-built, externally signed event submitted to the
// ingest proxy — the externalEventId dedupes the batch the way spec.md §6's
// "batched idempotent external event ingest per job" describes.
type ingestEventDTO struct {
	ExternalEventID string         `json:"externalEventId" validate:"required"`
	AggregateType   string         `json:"aggregateType" validate:"required"`
	AggregateID     string         `json:"aggregateId" validate:"required"`
	EventType       string         `json:"eventType" validate:"required"`
	Actor           event.Actor    `json:"actor"`
	Payload         map[string]any `json:"payload"`
	Source          string         `json:"source" validate:"required"`
}

type ingestProxyRequest struct {
	Events []ingestEventDTO `json:"events" validate:"required,min=1,dive"`
}

func (a *App) registerIngestRoutes(app *fiber.App) {
	app.Post("/ingest/proxy", a.idempotent(a.handleIngestProxy))
}

// handleIngestProxy applies every event in the batch that hasn't already
// been ingested (by externalEventId), appending each to its aggregate
// stream atop the stream's current head and recording an ingest_records row
// so a retried batch is a no-op per event rather than per request.
func (a *App) handleIngestProxy(c *fiber.Ctx) error {
	var req ingestProxyRequest
	if err := decodeBody(c, &req); err != nil {
		return WithError(c, err)
	}

	tid := tenantID(c)
	ctx := c.UserContext()
	now := time.Now().UTC()

	var ops []store.Op

	results := make([]fiber.Map, 0, len(req.Events))

	for _, in := range req.Events {
		already, err := a.Store.HasIngestRecord(ctx, tid, in.Source, in.ExternalEventID)
		if err != nil {
			return WithError(c, err)
		}

		if already {
			results = append(results, fiber.Map{"externalEventId": in.ExternalEventID, "status": "duplicate"})
			continue
		}

		sid := streamID(tid, in.AggregateType, in.AggregateID)

		head, err := a.Store.StreamHead(ctx, sid)
		if err != nil {
			return WithError(c, err)
		}

		actor := in.Actor
		if actor.Type == "" {
			actor.Type = event.ActorSystem
		}

		ev, err := event.CreateEvent(sid, in.EventType, actor, in.Payload, head, now)
		if err != nil {
			return WithError(c, err)
		}

		ops = append(ops, store.Op{
			Kind: opKindForAggregate(in.AggregateType), StreamID: sid, TenantID: tid,
			AggregateType: in.AggregateType, Events: []event.Event{ev},
		}, store.Op{
			Kind: store.OpIngestRecordsPut, TenantID: tid,
			IngestRecords: []store.IngestRecord{{
				TenantID: tid, Source: in.Source, ExternalEventID: in.ExternalEventID,
				ReceivedAt: now, ExpiresAt: now.Add(30 * 24 * time.Hour),
			}},
		})

		results = append(results, fiber.Map{
			"externalEventId": in.ExternalEventID, "status": "accepted",
			"eventId": ev.ID, "chainHash": ev.ChainHash,
		})
	}

	if len(ops) > 0 {
		if err := a.Committer.CommitTx(ctx, ops, nil); err != nil {
			return WithError(c, err)
		}
	}

	body, _ := json.Marshal(fiber.Map{"results": results})

	return c.Status(fiber.StatusOK).Send(body)
}

// opKindForAggregate maps an ingest batch's free-form aggregateType string
// to the OpKind the store expects, defaulting to the job stream kind since
// that's the dominant ingest path ("batched ... event ingest per job").
func opKindForAggregate(aggregateType string) store.OpKind {
	switch aggregateType {
	case "robot":
		return store.OpRobotEventsAppended
	case "operator":
		return store.OpOperatorEventsAppended
	case "month":
		return store.OpMonthEventsAppended
	case "agentRun":
		return store.OpAgentRunEventsAppended
	default:
		return store.OpJobEventsAppended
	}
}
