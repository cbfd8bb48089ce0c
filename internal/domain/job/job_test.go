package job_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/settld/core/pkg/errs"

	"github.com/settld/core/internal/domain/event"
	"github.com/settld/core/internal/domain/job"
)

func mustEvent(t *testing.T, streamID, typ string, payload map[string]any, prev string, at time.Time) event.Event {
	t.Helper()

	ev, err := event.CreateEvent(streamID, typ, event.Actor{Type: event.ActorSystem, ID: "sys"}, payload, prev, at)
	require.NoError(t, err)

	return ev
}

func TestReduce_HappyPathToBooked(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	e1 := mustEvent(t, "job_1", "JOB_CREATED", map[string]any{"templateId": "T1", "customerId": "C1", "siteId": "S1"}, "", now)
	e2 := mustEvent(t, "job_1", "JOB_QUOTED", map[string]any{}, e1.ChainHash, now.Add(time.Minute))
	e3 := mustEvent(t, "job_1", "BOOKED", map[string]any{"policyHash": "ph1"}, e2.ChainHash, now.Add(2*time.Minute))

	state, err := job.Reduce([]event.Event{e1, e2, e3})
	require.NoError(t, err)

	assert.Equal(t, job.StatusBooked, state.Status)
	assert.Equal(t, "T1", state.TemplateID)
	assert.Equal(t, "ph1", state.PolicyHash)
}

func TestReduce_RejectsSettleWithoutCompleted(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	e1 := mustEvent(t, "job_1", "JOB_CREATED", map[string]any{}, "", now)
	e2 := mustEvent(t, "job_1", "SETTLED", map[string]any{}, e1.ChainHash, now.Add(time.Minute))

	_, err := job.Reduce([]event.Event{e1, e2})
	require.ErrorIs(t, err, errs.ErrIllegalTransition)
}

func TestReduce_EvidenceAccumulates(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	e1 := mustEvent(t, "job_1", "JOB_CREATED", map[string]any{}, "", now)
	e2 := mustEvent(t, "job_1", "EVIDENCE_CAPTURED", map[string]any{"evidenceId": "ev1", "contentType": "IMAGE", "sizeBytes": float64(1024)}, e1.ChainHash, now.Add(time.Minute))

	state, err := job.Reduce([]event.Event{e1, e2})
	require.NoError(t, err)
	require.Len(t, state.Evidence, 1)
	assert.Equal(t, "ev1", state.Evidence[0].EvidenceID)
	assert.EqualValues(t, 1024, state.Evidence[0].SizeBytes)
}
