package event_test

import (
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/settld/core/pkg/errs"

	"github.com/settld/core/internal/domain/event"
)

func appendEvent(t *testing.T, stream *event.Stream, typ string, payload any, now time.Time) event.Event {
	t.Helper()

	ev, err := event.CreateEvent(stream.ID(), typ, event.Actor{Type: event.ActorSystem, ID: "sys"}, payload, stream.Head(), now)
	require.NoError(t, err)

	stream.Events = append(stream.Events, ev)

	return ev
}

func TestCreateEvent_ChainsToHead(t *testing.T) {
	stream := event.Stream{TenantID: "t1", AggregateType: "job", AggregateID: "job_1"}
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	first := appendEvent(t, &stream, "JOB_CREATED", map[string]any{"a": 1}, now)
	assert.Empty(t, first.PrevChainHash)

	second := appendEvent(t, &stream, "JOB_QUOTED", map[string]any{"b": 2}, now.Add(time.Minute))
	assert.Equal(t, first.ChainHash, second.PrevChainHash)
}

func TestCreateEvent_DeterministicPayloadHash(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	a, err := event.CreateEvent("s", "T", event.Actor{Type: event.ActorSystem, ID: "x"}, map[string]any{"b": 1, "a": 2}, "", now)
	require.NoError(t, err)

	b, err := event.CreateEvent("s", "T", event.Actor{Type: event.ActorSystem, ID: "x"}, map[string]any{"a": 2, "b": 1}, "", now)
	require.NoError(t, err)

	assert.Equal(t, a.PayloadHash, b.PayloadHash)
}

func TestVerifyChain_DetectsBreak(t *testing.T) {
	stream := event.Stream{TenantID: "t1", AggregateType: "job", AggregateID: "job_1"}
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	appendEvent(t, &stream, "JOB_CREATED", map[string]any{"a": 1}, now)
	appendEvent(t, &stream, "JOB_QUOTED", map[string]any{"b": 2}, now.Add(time.Minute))

	tampered := make([]event.Event, len(stream.Events))
	copy(tampered, stream.Events)
	tampered[1].PrevChainHash = "bogus"

	result := event.VerifyChain(tampered, nil)
	assert.False(t, result.OK)
	assert.ErrorIs(t, result.Reason, errs.ErrChainBreak)
}

func TestVerifyChain_DetectsPayloadTamper(t *testing.T) {
	stream := event.Stream{TenantID: "t1", AggregateType: "job", AggregateID: "job_1"}
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	appendEvent(t, &stream, "JOB_CREATED", map[string]any{"a": 1}, now)

	tampered := make([]event.Event, len(stream.Events))
	copy(tampered, stream.Events)
	tampered[0].Payload = map[string]any{"a": 999}

	result := event.VerifyChain(tampered, nil)
	assert.False(t, result.OK)
	assert.ErrorIs(t, result.Reason, errs.ErrPayloadHashMismatch)
}

func TestVerifyChain_OKForUntamperedStream(t *testing.T) {
	stream := event.Stream{TenantID: "t1", AggregateType: "job", AggregateID: "job_1"}
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	appendEvent(t, &stream, "JOB_CREATED", map[string]any{"a": 1}, now)
	appendEvent(t, &stream, "JOB_QUOTED", map[string]any{"b": 2}, now.Add(time.Minute))

	result := event.VerifyChain(stream.Events, nil)
	assert.True(t, result.OK)
}

func TestSignEvent_VerifiesAgainstRegisteredKey(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	ev, err := event.CreateEvent("s", "ROBOT_HEARTBEAT", event.Actor{Type: event.ActorRobot, ID: "r1"}, map[string]any{"x": 1}, "", now)
	require.NoError(t, err)

	signed := event.SignEvent(ev, priv, "robot-key-1")

	keys := map[string]ed25519.PublicKey{"robot-key-1": pub}
	require.NoError(t, event.VerifySignature(signed, keys))
}

func TestVerifySignature_UnknownKeyFails(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	ev, err := event.CreateEvent("s", "ROBOT_HEARTBEAT", event.Actor{Type: event.ActorRobot, ID: "r1"}, map[string]any{"x": 1}, "", now)
	require.NoError(t, err)

	signed := event.SignEvent(ev, priv, "robot-key-1")

	err = event.VerifySignature(signed, map[string]ed25519.PublicKey{})
	require.ErrorIs(t, err, errs.ErrUnknownSignerKey)
}
