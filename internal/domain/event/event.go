// Package event implements the append-only, hash-chained event log that
// every aggregate in settld is built on: creation, signing, and chain
// verification. Nothing here touches storage — Stream is an in-memory
// ordered slice; persistence lives in internal/store.
package event

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/settld/core/pkg/canonicaljson"
	"github.com/settld/core/pkg/errs"
)

// ActorType enumerates who originated an event.
type ActorType string

const (
	ActorRequester  ActorType = "Requester"
	ActorRobot      ActorType = "Robot"
	ActorOperator   ActorType = "Operator"
	ActorSystem     ActorType = "System"
	ActorOps        ActorType = "Ops"
	ActorFinance    ActorType = "Finance"
	ActorPricing    ActorType = "Pricing"
	ActorDispatch   ActorType = "Dispatch"
	ActorRisk       ActorType = "Risk"
	ActorRetention  ActorType = "Retention"
	ActorAccounting ActorType = "Accounting"
	ActorAgent      ActorType = "Agent"
)

// Actor identifies the originator of an event.
type Actor struct {
	Type ActorType `json:"type"`
	ID   string    `json:"id"`
}

// Event is one immutable, hash-chained entry in a stream.
type Event struct {
	V             int       `json:"v"`
	ID            string    `json:"id"`
	StreamID      string    `json:"streamId"`
	Type          string    `json:"type"`
	At            time.Time `json:"at"`
	Actor         Actor     `json:"actor"`
	Payload       any       `json:"payload"`
	PayloadHash   string    `json:"payloadHash"`
	PrevChainHash string    `json:"prevChainHash"`
	ChainHash     string    `json:"chainHash"`
	Signature     string    `json:"signature,omitempty"`
	SignerKeyID   string    `json:"signerKeyId,omitempty"`
}

// Stream is the ordered, per-aggregate event sequence keyed by
// (tenantId, aggregateType, aggregateId).
type Stream struct {
	TenantID      string
	AggregateType string
	AggregateID   string
	Events        []Event
}

// ID returns the canonical stream identifier used as Event.StreamID.
func (s Stream) ID() string {
	return fmt.Sprintf("%s/%s/%s", s.TenantID, s.AggregateType, s.AggregateID)
}

// Head returns the chainHash of the last event, or "" for an empty stream.
func (s Stream) Head() string {
	if len(s.Events) == 0 {
		return ""
	}

	return s.Events[len(s.Events)-1].ChainHash
}

// HashPayload returns the canonical sha256 hash of payload, hex-encoded.
func HashPayload(payload any) (string, error) {
	canon, err := canonicaljson.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("event: canonicalize payload: %w", err)
	}

	sum := sha256.Sum256(canon)

	return hex.EncodeToString(sum[:]), nil
}

// chainHash computes sha256(prevChainHash || payloadHash || id || at || type).
func chainHash(prevChainHash, payloadHash, id, at, typ string) string {
	h := sha256.New()
	h.Write([]byte(prevChainHash))
	h.Write([]byte(payloadHash))
	h.Write([]byte(id))
	h.Write([]byte(at))
	h.Write([]byte(typ))

	return hex.EncodeToString(h.Sum(nil))
}

// CreateEvent builds a new event linked to the current stream head. now is
// passed in rather than read from time.Now so callers (and tests) control
// determinism.
func CreateEvent(streamID, eventType string, actor Actor, payload any, prevChainHash string, now time.Time) (Event, error) {
	payloadHash, err := HashPayload(payload)
	if err != nil {
		return Event{}, err
	}

	id := "evt_" + uuid.NewString()
	at := now.UTC().Format(time.RFC3339Nano)

	ev := Event{
		V:             1,
		ID:            id,
		StreamID:      streamID,
		Type:          eventType,
		At:            now.UTC(),
		Actor:         actor,
		Payload:       payload,
		PayloadHash:   payloadHash,
		PrevChainHash: prevChainHash,
	}
	ev.ChainHash = chainHash(prevChainHash, payloadHash, id, at, eventType)

	return ev, nil
}

// SignEvent signs ev's chainHash with priv and attaches signerKeyID,
// returning the updated event. The caller is responsible for persisting the
// resulting signature alongside the event — SignEvent never mutates ev.
func SignEvent(ev Event, priv ed25519.PrivateKey, signerKeyID string) Event {
	sig := ed25519.Sign(priv, []byte(ev.ChainHash))
	ev.Signature = base64.StdEncoding.EncodeToString(sig)
	ev.SignerKeyID = signerKeyID

	return ev
}

// VerifySignature checks ev.Signature against ev.ChainHash using the public
// key registered under ev.SignerKeyID in keys. An event with no signature is
// considered unsigned and is not validated here — signature *requirement* is
// a policy decision made by internal/domain/validate.
func VerifySignature(ev Event, keys map[string]ed25519.PublicKey) error {
	if ev.Signature == "" {
		return nil
	}

	pub, ok := keys[ev.SignerKeyID]
	if !ok {
		return fmt.Errorf("%w: signer key %q", errs.ErrUnknownSignerKey, ev.SignerKeyID)
	}

	sig, err := base64.StdEncoding.DecodeString(ev.Signature)
	if err != nil {
		return fmt.Errorf("%w: malformed signature encoding", errs.ErrSignatureInvalid)
	}

	if !ed25519.Verify(pub, []byte(ev.ChainHash), sig) {
		return fmt.Errorf("%w: signature does not verify", errs.ErrSignatureInvalid)
	}

	return nil
}
