package governance

import (
	"crypto/ed25519"

	"github.com/settld/core/internal/domain/event"
)

// SignerKeyRecord is one registered signer key's lifecycle, reduced from the
// global governance stream (tenantId=DEFAULT_TENANT_ID, streamId
// "governance").
type SignerKeyRecord struct {
	KeyID     string
	ActorType event.ActorType
	ActorID   string
	PublicKey ed25519.PublicKey
	Active    bool
}

// SignerKeyRegistry is the reduced state of every key ever registered in the
// governance stream.
type SignerKeyRegistry struct {
	Keys          map[string]*SignerKeyRecord
	LastChainHash string
}

// ReduceSignerKeys folds the governance stream's SIGNER_KEY_* events.
func ReduceSignerKeys(events []event.Event) (SignerKeyRegistry, error) {
	reg := SignerKeyRegistry{Keys: map[string]*SignerKeyRecord{}}

	for _, ev := range events {
		payload, _ := ev.Payload.(map[string]any)

		switch ev.Type {
		case "SIGNER_KEY_REGISTERED":
			rec := &SignerKeyRecord{Active: true}
			assignString2(&rec.KeyID, payload, "keyId")
			assignString2(&rec.ActorID, payload, "actorId")

			if t, ok := payload["actorType"].(string); ok {
				rec.ActorType = event.ActorType(t)
			}

			if pub, ok := payload["publicKey"].(string); ok {
				rec.PublicKey = []byte(pub)
			}

			reg.Keys[rec.KeyID] = rec

		case "SIGNER_KEY_ROTATED":
			keyID, _ := payload["keyId"].(string)
			if rec, ok := reg.Keys[keyID]; ok {
				rec.Active = false
			}

			newRec := &SignerKeyRecord{Active: true}
			assignString2(&newRec.KeyID, payload, "newKeyId")
			assignString2(&newRec.ActorID, payload, "actorId")

			if t, ok := payload["actorType"].(string); ok {
				newRec.ActorType = event.ActorType(t)
			}

			if pub, ok := payload["newPublicKey"].(string); ok {
				newRec.PublicKey = []byte(pub)
			}

			if newRec.KeyID != "" {
				reg.Keys[newRec.KeyID] = newRec
			}

		case "SIGNER_KEY_REVOKED":
			keyID, _ := payload["keyId"].(string)
			if rec, ok := reg.Keys[keyID]; ok {
				rec.Active = false
			}
		}

		reg.LastChainHash = ev.ChainHash
	}

	return reg, nil
}

// ActivePublicKeys returns every currently-active key's Ed25519 public key
// keyed by keyId, suitable for event.VerifySignature.
func (r SignerKeyRegistry) ActivePublicKeys() map[string]ed25519.PublicKey {
	out := make(map[string]ed25519.PublicKey, len(r.Keys))

	for id, rec := range r.Keys {
		if rec.Active {
			out[id] = rec.PublicKey
		}
	}

	return out
}

// ActiveKeyID implements signerpolicy.ActiveKeys: it looks up the currently
// active key registered for (actorType, actorID), ignoring tenantID since
// signer keys live in the single global governance stream.
func (r SignerKeyRegistry) ActiveKeyID(_ string, actorType event.ActorType, actorID string) (string, bool) {
	for id, rec := range r.Keys {
		if rec.Active && rec.ActorType == actorType && rec.ActorID == actorID {
			return id, true
		}
	}

	return "", false
}

func assignString2(dst *string, payload map[string]any, key string) {
	if payload == nil {
		return
	}

	if v, ok := payload[key].(string); ok {
		*dst = v
	}
}
