package event

import (
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/settld/core/pkg/errs"
)

// VerifyResult is the outcome of a full chain verification run, in the
// recompute-and-compare shape the audit log hash check uses: every event's
// stored hashes are recomputed from its own fields and compared, rather than
// trusted as-is.
type VerifyResult struct {
	OK              bool
	FailedEventID   string
	FailedEventType string
	Reason          error
}

// VerifyChain recomputes PayloadHash and ChainHash for every event in order
// and checks the prevChainHash linkage, then verifies any attached
// signatures against keys (signerKeyId -> public key). It does not allocate
// a new slice or mutate events; it is read-only and safe to run against any
// event ordering the caller asserts is the committed stream order.
func VerifyChain(events []Event, keys map[string]ed25519.PublicKey) VerifyResult {
	prev := ""

	for _, ev := range events {
		if ev.PrevChainHash != prev {
			return VerifyResult{
				FailedEventID:   ev.ID,
				FailedEventType: ev.Type,
				Reason:          fmt.Errorf("%w: event %s expected prevChainHash %q, stream has %q", errs.ErrChainBreak, ev.ID, ev.PrevChainHash, prev),
			}
		}

		recomputedPayloadHash, err := HashPayload(ev.Payload)
		if err != nil {
			return VerifyResult{FailedEventID: ev.ID, FailedEventType: ev.Type, Reason: err}
		}

		if recomputedPayloadHash != ev.PayloadHash {
			return VerifyResult{
				FailedEventID:   ev.ID,
				FailedEventType: ev.Type,
				Reason:          fmt.Errorf("%w: event %s stored %q recomputed %q", errs.ErrPayloadHashMismatch, ev.ID, ev.PayloadHash, recomputedPayloadHash),
			}
		}

		at := ev.At.UTC().Format(time.RFC3339Nano)

		recomputedChainHash := chainHash(ev.PrevChainHash, recomputedPayloadHash, ev.ID, at, ev.Type)
		if recomputedChainHash != ev.ChainHash {
			return VerifyResult{
				FailedEventID:   ev.ID,
				FailedEventType: ev.Type,
				Reason:          fmt.Errorf("%w: event %s stored %q recomputed %q", errs.ErrChainBreak, ev.ID, ev.ChainHash, recomputedChainHash),
			}
		}

		if err := VerifySignature(ev, keys); err != nil {
			return VerifyResult{FailedEventID: ev.ID, FailedEventType: ev.Type, Reason: err}
		}

		prev = ev.ChainHash
	}

	return VerifyResult{OK: true}
}
