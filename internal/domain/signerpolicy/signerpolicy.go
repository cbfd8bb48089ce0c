// Package signerpolicy resolves, per event type, which actor kinds may sign
// an event and checks that a candidate event satisfies that policy against a
// tenant's registered signer keys. It is consulted by internal/domain/validate
// after structural reduction, never by the reducers themselves.
package signerpolicy

import (
	"fmt"

	"github.com/settld/core/internal/domain/event"
	"github.com/settld/core/pkg/errs"
)

// Kind enumerates which actor kind(s) may sign an event of a given type.
type Kind string

const (
	KindServer            Kind = "server"
	KindRobot              Kind = "robot"
	KindOperator           Kind = "operator"
	KindServerOrOperator   Kind = "server_or_operator"
	KindServerOrRobot      Kind = "server_or_robot"
	KindRobotOrOperator    Kind = "robot_or_operator"
	KindNone               Kind = "none"
)

// Policy maps an event type to its required signer Kind. Event types absent
// from the map default to KindNone (no signature requirement).
type Policy map[string]Kind

// Default is settld's built-in signature policy, grounded in spec.md §4.3.
var Default = Policy{
	"JOB_CREATED":                 KindNone,
	"JOB_QUOTED":                  KindNone,
	"BOOKED":                      KindServer,
	"MATCHED":                     KindServer,
	"RESERVED":                    KindServer,
	"OPERATOR_COVERAGE_RESERVED":  KindServer,
	"EN_ROUTE":                    KindRobot,
	"ACCESS_GRANTED":              KindServerOrOperator,
	"EXECUTION_STARTED":           KindRobot,
	"HEARTBEAT":                   KindRobot,
	"JOB_EXECUTION_STALLED":       KindServer,
	"JOB_EXECUTION_RESUMED":       KindRobot,
	"ASSIST_ASSIGNED":             KindServerOrOperator,
	"EXECUTION_COMPLETED":         KindRobot,
	"JOB_EXECUTION_COMPLETED":     KindRobot,
	"ABORTING_SAFE_EXIT":          KindRobotOrOperator,
	"ABORTED":                     KindServer,
	"EVIDENCE_CAPTURED":           KindRobotOrOperator,
	"CLAIM_APPROVED":              KindServer,
	"SETTLEMENT_HELD":             KindServer,
	"SETTLEMENT_RELEASED":         KindServer,
	"SETTLEMENT_REFUNDED":         KindServer,
	"SETTLEMENT_FORFEITED":        KindServer,
	"SETTLED":                     KindServer,
	"PROOF_EVALUATED":             KindServer,
	"ROBOT_REGISTERED":            KindServer,
	"ROBOT_HEARTBEAT":             KindRobot,
	"ROBOT_QUARANTINED":           KindServer,
	"DISPUTE_VERDICT_RECORDED":    KindServer,
}

// Resolve returns the required Kind for eventType, defaulting to KindNone.
func (p Policy) Resolve(eventType string) Kind {
	if k, ok := p[eventType]; ok {
		return k
	}

	return KindNone
}

// ActiveKeys looks up the currently-active Ed25519 public key for an actor.
// Implementations are typically backed by the robot/operator/governance
// signer-key store.
type ActiveKeys interface {
	// ActiveKeyID returns the signerKeyId currently registered as active for
	// (tenantID, actorType, actorID), or false if none is registered.
	ActiveKeyID(tenantID string, actorType event.ActorType, actorID string) (string, bool)
}

// satisfies reports whether actorType is one of the actor kinds permitted by
// kind.
func satisfies(kind Kind, actorType event.ActorType) bool {
	switch kind {
	case KindServer:
		return actorType == event.ActorSystem || actorType == event.ActorOps
	case KindRobot:
		return actorType == event.ActorRobot
	case KindOperator:
		return actorType == event.ActorOperator
	case KindServerOrOperator:
		return actorType == event.ActorSystem || actorType == event.ActorOps || actorType == event.ActorOperator
	case KindServerOrRobot:
		return actorType == event.ActorSystem || actorType == event.ActorOps || actorType == event.ActorRobot
	case KindRobotOrOperator:
		return actorType == event.ActorRobot || actorType == event.ActorOperator
	case KindNone:
		return true
	}

	return false
}

// Check enforces the signature policy for ev: that its actor type is
// permitted for ev.Type, that (for anything other than KindNone) a
// signature is present, that the actor has an active registered key, and
// that ev.SignerKeyID matches it.
func Check(p Policy, ev event.Event, keys ActiveKeys, tenantID string) error {
	kind := p.Resolve(ev.Type)
	if kind == KindNone {
		return nil
	}

	if !satisfies(kind, ev.Actor.Type) {
		return fmt.Errorf("%w: event %q requires signer kind %q, actor is %q", errs.ErrSignatureRequired, ev.Type, kind, ev.Actor.Type)
	}

	if ev.Signature == "" {
		return fmt.Errorf("%w: event %q requires a signature from %q", errs.ErrSignatureRequired, ev.Type, kind)
	}

	activeKeyID, ok := keys.ActiveKeyID(tenantID, ev.Actor.Type, ev.Actor.ID)
	if !ok {
		return fmt.Errorf("%w: no active signer key registered for %s %q", errs.ErrUnknownSignerKey, ev.Actor.Type, ev.Actor.ID)
	}

	if ev.SignerKeyID != activeKeyID {
		return fmt.Errorf("%w: event signerKeyId %q does not match actor's active key %q", errs.ErrUnknownSignerKey, ev.SignerKeyID, activeKeyID)
	}

	return nil
}
