// Package settlement implements the escrow engine: wallet transformations,
// the projected double-entry ledger that must stay in parity with every
// wallet snapshot, settlement policy evaluation, milestone capping, and the
// dispute/verdict state machine (spec.md §4.5).
package settlement

import (
	"fmt"

	"github.com/settld/core/pkg/errs"
)

// Wallet is an agent's available/escrow-locked balance. Every operation
// below is a pure transformation: given a Wallet and an amount, it returns a
// new Wallet (or an error) without touching storage.
type Wallet struct {
	TenantID          string
	AgentID           string
	Currency          string
	AvailableCents    int64
	EscrowLockedCents int64
	Revision          int64
}

// LedgerOpKind enumerates the projected double-entry operations a wallet
// transformation emits.
type LedgerOpKind string

const (
	LedgerHold    LedgerOpKind = "HOLD"
	LedgerRelease LedgerOpKind = "RELEASE"
	LedgerRefund  LedgerOpKind = "REFUND"
	LedgerForfeit LedgerOpKind = "FORFEIT"
	LedgerCredit  LedgerOpKind = "CREDIT"
)

// LedgerOp is one projected posting against the wallet_available:<id> /
// wallet_escrow:<id> accounts. AccountDebited/AccountCredited name the two
// sides of the double-entry; either may be empty for a single-sided posting
// (credit from an external payout source).
type LedgerOp struct {
	Kind            LedgerOpKind
	AccountDebited  string
	AccountCredited string
	AmountCents     int64
}

func availableAccount(w Wallet) string { return fmt.Sprintf("wallet_available:%s/%s", w.TenantID, w.AgentID) }
func escrowAccount(w Wallet) string    { return fmt.Sprintf("wallet_escrow:%s/%s", w.TenantID, w.AgentID) }

// LockEscrow moves cents from payer.AvailableCents into payer.EscrowLockedCents.
func LockEscrow(payer Wallet, cents int64) (Wallet, LedgerOp, error) {
	if cents < 0 {
		return Wallet{}, LedgerOp{}, fmt.Errorf("%w: lock amount must be >= 0", errs.ErrNegativeWalletBalance)
	}

	if payer.AvailableCents < cents {
		return Wallet{}, LedgerOp{}, fmt.Errorf("%w: available %d < lock %d", errs.ErrNegativeWalletBalance, payer.AvailableCents, cents)
	}

	out := payer
	out.AvailableCents -= cents
	out.EscrowLockedCents += cents
	out.Revision++

	return out, LedgerOp{Kind: LedgerHold, AccountDebited: availableAccount(payer), AccountCredited: escrowAccount(payer), AmountCents: cents}, nil
}

// ReleaseEscrowToPayee moves cents out of payer.EscrowLockedCents and into
// payee.AvailableCents. Both updated wallets are returned.
func ReleaseEscrowToPayee(payer, payee Wallet, cents int64) (Wallet, Wallet, LedgerOp, error) {
	if cents < 0 {
		return Wallet{}, Wallet{}, LedgerOp{}, fmt.Errorf("%w: release amount must be >= 0", errs.ErrNegativeWalletBalance)
	}

	if payer.EscrowLockedCents < cents {
		return Wallet{}, Wallet{}, LedgerOp{}, fmt.Errorf("%w: escrow %d < release %d", errs.ErrInsufficientEscrow, payer.EscrowLockedCents, cents)
	}

	outPayer := payer
	outPayer.EscrowLockedCents -= cents
	outPayer.Revision++

	outPayee := payee
	outPayee.AvailableCents += cents
	outPayee.Revision++

	return outPayer, outPayee, LedgerOp{Kind: LedgerRelease, AccountDebited: escrowAccount(payer), AccountCredited: availableAccount(payee), AmountCents: cents}, nil
}

// RefundEscrow moves cents from w.EscrowLockedCents back into w.AvailableCents.
func RefundEscrow(w Wallet, cents int64) (Wallet, LedgerOp, error) {
	if cents < 0 {
		return Wallet{}, LedgerOp{}, fmt.Errorf("%w: refund amount must be >= 0", errs.ErrNegativeWalletBalance)
	}

	if w.EscrowLockedCents < cents {
		return Wallet{}, LedgerOp{}, fmt.Errorf("%w: escrow %d < refund %d", errs.ErrInsufficientEscrow, w.EscrowLockedCents, cents)
	}

	out := w
	out.EscrowLockedCents -= cents
	out.AvailableCents += cents
	out.Revision++

	return out, LedgerOp{Kind: LedgerRefund, AccountDebited: escrowAccount(w), AccountCredited: availableAccount(w), AmountCents: cents}, nil
}

// ForfeitEscrow moves cents out of w.EscrowLockedCents permanently (to an
// external platform-forfeiture sink, never returned to either party's
// available balance — used when proof is INSUFFICIENT_EVIDENCE).
func ForfeitEscrow(w Wallet, cents int64) (Wallet, LedgerOp, error) {
	if cents < 0 {
		return Wallet{}, LedgerOp{}, fmt.Errorf("%w: forfeit amount must be >= 0", errs.ErrNegativeWalletBalance)
	}

	if w.EscrowLockedCents < cents {
		return Wallet{}, LedgerOp{}, fmt.Errorf("%w: escrow %d < forfeit %d", errs.ErrInsufficientEscrow, w.EscrowLockedCents, cents)
	}

	out := w
	out.EscrowLockedCents -= cents
	out.Revision++

	return out, LedgerOp{Kind: LedgerForfeit, AccountDebited: escrowAccount(w), AccountCredited: "platform_forfeiture", AmountCents: cents}, nil
}

// Credit adds cents to w.AvailableCents directly (top-up, not tied to a run).
func Credit(w Wallet, cents int64) (Wallet, LedgerOp, error) {
	if cents < 0 {
		return Wallet{}, LedgerOp{}, fmt.Errorf("%w: credit amount must be >= 0", errs.ErrNegativeWalletBalance)
	}

	out := w
	out.AvailableCents += cents
	out.Revision++

	return out, LedgerOp{Kind: LedgerCredit, AccountDebited: "external_payin", AccountCredited: availableAccount(w), AmountCents: cents}, nil
}

// LedgerSnapshot is the projected balance of one (tenant, agent) account
// pair, maintained by replaying LedgerOp postings.
type LedgerSnapshot struct {
	AvailableCents int64
	EscrowCents    int64
}

// CheckParity compares a wallet's snapshot against its projected ledger
// balance and returns ErrEscrowLedgerMismatch if they diverge. Callers
// invoke this after every commitTx that touches a wallet.
func CheckParity(w Wallet, projected LedgerSnapshot) error {
	if w.AvailableCents != projected.AvailableCents || w.EscrowLockedCents != projected.EscrowCents {
		return fmt.Errorf("%w: wallet %s/%s snapshot (avail=%d escrow=%d) != projected (avail=%d escrow=%d)",
			errs.ErrEscrowLedgerMismatch, w.TenantID, w.AgentID, w.AvailableCents, w.EscrowLockedCents, projected.AvailableCents, projected.EscrowCents)
	}

	return nil
}
