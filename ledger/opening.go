/*
opening.go - Opening-balance state machine

STATES:
  unpaid (initial) -> partially_paid -> paid (terminal)
  unpaid -> paid directly when one clearance covers the whole remainder.

  Status only ever moves forward, and only as a side effect of a
  debt-clearance payment.

REMAINING DEBT:
  Payments carry no enforced link to the balance they cleared. The uncleared
  remainder of each balance is re-derived from history every time: the sum of
  all debt-clearance payments is poured into the party's balances oldest
  first. If more was cleared than was ever owed, the history is inconsistent
  and the caller gets ErrInconsistentHistory instead of a clamped number.

  The pour is only sound if no balance predates a clearance already made.
  New balances are therefore never backdated before LatestClearance.
*/
package ledger

import (
	"fmt"
	"sort"
	"time"

	"github.com/warp/ledger-engine/money"
)

// =============================================================================
// STATUS
// =============================================================================

type BalanceStatus string

const (
	StatusUnpaid        BalanceStatus = "unpaid"
	StatusPartiallyPaid BalanceStatus = "partially_paid"
	StatusPaid          BalanceStatus = "paid"
)

// Rank orders statuses along the only allowed direction of travel.
func (s BalanceStatus) Rank() int {
	switch s {
	case StatusUnpaid:
		return 0
	case StatusPartiallyPaid:
		return 1
	case StatusPaid:
		return 2
	default:
		return -1
	}
}

func (s BalanceStatus) Valid() bool { return s.Rank() >= 0 }

// CanMoveTo reports whether next does not regress from s.
func (s BalanceStatus) CanMoveTo(next BalanceStatus) bool {
	return s.Valid() && next.Valid() && next.Rank() >= s.Rank()
}

// =============================================================================
// TRANSITION
// =============================================================================

// Transition is the effect of one clearance on one opening balance.
type Transition struct {
	BalanceID OpeningBalanceID
	From      BalanceStatus
	To        BalanceStatus

	Remaining      money.Money // before the clearance
	Cleared        money.Money // applied to this balance
	RemainingAfter money.Money
	Overflow       money.Money // part of the clearance this balance could not absorb
}

// Advance drives the state machine with a clearance of amount clear against
// a balance whose uncleared remainder is remaining.
func Advance(b OpeningBalance, remaining, clear money.Money) (Transition, error) {
	if !clear.IsPositive() {
		return Transition{}, fmt.Errorf("%w: clearance %s", ErrInvalidAmount, clear)
	}
	if b.Status == StatusPaid {
		return Transition{}, &InconsistentHistoryError{
			PartyID: b.PartyID, BalanceID: b.ID,
			Detail: "clearance applied to a paid balance",
		}
	}
	if !remaining.IsPositive() {
		return Transition{}, &InconsistentHistoryError{
			PartyID: b.PartyID, BalanceID: b.ID,
			Detail: fmt.Sprintf("non-positive remainder %s on %s balance", remaining, b.Status),
		}
	}

	t := Transition{BalanceID: b.ID, From: b.Status, Remaining: remaining}
	if clear.GreaterOrEqual(remaining) {
		t.To = StatusPaid
		t.Cleared = remaining
		t.RemainingAfter = money.Zero
		t.Overflow = clear.Sub(remaining)
	} else {
		t.To = StatusPartiallyPaid
		t.Cleared = clear
		t.RemainingAfter = remaining.Sub(clear)
		t.Overflow = money.Zero
	}

	if !t.From.CanMoveTo(t.To) {
		return Transition{}, &InconsistentHistoryError{
			PartyID: b.PartyID, BalanceID: b.ID,
			Detail: fmt.Sprintf("status would regress from %s to %s", t.From, t.To),
		}
	}
	return t, nil
}

// =============================================================================
// DERIVED REMAINDERS
// =============================================================================

// BalanceState is an opening balance with its derived clearance figures.
type BalanceState struct {
	Balance   OpeningBalance
	Cleared   money.Money
	Remaining money.Money
}

// DeriveBalances re-derives each balance's uncleared remainder from payment
// history. The result is ordered oldest first; ties keep input order.
func DeriveBalances(balances []OpeningBalance, history []Payment) ([]BalanceState, error) {
	ordered := make([]OpeningBalance, len(balances))
	copy(ordered, balances)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	pool := money.Zero
	for _, p := range history {
		if p.Purpose == PurposeDebtClearance {
			pool = pool.Add(p.Amount)
		}
	}

	states := make([]BalanceState, len(ordered))
	for i, b := range ordered {
		take := pool.Min(b.Amount)
		if take.IsNegative() {
			take = money.Zero
		}
		pool = pool.Sub(take)
		states[i] = BalanceState{Balance: b, Cleared: take, Remaining: b.Amount.Sub(take)}
	}

	if pool.IsPositive() {
		return nil, &InconsistentHistoryError{
			PartyID: partyOf(balances, history),
			Detail:  fmt.Sprintf("debt clearances exceed opening balances by %s", pool),
			Excess:  pool,
		}
	}
	return states, nil
}

// LatestClearance returns the timestamp of the newest debt-clearance
// payment in history, or the zero time when there is none.
func LatestClearance(history []Payment) time.Time {
	var latest time.Time
	for _, p := range history {
		if p.Purpose == PurposeDebtClearance && p.CreatedAt.After(latest) {
			latest = p.CreatedAt
		}
	}
	return latest
}

func partyOf(balances []OpeningBalance, history []Payment) PartyID {
	if len(balances) > 0 {
		return balances[0].PartyID
	}
	if len(history) > 0 {
		return history[0].PartyID
	}
	return ""
}
