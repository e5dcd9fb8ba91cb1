/*
allocation.go - Payment allocation waterfall

PURPOSE:
  Decides how an incoming payment is split between legacy debt (opening
  balances) and order debt. Returns the decision only; the caller persists
  the payments and status changes it describes.

ALGORITHM:
  1. Validate amount, channel and timestamp.
  2. Re-derive each opening balance's remainder from payment history.
  3. Walk unpaid balances oldest first. For each, clear min(left, remainder)
     with a debt_clearance payment and advance the balance's status. A
     balance whose derived remainder is zero is skipped (stale status).
  4. Whatever is left becomes one order_payment payment.

  The sum of emitted payments always equals the requested amount. Callers
  must handle one or many payments in the result.

EXAMPLE:
  Balances: 5,000 (unpaid), 3,000 (unpaid). Payment: 6,000.
    -> debt_clearance 5,000 (first balance: unpaid -> paid)
    -> debt_clearance 1,000 (second balance: unpaid -> partially_paid)

CONCURRENCY:
  Allocate is pure, but its input goes stale the moment another payment for
  the same party is written. Callers must serialize allocations per party
  (see reconcile.Reconciler).
*/
package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/warp/ledger-engine/money"
)

// =============================================================================
// REQUEST / RESULT
// =============================================================================

type AllocationRequest struct {
	PartyID PartyID
	Amount  money.Money
	Channel Channel
	At      time.Time

	// OrderID is attached to the order_payment portion, if any.
	OrderID OrderID
	Note    string
}

func (r AllocationRequest) Validate() error {
	if !r.Amount.IsPositive() {
		return fmt.Errorf("%w: payment must be positive, got %s", ErrInvalidAmount, r.Amount)
	}
	if err := r.Channel.Validate(); err != nil {
		return err
	}
	if r.At.IsZero() {
		return fmt.Errorf("%w: payment timestamp is required", ErrInvalidTimestamp)
	}
	return nil
}

// AllocationResult is the waterfall's decision: payments to record and
// opening-balance status changes to persist.
type AllocationResult struct {
	PartyID     PartyID
	Amount      money.Money
	Payments    []Payment
	Transitions []Transition
}

// DebtCleared is the total routed to opening balances.
func (r AllocationResult) DebtCleared() money.Money {
	return r.sumPurpose(PurposeDebtClearance)
}

// OrderPaid is the total routed to order debt.
func (r AllocationResult) OrderPaid() money.Money {
	return r.sumPurpose(PurposeOrderPayment)
}

func (r AllocationResult) sumPurpose(p PaymentPurpose) money.Money {
	total := money.Zero
	for _, pay := range r.Payments {
		if pay.Purpose == p {
			total = total.Add(pay.Amount)
		}
	}
	return total
}

// =============================================================================
// WATERFALL
// =============================================================================

type Waterfall struct {
	// NewID generates payment ids.
	NewID func() string
}

func NewWaterfall() *Waterfall {
	return &Waterfall{NewID: uuid.NewString}
}

// Allocate splits req across the party's opening balances and order debt.
// balances and history are the party's current records; records of other
// parties are ignored.
func (w *Waterfall) Allocate(req AllocationRequest, balances []OpeningBalance, history []Payment) (AllocationResult, error) {
	if err := req.Validate(); err != nil {
		return AllocationResult{}, err
	}

	states, err := DeriveBalances(ownBalances(req.PartyID, balances), ownPayments(req.PartyID, history))
	if err != nil {
		return AllocationResult{}, fmt.Errorf("allocate payment for party %s: %w", req.PartyID, err)
	}

	result := AllocationResult{PartyID: req.PartyID, Amount: req.Amount}
	left := req.Amount

	for _, st := range states {
		if !left.IsPositive() {
			break
		}
		if st.Balance.Status == StatusPaid || !st.Remaining.IsPositive() {
			continue
		}

		clear := left.Min(st.Remaining)
		t, err := Advance(st.Balance, st.Remaining, clear)
		if err != nil {
			return AllocationResult{}, fmt.Errorf("allocate payment for party %s: %w", req.PartyID, err)
		}

		result.Payments = append(result.Payments, w.payment(req, clear, PurposeDebtClearance, st.Balance.ID))
		result.Transitions = append(result.Transitions, t)
		left = left.Sub(clear)
	}

	if left.IsPositive() {
		result.Payments = append(result.Payments, w.payment(req, left, PurposeOrderPayment, ""))
	}
	return result, nil
}

func (w *Waterfall) payment(req AllocationRequest, amount money.Money, purpose PaymentPurpose, balance OpeningBalanceID) Payment {
	p := Payment{
		ID:               PaymentID(w.newID()),
		PartyID:          req.PartyID,
		Amount:           amount,
		Channel:          req.Channel,
		Purpose:          purpose,
		CreatedAt:        req.At,
		OpeningBalanceID: balance,
		Note:             req.Note,
	}
	if purpose == PurposeOrderPayment {
		p.OrderID = req.OrderID
	}
	return p
}

func (w *Waterfall) newID() string {
	if w.NewID == nil {
		return uuid.NewString()
	}
	return w.NewID()
}

func ownBalances(party PartyID, balances []OpeningBalance) []OpeningBalance {
	out := make([]OpeningBalance, 0, len(balances))
	for _, b := range balances {
		if b.PartyID == party || b.PartyID == "" {
			out = append(out, b)
		}
	}
	return out
}

func ownPayments(party PartyID, payments []Payment) []Payment {
	out := make([]Payment, 0, len(payments))
	for _, p := range payments {
		if p.PartyID == party || p.PartyID == "" {
			out = append(out, p)
		}
	}
	return out
}
