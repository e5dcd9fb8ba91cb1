package ledger

import (
	"sort"
	"time"

	"github.com/warp/ledger-engine/money"
)

// =============================================================================
// EVENT - Closed variant over the raw record kinds
// =============================================================================

type EventKind string

const (
	KindOpeningBalance EventKind = "opening_balance"
	KindOrder          EventKind = "order"
	KindPayment        EventKind = "payment"
	KindExpense        EventKind = "expense"
)

// Event is one timeline entry. The set of implementations is closed: only
// the types in this file satisfy it, and Fold switches over all of them.
type Event interface {
	Kind() EventKind
	At() time.Time
	Amount() money.Money
	SourceID() string
	event()
}

type OpeningBalanceEvent struct{ Balance OpeningBalance }
type OrderEvent struct{ Order Order }
type PaymentEvent struct{ Payment Payment }

// ExpenseEvent is informational. It never moves a party balance.
type ExpenseEvent struct{ Expense Expense }

func (e OpeningBalanceEvent) Kind() EventKind     { return KindOpeningBalance }
func (e OpeningBalanceEvent) At() time.Time       { return e.Balance.CreatedAt }
func (e OpeningBalanceEvent) Amount() money.Money { return e.Balance.Amount }
func (e OpeningBalanceEvent) SourceID() string    { return string(e.Balance.ID) }
func (OpeningBalanceEvent) event()                {}

func (e OrderEvent) Kind() EventKind     { return KindOrder }
func (e OrderEvent) At() time.Time       { return e.Order.CreatedAt }
func (e OrderEvent) Amount() money.Money { return e.Order.TotalAmount }
func (e OrderEvent) SourceID() string    { return string(e.Order.ID) }
func (OrderEvent) event()                {}

func (e PaymentEvent) Kind() EventKind     { return KindPayment }
func (e PaymentEvent) At() time.Time       { return e.Payment.CreatedAt }
func (e PaymentEvent) Amount() money.Money { return e.Payment.Amount }
func (e PaymentEvent) SourceID() string    { return string(e.Payment.ID) }
func (PaymentEvent) event()                {}

func (e ExpenseEvent) Kind() EventKind     { return KindExpense }
func (e ExpenseEvent) At() time.Time       { return e.Expense.CreatedAt }
func (e ExpenseEvent) Amount() money.Money { return e.Expense.Amount }
func (e ExpenseEvent) SourceID() string    { return string(e.Expense.ID) }
func (ExpenseEvent) event()                {}

// =============================================================================
// TIMELINE
// =============================================================================

// Events normalizes party records into one chronological timeline.
//
// Ties on timestamp keep insertion order: balances, then orders, then
// payments, each in the order given. Record ids are never consulted because
// they are not correlated with time.
func Events(balances []OpeningBalance, orders []Order, payments []Payment) []Event {
	events := make([]Event, 0, len(balances)+len(orders)+len(payments))
	for _, b := range balances {
		events = append(events, OpeningBalanceEvent{Balance: b})
	}
	for _, o := range orders {
		events = append(events, OrderEvent{Order: o})
	}
	for _, p := range payments {
		events = append(events, PaymentEvent{Payment: p})
	}
	SortEvents(events)
	return events
}

// WithExpenses merges informational expense events into a sorted timeline.
// Expenses sort after party records that share their timestamp.
func WithExpenses(events []Event, expenses []Expense) []Event {
	merged := make([]Event, 0, len(events)+len(expenses))
	merged = append(merged, events...)
	for _, e := range expenses {
		merged = append(merged, ExpenseEvent{Expense: e})
	}
	SortEvents(merged)
	return merged
}

// SortEvents orders by timestamp, keeping input order for ties.
func SortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].At().Before(events[j].At())
	})
}
