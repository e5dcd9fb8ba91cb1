/*
folder.go - Running balance computation

PURPOSE:
  Produces the ledger view for one party: every record in chronological
  order, annotated with the balances as of after that record.

TWO RUNNING TOTALS:
  order_balance: debt attributable to orders only. Never below zero.
  net_balance:   everything owed (opening balances + orders - payments).
                 Unclamped; negative means the company owes the party.

FOLD RULES:
  opening balance          net += amount
  order                    order += amount, net += amount
  payment, debt_clearance  net -= amount
  payment, order_payment   order -= min(amount, order), net -= amount
  expense                  no effect (informational rows only)

  Conservation: after the last row,
    net_balance == sum(opening balances) + sum(orders) - sum(payments).

The fold is deterministic and read-only. It is safe to call concurrently
and repeatedly with the same input.
*/
package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/ledger-engine/money"
)

// =============================================================================
// LEDGER ROW
// =============================================================================

// LedgerRow is one derived timeline entry. Never persisted.
type LedgerRow struct {
	Kind        EventKind
	SourceID    string
	Timestamp   time.Time
	Description string

	// Quantity and UnitPrice are set for orders and opening balances.
	Quantity  *decimal.Decimal
	UnitPrice *money.Money

	Amount  money.Money
	Purpose PaymentPurpose // payments only
	Channel *Channel       // payments and expenses

	OrderBalance money.Money
	NetBalance   money.Money
}

// =============================================================================
// FOLD
// =============================================================================

// BuildLedger folds a party's records into annotated ledger rows, oldest first.
// Expenses are deliberately not an input.
func BuildLedger(balances []OpeningBalance, orders []Order, payments []Payment) []LedgerRow {
	return Fold(Events(balances, orders, payments))
}

// Fold walks an already sorted timeline and annotates each row.
func Fold(events []Event) []LedgerRow {
	rows := make([]LedgerRow, 0, len(events))
	orderBal, netBal := money.Zero, money.Zero

	for _, ev := range events {
		row := LedgerRow{
			Kind:      ev.Kind(),
			SourceID:  ev.SourceID(),
			Timestamp: ev.At(),
			Amount:    ev.Amount(),
		}

		switch e := ev.(type) {
		case OpeningBalanceEvent:
			netBal = netBal.Add(e.Balance.Amount)
			qty := decimal.NewFromInt(1)
			price := e.Balance.Amount
			row.Quantity, row.UnitPrice = &qty, &price
			row.Description = "Opening balance"

		case OrderEvent:
			orderBal = orderBal.Add(e.Order.TotalAmount)
			netBal = netBal.Add(e.Order.TotalAmount)
			qty := e.Order.Quantity
			price := e.Order.UnitCost
			row.Quantity, row.UnitPrice = &qty, &price
			row.Description = e.Order.Item

		case PaymentEvent:
			p := e.Payment
			switch p.Purpose {
			case PurposeDebtClearance:
				netBal = netBal.Sub(p.Amount)
			case PurposeOrderPayment:
				applied := p.Amount.Min(orderBal)
				orderBal = orderBal.Sub(applied)
				netBal = netBal.Sub(p.Amount)
			default:
				// Unknown purposes still reduce what the party owes.
				netBal = netBal.Sub(p.Amount)
			}
			ch := p.Channel
			row.Purpose, row.Channel = p.Purpose, &ch
			row.Description = paymentDescription(p)

		case ExpenseEvent:
			ch := e.Expense.Channel
			row.Channel = &ch
			row.Description = e.Expense.Item

		default:
			panic(fmt.Sprintf("ledger: unhandled event type %T", ev))
		}

		if orderBal.IsNegative() {
			orderBal = money.Zero
		}
		row.OrderBalance, row.NetBalance = orderBal, netBal
		rows = append(rows, row)
	}
	return rows
}

func paymentDescription(p Payment) string {
	label := "Order payment"
	if p.Purpose == PurposeDebtClearance {
		label = "Debt clearance"
	}
	desc := label + " (" + p.Channel.String() + ")"
	if p.Note != "" {
		desc += " - " + p.Note
	}
	return desc
}

// =============================================================================
// SUMMARY
// =============================================================================

// Summary totals a folded ledger.
type Summary struct {
	OpeningBalances money.Money
	Orders          money.Money
	DebtCleared     money.Money
	OrderPaid       money.Money
	Expenses        money.Money // informational rows, never netted
	OrderBalance    money.Money
	NetBalance      money.Money
	Rows            int
}

// TotalPaid is every payment regardless of purpose.
func (s Summary) TotalPaid() money.Money { return s.DebtCleared.Add(s.OrderPaid) }

// Summarize totals rows. The closing balances are those of the last row.
func Summarize(rows []LedgerRow) Summary {
	s := Summary{
		OpeningBalances: money.Zero, Orders: money.Zero, DebtCleared: money.Zero,
		OrderPaid: money.Zero, Expenses: money.Zero, OrderBalance: money.Zero,
		NetBalance: money.Zero, Rows: len(rows),
	}
	for _, r := range rows {
		switch r.Kind {
		case KindOpeningBalance:
			s.OpeningBalances = s.OpeningBalances.Add(r.Amount)
		case KindOrder:
			s.Orders = s.Orders.Add(r.Amount)
		case KindPayment:
			if r.Purpose == PurposeDebtClearance {
				s.DebtCleared = s.DebtCleared.Add(r.Amount)
			} else {
				s.OrderPaid = s.OrderPaid.Add(r.Amount)
			}
		case KindExpense:
			s.Expenses = s.Expenses.Add(r.Amount)
		}
	}
	if n := len(rows); n > 0 {
		s.OrderBalance = rows[n-1].OrderBalance
		s.NetBalance = rows[n-1].NetBalance
	}
	return s
}

// =============================================================================
// WINDOW
// =============================================================================

// Window is a slice of a folded ledger with the balances carried into it.
type Window struct {
	Period              Period
	ForwardOrderBalance money.Money
	ForwardNetBalance   money.Money
	Rows                []LedgerRow
}

// Slice cuts a folded ledger to a period. Balances are never recomputed:
// rows keep the running totals from the full fold, and the balances of the
// last row before the window become the balance forward.
func Slice(rows []LedgerRow, p Period) Window {
	w := Window{Period: p, ForwardOrderBalance: money.Zero, ForwardNetBalance: money.Zero}
	for _, r := range rows {
		switch {
		case p.Before(r.Timestamp):
			w.ForwardOrderBalance, w.ForwardNetBalance = r.OrderBalance, r.NetBalance
		case p.Contains(r.Timestamp):
			w.Rows = append(w.Rows, r)
		}
	}
	return w
}

// =============================================================================
// PER-ORDER STATEMENTS
// =============================================================================

// OrderStatement is what has been paid against one order through payments
// that reference it. Party-wide reconciliation never uses this view.
type OrderStatement struct {
	Order       Order
	Payments    []Payment
	Paid        money.Money
	Outstanding money.Money // may be negative when overpaid
}

// OrderStatements lists every order with the payments referencing it.
// Payments referencing unknown orders are ignored.
func OrderStatements(orders []Order, payments []Payment) []OrderStatement {
	byOrder := make(map[OrderID][]Payment)
	for _, p := range payments {
		if p.OrderID != "" {
			byOrder[p.OrderID] = append(byOrder[p.OrderID], p)
		}
	}

	out := make([]OrderStatement, 0, len(orders))
	for _, o := range orders {
		st := OrderStatement{Order: o, Payments: byOrder[o.ID], Paid: money.Zero}
		for _, p := range st.Payments {
			st.Paid = st.Paid.Add(p.Amount)
		}
		st.Outstanding = o.TotalAmount.Sub(st.Paid)
		out = append(out, st)
	}
	return out
}
