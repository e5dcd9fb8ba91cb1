/*
Package export renders a party ledger window as CSV or XLSX.

COLUMNS (both formats):
  Timestamp | Type | Description | Quantity | Unit Price | Order Amount |
  Payment | Expense | Order Balance | Net Balance

  Opening balances and orders fill Order Amount. Payments fill Payment and
  use their purpose (debt_clearance, order_payment) as Type. Expense rows
  fill Expense only. When the window has a start, a "Balance forward" row
  comes first.
*/
package export

import (
	"time"

	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/money"
)

// Columns is the header row.
var Columns = []string{
	"Timestamp", "Type", "Description", "Quantity", "Unit Price",
	"Order Amount", "Payment", "Expense", "Order Balance", "Net Balance",
}

// Format is an export file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

// line is one output row before format-specific encoding. Money cells are
// nil when empty.
type line struct {
	timestamp   string
	kind        string
	description string
	quantity    string
	unitPrice   *money.Money
	orderAmount *money.Money
	payment     *money.Money
	expense     *money.Money
	orderBal    money.Money
	netBal      money.Money
}

func lines(w ledger.Window) []line {
	out := make([]line, 0, len(w.Rows)+1)
	if !w.Period.Start.IsZero() {
		out = append(out, line{
			timestamp:   w.Period.Start.Format(time.RFC3339),
			kind:        "balance_forward",
			description: "Balance forward",
			orderBal:    w.ForwardOrderBalance,
			netBal:      w.ForwardNetBalance,
		})
	}
	for _, r := range w.Rows {
		amount := r.Amount
		l := line{
			timestamp:   r.Timestamp.Format(time.RFC3339),
			kind:        string(r.Kind),
			description: r.Description,
			unitPrice:   r.UnitPrice,
			orderBal:    r.OrderBalance,
			netBal:      r.NetBalance,
		}
		if r.Quantity != nil {
			l.quantity = r.Quantity.String()
		}
		switch r.Kind {
		case ledger.KindOpeningBalance, ledger.KindOrder:
			l.orderAmount = &amount
		case ledger.KindPayment:
			l.kind = string(r.Purpose)
			l.payment = &amount
		case ledger.KindExpense:
			l.expense = &amount
		}
		out = append(out, l)
	}
	return out
}

func (l line) strings() []string {
	cell := func(m *money.Money) string {
		if m == nil {
			return ""
		}
		return m.String()
	}
	return []string{
		l.timestamp, l.kind, l.description, l.quantity, cell(l.unitPrice),
		cell(l.orderAmount), cell(l.payment), cell(l.expense),
		l.orderBal.String(), l.netBal.String(),
	}
}
