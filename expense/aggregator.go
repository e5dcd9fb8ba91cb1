/*
Package expense aggregates company-wide expenses and income.

PURPOSE:
  Company financial reporting, independent of party reconciliation. Expenses
  are grouped by item, department and payment channel; income (deposits) is
  grouped by channel; the two are netted into a balance-forward figure.

  Nothing here touches party balances. An expense tagged with a party's name
  as its department is still only a company cost.

CHANNEL POSITIONS:
  Cash:        single total
  Bank:        total + per bank name
  MobileMoney: total + per provider
*/
package expense

import (
	"sort"

	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/money"
)

// =============================================================================
// CHANNEL POSITION
// =============================================================================

// Position is money moved through each channel.
type Position struct {
	Cash        money.Money
	Bank        money.Money
	ByBank      map[string]money.Money
	MobileMoney money.Money
	ByProvider  map[string]money.Money
}

func newPosition() Position {
	return Position{
		Cash: money.Zero, Bank: money.Zero, MobileMoney: money.Zero,
		ByBank: make(map[string]money.Money), ByProvider: make(map[string]money.Money),
	}
}

func (p *Position) add(ch ledger.Channel, amount money.Money) {
	switch ch.Kind {
	case ledger.ChannelBank:
		p.Bank = p.Bank.Add(amount)
		p.ByBank[ch.BankName] = p.ByBank[ch.BankName].Add(amount)
	case ledger.ChannelMobileMoney:
		p.MobileMoney = p.MobileMoney.Add(amount)
		p.ByProvider[ch.Provider] = p.ByProvider[ch.Provider].Add(amount)
	default:
		p.Cash = p.Cash.Add(amount)
	}
}

// Total is the sum over all channels.
func (p Position) Total() money.Money {
	return p.Cash.Add(p.Bank).Add(p.MobileMoney)
}

// Net subtracts out from p channel by channel.
func (p Position) Net(out Position) Position {
	n := newPosition()
	n.Cash = p.Cash.Sub(out.Cash)
	n.Bank = p.Bank.Sub(out.Bank)
	n.MobileMoney = p.MobileMoney.Sub(out.MobileMoney)
	for k, v := range p.ByBank {
		n.ByBank[k] = v
	}
	for k, v := range out.ByBank {
		n.ByBank[k] = n.ByBank[k].Sub(v)
	}
	for k, v := range p.ByProvider {
		n.ByProvider[k] = v
	}
	for k, v := range out.ByProvider {
		n.ByProvider[k] = n.ByProvider[k].Sub(v)
	}
	return n
}

// =============================================================================
// SUMMARY
// =============================================================================

// Line is one grouped total.
type Line struct {
	Key    string
	Amount money.Money
	Count  int
}

type Summary struct {
	Period ledger.Period

	ByItem       []Line
	ByDepartment []Line

	Spent    Position // expenses
	Received Position // deposits
	Cash     Position // Received - Spent per channel

	TotalExpense   money.Money
	TotalIncome    money.Money
	BalanceForward money.Money // TotalIncome - TotalExpense
}

// Aggregate summarizes expenses and deposits that fall inside window.
func Aggregate(expenses []ledger.Expense, deposits []ledger.Deposit, window ledger.Period) Summary {
	s := Summary{
		Period:   window,
		Spent:    newPosition(),
		Received: newPosition(),
	}

	byItem := newGrouper()
	byDept := newGrouper()
	for _, e := range expenses {
		if !window.Contains(e.CreatedAt) {
			continue
		}
		byItem.add(e.Item, e.Amount)
		byDept.add(e.Department, e.Amount)
		s.Spent.add(e.Channel, e.Amount)
	}
	for _, d := range deposits {
		if !window.Contains(d.CreatedAt) {
			continue
		}
		s.Received.add(d.Channel, d.Amount)
	}

	s.ByItem = byItem.lines()
	s.ByDepartment = byDept.lines()
	s.TotalExpense = s.Spent.Total()
	s.TotalIncome = s.Received.Total()
	s.BalanceForward = s.TotalIncome.Sub(s.TotalExpense)
	s.Cash = s.Received.Net(s.Spent)
	return s
}

// ForDepartment lists expenses tagged with a department, typically a party's
// display name. Informational only.
func ForDepartment(expenses []ledger.Expense, department string) []ledger.Expense {
	var out []ledger.Expense
	for _, e := range expenses {
		if e.Department == department {
			out = append(out, e)
		}
	}
	return out
}

// =============================================================================
// GROUPING
// =============================================================================

type grouper struct {
	totals map[string]*Line
}

func newGrouper() *grouper { return &grouper{totals: make(map[string]*Line)} }

func (g *grouper) add(key string, amount money.Money) {
	l, ok := g.totals[key]
	if !ok {
		l = &Line{Key: key, Amount: money.Zero}
		g.totals[key] = l
	}
	l.Amount = l.Amount.Add(amount)
	l.Count++
}

// lines sorts largest amount first, then by key.
func (g *grouper) lines() []Line {
	out := make([]Line, 0, len(g.totals))
	for _, l := range g.totals {
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Amount.Cmp(out[j].Amount); c != 0 {
			return c > 0
		}
		return out[i].Key < out[j].Key
	})
	return out
}
