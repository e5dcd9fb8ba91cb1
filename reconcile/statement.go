package reconcile

import (
	"context"

	"github.com/warp/ledger-engine/expense"
	"github.com/warp/ledger-engine/ledger"
)

// Statement is a party's ledger for one window.
type Statement struct {
	Party  ledger.Party
	Window ledger.Window

	// Summary totals the window's rows. When the window has no rows its
	// closing balances are the balance forward.
	Summary ledger.Summary
}

// Statement folds a party's full history and slices it to period. With
// includeExpenses, company expenses whose department matches the party's
// name appear as informational rows.
func (r *Reconciler) Statement(ctx context.Context, party ledger.PartyID, period ledger.Period, includeExpenses bool) (Statement, error) {
	if err := period.Validate(); err != nil {
		return Statement{}, err
	}
	p, err := r.store.Party(ctx, party)
	if err != nil {
		return Statement{}, err
	}
	rows, err := r.fold(ctx, p, includeExpenses)
	if err != nil {
		return Statement{}, err
	}

	w := ledger.Slice(rows, period)
	s := ledger.Summarize(w.Rows)
	if len(w.Rows) == 0 {
		s.OrderBalance, s.NetBalance = w.ForwardOrderBalance, w.ForwardNetBalance
	}
	return Statement{Party: p, Window: w, Summary: s}, nil
}

// Ledger returns every row of a party's ledger.
func (r *Reconciler) Ledger(ctx context.Context, party ledger.PartyID) ([]ledger.LedgerRow, error) {
	p, err := r.store.Party(ctx, party)
	if err != nil {
		return nil, err
	}
	return r.fold(ctx, p, false)
}

func (r *Reconciler) fold(ctx context.Context, p ledger.Party, includeExpenses bool) ([]ledger.LedgerRow, error) {
	balances, orders, payments, err := ledger.PartyRecords(ctx, r.store, p.ID)
	if err != nil {
		return nil, err
	}
	events := ledger.Events(balances, orders, payments)
	if includeExpenses {
		all, err := r.store.Expenses(ctx, ledger.AllTime)
		if err != nil {
			return nil, err
		}
		events = ledger.WithExpenses(events, expense.ForDepartment(all, p.Name))
	}
	r.metrics.Folds.Inc()
	return ledger.Fold(events), nil
}

// OrderStatements lists a party's orders with the payments that reference them.
func (r *Reconciler) OrderStatements(ctx context.Context, party ledger.PartyID) ([]ledger.OrderStatement, error) {
	if _, err := r.store.Party(ctx, party); err != nil {
		return nil, err
	}
	orders, err := r.store.Orders(ctx, party)
	if err != nil {
		return nil, err
	}
	payments, err := r.store.Payments(ctx, party)
	if err != nil {
		return nil, err
	}
	return ledger.OrderStatements(orders, payments), nil
}

// CompanySummary aggregates company expenses and deposits for period.
func (r *Reconciler) CompanySummary(ctx context.Context, period ledger.Period) (expense.Summary, error) {
	if err := period.Validate(); err != nil {
		return expense.Summary{}, err
	}
	expenses, err := r.store.Expenses(ctx, period)
	if err != nil {
		return expense.Summary{}, err
	}
	deposits, err := r.store.Deposits(ctx, period)
	if err != nil {
		return expense.Summary{}, err
	}
	return expense.Aggregate(expenses, deposits, period), nil
}
