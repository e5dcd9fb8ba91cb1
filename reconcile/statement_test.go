package reconcile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/money"
)

func TestStatement_WindowCarriesBalanceForward(t *testing.T) {
	// GIVEN: activity before and inside a window
	f := newFixture(t)
	ctx := context.Background()
	f.balance(t, 1000, day(1))
	f.order(t, 5, 100, day(2))
	_, err := f.pay(1200, day(10))
	require.NoError(t, err)

	// WHEN: only days 5 through 15 are requested
	period, err := ledger.ParsePeriod("2025-01-05", "2025-01-15")
	require.NoError(t, err)
	st, err := f.rec.Statement(ctx, f.party.ID, period, false)
	require.NoError(t, err)

	// THEN
	assert.Equal(t, "1500.00", st.Window.ForwardNetBalance.String())
	assert.Equal(t, "500.00", st.Window.ForwardOrderBalance.String())
	require.Len(t, st.Window.Rows, 2, "one payment split into clearance and order payment")
	assert.Equal(t, "300.00", st.Summary.NetBalance.String())
	assert.Equal(t, "300.00", st.Summary.OrderBalance.String())
	assert.Equal(t, "1200.00", st.Summary.TotalPaid().String())
}

func TestStatement_EmptyWindowUsesBalanceForward(t *testing.T) {
	f := newFixture(t)
	f.balance(t, 700, day(1))

	period, err := ledger.ParsePeriod("2025-01-20", "2025-01-21")
	require.NoError(t, err)
	st, err := f.rec.Statement(context.Background(), f.party.ID, period, false)
	require.NoError(t, err)

	assert.Empty(t, st.Window.Rows)
	assert.Equal(t, "700.00", st.Summary.NetBalance.String())
}

func TestStatement_ExpensesAreInformational(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.order(t, 1, 400, day(1))
	_, err := f.rec.RecordExpense(ctx, ledger.Expense{Item: "delivery", Department: "Acme Ltd", Amount: money.New(50), Channel: ledger.Cash(), CreatedAt: day(2)})
	require.NoError(t, err)
	_, err = f.rec.RecordExpense(ctx, ledger.Expense{Item: "rent", Department: "Admin", Amount: money.New(900), Channel: ledger.Cash(), CreatedAt: day(2)})
	require.NoError(t, err)

	without, err := f.rec.Statement(ctx, f.party.ID, ledger.AllTime, false)
	require.NoError(t, err)
	with, err := f.rec.Statement(ctx, f.party.ID, ledger.AllTime, true)
	require.NoError(t, err)

	assert.Len(t, without.Window.Rows, 1)
	require.Len(t, with.Window.Rows, 2, "only the party's own department is shown")
	assert.Equal(t, ledger.KindExpense, with.Window.Rows[1].Kind)
	assert.Equal(t, "400.00", with.Window.Rows[1].NetBalance.String())
	assert.True(t, with.Summary.NetBalance.Equal(without.Summary.NetBalance))
	assert.Equal(t, "50.00", with.Summary.Expenses.String())
}

func TestStatement_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.rec.Statement(ctx, "nobody", ledger.AllTime, false)
	assert.ErrorIs(t, err, ledger.ErrPartyNotFound)

	_, err = f.rec.Statement(ctx, f.party.ID, ledger.Period{Start: day(5), End: day(1)}, false)
	assert.ErrorIs(t, err, ledger.ErrInvalidPeriod)
}

func TestOrderStatements_FollowReferencedPayments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.order(t, 2, 250, day(1))

	_, err := f.rec.RecordPayment(ctx, ledger.AllocationRequest{
		PartyID: f.party.ID, Amount: money.New(200), Channel: ledger.Cash(), At: day(2), OrderID: o.ID,
	})
	require.NoError(t, err)

	got, err := f.rec.OrderStatements(ctx, f.party.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "200.00", got[0].Paid.String())
	assert.Equal(t, "300.00", got[0].Outstanding.String())
}

func TestCompanySummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.rec.RecordExpense(ctx, ledger.Expense{Item: "fuel", Amount: money.New(100), Channel: ledger.Bank("KCB"), CreatedAt: day(3)})
	require.NoError(t, err)
	_, err = f.rec.RecordDeposit(ctx, ledger.Deposit{Source: "sales", Amount: money.New(250), Channel: ledger.Bank("KCB"), CreatedAt: day(4)})
	require.NoError(t, err)

	s, err := f.rec.CompanySummary(ctx, ledger.AllTime)
	require.NoError(t, err)
	assert.Equal(t, "100.00", s.TotalExpense.String())
	assert.Equal(t, "250.00", s.TotalIncome.String())
	assert.Equal(t, "150.00", s.BalanceForward.String())
	assert.Equal(t, "150.00", s.Cash.ByBank["KCB"].String())
}
