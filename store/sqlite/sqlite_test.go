package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/money"
)

func day(n int) time.Time { return time.Date(2025, time.April, n, 10, 30, 0, 0, time.UTC) }

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedParty(t *testing.T, s *Store, id ledger.PartyID) {
	t.Helper()
	require.NoError(t, s.SaveParty(context.Background(), ledger.Party{ID: id, Kind: ledger.PartyClient, Name: "Acme Ltd", CreatedAt: day(1)}))
}

func TestParties(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	seedParty(t, s, "c1")
	require.NoError(t, s.SaveParty(ctx, ledger.Party{ID: "m1", Kind: ledger.PartyMarketer, Name: "Jane", CreatedAt: day(2)}))

	p, err := s.Party(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Acme Ltd", p.Name)
	assert.Equal(t, day(1), p.CreatedAt)

	all, err := s.Parties(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, ledger.PartyID("m1"), all[1].ID)

	_, err = s.Party(ctx, "nobody")
	assert.ErrorIs(t, err, ledger.ErrPartyNotFound)

	err = s.SaveParty(ctx, ledger.Party{ID: "c1", Kind: ledger.PartyClient, Name: "again", CreatedAt: day(3)})
	assert.ErrorIs(t, err, ledger.ErrDuplicateID)
}

func TestOpeningBalances_OrderAndStatus(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	seedParty(t, s, "c1")

	// GIVEN: balances inserted out of time order, two sharing a timestamp
	for _, b := range []ledger.OpeningBalance{
		{ID: "b-late", PartyID: "c1", Amount: money.New(300), Status: ledger.StatusUnpaid, CreatedAt: day(5)},
		{ID: "b-tie-1", PartyID: "c1", Amount: money.New(100), Status: ledger.StatusUnpaid, CreatedAt: day(2)},
		{ID: "b-tie-2", PartyID: "c1", Amount: money.New(200), Status: ledger.StatusUnpaid, CreatedAt: day(2)},
	} {
		require.NoError(t, s.SaveOpeningBalance(ctx, b))
	}

	// WHEN
	got, err := s.OpeningBalances(ctx, "c1")
	require.NoError(t, err)

	// THEN: chronological, insertion order on ties, amounts exact
	require.Len(t, got, 3)
	assert.Equal(t, []ledger.OpeningBalanceID{"b-tie-1", "b-tie-2", "b-late"}, []ledger.OpeningBalanceID{got[0].ID, got[1].ID, got[2].ID})
	assert.Equal(t, "200.00", got[1].Amount.String())

	require.NoError(t, s.SetOpeningBalanceStatus(ctx, "b-tie-1", ledger.StatusPaid))
	err = s.SetOpeningBalanceStatus(ctx, "b-tie-1", ledger.StatusPartiallyPaid)
	assert.ErrorIs(t, err, ledger.ErrInconsistentHistory)
	err = s.SetOpeningBalanceStatus(ctx, "missing", ledger.StatusPaid)
	assert.ErrorIs(t, err, ledger.ErrBalanceNotFound)

	err = s.SaveOpeningBalance(ctx, ledger.OpeningBalance{ID: "b-x", PartyID: "ghost", Amount: money.New(1), CreatedAt: day(1)})
	assert.ErrorIs(t, err, ledger.ErrPartyNotFound)
}

func TestOrders_SaveUpdateLookup(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	seedParty(t, s, "c1")

	o, err := ledger.NewOrder("o1", "c1", "cement", decimal.RequireFromString("2.5"), money.MustParse("120.40"), day(3))
	require.NoError(t, err)
	require.NoError(t, s.SaveOrder(ctx, o))

	got, err := s.Order(ctx, "o1")
	require.NoError(t, err)
	assert.True(t, got.Quantity.Equal(decimal.RequireFromString("2.5")))
	assert.Equal(t, "301.00", got.TotalAmount.String())

	require.NoError(t, got.Reprice(decimal.NewFromInt(3), money.MustParse("120.40")))
	require.NoError(t, s.UpdateOrder(ctx, got))

	list, err := s.Orders(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "361.20", list[0].TotalAmount.String())

	_, err = s.Order(ctx, "o-missing")
	assert.ErrorIs(t, err, ledger.ErrOrderNotFound)
	assert.ErrorIs(t, s.UpdateOrder(ctx, ledger.Order{ID: "o-missing"}), ledger.ErrOrderNotFound)
}

func TestPayments_RoundTripAndAtomicity(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	seedParty(t, s, "c1")

	batch := []ledger.Payment{
		{ID: "p1", PartyID: "c1", Amount: money.New(500), Channel: ledger.Bank("Equity"), Purpose: ledger.PurposeDebtClearance, CreatedAt: day(4), OpeningBalanceID: "b1"},
		{ID: "p2", PartyID: "c1", Amount: money.MustParse("0.10"), Channel: ledger.MobileMoney("m-pesa"), Purpose: ledger.PurposeOrderPayment, CreatedAt: day(4), OrderID: "o1", Note: "deposit"},
	}
	require.NoError(t, s.SavePayments(ctx, batch))

	got, err := s.Payments(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	for i, want := range batch {
		assert.Equal(t, want.ID, got[i].ID)
		assert.Equal(t, want.Amount.String(), got[i].Amount.String())
		assert.Equal(t, want.Channel, got[i].Channel)
		assert.Equal(t, want.Purpose, got[i].Purpose)
		assert.Equal(t, want.CreatedAt, got[i].CreatedAt)
		assert.Equal(t, want.OrderID, got[i].OrderID)
		assert.Equal(t, want.OpeningBalanceID, got[i].OpeningBalanceID)
		assert.Equal(t, want.Note, got[i].Note)
	}

	// A batch with one duplicate writes nothing.
	err = s.SavePayments(ctx, []ledger.Payment{
		{ID: "p3", PartyID: "c1", Amount: money.New(1), Channel: ledger.Cash(), Purpose: ledger.PurposeOrderPayment, CreatedAt: day(5)},
		{ID: "p1", PartyID: "c1", Amount: money.New(1), Channel: ledger.Cash(), Purpose: ledger.PurposeOrderPayment, CreatedAt: day(5)},
	})
	assert.ErrorIs(t, err, ledger.ErrDuplicateID)

	got, err = s.Payments(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestWithTx_RollbackAndReadYourWrites(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	seedParty(t, s, "c1")
	require.NoError(t, s.SaveOpeningBalance(ctx, ledger.OpeningBalance{ID: "b1", PartyID: "c1", Amount: money.New(100), Status: ledger.StatusUnpaid, CreatedAt: day(1)}))

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx ledger.Store) error {
		require.NoError(t, tx.SavePayments(ctx, []ledger.Payment{{
			ID: "p1", PartyID: "c1", Amount: money.New(100), Channel: ledger.Cash(),
			Purpose: ledger.PurposeDebtClearance, CreatedAt: day(2),
		}}))
		require.NoError(t, tx.SetOpeningBalanceStatus(ctx, "b1", ledger.StatusPaid))

		inTx, err := tx.Payments(ctx, "c1")
		require.NoError(t, err)
		assert.Len(t, inTx, 1, "the transaction sees its own writes")
		return boom
	})
	assert.ErrorIs(t, err, boom)

	payments, err := s.Payments(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, payments)
	balances, err := s.OpeningBalances(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusUnpaid, balances[0].Status)
}

func TestExpensesAndDeposits_Window(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveExpense(ctx, ledger.Expense{ID: "e1", Item: "fuel", Department: "Logistics", Amount: money.New(30), Channel: ledger.Cash(), CreatedAt: day(1)}))
	require.NoError(t, s.SaveExpense(ctx, ledger.Expense{ID: "e2", Item: "rent", Amount: money.New(900), Channel: ledger.Bank("KCB"), CreatedAt: day(10)}))
	require.NoError(t, s.SaveDeposit(ctx, ledger.Deposit{ID: "d1", Source: "sales", Amount: money.New(50), Channel: ledger.Cash(), CreatedAt: day(10)}))

	window := ledger.Period{Start: day(5), End: day(11)}
	exps, err := s.Expenses(ctx, window)
	require.NoError(t, err)
	require.Len(t, exps, 1)
	assert.Equal(t, ledger.ExpenseID("e2"), exps[0].ID)
	assert.Equal(t, "KCB", exps[0].Channel.BankName)

	all, err := s.Expenses(ctx, ledger.AllTime)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, "Logistics", all[0].Department)

	deps, err := s.Deposits(ctx, ledger.Period{End: day(10)})
	require.NoError(t, err)
	assert.Empty(t, deps, "end bound is exclusive")

	assert.ErrorIs(t, s.SaveExpense(ctx, ledger.Expense{ID: "e1", Item: "x", Amount: money.New(1), Channel: ledger.Cash(), CreatedAt: day(2)}), ledger.ErrDuplicateID)
}

func TestReset(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	seedParty(t, s, "c1")
	require.NoError(t, s.Reset(ctx))

	all, err := s.Parties(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestTimeFormat_SortsLexically(t *testing.T) {
	a := formatTime(time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC))
	b := formatTime(time.Date(2025, 1, 1, 9, 0, 0, 5, time.UTC))
	c := formatTime(time.Date(2025, 1, 1, 10, 0, 0, 0, time.FixedZone("EAT", 3*3600)))
	assert.Less(t, a, b)
	assert.Less(t, c, a, "10:00 EAT is 07:00 UTC")
	assert.Equal(t, time.Date(2025, 1, 1, 9, 0, 0, 5, time.UTC), parseTime(b))
}
