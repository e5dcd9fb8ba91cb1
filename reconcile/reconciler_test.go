package reconcile

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/ledger/store"
	"github.com/warp/ledger-engine/locking"
	"github.com/warp/ledger-engine/money"
)

func day(n int) time.Time { return time.Date(2025, time.January, n, 9, 0, 0, 0, time.UTC) }

type fixture struct {
	rec     *Reconciler
	store   *store.TxMemory
	locker  *locking.Local
	metrics *Metrics
	party   ledger.Party
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	f := &fixture{
		store:   store.NewTxMemory(),
		locker:  locking.NewLocal(),
		metrics: NewMetrics(prometheus.NewRegistry()),
	}
	opts = append([]Option{
		WithLogger(logrus.NewEntry(logger)),
		WithMetrics(f.metrics),
		WithClock(func() time.Time { return day(28) }),
	}, opts...)
	f.rec = New(f.store, f.locker, opts...)

	p, err := f.rec.CreateParty(context.Background(), ledger.Party{ID: "c1", Kind: ledger.PartyClient, Name: "Acme Ltd"})
	require.NoError(t, err)
	f.party = p
	return f
}

func (f *fixture) balance(t *testing.T, units int64, at time.Time) ledger.OpeningBalance {
	t.Helper()
	b, err := f.rec.AddOpeningBalance(context.Background(), f.party.ID, money.New(units), at)
	require.NoError(t, err)
	return b
}

func (f *fixture) order(t *testing.T, qty int64, cost int64, at time.Time) ledger.Order {
	t.Helper()
	o, err := f.rec.AddOrder(context.Background(), f.party.ID, "cement", decimal.NewFromInt(qty), money.New(cost), at)
	require.NoError(t, err)
	return o
}

func (f *fixture) pay(units int64, at time.Time) (ledger.AllocationResult, error) {
	return f.rec.RecordPayment(context.Background(), ledger.AllocationRequest{
		PartyID: f.party.ID, Amount: money.New(units), Channel: ledger.Bank("Equity"), At: at,
	})
}

func TestRecordPayment_PersistsPaymentsAndTransitions(t *testing.T) {
	// GIVEN: two opening balances and an order
	f := newFixture(t)
	ctx := context.Background()
	b1 := f.balance(t, 5000, day(1))
	b2 := f.balance(t, 3000, day(2))
	f.order(t, 2, 1000, day(3))

	// WHEN: a payment larger than the first balance arrives
	res, err := f.pay(6000, day(4))
	require.NoError(t, err)

	// THEN: it cascades into the second balance
	require.Len(t, res.Payments, 2)
	assert.Equal(t, "6000.00", res.DebtCleared().String())

	stored, err := f.store.Payments(ctx, f.party.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	balances, err := f.store.OpeningBalances(ctx, f.party.ID)
	require.NoError(t, err)
	assert.Equal(t, b1.ID, balances[0].ID)
	assert.Equal(t, ledger.StatusPaid, balances[0].Status)
	assert.Equal(t, b2.ID, balances[1].ID)
	assert.Equal(t, ledger.StatusPartiallyPaid, balances[1].Status)

	// WHEN: a second payment clears the rest and spills into the order
	res, err = f.pay(4000, day(5))
	require.NoError(t, err)
	assert.Equal(t, "2000.00", res.DebtCleared().String())
	assert.Equal(t, "2000.00", res.OrderPaid().String())

	st, err := f.rec.Statement(ctx, f.party.ID, ledger.AllTime, false)
	require.NoError(t, err)
	assert.True(t, st.Summary.NetBalance.IsZero())
	assert.True(t, st.Summary.OrderBalance.IsZero())

	assert.Equal(t, float64(2), testutil.ToFloat64(f.metrics.Allocations.WithLabelValues(outcomeOK)))
	assert.Equal(t, float64(8000), testutil.ToFloat64(f.metrics.AllocatedAmount.WithLabelValues("debt_clearance")))
}

func TestRecordPayment_StampsMissingTimestamp(t *testing.T) {
	f := newFixture(t)
	res, err := f.rec.RecordPayment(context.Background(), ledger.AllocationRequest{
		PartyID: f.party.ID, Amount: money.New(10), Channel: ledger.Cash(),
	})
	require.NoError(t, err)
	require.Len(t, res.Payments, 1)
	assert.Equal(t, day(28), res.Payments[0].CreatedAt)
}

func TestRecordPayment_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other, err := f.rec.CreateParty(ctx, ledger.Party{ID: "c2", Kind: ledger.PartyMarketer, Name: "Other"})
	require.NoError(t, err)
	foreign, err := f.rec.AddOrder(ctx, other.ID, "sand", decimal.NewFromInt(1), money.New(5), day(1))
	require.NoError(t, err)

	tests := []struct {
		name string
		req  ledger.AllocationRequest
		is   error
	}{
		{"zero amount", ledger.AllocationRequest{PartyID: "c1", Amount: money.Zero, Channel: ledger.Cash()}, ledger.ErrInvalidAmount},
		{"bank without name", ledger.AllocationRequest{PartyID: "c1", Amount: money.New(1), Channel: ledger.Channel{Kind: ledger.ChannelBank}}, ledger.ErrIncompleteChannelInfo},
		{"unknown party", ledger.AllocationRequest{PartyID: "nobody", Amount: money.New(1), Channel: ledger.Cash()}, ledger.ErrPartyNotFound},
		{"unknown order", ledger.AllocationRequest{PartyID: "c1", Amount: money.New(1), Channel: ledger.Cash(), OrderID: "missing"}, ledger.ErrOrderNotFound},
		{"order of another party", ledger.AllocationRequest{PartyID: "c1", Amount: money.New(1), Channel: ledger.Cash(), OrderID: foreign.ID}, ledger.ErrOrderNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.rec.RecordPayment(ctx, tt.req)
			assert.ErrorIs(t, err, tt.is)
		})
	}

	payments, err := f.store.Payments(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, payments, "rejected requests write nothing")
	assert.Equal(t, float64(len(tests)), testutil.ToFloat64(f.metrics.Allocations.WithLabelValues(outcomeRejected)))
}

func TestRecordPayment_InconsistentHistoryWritesNothing(t *testing.T) {
	// GIVEN: stored clearances that exceed the only opening balance
	f := newFixture(t)
	ctx := context.Background()
	b := f.balance(t, 100, day(1))
	require.NoError(t, f.store.SavePayments(ctx, []ledger.Payment{{
		ID: "p-bad", PartyID: f.party.ID, Amount: money.New(150), Channel: ledger.Cash(),
		Purpose: ledger.PurposeDebtClearance, CreatedAt: day(2), OpeningBalanceID: b.ID,
	}}))

	// WHEN
	_, err := f.pay(50, day(3))

	// THEN
	assert.ErrorIs(t, err, ledger.ErrInconsistentHistory)
	payments, err := f.store.Payments(ctx, f.party.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 1)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.Allocations.WithLabelValues(outcomeInconsistent)))
}

func TestRecordPayment_LockTimeout(t *testing.T) {
	f := newFixture(t, WithLockWait(20*time.Millisecond))
	f.balance(t, 100, day(1))

	unlock, err := f.locker.Lock(context.Background(), locking.PartyKey("c1"))
	require.NoError(t, err)
	defer unlock()

	_, err = f.pay(10, day(2))
	assert.ErrorIs(t, err, locking.ErrNotObtained)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.Allocations.WithLabelValues(outcomeLockTimeout)))
}

func TestRecordPayment_ConcurrentAllocationsNeverOverClear(t *testing.T) {
	// GIVEN: 5,000 of legacy debt and 20 concurrent payments of 500
	f := newFixture(t)
	ctx := context.Background()
	f.balance(t, 5000, day(1))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.pay(500, day(2))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// THEN: exactly the balance was cleared, the rest went to orders
	payments, err := f.store.Payments(ctx, f.party.ID)
	require.NoError(t, err)
	cleared, orderPaid := money.Zero, money.Zero
	for _, p := range payments {
		if p.Purpose == ledger.PurposeDebtClearance {
			cleared = cleared.Add(p.Amount)
		} else {
			orderPaid = orderPaid.Add(p.Amount)
		}
	}
	assert.Equal(t, "5000.00", cleared.String())
	assert.Equal(t, "5000.00", orderPaid.String())

	rep, err := f.rec.Audit(ctx, f.party.ID)
	require.NoError(t, err)
	assert.True(t, rep.Clean(), "%v", rep.Findings)
}

func TestAddOpeningBalance_RejectsBackdatingBeforeClearance(t *testing.T) {
	// GIVEN: balance A cleared in full on day 6
	f := newFixture(t)
	ctx := context.Background()
	a := f.balance(t, 100, day(5))
	_, err := f.pay(100, day(6))
	require.NoError(t, err)

	// WHEN: a second balance is backdated to day 1
	_, err = f.rec.AddOpeningBalance(ctx, f.party.ID, money.New(50), day(1))

	// THEN: it is rejected and nothing was written
	assert.ErrorIs(t, err, ledger.ErrInvalidTimestamp)
	assert.True(t, ledger.IsClientError(err))
	balances, err := f.store.OpeningBalances(ctx, f.party.ID)
	require.NoError(t, err)
	require.Len(t, balances, 1)
	assert.Equal(t, a.ID, balances[0].ID)
	assert.Equal(t, ledger.StatusPaid, balances[0].Status)
}

func TestAddOpeningBalance_AfterClearanceIsClearedByNextPayment(t *testing.T) {
	// GIVEN: balance A cleared on day 6, then balance B added on day 6
	f := newFixture(t)
	ctx := context.Background()
	f.balance(t, 100, day(5))
	_, err := f.pay(100, day(6))
	require.NoError(t, err)
	b := f.balance(t, 50, day(6))

	// WHEN: 50 arrives on day 7
	res, err := f.pay(50, day(7))
	require.NoError(t, err)

	// THEN: it clears B, not order debt, and the books audit clean
	require.Len(t, res.Payments, 1)
	assert.Equal(t, ledger.PurposeDebtClearance, res.Payments[0].Purpose)
	assert.Equal(t, b.ID, res.Payments[0].OpeningBalanceID)
	require.Len(t, res.Transitions, 1)
	assert.Equal(t, ledger.StatusPaid, res.Transitions[0].To)

	rep, err := f.rec.Audit(ctx, f.party.ID)
	require.NoError(t, err)
	assert.True(t, rep.Clean(), "%v", rep.Findings)
}

func TestAddOpeningBalance_RejectsNonPositive(t *testing.T) {
	f := newFixture(t)
	_, err := f.rec.AddOpeningBalance(context.Background(), f.party.ID, money.Zero, day(1))
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
}

func TestCreateParty_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.rec.CreateParty(ctx, ledger.Party{Kind: ledger.PartyClient, Name: "  "})
	assert.ErrorIs(t, err, ledger.ErrInvalidParty)

	_, err = f.rec.CreateParty(ctx, ledger.Party{Kind: "supplier", Name: "X"})
	assert.ErrorIs(t, err, ledger.ErrInvalidParty)

	_, err = f.rec.CreateParty(ctx, ledger.Party{ID: "c1", Kind: ledger.PartyClient, Name: "Dup"})
	assert.ErrorIs(t, err, ledger.ErrDuplicateID)

	p, err := f.rec.CreateParty(ctx, ledger.Party{Kind: ledger.PartyMarketer, Name: "Jane"})
	require.NoError(t, err)
	assert.Len(t, string(p.ID), 36)
	assert.Equal(t, day(28), p.CreatedAt)
}

func TestRepriceOrder_ChangesLaterFolds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.order(t, 2, 100, day(1))

	updated, err := f.rec.RepriceOrder(ctx, o.ID, decimal.NewFromInt(3), money.New(100))
	require.NoError(t, err)
	assert.Equal(t, "300.00", updated.TotalAmount.String())

	rows, err := f.rec.Ledger(ctx, f.party.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "300.00", rows[0].OrderBalance.String())

	_, err = f.rec.RepriceOrder(ctx, o.ID, decimal.Zero, money.New(100))
	assert.ErrorIs(t, err, ledger.ErrInvalidQuantity)
}

func TestRecordExpenseAndDeposit_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.rec.RecordExpense(ctx, ledger.Expense{Item: "fuel", Amount: money.New(-1), Channel: ledger.Cash()})
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	_, err = f.rec.RecordDeposit(ctx, ledger.Deposit{Source: "sales", Amount: money.New(5), Channel: ledger.MobileMoney("")})
	assert.ErrorIs(t, err, ledger.ErrIncompleteChannelInfo)

	e, err := f.rec.RecordExpense(ctx, ledger.Expense{Item: "fuel", Amount: money.New(30), Channel: ledger.Cash()})
	require.NoError(t, err)
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, day(28), e.CreatedAt)
}
