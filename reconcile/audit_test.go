package reconcile

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/money"
)

func balanceRec(id string, units int64, status ledger.BalanceStatus, d int) ledger.OpeningBalance {
	return ledger.OpeningBalance{ID: ledger.OpeningBalanceID(id), PartyID: "c1", Amount: money.New(units), Status: status, CreatedAt: day(d)}
}

func clearance(id, balance string, units int64, d int) ledger.Payment {
	return ledger.Payment{
		ID: ledger.PaymentID(id), PartyID: "c1", Amount: money.New(units), Channel: ledger.Cash(),
		Purpose: ledger.PurposeDebtClearance, CreatedAt: day(d), OpeningBalanceID: ledger.OpeningBalanceID(balance),
	}
}

func kinds(findings []Finding) []FindingKind {
	out := make([]FindingKind, 0, len(findings))
	for _, f := range findings {
		out = append(out, f.Kind)
	}
	return out
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name     string
		balances []ledger.OpeningBalance
		orders   []ledger.Order
		payments []ledger.Payment
		want     []FindingKind
	}{
		{
			name:     "consistent",
			balances: []ledger.OpeningBalance{balanceRec("b1", 100, ledger.StatusPaid, 1), balanceRec("b2", 100, ledger.StatusPartiallyPaid, 2)},
			payments: []ledger.Payment{clearance("p1", "b1", 100, 3), clearance("p2", "b2", 40, 4)},
			want:     []FindingKind{},
		},
		{
			name:     "status lags behind derivation",
			balances: []ledger.OpeningBalance{balanceRec("b1", 100, ledger.StatusUnpaid, 1)},
			payments: []ledger.Payment{clearance("p1", "b1", 100, 2)},
			want:     []FindingKind{FindingStatusMismatch},
		},
		{
			name:     "status ahead of derivation",
			balances: []ledger.OpeningBalance{balanceRec("b1", 100, ledger.StatusPaid, 1)},
			want:     []FindingKind{FindingStatusMismatch},
		},
		{
			name:     "over clearance",
			balances: []ledger.OpeningBalance{balanceRec("b1", 100, ledger.StatusPaid, 1)},
			payments: []ledger.Payment{clearance("p1", "b1", 130, 2)},
			want:     []FindingKind{FindingOverClearance},
		},
		{
			name:     "clearance names the newer balance",
			balances: []ledger.OpeningBalance{balanceRec("b1", 100, ledger.StatusPartiallyPaid, 1), balanceRec("b2", 100, ledger.StatusUnpaid, 2)},
			payments: []ledger.Payment{clearance("p1", "b2", 50, 3)},
			want:     []FindingKind{FindingReferenceMismatch},
		},
		{
			name:     "clearance names a foreign balance",
			balances: []ledger.OpeningBalance{balanceRec("b1", 100, ledger.StatusPartiallyPaid, 1)},
			payments: []ledger.Payment{clearance("p1", "zz", 50, 3)},
			want:     []FindingKind{FindingUnknownReference},
		},
		{
			name: "payment names a missing order",
			payments: []ledger.Payment{{
				ID: "p1", PartyID: "c1", Amount: money.New(5), Channel: ledger.Cash(),
				Purpose: ledger.PurposeOrderPayment, CreatedAt: day(1), OrderID: "o-missing",
			}},
			want: []FindingKind{FindingUnknownOrder},
		},
		{
			name:     "clearance spanning two balances",
			balances: []ledger.OpeningBalance{balanceRec("b1", 100, ledger.StatusPaid, 1), balanceRec("b2", 100, ledger.StatusPartiallyPaid, 2)},
			payments: []ledger.Payment{clearance("p1", "b2", 150, 3)},
			want:     []FindingKind{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Check(tt.balances, tt.orders, tt.payments)
			assert.ElementsMatch(t, tt.want, kinds(got))
		})
	}
}

func TestAudit_RecordsMetricsAndReports(t *testing.T) {
	// GIVEN: a party whose stored status was never advanced
	f := newFixture(t)
	ctx := context.Background()
	b := f.balance(t, 100, day(1))
	require.NoError(t, f.store.SavePayments(ctx, []ledger.Payment{clearance("p1", string(b.ID), 100, 2)}))

	// WHEN
	rep, err := f.rec.Audit(ctx, f.party.ID)
	require.NoError(t, err)

	// THEN
	require.Len(t, rep.Findings, 1)
	assert.Equal(t, FindingStatusMismatch, rep.Findings[0].Kind)
	assert.Equal(t, b.ID, rep.Findings[0].BalanceID)
	assert.Equal(t, day(28), rep.CheckedAt)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.AuditFindings.WithLabelValues(string(FindingStatusMismatch))))
}

func TestAuditAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.rec.CreateParty(ctx, ledger.Party{ID: "m1", Kind: ledger.PartyMarketer, Name: "Jane"})
	require.NoError(t, err)
	f.balance(t, 100, day(1))
	_, err = f.pay(60, day(2))
	require.NoError(t, err)

	reports, err := f.rec.AuditAll(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	for _, r := range reports {
		assert.True(t, r.Clean(), "party %s: %v", r.PartyID, r.Findings)
	}
	assert.Equal(t, float64(2), testutil.ToFloat64(f.metrics.AuditRuns))
}

func TestAudit_UnknownParty(t *testing.T) {
	f := newFixture(t)
	_, err := f.rec.Audit(context.Background(), "nobody")
	assert.ErrorIs(t, err, ledger.ErrPartyNotFound)
}
