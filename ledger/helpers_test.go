package ledger_test

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/money"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

const party ledger.PartyID = "client-1"

func day(n int) time.Time {
	return time.Date(2025, time.January, 1, 9, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func amt(units int64) money.Money { return money.New(units) }

func opening(id string, units int64, at time.Time) ledger.OpeningBalance {
	return ledger.OpeningBalance{
		ID: ledger.OpeningBalanceID(id), PartyID: party,
		Amount: amt(units), Status: ledger.StatusUnpaid, CreatedAt: at,
	}
}

func order(id string, qty, unitCost int64, at time.Time) ledger.Order {
	o, err := ledger.NewOrder(ledger.OrderID(id), party, "cement", decimal.NewFromInt(qty), amt(unitCost), at)
	if err != nil {
		panic(err)
	}
	return o
}

func payment(id string, units int64, purpose ledger.PaymentPurpose, at time.Time) ledger.Payment {
	return ledger.Payment{
		ID: ledger.PaymentID(id), PartyID: party, Amount: amt(units),
		Channel: ledger.Cash(), Purpose: purpose, CreatedAt: at,
	}
}

// sequentialIDs makes waterfall output deterministic.
func sequentialIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func newWaterfall() *ledger.Waterfall {
	return &ledger.Waterfall{NewID: sequentialIDs("pay")}
}

// applyTransitions mimics what a store does with an allocation result.
func applyTransitions(balances []ledger.OpeningBalance, res ledger.AllocationResult) []ledger.OpeningBalance {
	out := make([]ledger.OpeningBalance, len(balances))
	copy(out, balances)
	for _, t := range res.Transitions {
		for i := range out {
			if out[i].ID == t.BalanceID {
				out[i].Status = t.To
			}
		}
	}
	return out
}
