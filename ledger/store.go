/*
store.go - Persistence contracts for party and company records

PURPOSE:
  The engine never performs I/O. These interfaces are what callers (the
  reconcile service, the API) use to read records before invoking the
  engine and to write back the decisions it returns.

KEY INTERFACES:
  Reader:  party-scoped and company-wide reads
  Store:   Reader plus the writes an AllocationResult needs
  TxStore: Store plus atomic multi-write transactions

ORDERING CONTRACT:
  Every list is returned in chronological order (created_at ascending) with
  insertion order breaking ties. The folder's tie-break relies on it.

IMPLEMENTATIONS:
  - ledger/store/memory.go: in-memory, for tests and dev
  - store/sqlite/sqlite.go: SQLite
*/
package ledger

import "context"

// =============================================================================
// READER
// =============================================================================

type Reader interface {
	Party(ctx context.Context, id PartyID) (Party, error)
	Parties(ctx context.Context) ([]Party, error)

	OpeningBalances(ctx context.Context, party PartyID) ([]OpeningBalance, error)
	Orders(ctx context.Context, party PartyID) ([]Order, error)
	Order(ctx context.Context, id OrderID) (Order, error)
	Payments(ctx context.Context, party PartyID) ([]Payment, error)

	// Expenses and Deposits are company-wide, filtered to a window.
	Expenses(ctx context.Context, window Period) ([]Expense, error)
	Deposits(ctx context.Context, window Period) ([]Deposit, error)
}

// =============================================================================
// STORE
// =============================================================================

type Store interface {
	Reader

	SaveParty(ctx context.Context, p Party) error
	SaveOpeningBalance(ctx context.Context, b OpeningBalance) error

	// SetOpeningBalanceStatus must reject a status that regresses.
	SetOpeningBalanceStatus(ctx context.Context, id OpeningBalanceID, status BalanceStatus) error

	SaveOrder(ctx context.Context, o Order) error
	UpdateOrder(ctx context.Context, o Order) error

	// SavePayments writes all payments or none.
	SavePayments(ctx context.Context, payments []Payment) error

	SaveExpense(ctx context.Context, e Expense) error
	SaveDeposit(ctx context.Context, d Deposit) error
}

// TxStore wraps Store with transaction support. If fn returns an error the
// transaction is rolled back.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}

// PartyRecords loads everything the folder and the waterfall need for one party.
func PartyRecords(ctx context.Context, r Reader, party PartyID) ([]OpeningBalance, []Order, []Payment, error) {
	balances, err := r.OpeningBalances(ctx, party)
	if err != nil {
		return nil, nil, nil, err
	}
	orders, err := r.Orders(ctx, party)
	if err != nil {
		return nil, nil, nil, err
	}
	payments, err := r.Payments(ctx, party)
	if err != nil {
		return nil, nil, nil, err
	}
	return balances, orders, payments, nil
}
