/*
Package sqlite provides a SQLite-backed ledger.TxStore.

PURPOSE:
  Persists parties, opening balances, orders, payments and the company
  expense/deposit streams. In production the same patterns apply to
  PostgreSQL with minor dialect differences.

INTERFACES IMPLEMENTED:
  ledger.Store:   reads and writes
  ledger.TxStore: atomic multi-write transactions (payment allocation)

ORDERING:
  Every table has an autoincrement seq column. Lists are ordered by
  created_at then seq, so records sharing a timestamp come back in the
  order they were inserted. The ledger folder's tie-break depends on it.

STORAGE FORMATS:
  Money:      TEXT, two decimal places ("1500.00"), never REAL
  Quantities: TEXT decimal
  Timestamps: TEXT, UTC, fixed width with nanoseconds, so lexical order
              equals chronological order

APPEND-ONLY:
  Payments are never updated or deleted. Opening balances only change
  status, and only forward (unpaid -> partially_paid -> paid).

CONCURRENCY:
  One connection, guarded by sync.RWMutex. SQLite has a single writer;
  WAL mode keeps readers unblocked.

USAGE:
  store, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  rec := reconcile.New(store, locking.NewLocal())

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - ledger/store.go: interface definitions
  - ledger/store/memory.go: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/warp/ledger-engine/ledger"
)

// timeFormat is fixed width so TEXT comparison orders chronologically.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// Store implements ledger.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (and migrates) the database at dbPath.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases alive and matches
	// SQLite's single-writer model.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS parties (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		kind TEXT NOT NULL CHECK (kind IN ('client', 'marketer')),
		name TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS opening_balances (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		party_id TEXT NOT NULL REFERENCES parties(id),
		amount TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('unpaid', 'partially_paid', 'paid')),
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_opening_balances_party
		ON opening_balances(party_id, created_at, seq);

	CREATE TABLE IF NOT EXISTS orders (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		party_id TEXT NOT NULL REFERENCES parties(id),
		item TEXT NOT NULL,
		quantity TEXT NOT NULL,
		unit_cost TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_orders_party
		ON orders(party_id, created_at, seq);

	-- Payments are append-only. order_id and opening_balance_id are
	-- references, not foreign keys: the auditor reports dangling ones.
	CREATE TABLE IF NOT EXISTS payments (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		party_id TEXT NOT NULL REFERENCES parties(id),
		amount TEXT NOT NULL,
		channel_kind TEXT NOT NULL,
		bank_name TEXT,
		provider TEXT,
		purpose TEXT NOT NULL CHECK (purpose IN ('debt_clearance', 'order_payment')),
		created_at TEXT NOT NULL,
		order_id TEXT,
		opening_balance_id TEXT,
		note TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_payments_party
		ON payments(party_id, created_at, seq);

	CREATE TABLE IF NOT EXISTS expenses (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		item TEXT NOT NULL,
		department TEXT,
		amount TEXT NOT NULL,
		channel_kind TEXT NOT NULL,
		bank_name TEXT,
		provider TEXT,
		created_at TEXT NOT NULL,
		note TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_expenses_created ON expenses(created_at, seq);

	CREATE TABLE IF NOT EXISTS deposits (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		source TEXT,
		amount TEXT NOT NULL,
		channel_kind TEXT NOT NULL,
		bank_name TEXT,
		provider TEXT,
		created_at TEXT NOT NULL,
		note TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_deposits_created ON deposits(created_at, seq);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// STORE (ledger.Store interface)
// =============================================================================

// Reads and writes share one implementation (ops) that runs against either
// the database or an open transaction. Amounts bind through money.Money's
// driver.Valuer and sql.Scanner.

func (s *Store) conn() ops { return ops{q: s.db} }

func (s *Store) Party(ctx context.Context, id ledger.PartyID) (ledger.Party, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().party(ctx, id)
}

func (s *Store) Parties(ctx context.Context) ([]ledger.Party, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().parties(ctx)
}

func (s *Store) OpeningBalances(ctx context.Context, party ledger.PartyID) ([]ledger.OpeningBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().openingBalances(ctx, party)
}

func (s *Store) Orders(ctx context.Context, party ledger.PartyID) ([]ledger.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().orders(ctx, party)
}

func (s *Store) Order(ctx context.Context, id ledger.OrderID) (ledger.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().order(ctx, id)
}

func (s *Store) Payments(ctx context.Context, party ledger.PartyID) ([]ledger.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().payments(ctx, party)
}

func (s *Store) Expenses(ctx context.Context, window ledger.Period) ([]ledger.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().expenses(ctx, window)
}

func (s *Store) Deposits(ctx context.Context, window ledger.Period) ([]ledger.Deposit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().deposits(ctx, window)
}

func (s *Store) SaveParty(ctx context.Context, p ledger.Party) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn().saveParty(ctx, p)
}

func (s *Store) SaveOpeningBalance(ctx context.Context, b ledger.OpeningBalance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn().saveOpeningBalance(ctx, b)
}

func (s *Store) SetOpeningBalanceStatus(ctx context.Context, id ledger.OpeningBalanceID, status ledger.BalanceStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn().setStatus(ctx, id, status)
}

func (s *Store) SaveOrder(ctx context.Context, o ledger.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn().saveOrder(ctx, o)
}

func (s *Store) UpdateOrder(ctx context.Context, o ledger.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn().updateOrder(ctx, o)
}

// SavePayments writes all payments in one transaction.
func (s *Store) SavePayments(ctx context.Context, payments []ledger.Payment) error {
	return s.WithTx(ctx, func(tx ledger.Store) error {
		return tx.SavePayments(ctx, payments)
	})
}

func (s *Store) SaveExpense(ctx context.Context, e ledger.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn().saveExpense(ctx, e)
}

func (s *Store) SaveDeposit(ctx context.Context, d ledger.Deposit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn().saveDeposit(ctx, d)
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction. Reads made through the
// ledger.Store passed to fn see the transaction's own writes.
func (s *Store) WithTx(ctx context.Context, fn func(store ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{ops{q: sqlTx}}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

type txStore struct {
	o ops
}

func (ts *txStore) Party(ctx context.Context, id ledger.PartyID) (ledger.Party, error) {
	return ts.o.party(ctx, id)
}
func (ts *txStore) Parties(ctx context.Context) ([]ledger.Party, error) { return ts.o.parties(ctx) }
func (ts *txStore) OpeningBalances(ctx context.Context, party ledger.PartyID) ([]ledger.OpeningBalance, error) {
	return ts.o.openingBalances(ctx, party)
}
func (ts *txStore) Orders(ctx context.Context, party ledger.PartyID) ([]ledger.Order, error) {
	return ts.o.orders(ctx, party)
}
func (ts *txStore) Order(ctx context.Context, id ledger.OrderID) (ledger.Order, error) {
	return ts.o.order(ctx, id)
}
func (ts *txStore) Payments(ctx context.Context, party ledger.PartyID) ([]ledger.Payment, error) {
	return ts.o.payments(ctx, party)
}
func (ts *txStore) Expenses(ctx context.Context, window ledger.Period) ([]ledger.Expense, error) {
	return ts.o.expenses(ctx, window)
}
func (ts *txStore) Deposits(ctx context.Context, window ledger.Period) ([]ledger.Deposit, error) {
	return ts.o.deposits(ctx, window)
}
func (ts *txStore) SaveParty(ctx context.Context, p ledger.Party) error {
	return ts.o.saveParty(ctx, p)
}
func (ts *txStore) SaveOpeningBalance(ctx context.Context, b ledger.OpeningBalance) error {
	return ts.o.saveOpeningBalance(ctx, b)
}
func (ts *txStore) SetOpeningBalanceStatus(ctx context.Context, id ledger.OpeningBalanceID, status ledger.BalanceStatus) error {
	return ts.o.setStatus(ctx, id, status)
}
func (ts *txStore) SaveOrder(ctx context.Context, o ledger.Order) error {
	return ts.o.saveOrder(ctx, o)
}
func (ts *txStore) UpdateOrder(ctx context.Context, o ledger.Order) error {
	return ts.o.updateOrder(ctx, o)
}
func (ts *txStore) SavePayments(ctx context.Context, payments []ledger.Payment) error {
	return ts.o.savePayments(ctx, payments)
}
func (ts *txStore) SaveExpense(ctx context.Context, e ledger.Expense) error {
	return ts.o.saveExpense(ctx, e)
}
func (ts *txStore) SaveDeposit(ctx context.Context, d ledger.Deposit) error {
	return ts.o.saveDeposit(ctx, d)
}

// =============================================================================
// QUERIES
// =============================================================================

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type ops struct {
	q querier
}

// --- parties ---

func (o ops) party(ctx context.Context, id ledger.PartyID) (ledger.Party, error) {
	var (
		p         ledger.Party
		createdAt string
	)
	err := o.q.QueryRowContext(ctx,
		`SELECT id, kind, name, created_at FROM parties WHERE id = ?`, id,
	).Scan(&p.ID, &p.Kind, &p.Name, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Party{}, fmt.Errorf("%w: %s", ledger.ErrPartyNotFound, id)
	}
	if err != nil {
		return ledger.Party{}, fmt.Errorf("failed to get party: %w", err)
	}
	p.CreatedAt = parseTime(createdAt)
	return p, nil
}

func (o ops) parties(ctx context.Context) ([]ledger.Party, error) {
	rows, err := o.q.QueryContext(ctx, `SELECT id, kind, name, created_at FROM parties ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to list parties: %w", err)
	}
	defer rows.Close()

	var out []ledger.Party
	for rows.Next() {
		var (
			p         ledger.Party
			createdAt string
		)
		if err := rows.Scan(&p.ID, &p.Kind, &p.Name, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan party: %w", err)
		}
		p.CreatedAt = parseTime(createdAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (o ops) saveParty(ctx context.Context, p ledger.Party) error {
	_, err := o.q.ExecContext(ctx,
		`INSERT INTO parties (id, kind, name, created_at) VALUES (?, ?, ?, ?)`,
		p.ID, p.Kind, p.Name, formatTime(p.CreatedAt),
	)
	return insertErr("party", string(p.ID), err)
}

func (o ops) requireParty(ctx context.Context, id ledger.PartyID) error {
	var n int
	if err := o.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM parties WHERE id = ?`, id).Scan(&n); err != nil {
		return fmt.Errorf("failed to check party: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ledger.ErrPartyNotFound, id)
	}
	return nil
}

// --- opening balances ---

func (o ops) openingBalances(ctx context.Context, party ledger.PartyID) ([]ledger.OpeningBalance, error) {
	rows, err := o.q.QueryContext(ctx, `
		SELECT id, party_id, amount, status, created_at
		FROM opening_balances
		WHERE party_id = ?
		ORDER BY created_at ASC, seq ASC`, party)
	if err != nil {
		return nil, fmt.Errorf("failed to query opening balances: %w", err)
	}
	defer rows.Close()

	var out []ledger.OpeningBalance
	for rows.Next() {
		var (
			b         ledger.OpeningBalance
			createdAt string
		)
		if err := rows.Scan(&b.ID, &b.PartyID, &b.Amount, &b.Status, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan opening balance: %w", err)
		}
		b.CreatedAt = parseTime(createdAt)
		out = append(out, b)
	}
	return out, rows.Err()
}

func (o ops) saveOpeningBalance(ctx context.Context, b ledger.OpeningBalance) error {
	if err := o.requireParty(ctx, b.PartyID); err != nil {
		return err
	}
	status := b.Status
	if status == "" {
		status = ledger.StatusUnpaid
	}
	_, err := o.q.ExecContext(ctx,
		`INSERT INTO opening_balances (id, party_id, amount, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		b.ID, b.PartyID, b.Amount, status, formatTime(b.CreatedAt),
	)
	return insertErr("balance", string(b.ID), err)
}

func (o ops) setStatus(ctx context.Context, id ledger.OpeningBalanceID, status ledger.BalanceStatus) error {
	var (
		party   ledger.PartyID
		current ledger.BalanceStatus
	)
	err := o.q.QueryRowContext(ctx,
		`SELECT party_id, status FROM opening_balances WHERE id = ?`, id,
	).Scan(&party, &current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ledger.ErrBalanceNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to get opening balance: %w", err)
	}
	if !current.CanMoveTo(status) {
		return &ledger.InconsistentHistoryError{
			PartyID: party, BalanceID: id,
			Detail: fmt.Sprintf("status cannot move from %s to %s", current, status),
		}
	}
	if _, err := o.q.ExecContext(ctx, `UPDATE opening_balances SET status = ? WHERE id = ?`, status, id); err != nil {
		return fmt.Errorf("failed to update opening balance: %w", err)
	}
	return nil
}

// --- orders ---

const orderColumns = `id, party_id, item, quantity, unit_cost, total_amount, created_at`

func (o ops) orders(ctx context.Context, party ledger.PartyID) ([]ledger.Order, error) {
	rows, err := o.q.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE party_id = ?
		ORDER BY created_at ASC, seq ASC`, party)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var out []ledger.Order
	for rows.Next() {
		ord, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ord)
	}
	return out, rows.Err()
}

func (o ops) order(ctx context.Context, id ledger.OrderID) (ledger.Order, error) {
	ord, err := scanOrder(o.q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Order{}, fmt.Errorf("%w: %s", ledger.ErrOrderNotFound, id)
	}
	return ord, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (ledger.Order, error) {
	var (
		ord       ledger.Order
		createdAt string
	)
	err := row.Scan(&ord.ID, &ord.PartyID, &ord.Item, &ord.Quantity, &ord.UnitCost, &ord.TotalAmount, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Order{}, err
	}
	if err != nil {
		return ledger.Order{}, fmt.Errorf("failed to scan order: %w", err)
	}
	ord.CreatedAt = parseTime(createdAt)
	return ord, nil
}

func (o ops) saveOrder(ctx context.Context, ord ledger.Order) error {
	if err := o.requireParty(ctx, ord.PartyID); err != nil {
		return err
	}
	_, err := o.q.ExecContext(ctx,
		`INSERT INTO orders (`+orderColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ord.ID, ord.PartyID, ord.Item, ord.Quantity.String(), ord.UnitCost, ord.TotalAmount, formatTime(ord.CreatedAt),
	)
	return insertErr("order", string(ord.ID), err)
}

func (o ops) updateOrder(ctx context.Context, ord ledger.Order) error {
	res, err := o.q.ExecContext(ctx,
		`UPDATE orders SET item = ?, quantity = ?, unit_cost = ?, total_amount = ? WHERE id = ?`,
		ord.Item, ord.Quantity.String(), ord.UnitCost, ord.TotalAmount, ord.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ledger.ErrOrderNotFound, ord.ID)
	}
	return nil
}

// --- payments ---

func (o ops) payments(ctx context.Context, party ledger.PartyID) ([]ledger.Payment, error) {
	rows, err := o.q.QueryContext(ctx, `
		SELECT id, party_id, amount, channel_kind, bank_name, provider, purpose,
		       created_at, order_id, opening_balance_id, note
		FROM payments
		WHERE party_id = ?
		ORDER BY created_at ASC, seq ASC`, party)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var out []ledger.Payment
	for rows.Next() {
		var (
			p                    ledger.Payment
			bank, provider, note sql.NullString
			orderID, balanceID   sql.NullString
			createdAt            string
		)
		if err := rows.Scan(&p.ID, &p.PartyID, &p.Amount, &p.Channel.Kind, &bank, &provider, &p.Purpose,
			&createdAt, &orderID, &balanceID, &note); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		p.Channel.BankName = bank.String
		p.Channel.Provider = provider.String
		p.CreatedAt = parseTime(createdAt)
		p.OrderID = ledger.OrderID(orderID.String)
		p.OpeningBalanceID = ledger.OpeningBalanceID(balanceID.String)
		p.Note = note.String
		out = append(out, p)
	}
	return out, rows.Err()
}

func (o ops) savePayments(ctx context.Context, payments []ledger.Payment) error {
	seen := make(map[ledger.PaymentID]bool, len(payments))
	for _, p := range payments {
		if seen[p.ID] {
			return fmt.Errorf("%w: payment %s", ledger.ErrDuplicateID, p.ID)
		}
		seen[p.ID] = true
	}

	for _, p := range payments {
		if err := o.requireParty(ctx, p.PartyID); err != nil {
			return err
		}
		_, err := o.q.ExecContext(ctx, `
			INSERT INTO payments
			(id, party_id, amount, channel_kind, bank_name, provider, purpose,
			 created_at, order_id, opening_balance_id, note)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.PartyID, p.Amount, p.Channel.Kind, nullString(p.Channel.BankName), nullString(p.Channel.Provider),
			p.Purpose, formatTime(p.CreatedAt), nullString(string(p.OrderID)), nullString(string(p.OpeningBalanceID)),
			nullString(p.Note),
		)
		if err := insertErr("payment", string(p.ID), err); err != nil {
			return err
		}
	}
	return nil
}

// --- company streams ---

func (o ops) expenses(ctx context.Context, window ledger.Period) ([]ledger.Expense, error) {
	from, to := bounds(window)
	rows, err := o.q.QueryContext(ctx, `
		SELECT id, item, department, amount, channel_kind, bank_name, provider, created_at, note
		FROM expenses
		WHERE (? = '' OR created_at >= ?) AND (? = '' OR created_at < ?)
		ORDER BY created_at ASC, seq ASC`, from, from, to, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query expenses: %w", err)
	}
	defer rows.Close()

	var out []ledger.Expense
	for rows.Next() {
		var (
			e                          ledger.Expense
			dept, bank, provider, note sql.NullString
			createdAt                  string
		)
		if err := rows.Scan(&e.ID, &e.Item, &dept, &e.Amount, &e.Channel.Kind, &bank, &provider, &createdAt, &note); err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		e.Department = dept.String
		e.Channel.BankName = bank.String
		e.Channel.Provider = provider.String
		e.CreatedAt = parseTime(createdAt)
		e.Note = note.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func (o ops) saveExpense(ctx context.Context, e ledger.Expense) error {
	_, err := o.q.ExecContext(ctx, `
		INSERT INTO expenses (id, item, department, amount, channel_kind, bank_name, provider, created_at, note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Item, nullString(e.Department), e.Amount, e.Channel.Kind,
		nullString(e.Channel.BankName), nullString(e.Channel.Provider), formatTime(e.CreatedAt), nullString(e.Note),
	)
	return insertErr("expense", string(e.ID), err)
}

func (o ops) deposits(ctx context.Context, window ledger.Period) ([]ledger.Deposit, error) {
	from, to := bounds(window)
	rows, err := o.q.QueryContext(ctx, `
		SELECT id, source, amount, channel_kind, bank_name, provider, created_at, note
		FROM deposits
		WHERE (? = '' OR created_at >= ?) AND (? = '' OR created_at < ?)
		ORDER BY created_at ASC, seq ASC`, from, from, to, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query deposits: %w", err)
	}
	defer rows.Close()

	var out []ledger.Deposit
	for rows.Next() {
		var (
			d                            ledger.Deposit
			source, bank, provider, note sql.NullString
			createdAt                    string
		)
		if err := rows.Scan(&d.ID, &source, &d.Amount, &d.Channel.Kind, &bank, &provider, &createdAt, &note); err != nil {
			return nil, fmt.Errorf("failed to scan deposit: %w", err)
		}
		d.Source = source.String
		d.Channel.BankName = bank.String
		d.Channel.Provider = provider.String
		d.CreatedAt = parseTime(createdAt)
		d.Note = note.String
		out = append(out, d)
	}
	return out, rows.Err()
}

func (o ops) saveDeposit(ctx context.Context, d ledger.Deposit) error {
	_, err := o.q.ExecContext(ctx, `
		INSERT INTO deposits (id, source, amount, channel_kind, bank_name, provider, created_at, note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, nullString(d.Source), d.Amount, d.Channel.Kind,
		nullString(d.Channel.BankName), nullString(d.Channel.Provider), formatTime(d.CreatedAt), nullString(d.Note),
	)
	return insertErr("deposit", string(d.ID), err)
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for demo scenarios).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"payments", "orders", "opening_balances", "expenses", "deposits", "parties"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		// Rows written by hand may use plain RFC3339.
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t.UTC()
}

func bounds(p ledger.Period) (from, to string) {
	if !p.Start.IsZero() {
		from = formatTime(p.Start)
	}
	if !p.End.IsZero() {
		to = formatTime(p.End)
	}
	return from, to
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// insertErr maps a unique-constraint violation to ledger.ErrDuplicateID.
func insertErr(kind, id string, err error) error {
	if err == nil {
		return nil
	}
	var se sqlite3.Error
	if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique {
		return fmt.Errorf("%w: %s %s", ledger.ErrDuplicateID, kind, id)
	}
	return fmt.Errorf("failed to insert %s: %w", kind, err)
}

var _ ledger.TxStore = (*Store)(nil)
