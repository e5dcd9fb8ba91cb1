// Package store provides in-memory ledger.Store implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/warp/ledger-engine/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu sync.RWMutex
	st *state
}

func NewMemory() *Memory {
	return &Memory{st: newState()}
}

func (m *Memory) Party(_ context.Context, id ledger.PartyID) (ledger.Party, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.party(id)
}

func (m *Memory) Parties(_ context.Context) ([]ledger.Party, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listParties(), nil
}

func (m *Memory) OpeningBalances(_ context.Context, party ledger.PartyID) ([]ledger.OpeningBalance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return clone(m.st.balances[party]), nil
}

func (m *Memory) Orders(_ context.Context, party ledger.PartyID) ([]ledger.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return clone(m.st.orders[party]), nil
}

func (m *Memory) Order(_ context.Context, id ledger.OrderID) (ledger.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.order(id)
}

func (m *Memory) Payments(_ context.Context, party ledger.PartyID) ([]ledger.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return clone(m.st.payments[party]), nil
}

func (m *Memory) Expenses(_ context.Context, window ledger.Period) ([]ledger.Expense, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return within(m.st.expenses, window, func(e ledger.Expense) time.Time { return e.CreatedAt }), nil
}

func (m *Memory) Deposits(_ context.Context, window ledger.Period) ([]ledger.Deposit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return within(m.st.deposits, window, func(d ledger.Deposit) time.Time { return d.CreatedAt }), nil
}

func (m *Memory) SaveParty(_ context.Context, p ledger.Party) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.saveParty(p)
}

func (m *Memory) SaveOpeningBalance(_ context.Context, b ledger.OpeningBalance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.saveOpeningBalance(b)
}

func (m *Memory) SetOpeningBalanceStatus(_ context.Context, id ledger.OpeningBalanceID, status ledger.BalanceStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.setStatus(id, status)
}

func (m *Memory) SaveOrder(_ context.Context, o ledger.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.saveOrder(o)
}

func (m *Memory) UpdateOrder(_ context.Context, o ledger.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.updateOrder(o)
}

// SavePayments adds all payments or none.
func (m *Memory) SavePayments(_ context.Context, payments []ledger.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.savePayments(payments)
}

func (m *Memory) SaveExpense(_ context.Context, e ledger.Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.saveExpense(e)
}

func (m *Memory) SaveDeposit(_ context.Context, d ledger.Deposit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.saveDeposit(d)
}

// Reset drops every record.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st = newState()
	return nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(_ context.Context, fn func(ledger.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.st.clone()
	if err := fn(&txView{st: tm.st}); err != nil {
		tm.st = snapshot
		return err
	}
	return nil
}

// txView operates on state directly; the parent lock is already held.
type txView struct {
	st *state
}

func (v *txView) Party(_ context.Context, id ledger.PartyID) (ledger.Party, error) {
	return v.st.party(id)
}
func (v *txView) Parties(_ context.Context) ([]ledger.Party, error) { return v.st.listParties(), nil }
func (v *txView) OpeningBalances(_ context.Context, party ledger.PartyID) ([]ledger.OpeningBalance, error) {
	return clone(v.st.balances[party]), nil
}
func (v *txView) Orders(_ context.Context, party ledger.PartyID) ([]ledger.Order, error) {
	return clone(v.st.orders[party]), nil
}
func (v *txView) Order(_ context.Context, id ledger.OrderID) (ledger.Order, error) {
	return v.st.order(id)
}
func (v *txView) Payments(_ context.Context, party ledger.PartyID) ([]ledger.Payment, error) {
	return clone(v.st.payments[party]), nil
}
func (v *txView) Expenses(_ context.Context, window ledger.Period) ([]ledger.Expense, error) {
	return within(v.st.expenses, window, func(e ledger.Expense) time.Time { return e.CreatedAt }), nil
}
func (v *txView) Deposits(_ context.Context, window ledger.Period) ([]ledger.Deposit, error) {
	return within(v.st.deposits, window, func(d ledger.Deposit) time.Time { return d.CreatedAt }), nil
}
func (v *txView) SaveParty(_ context.Context, p ledger.Party) error { return v.st.saveParty(p) }
func (v *txView) SaveOpeningBalance(_ context.Context, b ledger.OpeningBalance) error {
	return v.st.saveOpeningBalance(b)
}
func (v *txView) SetOpeningBalanceStatus(_ context.Context, id ledger.OpeningBalanceID, s ledger.BalanceStatus) error {
	return v.st.setStatus(id, s)
}
func (v *txView) SaveOrder(_ context.Context, o ledger.Order) error   { return v.st.saveOrder(o) }
func (v *txView) UpdateOrder(_ context.Context, o ledger.Order) error { return v.st.updateOrder(o) }
func (v *txView) SavePayments(_ context.Context, ps []ledger.Payment) error {
	return v.st.savePayments(ps)
}
func (v *txView) SaveExpense(_ context.Context, e ledger.Expense) error { return v.st.saveExpense(e) }
func (v *txView) SaveDeposit(_ context.Context, d ledger.Deposit) error { return v.st.saveDeposit(d) }

// =============================================================================
// STATE - unlocked data and operations shared by Memory and txView
// =============================================================================

type state struct {
	parties    map[ledger.PartyID]ledger.Party
	partyOrder []ledger.PartyID
	balances   map[ledger.PartyID][]ledger.OpeningBalance
	orders     map[ledger.PartyID][]ledger.Order
	payments   map[ledger.PartyID][]ledger.Payment
	expenses   []ledger.Expense
	deposits   []ledger.Deposit
	ids        map[string]bool
}

func newState() *state {
	return &state{
		parties:  make(map[ledger.PartyID]ledger.Party),
		balances: make(map[ledger.PartyID][]ledger.OpeningBalance),
		orders:   make(map[ledger.PartyID][]ledger.Order),
		payments: make(map[ledger.PartyID][]ledger.Payment),
		ids:      make(map[string]bool),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.parties {
		c.parties[k] = v
	}
	c.partyOrder = clone(s.partyOrder)
	for k, v := range s.balances {
		c.balances[k] = clone(v)
	}
	for k, v := range s.orders {
		c.orders[k] = clone(v)
	}
	for k, v := range s.payments {
		c.payments[k] = clone(v)
	}
	c.expenses = clone(s.expenses)
	c.deposits = clone(s.deposits)
	for k, v := range s.ids {
		c.ids[k] = v
	}
	return c
}

func (s *state) party(id ledger.PartyID) (ledger.Party, error) {
	p, ok := s.parties[id]
	if !ok {
		return ledger.Party{}, fmt.Errorf("%w: %s", ledger.ErrPartyNotFound, id)
	}
	return p, nil
}

func (s *state) listParties() []ledger.Party {
	out := make([]ledger.Party, 0, len(s.partyOrder))
	for _, id := range s.partyOrder {
		out = append(out, s.parties[id])
	}
	return out
}

func (s *state) order(id ledger.OrderID) (ledger.Order, error) {
	for _, list := range s.orders {
		for _, o := range list {
			if o.ID == id {
				return o, nil
			}
		}
	}
	return ledger.Order{}, fmt.Errorf("%w: %s", ledger.ErrOrderNotFound, id)
}

func (s *state) claim(kind, id string) error {
	key := kind + ":" + id
	if s.ids[key] {
		return fmt.Errorf("%w: %s %s", ledger.ErrDuplicateID, kind, id)
	}
	s.ids[key] = true
	return nil
}

func (s *state) requireParty(id ledger.PartyID) error {
	_, err := s.party(id)
	return err
}

func (s *state) saveParty(p ledger.Party) error {
	if err := s.claim("party", string(p.ID)); err != nil {
		return err
	}
	s.parties[p.ID] = p
	s.partyOrder = append(s.partyOrder, p.ID)
	return nil
}

func (s *state) saveOpeningBalance(b ledger.OpeningBalance) error {
	if err := s.requireParty(b.PartyID); err != nil {
		return err
	}
	if err := s.claim("balance", string(b.ID)); err != nil {
		return err
	}
	s.balances[b.PartyID] = insertByTime(s.balances[b.PartyID], b, func(x ledger.OpeningBalance) time.Time { return x.CreatedAt })
	return nil
}

func (s *state) setStatus(id ledger.OpeningBalanceID, status ledger.BalanceStatus) error {
	for party, list := range s.balances {
		for i, b := range list {
			if b.ID != id {
				continue
			}
			if !b.Status.CanMoveTo(status) {
				return &ledger.InconsistentHistoryError{
					PartyID: party, BalanceID: id,
					Detail: fmt.Sprintf("status cannot move from %s to %s", b.Status, status),
				}
			}
			list[i].Status = status
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ledger.ErrBalanceNotFound, id)
}

func (s *state) saveOrder(o ledger.Order) error {
	if err := s.requireParty(o.PartyID); err != nil {
		return err
	}
	if err := s.claim("order", string(o.ID)); err != nil {
		return err
	}
	s.orders[o.PartyID] = insertByTime(s.orders[o.PartyID], o, func(x ledger.Order) time.Time { return x.CreatedAt })
	return nil
}

func (s *state) updateOrder(o ledger.Order) error {
	list := s.orders[o.PartyID]
	for i := range list {
		if list[i].ID == o.ID {
			list[i].Item = o.Item
			list[i].Quantity = o.Quantity
			list[i].UnitCost = o.UnitCost
			list[i].TotalAmount = o.TotalAmount
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ledger.ErrOrderNotFound, o.ID)
}

func (s *state) savePayments(payments []ledger.Payment) error {
	// Check everything first (atomic check)
	seen := make(map[ledger.PaymentID]bool, len(payments))
	for _, p := range payments {
		if err := s.requireParty(p.PartyID); err != nil {
			return err
		}
		if s.ids["payment:"+string(p.ID)] || seen[p.ID] {
			return fmt.Errorf("%w: payment %s", ledger.ErrDuplicateID, p.ID)
		}
		seen[p.ID] = true
	}
	for _, p := range payments {
		s.ids["payment:"+string(p.ID)] = true
		s.payments[p.PartyID] = insertByTime(s.payments[p.PartyID], p, func(x ledger.Payment) time.Time { return x.CreatedAt })
	}
	return nil
}

func (s *state) saveExpense(e ledger.Expense) error {
	if err := s.claim("expense", string(e.ID)); err != nil {
		return err
	}
	s.expenses = insertByTime(s.expenses, e, func(x ledger.Expense) time.Time { return x.CreatedAt })
	return nil
}

func (s *state) saveDeposit(d ledger.Deposit) error {
	if err := s.claim("deposit", string(d.ID)); err != nil {
		return err
	}
	s.deposits = insertByTime(s.deposits, d, func(x ledger.Deposit) time.Time { return x.CreatedAt })
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// insertByTime keeps list chronological. Items with equal timestamps stay in
// insertion order.
func insertByTime[T any](list []T, item T, at func(T) time.Time) []T {
	t := at(item)
	i := sort.Search(len(list), func(i int) bool {
		return at(list[i]).After(t)
	})
	var zero T
	list = append(list, zero)
	copy(list[i+1:], list[i:])
	list[i] = item
	return list
}

func clone[T any](list []T) []T {
	out := make([]T, len(list))
	copy(out, list)
	return out
}

func within[T any](list []T, window ledger.Period, at func(T) time.Time) []T {
	var out []T
	for _, x := range list {
		if window.Contains(at(x)) {
			out = append(out, x)
		}
	}
	return out
}
