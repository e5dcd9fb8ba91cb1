/*
reconciler.go - Service layer around the ledger engine

PURPOSE:
  The engine in package ledger is pure. The Reconciler is what performs
  I/O around it: it reads a party's records, calls the engine, and writes
  back the engine's decisions.

RECORDING A PAYMENT:
  1. Validate the request and that the party (and order, if given) exist.
  2. Take the party's allocation lock (locking.PartyKey).
  3. Inside one transaction: re-read balances and payments, run the
     waterfall, save every emitted payment, persist status transitions.
  4. Release the lock.

  The re-read happens under the lock, so the waterfall never sees a
  remainder another allocation has already consumed.

SEE ALSO:
  - ledger/allocation.go: the waterfall
  - locking/: Local and Redis lockers
  - statement.go: read-side views
  - audit.go: consistency checks
*/
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/locking"
	"github.com/warp/ledger-engine/money"
)

type Reconciler struct {
	store     ledger.TxStore
	locker    locking.Locker
	waterfall *ledger.Waterfall
	metrics   *Metrics
	log       *logrus.Entry
	now       func() time.Time
	lockWait  time.Duration
}

type Option func(*Reconciler)

func WithLogger(log *logrus.Entry) Option { return func(r *Reconciler) { r.log = log } }

func WithMetrics(m *Metrics) Option { return func(r *Reconciler) { r.metrics = m } }

func WithClock(now func() time.Time) Option { return func(r *Reconciler) { r.now = now } }

func WithWaterfall(w *ledger.Waterfall) Option { return func(r *Reconciler) { r.waterfall = w } }

// WithLockWait bounds how long RecordPayment waits for the party lock.
func WithLockWait(d time.Duration) Option { return func(r *Reconciler) { r.lockWait = d } }

func New(store ledger.TxStore, locker locking.Locker, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:     store,
		locker:    locker,
		waterfall: ledger.NewWaterfall(),
		log:       logrus.NewEntry(logrus.StandardLogger()),
		now:       time.Now,
		lockWait:  10 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = NewMetrics(prometheus.NewRegistry())
	}
	r.log = r.log.WithField("module", "reconcile")
	return r
}

// Store exposes the underlying store for read-only callers.
func (r *Reconciler) Store() ledger.Reader { return r.store }

// =============================================================================
// PAYMENTS
// =============================================================================

// RecordPayment allocates and persists an incoming payment. A zero req.At is
// stamped with the current time.
func (r *Reconciler) RecordPayment(ctx context.Context, req ledger.AllocationRequest) (ledger.AllocationResult, error) {
	start := time.Now()
	defer func() { r.metrics.AllocationDuration.Observe(time.Since(start).Seconds()) }()

	if req.At.IsZero() {
		req.At = r.now()
	}
	result, err := r.recordPayment(ctx, req)

	log := r.log.WithFields(logrus.Fields{
		"party":   req.PartyID,
		"amount":  req.Amount.String(),
		"channel": req.Channel.String(),
	})
	outcome := classify(err)
	r.metrics.Allocations.WithLabelValues(outcome).Inc()

	switch outcome {
	case outcomeOK:
		r.metrics.AllocatedAmount.WithLabelValues(string(ledger.PurposeDebtClearance)).Add(result.DebtCleared().Float64())
		r.metrics.AllocatedAmount.WithLabelValues(string(ledger.PurposeOrderPayment)).Add(result.OrderPaid().Float64())
		log.WithFields(logrus.Fields{
			"payments":     len(result.Payments),
			"debt_cleared": result.DebtCleared().String(),
			"order_paid":   result.OrderPaid().String(),
		}).Info("payment allocated")
	case outcomeRejected:
		log.WithError(err).Warn("payment rejected")
	default:
		log.WithError(err).Error("payment allocation failed")
	}
	return result, err
}

func (r *Reconciler) recordPayment(ctx context.Context, req ledger.AllocationRequest) (ledger.AllocationResult, error) {
	if err := req.Validate(); err != nil {
		return ledger.AllocationResult{}, err
	}
	if _, err := r.store.Party(ctx, req.PartyID); err != nil {
		return ledger.AllocationResult{}, err
	}
	if req.OrderID != "" {
		if err := r.checkOrder(ctx, req.PartyID, req.OrderID); err != nil {
			return ledger.AllocationResult{}, err
		}
	}

	unlock, err := r.lock(ctx, req.PartyID)
	if err != nil {
		return ledger.AllocationResult{}, err
	}
	defer unlock()

	var result ledger.AllocationResult
	err = r.store.WithTx(ctx, func(tx ledger.Store) error {
		balances, err := tx.OpeningBalances(ctx, req.PartyID)
		if err != nil {
			return err
		}
		history, err := tx.Payments(ctx, req.PartyID)
		if err != nil {
			return err
		}

		res, err := r.waterfall.Allocate(req, balances, history)
		if err != nil {
			return err
		}
		if err := tx.SavePayments(ctx, res.Payments); err != nil {
			return fmt.Errorf("save payments: %w", err)
		}
		for _, t := range res.Transitions {
			if t.From == t.To {
				continue
			}
			if err := tx.SetOpeningBalanceStatus(ctx, t.BalanceID, t.To); err != nil {
				return fmt.Errorf("advance balance %s: %w", t.BalanceID, err)
			}
		}
		result = res
		return nil
	})
	if err != nil {
		return ledger.AllocationResult{}, err
	}
	return result, nil
}

func (r *Reconciler) checkOrder(ctx context.Context, party ledger.PartyID, id ledger.OrderID) error {
	o, err := r.store.Order(ctx, id)
	if err != nil {
		return err
	}
	if o.PartyID != party {
		return fmt.Errorf("%w: order %s does not belong to party %s", ledger.ErrOrderNotFound, id, party)
	}
	return nil
}

func (r *Reconciler) lock(ctx context.Context, party ledger.PartyID) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, r.lockWait)
	defer cancel()
	return r.locker.Lock(lockCtx, locking.PartyKey(string(party)))
}

func classify(err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case errors.Is(err, ledger.ErrInconsistentHistory):
		return outcomeInconsistent
	case errors.Is(err, locking.ErrNotObtained):
		return outcomeLockTimeout
	case ledger.IsClientError(err), ledger.IsNotFound(err):
		return outcomeRejected
	default:
		return outcomeError
	}
}

// =============================================================================
// RECORD CREATION
// =============================================================================

// CreateParty registers a client or marketer. Empty ID and CreatedAt are filled in.
func (r *Reconciler) CreateParty(ctx context.Context, p ledger.Party) (ledger.Party, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return ledger.Party{}, fmt.Errorf("%w: name is required", ledger.ErrInvalidParty)
	}
	if !p.Kind.Valid() {
		return ledger.Party{}, fmt.Errorf("%w: unknown kind %q", ledger.ErrInvalidParty, p.Kind)
	}
	if p.ID == "" {
		p.ID = ledger.PartyID(uuid.NewString())
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = r.now()
	}
	if err := r.store.SaveParty(ctx, p); err != nil {
		return ledger.Party{}, err
	}
	r.log.WithFields(logrus.Fields{"party": p.ID, "kind": p.Kind}).Info("party created")
	return p, nil
}

// AddOpeningBalance records legacy debt carried in from before the system.
// It takes the party lock so it cannot interleave with an allocation.
func (r *Reconciler) AddOpeningBalance(ctx context.Context, party ledger.PartyID, amount money.Money, at time.Time) (ledger.OpeningBalance, error) {
	if !amount.IsPositive() {
		return ledger.OpeningBalance{}, fmt.Errorf("%w: opening balance must be positive, got %s", ledger.ErrInvalidAmount, amount)
	}
	if at.IsZero() {
		at = r.now()
	}
	b := ledger.OpeningBalance{
		ID:        ledger.OpeningBalanceID(uuid.NewString()),
		PartyID:   party,
		Amount:    amount,
		Status:    ledger.StatusUnpaid,
		CreatedAt: at,
	}

	unlock, err := r.lock(ctx, party)
	if err != nil {
		return ledger.OpeningBalance{}, err
	}
	defer unlock()

	// Clearances are poured into balances oldest first, so a balance dated
	// before an existing clearance would take credit for it.
	history, err := r.store.Payments(ctx, party)
	if err != nil {
		return ledger.OpeningBalance{}, err
	}
	if latest := ledger.LatestClearance(history); at.Before(latest) {
		return ledger.OpeningBalance{}, fmt.Errorf("%w: opening balance at %s predates the debt clearance at %s",
			ledger.ErrInvalidTimestamp, at.UTC().Format(time.RFC3339), latest.UTC().Format(time.RFC3339))
	}

	if err := r.store.SaveOpeningBalance(ctx, b); err != nil {
		return ledger.OpeningBalance{}, err
	}
	r.log.WithFields(logrus.Fields{"party": party, "balance": b.ID, "amount": amount.String()}).Info("opening balance added")
	return b, nil
}

// AddOrder records a new order priced at qty x unitCost.
func (r *Reconciler) AddOrder(ctx context.Context, party ledger.PartyID, item string, qty decimal.Decimal, unitCost money.Money, at time.Time) (ledger.Order, error) {
	if at.IsZero() {
		at = r.now()
	}
	o, err := ledger.NewOrder(ledger.OrderID(uuid.NewString()), party, item, qty, unitCost, at)
	if err != nil {
		return ledger.Order{}, err
	}
	if err := r.store.SaveOrder(ctx, o); err != nil {
		return ledger.Order{}, err
	}
	r.log.WithFields(logrus.Fields{"party": party, "order": o.ID, "total": o.TotalAmount.String()}).Info("order added")
	return o, nil
}

// RepriceOrder changes an order's quantity and unit cost. Later folds pick
// up the new total; payments already recorded are not reallocated.
func (r *Reconciler) RepriceOrder(ctx context.Context, id ledger.OrderID, qty decimal.Decimal, unitCost money.Money) (ledger.Order, error) {
	o, err := r.store.Order(ctx, id)
	if err != nil {
		return ledger.Order{}, err
	}
	if err := o.Reprice(qty, unitCost); err != nil {
		return ledger.Order{}, err
	}
	if err := r.store.UpdateOrder(ctx, o); err != nil {
		return ledger.Order{}, err
	}
	r.log.WithFields(logrus.Fields{"order": id, "total": o.TotalAmount.String()}).Info("order repriced")
	return o, nil
}

// RecordExpense stores a company expense. It never touches party balances.
func (r *Reconciler) RecordExpense(ctx context.Context, e ledger.Expense) (ledger.Expense, error) {
	if !e.Amount.IsPositive() {
		return ledger.Expense{}, fmt.Errorf("%w: expense must be positive, got %s", ledger.ErrInvalidAmount, e.Amount)
	}
	if err := e.Channel.Validate(); err != nil {
		return ledger.Expense{}, err
	}
	if e.ID == "" {
		e.ID = ledger.ExpenseID(uuid.NewString())
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now()
	}
	if err := r.store.SaveExpense(ctx, e); err != nil {
		return ledger.Expense{}, err
	}
	return e, nil
}

// RecordDeposit stores company income.
func (r *Reconciler) RecordDeposit(ctx context.Context, d ledger.Deposit) (ledger.Deposit, error) {
	if !d.Amount.IsPositive() {
		return ledger.Deposit{}, fmt.Errorf("%w: deposit must be positive, got %s", ledger.ErrInvalidAmount, d.Amount)
	}
	if err := d.Channel.Validate(); err != nil {
		return ledger.Deposit{}, err
	}
	if d.ID == "" {
		d.ID = ledger.DepositID(uuid.NewString())
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = r.now()
	}
	if err := r.store.SaveDeposit(ctx, d); err != nil {
		return ledger.Deposit{}, err
	}
	return d, nil
}
