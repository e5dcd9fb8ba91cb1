/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with the
	canonical reconciliation cases. Each scenario creates one demo party
	and drives it through the reconciler, so allocations go through the
	same lock, waterfall and transaction as live traffic.

AVAILABLE SCENARIOS:

	partial-clearance:   10,000 legacy debt, one payment of 4,000
	full-clearance:      as above, then 7,000 more (1,000 spills to orders)
	order-settled:       order of 5,000 paid exactly
	order-overpaid:      order of 5,000 paid 8,000 (net goes negative)
	cascading-clearance: balances of 5,000 and 3,000, one payment of 6,000
	company-books:       expenses and deposits across channels

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create the demo party
 3. Add opening balances and orders
 4. Record payments through the waterfall

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "full-clearance"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Router wiring
  - reconcile/reconciler.go: the calls each loader makes
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/money"
)

// DemoPartyID is the party every party scenario creates.
const DemoPartyID ledger.PartyID = "demo-client"

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "partial-clearance",
		Name:        "Partial Clearance",
		Description: "Opening balance of 10,000 and a payment of 4,000. Balance is partially paid, 6,000 remains.",
		Category:    "opening-balance",
	},
	{
		ID:          "full-clearance",
		Name:        "Full Clearance With Spill",
		Description: "Partial clearance followed by 7,000: 6,000 clears the balance, 1,000 is an order payment. Net balance -1,000.",
		Category:    "opening-balance",
	},
	{
		ID:          "order-settled",
		Name:        "Order Settled",
		Description: "One order of 5,000 paid with 5,000. Order and net balance are zero.",
		Category:    "orders",
	},
	{
		ID:          "order-overpaid",
		Name:        "Order Overpaid",
		Description: "One order of 5,000 paid with 8,000. Order balance clamps at zero, net balance -3,000.",
		Category:    "orders",
	},
	{
		ID:          "cascading-clearance",
		Name:        "Cascading Clearance",
		Description: "Opening balances of 5,000 then 3,000 and a payment of 6,000. The oldest is paid, the second has 2,000 left.",
		Category:    "opening-balance",
	},
	{
		ID:          "company-books",
		Name:        "Company Books",
		Description: "Expenses and deposits across cash, bank and mobile money, one expense tagged with the demo client.",
		Category:    "company",
	},
}

// scenarioStart anchors every scenario timestamp so ledgers are reproducible.
var scenarioStart = time.Date(2025, time.January, 6, 9, 0, 0, 0, time.UTC)

func scenarioDay(n int) time.Time { return scenarioStart.AddDate(0, 0, n) }

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario resets the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.loadScenario(r.Context(), req.ScenarioID); err != nil {
		if errors.Is(err, errUnknownScenario) {
			writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("%w: %s", err, req.ScenarioID))
			return
		}
		h.fail(w, r, "Failed to load scenario", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears every record.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(r.Context()); err != nil {
		h.fail(w, r, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

var errUnknownScenario = errors.New("unknown scenario")

func (h *Handler) loadScenario(ctx context.Context, id string) error {
	var load func(context.Context) error
	switch id {
	case "partial-clearance":
		load = h.loadPartialClearance
	case "full-clearance":
		load = h.loadFullClearance
	case "order-settled":
		load = h.loadOrderSettled
	case "order-overpaid":
		load = h.loadOrderOverpaid
	case "cascading-clearance":
		load = h.loadCascadingClearance
	case "company-books":
		load = h.loadCompanyBooks
	default:
		return errUnknownScenario
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(ctx); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	h.currentScenario = ""
	if err := load(ctx); err != nil {
		return fmt.Errorf("scenario %s: %w", id, err)
	}
	h.currentScenario = id
	h.Log.WithField("scenario", id).Info("scenario loaded")
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) createDemoParty(ctx context.Context) error {
	_, err := h.Reconciler.CreateParty(ctx, ledger.Party{
		ID:        DemoPartyID,
		Kind:      ledger.PartyClient,
		Name:      "Demo Client",
		CreatedAt: scenarioStart,
	})
	return err
}

func (h *Handler) pay(ctx context.Context, amount int64, ch ledger.Channel, at time.Time) error {
	_, err := h.Reconciler.RecordPayment(ctx, ledger.AllocationRequest{
		PartyID: DemoPartyID,
		Amount:  money.New(amount),
		Channel: ch,
		At:      at,
	})
	return err
}

func (h *Handler) order(ctx context.Context, item string, qty int64, unitCost int64, at time.Time) (ledger.Order, error) {
	return h.Reconciler.AddOrder(ctx, DemoPartyID, item, decimal.NewFromInt(qty), money.New(unitCost), at)
}

func (h *Handler) loadPartialClearance(ctx context.Context) error {
	if err := h.createDemoParty(ctx); err != nil {
		return err
	}
	if _, err := h.Reconciler.AddOpeningBalance(ctx, DemoPartyID, money.New(10000), scenarioDay(0)); err != nil {
		return err
	}
	return h.pay(ctx, 4000, ledger.Cash(), scenarioDay(1))
}

func (h *Handler) loadFullClearance(ctx context.Context) error {
	if err := h.loadPartialClearance(ctx); err != nil {
		return err
	}
	return h.pay(ctx, 7000, ledger.Bank("Equity Bank"), scenarioDay(2))
}

func (h *Handler) loadOrderSettled(ctx context.Context) error {
	if err := h.createDemoParty(ctx); err != nil {
		return err
	}
	if _, err := h.order(ctx, "Cement (50kg bag)", 10, 500, scenarioDay(0)); err != nil {
		return err
	}
	return h.pay(ctx, 5000, ledger.MobileMoney("M-Pesa"), scenarioDay(1))
}

func (h *Handler) loadOrderOverpaid(ctx context.Context) error {
	if err := h.createDemoParty(ctx); err != nil {
		return err
	}
	o, err := h.order(ctx, "Roofing sheets", 5, 1000, scenarioDay(0))
	if err != nil {
		return err
	}
	_, err = h.Reconciler.RecordPayment(ctx, ledger.AllocationRequest{
		PartyID: DemoPartyID,
		Amount:  money.New(8000),
		Channel: ledger.Bank("KCB"),
		At:      scenarioDay(1),
		OrderID: o.ID,
		Note:    "paid ahead for the next delivery",
	})
	return err
}

func (h *Handler) loadCascadingClearance(ctx context.Context) error {
	if err := h.createDemoParty(ctx); err != nil {
		return err
	}
	if _, err := h.Reconciler.AddOpeningBalance(ctx, DemoPartyID, money.New(5000), scenarioDay(0)); err != nil {
		return err
	}
	if _, err := h.Reconciler.AddOpeningBalance(ctx, DemoPartyID, money.New(3000), scenarioDay(1)); err != nil {
		return err
	}
	return h.pay(ctx, 6000, ledger.Cash(), scenarioDay(2))
}

func (h *Handler) loadCompanyBooks(ctx context.Context) error {
	if err := h.createDemoParty(ctx); err != nil {
		return err
	}
	expenses := []ledger.Expense{
		{Item: "Fuel", Department: "Logistics", Amount: money.New(1200), Channel: ledger.Cash(), CreatedAt: scenarioDay(0)},
		{Item: "Office rent", Department: "Admin", Amount: money.New(25000), Channel: ledger.Bank("Equity Bank"), CreatedAt: scenarioDay(1)},
		{Item: "Delivery", Department: "Demo Client", Amount: money.New(800), Channel: ledger.MobileMoney("M-Pesa"), CreatedAt: scenarioDay(2)},
		{Item: "Fuel", Department: "Logistics", Amount: money.New(900), Channel: ledger.Cash(), CreatedAt: scenarioDay(3)},
	}
	for _, e := range expenses {
		if _, err := h.Reconciler.RecordExpense(ctx, e); err != nil {
			return err
		}
	}
	deposits := []ledger.Deposit{
		{Source: "Counter sales", Amount: money.New(15000), Channel: ledger.Cash(), CreatedAt: scenarioDay(1)},
		{Source: "Wholesale", Amount: money.New(40000), Channel: ledger.Bank("Equity Bank"), CreatedAt: scenarioDay(2)},
	}
	for _, d := range deposits {
		if _, err := h.Reconciler.RecordDeposit(ctx, d); err != nil {
			return err
		}
	}
	return nil
}
