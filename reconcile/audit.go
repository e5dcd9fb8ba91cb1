/*
audit.go - Consistency auditor

PURPOSE:
  Remaining debt is always derived from chronology, never from the stored
  status or the balance a clearance payment names. Those two stored facts
  can still drift (manual edits, imports, bugs). The auditor re-derives
  everything and reports where the stored facts disagree.

FINDINGS:
  over_clearance      debt clearances exceed the opening balances
  status_mismatch     stored status differs from the derived one
  reference_mismatch  a clearance names a balance chronology never poured it into
  unknown_reference   a clearance names a balance the party does not have
  unknown_order       a payment names an order the party does not have

The auditor only reports. It never repairs records.
*/
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/money"
)

type FindingKind string

const (
	FindingOverClearance     FindingKind = "over_clearance"
	FindingStatusMismatch    FindingKind = "status_mismatch"
	FindingReferenceMismatch FindingKind = "reference_mismatch"
	FindingUnknownReference  FindingKind = "unknown_reference"
	FindingUnknownOrder      FindingKind = "unknown_order"
)

type Finding struct {
	Kind      FindingKind             `json:"kind"`
	BalanceID ledger.OpeningBalanceID `json:"balance_id,omitempty"`
	PaymentID ledger.PaymentID        `json:"payment_id,omitempty"`
	Detail    string                  `json:"detail"`
}

type Report struct {
	PartyID   ledger.PartyID `json:"party_id"`
	CheckedAt time.Time      `json:"checked_at"`
	Findings  []Finding      `json:"findings"`
}

func (r Report) Clean() bool { return len(r.Findings) == 0 }

// Audit checks one party.
func (r *Reconciler) Audit(ctx context.Context, party ledger.PartyID) (Report, error) {
	if _, err := r.store.Party(ctx, party); err != nil {
		return Report{}, err
	}
	balances, orders, payments, err := ledger.PartyRecords(ctx, r.store, party)
	if err != nil {
		return Report{}, err
	}

	rep := Report{PartyID: party, CheckedAt: r.now(), Findings: Check(balances, orders, payments)}
	r.metrics.AuditRuns.Inc()
	for _, f := range rep.Findings {
		r.metrics.AuditFindings.WithLabelValues(string(f.Kind)).Inc()
		r.log.WithFields(logrus.Fields{
			"party":   party,
			"kind":    f.Kind,
			"balance": f.BalanceID,
			"payment": f.PaymentID,
		}).Warn("audit finding: " + f.Detail)
	}
	return rep, nil
}

// AuditAll checks every party. A party that fails to load is skipped and
// its error joined into the returned error.
func (r *Reconciler) AuditAll(ctx context.Context) ([]Report, error) {
	parties, err := r.store.Parties(ctx)
	if err != nil {
		return nil, err
	}
	var (
		reports []Report
		errs    []error
	)
	for _, p := range parties {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		rep, err := r.Audit(ctx, p.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("audit party %s: %w", p.ID, err))
			continue
		}
		reports = append(reports, rep)
	}
	return reports, errors.Join(errs...)
}

// Check compares one party's stored facts with what chronology implies.
func Check(balances []ledger.OpeningBalance, orders []ledger.Order, payments []ledger.Payment) []Finding {
	var findings []Finding

	states, err := ledger.DeriveBalances(balances, payments)
	var ih *ledger.InconsistentHistoryError
	switch {
	case errors.As(err, &ih):
		findings = append(findings, Finding{Kind: FindingOverClearance, Detail: ih.Detail})
	case err != nil:
		findings = append(findings, Finding{Kind: FindingOverClearance, Detail: err.Error()})
	default:
		for _, st := range states {
			want := derivedStatus(st)
			if st.Balance.Status != want {
				findings = append(findings, Finding{
					Kind:      FindingStatusMismatch,
					BalanceID: st.Balance.ID,
					Detail:    fmt.Sprintf("stored %s, derived %s (remaining %s)", st.Balance.Status, want, st.Remaining),
				})
			}
		}
	}

	findings = append(findings, checkReferences(balances, payments)...)

	known := make(map[ledger.OrderID]bool, len(orders))
	for _, o := range orders {
		known[o.ID] = true
	}
	for _, p := range payments {
		if p.OrderID != "" && !known[p.OrderID] {
			findings = append(findings, Finding{
				Kind:      FindingUnknownOrder,
				PaymentID: p.ID,
				Detail:    fmt.Sprintf("payment references unknown order %s", p.OrderID),
			})
		}
	}
	return findings
}

func derivedStatus(st ledger.BalanceState) ledger.BalanceStatus {
	switch {
	case !st.Remaining.IsPositive():
		return ledger.StatusPaid
	case st.Cleared.IsZero():
		return ledger.StatusUnpaid
	default:
		return ledger.StatusPartiallyPaid
	}
}

// checkReferences replays debt clearances in time order into balances
// oldest first and compares each named balance with where the money landed.
func checkReferences(balances []ledger.OpeningBalance, payments []ledger.Payment) []Finding {
	ordered := make([]ledger.OpeningBalance, len(balances))
	copy(ordered, balances)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].CreatedAt.Before(ordered[j].CreatedAt) })

	capacity := make([]money.Money, len(ordered))
	index := make(map[ledger.OpeningBalanceID]int, len(ordered))
	for i, b := range ordered {
		capacity[i] = b.Amount
		index[b.ID] = i
	}

	var clearances []ledger.Payment
	for _, p := range payments {
		if p.Purpose == ledger.PurposeDebtClearance {
			clearances = append(clearances, p)
		}
	}
	sort.SliceStable(clearances, func(i, j int) bool { return clearances[i].CreatedAt.Before(clearances[j].CreatedAt) })

	var findings []Finding
	next := 0
	for _, p := range clearances {
		touched := make(map[int]bool)
		left := p.Amount
		for left.IsPositive() && next < len(capacity) {
			take := left.Min(capacity[next])
			if take.IsPositive() {
				touched[next] = true
			}
			left = left.Sub(take)
			capacity[next] = capacity[next].Sub(take)
			if !capacity[next].IsPositive() {
				next++
			}
		}

		if p.OpeningBalanceID == "" {
			continue
		}
		i, ok := index[p.OpeningBalanceID]
		switch {
		case !ok:
			findings = append(findings, Finding{
				Kind:      FindingUnknownReference,
				PaymentID: p.ID,
				BalanceID: p.OpeningBalanceID,
				Detail:    "clearance names a balance the party does not have",
			})
		case !touched[i]:
			findings = append(findings, Finding{
				Kind:      FindingReferenceMismatch,
				PaymentID: p.ID,
				BalanceID: p.OpeningBalanceID,
				Detail:    "chronological replay pours this clearance into a different balance",
			})
		}
	}
	return findings
}
