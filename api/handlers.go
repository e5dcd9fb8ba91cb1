/*
handlers.go - HTTP API handlers for the ledger reconciliation engine

PURPOSE:
  Exposes the reconciler via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the reconcile service.

ENDPOINTS:
  Parties:
    GET    /api/parties                          List parties
    POST   /api/parties                          Create party
    GET    /api/parties/{id}                     Get party
    GET    /api/parties/{id}/opening-balances    List opening balances
    POST   /api/parties/{id}/opening-balances    Add opening balance
    GET    /api/parties/{id}/orders              Per-order statements
    POST   /api/parties/{id}/orders              Add order
    GET    /api/parties/{id}/payments            List payments
    POST   /api/parties/{id}/payments            Allocate an incoming payment
    GET    /api/parties/{id}/ledger              Ledger (json, csv, xlsx)
    GET    /api/parties/{id}/audit               Consistency report

  Orders:
    PUT    /api/orders/{id}                      Reprice order

  Company:
    GET    /api/expenses, POST /api/expenses
    GET    /api/deposits, POST /api/deposits
    GET    /api/company/summary                  Expense/deposit aggregate
    POST   /api/audit                            Audit every party

REQUEST FLOW:
  1. Decode and validate the body (validator tags on DTOs)
  2. Call the reconciler
  3. Serialize response
  4. Map errors to status codes (see statusFor)

ERROR HANDLING:
  - 400: Validation errors, invalid input
  - 404: Party/order/balance not found
  - 409: Duplicate id, inconsistent stored history
  - 503: Party lock not obtained in time (retry)
  - 500: Internal errors

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/warp/ledger-engine/config"
	"github.com/warp/ledger-engine/export"
	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/locking"
	"github.com/warp/ledger-engine/reconcile"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is what the API needs from persistence: the ledger contracts plus a
// reset for demo scenarios.
type Store interface {
	ledger.TxStore
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Reconciler *reconcile.Reconciler
	Store      Store
	Log        *logrus.Entry

	validate *validator.Validate

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler around a reconciler built on store.
func NewHandler(store Store, rec *reconcile.Reconciler, log *logrus.Entry) *Handler {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{
		Reconciler: rec,
		Store:      store,
		Log:        log.WithField("module", "api"),
		validate:   v,
	}
}

// Healthz reports that the process is up and the store answers.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if _, err := h.Store.Parties(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// PARTY HANDLERS
// =============================================================================

func (h *Handler) ListParties(w http.ResponseWriter, r *http.Request) {
	parties, err := h.Store.Parties(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list parties", err)
		return
	}
	dtos := make([]PartyDTO, len(parties))
	for i, p := range parties {
		dtos[i] = toPartyDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateParty(w http.ResponseWriter, r *http.Request) {
	var req CreatePartyRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.Reconciler.CreateParty(r.Context(), ledger.Party{
		ID:   ledger.PartyID(req.ID),
		Kind: ledger.PartyKind(req.Kind),
		Name: req.Name,
	})
	if err != nil {
		h.fail(w, r, "Failed to create party", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPartyDTO(p))
}

func (h *Handler) GetParty(w http.ResponseWriter, r *http.Request) {
	p, err := h.Store.Party(r.Context(), partyID(r))
	if err != nil {
		h.fail(w, r, "Failed to get party", err)
		return
	}
	writeJSON(w, http.StatusOK, toPartyDTO(p))
}

// =============================================================================
// OPENING BALANCE HANDLERS
// =============================================================================

func (h *Handler) ListOpeningBalances(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := partyID(r)
	if _, err := h.Store.Party(ctx, id); err != nil {
		h.fail(w, r, "Failed to get party", err)
		return
	}
	balances, err := h.Store.OpeningBalances(ctx, id)
	if err != nil {
		h.fail(w, r, "Failed to list opening balances", err)
		return
	}
	dtos := make([]OpeningBalanceDTO, len(balances))
	for i, b := range balances {
		dtos[i] = toOpeningBalanceDTO(b)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) AddOpeningBalance(w http.ResponseWriter, r *http.Request) {
	var req AddOpeningBalanceRequest
	if !h.decode(w, r, &req) {
		return
	}
	b, err := h.Reconciler.AddOpeningBalance(r.Context(), partyID(r), req.Amount, req.At)
	if err != nil {
		h.fail(w, r, "Failed to add opening balance", err)
		return
	}
	writeJSON(w, http.StatusCreated, toOpeningBalanceDTO(b))
}

// =============================================================================
// ORDER HANDLERS
// =============================================================================

// ListOrders returns each order with the payments that reference it.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	statements, err := h.Reconciler.OrderStatements(r.Context(), partyID(r))
	if err != nil {
		h.fail(w, r, "Failed to list orders", err)
		return
	}
	dtos := make([]OrderStatementDTO, len(statements))
	for i, st := range statements {
		dtos[i] = toOrderStatementDTO(st)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if !h.decode(w, r, &req) {
		return
	}
	o, err := h.Reconciler.AddOrder(r.Context(), partyID(r), req.Item, req.Quantity, req.UnitCost, req.At)
	if err != nil {
		h.fail(w, r, "Failed to create order", err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderDTO(o))
}

func (h *Handler) RepriceOrder(w http.ResponseWriter, r *http.Request) {
	var req RepriceOrderRequest
	if !h.decode(w, r, &req) {
		return
	}
	o, err := h.Reconciler.RepriceOrder(r.Context(), ledger.OrderID(chi.URLParam(r, "id")), req.Quantity, req.UnitCost)
	if err != nil {
		h.fail(w, r, "Failed to reprice order", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(o))
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := partyID(r)
	if _, err := h.Store.Party(ctx, id); err != nil {
		h.fail(w, r, "Failed to get party", err)
		return
	}
	payments, err := h.Store.Payments(ctx, id)
	if err != nil {
		h.fail(w, r, "Failed to list payments", err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTOs(payments))
}

// RecordPayment runs the allocation waterfall for an incoming payment and
// returns the payments it created.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req RecordPaymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.Reconciler.RecordPayment(r.Context(), ledger.AllocationRequest{
		PartyID: partyID(r),
		Amount:  req.Amount,
		Channel: req.Channel.toDomain(),
		At:      req.At,
		OrderID: ledger.OrderID(req.OrderID),
		Note:    req.Note,
	})
	if err != nil {
		h.fail(w, r, "Failed to record payment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAllocationResponse(res))
}

// =============================================================================
// LEDGER HANDLERS
// =============================================================================

// GetLedger returns a party's statement for ?from=&to= (dates, inclusive).
// ?expenses=true adds informational expense rows; ?format=csv|xlsx downloads
// the window instead of returning JSON.
func (h *Handler) GetLedger(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	period, ok := parsePeriod(w, q.Get("from"), q.Get("to"))
	if !ok {
		return
	}
	includeExpenses := false
	if v := q.Get("expenses"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid expenses flag", err)
			return
		}
		includeExpenses = b
	}

	st, err := h.Reconciler.Statement(r.Context(), partyID(r), period, includeExpenses)
	if err != nil {
		h.fail(w, r, "Failed to build ledger", err)
		return
	}

	switch format := export.Format(q.Get("format")); format {
	case "", "json":
		writeJSON(w, http.StatusOK, toStatementResponse(st))
	case export.FormatCSV, export.FormatXLSX:
		h.writeExport(w, r, format, st)
	default:
		writeError(w, http.StatusBadRequest, "Unsupported format", fmt.Errorf("format %q", format))
	}
}

func (h *Handler) writeExport(w http.ResponseWriter, r *http.Request, format export.Format, st reconcile.Statement) {
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="ledger-%s.%s"`, st.Party.ID, format))

	var err error
	if format == export.FormatCSV {
		err = export.WriteCSV(w, st.Window)
	} else {
		err = export.WriteXLSX(w, st.Party.Name+" ledger", st.Window)
	}
	if err != nil {
		// Headers are gone by now; log only.
		config.LogError(h.Log, "api", "writeExport", string(format), st.Party.ID, err)
	}
}

func toStatementResponse(st reconcile.Statement) StatementResponse {
	from, to := periodBounds(st.Window.Period)
	rows := make([]LedgerRowDTO, len(st.Window.Rows))
	for i, row := range st.Window.Rows {
		rows[i] = toLedgerRowDTO(row)
	}
	return StatementResponse{
		Party:               toPartyDTO(st.Party),
		From:                from,
		To:                  to,
		ForwardOrderBalance: st.Window.ForwardOrderBalance,
		ForwardNetBalance:   st.Window.ForwardNetBalance,
		Rows:                rows,
		Summary:             toSummaryDTO(st.Summary),
	}
}

// =============================================================================
// AUDIT HANDLERS
// =============================================================================

func (h *Handler) AuditParty(w http.ResponseWriter, r *http.Request) {
	rep, err := h.Reconciler.Audit(r.Context(), partyID(r))
	if err != nil {
		h.fail(w, r, "Failed to audit party", err)
		return
	}
	writeJSON(w, http.StatusOK, normalizeReport(rep))
}

func (h *Handler) AuditAll(w http.ResponseWriter, r *http.Request) {
	reports, err := h.Reconciler.AuditAll(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to audit parties", err)
		return
	}
	out := make([]reconcile.Report, len(reports))
	for i, rep := range reports {
		out[i] = normalizeReport(rep)
	}
	writeJSON(w, http.StatusOK, out)
}

// normalizeReport keeps findings a JSON array even when clean.
func normalizeReport(rep reconcile.Report) reconcile.Report {
	if rep.Findings == nil {
		rep.Findings = []reconcile.Finding{}
	}
	return rep
}

// =============================================================================
// COMPANY HANDLERS
// =============================================================================

func (h *Handler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	period, ok := parsePeriod(w, r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if !ok {
		return
	}
	expenses, err := h.Store.Expenses(r.Context(), period)
	if err != nil {
		h.fail(w, r, "Failed to list expenses", err)
		return
	}
	dtos := make([]ExpenseDTO, len(expenses))
	for i, e := range expenses {
		dtos[i] = toExpenseDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) RecordExpense(w http.ResponseWriter, r *http.Request) {
	var req RecordExpenseRequest
	if !h.decode(w, r, &req) {
		return
	}
	e, err := h.Reconciler.RecordExpense(r.Context(), ledger.Expense{
		Item:       req.Item,
		Department: req.Department,
		Amount:     req.Amount,
		Channel:    req.Channel.toDomain(),
		Note:       req.Note,
		CreatedAt:  req.At,
	})
	if err != nil {
		h.fail(w, r, "Failed to record expense", err)
		return
	}
	writeJSON(w, http.StatusCreated, toExpenseDTO(e))
}

func (h *Handler) ListDeposits(w http.ResponseWriter, r *http.Request) {
	period, ok := parsePeriod(w, r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if !ok {
		return
	}
	deposits, err := h.Store.Deposits(r.Context(), period)
	if err != nil {
		h.fail(w, r, "Failed to list deposits", err)
		return
	}
	dtos := make([]DepositDTO, len(deposits))
	for i, d := range deposits {
		dtos[i] = toDepositDTO(d)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) RecordDeposit(w http.ResponseWriter, r *http.Request) {
	var req RecordDepositRequest
	if !h.decode(w, r, &req) {
		return
	}
	d, err := h.Reconciler.RecordDeposit(r.Context(), ledger.Deposit{
		Source:    req.Source,
		Amount:    req.Amount,
		Channel:   req.Channel.toDomain(),
		Note:      req.Note,
		CreatedAt: req.At,
	})
	if err != nil {
		h.fail(w, r, "Failed to record deposit", err)
		return
	}
	writeJSON(w, http.StatusCreated, toDepositDTO(d))
}

func (h *Handler) CompanySummary(w http.ResponseWriter, r *http.Request) {
	period, ok := parsePeriod(w, r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if !ok {
		return
	}
	s, err := h.Reconciler.CompanySummary(r.Context(), period)
	if err != nil {
		h.fail(w, r, "Failed to summarize company records", err)
		return
	}
	writeJSON(w, http.StatusOK, toCompanySummaryDTO(s))
}

// =============================================================================
// HELPERS
// =============================================================================

func partyID(r *http.Request) ledger.PartyID {
	return ledger.PartyID(chi.URLParam(r, "id"))
}

// decode reads a JSON body into dst and validates it. On failure it writes
// a 400 and returns false.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:  "Validation failed",
				Fields: validationFields(verrs),
			})
			return false
		}
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

// validationFields maps each failing field to the tag it failed.
func validationFields(verrs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		// Namespace is "CreatePartyRequest.kind"; drop the struct name.
		_, field, _ := strings.Cut(fe.Namespace(), ".")
		out[field] = fe.Tag()
	}
	return out
}

// parsePeriod reads optional from/to dates. On failure it writes a 400.
func parsePeriod(w http.ResponseWriter, from, to string) (ledger.Period, bool) {
	p, err := ledger.ParsePeriod(from, to)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return ledger.Period{}, false
	}
	return p, true
}

// statusFor maps engine and store errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrDuplicateID):
		return http.StatusConflict
	case ledger.IsClientError(err):
		return http.StatusBadRequest
	case ledger.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrInconsistentHistory):
		return http.StatusConflict
	case errors.Is(err, locking.ErrNotObtained):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with the status it maps to. Server-side failures are logged.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := statusFor(err)
	switch {
	case status == http.StatusServiceUnavailable:
		w.Header().Set("Retry-After", "1")
	case status >= http.StatusInternalServerError:
		config.LogError(h.Log, "api", r.Method+" "+r.URL.Path, message, middleware.GetReqID(r.Context()), err)
	}
	writeError(w, status, message, err)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
