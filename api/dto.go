/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the ledger domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

AMOUNTS:
  Money marshals as a quoted two-decimal string ("1250.00") and accepts
  either a string or a number on input. Quantities are decimal strings.

VALIDATION:
  Request shapes are checked with validator struct tags before they reach
  the reconciler. Domain rules (positive amounts, order ownership) are
  enforced by the reconciler and come back as ledger errors.

SEE ALSO:
  - handlers.go: Uses these types
  - money/money.go: Money JSON encoding
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/ledger-engine/expense"
	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/money"
)

const timeLayout = time.RFC3339

// =============================================================================
// PARTIES
// =============================================================================

type PartyDTO struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

type CreatePartyRequest struct {
	ID   string `json:"id" validate:"omitempty,max=64"`
	Kind string `json:"kind" validate:"required,oneof=client marketer"`
	Name string `json:"name" validate:"required,max=200"`
}

// =============================================================================
// CHANNEL
// =============================================================================

type ChannelDTO struct {
	Kind     string `json:"kind" validate:"required,oneof=cash bank mobile_money"`
	BankName string `json:"bank_name,omitempty" validate:"required_if=Kind bank"`
	Provider string `json:"provider,omitempty" validate:"required_if=Kind mobile_money"`
}

func (c ChannelDTO) toDomain() ledger.Channel {
	return ledger.Channel{Kind: ledger.ChannelKind(c.Kind), BankName: c.BankName, Provider: c.Provider}
}

func toChannelDTO(c ledger.Channel) ChannelDTO {
	return ChannelDTO{Kind: string(c.Kind), BankName: c.BankName, Provider: c.Provider}
}

// =============================================================================
// OPENING BALANCES
// =============================================================================

type OpeningBalanceDTO struct {
	ID        string      `json:"id"`
	PartyID   string      `json:"party_id"`
	Amount    money.Money `json:"amount"`
	Status    string      `json:"status"`
	CreatedAt string      `json:"created_at"`
}

type AddOpeningBalanceRequest struct {
	Amount money.Money `json:"amount"`
	At     time.Time   `json:"at"` // zero means now
}

// =============================================================================
// ORDERS
// =============================================================================

type OrderDTO struct {
	ID          string      `json:"id"`
	PartyID     string      `json:"party_id"`
	Item        string      `json:"item"`
	Quantity    string      `json:"quantity"`
	UnitCost    money.Money `json:"unit_cost"`
	TotalAmount money.Money `json:"total_amount"`
	CreatedAt   string      `json:"created_at"`
}

type CreateOrderRequest struct {
	Item     string          `json:"item" validate:"required,max=200"`
	Quantity decimal.Decimal `json:"quantity"`
	UnitCost money.Money     `json:"unit_cost"`
	At       time.Time       `json:"at"`
}

type RepriceOrderRequest struct {
	Quantity decimal.Decimal `json:"quantity"`
	UnitCost money.Money     `json:"unit_cost"`
}

// OrderStatementDTO is one order with the payments that reference it.
type OrderStatementDTO struct {
	Order       OrderDTO     `json:"order"`
	Payments    []PaymentDTO `json:"payments"`
	Paid        money.Money  `json:"paid"`
	Outstanding money.Money  `json:"outstanding"`
}

// =============================================================================
// PAYMENTS
// =============================================================================

type PaymentDTO struct {
	ID               string      `json:"id"`
	PartyID          string      `json:"party_id"`
	Amount           money.Money `json:"amount"`
	Channel          ChannelDTO  `json:"channel"`
	Purpose          string      `json:"purpose"`
	OrderID          string      `json:"order_id,omitempty"`
	OpeningBalanceID string      `json:"opening_balance_id,omitempty"`
	Note             string      `json:"note,omitempty"`
	CreatedAt        string      `json:"created_at"`
}

// RecordPaymentRequest is an incoming payment before the waterfall splits it.
type RecordPaymentRequest struct {
	Amount  money.Money `json:"amount"`
	Channel ChannelDTO  `json:"channel"`
	OrderID string      `json:"order_id,omitempty" validate:"omitempty,max=64"`
	Note    string      `json:"note,omitempty" validate:"max=500"`
	At      time.Time   `json:"at"`
}

type TransitionDTO struct {
	BalanceID      string      `json:"balance_id"`
	From           string      `json:"from"`
	To             string      `json:"to"`
	Remaining      money.Money `json:"remaining"`
	Cleared        money.Money `json:"cleared"`
	RemainingAfter money.Money `json:"remaining_after"`
}

// AllocationResponse is what the waterfall decided for one payment.
type AllocationResponse struct {
	PartyID     string          `json:"party_id"`
	Amount      money.Money     `json:"amount"`
	DebtCleared money.Money     `json:"debt_cleared"`
	OrderPaid   money.Money     `json:"order_paid"`
	Payments    []PaymentDTO    `json:"payments"`
	Transitions []TransitionDTO `json:"transitions"`
}

// =============================================================================
// LEDGER
// =============================================================================

type LedgerRowDTO struct {
	Kind         string       `json:"kind"`
	SourceID     string       `json:"source_id"`
	Timestamp    string       `json:"timestamp"`
	Description  string       `json:"description"`
	Quantity     *string      `json:"quantity,omitempty"`
	UnitPrice    *money.Money `json:"unit_price,omitempty"`
	Amount       money.Money  `json:"amount"`
	Purpose      string       `json:"purpose,omitempty"`
	Channel      *ChannelDTO  `json:"channel,omitempty"`
	OrderBalance money.Money  `json:"order_balance"`
	NetBalance   money.Money  `json:"net_balance"`
}

type SummaryDTO struct {
	OpeningBalances money.Money `json:"opening_balances"`
	Orders          money.Money `json:"orders"`
	DebtCleared     money.Money `json:"debt_cleared"`
	OrderPaid       money.Money `json:"order_paid"`
	TotalPaid       money.Money `json:"total_paid"`
	Expenses        money.Money `json:"expenses"`
	OrderBalance    money.Money `json:"order_balance"`
	NetBalance      money.Money `json:"net_balance"`
	Rows            int         `json:"rows"`
}

// StatementResponse is a party ledger for one window.
type StatementResponse struct {
	Party               PartyDTO       `json:"party"`
	From                string         `json:"from,omitempty"`
	To                  string         `json:"to,omitempty"`
	ForwardOrderBalance money.Money    `json:"forward_order_balance"`
	ForwardNetBalance   money.Money    `json:"forward_net_balance"`
	Rows                []LedgerRowDTO `json:"rows"`
	Summary             SummaryDTO     `json:"summary"`
}

// =============================================================================
// COMPANY RECORDS
// =============================================================================

type ExpenseDTO struct {
	ID         string      `json:"id"`
	Item       string      `json:"item"`
	Department string      `json:"department,omitempty"`
	Amount     money.Money `json:"amount"`
	Channel    ChannelDTO  `json:"channel"`
	Note       string      `json:"note,omitempty"`
	CreatedAt  string      `json:"created_at"`
}

type RecordExpenseRequest struct {
	Item       string      `json:"item" validate:"required,max=200"`
	Department string      `json:"department" validate:"max=200"`
	Amount     money.Money `json:"amount"`
	Channel    ChannelDTO  `json:"channel"`
	Note       string      `json:"note" validate:"max=500"`
	At         time.Time   `json:"at"`
}

type DepositDTO struct {
	ID        string      `json:"id"`
	Source    string      `json:"source"`
	Amount    money.Money `json:"amount"`
	Channel   ChannelDTO  `json:"channel"`
	Note      string      `json:"note,omitempty"`
	CreatedAt string      `json:"created_at"`
}

type RecordDepositRequest struct {
	Source  string      `json:"source" validate:"required,max=200"`
	Amount  money.Money `json:"amount"`
	Channel ChannelDTO  `json:"channel"`
	Note    string      `json:"note" validate:"max=500"`
	At      time.Time   `json:"at"`
}

type PositionDTO struct {
	Cash        money.Money            `json:"cash"`
	Bank        money.Money            `json:"bank"`
	ByBank      map[string]money.Money `json:"by_bank"`
	MobileMoney money.Money            `json:"mobile_money"`
	ByProvider  map[string]money.Money `json:"by_provider"`
	Total       money.Money            `json:"total"`
}

type LineDTO struct {
	Key    string      `json:"key"`
	Amount money.Money `json:"amount"`
	Count  int         `json:"count"`
}

// CompanySummaryDTO is the expense/deposit aggregate for a window.
type CompanySummaryDTO struct {
	From           string      `json:"from,omitempty"`
	To             string      `json:"to,omitempty"`
	ByItem         []LineDTO   `json:"by_item"`
	ByDepartment   []LineDTO   `json:"by_department"`
	Spent          PositionDTO `json:"spent"`
	Received       PositionDTO `json:"received"`
	Cash           PositionDTO `json:"cash"`
	TotalExpense   money.Money `json:"total_expense"`
	TotalIncome    money.Money `json:"total_income"`
	BalanceForward money.Money `json:"balance_forward"`
}

// =============================================================================
// SCENARIOS / ERRORS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// ErrorResponse is the body of every non-2xx response. Fields maps request
// fields to the validation tag they failed.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Details string            `json:"details,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func toPartyDTO(p ledger.Party) PartyDTO {
	return PartyDTO{ID: string(p.ID), Kind: string(p.Kind), Name: p.Name, CreatedAt: formatTime(p.CreatedAt)}
}

func toOpeningBalanceDTO(b ledger.OpeningBalance) OpeningBalanceDTO {
	return OpeningBalanceDTO{
		ID: string(b.ID), PartyID: string(b.PartyID), Amount: b.Amount,
		Status: string(b.Status), CreatedAt: formatTime(b.CreatedAt),
	}
}

func toOrderDTO(o ledger.Order) OrderDTO {
	return OrderDTO{
		ID: string(o.ID), PartyID: string(o.PartyID), Item: o.Item,
		Quantity: o.Quantity.String(), UnitCost: o.UnitCost, TotalAmount: o.TotalAmount,
		CreatedAt: formatTime(o.CreatedAt),
	}
}

func toPaymentDTO(p ledger.Payment) PaymentDTO {
	return PaymentDTO{
		ID: string(p.ID), PartyID: string(p.PartyID), Amount: p.Amount,
		Channel: toChannelDTO(p.Channel), Purpose: string(p.Purpose),
		OrderID: string(p.OrderID), OpeningBalanceID: string(p.OpeningBalanceID),
		Note: p.Note, CreatedAt: formatTime(p.CreatedAt),
	}
}

func toPaymentDTOs(ps []ledger.Payment) []PaymentDTO {
	out := make([]PaymentDTO, len(ps))
	for i, p := range ps {
		out[i] = toPaymentDTO(p)
	}
	return out
}

func toAllocationResponse(res ledger.AllocationResult) AllocationResponse {
	resp := AllocationResponse{
		PartyID:     string(res.PartyID),
		Amount:      res.Amount,
		DebtCleared: res.DebtCleared(),
		OrderPaid:   res.OrderPaid(),
		Payments:    toPaymentDTOs(res.Payments),
		Transitions: make([]TransitionDTO, len(res.Transitions)),
	}
	for i, t := range res.Transitions {
		resp.Transitions[i] = TransitionDTO{
			BalanceID: string(t.BalanceID), From: string(t.From), To: string(t.To),
			Remaining: t.Remaining, Cleared: t.Cleared, RemainingAfter: t.RemainingAfter,
		}
	}
	return resp
}

func toLedgerRowDTO(r ledger.LedgerRow) LedgerRowDTO {
	dto := LedgerRowDTO{
		Kind: string(r.Kind), SourceID: r.SourceID, Timestamp: formatTime(r.Timestamp),
		Description: r.Description, UnitPrice: r.UnitPrice, Amount: r.Amount,
		Purpose: string(r.Purpose), OrderBalance: r.OrderBalance, NetBalance: r.NetBalance,
	}
	if r.Quantity != nil {
		q := r.Quantity.String()
		dto.Quantity = &q
	}
	if r.Channel != nil {
		ch := toChannelDTO(*r.Channel)
		dto.Channel = &ch
	}
	return dto
}

func toSummaryDTO(s ledger.Summary) SummaryDTO {
	return SummaryDTO{
		OpeningBalances: s.OpeningBalances, Orders: s.Orders,
		DebtCleared: s.DebtCleared, OrderPaid: s.OrderPaid, TotalPaid: s.TotalPaid(),
		Expenses: s.Expenses, OrderBalance: s.OrderBalance, NetBalance: s.NetBalance,
		Rows: s.Rows,
	}
}

func toOrderStatementDTO(st ledger.OrderStatement) OrderStatementDTO {
	return OrderStatementDTO{
		Order: toOrderDTO(st.Order), Payments: toPaymentDTOs(st.Payments),
		Paid: st.Paid, Outstanding: st.Outstanding,
	}
}

func toExpenseDTO(e ledger.Expense) ExpenseDTO {
	return ExpenseDTO{
		ID: string(e.ID), Item: e.Item, Department: e.Department, Amount: e.Amount,
		Channel: toChannelDTO(e.Channel), Note: e.Note, CreatedAt: formatTime(e.CreatedAt),
	}
}

func toDepositDTO(d ledger.Deposit) DepositDTO {
	return DepositDTO{
		ID: string(d.ID), Source: d.Source, Amount: d.Amount,
		Channel: toChannelDTO(d.Channel), Note: d.Note, CreatedAt: formatTime(d.CreatedAt),
	}
}

func toPositionDTO(p expense.Position) PositionDTO {
	return PositionDTO{
		Cash: p.Cash, Bank: p.Bank, ByBank: p.ByBank,
		MobileMoney: p.MobileMoney, ByProvider: p.ByProvider, Total: p.Total(),
	}
}

func toLineDTOs(lines []expense.Line) []LineDTO {
	out := make([]LineDTO, len(lines))
	for i, l := range lines {
		out[i] = LineDTO{Key: l.Key, Amount: l.Amount, Count: l.Count}
	}
	return out
}

func toCompanySummaryDTO(s expense.Summary) CompanySummaryDTO {
	from, to := periodBounds(s.Period)
	return CompanySummaryDTO{
		From: from, To: to,
		ByItem: toLineDTOs(s.ByItem), ByDepartment: toLineDTOs(s.ByDepartment),
		Spent: toPositionDTO(s.Spent), Received: toPositionDTO(s.Received), Cash: toPositionDTO(s.Cash),
		TotalExpense: s.TotalExpense, TotalIncome: s.TotalIncome, BalanceForward: s.BalanceForward,
	}
}

func periodBounds(p ledger.Period) (from, to string) {
	if !p.Start.IsZero() {
		from = formatTime(p.Start)
	}
	if !p.End.IsZero() {
		to = formatTime(p.End)
	}
	return from, to
}
