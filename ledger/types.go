/*
Package ledger provides the reconciliation engine for party debt.

PURPOSE:
  Turns a party's raw financial records (opening balances, orders, payments)
  into an auditable running balance, and decides how an incoming payment is
  split between legacy debt and order debt.

KEY CONCEPTS IN THIS FILE (types.go):
  - Party: a client or marketer carrying a running debt balance
  - OpeningBalance: legacy debt, cleared only by debt-clearance payments
  - Order: debt-increasing event (quantity x unit cost)
  - Payment: debt-decreasing event with a purpose fixed at creation
  - Channel: how money moved (cash, bank, mobile money)

DESIGN PRINCIPLES:
  1. Purity: nothing in this package performs I/O. Callers read records,
     call the engine, and persist the decision it returns.
  2. Precision: every amount is money.Money, never float64.
  3. Single semantics: oldest balance cleared first, net balance unclamped.

SEE ALSO:
  - allocation.go: payment waterfall
  - folder.go: running balance computation
  - store.go: persistence contracts implemented outside the engine
*/
package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/ledger-engine/money"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type PartyID string
type OpeningBalanceID string
type OrderID string
type PaymentID string
type ExpenseID string
type DepositID string

// =============================================================================
// PARTY
// =============================================================================

type PartyKind string

const (
	PartyClient   PartyKind = "client"
	PartyMarketer PartyKind = "marketer"
)

func (k PartyKind) Valid() bool { return k == PartyClient || k == PartyMarketer }

type Party struct {
	ID        PartyID
	Kind      PartyKind
	Name      string
	CreatedAt time.Time
}

// =============================================================================
// OPENING BALANCE
// =============================================================================

type OpeningBalance struct {
	ID        OpeningBalanceID
	PartyID   PartyID
	Amount    money.Money
	Status    BalanceStatus
	CreatedAt time.Time
}

// =============================================================================
// ORDER
// =============================================================================

type Order struct {
	ID          OrderID
	PartyID     PartyID
	Item        string
	Quantity    decimal.Decimal
	UnitCost    money.Money
	TotalAmount money.Money
	CreatedAt   time.Time
}

// NewOrder builds an order with TotalAmount = Quantity x UnitCost.
func NewOrder(id OrderID, party PartyID, item string, qty decimal.Decimal, unitCost money.Money, at time.Time) (Order, error) {
	o := Order{ID: id, PartyID: party, Item: item, CreatedAt: at}
	if err := o.Reprice(qty, unitCost); err != nil {
		return Order{}, err
	}
	return o, nil
}

// Reprice replaces quantity and unit cost and recomputes the total.
// On error the order is left untouched.
func (o *Order) Reprice(qty decimal.Decimal, unitCost money.Money) error {
	if !qty.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidQuantity, qty.String())
	}
	if unitCost.IsNegative() {
		return fmt.Errorf("%w: unit cost %s", ErrInvalidAmount, unitCost)
	}
	o.Quantity = qty
	o.UnitCost = unitCost
	o.TotalAmount = unitCost.MulQuantity(qty)
	return nil
}

// =============================================================================
// CHANNEL
// =============================================================================

type ChannelKind string

const (
	ChannelCash        ChannelKind = "cash"
	ChannelBank        ChannelKind = "bank"
	ChannelMobileMoney ChannelKind = "mobile_money"
)

// Channel is how money moved. BankName is set only for bank transfers,
// Provider only for mobile money.
type Channel struct {
	Kind     ChannelKind
	BankName string
	Provider string
}

func Cash() Channel                       { return Channel{Kind: ChannelCash} }
func Bank(name string) Channel            { return Channel{Kind: ChannelBank, BankName: name} }
func MobileMoney(provider string) Channel { return Channel{Kind: ChannelMobileMoney, Provider: provider} }

// Validate reports ErrIncompleteChannelInfo when a sub-field is missing.
func (c Channel) Validate() error {
	switch c.Kind {
	case ChannelCash:
		return nil
	case ChannelBank:
		if c.BankName == "" {
			return fmt.Errorf("%w: bank transfer requires a bank name", ErrIncompleteChannelInfo)
		}
		return nil
	case ChannelMobileMoney:
		if c.Provider == "" {
			return fmt.Errorf("%w: mobile money requires a provider", ErrIncompleteChannelInfo)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown channel %q", ErrIncompleteChannelInfo, c.Kind)
	}
}

// Detail is the bank name or provider, empty for cash.
func (c Channel) Detail() string {
	switch c.Kind {
	case ChannelBank:
		return c.BankName
	case ChannelMobileMoney:
		return c.Provider
	default:
		return ""
	}
}

func (c Channel) String() string {
	if d := c.Detail(); d != "" {
		return string(c.Kind) + ":" + d
	}
	return string(c.Kind)
}

// =============================================================================
// PAYMENT
// =============================================================================

type PaymentPurpose string

const (
	PurposeDebtClearance PaymentPurpose = "debt_clearance"
	PurposeOrderPayment  PaymentPurpose = "order_payment"
)

func (p PaymentPurpose) Valid() bool {
	return p == PurposeDebtClearance || p == PurposeOrderPayment
}

type Payment struct {
	ID        PaymentID
	PartyID   PartyID
	Amount    money.Money
	Channel   Channel
	Purpose   PaymentPurpose
	CreatedAt time.Time

	// OrderID feeds per-order statements only; party reconciliation ignores it.
	OrderID OrderID

	// OpeningBalanceID records which balance a debt clearance was poured into
	// when it was allocated. Remaining debt is still derived from chronology;
	// the auditor compares the two.
	OpeningBalanceID OpeningBalanceID

	Note string
}

// =============================================================================
// COMPANY RECORDS (never netted against party balances)
// =============================================================================

// Expense is a company cost. Department may match a party's display name,
// which is informational only.
type Expense struct {
	ID         ExpenseID
	Item       string
	Department string
	Amount     money.Money
	Channel    Channel
	CreatedAt  time.Time
	Note       string
}

// Deposit is company income (finance/deposit stream).
type Deposit struct {
	ID        DepositID
	Source    string
	Amount    money.Money
	Channel   Channel
	CreatedAt time.Time
	Note      string
}
