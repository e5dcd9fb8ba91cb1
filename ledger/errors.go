/*
errors.go - Centralized error types for the reconciliation engine

ERROR CATEGORIES:
  1. Input errors - bad amounts, channels, quantities (client mistakes)
  2. History errors - stored records that contradict each other
  3. Lookup errors - referenced records that do not exist (store layer)

Everything else (no opening balance, no orders, no payments) is a valid
zero state, not an error.
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/warp/ledger-engine/money"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidAmount is returned for non-positive payments and negative prices.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrIncompleteChannelInfo is returned when a bank transfer has no bank
	// name or a mobile money payment has no provider.
	ErrIncompleteChannelInfo = errors.New("incomplete channel info")

	// ErrInconsistentHistory is returned when stored records contradict each
	// other, e.g. more debt cleared than was ever owed. It signals upstream
	// corruption and is never silently clamped.
	ErrInconsistentHistory = errors.New("inconsistent history")

	// ErrInvalidTimestamp is returned for zero timestamps and for opening
	// balances backdated before a recorded debt clearance.
	ErrInvalidTimestamp = errors.New("invalid timestamp")

	// ErrInvalidQuantity is returned for non-positive order quantities.
	ErrInvalidQuantity = errors.New("invalid quantity")

	// ErrInvalidPeriod is returned when a window ends before it starts.
	ErrInvalidPeriod = errors.New("invalid period: end before start")

	// ErrInvalidParty is returned for parties with no name or an unknown kind.
	ErrInvalidParty = errors.New("invalid party")

	ErrPartyNotFound   = errors.New("party not found")
	ErrOrderNotFound   = errors.New("order not found")
	ErrBalanceNotFound = errors.New("opening balance not found")

	// ErrDuplicateID is returned when a record id is already taken.
	ErrDuplicateID = errors.New("duplicate id")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// InconsistentHistoryError describes which records disagree.
type InconsistentHistoryError struct {
	PartyID   PartyID
	BalanceID OpeningBalanceID
	Detail    string
	Excess    money.Money
}

func (e *InconsistentHistoryError) Error() string {
	if e.BalanceID != "" {
		return fmt.Sprintf("inconsistent history for party %s (balance %s): %s", e.PartyID, e.BalanceID, e.Detail)
	}
	return fmt.Sprintf("inconsistent history for party %s: %s", e.PartyID, e.Detail)
}

func (e *InconsistentHistoryError) Unwrap() error { return ErrInconsistentHistory }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrIncompleteChannelInfo) ||
		errors.Is(err, ErrInvalidTimestamp) ||
		errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrInvalidParty) ||
		errors.Is(err, ErrDuplicateID)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPartyNotFound) ||
		errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrBalanceNotFound)
}
