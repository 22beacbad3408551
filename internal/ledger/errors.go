package ledger

import "errors"

// Failure kinds reported by ledger operations. Every failed operation
// leaves the portfolio, its positions, and the transaction log exactly
// as they were; callers match these with errors.Is.
var (
	// ErrNotTraded means the pricing gateway has no quote for the
	// symbol. Terminal for the operation, never retried.
	ErrNotTraded = errors.New("ledger: symbol not currently traded")

	// ErrInsufficientFunds means the trade cost exceeds the
	// portfolio's cash balance.
	ErrInsufficientFunds = errors.New("ledger: not enough cash")

	// ErrInsufficientShares means a sell exceeds the held share count.
	ErrInsufficientShares = errors.New("ledger: not enough shares")

	// ErrHoldingNotFound means the portfolio holds no position in the
	// ticker being sold.
	ErrHoldingNotFound = errors.New("ledger: holding not in portfolio")

	// ErrContractNotHeld means the named option contract is not a
	// position in the portfolio.
	ErrContractNotHeld = errors.New("ledger: option contract not in portfolio")

	// ErrTickerMismatch means the exercised contract is for a
	// different underlying than the traded ticker.
	ErrTickerMismatch = errors.New("ledger: option contract is for a different stock")

	// ErrContractExpired means the contract's expiration is missing,
	// unparseable, or not after the current moment.
	ErrContractExpired = errors.New("ledger: option contract has expired")

	// ErrWrongContractType means the contract's call/put letter does
	// not match the trade direction.
	ErrWrongContractType = errors.New("ledger: wrong option contract type")

	// ErrInsufficientContractQuantity means the option position does
	// not cover the requested shares or contracts.
	ErrInsufficientContractQuantity = errors.New("ledger: not enough contract quantity")

	// ErrInvalidContract means the contract identifier cannot be
	// decoded into its economic parameters.
	ErrInvalidContract = errors.New("ledger: invalid contract identifier")

	// ErrInvalidQuantity rejects zero or negative trade quantities.
	ErrInvalidQuantity = errors.New("ledger: quantity must be positive")
)

// Reason returns a stable short label for a ledger failure, for use in
// metrics and API payloads.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrNotTraded):
		return "not_traded"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrInsufficientShares):
		return "insufficient_shares"
	case errors.Is(err, ErrHoldingNotFound):
		return "holding_not_found"
	case errors.Is(err, ErrContractNotHeld):
		return "contract_not_held"
	case errors.Is(err, ErrTickerMismatch):
		return "ticker_mismatch"
	case errors.Is(err, ErrContractExpired):
		return "contract_expired"
	case errors.Is(err, ErrWrongContractType):
		return "wrong_contract_type"
	case errors.Is(err, ErrInsufficientContractQuantity):
		return "insufficient_contract_quantity"
	case errors.Is(err, ErrInvalidContract):
		return "invalid_contract"
	case errors.Is(err, ErrInvalidQuantity):
		return "invalid_quantity"
	default:
		return "internal"
	}
}
