package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tradesim/engine/internal/contract"
	"github.com/tradesim/engine/internal/model"
	"github.com/tradesim/engine/internal/store"
)

// validateExercise checks that a held option contract may be exercised
// to trade shares of ticker in the given direction (call for buys, put
// for sells). On success it returns the held position and the strike
// price, which replaces the market price for the trade. Checks run in
// a fixed order so the first failure wins; callers must hold the
// portfolio lock.
func (l *Ledger) validateExercise(ctx context.Context, portfolioID, ticker string, shares, marketPrice decimal.Decimal, contractSym, direction string) (*model.Option, decimal.Decimal, error) {
	opt, err := l.store.GetOption(ctx, portfolioID, contractSym)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, decimal.Zero, fmt.Errorf("%w: %s", ErrContractNotHeld, contractSym)
		}
		return nil, decimal.Zero, err
	}

	c, err := contract.Parse(contractSym)
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("%w: %v", ErrInvalidContract, err)
	}

	if c.Ticker != ticker {
		return nil, decimal.Zero, fmt.Errorf("%w: contract %s is for %s, not %s",
			ErrTickerMismatch, contractSym, c.Ticker, ticker)
	}
	if c.Expiration == nil || !c.Expiration.After(l.now()) {
		return nil, decimal.Zero, fmt.Errorf("%w: %s", ErrContractExpired, contractSym)
	}
	if c.Type != direction {
		return nil, decimal.Zero, fmt.Errorf("%w: %s is a %s contract",
			ErrWrongContractType, contractSym, typeName(c.Type))
	}
	if opt.Quantity.Mul(model.ContractShares).LessThan(shares) {
		return nil, decimal.Zero, fmt.Errorf("%w: %s contracts cover %s shares, need %s",
			ErrInsufficientContractQuantity, opt.Quantity, opt.Quantity.Mul(model.ContractShares), shares)
	}

	// A disadvantageous exercise is legal; just log it. Calls are worth
	// exercising below market, puts above.
	if (direction == contract.TypeCall && c.Strike.GreaterThanOrEqual(marketPrice)) ||
		(direction == contract.TypePut && c.Strike.LessThanOrEqual(marketPrice)) {
		l.log.Warn("exercising out-of-the-money contract",
			"portfolio", portfolioID,
			"contract", contractSym,
			"strike", c.Strike.String(),
			"market", marketPrice.String(),
		)
	}

	return opt, c.Strike, nil
}

func typeName(t string) string {
	switch t {
	case contract.TypeCall:
		return "call"
	case contract.TypePut:
		return "put"
	default:
		return t
	}
}
