// Package ledger implements the trading and valuation engine: the
// mutating buy/sell operations on portfolios, option exercise
// validation, portfolio valuation, and game ranking.
//
// Every mutating operation is serialized per portfolio and commits as
// one atomic write set. The quote lookup — the only slow collaborator
// call — happens before the portfolio lock is taken; balance and
// position checks run under the lock against fresh state. A failed
// operation performs no writes at all.
//
// All monetary values use shopspring/decimal — never float64 for money.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tradesim/engine/internal/contract"
	"github.com/tradesim/engine/internal/model"
	"github.com/tradesim/engine/internal/quote"
	"github.com/tradesim/engine/internal/store"
)

// Ledger owns the mutating operations of the game. It depends on the
// persistence collaborator and the pricing gateway through interfaces
// so the algorithms are testable without a real store or market feed.
type Ledger struct {
	store  store.Store
	quotes quote.Gateway
	log    *slog.Logger
	locks  *keyedMutex
	now    func() time.Time
}

// New creates a ledger over a store and a pricing gateway.
func New(st store.Store, quotes quote.Gateway, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		store:  st,
		quotes: quotes,
		log:    logger,
		locks:  newKeyedMutex(),
		now:    time.Now,
	}
}

// BuyHolding purchases shares of ticker for the portfolio at the
// current ask price, or at the strike price of an exercised call
// contract when exercise names one. The holding row is created on
// first purchase; a failure on any check leaves no provisional row
// behind.
func (l *Ledger) BuyHolding(ctx context.Context, portfolioID, ticker string, shares decimal.Decimal, exercise string) (*model.Transaction, error) {
	if shares.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %s shares", ErrInvalidQuantity, shares)
	}

	price, err := l.askPrice(ctx, ticker)
	if err != nil {
		return nil, err
	}

	unlock := l.locks.lock(portfolioID)
	defer unlock()

	p, err := l.store.GetPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	holding, err := l.store.GetHolding(ctx, portfolioID, ticker)
	if errors.Is(err, store.ErrNotFound) {
		holding = &model.Holding{
			ID:          uuid.NewString(),
			PortfolioID: portfolioID,
			Ticker:      ticker,
			Shares:      decimal.Zero,
			CreatedAt:   l.now(),
		}
	} else if err != nil {
		return nil, err
	}

	var exercised *model.Option
	if exercise != "" {
		opt, strike, err := l.validateExercise(ctx, portfolioID, ticker, shares, price, exercise, contract.TypeCall)
		if err != nil {
			return nil, err
		}
		exercised = opt
		price = strike
	}

	cost := price.Mul(shares)
	if p.CashBalance.LessThan(cost) {
		return nil, fmt.Errorf("%w: %s costs %s, balance is %s",
			ErrInsufficientFunds, ticker, cost, p.CashBalance)
	}

	updated := *holding
	updated.Shares = holding.Shares.Add(shares)

	mut := &model.TradeMutation{
		PortfolioID:   portfolioID,
		CashBalance:   p.CashBalance.Sub(cost),
		HoldingUpsert: &updated,
		Transaction:   l.newTransaction(portfolioID, ticker, model.TradeTypeBuy, shares, price),
	}
	l.applyExercise(mut, exercised, shares)

	if err := l.store.ApplyTrade(ctx, mut); err != nil {
		return nil, err
	}

	l.log.Info("trade executed",
		"portfolio", portfolioID,
		"symbol", ticker,
		"type", model.TradeTypeBuy,
		"shares", shares.String(),
		"price", price.String(),
		"cash", mut.CashBalance.String(),
		"exercised", exercise != "",
	)
	return &mut.Transaction, nil
}

// SellHolding sells shares of ticker at the current bid price, or at
// the strike price of an exercised put contract. Selling the entire
// position removes the holding row.
func (l *Ledger) SellHolding(ctx context.Context, portfolioID, ticker string, shares decimal.Decimal, exercise string) (*model.Transaction, error) {
	if shares.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %s shares", ErrInvalidQuantity, shares)
	}

	// Existence check before the quote call, so selling a ticker that
	// was never bought reports the position error, not a quote error.
	if _, err := l.store.GetHolding(ctx, portfolioID, ticker); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrHoldingNotFound, ticker)
		}
		return nil, err
	}

	price, err := l.bidPrice(ctx, ticker)
	if err != nil {
		return nil, err
	}

	unlock := l.locks.lock(portfolioID)
	defer unlock()

	p, err := l.store.GetPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	// Re-read under the lock; the position may have changed.
	holding, err := l.store.GetHolding(ctx, portfolioID, ticker)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrHoldingNotFound, ticker)
		}
		return nil, err
	}

	var exercised *model.Option
	if exercise != "" {
		opt, strike, err := l.validateExercise(ctx, portfolioID, ticker, shares, price, exercise, contract.TypePut)
		if err != nil {
			return nil, err
		}
		exercised = opt
		price = strike
	}

	if holding.Shares.LessThan(shares) {
		return nil, fmt.Errorf("%w: have %s of %s, tried to sell %s",
			ErrInsufficientShares, holding.Shares, ticker, shares)
	}

	mut := &model.TradeMutation{
		PortfolioID: portfolioID,
		CashBalance: p.CashBalance.Add(price.Mul(shares)),
		Transaction: l.newTransaction(portfolioID, ticker, model.TradeTypeSell, shares, price),
	}

	remainder := holding.Shares.Sub(shares)
	if remainder.IsZero() {
		mut.HoldingDelete = holding.ID
	} else {
		updated := *holding
		updated.Shares = remainder
		mut.HoldingUpsert = &updated
	}
	l.applyExercise(mut, exercised, shares)

	if err := l.store.ApplyTrade(ctx, mut); err != nil {
		return nil, err
	}

	l.log.Info("trade executed",
		"portfolio", portfolioID,
		"symbol", ticker,
		"type", model.TradeTypeSell,
		"shares", shares.String(),
		"price", price.String(),
		"cash", mut.CashBalance.String(),
		"exercised", exercise != "",
	)
	return &mut.Transaction, nil
}

// BuyOption purchases quantity contracts of an option. The gateway
// prices contracts with the ×100 share multiplier already applied.
func (l *Ledger) BuyOption(ctx context.Context, portfolioID, contractSym string, quantity decimal.Decimal) (*model.Transaction, error) {
	if quantity.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %s contracts", ErrInvalidQuantity, quantity)
	}
	suffix, err := optionSuffix(contractSym)
	if err != nil {
		return nil, err
	}

	price, err := l.askPrice(ctx, contractSym)
	if err != nil {
		return nil, err
	}

	unlock := l.locks.lock(portfolioID)
	defer unlock()

	p, err := l.store.GetPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	opt, err := l.store.GetOption(ctx, portfolioID, contractSym)
	if errors.Is(err, store.ErrNotFound) {
		opt = &model.Option{
			ID:          uuid.NewString(),
			PortfolioID: portfolioID,
			Contract:    contractSym,
			Quantity:    decimal.Zero,
			CreatedAt:   l.now(),
		}
	} else if err != nil {
		return nil, err
	}

	cost := price.Mul(quantity)
	if p.CashBalance.LessThan(cost) {
		return nil, fmt.Errorf("%w: %s costs %s, balance is %s",
			ErrInsufficientFunds, contractSym, cost, p.CashBalance)
	}

	updated := *opt
	updated.Quantity = opt.Quantity.Add(quantity)

	mut := &model.TradeMutation{
		PortfolioID:  portfolioID,
		CashBalance:  p.CashBalance.Sub(cost),
		OptionUpsert: &updated,
		Transaction:  l.newTransaction(portfolioID, contractSym, model.TradeTypeBuy+suffix, quantity, price),
	}

	if err := l.store.ApplyTrade(ctx, mut); err != nil {
		return nil, err
	}

	l.log.Info("trade executed",
		"portfolio", portfolioID,
		"symbol", contractSym,
		"type", mut.Transaction.TradeType,
		"quantity", quantity.String(),
		"price", price.String(),
		"cash", mut.CashBalance.String(),
	)
	return &mut.Transaction, nil
}

// SellOption sells quantity contracts of a held option position.
// Selling the entire position removes the option row.
func (l *Ledger) SellOption(ctx context.Context, portfolioID, contractSym string, quantity decimal.Decimal) (*model.Transaction, error) {
	if quantity.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %s contracts", ErrInvalidQuantity, quantity)
	}
	suffix, err := optionSuffix(contractSym)
	if err != nil {
		return nil, err
	}

	if _, err := l.store.GetOption(ctx, portfolioID, contractSym); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrContractNotHeld, contractSym)
		}
		return nil, err
	}

	price, err := l.bidPrice(ctx, contractSym)
	if err != nil {
		return nil, err
	}

	unlock := l.locks.lock(portfolioID)
	defer unlock()

	p, err := l.store.GetPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	opt, err := l.store.GetOption(ctx, portfolioID, contractSym)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrContractNotHeld, contractSym)
		}
		return nil, err
	}

	if opt.Quantity.LessThan(quantity) {
		return nil, fmt.Errorf("%w: have %s of %s, tried to sell %s",
			ErrInsufficientContractQuantity, opt.Quantity, contractSym, quantity)
	}

	mut := &model.TradeMutation{
		PortfolioID: portfolioID,
		CashBalance: p.CashBalance.Add(price.Mul(quantity)),
		Transaction: l.newTransaction(portfolioID, contractSym, model.TradeTypeSell+suffix, quantity, price),
	}

	remainder := opt.Quantity.Sub(quantity)
	if remainder.IsZero() {
		mut.OptionDelete = opt.ID
	} else {
		updated := *opt
		updated.Quantity = remainder
		mut.OptionUpsert = &updated
	}

	if err := l.store.ApplyTrade(ctx, mut); err != nil {
		return nil, err
	}

	l.log.Info("trade executed",
		"portfolio", portfolioID,
		"symbol", contractSym,
		"type", mut.Transaction.TradeType,
		"quantity", quantity.String(),
		"price", price.String(),
		"cash", mut.CashBalance.String(),
	)
	return &mut.Transaction, nil
}

// applyExercise folds an exercised contract's quantity decrement into
// the trade's write set. Exercising consumes shares/100 contracts; a
// position consumed to exactly zero is removed.
func (l *Ledger) applyExercise(mut *model.TradeMutation, opt *model.Option, shares decimal.Decimal) {
	if opt == nil {
		return
	}
	remainder := opt.Quantity.Sub(shares.Div(model.ContractShares))
	if remainder.IsZero() {
		mut.OptionDelete = opt.ID
		return
	}
	updated := *opt
	updated.Quantity = remainder
	mut.OptionUpsert = &updated
}

func (l *Ledger) newTransaction(portfolioID, symbol, tradeType string, quantity, price decimal.Decimal) model.Transaction {
	return model.Transaction{
		ID:          uuid.NewString(),
		PortfolioID: portfolioID,
		Symbol:      symbol,
		TradeType:   tradeType,
		Quantity:    quantity,
		Price:       price,
		CreatedAt:   l.now(),
	}
}

func (l *Ledger) askPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	p, err := l.quotes.AskPrice(ctx, symbol)
	if errors.Is(err, quote.ErrUnavailable) {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrNotTraded, symbol)
	}
	return p, err
}

func (l *Ledger) bidPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	p, err := l.quotes.BidPrice(ctx, symbol)
	if errors.Is(err, quote.ErrUnavailable) {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrNotTraded, symbol)
	}
	return p, err
}

// optionSuffix derives the trade-type suffix from the contract's
// call/put letter. Other letters decompose fine in the codec but are
// not tradable here.
func optionSuffix(contractSym string) (string, error) {
	c, err := contract.Parse(contractSym)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidContract, err)
	}
	switch c.Type {
	case contract.TypeCall:
		return model.OptionSuffixCall, nil
	case contract.TypePut:
		return model.OptionSuffixPut, nil
	default:
		return "", fmt.Errorf("%w: unsupported option type %q", ErrWrongContractType, c.Type)
	}
}
