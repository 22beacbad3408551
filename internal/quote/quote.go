// Package quote supplies ask/bid prices for equity tickers and option
// contract identifiers. The engine treats the quote source as an
// external collaborator: it may fail or report a symbol as not
// currently traded, and the engine must never confuse either outcome
// with a price of zero.
package quote

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"
)

// ErrUnavailable means the symbol is not currently traded: no quote
// exists for it. It is a terminal outcome for a trade, not a retryable
// state, and is never equivalent to a zero price.
var ErrUnavailable = errors.New("quote: symbol not currently traded")

// Gateway resolves immediate buy (ask) and sell (bid) prices. Symbols
// are equity tickers or full option contract identifiers; for
// contracts the returned price is per contract, with the ×100 share
// multiplier already applied.
type Gateway interface {
	AskPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	BidPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// StaticGateway serves quotes from an in-memory table. Used for
// testing and development; symbols without an entry are unavailable.
type StaticGateway struct {
	mu   sync.RWMutex
	asks map[string]decimal.Decimal
	bids map[string]decimal.Decimal
}

// NewStaticGateway creates an empty static gateway.
func NewStaticGateway() *StaticGateway {
	return &StaticGateway{
		asks: make(map[string]decimal.Decimal),
		bids: make(map[string]decimal.Decimal),
	}
}

// SetQuote installs or replaces the quote for a symbol.
func (g *StaticGateway) SetQuote(symbol string, ask, bid decimal.Decimal) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.asks[symbol] = ask
	g.bids[symbol] = bid
}

// Remove makes a symbol unavailable again.
func (g *StaticGateway) Remove(symbol string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.asks, symbol)
	delete(g.bids, symbol)
}

func (g *StaticGateway) AskPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p, ok := g.asks[symbol]
	if !ok {
		return decimal.Zero, ErrUnavailable
	}
	return p, nil
}

func (g *StaticGateway) BidPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p, ok := g.bids[symbol]
	if !ok {
		return decimal.Zero, ErrUnavailable
	}
	return p, nil
}
