// Package model defines the core domain types shared across the trading engine.
// All monetary and quantity values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade types recorded on transactions. Option trades carry a
// " CALL" / " PUT" suffix after the base type.
const (
	TradeTypeBuy  = "BUY"
	TradeTypeSell = "SELL"

	OptionSuffixCall = " CALL"
	OptionSuffixPut  = " PUT"
)

// ContractShares is the number of underlying shares one option
// contract controls.
var ContractShares = decimal.NewFromInt(100)

// Game is the environment where players create portfolios and compete
// for the highest total value. Immutable after creation except for the
// winner, which is set once at game conclusion.
type Game struct {
	ID              string          `json:"id" db:"id"`
	Title           string          `json:"title" db:"title"` // unique across games
	StartingBalance decimal.Decimal `json:"starting_balance" db:"starting_balance"`
	Rules           string          `json:"rules,omitempty" db:"rules"`
	Winner          string          `json:"winner,omitempty" db:"winner"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}

// Portfolio is one player's stake in a game. CashBalance never goes
// negative; TotalValue and Rank are recomputed on demand, never
// trusted as current.
type Portfolio struct {
	ID          string          `json:"id" db:"id"`
	OwnerID     string          `json:"owner_id" db:"owner_id"`
	GameID      string          `json:"game_id" db:"game_id"`
	Title       string          `json:"title" db:"title"` // unique within a game
	CashBalance decimal.Decimal `json:"cash_balance" db:"cash_balance"`
	TotalValue  decimal.Decimal `json:"total_value" db:"total_value"`
	Rank        int             `json:"rank" db:"rank"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// Holding is a long equity position. At most one Holding exists per
// (portfolio, ticker); the row is removed when shares reach exactly zero.
type Holding struct {
	ID          string          `json:"id" db:"id"`
	PortfolioID string          `json:"portfolio_id" db:"portfolio_id"`
	Ticker      string          `json:"ticker" db:"ticker"`
	Shares      decimal.Decimal `json:"shares" db:"shares"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// Option is a position in one option contract, identified by its full
// contract symbol. One quantity unit controls ContractShares underlying
// shares. At most one Option exists per (portfolio, contract); the row
// is removed when quantity reaches exactly zero.
type Option struct {
	ID          string          `json:"id" db:"id"`
	PortfolioID string          `json:"portfolio_id" db:"portfolio_id"`
	Contract    string          `json:"contract" db:"contract"`
	Quantity    decimal.Decimal `json:"quantity" db:"quantity"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// Transaction is an immutable record of one executed trade. Once
// created these are never modified or deleted; the portfolio reference
// is cleared (not cascaded) when a portfolio is deleted so history
// survives.
type Transaction struct {
	ID          string          `json:"id" db:"id"`
	PortfolioID string          `json:"portfolio_id,omitempty" db:"portfolio_id"` // empty once orphaned
	Symbol      string          `json:"symbol" db:"symbol"`                       // ticker or contract
	TradeType   string          `json:"trade_type" db:"trade_type"`
	Quantity    decimal.Decimal `json:"quantity" db:"quantity"` // shares or contracts
	Price       decimal.Decimal `json:"price" db:"price"`       // executed per-unit price
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// TradeMutation is the complete write set of one successful trade.
// Stores apply it as a single atomic unit: either every field commits
// or none do. Nil upserts and empty delete IDs mean "untouched".
type TradeMutation struct {
	PortfolioID string
	CashBalance decimal.Decimal // new cash balance after the trade

	HoldingUpsert *Holding // create-or-update
	HoldingDelete string   // holding ID to remove (position closed)

	OptionUpsert *Option // create-or-update (includes exercise decrements)
	OptionDelete string  // option ID to remove (position closed)

	Transaction Transaction
}
