// Package store defines the persistence interface for the trading
// engine. Implementations include PostgreSQL (source of truth) and
// in-memory (for testing and development).
package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/tradesim/engine/internal/model"
)

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrDuplicate is returned when a uniqueness constraint is
	// violated (game title, portfolio title within a game, one
	// holding per ticker, one option per contract).
	ErrDuplicate = errors.New("store: duplicate")
)

// Store is the persistence collaborator. The engine reads entities
// through the lookup methods and commits every trade through
// ApplyTrade, which must be atomic: a failed apply leaves cash,
// positions, and the transaction log untouched.
type Store interface {
	// --- Games ---

	// CreateGame persists a new game. The title is unique.
	CreateGame(ctx context.Context, g *model.Game) error

	// GetGame retrieves a game by ID.
	GetGame(ctx context.Context, id string) (*model.Game, error)

	// ListGames returns all games, newest first.
	ListGames(ctx context.Context) ([]model.Game, error)

	// SetGameWinner records the winner at game conclusion.
	SetGameWinner(ctx context.Context, gameID, winner string) error

	// --- Portfolios ---

	// CreatePortfolio persists a new portfolio. The title is unique
	// within its game.
	CreatePortfolio(ctx context.Context, p *model.Portfolio) error

	// GetPortfolio retrieves a portfolio by ID.
	GetPortfolio(ctx context.Context, id string) (*model.Portfolio, error)

	// ListPortfoliosByGame returns every portfolio in a game.
	ListPortfoliosByGame(ctx context.Context, gameID string) ([]model.Portfolio, error)

	// UpdatePortfolioStanding persists a recomputed total value and rank.
	UpdatePortfolioStanding(ctx context.Context, id string, totalValue decimal.Decimal, rank int) error

	// DeletePortfolio removes a portfolio with its holdings and
	// options. Transactions survive with their portfolio reference
	// cleared.
	DeletePortfolio(ctx context.Context, id string) error

	// --- Positions ---

	// GetHolding retrieves the one holding for (portfolio, ticker).
	GetHolding(ctx context.Context, portfolioID, ticker string) (*model.Holding, error)

	// ListHoldingsByPortfolio returns all holdings of a portfolio.
	ListHoldingsByPortfolio(ctx context.Context, portfolioID string) ([]model.Holding, error)

	// GetOption retrieves the one option for (portfolio, contract).
	GetOption(ctx context.Context, portfolioID, contract string) (*model.Option, error)

	// ListOptionsByPortfolio returns all option positions of a portfolio.
	ListOptionsByPortfolio(ctx context.Context, portfolioID string) ([]model.Option, error)

	// --- Trades ---

	// ApplyTrade commits the complete write set of one trade as a
	// single atomic unit.
	ApplyTrade(ctx context.Context, mut *model.TradeMutation) error

	// ListTransactionsByPortfolio returns the append-only trade log
	// for a portfolio, newest first.
	ListTransactionsByPortfolio(ctx context.Context, portfolioID string) ([]model.Transaction, error)
}
