package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tradesim/engine/internal/model"
)

// ErrInvalidStartingBalance rejects games that would seed portfolios
// with no cash to trade.
var ErrInvalidStartingBalance = fmt.Errorf("ledger: starting balance must be positive")

// CreateGame registers a new competition. Every portfolio that joins
// it starts with the game's starting balance.
func (l *Ledger) CreateGame(ctx context.Context, title string, startingBalance decimal.Decimal, rules string) (*model.Game, error) {
	if startingBalance.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStartingBalance, startingBalance)
	}
	g := &model.Game{
		ID:              uuid.NewString(),
		Title:           title,
		StartingBalance: startingBalance,
		Rules:           rules,
		CreatedAt:       l.now(),
	}
	if err := l.store.CreateGame(ctx, g); err != nil {
		return nil, err
	}
	l.log.Info("game created", "game", g.ID, "title", title, "starting_balance", startingBalance.String())
	return g, nil
}

// CreatePortfolio enters a player into a game. Cash and total value
// both start at the game's starting balance; ranks settle on the
// first leaderboard computation.
func (l *Ledger) CreatePortfolio(ctx context.Context, gameID, ownerID, title string) (*model.Portfolio, error) {
	g, err := l.store.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	p := &model.Portfolio{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		GameID:      gameID,
		Title:       title,
		CashBalance: g.StartingBalance,
		TotalValue:  g.StartingBalance,
		Rank:        1,
		CreatedAt:   l.now(),
	}
	if err := l.store.CreatePortfolio(ctx, p); err != nil {
		return nil, err
	}
	l.log.Info("portfolio created", "portfolio", p.ID, "game", gameID, "title", title)
	return p, nil
}

// ConcludeGame recomputes the final standings and records the title of
// the top-ranked portfolio as the game's winner.
func (l *Ledger) ConcludeGame(ctx context.Context, gameID string) (*model.Game, error) {
	standings, err := l.RankPortfolios(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if len(standings) > 0 {
		if err := l.store.SetGameWinner(ctx, gameID, standings[0].Title); err != nil {
			return nil, err
		}
		l.log.Info("game concluded", "game", gameID, "winner", standings[0].Title)
	}
	return l.store.GetGame(ctx, gameID)
}
