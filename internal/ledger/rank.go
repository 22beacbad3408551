package ledger

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/tradesim/engine/internal/model"
)

// Standing is one leaderboard row.
type Standing struct {
	PortfolioID string          `json:"portfolio_id"`
	Title       string          `json:"title"`
	TotalValue  decimal.Decimal `json:"total_value"`
	Rank        int             `json:"rank"`
}

// TotalValue computes a portfolio's worth: cash plus every holding at
// the bid price. Option positions carry no mark-to-market value; their
// cash effects are already settled through past trades. A holding
// whose ticker has no quote contributes zero rather than failing the
// whole valuation.
func (l *Ledger) TotalValue(ctx context.Context, portfolioID string) (decimal.Decimal, error) {
	// Snapshot the positions under the portfolio lock so a concurrent
	// trade cannot be half-counted; quotes are fetched after release.
	unlock := l.locks.lock(portfolioID)
	p, err := l.store.GetPortfolio(ctx, portfolioID)
	if err != nil {
		unlock()
		return decimal.Zero, err
	}
	holdings, err := l.store.ListHoldingsByPortfolio(ctx, portfolioID)
	if err != nil {
		unlock()
		return decimal.Zero, err
	}
	unlock()

	return p.CashBalance.Add(l.equityValue(ctx, holdings)), nil
}

// equityValue marks every holding at the bid. A ticker with no quote
// marks to zero.
func (l *Ledger) equityValue(ctx context.Context, holdings []model.Holding) decimal.Decimal {
	total := decimal.Zero
	for _, h := range holdings {
		bid, err := l.quotes.BidPrice(ctx, h.Ticker)
		if err != nil {
			l.log.Warn("holding marked to zero, no quote", "ticker", h.Ticker)
			continue
		}
		total = total.Add(bid.Mul(h.Shares))
	}
	return total
}

// RankPortfolios revalues every portfolio in the game, assigns
// competition ranks (ties share a rank, the next distinct value skips
// past them), persists the standings, and returns them best first.
func (l *Ledger) RankPortfolios(ctx context.Context, gameID string) ([]Standing, error) {
	portfolios, err := l.store.ListPortfoliosByGame(ctx, gameID)
	if err != nil {
		return nil, err
	}

	standings := make([]Standing, 0, len(portfolios))
	for _, p := range portfolios {
		total, err := l.TotalValue(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		standings = append(standings, Standing{
			PortfolioID: p.ID,
			Title:       p.Title,
			TotalValue:  total,
		})
	}

	sort.SliceStable(standings, func(i, j int) bool {
		return standings[i].TotalValue.GreaterThan(standings[j].TotalValue)
	})
	for i := range standings {
		if i > 0 && standings[i].TotalValue.Equal(standings[i-1].TotalValue) {
			standings[i].Rank = standings[i-1].Rank
		} else {
			standings[i].Rank = i + 1
		}
	}

	for _, s := range standings {
		if err := l.store.UpdatePortfolioStanding(ctx, s.PortfolioID, s.TotalValue, s.Rank); err != nil {
			return nil, err
		}
	}

	l.log.Info("leaderboard recomputed", "game", gameID, "portfolios", len(standings))
	return standings, nil
}
