package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/tradesim/engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu           sync.RWMutex
	games        map[string]*model.Game
	portfolios   map[string]*model.Portfolio
	holdings     map[string]*model.Holding
	options      map[string]*model.Option
	transactions []model.Transaction
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		games:      make(map[string]*model.Game),
		portfolios: make(map[string]*model.Portfolio),
		holdings:   make(map[string]*model.Holding),
		options:    make(map[string]*model.Option),
	}
}

func (s *MemoryStore) CreateGame(_ context.Context, g *model.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.games {
		if existing.Title == g.Title {
			return fmt.Errorf("%w: game title %q", ErrDuplicate, g.Title)
		}
	}

	// Store a copy to avoid external mutation.
	cp := *g
	s.games[g.ID] = &cp
	return nil
}

func (s *MemoryStore) GetGame(_ context.Context, id string) (*model.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.games[id]
	if !ok {
		return nil, fmt.Errorf("%w: game %s", ErrNotFound, id)
	}
	cp := *g
	return &cp, nil
}

func (s *MemoryStore) ListGames(_ context.Context) ([]model.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	games := make([]model.Game, 0, len(s.games))
	for _, g := range s.games {
		games = append(games, *g)
	}
	sort.Slice(games, func(i, j int) bool {
		return games[i].CreatedAt.After(games[j].CreatedAt)
	})
	return games, nil
}

func (s *MemoryStore) SetGameWinner(_ context.Context, gameID, winner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.games[gameID]
	if !ok {
		return fmt.Errorf("%w: game %s", ErrNotFound, gameID)
	}
	g.Winner = winner
	return nil
}

func (s *MemoryStore) CreatePortfolio(_ context.Context, p *model.Portfolio) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.games[p.GameID]; !ok {
		return fmt.Errorf("%w: game %s", ErrNotFound, p.GameID)
	}
	for _, existing := range s.portfolios {
		if existing.GameID == p.GameID && existing.Title == p.Title {
			return fmt.Errorf("%w: portfolio title %q in game %s", ErrDuplicate, p.Title, p.GameID)
		}
	}

	cp := *p
	s.portfolios[p.ID] = &cp
	return nil
}

func (s *MemoryStore) GetPortfolio(_ context.Context, id string) (*model.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.portfolios[id]
	if !ok {
		return nil, fmt.Errorf("%w: portfolio %s", ErrNotFound, id)
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) ListPortfoliosByGame(_ context.Context, gameID string) ([]model.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Portfolio
	for _, p := range s.portfolios {
		if p.GameID == gameID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) UpdatePortfolioStanding(_ context.Context, id string, totalValue decimal.Decimal, rank int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.portfolios[id]
	if !ok {
		return fmt.Errorf("%w: portfolio %s", ErrNotFound, id)
	}
	p.TotalValue = totalValue
	p.Rank = rank
	return nil
}

func (s *MemoryStore) DeletePortfolio(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.portfolios[id]; !ok {
		return fmt.Errorf("%w: portfolio %s", ErrNotFound, id)
	}
	delete(s.portfolios, id)
	for hid, h := range s.holdings {
		if h.PortfolioID == id {
			delete(s.holdings, hid)
		}
	}
	for oid, o := range s.options {
		if o.PortfolioID == id {
			delete(s.options, oid)
		}
	}
	// Transactions survive; only the reference is cleared.
	for i := range s.transactions {
		if s.transactions[i].PortfolioID == id {
			s.transactions[i].PortfolioID = ""
		}
	}
	return nil
}

func (s *MemoryStore) GetHolding(_ context.Context, portfolioID, ticker string) (*model.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, h := range s.holdings {
		if h.PortfolioID == portfolioID && h.Ticker == ticker {
			cp := *h
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: holding %s in portfolio %s", ErrNotFound, ticker, portfolioID)
}

func (s *MemoryStore) ListHoldingsByPortfolio(_ context.Context, portfolioID string) ([]model.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Holding
	for _, h := range s.holdings {
		if h.PortfolioID == portfolioID {
			out = append(out, *h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out, nil
}

func (s *MemoryStore) GetOption(_ context.Context, portfolioID, contract string) (*model.Option, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, o := range s.options {
		if o.PortfolioID == portfolioID && o.Contract == contract {
			cp := *o
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: option %s in portfolio %s", ErrNotFound, contract, portfolioID)
}

func (s *MemoryStore) ListOptionsByPortfolio(_ context.Context, portfolioID string) ([]model.Option, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Option
	for _, o := range s.options {
		if o.PortfolioID == portfolioID {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Contract < out[j].Contract })
	return out, nil
}

// ApplyTrade commits the write set under one lock. Everything below is
// map assignment, so there is no partial-failure path once the
// portfolio check passes.
func (s *MemoryStore) ApplyTrade(_ context.Context, mut *model.TradeMutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.portfolios[mut.PortfolioID]
	if !ok {
		return fmt.Errorf("%w: portfolio %s", ErrNotFound, mut.PortfolioID)
	}

	p.CashBalance = mut.CashBalance

	if mut.HoldingUpsert != nil {
		cp := *mut.HoldingUpsert
		s.holdings[cp.ID] = &cp
	}
	if mut.HoldingDelete != "" {
		delete(s.holdings, mut.HoldingDelete)
	}
	if mut.OptionUpsert != nil {
		cp := *mut.OptionUpsert
		s.options[cp.ID] = &cp
	}
	if mut.OptionDelete != "" {
		delete(s.options, mut.OptionDelete)
	}

	s.transactions = append(s.transactions, mut.Transaction)
	return nil
}

func (s *MemoryStore) ListTransactionsByPortfolio(_ context.Context, portfolioID string) ([]model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Transaction
	for i := len(s.transactions) - 1; i >= 0; i-- {
		if s.transactions[i].PortfolioID == portfolioID {
			out = append(out, s.transactions[i])
		}
	}
	return out, nil
}
