package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradesim/engine/internal/model"
	"github.com/tradesim/engine/internal/store"
)

func seed(t *testing.T, s *store.MemoryStore) (gameID, portfolioID string) {
	t.Helper()
	ctx := context.Background()
	g := &model.Game{ID: "g1", Title: "test", StartingBalance: decimal.NewFromInt(1000), CreatedAt: time.Now()}
	if err := s.CreateGame(ctx, g); err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	p := &model.Portfolio{ID: "p1", GameID: "g1", Title: "alice", CashBalance: g.StartingBalance, CreatedAt: time.Now()}
	if err := s.CreatePortfolio(ctx, p); err != nil {
		t.Fatalf("CreatePortfolio: %v", err)
	}
	return g.ID, p.ID
}

func TestApplyTradeAtomicWriteSet(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	_, pid := seed(t, s)

	mut := &model.TradeMutation{
		PortfolioID: pid,
		CashBalance: decimal.NewFromInt(400),
		HoldingUpsert: &model.Holding{
			ID: "h1", PortfolioID: pid, Ticker: "AAPL", Shares: decimal.NewFromInt(3), CreatedAt: time.Now(),
		},
		Transaction: model.Transaction{
			ID: "t1", PortfolioID: pid, Symbol: "AAPL", TradeType: model.TradeTypeBuy,
			Quantity: decimal.NewFromInt(3), Price: decimal.NewFromInt(200), CreatedAt: time.Now(),
		},
	}
	if err := s.ApplyTrade(ctx, mut); err != nil {
		t.Fatalf("ApplyTrade: %v", err)
	}

	p, _ := s.GetPortfolio(ctx, pid)
	if !p.CashBalance.Equal(decimal.NewFromInt(400)) {
		t.Errorf("cash = %s, want 400", p.CashBalance)
	}
	if _, err := s.GetHolding(ctx, pid, "AAPL"); err != nil {
		t.Errorf("GetHolding: %v", err)
	}
	txns, _ := s.ListTransactionsByPortfolio(ctx, pid)
	if len(txns) != 1 {
		t.Errorf("transactions = %d, want 1", len(txns))
	}
}

func TestApplyTradeUnknownPortfolio(t *testing.T) {
	s := store.NewMemoryStore()
	err := s.ApplyTrade(context.Background(), &model.TradeMutation{PortfolioID: "nope"})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDeletePortfolioCascades(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	_, pid := seed(t, s)

	mut := &model.TradeMutation{
		PortfolioID: pid,
		CashBalance: decimal.NewFromInt(400),
		HoldingUpsert: &model.Holding{
			ID: "h1", PortfolioID: pid, Ticker: "AAPL", Shares: decimal.NewFromInt(3), CreatedAt: time.Now(),
		},
		OptionUpsert: &model.Option{
			ID: "o1", PortfolioID: pid, Contract: "AAPL991223C00148000", Quantity: decimal.NewFromInt(1), CreatedAt: time.Now(),
		},
		Transaction: model.Transaction{ID: "t1", PortfolioID: pid, Symbol: "AAPL", CreatedAt: time.Now()},
	}
	if err := s.ApplyTrade(ctx, mut); err != nil {
		t.Fatalf("ApplyTrade: %v", err)
	}

	if err := s.DeletePortfolio(ctx, pid); err != nil {
		t.Fatalf("DeletePortfolio: %v", err)
	}

	if _, err := s.GetPortfolio(ctx, pid); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("portfolio err = %v, want ErrNotFound", err)
	}
	if _, err := s.GetHolding(ctx, pid, "AAPL"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("holding err = %v, want ErrNotFound", err)
	}
	if _, err := s.GetOption(ctx, pid, "AAPL991223C00148000"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("option err = %v, want ErrNotFound", err)
	}
	// The transaction row itself survives with the reference cleared,
	// so it no longer lists under the deleted portfolio.
	txns, _ := s.ListTransactionsByPortfolio(ctx, pid)
	if len(txns) != 0 {
		t.Errorf("transactions = %d, want 0 under deleted portfolio", len(txns))
	}

	if err := s.DeletePortfolio(ctx, pid); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestDuplicateTitles(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	gid, _ := seed(t, s)

	err := s.CreateGame(ctx, &model.Game{ID: "g2", Title: "test", StartingBalance: decimal.NewFromInt(1)})
	if !errors.Is(err, store.ErrDuplicate) {
		t.Errorf("game err = %v, want ErrDuplicate", err)
	}
	err = s.CreatePortfolio(ctx, &model.Portfolio{ID: "p2", GameID: gid, Title: "alice"})
	if !errors.Is(err, store.ErrDuplicate) {
		t.Errorf("portfolio err = %v, want ErrDuplicate", err)
	}
	// Same title in a different game is fine.
	if err := s.CreateGame(ctx, &model.Game{ID: "g3", Title: "other", StartingBalance: decimal.NewFromInt(1)}); err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	if err := s.CreatePortfolio(ctx, &model.Portfolio{ID: "p3", GameID: "g3", Title: "alice"}); err != nil {
		t.Errorf("same title other game: %v", err)
	}
}
