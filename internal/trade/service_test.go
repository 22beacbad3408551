package trade_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/tradesim/engine/internal/ledger"
	"github.com/tradesim/engine/internal/model"
	"github.com/tradesim/engine/internal/quote"
	"github.com/tradesim/engine/internal/store"
	"github.com/tradesim/engine/internal/trade"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// newTestEnv creates a test Service with in-memory store, static
// quotes, and chi router.
func newTestEnv(t *testing.T) (*quote.StaticGateway, *store.MemoryStore, chi.Router) {
	t.Helper()
	ms := store.NewMemoryStore()
	quotes := quote.NewStaticGateway()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := trade.NewService(ms, ledger.New(ms, quotes, logger), nil)

	r := chi.NewRouter()
	r.Post("/api/v1/games", svc.CreateGame)
	r.Get("/api/v1/games", svc.ListGames)
	r.Get("/api/v1/games/{gameID}", svc.GetGame)
	r.Get("/api/v1/games/{gameID}/leaderboard", svc.GetLeaderboard)
	r.Post("/api/v1/games/{gameID}/conclude", svc.ConcludeGame)
	r.Post("/api/v1/games/{gameID}/portfolios", svc.CreatePortfolio)
	r.Get("/api/v1/portfolios/{portfolioID}", svc.GetPortfolio)
	r.Delete("/api/v1/portfolios/{portfolioID}", svc.DeletePortfolio)
	r.Get("/api/v1/portfolios/{portfolioID}/transactions", svc.ListTransactions)
	r.Post("/api/v1/portfolios/{portfolioID}/holdings/buy", svc.BuyHolding)
	r.Post("/api/v1/portfolios/{portfolioID}/holdings/sell", svc.SellHolding)
	r.Post("/api/v1/portfolios/{portfolioID}/options/buy", svc.BuyOption)
	r.Post("/api/v1/portfolios/{portfolioID}/options/sell", svc.SellOption)

	return quotes, ms, r
}

func do(t *testing.T, router chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// seedPortfolio creates a game and one portfolio through the API.
func seedPortfolio(t *testing.T, router chi.Router, balance string) (gameID, portfolioID string) {
	t.Helper()
	w := do(t, router, "POST", "/api/v1/games", trade.CreateGameRequest{
		Title:           "test game",
		StartingBalance: d(balance),
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create game: %d: %s", w.Code, w.Body.String())
	}
	var g model.Game
	json.Unmarshal(w.Body.Bytes(), &g)

	w = do(t, router, "POST", "/api/v1/games/"+g.ID+"/portfolios", trade.CreatePortfolioRequest{
		OwnerID: "user1",
		Title:   "alice",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create portfolio: %d: %s", w.Code, w.Body.String())
	}
	var p model.Portfolio
	json.Unmarshal(w.Body.Bytes(), &p)
	return g.ID, p.ID
}

func TestCreateGame(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := do(t, router, "POST", "/api/v1/games", trade.CreateGameRequest{
		Title:           "spring open",
		StartingBalance: d("10000"),
		Rules:           "options allowed",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var g model.Game
	json.Unmarshal(w.Body.Bytes(), &g)
	if g.ID == "" || g.Title != "spring open" || !g.StartingBalance.Equal(d("10000")) {
		t.Errorf("game = %+v", g)
	}
}

func TestCreateGame_DuplicateTitle(t *testing.T) {
	_, _, router := newTestEnv(t)

	req := trade.CreateGameRequest{Title: "dup", StartingBalance: d("100")}
	if w := do(t, router, "POST", "/api/v1/games", req); w.Code != http.StatusCreated {
		t.Fatalf("first create: %d", w.Code)
	}
	if w := do(t, router, "POST", "/api/v1/games", req); w.Code != http.StatusConflict {
		t.Errorf("duplicate create: %d, want 409", w.Code)
	}
}

func TestCreateGame_InvalidBalance(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := do(t, router, "POST", "/api/v1/games", trade.CreateGameRequest{
		Title:           "broke",
		StartingBalance: d("-5"),
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCreatePortfolio_UnknownGame(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := do(t, router, "POST", "/api/v1/games/nope/portfolios", trade.CreatePortfolioRequest{
		OwnerID: "u", Title: "p",
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestBuyHoldingEndpoint(t *testing.T) {
	quotes, _, router := newTestEnv(t)
	_, pid := seedPortfolio(t, router, "10000")
	quotes.SetQuote("AAPL", d("200"), d("198"))

	w := do(t, router, "POST", "/api/v1/portfolios/"+pid+"/holdings/buy", trade.HoldingTradeRequest{
		Ticker: "AAPL",
		Shares: d("3"),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var txn model.Transaction
	json.Unmarshal(w.Body.Bytes(), &txn)
	if txn.ID == "" || txn.TradeType != "BUY" || !txn.Price.Equal(d("200")) {
		t.Errorf("transaction = %+v", txn)
	}

	// Portfolio view reflects the purchase.
	w = do(t, router, "GET", "/api/v1/portfolios/"+pid, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get portfolio: %d", w.Code)
	}
	var resp trade.PortfolioResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp.CashBalance.Equal(d("9400")) {
		t.Errorf("cash = %s, want 9400", resp.CashBalance)
	}
	if len(resp.Holdings) != 1 || !resp.Holdings[0].Shares.Equal(d("3")) {
		t.Errorf("holdings = %+v", resp.Holdings)
	}
	// cash 9400 + 3 shares at the 198 bid
	if !resp.TotalValue.Equal(d("9994")) {
		t.Errorf("total value = %s, want 9994", resp.TotalValue)
	}
}

func TestTradeRejectionStatuses(t *testing.T) {
	quotes, _, router := newTestEnv(t)
	_, pid := seedPortfolio(t, router, "1000")
	quotes.SetQuote("AAPL", d("200"), d("198"))

	cases := []struct {
		name   string
		path   string
		body   any
		status int
		reason string
	}{
		{
			name:   "unquoted symbol",
			path:   "/holdings/buy",
			body:   trade.HoldingTradeRequest{Ticker: "NOPE", Shares: d("1")},
			status: http.StatusNotFound,
			reason: "not_traded",
		},
		{
			name:   "insufficient funds",
			path:   "/holdings/buy",
			body:   trade.HoldingTradeRequest{Ticker: "AAPL", Shares: d("50")},
			status: http.StatusUnprocessableEntity,
			reason: "insufficient_funds",
		},
		{
			name:   "zero shares",
			path:   "/holdings/buy",
			body:   trade.HoldingTradeRequest{Ticker: "AAPL", Shares: d("0")},
			status: http.StatusBadRequest,
			reason: "invalid_quantity",
		},
		{
			name:   "sell unheld",
			path:   "/holdings/sell",
			body:   trade.HoldingTradeRequest{Ticker: "AAPL", Shares: d("1")},
			status: http.StatusNotFound,
			reason: "holding_not_found",
		},
		{
			name:   "malformed contract",
			path:   "/options/buy",
			body:   trade.OptionTradeRequest{Contract: "garbage", Quantity: d("1")},
			status: http.StatusBadRequest,
			reason: "invalid_contract",
		},
		{
			name:   "sell unheld contract",
			path:   "/options/sell",
			body:   trade.OptionTradeRequest{Contract: "AAPL991223C00148000", Quantity: d("1")},
			status: http.StatusNotFound,
			reason: "contract_not_held",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, router, "POST", "/api/v1/portfolios/"+pid+tc.path, tc.body)
			if w.Code != tc.status {
				t.Fatalf("status = %d, want %d: %s", w.Code, tc.status, w.Body.String())
			}
			var body map[string]string
			json.Unmarshal(w.Body.Bytes(), &body)
			if body["reason"] != tc.reason {
				t.Errorf("reason = %q, want %q", body["reason"], tc.reason)
			}
		})
	}
}

func TestOptionRoundTrip(t *testing.T) {
	quotes, _, router := newTestEnv(t)
	_, pid := seedPortfolio(t, router, "10000")
	quotes.SetQuote("AAPL991223C00148000", d("450"), d("430"))

	w := do(t, router, "POST", "/api/v1/portfolios/"+pid+"/options/buy", trade.OptionTradeRequest{
		Contract: "AAPL991223C00148000",
		Quantity: d("2"),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("buy: %d: %s", w.Code, w.Body.String())
	}
	var txn model.Transaction
	json.Unmarshal(w.Body.Bytes(), &txn)
	if txn.TradeType != "BUY CALL" {
		t.Errorf("trade type = %q, want BUY CALL", txn.TradeType)
	}

	w = do(t, router, "POST", "/api/v1/portfolios/"+pid+"/options/sell", trade.OptionTradeRequest{
		Contract: "AAPL991223C00148000",
		Quantity: d("2"),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("sell: %d: %s", w.Code, w.Body.String())
	}

	w = do(t, router, "GET", "/api/v1/portfolios/"+pid, nil)
	var resp trade.PortfolioResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Options) != 0 {
		t.Errorf("options = %+v, want none after full sale", resp.Options)
	}
	if !resp.CashBalance.Equal(d("9960")) {
		t.Errorf("cash = %s, want 9960", resp.CashBalance)
	}
}

func TestExerciseEndpoint(t *testing.T) {
	quotes, _, router := newTestEnv(t)
	_, pid := seedPortfolio(t, router, "10000")
	quotes.SetQuote("AAPL", d("200"), d("198"))
	quotes.SetQuote("AAPL991223C00148000", d("450"), d("430"))

	w := do(t, router, "POST", "/api/v1/portfolios/"+pid+"/options/buy", trade.OptionTradeRequest{
		Contract: "AAPL991223C00148000",
		Quantity: d("1"),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("buy option: %d", w.Code)
	}

	w = do(t, router, "POST", "/api/v1/portfolios/"+pid+"/holdings/buy", trade.HoldingTradeRequest{
		Ticker:   "AAPL",
		Shares:   d("3"),
		Exercise: "AAPL991223C00148000",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("exercise: %d: %s", w.Code, w.Body.String())
	}
	var txn model.Transaction
	json.Unmarshal(w.Body.Bytes(), &txn)
	if !txn.Price.Equal(d("148")) {
		t.Errorf("price = %s, want strike 148", txn.Price)
	}

	// Expired contract is rejected with no state change.
	w = do(t, router, "POST", "/api/v1/portfolios/"+pid+"/holdings/buy", trade.HoldingTradeRequest{
		Ticker:   "AAPL",
		Shares:   d("1"),
		Exercise: "AAPL211223C00148000",
	})
	if w.Code != http.StatusNotFound { // never held the 2021 contract
		t.Errorf("expired unheld: %d, want 404", w.Code)
	}
}

func TestLeaderboardEndpoint(t *testing.T) {
	quotes, _, router := newTestEnv(t)
	gid, pid := seedPortfolio(t, router, "5000")
	quotes.SetQuote("AAPL", d("1000"), d("1000"))

	w := do(t, router, "POST", "/api/v1/games/"+gid+"/portfolios", trade.CreatePortfolioRequest{
		OwnerID: "user2", Title: "bob",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create bob: %d", w.Code)
	}

	// alice buys 2 AAPL; flat bid keeps her total at 5000, tied with bob.
	w = do(t, router, "POST", "/api/v1/portfolios/"+pid+"/holdings/buy", trade.HoldingTradeRequest{
		Ticker: "AAPL", Shares: d("2"),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("buy: %d", w.Code)
	}

	w = do(t, router, "GET", "/api/v1/games/"+gid+"/leaderboard", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("leaderboard: %d: %s", w.Code, w.Body.String())
	}
	var standings []ledger.Standing
	json.Unmarshal(w.Body.Bytes(), &standings)
	if len(standings) != 2 {
		t.Fatalf("standings = %d, want 2", len(standings))
	}
	for i := range standings {
		if standings[i].Rank != 1 {
			t.Errorf("standings[%d].Rank = %d, want 1 (tie)", i, standings[i].Rank)
		}
	}
}

func TestConcludeGameEndpoint(t *testing.T) {
	quotes, _, router := newTestEnv(t)
	gid, pid := seedPortfolio(t, router, "5000")
	quotes.SetQuote("AAPL", d("100"), d("150"))

	if w := do(t, router, "POST", "/api/v1/portfolios/"+pid+"/holdings/buy", trade.HoldingTradeRequest{
		Ticker: "AAPL", Shares: d("10"),
	}); w.Code != http.StatusOK {
		t.Fatalf("buy: %d", w.Code)
	}

	w := do(t, router, "POST", "/api/v1/games/"+gid+"/conclude", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("conclude: %d: %s", w.Code, w.Body.String())
	}
	var g model.Game
	json.Unmarshal(w.Body.Bytes(), &g)
	if g.Winner != "alice" {
		t.Errorf("winner = %q, want alice", g.Winner)
	}
}

func TestDeletePortfolioKeepsTransactions(t *testing.T) {
	quotes, _, router := newTestEnv(t)
	_, pid := seedPortfolio(t, router, "10000")
	quotes.SetQuote("AAPL", d("200"), d("198"))

	if w := do(t, router, "POST", "/api/v1/portfolios/"+pid+"/holdings/buy", trade.HoldingTradeRequest{
		Ticker: "AAPL", Shares: d("1"),
	}); w.Code != http.StatusOK {
		t.Fatalf("buy: %d", w.Code)
	}

	if w := do(t, router, "DELETE", "/api/v1/portfolios/"+pid, nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", w.Code)
	}
	if w := do(t, router, "GET", "/api/v1/portfolios/"+pid, nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete: %d, want 404", w.Code)
	}

	// The ledger row survives with its portfolio reference cleared; it
	// is simply no longer reachable through the portfolio route.
	if w := do(t, router, "GET", "/api/v1/portfolios/"+pid+"/transactions", nil); w.Code != http.StatusNotFound {
		t.Errorf("transactions after delete: %d, want 404", w.Code)
	}
}

func TestListTransactionsEndpoint(t *testing.T) {
	quotes, _, router := newTestEnv(t)
	_, pid := seedPortfolio(t, router, "10000")
	quotes.SetQuote("AAPL", d("200"), d("198"))

	for _, shares := range []string{"1", "2"} {
		if w := do(t, router, "POST", "/api/v1/portfolios/"+pid+"/holdings/buy", trade.HoldingTradeRequest{
			Ticker: "AAPL", Shares: d(shares),
		}); w.Code != http.StatusOK {
			t.Fatalf("buy %s: %d", shares, w.Code)
		}
	}

	w := do(t, router, "GET", "/api/v1/portfolios/"+pid+"/transactions", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: %d", w.Code)
	}
	var txns []model.Transaction
	json.Unmarshal(w.Body.Bytes(), &txns)
	if len(txns) != 2 {
		t.Fatalf("transactions = %d, want 2", len(txns))
	}
	// Newest first.
	if !txns[0].Quantity.Equal(d("2")) {
		t.Errorf("first transaction quantity = %s, want 2", txns[0].Quantity)
	}
}
