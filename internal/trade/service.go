// Package trade provides the HTTP handlers for creating games and
// portfolios, executing trades, and querying positions and standings.
//
// All monetary values use shopspring/decimal — never float64 for money.
package trade

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/tradesim/engine/internal/ledger"
	"github.com/tradesim/engine/internal/metrics"
	"github.com/tradesim/engine/internal/model"
	"github.com/tradesim/engine/internal/store"
)

// Service handles game and trading operations over the ledger engine.
type Service struct {
	store  store.Store
	ledger *ledger.Ledger
	wsHub  *WSHub // optional WebSocket hub for real-time broadcasts
}

// NewService creates a new trade service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, l *ledger.Ledger, hub *WSHub) *Service {
	return &Service{
		store:  st,
		ledger: l,
		wsHub:  hub,
	}
}

// --- Request/Response types ---

// CreateGameRequest is the JSON body for game creation.
type CreateGameRequest struct {
	Title           string          `json:"title"`
	StartingBalance decimal.Decimal `json:"starting_balance"`
	Rules           string          `json:"rules"`
}

// CreatePortfolioRequest is the JSON body for joining a game.
type CreatePortfolioRequest struct {
	OwnerID string `json:"owner_id"`
	Title   string `json:"title"`
}

// HoldingTradeRequest is the JSON body for share buys and sells.
// Exercise optionally names a held option contract to settle the trade
// at its strike price.
type HoldingTradeRequest struct {
	Ticker   string          `json:"ticker"`
	Shares   decimal.Decimal `json:"shares"`
	Exercise string          `json:"exercise,omitempty"`
}

// OptionTradeRequest is the JSON body for option contract buys and sells.
type OptionTradeRequest struct {
	Contract string          `json:"contract"`
	Quantity decimal.Decimal `json:"quantity"`
}

// PortfolioResponse is the full position snapshot for one portfolio.
type PortfolioResponse struct {
	model.Portfolio
	Holdings []model.Holding `json:"holdings"`
	Options  []model.Option  `json:"options"`
}

// --- HTTP Handlers ---

// CreateGame handles POST /api/v1/games
func (s *Service) CreateGame(w http.ResponseWriter, r *http.Request) {
	var req CreateGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Title == "" {
		writeError(w, "title is required", http.StatusBadRequest)
		return
	}

	game, err := s.ledger.CreateGame(r.Context(), req.Title, req.StartingBalance, req.Rules)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, game)
}

// ListGames handles GET /api/v1/games
func (s *Service) ListGames(w http.ResponseWriter, r *http.Request) {
	games, err := s.store.ListGames(r.Context())
	if err != nil {
		writeError(w, "failed to list games", http.StatusInternalServerError)
		return
	}
	if games == nil {
		games = []model.Game{}
	}
	writeJSON(w, http.StatusOK, games)
}

// GetGame handles GET /api/v1/games/{gameID}
func (s *Service) GetGame(w http.ResponseWriter, r *http.Request) {
	game, err := s.store.GetGame(r.Context(), chi.URLParam(r, "gameID"))
	if err != nil {
		writeError(w, "game not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, game)
}

// GetLeaderboard handles GET /api/v1/games/{gameID}/leaderboard
// Revalues every portfolio in the game and returns fresh standings.
func (s *Service) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")

	standings, err := s.ledger.RankPortfolios(r.Context(), gameID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	metrics.LeaderboardRecomputes.Inc()

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{Type: "leaderboard_updated", GameID: gameID})
	}
	writeJSON(w, http.StatusOK, standings)
}

// ConcludeGame handles POST /api/v1/games/{gameID}/conclude
// Computes final standings and records the winning portfolio's title.
func (s *Service) ConcludeGame(w http.ResponseWriter, r *http.Request) {
	game, err := s.ledger.ConcludeGame(r.Context(), chi.URLParam(r, "gameID"))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	metrics.LeaderboardRecomputes.Inc()
	writeJSON(w, http.StatusOK, game)
}

// CreatePortfolio handles POST /api/v1/games/{gameID}/portfolios
func (s *Service) CreatePortfolio(w http.ResponseWriter, r *http.Request) {
	var req CreatePortfolioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Title == "" {
		writeError(w, "title is required", http.StatusBadRequest)
		return
	}

	p, err := s.ledger.CreatePortfolio(r.Context(), chi.URLParam(r, "gameID"), req.OwnerID, req.Title)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// GetPortfolio handles GET /api/v1/portfolios/{portfolioID}
// Returns the portfolio with its holdings, option positions, and a
// freshly computed total value.
func (s *Service) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "portfolioID")
	ctx := r.Context()

	p, err := s.store.GetPortfolio(ctx, portfolioID)
	if err != nil {
		writeError(w, "portfolio not found", http.StatusNotFound)
		return
	}
	holdings, err := s.store.ListHoldingsByPortfolio(ctx, portfolioID)
	if err != nil {
		writeError(w, "failed to load holdings", http.StatusInternalServerError)
		return
	}
	options, err := s.store.ListOptionsByPortfolio(ctx, portfolioID)
	if err != nil {
		writeError(w, "failed to load options", http.StatusInternalServerError)
		return
	}
	if total, err := s.ledger.TotalValue(ctx, portfolioID); err == nil {
		p.TotalValue = total
	}
	if holdings == nil {
		holdings = []model.Holding{}
	}
	if options == nil {
		options = []model.Option{}
	}

	writeJSON(w, http.StatusOK, PortfolioResponse{Portfolio: *p, Holdings: holdings, Options: options})
}

// DeletePortfolio handles DELETE /api/v1/portfolios/{portfolioID}
// Removes the portfolio and its positions; its transactions survive
// with the portfolio reference cleared.
func (s *Service) DeletePortfolio(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeletePortfolio(r.Context(), chi.URLParam(r, "portfolioID")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, "portfolio not found", http.StatusNotFound)
			return
		}
		writeError(w, "failed to delete portfolio", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListTransactions handles GET /api/v1/portfolios/{portfolioID}/transactions
func (s *Service) ListTransactions(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "portfolioID")

	if _, err := s.store.GetPortfolio(r.Context(), portfolioID); err != nil {
		writeError(w, "portfolio not found", http.StatusNotFound)
		return
	}
	txns, err := s.store.ListTransactionsByPortfolio(r.Context(), portfolioID)
	if err != nil {
		writeError(w, "failed to list transactions", http.StatusInternalServerError)
		return
	}
	if txns == nil {
		txns = []model.Transaction{}
	}
	writeJSON(w, http.StatusOK, txns)
}

// BuyHolding handles POST /api/v1/portfolios/{portfolioID}/holdings/buy
func (s *Service) BuyHolding(w http.ResponseWriter, r *http.Request) {
	var req HoldingTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	s.executeTrade(w, r, func() (*model.Transaction, error) {
		return s.ledger.BuyHolding(r.Context(), chi.URLParam(r, "portfolioID"), req.Ticker, req.Shares, req.Exercise)
	})
}

// SellHolding handles POST /api/v1/portfolios/{portfolioID}/holdings/sell
func (s *Service) SellHolding(w http.ResponseWriter, r *http.Request) {
	var req HoldingTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	s.executeTrade(w, r, func() (*model.Transaction, error) {
		return s.ledger.SellHolding(r.Context(), chi.URLParam(r, "portfolioID"), req.Ticker, req.Shares, req.Exercise)
	})
}

// BuyOption handles POST /api/v1/portfolios/{portfolioID}/options/buy
func (s *Service) BuyOption(w http.ResponseWriter, r *http.Request) {
	var req OptionTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	s.executeTrade(w, r, func() (*model.Transaction, error) {
		return s.ledger.BuyOption(r.Context(), chi.URLParam(r, "portfolioID"), req.Contract, req.Quantity)
	})
}

// SellOption handles POST /api/v1/portfolios/{portfolioID}/options/sell
func (s *Service) SellOption(w http.ResponseWriter, r *http.Request) {
	var req OptionTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	s.executeTrade(w, r, func() (*model.Transaction, error) {
		return s.ledger.SellOption(r.Context(), chi.URLParam(r, "portfolioID"), req.Contract, req.Quantity)
	})
}

// executeTrade runs one ledger operation, records its metrics, and
// broadcasts the executed trade.
func (s *Service) executeTrade(w http.ResponseWriter, r *http.Request, op func() (*model.Transaction, error)) {
	txn, err := op()
	if err != nil {
		metrics.TradeRejections.WithLabelValues(ledger.Reason(err)).Inc()
		writeLedgerError(w, err)
		return
	}
	metrics.TradesTotal.WithLabelValues(txn.TradeType).Inc()

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:        "trade_executed",
			PortfolioID: txn.PortfolioID,
			Symbol:      txn.Symbol,
			TradeType:   txn.TradeType,
			Quantity:    txn.Quantity.String(),
			Price:       txn.Price.String(),
		})
	}
	writeJSON(w, http.StatusOK, txn)
}

// writeLedgerError maps ledger and store failures to HTTP statuses:
// malformed input is 400, missing resources 404, duplicates 409, and
// rejected-but-well-formed trades 422.
func writeLedgerError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ledger.ErrInvalidQuantity),
		errors.Is(err, ledger.ErrInvalidContract),
		errors.Is(err, ledger.ErrInvalidStartingBalance):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, ledger.ErrNotTraded),
		errors.Is(err, ledger.ErrHoldingNotFound),
		errors.Is(err, ledger.ErrContractNotHeld):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrDuplicate):
		status = http.StatusConflict
	case errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrInsufficientShares),
		errors.Is(err, ledger.ErrInsufficientContractQuantity),
		errors.Is(err, ledger.ErrTickerMismatch),
		errors.Is(err, ledger.ErrContractExpired),
		errors.Is(err, ledger.ErrWrongContractType):
		status = http.StatusUnprocessableEntity
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":  err.Error(),
		"reason": ledger.Reason(err),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
