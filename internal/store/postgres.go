package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tradesim/engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of
// truth. All monetary values are stored as NUMERIC for exact decimal
// precision; ApplyTrade commits each trade's write set in one
// transaction.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) CreateGame(ctx context.Context, g *model.Game) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO games (id, title, starting_balance, rules, winner, created_at)
		 VALUES ($1, $2, $3::NUMERIC, $4, $5, $6)`,
		g.ID, g.Title, g.StartingBalance.String(), g.Rules, g.Winner, g.CreatedAt,
	)
	return mapPgError(err)
}

func (s *PostgresStore) GetGame(ctx context.Context, id string) (*model.Game, error) {
	var g model.Game
	var balance string

	err := s.pool.QueryRow(ctx,
		`SELECT id, title, starting_balance::TEXT, COALESCE(rules, ''), COALESCE(winner, ''), created_at
		 FROM games WHERE id = $1`, id).
		Scan(&g.ID, &g.Title, &balance, &g.Rules, &g.Winner, &g.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get game %s: %w", id, mapPgError(err))
	}

	g.StartingBalance, _ = decimal.NewFromString(balance)
	return &g, nil
}

func (s *PostgresStore) ListGames(ctx context.Context) ([]model.Game, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, title, starting_balance::TEXT, COALESCE(rules, ''), COALESCE(winner, ''), created_at
		 FROM games ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var games []model.Game
	for rows.Next() {
		var g model.Game
		var balance string
		if err := rows.Scan(&g.ID, &g.Title, &balance, &g.Rules, &g.Winner, &g.CreatedAt); err != nil {
			return nil, err
		}
		g.StartingBalance, _ = decimal.NewFromString(balance)
		games = append(games, g)
	}
	return games, rows.Err()
}

func (s *PostgresStore) SetGameWinner(ctx context.Context, gameID, winner string) error {
	cmd, err := s.pool.Exec(ctx,
		`UPDATE games SET winner = $2 WHERE id = $1`, gameID, winner)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: game %s", ErrNotFound, gameID)
	}
	return nil
}

func (s *PostgresStore) CreatePortfolio(ctx context.Context, p *model.Portfolio) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO portfolios (id, owner_id, game_id, title, cash_balance, total_value, rank, created_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7, $8)`,
		p.ID, p.OwnerID, p.GameID, p.Title,
		p.CashBalance.String(), p.TotalValue.String(), p.Rank, p.CreatedAt,
	)
	return mapPgError(err)
}

func (s *PostgresStore) GetPortfolio(ctx context.Context, id string) (*model.Portfolio, error) {
	var p model.Portfolio
	var cash, total string

	err := s.pool.QueryRow(ctx,
		`SELECT id, owner_id, game_id, title, cash_balance::TEXT, total_value::TEXT, rank, created_at
		 FROM portfolios WHERE id = $1`, id).
		Scan(&p.ID, &p.OwnerID, &p.GameID, &p.Title, &cash, &total, &p.Rank, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get portfolio %s: %w", id, mapPgError(err))
	}

	p.CashBalance, _ = decimal.NewFromString(cash)
	p.TotalValue, _ = decimal.NewFromString(total)
	return &p, nil
}

func (s *PostgresStore) ListPortfoliosByGame(ctx context.Context, gameID string) ([]model.Portfolio, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, owner_id, game_id, title, cash_balance::TEXT, total_value::TEXT, rank, created_at
		 FROM portfolios WHERE game_id = $1 ORDER BY created_at`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Portfolio
	for rows.Next() {
		var p model.Portfolio
		var cash, total string
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.GameID, &p.Title, &cash, &total, &p.Rank, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.CashBalance, _ = decimal.NewFromString(cash)
		p.TotalValue, _ = decimal.NewFromString(total)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdatePortfolioStanding(ctx context.Context, id string, totalValue decimal.Decimal, rank int) error {
	cmd, err := s.pool.Exec(ctx,
		`UPDATE portfolios SET total_value = $2::NUMERIC, rank = $3 WHERE id = $1`,
		id, totalValue.String(), rank)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: portfolio %s", ErrNotFound, id)
	}
	return nil
}

func (s *PostgresStore) DeletePortfolio(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// History outlives the portfolio: clear the reference, keep the rows.
	if _, err := tx.Exec(ctx,
		`UPDATE transactions SET portfolio_id = NULL WHERE portfolio_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM holdings WHERE portfolio_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM options WHERE portfolio_id = $1`, id); err != nil {
		return err
	}
	cmd, err := tx.Exec(ctx, `DELETE FROM portfolios WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: portfolio %s", ErrNotFound, id)
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) GetHolding(ctx context.Context, portfolioID, ticker string) (*model.Holding, error) {
	var h model.Holding
	var shares string

	err := s.pool.QueryRow(ctx,
		`SELECT id, portfolio_id, ticker, shares::TEXT, created_at
		 FROM holdings WHERE portfolio_id = $1 AND ticker = $2`, portfolioID, ticker).
		Scan(&h.ID, &h.PortfolioID, &h.Ticker, &shares, &h.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get holding %s/%s: %w", portfolioID, ticker, mapPgError(err))
	}

	h.Shares, _ = decimal.NewFromString(shares)
	return &h, nil
}

func (s *PostgresStore) ListHoldingsByPortfolio(ctx context.Context, portfolioID string) ([]model.Holding, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, portfolio_id, ticker, shares::TEXT, created_at
		 FROM holdings WHERE portfolio_id = $1 ORDER BY ticker`, portfolioID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Holding
	for rows.Next() {
		var h model.Holding
		var shares string
		if err := rows.Scan(&h.ID, &h.PortfolioID, &h.Ticker, &shares, &h.CreatedAt); err != nil {
			return nil, err
		}
		h.Shares, _ = decimal.NewFromString(shares)
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetOption(ctx context.Context, portfolioID, contract string) (*model.Option, error) {
	var o model.Option
	var quantity string

	err := s.pool.QueryRow(ctx,
		`SELECT id, portfolio_id, contract, quantity::TEXT, created_at
		 FROM options WHERE portfolio_id = $1 AND contract = $2`, portfolioID, contract).
		Scan(&o.ID, &o.PortfolioID, &o.Contract, &quantity, &o.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get option %s/%s: %w", portfolioID, contract, mapPgError(err))
	}

	o.Quantity, _ = decimal.NewFromString(quantity)
	return &o, nil
}

func (s *PostgresStore) ListOptionsByPortfolio(ctx context.Context, portfolioID string) ([]model.Option, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, portfolio_id, contract, quantity::TEXT, created_at
		 FROM options WHERE portfolio_id = $1 ORDER BY contract`, portfolioID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Option
	for rows.Next() {
		var o model.Option
		var quantity string
		if err := rows.Scan(&o.ID, &o.PortfolioID, &o.Contract, &quantity, &o.CreatedAt); err != nil {
			return nil, err
		}
		o.Quantity, _ = decimal.NewFromString(quantity)
		out = append(out, o)
	}
	return out, rows.Err()
}

// ApplyTrade commits the write set of one trade in a single database
// transaction.
func (s *PostgresStore) ApplyTrade(ctx context.Context, mut *model.TradeMutation) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	cmd, err := tx.Exec(ctx,
		`UPDATE portfolios SET cash_balance = $2::NUMERIC WHERE id = $1`,
		mut.PortfolioID, mut.CashBalance.String())
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: portfolio %s", ErrNotFound, mut.PortfolioID)
	}

	if h := mut.HoldingUpsert; h != nil {
		_, err := tx.Exec(ctx,
			`INSERT INTO holdings (id, portfolio_id, ticker, shares, created_at)
			 VALUES ($1, $2, $3, $4::NUMERIC, $5)
			 ON CONFLICT (portfolio_id, ticker)
			 DO UPDATE SET shares = EXCLUDED.shares`,
			h.ID, h.PortfolioID, h.Ticker, h.Shares.String(), h.CreatedAt)
		if err != nil {
			return err
		}
	}
	if mut.HoldingDelete != "" {
		if _, err := tx.Exec(ctx,
			`DELETE FROM holdings WHERE id = $1`, mut.HoldingDelete); err != nil {
			return err
		}
	}

	if o := mut.OptionUpsert; o != nil {
		_, err := tx.Exec(ctx,
			`INSERT INTO options (id, portfolio_id, contract, quantity, created_at)
			 VALUES ($1, $2, $3, $4::NUMERIC, $5)
			 ON CONFLICT (portfolio_id, contract)
			 DO UPDATE SET quantity = EXCLUDED.quantity`,
			o.ID, o.PortfolioID, o.Contract, o.Quantity.String(), o.CreatedAt)
		if err != nil {
			return err
		}
	}
	if mut.OptionDelete != "" {
		if _, err := tx.Exec(ctx,
			`DELETE FROM options WHERE id = $1`, mut.OptionDelete); err != nil {
			return err
		}
	}

	t := mut.Transaction
	if _, err := tx.Exec(ctx,
		`INSERT INTO transactions (id, portfolio_id, symbol, trade_type, quantity, price, created_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7)`,
		t.ID, t.PortfolioID, t.Symbol, t.TradeType,
		t.Quantity.String(), t.Price.String(), t.CreatedAt); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) ListTransactionsByPortfolio(ctx context.Context, portfolioID string) ([]model.Transaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, COALESCE(portfolio_id, ''), symbol, trade_type, quantity::TEXT, price::TEXT, created_at
		 FROM transactions WHERE portfolio_id = $1 ORDER BY created_at DESC`, portfolioID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Transaction
	for rows.Next() {
		var t model.Transaction
		var quantity, price string
		if err := rows.Scan(&t.ID, &t.PortfolioID, &t.Symbol, &t.TradeType, &quantity, &price, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Quantity, _ = decimal.NewFromString(quantity)
		t.Price, _ = decimal.NewFromString(price)
		out = append(out, t)
	}
	return out, rows.Err()
}

// mapPgError translates driver errors into the store's sentinels.
func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}
