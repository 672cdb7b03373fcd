package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/papertrade/ledger-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) CreateAccount(ctx context.Context, userID string, openingBalance decimal.Decimal) (*model.Account, error) {
	var acct model.Account
	var balance string

	err := s.pool.QueryRow(ctx,
		`INSERT INTO accounts (user_id, balance, created_at)
		 VALUES ($1, $2::NUMERIC, NOW())
		 RETURNING user_id, balance::TEXT, created_at`,
		userID, openingBalance.String()).
		Scan(&acct.UserID, &balance, &acct.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create account %s: %w", userID, err)
	}

	acct.Balance, _ = decimal.NewFromString(balance)
	return &acct, nil
}

func (s *PostgresStore) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	var balance string

	err := s.pool.QueryRow(ctx,
		`SELECT balance::TEXT FROM accounts WHERE user_id = $1`, userID).
		Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("account %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("get balance %s: %w", userID, err)
	}

	b, _ := decimal.NewFromString(balance)
	return b, nil
}

func (s *PostgresStore) SetBalance(ctx context.Context, userID string, balance decimal.Decimal) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE accounts SET balance = $2::NUMERIC WHERE user_id = $1`,
		userID, balance.String())
	if err != nil {
		return fmt.Errorf("set balance %s: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account %s: %w", userID, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) GetHolding(ctx context.Context, userID, assetID string) (*model.Holding, error) {
	var h model.Holding
	var amount, avgCost, curPrice string

	err := s.pool.QueryRow(ctx,
		`SELECT user_id, asset_id, amount::TEXT, average_cost::TEXT, current_price::TEXT
		 FROM holdings WHERE user_id = $1 AND asset_id = $2`, userID, assetID).
		Scan(&h.UserID, &h.AssetID, &amount, &avgCost, &curPrice)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("holding %s/%s: %w", userID, assetID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get holding %s/%s: %w", userID, assetID, err)
	}

	h.Amount, _ = decimal.NewFromString(amount)
	h.AverageCost, _ = decimal.NewFromString(avgCost)
	h.CurrentPrice, _ = decimal.NewFromString(curPrice)

	return &h, nil
}

func (s *PostgresStore) ListHoldings(ctx context.Context, userID string) ([]model.Holding, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, asset_id, amount::TEXT, average_cost::TEXT, current_price::TEXT
		 FROM holdings WHERE user_id = $1 ORDER BY asset_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holdings []model.Holding
	for rows.Next() {
		var h model.Holding
		var amount, avgCost, curPrice string
		if err := rows.Scan(&h.UserID, &h.AssetID, &amount, &avgCost, &curPrice); err != nil {
			return nil, err
		}
		h.Amount, _ = decimal.NewFromString(amount)
		h.AverageCost, _ = decimal.NewFromString(avgCost)
		h.CurrentPrice, _ = decimal.NewFromString(curPrice)
		holdings = append(holdings, h)
	}
	return holdings, rows.Err()
}

func (s *PostgresStore) UpsertHolding(ctx context.Context, h *model.Holding) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO holdings (user_id, asset_id, amount, average_cost, current_price)
		 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC)
		 ON CONFLICT (user_id, asset_id) DO UPDATE
		 SET amount = EXCLUDED.amount,
		     average_cost = EXCLUDED.average_cost,
		     current_price = EXCLUDED.current_price`,
		h.UserID, h.AssetID, h.Amount.String(), h.AverageCost.String(), h.CurrentPrice.String())
	return err
}

func (s *PostgresStore) DeleteHolding(ctx context.Context, userID, assetID string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM holdings WHERE user_id = $1 AND asset_id = $2`, userID, assetID)
	return err
}

func (s *PostgresStore) MarkPrice(ctx context.Context, assetID string, price decimal.Decimal) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE holdings SET current_price = $2::NUMERIC WHERE asset_id = $1`,
		assetID, price.String())
	return err
}

func (s *PostgresStore) AppendTrade(ctx context.Context, t *model.Trade) error {
	_, err := s.pool.Exec(ctx, insertTradeSQL, tradeArgs(t)...)
	return err
}

func (s *PostgresStore) ListTradesByUser(ctx context.Context, userID string) ([]model.Trade, error) {
	rows, err := s.pool.Query(ctx, selectTradeSQL+
		` WHERE user_id = $1 ORDER BY created_at, seq`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTrades(rows)
}

func (s *PostgresStore) ListTradesByUserAsset(ctx context.Context, userID, assetID string) ([]model.Trade, error) {
	rows, err := s.pool.Query(ctx, selectTradeSQL+
		` WHERE user_id = $1 AND asset_id = $2 ORDER BY created_at, seq`, userID, assetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTrades(rows)
}

func (s *PostgresStore) ListAllTrades(ctx context.Context) ([]model.Trade, error) {
	rows, err := s.pool.Query(ctx, selectTradeSQL+` ORDER BY created_at, seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTrades(rows)
}

// ApplyTrade commits the trade log append, balance write, and holding
// upsert/delete in one transaction. Nothing is visible until commit.
func (s *PostgresStore) ApplyTrade(ctx context.Context, t *model.Trade, newBalance decimal.Decimal, holding *model.Holding, removeHolding bool) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("apply trade: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, insertTradeSQL, tradeArgs(t)...); err != nil {
		return fmt.Errorf("apply trade: insert: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE accounts SET balance = $2::NUMERIC WHERE user_id = $1`,
		t.UserID, newBalance.String())
	if err != nil {
		return fmt.Errorf("apply trade: balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("apply trade: account %s: %w", t.UserID, ErrNotFound)
	}

	if removeHolding {
		if _, err := tx.Exec(ctx,
			`DELETE FROM holdings WHERE user_id = $1 AND asset_id = $2`,
			t.UserID, t.AssetID); err != nil {
			return fmt.Errorf("apply trade: delete holding: %w", err)
		}
	} else {
		if _, err := tx.Exec(ctx,
			`INSERT INTO holdings (user_id, asset_id, amount, average_cost, current_price)
			 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC)
			 ON CONFLICT (user_id, asset_id) DO UPDATE
			 SET amount = EXCLUDED.amount,
			     average_cost = EXCLUDED.average_cost,
			     current_price = EXCLUDED.current_price`,
			holding.UserID, holding.AssetID, holding.Amount.String(),
			holding.AverageCost.String(), holding.CurrentPrice.String()); err != nil {
			return fmt.Errorf("apply trade: upsert holding: %w", err)
		}
	}

	return tx.Commit(ctx)
}

const insertTradeSQL = `INSERT INTO trades (id, user_id, asset_id, side, amount, price, total, status, created_at)
	 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8, $9)`

// Trade listings order by created_at with the BIGSERIAL seq column as
// tiebreaker, giving the FIFO matcher a stable total order.
const selectTradeSQL = `SELECT id, user_id, asset_id, side,
	        amount::TEXT, price::TEXT, total::TEXT, status, created_at
	 FROM trades`

func tradeArgs(t *model.Trade) []interface{} {
	return []interface{}{
		t.ID, t.UserID, t.AssetID, string(t.Side),
		t.Amount.String(), t.Price.String(), t.Total.String(),
		string(t.Status), t.CreatedAt,
	}
}

// scanTrades reads pgx rows into Trade slices.
type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanTrades(rows pgxRows) ([]model.Trade, error) {
	var trades []model.Trade
	for rows.Next() {
		var t model.Trade
		var side, status string
		var amountS, priceS, totalS string

		if err := rows.Scan(&t.ID, &t.UserID, &t.AssetID, &side,
			&amountS, &priceS, &totalS, &status, &t.CreatedAt); err != nil {
			return nil, err
		}

		t.Side = model.Side(side)
		t.Status = model.TradeStatus(status)
		t.Amount, _ = decimal.NewFromString(amountS)
		t.Price, _ = decimal.NewFromString(priceS)
		t.Total, _ = decimal.NewFromString(totalS)

		trades = append(trades, t)
	}
	return trades, rows.Err()
}
