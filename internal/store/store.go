// Package store defines the persistence interface for the paper-trading
// engine. Implementations include PostgreSQL (source of truth), Redis
// (read-through cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/papertrade/ledger-engine/internal/model"
)

// ErrNotFound is returned when an account or holding does not exist.
var ErrNotFound = errors.New("not found")

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Accounts ---

	// CreateAccount opens an account with an opening virtual balance.
	// Fails if the account already exists.
	CreateAccount(ctx context.Context, userID string, openingBalance decimal.Decimal) (*model.Account, error)

	// GetBalance returns a user's cash balance.
	GetBalance(ctx context.Context, userID string) (decimal.Decimal, error)

	// SetBalance overwrites a user's cash balance.
	SetBalance(ctx context.Context, userID string, balance decimal.Decimal) error

	// --- Holdings ---

	// GetHolding returns the holding for (user, asset), or ErrNotFound if
	// the user does not currently hold the asset.
	GetHolding(ctx context.Context, userID, assetID string) (*model.Holding, error)

	// ListHoldings returns all of a user's current holdings.
	ListHoldings(ctx context.Context, userID string) ([]model.Holding, error)

	// UpsertHolding creates or replaces the holding for (user, asset).
	UpsertHolding(ctx context.Context, h *model.Holding) error

	// DeleteHolding removes the holding for (user, asset).
	DeleteHolding(ctx context.Context, userID, assetID string) error

	// MarkPrice updates the current price on every holding of an asset.
	MarkPrice(ctx context.Context, assetID string, price decimal.Decimal) error

	// --- Immutable trade log ---

	// AppendTrade appends an immutable trade record.
	AppendTrade(ctx context.Context, t *model.Trade) error

	// ListTradesByUser returns all trades for a user in log order.
	ListTradesByUser(ctx context.Context, userID string) ([]model.Trade, error)

	// ListTradesByUserAsset returns all trades for one user and asset in log order.
	ListTradesByUserAsset(ctx context.Context, userID, assetID string) ([]model.Trade, error)

	// ListAllTrades returns the full trade log in log order.
	ListAllTrades(ctx context.Context) ([]model.Trade, error)

	// --- Atomic trade commit ---

	// ApplyTrade commits one executed trade: appends it to the trade log,
	// writes the new balance, and upserts (or deletes, when removeHolding
	// is set) the holding — all or nothing. holding is nil only when
	// removeHolding is set.
	ApplyTrade(ctx context.Context, t *model.Trade, newBalance decimal.Decimal, holding *model.Holding, removeHolding bool) error
}
