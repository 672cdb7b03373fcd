// Package model defines the core domain types shared across the paper-trading
// engine. All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a trade.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Valid reports whether s is one of the two enumerated sides.
func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

// TradeStatus is the lifecycle state of a trade record.
type TradeStatus string

const (
	StatusCompleted TradeStatus = "completed"
	StatusPending   TradeStatus = "pending"
	StatusFailed    TradeStatus = "failed"
)

// Trade is an immutable record of an executed simulated trade.
// Once created, these are never modified or deleted.
type Trade struct {
	ID        string          `json:"id" db:"id"`
	UserID    string          `json:"user_id" db:"user_id"`
	AssetID   string          `json:"asset_id" db:"asset_id"`
	Side      Side            `json:"side" db:"side"`
	Amount    decimal.Decimal `json:"amount" db:"amount"` // units traded, always positive
	Price     decimal.Decimal `json:"price" db:"price"`   // reference price at execution
	Total     decimal.Decimal `json:"total" db:"total"`   // amount × price
	Status    TradeStatus     `json:"status" db:"status"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// Holding is a user's current position in one asset. A holding exists only
// while Amount > 0: selling a position down to exactly zero deletes the row,
// so "no holding" and "holding of zero" are the same state.
type Holding struct {
	UserID       string          `json:"user_id" db:"user_id"`
	AssetID      string          `json:"asset_id" db:"asset_id"`
	Amount       decimal.Decimal `json:"amount" db:"amount"`
	AverageCost  decimal.Decimal `json:"average_cost" db:"average_cost"`   // weighted average price paid
	CurrentPrice decimal.Decimal `json:"current_price" db:"current_price"` // last marked price, refreshed externally
}

// UnrealizedPnL is the paper gain/loss against the average cost basis at the
// last marked price. Display-only; not part of the ledger's invariants.
func (h Holding) UnrealizedPnL() decimal.Decimal {
	return h.CurrentPrice.Sub(h.AverageCost).Mul(h.Amount)
}

// Account holds a user's virtual cash balance. Balance never goes negative
// after a committed trade.
type Account struct {
	UserID    string          `json:"user_id" db:"user_id"`
	Balance   decimal.Decimal `json:"balance" db:"balance"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// Portfolio aggregates a user's balance and holdings with unrealized P&L.
type Portfolio struct {
	UserID        string          `json:"user_id"`
	Balance       decimal.Decimal `json:"balance"`
	Holdings      []Holding       `json:"holdings"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	Equity        decimal.Decimal `json:"equity"` // balance + Σ amount×currentPrice
}
