// Package ledger provides the transactional core of the paper-trading engine:
// validating and atomically applying simulated trades against a user's
// virtual balance and holdings, plus the HTTP handlers that expose it.
//
// All monetary values use shopspring/decimal — never float64 for money.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/papertrade/ledger-engine/internal/metrics"
	"github.com/papertrade/ledger-engine/internal/model"
	"github.com/papertrade/ledger-engine/internal/store"
)

// Validation failures. These are terminal: the ledger never downgrades or
// retries them, and no state is touched when one is returned.
var (
	// ErrInvalidAmount rejects non-positive trade amounts or prices.
	ErrInvalidAmount = errors.New("amount and price must be positive")

	// ErrInvalidSide rejects sides other than buy/sell.
	ErrInvalidSide = errors.New("side must be buy or sell")

	// ErrInsufficientFunds rejects a buy whose total exceeds the balance.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInsufficientHoldings rejects a sell exceeding the held amount.
	ErrInsufficientHoldings = errors.New("insufficient holdings")
)

// Service validates and executes trades. Execution is serialized per user:
// the balance/holding check-then-write sequence is a read-modify-write race,
// so each user gets a mutex held for the full validate-and-commit span.
type Service struct {
	store          store.Store
	openingBalance decimal.Decimal
	minTrades      int // leaderboard minimum-activity threshold

	mu      sync.Mutex
	userMus map[string]*sync.Mutex

	wsHub *WSHub // optional WebSocket hub for real-time broadcasts
}

// NewService creates a new ledger service. openingBalance is the virtual
// cash granted to new accounts; minTrades is the leaderboard activity
// threshold. Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, openingBalance decimal.Decimal, minTrades int, hub *WSHub) *Service {
	return &Service{
		store:          st,
		openingBalance: openingBalance,
		minTrades:      minTrades,
		userMus:        make(map[string]*sync.Mutex),
		wsHub:          hub,
	}
}

// userLock returns the mutex serializing trade execution for one user.
func (s *Service) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	mu, ok := s.userMus[userID]
	if !ok {
		mu = &sync.Mutex{}
		s.userMus[userID] = mu
	}
	return mu
}

// ExecuteTrade validates and atomically applies a single trade at the
// caller-supplied reference price. On success the trade is appended to the
// log, the balance adjusted, and the holding updated (weighted-average cost
// on buys; deleted when a sell empties it). On any failure nothing is
// committed.
func (s *Service) ExecuteTrade(ctx context.Context, userID, assetID string, side model.Side, amount, price decimal.Decimal) (*model.Trade, error) {
	if !side.Valid() {
		metrics.TradeRejections.WithLabelValues("invalid_side").Inc()
		return nil, ErrInvalidSide
	}
	if !amount.IsPositive() || !price.IsPositive() {
		metrics.TradeRejections.WithLabelValues("invalid_amount").Inc()
		return nil, ErrInvalidAmount
	}

	start := time.Now()

	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	total := amount.Mul(price)

	var (
		newBalance    decimal.Decimal
		holding       *model.Holding
		removeHolding bool
	)

	switch side {
	case model.Buy:
		balance, err := s.store.GetBalance(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("execute trade: %w", err)
		}
		if total.GreaterThan(balance) {
			metrics.TradeRejections.WithLabelValues("insufficient_funds").Inc()
			return nil, ErrInsufficientFunds
		}
		newBalance = balance.Sub(total)

		h, err := s.store.GetHolding(ctx, userID, assetID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			holding = &model.Holding{
				UserID:       userID,
				AssetID:      assetID,
				Amount:       amount,
				AverageCost:  price,
				CurrentPrice: price,
			}
		case err != nil:
			return nil, fmt.Errorf("execute trade: %w", err)
		default:
			newAmount := h.Amount.Add(amount)
			// Weighted-average cost basis: the FIFO matcher works from the
			// raw trade log and never reads this.
			newAvg := h.Amount.Mul(h.AverageCost).Add(total).Div(newAmount)
			holding = &model.Holding{
				UserID:       userID,
				AssetID:      assetID,
				Amount:       newAmount,
				AverageCost:  newAvg,
				CurrentPrice: price,
			}
		}

	case model.Sell:
		h, err := s.store.GetHolding(ctx, userID, assetID)
		if errors.Is(err, store.ErrNotFound) {
			metrics.TradeRejections.WithLabelValues("insufficient_holdings").Inc()
			return nil, ErrInsufficientHoldings
		}
		if err != nil {
			return nil, fmt.Errorf("execute trade: %w", err)
		}
		if amount.GreaterThan(h.Amount) {
			metrics.TradeRejections.WithLabelValues("insufficient_holdings").Inc()
			return nil, ErrInsufficientHoldings
		}

		balance, err := s.store.GetBalance(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("execute trade: %w", err)
		}
		newBalance = balance.Add(total)

		newAmount := h.Amount.Sub(amount)
		if newAmount.IsZero() {
			// Fully exited: delete the holding rather than keep a zero row.
			removeHolding = true
		} else {
			// Selling does not change the cost basis of the remainder.
			holding = &model.Holding{
				UserID:       userID,
				AssetID:      assetID,
				Amount:       newAmount,
				AverageCost:  h.AverageCost,
				CurrentPrice: price,
			}
		}
	}

	trade := &model.Trade{
		ID:        uuid.New().String(),
		UserID:    userID,
		AssetID:   assetID,
		Side:      side,
		Amount:    amount,
		Price:     price,
		Total:     total,
		Status:    model.StatusCompleted,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.store.ApplyTrade(ctx, trade, newBalance, holding, removeHolding); err != nil {
		return nil, fmt.Errorf("execute trade: commit: %w", err)
	}

	metrics.TradesTotal.WithLabelValues(string(side)).Inc()
	metrics.TradeLatency.WithLabelValues(string(side)).Observe(time.Since(start).Seconds())

	slog.Info("trade executed",
		"trade_id", trade.ID,
		"user", userID,
		"asset", assetID,
		"side", side,
		"amount", amount.String(),
		"price", price.String(),
		"total", total.String(),
		"balance", newBalance.String(),
	)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:    "trade_executed",
			UserID:  userID,
			AssetID: assetID,
			Side:    string(side),
			Amount:  amount.String(),
			Price:   price.String(),
		})
	}

	return trade, nil
}

// OpenAccount creates a paper account. balance zero means "use the service
// default opening balance"; a negative balance is rejected.
func (s *Service) OpenAccount(ctx context.Context, userID string, balance decimal.Decimal) (*model.Account, error) {
	if balance.IsNegative() {
		return nil, ErrInvalidAmount
	}
	if balance.IsZero() {
		balance = s.openingBalance
	}

	acct, err := s.store.CreateAccount(ctx, userID, balance)
	if err != nil {
		return nil, fmt.Errorf("open account: %w", err)
	}

	metrics.AccountsOpened.Inc()
	slog.Info("account opened", "user", userID, "balance", acct.Balance.String())
	return acct, nil
}

// Portfolio assembles a user's balance and holdings with unrealized P&L
// marked at the last observed prices.
func (s *Service) Portfolio(ctx context.Context, userID string) (*model.Portfolio, error) {
	balance, err := s.store.GetBalance(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("portfolio: %w", err)
	}

	holdings, err := s.store.ListHoldings(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("portfolio: %w", err)
	}
	if holdings == nil {
		holdings = []model.Holding{}
	}

	unrealized := decimal.Zero
	equity := balance
	for _, h := range holdings {
		unrealized = unrealized.Add(h.UnrealizedPnL())
		equity = equity.Add(h.Amount.Mul(h.CurrentPrice))
	}

	return &model.Portfolio{
		UserID:        userID,
		Balance:       balance,
		Holdings:      holdings,
		UnrealizedPnL: unrealized,
		Equity:        equity,
	}, nil
}
