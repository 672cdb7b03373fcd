package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/papertrade/ledger-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]*model.Account
	holdings map[string]*model.Holding // keyed by userID + "/" + assetID
	trades   []model.Trade
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]*model.Account),
		holdings: make(map[string]*model.Holding),
	}
}

func holdingKey(userID, assetID string) string {
	return userID + "/" + assetID
}

func (s *MemoryStore) CreateAccount(_ context.Context, userID string, openingBalance decimal.Decimal) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[userID]; ok {
		return nil, fmt.Errorf("account %s already exists", userID)
	}

	acct := &model.Account{
		UserID:    userID,
		Balance:   openingBalance,
		CreatedAt: time.Now().UTC(),
	}
	s.accounts[userID] = acct

	copy := *acct
	return &copy, nil
}

func (s *MemoryStore) GetBalance(_ context.Context, userID string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[userID]
	if !ok {
		return decimal.Zero, fmt.Errorf("account %s: %w", userID, ErrNotFound)
	}
	return acct.Balance, nil
}

func (s *MemoryStore) SetBalance(_ context.Context, userID string, balance decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setBalanceLocked(userID, balance)
}

func (s *MemoryStore) setBalanceLocked(userID string, balance decimal.Decimal) error {
	acct, ok := s.accounts[userID]
	if !ok {
		return fmt.Errorf("account %s: %w", userID, ErrNotFound)
	}
	acct.Balance = balance
	return nil
}

func (s *MemoryStore) GetHolding(_ context.Context, userID, assetID string) (*model.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.holdings[holdingKey(userID, assetID)]
	if !ok {
		return nil, fmt.Errorf("holding %s/%s: %w", userID, assetID, ErrNotFound)
	}
	copy := *h
	return &copy, nil
}

func (s *MemoryStore) ListHoldings(_ context.Context, userID string) ([]model.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var holdings []model.Holding
	for _, h := range s.holdings {
		if h.UserID == userID {
			holdings = append(holdings, *h)
		}
	}
	return holdings, nil
}

func (s *MemoryStore) UpsertHolding(_ context.Context, h *model.Holding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to avoid external mutation.
	copy := *h
	s.holdings[holdingKey(h.UserID, h.AssetID)] = &copy
	return nil
}

func (s *MemoryStore) DeleteHolding(_ context.Context, userID, assetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.holdings, holdingKey(userID, assetID))
	return nil
}

func (s *MemoryStore) MarkPrice(_ context.Context, assetID string, price decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, h := range s.holdings {
		if h.AssetID == assetID {
			h.CurrentPrice = price
		}
	}
	return nil
}

func (s *MemoryStore) AppendTrade(_ context.Context, t *model.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trades = append(s.trades, *t)
	return nil
}

func (s *MemoryStore) ListTradesByUser(_ context.Context, userID string) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Trade
	for _, t := range s.trades {
		if t.UserID == userID {
			result = append(result, t)
		}
	}
	return result, nil
}

func (s *MemoryStore) ListTradesByUserAsset(_ context.Context, userID, assetID string) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Trade
	for _, t := range s.trades {
		if t.UserID == userID && t.AssetID == assetID {
			result = append(result, t)
		}
	}
	return result, nil
}

func (s *MemoryStore) ListAllTrades(_ context.Context) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Trade, len(s.trades))
	copy(result, s.trades)
	return result, nil
}

// ApplyTrade commits the trade, balance, and holding under a single lock so
// concurrent readers never observe a half-applied trade.
func (s *MemoryStore) ApplyTrade(_ context.Context, t *model.Trade, newBalance decimal.Decimal, holding *model.Holding, removeHolding bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.setBalanceLocked(t.UserID, newBalance); err != nil {
		return err
	}
	if removeHolding {
		delete(s.holdings, holdingKey(t.UserID, t.AssetID))
	} else {
		copy := *holding
		s.holdings[holdingKey(holding.UserID, holding.AssetID)] = &copy
	}
	s.trades = append(s.trades, *t)
	return nil
}
