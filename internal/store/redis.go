package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/papertrade/ledger-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for balance and holdings reads. Writes go to the primary store and
// invalidate the cache. Trade-log reads are never cached: reporting tolerates
// staleness but reads the log straight from the source of truth.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateAccount(ctx context.Context, userID string, openingBalance decimal.Decimal) (*model.Account, error) {
	acct, err := s.primary.CreateAccount(ctx, userID, openingBalance)
	if err != nil {
		return nil, err
	}
	s.rdb.Set(ctx, balanceKey(userID), acct.Balance.String(), s.ttl)
	return acct, nil
}

func (s *CachedStore) SetBalance(ctx context.Context, userID string, balance decimal.Decimal) error {
	if err := s.primary.SetBalance(ctx, userID, balance); err != nil {
		return err
	}
	s.rdb.Del(ctx, balanceKey(userID))
	return nil
}

func (s *CachedStore) UpsertHolding(ctx context.Context, h *model.Holding) error {
	if err := s.primary.UpsertHolding(ctx, h); err != nil {
		return err
	}
	s.rdb.Del(ctx, holdingsKey(h.UserID))
	return nil
}

func (s *CachedStore) DeleteHolding(ctx context.Context, userID, assetID string) error {
	if err := s.primary.DeleteHolding(ctx, userID, assetID); err != nil {
		return err
	}
	s.rdb.Del(ctx, holdingsKey(userID))
	return nil
}

func (s *CachedStore) MarkPrice(ctx context.Context, assetID string, price decimal.Decimal) error {
	if err := s.primary.MarkPrice(ctx, assetID, price); err != nil {
		return err
	}
	// Marked prices touch every holder of the asset; flushing per-user keys
	// would require an index, so let the TTL age them out instead.
	return nil
}

func (s *CachedStore) AppendTrade(ctx context.Context, t *model.Trade) error {
	return s.primary.AppendTrade(ctx, t)
}

func (s *CachedStore) ApplyTrade(ctx context.Context, t *model.Trade, newBalance decimal.Decimal, holding *model.Holding, removeHolding bool) error {
	if err := s.primary.ApplyTrade(ctx, t, newBalance, holding, removeHolding); err != nil {
		return err
	}
	s.rdb.Del(ctx, balanceKey(t.UserID), holdingsKey(t.UserID))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	val, err := s.rdb.Get(ctx, balanceKey(userID)).Result()
	if err == nil {
		if b, err := decimal.NewFromString(val); err == nil {
			return b, nil
		}
	}

	// Cache miss: read from primary.
	b, err := s.primary.GetBalance(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}

	s.rdb.Set(ctx, balanceKey(userID), b.String(), s.ttl)
	return b, nil
}

func (s *CachedStore) ListHoldings(ctx context.Context, userID string) ([]model.Holding, error) {
	data, err := s.rdb.Get(ctx, holdingsKey(userID)).Bytes()
	if err == nil {
		var holdings []model.Holding
		if json.Unmarshal(data, &holdings) == nil {
			return holdings, nil
		}
	}

	// Cache miss.
	holdings, err := s.primary.ListHoldings(ctx, userID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(holdings); err == nil {
		s.rdb.Set(ctx, holdingsKey(userID), data, s.ttl)
	}
	return holdings, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) GetHolding(ctx context.Context, userID, assetID string) (*model.Holding, error) {
	return s.primary.GetHolding(ctx, userID, assetID)
}

func (s *CachedStore) ListTradesByUser(ctx context.Context, userID string) ([]model.Trade, error) {
	return s.primary.ListTradesByUser(ctx, userID)
}

func (s *CachedStore) ListTradesByUserAsset(ctx context.Context, userID, assetID string) ([]model.Trade, error) {
	return s.primary.ListTradesByUserAsset(ctx, userID, assetID)
}

func (s *CachedStore) ListAllTrades(ctx context.Context) ([]model.Trade, error) {
	return s.primary.ListAllTrades(ctx)
}

// --- Cache helpers ---

func balanceKey(uid string) string  { return fmt.Sprintf("balance:%s", uid) }
func holdingsKey(uid string) string { return fmt.Sprintf("holdings:%s", uid) }
