package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/papertrade/ledger-engine/internal/model"
	"github.com/papertrade/ledger-engine/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestMemoryStore_AccountLifecycle(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	if _, err := ms.GetBalance(ctx, "user1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown account, got %v", err)
	}

	acct, err := ms.CreateAccount(ctx, "user1", d(500))
	if err != nil {
		t.Fatalf("create account failed: %v", err)
	}
	if !acct.Balance.Equal(d(500)) {
		t.Errorf("expected balance 500, got %s", acct.Balance)
	}

	if _, err := ms.CreateAccount(ctx, "user1", d(500)); err == nil {
		t.Error("expected error creating duplicate account")
	}

	if err := ms.SetBalance(ctx, "user1", d(250)); err != nil {
		t.Fatalf("set balance failed: %v", err)
	}
	balance, _ := ms.GetBalance(ctx, "user1")
	if !balance.Equal(d(250)) {
		t.Errorf("expected balance 250, got %s", balance)
	}
}

func TestMemoryStore_ApplyTrade(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	ms.CreateAccount(ctx, "user1", d(1000))

	trade := &model.Trade{
		ID:        "t1",
		UserID:    "user1",
		AssetID:   "Z",
		Side:      model.Buy,
		Amount:    d(10),
		Price:     d(10),
		Total:     d(100),
		Status:    model.StatusCompleted,
		CreatedAt: time.Now().UTC(),
	}
	holding := &model.Holding{
		UserID: "user1", AssetID: "Z",
		Amount: d(10), AverageCost: d(10), CurrentPrice: d(10),
	}

	if err := ms.ApplyTrade(ctx, trade, d(900), holding, false); err != nil {
		t.Fatalf("apply trade failed: %v", err)
	}

	balance, _ := ms.GetBalance(ctx, "user1")
	if !balance.Equal(d(900)) {
		t.Errorf("expected balance 900, got %s", balance)
	}
	h, err := ms.GetHolding(ctx, "user1", "Z")
	if err != nil {
		t.Fatalf("expected holding: %v", err)
	}
	if !h.Amount.Equal(d(10)) {
		t.Errorf("expected amount 10, got %s", h.Amount)
	}
	trades, _ := ms.ListTradesByUser(ctx, "user1")
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
}

func TestMemoryStore_ApplyTrade_UnknownAccountLeavesNoTrace(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	trade := &model.Trade{
		ID: "t1", UserID: "ghost", AssetID: "Z", Side: model.Buy,
		Amount: d(1), Price: d(1), Total: d(1),
		Status: model.StatusCompleted, CreatedAt: time.Now().UTC(),
	}
	holding := &model.Holding{UserID: "ghost", AssetID: "Z", Amount: d(1), AverageCost: d(1)}

	if err := ms.ApplyTrade(ctx, trade, d(0), holding, false); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// The failed commit must not leak a trade or holding.
	trades, _ := ms.ListAllTrades(ctx)
	if len(trades) != 0 {
		t.Errorf("expected empty trade log, got %d entries", len(trades))
	}
	if _, err := ms.GetHolding(ctx, "ghost", "Z"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected no holding, got err=%v", err)
	}
}

func TestMemoryStore_ApplyTrade_RemoveHolding(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	ms.CreateAccount(ctx, "user1", d(1000))
	ms.UpsertHolding(ctx, &model.Holding{
		UserID: "user1", AssetID: "Z",
		Amount: d(10), AverageCost: d(10), CurrentPrice: d(10),
	})

	trade := &model.Trade{
		ID: "t1", UserID: "user1", AssetID: "Z", Side: model.Sell,
		Amount: d(10), Price: d(12), Total: d(120),
		Status: model.StatusCompleted, CreatedAt: time.Now().UTC(),
	}

	if err := ms.ApplyTrade(ctx, trade, d(1120), nil, true); err != nil {
		t.Fatalf("apply trade failed: %v", err)
	}

	if _, err := ms.GetHolding(ctx, "user1", "Z"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected holding removed, got err=%v", err)
	}
}

func TestMemoryStore_MarkPrice(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	ms.UpsertHolding(ctx, &model.Holding{
		UserID: "user1", AssetID: "Z", Amount: d(10), AverageCost: d(10), CurrentPrice: d(10),
	})
	ms.UpsertHolding(ctx, &model.Holding{
		UserID: "user2", AssetID: "Z", Amount: d(3), AverageCost: d(8), CurrentPrice: d(10),
	})
	ms.UpsertHolding(ctx, &model.Holding{
		UserID: "user1", AssetID: "Y", Amount: d(1), AverageCost: d(50), CurrentPrice: d(50),
	})

	if err := ms.MarkPrice(ctx, "Z", d(13)); err != nil {
		t.Fatalf("mark price failed: %v", err)
	}

	h1, _ := ms.GetHolding(ctx, "user1", "Z")
	h2, _ := ms.GetHolding(ctx, "user2", "Z")
	hy, _ := ms.GetHolding(ctx, "user1", "Y")

	if !h1.CurrentPrice.Equal(d(13)) || !h2.CurrentPrice.Equal(d(13)) {
		t.Errorf("expected both Z holdings marked to 13, got %s and %s", h1.CurrentPrice, h2.CurrentPrice)
	}
	if !hy.CurrentPrice.Equal(d(50)) {
		t.Errorf("expected Y holding untouched, got %s", hy.CurrentPrice)
	}
}

func TestMemoryStore_TradeFilters(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	mk := func(id, user, asset string) *model.Trade {
		return &model.Trade{
			ID: id, UserID: user, AssetID: asset, Side: model.Buy,
			Amount: d(1), Price: d(1), Total: d(1),
			Status: model.StatusCompleted, CreatedAt: time.Now().UTC(),
		}
	}

	ms.AppendTrade(ctx, mk("t1", "user1", "Z"))
	ms.AppendTrade(ctx, mk("t2", "user1", "Y"))
	ms.AppendTrade(ctx, mk("t3", "user2", "Z"))

	byUser, _ := ms.ListTradesByUser(ctx, "user1")
	if len(byUser) != 2 {
		t.Errorf("expected 2 trades for user1, got %d", len(byUser))
	}

	byUserAsset, _ := ms.ListTradesByUserAsset(ctx, "user1", "Z")
	if len(byUserAsset) != 1 || byUserAsset[0].ID != "t1" {
		t.Errorf("expected only t1 for user1/Z, got %d", len(byUserAsset))
	}

	all, _ := ms.ListAllTrades(ctx)
	if len(all) != 3 {
		t.Errorf("expected 3 trades total, got %d", len(all))
	}
	// Log order preserved.
	if all[0].ID != "t1" || all[2].ID != "t3" {
		t.Errorf("expected log order t1..t3, got %s..%s", all[0].ID, all[2].ID)
	}
}
