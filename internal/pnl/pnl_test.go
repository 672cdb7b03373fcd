package pnl_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/papertrade/ledger-engine/internal/model"
	"github.com/papertrade/ledger-engine/internal/pnl"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// tr builds a completed trade n seconds after baseTime.
func tr(side model.Side, amount, price float64, n int) model.Trade {
	return model.Trade{
		ID:        "t",
		UserID:    "user1",
		AssetID:   "Z",
		Side:      side,
		Amount:    d(amount),
		Price:     d(price),
		Total:     d(amount).Mul(d(price)),
		Status:    model.StatusCompleted,
		CreatedAt: baseTime.Add(time.Duration(n) * time.Second),
	}
}

func TestMatchFIFO_TwoLotSell(t *testing.T) {
	// Buy 10 @ 10, buy 10 @ 20, sell 15 @ 30: the sell matches 10 units
	// against the first lot (pnl 200) and 5 against the second (pnl 50).
	trades := []model.Trade{
		tr(model.Buy, 10, 10, 0),
		tr(model.Buy, 10, 20, 1),
		tr(model.Sell, 15, 30, 2),
	}

	r := pnl.MatchFIFO(trades)

	if !r.RealizedPnL.Equal(d(250)) {
		t.Errorf("expected realized pnl 250, got %s", r.RealizedPnL)
	}
	if !r.BuyVolume.Equal(d(300)) {
		t.Errorf("expected buy volume 300, got %s", r.BuyVolume)
	}
	if !r.SellVolume.Equal(d(450)) {
		t.Errorf("expected sell volume 450, got %s", r.SellVolume)
	}
}

func TestMatchFIFO_RoundTripIsFlat(t *testing.T) {
	trades := []model.Trade{
		tr(model.Buy, 5, 42, 0),
		tr(model.Sell, 5, 42, 1),
	}

	r := pnl.MatchFIFO(trades)

	if !r.RealizedPnL.IsZero() {
		t.Errorf("buy then sell at same price should realize 0, got %s", r.RealizedPnL)
	}
}

func TestMatchFIFO_Pure(t *testing.T) {
	trades := []model.Trade{
		tr(model.Buy, 10, 10, 0),
		tr(model.Buy, 10, 20, 1),
		tr(model.Sell, 15, 30, 2),
	}

	r1 := pnl.MatchFIFO(trades)
	r2 := pnl.MatchFIFO(trades)

	if !r1.RealizedPnL.Equal(r2.RealizedPnL) || !r1.BuyVolume.Equal(r2.BuyVolume) || !r1.SellVolume.Equal(r2.SellVolume) {
		t.Errorf("two runs on the same input differ: %+v vs %+v", r1, r2)
	}
}

func TestMatchFIFO_PartialLotCarriesOver(t *testing.T) {
	// Sell 3 of a 10-lot, then sell the remaining 7 at a higher price.
	trades := []model.Trade{
		tr(model.Buy, 10, 100, 0),
		tr(model.Sell, 3, 110, 1),
		tr(model.Sell, 7, 120, 2),
	}

	r := pnl.MatchFIFO(trades)

	// 3×10 + 7×20 = 170
	if !r.RealizedPnL.Equal(d(170)) {
		t.Errorf("expected realized pnl 170, got %s", r.RealizedPnL)
	}
}

func TestMatchFIFO_LossIsNegative(t *testing.T) {
	trades := []model.Trade{
		tr(model.Buy, 10, 50, 0),
		tr(model.Sell, 10, 40, 1),
	}

	r := pnl.MatchFIFO(trades)

	if !r.RealizedPnL.Equal(d(-100)) {
		t.Errorf("expected realized pnl -100, got %s", r.RealizedPnL)
	}
}

func TestMatchFIFO_OversellClampsToOpenLots(t *testing.T) {
	// A sell exceeding prior buys matches only what the lots cover; the
	// excess is ignored for pnl but still counts toward sell volume.
	trades := []model.Trade{
		tr(model.Buy, 10, 10, 0),
		tr(model.Sell, 25, 30, 1),
	}

	r := pnl.MatchFIFO(trades)

	if !r.RealizedPnL.Equal(d(200)) {
		t.Errorf("expected clamped pnl 200, got %s", r.RealizedPnL)
	}
	if !r.SellVolume.Equal(d(750)) {
		t.Errorf("expected sell volume 750, got %s", r.SellVolume)
	}
}

func TestMatchFIFO_SkipsNonCompleted(t *testing.T) {
	failed := tr(model.Buy, 100, 1, 0)
	failed.Status = model.StatusFailed

	trades := []model.Trade{
		failed,
		tr(model.Buy, 10, 10, 1),
		tr(model.Sell, 10, 15, 2),
	}

	r := pnl.MatchFIFO(trades)

	if !r.RealizedPnL.Equal(d(50)) {
		t.Errorf("failed trades must not enter matching, got pnl %s", r.RealizedPnL)
	}
	if !r.BuyVolume.Equal(d(100)) {
		t.Errorf("expected buy volume 100, got %s", r.BuyVolume)
	}
}

func TestResult_Percent(t *testing.T) {
	r := pnl.Result{RealizedPnL: d(50), BuyVolume: d(200), SellVolume: d(250)}
	if !r.Percent().Equal(d(25)) {
		t.Errorf("expected 25%%, got %s", r.Percent())
	}

	empty := pnl.Result{RealizedPnL: decimal.Zero, BuyVolume: decimal.Zero, SellVolume: decimal.Zero}
	if !empty.Percent().IsZero() {
		t.Errorf("expected 0%% with no buys, got %s", empty.Percent())
	}
}

func TestSortTrades_StableOnEqualTimestamps(t *testing.T) {
	a := tr(model.Buy, 1, 10, 0)
	a.ID = "a"
	b := tr(model.Buy, 2, 20, 0) // same timestamp as a
	b.ID = "b"
	c := tr(model.Sell, 1, 30, 1)
	c.ID = "c"

	trades := []model.Trade{a, b, c}
	pnl.SortTrades(trades)

	if trades[0].ID != "a" || trades[1].ID != "b" {
		t.Errorf("equal timestamps must keep log order, got %s,%s", trades[0].ID, trades[1].ID)
	}
}

func TestClosedPositions_OnlyFullyExitedAssets(t *testing.T) {
	mk := func(asset string, side model.Side, amount, price float64, n int) model.Trade {
		t := tr(side, amount, price, n)
		t.AssetID = asset
		return t
	}

	trades := []model.Trade{
		mk("X", model.Buy, 10, 10, 0),
		mk("X", model.Sell, 10, 12, 1), // fully exited, pnl +20
		mk("Y", model.Buy, 5, 100, 2),  // still held
	}
	holdings := []model.Holding{
		{UserID: "user1", AssetID: "Y", Amount: d(5), AverageCost: d(100)},
	}

	closed := pnl.ClosedPositions(trades, holdings)

	if len(closed) != 1 {
		t.Fatalf("expected 1 closed position, got %d", len(closed))
	}
	if closed[0].AssetID != "X" {
		t.Errorf("expected asset X, got %s", closed[0].AssetID)
	}
	if !closed[0].RealizedPnL.Equal(d(20)) {
		t.Errorf("expected pnl 20, got %s", closed[0].RealizedPnL)
	}
	if closed[0].Trades != 2 {
		t.Errorf("expected 2 trades, got %d", closed[0].Trades)
	}
}

func TestClosedPositions_NoneWhenEverythingHeld(t *testing.T) {
	trades := []model.Trade{tr(model.Buy, 10, 10, 0)}
	holdings := []model.Holding{
		{UserID: "user1", AssetID: "Z", Amount: d(10), AverageCost: d(10)},
	}

	if closed := pnl.ClosedPositions(trades, holdings); len(closed) != 0 {
		t.Errorf("expected no closed positions, got %d", len(closed))
	}
}
