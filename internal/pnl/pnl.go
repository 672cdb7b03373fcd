// Package pnl computes realized profit-and-loss from the immutable trade log
// by matching sells against earlier buy lots first-in-first-out. Everything
// here is a pure function over an ordered trade sequence; the ledger's
// average-cost basis is a separate model used only for unrealized display.
package pnl

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/papertrade/ledger-engine/internal/model"
)

// Result is the outcome of FIFO-matching one trade sequence.
type Result struct {
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
	BuyVolume   decimal.Decimal `json:"buy_volume"`
	SellVolume  decimal.Decimal `json:"sell_volume"`
}

// Percent returns realized PnL as a percentage of buy volume, 0 when no
// buys were matched.
func (r Result) Percent() decimal.Decimal {
	if !r.BuyVolume.IsPositive() {
		return decimal.Zero
	}
	return r.RealizedPnL.Div(r.BuyVolume).Mul(decimal.NewFromInt(100))
}

// lot is one buy event's remaining unmatched quantity at its purchase price.
type lot struct {
	remaining decimal.Decimal
	price     decimal.Decimal
}

// SortTrades orders trades by CreatedAt ascending, preserving log order for
// equal timestamps. MatchFIFO is order-dependent: callers must sort first.
func SortTrades(trades []model.Trade) {
	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].CreatedAt.Before(trades[j].CreatedAt)
	})
}

// MatchFIFO walks an ordered trade sequence, pushing each buy as an open lot
// and matching each sell against the oldest open lots. Only completed trades
// participate. A sell that exhausts the lot queue (a log anomaly — the ledger
// never commits one) is matched as far as the open lots allow and the excess
// is ignored for realized PnL; it still counts toward SellVolume.
func MatchFIFO(trades []model.Trade) Result {
	r := Result{
		RealizedPnL: decimal.Zero,
		BuyVolume:   decimal.Zero,
		SellVolume:  decimal.Zero,
	}

	var open []lot
	for _, t := range trades {
		if t.Status != model.StatusCompleted {
			continue
		}
		switch t.Side {
		case model.Buy:
			open = append(open, lot{remaining: t.Amount, price: t.Price})
			r.BuyVolume = r.BuyVolume.Add(t.Amount.Mul(t.Price))
		case model.Sell:
			r.SellVolume = r.SellVolume.Add(t.Amount.Mul(t.Price))

			toMatch := t.Amount
			for toMatch.IsPositive() && len(open) > 0 {
				front := &open[0]
				matched := decimal.Min(toMatch, front.remaining)
				r.RealizedPnL = r.RealizedPnL.Add(matched.Mul(t.Price.Sub(front.price)))
				toMatch = toMatch.Sub(matched)
				front.remaining = front.remaining.Sub(matched)
				if front.remaining.IsZero() {
					open = open[1:]
				}
			}
		}
	}

	return r
}

// ClosedPosition is the realized result for one fully-exited asset.
type ClosedPosition struct {
	AssetID     string          `json:"asset_id"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
	BuyVolume   decimal.Decimal `json:"buy_volume"`
	SellVolume  decimal.Decimal `json:"sell_volume"`
	PnLPercent  decimal.Decimal `json:"pnl_percent"`
	Trades      int             `json:"trades"`
}

// ClosedPositions computes per-asset realized PnL for one user, restricted to
// assets the user has fully exited (no current holding). trades is the user's
// full trade log; holdings is the user's current holdings.
func ClosedPositions(trades []model.Trade, holdings []model.Holding) []ClosedPosition {
	held := make(map[string]bool, len(holdings))
	for _, h := range holdings {
		held[h.AssetID] = true
	}

	byAsset := make(map[string][]model.Trade)
	var order []string
	for _, t := range trades {
		if held[t.AssetID] {
			continue
		}
		if _, ok := byAsset[t.AssetID]; !ok {
			order = append(order, t.AssetID)
		}
		byAsset[t.AssetID] = append(byAsset[t.AssetID], t)
	}

	var closed []ClosedPosition
	for _, assetID := range order {
		assetTrades := byAsset[assetID]
		SortTrades(assetTrades)
		r := MatchFIFO(assetTrades)
		closed = append(closed, ClosedPosition{
			AssetID:     assetID,
			RealizedPnL: r.RealizedPnL,
			BuyVolume:   r.BuyVolume,
			SellVolume:  r.SellVolume,
			PnLPercent:  r.Percent(),
			Trades:      len(assetTrades),
		})
	}
	return closed
}
