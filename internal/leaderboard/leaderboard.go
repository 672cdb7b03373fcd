// Package leaderboard ranks users by total realized PnL across the whole
// trade log. Matching is cross-asset: every buy a user makes enters one FIFO
// queue and every sell consumes from it in time order.
package leaderboard

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/papertrade/ledger-engine/internal/model"
	"github.com/papertrade/ledger-engine/internal/pnl"
)

// DefaultMinTrades is the minimum-activity threshold: users with fewer
// trades are excluded so a single lucky trade cannot top the ranking.
const DefaultMinTrades = 10

// Entry is one user's row in the ranking.
type Entry struct {
	UserID      string          `json:"user_id"`
	BuyVolume   decimal.Decimal `json:"buy_volume"`
	SellVolume  decimal.Decimal `json:"sell_volume"`
	TotalVolume decimal.Decimal `json:"total_volume"`
	PnLDollar   decimal.Decimal `json:"pnl_dollar"`
	PnLPercent  decimal.Decimal `json:"pnl_percent"`
	Trades      int             `json:"trades"`
}

// Rank groups trades by user, FIFO-matches each user's full sequence, and
// returns entries sorted descending by realized PnL. Users with fewer than
// minTrades trades are excluded (pass 0 for DefaultMinTrades). Ties keep
// trade-log encounter order (stable sort).
func Rank(trades []model.Trade, minTrades int) []Entry {
	if minTrades <= 0 {
		minTrades = DefaultMinTrades
	}

	byUser := make(map[string][]model.Trade)
	var order []string
	for _, t := range trades {
		if _, ok := byUser[t.UserID]; !ok {
			order = append(order, t.UserID)
		}
		byUser[t.UserID] = append(byUser[t.UserID], t)
	}

	entries := make([]Entry, 0, len(order))
	for _, userID := range order {
		userTrades := byUser[userID]
		if len(userTrades) < minTrades {
			continue
		}

		pnl.SortTrades(userTrades)
		r := pnl.MatchFIFO(userTrades)

		entries = append(entries, Entry{
			UserID:      userID,
			BuyVolume:   r.BuyVolume,
			SellVolume:  r.SellVolume,
			TotalVolume: r.BuyVolume.Add(r.SellVolume),
			PnLDollar:   r.RealizedPnL,
			PnLPercent:  r.Percent(),
			Trades:      len(userTrades),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].PnLDollar.GreaterThan(entries[j].PnLDollar)
	})

	return entries
}
