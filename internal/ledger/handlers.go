package ledger

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/papertrade/ledger-engine/internal/leaderboard"
	"github.com/papertrade/ledger-engine/internal/metrics"
	"github.com/papertrade/ledger-engine/internal/model"
	"github.com/papertrade/ledger-engine/internal/pnl"
	"github.com/papertrade/ledger-engine/internal/store"
)

// --- Request/Response types ---

// OpenAccountRequest is the JSON body for POST /accounts.
type OpenAccountRequest struct {
	UserID         string          `json:"user_id"`
	OpeningBalance decimal.Decimal `json:"opening_balance"` // 0 → service default
}

// TradeRequest is the JSON body for POST /trade.
type TradeRequest struct {
	UserID  string          `json:"user_id"`
	AssetID string          `json:"asset_id"`
	Side    model.Side      `json:"side"`
	Amount  decimal.Decimal `json:"amount"`
	Price   decimal.Decimal `json:"price"` // reference price, supplied by the caller
}

// TradeResponse is the JSON body returned from POST /trade.
type TradeResponse struct {
	Trade   *model.Trade    `json:"trade"`
	Balance decimal.Decimal `json:"balance"`
}

// RealizedPnLResponse is the JSON body for GET /pnl/{userID}.
type RealizedPnLResponse struct {
	UserID    string               `json:"user_id"`
	Positions []pnl.ClosedPosition `json:"positions"`
	TotalPnL  decimal.Decimal      `json:"total_pnl"`
}

// MarkPriceRequest is the JSON body for PUT /prices/{assetID}.
type MarkPriceRequest struct {
	Price decimal.Decimal `json:"price"`
}

// --- HTTP Handlers ---

// CreateAccount handles POST /api/v1/accounts
func (s *Service) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req OpenAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}

	acct, err := s.OpenAccount(r.Context(), req.UserID, req.OpeningBalance)
	if err != nil {
		if errors.Is(err, ErrInvalidAmount) {
			writeError(w, "opening_balance must not be negative", http.StatusBadRequest)
			return
		}
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	writeJSON(w, http.StatusCreated, acct)
}

// GetBalance handles GET /api/v1/accounts/{userID}/balance
func (s *Service) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	balance, err := s.store.GetBalance(r.Context(), userID)
	if err != nil {
		writeError(w, "account not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"balance": balance})
}

// SubmitTrade handles POST /api/v1/trade
// Executes against the caller-supplied reference price and returns the
// committed trade with the updated balance.
func (s *Service) SubmitTrade(w http.ResponseWriter, r *http.Request) {
	var req TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}
	if req.AssetID == "" {
		writeError(w, "asset_id is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	trade, err := s.ExecuteTrade(ctx, req.UserID, req.AssetID, req.Side, req.Amount, req.Price)
	if err != nil {
		writeError(w, err.Error(), statusForError(err))
		return
	}

	balance, err := s.store.GetBalance(ctx, req.UserID)
	if err != nil {
		writeError(w, "trade committed but balance read failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, TradeResponse{Trade: trade, Balance: balance})
}

// ListTrades handles GET /api/v1/trades/{userID}
// Returns the user's full trade history in log order.
func (s *Service) ListTrades(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	trades, err := s.store.ListTradesByUser(r.Context(), userID)
	if err != nil {
		writeError(w, "failed to list trades", http.StatusInternalServerError)
		return
	}
	if trades == nil {
		trades = []model.Trade{}
	}

	writeJSON(w, http.StatusOK, trades)
}

// GetPortfolio handles GET /api/v1/portfolio/{userID}
// Returns balance, holdings, and unrealized P&L at last marked prices.
func (s *Service) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	portfolio, err := s.Portfolio(r.Context(), userID)
	if err != nil {
		writeError(w, err.Error(), statusForError(err))
		return
	}

	writeJSON(w, http.StatusOK, portfolio)
}

// GetRealizedPnL handles GET /api/v1/pnl/{userID}
// Returns FIFO realized P&L per fully-exited asset.
func (s *Service) GetRealizedPnL(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	ctx := r.Context()

	trades, err := s.store.ListTradesByUser(ctx, userID)
	if err != nil {
		writeError(w, "failed to list trades", http.StatusInternalServerError)
		return
	}

	holdings, err := s.store.ListHoldings(ctx, userID)
	if err != nil {
		writeError(w, "failed to list holdings", http.StatusInternalServerError)
		return
	}

	positions := pnl.ClosedPositions(trades, holdings)
	if positions == nil {
		positions = []pnl.ClosedPosition{}
	}

	total := decimal.Zero
	for _, p := range positions {
		total = total.Add(p.RealizedPnL)
	}

	writeJSON(w, http.StatusOK, RealizedPnLResponse{
		UserID:    userID,
		Positions: positions,
		TotalPnL:  total,
	})
}

// GetLeaderboard handles GET /api/v1/leaderboard?min_trades=N
// Ranks all users by cross-asset FIFO realized P&L.
func (s *Service) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	minTrades := s.minTrades
	if v := r.URL.Query().Get("min_trades"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, "min_trades must be a positive integer", http.StatusBadRequest)
			return
		}
		minTrades = n
	}

	trades, err := s.store.ListAllTrades(r.Context())
	if err != nil {
		writeError(w, "failed to read trade log", http.StatusInternalServerError)
		return
	}

	start := time.Now()
	entries := leaderboard.Rank(trades, minTrades)
	metrics.LeaderboardDuration.Observe(time.Since(start).Seconds())

	if entries == nil {
		entries = []leaderboard.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// MarkAssetPrice handles PUT /api/v1/prices/{assetID}
// Refreshes the current price on every holding of the asset. Display-only:
// marked prices feed unrealized P&L, never the ledger's invariants.
func (s *Service) MarkAssetPrice(w http.ResponseWriter, r *http.Request) {
	assetID := chi.URLParam(r, "assetID")

	var req MarkPriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !req.Price.IsPositive() {
		writeError(w, "price must be positive", http.StatusBadRequest)
		return
	}

	if err := s.store.MarkPrice(r.Context(), assetID, req.Price); err != nil {
		writeError(w, "failed to mark price", http.StatusInternalServerError)
		return
	}

	slog.Info("price marked", "asset", assetID, "price", req.Price.String())

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:    "price_marked",
			AssetID: assetID,
			Price:   req.Price.String(),
		})
	}

	writeJSON(w, http.StatusOK, map[string]string{"asset_id": assetID, "price": req.Price.String()})
}

// statusForError maps ledger errors onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidSide):
		return http.StatusBadRequest
	case errors.Is(err, ErrInsufficientFunds), errors.Is(err, ErrInsufficientHoldings):
		return http.StatusConflict
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
