// Package api is the engine's reference HTTP ingress: a thin JSON layer
// over the engine and ledger operations. Transport is an external
// collaborator; this package exists only so the engine is reachable for
// manual testing and worked examples.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"outcomex/internal/engine"
	"outcomex/internal/ledger"
	"outcomex/internal/metrics"
	"outcomex/internal/order"
)

// PlaceOrderBody is the JSON request body for POST /v1/orders.
type PlaceOrderBody struct {
	AgentID       string            `json:"agent_id"`
	Market        string            `json:"market"`
	Side          order.Side        `json:"side"`
	Outcome       order.Outcome     `json:"outcome"`
	Type          order.Type        `json:"order_type"`
	PriceTicks    *int64            `json:"price_ticks,omitempty"`
	Quantity      int64             `json:"quantity"`
	ClientOrderID string            `json:"client_order_id,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

type PlaceOrderResponse struct {
	Order  *order.Order  `json:"order"`
	Trades []*order.Trade `json:"trades"`
}

type CancelOrderResponse struct {
	Order *order.Order `json:"order"`
}

type DepositBody struct {
	AgentID   string          `json:"agent_id"`
	Amount    decimal.Decimal `json:"amount"`
	SessionID string          `json:"session_id"`
}

type BalanceResponse struct {
	Available decimal.Decimal `json:"available"`
	Locked    decimal.Decimal `json:"locked"`
	Total     decimal.Decimal `json:"total"`
}

type SettleBody struct {
	WinnerAgentID string          `json:"winner_agent_id"`
	LoserAgentID  string          `json:"loser_agent_id"`
	Payout        decimal.Decimal `json:"payout"`
}

// Server is the HTTP server fronting one Engine and Ledger.
type Server struct {
	listenAddr string
	engine     *engine.Engine
	ledger     *ledger.Ledger
	metrics    *metrics.Metrics
	startTime  time.Time
}

func NewServer(listenAddr string, eng *engine.Engine, l *ledger.Ledger, m *metrics.Metrics) *Server {
	return &Server{
		listenAddr: listenAddr,
		engine:     eng,
		ledger:     l,
		metrics:    m,
		startTime:  time.Now(),
	}
}

// Handler builds the routed mux. Exposed separately from Run so tests
// can drive it with httptest without binding a real listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/orders", s.handlePlaceOrder)
	mux.HandleFunc("DELETE /v1/orders/{id}", s.handleCancelOrder)
	mux.HandleFunc("GET /v1/markets/{market}/{outcome}/book", s.handleBookSnapshot)
	mux.HandleFunc("GET /v1/markets/{market}/{outcome}/quote", s.handleBestPrices)
	mux.HandleFunc("POST /v1/wallets/{agent}/deposit", s.handleDeposit)
	mux.HandleFunc("POST /v1/wallets/{agent}/deposit/external", s.handleDepositExternal)
	mux.HandleFunc("GET /v1/wallets/{agent}/balance", s.handleBalance)
	mux.HandleFunc("GET /v1/wallets/{agent}/transactions", s.handleTransactions)
	mux.HandleFunc("POST /v1/markets/{market}/settle", s.handleSettle)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	return mux
}

func (s *Server) Run() error {
	return http.ListenAndServe(s.listenAddr, s.Handler())
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var body PlaceOrderBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	o, trades, err := s.engine.PlaceOrder(engine.PlaceOrderRequest{
		AgentID:       body.AgentID,
		Market:        body.Market,
		Side:          body.Side,
		Outcome:       body.Outcome,
		Type:          body.Type,
		PriceTicks:    body.PriceTicks,
		Quantity:      body.Quantity,
		ClientOrderID: body.ClientOrderID,
		Metadata:      body.Metadata,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, PlaceOrderResponse{Order: o, Trades: trades})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("id")
	agentID := r.URL.Query().Get("agent_id")

	o, err := s.engine.CancelOrder(orderID, agentID)
	if err != nil {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	writeJSON(w, http.StatusOK, CancelOrderResponse{Order: o})
}

func (s *Server) handleBookSnapshot(w http.ResponseWriter, r *http.Request) {
	marketID := r.PathValue("market")
	outcome, ok := parseOutcome(r.PathValue("outcome"))
	if !ok {
		writeError(w, http.StatusBadRequest, "outcome must be yes or no")
		return
	}
	maxLevels := 0
	if v := r.URL.Query().Get("max_levels"); v != "" {
		maxLevels, _ = strconv.Atoi(v)
	}

	snap, ok := s.engine.GetBookSnapshot(marketID, outcome, maxLevels)
	if !ok {
		writeError(w, http.StatusNotFound, "market not found")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleBestPrices(w http.ResponseWriter, r *http.Request) {
	marketID := r.PathValue("market")
	outcome, ok := parseOutcome(r.PathValue("outcome"))
	if !ok {
		writeError(w, http.StatusBadRequest, "outcome must be yes or no")
		return
	}
	quote, ok := s.engine.BestPrices(marketID, outcome)
	if !ok {
		writeError(w, http.StatusNotFound, "market not found")
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("agent")
	var body DepositBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	tx, err := s.ledger.Deposit(agentID, body.Amount, "api deposit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handleDepositExternal(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("agent")
	var body DepositBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	tx, err := s.ledger.DepositFromExternal(agentID, body.Amount, body.SessionID)
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateSession) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate-session-noop"})
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("agent")
	avail, locked, total, err := s.ledger.GetBalance(agentID)
	if err != nil {
		writeError(w, http.StatusNotFound, "wallet not found")
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{Available: avail, Locked: locked, Total: total})
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("agent")
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}
	txs, err := s.ledger.GetTransactions(agentID, limit)
	if err != nil {
		writeError(w, http.StatusNotFound, "wallet not found")
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

// handleSettle credits the given payout to the winning side of a resolved
// market via ledger.SettlePosition. Driving every resident order of the
// market to CANCELLED/released is the caller's responsibility, per
// ledger.SettlePosition's contract; no trade-escrow record is read or
// reduced by this endpoint.
func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request) {
	marketID := r.PathValue("market")
	var body SettleBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.ledger.SettlePosition(body.WinnerAgentID, body.LoserAgentID, body.Payout, marketID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.metrics.IncSettlements()
	writeJSON(w, http.StatusOK, map[string]string{"status": "settled"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "healthy",
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics)
}

func parseOutcome(s string) (order.Outcome, bool) {
	switch s {
	case "yes", "YES":
		return order.Yes, true
	case "no", "NO":
		return order.No, true
	default:
		return 0, false
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
