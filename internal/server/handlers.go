package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"charity-trade-bot-go/internal/bot"
	"charity-trade-bot-go/internal/kraken"
	"charity-trade-bot-go/internal/models"
	"go.uber.org/zap"
)

func (s *APIServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

// statusHandler reports the bot state row and the gateway status.
func (s *APIServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	state, err := s.store.CurrentBotState()
	if err != nil {
		s.logger.Error("Failed to load bot state", zap.Error(err))
		http.Error(w, "Failed to load bot state", http.StatusInternalServerError)
		return
	}

	status := struct {
		State   models.BotState      `json:"state"`
		Gateway kraken.GatewayStatus `json:"gateway"`
	}{
		State:   state,
		Gateway: s.gateway.Status(),
	}
	s.writeJSON(w, status)
}

func (s *APIServer) tickerHandler(w http.ResponseWriter, r *http.Request) {
	pairs := []string{s.cfg.Trading.Pair, s.cfg.Trading.EthPair}
	tickers, err := s.gateway.GetTicker(r.Context(), pairs)
	if err != nil {
		s.logger.Error("Failed to get ticker", zap.Error(err))
		http.Error(w, "Failed to get ticker", http.StatusBadGateway)
		return
	}
	s.writeJSON(w, tickers)
}

func (s *APIServer) sentimentHandler(w http.ResponseWriter, r *http.Request) {
	reading, err := s.store.LatestSentiment()
	if err != nil {
		http.Error(w, "No sentiment reading yet", http.StatusNotFound)
		return
	}
	s.writeJSON(w, reading)
}

func (s *APIServer) riskHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.gate.Status())
}

func (s *APIServer) balancesHandler(w http.ResponseWriter, r *http.Request) {
	balances, err := s.gateway.GetPortfolioBalances(r.Context())
	if err != nil {
		s.logger.Error("Failed to get portfolio balances", zap.Error(err))
		http.Error(w, "Failed to get balances", http.StatusBadGateway)
		return
	}
	s.writeJSON(w, balances)
}

// tradesHandler returns the most recent trades, newest first.
func (s *APIServer) tradesHandler(w http.ResponseWriter, r *http.Request) {
	trades, err := s.store.RecentTrades(100)
	if err != nil {
		s.logger.Error("Failed to get trades from database", zap.Error(err))
		http.Error(w, "Failed to get trades", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, trades)
}

func (s *APIServer) reportsHandler(w http.ResponseWriter, r *http.Request) {
	reports, err := s.store.MonthlyReports()
	if err != nil {
		s.logger.Error("Failed to get monthly reports", zap.Error(err))
		http.Error(w, "Failed to get reports", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, reports)
}

// triggerHandler runs one tick of a strategy on demand: POST
// /api/trigger/{bot_a|bot_b}.
func (s *APIServer) triggerHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/api/trigger/")
	switch err := s.scheduler.Trigger(r.Context(), name); {
	case errors.Is(err, bot.ErrUnknownStrategy):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, bot.ErrTickRunning):
		http.Error(w, err.Error(), http.StatusConflict)
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	default:
		s.writeJSON(w, map[string]string{"triggered": name})
	}
}

// sellRequest is the body of POST /api/sell.
type sellRequest struct {
	UsdAmount float64 `json:"usdAmount"`
}

// sellHandler converts a USD amount into base volume at the current price
// and runs the full gateway flow: minimum-size check, risk gate, order.
func (s *APIServer) sellHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req sellRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.UsdAmount <= 0 {
		http.Error(w, "usdAmount must be positive", http.StatusBadRequest)
		return
	}

	pair := s.cfg.Trading.Pair
	tickers, err := s.gateway.GetTicker(r.Context(), []string{pair})
	if err != nil {
		s.logger.Error("Failed to get ticker for sell", zap.Error(err))
		http.Error(w, "Failed to get current price", http.StatusBadGateway)
		return
	}
	price := tickers[pair].Price
	if price <= 0 {
		http.Error(w, "No valid price available", http.StatusBadGateway)
		return
	}

	confidence := 0.5
	if reading, err := s.store.LatestSentiment(); err == nil {
		confidence = reading.Confidence
	}

	volume := req.UsdAmount / price
	order, err := s.gateway.PlaceOrder(r.Context(), &kraken.OrderRequest{
		Strategy:   models.StrategyBotA,
		Pair:       pair,
		Side:       models.SideSell,
		Volume:     volume,
		Price:      price,
		Confidence: confidence,
	})
	if err != nil {
		s.logger.Warn("Sell request refused", zap.Error(err))
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	trade := &models.Trade{
		Strategy:   models.StrategyBotA,
		Pair:       pair,
		Side:       models.SideSell,
		Volume:     volume,
		EntryPrice: price,
		ExitPrice:  price,
		Confidence: confidence,
		OrderRef:   order.OrderID,
	}
	if err := s.store.RecordTrade(trade); err != nil {
		s.logger.Error("Failed to save sell trade record", zap.Error(err))
	}

	s.writeJSON(w, order)
}

func (s *APIServer) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}
