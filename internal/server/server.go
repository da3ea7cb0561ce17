package server

import (
	"context"
	"fmt"
	"net/http"

	"charity-trade-bot-go/internal/bot"
	"charity-trade-bot-go/internal/config"
	"charity-trade-bot-go/internal/database"
	"charity-trade-bot-go/internal/kraken"
	"charity-trade-bot-go/internal/metrics"
	"charity-trade-bot-go/internal/risk"
	"go.uber.org/zap"
)

// APIServer exposes the bot's read-only data and manual trade triggers over
// HTTP. The dashboard consumes these endpoints; the UI itself lives
// elsewhere.
type APIServer struct {
	server    *http.Server
	logger    *zap.Logger
	cfg       *config.Config
	gateway   kraken.ClientInterface
	store     *database.Store
	gate      *risk.Gate
	scheduler *bot.Scheduler
}

// NewAPIServer creates a new APIServer.
func NewAPIServer(cfg *config.Config, gateway kraken.ClientInterface, store *database.Store,
	gate *risk.Gate, scheduler *bot.Scheduler, logger *zap.Logger) *APIServer {

	s := &APIServer{
		logger:    logger.Named("api-server"),
		cfg:       cfg,
		gateway:   gateway,
		store:     store,
		gate:      gate,
		scheduler: scheduler,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/api/status", s.statusHandler)
	mux.HandleFunc("/api/ticker", s.tickerHandler)
	mux.HandleFunc("/api/sentiment", s.sentimentHandler)
	mux.HandleFunc("/api/risk", s.riskHandler)
	mux.HandleFunc("/api/balances", s.balancesHandler)
	mux.HandleFunc("/api/trades", s.tradesHandler)
	mux.HandleFunc("/api/reports", s.reportsHandler)
	mux.HandleFunc("/api/trigger/", s.triggerHandler)
	mux.HandleFunc("/api/sell", s.sellHandler)
	mux.Handle("/metrics", metrics.Handler())

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: mux,
	}
	return s
}

// Start runs the HTTP server in a new goroutine.
func (s *APIServer) Start() {
	s.logger.Info("Starting API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Error("API server failed", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *APIServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server...")
	return s.server.Shutdown(ctx)
}
