package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"charity-trade-bot-go/internal/bot"
	"charity-trade-bot-go/internal/config"
	"charity-trade-bot-go/internal/database"
	"charity-trade-bot-go/internal/kraken"
	"charity-trade-bot-go/internal/logger"
	"charity-trade-bot-go/internal/risk"
	"charity-trade-bot-go/internal/sentiment"
	"charity-trade-bot-go/internal/server"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// A .env file can supply credentials; its absence is fine.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("Configuration loaded",
		zap.Bool("mock_mode", cfg.Trading.MockMode),
		zap.Bool("real_trading", cfg.Trading.RealTradingEnabled),
	)

	store, err := database.NewStore(&cfg)
	if err != nil {
		log.Fatal("Failed to open database", zap.Error(err))
	}
	log.Info("Database opened and schema migrated.")

	gate := risk.NewGate(&cfg, store, log.Named("risk"))
	gateway := kraken.NewClient(&cfg, gate, log.Named("kraken"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := gateway.TestConnection(ctx); err != nil {
		// The read side keeps working without credentials; only order
		// placement needs them.
		log.Warn("Broker connection test failed", zap.Error(err))
	} else {
		log.Info("Broker connection verified.")
	}

	reader := sentiment.NewReader(&cfg, store, gateway, log.Named("sentiment"))

	sc := bot.StrategyContext{
		Logger:    log,
		Cfg:       &cfg,
		Gateway:   gateway,
		Store:     store,
		Sentiment: reader,
	}

	jobs := bot.NewJobs(sc)
	if err := jobs.EnsureStartSnapshot(ctx); err != nil {
		log.Warn("Could not record start snapshot", zap.Error(err))
	}

	scheduler := bot.NewScheduler(sc, jobs)
	if err := scheduler.Register(ctx, []bot.Strategy{&bot.BotA{}, &bot.BotB{}}); err != nil {
		log.Fatal("Failed to register strategies", zap.Error(err))
	}
	scheduler.Start()

	apiServer := server.NewAPIServer(&cfg, gateway, store, gate, scheduler, log)
	apiServer.Start()

	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
	<-sigchan
	log.Info("Shutdown signal received, gracefully shutting down...")
	cancel()

	scheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := apiServer.Stop(shutdownCtx); err != nil {
		log.Error("API server shutdown failed", zap.Error(err))
	}

	log.Info("Bot has been shut down.")
}
