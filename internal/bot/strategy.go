package bot

import (
	"context"

	"charity-trade-bot-go/internal/config"
	"charity-trade-bot-go/internal/database"
	"charity-trade-bot-go/internal/kraken"
	"go.uber.org/zap"
)

// SentimentSource supplies the combined confidence score.
type SentimentSource interface {
	Confidence(ctx context.Context) float64
}

// StrategyContext provides a strategy with access to the core components.
type StrategyContext struct {
	Logger    *zap.Logger
	Cfg       *config.Config
	Gateway   kraken.ClientInterface
	Store     *database.Store
	Sentiment SentimentSource
}

// Strategy defines the interface for a trading strategy.
type Strategy interface {
	// Name returns the unique name of the strategy.
	Name() string

	// Initialize gives the strategy a chance to perform setup tasks.
	Initialize(sc StrategyContext) error

	// Tick runs one scheduled decision cycle.
	Tick(ctx context.Context, sc StrategyContext) error
}
