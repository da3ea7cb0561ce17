package bot

import (
	"context"
	"fmt"

	"charity-trade-bot-go/internal/metrics"
	"charity-trade-bot-go/internal/models"
	"go.uber.org/zap"
)

// BotB is the conservative donation strategy. It trades small fixed
// fractions of its virtual balance, only on strong confidence, and its
// monthly gains fund the donation report.
type BotB struct{}

func (s *BotB) Name() string {
	return models.StrategyBotB
}

func (s *BotB) Initialize(sc StrategyContext) error {
	state, err := sc.Store.CurrentBotState()
	if err != nil {
		return fmt.Errorf("could not load bot state: %w", err)
	}
	sc.Logger.Info("BotB initialized",
		zap.Float64("balance", state.BotBBalance),
		zap.Bool("enabled", state.BotBEnabled),
	)
	return nil
}

func (s *BotB) Tick(ctx context.Context, sc StrategyContext) error {
	l := sc.Logger.With(zap.String("strategy", s.Name()))

	state, err := sc.Store.CurrentBotState()
	if err != nil {
		metrics.Ticks.WithLabelValues(s.Name(), "error").Inc()
		return fmt.Errorf("could not load bot state: %w", err)
	}
	if !state.BotBEnabled {
		l.Info("Skipping tick, strategy disabled")
		metrics.Ticks.WithLabelValues(s.Name(), "skipped").Inc()
		return nil
	}

	confidence := sc.Sentiment.Confidence(ctx)
	if confidence < sc.Cfg.BotB.MinConfidence {
		l.Info("Skipping tick, confidence below conservative threshold",
			zap.Float64("confidence", confidence),
			zap.Float64("threshold", sc.Cfg.BotB.MinConfidence),
		)
		metrics.Ticks.WithLabelValues(s.Name(), "skipped").Inc()
		return nil
	}

	pair := sc.Cfg.Trading.Pair
	tickers, err := sc.Gateway.GetTicker(ctx, []string{pair})
	if err != nil {
		metrics.Ticks.WithLabelValues(s.Name(), "error").Inc()
		return fmt.Errorf("could not get ticker: %w", err)
	}
	price := tickers[pair].Price
	if price <= 0 {
		metrics.Ticks.WithLabelValues(s.Name(), "error").Inc()
		return fmt.Errorf("invalid price %.2f for %s", price, pair)
	}

	tradeUSD := state.BotBBalance * sc.Cfg.BotB.TradeFraction
	volume := tradeUSD / price
	if volume < sc.Cfg.Trading.MinOrderVolume {
		l.Info("Skipping tick, balance too small to trade",
			zap.Float64("trade_usd", tradeUSD),
			zap.Float64("volume", volume),
		)
		metrics.Ticks.WithLabelValues(s.Name(), "skipped").Inc()
		return nil
	}

	trade, err := executeTrade(ctx, sc, s.Name(), pair, models.SideBuy, volume, price, confidence)
	if err != nil {
		metrics.Ticks.WithLabelValues(s.Name(), "error").Inc()
		return err
	}

	err = sc.Store.WithBotState(func(state *models.BotState) error {
		state.BotBBalance += trade.RealizedPnL
		state.BotBTriggered = true
		return nil
	})
	if err != nil {
		metrics.Ticks.WithLabelValues(s.Name(), "error").Inc()
		return fmt.Errorf("could not update bot state: %w", err)
	}

	metrics.Ticks.WithLabelValues(s.Name(), "traded").Inc()
	return nil
}
