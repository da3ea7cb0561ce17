package bot

import (
	"context"
	"fmt"
	"time"

	"charity-trade-bot-go/internal/metrics"
	"charity-trade-bot-go/internal/models"
	"go.uber.org/zap"
)

// BotA is the aggressive cycling strategy. It trades a fraction of its
// virtual balance whenever confidence is high enough; when the balance
// reaches the cycle target, the profit above the starting balance is
// transferred to Bot B and a new, larger target is set.
type BotA struct{}

func (s *BotA) Name() string {
	return models.StrategyBotA
}

func (s *BotA) Initialize(sc StrategyContext) error {
	state, err := sc.Store.CurrentBotState()
	if err != nil {
		return fmt.Errorf("could not load bot state: %w", err)
	}
	sc.Logger.Info("BotA initialized",
		zap.Float64("balance", state.BotABalance),
		zap.Int("cycle", state.BotACycle),
		zap.Float64("cycle_target", state.BotACycleTarget),
	)
	return nil
}

func (s *BotA) Tick(ctx context.Context, sc StrategyContext) error {
	l := sc.Logger.With(zap.String("strategy", s.Name()))

	confidence := sc.Sentiment.Confidence(ctx)
	if confidence < sc.Cfg.BotA.MinConfidence {
		l.Info("Skipping tick, confidence below threshold",
			zap.Float64("confidence", confidence),
			zap.Float64("threshold", sc.Cfg.BotA.MinConfidence),
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

	state, err := sc.Store.CurrentBotState()
	if err != nil {
		metrics.Ticks.WithLabelValues(s.Name(), "error").Inc()
		return fmt.Errorf("could not load bot state: %w", err)
	}

	tradeUSD := state.BotABalance * sc.Cfg.BotA.TradeFraction
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
		state.BotABalance += trade.RealizedPnL

		if state.BotABalance >= state.BotACycleTarget {
			transfer := state.BotABalance - sc.Cfg.BotA.StartBalance
			state.BotBBalance += transfer
			state.BotABalance = sc.Cfg.BotA.StartBalance
			state.BotACycle++
			state.BotACycleTarget *= sc.Cfg.BotA.TargetMultiplier
			now := time.Now()
			state.LastResetAt = &now

			l.Info("Cycle target reached, transferring profit to BotB",
				zap.Float64("transfer", transfer),
				zap.Int("cycle", state.BotACycle),
				zap.Float64("new_target", state.BotACycleTarget),
			)
		}
		return nil
	})
	if err != nil {
		metrics.Ticks.WithLabelValues(s.Name(), "error").Inc()
		return fmt.Errorf("could not update bot state: %w", err)
	}

	metrics.Ticks.WithLabelValues(s.Name(), "traded").Inc()
	return nil
}
