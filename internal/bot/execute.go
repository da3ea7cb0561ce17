package bot

import (
	"context"
	"fmt"

	"charity-trade-bot-go/internal/kraken"
	"charity-trade-bot-go/internal/metrics"
	"charity-trade-bot-go/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// executeTrade places (or in mock mode simulates) a round-trip market trade
// and persists the resulting trade row. Returns the realized P&L.
//
// A simulated round trip fills the entry at the current price and models the
// exit from the decision's conviction: the spread above fees scales with how
// far confidence sits from neutral, so strong readings book gains and weak
// ones book the fee drag.
func executeTrade(ctx context.Context, sc StrategyContext, strategy, pair, side string,
	volume, price, confidence float64) (*models.Trade, error) {

	l := sc.Logger.With(
		zap.String("strategy", strategy),
		zap.String("pair", pair),
		zap.String("side", side),
		zap.Float64("volume", volume),
		zap.Float64("price", price),
	)

	notional := volume * price
	trade := &models.Trade{
		Strategy:   strategy,
		Pair:       pair,
		Side:       side,
		Volume:     volume,
		EntryPrice: price,
		Confidence: confidence,
	}

	if sc.Cfg.Trading.MockMode {
		edge := (confidence - 0.5) * 0.02
		exit := price * (1 + edge)
		fees := notional * sc.Cfg.Trading.FeeRate * 2

		trade.ExitPrice = exit
		trade.RealizedPnL = volume*(exit-price) - fees
		trade.OrderRef = "mock-" + uuid.NewString()
		trade.IsSimulation = true

		l.Info("Simulated trade",
			zap.Float64("exit_price", exit),
			zap.Float64("realized_pnl", trade.RealizedPnL),
		)
		metrics.Orders.WithLabelValues(strategy, side, "mock").Inc()
	} else {
		result, err := sc.Gateway.PlaceOrder(ctx, &kraken.OrderRequest{
			Strategy:   strategy,
			Pair:       pair,
			Side:       side,
			Volume:     volume,
			Price:      price,
			Confidence: confidence,
		})
		if err != nil {
			return nil, fmt.Errorf("order placement failed: %w", err)
		}

		trade.ExitPrice = price
		trade.OrderRef = result.OrderID
		l.Info("Live order placed", zap.String("order_id", result.OrderID))
		metrics.Orders.WithLabelValues(strategy, side, "live").Inc()
	}

	if err := sc.Store.RecordTrade(trade); err != nil {
		l.Error("Failed to save trade record", zap.Error(err))
		return trade, err
	}
	return trade, nil
}
