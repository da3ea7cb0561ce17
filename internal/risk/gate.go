package risk

import (
	"context"
	"fmt"
	"time"

	"charity-trade-bot-go/internal/config"
	"charity-trade-bot-go/internal/database"
	"charity-trade-bot-go/internal/metrics"
	"charity-trade-bot-go/internal/models"
	"go.uber.org/zap"
)

// TradeRequest describes a trade to be validated before placement.
type TradeRequest struct {
	Strategy   string
	Pair       string
	Side       string
	Volume     float64
	Price      float64
	Confidence float64
}

// Notional is the USD-equivalent value of the request.
func (r TradeRequest) Notional() float64 {
	return r.Volume * r.Price
}

// Decision is the gate's verdict. Denials carry a human-readable reason;
// they are results, not errors.
type Decision struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason"`
}

// Gate validates trades against the configured ceilings. It holds no risk
// state of its own; history is queried from the store on every call.
type Gate struct {
	cfg    *config.Config
	store  *database.Store
	logger *zap.Logger

	now func() time.Time
}

// NewGate creates a new risk gate.
func NewGate(cfg *config.Config, store *database.Store, logger *zap.Logger) *Gate {
	return &Gate{cfg: cfg, store: store, logger: logger, now: time.Now}
}

// Validate runs the rule chain in order and short-circuits on the first
// failing check. Boundary values are inclusive: a trade landing exactly on
// a ceiling is approved.
func (g *Gate) Validate(ctx context.Context, req TradeRequest) Decision {
	decision := g.validate(req)
	if decision.Approved {
		g.logger.Info("Trade approved by risk gate",
			zap.String("strategy", req.Strategy),
			zap.String("pair", req.Pair),
			zap.String("side", req.Side),
			zap.Float64("notional", req.Notional()),
		)
	} else {
		g.logger.Warn("Trade denied by risk gate",
			zap.String("strategy", req.Strategy),
			zap.String("pair", req.Pair),
			zap.String("reason", decision.Reason),
		)
		metrics.RiskDenials.WithLabelValues(req.Strategy).Inc()
	}
	return decision
}

func (g *Gate) validate(req TradeRequest) Decision {
	notional := req.Notional()

	// 1. Kill switch.
	if g.cfg.Trading.EmergencyStop {
		return deny("emergency stop is active")
	}

	// 2. Real trading must be enabled.
	if !g.cfg.Trading.RealTradingEnabled {
		return deny("real trading is not enabled")
	}

	// 3. Notional ceiling.
	if notional > g.cfg.Risk.MaxPositionUSD {
		return deny(fmt.Sprintf("notional $%.2f exceeds position ceiling $%.2f",
			notional, g.cfg.Risk.MaxPositionUSD))
	}

	// 4. Daily loss ceiling: today's realized loss plus this trade's
	// worst-case loss (the full notional) must stay within the ceiling.
	lossCeiling := g.dailyLossCeiling(req.Strategy)
	todayLoss, err := g.store.TodayRealizedLoss(req.Strategy, g.now())
	if err != nil {
		return deny(fmt.Sprintf("could not compute daily loss: %v", err))
	}
	if todayLoss+notional > lossCeiling {
		return deny(fmt.Sprintf("daily loss $%.2f plus worst case $%.2f exceeds ceiling $%.2f",
			todayLoss, notional, lossCeiling))
	}

	// 5. Open-position ceiling, approximated by trades in the last hour.
	openCount, err := g.store.TradesSince(req.Strategy, g.now().Add(-time.Hour))
	if err != nil {
		return deny(fmt.Sprintf("could not count open positions: %v", err))
	}
	if openCount >= int64(g.maxPositions(req.Strategy)) {
		return deny(fmt.Sprintf("%d open positions at ceiling %d",
			openCount, g.maxPositions(req.Strategy)))
	}

	// 6. Strategy-specific rules.
	if d := g.strategyRules(req, notional); !d.Approved {
		return d
	}

	// 7. Global confidence floor.
	if req.Confidence < g.cfg.Risk.MinConfidence {
		return deny(fmt.Sprintf("confidence %.2f below global floor %.2f",
			req.Confidence, g.cfg.Risk.MinConfidence))
	}

	return Decision{Approved: true, Reason: "all checks passed"}
}

func (g *Gate) strategyRules(req TradeRequest, notional float64) Decision {
	switch req.Strategy {
	case models.StrategyBotB:
		// The conservative strategy needs stronger conviction and trades
		// a smaller fraction of the general ceiling.
		if req.Confidence < g.cfg.Risk.BotBMinConfidence {
			return deny(fmt.Sprintf("confidence %.2f below conservative threshold %.2f",
				req.Confidence, g.cfg.Risk.BotBMinConfidence))
		}
		ceiling := g.cfg.Risk.MaxPositionUSD * 0.5
		if notional > ceiling {
			return deny(fmt.Sprintf("notional $%.2f exceeds conservative ceiling $%.2f",
				notional, ceiling))
		}

	case models.StrategyBotA:
		ceiling := g.cfg.Risk.MaxPositionUSD
		if req.Pair == g.cfg.Trading.EthPair && req.Side == models.SideBuy {
			ceiling /= 2
		}
		if state, err := g.store.CurrentBotState(); err == nil &&
			state.BotACycleTarget > 0 && state.BotABalance < 0.8*state.BotACycleTarget {
			ceiling /= 2
		}
		if notional > ceiling {
			return deny(fmt.Sprintf("notional $%.2f exceeds aggressive ceiling $%.2f",
				notional, ceiling))
		}
	}

	return Decision{Approved: true}
}

func (g *Gate) dailyLossCeiling(strategy string) float64 {
	if strategy == models.StrategyBotB {
		return g.cfg.Risk.BotBDailyLossUSD
	}
	return g.cfg.Risk.BotADailyLossUSD
}

func (g *Gate) maxPositions(strategy string) int {
	if strategy == models.StrategyBotB {
		return g.cfg.Risk.BotBMaxPositions
	}
	return g.cfg.Risk.BotAMaxPositions
}

func deny(reason string) Decision {
	return Decision{Approved: false, Reason: reason}
}

// Status reports the gate's configured ceilings and today's loss per
// strategy, for the API surface.
type Status struct {
	EmergencyStop    bool    `json:"emergency_stop"`
	RealTrading      bool    `json:"real_trading"`
	MaxPositionUSD   float64 `json:"max_position_usd"`
	MinConfidence    float64 `json:"min_confidence"`
	BotATodayLossUSD float64 `json:"bot_a_today_loss_usd"`
	BotBTodayLossUSD float64 `json:"bot_b_today_loss_usd"`
}

// Status builds a snapshot of the gate's view of the account.
func (g *Gate) Status() Status {
	s := Status{
		EmergencyStop:  g.cfg.Trading.EmergencyStop,
		RealTrading:    g.cfg.Trading.RealTradingEnabled,
		MaxPositionUSD: g.cfg.Risk.MaxPositionUSD,
		MinConfidence:  g.cfg.Risk.MinConfidence,
	}
	now := g.now()
	if loss, err := g.store.TodayRealizedLoss(models.StrategyBotA, now); err == nil {
		s.BotATodayLossUSD = loss
	}
	if loss, err := g.store.TodayRealizedLoss(models.StrategyBotB, now); err == nil {
		s.BotBTodayLossUSD = loss
	}
	return s
}
