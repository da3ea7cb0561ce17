package models

import "gorm.io/gorm"

// Trade sides as stored in trade rows.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Strategy identifiers.
const (
	StrategyBotA = "bot_a"
	StrategyBotB = "bot_b"
)

// Trade represents one executed or simulated order. Rows are append-only;
// they are never mutated or deleted.
type Trade struct {
	gorm.Model
	Strategy     string  `json:"strategy" gorm:"index"`
	Pair         string  `json:"pair"`
	Side         string  `json:"side"` // "buy" or "sell"
	Volume       float64 `json:"volume"`
	EntryPrice   float64 `json:"entry_price"`
	ExitPrice    float64 `json:"exit_price"`
	RealizedPnL  float64 `json:"realized_pnl" gorm:"column:realized_pnl"`
	Confidence   float64 `json:"confidence"`
	OrderRef     string  `json:"order_ref"`
	IsSimulation bool    `json:"is_simulation"`
}
