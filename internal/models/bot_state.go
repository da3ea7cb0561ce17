package models

import (
	"time"

	"gorm.io/gorm"
)

// BotState holds the current state of both strategies. There is exactly one
// live row; the most recently created row is the current one and it is
// mutated in place by strategy ticks.
type BotState struct {
	gorm.Model
	BotABalance     float64    `json:"bot_a_balance"`
	BotACycle       int        `json:"bot_a_cycle"`
	BotACycleTarget float64    `json:"bot_a_cycle_target"`
	BotBBalance     float64    `json:"bot_b_balance"`
	BotBEnabled     bool       `json:"bot_b_enabled"`
	BotBTriggered   bool       `json:"bot_b_triggered"`
	LastResetAt     *time.Time `json:"last_reset_at"`
}
