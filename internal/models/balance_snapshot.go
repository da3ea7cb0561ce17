package models

import "gorm.io/gorm"

// Snapshot periods.
const (
	PeriodStart   = "start"
	PeriodDaily   = "daily"
	PeriodWeekly  = "weekly"
	PeriodMonthly = "monthly"
)

// BalanceSnapshot records the total portfolio value in USD for later P&L
// comparison. One row per (period, date) key; re-running a snapshot job on
// the same date updates the existing row instead of duplicating it.
type BalanceSnapshot struct {
	gorm.Model
	Period        string  `json:"period" gorm:"uniqueIndex:idx_period_date"`
	Date          string  `json:"date" gorm:"uniqueIndex:idx_period_date"` // "2026-08-31"
	TotalValueUSD float64 `json:"total_value_usd"`
}
