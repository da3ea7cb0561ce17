package models

import "gorm.io/gorm"

// MonthlyReport is one row per calendar month for the donation strategy.
// Donation is 50% of the positive monthly delta, zero otherwise.
type MonthlyReport struct {
	gorm.Model
	Month        string  `json:"month" gorm:"uniqueIndex"` // "2026-08"
	StartBalance float64 `json:"start_balance"`
	EndBalance   float64 `json:"end_balance"`
	Donation     float64 `json:"donation"`
}
