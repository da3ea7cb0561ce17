package models

import "gorm.io/gorm"

// SentimentReading records one sentiment computation: the raw fear & greed
// index, the bucketed trend score and the combined confidence score in [0,1].
// Rows are append-only; a retention job trims the oldest.
type SentimentReading struct {
	gorm.Model
	FearGreedIndex int     `json:"fear_greed_index"` // 0-100
	TrendScore     float64 `json:"trend_score"`      // -0.2, 0 or +0.2
	Confidence     float64 `json:"confidence"`       // 0-1
}
