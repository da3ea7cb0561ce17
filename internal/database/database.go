package database

import (
	"fmt"
	"sync"
	"time"

	"charity-trade-bot-go/internal/config"
	"charity-trade-bot-go/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Store wraps the database handle with the query helpers the strategies and
// the risk gate need. BotState mutations are serialized through a process
// mutex so overlapping ticks cannot interleave read-modify-write cycles.
type Store struct {
	DB *gorm.DB

	stateMu sync.Mutex
}

// NewStore opens the database, applies pending migrations and seeds the
// initial bot state row.
func NewStore(cfg *config.Config) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(cfg.Database.DSN), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{DB: db}
	if err := s.migrate(cfg); err != nil {
		return nil, err
	}

	return s, nil
}

// WithBotState loads the current bot state row, applies fn to it and saves
// the result inside one transaction. All state mutation goes through here.
func (s *Store) WithBotState(fn func(state *models.BotState) error) error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	return s.DB.Transaction(func(tx *gorm.DB) error {
		var state models.BotState
		if err := tx.Order("created_at desc").First(&state).Error; err != nil {
			return fmt.Errorf("could not load bot state: %w", err)
		}
		if err := fn(&state); err != nil {
			return err
		}
		return tx.Save(&state).Error
	})
}

// CurrentBotState returns the live bot state row.
func (s *Store) CurrentBotState() (models.BotState, error) {
	var state models.BotState
	err := s.DB.Order("created_at desc").First(&state).Error
	return state, err
}

// RecordTrade appends a trade row.
func (s *Store) RecordTrade(trade *models.Trade) error {
	return s.DB.Create(trade).Error
}

// RecentTrades returns the most recent trades, newest first.
func (s *Store) RecentTrades(limit int) ([]models.Trade, error) {
	var trades []models.Trade
	err := s.DB.Order("created_at desc").Limit(limit).Find(&trades).Error
	return trades, err
}

// TodayRealizedLoss sums the negative realized P&L of the strategy's trades
// for the current calendar date and returns it as a positive number.
func (s *Store) TodayRealizedLoss(strategy string, now time.Time) (float64, error) {
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var total *float64
	err := s.DB.Model(&models.Trade{}).
		Where("strategy = ? AND realized_pnl < 0 AND created_at >= ?", strategy, startOfDay).
		Select("SUM(realized_pnl)").
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("could not sum daily loss: %w", err)
	}
	if total == nil {
		return 0, nil
	}
	return -*total, nil
}

// TradesSince counts the strategy's trades newer than the cutoff. The gate
// uses trades in the last hour as a proxy for open positions.
func (s *Store) TradesSince(strategy string, cutoff time.Time) (int64, error) {
	var count int64
	err := s.DB.Model(&models.Trade{}).
		Where("strategy = ? AND created_at >= ?", strategy, cutoff).
		Count(&count).Error
	return count, err
}

// RecordSentiment appends a sentiment reading.
func (s *Store) RecordSentiment(r *models.SentimentReading) error {
	return s.DB.Create(r).Error
}

// LatestSentiment returns the most recent sentiment reading.
func (s *Store) LatestSentiment() (models.SentimentReading, error) {
	var reading models.SentimentReading
	err := s.DB.Order("created_at desc").First(&reading).Error
	return reading, err
}

// TrimSentimentReadings deletes all but the most recent keep rows.
func (s *Store) TrimSentimentReadings(keep int) (int64, error) {
	res := s.DB.Exec(`DELETE FROM sentiment_readings WHERE id NOT IN
		(SELECT id FROM sentiment_readings ORDER BY created_at DESC LIMIT ?)`, keep)
	return res.RowsAffected, res.Error
}

// UpsertSnapshot records the portfolio value for a (period, date) key,
// updating the existing row if the job already ran that day.
func (s *Store) UpsertSnapshot(period, date string, totalValueUSD float64) error {
	var snap models.BalanceSnapshot
	err := s.DB.Where("period = ? AND date = ?", period, date).First(&snap).Error
	if err == gorm.ErrRecordNotFound {
		snap = models.BalanceSnapshot{Period: period, Date: date, TotalValueUSD: totalValueUSD}
		return s.DB.Create(&snap).Error
	}
	if err != nil {
		return err
	}
	return s.DB.Model(&snap).Update("total_value_usd", totalValueUSD).Error
}

// SnapshotFor returns the snapshot for a (period, date) key.
func (s *Store) SnapshotFor(period, date string) (models.BalanceSnapshot, error) {
	var snap models.BalanceSnapshot
	err := s.DB.Where("period = ? AND date = ?", period, date).First(&snap).Error
	return snap, err
}

// SaveMonthlyReport records the donation report for a month, one row per
// month key.
func (s *Store) SaveMonthlyReport(report *models.MonthlyReport) error {
	var existing models.MonthlyReport
	err := s.DB.Where("month = ?", report.Month).First(&existing).Error
	if err == gorm.ErrRecordNotFound {
		return s.DB.Create(report).Error
	}
	if err != nil {
		return err
	}
	existing.StartBalance = report.StartBalance
	existing.EndBalance = report.EndBalance
	existing.Donation = report.Donation
	return s.DB.Save(&existing).Error
}

// MonthlyReports returns all donation reports, newest first.
func (s *Store) MonthlyReports() ([]models.MonthlyReport, error) {
	var reports []models.MonthlyReport
	err := s.DB.Order("month desc").Find(&reports).Error
	return reports, err
}
