package database

import (
	"errors"
	"fmt"
	"time"

	"charity-trade-bot-go/internal/config"
	"charity-trade-bot-go/internal/models"
	"gorm.io/gorm"
)

// SchemaVersion records which migrations have been applied.
type SchemaVersion struct {
	Version   int `gorm:"primaryKey"`
	AppliedAt time.Time
}

type migration struct {
	version int
	name    string
	run     func(tx *gorm.DB, cfg *config.Config) error
}

// migrations is the ordered, idempotent migration list. New steps are
// appended with the next version number; applied versions are never edited.
var migrations = []migration{
	{
		version: 1,
		name:    "create core tables",
		run: func(tx *gorm.DB, _ *config.Config) error {
			return tx.AutoMigrate(
				&models.BotState{},
				&models.Trade{},
				&models.SentimentReading{},
				&models.MonthlyReport{},
				&models.BalanceSnapshot{},
			)
		},
	},
	{
		version: 2,
		name:    "seed initial bot state",
		run: func(tx *gorm.DB, cfg *config.Config) error {
			var state models.BotState
			err := tx.Order("created_at desc").First(&state).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				state = models.BotState{
					BotABalance:     cfg.BotA.StartBalance,
					BotACycleTarget: cfg.BotA.CycleTarget,
					BotBBalance:     cfg.BotB.StartBalance,
					BotBEnabled:     true,
				}
				return tx.Create(&state).Error
			}
			return err
		},
	},
}

// migrate applies pending migrations in order, recording each applied
// version.
func (s *Store) migrate(cfg *config.Config) error {
	if err := s.DB.AutoMigrate(&SchemaVersion{}); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	for _, m := range migrations {
		var applied SchemaVersion
		err := s.DB.First(&applied, "version = ?", m.version).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to check schema version %d: %w", m.version, err)
		}

		if err := s.DB.Transaction(func(tx *gorm.DB) error {
			if err := m.run(tx, cfg); err != nil {
				return err
			}
			return tx.Create(&SchemaVersion{Version: m.version, AppliedAt: time.Now()}).Error
		}); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.name, err)
		}
	}

	return nil
}
