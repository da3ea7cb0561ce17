package bot

import (
	"context"
	"fmt"
	"time"

	"charity-trade-bot-go/internal/metrics"
	"charity-trade-bot-go/internal/models"
	"go.uber.org/zap"
)

// Jobs bundles the scheduled maintenance tasks that are not strategy ticks.
type Jobs struct {
	sc StrategyContext
}

// NewJobs creates the maintenance job set.
func NewJobs(sc StrategyContext) *Jobs {
	return &Jobs{sc: sc}
}

// EnsureStartSnapshot records the initial portfolio value once. Later P&L
// comparisons are made against this row.
func (j *Jobs) EnsureStartSnapshot(ctx context.Context) error {
	date := time.Now().Format("2006-01-02")
	if _, err := j.sc.Store.SnapshotFor(models.PeriodStart, date); err == nil {
		return nil
	}

	var existing []models.BalanceSnapshot
	if err := j.sc.Store.DB.Where("period = ?", models.PeriodStart).Limit(1).Find(&existing).Error; err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	return j.snapshot(ctx, models.PeriodStart)
}

// DailySnapshot records today's portfolio value.
func (j *Jobs) DailySnapshot(ctx context.Context) error {
	return j.snapshot(ctx, models.PeriodDaily)
}

// WeeklySnapshot records this week's portfolio value.
func (j *Jobs) WeeklySnapshot(ctx context.Context) error {
	return j.snapshot(ctx, models.PeriodWeekly)
}

// MonthlySnapshot records this month's portfolio value.
func (j *Jobs) MonthlySnapshot(ctx context.Context) error {
	return j.snapshot(ctx, models.PeriodMonthly)
}

func (j *Jobs) snapshot(ctx context.Context, period string) error {
	balances, err := j.sc.Gateway.GetPortfolioBalances(ctx)
	if err != nil {
		return fmt.Errorf("could not get portfolio balances: %w", err)
	}

	date := time.Now().Format("2006-01-02")
	if err := j.sc.Store.UpsertSnapshot(period, date, balances.TotalValueUSD); err != nil {
		return fmt.Errorf("could not record %s snapshot: %w", period, err)
	}

	metrics.EquityUSD.Set(balances.TotalValueUSD)
	j.sc.Logger.Info("Recorded balance snapshot",
		zap.String("period", period),
		zap.String("date", date),
		zap.Float64("total_value_usd", balances.TotalValueUSD),
	)
	return nil
}

// MonthlyReport closes out the previous calendar month for the donation
// strategy: donation is half of the positive balance delta, deducted from
// the virtual balance once recorded.
func (j *Jobs) MonthlyReport(ctx context.Context) error {
	now := time.Now()
	month := now.AddDate(0, -1, 0).Format("2006-01")

	state, err := j.sc.Store.CurrentBotState()
	if err != nil {
		return fmt.Errorf("could not load bot state: %w", err)
	}

	startBalance := j.sc.Cfg.BotB.StartBalance
	if reports, err := j.sc.Store.MonthlyReports(); err == nil && len(reports) > 0 {
		startBalance = reports[0].EndBalance
	}

	endBalance := state.BotBBalance
	donation := 0.0
	if delta := endBalance - startBalance; delta > 0 {
		donation = delta * j.sc.Cfg.BotB.DonationRate
	}

	report := &models.MonthlyReport{
		Month:        month,
		StartBalance: startBalance,
		EndBalance:   endBalance,
		Donation:     donation,
	}
	if err := j.sc.Store.SaveMonthlyReport(report); err != nil {
		return fmt.Errorf("could not save monthly report: %w", err)
	}

	if err := j.sc.Store.WithBotState(func(state *models.BotState) error {
		state.BotBBalance -= donation
		state.BotBTriggered = false
		return nil
	}); err != nil {
		return fmt.Errorf("could not deduct donation from balance: %w", err)
	}

	j.sc.Logger.Info("Recorded monthly donation report",
		zap.String("month", month),
		zap.Float64("start_balance", startBalance),
		zap.Float64("end_balance", endBalance),
		zap.Float64("donation", donation),
	)
	return nil
}

// TrimSentiment enforces the sentiment reading retention window.
func (j *Jobs) TrimSentiment(_ context.Context) error {
	deleted, err := j.sc.Store.TrimSentimentReadings(j.sc.Cfg.Sentiment.RetentionRows)
	if err != nil {
		return fmt.Errorf("could not trim sentiment readings: %w", err)
	}
	if deleted > 0 {
		j.sc.Logger.Info("Trimmed old sentiment readings", zap.Int64("deleted", deleted))
	}
	return nil
}
