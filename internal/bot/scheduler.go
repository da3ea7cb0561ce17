package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"charity-trade-bot-go/internal/metrics"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Trigger outcomes surfaced to the manual trigger endpoint.
var (
	ErrUnknownStrategy = errors.New("unknown strategy")
	ErrTickRunning     = errors.New("previous tick is still running")
)

// Scheduler runs the strategy ticks and maintenance jobs on cron schedules.
// Each strategy is single-flight: a tick that fires while the previous one
// is still running is skipped, never run concurrently or queued.
type Scheduler struct {
	cron *cron.Cron
	sc   StrategyContext
	jobs *Jobs

	runLocks   map[string]*sync.Mutex
	strategies map[string]Strategy
}

// NewScheduler creates a new Scheduler.
func NewScheduler(sc StrategyContext, jobs *Jobs) *Scheduler {
	return &Scheduler{
		cron:       cron.New(cron.WithSeconds()),
		sc:         sc,
		jobs:       jobs,
		runLocks:   make(map[string]*sync.Mutex),
		strategies: make(map[string]Strategy),
	}
}

// Register wires the strategies and maintenance jobs onto their schedules.
func (s *Scheduler) Register(ctx context.Context, strategies []Strategy) error {
	sched := s.sc.Cfg.Schedule

	crons := []struct {
		expr string
		name string
		run  func()
	}{}

	for _, strat := range strategies {
		if err := strat.Initialize(s.sc); err != nil {
			return fmt.Errorf("could not initialize %s: %w", strat.Name(), err)
		}
		s.runLocks[strat.Name()] = &sync.Mutex{}
		s.strategies[strat.Name()] = strat

		expr := sched.BotACron
		if strat.Name() == (&BotB{}).Name() {
			expr = sched.BotBCron
		}
		st := strat
		crons = append(crons, struct {
			expr string
			name string
			run  func()
		}{expr, st.Name(), func() { s.runTick(ctx, st) }})
	}

	maintenance := []struct {
		expr string
		name string
		run  func(context.Context) error
	}{
		{sched.DailySnapshot, "daily snapshot", s.jobs.DailySnapshot},
		{sched.WeeklySnapshot, "weekly snapshot", s.jobs.WeeklySnapshot},
		{sched.MonthlySnapshot, "monthly snapshot", s.jobs.MonthlySnapshot},
		{sched.MonthlyReport, "monthly report", s.jobs.MonthlyReport},
		{sched.SentimentTrim, "sentiment trim", s.jobs.TrimSentiment},
	}
	for _, m := range maintenance {
		job := m
		crons = append(crons, struct {
			expr string
			name string
			run  func()
		}{job.expr, job.name, func() {
			if err := job.run(ctx); err != nil {
				s.sc.Logger.Error("Maintenance job failed",
					zap.String("job", job.name), zap.Error(err))
			}
		}})
	}

	for _, c := range crons {
		if _, err := s.cron.AddFunc(c.expr, c.run); err != nil {
			return fmt.Errorf("could not register %s (%q): %w", c.name, c.expr, err)
		}
	}

	return nil
}

// tick executes one strategy tick under its single-flight lock. Returns
// ErrTickRunning without running when the previous tick still holds it.
func (s *Scheduler) tick(ctx context.Context, strat Strategy) error {
	lock := s.runLocks[strat.Name()]
	if !lock.TryLock() {
		metrics.Ticks.WithLabelValues(strat.Name(), "skipped").Inc()
		return ErrTickRunning
	}
	defer lock.Unlock()

	return strat.Tick(ctx, s.sc)
}

// runTick is the scheduled entry point; outcomes are logged, never returned.
func (s *Scheduler) runTick(ctx context.Context, strat Strategy) {
	switch err := s.tick(ctx, strat); {
	case errors.Is(err, ErrTickRunning):
		s.sc.Logger.Warn("Previous tick still running, skipping",
			zap.String("strategy", strat.Name()))
	case err != nil:
		s.sc.Logger.Error("Strategy tick failed",
			zap.String("strategy", strat.Name()), zap.Error(err))
	}
}

// Trigger runs one tick of the named strategy immediately, under the same
// single-flight lock as the scheduled ticks. A skipped or failed tick is
// reported to the caller, not swallowed.
func (s *Scheduler) Trigger(ctx context.Context, name string) error {
	strat, ok := s.strategies[name]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownStrategy, name)
	}
	return s.tick(ctx, strat)
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.sc.Logger.Info("Scheduler started")
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.sc.Logger.Info("Scheduler stopped")
}
