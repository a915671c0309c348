// Package scheduler запускает периодические задачи: одобрение начислений
// после срока удержания и расчёт прошедшего периода.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/mmeshcher/commission-engine/internal/clock"
	"github.com/mmeshcher/commission-engine/internal/metrics"
	"github.com/mmeshcher/commission-engine/internal/model"
	"github.com/mmeshcher/commission-engine/internal/settlement"
)

const (
	approvalSweepJob = "approval_sweep"
	settlementJob    = "monthly_settlement"
)

// Settler описывает операции расчёта, которые запускает планировщик.
type Settler interface {
	RunSettlement(ctx context.Context, period model.Period) (settlement.Result, error)
	ApproveAgedCommissions(ctx context.Context) (int64, error)
}

// Options задаёт расписание задач.
type Options struct {
	SweepInterval  time.Duration
	SettlementCron string
}

// Manager управляет задачами планировщика.
type Manager struct {
	scheduler gocron.Scheduler
	settler   Settler
	opts      Options
	clock     clock.Clock
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// NewManager создаёт планировщик в часовом поясе UTC.
func NewManager(settler Settler, opts Options, clk clock.Clock, logger *zap.Logger, m *metrics.Metrics) (*Manager, error) {
	s, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	return &Manager{
		scheduler: s,
		settler:   settler,
		opts:      opts,
		clock:     clk,
		logger:    logger.Named("scheduler"),
		metrics:   m,
	}, nil
}

// RegisterJobs регистрирует задачи. ctx передаётся в каждый запуск;
// после его отмены задачи завершаются досрочно.
func (m *Manager) RegisterJobs(ctx context.Context) error {
	if m.opts.SweepInterval > 0 {
		_, err := m.scheduler.NewJob(
			gocron.DurationJob(m.opts.SweepInterval),
			gocron.NewTask(func() { _ = m.runSweep(ctx) }),
			gocron.WithName(approvalSweepJob),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return fmt.Errorf("register %s: %w", approvalSweepJob, err)
		}
	}

	if m.opts.SettlementCron != "" {
		_, err := m.scheduler.NewJob(
			gocron.CronJob(m.opts.SettlementCron, false),
			gocron.NewTask(func() { _ = m.runSettlement(ctx) }),
			gocron.WithName(settlementJob),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return fmt.Errorf("register %s: %w", settlementJob, err)
		}
	}

	return nil
}

// Start запускает планировщик.
func (m *Manager) Start() {
	m.scheduler.Start()
	m.logger.Info("scheduler started",
		zap.Duration("sweep_interval", m.opts.SweepInterval),
		zap.String("settlement_cron", m.opts.SettlementCron),
	)
}

// Stop останавливает планировщик и ждёт завершения выполняющихся задач.
func (m *Manager) Stop() error {
	if err := m.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("shutdown scheduler: %w", err)
	}
	m.logger.Info("scheduler stopped")
	return nil
}

func (m *Manager) runSweep(ctx context.Context) error {
	start := time.Now()
	n, err := m.settler.ApproveAgedCommissions(ctx)
	m.metrics.ObserveJob(approvalSweepJob, time.Since(start), err)
	if err != nil {
		m.logger.Error("approval sweep failed", zap.Error(err))
		return err
	}
	m.logger.Debug("approval sweep finished", zap.Int64("approved", n))
	return nil
}

// runSettlement рассчитывает период, предшествующий текущему.
func (m *Manager) runSettlement(ctx context.Context) error {
	period := model.PeriodOf(m.clock.Now()).Previous()

	start := time.Now()
	res, err := m.settler.RunSettlement(ctx, period)
	m.metrics.ObserveJob(settlementJob, time.Since(start), err)
	if err != nil {
		m.logger.Error("scheduled settlement failed", zap.Stringer("period", period), zap.Error(err))
		return err
	}

	if len(res.FailedSellerIDs) > 0 || len(res.Conflicts) > 0 {
		m.logger.Warn("scheduled settlement needs attention",
			zap.Stringer("period", period),
			zap.Strings("failed_sellers", res.FailedSellerIDs),
			zap.Strings("conflicts", res.Conflicts),
		)
	}
	return nil
}
