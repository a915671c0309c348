// Package main запускает HTTP-сервер и планировщик движка начислений.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/commission-engine/internal/bonus"
	"github.com/mmeshcher/commission-engine/internal/clock"
	"github.com/mmeshcher/commission-engine/internal/commission"
	"github.com/mmeshcher/commission-engine/internal/config"
	"github.com/mmeshcher/commission-engine/internal/handler"
	"github.com/mmeshcher/commission-engine/internal/metrics"
	"github.com/mmeshcher/commission-engine/internal/middleware"
	"github.com/mmeshcher/commission-engine/internal/points"
	"github.com/mmeshcher/commission-engine/internal/repository"
	"github.com/mmeshcher/commission-engine/internal/scheduler"
	"github.com/mmeshcher/commission-engine/internal/settlement"
)

func main() {
	cfg, err := config.Parse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger initialization error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	sugar := logger.Sugar()

	store, err := newStore(cfg, logger)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer store.Close()

	clk := clock.Real{}
	m := metrics.New(prometheus.DefaultRegisterer)

	ledger := points.NewLedger(store, points.DefaultLadder, clk, logger, m)
	processor := commission.NewProcessor(store, ledger, clk, logger, m)
	calc := bonus.NewCalculator(bonus.Overflow{
		ThresholdCents: cfg.TopSellerThresholdCents,
		StepCents:      cfg.OverflowStepCents,
		StepBonusCents: cfg.OverflowStepBonusCents,
	})
	job := settlement.NewJob(store, calc, clk, logger, m)

	h := handler.NewHandler(processor, job, ledger, logger, handler.Options{
		Webhook:      middleware.NewWebhookSignature(cfg.WebhookSecret),
		Control:      middleware.NewControlAuth(cfg.ControlToken),
		BaseCurrency: cfg.BaseCurrency,
		Gatherer:     prometheus.DefaultGatherer,
	})

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched, err := scheduler.NewManager(job, scheduler.Options{
		SweepInterval:  cfg.ApprovalSweepInterval,
		SettlementCron: cfg.SettlementSchedule,
	}, clk, logger, m)
	if err != nil {
		sugar.Fatalw("scheduler initialization error", "error", err.Error())
	}

	g, ctx := errgroup.WithContext(ctx)

	if err := sched.RegisterJobs(ctx); err != nil {
		sugar.Fatalw("scheduler registration error", "error", err.Error())
	}

	// Запуск планировщика периодических задач
	g.Go(func() error {
		sched.Start()
		<-ctx.Done()
		return sched.Stop()
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting commission engine", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

// newStore подключается к Postgres или, если DSN не задан, создаёт хранилище
// в памяти с настройками по умолчанию для локального запуска.
func newStore(cfg *config.Config, logger *zap.Logger) (repository.Store, error) {
	if cfg.DatabaseURI != "" {
		repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
		if err != nil {
			return nil, err
		}
		return repo, nil
	}

	logger.Warn("DATABASE_URI is empty, using in-memory store; data is lost on restart")
	mem := repository.NewMemoryRepository()
	mem.SetSettings(repository.DefaultSettings())
	mem.SetBonusTiers(repository.DefaultBonusTiers())
	return mem, nil
}
