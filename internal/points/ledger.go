// Package points ведёт журнал баллов лояльности и фиксирует достижение ступеней.
package points

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mmeshcher/commission-engine/internal/clock"
	"github.com/mmeshcher/commission-engine/internal/metrics"
	"github.com/mmeshcher/commission-engine/internal/model"
	"github.com/mmeshcher/commission-engine/internal/repository"
)

// ErrNonPositivePoints возвращается при попытке начислить ноль или меньше баллов.
var ErrNonPositivePoints = errors.New("points must be positive")

// Award описывает начисление баллов продавцу.
type Award struct {
	SellerID    string
	OrderID     *string
	Points      int64
	Source      model.PointsSource
	Description string
}

// Result содержит итог начисления баллов.
type Result struct {
	// Applied равен false, если запись по этому заказу уже была в журнале.
	Applied    bool
	Balance    int64
	Milestones []model.RewardMilestone
}

// Ledger начисляет баллы: запись журнала, увеличение баланса и проверка
// ступеней выполняются в одной транзакции.
type Ledger struct {
	store   repository.Store
	ladder  Ladder
	clock   clock.Clock
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewLedger создаёт журнал баллов.
func NewLedger(store repository.Store, ladder Ladder, clk clock.Clock, logger *zap.Logger, m *metrics.Metrics) *Ledger {
	return &Ledger{
		store:   store,
		ladder:  ladder,
		clock:   clk,
		logger:  logger.Named("points"),
		metrics: m,
	}
}

// AwardPoints выполняет начисление в транзакции вызывающего.
// Повторная запись по тому же заказу и источнику не меняет баланс.
func (l *Ledger) AwardPoints(ctx context.Context, tx repository.Tx, a Award) (Result, error) {
	if a.Points <= 0 {
		return Result{}, ErrNonPositivePoints
	}

	now := l.clock.Now()
	entry := &model.RewardPointsLedgerEntry{
		ID:          model.NewID(),
		SellerID:    a.SellerID,
		OrderID:     a.OrderID,
		Points:      a.Points,
		Source:      a.Source,
		Description: a.Description,
		CreatedAt:   now,
	}
	if err := tx.InsertLedgerEntry(ctx, entry); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return Result{Applied: false}, nil
		}
		return Result{}, err
	}

	after, err := tx.IncrementBalance(ctx, a.SellerID, a.Points)
	if err != nil {
		return Result{}, err
	}
	before := after - a.Points

	res := Result{Applied: true, Balance: after}
	for _, tier := range l.ladder.Crossed(before, after) {
		ms := model.RewardMilestone{
			ID:               model.NewID(),
			SellerID:         a.SellerID,
			Tier:             tier.Name,
			PointsAtCrossing: after,
			CreatedAt:        now,
		}
		if err := tx.InsertMilestone(ctx, &ms); err != nil {
			if errors.Is(err, repository.ErrAlreadyExists) {
				continue
			}
			return Result{}, err
		}
		res.Milestones = append(res.Milestones, ms)
	}

	return res, nil
}

// Award начисляет баллы в отдельной транзакции.
func (l *Ledger) Award(ctx context.Context, a Award) (Result, error) {
	var res Result
	err := l.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		res, err = l.AwardPoints(ctx, tx, a)
		return err
	})
	if err != nil {
		return Result{}, fmt.Errorf("award points: %w", err)
	}

	l.Record(a.SellerID, a.Points, res)
	return res, nil
}

// Record учитывает применённое начисление в метриках и журнале. Вызывается
// после фиксации транзакции.
func (l *Ledger) Record(sellerID string, points int64, res Result) {
	if !res.Applied {
		return
	}
	l.metrics.PointsAwarded(points)
	for _, ms := range res.Milestones {
		l.metrics.MilestoneReached(ms.Tier)
		l.logger.Info("milestone reached",
			zap.String("seller_id", sellerID),
			zap.String("tier", ms.Tier),
			zap.Int64("points", ms.PointsAtCrossing),
		)
	}
}

// Summary возвращает баланс продавца и достигнутые ступени.
func (l *Ledger) Summary(ctx context.Context, sellerID string) (*model.PointsSummary, error) {
	summary := &model.PointsSummary{SellerID: sellerID}
	err := l.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		total, err := tx.GetBalance(ctx, sellerID)
		if err != nil {
			return err
		}
		milestones, err := tx.ListMilestones(ctx, sellerID)
		if err != nil {
			return err
		}
		summary.TotalPoints = total
		summary.Milestones = milestones
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("points summary: %w", err)
	}
	return summary, nil
}
