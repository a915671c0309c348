// Package settlement подводит итоги расчётного периода: бонусы, выплаты
// и одобрение начислений после срока удержания.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/commission-engine/internal/bonus"
	"github.com/mmeshcher/commission-engine/internal/clock"
	"github.com/mmeshcher/commission-engine/internal/metrics"
	"github.com/mmeshcher/commission-engine/internal/model"
	"github.com/mmeshcher/commission-engine/internal/repository"
)

var (
	// ErrConfigurationMissing возвращается, если нет настроек или таблица
	// ступеней некорректна. Расчёт не выполняется.
	ErrConfigurationMissing = errors.New("settlement configuration missing")
	// ErrAggregationFailure описывает сбой расчёта отдельного продавца.
	ErrAggregationFailure = errors.New("settlement aggregation failure")
	// ErrPaidPayoutDrift возвращается, если пересчёт оплаченной выплаты даёт
	// другие суммы. Требует ручной сверки.
	ErrPaidPayoutDrift = errors.New("paid payout drift")
)

// Result содержит итог расчёта периода.
type Result struct {
	Period           model.Period `json:"period"`
	SellersProcessed int          `json:"sellersProcessed"`
	FailedSellerIDs  []string     `json:"failedSellerIds"`
	Conflicts        []string     `json:"conflicts"`
}

// Job выполняет расчёт периода. Повторный запуск для того же периода
// не меняет уже записанные данные.
type Job struct {
	store   repository.Store
	calc    *bonus.Calculator
	clock   clock.Clock
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewJob создаёт задачу расчёта.
func NewJob(store repository.Store, calc *bonus.Calculator, clk clock.Clock, logger *zap.Logger, m *metrics.Metrics) *Job {
	return &Job{
		store:   store,
		calc:    calc,
		clock:   clk,
		logger:  logger.Named("settlement"),
		metrics: m,
	}
}

// sellerPlan содержит бонусы продавца за период, которые нужно записать.
type sellerPlan struct {
	monthly bonus.Result
	// bonuses содержит итоговую сумму по каждому виду бонуса; ноль означает
	// отсутствие строки.
	bonuses  map[model.BonusType]int64
	metadata map[model.BonusType]map[string]any
	// keptCents содержит сумму записанных бонусов, которые не пересчитываются.
	keptCents int64
}

func (sp sellerPlan) bonusTotal() int64 {
	total := sp.keptCents
	for _, v := range sp.bonuses {
		total += v
	}
	return total
}

// RunSettlement рассчитывает бонусы и выплаты всех продавцов с начислениями
// за период. Каждый продавец обрабатывается в своей транзакции; сбой одного
// не останавливает расчёт остальных.
func (j *Job) RunSettlement(ctx context.Context, period model.Period) (Result, error) {
	if period.IsZero() {
		return Result{}, model.ErrInvalidPeriod
	}

	settings, err := j.store.GetSettings(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrSettingsNotFound) {
			return Result{}, fmt.Errorf("%w: %w", ErrConfigurationMissing, err)
		}
		return Result{}, fmt.Errorf("load settings: %w", err)
	}

	tiers, err := j.store.GetBonusTiers(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load bonus tiers: %w", err)
	}
	if err := bonus.ValidateTiers(tiers); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrConfigurationMissing, err)
	}

	var totals []model.SellerTotal
	err = j.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		totals, err = tx.ListApprovedTotals(ctx, period)
		return err
	})
	if err != nil {
		return Result{}, fmt.Errorf("%w: list totals: %w", ErrAggregationFailure, err)
	}

	log := j.logger.With(zap.Stringer("period", period))
	res := Result{Period: period}

	for _, st := range totals {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		err := j.settleSeller(ctx, period, st, settings, tiers)
		switch {
		case err == nil:
			res.SellersProcessed++
		case errors.Is(err, ErrPaidPayoutDrift):
			res.Conflicts = append(res.Conflicts, st.SellerID)
			j.metrics.PaidPayoutDrift()
			log.Error("paid payout differs from recomputation",
				zap.String("seller_id", st.SellerID),
				zap.Error(err),
			)
		default:
			res.FailedSellerIDs = append(res.FailedSellerIDs, st.SellerID)
			j.metrics.SettlementSellerFailed()
			log.Error("seller settlement failed",
				zap.String("seller_id", st.SellerID),
				zap.Error(fmt.Errorf("%w: %w", ErrAggregationFailure, err)),
			)
		}
	}

	log.Info("settlement finished",
		zap.Int("sellers", len(totals)),
		zap.Int("processed", res.SellersProcessed),
		zap.Int("failed", len(res.FailedSellerIDs)),
		zap.Int("conflicts", len(res.Conflicts)),
	)

	return res, nil
}

func (j *Job) settleSeller(ctx context.Context, period model.Period, st model.SellerTotal, settings *model.CommissionSettings, tiers []model.BonusTier) error {
	return j.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		existing, err := tx.GetPayout(ctx, st.SellerID, period)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("load payout: %w", err)
		}

		plan, err := j.planSeller(ctx, tx, period, st, settings, tiers)
		if err != nil {
			return err
		}

		if existing != nil && existing.Status == model.PayoutStatusPaid {
			bonusTotal := plan.bonusTotal()
			if existing.CommissionTotalCents != st.TotalCents || existing.BonusTotalCents != bonusTotal {
				return fmt.Errorf("%w: paid %d+%d, recomputed %d+%d", ErrPaidPayoutDrift,
					existing.CommissionTotalCents, existing.BonusTotalCents, st.TotalCents, bonusTotal)
			}
			return nil
		}

		for _, typ := range []model.BonusType{model.BonusTypeMonthlyTier, model.BonusTypeNewSeller} {
			amount, ok := plan.bonuses[typ]
			if !ok {
				continue
			}
			if amount <= 0 {
				if err := tx.DeleteBonus(ctx, st.SellerID, period, typ); err != nil {
					return fmt.Errorf("delete %s bonus: %w", typ, err)
				}
				continue
			}
			b := &model.Bonus{
				ID:          model.NewID(),
				SellerID:    st.SellerID,
				Type:        typ,
				AmountCents: amount,
				Period:      period,
				Metadata:    plan.metadata[typ],
			}
			if err := tx.UpsertBonus(ctx, b); err != nil {
				return fmt.Errorf("upsert %s bonus: %w", typ, err)
			}
		}

		bonuses, err := tx.ListBonuses(ctx, st.SellerID, period)
		if err != nil {
			return fmt.Errorf("list bonuses: %w", err)
		}
		var bonusTotal int64
		for _, b := range bonuses {
			bonusTotal += b.AmountCents
		}

		payout := &model.Payout{
			ID:                   model.NewID(),
			SellerID:             st.SellerID,
			Period:               period,
			CommissionTotalCents: st.TotalCents,
			BonusTotalCents:      bonusTotal,
			TotalCents:           st.TotalCents + bonusTotal,
			Status:               model.PayoutStatusPending,
			CreatedAt:            j.clock.Now(),
		}
		if err := tx.UpsertPayout(ctx, payout); err != nil {
			return fmt.Errorf("upsert payout: %w", err)
		}

		return nil
	})
}

// planSeller вычисляет бонусы продавца. Бонус нового продавца вне окна
// не пересчитывается: в план попадает уже записанная сумма.
func (j *Job) planSeller(ctx context.Context, tx repository.Tx, period model.Period, st model.SellerTotal, settings *model.CommissionSettings, tiers []model.BonusTier) (sellerPlan, error) {
	plan := sellerPlan{
		monthly:  j.calc.ComputeMonthlyBonus(st.TotalCents, tiers),
		bonuses:  make(map[model.BonusType]int64),
		metadata: make(map[model.BonusType]map[string]any),
	}

	plan.bonuses[model.BonusTypeMonthlyTier] = plan.monthly.BonusCents
	plan.metadata[model.BonusTypeMonthlyTier] = map[string]any{
		"tier":                   plan.monthly.TierLabel,
		"baseBonusCents":         plan.monthly.BaseBonusCents,
		"overflowSteps":          plan.monthly.OverflowSteps,
		"monthlyCommissionCents": st.TotalCents,
	}

	if j.inNewSellerWindow(st.SellerCreatedAt, period, settings.NewSellerBonusWindowDays) {
		paidBefore, paidAfter, err := tx.SumBonusesAroundPeriod(ctx, st.SellerID, model.BonusTypeNewSeller, period)
		if err != nil {
			return sellerPlan{}, fmt.Errorf("sum new seller bonuses: %w", err)
		}

		plan.bonuses[model.BonusTypeNewSeller] = newSellerAmount(st.TotalCents, settings.NewSellerBonusCapCents, paidBefore, paidAfter)
		plan.metadata[model.BonusTypeNewSeller] = map[string]any{
			"capCents":        settings.NewSellerBonusCapCents,
			"paidBeforeCents": paidBefore,
			"paidAfterCents":  paidAfter,
			"windowDays":      settings.NewSellerBonusWindowDays,
		}
		return plan, nil
	}

	existing, err := tx.ListBonuses(ctx, st.SellerID, period)
	if err != nil {
		return sellerPlan{}, fmt.Errorf("list bonuses: %w", err)
	}
	for _, b := range existing {
		if b.Type == model.BonusTypeNewSeller {
			plan.keptCents += b.AmountCents
		}
	}

	return plan, nil
}

// newSellerAmount распределяет лимит бонуса нового продавца по периодам
// в хронологическом порядке. Бонусы более поздних периодов тоже вычитаются
// из лимита, поэтому пересчёт прошлого периода не превышает его.
func newSellerAmount(totalCents, capCents, paidBefore, paidAfter int64) int64 {
	eligible := min(totalCents, capCents) - paidBefore
	remaining := capCents - paidBefore - paidAfter
	return max(0, min(eligible, remaining))
}

// inNewSellerWindow сообщает, попадает ли продавец в окно нового продавца.
// Окно отсчитывается на конец периода, но не позже текущего момента.
func (j *Job) inNewSellerWindow(createdAt time.Time, period model.Period, windowDays int) bool {
	if windowDays <= 0 {
		return false
	}
	asOf := j.clock.Now()
	if end := period.End(); end.Before(asOf) {
		asOf = end
	}
	return asOf.Sub(createdAt) <= time.Duration(windowDays)*24*time.Hour
}

// ApproveAgedCommissions одобряет начисления, созданные раньше срока
// удержания, и возвращает их количество.
func (j *Job) ApproveAgedCommissions(ctx context.Context) (int64, error) {
	settings, err := j.store.GetSettings(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrSettingsNotFound) {
			return 0, fmt.Errorf("%w: %w", ErrConfigurationMissing, err)
		}
		return 0, fmt.Errorf("load settings: %w", err)
	}

	now := j.clock.Now()
	cutoff := now.AddDate(0, 0, -settings.CommissionHoldDays)

	var n int64
	err = j.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		n, err = tx.ApproveCommissions(ctx, cutoff, now)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("approve commissions: %w", err)
	}

	j.metrics.CommissionsApproved(n)
	if n > 0 {
		j.logger.Info("commissions approved", zap.Int64("count", n), zap.Time("created_before", cutoff))
	}
	return n, nil
}

// MarkPayoutPaid отмечает выплату оплаченной и переводит одобренные
// начисления продавца за период в статус PAID.
func (j *Job) MarkPayoutPaid(ctx context.Context, sellerID string, period model.Period) (int64, error) {
	if period.IsZero() {
		return 0, model.ErrInvalidPeriod
	}

	var n int64
	err := j.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.MarkPayoutPaid(ctx, sellerID, period, j.clock.Now()); err != nil {
			return err
		}
		var err error
		n, err = tx.MarkCommissionsPaid(ctx, sellerID, period)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("mark payout paid: %w", err)
	}

	j.logger.Info("payout marked paid",
		zap.String("seller_id", sellerID),
		zap.Stringer("period", period),
		zap.Int64("commissions", n),
	)
	return n, nil
}
