// Package commission распределяет начисления по оплаченному заказу между
// продавцом, двумя уровнями пригласивших и лидером команды.
package commission

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/commission-engine/internal/clock"
	"github.com/mmeshcher/commission-engine/internal/metrics"
	"github.com/mmeshcher/commission-engine/internal/model"
	"github.com/mmeshcher/commission-engine/internal/money"
	"github.com/mmeshcher/commission-engine/internal/points"
	"github.com/mmeshcher/commission-engine/internal/repository"
)

var (
	// ErrConfigurationMissing возвращается, если не заданы настройки начислений.
	// Ни одна запись при этом не создаётся.
	ErrConfigurationMissing = errors.New("commission configuration missing")
	// ErrReferralChainBroken описывает сбой чтения звена цепочки приглашений.
	// Звено и всё, что выше него, пропускаются; остальные начисления сохраняются.
	ErrReferralChainBroken = errors.New("referral chain broken")
	// ErrInvalidOrder возвращается для события с пустыми идентификаторами или
	// неположительной суммой.
	ErrInvalidOrder = errors.New("invalid order")
)

// maxReferralDepth ограничивает глубину бонуса за приглашение. Третьего уровня нет.
const maxReferralDepth = 2

// Outcome содержит результат обработки заказа.
type Outcome struct {
	// Duplicate равен true, если заказ уже был обработан и ничего не записано.
	Duplicate   bool
	Commissions []model.Commission
	Milestones  []model.RewardMilestone
}

// Processor обрабатывает оплаченные заказы. Безопасен для конкурентных
// и повторных вызовов: дубликаты отсекаются уникальными ключами хранилища.
type Processor struct {
	store   repository.Store
	ledger  *points.Ledger
	clock   clock.Clock
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewProcessor создаёт обработчик заказов.
func NewProcessor(store repository.Store, ledger *points.Ledger, clk clock.Clock, logger *zap.Logger, m *metrics.Metrics) *Processor {
	return &Processor{
		store:   store,
		ledger:  ledger,
		clock:   clk,
		logger:  logger.Named("commission"),
		metrics: m,
	}
}

type upline struct {
	sellerID string
	level    int
}

type credit struct {
	sellerID string
	typ      model.CommissionType
	amount   int64
	rate     decimal.Decimal
}

type pointsCredit struct {
	award  points.Award
	result points.Result
}

// ProcessPaidOrder создаёт начисления и баллы по оплаченному заказу.
// Все записи по заказу создаются в одной транзакции.
func (p *Processor) ProcessPaidOrder(ctx context.Context, ev model.OrderPaid) (Outcome, error) {
	if strings.TrimSpace(ev.OrderID) == "" || strings.TrimSpace(ev.SellerID) == "" || ev.AmountCents <= 0 {
		return Outcome{}, ErrInvalidOrder
	}

	settings, err := p.store.GetSettings(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrSettingsNotFound) {
			return Outcome{}, fmt.Errorf("%w: %w", ErrConfigurationMissing, err)
		}
		return Outcome{}, fmt.Errorf("load settings: %w", err)
	}

	now := p.clock.Now()
	log := p.logger.With(zap.String("order_id", ev.OrderID), zap.String("seller_id", ev.SellerID))

	uplines := p.resolveUplines(ctx, log, ev.SellerID, now)

	leaderID, err := p.resolvePodLeader(ctx, ev.SellerID)
	if err != nil {
		return Outcome{}, err
	}

	credits, awards := plan(ev, settings, uplines, leaderID)

	var (
		out          Outcome
		appliedAward []pointsCredit
	)
	err = p.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		out = Outcome{}
		appliedAward = appliedAward[:0]

		for _, c := range credits {
			row := model.Commission{
				ID:          model.NewID(),
				SellerID:    c.sellerID,
				OrderID:     ev.OrderID,
				Type:        c.typ,
				AmountCents: c.amount,
				RateApplied: c.rate,
				Status:      model.CommissionStatusPending,
				Period:      model.PeriodOf(now),
				CreatedAt:   now,
			}
			if err := tx.InsertCommission(ctx, &row); err != nil {
				if errors.Is(err, repository.ErrAlreadyExists) {
					continue
				}
				return err
			}
			out.Commissions = append(out.Commissions, row)
		}

		for _, a := range awards {
			res, err := p.ledger.AwardPoints(ctx, tx, a)
			if err != nil {
				return err
			}
			if res.Applied {
				appliedAward = append(appliedAward, pointsCredit{award: a, result: res})
				out.Milestones = append(out.Milestones, res.Milestones...)
			}
		}

		return nil
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("process order %s: %w", ev.OrderID, err)
	}

	if len(out.Commissions) == 0 && len(appliedAward) == 0 {
		out.Duplicate = true
		p.metrics.DuplicateOrder()
		log.Info("order already processed")
		return out, nil
	}

	for _, c := range out.Commissions {
		p.metrics.CommissionCreated(string(c.Type), c.AmountCents)
	}
	for _, pc := range appliedAward {
		p.ledger.Record(pc.award.SellerID, pc.award.Points, pc.result)
	}

	log.Info("order processed",
		zap.Int64("amount_cents", ev.AmountCents),
		zap.Int("commissions", len(out.Commissions)),
		zap.Int("milestones", len(out.Milestones)),
	)

	return out, nil
}

// plan вычисляет начисления и баллы по заказу. Бонусы за приглашение обоих
// уровней считаются от уже округлённой личной комиссии, бонус лидера считается от
// суммы заказа.
func plan(ev model.OrderPaid, s *model.CommissionSettings, uplines []upline, leaderID string) ([]credit, []points.Award) {
	var (
		credits []credit
		awards  []points.Award
	)

	orderID := ev.OrderID
	personal := money.ApplyRate(ev.AmountCents, s.CommissionRate)
	credits = appendCredit(credits, credit{sellerID: ev.SellerID, typ: model.CommissionTypePersonal, amount: personal, rate: s.CommissionRate})
	awards = appendAward(awards, points.Award{
		SellerID:    ev.SellerID,
		OrderID:     &orderID,
		Points:      money.PointsFor(ev.AmountCents, s.PointsPersonalMultiplier),
		Source:      model.PointsSourcePersonal,
		Description: "order " + orderID,
	})

	for _, u := range uplines {
		rate := s.ReferralMatchRate
		if u.level == 2 {
			rate = s.Level2ReferralMatchRate
		}
		credits = appendCredit(credits, credit{
			sellerID: u.sellerID,
			typ:      model.CommissionTypeReferralMatch,
			amount:   money.ApplyRate(personal, rate),
			rate:     rate,
		})
		awards = appendAward(awards, points.Award{
			SellerID:    u.sellerID,
			OrderID:     &orderID,
			Points:      money.PointsFor(ev.AmountCents, s.PointsReferralMultiplier),
			Source:      model.PointsSourceReferralMatch,
			Description: fmt.Sprintf("level %d referral order %s", u.level, orderID),
		})
	}

	if leaderID != "" && leaderID != ev.SellerID {
		credits = appendCredit(credits, credit{
			sellerID: leaderID,
			typ:      model.CommissionTypePodOverride,
			amount:   money.ApplyRate(ev.AmountCents, s.PodOverrideRate),
			rate:     s.PodOverrideRate,
		})
	}

	return credits, awards
}

func appendCredit(credits []credit, c credit) []credit {
	if c.amount <= 0 {
		return credits
	}
	return append(credits, c)
}

func appendAward(awards []points.Award, a points.Award) []points.Award {
	if a.Points <= 0 {
		return awards
	}
	return append(awards, a)
}

// resolveUplines обходит не более двух звеньев цепочки приглашений.
// Истёкшее ребро завершает обход. Сбой чтения звена не прерывает обработку заказа.
func (p *Processor) resolveUplines(ctx context.Context, log *zap.Logger, sellerID string, now time.Time) []upline {
	var res []upline
	visited := map[string]bool{sellerID: true}
	current := sellerID

	for level := 1; level <= maxReferralDepth; level++ {
		edge, err := p.store.GetReferralEdge(ctx, current)
		if err != nil {
			if !errors.Is(err, repository.ErrNotFound) {
				p.metrics.ReferralChainBroken()
				log.Warn("skipping referral hop",
					zap.Int("level", level),
					zap.String("referred_id", current),
					zap.Error(fmt.Errorf("%w: %w", ErrReferralChainBroken, err)),
				)
			}
			break
		}

		if !edge.Active(now) {
			break
		}
		if visited[edge.ReferrerID] {
			log.Warn("referral cycle detected", zap.String("referrer_id", edge.ReferrerID))
			break
		}
		visited[edge.ReferrerID] = true

		res = append(res, upline{sellerID: edge.ReferrerID, level: level})
		current = edge.ReferrerID
	}

	return res
}

// resolvePodLeader возвращает лидера команды продавца или пустую строку,
// если продавец не состоит в команде или сам является лидером.
func (p *Processor) resolvePodLeader(ctx context.Context, sellerID string) (string, error) {
	membership, err := p.store.GetActiveMembership(ctx, sellerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("load pod membership: %w", err)
	}

	if membership.Role == model.PodRoleLeader {
		return "", nil
	}

	leader, err := p.store.GetPodLeader(ctx, membership.PodID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			p.logger.Warn("pod has no active leader", zap.String("pod_id", membership.PodID))
			return "", nil
		}
		return "", fmt.Errorf("load pod leader: %w", err)
	}

	if leader.SellerID == sellerID {
		return "", nil
	}
	return leader.SellerID, nil
}

// CancelOrder отменяет невыплаченные начисления по заказу при возврате.
// Баллы и достигнутые ступени не списываются.
func (p *Processor) CancelOrder(ctx context.Context, orderID string) (int64, error) {
	if strings.TrimSpace(orderID) == "" {
		return 0, ErrInvalidOrder
	}

	var n int64
	err := p.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		n, err = tx.CancelOrderCommissions(ctx, orderID)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("cancel order %s: %w", orderID, err)
	}

	p.logger.Info("order commissions cancelled", zap.String("order_id", orderID), zap.Int64("cancelled", n))
	return n, nil
}
