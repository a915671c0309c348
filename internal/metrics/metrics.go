// Package metrics регистрирует метрики Prometheus движка начислений.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "commission_engine"

// Metrics содержит счётчики и гистограммы движка. Методы безопасны для nil.
type Metrics struct {
	commissionsCreated  *prometheus.CounterVec
	commissionCents     *prometheus.CounterVec
	duplicateOrders     prometheus.Counter
	referralChainBroken prometheus.Counter
	pointsAwarded       prometheus.Counter
	milestonesReached   *prometheus.CounterVec
	commissionsApproved prometheus.Counter
	jobRuns             *prometheus.CounterVec
	jobErrors           *prometheus.CounterVec
	jobDuration         *prometheus.HistogramVec
	sellerFailures      prometheus.Counter
	paidPayoutDrift     prometheus.Counter
}

// New создаёт метрики и регистрирует их в registerer.
// Если registerer равен nil, используется prometheus.DefaultRegisterer.
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		commissionsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commissions_created_total",
			Help:      "Commission rows created by type.",
		}, []string{"type"}),
		commissionCents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commission_cents_total",
			Help:      "Commission amount credited in cents by type.",
		}, []string{"type"}),
		duplicateOrders: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_orders_total",
			Help:      "Redelivered order events ignored as already processed.",
		}),
		referralChainBroken: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "referral_chain_broken_total",
			Help:      "Referral hops skipped because the lookup failed.",
		}),
		pointsAwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_awarded_total",
			Help:      "Reward points appended to the ledger.",
		}),
		milestonesReached: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "milestones_reached_total",
			Help:      "Reward milestones recorded by tier.",
		}, []string{"tier"}),
		commissionsApproved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commissions_approved_total",
			Help:      "Commissions moved from PENDING to APPROVED by the sweep.",
		}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Batch job runs by name.",
		}, []string{"job"}),
		jobErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_errors_total",
			Help:      "Batch job runs that ended with an error.",
		}, []string{"job"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Batch job latency.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
		}, []string{"job"}),
		sellerFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlement_seller_failures_total",
			Help:      "Sellers skipped by a settlement run because their computation failed.",
		}),
		paidPayoutDrift: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlement_paid_payout_drift_total",
			Help:      "Paid payouts whose recomputed totals differ from the stored ones.",
		}),
	}

	registerer.MustRegister(
		m.commissionsCreated,
		m.commissionCents,
		m.duplicateOrders,
		m.referralChainBroken,
		m.pointsAwarded,
		m.milestonesReached,
		m.commissionsApproved,
		m.jobRuns,
		m.jobErrors,
		m.jobDuration,
		m.sellerFailures,
		m.paidPayoutDrift,
	)

	return m
}

// CommissionCreated учитывает созданное начисление.
func (m *Metrics) CommissionCreated(typ string, amountCents int64) {
	if m == nil {
		return
	}
	m.commissionsCreated.WithLabelValues(typ).Inc()
	m.commissionCents.WithLabelValues(typ).Add(float64(amountCents))
}

// DuplicateOrder учитывает повторную доставку заказа.
func (m *Metrics) DuplicateOrder() {
	if m == nil {
		return
	}
	m.duplicateOrders.Inc()
}

// ReferralChainBroken учитывает пропущенное звено цепочки приглашений.
func (m *Metrics) ReferralChainBroken() {
	if m == nil {
		return
	}
	m.referralChainBroken.Inc()
}

// PointsAwarded учитывает начисленные баллы.
func (m *Metrics) PointsAwarded(points int64) {
	if m == nil {
		return
	}
	m.pointsAwarded.Add(float64(points))
}

// MilestoneReached учитывает достигнутую ступень.
func (m *Metrics) MilestoneReached(tier string) {
	if m == nil {
		return
	}
	m.milestonesReached.WithLabelValues(tier).Inc()
}

// CommissionsApproved учитывает одобренные начисления.
func (m *Metrics) CommissionsApproved(n int64) {
	if m == nil {
		return
	}
	m.commissionsApproved.Add(float64(n))
}

// ObserveJob учитывает запуск пакетной задачи.
func (m *Metrics) ObserveJob(job string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
	if err != nil {
		m.jobErrors.WithLabelValues(job).Inc()
	}
}

// SettlementSellerFailed учитывает продавца, пропущенного при расчёте.
func (m *Metrics) SettlementSellerFailed() {
	if m == nil {
		return
	}
	m.sellerFailures.Inc()
}

// PaidPayoutDrift учитывает расхождение с уже оплаченной выплатой.
func (m *Metrics) PaidPayoutDrift() {
	if m == nil {
		return
	}
	m.paidPayoutDrift.Inc()
}
