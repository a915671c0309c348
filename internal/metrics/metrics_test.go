package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCommissionCreated(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.CommissionCreated("PERSONAL", 2500)
	m.CommissionCreated("PERSONAL", 500)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.commissionsCreated.WithLabelValues("PERSONAL")))
	assert.Equal(t, float64(3000), testutil.ToFloat64(m.commissionCents.WithLabelValues("PERSONAL")))
}

func TestObserveJob(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveJob("settlement", time.Second, nil)
	m.ObserveJob("settlement", time.Second, errors.New("boom"))

	assert.Equal(t, float64(2), testutil.ToFloat64(m.jobRuns.WithLabelValues("settlement")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.jobErrors.WithLabelValues("settlement")))
}

func TestNilMetricsAreNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.CommissionCreated("PERSONAL", 1)
		m.DuplicateOrder()
		m.ReferralChainBroken()
		m.PointsAwarded(1)
		m.MilestoneReached("GOLD")
		m.CommissionsApproved(1)
		m.ObserveJob("x", time.Millisecond, nil)
		m.SettlementSellerFailed()
		m.PaidPayoutDrift()
	})
}
