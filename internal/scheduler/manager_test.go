package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/commission-engine/internal/clock"
	"github.com/mmeshcher/commission-engine/internal/model"
	"github.com/mmeshcher/commission-engine/internal/settlement"
)

type stubSettler struct {
	mu         sync.Mutex
	periods    []model.Period
	sweeps     int
	settleErr  error
	sweepCount int64
}

func (s *stubSettler) RunSettlement(_ context.Context, period model.Period) (settlement.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.periods = append(s.periods, period)
	if s.settleErr != nil {
		return settlement.Result{}, s.settleErr
	}
	return settlement.Result{Period: period, SellersProcessed: 1}, nil
}

func (s *stubSettler) ApproveAgedCommissions(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweeps++
	return s.sweepCount, nil
}

func (s *stubSettler) sweepRuns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweeps
}

func newTestManager(t *testing.T, settler Settler, opts Options, now time.Time) *Manager {
	t.Helper()

	m, err := NewManager(settler, opts, clock.NewFake(now), zap.NewNop(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Stop() })
	return m
}

func TestRunSettlement_UsesPreviousPeriod(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want model.Period
	}{
		{name: "first of month", now: time.Date(2024, time.April, 1, 3, 0, 0, 0, time.UTC), want: model.Period{Year: 2024, Month: time.March}},
		{name: "january wraps year", now: time.Date(2024, time.January, 1, 3, 0, 0, 0, time.UTC), want: model.Period{Year: 2023, Month: time.December}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settler := &stubSettler{}
			m := newTestManager(t, settler, Options{}, tt.now)

			require.NoError(t, m.runSettlement(context.Background()))
			assert.Equal(t, []model.Period{tt.want}, settler.periods)
		})
	}
}

func TestRunSettlement_PropagatesError(t *testing.T) {
	boom := errors.New("settings missing")
	m := newTestManager(t, &stubSettler{settleErr: boom}, Options{}, time.Now())

	assert.ErrorIs(t, m.runSettlement(context.Background()), boom)
}

func TestRegisterJobs(t *testing.T) {
	m := newTestManager(t, &stubSettler{}, Options{
		SweepInterval:  time.Hour,
		SettlementCron: "0 3 1 * *",
	}, time.Now())

	require.NoError(t, m.RegisterJobs(context.Background()))

	var names []string
	for _, j := range m.scheduler.Jobs() {
		names = append(names, j.Name())
	}
	assert.ElementsMatch(t, []string{approvalSweepJob, settlementJob}, names)
}

func TestRegisterJobs_InvalidCron(t *testing.T) {
	m := newTestManager(t, &stubSettler{}, Options{SettlementCron: "every day"}, time.Now())

	assert.Error(t, m.RegisterJobs(context.Background()))
}

func TestSweepRunsOnSchedule(t *testing.T) {
	settler := &stubSettler{sweepCount: 3}
	m := newTestManager(t, settler, Options{SweepInterval: 20 * time.Millisecond}, time.Now())

	require.NoError(t, m.RegisterJobs(context.Background()))
	m.Start()

	assert.Eventually(t, func() bool { return settler.sweepRuns() >= 2 }, 2*time.Second, 10*time.Millisecond)
}
