package bonus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/commission-engine/internal/model"
)

func ptr(v int64) *int64 { return &v }

func testTiers() []model.BonusTier {
	// Порядок в срезе намеренно перепутан: калькулятор сортирует сам.
	return []model.BonusTier{
		{SortOrder: 3, MinCommissionCents: 250_000, MaxCommissionCents: ptr(500_000), BonusCents: 15_000, Label: "Pro"},
		{SortOrder: 1, MinCommissionCents: 0, MaxCommissionCents: ptr(100_000), BonusCents: 0, Label: "Starter"},
		{SortOrder: 5, MinCommissionCents: 1_000_000, MaxCommissionCents: nil, BonusCents: 100_000, Label: "Top Seller"},
		{SortOrder: 2, MinCommissionCents: 100_000, MaxCommissionCents: ptr(250_000), BonusCents: 5_000, Label: "Rising"},
		{SortOrder: 4, MinCommissionCents: 500_000, MaxCommissionCents: ptr(1_000_000), BonusCents: 40_000, Label: "Elite"},
	}
}

func TestComputeMonthlyBonus(t *testing.T) {
	calc := NewCalculator(DefaultOverflow)

	tests := []struct {
		name      string
		monthly   int64
		wantBonus int64
		wantLabel string
		wantSteps int64
	}{
		{name: "lowest tier", monthly: 50_000, wantBonus: 0, wantLabel: "Starter"},
		{name: "exact tier boundary", monthly: 100_000, wantBonus: 5_000, wantLabel: "Rising"},
		{name: "just below boundary", monthly: 99_999, wantBonus: 0, wantLabel: "Starter"},
		{name: "middle tier", monthly: 300_000, wantBonus: 15_000, wantLabel: "Pro"},
		{name: "at threshold no step yet", monthly: 1_000_000, wantBonus: 100_000, wantLabel: "Top Seller"},
		{name: "16k one step", monthly: 1_600_000, wantBonus: 100_000 + 300_000, wantLabel: "Top Seller", wantSteps: 1},
		{name: "21k two steps", monthly: 2_100_000, wantBonus: 100_000 + 2*300_000, wantLabel: "Top Seller", wantSteps: 2},
		{name: "just under second step", monthly: 1_999_999, wantBonus: 400_000, wantLabel: "Top Seller", wantSteps: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := calc.ComputeMonthlyBonus(tt.monthly, testTiers())
			assert.Equal(t, tt.wantBonus, res.BonusCents)
			assert.Equal(t, tt.wantLabel, res.TierLabel)
			assert.Equal(t, tt.wantSteps, res.OverflowSteps)
		})
	}
}

func TestComputeMonthlyBonus_BelowAllTiers(t *testing.T) {
	calc := NewCalculator(DefaultOverflow)
	tiers := []model.BonusTier{
		{MinCommissionCents: 100_000, BonusCents: 5_000, Label: "Rising"},
	}

	res := calc.ComputeMonthlyBonus(10, tiers)
	assert.Equal(t, Result{}, res)
}

func TestComputeMonthlyBonus_Monotonic(t *testing.T) {
	calc := NewCalculator(DefaultOverflow)
	tiers := testTiers()

	prev := int64(-1)
	for amount := int64(0); amount <= 3_500_000; amount += 7_919 {
		got := calc.ComputeMonthlyBonus(amount, tiers).BonusCents
		if got < prev {
			t.Fatalf("bonus decreased at %d: %d < %d", amount, got, prev)
		}
		prev = got
	}
}

func TestComputeMonthlyBonus_Deterministic(t *testing.T) {
	calc := NewCalculator(DefaultOverflow)

	first := calc.ComputeMonthlyBonus(2_345_678, testTiers())
	for i := 0; i < 10; i++ {
		require.Equal(t, first, calc.ComputeMonthlyBonus(2_345_678, testTiers()))
	}
}

func TestValidateTiers(t *testing.T) {
	tests := []struct {
		name    string
		tiers   []model.BonusTier
		wantErr bool
	}{
		{name: "valid", tiers: testTiers()},
		{name: "empty", tiers: nil, wantErr: true},
		{
			name: "lowest tier above zero",
			tiers: []model.BonusTier{
				{MinCommissionCents: 100, MaxCommissionCents: ptr(200), Label: "a"},
				{MinCommissionCents: 200, BonusCents: 10, Label: "b"},
			},
			wantErr: true,
		},
		{
			name: "single open tier",
			tiers: []model.BonusTier{
				{MinCommissionCents: 0, Label: "a"},
			},
		},
		{
			name: "top tier closed",
			tiers: []model.BonusTier{
				{MinCommissionCents: 0, MaxCommissionCents: ptr(100), Label: "a"},
			},
			wantErr: true,
		},
		{
			name: "gap",
			tiers: []model.BonusTier{
				{MinCommissionCents: 0, MaxCommissionCents: ptr(100), Label: "a"},
				{MinCommissionCents: 200, Label: "b"},
			},
			wantErr: true,
		},
		{
			name: "duplicate minimum",
			tiers: []model.BonusTier{
				{MinCommissionCents: 0, MaxCommissionCents: ptr(0), Label: "a"},
				{MinCommissionCents: 0, Label: "b"},
			},
			wantErr: true,
		},
		{
			name: "open tier in the middle",
			tiers: []model.BonusTier{
				{MinCommissionCents: 0, Label: "a"},
				{MinCommissionCents: 100, Label: "b"},
			},
			wantErr: true,
		},
		{
			name: "bonus decreases",
			tiers: []model.BonusTier{
				{MinCommissionCents: 0, MaxCommissionCents: ptr(100), BonusCents: 50, Label: "a"},
				{MinCommissionCents: 100, BonusCents: 10, Label: "b"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTiers(tt.tiers)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTierTable)
				return
			}
			assert.NoError(t, err)
		})
	}
}
