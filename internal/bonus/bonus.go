// Package bonus вычисляет ежемесячный бонус продавца по таблице ступеней.
package bonus

import (
	"errors"
	"fmt"
	"sort"

	"github.com/mmeshcher/commission-engine/internal/model"
)

// ErrInvalidTierTable возвращается, если таблица ступеней нарушает инварианты.
var ErrInvalidTierTable = errors.New("invalid bonus tier table")

// Overflow задаёт надбавку для продавцов выше порога top seller:
// за каждый полный Step сверх Threshold начисляется StepBonus.
type Overflow struct {
	ThresholdCents int64
	StepCents      int64
	StepBonusCents int64
}

// DefaultOverflow задаёт порог $10 000, шаг $5 000 и надбавку $3 000 за шаг.
var DefaultOverflow = Overflow{
	ThresholdCents: 1_000_000,
	StepCents:      500_000,
	StepBonusCents: 300_000,
}

// Result содержит итог расчёта бонуса.
type Result struct {
	BonusCents     int64  `json:"bonusCents"`
	TierLabel      string `json:"tierLabel"`
	BaseBonusCents int64  `json:"baseBonusCents"`
	OverflowSteps  int64  `json:"overflowSteps"`
}

// Calculator считает бонус без ввода-вывода.
type Calculator struct {
	overflow Overflow
}

// NewCalculator создаёт калькулятор с указанным правилом надбавки.
func NewCalculator(overflow Overflow) *Calculator {
	return &Calculator{overflow: overflow}
}

// ComputeMonthlyBonus сопоставляет сумму начислений за месяц со ступенью:
// выбирается последняя ступень с MinCommissionCents <= суммы.
// Надбавка за превышение порога прибавляется к базовому бонусу ступени.
func (c *Calculator) ComputeMonthlyBonus(monthlyCommissionCents int64, tiers []model.BonusTier) Result {
	var res Result

	for _, t := range sortedTiers(tiers) {
		if t.MinCommissionCents > monthlyCommissionCents {
			break
		}
		res.TierLabel = t.Label
		res.BaseBonusCents = t.BonusCents
	}

	o := c.overflow
	if o.StepCents > 0 && o.ThresholdCents > 0 && monthlyCommissionCents >= o.ThresholdCents {
		res.OverflowSteps = (monthlyCommissionCents - o.ThresholdCents) / o.StepCents
	}

	res.BonusCents = res.BaseBonusCents + res.OverflowSteps*o.StepBonusCents
	return res
}

// ValidateTiers проверяет, что нижняя ступень начинается с нуля, ступени
// непрерывны, пороги строго возрастают, бонусы не убывают, а верхняя ступень
// открыта.
func ValidateTiers(tiers []model.BonusTier) error {
	if len(tiers) == 0 {
		return fmt.Errorf("%w: no tiers", ErrInvalidTierTable)
	}

	sorted := sortedTiers(tiers)
	if sorted[0].MinCommissionCents != 0 {
		return fmt.Errorf("%w: lowest tier %q must start at 0", ErrInvalidTierTable, sorted[0].Label)
	}

	for i, t := range sorted {
		last := i == len(sorted)-1
		if last {
			if t.MaxCommissionCents != nil {
				return fmt.Errorf("%w: top tier %q must be open-ended", ErrInvalidTierTable, t.Label)
			}
			break
		}

		next := sorted[i+1]
		if t.MaxCommissionCents == nil {
			return fmt.Errorf("%w: tier %q is open-ended but not the top tier", ErrInvalidTierTable, t.Label)
		}
		if next.MinCommissionCents <= t.MinCommissionCents {
			return fmt.Errorf("%w: tier %q does not increase minimum", ErrInvalidTierTable, next.Label)
		}
		if *t.MaxCommissionCents != next.MinCommissionCents {
			return fmt.Errorf("%w: gap between %q and %q", ErrInvalidTierTable, t.Label, next.Label)
		}
		if next.BonusCents < t.BonusCents {
			return fmt.Errorf("%w: tier %q lowers the bonus", ErrInvalidTierTable, next.Label)
		}
	}

	return nil
}

func sortedTiers(tiers []model.BonusTier) []model.BonusTier {
	out := make([]model.BonusTier, len(tiers))
	copy(out, tiers)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].MinCommissionCents < out[j].MinCommissionCents
	})
	return out
}
