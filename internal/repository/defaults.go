package repository

import (
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/commission-engine/internal/model"
)

// DefaultSettings возвращает ставки для локального запуска без базы данных.
// В рабочем окружении настройки ведёт админка в таблице commission_settings.
func DefaultSettings() model.CommissionSettings {
	return model.CommissionSettings{
		CommissionRate:           decimal.RequireFromString("0.25"),
		ReferralMatchRate:        decimal.RequireFromString("0.10"),
		Level2ReferralMatchRate:  decimal.RequireFromString("0.05"),
		PodOverrideRate:          decimal.RequireFromString("0.03"),
		PointsPersonalMultiplier: decimal.NewFromInt(1),
		PointsReferralMultiplier: decimal.RequireFromString("0.5"),
		CommissionHoldDays:       14,
		NewSellerBonusCapCents:   50_000,
		NewSellerBonusWindowDays: 90,
	}
}

// DefaultBonusTiers возвращает таблицу ступеней для локального запуска.
func DefaultBonusTiers() []model.BonusTier {
	bound := func(v int64) *int64 { return &v }

	return []model.BonusTier{
		{SortOrder: 1, MinCommissionCents: 0, MaxCommissionCents: bound(100_000), BonusCents: 0, Label: "Starter"},
		{SortOrder: 2, MinCommissionCents: 100_000, MaxCommissionCents: bound(250_000), BonusCents: 5_000, Label: "Rising"},
		{SortOrder: 3, MinCommissionCents: 250_000, MaxCommissionCents: bound(500_000), BonusCents: 15_000, Label: "Pro"},
		{SortOrder: 4, MinCommissionCents: 500_000, MaxCommissionCents: bound(1_000_000), BonusCents: 40_000, Label: "Elite"},
		{SortOrder: 5, MinCommissionCents: 1_000_000, BonusCents: 100_000, Label: "Top Seller"},
	}
}
