// Package repository содержит контракты и реализации хранилища движка начислений.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/mmeshcher/commission-engine/internal/model"
)

var (
	// ErrAlreadyExists возвращается условной вставкой, если запись с тем же
	// уникальным ключом уже есть. Это ожидаемый результат повторной доставки.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotFound возвращается, если запись не найдена.
	ErrNotFound = errors.New("not found")
	// ErrSettingsNotFound возвращается, если не задана активная запись настроек.
	ErrSettingsNotFound = errors.New("commission settings not found")
)

// SettingsRepository даёт доступ на чтение к настройкам и таблице бонусов.
type SettingsRepository interface {
	GetSettings(ctx context.Context) (*model.CommissionSettings, error)
	GetBonusTiers(ctx context.Context) ([]model.BonusTier, error)
}

// ReferralRepository читает граф приглашений.
type ReferralRepository interface {
	// GetReferralEdge возвращает ребро, в котором продавец является приглашённым,
	// или ErrNotFound.
	GetReferralEdge(ctx context.Context, referredID string) (*model.ReferralEdge, error)
}

// PodRepository читает состав команд.
type PodRepository interface {
	GetActiveMembership(ctx context.Context, sellerID string) (*model.PodMembership, error)
	GetPodLeader(ctx context.Context, podID string) (*model.PodMembership, error)
}

// CommissionRepository изменяет строки начислений.
type CommissionRepository interface {
	// InsertCommission вставляет начисление или возвращает ErrAlreadyExists,
	// если (order_id, seller_id, type) уже занят.
	InsertCommission(ctx context.Context, c *model.Commission) error
	ApproveCommissions(ctx context.Context, createdBefore, approvedAt time.Time) (int64, error)
	CancelOrderCommissions(ctx context.Context, orderID string) (int64, error)
	ListOrderCommissions(ctx context.Context, orderID string) ([]model.Commission, error)
}

// LedgerRepository работает с журналом баллов, балансами и ступенями.
type LedgerRepository interface {
	// InsertLedgerEntry добавляет запись журнала или возвращает ErrAlreadyExists
	// для повторной записи по тому же заказу.
	InsertLedgerEntry(ctx context.Context, e *model.RewardPointsLedgerEntry) error
	// IncrementBalance атомарно увеличивает баланс и возвращает новое значение.
	IncrementBalance(ctx context.Context, sellerID string, points int64) (int64, error)
	// InsertMilestone вставляет ступень или возвращает ErrAlreadyExists.
	InsertMilestone(ctx context.Context, m *model.RewardMilestone) error
	GetBalance(ctx context.Context, sellerID string) (int64, error)
	ListMilestones(ctx context.Context, sellerID string) ([]model.RewardMilestone, error)
}

// SettlementRepository работает с агрегатами расчётного периода.
type SettlementRepository interface {
	// ListApprovedTotals суммирует начисления в статусах APPROVED и PAID, чтобы
	// повторный расчёт оплаченного периода давал ту же сумму.
	ListApprovedTotals(ctx context.Context, period model.Period) ([]model.SellerTotal, error)
	GetPayout(ctx context.Context, sellerID string, period model.Period) (*model.Payout, error)
	// UpsertPayout создаёт или обновляет выплату. Выплата в статусе PAID не изменяется.
	UpsertPayout(ctx context.Context, p *model.Payout) error
	MarkPayoutPaid(ctx context.Context, sellerID string, period model.Period, paidAt time.Time) error
	MarkCommissionsPaid(ctx context.Context, sellerID string, period model.Period) (int64, error)
	UpsertBonus(ctx context.Context, b *model.Bonus) error
	DeleteBonus(ctx context.Context, sellerID string, period model.Period, typ model.BonusType) error
	ListBonuses(ctx context.Context, sellerID string, period model.Period) ([]model.Bonus, error)
	// SumBonusesAroundPeriod суммирует бонусы данного типа отдельно за периоды
	// раньше и позже указанного. Сам период не учитывается.
	SumBonusesAroundPeriod(ctx context.Context, sellerID string, typ model.BonusType, period model.Period) (before, after int64, err error)
}

// Tx содержит операции, выполняемые в одной транзакции.
type Tx interface {
	CommissionRepository
	LedgerRepository
	SettlementRepository
}

// Store описывает хранилище движка. Все изменения выполняются через WithinTx:
// при ошибке fn ни одна запись не сохраняется.
type Store interface {
	SettingsRepository
	ReferralRepository
	PodRepository
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Close() error
}
