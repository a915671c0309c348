// Package model содержит доменные сущности движка комиссий, баллов и выплат.
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CommissionSettings содержит действующие ставки и параметры начислений.
// В хранилище существует ровно одна активная запись.
type CommissionSettings struct {
	CommissionRate           decimal.Decimal
	ReferralMatchRate        decimal.Decimal
	Level2ReferralMatchRate  decimal.Decimal
	PodOverrideRate          decimal.Decimal
	PointsPersonalMultiplier decimal.Decimal
	PointsReferralMultiplier decimal.Decimal
	CommissionHoldDays       int
	NewSellerBonusCapCents   int64
	NewSellerBonusWindowDays int
}

// BonusTier описывает ступень ежемесячного бонуса.
type BonusTier struct {
	SortOrder          int
	MinCommissionCents int64
	// MaxCommissionCents равен nil у верхней, открытой ступени.
	MaxCommissionCents *int64
	BonusCents         int64
	Label              string
}

// Seller описывает продавца. Создаётся внешней системой, движок только читает.
type Seller struct {
	ID        string
	CreatedAt time.Time
}

// OrderPaid описывает входящее событие об оплаченном заказе.
type OrderPaid struct {
	OrderID     string `json:"orderId"`
	SellerID    string `json:"sellerId"`
	AmountCents int64  `json:"amountCents"`
	Currency    string `json:"currency"`
}

// CommissionType описывает вид начисления.
type CommissionType string

const (
	CommissionTypePersonal      CommissionType = "PERSONAL"
	CommissionTypeReferralMatch CommissionType = "REFERRAL_MATCH"
	CommissionTypePodOverride   CommissionType = "POD_OVERRIDE"
)

// CommissionStatus описывает статус начисления.
type CommissionStatus string

const (
	CommissionStatusPending   CommissionStatus = "PENDING"
	CommissionStatusApproved  CommissionStatus = "APPROVED"
	CommissionStatusPaid      CommissionStatus = "PAID"
	CommissionStatusCancelled CommissionStatus = "CANCELLED"
)

// Commission описывает начисление получателю по конкретному заказу.
// Пара (OrderID, SellerID, Type) уникальна.
type Commission struct {
	ID          uuid.UUID
	SellerID    string
	OrderID     string
	Type        CommissionType
	AmountCents int64
	RateApplied decimal.Decimal
	Status      CommissionStatus
	Period      Period
	CreatedAt   time.Time
	ApprovedAt  *time.Time
}

// ReferralEdge связывает пригласившего продавца с приглашённым.
type ReferralEdge struct {
	ReferrerID     string
	ReferredID     string
	MatchExpiresAt time.Time
}

// Active сообщает, начисляется ли ещё бонус за приглашение на момент now.
func (e ReferralEdge) Active(now time.Time) bool {
	return e.MatchExpiresAt.After(now)
}

// PodRole описывает роль продавца в команде.
type PodRole string

const (
	PodRoleLeader PodRole = "LEADER"
	PodRoleMember PodRole = "MEMBER"
)

// PodMembership описывает участие продавца в команде (pod).
type PodMembership struct {
	PodID    string
	SellerID string
	Role     PodRole
	JoinedAt time.Time
	LeftAt   *time.Time
}

// PointsSource описывает источник начисления баллов.
type PointsSource string

const (
	PointsSourcePersonal      PointsSource = "PERSONAL"
	PointsSourceReferralMatch PointsSource = "REFERRAL_MATCH"
)

// RewardPointsLedgerEntry описывает неизменяемую запись журнала баллов.
type RewardPointsLedgerEntry struct {
	ID          uuid.UUID
	SellerID    string
	OrderID     *string
	Points      int64
	Source      PointsSource
	Description string
	CreatedAt   time.Time
}

// RewardMilestone фиксирует первое пересечение продавцом порога ступени.
type RewardMilestone struct {
	ID               uuid.UUID
	SellerID         string
	Tier             string
	PointsAtCrossing int64
	CreatedAt        time.Time
}

// PointsSummary содержит баланс продавца и достигнутые ступени.
type PointsSummary struct {
	SellerID    string            `json:"sellerId"`
	TotalPoints int64             `json:"totalPoints"`
	Milestones  []RewardMilestone `json:"milestones"`
}

// BonusType описывает вид бонуса.
type BonusType string

const (
	BonusTypeMonthlyTier BonusType = "MONTHLY_TIER"
	BonusTypeNewSeller   BonusType = "NEW_SELLER"
)

// Bonus описывает бонус продавцу за период.
type Bonus struct {
	ID          uuid.UUID
	SellerID    string
	Type        BonusType
	AmountCents int64
	Period      Period
	Metadata    map[string]any
}

// PayoutStatus описывает статус выплаты.
type PayoutStatus string

const (
	PayoutStatusPending    PayoutStatus = "PENDING"
	PayoutStatusProcessing PayoutStatus = "PROCESSING"
	PayoutStatusPaid       PayoutStatus = "PAID"
	PayoutStatusFailed     PayoutStatus = "FAILED"
)

// Payout содержит итог выплаты продавцу за период. Одна запись на (SellerID, Period).
type Payout struct {
	ID                   uuid.UUID
	SellerID             string
	Period               Period
	CommissionTotalCents int64
	BonusTotalCents      int64
	TotalCents           int64
	Status               PayoutStatus
	CreatedAt            time.Time
	PaidAt               *time.Time
}

// SellerTotal содержит сумму одобренных начислений продавца за период.
type SellerTotal struct {
	SellerID        string
	SellerCreatedAt time.Time
	TotalCents      int64
}
