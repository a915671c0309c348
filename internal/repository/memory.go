package repository

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/mmeshcher/commission-engine/internal/model"
)

type commissionKey struct {
	orderID  string
	sellerID string
	typ      model.CommissionType
}

type ledgerKey struct {
	sellerID string
	orderID  string
	source   model.PointsSource
}

type milestoneKey struct {
	sellerID string
	tier     string
}

type periodKey struct {
	sellerID string
	period   model.Period
}

type bonusKey struct {
	sellerID string
	period   model.Period
	typ      model.BonusType
}

type memState struct {
	commissions map[commissionKey]model.Commission
	ledger      []model.RewardPointsLedgerEntry
	ledgerIndex map[ledgerKey]struct{}
	balances    map[string]int64
	milestones  map[milestoneKey]model.RewardMilestone
	bonuses     map[bonusKey]model.Bonus
	payouts     map[periodKey]model.Payout
}

func newMemState() *memState {
	return &memState{
		commissions: make(map[commissionKey]model.Commission),
		ledgerIndex: make(map[ledgerKey]struct{}),
		balances:    make(map[string]int64),
		milestones:  make(map[milestoneKey]model.RewardMilestone),
		bonuses:     make(map[bonusKey]model.Bonus),
		payouts:     make(map[periodKey]model.Payout),
	}
}

func (s *memState) clone() *memState {
	return &memState{
		commissions: maps.Clone(s.commissions),
		ledger:      append([]model.RewardPointsLedgerEntry(nil), s.ledger...),
		ledgerIndex: maps.Clone(s.ledgerIndex),
		balances:    maps.Clone(s.balances),
		milestones:  maps.Clone(s.milestones),
		bonuses:     maps.Clone(s.bonuses),
		payouts:     maps.Clone(s.payouts),
	}
}

// MemoryRepository хранит данные в памяти процесса. Транзакции выполняются
// последовательно над копией состояния и применяются только при успехе.
// Используется для локального запуска без БД и в тестах.
type MemoryRepository struct {
	mu sync.Mutex

	settings    *model.CommissionSettings
	tiers       []model.BonusTier
	sellers     map[string]model.Seller
	referrals   map[string]model.ReferralEdge
	memberships []model.PodMembership

	state *memState
}

// NewMemoryRepository создаёт пустое хранилище в памяти.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		sellers:   make(map[string]model.Seller),
		referrals: make(map[string]model.ReferralEdge),
		state:     newMemState(),
	}
}

// Close ничего не освобождает.
func (m *MemoryRepository) Close() error { return nil }

// SetSettings задаёт активные настройки.
func (m *MemoryRepository) SetSettings(s model.CommissionSettings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = &s
}

// SetBonusTiers задаёт таблицу ступеней.
func (m *MemoryRepository) SetBonusTiers(tiers []model.BonusTier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tiers = append([]model.BonusTier(nil), tiers...)
}

// AddSeller регистрирует продавца.
func (m *MemoryRepository) AddSeller(s model.Seller) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sellers[s.ID] = s
}

// AddReferral добавляет ребро приглашения. Повторное добавление для того же
// приглашённого заменяет ребро.
func (m *MemoryRepository) AddReferral(e model.ReferralEdge) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.referrals[e.ReferredID] = e
}

// AddPodMembership добавляет членство в команде.
func (m *MemoryRepository) AddPodMembership(pm model.PodMembership) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memberships = append(m.memberships, pm)
}

// GetSettings возвращает активные настройки.
func (m *MemoryRepository) GetSettings(_ context.Context) (*model.CommissionSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settings == nil {
		return nil, ErrSettingsNotFound
	}
	s := *m.settings
	return &s, nil
}

// GetBonusTiers возвращает таблицу ступеней в порядке SortOrder.
func (m *MemoryRepository) GetBonusTiers(_ context.Context) ([]model.BonusTier, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tiers := append([]model.BonusTier(nil), m.tiers...)
	sort.SliceStable(tiers, func(i, j int) bool { return tiers[i].SortOrder < tiers[j].SortOrder })
	return tiers, nil
}

// GetReferralEdge возвращает ребро приглашения для продавца.
func (m *MemoryRepository) GetReferralEdge(_ context.Context, referredID string) (*model.ReferralEdge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.referrals[referredID]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

// GetActiveMembership возвращает текущее членство продавца в команде.
func (m *MemoryRepository) GetActiveMembership(_ context.Context, sellerID string) (*model.PodMembership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, pm := range m.memberships {
		if pm.SellerID == sellerID && pm.LeftAt == nil {
			pm := pm
			return &pm, nil
		}
	}
	return nil, ErrNotFound
}

// GetPodLeader возвращает действующего лидера команды.
func (m *MemoryRepository) GetPodLeader(_ context.Context, podID string) (*model.PodMembership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, pm := range m.memberships {
		if pm.PodID == podID && pm.Role == model.PodRoleLeader && pm.LeftAt == nil {
			pm := pm
			return &pm, nil
		}
	}
	return nil, ErrNotFound
}

// WithinTx выполняет fn над копией состояния и применяет её, если fn завершилась без ошибки.
func (m *MemoryRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := m.state.clone()
	if err := fn(ctx, &memTx{st: work, sellers: m.sellers}); err != nil {
		return err
	}
	m.state = work
	return nil
}

// Commissions возвращает все начисления, упорядоченные по заказу, типу и получателю.
func (m *MemoryRepository) Commissions() []model.Commission {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make([]model.Commission, 0, len(m.state.commissions))
	for _, c := range m.state.commissions {
		res = append(res, c)
	}
	sortCommissions(res)
	return res
}

// LedgerEntries возвращает журнал баллов в порядке записи.
func (m *MemoryRepository) LedgerEntries() []model.RewardPointsLedgerEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.RewardPointsLedgerEntry(nil), m.state.ledger...)
}

// Balance возвращает баланс баллов продавца.
func (m *MemoryRepository) Balance(sellerID string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.balances[sellerID]
}

// Milestones возвращает все достигнутые ступени.
func (m *MemoryRepository) Milestones() []model.RewardMilestone {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make([]model.RewardMilestone, 0, len(m.state.milestones))
	for _, ms := range m.state.milestones {
		res = append(res, ms)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].SellerID != res[j].SellerID {
			return res[i].SellerID < res[j].SellerID
		}
		return res[i].PointsAtCrossing < res[j].PointsAtCrossing
	})
	return res
}

// Bonuses возвращает все бонусы.
func (m *MemoryRepository) Bonuses() []model.Bonus {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make([]model.Bonus, 0, len(m.state.bonuses))
	for _, b := range m.state.bonuses {
		res = append(res, b)
	}
	sort.Slice(res, func(i, j int) bool {
		a, b := res[i], res[j]
		if a.SellerID != b.SellerID {
			return a.SellerID < b.SellerID
		}
		if a.Period != b.Period {
			return a.Period.Start().Before(b.Period.Start())
		}
		return a.Type < b.Type
	})
	return res
}

// Payouts возвращает все выплаты.
func (m *MemoryRepository) Payouts() []model.Payout {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make([]model.Payout, 0, len(m.state.payouts))
	for _, p := range m.state.payouts {
		res = append(res, p)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].SellerID != res[j].SellerID {
			return res[i].SellerID < res[j].SellerID
		}
		return res[i].Period.Start().Before(res[j].Period.Start())
	})
	return res
}

func sortCommissions(cs []model.Commission) {
	sort.Slice(cs, func(i, j int) bool {
		a, b := cs[i], cs[j]
		if a.OrderID != b.OrderID {
			return a.OrderID < b.OrderID
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		return a.SellerID < b.SellerID
	})
}

// memTx реализует Tx над рабочей копией состояния.
type memTx struct {
	st      *memState
	sellers map[string]model.Seller
}

func (t *memTx) InsertCommission(_ context.Context, c *model.Commission) error {
	key := commissionKey{orderID: c.OrderID, sellerID: c.SellerID, typ: c.Type}
	if _, ok := t.st.commissions[key]; ok {
		return ErrAlreadyExists
	}
	t.st.commissions[key] = *c
	return nil
}

func (t *memTx) ApproveCommissions(_ context.Context, createdBefore, approvedAt time.Time) (int64, error) {
	var n int64
	for k, c := range t.st.commissions {
		if c.Status == model.CommissionStatusPending && !c.CreatedAt.After(createdBefore) {
			at := approvedAt
			c.Status = model.CommissionStatusApproved
			c.ApprovedAt = &at
			t.st.commissions[k] = c
			n++
		}
	}
	return n, nil
}

func (t *memTx) CancelOrderCommissions(_ context.Context, orderID string) (int64, error) {
	var n int64
	for k, c := range t.st.commissions {
		if c.OrderID != orderID {
			continue
		}
		if c.Status == model.CommissionStatusPending || c.Status == model.CommissionStatusApproved {
			c.Status = model.CommissionStatusCancelled
			t.st.commissions[k] = c
			n++
		}
	}
	return n, nil
}

func (t *memTx) ListOrderCommissions(_ context.Context, orderID string) ([]model.Commission, error) {
	var res []model.Commission
	for _, c := range t.st.commissions {
		if c.OrderID == orderID {
			res = append(res, c)
		}
	}
	sortCommissions(res)
	return res, nil
}

func (t *memTx) InsertLedgerEntry(_ context.Context, e *model.RewardPointsLedgerEntry) error {
	if e.OrderID != nil {
		key := ledgerKey{sellerID: e.SellerID, orderID: *e.OrderID, source: e.Source}
		if _, ok := t.st.ledgerIndex[key]; ok {
			return ErrAlreadyExists
		}
		t.st.ledgerIndex[key] = struct{}{}
	}
	t.st.ledger = append(t.st.ledger, *e)
	return nil
}

func (t *memTx) IncrementBalance(_ context.Context, sellerID string, points int64) (int64, error) {
	t.st.balances[sellerID] += points
	return t.st.balances[sellerID], nil
}

func (t *memTx) InsertMilestone(_ context.Context, ms *model.RewardMilestone) error {
	key := milestoneKey{sellerID: ms.SellerID, tier: ms.Tier}
	if _, ok := t.st.milestones[key]; ok {
		return ErrAlreadyExists
	}
	t.st.milestones[key] = *ms
	return nil
}

func (t *memTx) GetBalance(_ context.Context, sellerID string) (int64, error) {
	return t.st.balances[sellerID], nil
}

func (t *memTx) ListMilestones(_ context.Context, sellerID string) ([]model.RewardMilestone, error) {
	var res []model.RewardMilestone
	for _, ms := range t.st.milestones {
		if ms.SellerID == sellerID {
			res = append(res, ms)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].PointsAtCrossing < res[j].PointsAtCrossing })
	return res, nil
}

func (t *memTx) ListApprovedTotals(_ context.Context, period model.Period) ([]model.SellerTotal, error) {
	totals := make(map[string]int64)
	for _, c := range t.st.commissions {
		if c.Period != period {
			continue
		}
		if c.Status == model.CommissionStatusApproved || c.Status == model.CommissionStatusPaid {
			totals[c.SellerID] += c.AmountCents
		}
	}

	res := make([]model.SellerTotal, 0, len(totals))
	for sellerID, total := range totals {
		createdAt := time.Unix(0, 0).UTC()
		if s, ok := t.sellers[sellerID]; ok {
			createdAt = s.CreatedAt
		}
		res = append(res, model.SellerTotal{SellerID: sellerID, SellerCreatedAt: createdAt, TotalCents: total})
	}
	sort.Slice(res, func(i, j int) bool { return res[i].SellerID < res[j].SellerID })
	return res, nil
}

func (t *memTx) GetPayout(_ context.Context, sellerID string, period model.Period) (*model.Payout, error) {
	p, ok := t.st.payouts[periodKey{sellerID: sellerID, period: period}]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (t *memTx) UpsertPayout(_ context.Context, p *model.Payout) error {
	key := periodKey{sellerID: p.SellerID, period: p.Period}
	existing, ok := t.st.payouts[key]
	if !ok {
		t.st.payouts[key] = *p
		return nil
	}
	if existing.Status == model.PayoutStatusPaid {
		return nil
	}
	existing.CommissionTotalCents = p.CommissionTotalCents
	existing.BonusTotalCents = p.BonusTotalCents
	existing.TotalCents = p.TotalCents
	existing.Status = p.Status
	t.st.payouts[key] = existing
	return nil
}

func (t *memTx) MarkPayoutPaid(_ context.Context, sellerID string, period model.Period, paidAt time.Time) error {
	key := periodKey{sellerID: sellerID, period: period}
	p, ok := t.st.payouts[key]
	if !ok {
		return ErrNotFound
	}
	p.Status = model.PayoutStatusPaid
	if p.PaidAt == nil {
		at := paidAt
		p.PaidAt = &at
	}
	t.st.payouts[key] = p
	return nil
}

func (t *memTx) MarkCommissionsPaid(_ context.Context, sellerID string, period model.Period) (int64, error) {
	var n int64
	for k, c := range t.st.commissions {
		if c.SellerID == sellerID && c.Period == period && c.Status == model.CommissionStatusApproved {
			c.Status = model.CommissionStatusPaid
			t.st.commissions[k] = c
			n++
		}
	}
	return n, nil
}

func (t *memTx) UpsertBonus(_ context.Context, b *model.Bonus) error {
	key := bonusKey{sellerID: b.SellerID, period: b.Period, typ: b.Type}
	if existing, ok := t.st.bonuses[key]; ok {
		existing.AmountCents = b.AmountCents
		existing.Metadata = maps.Clone(b.Metadata)
		t.st.bonuses[key] = existing
		return nil
	}
	stored := *b
	stored.Metadata = maps.Clone(b.Metadata)
	t.st.bonuses[key] = stored
	return nil
}

func (t *memTx) DeleteBonus(_ context.Context, sellerID string, period model.Period, typ model.BonusType) error {
	delete(t.st.bonuses, bonusKey{sellerID: sellerID, period: period, typ: typ})
	return nil
}

func (t *memTx) ListBonuses(_ context.Context, sellerID string, period model.Period) ([]model.Bonus, error) {
	var res []model.Bonus
	for _, b := range t.st.bonuses {
		if b.SellerID == sellerID && b.Period == period {
			res = append(res, b)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Type < res[j].Type })
	return res, nil
}

func (t *memTx) SumBonusesAroundPeriod(_ context.Context, sellerID string, typ model.BonusType, period model.Period) (int64, int64, error) {
	var before, after int64
	for _, b := range t.st.bonuses {
		if b.SellerID != sellerID || b.Type != typ {
			continue
		}
		switch {
		case b.Period.Start().Before(period.Start()):
			before += b.AmountCents
		case b.Period.Start().After(period.Start()):
			after += b.AmountCents
		}
	}
	return before, after, nil
}
