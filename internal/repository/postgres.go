package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/commission-engine/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var retryDelays = []time.Duration{100 * time.Millisecond, 500 * time.Millisecond, 2 * time.Second}

// querier объединяет методы пула и транзакции pgx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// WithinTx выполняет fn в транзакции. При конфликте сериализации или взаимной
// блокировке транзакция повторяется целиком.
func (r *PostgresRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		if err := fn(ctx, &pgQueries{q: tx}); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

func withRetry(ctx context.Context, fn func() error) error {
	var err error

	for i := 0; i <= len(retryDelays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		if !isRetryable(err) || i == len(retryDelays) {
			break
		}

		timer := time.NewTimer(retryDelays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}
	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// GetSettings возвращает активные настройки начислений.
func (r *PostgresRepository) GetSettings(ctx context.Context) (*model.CommissionSettings, error) {
	var (
		s                                   model.CommissionSettings
		rate, l1, l2, pod, personal, refPts string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT commission_rate::text, referral_match_rate::text, level2_referral_match_rate::text,
		        pod_override_rate::text, points_personal_multiplier::text, points_referral_multiplier::text,
		        commission_hold_days, new_seller_bonus_cap_cents, new_seller_bonus_window_days
		 FROM commission_settings
		 WHERE id`,
	).Scan(&rate, &l1, &l2, &pod, &personal, &refPts,
		&s.CommissionHoldDays, &s.NewSellerBonusCapCents, &s.NewSellerBonusWindowDays)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSettingsNotFound
		}
		return nil, fmt.Errorf("get settings: %w", err)
	}

	targets := []struct {
		dst *decimal.Decimal
		src string
	}{
		{&s.CommissionRate, rate},
		{&s.ReferralMatchRate, l1},
		{&s.Level2ReferralMatchRate, l2},
		{&s.PodOverrideRate, pod},
		{&s.PointsPersonalMultiplier, personal},
		{&s.PointsReferralMultiplier, refPts},
	}
	for _, t := range targets {
		d, err := decimal.NewFromString(t.src)
		if err != nil {
			return nil, fmt.Errorf("parse settings value %q: %w", t.src, err)
		}
		*t.dst = d
	}

	return &s, nil
}

// GetBonusTiers возвращает таблицу ступеней в порядке sort_order.
func (r *PostgresRepository) GetBonusTiers(ctx context.Context) ([]model.BonusTier, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT sort_order, min_commission_cents, max_commission_cents, bonus_cents, label
		 FROM bonus_tiers
		 ORDER BY sort_order`,
	)
	if err != nil {
		return nil, fmt.Errorf("select bonus tiers: %w", err)
	}
	defer rows.Close()

	var tiers []model.BonusTier
	for rows.Next() {
		var t model.BonusTier
		if err := rows.Scan(&t.SortOrder, &t.MinCommissionCents, &t.MaxCommissionCents, &t.BonusCents, &t.Label); err != nil {
			return nil, fmt.Errorf("scan bonus tier: %w", err)
		}
		tiers = append(tiers, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return tiers, nil
}

// GetReferralEdge возвращает ребро приглашения для продавца.
func (r *PostgresRepository) GetReferralEdge(ctx context.Context, referredID string) (*model.ReferralEdge, error) {
	var e model.ReferralEdge
	err := r.pool.QueryRow(ctx,
		`SELECT referrer_id, referred_id, match_expires_at FROM referral_edges WHERE referred_id = $1`,
		referredID,
	).Scan(&e.ReferrerID, &e.ReferredID, &e.MatchExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get referral edge: %w", err)
	}
	return &e, nil
}

// GetActiveMembership возвращает текущее членство продавца в команде.
func (r *PostgresRepository) GetActiveMembership(ctx context.Context, sellerID string) (*model.PodMembership, error) {
	return r.scanMembership(ctx,
		`SELECT pod_id, seller_id, role, joined_at, left_at
		 FROM pod_memberships
		 WHERE seller_id = $1 AND left_at IS NULL`,
		sellerID,
	)
}

// GetPodLeader возвращает действующего лидера команды.
func (r *PostgresRepository) GetPodLeader(ctx context.Context, podID string) (*model.PodMembership, error) {
	return r.scanMembership(ctx,
		`SELECT pod_id, seller_id, role, joined_at, left_at
		 FROM pod_memberships
		 WHERE pod_id = $1 AND role = $2 AND left_at IS NULL
		 ORDER BY joined_at
		 LIMIT 1`,
		podID, string(model.PodRoleLeader),
	)
}

func (r *PostgresRepository) scanMembership(ctx context.Context, sql string, args ...any) (*model.PodMembership, error) {
	var (
		m    model.PodMembership
		role string
	)
	err := r.pool.QueryRow(ctx, sql, args...).Scan(&m.PodID, &m.SellerID, &role, &m.JoinedAt, &m.LeftAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get pod membership: %w", err)
	}
	m.Role = model.PodRole(role)
	return &m, nil
}

// pgQueries реализует Tx поверх pgx.Tx.
type pgQueries struct {
	q querier
}

// InsertCommission вставляет начисление; повтор по (order_id, seller_id, type) не изменяет данные.
func (p *pgQueries) InsertCommission(ctx context.Context, c *model.Commission) error {
	cmdTag, err := p.q.Exec(ctx,
		`INSERT INTO commissions (id, seller_id, order_id, type, amount_cents, rate_applied, status, period, created_at, approved_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (order_id, seller_id, type) DO NOTHING`,
		c.ID, c.SellerID, c.OrderID, string(c.Type), c.AmountCents, c.RateApplied.String(),
		string(c.Status), c.Period.String(), c.CreatedAt, c.ApprovedAt,
	)
	if err != nil {
		return fmt.Errorf("insert commission: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrAlreadyExists
	}
	return nil
}

// ApproveCommissions переводит выдержанные начисления из PENDING в APPROVED.
func (p *pgQueries) ApproveCommissions(ctx context.Context, createdBefore, approvedAt time.Time) (int64, error) {
	cmdTag, err := p.q.Exec(ctx,
		`UPDATE commissions SET status = $1, approved_at = $2
		 WHERE status = $3 AND created_at <= $4`,
		string(model.CommissionStatusApproved), approvedAt,
		string(model.CommissionStatusPending), createdBefore,
	)
	if err != nil {
		return 0, fmt.Errorf("approve commissions: %w", err)
	}
	return cmdTag.RowsAffected(), nil
}

// CancelOrderCommissions отменяет невыплаченные начисления по заказу.
func (p *pgQueries) CancelOrderCommissions(ctx context.Context, orderID string) (int64, error) {
	cmdTag, err := p.q.Exec(ctx,
		`UPDATE commissions SET status = $1
		 WHERE order_id = $2 AND status IN ($3, $4)`,
		string(model.CommissionStatusCancelled), orderID,
		string(model.CommissionStatusPending), string(model.CommissionStatusApproved),
	)
	if err != nil {
		return 0, fmt.Errorf("cancel commissions: %w", err)
	}
	return cmdTag.RowsAffected(), nil
}

// ListOrderCommissions возвращает начисления по заказу.
func (p *pgQueries) ListOrderCommissions(ctx context.Context, orderID string) ([]model.Commission, error) {
	rows, err := p.q.Query(ctx,
		`SELECT id, seller_id, order_id, type, amount_cents, rate_applied::text, status, period, created_at, approved_at
		 FROM commissions
		 WHERE order_id = $1
		 ORDER BY created_at, type, seller_id`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("select commissions: %w", err)
	}
	defer rows.Close()

	var res []model.Commission
	for rows.Next() {
		var (
			c                    model.Commission
			typ, rate, st, period string
		)
		if err := rows.Scan(&c.ID, &c.SellerID, &c.OrderID, &typ, &c.AmountCents, &rate, &st, &period, &c.CreatedAt, &c.ApprovedAt); err != nil {
			return nil, fmt.Errorf("scan commission: %w", err)
		}
		if c.RateApplied, err = decimal.NewFromString(rate); err != nil {
			return nil, fmt.Errorf("parse rate: %w", err)
		}
		if c.Period, err = model.ParsePeriod(period); err != nil {
			return nil, err
		}
		c.Type = model.CommissionType(typ)
		c.Status = model.CommissionStatus(st)
		res = append(res, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// InsertLedgerEntry добавляет запись в журнал баллов.
func (p *pgQueries) InsertLedgerEntry(ctx context.Context, e *model.RewardPointsLedgerEntry) error {
	cmdTag, err := p.q.Exec(ctx,
		`INSERT INTO reward_points_ledger (id, seller_id, order_id, points, source, description, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (seller_id, order_id, source) WHERE order_id IS NOT NULL DO NOTHING`,
		e.ID, e.SellerID, e.OrderID, e.Points, string(e.Source), e.Description, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrAlreadyExists
	}
	return nil
}

// IncrementBalance увеличивает баланс одним оператором. Строка баланса
// блокируется до конца транзакции, что упорядочивает начисления одному продавцу.
func (p *pgQueries) IncrementBalance(ctx context.Context, sellerID string, points int64) (int64, error) {
	var total int64
	err := p.q.QueryRow(ctx,
		`INSERT INTO reward_points_balances (seller_id, total_points) VALUES ($1, $2)
		 ON CONFLICT (seller_id) DO UPDATE SET total_points = reward_points_balances.total_points + EXCLUDED.total_points
		 RETURNING total_points`,
		sellerID, points,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("increment balance: %w", err)
	}
	return total, nil
}

// InsertMilestone фиксирует достижение ступени, если её ещё нет.
func (p *pgQueries) InsertMilestone(ctx context.Context, m *model.RewardMilestone) error {
	cmdTag, err := p.q.Exec(ctx,
		`INSERT INTO reward_milestones (id, seller_id, tier, points_at_crossing, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (seller_id, tier) DO NOTHING`,
		m.ID, m.SellerID, m.Tier, m.PointsAtCrossing, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert milestone: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrAlreadyExists
	}
	return nil
}

// GetBalance возвращает текущий баланс баллов продавца.
func (p *pgQueries) GetBalance(ctx context.Context, sellerID string) (int64, error) {
	var total int64
	err := p.q.QueryRow(ctx,
		`SELECT COALESCE((SELECT total_points FROM reward_points_balances WHERE seller_id = $1), 0)`,
		sellerID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return total, nil
}

// ListMilestones возвращает достигнутые ступени продавца.
func (p *pgQueries) ListMilestones(ctx context.Context, sellerID string) ([]model.RewardMilestone, error) {
	rows, err := p.q.Query(ctx,
		`SELECT id, seller_id, tier, points_at_crossing, created_at
		 FROM reward_milestones
		 WHERE seller_id = $1
		 ORDER BY points_at_crossing, created_at`,
		sellerID,
	)
	if err != nil {
		return nil, fmt.Errorf("select milestones: %w", err)
	}
	defer rows.Close()

	var res []model.RewardMilestone
	for rows.Next() {
		var m model.RewardMilestone
		if err := rows.Scan(&m.ID, &m.SellerID, &m.Tier, &m.PointsAtCrossing, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan milestone: %w", err)
		}
		res = append(res, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ListApprovedTotals суммирует одобренные и уже выплаченные начисления за период по продавцам.
func (p *pgQueries) ListApprovedTotals(ctx context.Context, period model.Period) ([]model.SellerTotal, error) {
	rows, err := p.q.Query(ctx,
		`SELECT c.seller_id, COALESCE(s.created_at, 'epoch'::timestamptz), SUM(c.amount_cents)
		 FROM commissions c
		 LEFT JOIN sellers s ON s.id = c.seller_id
		 WHERE c.period = $1 AND c.status IN ($2, $3)
		 GROUP BY c.seller_id, s.created_at
		 ORDER BY c.seller_id`,
		period.String(), string(model.CommissionStatusApproved), string(model.CommissionStatusPaid),
	)
	if err != nil {
		return nil, fmt.Errorf("select approved totals: %w", err)
	}
	defer rows.Close()

	var res []model.SellerTotal
	for rows.Next() {
		var t model.SellerTotal
		if err := rows.Scan(&t.SellerID, &t.SellerCreatedAt, &t.TotalCents); err != nil {
			return nil, fmt.Errorf("scan approved total: %w", err)
		}
		res = append(res, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetPayout возвращает выплату продавцу за период. Строка блокируется до конца транзакции.
func (p *pgQueries) GetPayout(ctx context.Context, sellerID string, period model.Period) (*model.Payout, error) {
	var (
		po     model.Payout
		status string
	)
	err := p.q.QueryRow(ctx,
		`SELECT id, seller_id, commission_total_cents, bonus_total_cents, total_cents, status, created_at, paid_at
		 FROM payouts
		 WHERE seller_id = $1 AND period = $2
		 FOR UPDATE`,
		sellerID, period.String(),
	).Scan(&po.ID, &po.SellerID, &po.CommissionTotalCents, &po.BonusTotalCents, &po.TotalCents, &status, &po.CreatedAt, &po.PaidAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get payout: %w", err)
	}
	po.Period = period
	po.Status = model.PayoutStatus(status)
	return &po, nil
}

// UpsertPayout создаёт выплату или обновляет её суммы. Оплаченная выплата не
// изменяется, а совпадающие значения не перезаписываются.
func (p *pgQueries) UpsertPayout(ctx context.Context, po *model.Payout) error {
	_, err := p.q.Exec(ctx,
		`INSERT INTO payouts (id, seller_id, period, commission_total_cents, bonus_total_cents, total_cents, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (seller_id, period) DO UPDATE SET
		     commission_total_cents = EXCLUDED.commission_total_cents,
		     bonus_total_cents = EXCLUDED.bonus_total_cents,
		     total_cents = EXCLUDED.total_cents,
		     status = EXCLUDED.status
		 WHERE payouts.status <> $9
		   AND (payouts.commission_total_cents, payouts.bonus_total_cents, payouts.total_cents, payouts.status)
		       IS DISTINCT FROM
		       (EXCLUDED.commission_total_cents, EXCLUDED.bonus_total_cents, EXCLUDED.total_cents, EXCLUDED.status)`,
		po.ID, po.SellerID, po.Period.String(), po.CommissionTotalCents, po.BonusTotalCents, po.TotalCents,
		string(po.Status), po.CreatedAt, string(model.PayoutStatusPaid),
	)
	if err != nil {
		return fmt.Errorf("upsert payout: %w", err)
	}
	return nil
}

// MarkPayoutPaid переводит выплату в статус PAID.
func (p *pgQueries) MarkPayoutPaid(ctx context.Context, sellerID string, period model.Period, paidAt time.Time) error {
	cmdTag, err := p.q.Exec(ctx,
		`UPDATE payouts SET status = $1, paid_at = COALESCE(paid_at, $2)
		 WHERE seller_id = $3 AND period = $4`,
		string(model.PayoutStatusPaid), paidAt, sellerID, period.String(),
	)
	if err != nil {
		return fmt.Errorf("mark payout paid: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkCommissionsPaid переводит одобренные начисления продавца за период в статус PAID.
func (p *pgQueries) MarkCommissionsPaid(ctx context.Context, sellerID string, period model.Period) (int64, error) {
	cmdTag, err := p.q.Exec(ctx,
		`UPDATE commissions SET status = $1
		 WHERE seller_id = $2 AND period = $3 AND status = $4`,
		string(model.CommissionStatusPaid), sellerID, period.String(), string(model.CommissionStatusApproved),
	)
	if err != nil {
		return 0, fmt.Errorf("mark commissions paid: %w", err)
	}
	return cmdTag.RowsAffected(), nil
}

// UpsertBonus создаёт или заменяет бонус продавца данного типа за период.
func (p *pgQueries) UpsertBonus(ctx context.Context, b *model.Bonus) error {
	_, err := p.q.Exec(ctx,
		`INSERT INTO bonuses (id, seller_id, type, amount_cents, period, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (seller_id, period, type) DO UPDATE SET
		     amount_cents = EXCLUDED.amount_cents,
		     metadata = EXCLUDED.metadata
		 WHERE (bonuses.amount_cents, bonuses.metadata) IS DISTINCT FROM (EXCLUDED.amount_cents, EXCLUDED.metadata)`,
		b.ID, b.SellerID, string(b.Type), b.AmountCents, b.Period.String(), b.Metadata,
	)
	if err != nil {
		return fmt.Errorf("upsert bonus: %w", err)
	}
	return nil
}

// DeleteBonus удаляет бонус продавца данного типа за период.
func (p *pgQueries) DeleteBonus(ctx context.Context, sellerID string, period model.Period, typ model.BonusType) error {
	_, err := p.q.Exec(ctx,
		`DELETE FROM bonuses WHERE seller_id = $1 AND period = $2 AND type = $3`,
		sellerID, period.String(), string(typ),
	)
	if err != nil {
		return fmt.Errorf("delete bonus: %w", err)
	}
	return nil
}

// ListBonuses возвращает бонусы продавца за период.
func (p *pgQueries) ListBonuses(ctx context.Context, sellerID string, period model.Period) ([]model.Bonus, error) {
	rows, err := p.q.Query(ctx,
		`SELECT id, seller_id, type, amount_cents, metadata
		 FROM bonuses
		 WHERE seller_id = $1 AND period = $2
		 ORDER BY type`,
		sellerID, period.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("select bonuses: %w", err)
	}
	defer rows.Close()

	var res []model.Bonus
	for rows.Next() {
		var (
			b   model.Bonus
			typ string
		)
		if err := rows.Scan(&b.ID, &b.SellerID, &typ, &b.AmountCents, &b.Metadata); err != nil {
			return nil, fmt.Errorf("scan bonus: %w", err)
		}
		b.Type = model.BonusType(typ)
		b.Period = period
		res = append(res, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// SumBonusesAroundPeriod суммирует бонусы продавца данного типа за периоды
// раньше и позже указанного. Период хранится как YYYY-MM, поэтому строковое
// сравнение совпадает с хронологическим.
func (p *pgQueries) SumBonusesAroundPeriod(ctx context.Context, sellerID string, typ model.BonusType, period model.Period) (int64, int64, error) {
	var before, after int64
	err := p.q.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount_cents) FILTER (WHERE period < $3), 0),
		        COALESCE(SUM(amount_cents) FILTER (WHERE period > $3), 0)
		 FROM bonuses
		 WHERE seller_id = $1 AND type = $2`,
		sellerID, string(typ), period.String(),
	).Scan(&before, &after)
	if err != nil {
		return 0, 0, fmt.Errorf("sum bonuses: %w", err)
	}
	return before, after, nil
}
