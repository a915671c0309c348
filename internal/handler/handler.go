// Package handler содержит HTTP-обработчики движка начислений: вебхук
// оплаченных заказов и операции управления.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/mmeshcher/commission-engine/internal/commission"
	"github.com/mmeshcher/commission-engine/internal/middleware"
	"github.com/mmeshcher/commission-engine/internal/model"
	"github.com/mmeshcher/commission-engine/internal/repository"
	"github.com/mmeshcher/commission-engine/internal/settlement"
)

// OrderProcessor обрабатывает события по заказам.
type OrderProcessor interface {
	ProcessPaidOrder(ctx context.Context, ev model.OrderPaid) (commission.Outcome, error)
	CancelOrder(ctx context.Context, orderID string) (int64, error)
}

// Settlement выполняет операции расчётного периода.
type Settlement interface {
	RunSettlement(ctx context.Context, period model.Period) (settlement.Result, error)
	ApproveAgedCommissions(ctx context.Context) (int64, error)
	MarkPayoutPaid(ctx context.Context, sellerID string, period model.Period) (int64, error)
}

// PointsReader отдаёт сводку по баллам продавца.
type PointsReader interface {
	Summary(ctx context.Context, sellerID string) (*model.PointsSummary, error)
}

// Options содержит зависимости HTTP-слоя, не относящиеся к бизнес-логике.
type Options struct {
	Webhook      *middleware.WebhookSignature
	Control      *middleware.ControlAuth
	BaseCurrency string
	// Gatherer отдаёт метрики на /metrics; по умолчанию prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
}

// Handler реализует HTTP-обработчики движка начислений.
type Handler struct {
	orders     OrderProcessor
	settlement Settlement
	points     PointsReader
	logger     *zap.Logger
	opts       Options
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(orders OrderProcessor, s Settlement, points PointsReader, logger *zap.Logger, opts Options) *Handler {
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	opts.BaseCurrency = strings.ToUpper(opts.BaseCurrency)

	return &Handler{
		orders:     orders,
		settlement: s,
		points:     points,
		logger:     logger,
		opts:       opts,
	}
}

type commissionResponse struct {
	SellerID    string `json:"sellerId"`
	Type        string `json:"type"`
	AmountCents int64  `json:"amountCents"`
	Rate        string `json:"rate"`
}

type orderPaidResponse struct {
	OrderID     string               `json:"orderId"`
	Duplicate   bool                 `json:"duplicate"`
	Commissions []commissionResponse `json:"commissions"`
	Milestones  []string             `json:"milestones,omitempty"`
}

// OrderPaid принимает событие об оплаченном заказе от платёжного провайдера.
// Ответ 503 означает, что событие нужно доставить повторно.
func (h *Handler) OrderPaid(w http.ResponseWriter, r *http.Request) {
	var ev model.OrderPaid
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	ev.OrderID = strings.TrimSpace(ev.OrderID)
	ev.SellerID = strings.TrimSpace(ev.SellerID)
	ev.Currency = strings.ToUpper(strings.TrimSpace(ev.Currency))

	if ev.OrderID == "" || ev.SellerID == "" || ev.AmountCents <= 0 {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}
	if ev.Currency != "" && ev.Currency != h.opts.BaseCurrency {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	out, err := h.orders.ProcessPaidOrder(r.Context(), ev)
	if err != nil {
		switch {
		case errors.Is(err, commission.ErrInvalidOrder):
			http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		case errors.Is(err, commission.ErrConfigurationMissing):
			h.logger.Error("order rejected: configuration missing", zap.Error(err), zap.String("order_id", ev.OrderID))
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		default:
			h.logger.Error("process order error", zap.Error(err), zap.String("order_id", ev.OrderID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	resp := orderPaidResponse{
		OrderID:     ev.OrderID,
		Duplicate:   out.Duplicate,
		Commissions: make([]commissionResponse, 0, len(out.Commissions)),
	}
	for _, c := range out.Commissions {
		resp.Commissions = append(resp.Commissions, commissionResponse{
			SellerID:    c.SellerID,
			Type:        string(c.Type),
			AmountCents: c.AmountCents,
			Rate:        c.RateApplied.String(),
		})
	}
	for _, ms := range out.Milestones {
		resp.Milestones = append(resp.Milestones, ms.SellerID+":"+ms.Tier)
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// RunSettlement запускает расчёт периода вручную.
func (h *Handler) RunSettlement(w http.ResponseWriter, r *http.Request) {
	period, err := model.ParsePeriod(chi.URLParam(r, "period"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	res, err := h.settlement.RunSettlement(r.Context(), period)
	if err != nil {
		h.writeSettlementError(w, err, "run settlement error", zap.Stringer("period", period))
		return
	}

	h.writeJSON(w, http.StatusOK, res)
}

type countResponse struct {
	Count int64 `json:"count"`
}

// ApproveCommissions запускает одобрение начислений после срока удержания.
func (h *Handler) ApproveCommissions(w http.ResponseWriter, r *http.Request) {
	n, err := h.settlement.ApproveAgedCommissions(r.Context())
	if err != nil {
		h.writeSettlementError(w, err, "approve commissions error")
		return
	}

	h.writeJSON(w, http.StatusOK, countResponse{Count: n})
}

// MarkPayoutPaid отмечает выплату продавцу за период оплаченной.
func (h *Handler) MarkPayoutPaid(w http.ResponseWriter, r *http.Request) {
	sellerID := chi.URLParam(r, "sellerID")
	period, err := model.ParsePeriod(chi.URLParam(r, "period"))
	if err != nil || sellerID == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	n, err := h.settlement.MarkPayoutPaid(r.Context(), sellerID, period)
	if err != nil {
		h.writeSettlementError(w, err, "mark payout paid error", zap.String("seller_id", sellerID), zap.Stringer("period", period))
		return
	}

	h.writeJSON(w, http.StatusOK, countResponse{Count: n})
}

// CancelOrder отменяет невыплаченные начисления по возвращённому заказу.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	n, err := h.orders.CancelOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, commission.ErrInvalidOrder) {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		h.logger.Error("cancel order error", zap.Error(err), zap.String("order_id", orderID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, countResponse{Count: n})
}

type milestoneResponse struct {
	Tier             string `json:"tier"`
	PointsAtCrossing int64  `json:"pointsAtCrossing"`
	ReachedAt        string `json:"reachedAt"`
}

type pointsResponse struct {
	SellerID    string              `json:"sellerId"`
	TotalPoints int64               `json:"totalPoints"`
	Milestones  []milestoneResponse `json:"milestones"`
}

// GetPoints возвращает баланс баллов продавца и достигнутые ступени.
func (h *Handler) GetPoints(w http.ResponseWriter, r *http.Request) {
	sellerID := chi.URLParam(r, "sellerID")

	summary, err := h.points.Summary(r.Context(), sellerID)
	if err != nil {
		h.logger.Error("points summary error", zap.Error(err), zap.String("seller_id", sellerID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := pointsResponse{
		SellerID:    summary.SellerID,
		TotalPoints: summary.TotalPoints,
		Milestones:  make([]milestoneResponse, 0, len(summary.Milestones)),
	}
	for _, ms := range summary.Milestones {
		resp.Milestones = append(resp.Milestones, milestoneResponse{
			Tier:             ms.Tier,
			PointsAtCrossing: ms.PointsAtCrossing,
			ReachedAt:        ms.CreatedAt.Format(time.RFC3339),
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// Healthz сообщает, что процесс принимает запросы.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) writeSettlementError(w http.ResponseWriter, err error, msg string, fields ...zap.Field) {
	switch {
	case errors.Is(err, model.ErrInvalidPeriod):
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
	case errors.Is(err, repository.ErrNotFound):
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	case errors.Is(err, settlement.ErrConfigurationMissing):
		h.logger.Error(msg, append(fields, zap.Error(err))...)
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
	default:
		h.logger.Error(msg, append(fields, zap.Error(err))...)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response error", zap.Error(err))
	}
}
