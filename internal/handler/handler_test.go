package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/commission-engine/internal/commission"
	"github.com/mmeshcher/commission-engine/internal/middleware"
	"github.com/mmeshcher/commission-engine/internal/model"
	"github.com/mmeshcher/commission-engine/internal/repository"
	"github.com/mmeshcher/commission-engine/internal/settlement"
)

const (
	testSecret = "test-secret"
	testToken  = "test-token"
)

type stubOrders struct {
	outcome commission.Outcome
	err     error
	calls   []model.OrderPaid

	cancelled int64
	cancelErr error
}

func (s *stubOrders) ProcessPaidOrder(_ context.Context, ev model.OrderPaid) (commission.Outcome, error) {
	s.calls = append(s.calls, ev)
	return s.outcome, s.err
}

func (s *stubOrders) CancelOrder(_ context.Context, _ string) (int64, error) {
	return s.cancelled, s.cancelErr
}

type stubSettlement struct {
	result    settlement.Result
	settleErr error
	periods   []model.Period

	approved   int64
	approveErr error

	paid    int64
	paidErr error
}

func (s *stubSettlement) RunSettlement(_ context.Context, period model.Period) (settlement.Result, error) {
	s.periods = append(s.periods, period)
	return s.result, s.settleErr
}

func (s *stubSettlement) ApproveAgedCommissions(_ context.Context) (int64, error) {
	return s.approved, s.approveErr
}

func (s *stubSettlement) MarkPayoutPaid(_ context.Context, _ string, _ model.Period) (int64, error) {
	return s.paid, s.paidErr
}

type stubPoints struct {
	summary *model.PointsSummary
	err     error
}

func (s *stubPoints) Summary(_ context.Context, _ string) (*model.PointsSummary, error) {
	return s.summary, s.err
}

func newTestRouter(t *testing.T, orders OrderProcessor, s Settlement, p PointsReader) http.Handler {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	h := NewHandler(orders, s, p, logger, Options{
		Webhook:      middleware.NewWebhookSignature(testSecret),
		Control:      middleware.NewControlAuth(testToken),
		BaseCurrency: "usd",
		Gatherer:     prometheus.NewRegistry(),
	})
	return h.SetupRouter()
}

func signedRequest(t *testing.T, body string) *http.Request {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/events/order-paid", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.SignatureHeader, middleware.NewWebhookSignature(testSecret).Sign([]byte(body)))
	return req
}

func controlRequest(method, target string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	return req
}

func TestOrderPaid_Success(t *testing.T) {
	orders := &stubOrders{
		outcome: commission.Outcome{
			Commissions: []model.Commission{
				{SellerID: "C", Type: model.CommissionTypePersonal, AmountCents: 5_000, RateApplied: decimal.RequireFromString("0.25")},
				{SellerID: "B", Type: model.CommissionTypeReferralMatch, AmountCents: 500, RateApplied: decimal.RequireFromString("0.1")},
			},
		},
	}
	r := newTestRouter(t, orders, &stubSettlement{}, &stubPoints{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, signedRequest(t, `{"orderId":" o-1 ","sellerId":"C","amountCents":20000,"currency":"usd"}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if len(orders.calls) != 1 || orders.calls[0].OrderID != "o-1" || orders.calls[0].Currency != "USD" {
		t.Fatalf("processor calls = %+v", orders.calls)
	}

	var resp orderPaidResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Duplicate || len(resp.Commissions) != 2 || resp.Commissions[0].AmountCents != 5_000 || resp.Commissions[1].Rate != "0.1" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestOrderPaid_Duplicate(t *testing.T) {
	orders := &stubOrders{outcome: commission.Outcome{Duplicate: true}}
	r := newTestRouter(t, orders, &stubSettlement{}, &stubPoints{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, signedRequest(t, `{"orderId":"o-1","sellerId":"C","amountCents":20000}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), `"duplicate":true`) {
		t.Fatalf("body %q does not report duplicate", rec.Body.String())
	}
}

func TestOrderPaid_Statuses(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantCalls  int
	}{
		{name: "malformed json", body: `{"orderId":`, wantStatus: http.StatusBadRequest},
		{name: "zero amount", body: `{"orderId":"o-1","sellerId":"C","amountCents":0}`, wantStatus: http.StatusUnprocessableEntity},
		{name: "missing seller", body: `{"orderId":"o-1","amountCents":100}`, wantStatus: http.StatusUnprocessableEntity},
		{name: "foreign currency", body: `{"orderId":"o-1","sellerId":"C","amountCents":100,"currency":"EUR"}`, wantStatus: http.StatusUnprocessableEntity},
		{
			name:       "configuration missing",
			body:       `{"orderId":"o-1","sellerId":"C","amountCents":100}`,
			err:        commission.ErrConfigurationMissing,
			wantStatus: http.StatusServiceUnavailable,
			wantCalls:  1,
		},
		{
			name:       "storage failure",
			body:       `{"orderId":"o-1","sellerId":"C","amountCents":100}`,
			err:        errors.New("connection refused"),
			wantStatus: http.StatusInternalServerError,
			wantCalls:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orders := &stubOrders{err: tt.err}
			r := newTestRouter(t, orders, &stubSettlement{}, &stubPoints{})

			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, signedRequest(t, tt.body))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if len(orders.calls) != tt.wantCalls {
				t.Fatalf("processor calls = %d, want %d", len(orders.calls), tt.wantCalls)
			}
		})
	}
}

func TestOrderPaid_BadSignature(t *testing.T) {
	orders := &stubOrders{}
	r := newTestRouter(t, orders, &stubSettlement{}, &stubPoints{})

	req := httptest.NewRequest(http.MethodPost, "/api/events/order-paid", bytes.NewReader([]byte(`{"orderId":"o-1"}`)))
	req.Header.Set(middleware.SignatureHeader, "deadbeef")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if len(orders.calls) != 0 {
		t.Fatalf("processor should not be called")
	}
}

func TestRunSettlement(t *testing.T) {
	march := model.Period{Year: 2024, Month: time.March}

	tests := []struct {
		name       string
		target     string
		err        error
		wantStatus int
	}{
		{name: "ok", target: "/api/control/settlements/2024-03", wantStatus: http.StatusOK},
		{name: "bad period", target: "/api/control/settlements/march", wantStatus: http.StatusBadRequest},
		{name: "configuration missing", target: "/api/control/settlements/2024-03", err: settlement.ErrConfigurationMissing, wantStatus: http.StatusServiceUnavailable},
		{name: "failure", target: "/api/control/settlements/2024-03", err: errors.New("boom"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &stubSettlement{
				result:    settlement.Result{Period: march, SellersProcessed: 3, Conflicts: []string{"s9"}},
				settleErr: tt.err,
			}
			r := newTestRouter(t, &stubOrders{}, s, &stubPoints{})

			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, controlRequest(http.MethodPost, tt.target))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}

			if len(s.periods) != 1 || s.periods[0] != march {
				t.Fatalf("settled periods = %v", s.periods)
			}
			body := rec.Body.String()
			if !strings.Contains(body, `"period":"2024-03"`) || !strings.Contains(body, `"conflicts":["s9"]`) {
				t.Fatalf("unexpected body %q", body)
			}
		})
	}
}

func TestControl_RequiresToken(t *testing.T) {
	r := newTestRouter(t, &stubOrders{}, &stubSettlement{}, &stubPoints{})

	req := httptest.NewRequest(http.MethodPost, "/api/control/commissions/approve", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestApproveCommissions(t *testing.T) {
	r := newTestRouter(t, &stubOrders{}, &stubSettlement{approved: 7}, &stubPoints{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, controlRequest(http.MethodPost, "/api/control/commissions/approve"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if strings.TrimSpace(rec.Body.String()) != `{"count":7}` {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestMarkPayoutPaid(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "ok", wantStatus: http.StatusOK},
		{name: "unknown payout", err: repository.ErrNotFound, wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(t, &stubOrders{}, &stubSettlement{paid: 2, paidErr: tt.err}, &stubPoints{})

			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, controlRequest(http.MethodPost, "/api/control/payouts/s1/2024-03/paid"))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestCancelOrder(t *testing.T) {
	r := newTestRouter(t, &stubOrders{cancelled: 3}, &stubSettlement{}, &stubPoints{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, controlRequest(http.MethodPost, "/api/control/orders/o-1/cancel"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if strings.TrimSpace(rec.Body.String()) != `{"count":3}` {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestGetPoints_JSONResponse(t *testing.T) {
	reached := time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)
	p := &stubPoints{summary: &model.PointsSummary{
		SellerID:    "s1",
		TotalPoints: 6_000,
		Milestones: []model.RewardMilestone{
			{SellerID: "s1", Tier: "BRONZE", PointsAtCrossing: 1_200, CreatedAt: reached},
		},
	}}
	r := newTestRouter(t, &stubOrders{}, &stubSettlement{}, p)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, controlRequest(http.MethodGet, "/api/control/sellers/s1/points"))

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if ct := res.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type = %q, want application/json", ct)
	}

	var resp pointsResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.TotalPoints != 6_000 || len(resp.Milestones) != 1 || resp.Milestones[0].ReachedAt != "2024-03-10T12:00:00Z" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestHealthzAndMetrics(t *testing.T) {
	r := newTestRouter(t, &stubOrders{}, &stubSettlement{}, &stubPoints{})

	for _, target := range []string{"/healthz", "/metrics"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s status = %d, want %d", target, rec.Code, http.StatusOK)
		}
	}
}
