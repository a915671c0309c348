package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	custommiddleware "github.com/mmeshcher/commission-engine/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware движка начислений.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Get("/healthz", h.Healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.opts.Gatherer, promhttp.HandlerOpts{}))

	r.With(h.opts.Webhook.Middleware).Post("/api/events/order-paid", h.OrderPaid)

	r.Route("/api/control", func(r chi.Router) {
		r.Use(h.opts.Control.Middleware)

		r.Post("/settlements/{period}", h.RunSettlement)
		r.Post("/commissions/approve", h.ApproveCommissions)
		r.Post("/payouts/{sellerID}/{period}/paid", h.MarkPayoutPaid)
		r.Post("/orders/{orderID}/cancel", h.CancelOrder)
		r.Get("/sellers/{sellerID}/points", h.GetPoints)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
