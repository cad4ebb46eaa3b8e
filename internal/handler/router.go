package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	custommiddleware "github.com/acassiusalves/rotaExata-sub002/internal/middleware"
)

// SetupRouter configura as rotas HTTP e os middlewares do serviço.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Route("/batches", func(r chi.Router) {
			r.Post("/", h.CreateBatch)
			r.Get("/{id}", h.GetBatch)
			r.Get("/{id}/reconciliation", h.ReconcileBatch)
			r.Post("/{id}/repairs", h.RepairViolation)
		})

		r.Route("/routes", func(r chi.Router) {
			r.Post("/", h.CreateRoute)
			r.Get("/{id}", h.GetRoute)
			r.Put("/{id}/stops", h.UpdateRouteStops)
			r.Post("/{id}/dispatch", h.DispatchRoute)
			r.Post("/{id}/status", h.UpdateRouteStatus)
			r.Post("/{id}/recalculate", h.RecalculateEarnings)
			r.Get("/{id}/earnings", h.GetEarnings)
		})

		r.Post("/orders", h.CreateOrder)
		r.Post("/stops/{id}/outcome", h.RecordStopOutcome)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/driver/routes/{id}/notification", h.PendingNotification)
			r.Post("/driver/notifications/{id}/ack", h.AcknowledgeNotification)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
