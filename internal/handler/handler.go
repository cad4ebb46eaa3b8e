// Package handler contém os HTTP handlers da API do serviço rotaExata.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/acassiusalves/rotaExata-sub002/internal/middleware"
	"github.com/acassiusalves/rotaExata-sub002/internal/model"
	"github.com/acassiusalves/rotaExata-sub002/internal/reconcile"
	"github.com/acassiusalves/rotaExata-sub002/internal/repository"
	"github.com/acassiusalves/rotaExata-sub002/internal/service"
	"github.com/acassiusalves/rotaExata-sub002/internal/validation"
)

// Service define o contrato da lógica de negócio usada pelos handlers.
type Service interface {
	CreateBatch(ctx context.Context, b *model.Batch) error
	GetBatch(ctx context.Context, id string) (*model.Batch, error)
	CreateRoute(ctx context.Context, route *model.Route) error
	GetRoute(ctx context.Context, id string) (*model.Route, error)
	CreateOrder(ctx context.Context, o *model.Order) error
	DispatchRoute(ctx context.Context, routeID, driverID string) error
	UpdateRouteStatus(ctx context.Context, routeID string, status model.RouteStatus) error
	UpdateRouteStops(ctx context.Context, routeID string, stops []model.Stop) (*model.Route, []model.ChangeRecord, error)
	RecordStopOutcome(ctx context.Context, stopID string, outcome model.StopOutcome, attempted bool) error
	RecalculateEarnings(ctx context.Context, routeID string) error
	GetEarnings(ctx context.Context, routeID string) (*model.EarningsBreakdown, error)
	AcknowledgeNotification(ctx context.Context, notificationID, driverID string) error
	PendingNotification(ctx context.Context, routeID, driverID string) (*model.RouteChangeNotification, error)
	ReconcileBatch(ctx context.Context, batchID string) ([]reconcile.Violation, error)
	RepairViolation(ctx context.Context, v reconcile.Violation) error
}

// Handler implementa os HTTP handlers da API rotaExata.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler cria o conjunto de handlers HTTP.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response error", zap.Error(err))
	}
}

// CreateBatch registra um novo batch de importação.
func (h *Handler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var batch model.Batch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.CreateBatch(r.Context(), &batch); err != nil {
		if errors.Is(err, validation.ErrValidation) {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		h.logger.Error("create batch error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
}

// GetBatch retorna um batch pelo identificador.
func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "id")

	batch, err := h.service.GetBatch(r.Context(), batchID)
	if err != nil {
		if errors.Is(err, repository.ErrBatchNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get batch error", zap.Error(err), zap.String("batchID", batchID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, batch)
}

// CreateRoute registra uma nova rota com suas paradas.
func (h *Handler) CreateRoute(w http.ResponseWriter, r *http.Request) {
	var route model.Route
	if err := json.NewDecoder(r.Body).Decode(&route); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.CreateRoute(r.Context(), &route); err != nil {
		switch {
		case errors.Is(err, validation.ErrValidation):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		case errors.Is(err, repository.ErrBatchNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		default:
			h.logger.Error("create route error", zap.Error(err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusCreated)
}

// GetRoute retorna uma rota com suas paradas.
func (h *Handler) GetRoute(w http.ResponseWriter, r *http.Request) {
	routeID := chi.URLParam(r, "id")

	route, err := h.service.GetRoute(r.Context(), routeID)
	if err != nil {
		if errors.Is(err, repository.ErrRouteNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get route error", zap.Error(err), zap.String("routeID", routeID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, route)
}

// CreateOrder registra um pedido de origem.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var order model.Order
	if err := json.NewDecoder(r.Body).Decode(&order); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.CreateOrder(r.Context(), &order); err != nil {
		if errors.Is(err, validation.ErrValidation) {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		h.logger.Error("create order error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
}

type dispatchRequest struct {
	DriverID string `json:"driver_id"`
}

// DispatchRoute atribui motorista e despacha a rota.
func (h *Handler) DispatchRoute(w http.ResponseWriter, r *http.Request) {
	routeID := chi.URLParam(r, "id")

	var req dispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.DispatchRoute(r.Context(), routeID, req.DriverID); err != nil {
		switch {
		case errors.Is(err, validation.ErrValidation):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		case errors.Is(err, repository.ErrRouteNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, repository.ErrRouteNotDraft):
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
		default:
			h.logger.Error("dispatch route error", zap.Error(err), zap.String("routeID", routeID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusOK)
}

type statusRequest struct {
	Status string `json:"status"`
}

// UpdateRouteStatus altera o status do ciclo de vida da rota.
func (h *Handler) UpdateRouteStatus(w http.ResponseWriter, r *http.Request) {
	routeID := chi.URLParam(r, "id")

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.UpdateRouteStatus(r.Context(), routeID, model.RouteStatus(req.Status)); err != nil {
		switch {
		case errors.Is(err, validation.ErrValidation):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		case errors.Is(err, repository.ErrRouteNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		default:
			h.logger.Error("update route status error", zap.Error(err), zap.String("routeID", routeID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusOK)
}

type updateStopsRequest struct {
	Stops []model.Stop `json:"stops"`
}

type updateStopsResponse struct {
	Route   *model.Route         `json:"route"`
	Changes []model.ChangeRecord `json:"changes"`
}

// UpdateRouteStops substitui a lista de paradas da rota e retorna a
// rota atualizada com o diff aplicado.
func (h *Handler) UpdateRouteStops(w http.ResponseWriter, r *http.Request) {
	routeID := chi.URLParam(r, "id")

	var req updateStopsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	route, changes, err := h.service.UpdateRouteStops(r.Context(), routeID, req.Stops)
	if err != nil {
		switch {
		case errors.Is(err, validation.ErrValidation):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		case errors.Is(err, repository.ErrRouteNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, repository.ErrStopOwnedByOtherRoute):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			h.logger.Error("update route stops error", zap.Error(err), zap.String("routeID", routeID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	h.writeJSON(w, http.StatusOK, updateStopsResponse{Route: route, Changes: changes})
}

type outcomeRequest struct {
	Outcome   string `json:"outcome"`
	Attempted bool   `json:"attempted"`
}

// RecordStopOutcome registra o desfecho de uma parada.
func (h *Handler) RecordStopOutcome(w http.ResponseWriter, r *http.Request) {
	stopID := chi.URLParam(r, "id")

	var req outcomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	err := h.service.RecordStopOutcome(r.Context(), stopID, model.StopOutcome(req.Outcome), req.Attempted)
	if err != nil {
		switch {
		case errors.Is(err, validation.ErrValidation):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		case errors.Is(err, repository.ErrStopNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		default:
			h.logger.Error("record stop outcome error", zap.Error(err), zap.String("stopID", stopID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusOK)
}

// RecalculateEarnings força o recálculo de ganhos de uma rota.
func (h *Handler) RecalculateEarnings(w http.ResponseWriter, r *http.Request) {
	routeID := chi.URLParam(r, "id")

	if err := h.service.RecalculateEarnings(r.Context(), routeID); err != nil {
		if errors.Is(err, repository.ErrRouteNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("recalculate earnings error", zap.Error(err), zap.String("routeID", routeID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// GetEarnings retorna o detalhamento de ganhos de uma rota.
func (h *Handler) GetEarnings(w http.ResponseWriter, r *http.Request) {
	routeID := chi.URLParam(r, "id")

	breakdown, err := h.service.GetEarnings(r.Context(), routeID)
	if err != nil {
		if errors.Is(err, repository.ErrEarningsNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get earnings error", zap.Error(err), zap.String("routeID", routeID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, breakdown)
}

// ReconcileBatch verifica a consistência do batch e lista as violações.
func (h *Handler) ReconcileBatch(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "id")

	violations, err := h.service.ReconcileBatch(r.Context(), batchID)
	if err != nil {
		if errors.Is(err, repository.ErrBatchNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("reconcile batch error", zap.Error(err), zap.String("batchID", batchID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, violations)
}

// RepairViolation executa o reparo de uma violação reportada.
func (h *Handler) RepairViolation(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "id")

	var v reconcile.Violation
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if v.BatchID == "" {
		v.BatchID = batchID
	}

	if err := h.service.RepairViolation(r.Context(), v); err != nil {
		switch {
		case errors.Is(err, validation.ErrValidation):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		case errors.Is(err, repository.ErrBatchNotFound),
			errors.Is(err, repository.ErrRouteNotFound),
			errors.Is(err, repository.ErrStopNotFound),
			errors.Is(err, repository.ErrOrderNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		default:
			h.logger.Error("repair violation error", zap.Error(err),
				zap.String("batchID", batchID), zap.String("code", string(v.Code)))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusOK)
}

// PendingNotification retorna a notificação pendente da rota para o
// motorista autenticado. Notificações de outros motoristas não são
// visíveis.
func (h *Handler) PendingNotification(w http.ResponseWriter, r *http.Request) {
	driverID, ok := middleware.GetDriverIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	routeID := chi.URLParam(r, "id")

	n, err := h.service.PendingNotification(r.Context(), routeID, driverID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotificationNotFound):
			w.WriteHeader(http.StatusNoContent)
		case errors.Is(err, service.ErrNotRouteDriver):
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		default:
			h.logger.Error("pending notification error", zap.Error(err), zap.String("routeID", routeID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	h.writeJSON(w, http.StatusOK, n)
}

// AcknowledgeNotification confirma a leitura de uma notificação pelo
// motorista autenticado. Só o destinatário pode confirmar.
func (h *Handler) AcknowledgeNotification(w http.ResponseWriter, r *http.Request) {
	driverID, ok := middleware.GetDriverIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	notificationID := chi.URLParam(r, "id")

	if err := h.service.AcknowledgeNotification(r.Context(), notificationID, driverID); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotificationNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, service.ErrNotRouteDriver):
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		default:
			h.logger.Error("acknowledge notification error", zap.Error(err),
				zap.String("notificationID", notificationID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusOK)
}
