// Package service implementa a lógica de negócio do núcleo rotaExata:
// mutações de rota com detecção de mudanças, registro de desfechos e
// recálculo de ganhos.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/acassiusalves/rotaExata-sub002/internal/diff"
	"github.com/acassiusalves/rotaExata-sub002/internal/earnings"
	"github.com/acassiusalves/rotaExata-sub002/internal/events"
	"github.com/acassiusalves/rotaExata-sub002/internal/geocode"
	"github.com/acassiusalves/rotaExata-sub002/internal/model"
	"github.com/acassiusalves/rotaExata-sub002/internal/pricing"
	"github.com/acassiusalves/rotaExata-sub002/internal/reconcile"
	"github.com/acassiusalves/rotaExata-sub002/internal/repository"
	"github.com/acassiusalves/rotaExata-sub002/internal/validation"
)

// Repository descreve o contrato de acesso a dados usado pelo serviço.
type Repository interface {
	Close() error
	CreateBatch(ctx context.Context, b *model.Batch) error
	GetBatch(ctx context.Context, id string) (*model.Batch, error)
	CreateRoute(ctx context.Context, route *model.Route) error
	GetRoute(ctx context.Context, id string) (*model.Route, error)
	AssignDriver(ctx context.Context, routeID, driverID string) error
	UpdateRouteStatus(ctx context.Context, routeID string, status model.RouteStatus) error
	ReplaceRouteStops(ctx context.Context, routeID string, stops []model.Stop) ([]model.Stop, *model.Route, error)
	SetStopOutcome(ctx context.Context, stopID string, outcome model.StopOutcome, attempted bool) (string, error)
	CreateOrder(ctx context.Context, o *model.Order) error
	UpsertEarnings(ctx context.Context, id string, b model.EarningsBreakdown) error
	GetEarnings(ctx context.Context, routeID string) (*model.EarningsBreakdown, error)
	DirtyRoutes(ctx context.Context, limit int) ([]repository.DirtyRoute, error)
	ClearEarningsDirty(ctx context.Context, routeID string, revision int64) error
	LoadBatchGraph(ctx context.Context, batchID string) (*model.Batch, []model.Route, []model.Order, error)
	RemoveStopFromRoute(ctx context.Context, routeID, stopID string) error
	RemoveFromPool(ctx context.Context, batchID, stopID string) error
	ClearDraftDriver(ctx context.Context, routeID string) error
	UnlinkOrder(ctx context.Context, orderID string) error
	RefreshBatchStats(ctx context.Context, batchID string) error
}

// ErrNotRouteDriver indica que o motorista autenticado não é o dono da
// notificação que tentou ler ou confirmar.
var ErrNotRouteDriver = errors.New("notification belongs to another driver")

// Notifier descreve o serviço de notificações usado pela orquestração.
type Notifier interface {
	RecordChanges(ctx context.Context, routeID, driverID string, changes []model.ChangeRecord) (*model.RouteChangeNotification, error)
	Get(ctx context.Context, notificationID string) (*model.RouteChangeNotification, error)
	Acknowledge(ctx context.Context, notificationID string) error
	Pending(ctx context.Context, routeID string) (*model.RouteChangeNotification, error)
}

// Geocoder descreve o provedor externo de geocodificação.
type Geocoder interface {
	Resolve(ctx context.Context, address string) (*model.Point, string, error)
}

// Service contém a lógica de negócio do núcleo rotaExata.
type Service struct {
	repo     Repository
	notifier Notifier
	pricing  *pricing.Table
	bus      events.Bus
	geocoder Geocoder
	logger   *zap.Logger

	recalcInterval  time.Duration
	recalcBatchSize int
	recalcWorkers   int
}

// Options configura dependências opcionais do serviço.
type Options struct {
	Geocoder        Geocoder
	RecalcInterval  time.Duration
	RecalcBatchSize int
	RecalcWorkers   int
}

// NewService cria o serviço principal. A tabela de preços é
// obrigatória: sem ela não há cálculo de ganhos.
func NewService(repo Repository, notifier Notifier, table *pricing.Table, bus events.Bus, logger *zap.Logger, opts Options) (*Service, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}

	s := &Service{
		repo:            repo,
		notifier:        notifier,
		pricing:         table,
		bus:             bus,
		geocoder:        opts.Geocoder,
		logger:          logger,
		recalcInterval:  opts.RecalcInterval,
		recalcBatchSize: opts.RecalcBatchSize,
		recalcWorkers:   opts.RecalcWorkers,
	}
	if s.recalcInterval <= 0 {
		s.recalcInterval = 30 * time.Second
	}
	if s.recalcBatchSize <= 0 {
		s.recalcBatchSize = 100
	}
	if s.recalcWorkers <= 0 {
		s.recalcWorkers = 4
	}
	return s, nil
}

// Close libera os recursos do serviço.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// CreateBatch registra um novo batch de importação.
func (s *Service) CreateBatch(ctx context.Context, b *model.Batch) error {
	if b.ID == "" {
		return fmt.Errorf("%w: batch id is required", validation.ErrValidation)
	}
	if b.Status == "" {
		b.Status = "open"
	}
	return s.repo.CreateBatch(ctx, b)
}

// GetBatch retorna um batch pelo identificador.
func (s *Service) GetBatch(ctx context.Context, id string) (*model.Batch, error) {
	return s.repo.GetBatch(ctx, id)
}

// CreateRoute registra uma nova rota com suas paradas.
func (s *Service) CreateRoute(ctx context.Context, route *model.Route) error {
	if route.ID == "" {
		return fmt.Errorf("%w: route id is required", validation.ErrValidation)
	}
	if err := validation.ValidateStops(route.Stops); err != nil {
		return err
	}
	assignStopIDs(route.Stops)
	s.resolveMissingCoords(ctx, route.Stops)
	return s.repo.CreateRoute(ctx, route)
}

// GetRoute retorna uma rota com suas paradas.
func (s *Service) GetRoute(ctx context.Context, id string) (*model.Route, error) {
	return s.repo.GetRoute(ctx, id)
}

// CreateOrder registra um pedido de origem.
func (s *Service) CreateOrder(ctx context.Context, o *model.Order) error {
	if o.ID == "" {
		return fmt.Errorf("%w: order id is required", validation.ErrValidation)
	}
	if o.Status == "" {
		o.Status = model.OrderStatusPending
	}
	return s.repo.CreateOrder(ctx, o)
}

// DispatchRoute atribui o motorista e despacha a rota.
func (s *Service) DispatchRoute(ctx context.Context, routeID, driverID string) error {
	if driverID == "" {
		return fmt.Errorf("%w: driver id is required", validation.ErrValidation)
	}
	return s.repo.AssignDriver(ctx, routeID, driverID)
}

// UpdateRouteStatus altera o status do ciclo de vida da rota.
func (s *Service) UpdateRouteStatus(ctx context.Context, routeID string, status model.RouteStatus) error {
	switch status {
	case model.RouteStatusDraft, model.RouteStatusDispatched, model.RouteStatusInProgress, model.RouteStatusCompleted:
	default:
		return fmt.Errorf("%w: unknown route status %q", validation.ErrValidation, status)
	}
	return s.repo.UpdateRouteStatus(ctx, routeID, status)
}

// assignStopIDs gera identificadores para paradas novas enviadas só
// com a referência de pedido.
func assignStopIDs(stops []model.Stop) {
	for i := range stops {
		if stops[i].ID == "" {
			stops[i].ID = uuid.NewString()
		}
	}
}

// resolveMissingCoords tenta geocodificar paradas editadas sem
// coordenadas. Melhor esforço: falhas apenas deixam a parada sem
// coordenadas (o cálculo de ganhos cai na menor faixa da zona).
func (s *Service) resolveMissingCoords(ctx context.Context, stops []model.Stop) {
	if s.geocoder == nil {
		return
	}
	for i := range stops {
		if stops[i].Coords != nil || stops[i].Address == "" {
			continue
		}
		point, formatted, err := s.geocoder.Resolve(ctx, stops[i].Address)
		if err != nil {
			if !errors.Is(err, geocode.ErrNotFound) {
				s.logger.Warn("geocode failed", zap.String("address", stops[i].Address), zap.Error(err))
			}
			continue
		}
		stops[i].Coords = point
		if formatted != "" {
			stops[i].Address = formatted
		}
	}
}

// UpdateRouteStops aplica uma edição do despachante à lista de paradas
// da rota: substitui o snapshot, calcula o diff contra o anterior e,
// para rotas já despachadas, registra as mudanças para o motorista. O
// despacho inicial (snapshot anterior vazio) não gera notificação, pois
// nada era visível ao motorista antes.
func (s *Service) UpdateRouteStops(ctx context.Context, routeID string, stops []model.Stop) (*model.Route, []model.ChangeRecord, error) {
	if err := validation.ValidateStops(stops); err != nil {
		return nil, nil, err
	}
	assignStopIDs(stops)

	s.resolveMissingCoords(ctx, stops)

	oldSnapshot, route, err := s.repo.ReplaceRouteStops(ctx, routeID, stops)
	if err != nil {
		return nil, nil, err
	}

	changes := diff.Diff(oldSnapshot, route.ActiveStops())

	if s.bus != nil && len(changes) > 0 {
		s.bus.Publish(events.Event{
			Kind:     events.RouteChanged,
			RouteID:  route.ID,
			DriverID: route.DriverID,
		})
	}

	if s.shouldNotify(route, oldSnapshot, changes) {
		if _, err := s.notifier.RecordChanges(ctx, route.ID, route.DriverID, changes); err != nil {
			return nil, nil, fmt.Errorf("record changes: %w", err)
		}
	}

	return route, changes, nil
}

// shouldNotify decide se a edição gera notificação: apenas rotas já
// despachadas, com snapshot anterior não vazio e diff não vazio.
func (s *Service) shouldNotify(route *model.Route, oldSnapshot []model.Stop, changes []model.ChangeRecord) bool {
	if s.notifier == nil || len(changes) == 0 || len(oldSnapshot) == 0 {
		return false
	}
	return route.Status != model.RouteStatusDraft && route.DriverID != ""
}

// RecordStopOutcome registra o desfecho de uma parada e recalcula os
// ganhos da rota imediatamente.
func (s *Service) RecordStopOutcome(ctx context.Context, stopID string, outcome model.StopOutcome, attempted bool) error {
	if !validation.ValidOutcome(outcome) {
		return fmt.Errorf("%w: unknown outcome %q", validation.ErrValidation, outcome)
	}

	routeID, err := s.repo.SetStopOutcome(ctx, stopID, outcome, attempted)
	if err != nil {
		return err
	}

	return s.RecalculateEarnings(ctx, routeID)
}

// RecalculateEarnings re-deriva o detalhamento de ganhos de uma rota a
// partir dos desfechos atuais. Idempotente: recomputar uma rota
// inalterada produz o mesmo resultado.
func (s *Service) RecalculateEarnings(ctx context.Context, routeID string) error {
	route, err := s.repo.GetRoute(ctx, routeID)
	if err != nil {
		return err
	}

	if route.DriverID == "" {
		// Sem motorista não há a quem remunerar; nada a gravar.
		return s.repo.ClearEarningsDirty(ctx, route.ID, route.Revision)
	}

	breakdown, err := earnings.RouteEarnings(route, s.pricing)
	if err != nil {
		return err
	}

	id := route.ID + ":" + route.DriverID
	if err := s.repo.UpsertEarnings(ctx, id, breakdown); err != nil {
		return err
	}

	if err := s.repo.ClearEarningsDirty(ctx, route.ID, route.Revision); err != nil {
		return err
	}

	if s.bus != nil {
		s.bus.Publish(events.Event{
			Kind:     events.EarningsRecomputed,
			RouteID:  route.ID,
			DriverID: route.DriverID,
		})
	}
	return nil
}

// GetEarnings retorna o detalhamento de ganhos calculado da rota.
func (s *Service) GetEarnings(ctx context.Context, routeID string) (*model.EarningsBreakdown, error) {
	return s.repo.GetEarnings(ctx, routeID)
}

// RecalculateDirty recalcula em paralelo as rotas marcadas. Cada rota é
// independente; uma mesma rota nunca é recalculada por dois workers no
// mesmo lote.
func (s *Service) RecalculateDirty(ctx context.Context) error {
	dirty, err := s.repo.DirtyRoutes(ctx, s.recalcBatchSize)
	if err != nil {
		return err
	}
	if len(dirty) == 0 {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.recalcWorkers)

	for _, d := range dirty {
		d := d
		g.Go(func() error {
			if err := s.RecalculateEarnings(ctx, d.ID); err != nil {
				s.logger.Error("earnings recalculation failed",
					zap.String("routeID", d.ID), zap.Error(err))
			}
			return nil
		})
	}

	return g.Wait()
}

// StartRecalcWorker inicia o processo de fundo que recalcula ganhos de
// rotas marcadas, no intervalo configurado, até o contexto encerrar.
func (s *Service) StartRecalcWorker(ctx context.Context) {
	ticker := time.NewTicker(s.recalcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.RecalculateDirty(ctx); err != nil {
				s.logger.Error("recalculation batch failed", zap.Error(err))
			}
		}
	}
}

// AcknowledgeNotification confirma uma notificação em nome do
// motorista. Só o motorista destinatário pode confirmar.
func (s *Service) AcknowledgeNotification(ctx context.Context, notificationID, driverID string) error {
	n, err := s.notifier.Get(ctx, notificationID)
	if err != nil {
		return err
	}
	if n.DriverID != driverID {
		return ErrNotRouteDriver
	}
	return s.notifier.Acknowledge(ctx, notificationID)
}

// PendingNotification retorna a notificação pendente da rota, se
// houver. Só o motorista destinatário pode lê-la.
func (s *Service) PendingNotification(ctx context.Context, routeID, driverID string) (*model.RouteChangeNotification, error) {
	n, err := s.notifier.Pending(ctx, routeID)
	if err != nil {
		return nil, err
	}
	if n.DriverID != driverID {
		return nil, ErrNotRouteDriver
	}
	return n, nil
}

// ReconcileBatch verifica a consistência do grafo do batch e retorna as
// violações encontradas, sem reparar nada.
func (s *Service) ReconcileBatch(ctx context.Context, batchID string) ([]reconcile.Violation, error) {
	checker := reconcile.NewChecker(s.repo)
	return checker.Check(ctx, batchID)
}

// RepairViolation executa o reparo explícito de uma violação reportada
// pela verificação. Cada classe de violação tem exatamente um reparo.
func (s *Service) RepairViolation(ctx context.Context, v reconcile.Violation) error {
	switch v.Code {
	case reconcile.CodeDanglingStop:
		if len(v.RouteIDs) == 0 {
			return fmt.Errorf("%w: dangling repair requires the route id", validation.ErrValidation)
		}
		return s.repo.RemoveStopFromRoute(ctx, v.RouteIDs[0], v.StopID)

	case reconcile.CodeDuplicateStop:
		// A primeira rota fica com a parada; as demais perdem.
		if len(v.RouteIDs) < 2 {
			return fmt.Errorf("%w: duplicate repair requires both route ids", validation.ErrValidation)
		}
		for _, routeID := range v.RouteIDs[1:] {
			if err := s.repo.RemoveStopFromRoute(ctx, routeID, v.StopID); err != nil {
				return err
			}
		}
		return nil

	case reconcile.CodeDraftWithDriver:
		if len(v.RouteIDs) == 0 {
			return fmt.Errorf("%w: draft repair requires the route id", validation.ErrValidation)
		}
		return s.repo.ClearDraftDriver(ctx, v.RouteIDs[0])

	case reconcile.CodeLostOrder:
		return s.repo.UnlinkOrder(ctx, v.OrderID)

	case reconcile.CodeStatsMismatch:
		return s.repo.RefreshBatchStats(ctx, v.BatchID)

	default:
		return fmt.Errorf("%w: unknown violation code %q", validation.ErrValidation, v.Code)
	}
}
