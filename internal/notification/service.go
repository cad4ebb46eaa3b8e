// Package notification gerencia o ciclo de vida das notificações de
// mudança de rota: NONE → PENDING → ACKNOWLEDGED.
package notification

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/acassiusalves/rotaExata-sub002/internal/diff"
	"github.com/acassiusalves/rotaExata-sub002/internal/events"
	"github.com/acassiusalves/rotaExata-sub002/internal/model"
	"github.com/acassiusalves/rotaExata-sub002/internal/push"
	"github.com/acassiusalves/rotaExata-sub002/internal/repository"
)

// Store descreve o contrato de persistência usado pelo serviço de
// notificações.
type Store interface {
	GetNotification(ctx context.Context, id string) (*model.RouteChangeNotification, error)
	PendingNotificationByRoute(ctx context.Context, routeID string) (*model.RouteChangeNotification, error)
	InsertNotification(ctx context.Context, n *model.RouteChangeNotification) error
	UpdateNotificationChanges(ctx context.Context, id string, changes []model.ChangeRecord) error
	AcknowledgeNotification(ctx context.Context, id string, at time.Time) (bool, error)
}

// Service aplica a máquina de estados das notificações sobre o
// armazenamento compartilhado.
type Service struct {
	store     Store
	bus       events.Bus
	transport push.Transport
	logger    *zap.Logger
}

// NewService cria o serviço de notificações. Bus e transporte são
// opcionais.
func NewService(store Store, bus events.Bus, transport push.Transport, logger *zap.Logger) *Service {
	return &Service{
		store:     store,
		bus:       bus,
		transport: transport,
		logger:    logger,
	}
}

const recordAttempts = 4

// RecordChanges registra um lote de mudanças para a rota. Lista vazia é
// no-op. Se já existe notificação pendente, as mudanças são mescladas
// nela (o motorista nunca recebe dois avisos separados por edições
// feitas antes de abrir o aplicativo); senão uma nova é criada. A
// corrida entre escritores concorrentes é resolvida re-tentando o ciclo
// leitura-merge-escrita, que é idempotente.
func (s *Service) RecordChanges(ctx context.Context, routeID, driverID string, changes []model.ChangeRecord) (*model.RouteChangeNotification, error) {
	if len(changes) == 0 {
		return nil, nil
	}

	var (
		result  *model.RouteChangeNotification
		created bool
	)

	backoff := retry.WithMaxRetries(recordAttempts, retry.NewConstant(50*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		pending, err := s.store.PendingNotificationByRoute(ctx, routeID)
		switch {
		case err == nil:
			merged := diff.Merge(pending.Changes, changes)
			if err := s.store.UpdateNotificationChanges(ctx, pending.ID, merged); err != nil {
				if errors.Is(err, repository.ErrStaleNotification) {
					return retry.RetryableError(err)
				}
				return err
			}
			pending.Changes = merged
			result = pending
			created = false
			return nil

		case errors.Is(err, repository.ErrNotificationNotFound):
			n := &model.RouteChangeNotification{
				ID:       uuid.NewString(),
				RouteID:  routeID,
				DriverID: driverID,
				Changes:  diff.Merge(nil, changes),
			}
			if err := s.store.InsertNotification(ctx, n); err != nil {
				if errors.Is(err, repository.ErrPendingExists) {
					return retry.RetryableError(err)
				}
				return err
			}
			result = n
			created = true
			return nil

		default:
			return err
		}
	})
	if err != nil {
		return nil, err
	}

	if created {
		s.notify(ctx, result)
	}

	return result, nil
}

// notify dispara o aviso push e o evento de domínio para uma
// notificação recém-criada. Falhas de envio não são erros de negócio: a
// confirmação do motorista é o sinal autoritativo.
func (s *Service) notify(ctx context.Context, n *model.RouteChangeNotification) {
	if s.bus != nil {
		s.bus.Publish(events.Event{
			Kind:           events.NotificationCreated,
			RouteID:        n.RouteID,
			NotificationID: n.ID,
			DriverID:       n.DriverID,
		})
	}

	if s.transport != nil {
		if err := s.transport.Send(ctx, n.DriverID, n.ID); err != nil {
			s.logger.Warn("push send failed",
				zap.String("notificationID", n.ID),
				zap.Error(err),
			)
		}
	}
}

// Get retorna uma notificação pelo identificador, ou
// repository.ErrNotificationNotFound.
func (s *Service) Get(ctx context.Context, notificationID string) (*model.RouteChangeNotification, error) {
	return s.store.GetNotification(ctx, notificationID)
}

// Acknowledge confirma a notificação em nome do motorista. Confirmar
// uma notificação já confirmada é no-op (o primeiro carimbo é
// preservado); confirmar uma inexistente retorna
// repository.ErrNotificationNotFound.
func (s *Service) Acknowledge(ctx context.Context, notificationID string) error {
	_, err := s.store.AcknowledgeNotification(ctx, notificationID, time.Now().UTC())
	return err
}

// Pending retorna a notificação não confirmada da rota, ou
// repository.ErrNotificationNotFound.
func (s *Service) Pending(ctx context.Context, routeID string) (*model.RouteChangeNotification, error) {
	return s.store.PendingNotificationByRoute(ctx, routeID)
}
