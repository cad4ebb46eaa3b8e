// Package push define o contrato de envio de notificações push para o
// aplicativo do motorista. A entrega não é garantida: a confirmação do
// motorista, e não o envio, é o sinal autoritativo de fechamento.
package push

import (
	"context"

	"go.uber.org/zap"
)

// Transport envia um aviso de notificação pendente ao motorista.
// Fire-and-forget: falhas são registradas, nunca propagadas como erro
// de negócio.
type Transport interface {
	Send(ctx context.Context, driverID, notificationID string) error
}

// LogTransport registra os envios no log em vez de entregá-los. É o
// adaptador padrão quando nenhum provedor externo está configurado.
type LogTransport struct {
	logger *zap.Logger
}

// NewLogTransport cria um transporte que apenas registra os envios.
func NewLogTransport(logger *zap.Logger) *LogTransport {
	return &LogTransport{logger: logger}
}

// Send registra o aviso no log.
func (t *LogTransport) Send(_ context.Context, driverID, notificationID string) error {
	t.logger.Info("push notification",
		zap.String("driverID", driverID),
		zap.String("notificationID", notificationID),
	)
	return nil
}
