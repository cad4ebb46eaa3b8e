// Package model contém as entidades de domínio do núcleo rotaExata.
package model

import "time"

// Point representa uma coordenada geográfica resolvida.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// StopOutcome descreve o desfecho de entrega de uma parada.
type StopOutcome string

const (
	StopOutcomePending   StopOutcome = "pending"
	StopOutcomeCompleted StopOutcome = "completed"
	StopOutcomeFailed    StopOutcome = "failed"
)

// Stop representa um ponto de entrega dentro de uma rota.
// Coordenadas e referência de pedido são opcionais; a posição na rota
// é dada pela ordem da lista de paradas.
type Stop struct {
	ID           string      `json:"id"`
	OrderID      string      `json:"order_id,omitempty"`
	Address      string      `json:"address"`
	City         string      `json:"city,omitempty"`
	Neighborhood string      `json:"neighborhood,omitempty"`
	Postal       string      `json:"postal,omitempty"`
	Coords       *Point      `json:"coords,omitempty"`
	Phone        string      `json:"phone,omitempty"`
	Notes        string      `json:"notes,omitempty"`
	TimeWindow   string      `json:"time_window,omitempty"`
	Outcome      StopOutcome `json:"outcome"`
	Attempted    bool        `json:"attempted"`
	// Removed marca a parada como removida da rota (tombstone).
	// Paradas nunca são apagadas enquanto referenciadas, para que o
	// histórico e o diff continuem corretos.
	Removed bool `json:"removed,omitempty"`
}

// RouteStatus descreve o ciclo de vida de uma rota.
type RouteStatus string

const (
	RouteStatusDraft      RouteStatus = "draft"
	RouteStatusDispatched RouteStatus = "dispatched"
	RouteStatusInProgress RouteStatus = "in_progress"
	RouteStatusCompleted  RouteStatus = "completed"
)

// Route é uma sequência ordenada de paradas atribuível a um motorista.
// Revision cresce monotonicamente a cada mutação da lista de paradas e
// identifica de qual snapshot uma notificação foi derivada.
type Route struct {
	ID          string      `json:"id"`
	BatchID     string      `json:"batch_id,omitempty"`
	DriverID    string      `json:"driver_id,omitempty"`
	Status      RouteStatus `json:"status"`
	Origin      *Point      `json:"origin,omitempty"`
	ColorTag    string      `json:"color_tag,omitempty"`
	Revision    int64       `json:"revision"`
	Stops       []Stop      `json:"stops"`
	CreatedAt   time.Time   `json:"created_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

// ActiveStops retorna as paradas não removidas, na ordem da rota.
func (r *Route) ActiveStops() []Stop {
	out := make([]Stop, 0, len(r.Stops))
	for _, s := range r.Stops {
		if !s.Removed {
			out = append(out, s)
		}
	}
	return out
}

// Batch agrega pedidos importados em uma ou mais rotas derivadas de um
// mesmo pool de paradas.
type Batch struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Origin    *Point    `json:"origin,omitempty"`
	StopPool  []string  `json:"stop_pool"`
	RouteIDs  []string  `json:"route_ids"`
	StopCount int       `json:"stop_count"`
	CreatedAt time.Time `json:"created_at"`
}

// OrderStatus descreve o estado logístico de um pedido.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusInRoute   OrderStatus = "in_route"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusReturned  OrderStatus = "returned"
)

// Order representa um pedido de origem vinculado a um batch/rota.
type Order struct {
	ID        string      `json:"id"`
	BatchID   string      `json:"batch_id,omitempty"`
	RouteID   string      `json:"route_id,omitempty"`
	Status    OrderStatus `json:"status"`
	Customer  string      `json:"customer,omitempty"`
	Address   string      `json:"address,omitempty"`
	City      string      `json:"city,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// ChangeType classifica uma diferença detectada entre dois snapshots.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeRemoved  ChangeType = "removed"
	ChangeSequence ChangeType = "sequence"
	ChangeAddress  ChangeType = "address"
	ChangeData     ChangeType = "data"
)

// ChangeRecord é uma diferença atômica entre dois snapshots da lista
// de paradas. Registros são apenas produzidos, nunca mutados. Índices
// valem -1 quando não se aplicam ao tipo da mudança.
type ChangeRecord struct {
	StopID   string     `json:"stop_id"`
	Type     ChangeType `json:"type"`
	OldIndex int        `json:"old_index"`
	NewIndex int        `json:"new_index"`
	OldValue string     `json:"old_value,omitempty"`
	NewValue string     `json:"new_value,omitempty"`
}

// RouteChangeNotification é o lote de mudanças pendente de confirmação
// pelo motorista. No máximo uma notificação não confirmada existe por
// rota; mutações subsequentes são mescladas na pendente.
type RouteChangeNotification struct {
	ID             string         `json:"id"`
	RouteID        string         `json:"route_id"`
	DriverID       string         `json:"driver_id"`
	Changes        []ChangeRecord `json:"changes"`
	Acknowledged   bool           `json:"acknowledged"`
	CreatedAt      time.Time      `json:"created_at"`
	AcknowledgedAt *time.Time     `json:"acknowledged_at,omitempty"`
}

// EarningsBreakdown é a projeção de ganhos de um motorista em uma rota.
// Valores em centavos; recomputável a qualquer momento a partir dos
// desfechos das paradas, sem outros insumos.
type EarningsBreakdown struct {
	RouteID              string     `json:"route_id"`
	DriverID             string     `json:"driver_id"`
	DeliveryBonuses      int64      `json:"delivery_bonuses"`
	FailedAttemptBonuses int64      `json:"failed_attempt_bonuses"`
	TotalEarnings        int64      `json:"total_earnings"`
	ComputedAt           time.Time  `json:"computed_at"`
	RouteCreatedAt       time.Time  `json:"route_created_at"`
	RouteCompletedAt     *time.Time `json:"route_completed_at,omitempty"`
}
