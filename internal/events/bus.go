// Package events publica eventos de domínio para assinantes em
// processo. A entrega específica de transporte (push, atualização de
// painel) assina externamente.
package events

import (
	"sync"
	"time"
)

// Kind identifica o tipo de evento de domínio.
type Kind string

const (
	RouteChanged        Kind = "route_changed"
	NotificationCreated Kind = "notification_created"
	EarningsRecomputed  Kind = "earnings_recomputed"
)

// Event descreve uma ocorrência de domínio já persistida.
type Event struct {
	Kind           Kind
	RouteID        string
	NotificationID string
	DriverID       string
	At             time.Time
}

// Bus é o contrato de publicação/assinatura usado pelo núcleo.
type Bus interface {
	Publish(e Event)
	Subscribe(kind Kind) <-chan Event
	Close()
}

const subscriberBuffer = 64

// ChannelBus é a implementação em processo de Bus sobre canais.
// Publicação nunca bloqueia: assinantes lentos perdem eventos, já que
// todo estado publicado é re-derivável do armazenamento.
type ChannelBus struct {
	mu     sync.Mutex
	subs   map[Kind][]chan Event
	closed bool
}

// NewChannelBus cria um bus de eventos em processo.
func NewChannelBus() *ChannelBus {
	return &ChannelBus{
		subs: make(map[Kind][]chan Event),
	}
}

// Publish entrega o evento a todos os assinantes do tipo.
func (b *ChannelBus) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	for _, ch := range b.subs[e.Kind] {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe registra um novo assinante para o tipo de evento.
func (b *ChannelBus) Subscribe(kind Kind) <-chan Event {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch
	}

	b.subs[kind] = append(b.subs[kind], ch)
	return ch
}

// Close encerra o bus e fecha os canais de todos os assinantes.
func (b *ChannelBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, chans := range b.subs {
		for _, ch := range chans {
			close(ch)
		}
	}
	b.subs = nil
}
