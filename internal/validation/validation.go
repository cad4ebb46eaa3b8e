// Package validation contém funções de validação de dados de entrada.
package validation

import (
	"errors"
	"fmt"

	"github.com/acassiusalves/rotaExata-sub002/internal/model"
)

// ErrValidation indica entrada malformada, rejeitada antes de qualquer
// diff ou cálculo.
var ErrValidation = errors.New("validation error")

// ValidCoords verifica se as coordenadas estão dentro das faixas
// geográficas válidas.
func ValidCoords(p model.Point) bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// ValidOutcome verifica se o desfecho informado é um dos valores
// conhecidos.
func ValidOutcome(o model.StopOutcome) bool {
	switch o {
	case model.StopOutcomePending, model.StopOutcomeCompleted, model.StopOutcomeFailed:
		return true
	}
	return false
}

// ValidateStops valida a lista de paradas de uma mutação de rota:
// identificador obrigatório, coordenadas dentro de faixa, desfecho
// conhecido e referências de pedido únicas dentro da rota.
func ValidateStops(stops []model.Stop) error {
	seenIDs := make(map[string]struct{}, len(stops))
	seenOrders := make(map[string]struct{}, len(stops))

	for i, s := range stops {
		if s.ID == "" && s.OrderID == "" {
			return fmt.Errorf("%w: stop %d has neither id nor order reference", ErrValidation, i)
		}
		if s.ID != "" {
			if _, dup := seenIDs[s.ID]; dup {
				return fmt.Errorf("%w: duplicate stop id %q", ErrValidation, s.ID)
			}
			seenIDs[s.ID] = struct{}{}
		}
		if s.OrderID != "" {
			if _, dup := seenOrders[s.OrderID]; dup {
				return fmt.Errorf("%w: duplicate order reference %q", ErrValidation, s.OrderID)
			}
			seenOrders[s.OrderID] = struct{}{}
		}
		if s.Coords != nil && !ValidCoords(*s.Coords) {
			return fmt.Errorf("%w: stop %q has coordinates out of range", ErrValidation, s.ID)
		}
		if s.Outcome != "" && !ValidOutcome(s.Outcome) {
			return fmt.Errorf("%w: stop %q has unknown outcome %q", ErrValidation, s.ID, s.Outcome)
		}
	}

	return nil
}
