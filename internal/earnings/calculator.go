// Package earnings calcula a remuneração de motoristas por parada e por
// rota, a partir da tabela de preços por zona.
package earnings

import (
	"fmt"
	"math"
	"time"

	"github.com/acassiusalves/rotaExata-sub002/internal/geo"
	"github.com/acassiusalves/rotaExata-sub002/internal/model"
	"github.com/acassiusalves/rotaExata-sub002/internal/pricing"
)

// zoneCandidates lista os textos de zona de uma parada na ordem de
// busca: bairro antes de cidade.
func zoneCandidates(stop model.Stop) []string {
	candidates := make([]string, 0, 2)
	if stop.Neighborhood != "" {
		candidates = append(candidates, stop.Neighborhood)
	}
	if stop.City != "" {
		candidates = append(candidates, stop.City)
	}
	return candidates
}

// tierAmount escolhe a faixa cuja cota superior é o menor valor maior
// ou igual à distância; distância acima de todas as faixas usa a última.
func tierAmount(tiers []pricing.Tier, distanceKm float64) int64 {
	for _, tier := range tiers {
		if distanceKm <= tier.MaxKm {
			return tier.Centavos
		}
	}
	return tiers[len(tiers)-1].Centavos
}

// StopValue calcula o valor de uma parada em centavos, conforme a zona
// de destino. Zonas de tarifa fixa ignoram distância; zonas
// metropolitanas aplicam a faixa por distância a partir da origem, ou a
// menor faixa quando as coordenadas não estão resolvidas. Destinos fora
// de qualquer zona configurada usam o valor padrão. Tabela ausente ou
// inválida é um erro de configuração, nunca zero silencioso.
func StopValue(stop model.Stop, origin *model.Point, table *pricing.Table) (int64, error) {
	if table == nil {
		return 0, fmt.Errorf("stop value: %w", pricing.ErrBadConfig)
	}

	candidates := zoneCandidates(stop)

	for _, zone := range candidates {
		if amount, ok := table.FlatAmount(zone); ok {
			return amount, nil
		}
	}

	for _, zone := range candidates {
		tiers, ok := table.Tiers(zone)
		if !ok {
			continue
		}
		if stop.Coords == nil || origin == nil {
			return tiers[0].Centavos, nil
		}
		distanceKm := geo.DistanceBetween(*origin, *stop.Coords)
		return tierAmount(tiers, distanceKm), nil
	}

	return table.DefaultCentavos, nil
}

// RouteEarnings re-deriva o detalhamento de ganhos de uma rota a partir
// dos desfechos atuais das paradas. Paradas completadas somam o valor
// integral; falhas com tentativa presencial somam o valor multiplicado
// pelo fator configurado; paradas pendentes, removidas ou falhas sem
// tentativa não contribuem. A função é uma projeção pura: desfechos
// idênticos produzem sempre o mesmo resultado, centavo a centavo
// (ComputedAt é metadado, não participa da comparação).
func RouteEarnings(route *model.Route, table *pricing.Table) (model.EarningsBreakdown, error) {
	b := model.EarningsBreakdown{
		RouteID:          route.ID,
		DriverID:         route.DriverID,
		RouteCreatedAt:   route.CreatedAt,
		RouteCompletedAt: route.CompletedAt,
	}

	if table == nil {
		return b, fmt.Errorf("route earnings: %w", pricing.ErrBadConfig)
	}

	for _, stop := range route.Stops {
		if stop.Removed {
			continue
		}

		switch stop.Outcome {
		case model.StopOutcomeCompleted:
			v, err := StopValue(stop, route.Origin, table)
			if err != nil {
				return model.EarningsBreakdown{}, err
			}
			b.DeliveryBonuses += v
		case model.StopOutcomeFailed:
			if !stop.Attempted {
				continue
			}
			v, err := StopValue(stop, route.Origin, table)
			if err != nil {
				return model.EarningsBreakdown{}, err
			}
			b.FailedAttemptBonuses += int64(math.Round(float64(v) * table.FailedAttemptFactor))
		}
	}

	b.TotalEarnings = b.DeliveryBonuses + b.FailedAttemptBonuses
	b.ComputedAt = time.Now().UTC()
	return b, nil
}
