// Package geo contém cálculos geográficos puros.
package geo

import (
	"math"

	"github.com/acassiusalves/rotaExata-sub002/internal/model"
)

// earthRadiusKm é o raio médio da Terra em quilômetros.
const earthRadiusKm = 6371

func toRadians(degree float64) float64 {
	return degree * math.Pi / 180
}

// Distance calcula a distância de círculo máximo (Haversine) entre duas
// coordenadas, em quilômetros.
func Distance(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := toRadians(lat1)
	phi2 := toRadians(lat2)
	deltaPhi := toRadians(lat2 - lat1)
	deltaLambda := toRadians(lng2 - lng1)

	a := math.Sin(deltaPhi/2)*math.Sin(deltaPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*
			math.Sin(deltaLambda/2)*math.Sin(deltaLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

// DistanceBetween calcula a distância entre dois pontos resolvidos.
func DistanceBetween(a, b model.Point) float64 {
	return Distance(a.Lat, a.Lng, b.Lat, b.Lng)
}
