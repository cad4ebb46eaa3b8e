package earnings

import (
	"testing"
	"time"

	"github.com/acassiusalves/rotaExata-sub002/internal/model"
	"github.com/acassiusalves/rotaExata-sub002/internal/pricing"
)

func testTable() *pricing.Table {
	return &pricing.Table{
		FlatZones: map[string]int64{
			"trindade": 2000,
		},
		MetroZones: map[string][]pricing.Tier{
			"goiânia": {
				{MaxKm: 7, Centavos: 500},
				{MaxKm: 999, Centavos: 1000},
			},
		},
		DefaultCentavos:     800,
		FailedAttemptFactor: 0.2,
	}
}

// pointAtKm devolve um ponto no equador a uma distância ligeiramente
// menor que a pedida (1 grau ≈ 111,19 km), para que comparações com a
// cota superior de faixa não oscilem por arredondamento.
func pointAtKm(km float64) *model.Point {
	return &model.Point{Lat: 0, Lng: km / 111.20}
}

func TestStopValueFlatZone(t *testing.T) {
	origin := &model.Point{Lat: 0, Lng: 0}
	stop := model.Stop{
		ID:      "p1",
		City:    "Trindade",
		Coords:  pointAtKm(50),
		Outcome: model.StopOutcomeCompleted,
	}

	v, err := StopValue(stop, origin, testTable())
	if err != nil {
		t.Fatalf("StopValue error: %v", err)
	}
	if v != 2000 {
		t.Fatalf("flat zone value = %d, want 2000 regardless of distance", v)
	}
}

func TestStopValueMetroTiers(t *testing.T) {
	origin := &model.Point{Lat: 0, Lng: 0}

	tests := []struct {
		name string
		km   float64
		want int64
	}{
		{name: "within first tier", km: 5, want: 500},
		{name: "second tier", km: 12, want: 1000},
		{name: "exactly on the bound", km: 7, want: 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stop := model.Stop{ID: "p1", City: "Goiânia", Coords: pointAtKm(tt.km)}

			v, err := StopValue(stop, origin, testTable())
			if err != nil {
				t.Fatalf("StopValue error: %v", err)
			}
			if v != tt.want {
				t.Fatalf("value at %.0f km = %d, want %d", tt.km, v, tt.want)
			}
		})
	}
}

func TestStopValueMetroWithoutCoords(t *testing.T) {
	stop := model.Stop{ID: "p1", City: "Goiânia"}

	v, err := StopValue(stop, &model.Point{}, testTable())
	if err != nil {
		t.Fatalf("StopValue error: %v", err)
	}
	if v != 500 {
		t.Fatalf("value without coords = %d, want lowest tier 500", v)
	}
}

func TestStopValueBeyondLastTier(t *testing.T) {
	table := testTable()
	table.MetroZones["goiânia"] = []pricing.Tier{
		{MaxKm: 7, Centavos: 500},
		{MaxKm: 15, Centavos: 1000},
	}

	stop := model.Stop{ID: "p1", City: "Goiânia", Coords: pointAtKm(40)}

	v, err := StopValue(stop, &model.Point{Lat: 0, Lng: 0}, table)
	if err != nil {
		t.Fatalf("StopValue error: %v", err)
	}
	if v != 1000 {
		t.Fatalf("value beyond all tiers = %d, want last tier 1000", v)
	}
}

func TestStopValueUnknownZoneUsesDefault(t *testing.T) {
	stop := model.Stop{ID: "p1", City: "Anápolis"}

	v, err := StopValue(stop, nil, testTable())
	if err != nil {
		t.Fatalf("StopValue error: %v", err)
	}
	if v != 800 {
		t.Fatalf("value for unknown zone = %d, want default 800", v)
	}
}

func TestStopValueNeighborhoodBeforeCity(t *testing.T) {
	table := testTable()
	table.FlatZones["setor bueno"] = 1500

	stop := model.Stop{ID: "p1", Neighborhood: "Setor Bueno", City: "Goiânia"}

	v, err := StopValue(stop, nil, table)
	if err != nil {
		t.Fatalf("StopValue error: %v", err)
	}
	if v != 1500 {
		t.Fatalf("value = %d, want neighborhood flat rate 1500", v)
	}
}

func TestStopValueNilTable(t *testing.T) {
	_, err := StopValue(model.Stop{ID: "p1"}, nil, nil)
	if err == nil {
		t.Fatalf("expected configuration error for nil table")
	}
}

func testRoute() *model.Route {
	origin := &model.Point{Lat: 0, Lng: 0}
	return &model.Route{
		ID:        "r1",
		DriverID:  "d1",
		Status:    model.RouteStatusInProgress,
		Origin:    origin,
		CreatedAt: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
		Stops: []model.Stop{
			{ID: "p1", City: "Goiânia", Coords: pointAtKm(5), Outcome: model.StopOutcomeCompleted},
			{ID: "p2", City: "Goiânia", Coords: pointAtKm(12), Outcome: model.StopOutcomeCompleted},
			{ID: "p3", City: "Goiânia", Coords: pointAtKm(5), Outcome: model.StopOutcomeFailed, Attempted: true},
			{ID: "p4", City: "Trindade", Outcome: model.StopOutcomePending},
			{ID: "p5", City: "Trindade", Outcome: model.StopOutcomeFailed, Attempted: false},
		},
	}
}

func TestRouteEarnings(t *testing.T) {
	b, err := RouteEarnings(testRoute(), testTable())
	if err != nil {
		t.Fatalf("RouteEarnings error: %v", err)
	}

	// p1 (5 km) 500 + p2 (12 km) 1000; p3 tentativa falha 500 × 0.2.
	if b.DeliveryBonuses != 1500 {
		t.Fatalf("DeliveryBonuses = %d, want 1500", b.DeliveryBonuses)
	}
	if b.FailedAttemptBonuses != 100 {
		t.Fatalf("FailedAttemptBonuses = %d, want 100", b.FailedAttemptBonuses)
	}
	if b.TotalEarnings != 1600 {
		t.Fatalf("TotalEarnings = %d, want 1600", b.TotalEarnings)
	}
}

func TestRouteEarningsIdempotent(t *testing.T) {
	route := testRoute()
	table := testTable()

	first, err := RouteEarnings(route, table)
	if err != nil {
		t.Fatalf("RouteEarnings error: %v", err)
	}
	second, err := RouteEarnings(route, table)
	if err != nil {
		t.Fatalf("RouteEarnings error: %v", err)
	}

	if first.DeliveryBonuses != second.DeliveryBonuses ||
		first.FailedAttemptBonuses != second.FailedAttemptBonuses ||
		first.TotalEarnings != second.TotalEarnings {
		t.Fatalf("recomputation differs: %+v vs %+v", first, second)
	}
}

func TestRouteEarningsMonotonic(t *testing.T) {
	route := testRoute()
	table := testTable()

	before, err := RouteEarnings(route, table)
	if err != nil {
		t.Fatalf("RouteEarnings error: %v", err)
	}

	// Apenas o desfecho muda: uma parada pendente passa a completada.
	route.Stops[3].Outcome = model.StopOutcomeCompleted

	after, err := RouteEarnings(route, table)
	if err != nil {
		t.Fatalf("RouteEarnings error: %v", err)
	}

	if after.TotalEarnings < before.TotalEarnings {
		t.Fatalf("TotalEarnings decreased: %d -> %d", before.TotalEarnings, after.TotalEarnings)
	}
}

func TestRouteEarningsIgnoresRemovedStops(t *testing.T) {
	route := testRoute()
	route.Stops[0].Removed = true

	b, err := RouteEarnings(route, testTable())
	if err != nil {
		t.Fatalf("RouteEarnings error: %v", err)
	}
	if b.DeliveryBonuses != 1000 {
		t.Fatalf("DeliveryBonuses = %d, want 1000 without the removed stop", b.DeliveryBonuses)
	}
}

func TestRouteEarningsNilTable(t *testing.T) {
	_, err := RouteEarnings(testRoute(), nil)
	if err == nil {
		t.Fatalf("expected configuration error for nil table")
	}
}
