package reconcile

import (
	"context"
	"testing"

	"github.com/acassiusalves/rotaExata-sub002/internal/model"
)

func healthyGraph() Graph {
	return Graph{
		Batch: &model.Batch{
			ID:        "b1",
			StopPool:  []string{"p1", "p2", "p3"},
			RouteIDs:  []string{"r1", "r2"},
			StopCount: 3,
		},
		Routes: []model.Route{
			{
				ID:      "r1",
				BatchID: "b1",
				Status:  model.RouteStatusDispatched,
				DriverID: "d1",
				Stops: []model.Stop{
					{ID: "p1", OrderID: "o1"},
					{ID: "p2", OrderID: "o2"},
				},
			},
			{
				ID:      "r2",
				BatchID: "b1",
				Status:  model.RouteStatusDraft,
				Stops: []model.Stop{
					{ID: "p3", OrderID: "o3"},
				},
			},
		},
		Orders: []model.Order{
			{ID: "o1", BatchID: "b1", RouteID: "r1", Status: model.OrderStatusInRoute},
			{ID: "o2", BatchID: "b1", RouteID: "r1", Status: model.OrderStatusInRoute},
			{ID: "o3", BatchID: "b1", RouteID: "r2", Status: model.OrderStatusPending},
		},
	}
}

func violationsByCode(violations []Violation, code Code) []Violation {
	var out []Violation
	for _, v := range violations {
		if v.Code == code {
			out = append(out, v)
		}
	}
	return out
}

func TestCheckHealthyGraph(t *testing.T) {
	violations := Check(healthyGraph())
	if len(violations) != 0 {
		t.Fatalf("healthy graph reported violations: %+v", violations)
	}
}

func TestCheckDuplicateStopAcrossSiblingRoutes(t *testing.T) {
	g := healthyGraph()
	// p1 aparece também na rota irmã, como numa corrida de
	// arrastar-e-soltar.
	g.Routes[1].Stops = append(g.Routes[1].Stops, model.Stop{ID: "p1"})
	g.Batch.StopCount = 4

	violations := violationsByCode(Check(g), CodeDuplicateStop)
	if len(violations) != 1 {
		t.Fatalf("got %d duplicate violations, want exactly 1: %+v", len(violations), violations)
	}

	v := violations[0]
	if v.StopID != "p1" {
		t.Fatalf("violation stop = %s, want p1", v.StopID)
	}
	if len(v.RouteIDs) != 2 {
		t.Fatalf("violation must name both routes, got %v", v.RouteIDs)
	}
	seen := map[string]bool{}
	for _, id := range v.RouteIDs {
		seen[id] = true
	}
	if !seen["r1"] || !seen["r2"] {
		t.Fatalf("violation routes = %v, want r1 and r2", v.RouteIDs)
	}
}

func TestCheckDanglingStop(t *testing.T) {
	g := healthyGraph()
	g.Routes[0].Stops = append(g.Routes[0].Stops, model.Stop{ID: "ghost"})
	g.Batch.StopCount = 4

	violations := violationsByCode(Check(g), CodeDanglingStop)
	if len(violations) != 1 || violations[0].StopID != "ghost" {
		t.Fatalf("got %+v, want one dangling violation for ghost", violations)
	}
}

func TestCheckDraftWithDriver(t *testing.T) {
	g := healthyGraph()
	g.Routes[1].DriverID = "d9"

	violations := violationsByCode(Check(g), CodeDraftWithDriver)
	if len(violations) != 1 || violations[0].RouteIDs[0] != "r2" {
		t.Fatalf("got %+v, want one draft-with-driver violation for r2", violations)
	}
}

func TestCheckLostOrder(t *testing.T) {
	g := healthyGraph()
	g.Orders = append(g.Orders, model.Order{ID: "o9", BatchID: "b1", Status: model.OrderStatusInRoute})

	violations := violationsByCode(Check(g), CodeLostOrder)
	if len(violations) != 1 || violations[0].OrderID != "o9" {
		t.Fatalf("got %+v, want one lost-order violation for o9", violations)
	}
}

func TestCheckStatsMismatch(t *testing.T) {
	g := healthyGraph()
	g.Batch.StopCount = 7

	violations := violationsByCode(Check(g), CodeStatsMismatch)
	if len(violations) != 1 {
		t.Fatalf("got %+v, want one stats violation", violations)
	}
}

func TestCheckIgnoresRemovedStops(t *testing.T) {
	g := healthyGraph()
	// Tombstone de p1 na rota irmã não é duplicação.
	g.Routes[1].Stops = append(g.Routes[1].Stops, model.Stop{ID: "p1", Removed: true})

	if violations := Check(g); len(violations) != 0 {
		t.Fatalf("removed stop counted as live: %+v", violations)
	}
}

type stubGraphStore struct {
	graph Graph
	err   error
}

func (s *stubGraphStore) LoadBatchGraph(_ context.Context, _ string) (*model.Batch, []model.Route, []model.Order, error) {
	if s.err != nil {
		return nil, nil, nil, s.err
	}
	return s.graph.Batch, s.graph.Routes, s.graph.Orders, nil
}

func TestCheckerLoadsGraphFromStore(t *testing.T) {
	g := healthyGraph()
	g.Batch.StopCount = 5

	checker := NewChecker(&stubGraphStore{graph: g})

	violations, err := checker.Check(context.Background(), "b1")
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if len(violations) != 1 || violations[0].Code != CodeStatsMismatch {
		t.Fatalf("got %+v, want one stats violation", violations)
	}
}
