// Package reconcile verifica e repara a consistência do grafo
// batch/rotas/pedidos, cujos campos denormalizados são replicados entre
// coleções e podem divergir sob edições concorrentes.
package reconcile

import (
	"context"
	"fmt"
	"sort"

	"github.com/acassiusalves/rotaExata-sub002/internal/model"
)

// Code identifica a classe de uma violação de consistência.
type Code string

const (
	// CodeDanglingStop: rota referencia parada fora do pool do batch.
	CodeDanglingStop Code = "dangling_stop"
	// CodeDuplicateStop: mesma parada em duas rotas irmãs do batch.
	CodeDuplicateStop Code = "duplicate_stop"
	// CodeDraftWithDriver: rota em rascunho com motorista atribuído.
	CodeDraftWithDriver Code = "draft_with_driver"
	// CodeLostOrder: pedido vinculado ao batch sem parada correspondente.
	CodeLostOrder Code = "lost_order"
	// CodeStatsMismatch: contagem do batch difere da soma viva das rotas.
	CodeStatsMismatch Code = "stats_mismatch"
)

// Violation descreve uma inconsistência concreta encontrada.
// Violações são dados, não erros: o reparo é uma operação separada e
// explícita, invocada pelo chamador por violação.
type Violation struct {
	Code        Code     `json:"code"`
	BatchID     string   `json:"batch_id"`
	RouteIDs    []string `json:"route_ids,omitempty"`
	StopID      string   `json:"stop_id,omitempty"`
	OrderID     string   `json:"order_id,omitempty"`
	Description string   `json:"description"`
}

// Graph é o grafo carregado de um batch para verificação.
type Graph struct {
	Batch  *model.Batch
	Routes []model.Route
	Orders []model.Order
}

// Check percorre o grafo e reporta todas as violações encontradas.
// Nunca lança erro por problema de dados; a função é pura sobre o
// grafo carregado.
func Check(g Graph) []Violation {
	violations := make([]Violation, 0)
	violations = append(violations, checkDanglingStops(g)...)
	violations = append(violations, checkDuplicateStops(g)...)
	violations = append(violations, checkDraftDrivers(g)...)
	violations = append(violations, checkLostOrders(g)...)
	violations = append(violations, checkBatchStats(g)...)
	return violations
}

// checkDanglingStops: toda parada viva de uma rota deve existir no pool
// do batch.
func checkDanglingStops(g Graph) []Violation {
	pool := make(map[string]struct{}, len(g.Batch.StopPool))
	for _, id := range g.Batch.StopPool {
		pool[id] = struct{}{}
	}

	var out []Violation
	for _, route := range g.Routes {
		for _, stop := range route.ActiveStops() {
			if _, ok := pool[stop.ID]; ok {
				continue
			}
			out = append(out, Violation{
				Code:        CodeDanglingStop,
				BatchID:     g.Batch.ID,
				RouteIDs:    []string{route.ID},
				StopID:      stop.ID,
				Description: fmt.Sprintf("route %s references stop %s absent from batch pool", route.ID, stop.ID),
			})
		}
	}
	return out
}

// checkDuplicateStops: uma parada pertence a no máximo uma rota irmã
// (duplicações surgem de corridas de arrastar-e-soltar no painel).
// No armazenamento local a coluna única route_id torna o estado
// irrepresentável; a verificação cobre grafos importados de fontes
// externas, onde cada rota carrega sua própria lista de paradas.
func checkDuplicateStops(g Graph) []Violation {
	routesByStop := make(map[string][]string)
	for _, route := range g.Routes {
		for _, stop := range route.ActiveStops() {
			routesByStop[stop.ID] = append(routesByStop[stop.ID], route.ID)
		}
	}

	stopIDs := make([]string, 0, len(routesByStop))
	for stopID := range routesByStop {
		stopIDs = append(stopIDs, stopID)
	}
	sort.Strings(stopIDs)

	var out []Violation
	for _, stopID := range stopIDs {
		routeIDs := routesByStop[stopID]
		if len(routeIDs) < 2 {
			continue
		}
		out = append(out, Violation{
			Code:        CodeDuplicateStop,
			BatchID:     g.Batch.ID,
			RouteIDs:    routeIDs,
			StopID:      stopID,
			Description: fmt.Sprintf("stop %s assigned to %d sibling routes %v", stopID, len(routeIDs), routeIDs),
		})
	}
	return out
}

// checkDraftDrivers: motorista atribuído exige rota já despachada.
func checkDraftDrivers(g Graph) []Violation {
	var out []Violation
	for _, route := range g.Routes {
		if route.DriverID == "" || route.Status != model.RouteStatusDraft {
			continue
		}
		out = append(out, Violation{
			Code:        CodeDraftWithDriver,
			BatchID:     g.Batch.ID,
			RouteIDs:    []string{route.ID},
			Description: fmt.Sprintf("route %s has driver %s but is still in draft", route.ID, route.DriverID),
		})
	}
	return out
}

// checkLostOrders: todo pedido vinculado ao batch deve ter uma parada
// em alguma rota do batch (pedidos se perdem durante a importação).
func checkLostOrders(g Graph) []Violation {
	linked := make(map[string]struct{})
	for _, route := range g.Routes {
		for _, stop := range route.ActiveStops() {
			if stop.OrderID != "" {
				linked[stop.OrderID] = struct{}{}
			}
		}
	}

	var out []Violation
	for _, order := range g.Orders {
		if order.BatchID != g.Batch.ID {
			continue
		}
		if _, ok := linked[order.ID]; ok {
			continue
		}
		out = append(out, Violation{
			Code:        CodeLostOrder,
			BatchID:     g.Batch.ID,
			OrderID:     order.ID,
			Description: fmt.Sprintf("order %s linked to batch %s has no stop in any route", order.ID, g.Batch.ID),
		})
	}
	return out
}

// checkBatchStats: a estatística denormalizada do batch deve bater com
// a soma viva das rotas.
func checkBatchStats(g Graph) []Violation {
	live := 0
	for _, route := range g.Routes {
		live += len(route.ActiveStops())
	}

	if live == g.Batch.StopCount {
		return nil
	}
	return []Violation{{
		Code:        CodeStatsMismatch,
		BatchID:     g.Batch.ID,
		Description: fmt.Sprintf("batch stop count is %d but routes hold %d live stops", g.Batch.StopCount, live),
	}}
}

// Store descreve o acesso a dados usado pelo verificador.
type Store interface {
	LoadBatchGraph(ctx context.Context, batchID string) (*model.Batch, []model.Route, []model.Order, error)
}

// Checker carrega o grafo de um batch do armazenamento e o verifica.
type Checker struct {
	store Store
}

// NewChecker cria o verificador de consistência.
func NewChecker(store Store) *Checker {
	return &Checker{store: store}
}

// Check carrega o grafo do batch e reporta as violações. Apenas falhas
// de acesso ao armazenamento retornam erro.
func (c *Checker) Check(ctx context.Context, batchID string) ([]Violation, error) {
	batch, routes, orders, err := c.store.LoadBatchGraph(ctx, batchID)
	if err != nil {
		return nil, err
	}
	return Check(Graph{Batch: batch, Routes: routes, Orders: orders}), nil
}
