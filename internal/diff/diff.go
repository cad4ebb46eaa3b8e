// Package diff compara dois snapshots da lista de paradas de uma rota
// e produz os registros de mudança exibidos ao motorista.
package diff

import (
	"sort"
	"strconv"
	"strings"

	"github.com/acassiusalves/rotaExata-sub002/internal/model"
)

// key identifica uma parada de forma estável entre snapshots: o
// identificador da parada, ou a referência de pedido quando o chamador
// não garante reutilização de identificadores.
func key(s model.Stop) string {
	if s.ID != "" {
		return s.ID
	}
	return "order:" + s.OrderID
}

// addressOf retorna o endereço formatado comparável de uma parada.
// Coordenadas resolvidas participam da comparação de endereço.
func addressOf(s model.Stop) string {
	if s.Coords == nil {
		return s.Address
	}
	return s.Address + " @" +
		strconv.FormatFloat(s.Coords.Lat, 'f', 6, 64) + "," +
		strconv.FormatFloat(s.Coords.Lng, 'f', 6, 64)
}

// dataOf resume os demais campos rastreados de uma parada (telefone,
// observações, janela de horário) para a comparação do tipo data.
func dataOf(s model.Stop) string {
	parts := make([]string, 0, 3)
	if s.Phone != "" {
		parts = append(parts, "phone="+s.Phone)
	}
	if s.Notes != "" {
		parts = append(parts, "notes="+s.Notes)
	}
	if s.TimeWindow != "" {
		parts = append(parts, "window="+s.TimeWindow)
	}
	return strings.Join(parts, "; ")
}

// effectiveIndex é o índice usado na ordenação dos registros: o novo
// índice quando existe, senão o antigo (registros removed).
func effectiveIndex(c model.ChangeRecord) int {
	if c.NewIndex >= 0 {
		return c.NewIndex
	}
	return c.OldIndex
}

// sortRecords ordena registros de forma estável: índice efetivo
// crescente e, em empate, pelo nome do tipo.
func sortRecords(records []model.ChangeRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		ii, jj := effectiveIndex(records[i]), effectiveIndex(records[j])
		if ii != jj {
			return ii < jj
		}
		return records[i].Type < records[j].Type
	})
}

// Diff compara dois snapshots ordenados de paradas e emite a lista de
// mudanças detectadas. A função é pura e determinística: os mesmos
// snapshots produzem sempre a mesma saída, na mesma ordem. Uma parada
// pode gerar mais de um registro (ex.: movida e com endereço alterado);
// remoção e adição na mesma posição são sempre dois registros
// independentes, nunca uma substituição. Ausência de mudanças resulta
// em lista vazia.
func Diff(oldStops, newStops []model.Stop) []model.ChangeRecord {
	oldIndex := make(map[string]int, len(oldStops))
	for i, s := range oldStops {
		oldIndex[key(s)] = i
	}
	newIndex := make(map[string]int, len(newStops))
	for i, s := range newStops {
		newIndex[key(s)] = i
	}

	records := make([]model.ChangeRecord, 0)

	for j, s := range newStops {
		k := key(s)
		i, existed := oldIndex[k]
		if !existed {
			records = append(records, model.ChangeRecord{
				StopID:   k,
				Type:     model.ChangeAdded,
				OldIndex: -1,
				NewIndex: j,
				NewValue: s.Address,
			})
			continue
		}

		old := oldStops[i]

		if i != j {
			records = append(records, model.ChangeRecord{
				StopID:   k,
				Type:     model.ChangeSequence,
				OldIndex: i,
				NewIndex: j,
				OldValue: strconv.Itoa(i),
				NewValue: strconv.Itoa(j),
			})
		}

		if addressOf(old) != addressOf(s) {
			records = append(records, model.ChangeRecord{
				StopID:   k,
				Type:     model.ChangeAddress,
				OldIndex: i,
				NewIndex: j,
				OldValue: old.Address,
				NewValue: s.Address,
			})
		} else if dataOf(old) != dataOf(s) {
			records = append(records, model.ChangeRecord{
				StopID:   k,
				Type:     model.ChangeData,
				OldIndex: i,
				NewIndex: j,
				OldValue: dataOf(old),
				NewValue: dataOf(s),
			})
		}
	}

	for i, s := range oldStops {
		k := key(s)
		if _, still := newIndex[k]; !still {
			records = append(records, model.ChangeRecord{
				StopID:   k,
				Type:     model.ChangeRemoved,
				OldIndex: i,
				NewIndex: -1,
				OldValue: s.Address,
			})
		}
	}

	sortRecords(records)
	return records
}

// Merge incorpora novas mudanças a um lote pendente: concatena os dois
// conjuntos, deduplica por (parada, tipo) preservando o valor antigo do
// registro mais velho — o motorista vê a mudança líquida desde a última
// confirmação — e reordena pelo critério de Diff.
func Merge(existing, incoming []model.ChangeRecord) []model.ChangeRecord {
	type recordKey struct {
		stopID string
		typ    model.ChangeType
	}

	merged := make([]model.ChangeRecord, 0, len(existing)+len(incoming))
	byKey := make(map[recordKey]int, len(existing))

	for _, c := range existing {
		byKey[recordKey{c.StopID, c.Type}] = len(merged)
		merged = append(merged, c)
	}

	for _, c := range incoming {
		k := recordKey{c.StopID, c.Type}
		if at, seen := byKey[k]; seen {
			prev := merged[at]
			c.OldIndex = prev.OldIndex
			c.OldValue = prev.OldValue
			merged[at] = c
			continue
		}
		byKey[k] = len(merged)
		merged = append(merged, c)
	}

	sortRecords(merged)
	return merged
}
