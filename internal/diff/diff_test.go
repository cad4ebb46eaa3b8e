package diff

import (
	"reflect"
	"testing"

	"github.com/acassiusalves/rotaExata-sub002/internal/model"
)

func stop(id, address string) model.Stop {
	return model.Stop{ID: id, Address: address, Outcome: model.StopOutcomePending}
}

func TestDiffIdenticalSnapshots(t *testing.T) {
	stops := []model.Stop{stop("p1", "Rua A, 10"), stop("p2", "Rua B, 20")}

	records := Diff(stops, stops)
	if len(records) != 0 {
		t.Fatalf("diff(A, A) = %+v, want empty", records)
	}
}

func TestDiffDeterministic(t *testing.T) {
	oldStops := []model.Stop{stop("p1", "Rua A, 10"), stop("p2", "Rua B, 20"), stop("p3", "Rua C, 30")}
	newStops := []model.Stop{stop("p3", "Rua C, 35"), stop("p1", "Rua A, 10"), stop("p4", "Rua D, 40")}

	first := Diff(oldStops, newStops)
	second := Diff(oldStops, newStops)

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("diff is not deterministic:\n%+v\n%+v", first, second)
	}
}

func TestDiffSwap(t *testing.T) {
	oldStops := []model.Stop{stop("p1", "Rua A, 10"), stop("p2", "Rua B, 20")}
	newStops := []model.Stop{stop("p2", "Rua B, 20"), stop("p1", "Rua A, 10")}

	records := Diff(oldStops, newStops)
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2: %+v", len(records), records)
	}

	for _, c := range records {
		if c.Type != model.ChangeSequence {
			t.Fatalf("record type = %s, want sequence: %+v", c.Type, c)
		}
	}

	if records[0].StopID != "p2" || records[0].OldIndex != 1 || records[0].NewIndex != 0 {
		t.Fatalf("first record = %+v, want p2 1->0", records[0])
	}
	if records[1].StopID != "p1" || records[1].OldIndex != 0 || records[1].NewIndex != 1 {
		t.Fatalf("second record = %+v, want p1 0->1", records[1])
	}
}

func TestDiffAddressChange(t *testing.T) {
	oldStops := []model.Stop{stop("p1", "Rua A, 10")}
	newStops := []model.Stop{stop("p1", "Rua A, 12")}

	records := Diff(oldStops, newStops)
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1: %+v", len(records), records)
	}

	c := records[0]
	if c.Type != model.ChangeAddress {
		t.Fatalf("type = %s, want address", c.Type)
	}
	if c.OldValue != "Rua A, 10" || c.NewValue != "Rua A, 12" {
		t.Fatalf("values = %q -> %q, want Rua A, 10 -> Rua A, 12", c.OldValue, c.NewValue)
	}
}

func TestDiffCoordsChangeIsAddress(t *testing.T) {
	oldS := stop("p1", "Rua A, 10")
	oldS.Coords = &model.Point{Lat: -16.68, Lng: -49.25}
	newS := stop("p1", "Rua A, 10")
	newS.Coords = &model.Point{Lat: -16.69, Lng: -49.25}

	records := Diff([]model.Stop{oldS}, []model.Stop{newS})
	if len(records) != 1 || records[0].Type != model.ChangeAddress {
		t.Fatalf("got %+v, want one address record", records)
	}
}

func TestDiffDataChange(t *testing.T) {
	oldS := stop("p1", "Rua A, 10")
	oldS.Phone = "62 9999-0000"
	newS := stop("p1", "Rua A, 10")
	newS.Phone = "62 8888-0000"
	newS.Notes = "portão azul"

	records := Diff([]model.Stop{oldS}, []model.Stop{newS})
	if len(records) != 1 || records[0].Type != model.ChangeData {
		t.Fatalf("got %+v, want one data record", records)
	}
}

func TestDiffAddedAndRemoved(t *testing.T) {
	oldStops := []model.Stop{stop("p1", "Rua A, 10"), stop("p2", "Rua B, 20")}
	newStops := []model.Stop{stop("p1", "Rua A, 10"), stop("p3", "Rua C, 30")}

	records := Diff(oldStops, newStops)
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2: %+v", len(records), records)
	}

	var added, removed int
	for _, c := range records {
		switch c.Type {
		case model.ChangeAdded:
			added++
			if c.StopID != "p3" || c.NewIndex != 1 || c.OldIndex != -1 {
				t.Fatalf("added record = %+v", c)
			}
		case model.ChangeRemoved:
			removed++
			if c.StopID != "p2" || c.OldIndex != 1 || c.NewIndex != -1 {
				t.Fatalf("removed record = %+v", c)
			}
		default:
			t.Fatalf("unexpected record type %s", c.Type)
		}
	}
	if added != 1 || removed != 1 {
		t.Fatalf("added = %d removed = %d, want 1/1", added, removed)
	}
}

func TestDiffInitialDispatchIsAllAdded(t *testing.T) {
	newStops := []model.Stop{stop("p1", "Rua A, 10"), stop("p2", "Rua B, 20")}

	records := Diff(nil, newStops)
	if len(records) != len(newStops) {
		t.Fatalf("got %d records, want %d", len(records), len(newStops))
	}
	for i, c := range records {
		if c.Type != model.ChangeAdded || c.NewIndex != i {
			t.Fatalf("record %d = %+v, want added at index %d", i, c, i)
		}
	}
}

func TestDiffMovedAndReaddressedYieldsTwoRecords(t *testing.T) {
	oldStops := []model.Stop{stop("p1", "Rua A, 10"), stop("p2", "Rua B, 20")}
	newStops := []model.Stop{stop("p2", "Rua B, 20"), stop("p1", "Rua A, 12")}

	records := Diff(oldStops, newStops)

	var gotTypes []model.ChangeType
	for _, c := range records {
		if c.StopID == "p1" {
			gotTypes = append(gotTypes, c.Type)
		}
	}
	if len(gotTypes) != 2 {
		t.Fatalf("p1 yielded %v, want both sequence and address", gotTypes)
	}
}

func TestDiffFallsBackToOrderReference(t *testing.T) {
	oldStops := []model.Stop{{OrderID: "o1", Address: "Rua A, 10"}}
	newStops := []model.Stop{{OrderID: "o1", Address: "Rua A, 12"}}

	records := Diff(oldStops, newStops)
	if len(records) != 1 || records[0].Type != model.ChangeAddress {
		t.Fatalf("got %+v, want one address record keyed by order reference", records)
	}
	if records[0].StopID != "order:o1" {
		t.Fatalf("stop key = %q, want order:o1", records[0].StopID)
	}
}

func TestDiffOrderingStable(t *testing.T) {
	oldStops := []model.Stop{stop("p1", "Rua A, 10"), stop("p2", "Rua B, 20"), stop("p3", "Rua C, 30")}
	newStops := []model.Stop{stop("p2", "Rua B, 25"), stop("p1", "Rua A, 10")}

	records := Diff(oldStops, newStops)
	for i := 1; i < len(records); i++ {
		prev, cur := records[i-1], records[i]
		pi, ci := prev.NewIndex, cur.NewIndex
		if pi < 0 {
			pi = prev.OldIndex
		}
		if ci < 0 {
			ci = cur.OldIndex
		}
		if pi > ci || (pi == ci && prev.Type > cur.Type) {
			t.Fatalf("records out of order at %d: %+v then %+v", i, prev, cur)
		}
	}
}

func TestMergeDeduplicatesPerStopAndType(t *testing.T) {
	first := Diff(
		[]model.Stop{stop("p1", "Rua A, 10")},
		[]model.Stop{stop("p1", "Rua A, 12")},
	)
	second := Diff(
		[]model.Stop{stop("p1", "Rua A, 12")},
		[]model.Stop{stop("p1", "Rua A, 15")},
	)

	merged := Merge(first, second)
	if len(merged) != 1 {
		t.Fatalf("merged = %+v, want one record", merged)
	}

	c := merged[0]
	if c.OldValue != "Rua A, 10" {
		t.Fatalf("old value = %q, want the oldest value Rua A, 10", c.OldValue)
	}
	if c.NewValue != "Rua A, 15" {
		t.Fatalf("new value = %q, want the latest value Rua A, 15", c.NewValue)
	}
}

func TestMergeKeepsDistinctTypes(t *testing.T) {
	existing := []model.ChangeRecord{
		{StopID: "p1", Type: model.ChangeAddress, OldIndex: 0, NewIndex: 0, OldValue: "a", NewValue: "b"},
	}
	incoming := []model.ChangeRecord{
		{StopID: "p1", Type: model.ChangeSequence, OldIndex: 0, NewIndex: 2, OldValue: "0", NewValue: "2"},
		{StopID: "p2", Type: model.ChangeAdded, OldIndex: -1, NewIndex: 1, NewValue: "Rua B"},
	}

	merged := Merge(existing, incoming)
	if len(merged) != 3 {
		t.Fatalf("merged = %+v, want 3 records", merged)
	}
}
