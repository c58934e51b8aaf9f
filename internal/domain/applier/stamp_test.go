package applier

import (
	"testing"

	"github.com/magbak/mbei/internal/domain/event"
	"github.com/magbak/mbei/internal/domain/graph"
	"github.com/magbak/mbei/internal/domain/query"
)

func TestStampApplierStampsTheMostRecentBarrel(t *testing.T) {
	a := &StampApplier{Log: nopLogger{t}}

	barrelType := "Barrel"
	stampType := "Stamp"
	barrel := graph.MaterialInstanceNode("barrel-1", &barrelType, nil)
	stamp := graph.ObjectInstanceNode("stamp-1", &stampType)
	at := graph.Edge{Src: barrel, Trg: stamp, EdgeType: "At", FromTimestamp: 3}

	m := query.GroupedQueryMatch{GroupedMatches: []query.QueryMatch{
		{Homomorphism: map[graph.Edge]*graph.Edge{{EdgeType: "At"}: &at}},
	}}

	e := event.Event{EventID: "e1", Timestamp: 10, Payload: gobPayload(t, StampEvent{StampData: "abc123"})}

	deltas, err := a.CallFunction(query.Query{}, m, e)
	if err != nil {
		t.Fatalf("CallFunction: %v", err)
	}
	if deltas == nil || len(deltas.Deltas) != 1 {
		t.Fatalf("expected exactly one delta, got %+v", deltas)
	}
	d := deltas.Deltas[0]
	if d.EdgeType != "HasStampData" || d.DeltaType != graph.Addition || d.Timestamp != 10 {
		t.Fatalf("unexpected delta: %+v", d)
	}
	if !sameInstance(d.Src, barrel) {
		t.Fatalf("expected delta source to be the barrel, got %+v", d.Src)
	}
	if d.Trg.NodeType == nil || *d.Trg.NodeType != "StampData" {
		t.Fatalf("expected a StampData target node, got %+v", d.Trg)
	}
}

func TestStampApplierIgnoresNonBarrelMaterial(t *testing.T) {
	a := &StampApplier{Log: nopLogger{t}}

	drumType := "Drum"
	stampType := "Stamp"
	drum := graph.MaterialInstanceNode("drum-1", &drumType, nil)
	stamp := graph.ObjectInstanceNode("stamp-1", &stampType)
	at := graph.Edge{Src: drum, Trg: stamp, EdgeType: "At"}

	m := query.GroupedQueryMatch{GroupedMatches: []query.QueryMatch{
		{Homomorphism: map[graph.Edge]*graph.Edge{{EdgeType: "At"}: &at}},
	}}
	e := event.Event{EventID: "e1", Timestamp: 10, Payload: gobPayload(t, StampEvent{StampData: "abc123"})}

	deltas, err := a.CallFunction(query.Query{}, m, e)
	if err != nil {
		t.Fatalf("CallFunction: %v", err)
	}
	if deltas != nil {
		t.Fatalf("expected no deltas for a non-barrel material, got %+v", deltas)
	}
}
