package applier

import (
	"testing"

	"github.com/magbak/mbei/internal/domain/event"
	"github.com/magbak/mbei/internal/domain/graph"
	"github.com/magbak/mbei/internal/domain/query"
)

func TestCraneApplierPickUpMovesBarrelToCrane(t *testing.T) {
	a := &CraneApplier{Log: nopLogger{t}}

	craneType := "Crane"
	platformType := "Platform"
	barrelType := "Barrel"
	crane := graph.ObjectInstanceNode("crane-1", &craneType)
	platform := graph.ObjectInstanceNode("platform-1", &platformType)
	barrel := graph.MaterialInstanceNode("barrel-1", &barrelType, nil)

	craneNodePattern := graph.Edge{Src: crane, Trg: graph.ObjectQueryNode("anything", nil), EdgeType: "Reachable"}
	q := query.Query{Graph: graph.FromEdges([]graph.Edge{craneNodePattern})}

	barrelAtPlatform := graph.Edge{Src: barrel, Trg: platform, EdgeType: "At", FromTimestamp: 2}
	m := query.GroupedQueryMatch{GroupedMatches: []query.QueryMatch{
		{Homomorphism: map[graph.Edge]*graph.Edge{{EdgeType: "At"}: &barrelAtPlatform}},
	}}

	e := event.Event{EventID: "e1", Timestamp: 20, Payload: gobPayload(t, CraneEvent{InstanceNodeID: "platform-1", EventType: CranePickUp})}

	deltas, err := a.CallFunction(q, m, e)
	if err != nil {
		t.Fatalf("CallFunction: %v", err)
	}
	if deltas == nil || len(deltas.Deltas) != 2 {
		t.Fatalf("expected exactly two deltas, got %+v", deltas)
	}
	removal, addition := deltas.Deltas[0], deltas.Deltas[1]
	if removal.DeltaType != graph.Removal || !sameInstance(removal.Trg, platform) || removal.Timestamp != 20 {
		t.Fatalf("unexpected removal delta: %+v", removal)
	}
	if addition.DeltaType != graph.Addition || !sameInstance(addition.Trg, crane) || addition.Timestamp != 21 {
		t.Fatalf("unexpected addition delta: %+v", addition)
	}
}

func TestCraneApplierDropMovesBarrelFromCrane(t *testing.T) {
	a := &CraneApplier{Log: nopLogger{t}}

	craneType := "Crane"
	platformType := "Platform"
	barrelType := "Barrel"
	crane := graph.ObjectInstanceNode("crane-1", &craneType)
	platform := graph.ObjectInstanceNode("platform-2", &platformType)
	barrel := graph.MaterialInstanceNode("barrel-1", &barrelType, nil)

	destinationPattern := graph.Edge{Src: graph.ObjectQueryNode("anything", nil), Trg: platform, EdgeType: "Reachable"}
	q := query.Query{Graph: graph.FromEdges([]graph.Edge{destinationPattern})}

	barrelAtCrane := graph.Edge{Src: barrel, Trg: crane, EdgeType: "At", FromTimestamp: 5}
	m := query.GroupedQueryMatch{GroupedMatches: []query.QueryMatch{
		{Homomorphism: map[graph.Edge]*graph.Edge{{EdgeType: "At"}: &barrelAtCrane}},
	}}

	e := event.Event{EventID: "e1", Timestamp: 30, Payload: gobPayload(t, CraneEvent{InstanceNodeID: "platform-2", EventType: CraneDrop})}

	deltas, err := a.CallFunction(q, m, e)
	if err != nil {
		t.Fatalf("CallFunction: %v", err)
	}
	if deltas == nil || len(deltas.Deltas) != 2 {
		t.Fatalf("expected exactly two deltas, got %+v", deltas)
	}
	removal, addition := deltas.Deltas[0], deltas.Deltas[1]
	if removal.DeltaType != graph.Removal || !sameInstance(removal.Trg, crane) || removal.Timestamp != 30 {
		t.Fatalf("unexpected removal delta: %+v", removal)
	}
	if addition.DeltaType != graph.Addition || !sameInstance(addition.Trg, platform) || addition.Timestamp != 31 {
		t.Fatalf("unexpected addition delta: %+v", addition)
	}
}

// sameInstance compares two nodes by instance identity only, since Node
// carries a []byte value field that makes the whole struct non-comparable
// with ==.
func sameInstance(a, b graph.Node) bool {
	if a.InstanceNodeName == nil || b.InstanceNodeName == nil {
		return a.InstanceNodeName == b.InstanceNodeName
	}
	return *a.InstanceNodeName == *b.InstanceNodeName
}
