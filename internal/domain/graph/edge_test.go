package graph

import "testing"

func barrelPlatform() (Node, Node) {
	return MaterialInstanceNode("barrel", strPtr("barrel"), nil),
		ObjectInstanceNode("platform", strPtr("platform"))
}

func TestEdgesFromDeltasTwoRemovals(t *testing.T) {
	src, trg := barrelPlatform()
	deltas := []Delta{
		{Src: src, Trg: trg, EdgeType: "At", Timestamp: 2, DeltaType: Removal},
		{Src: src, Trg: trg, EdgeType: "At", Timestamp: 3, DeltaType: Removal},
		{Src: src, Trg: trg, EdgeType: "At", Timestamp: 0, DeltaType: Addition},
	}
	edges := EdgesFromDeltas(deltas)
	if len(edges) != 1 {
		t.Fatalf("expected 1 edge, got %d: %+v", len(edges), edges)
	}
	if edges[0].FromTimestamp != 0 {
		t.Fatalf("expected from=0, got %d", edges[0].FromTimestamp)
	}
	if edges[0].ToTimestamp == nil || *edges[0].ToTimestamp != 2 {
		t.Fatalf("expected to=2, got %v", edges[0].ToTimestamp)
	}
}

func TestEdgesFromDeltasRemovalBeforeFirstAdditionYieldsNothing(t *testing.T) {
	src, trg := barrelPlatform()
	deltas := []Delta{
		{Src: src, Trg: trg, EdgeType: "At", Timestamp: 1, DeltaType: Removal},
	}
	edges := EdgesFromDeltas(deltas)
	if len(edges) != 0 {
		t.Fatalf("expected no edges, got %+v", edges)
	}
}

func TestEdgesFromDeltasAdditionsAfterAllRemovalsFormOneOpenEdge(t *testing.T) {
	src, trg := barrelPlatform()
	deltas := []Delta{
		{Src: src, Trg: trg, EdgeType: "At", Timestamp: 0, DeltaType: Removal},
		{Src: src, Trg: trg, EdgeType: "At", Timestamp: 5, DeltaType: Addition},
		{Src: src, Trg: trg, EdgeType: "At", Timestamp: 6, DeltaType: Addition},
	}
	edges := EdgesFromDeltas(deltas)
	var open int
	for _, e := range edges {
		if e.IsOpen() {
			open++
			if e.FromTimestamp != 5 {
				t.Fatalf("expected open edge to start at earliest leftover addition (5), got %d", e.FromTimestamp)
			}
		}
	}
	if open != 1 {
		t.Fatalf("expected exactly one open edge, got %d among %+v", open, edges)
	}
}

func TestEdgeStableHashDeterministic(t *testing.T) {
	src, trg := barrelPlatform()
	to := uint64(10)
	e1 := Edge{Src: src, Trg: trg, EdgeType: "At", FromTimestamp: 0, ToTimestamp: &to}
	e2 := Edge{Src: src, Trg: trg, EdgeType: "At", FromTimestamp: 0, ToTimestamp: &to}
	if e1.StableHash() != e2.StableHash() {
		t.Fatalf("expected identical hashes for identical edges")
	}
	e3 := e2
	e3.EdgeType = "Near"
	if e1.StableHash() == e3.StableHash() {
		t.Fatalf("expected different hashes for different edge types")
	}
}
