package applier

import (
	"testing"

	"github.com/magbak/mbei/internal/domain/event"
	"github.com/magbak/mbei/internal/domain/graph"
	"github.com/magbak/mbei/internal/domain/query"
)

func TestDetectorApplierRecordsMaterialType(t *testing.T) {
	a := &DetectorApplier{Log: nopLogger{t}}

	barrelType := "Barrel"
	detectorType := "Detector"
	barrel := graph.MaterialInstanceNode("barrel-1", &barrelType, nil)
	detector := graph.ObjectInstanceNode("detector-1", &detectorType)
	at := graph.Edge{Src: barrel, Trg: detector, EdgeType: "At"}

	m := query.GroupedQueryMatch{GroupedMatches: []query.QueryMatch{
		{Homomorphism: map[graph.Edge]*graph.Edge{{EdgeType: "At"}: &at}},
	}}
	e := event.Event{EventID: "e1", Timestamp: 7, Payload: gobPayload(t, DetectorEvent{BarrelMaterialType: Plastic})}

	deltas, err := a.CallFunction(query.Query{}, m, e)
	if err != nil {
		t.Fatalf("CallFunction: %v", err)
	}
	if deltas == nil || len(deltas.Deltas) != 1 {
		t.Fatalf("expected exactly one delta, got %+v", deltas)
	}
	d := deltas.Deltas[0]
	if d.EdgeType != "HasMaterialType" || d.DeltaType != graph.Addition || d.Timestamp != 8 {
		t.Fatalf("unexpected delta: %+v", d)
	}
	if !sameInstance(d.Src, barrel) {
		t.Fatalf("expected delta source to be the barrel, got %+v", d.Src)
	}

	var got BarrelMaterialType
	if err := decodePayload(d.Trg.ValueBytes, &got); err != nil {
		t.Fatalf("decoding recorded material type: %v", err)
	}
	if got != Plastic {
		t.Fatalf("expected recorded material type Plastic, got %v", got)
	}
}

func TestDetectorApplierRejectsMultipleMatches(t *testing.T) {
	a := &DetectorApplier{Log: nopLogger{t}}

	m := query.GroupedQueryMatch{GroupedMatches: []query.QueryMatch{{}, {}}}
	e := event.Event{EventID: "e1", Timestamp: 7, Payload: gobPayload(t, DetectorEvent{BarrelMaterialType: Metal})}

	if _, err := a.CallFunction(query.Query{}, m, e); err == nil {
		t.Fatalf("expected an error for more than one match")
	}
}
