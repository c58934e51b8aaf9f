package central

import (
	"testing"

	"github.com/magbak/mbei/internal/domain/event"
	"github.com/magbak/mbei/internal/domain/graph"
)

type nopLogger struct{ t *testing.T }

func (l nopLogger) Debug(msg string, fields ...interface{}) { l.t.Logf("DEBUG "+msg, fields...) }
func (l nopLogger) Error(msg string, fields ...interface{}) { l.t.Logf("ERROR "+msg, fields...) }

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), nopLogger{t})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleDelta(edgeType string) graph.Delta {
	barrel := graph.MaterialInstanceNode("barrel", nil, nil)
	platform := graph.ObjectInstanceNode("platform", nil)
	return graph.Delta{Src: barrel, Trg: platform, EdgeType: edgeType, Timestamp: 1, DeltaType: graph.Addition}
}

func TestInsertDeltasThenGetAllDeltas(t *testing.T) {
	s := newTestStore(t)

	d := event.Deltas{DeltasID: "d1", Deltas: []graph.Delta{sampleDelta("At"), sampleDelta("HeldBy")}}
	if err := s.InsertDeltas(d); err != nil {
		t.Fatalf("InsertDeltas: %v", err)
	}

	all, err := s.GetAllDeltas()
	if err != nil {
		t.Fatalf("GetAllDeltas: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 stored deltas, got %d", len(all))
	}
}

func TestRetractDeltasDeletesRowsAndMarksRetracted(t *testing.T) {
	s := newTestStore(t)

	d := event.Deltas{DeltasID: "d1", Deltas: []graph.Delta{sampleDelta("At")}}
	if err := s.InsertDeltas(d); err != nil {
		t.Fatalf("InsertDeltas: %v", err)
	}

	if err := s.RetractDeltas(event.Retractions{DeltasIDs: []string{"d1"}}); err != nil {
		t.Fatalf("RetractDeltas: %v", err)
	}

	retracted, err := s.IsRetracted("d1")
	if err != nil {
		t.Fatalf("IsRetracted: %v", err)
	}
	if !retracted {
		t.Fatalf("expected d1 to be retracted")
	}

	all, err := s.GetAllDeltas()
	if err != nil {
		t.Fatalf("GetAllDeltas: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("expected retraction to delete all rows, got %d left", len(all))
	}
}

func TestInsertDeltasSkipsAlreadyRetractedID(t *testing.T) {
	s := newTestStore(t)

	if err := s.RetractDeltas(event.Retractions{DeltasIDs: []string{"d1"}}); err != nil {
		t.Fatalf("RetractDeltas: %v", err)
	}

	d := event.Deltas{DeltasID: "d1", Deltas: []graph.Delta{sampleDelta("At")}}
	if err := s.InsertDeltas(d); err != nil {
		t.Fatalf("InsertDeltas: %v", err)
	}

	all, err := s.GetAllDeltas()
	if err != nil {
		t.Fatalf("GetAllDeltas: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("expected insert after retraction to be a no-op, got %d rows", len(all))
	}
}

func TestProcessUpdateDispatchesByKind(t *testing.T) {
	s := newTestStore(t)

	d := event.Deltas{DeltasID: "d1", Deltas: []graph.Delta{sampleDelta("At")}}
	if err := s.ProcessUpdate(event.DeltasUpdate(d)); err != nil {
		t.Fatalf("ProcessUpdate(deltas): %v", err)
	}
	all, _ := s.GetAllDeltas()
	if len(all) != 1 {
		t.Fatalf("expected 1 stored delta, got %d", len(all))
	}

	if err := s.ProcessUpdate(event.RetractionsUpdate(event.Retractions{DeltasIDs: []string{"d1"}})); err != nil {
		t.Fatalf("ProcessUpdate(retractions): %v", err)
	}
	all, _ = s.GetAllDeltas()
	if len(all) != 0 {
		t.Fatalf("expected retraction to remove the delta, got %d left", len(all))
	}
}
