package component

import (
	"testing"

	"github.com/magbak/mbei/internal/domain/event"
	"github.com/magbak/mbei/internal/domain/graph"
	"github.com/magbak/mbei/internal/domain/query"
	"github.com/magbak/mbei/internal/domain/store"
)

type nopLogger struct{ t *testing.T }

func (l nopLogger) Debug(msg string, fields ...interface{}) { l.t.Logf("DEBUG "+msg, fields...) }
func (l nopLogger) Info(msg string, fields ...interface{})  { l.t.Logf("INFO "+msg, fields...) }
func (l nopLogger) Warn(msg string, fields ...interface{})  { l.t.Logf("WARN "+msg, fields...) }
func (l nopLogger) Error(msg string, fields ...interface{}) { l.t.Logf("ERROR "+msg, fields...) }

// stubCaller always returns the same fixed deltas payload for any match,
// so a match disappearing between passes can be observed as a retraction.
type stubCaller struct {
	fn func(q query.Query, m query.GroupedQueryMatch, e event.Event) (*event.Deltas, error)
}

func (s stubCaller) CallFunction(q query.Query, m query.GroupedQueryMatch, e event.Event) (*event.Deltas, error) {
	return s.fn(q, m, e)
}

// stubRouter never routes anywhere internal; RouteDeltasUpdate just
// records the binding locally, RouteRetractions is a no-op.
type stubRouter struct {
	sent []event.Deltas
}

func (r *stubRouter) RouteDeltasUpdate(d event.Deltas) (*event.Update, []store.TopicAndDeltasID, error) {
	r.sent = append(r.sent, d)
	return nil, []store.TopicAndDeltasID{{Topic: "out", DeltasID: d.DeltasID}}, nil
}

func (r *stubRouter) RouteRetractions(bindings []store.TopicAndDeltasID, timestamp uint64) ([]event.Update, error) {
	return nil, nil
}

func simpleQuery() query.Query {
	src := graph.MaterialQueryNode("m", nil)
	trg := graph.ObjectQueryNode("o", nil)
	qe := graph.Edge{Src: src, Trg: trg, EdgeType: "At"}
	return query.Query{
		Name:        "at-query",
		Application: "app",
		Graph:       graph.FromEdges([]graph.Edge{qe}),
		OutputEdges: map[graph.Edge]struct{}{qe: {}},
		InputNodes:  map[graph.Node]struct{}{src: {}},
	}
}

func TestProcessUpdateUntilConsistencySingleEventProducesDeltas(t *testing.T) {
	s := store.New()
	barrel := graph.MaterialInstanceNode("barrel", nil, nil)
	platform := graph.ObjectInstanceNode("platform", nil)
	s.UpdateEdges([]graph.Edge{{Src: barrel, Trg: platform, EdgeType: "At", FromTimestamp: 0}}, nil)

	router := &stubRouter{}
	caller := stubCaller{fn: func(q query.Query, m query.GroupedQueryMatch, e event.Event) (*event.Deltas, error) {
		return &event.Deltas{DeltasID: "d1", Deltas: []graph.Delta{
			{Src: barrel, Trg: platform, EdgeType: "Processed", Timestamp: e.Timestamp, DeltaType: graph.Addition},
		}}, nil
	}}

	c := New(simpleQuery(), s, caller, router, nopLogger{t})

	update := event.EventUpdate(event.Event{EventID: "e1", Timestamp: 1, NodeID: "barrel"})
	counters, err := c.ProcessUpdateUntilConsistency(update)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counters.Events != 1 {
		t.Fatalf("expected 1 event processed, got %+v", counters)
	}
	if len(router.sent) != 1 {
		t.Fatalf("expected 1 routed deltas package, got %d", len(router.sent))
	}
}

func TestProcessUpdateUntilConsistencyNoMatchProducesNothing(t *testing.T) {
	s := store.New()
	router := &stubRouter{}
	called := false
	caller := stubCaller{fn: func(q query.Query, m query.GroupedQueryMatch, e event.Event) (*event.Deltas, error) {
		called = true
		return nil, nil
	}}
	c := New(simpleQuery(), s, caller, router, nopLogger{t})

	update := event.EventUpdate(event.Event{EventID: "e1", Timestamp: 1, NodeID: "nothing"})
	counters, err := c.ProcessUpdateUntilConsistency(update)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counters.Events != 1 {
		t.Fatalf("expected event to still be processed, got %+v", counters)
	}
	if called {
		t.Fatalf("expected no match, so caller should never be invoked")
	}
	if len(router.sent) != 0 {
		t.Fatalf("expected nothing routed, got %d", len(router.sent))
	}
}

func TestProcessUpdateUntilConsistencyRetractedDeltasUpdateIsSkipped(t *testing.T) {
	s := store.New()
	s.AddRetractions([]string{"already-gone"})
	router := &stubRouter{}
	caller := stubCaller{fn: func(q query.Query, m query.GroupedQueryMatch, e event.Event) (*event.Deltas, error) {
		t.Fatalf("caller should not be invoked for a retracted deltas update")
		return nil, nil
	}}
	c := New(simpleQuery(), s, caller, router, nopLogger{t})

	update := event.DeltasUpdate(event.Deltas{DeltasID: "already-gone", OriginID: "e0", OriginTimestamp: 0})
	counters, err := c.ProcessUpdateUntilConsistency(update)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counters.Handled != 0 {
		t.Fatalf("expected retracted update to be dropped before dispatch, got %+v", counters)
	}
}

func TestProcessUpdateUntilConsistencyDeltasTriggerReprocessing(t *testing.T) {
	s := store.New()
	barrel := graph.MaterialInstanceNode("barrel", nil, nil)
	platform := graph.ObjectInstanceNode("platform", nil)

	// An event recorded before any edges exist; reprocessing must revisit
	// it once the deltas describing the "At" edge arrive.
	s.AddNewEvent(event.Event{EventID: "e1", Timestamp: 5, NodeID: "barrel"})

	router := &stubRouter{}
	var calls int
	caller := stubCaller{fn: func(q query.Query, m query.GroupedQueryMatch, e event.Event) (*event.Deltas, error) {
		calls++
		return &event.Deltas{DeltasID: "out1", Deltas: []graph.Delta{
			{Src: barrel, Trg: platform, EdgeType: "Processed", Timestamp: e.Timestamp, DeltaType: graph.Addition},
		}}, nil
	}}
	c := New(simpleQuery(), s, caller, router, nopLogger{t})

	update := event.DeltasUpdate(event.Deltas{
		DeltasID:        "d1",
		OriginID:        "origin",
		OriginTimestamp: 0,
		Deltas: []graph.Delta{
			{Src: barrel, Trg: platform, EdgeType: "At", Timestamp: 0, DeltaType: graph.Addition},
		},
	})
	counters, err := c.ProcessUpdateUntilConsistency(update)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counters.Deltas != 1 {
		t.Fatalf("expected 1 deltas update handled, got %+v", counters)
	}
	if calls != 1 {
		t.Fatalf("expected reprocessing to call the application once for e1, got %d", calls)
	}
}
