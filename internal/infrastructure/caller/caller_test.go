package caller

import (
	"net"
	"testing"
	"time"

	"github.com/magbak/mbei/internal/domain/event"
	"github.com/magbak/mbei/internal/domain/graph"
	"github.com/magbak/mbei/internal/domain/query"
)

type nopLogger struct{ t *testing.T }

func (l nopLogger) Debug(msg string, fields ...interface{}) { l.t.Logf("DEBUG "+msg, fields...) }

// stubApplication accepts one connection and answers every request with a
// fixed response, standing in for a real application backend under test.
func stubApplication(t *testing.T, resp ApplicationResponse) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			payload, err := readFrame(conn)
			if err != nil {
				return
			}
			var req ApplicationRequest
			if err := decode(payload, &req); err != nil {
				return
			}
			respPayload, err := encode(resp)
			if err != nil {
				return
			}
			if err := writeFrame(conn, respPayload); err != nil {
				return
			}
		}
	}()
	return ln.Addr().String()
}

func sampleQuery() query.Query {
	src := graph.MaterialQueryNode("m", nil)
	trg := graph.ObjectQueryNode("o", nil)
	qe := graph.Edge{Src: src, Trg: trg, EdgeType: "At"}
	return query.Query{Name: "at-query", Application: "app", Graph: graph.FromEdges([]graph.Edge{qe})}
}

func TestCallFunctionReturnsDeltasOnNonEmptyResponse(t *testing.T) {
	barrel := graph.MaterialInstanceNode("barrel", nil, nil)
	platform := graph.ObjectInstanceNode("platform", nil)
	want := graph.Delta{Src: barrel, Trg: platform, EdgeType: "Processed", Timestamp: 5, DeltaType: graph.Addition}

	addr := stubApplication(t, ApplicationResponse{Deltas: []graph.Delta{want}})

	c := New(addr, nopLogger{t})
	if err := c.Start(5 * time.Second); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Close()

	e := event.Event{EventID: "e1", Timestamp: 5, NodeID: "barrel"}
	deltas, err := c.CallFunction(sampleQuery(), query.GroupedQueryMatch{}, e)
	if err != nil {
		t.Fatalf("CallFunction: %v", err)
	}
	if deltas == nil {
		t.Fatalf("expected non-nil deltas")
	}
	if deltas.OriginID != "e1" || deltas.OriginTimestamp != 5 {
		t.Fatalf("unexpected origin fields: %+v", deltas)
	}
	if len(deltas.Deltas) != 1 || deltas.Deltas[0].EdgeType != "Processed" {
		t.Fatalf("unexpected deltas: %+v", deltas.Deltas)
	}
	if deltas.DeltasID == "" {
		t.Fatalf("expected a generated deltas id")
	}
}

func TestCallFunctionReturnsNilOnEmptyResponse(t *testing.T) {
	addr := stubApplication(t, ApplicationResponse{})

	c := New(addr, nopLogger{t})
	if err := c.Start(5 * time.Second); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Close()

	e := event.Event{EventID: "e1", Timestamp: 5, NodeID: "barrel"}
	deltas, err := c.CallFunction(sampleQuery(), query.GroupedQueryMatch{}, e)
	if err != nil {
		t.Fatalf("CallFunction: %v", err)
	}
	if deltas != nil {
		t.Fatalf("expected nil deltas for empty response, got %+v", deltas)
	}
}

func TestCallFunctionWithoutStartReturnsError(t *testing.T) {
	c := New("127.0.0.1:0", nopLogger{t})
	_, err := c.CallFunction(sampleQuery(), query.GroupedQueryMatch{}, event.Event{})
	if err == nil {
		t.Fatalf("expected an error when CallFunction is called before Start")
	}
}
