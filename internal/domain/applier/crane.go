package applier

import (
	"github.com/magbak/mbei/internal/domain/event"
	"github.com/magbak/mbei/internal/domain/graph"
	"github.com/magbak/mbei/internal/domain/query"
)

// CraneEventType distinguishes a crane picking an object up from setting
// one down.
type CraneEventType uint8

const (
	CranePickUp CraneEventType = iota
	CraneDrop
)

// CraneEvent is the payload a crane station's event carries: which
// physical node the crane acted on and which of the two actions happened.
type CraneEvent struct {
	InstanceNodeID string
	EventType      CraneEventType
}

// CraneApplier moves a barrel between its current location and the crane
// (pick up) or from the crane to a destination (drop), grounded on the
// scenario's crane station. The crane's own instance node, and a drop's
// destination node, are both literal instances embedded directly in the
// query pattern rather than discovered through matching.
type CraneApplier struct {
	Log Logger
}

func (a *CraneApplier) CallFunction(q query.Query, m query.GroupedQueryMatch, e event.Event) (*event.Deltas, error) {
	var ce CraneEvent
	if err := decodePayload(e.Payload, &ce); err != nil {
		return nil, err
	}

	switch ce.EventType {
	case CranePickUp:
		return a.processPickUp(q, m, e, ce)
	default:
		return a.processDrop(q, m, e, ce)
	}
}

func (a *CraneApplier) processPickUp(q query.Query, m query.GroupedQueryMatch, e event.Event, ce CraneEvent) (*event.Deltas, error) {
	crane, ok := findPatternNode(q.Graph.Edges, func(n graph.Node) bool {
		return n.NodeType != nil && *n.NodeType == "Crane"
	}, func(edge graph.Edge) graph.Node { return edge.Src })
	if !ok {
		a.Log.Warn("crane: could not find crane node in query graph")
		return emptyDeltas()
	}

	barrelAtNode, ok := latestBoundEdgeWhere(m, func(bound graph.Edge) bool {
		return bound.Trg.InstanceNodeName != nil && *bound.Trg.InstanceNodeName == ce.InstanceNodeID
	})
	if !ok {
		a.Log.Debug("crane: no barrel at node matching pickup target, no deltas")
		return emptyDeltas()
	}

	return &event.Deltas{
		Deltas: []graph.Delta{
			{Src: barrelAtNode.Src, Trg: barrelAtNode.Trg, EdgeType: barrelAtNode.EdgeType, Timestamp: e.Timestamp, DeltaType: graph.Removal},
			{Src: barrelAtNode.Src, Trg: crane, EdgeType: barrelAtNode.EdgeType, Timestamp: e.Timestamp + 1, DeltaType: graph.Addition},
		},
	}, nil
}

func (a *CraneApplier) processDrop(q query.Query, m query.GroupedQueryMatch, e event.Event, ce CraneEvent) (*event.Deltas, error) {
	destination, ok := findPatternNode(q.Graph.Edges, func(n graph.Node) bool {
		return n.InstanceNodeName != nil && *n.InstanceNodeName == ce.InstanceNodeID
	}, func(edge graph.Edge) graph.Node { return edge.Trg })
	if !ok {
		a.Log.Debug("crane: no pattern node matches drop target, no deltas")
		return emptyDeltas()
	}

	barrelAtCrane, ok := latestBoundEdgeWhere(m, func(bound graph.Edge) bool {
		return bound.Trg.NodeType != nil && *bound.Trg.NodeType == "Crane"
	})
	if !ok {
		a.Log.Debug("crane: no barrel at crane, no deltas")
		return emptyDeltas()
	}

	return &event.Deltas{
		Deltas: []graph.Delta{
			{Src: barrelAtCrane.Src, Trg: barrelAtCrane.Trg, EdgeType: barrelAtCrane.EdgeType, Timestamp: e.Timestamp, DeltaType: graph.Removal},
			{Src: barrelAtCrane.Src, Trg: destination, EdgeType: barrelAtCrane.EdgeType, Timestamp: e.Timestamp + 1, DeltaType: graph.Addition},
		},
	}, nil
}

// findPatternNode scans a query's pattern edges for one whose endpoint
// (picked by endpointOf) matches pred, returning that endpoint.
func findPatternNode(edges []graph.Edge, pred func(graph.Node) bool, endpointOf func(graph.Edge) graph.Node) (graph.Node, bool) {
	for _, edge := range edges {
		n := endpointOf(edge)
		if pred(n) {
			return n, true
		}
	}
	return graph.Node{}, false
}

// latestBoundEdgeWhere scans every tuple of every member match for a
// bound instance edge satisfying pred, returning the one with the
// greatest FromTimestamp (the most recently opened).
func latestBoundEdgeWhere(m query.GroupedQueryMatch, pred func(graph.Edge) bool) (graph.Edge, bool) {
	var found *graph.Edge
	for _, match := range m.GroupedMatches {
		for _, bound := range match.Homomorphism {
			if bound == nil || !pred(*bound) {
				continue
			}
			if found == nil || found.FromTimestamp < bound.FromTimestamp {
				candidate := *bound
				found = &candidate
			}
		}
	}
	if found == nil {
		return graph.Edge{}, false
	}
	return *found, true
}
