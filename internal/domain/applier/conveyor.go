package applier

import (
	"fmt"

	"github.com/magbak/mbei/internal/domain/event"
	"github.com/magbak/mbei/internal/domain/graph"
	"github.com/magbak/mbei/internal/domain/query"
)

// ConveyorEvent is the payload a conveyor station's event carries. The
// conveyor acts purely on the match it already holds (which barrel, which
// material) so the event itself carries no fields, same as the scenario
// it is ported from.
type ConveyorEvent struct{}

// ConveyorApplier routes a barrel off a conveyor onto one of two ramps
// based on the material type a detector upstream already recorded for it.
// The conveyor's query is shaped to produce exactly one grouped match
// with exactly two bound tuples: the barrel's current "At" edge and its
// "HasMaterialType" edge.
type ConveyorApplier struct {
	Log Logger
}

func (a *ConveyorApplier) CallFunction(q query.Query, m query.GroupedQueryMatch, e event.Event) (*event.Deltas, error) {
	var ce ConveyorEvent
	if err := decodePayload(e.Payload, &ce); err != nil {
		return nil, err
	}

	if len(m.GroupedMatches) != 1 {
		return nil, fmt.Errorf("applier: conveyor: expected exactly 1 match, got %d", len(m.GroupedMatches))
	}
	only := m.GroupedMatches[0]
	if len(only.Homomorphism) != 2 {
		return nil, fmt.Errorf("applier: conveyor: expected exactly 2 bound tuples, got %d", len(only.Homomorphism))
	}

	var barrelAtConveyor, barrelHasType *graph.Edge
	for qe, bound := range only.Homomorphism {
		switch qe.EdgeType {
		case "At":
			barrelAtConveyor = bound
		case "HasMaterialType":
			barrelHasType = bound
		}
	}
	if barrelAtConveyor == nil || barrelHasType == nil {
		return nil, fmt.Errorf("applier: conveyor: match is missing its At or HasMaterialType tuple")
	}

	metalRamp, okMetal := findPatternNode(q.Graph.Edges, func(n graph.Node) bool {
		return n.QueryNodeName != nil && *n.QueryNodeName == "m"
	}, func(edge graph.Edge) graph.Node { return edge.Trg })
	plasticRamp, okPlastic := findPatternNode(q.Graph.Edges, func(n graph.Node) bool {
		return n.QueryNodeName != nil && *n.QueryNodeName == "p"
	}, func(edge graph.Edge) graph.Node { return edge.Trg })
	if !okMetal || !okPlastic {
		return nil, fmt.Errorf("applier: conveyor: query graph is missing its metal/plastic ramp nodes")
	}

	var material BarrelMaterialType
	if err := decodePayload(barrelHasType.Trg.ValueBytes, &material); err != nil {
		return nil, err
	}

	destination := metalRamp
	if material == Plastic {
		destination = plasticRamp
	}

	return &event.Deltas{
		Deltas: []graph.Delta{
			{Src: barrelAtConveyor.Src, Trg: barrelAtConveyor.Trg, EdgeType: "At", Timestamp: e.Timestamp, DeltaType: graph.Removal},
			{Src: barrelAtConveyor.Src, Trg: destination, EdgeType: "At", Timestamp: e.Timestamp + 1, DeltaType: graph.Addition},
		},
	}, nil
}
