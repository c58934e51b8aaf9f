package applier

import (
	"fmt"

	"github.com/magbak/mbei/internal/domain/event"
	"github.com/magbak/mbei/internal/domain/graph"
	"github.com/magbak/mbei/internal/domain/query"
)

// BarrelMaterialType is the material a detector station classified a
// barrel as.
type BarrelMaterialType uint8

const (
	Metal BarrelMaterialType = iota
	Plastic
)

// DetectorEvent is the payload a material detector station's event
// carries.
type DetectorEvent struct {
	BarrelMaterialType BarrelMaterialType
}

// DetectorApplier records the material type a detector station observed
// on a barrel as a property node. The detector's query is shaped to
// produce exactly one grouped match with exactly one bound tuple — the
// barrel under the detector — so unlike crane or stamp, this applier
// trusts the match shape rather than scanning for the latest edge.
type DetectorApplier struct {
	Log Logger
}

func (a *DetectorApplier) CallFunction(q query.Query, m query.GroupedQueryMatch, e event.Event) (*event.Deltas, error) {
	var de DetectorEvent
	if err := decodePayload(e.Payload, &de); err != nil {
		return nil, err
	}

	if len(m.GroupedMatches) != 1 {
		return nil, fmt.Errorf("applier: detector: expected exactly 1 match, got %d", len(m.GroupedMatches))
	}
	only := m.GroupedMatches[0]
	if len(only.Homomorphism) != 1 {
		return nil, fmt.Errorf("applier: detector: expected exactly 1 bound tuple, got %d", len(only.Homomorphism))
	}

	var bound *graph.Edge
	for _, v := range only.Homomorphism {
		bound = v
	}
	if bound == nil {
		a.Log.Debug("detector: unbound optional tuple, no deltas")
		return emptyDeltas()
	}
	barrel := bound.Src

	payload, err := encodePayload(de.BarrelMaterialType)
	if err != nil {
		return nil, err
	}
	materialNode := graph.PropertyInstanceNode(*barrel.InstanceNodeName+"_barrel_type", strPtr("BarrelMaterialType"), payload)

	return &event.Deltas{
		Deltas: []graph.Delta{
			{Src: barrel, Trg: materialNode, EdgeType: "HasMaterialType", Timestamp: e.Timestamp + 1, DeltaType: graph.Addition},
		},
	}, nil
}
