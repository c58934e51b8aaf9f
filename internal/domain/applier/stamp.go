package applier

import (
	"github.com/magbak/mbei/internal/domain/event"
	"github.com/magbak/mbei/internal/domain/graph"
	"github.com/magbak/mbei/internal/domain/query"
)

// StampEvent is the payload a stamp station's event carries: the data the
// stamp physically imprinted on whatever barrel was under it.
type StampEvent struct {
	StampData string
}

// StampApplier finds the barrel currently under a stamp and records the
// data the stamp imprinted on it as a new property node, grounded on the
// scenario's stamp station: the most recently opened "At" edge targeting
// the stamp names the barrel, and a HasStampData edge is asserted from
// that barrel to a fresh StampData node.
type StampApplier struct {
	Log Logger
}

func (a *StampApplier) CallFunction(q query.Query, m query.GroupedQueryMatch, e event.Event) (*event.Deltas, error) {
	var se StampEvent
	if err := decodePayload(e.Payload, &se); err != nil {
		return nil, err
	}

	var barrelAtStamp *graph.Edge
	for _, match := range m.GroupedMatches {
		for qe, bound := range match.Homomorphism {
			if qe.EdgeType != "At" || bound == nil {
				continue
			}
			if barrelAtStamp == nil || barrelAtStamp.FromTimestamp < bound.FromTimestamp {
				barrelAtStamp = bound
			}
		}
	}
	if barrelAtStamp == nil {
		a.Log.Debug("stamp: no barrel at stamp, no deltas")
		return emptyDeltas()
	}
	if barrelAtStamp.Src.InstanceNodeName == nil || barrelAtStamp.Src.NodeType == nil || *barrelAtStamp.Src.NodeType != "Barrel" {
		a.Log.Debug("stamp: wrong kind of material at stamp")
		return emptyDeltas()
	}

	barrel := barrelAtStamp.Src
	payload, err := encodePayload(se.StampData)
	if err != nil {
		return nil, err
	}
	stampNode := graph.PropertyInstanceNode(*barrel.InstanceNodeName+"_Stamp_"+timestampString(e.Timestamp), strPtr("StampData"), payload)

	return &event.Deltas{
		Deltas: []graph.Delta{
			{Src: barrel, Trg: stampNode, EdgeType: "HasStampData", Timestamp: e.Timestamp, DeltaType: graph.Addition},
		},
	}, nil
}
