package component

import (
	"github.com/magbak/mbei/internal/domain/event"
	"github.com/magbak/mbei/internal/domain/graph"
	"github.com/magbak/mbei/internal/domain/interval"
)

// processNewDeltas implements SPEC_FULL.md §4.6: merge a newly arrived
// deltas package into the store, re-derive the edge set for every shape it
// touched, update the edge indexes, and compute which timestamp ranges
// must be reprocessed because the edges they depended on changed.
func (c *Component) processNewDeltas(d event.Deltas) ([]pendingReprocess, error) {
	shapes := distinctShapes(d.Deltas)
	before := c.Store.GetDeltasByEdgeVec(shapes)

	oldEdgesByShape := make(map[graph.Edge][]graph.Edge, len(shapes))
	for _, shape := range shapes {
		oldEdgesByShape[shape] = graph.EdgesFromDeltas(before[shape])
	}

	updated := c.Store.AddDeltasAndGetUpdatedByEdge(d)

	var pending []pendingReprocess
	for shape, newDeltas := range updated {
		newEdges := graph.EdgesFromDeltas(newDeltas)
		oldEdges := oldEdgesByShape[shape]

		c.Store.UpdateEdges(newEdges, oldEdges)

		ivs := interval.FindIntervalsToReprocess(toEdgeIntervals(newEdges), toEdgeIntervals(oldEdges))
		for _, iv := range ivs {
			pending = append(pending, pendingReprocess{interval: iv})
		}
	}
	return pending, nil
}

// processRetractions implements SPEC_FULL.md §4.7: drop every retracted
// deltas package's contribution to the edge indexes, compute the
// reprocessing this implies, and surface retraction of any match bindings
// those deltas had themselves produced (a retracted deltas package may be
// the origin of further downstream deltas).
func (c *Component) processRetractions(r event.Retractions) ([]pendingReprocess, []event.Update, error) {
	idSet := make(map[string]struct{}, len(r.DeltasIDs))
	for _, id := range r.DeltasIDs {
		idSet[id] = struct{}{}
	}

	shapes := c.Store.AllEdgeShapesTouchedByIDs(idSet)
	oldEdgesByShape := make(map[graph.Edge][]graph.Edge, len(shapes))
	for _, shape := range shapes {
		oldEdgesByShape[shape] = graph.EdgesFromDeltas(c.Store.GetDeltasAndDeltasIDByEdge(shape, idSet))
	}

	updated := c.Store.RemoveDeltasByEdgesAndGetUpdated(r.DeltasIDs)

	var pending []pendingReprocess
	for _, shape := range shapes {
		newDeltas := updated[shape]
		newEdges := graph.EdgesFromDeltas(newDeltas)
		oldEdges := oldEdgesByShape[shape]

		c.Store.UpdateEdges(newEdges, oldEdges)

		ivs := interval.FindIntervalsToReprocess(toEdgeIntervals(newEdges), toEdgeIntervals(oldEdges))
		for _, iv := range ivs {
			pending = append(pending, pendingReprocess{interval: iv})
		}
	}

	var internal []event.Update
	for _, id := range r.DeltasIDs {
		updates, err := c.retractDeltasOrigin(id, r.Timestamp)
		if err != nil {
			return nil, nil, err
		}
		internal = append(internal, updates...)
	}

	return pending, internal, nil
}

// retractDeltasOrigin unwinds every match binding recorded under deltasID
// as the event it originated from -- a no-op unless deltasID also happens
// to be an event id some match was keyed on.
func (c *Component) retractDeltasOrigin(deltasID string, timestamp uint64) ([]event.Update, error) {
	view := c.Store.GetEventOutputHashByMatchHash(deltasID)
	if len(view) == 0 {
		return nil, nil
	}
	var updates []event.Update
	for matchHash, outputHash := range view {
		if outputHash == nil {
			continue
		}
		more, err := c.retractMatchBinding(deltasID, matchHash, timestamp)
		if err != nil {
			return nil, err
		}
		updates = append(updates, more...)
	}
	c.Store.UpdateMatches(deltasID, map[uint64]*uint64{})
	return updates, nil
}

func distinctShapes(deltas []graph.Delta) []graph.Edge {
	seen := map[graph.Edge]struct{}{}
	var out []graph.Edge
	for _, d := range deltas {
		shape := d.ToEdge().WithoutTimestamp()
		if _, ok := seen[shape]; !ok {
			seen[shape] = struct{}{}
			out = append(out, shape)
		}
	}
	return out
}

func toEdgeIntervals(edges []graph.Edge) []interval.EdgeInterval {
	out := make([]interval.EdgeInterval, 0, len(edges))
	for _, e := range edges {
		out = append(out, interval.EdgeInterval{From: e.FromTimestamp, To: e.ToTimestamp})
	}
	return out
}
