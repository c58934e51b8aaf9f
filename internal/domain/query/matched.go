package query

import "github.com/magbak/mbei/internal/domain/graph"

// CreateMatchedQuery specializes q for one concrete grouped match: every
// pattern edge is mapped to its bound instance edge where the match
// bound it directly; edges the match never bound directly (possible for
// unbound optional edges whose endpoints were nonetheless pinned by other
// bound edges) fall back to the cross product of the src/trg node images
// already established by the match. Optional/output/input-node flags on
// the specialized edges are preserved from q.
func CreateMatchedQuery(q Query, g GroupedQueryMatch) Query {
	nodeImage := g.GetNodeImageHomomorphism()
	edgeImage := g.GetImageHomomorphism()

	resolve := func(n graph.Node) graph.Node {
		if bound, ok := nodeImage[n]; ok {
			return bound.ForgetQueryNodeName()
		}
		return n
	}

	newEdges := make([]graph.Edge, 0, len(q.Graph.Edges))
	optional := map[graph.Edge]struct{}{}
	output := map[graph.Edge]struct{}{}

	for _, qe := range q.Graph.Edges {
		var specialized graph.Edge
		if bound, ok := edgeImage[qe]; ok {
			specialized = bound
		} else {
			specialized = graph.Edge{
				Src:           resolve(qe.Src),
				Trg:           resolve(qe.Trg),
				EdgeType:      qe.EdgeType,
				FromTimestamp: bound0(),
			}
		}
		newEdges = append(newEdges, specialized)
		if _, ok := q.OptionalEdges[qe]; ok {
			optional[specialized] = struct{}{}
		}
		if _, ok := q.OutputEdges[qe]; ok {
			output[specialized] = struct{}{}
		}
	}

	group := map[graph.Node]struct{}{}
	for n := range q.Group {
		group[resolve(n)] = struct{}{}
	}
	input := map[graph.Node]struct{}{}
	for n := range q.InputNodes {
		input[resolve(n)] = struct{}{}
	}

	return Query{
		Name:          q.Name,
		Application:   q.Application,
		Graph:         graph.FromEdges(newEdges),
		OptionalEdges: optional,
		Group:         group,
		OutputEdges:   output,
		InputNodes:    input,
	}
}

func bound0() uint64 { return 0 }
