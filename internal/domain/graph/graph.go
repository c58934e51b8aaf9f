package graph

// Graph is the working set built per event: an edge list plus adjacency
// indexed by node, used by the query matcher's consistency checks.
type Graph struct {
	Edges    []Edge
	Incoming map[Node][]Edge
	Outgoing map[Node][]Edge
}

// FromEdges builds a Graph from an edge list, ensuring every node touched
// by any edge has an (possibly empty) adjacency entry.
func FromEdges(edges []Edge) Graph {
	g := Graph{
		Edges:    edges,
		Incoming: map[Node][]Edge{},
		Outgoing: map[Node][]Edge{},
	}
	for _, e := range edges {
		if _, ok := g.Outgoing[e.Src]; !ok {
			g.Outgoing[e.Src] = nil
		}
		if _, ok := g.Incoming[e.Src]; !ok {
			g.Incoming[e.Src] = nil
		}
		if _, ok := g.Outgoing[e.Trg]; !ok {
			g.Outgoing[e.Trg] = nil
		}
		if _, ok := g.Incoming[e.Trg]; !ok {
			g.Incoming[e.Trg] = nil
		}
		g.Outgoing[e.Src] = append(g.Outgoing[e.Src], e)
		g.Incoming[e.Trg] = append(g.Incoming[e.Trg], e)
	}
	return g
}
