// Package query implements the subgraph-homomorphism matcher: given a
// Query's pattern graph and a concrete working Graph, find every grouped
// match, plus the stable-hash codec used to memoize match output.
package query

import (
	"sort"

	"github.com/magbak/mbei/internal/domain/graph"
)

// Query is a named pattern: a graph of query-side nodes, with a subset of
// edges marked optional, a subset of nodes marked for grouping, a subset
// of edges marked as this query's possible outputs, and the event-typed
// input nodes that trigger matching.
type Query struct {
	Name          string
	Application   string
	Graph         graph.Graph
	OptionalEdges map[graph.Edge]struct{}
	Group         map[graph.Node]struct{}
	OutputEdges   map[graph.Edge]struct{}
	InputNodes    map[graph.Node]struct{}
}

// QueryMatch is a homomorphism from the query's edges to graph edges.
// An optional edge may map to nil.
type QueryMatch struct {
	Homomorphism map[graph.Edge]*graph.Edge
}

func (m QueryMatch) clone() QueryMatch {
	cp := QueryMatch{Homomorphism: make(map[graph.Edge]*graph.Edge, len(m.Homomorphism))}
	for k, v := range m.Homomorphism {
		cp.Homomorphism[k] = v
	}
	return cp
}

// boundKeys returns the query edges whose binding is actually bound
// (non-nil).
func (m QueryMatch) boundKeys() []graph.Edge {
	keys := make([]graph.Edge, 0, len(m.Homomorphism))
	for k, v := range m.Homomorphism {
		if v != nil {
			keys = append(keys, k)
		}
	}
	return keys
}

func edgeLess(a, b graph.Edge) bool {
	ae, be := a.CanonicalEncode(), b.CanonicalEncode()
	for i := 0; i < len(ae) && i < len(be); i++ {
		if ae[i] != be[i] {
			return ae[i] < be[i]
		}
	}
	return len(ae) < len(be)
}

// isSubsetOf reports whether every bound key of m also appears bound (to
// the same instance edge) in o — used by redundancy removal.
func (m QueryMatch) isSubsetOf(o QueryMatch) bool {
	for k, v := range m.Homomorphism {
		if v == nil {
			continue
		}
		ov, ok := o.Homomorphism[k]
		if !ok || ov == nil || *ov != *v {
			return false
		}
	}
	return true
}

func (m QueryMatch) isEmpty() bool {
	for _, v := range m.Homomorphism {
		if v != nil {
			return false
		}
	}
	return true
}

// GroupedQueryMatch buckets matches that agree on the binding of the
// query's Group nodes.
type GroupedQueryMatch struct {
	GroupedMatches []QueryMatch
}

// GetImageHomomorphism returns the mapping from each query edge to its
// bound instance edge, merged over all member matches (skipping unbound
// optional edges; where members bind the same query edge differently, the
// member iterated last wins) — used when materializing an application call.
func (g GroupedQueryMatch) GetImageHomomorphism() map[graph.Edge]graph.Edge {
	out := map[graph.Edge]graph.Edge{}
	for _, m := range g.GroupedMatches {
		for k, v := range m.Homomorphism {
			if v != nil {
				out[k] = *v
			}
		}
	}
	return out
}

// GetNodeImageHomomorphism returns the per-node binding (query node ->
// instance node) implied by GetImageHomomorphism.
func (g GroupedQueryMatch) GetNodeImageHomomorphism() map[graph.Node]graph.Node {
	out := map[graph.Node]graph.Node{}
	for qe, ie := range g.GetImageHomomorphism() {
		out[qe.Src] = ie.Src
		out[qe.Trg] = ie.Trg
	}
	return out
}

// FindAllMatches runs the subgraph-homomorphism search of a query's
// pattern graph against a concrete working graph, applying the local
// filter, consistency checks, optional-edge forking, redundancy removal,
// and the empty-only guard.
func FindAllMatches(q Query, g graph.Graph) []QueryMatch {
	matches := []QueryMatch{{Homomorphism: map[graph.Edge]*graph.Edge{}}}

	// Pre-bind edges whose pattern already names concrete instances on
	// both endpoints.
	var toExtend []graph.Edge
	for _, qe := range q.Graph.Edges {
		if qe.Src.InstanceNodeName != nil && qe.Trg.InstanceNodeName != nil {
			bound := findIdentityEdge(g, qe)
			for i := range matches {
				matches[i].Homomorphism[qe] = bound
			}
			continue
		}
		toExtend = append(toExtend, qe)
	}

	for _, qe := range toExtend {
		matches = extendMatches(q, qe, matches, g)
	}

	matches = removeRedundant(matches)
	if len(matches) == 1 && matches[0].isEmpty() {
		return nil
	}
	return matches
}

func findIdentityEdge(g graph.Graph, qe graph.Edge) *graph.Edge {
	for _, ce := range g.Edges {
		if ce.EdgeType != qe.EdgeType {
			continue
		}
		if ce.Src.InstanceNodeName != nil && qe.Src.InstanceNodeName != nil && *ce.Src.InstanceNodeName == *qe.Src.InstanceNodeName &&
			ce.Trg.InstanceNodeName != nil && qe.Trg.InstanceNodeName != nil && *ce.Trg.InstanceNodeName == *qe.Trg.InstanceNodeName {
			edge := ce
			return &edge
		}
	}
	return nil
}

// extendMatches extends every partial match in matches by trying to bind
// query edge qe against every candidate edge of g that passes the local
// filter and the consistency check against already-bound neighbors. If
// qe is optional, every fork also spawns an unmatched variant.
func extendMatches(q Query, qe graph.Edge, matches []QueryMatch, g graph.Graph) []QueryMatch {
	_, optional := q.OptionalEdges[qe]

	var out []QueryMatch
	for _, m := range matches {
		extended := false
		for _, ce := range g.Edges {
			candidate := ce
			if !localFilter(qe, candidate) {
				continue
			}
			if !consistent(q, qe, candidate, m) {
				continue
			}
			fork := m.clone()
			fork.Homomorphism[qe] = &candidate
			out = append(out, fork)
			extended = true
		}
		if optional || !extended {
			fork := m.clone()
			fork.Homomorphism[qe] = nil
			out = append(out, fork)
		}
	}
	return out
}

func localFilter(qe, ce graph.Edge) bool {
	if qe.EdgeType != ce.EdgeType {
		return false
	}
	if qe.Src.NodeClass != ce.Src.NodeClass || qe.Trg.NodeClass != ce.Trg.NodeClass {
		return false
	}
	if qe.Src.NodeType != nil && (ce.Src.NodeType == nil || *qe.Src.NodeType != *ce.Src.NodeType) {
		return false
	}
	if qe.Trg.NodeType != nil && (ce.Trg.NodeType == nil || *qe.Trg.NodeType != *ce.Trg.NodeType) {
		return false
	}
	if qe.Src.InstanceNodeName != nil && (ce.Src.InstanceNodeName == nil || *qe.Src.InstanceNodeName != *ce.Src.InstanceNodeName) {
		return false
	}
	if qe.Trg.InstanceNodeName != nil && (ce.Trg.InstanceNodeName == nil || *qe.Trg.InstanceNodeName != *ce.Trg.InstanceNodeName) {
		return false
	}
	return true
}

// consistent checks that any query-neighbor of qe.Src or qe.Trg that is
// already bound in m maps to the corresponding endpoint of the candidate.
func consistent(q Query, qe, ce graph.Edge, m QueryMatch) bool {
	check := func(queryNode graph.Node, instanceNode graph.Node, neighbors []graph.Edge, endpointOf func(graph.Edge) graph.Node) bool {
		for _, nqe := range neighbors {
			if nqe == qe {
				continue
			}
			bound, ok := m.Homomorphism[nqe]
			if !ok || bound == nil {
				continue
			}
			if endpointOf(nqe) != queryNode {
				continue
			}
			if endpointOf(*bound) != instanceNode {
				return false
			}
		}
		return true
	}
	srcOK := check(qe.Src, ce.Src, q.Graph.Outgoing[qe.Src], func(e graph.Edge) graph.Node { return e.Src }) &&
		check(qe.Src, ce.Src, q.Graph.Incoming[qe.Src], func(e graph.Edge) graph.Node { return e.Trg })
	trgOK := check(qe.Trg, ce.Trg, q.Graph.Outgoing[qe.Trg], func(e graph.Edge) graph.Node { return e.Src }) &&
		check(qe.Trg, ce.Trg, q.Graph.Incoming[qe.Trg], func(e graph.Edge) graph.Node { return e.Trg })
	return srcOK && trgOK
}

func removeRedundant(matches []QueryMatch) []QueryMatch {
	dropped := make([]bool, len(matches))
	for i := range matches {
		if dropped[i] {
			continue
		}
		for j := i + 1; j < len(matches); j++ {
			if dropped[j] {
				continue
			}
			iSubJ := matches[i].isSubsetOf(matches[j])
			jSubI := matches[j].isSubsetOf(matches[i])
			switch {
			case iSubJ && jSubI:
				dropped[j] = true
			case iSubJ:
				dropped[i] = true
			case jSubI:
				dropped[j] = true
			}
		}
	}
	var out []QueryMatch
	for i, m := range matches {
		if !dropped[i] {
			out = append(out, m)
		}
	}
	return out
}

// FindAllGroupedMatches runs FindAllMatches and buckets the results by
// the (canonically sorted) binding of the query's Group nodes. If Group
// is empty, every match is its own singleton group.
func FindAllGroupedMatches(q Query, g graph.Graph) []GroupedQueryMatch {
	matches := FindAllMatches(q, g)
	if len(q.Group) == 0 {
		out := make([]GroupedQueryMatch, 0, len(matches))
		for _, m := range matches {
			out = append(out, GroupedQueryMatch{GroupedMatches: []QueryMatch{m}})
		}
		return out
	}

	type key string
	buckets := map[key][]QueryMatch{}
	var order []key
	for _, m := range matches {
		k := groupKey(q, m)
		if _, ok := buckets[k]; !ok {
			order = append(order, k)
		}
		buckets[k] = append(buckets[k], m)
	}
	sort.Strings(order)
	out := make([]GroupedQueryMatch, 0, len(order))
	for _, k := range order {
		out = append(out, GroupedQueryMatch{GroupedMatches: buckets[k]})
	}
	return out
}

func groupKey(q Query, m QueryMatch) string {
	nodeImage := map[graph.Node]graph.Node{}
	for qe, ie := range m.Homomorphism {
		if ie == nil {
			continue
		}
		nodeImage[qe.Src] = ie.Src
		nodeImage[qe.Trg] = ie.Trg
	}
	groupNodes := make([]graph.Node, 0, len(q.Group))
	for n := range q.Group {
		groupNodes = append(groupNodes, n)
	}
	sort.Slice(groupNodes, func(i, j int) bool {
		return string(encodeNodeForKey(groupNodes[i])) < string(encodeNodeForKey(groupNodes[j]))
	})
	var buf []byte
	for _, n := range groupNodes {
		buf = append(buf, encodeNodeForKey(n)...)
		if bound, ok := nodeImage[n]; ok {
			buf = append(buf, 1)
			buf = append(buf, encodeNodeForKey(bound)...)
		} else {
			buf = append(buf, 0)
		}
	}
	return string(buf)
}

func encodeNodeForKey(n graph.Node) []byte {
	e := graph.Edge{Src: n, Trg: n, EdgeType: ""}
	return e.CanonicalEncode()
}
