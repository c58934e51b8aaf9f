// Package router computes each component's edge-forward map against every
// other query in the deployment and uses it to route produced deltas
// packages and retractions to the components that actually consume them.
package router

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/magbak/mbei/internal/domain/event"
	"github.com/magbak/mbei/internal/domain/graph"
	"github.com/magbak/mbei/internal/domain/query"
	"github.com/magbak/mbei/internal/domain/store"
)

// CentralTopic is the reserved topic name for the central durable store,
// always dialed regardless of whether any query's edge-forward map reaches
// it.
const CentralTopic = "central"

// Sender delivers an Update to a named peer topic over the network. It is
// late-bound via SetSender so Router can be constructed before transport
// is wired up.
type Sender interface {
	Send(topic string, u event.Update) error
}

// Logger is the narrow logging surface Router depends on.
type Logger interface {
	Debug(msg string, fields ...interface{})
}

// Router owns one query's computed edge-forward map: which peer topics
// (including, optionally, central) must see deltas whose shape matches one
// of this query's output edges, directly or transitively through another
// query's own output edges.
type Router struct {
	mu sync.RWMutex

	QueryName      string
	edgeForwardMap map[graph.Edge]map[string]struct{}
	reachedSet     map[string]struct{}
	queryURLMap    map[string]string
	useCentral     bool

	sender Sender
	log    Logger
}

// New builds a Router for queryName from the full set of deployed queries.
// queryURLMap names every topic (including "central" when useCentral) this
// router may need to dial; it is consulted only by the transport layer's
// dialing step, not by the forward-map computation itself.
func New(queryName string, allQueries map[string]query.Query, queryURLMap map[string]string, useCentral bool, log Logger) *Router {
	allMaps := computeEdgeForwardMaps(allQueries)
	allMaps = computeEdgeForwardClosure(allMaps, allQueries)

	owned := allMaps[queryName]
	reached := map[string]struct{}{}
	for _, qnames := range owned {
		for qn := range qnames {
			reached[qn] = struct{}{}
		}
	}

	r := &Router{
		QueryName:      queryName,
		edgeForwardMap: owned,
		reachedSet:     reached,
		queryURLMap:    queryURLMap,
		useCentral:     useCentral,
		log:            log,
	}
	log.Debug("computed forward map", "query", queryName, "edges", len(owned), "reaches", len(reached))
	return r
}

// SetSender wires the transport-backed sender once the network layer is
// up. Routing calls made before this is set silently drop remote sends
// (used in tests that only care about internal routing).
func (r *Router) SetSender(s Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sender = s
}

// ReachedQueryNames returns every peer query this router's forward map (or
// its transitive/triangle closure) can deliver to. Nothing in the module
// calls it; PeerSender dials each peer on its first send.
func (r *Router) ReachedQueryNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.reachedSet))
	for q := range r.reachedSet {
		out = append(out, q)
	}
	sort.Strings(out)
	return out
}

// RouteDeltasUpdate implements SPEC_FULL.md §4.8: optionally forward to
// central, then fan the deltas package out per-edge-shape to every peer
// query whose input this query's output reaches. A fan-out landing on this
// router's own query name is returned as an internal update rather than
// sent over the network.
func (r *Router) RouteDeltasUpdate(d event.Deltas) (*event.Update, []store.TopicAndDeltasID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var bindings []store.TopicAndDeltasID

	if r.useCentral {
		if err := r.send(CentralTopic, event.DeltasUpdate(d)); err != nil {
			return nil, nil, fmt.Errorf("routing deltas %s to central: %w", d.DeltasID, err)
		}
		bindings = append(bindings, store.TopicAndDeltasID{Topic: CentralTopic, DeltasID: d.DeltasID})
	}

	perQuery := map[string][]graph.Delta{}
	var order []string
	for _, delta := range d.Deltas {
		shape := delta.ToEdge().ForgetParticulars()
		queries, ok := r.edgeForwardMap[shape]
		if !ok {
			continue
		}
		names := make([]string, 0, len(queries))
		for q := range queries {
			names = append(names, q)
		}
		sort.Strings(names)
		for _, q := range names {
			if _, seen := perQuery[q]; !seen {
				order = append(order, q)
			}
			perQuery[q] = append(perQuery[q], delta)
		}
	}

	var internal *event.Update
	for _, q := range order {
		deltasID := uuid.NewString()
		out := event.Deltas{
			DeltasID:        deltasID,
			OriginID:        d.OriginID,
			OriginTimestamp: d.OriginTimestamp,
			Deltas:          perQuery[q],
		}
		bindings = append(bindings, store.TopicAndDeltasID{Topic: q, DeltasID: deltasID})

		if q == r.QueryName {
			u := event.DeltasUpdate(out)
			internal = &u
			r.log.Debug("routed update internally", "query", r.QueryName, "deltas_id", deltasID)
			continue
		}
		if err := r.send(q, event.DeltasUpdate(out)); err != nil {
			return nil, nil, fmt.Errorf("routing deltas %s to %s: %w", deltasID, q, err)
		}
		r.log.Debug("sent deltas", "from", r.QueryName, "to", q, "deltas_id", deltasID, "origin", d.OriginID)
	}

	return internal, bindings, nil
}

// RouteRetractions implements the retraction half of §4.8: replay each
// recorded binding as a Retractions update to its owning topic, folding
// any self-addressed binding into an internal update instead of a send.
func (r *Router) RouteRetractions(bindings []store.TopicAndDeltasID, timestamp uint64) ([]event.Update, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var internal []event.Update
	for _, b := range bindings {
		retraction := event.RetractionsUpdate(event.Retractions{
			RetractionID: uuid.NewString(),
			Timestamp:    timestamp,
			DeltasIDs:    []string{b.DeltasID},
		})
		if b.Topic == r.QueryName {
			internal = append(internal, retraction)
			continue
		}
		if err := r.send(b.Topic, retraction); err != nil {
			return nil, fmt.Errorf("routing retraction of %s to %s: %w", b.DeltasID, b.Topic, err)
		}
	}
	return internal, nil
}

func (r *Router) send(topic string, u event.Update) error {
	if r.sender == nil {
		return nil
	}
	return r.sender.Send(topic, u)
}

// computeEdgeForwardMaps builds, for every query, the map from its own
// output edges (with query-node names forgotten) to the set of queries
// whose pattern can consume an edge of that shape; the set includes the
// query itself when its own pattern consumes the edge.
func computeEdgeForwardMaps(all map[string]query.Query) map[string]map[graph.Edge]map[string]struct{} {
	maps := make(map[string]map[graph.Edge]map[string]struct{}, len(all))
	for name := range all {
		maps[name] = computeEdgeForwardMap(name, all)
	}
	return maps
}

func computeEdgeForwardMap(queryName string, all map[string]query.Query) map[graph.Edge]map[string]struct{} {
	my := all[queryName]
	forward := map[graph.Edge]map[string]struct{}{}
	for o := range my.OutputEdges {
		forward[o.ForgetQueryNodeName()] = map[string]struct{}{}
	}
	names := sortedQueryKeys(all)
	for _, otherName := range names {
		other := all[otherName]
		for _, o := range findOutputEdges(my, other) {
			key := o.ForgetQueryNodeName()
			if forward[key] == nil {
				forward[key] = map[string]struct{}{}
			}
			forward[key][otherName] = struct{}{}
		}
	}
	return forward
}

// findOutputEdges returns every output edge of src that matches at least
// one pattern edge of trg (by class/type/instance-name compatibility and
// exact edge type).
func findOutputEdges(src, trg query.Query) []graph.Edge {
	var out []graph.Edge
outer:
	for o := range src.OutputEdges {
		for _, i := range trg.Graph.Edges {
			if i.EdgeType != o.EdgeType {
				continue
			}
			if !nodeCompatible(i.Src, o.Src) || !nodeCompatible(i.Trg, o.Trg) {
				continue
			}
			out = append(out, o)
			continue outer
		}
	}
	return out
}

func nodeCompatible(pattern, produced graph.Node) bool {
	if pattern.NodeClass != produced.NodeClass {
		return false
	}
	if pattern.NodeType != nil && (produced.NodeType == nil || *pattern.NodeType != *produced.NodeType) {
		return false
	}
	if pattern.InstanceNodeName != nil && (produced.InstanceNodeName == nil || *pattern.InstanceNodeName != *produced.InstanceNodeName) {
		return false
	}
	return true
}

// computeEdgeForwardClosure applies the transitive closure (q reaches p
// reaches r => q reaches r, if q's output feeds r's input) followed by the
// triangle closure (q reaches both p1 and p2 => p1 may feed p2 directly).
func computeEdgeForwardClosure(maps map[string]map[graph.Edge]map[string]struct{}, all map[string]query.Query) map[string]map[graph.Edge]map[string]struct{} {
	maps = computeTransitiveClosure(maps, all)
	return computeTriangleClosure(maps, all)
}

func computeReachableMap(maps map[string]map[graph.Edge]map[string]struct{}) map[string]map[string]struct{} {
	reach := make(map[string]map[string]struct{}, len(maps))
	for q, fm := range maps {
		reached := map[string]struct{}{}
		for _, names := range fm {
			for n := range names {
				reached[n] = struct{}{}
			}
		}
		reach[q] = reached
	}
	return reach
}

func computeTransitiveClosure(maps map[string]map[graph.Edge]map[string]struct{}, all map[string]query.Query) map[string]map[graph.Edge]map[string]struct{} {
	allReachable := computeReachableMap(maps)
	newReachable := cloneReachable(allReachable)

	for len(newReachable) > 0 {
		iterReachable := map[string]map[string]struct{}{}
		qs := sortedReachKeys(newReachable)
		for _, q := range qs {
			rs := newReachable[q]
			forward := maps[q]
			qQuery := all[q]
			existing := allReachable[q]
			rNames := sortedSet(rs)
			for _, r := range rNames {
				pNames := sortedSet(allReachable[r])
				for _, p := range pNames {
					if _, already := existing[p]; already {
						continue
					}
					pQuery := all[p]
					include := findOutputEdges(qQuery, pQuery)
					if len(include) == 0 {
						continue
					}
					for _, e := range include {
						key := e.ForgetQueryNodeName()
						if forward[key] == nil {
							forward[key] = map[string]struct{}{}
						}
						forward[key][p] = struct{}{}
					}
					if iterReachable[q] == nil {
						iterReachable[q] = map[string]struct{}{}
					}
					iterReachable[q][p] = struct{}{}
				}
			}
		}
		for q, rs := range iterReachable {
			for r := range rs {
				allReachable[q][r] = struct{}{}
			}
		}
		newReachable = iterReachable
	}
	return maps
}

// computeTriangleClosure: if this router's query reaches both r1 and r2,
// and r1's output can directly feed r2's input, then r1 forwards straight
// to r2 without bouncing back through the original query.
func computeTriangleClosure(maps map[string]map[graph.Edge]map[string]struct{}, all map[string]query.Query) map[string]map[graph.Edge]map[string]struct{} {
	allReachable := computeReachableMap(maps)
	for _, rs := range allReachable {
		rNames := sortedSet(rs)
		for _, r1 := range rNames {
			forward := maps[r1]
			r1Query := all[r1]
			for _, r2 := range rNames {
				if r1 == r2 {
					continue
				}
				r2Query := all[r2]
				include := findOutputEdges(r1Query, r2Query)
				for _, e := range include {
					key := e.ForgetQueryNodeName()
					if forward[key] == nil {
						forward[key] = map[string]struct{}{}
					}
					forward[key][r2] = struct{}{}
				}
			}
		}
	}
	return maps
}

func sortedQueryKeys(all map[string]query.Query) []string {
	out := make([]string, 0, len(all))
	for k := range all {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedReachKeys(m map[string]map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedSet(s map[string]struct{}) []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func cloneReachable(m map[string]map[string]struct{}) map[string]map[string]struct{} {
	out := make(map[string]map[string]struct{}, len(m))
	for k, v := range m {
		cp := make(map[string]struct{}, len(v))
		for x := range v {
			cp[x] = struct{}{}
		}
		out[k] = cp
	}
	return out
}
