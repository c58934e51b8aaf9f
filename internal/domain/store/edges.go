package store

import "github.com/magbak/mbei/internal/domain/graph"

// UpdateEdges diff-applies an edge-set change to the indexes: every edge
// in oldEdges not present in newEdges is deleted; every edge in newEdges
// not present in oldEdges is added. Edges unchanged between the two sets
// are left untouched.
func (s *Store) UpdateEdges(newEdges, oldEdges []graph.Edge) {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldSet := map[graph.Edge]struct{}{}
	for _, e := range oldEdges {
		oldSet[e] = struct{}{}
	}
	newSet := map[graph.Edge]struct{}{}
	for _, e := range newEdges {
		newSet[e] = struct{}{}
	}

	for e := range oldSet {
		if _, stillThere := newSet[e]; !stillThere {
			s.deleteEdgeLocked(e)
		}
	}
	for e := range newSet {
		if _, wasThere := oldSet[e]; !wasThere {
			s.addEdgeLocked(e)
		}
	}
}

func (s *Store) addEdgeLocked(e graph.Edge) {
	if e.IsOpen() {
		s.openEdges[e] = struct{}{}
	} else {
		level := s.findEdgeIndexAndLevel(e)
		fromBin := e.FromTimestamp / s.levels[level]
		toBin := *e.ToTimestamp / s.levels[level]
		s.insertGrid(level, fromBin, e)
		if toBin != fromBin {
			s.insertGrid(level, toBin, e)
		}
	}
	s.indexEdgeByNode(e, true)
}

func (s *Store) deleteEdgeLocked(e graph.Edge) {
	if e.IsOpen() {
		delete(s.openEdges, e)
	} else {
		level := s.findEdgeIndexAndLevel(e)
		fromBin := e.FromTimestamp / s.levels[level]
		toBin := *e.ToTimestamp / s.levels[level]
		s.removeGrid(level, fromBin, e)
		if toBin != fromBin {
			s.removeGrid(level, toBin, e)
		}
	}
	s.indexEdgeByNode(e, false)
}

// findEdgeIndexAndLevel picks the smallest grid level whose bin width is
// >= duration/2, falling back to the coarsest level for very long edges.
func (s *Store) findEdgeIndexAndLevel(e graph.Edge) int {
	d := e.Duration()
	for i, width := range s.levels {
		if width >= d/2 {
			return i
		}
	}
	return len(s.levels) - 1
}

func (s *Store) insertGrid(level int, bin uint64, e graph.Edge) {
	if s.grid[level][bin] == nil {
		s.grid[level][bin] = map[graph.Edge]struct{}{}
	}
	s.grid[level][bin][e] = struct{}{}
}

func (s *Store) removeGrid(level int, bin uint64, e graph.Edge) {
	if m, ok := s.grid[level][bin]; ok {
		delete(m, e)
		if len(m) == 0 {
			delete(s.grid[level], bin)
		}
	}
}

// indexEdgeByNode indexes e under its Material-class endpoints' instance
// names (Property endpoints are not separately node-indexed — see
// DESIGN.md). add selects insertion vs. removal.
func (s *Store) indexEdgeByNode(e graph.Edge, add bool) {
	for _, n := range []graph.Node{e.Src, e.Trg} {
		if n.NodeClass != graph.ClassMaterial || n.InstanceNodeName == nil {
			continue
		}
		name := *n.InstanceNodeName
		if add {
			if s.edgesByNodeName[name] == nil {
				s.edgesByNodeName[name] = map[graph.Edge]struct{}{}
			}
			s.edgesByNodeName[name][e] = struct{}{}
		} else if m, ok := s.edgesByNodeName[name]; ok {
			delete(m, e)
			if len(m) == 0 {
				delete(s.edgesByNodeName, name)
			}
		}
	}
}

// GetEdgesAtTimestamp returns every edge live at t: all open edges with
// from <= t; if t <= watermark, closed grid edges spanning t; and,
// transitively, every Material-touching edge reachable from a Material
// node already in the result and itself spanning t.
func (s *Store) GetEdgesAtTimestamp(t uint64) []graph.Edge {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := map[graph.Edge]struct{}{}

	for e := range s.openEdges {
		if e.FromTimestamp <= t {
			result[e] = struct{}{}
		}
	}

	if t <= s.watermark {
		for level, width := range s.levels {
			bin := t / width
			for e := range s.grid[level][bin] {
				if e.FromTimestamp <= t && e.ToTimestamp != nil && t <= *e.ToTimestamp {
					result[e] = struct{}{}
				}
			}
		}
	}

	s.closeOverMaterialReachabilityLocked(result, t)

	out := make([]graph.Edge, 0, len(result))
	for e := range result {
		out = append(out, e)
	}
	return out
}

// closeOverMaterialReachabilityLocked expands result with every
// Material-touching edge reachable (by shared instance node name) from a
// Material node already present, filtered to those spanning t. Fixed
// point over a worklist, matching the reference's BFS-style traversal.
func (s *Store) closeOverMaterialReachabilityLocked(result map[graph.Edge]struct{}, t uint64) {
	seenNames := map[string]struct{}{}
	var worklist []string
	for e := range result {
		for _, n := range []graph.Node{e.Src, e.Trg} {
			if n.NodeClass == graph.ClassMaterial && n.InstanceNodeName != nil {
				if _, ok := seenNames[*n.InstanceNodeName]; !ok {
					seenNames[*n.InstanceNodeName] = struct{}{}
					worklist = append(worklist, *n.InstanceNodeName)
				}
			}
		}
	}

	for len(worklist) > 0 {
		name := worklist[0]
		worklist = worklist[1:]
		for e := range s.edgesByNodeName[name] {
			spans := e.IsOpen() && e.FromTimestamp <= t
			if !spans && e.ToTimestamp != nil {
				spans = e.FromTimestamp <= t && t <= *e.ToTimestamp
			}
			if !spans {
				continue
			}
			if _, already := result[e]; already {
				continue
			}
			result[e] = struct{}{}
			for _, n := range []graph.Node{e.Src, e.Trg} {
				if n.NodeClass == graph.ClassMaterial && n.InstanceNodeName != nil {
					if _, ok := seenNames[*n.InstanceNodeName]; !ok {
						seenNames[*n.InstanceNodeName] = struct{}{}
						worklist = append(worklist, *n.InstanceNodeName)
					}
				}
			}
		}
	}
}
