// Package store implements the bitemporal edge store: every accepted
// delta, the edges derived from them, and the indexes (open-edge set,
// four-level interval grid, material-node index) that answer "what edges
// were live at timestamp t" without rescanning full history.
package store

import (
	"sort"
	"sync"

	"github.com/magbak/mbei/internal/domain/event"
	"github.com/magbak/mbei/internal/domain/graph"
)

// DefaultLevels are the interval-grid bin widths, smallest first. An edge
// of duration d is placed in the smallest level whose bin width is >= d/2.
var DefaultLevels = [4]uint64{10, 100, 1000, ^uint64(0) / 2}

type deltaAndID struct {
	deltasID string
	delta    graph.Delta
}

// Store is the single-owner, mutex-protected bitemporal edge index for
// one component. It is never shared outside the consistency loop's
// goroutine; the mutex exists only because some accessors are exercised
// from tests concurrently with the reactor.
type Store struct {
	mu sync.Mutex

	deltasByID       map[string]event.Deltas
	deltasByEdge     map[graph.Edge][]deltaAndID
	retractedIDs     map[string]struct{}
	eventsByID       map[string]event.Event
	eventIDsByTs     map[uint64]map[string]struct{}
	openEdges        map[graph.Edge]struct{}
	grid             [4]map[uint64]map[graph.Edge]struct{}
	edgesByNodeName  map[string]map[graph.Edge]struct{}
	watermark        uint64
	levels           [4]uint64
	outputHashByHash map[string]map[uint64]*uint64 // eventID -> matchHash -> outputHash (nil = no output)
	bindingsIndex    map[string]map[uint64][]TopicAndDeltasID
}

// TopicAndDeltasID records one routed delivery: which peer topic received
// which deltas-id, so a later retraction of the owning match knows what
// to unwind.
type TopicAndDeltasID struct {
	Topic    string
	DeltasID string
}

func New() *Store {
	s := &Store{
		deltasByID:       map[string]event.Deltas{},
		deltasByEdge:     map[graph.Edge][]deltaAndID{},
		retractedIDs:     map[string]struct{}{},
		eventsByID:       map[string]event.Event{},
		eventIDsByTs:     map[uint64]map[string]struct{}{},
		openEdges:        map[graph.Edge]struct{}{},
		edgesByNodeName:  map[string]map[graph.Edge]struct{}{},
		levels:           DefaultLevels,
		outputHashByHash: map[string]map[uint64]*uint64{},
		bindingsIndex:    map[string]map[uint64][]TopicAndDeltasID{},
	}
	for i := range s.grid {
		s.grid[i] = map[uint64]map[graph.Edge]struct{}{}
	}
	return s
}

func matchEventKey(eventID string) string { return eventID }

// AddNewEvent records e under its id and timestamp. Idempotent: calling
// twice with the same event id is a no-op the second time.
func (s *Store) AddNewEvent(e event.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eventsByID[e.EventID] = e
	if s.eventIDsByTs[e.Timestamp] == nil {
		s.eventIDsByTs[e.Timestamp] = map[string]struct{}{}
	}
	s.eventIDsByTs[e.Timestamp][e.EventID] = struct{}{}
}

// GetEventByID returns the event previously recorded under id.
func (s *Store) GetEventByID(id string) (event.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.eventsByID[id]
	return e, ok
}

// GetEventIDsInInterval returns every recorded event id whose timestamp
// falls within [from, to] (to nil meaning unbounded).
func (s *Store) GetEventIDsInInterval(from uint64, to *uint64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for ts, ids := range s.eventIDsByTs {
		if ts < from {
			continue
		}
		if to != nil && ts > *to {
			continue
		}
		for id := range ids {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// IsRetracted reports whether id (a deltas-id or retraction-sourced id)
// has ever been retracted.
func (s *Store) IsRetracted(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.retractedIDs[id]
	return ok
}

// AddRetractions adds every id in ids to the permanent retracted set.
func (s *Store) AddRetractions(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.retractedIDs[id] = struct{}{}
	}
}

// AddDeltasAndGetUpdatedByEdge merges d into the store, advances the
// watermark to the max removal timestamp observed, and returns the full
// (pre-existing union new) per-edge delta set for every edge shape d
// touched.
func (s *Store) AddDeltasAndGetUpdatedByEdge(d event.Deltas) map[graph.Edge][]graph.Delta {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deltasByID[d.DeltasID] = d
	touched := map[graph.Edge]struct{}{}
	for _, delta := range d.Deltas {
		shape := delta.ToEdge().WithoutTimestamp()
		s.deltasByEdge[shape] = append(s.deltasByEdge[shape], deltaAndID{deltasID: d.DeltasID, delta: delta})
		touched[shape] = struct{}{}
		if delta.DeltaType == graph.Removal && delta.Timestamp > s.watermark {
			s.watermark = delta.Timestamp
		}
	}

	out := map[graph.Edge][]graph.Delta{}
	for shape := range touched {
		out[shape] = s.deltasForEdgeLocked(shape)
	}
	return out
}

func (s *Store) deltasForEdgeLocked(shape graph.Edge) []graph.Delta {
	entries := s.deltasByEdge[shape]
	out := make([]graph.Delta, 0, len(entries))
	for _, e := range entries {
		if _, retracted := s.retractedIDs[e.deltasID]; retracted {
			continue
		}
		out = append(out, e.delta)
	}
	return out
}

// GetDeltasByEdgeVec returns a snapshot of live (non-retracted) deltas for
// each requested edge shape.
func (s *Store) GetDeltasByEdgeVec(shapes []graph.Edge) map[graph.Edge][]graph.Delta {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[graph.Edge][]graph.Delta{}
	for _, shape := range shapes {
		out[shape] = s.deltasForEdgeLocked(shape.WithoutTimestamp())
	}
	return out
}

// RemoveDeltasByEdgesAndGetUpdated deletes every delta belonging to one of
// ids, grouped by edge shape, and returns the remaining per-edge set.
func (s *Store) RemoveDeltasByEdgesAndGetUpdated(ids []string) map[graph.Edge][]graph.Delta {
	s.mu.Lock()
	defer s.mu.Unlock()

	idSet := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		idSet[id] = struct{}{}
	}

	touched := map[graph.Edge]struct{}{}
	for shape, entries := range s.deltasByEdge {
		kept := entries[:0:0]
		changed := false
		for _, e := range entries {
			if _, drop := idSet[e.deltasID]; drop {
				changed = true
				continue
			}
			kept = append(kept, e)
		}
		if changed {
			s.deltasByEdge[shape] = kept
			touched[shape] = struct{}{}
		}
	}

	out := map[graph.Edge][]graph.Delta{}
	for shape := range touched {
		out[shape] = s.deltasForEdgeLocked(shape)
	}
	return out
}

// GetDeltasAndDeltasIDByEdge returns, for the given shape, every live
// (not retracted) delta whose owning deltas id is in ids. Only the deltas
// are returned, not their owning ids.
func (s *Store) GetDeltasAndDeltasIDByEdge(shape graph.Edge, ids map[string]struct{}) []graph.Delta {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []graph.Delta
	for _, e := range s.deltasByEdge[shape.WithoutTimestamp()] {
		if _, retracted := s.retractedIDs[e.deltasID]; retracted {
			continue
		}
		if _, match := ids[e.deltasID]; match {
			out = append(out, e.delta)
		}
	}
	return out
}

// AllEdgeShapesTouchedByIDs returns every distinct edge shape that has at
// least one stored delta owned by one of ids, whether or not that delta
// has been retracted.
func (s *Store) AllEdgeShapesTouchedByIDs(ids map[string]struct{}) []graph.Edge {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []graph.Edge
	for shape, entries := range s.deltasByEdge {
		for _, e := range entries {
			if _, match := ids[e.deltasID]; match {
				out = append(out, shape)
				break
			}
		}
	}
	return out
}
