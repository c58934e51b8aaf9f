// Package transport implements the component's network boundary: the
// priority inbox queue that buffers inbound updates between RPC arrival
// and reactor dispatch, and the framed TCP client/server that carries
// updates between components.
package transport

import (
	"sync"

	"github.com/magbak/mbei/internal/domain/event"
)

// Queue is the priority inbox: retractions (earliest timestamp first),
// then deltas (earliest origin timestamp first), then events (earliest
// timestamp first). A sticky Stop flag, once set, is returned ahead of
// everything else and stays set.
type Queue struct {
	mu sync.Mutex

	openEvents      []event.Event
	openDeltas      []event.Deltas
	openRetractions []event.Retractions
	stop            bool
}

func NewQueue() *Queue {
	return &Queue{}
}

// Insert adds u to the appropriate bucket and returns the queue's size
// after insertion (used by the RPC handler's backpressure response).
func (q *Queue) Insert(u event.Update) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	switch u.Kind {
	case event.KindStop:
		q.stop = true
	case event.KindEvent:
		q.openEvents = append(q.openEvents, *u.Event)
	case event.KindDeltas:
		q.openDeltas = append(q.openDeltas, *u.Deltas)
	case event.KindRetractions:
		q.openRetractions = append(q.openRetractions, *u.Retractions)
	}
	return q.sizeLocked()
}

// Size returns the number of buffered (non-stop) updates.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.sizeLocked()
}

func (q *Queue) sizeLocked() int {
	return len(q.openEvents) + len(q.openDeltas) + len(q.openRetractions)
}

// PopEarliest removes and returns the highest-priority buffered update:
// Stop (if ever set) beats everything; otherwise the earliest-timestamped
// retraction beats the earliest-origin-timestamped deltas package beats
// the earliest-timestamped event. Returns (zero, false) when empty.
func (q *Queue) PopEarliest() (event.Update, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stop {
		return event.StopUpdate(), true
	}

	if len(q.openRetractions) > 0 {
		idx := minIndexBy(len(q.openRetractions), func(i int) uint64 { return q.openRetractions[i].Timestamp })
		r := swapRemoveRetractions(&q.openRetractions, idx)
		return event.RetractionsUpdate(r), true
	}
	if len(q.openDeltas) > 0 {
		idx := minIndexBy(len(q.openDeltas), func(i int) uint64 { return q.openDeltas[i].OriginTimestamp })
		d := swapRemoveDeltas(&q.openDeltas, idx)
		return event.DeltasUpdate(d), true
	}
	if len(q.openEvents) > 0 {
		idx := minIndexBy(len(q.openEvents), func(i int) uint64 { return q.openEvents[i].Timestamp })
		e := swapRemoveEvents(&q.openEvents, idx)
		return event.EventUpdate(e), true
	}
	return event.Update{}, false
}

func minIndexBy(n int, key func(int) uint64) int {
	best := 0
	bestKey := key(0)
	for i := 1; i < n; i++ {
		if k := key(i); k < bestKey {
			best, bestKey = i, k
		}
	}
	return best
}

// The removal helpers keep the remaining entries in insertion order, so
// minIndexBy's first-minimum pick breaks timestamp ties by arrival.
func swapRemoveEvents(s *[]event.Event, i int) event.Event {
	v := (*s)[i]
	*s = append((*s)[:i], (*s)[i+1:]...)
	return v
}

func swapRemoveDeltas(s *[]event.Deltas, i int) event.Deltas {
	v := (*s)[i]
	*s = append((*s)[:i], (*s)[i+1:]...)
	return v
}

func swapRemoveRetractions(s *[]event.Retractions, i int) event.Retractions {
	v := (*s)[i]
	*s = append((*s)[:i], (*s)[i+1:]...)
	return v
}
