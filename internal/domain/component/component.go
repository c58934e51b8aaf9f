// Package component implements the per-query consistency loop: the
// reactor that drives one component's local state to fixed-point
// consistency on every incoming update.
package component

import (
	"fmt"
	"sort"

	"github.com/magbak/mbei/internal/domain/event"
	"github.com/magbak/mbei/internal/domain/interval"
	"github.com/magbak/mbei/internal/domain/query"
	"github.com/magbak/mbei/internal/domain/store"
)

// maxIterations is the consistency loop's runaway guard. Exceeding it is
// an invariant violation per SPEC_FULL.md §7: the reactor logs the
// pending queue sizes and panics rather than spinning forever.
const maxIterations = 1000

// Caller is the application-service client a Component calls on every new
// match.
type Caller interface {
	CallFunction(q query.Query, match query.GroupedQueryMatch, e event.Event) (*event.Deltas, error)
}

// Router decides which peer components (or central) must see a routed
// Deltas package or Retractions, dispatching over the network and
// surfacing any self-directed delivery as an internal Update.
type Router interface {
	RouteDeltasUpdate(d event.Deltas) (internalUpdate *event.Update, bindings []store.TopicAndDeltasID, err error)
	RouteRetractions(bindings []store.TopicAndDeltasID, timestamp uint64) (internalUpdates []event.Update, err error)
}

// Logger is the narrow logging surface Component depends on, satisfied by
// internal/infrastructure/logging.Logger.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// Counters summarizes one ProcessUpdateUntilConsistency call, returned so
// the server loop can log/export them.
type Counters struct {
	Handled       int
	Deltas        int
	Events        int
	Retractions   int
	Reprocessing  int
	OpenEdgeCount int
}

// Component owns one query's store, caller, and router under a single
// reactor goroutine. It is not safe to call ProcessUpdateUntilConsistency
// concurrently from multiple goroutines — the server loop (transport
// package) enforces strictly sequential dispatch per SPEC_FULL.md §5.
type Component struct {
	QueryName string
	Query     query.Query
	Store     *store.Store
	Caller    Caller
	Router    Router
	Log       Logger
}

func New(q query.Query, st *store.Store, caller Caller, router Router, log Logger) *Component {
	return &Component{QueryName: q.Name, Query: q, Store: st, Caller: caller, Router: router, Log: log}
}

// ProcessUpdateUntilConsistency is the entry point from SPEC_FULL.md §4.3:
// drive local state to fixed point for one externally-arrived update,
// including any self-directed cascades and reprocessing it triggers.
func (c *Component) ProcessUpdateUntilConsistency(update event.Update) (Counters, error) {
	var counters Counters

	if update.Kind == event.KindDeltas && c.Store.IsRetracted(update.Deltas.DeltasID) {
		return counters, nil
	}

	pendingUpdates := []event.Update{update}
	var pendingIntervals []pendingReprocess
	retractedIDs := map[string]struct{}{}

	seq := 0
	for len(pendingUpdates) > 0 || len(pendingIntervals) > 0 {
		seq++
		if seq > maxIterations {
			c.Log.Error("consistency loop exceeded iteration cap",
				"query", c.QueryName, "pending_updates", len(pendingUpdates), "pending_intervals", len(pendingIntervals))
			panic(fmt.Sprintf("component %s: consistency loop exceeded %d iterations", c.QueryName, maxIterations))
		}

		if len(pendingUpdates) == 0 {
			produced, remaining, err := c.reprocessUntilInternalUpdate(pendingIntervals)
			if err != nil {
				return counters, err
			}
			pendingIntervals = remaining
			pendingUpdates = append(pendingUpdates, produced...)
			counters.Reprocessing += len(produced)
			if len(produced) == 0 {
				break
			}
			continue
		}

		u := pendingUpdates[len(pendingUpdates)-1]
		pendingUpdates = pendingUpdates[:len(pendingUpdates)-1]
		counters.Handled++

		switch u.Kind {
		case event.KindEvent:
			if _, skip := retractedIDs[u.Event.EventID]; skip {
				continue
			}
			counters.Events++
			internal, err := c.processEvent(*u.Event)
			if err != nil {
				return counters, err
			}
			pendingUpdates = append(pendingUpdates, internal...)

		case event.KindDeltas:
			if _, skip := retractedIDs[u.Deltas.DeltasID]; skip {
				continue
			}
			if _, skip := retractedIDs[u.Deltas.OriginID]; skip {
				continue
			}
			counters.Deltas++
			ivs, err := c.processNewDeltas(*u.Deltas)
			if err != nil {
				return counters, err
			}
			for _, iv := range ivs {
				pendingIntervals = append(pendingIntervals, iv)
			}

		case event.KindRetractions:
			counters.Retractions++
			for _, id := range u.Retractions.DeltasIDs {
				retractedIDs[id] = struct{}{}
			}
			c.Store.AddRetractions(u.Retractions.DeltasIDs)
			ivs, internal, err := c.processRetractions(*u.Retractions)
			if err != nil {
				return counters, err
			}
			pendingIntervals = append(pendingIntervals, ivs...)
			pendingUpdates = append(pendingUpdates, internal...)
		}

		// pendingUpdates is popped from the tail like a stack, so retractions
		// (which must be handled first) are stably sorted to the back.
		sort.SliceStable(pendingUpdates, func(i, j int) bool {
			iRet := pendingUpdates[i].Kind == event.KindRetractions
			jRet := pendingUpdates[j].Kind == event.KindRetractions
			if iRet == jRet {
				return false
			}
			return jRet
		})
	}

	return counters, nil
}

// pendingReprocess is a single accumulated reprocess range. The edge shape
// that produced it carries no meaning once queued: replaying every event
// timestamped within the range is the same action regardless of which
// shape's edges changed, so reprocessUntilInternalUpdate canonicalizes
// across shapes freely (mirrors the reference's shape-agnostic
// ReprocessInterval).
type pendingReprocess struct {
	interval interval.ReprocessInterval
}
