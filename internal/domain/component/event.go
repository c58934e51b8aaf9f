package component

import (
	"sort"

	"github.com/google/uuid"

	"github.com/magbak/mbei/internal/domain/event"
	"github.com/magbak/mbei/internal/domain/graph"
	"github.com/magbak/mbei/internal/domain/query"
)

// processEvent implements SPEC_FULL.md §4.4: match the query against the
// working graph at the event's timestamp, call the application for every
// grouped match, diff against the previously recorded view for this event
// id, route newly produced deltas, retract deltas whose producing match no
// longer exists, and fold equivalent output into a single binding.
func (c *Component) processEvent(e event.Event) ([]event.Update, error) {
	c.Store.AddNewEvent(e)

	liveEdges := c.Store.GetEdgesAtTimestamp(e.Timestamp)
	// Matching sees each live edge as open at this timestamp, so clear its
	// end on the returned copies before building the working graph.
	for i := range liveEdges {
		liveEdges[i].ToTimestamp = nil
	}
	g := graph.FromEdges(liveEdges)
	matches := query.FindAllGroupedMatches(c.Query, g)

	prevView := c.Store.GetEventOutputHashByMatchHash(e.EventID)

	matchHashes := make([]uint64, len(matches))
	matchHashSet := make(map[uint64]struct{}, len(matches))
	for i, m := range matches {
		h := m.StableHash()
		matchHashes[i] = h
		matchHashSet[h] = struct{}{}
	}

	// candidatesToRetract holds exactly the match hashes that existed in
	// prevView but have no surviving match this round — only these may
	// donate their binding to a new match via equivalence rebind. A match
	// hash still present in matchHashSet is live (whether or not its own
	// processNewMatch call has run yet) and must never be stolen from.
	// Mirrors the reference's matches_to_possibly_retract.
	candidatesToRetract := make(map[uint64]*uint64, len(prevView))
	for oldHash, oldOutput := range prevView {
		if _, present := matchHashSet[oldHash]; present {
			continue
		}
		candidatesToRetract[oldHash] = oldOutput
	}

	newView := make(map[uint64]*uint64, len(matches))
	var internal []event.Update

	for i, m := range matches {
		matchHash := matchHashes[i]
		outputHash, updates, err := c.processNewMatch(e, m, matchHash, prevView, candidatesToRetract)
		if err != nil {
			return nil, err
		}
		newView[matchHash] = outputHash
		internal = append(internal, updates...)
	}

	for oldHash, oldOutput := range prevView {
		if _, stillPresent := newView[oldHash]; stillPresent {
			continue
		}
		if oldOutput == nil {
			continue
		}
		updates, err := c.retractMatchBinding(e.EventID, oldHash, e.Timestamp)
		if err != nil {
			return nil, err
		}
		internal = append(internal, updates...)
	}

	c.Store.UpdateMatches(e.EventID, newView)
	return internal, nil
}

// processNewMatch calls the application for one grouped match and routes
// or reconciles its output. It returns the output hash to record for
// matchHash (nil if the call produced no deltas) plus any self-directed
// internal updates the routing produced.
func (c *Component) processNewMatch(e event.Event, m query.GroupedQueryMatch, matchHash uint64, prevView, candidatesToRetract map[uint64]*uint64) (*uint64, []event.Update, error) {
	specialized := query.CreateMatchedQuery(c.Query, m)

	d, err := c.Caller.CallFunction(specialized, m, e)
	if err != nil {
		return nil, nil, err
	}
	if d == nil {
		return nil, nil, nil
	}

	outputHash := d.StableHash()

	if oldOutput, existed := prevView[matchHash]; existed && oldOutput != nil && *oldOutput == outputHash {
		// Same match, same output: already routed, nothing to do.
		return &outputHash, nil, nil
	}

	var donors []uint64
	for oldHash, oldOutput := range candidatesToRetract {
		if oldHash == matchHash || oldOutput == nil || *oldOutput != outputHash {
			continue
		}
		donors = append(donors, oldHash)
	}
	sort.Slice(donors, func(i, j int) bool { return donors[i] < donors[j] })
	if len(donors) > 1 {
		c.Log.Warn("match-equivalence: more than one vanished match qualifies, using the smallest hash", "event", e.EventID, "candidates", len(donors))
	}
	for _, oldHash := range donors {
		// Match-equivalence: a match that genuinely disappeared this
		// round produced byte-identical output to a new match. Rebind
		// the existing downstream delivery instead of resending. When
		// more than one vanished match ties here, the smallest hash is
		// tried first (SPEC_FULL.md §9 open-question decision). The donor
		// is removed from candidatesToRetract so it can't be handed out
		// twice within this event.
		if bindings, ok := c.Store.ReplaceOldMatchWithEquivalentNewMatch(e.EventID, oldHash, matchHash); ok {
			c.Log.Debug("match-equivalence rebind", "event", e.EventID, "old_hash", oldHash, "new_hash", matchHash)
			_ = bindings
			delete(candidatesToRetract, oldHash)
			return &outputHash, nil, nil
		}
	}

	if d.DeltasID == "" {
		d.DeltasID = uuid.NewString()
	}
	d.OriginID = e.EventID
	d.OriginTimestamp = e.Timestamp

	internalUpdate, bindings, err := c.Router.RouteDeltasUpdate(*d)
	if err != nil {
		return nil, nil, err
	}
	c.Store.AddNewMatchUpdatesBinding(e.EventID, matchHash, bindings)

	var updates []event.Update
	if internalUpdate != nil {
		updates = append(updates, *internalUpdate)
	}
	return &outputHash, updates, nil
}

// retractMatchBinding unwinds the downstream delivery previously recorded
// under (eventID, matchHash), used when a match that existed on a prior
// pass of this event no longer exists.
func (c *Component) retractMatchBinding(eventID string, matchHash uint64, timestamp uint64) ([]event.Update, error) {
	bindings, ok := c.Store.PopDeltasIDsForEventIDAndMatchHash(eventID, matchHash)
	if !ok || len(bindings) == 0 {
		return nil, nil
	}
	internal, err := c.Router.RouteRetractions(bindings, timestamp)
	if err != nil {
		return nil, err
	}
	return internal, nil
}
