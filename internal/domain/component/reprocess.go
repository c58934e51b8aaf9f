package component

import (
	"sort"

	"github.com/magbak/mbei/internal/domain/event"
	"github.com/magbak/mbei/internal/domain/interval"
)

// reprocessUntilInternalUpdate implements SPEC_FULL.md §4.5: drain the FIFO
// reprocess-interval queue, replaying every event timestamped within each
// interval through processEvent in chronological order, until one produces
// an internal update (a self-directed routing) or the queue is exhausted.
// On halting mid-interval, the interval is split at the halting event's
// timestamp and the part from that timestamp on is reinserted at the front
// of the queue so it is picked up again once the produced updates have
// themselves reached consistency.
func (c *Component) reprocessUntilInternalUpdate(pending []pendingReprocess) ([]event.Update, []pendingReprocess, error) {
	pending = canonicalizeReprocessIntervals(pending)

	for len(pending) > 0 {
		iv := pending[0]
		rest := pending[1:]

		ids := c.Store.GetEventIDsInInterval(iv.interval.From, iv.interval.To)
		events := make([]event.Event, 0, len(ids))
		for _, id := range ids {
			if e, ok := c.Store.GetEventByID(id); ok {
				events = append(events, e)
			}
		}
		sort.Slice(events, func(i, j int) bool { return events[i].Timestamp < events[j].Timestamp })

		for _, e := range events {
			internal, err := c.processEvent(e)
			if err != nil {
				return nil, nil, err
			}
			if len(internal) == 0 {
				continue
			}

			split := pendingReprocess{interval: interval.ReprocessInterval{From: e.Timestamp, To: iv.interval.To}}
			rest = append([]pendingReprocess{split}, rest...)
			return internal, rest, nil
		}

		pending = rest
	}
	return nil, nil, nil
}

// canonicalizeReprocessIntervals sorts and merges the accumulated reprocess
// ranges before the sweep, same as the reference's
// find_non_redundant_intervals(reprocess_intervals) call over the whole
// flat queue. Ranges queued by different update-processing rounds (or
// different edge shapes) commonly overlap or duplicate each other; without
// this step the sweep below can replay the same event more than once.
func canonicalizeReprocessIntervals(pending []pendingReprocess) []pendingReprocess {
	if len(pending) == 0 {
		return pending
	}
	raw := make([]interval.ReprocessInterval, len(pending))
	for i, p := range pending {
		raw[i] = p.interval
	}
	merged := interval.FindNonRedundantIntervals(raw)
	out := make([]pendingReprocess, len(merged))
	for i, iv := range merged {
		out[i] = pendingReprocess{interval: iv}
	}
	return out
}
