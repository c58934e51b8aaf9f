// Package interval implements the reprocess-interval algebra: tracking
// which timestamp ranges must be re-evaluated after the edges they
// depended on changed.
package interval

import "sort"

// ReprocessInterval is a closed range [From, To] over timestamps (both
// endpoints inclusive); To nil means open-ended (unbounded future).
type ReprocessInterval struct {
	From uint64
	To   *uint64
}

// Overlaps reports whether the interval overlaps [otherFrom, otherTo].
func (r ReprocessInterval) Overlaps(otherFrom uint64, otherTo *uint64) bool {
	if r.To != nil && otherFrom > *r.To {
		return false
	}
	if otherTo != nil && r.From > *otherTo {
		return false
	}
	return true
}

// Subtract removes [otherFrom, otherTo] from r, returning 0, 1, or 2
// resulting pieces. Ported directly from the reference's case analysis:
// self strictly before other, self strictly after other, other fully
// contains self, or a partial overlap on one side.
func (r ReprocessInterval) Subtract(otherFrom uint64, otherTo *uint64) []ReprocessInterval {
	if !r.Overlaps(otherFrom, otherTo) {
		return []ReprocessInterval{r}
	}

	var left, right *ReprocessInterval

	if r.From < otherFrom {
		to := otherFrom - 1
		left = &ReprocessInterval{From: r.From, To: &to}
	}

	if otherTo != nil {
		newFrom := *otherTo + 1
		if r.To == nil {
			right = &ReprocessInterval{From: newFrom, To: nil}
		} else if newFrom <= *r.To {
			to := *r.To
			right = &ReprocessInterval{From: newFrom, To: &to}
		}
	}

	out := make([]ReprocessInterval, 0, 2)
	if left != nil {
		out = append(out, *left)
	}
	if right != nil {
		out = append(out, *right)
	}
	return out
}

// FindNonRedundantIntervals canonicalizes a set of intervals: sort by
// From, then greedily merge any two whose next From is <= the running To
// (open beats any finite To).
func FindNonRedundantIntervals(intervals []ReprocessInterval) []ReprocessInterval {
	if len(intervals) == 0 {
		return nil
	}
	sorted := append([]ReprocessInterval(nil), intervals...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].From < sorted[j].From })

	out := []ReprocessInterval{sorted[0]}
	for _, cur := range sorted[1:] {
		last := &out[len(out)-1]
		touches := last.To == nil || cur.From <= *last.To
		if !touches {
			out = append(out, cur)
			continue
		}
		if last.To == nil {
			continue
		}
		if cur.To == nil {
			last.To = nil
			continue
		}
		if *cur.To > *last.To {
			last.To = cur.To
		}
	}
	return out
}

// FindIntervalsToReprocess computes the set of timestamp ranges whose
// events must be re-evaluated given that the edge set for one shape
// changed from existing to updated. "Added" pieces are parts of updated
// edges not covered by any existing edge; "lost" pieces are parts of
// existing edges not covered by any updated edge. The result is
// symmetric under (updated, existing) <-> (existing, updated): both
// directions compute the same set of changed ranges.
func FindIntervalsToReprocess(updated, existing []EdgeInterval) []ReprocessInterval {
	added := diffIntervals(updated, existing)
	lost := diffIntervals(existing, updated)
	all := append(added, lost...)
	return FindNonRedundantIntervals(all)
}

// EdgeInterval is the minimal shape FindIntervalsToReprocess needs from an
// edge: its temporal extent.
type EdgeInterval struct {
	From uint64
	To   *uint64
}

func diffIntervals(subject, against []EdgeInterval) []ReprocessInterval {
	var out []ReprocessInterval
	for _, u := range subject {
		pieces := []ReprocessInterval{{From: u.From, To: u.To}}
		for _, e := range against {
			var next []ReprocessInterval
			for _, p := range pieces {
				if p.Overlaps(e.From, e.To) {
					next = append(next, p.Subtract(e.From, e.To)...)
				} else {
					next = append(next, p)
				}
			}
			pieces = next
		}
		out = append(out, pieces...)
	}
	return out
}
