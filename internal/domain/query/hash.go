package query

import (
	"hash/fnv"
	"sort"

	"github.com/magbak/mbei/internal/domain/graph"
)

// StableHash is the 64-bit digest of a grouped match's canonical encoding:
// every member match's homomorphism, sorted into a deterministic order so
// that matches built from map iteration (unordered in Go) still hash
// identically across calls. Two grouped matches that are set-equal up to
// permutation of their member matches and of each match's key/value pairs
// hash identically.
func (g GroupedQueryMatch) StableHash() uint64 {
	type pair struct {
		key   graph.Edge
		bound *graph.Edge
	}

	matchDigests := make([][]byte, 0, len(g.GroupedMatches))
	for _, m := range g.GroupedMatches {
		pairs := make([]pair, 0, len(m.Homomorphism))
		for k, v := range m.Homomorphism {
			pairs = append(pairs, pair{key: k, bound: v})
		}
		sort.Slice(pairs, func(i, j int) bool { return edgeLess(pairs[i].key, pairs[j].key) })

		var buf []byte
		for _, p := range pairs {
			buf = append(buf, p.key.CanonicalEncode()...)
			if p.bound == nil {
				buf = append(buf, 0)
			} else {
				buf = append(buf, 1)
				buf = append(buf, p.bound.CanonicalEncode()...)
			}
		}
		matchDigests = append(matchDigests, buf)
	}
	sort.Slice(matchDigests, func(i, j int) bool {
		a, b := matchDigests[i], matchDigests[j]
		for k := 0; k < len(a) && k < len(b); k++ {
			if a[k] != b[k] {
				return a[k] < b[k]
			}
		}
		return len(a) < len(b)
	})

	h := fnv.New64a()
	for _, d := range matchDigests {
		h.Write(d)
		h.Write([]byte{0xff})
	}
	return h.Sum64()
}
