package graph

import (
	"encoding/binary"
	"hash/fnv"
	"sort"
)

// Edge is a derived interval of time over which (src, trg, edge_type) was
// live. ToTimestamp is nil when the edge is still open.
type Edge struct {
	Src           Node
	Trg           Node
	EdgeType      string
	FromTimestamp uint64
	ToTimestamp   *uint64
}

// IsOpen reports whether the edge has no recorded end.
func (e Edge) IsOpen() bool {
	return e.ToTimestamp == nil
}

// WithoutTimestamp strips the temporal extent, leaving only the shape —
// used as a map key when indexing "all deltas for this (src,trg,type)".
func (e Edge) WithoutTimestamp() Edge {
	return Edge{Src: e.Src, Trg: e.Trg, EdgeType: e.EdgeType}
}

// ForgetParticulars clears material/property identity and value on both
// endpoints, leaving only class/type shape — used by the router to match
// an output edge against a peer's pattern graph regardless of which
// concrete instances produced it.
func (e Edge) ForgetParticulars() Edge {
	e.Src = e.Src.ForgetParticularMaterial().ForgetParticularProperty()
	e.Trg = e.Trg.ForgetParticularMaterial().ForgetParticularProperty()
	return e
}

// ForgetQueryNodeName clears the query-side node names on both endpoints.
func (e Edge) ForgetQueryNodeName() Edge {
	e.Src = e.Src.ForgetQueryNodeName()
	e.Trg = e.Trg.ForgetQueryNodeName()
	return e
}

// Duration returns the edge's extent for bucket-sizing purposes; an open
// edge has no finite duration and callers must special-case IsOpen first.
func (e Edge) Duration() uint64 {
	if e.ToTimestamp == nil {
		return 0
	}
	return *e.ToTimestamp - e.FromTimestamp
}

// canonicalEncode writes a fixed-order, length-prefixed, little-endian
// encoding of the edge. This is the contract referenced by SPEC_FULL.md
// §4.9: any two callers in this module using the same encode+hash produce
// identical digests for identical logical edges.
func (e Edge) canonicalEncode() []byte {
	buf := make([]byte, 0, 64)
	buf = encodeNode(buf, e.Src)
	buf = encodeNode(buf, e.Trg)
	buf = encodeString(buf, e.EdgeType)
	buf = encodeU64(buf, e.FromTimestamp)
	if e.ToTimestamp == nil {
		buf = append(buf, 0)
	} else {
		buf = append(buf, 1)
		buf = encodeU64(buf, *e.ToTimestamp)
	}
	return buf
}

// StableHash is the 64-bit non-cryptographic digest of the edge's
// canonical encoding.
func (e Edge) StableHash() uint64 {
	h := fnv.New64a()
	h.Write(e.canonicalEncode())
	return h.Sum64()
}

// CanonicalEncode exposes the edge's canonical byte encoding to other
// packages in this module that fold it into a larger digest (e.g. a
// Deltas package's stable hash over all its constituent deltas).
func (e Edge) CanonicalEncode() []byte {
	return e.canonicalEncode()
}

func encodeU64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

func encodeString(buf []byte, s string) []byte {
	buf = encodeU64(buf, uint64(len(s)))
	return append(buf, s...)
}

func encodeOptionalString(buf []byte, s *string) []byte {
	if s == nil {
		return append(buf, 0)
	}
	buf = append(buf, 1)
	return encodeString(buf, *s)
}

func encodeOptionalBytes(buf []byte, b []byte) []byte {
	if b == nil {
		return append(buf, 0)
	}
	buf = append(buf, 1)
	buf = encodeU64(buf, uint64(len(b)))
	return append(buf, b...)
}

func encodeNode(buf []byte, n Node) []byte {
	buf = encodeOptionalString(buf, n.QueryNodeName)
	buf = encodeOptionalString(buf, n.InstanceNodeName)
	buf = encodeOptionalString(buf, n.NodeType)
	buf = append(buf, byte(n.NodeClass))
	buf = encodeOptionalBytes(buf, n.ValueBytes)
	return buf
}

// FromDeltas derives a single edge from a group of deltas belonging to the
// same (src, trg, edge_type) shape: from = min(Addition timestamps),
// to = min(Removal timestamps) if any removal exists. Returns (Edge{},
// false) if the group contains no Addition at all (a bare removal group
// derives no edge).
func FromDeltas(deltas []Delta) (Edge, bool) {
	if len(deltas) == 0 {
		return Edge{}, false
	}
	var (
		haveFrom bool
		from     uint64
		haveTo   bool
		to       uint64
	)
	for _, d := range deltas {
		switch d.DeltaType {
		case Addition:
			if !haveFrom || d.Timestamp < from {
				from, haveFrom = d.Timestamp, true
			}
		case Removal:
			if !haveTo || d.Timestamp < to {
				to, haveTo = d.Timestamp, true
			}
		}
	}
	if !haveFrom {
		return Edge{}, false
	}
	e := Edge{Src: deltas[0].Src, Trg: deltas[0].Trg, EdgeType: deltas[0].EdgeType, FromTimestamp: from}
	if haveTo {
		e.ToTimestamp = &to
	}
	return e, true
}

// EdgesFromDeltas derives the set of edges implied by a stream of deltas
// for a single (src, trg, edge_type) shape, grouping them per the
// algorithm in SPEC_FULL.md §3: sort additions and removals by timestamp
// independently; every removal seeds its own group; each addition joins
// the earliest group (scanned in removal-timestamp order) whose removal
// timestamp is greater than or equal to the addition's timestamp; all
// additions left over after all groups are considered form one final open
// group.
func EdgesFromDeltas(deltas []Delta) []Edge {
	if len(deltas) == 0 {
		return nil
	}
	groups := groupDistinctDeltaIntervals(deltas)
	out := make([]Edge, 0, len(groups))
	for _, g := range groups {
		if e, ok := FromDeltas(g); ok {
			out = append(out, e)
		}
	}
	return out
}

func groupDistinctDeltaIntervals(deltas []Delta) [][]Delta {
	var additions, removals []Delta
	for _, d := range deltas {
		switch d.DeltaType {
		case Addition:
			additions = append(additions, d)
		case Removal:
			removals = append(removals, d)
		}
	}
	sort.Slice(additions, func(i, j int) bool { return additions[i].Timestamp < additions[j].Timestamp })
	sort.Slice(removals, func(i, j int) bool { return removals[i].Timestamp < removals[j].Timestamp })

	groups := make([][]Delta, len(removals))
	for i, r := range removals {
		groups[i] = []Delta{r}
	}
	var leftover []Delta
	for _, a := range additions {
		assigned := false
		for i, r := range removals {
			if a.Timestamp <= r.Timestamp {
				groups[i] = append(groups[i], a)
				assigned = true
				break
			}
		}
		if !assigned {
			leftover = append(leftover, a)
		}
	}
	if len(leftover) > 0 {
		groups = append(groups, leftover)
	}
	return groups
}
