// Package event holds the inbound update shapes a component reacts to:
// Event, Deltas, Retractions, and the tagged Update envelope the priority
// inbox and consistency loop dispatch on.
package event

import (
	"encoding/binary"
	"hash/fnv"
	"sort"

	"github.com/magbak/mbei/internal/domain/graph"
)

// Event is an observation at a node: "something happened here at this
// time, carrying this payload".
type Event struct {
	EventID   string
	Timestamp uint64
	NodeID    string
	Payload   []byte
}

// Deltas is a named, originated package of edge-affecting facts.
type Deltas struct {
	DeltasID        string
	OriginID        string
	OriginTimestamp uint64
	Deltas          []graph.Delta
}

// StableHash is the 64-bit non-cryptographic digest of the deltas
// package's canonical encoding (sorted by the deltas' total order so the
// digest is independent of arrival/construction order).
func (d Deltas) StableHash() uint64 {
	sorted := append([]graph.Delta(nil), d.Deltas...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })

	h := fnv.New64a()
	var b8 [8]byte
	binary.LittleEndian.PutUint64(b8[:], uint64(len(sorted)))
	h.Write(b8[:])
	for _, d := range sorted {
		e := d.ToEdge()
		e.FromTimestamp = d.Timestamp
		buf := e.CanonicalEncode()
		var b1 [1]byte
		b1[0] = byte(d.DeltaType)
		h.Write(buf)
		h.Write(b1[:])
	}
	return h.Sum64()
}

// Retractions revokes a set of previously produced deltas packages.
type Retractions struct {
	RetractionID string
	Timestamp    uint64
	DeltasIDs    []string
}

// UpdateKind tags the variant carried by an Update envelope.
type UpdateKind int

const (
	KindStop UpdateKind = iota
	KindEvent
	KindDeltas
	KindRetractions
)

// Update is the tagged union the inbox and consistency loop operate on.
type Update struct {
	Kind        UpdateKind
	Event       *Event
	Deltas      *Deltas
	Retractions *Retractions
}

func StopUpdate() Update                     { return Update{Kind: KindStop} }
func EventUpdate(e Event) Update             { return Update{Kind: KindEvent, Event: &e} }
func DeltasUpdate(d Deltas) Update           { return Update{Kind: KindDeltas, Deltas: &d} }
func RetractionsUpdate(r Retractions) Update { return Update{Kind: KindRetractions, Retractions: &r} }

// Timestamp returns the priority-ordering timestamp for this update.
// Stop has no timestamp and must never be compared; callers must check
// Kind first.
func (u Update) Timestamp() uint64 {
	switch u.Kind {
	case KindEvent:
		return u.Event.Timestamp
	case KindDeltas:
		return u.Deltas.OriginTimestamp
	case KindRetractions:
		return u.Retractions.Timestamp
	default:
		panic("Update.Timestamp: not defined for Stop")
	}
}

// EventID returns the event id this update is about, defined only for
// Event and Deltas (whose OriginID names the event that produced it).
func (u Update) EventID() string {
	switch u.Kind {
	case KindEvent:
		return u.Event.EventID
	case KindDeltas:
		return u.Deltas.OriginID
	default:
		panic("Update.EventID: not defined for this kind")
	}
}
