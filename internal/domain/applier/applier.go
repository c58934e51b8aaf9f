// Package applier provides an in-process alternative to the caller
// package's RPC client: an Applier implements the same per-match call a
// component makes against an external application, but runs in the same
// process. A small registry of example appliers, ported from the scenario
// that originally motivated this system, lets mbeictl component run
// end to end without standing up a separate application backend.
package applier

import (
	"sort"

	"github.com/magbak/mbei/internal/domain/event"
	"github.com/magbak/mbei/internal/domain/query"
)

// Applier is the narrow per-match call a Component makes: given a
// specialized query, one grouped match of it, and the event that
// triggered the match, decide what deltas (if any) the match should
// yield. Its method is named and shaped identically to
// component.Caller so any Applier satisfies that interface directly.
type Applier interface {
	CallFunction(q query.Query, match query.GroupedQueryMatch, e event.Event) (*event.Deltas, error)
}

// Logger is the narrow logging surface the example appliers depend on.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
}

// Registry resolves an Applier by the name a query's Application field
// names, so a single mbeictl component process can serve several queries
// each backed by a different in-process applier.
type Registry struct {
	appliers map[string]Applier
}

// NewRegistry builds the registry of example appliers: stamp, crane,
// detector, and conveyor, one per scenario station.
func NewRegistry(log Logger) *Registry {
	return &Registry{
		appliers: map[string]Applier{
			"stamp":    &StampApplier{Log: log},
			"crane":    &CraneApplier{Log: log},
			"detector": &DetectorApplier{Log: log},
			"conveyor": &ConveyorApplier{Log: log},
		},
	}
}

// Get resolves name to an Applier, or (nil, false) if no example applier
// is registered under that name.
func (r *Registry) Get(name string) (Applier, bool) {
	a, ok := r.appliers[name]
	return a, ok
}

// Names lists the registered applier names, sorted for stable display.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.appliers))
	for n := range r.appliers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func emptyDeltas() (*event.Deltas, error) {
	return nil, nil
}
