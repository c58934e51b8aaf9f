package query

import (
	"testing"

	"github.com/magbak/mbei/internal/domain/graph"
)

func strp(s string) *string { return &s }

func TestFindAllMatchesSimpleAt(t *testing.T) {
	barrelQ := graph.MaterialQueryNode("barrel", strp("barrel"))
	platformQ := graph.ObjectQueryNode("platform", strp("platform"))
	qEdge := graph.Edge{Src: barrelQ, Trg: platformQ, EdgeType: "At"}

	q := Query{
		Name:  "barrel_at_platform",
		Graph: graph.FromEdges([]graph.Edge{qEdge}),
	}

	barrelI := graph.MaterialInstanceNode("barrel1", strp("barrel"), nil)
	platformI := graph.ObjectInstanceNode("platform1", strp("platform"))
	cEdge := graph.Edge{Src: barrelI, Trg: platformI, EdgeType: "At", FromTimestamp: 0}

	g := graph.FromEdges([]graph.Edge{cEdge})

	matches := FindAllMatches(q, g)
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	bound := matches[0].Homomorphism[qEdge]
	if bound == nil || *bound != cEdge {
		t.Fatalf("expected query edge bound to candidate edge, got %+v", bound)
	}
}

func TestFindAllMatchesNoCandidateYieldsEmptyGuard(t *testing.T) {
	barrelQ := graph.MaterialQueryNode("barrel", strp("barrel"))
	platformQ := graph.ObjectQueryNode("platform", strp("platform"))
	qEdge := graph.Edge{Src: barrelQ, Trg: platformQ, EdgeType: "At"}

	q := Query{
		Name:  "barrel_at_platform",
		Graph: graph.FromEdges([]graph.Edge{qEdge}),
	}
	g := graph.FromEdges(nil)

	matches := FindAllMatches(q, g)
	if len(matches) != 0 {
		t.Fatalf("expected empty-only guard to drop the sole all-nil match, got %d", len(matches))
	}
}

func TestFindAllMatchesOptionalEdgeForksUnmatchedVariant(t *testing.T) {
	barrelQ := graph.MaterialQueryNode("barrel", strp("barrel"))
	platformQ := graph.ObjectQueryNode("platform", strp("platform"))
	craneQ := graph.ObjectQueryNode("crane", strp("crane"))
	atEdge := graph.Edge{Src: barrelQ, Trg: platformQ, EdgeType: "At"}
	heldByEdge := graph.Edge{Src: barrelQ, Trg: craneQ, EdgeType: "HeldBy"}

	q := Query{
		Name:          "pickdrop",
		Graph:         graph.FromEdges([]graph.Edge{atEdge, heldByEdge}),
		OptionalEdges: map[graph.Edge]struct{}{heldByEdge: {}},
	}

	barrelI := graph.MaterialInstanceNode("barrel1", strp("barrel"), nil)
	platformI := graph.ObjectInstanceNode("platform1", strp("platform"))
	cAt := graph.Edge{Src: barrelI, Trg: platformI, EdgeType: "At", FromTimestamp: 0}

	g := graph.FromEdges([]graph.Edge{cAt})

	matches := FindAllMatches(q, g)
	if len(matches) != 1 {
		t.Fatalf("expected exactly 1 surviving match (HeldBy unmatched, At matched), got %d: %+v", len(matches), matches)
	}
	if matches[0].Homomorphism[heldByEdge] != nil {
		t.Fatalf("expected HeldBy to remain unmatched")
	}
	if matches[0].Homomorphism[atEdge] == nil {
		t.Fatalf("expected At to be matched")
	}
}

func TestGroupedQueryMatchStableHashDeterministic(t *testing.T) {
	barrelQ := graph.MaterialQueryNode("barrel", strp("barrel"))
	platformQ := graph.ObjectQueryNode("platform", strp("platform"))
	qEdge := graph.Edge{Src: barrelQ, Trg: platformQ, EdgeType: "At"}
	barrelI := graph.MaterialInstanceNode("barrel1", strp("barrel"), nil)
	platformI := graph.ObjectInstanceNode("platform1", strp("platform"))
	cEdge := graph.Edge{Src: barrelI, Trg: platformI, EdgeType: "At", FromTimestamp: 0}

	g1 := GroupedQueryMatch{GroupedMatches: []QueryMatch{{Homomorphism: map[graph.Edge]*graph.Edge{qEdge: &cEdge}}}}
	g2 := GroupedQueryMatch{GroupedMatches: []QueryMatch{{Homomorphism: map[graph.Edge]*graph.Edge{qEdge: &cEdge}}}}

	if g1.StableHash() != g2.StableHash() {
		t.Fatalf("expected identical stable hashes for identical grouped matches")
	}
}
