package cli

import (
	"fmt"
	"os"

	yaml "go.yaml.in/yaml/v3"

	"github.com/magbak/mbei/internal/domain/graph"
	"github.com/magbak/mbei/internal/domain/query"
)

// nodeSpec is the YAML-facing shape of a pattern node: a query node name,
// an optional node type, a node class, and an optional flag that is parsed
// but not applied when the query is built. It never carries an
// instance name or value — query files only ever describe patterns.
type nodeSpec struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type,omitempty"`
	Class    string `yaml:"class"`
	Optional bool   `yaml:"optional,omitempty"`
}

type edgeSpec struct {
	Src      string `yaml:"src"`
	Trg      string `yaml:"trg"`
	EdgeType string `yaml:"edge_type"`
	Optional bool   `yaml:"optional,omitempty"`
	Output   bool   `yaml:"output,omitempty"`
}

// querySpec is one entry in a queries YAML file: a named application
// query built from a node list and an edge list over those nodes.
type querySpec struct {
	Name        string     `yaml:"name"`
	Application string     `yaml:"application"`
	Nodes       []nodeSpec `yaml:"nodes"`
	Edges       []edgeSpec `yaml:"edges"`
	Group       []string   `yaml:"group,omitempty"`
	Input       []string   `yaml:"input,omitempty"`
}

// ParseQueries reads a YAML file of querySpecs and builds domain Queries.
func ParseQueries(path string) ([]query.Query, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cli: reading queries file %s: %w", path, err)
	}

	var specs []querySpec
	if err := yaml.Unmarshal(raw, &specs); err != nil {
		return nil, fmt.Errorf("cli: parsing queries file %s: %w", path, err)
	}

	queries := make([]query.Query, 0, len(specs))
	for _, s := range specs {
		q, err := buildQuery(s)
		if err != nil {
			return nil, fmt.Errorf("cli: building query %q: %w", s.Name, err)
		}
		queries = append(queries, q)
	}
	return queries, nil
}

func buildQuery(s querySpec) (query.Query, error) {
	nodesByName := make(map[string]graph.Node, len(s.Nodes))
	for _, n := range s.Nodes {
		node, err := nodeSpecToNode(n)
		if err != nil {
			return query.Query{}, err
		}
		nodesByName[n.Name] = node
	}

	edges := make([]graph.Edge, 0, len(s.Edges))
	optional := map[graph.Edge]struct{}{}
	output := map[graph.Edge]struct{}{}
	for _, es := range s.Edges {
		src, ok := nodesByName[es.Src]
		if !ok {
			return query.Query{}, fmt.Errorf("unknown src node %q", es.Src)
		}
		trg, ok := nodesByName[es.Trg]
		if !ok {
			return query.Query{}, fmt.Errorf("unknown trg node %q", es.Trg)
		}
		e := graph.Edge{Src: src, Trg: trg, EdgeType: es.EdgeType}
		edges = append(edges, e)
		if es.Optional {
			optional[e] = struct{}{}
		}
		if es.Output {
			output[e] = struct{}{}
		}
	}

	group := map[graph.Node]struct{}{}
	for _, name := range s.Group {
		n, ok := nodesByName[name]
		if !ok {
			return query.Query{}, fmt.Errorf("unknown group node %q", name)
		}
		group[n] = struct{}{}
	}

	inputNodes := map[graph.Node]struct{}{}
	for _, name := range s.Input {
		n, ok := nodesByName[name]
		if !ok {
			return query.Query{}, fmt.Errorf("unknown input node %q", name)
		}
		inputNodes[n] = struct{}{}
	}

	return query.Query{
		Name:          s.Name,
		Application:   s.Application,
		Graph:         graph.FromEdges(edges),
		OptionalEdges: optional,
		Group:         group,
		OutputEdges:   output,
		InputNodes:    inputNodes,
	}, nil
}

func nodeSpecToNode(n nodeSpec) (graph.Node, error) {
	var nodeType *string
	if n.Type != "" {
		t := n.Type
		nodeType = &t
	}
	name := n.Name

	switch n.Class {
	case "object":
		return graph.ObjectQueryNode(name, nodeType), nil
	case "event":
		return graph.EventQueryNode(name, nodeType), nil
	case "material":
		return graph.MaterialQueryNode(name, nodeType), nil
	case "property":
		return graph.PropertyQueryNode(name, nodeType), nil
	default:
		return graph.Node{}, fmt.Errorf("unknown node class %q for node %q", n.Class, name)
	}
}

// ParseURLMap reads a YAML file mapping query/topic name to a host:port
// address — the router's url-map-path.
func ParseURLMap(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cli: reading url map file %s: %w", path, err)
	}
	m := map[string]string{}
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("cli: parsing url map file %s: %w", path, err)
	}
	return m, nil
}

// ParseAssignments reads a YAML file mapping a host number to the list of
// query names that host runs — the assignments-path.
func ParseAssignments(path string) (map[int][]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cli: reading assignments file %s: %w", path, err)
	}
	m := map[int][]string{}
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("cli: parsing assignments file %s: %w", path, err)
	}
	return m, nil
}
