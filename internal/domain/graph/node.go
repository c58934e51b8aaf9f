// Package graph holds the bitemporal property-graph data model: nodes,
// deltas, derived edges, and the working graph built per event.
package graph

// NodeClass classifies a node's role in the graph.
type NodeClass int

const (
	ClassObject NodeClass = iota
	ClassEvent
	ClassMaterial
	ClassProperty
)

func (c NodeClass) String() string {
	switch c {
	case ClassObject:
		return "object"
	case ClassEvent:
		return "event"
	case ClassMaterial:
		return "material"
	case ClassProperty:
		return "property"
	default:
		return "unknown"
	}
}

// DeltaType distinguishes an edge beginning from an edge ending.
type DeltaType int

const (
	Addition DeltaType = iota
	Removal
)

func (t DeltaType) String() string {
	if t == Addition {
		return "addition"
	}
	return "removal"
}

// Node is one endpoint of an edge. QueryNodeName identifies it within a
// query pattern; InstanceNodeName identifies a concrete graph node.
// A pattern position carries only the query-side name and a concrete
// instance only the instance name; the *MatchedQueryNode constructors
// populate both.
type Node struct {
	QueryNodeName    *string
	InstanceNodeName *string
	NodeType         *string
	NodeClass        NodeClass
	ValueBytes       []byte
}

func strPtr(s string) *string { return &s }

// ObjectQueryNode builds an Object-class pattern node.
func ObjectQueryNode(queryNodeName string, nodeType *string) Node {
	return Node{QueryNodeName: strPtr(queryNodeName), NodeType: nodeType, NodeClass: ClassObject}
}

// ObjectInstanceNode builds an Object-class concrete node.
func ObjectInstanceNode(instanceNodeName string, nodeType *string) Node {
	return Node{InstanceNodeName: strPtr(instanceNodeName), NodeType: nodeType, NodeClass: ClassObject}
}

// ObjectMatchedQueryNode builds an Object-class node carrying both a
// query-side name and its matched instance name, used when materializing
// a query into a CreateMatchedQuery result.
func ObjectMatchedQueryNode(queryNodeName, instanceNodeName string, nodeType *string) Node {
	return Node{QueryNodeName: strPtr(queryNodeName), InstanceNodeName: strPtr(instanceNodeName), NodeType: nodeType, NodeClass: ClassObject}
}

// MaterialQueryNode builds a Material-class pattern node.
func MaterialQueryNode(queryNodeName string, nodeType *string) Node {
	return Node{QueryNodeName: strPtr(queryNodeName), NodeType: nodeType, NodeClass: ClassMaterial}
}

// MaterialInstanceNode builds a Material-class concrete node.
func MaterialInstanceNode(instanceNodeName string, nodeType *string, value []byte) Node {
	return Node{InstanceNodeName: strPtr(instanceNodeName), NodeType: nodeType, NodeClass: ClassMaterial, ValueBytes: value}
}

// MaterialMatchedQueryNode builds a Material-class node carrying both names.
func MaterialMatchedQueryNode(queryNodeName, instanceNodeName string, nodeType *string, value []byte) Node {
	return Node{QueryNodeName: strPtr(queryNodeName), InstanceNodeName: strPtr(instanceNodeName), NodeType: nodeType, NodeClass: ClassMaterial, ValueBytes: value}
}

// PropertyQueryNode builds a Property-class pattern node.
func PropertyQueryNode(queryNodeName string, nodeType *string) Node {
	return Node{QueryNodeName: strPtr(queryNodeName), NodeType: nodeType, NodeClass: ClassProperty}
}

// PropertyInstanceNode builds a Property-class concrete node; Property
// nodes always carry their value payload.
func PropertyInstanceNode(instanceNodeName string, nodeType *string, value []byte) Node {
	return Node{InstanceNodeName: strPtr(instanceNodeName), NodeType: nodeType, NodeClass: ClassProperty, ValueBytes: value}
}

// EventQueryNode builds an Event-class pattern node.
func EventQueryNode(queryNodeName string, nodeType *string) Node {
	return Node{QueryNodeName: strPtr(queryNodeName), NodeType: nodeType, NodeClass: ClassEvent}
}

// EventInstanceNode builds an Event-class concrete node.
func EventInstanceNode(instanceNodeName string, nodeType *string) Node {
	return Node{InstanceNodeName: strPtr(instanceNodeName), NodeType: nodeType, NodeClass: ClassEvent}
}

// EventMatchedQueryNode builds an Event-class node carrying both names.
func EventMatchedQueryNode(queryNodeName, instanceNodeName string, nodeType *string) Node {
	return Node{QueryNodeName: strPtr(queryNodeName), InstanceNodeName: strPtr(instanceNodeName), NodeType: nodeType, NodeClass: ClassEvent}
}

// ForgetQueryNodeName clears the query-side name, leaving only the
// instance identity (used when an output edge's shape is compared against
// a peer's pattern, which never knows the originating query's node names).
func (n Node) ForgetQueryNodeName() Node {
	n.QueryNodeName = nil
	return n
}

// ForgetParticularMaterial clears instance identity and value for a
// Material node, used when forgetting the "particulars" of an edge for
// routing lookups keyed only on shape.
func (n Node) ForgetParticularMaterial() Node {
	if n.NodeClass == ClassMaterial {
		n.InstanceNodeName = nil
		n.ValueBytes = nil
	}
	return n
}

// ForgetParticularProperty clears instance identity and value for a
// Property node.
func (n Node) ForgetParticularProperty() Node {
	if n.NodeClass == ClassProperty {
		n.InstanceNodeName = nil
		n.ValueBytes = nil
	}
	return n
}

// ForgetParticularValue clears only the value payload, keeping identity.
func (n Node) ForgetParticularValue() Node {
	n.ValueBytes = nil
	return n
}

func strEq(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Equal reports whether two nodes are identical in every field relevant
// to matching (value bytes are intentionally excluded: two otherwise
// identical nodes with different payloads are still the same node for
// graph-shape purposes).
func (n Node) Equal(o Node) bool {
	return strEq(n.QueryNodeName, o.QueryNodeName) &&
		strEq(n.InstanceNodeName, o.InstanceNodeName) &&
		strEq(n.NodeType, o.NodeType) &&
		n.NodeClass == o.NodeClass
}
