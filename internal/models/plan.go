package models

import (
	"fmt"
	"sort"
	"strings"
)

// NodeType tags a plan node with the capability that executes it.
type NodeType string

// Closed set of node types
const (
	NodeResearch        NodeType = "research"
	NodeDocumentSearch  NodeType = "document-search"
	NodeDiagramAnalysis NodeType = "diagram-analysis"
	NodeDirectQA        NodeType = "direct-qa"
)

// NodeTypes lists every supported node type in a stable order.
var NodeTypes = []NodeType{NodeResearch, NodeDocumentSearch, NodeDiagramAnalysis, NodeDirectQA}

// Valid reports whether t belongs to the closed set.
func (t NodeType) Valid() bool {
	for _, known := range NodeTypes {
		if t == known {
			return true
		}
	}
	return false
}

// RequiresQuery reports whether nodes of this type must carry a query.
// Every type in the closed set does.
func (t NodeType) RequiresQuery() bool {
	return t.Valid()
}

// ParseNodeType normalizes common spellings ("document_search", "QA") to a NodeType.
func ParseNodeType(s string) (NodeType, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	normalized = strings.ReplaceAll(normalized, "_", "-")
	normalized = strings.ReplaceAll(normalized, " ", "-")
	switch normalized {
	case "research", "web-search":
		return NodeResearch, nil
	case "document-search", "documents", "doc-search":
		return NodeDocumentSearch, nil
	case "diagram-analysis", "diagram":
		return NodeDiagramAnalysis, nil
	case "direct-qa", "qa", "direct-answer":
		return NodeDirectQA, nil
	}
	return NodeType(normalized), fmt.Errorf("unknown node type %q", s)
}

// NodeID is the arena index of a node inside its plan.
type NodeID int

// PlanNode is one sub-task. Dependencies reference order values, not nodes.
type PlanNode struct {
	ID           NodeID   `json:"id" yaml:"-"`
	Type         NodeType `json:"type" yaml:"type"`
	Order        int      `json:"order" yaml:"order"`
	Purpose      string   `json:"purpose" yaml:"purpose"`
	Dependencies []int    `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Query        string   `json:"query" yaml:"query"`
}

// Label returns a short human-readable identifier, e.g. "#2 research@1".
func (n PlanNode) Label() string {
	return fmt.Sprintf("#%d %s@%d", n.ID, n.Type, n.Order)
}

// Plan is the DAG produced by Planning: a flat node arena plus the task text.
type Plan struct {
	Task  string     `json:"task" yaml:"task"`
	Nodes []PlanNode `json:"nodes" yaml:"nodes"`
}

// Group is the set of nodes sharing one order value.
type Group struct {
	Order int
	Nodes []PlanNode
}

// Name returns the display name of the group.
func (g Group) Name() string {
	return fmt.Sprintf("Group %d", g.Order)
}

// Normalize assigns each node its arena index as ID. Planners return raw nodes
// without identities.
func (p *Plan) Normalize() {
	for i := range p.Nodes {
		p.Nodes[i].ID = NodeID(i)
	}
}

// Clone returns a deep copy of the plan.
func (p *Plan) Clone() *Plan {
	if p == nil {
		return nil
	}
	c := &Plan{Task: p.Task, Nodes: make([]PlanNode, len(p.Nodes))}
	for i, n := range p.Nodes {
		n.Dependencies = append([]int(nil), n.Dependencies...)
		c.Nodes[i] = n
	}
	return c
}

// Node returns the node with the given ID.
func (p *Plan) Node(id NodeID) (PlanNode, bool) {
	if int(id) < 0 || int(id) >= len(p.Nodes) {
		return PlanNode{}, false
	}
	return p.Nodes[id], true
}

// Groups partitions the nodes by order, sorted ascending. Node order within a
// group follows arena order.
func (p *Plan) Groups() []Group {
	byOrder := make(map[int][]PlanNode)
	for _, n := range p.Nodes {
		byOrder[n.Order] = append(byOrder[n.Order], n)
	}
	orders := make([]int, 0, len(byOrder))
	for o := range byOrder {
		orders = append(orders, o)
	}
	sort.Ints(orders)

	groups := make([]Group, 0, len(orders))
	for _, o := range orders {
		groups = append(groups, Group{Order: o, Nodes: byOrder[o]})
	}
	return groups
}

// CountByType returns how many nodes of each type the plan contains.
func (p *Plan) CountByType() map[NodeType]int {
	counts := make(map[NodeType]int)
	for _, n := range p.Nodes {
		counts[n.Type]++
	}
	return counts
}
