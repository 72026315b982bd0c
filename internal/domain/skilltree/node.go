// Package skilltree contains the immutable skill taxonomy: nodes, trees built from
// declarative definitions, and the registry that resolves skill ids across trees.
package skilltree

import (
	"fmt"
	"strings"

	"github.com/alem-hub/skill-progression/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// NODE TYPE
// ══════════════════════════════════════════════════════════════════════════════

// NodeType classifies a node inside its tree.
type NodeType int

const (
	// NodeTypeUnspecified lets the builder infer the type from the node's position.
	NodeTypeUnspecified NodeType = iota
	// NodeTypeRoot is the single parentless node of a tree.
	NodeTypeRoot
	// NodeTypeBranch is an inner node with children.
	NodeTypeBranch
	// NodeTypeLeaf is a terminal node.
	NodeTypeLeaf
)

// String returns the canonical name of the node type.
func (t NodeType) String() string {
	switch t {
	case NodeTypeRoot:
		return "ROOT"
	case NodeTypeBranch:
		return "BRANCH"
	case NodeTypeLeaf:
		return "LEAF"
	default:
		return "UNSPECIFIED"
	}
}

// ParseNodeType parses a case-insensitive node type name. Empty input yields NodeTypeUnspecified.
func ParseNodeType(s string) (NodeType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "":
		return NodeTypeUnspecified, nil
	case "ROOT":
		return NodeTypeRoot, nil
	case "BRANCH":
		return NodeTypeBranch, nil
	case "LEAF":
		return NodeTypeLeaf, nil
	}
	return NodeTypeUnspecified, shared.NewDomainError("skilltree", "ParseNodeType", shared.ErrInvalidFormat,
		fmt.Sprintf("unknown node type %q", s))
}

// ══════════════════════════════════════════════════════════════════════════════
// NODE
// ══════════════════════════════════════════════════════════════════════════════

// Node is an immutable skill tree node.
//
// A node owns its children. The parent pointer is a non-owning back reference
// used only for ancestor and depth queries; nothing in this package mutates a
// node after its tree has been built.
type Node struct {
	id        shared.SkillID
	name      string
	capacity  shared.XP
	nodeType  NodeType
	tree      string
	parent    *Node
	children  []*Node
	synthetic bool
}

// ID returns the node's hierarchical skill id.
func (n *Node) ID() shared.SkillID { return n.id }

// Name returns the display name.
func (n *Node) Name() string { return n.name }

// Capacity returns the XP amount representing 100% progress.
func (n *Node) Capacity() shared.XP { return n.capacity }

// Type returns the node type.
func (n *Node) Type() NodeType { return n.nodeType }

// TreeName returns the name of the tree the node belongs to.
func (n *Node) TreeName() string { return n.tree }

// Parent returns the parent node, or nil for a root.
func (n *Node) Parent() *Node { return n.parent }

// IsRoot reports whether the node has no parent.
func (n *Node) IsRoot() bool { return n.parent == nil }

// IsLeaf reports whether the node is a leaf.
func (n *Node) IsLeaf() bool { return n.nodeType == NodeTypeLeaf }

// IsSynthetic reports whether the node was synthesized for a dynamic skill id
// rather than authored in a tree definition.
func (n *Node) IsSynthetic() bool { return n.synthetic }

// Children returns a copy of the node's children in authored order.
func (n *Node) Children() []*Node {
	out := make([]*Node, len(n.children))
	copy(out, n.children)
	return out
}

// ChildCount returns the number of children.
func (n *Node) ChildCount() int { return len(n.children) }

// Depth returns the number of ancestors. The root has depth 0.
func (n *Node) Depth() int {
	d := 0
	for p := n.parent; p != nil; p = p.parent {
		d++
	}
	return d
}

// Ancestors returns the ancestors from the nearest parent up to the root.
func (n *Node) Ancestors() []*Node {
	var out []*Node
	for p := n.parent; p != nil; p = p.parent {
		out = append(out, p)
	}
	return out
}

// AncestorAtDepth returns the ancestor (or the node itself) at the given depth.
func (n *Node) AncestorAtDepth(depth int) (*Node, bool) {
	d := n.Depth()
	if depth < 0 || depth > d {
		return nil, false
	}
	cur := n
	for ; d > depth; d-- {
		cur = cur.parent
	}
	return cur, true
}

// Path returns the ids from the root down to this node.
func (n *Node) Path() []shared.SkillID {
	anc := n.Ancestors()
	out := make([]shared.SkillID, 0, len(anc)+1)
	for i := len(anc) - 1; i >= 0; i-- {
		out = append(out, anc[i].id)
	}
	return append(out, n.id)
}

// IsAncestorOf reports whether n is a strict ancestor of other.
func (n *Node) IsAncestorOf(other *Node) bool {
	if other == nil {
		return false
	}
	for p := other.parent; p != nil; p = p.parent {
		if p == n {
			return true
		}
	}
	return false
}

// String returns a short description for logs.
func (n *Node) String() string {
	return fmt.Sprintf("%s(%s, cap=%d)", n.id, n.nodeType, n.capacity)
}

// newDynamicLeaf synthesizes a transient leaf under parent. The parent's child
// set is not touched, so the synthesized node is invisible to tree traversal.
func newDynamicLeaf(id shared.SkillID, parent *Node, capacity shared.XP) *Node {
	return &Node{
		id:        id,
		name:      id.String(),
		capacity:  capacity,
		nodeType:  NodeTypeLeaf,
		tree:      parent.tree,
		parent:    parent,
		synthetic: true,
	}
}
