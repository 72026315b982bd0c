package skilltree

import (
	"sort"

	"github.com/alem-hub/skill-progression/internal/domain/shared"
)

// Tree is an immutable named, weighted skill tree with a flattened id index.
type Tree struct {
	name   string
	weight float64
	root   *Node
	index  map[shared.SkillID]*Node
	order  []*Node // depth-first, authored order
}

// BuildTree constructs an immutable tree from its definition.
//
// Ids must be hierarchical: children of the root are single segments and every
// deeper node extends its parent's id by exactly one segment, so a node's depth
// equals its segment count. Construction fails on a nil root, a non-positive
// weight, a non-positive capacity, a malformed id or an id collision.
func BuildTree(def TreeDefinition) (*Tree, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	t := &Tree{
		name:   def.Name,
		weight: def.Weight,
		index:  make(map[shared.SkillID]*Node, def.CountNodes()),
	}

	root, err := t.build(*def.Root, nil)
	if err != nil {
		return nil, err
	}
	t.root = root

	// One depth-first pass populates the index.
	var indexErr error
	t.walk(root, func(n *Node) bool {
		if _, exists := t.index[n.id]; exists {
			indexErr = shared.Detail(shared.ErrDuplicateSkillID, "%s in tree %q", n.id, t.name)
			return false
		}
		t.index[n.id] = n
		t.order = append(t.order, n)
		return true
	})
	if indexErr != nil {
		return nil, indexErr
	}

	return t, nil
}

// MustBuildTree is like BuildTree but panics on error. Intended for tests and fixtures.
func MustBuildTree(def TreeDefinition) *Tree {
	t, err := BuildTree(def)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Tree) build(def NodeDefinition, parent *Node) (*Node, error) {
	id, err := shared.NewSkillID(def.ID)
	if err != nil {
		return nil, err
	}
	if err := checkHierarchy(id, parent); err != nil {
		return nil, err
	}
	if def.Capacity <= 0 {
		return nil, shared.Detail(shared.ErrNonPositiveCapacity, "%s has capacity %d", id, def.Capacity)
	}
	nodeType, err := def.resolveType(parent == nil)
	if err != nil {
		return nil, err
	}

	name := def.Name
	if name == "" {
		name = id.String()
	}

	n := &Node{
		id:       id,
		name:     name,
		capacity: shared.XP(def.Capacity),
		nodeType: nodeType,
		tree:     t.name,
		parent:   parent,
	}
	if len(def.Children) > 0 {
		n.children = make([]*Node, 0, len(def.Children))
	}
	for _, cd := range def.Children {
		child, err := t.build(cd, n)
		if err != nil {
			return nil, err
		}
		n.children = append(n.children, child)
	}
	return n, nil
}

func checkHierarchy(id shared.SkillID, parent *Node) error {
	switch {
	case parent == nil:
		return nil
	case parent.parent == nil:
		if id.SegmentCount() != 1 {
			return shared.Detail(shared.ErrInvalidSkillID, "top-level node %s must be a single segment", id)
		}
	case id.Parent() != parent.id:
		return shared.Detail(shared.ErrInvalidSkillID, "%s does not extend its parent %s", id, parent.id)
	}
	return nil
}

// Name returns the tree name.
func (t *Tree) Name() string { return t.name }

// Weight returns the authored relative weight.
func (t *Tree) Weight() float64 { return t.weight }

// Root returns the root node.
func (t *Tree) Root() *Node { return t.root }

// Len returns the number of nodes in the tree.
func (t *Tree) Len() int { return len(t.order) }

// Node looks up a node by id in O(1).
func (t *Tree) Node(id shared.SkillID) (*Node, bool) {
	n, ok := t.index[id]
	return n, ok
}

// Contains reports whether the tree defines id.
func (t *Tree) Contains(id shared.SkillID) bool {
	_, ok := t.index[id]
	return ok
}

// AllIDs returns every id of the tree, sorted.
func (t *Tree) AllIDs() []shared.SkillID {
	ids := make([]shared.SkillID, 0, len(t.index))
	for id := range t.index {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Leaves returns all leaf nodes in depth-first order.
func (t *Tree) Leaves() []*Node {
	var out []*Node
	for _, n := range t.order {
		if n.IsLeaf() {
			out = append(out, n)
		}
	}
	return out
}

// Roots returns the top-level branches, the nodes directly under the root.
// Each one names a default specialization group.
func (t *Tree) Roots() []*Node {
	return t.root.Children()
}

// Walk visits every node depth-first in authored order until fn returns false.
func (t *Tree) Walk(fn func(*Node) bool) {
	t.walk(t.root, fn)
}

func (t *Tree) walk(n *Node, fn func(*Node) bool) bool {
	if !fn(n) {
		return false
	}
	for _, c := range n.children {
		if !t.walk(c, fn) {
			return false
		}
	}
	return true
}
