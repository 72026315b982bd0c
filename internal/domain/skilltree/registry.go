package skilltree

import (
	"sort"
	"sync"

	"github.com/alem-hub/skill-progression/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONSTANTS
// ══════════════════════════════════════════════════════════════════════════════

const (
	// DefaultDynamicCapacity is the nominal capacity of synthesized dynamic nodes.
	DefaultDynamicCapacity shared.XP = 1000

	// MinDynamicSegments is the minimum number of segments of a dynamic skill id.
	MinDynamicSegments = 4

	// MinDynamicAncestorDepth is the minimum depth of the resolvable ancestor
	// a dynamic node is attached to.
	MinDynamicAncestorDepth = 2
)

// Resolver resolves a skill id to a node.
type Resolver interface {
	Resolve(id shared.SkillID) (*Node, bool)
}

// ══════════════════════════════════════════════════════════════════════════════
// REGISTRY
// ══════════════════════════════════════════════════════════════════════════════

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithDynamicCapacity sets the capacity of synthesized dynamic nodes.
func WithDynamicCapacity(capacity shared.XP) RegistryOption {
	return func(r *Registry) {
		if capacity > 0 {
			r.dynamicCapacity = capacity
		}
	}
}

// WithDynamicIDs toggles synthesis of dynamic skill ids.
func WithDynamicIDs(enabled bool) RegistryOption {
	return func(r *Registry) {
		r.dynamicEnabled = enabled
	}
}

// Registry owns the set of registered trees and a reverse index from skill id
// to the names of the trees defining it. Reads vastly outnumber writes, so it
// is guarded by a RWMutex and writes rebuild the derived indexes wholesale.
type Registry struct {
	mu      sync.RWMutex
	trees   map[string]*Tree
	reverse map[shared.SkillID][]string // tree names, sorted
	names   []string                    // sorted tree names

	dynamicCapacity shared.XP
	dynamicEnabled  bool
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		trees:           make(map[string]*Tree),
		reverse:         make(map[shared.SkillID][]string),
		dynamicCapacity: DefaultDynamicCapacity,
		dynamicEnabled:  true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register inserts or replaces a tree by name and merges its ids into the reverse index.
func (r *Registry) Register(tree *Tree) error {
	if tree == nil {
		return shared.ErrNilTree
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.trees[tree.name]; ok {
		r.dropFromReverse(old)
	}
	r.trees[tree.name] = tree
	r.addToReverse(tree)
	r.names = sortedNames(r.trees)
	return nil
}

// Unregister removes a tree and prunes reverse-index entries that become empty.
// It reports whether a tree was removed.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	tree, ok := r.trees[name]
	if !ok {
		return false
	}
	delete(r.trees, name)
	r.dropFromReverse(tree)
	r.names = sortedNames(r.trees)
	return true
}

// Reload atomically replaces the whole tree set. Readers observe either the
// old set or the new one, never a mix. Duplicate tree names are rejected and
// leave the registry untouched.
func (r *Registry) Reload(trees ...*Tree) error {
	next := make(map[string]*Tree, len(trees))
	for _, t := range trees {
		if t == nil {
			return shared.ErrNilTree
		}
		if _, dup := next[t.name]; dup {
			return shared.NewDomainError("skilltree", "Reload", shared.ErrAlreadyExists,
				"duplicate tree name "+t.name)
		}
		next[t.name] = t
	}

	reverse := make(map[shared.SkillID][]string)
	names := sortedNames(next)
	for _, name := range names {
		for id := range next[name].index {
			reverse[id] = append(reverse[id], name)
		}
	}

	r.mu.Lock()
	r.trees = next
	r.reverse = reverse
	r.names = names
	r.mu.Unlock()
	return nil
}

func (r *Registry) addToReverse(tree *Tree) {
	for id := range tree.index {
		names := append(r.reverse[id], tree.name)
		sort.Strings(names)
		r.reverse[id] = names
	}
}

func (r *Registry) dropFromReverse(tree *Tree) {
	for id := range tree.index {
		names := r.reverse[id]
		kept := names[:0]
		for _, n := range names {
			if n != tree.name {
				kept = append(kept, n)
			}
		}
		if len(kept) == 0 {
			delete(r.reverse, id)
			continue
		}
		r.reverse[id] = kept
	}
}

func sortedNames(trees map[string]*Tree) []string {
	names := make([]string, 0, len(trees))
	for n := range trees {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ══════════════════════════════════════════════════════════════════════════════
// READS
// ══════════════════════════════════════════════════════════════════════════════

// Tree returns a registered tree by name.
func (r *Registry) Tree(name string) (*Tree, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.trees[name]
	return t, ok
}

// Trees returns all registered trees sorted by name.
func (r *Registry) Trees() []*Tree {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Tree, 0, len(r.names))
	for _, n := range r.names {
		out = append(out, r.trees[n])
	}
	return out
}

// TreeNames returns all registered tree names, sorted.
func (r *Registry) TreeNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.names...)
}

// Len returns the number of registered trees.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.trees)
}

// TreesContaining returns the sorted names of trees that define id statically.
func (r *Registry) TreesContaining(id shared.SkillID) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.reverse[id]...)
}

// TreesOf returns the trees an id contributes to: the trees defining it, or
// for a dynamic id, the tree of the ancestor it is synthesized under.
func (r *Registry) TreesOf(id shared.SkillID) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if names := r.reverse[id]; len(names) > 0 {
		return append([]string(nil), names...)
	}
	if n, ok := r.synthesize(id); ok {
		return []string{n.tree}
	}
	return nil
}

// Resolve returns the node for id. Statically registered nodes win; when
// several trees define id, the tree whose name sorts first is used. Otherwise,
// if id follows the dynamic-id convention, a transient leaf is synthesized.
// Unknown ids yield (nil, false), never an error.
func (r *Registry) Resolve(id shared.SkillID) (*Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if names := r.reverse[id]; len(names) > 0 {
		return r.trees[names[0]].index[id], true
	}
	return r.synthesize(id)
}

// ResolveAll returns every statically registered node sharing id, ordered by
// tree name. A dynamic id resolves to its single synthesized node.
func (r *Registry) ResolveAll(id shared.SkillID) []*Node {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := r.reverse[id]
	if len(names) == 0 {
		if n, ok := r.synthesize(id); ok {
			return []*Node{n}
		}
		return nil
	}
	out := make([]*Node, 0, len(names))
	for _, name := range names {
		out = append(out, r.trees[name].index[id])
	}
	return out
}

// IsDynamic reports whether id is not authored but would be synthesized.
func (r *Registry) IsDynamic(id shared.SkillID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.reverse[id]) > 0 {
		return false
	}
	_, ok := r.synthesize(id)
	return ok
}

// synthesize builds a transient leaf for a dynamic id. Nothing is cached so the
// result always follows the current tree set. Caller holds the read lock.
func (r *Registry) synthesize(id shared.SkillID) (*Node, bool) {
	if !r.dynamicEnabled || id.SegmentCount() < MinDynamicSegments || !id.IsValid() {
		return nil, false
	}
	// The nearest resolvable ancestor wins.
	for n := id.SegmentCount() - 1; n > 0; n-- {
		prefix := id.Prefix(n)
		names := r.reverse[prefix]
		if len(names) == 0 {
			continue
		}
		anchor := r.trees[names[0]].index[prefix]
		if anchor.Depth() < MinDynamicAncestorDepth {
			return nil, false
		}
		return newDynamicLeaf(id, anchor, r.dynamicCapacity), true
	}
	return nil, false
}

// Index returns a point-in-time flattened id to node index merged across all
// trees. For ids defined in several trees the first tree by name wins.
func (r *Registry) Index() *NodeIndex {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx := &NodeIndex{nodes: make(map[shared.SkillID]*Node, len(r.reverse))}
	for id, names := range r.reverse {
		idx.nodes[id] = r.trees[names[0]].index[id]
	}
	return idx
}

// ══════════════════════════════════════════════════════════════════════════════
// NODE INDEX
// ══════════════════════════════════════════════════════════════════════════════

// NodeIndex is an immutable id to node lookup table.
type NodeIndex struct {
	nodes map[shared.SkillID]*Node
}

// NewNodeIndex flattens the given trees into one index. Earlier trees win on collisions.
func NewNodeIndex(trees ...*Tree) *NodeIndex {
	idx := &NodeIndex{nodes: make(map[shared.SkillID]*Node)}
	for _, t := range trees {
		for id, n := range t.index {
			if _, exists := idx.nodes[id]; !exists {
				idx.nodes[id] = n
			}
		}
	}
	return idx
}

// Resolve implements Resolver.
func (i *NodeIndex) Resolve(id shared.SkillID) (*Node, bool) {
	n, ok := i.nodes[id]
	return n, ok
}

// Len returns the number of indexed nodes.
func (i *NodeIndex) Len() int { return len(i.nodes) }

// IDs returns every indexed id, sorted.
func (i *NodeIndex) IDs() []shared.SkillID {
	ids := make([]shared.SkillID, 0, len(i.nodes))
	for id := range i.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	return ids
}
