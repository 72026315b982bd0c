package skilltree

import (
	"github.com/alem-hub/skill-progression/internal/domain/shared"
)

// NodeDefinition declares one node of a tree as authored by the taxonomy collaborator.
type NodeDefinition struct {
	ID       string
	Name     string
	Capacity int64
	Type     NodeType // NodeTypeUnspecified is inferred from position
	Children []NodeDefinition
}

// TreeDefinition declares a named, weighted tree.
type TreeDefinition struct {
	Name   string
	Weight float64
	Root   *NodeDefinition
}

// Validate performs the checks that do not require building the tree.
// Structural checks (ids, capacities, duplicates) happen in BuildTree.
func (d TreeDefinition) Validate() error {
	if d.Name == "" {
		return shared.ErrEmptyTreeName
	}
	if d.Root == nil {
		return shared.Detail(shared.ErrNilRoot, "tree %q", d.Name)
	}
	if !(d.Weight > 0) {
		return shared.Detail(shared.ErrNonPositiveWeight, "tree %q has weight %v", d.Name, d.Weight)
	}
	return nil
}

// CountNodes returns the number of nodes declared under the root.
func (d TreeDefinition) CountNodes() int {
	if d.Root == nil {
		return 0
	}
	return d.Root.count()
}

func (nd NodeDefinition) count() int {
	n := 1
	for _, c := range nd.Children {
		n += c.count()
	}
	return n
}

// resolveType infers or checks the declared type of a node.
func (nd NodeDefinition) resolveType(isRoot bool) (NodeType, error) {
	declared := nd.Type
	switch {
	case isRoot:
		if declared != NodeTypeUnspecified && declared != NodeTypeRoot {
			return 0, shared.NewDomainError("skilltree", "Build", shared.ErrInvalidInput,
				"root node "+nd.ID+" must have type ROOT")
		}
		return NodeTypeRoot, nil
	case declared == NodeTypeRoot:
		return 0, shared.NewDomainError("skilltree", "Build", shared.ErrInvalidInput,
			"only the tree root may have type ROOT: "+nd.ID)
	case declared == NodeTypeLeaf && len(nd.Children) > 0:
		return 0, shared.Detail(shared.ErrLeafWithChildren, "%s", nd.ID)
	case declared != NodeTypeUnspecified:
		return declared, nil
	case len(nd.Children) == 0:
		return NodeTypeLeaf, nil
	default:
		return NodeTypeBranch, nil
	}
}
