package skilltree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/skill-progression/internal/domain/shared"
)

func farmingDefinition() TreeDefinition {
	return TreeDefinition{
		Name:   "main",
		Weight: 1.0,
		Root: &NodeDefinition{
			ID:       "main",
			Capacity: 10000,
			Children: []NodeDefinition{
				{
					ID: "farming", Name: "Farming", Capacity: 5000,
					Children: []NodeDefinition{
						{
							ID: "farming.crops", Capacity: 2000,
							Children: []NodeDefinition{
								{ID: "farming.crops.wheat", Capacity: 1000},
								{ID: "farming.crops.corn", Capacity: 1000},
							},
						},
					},
				},
				{
					ID: "mining", Capacity: 5000,
					Children: []NodeDefinition{
						{ID: "mining.ore", Capacity: 1000, Type: NodeTypeLeaf},
					},
				},
			},
		},
	}
}

func TestBuildTree_IndexAndQueries(t *testing.T) {
	tree, err := BuildTree(farmingDefinition())
	require.NoError(t, err)

	assert.Equal(t, "main", tree.Name())
	assert.Equal(t, 1.0, tree.Weight())
	assert.Equal(t, 7, tree.Len())
	assert.Equal(t, []shared.SkillID{
		"farming", "farming.crops", "farming.crops.corn", "farming.crops.wheat",
		"main", "mining", "mining.ore",
	}, tree.AllIDs())

	wheat, ok := tree.Node("farming.crops.wheat")
	require.True(t, ok)
	assert.Equal(t, 3, wheat.Depth())
	assert.Equal(t, NodeTypeLeaf, wheat.Type())
	assert.Equal(t, shared.XP(1000), wheat.Capacity())
	assert.Equal(t, "main", wheat.TreeName())
	assert.Equal(t, "farming.crops.wheat", wheat.Name())
	assert.Equal(t, []shared.SkillID{"main", "farming", "farming.crops", "farming.crops.wheat"}, wheat.Path())

	farming, _ := tree.Node("farming")
	assert.Equal(t, "Farming", farming.Name())
	assert.Equal(t, NodeTypeBranch, farming.Type())
	assert.True(t, farming.IsAncestorOf(wheat))
	assert.False(t, wheat.IsAncestorOf(farming))

	anc, ok := wheat.AncestorAtDepth(1)
	require.True(t, ok)
	assert.Equal(t, farming, anc)

	assert.Equal(t, NodeTypeRoot, tree.Root().Type())
	assert.Equal(t, 0, tree.Root().Depth())
	assert.True(t, tree.Root().IsRoot())

	_, ok = tree.Node("farming.tools")
	assert.False(t, ok)

	var leaves []shared.SkillID
	for _, l := range tree.Leaves() {
		leaves = append(leaves, l.ID())
	}
	assert.Equal(t, []shared.SkillID{"farming.crops.wheat", "farming.crops.corn", "mining.ore"}, leaves)

	roots := tree.Roots()
	require.Len(t, roots, 2)
	assert.Equal(t, shared.SkillID("farming"), roots[0].ID())
	assert.Equal(t, shared.SkillID("mining"), roots[1].ID())
}

func TestBuildTree_ChildrenAreCopies(t *testing.T) {
	tree := MustBuildTree(farmingDefinition())

	children := tree.Root().Children()
	children[0] = nil

	assert.NotNil(t, tree.Root().Children()[0])
}

func TestBuildTree_Walk_StopsEarly(t *testing.T) {
	tree := MustBuildTree(farmingDefinition())

	var visited int
	tree.Walk(func(n *Node) bool {
		visited++
		return n.ID() != "farming.crops"
	})
	assert.Equal(t, 3, visited)
}

func TestBuildTree_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*TreeDefinition)
		want   error
	}{
		{"nil root", func(d *TreeDefinition) { d.Root = nil }, shared.ErrNilRoot},
		{"zero weight", func(d *TreeDefinition) { d.Weight = 0 }, shared.ErrNonPositiveWeight},
		{"negative weight", func(d *TreeDefinition) { d.Weight = -1 }, shared.ErrNonPositiveWeight},
		{"empty name", func(d *TreeDefinition) { d.Name = "" }, shared.ErrEmptyTreeName},
		{"duplicate id", func(d *TreeDefinition) {
			d.Root.Children = append(d.Root.Children, NodeDefinition{ID: "mining", Capacity: 10})
		}, shared.ErrDuplicateSkillID},
		{"root id reused", func(d *TreeDefinition) {
			d.Root.Children = append(d.Root.Children, NodeDefinition{ID: "main", Capacity: 10})
		}, shared.ErrDuplicateSkillID},
		{"zero capacity", func(d *TreeDefinition) { d.Root.Children[1].Capacity = 0 }, shared.ErrNonPositiveCapacity},
		{"malformed id", func(d *TreeDefinition) { d.Root.Children[1].ID = "Mining" }, shared.ErrInvalidSkillID},
		{"id not extending parent", func(d *TreeDefinition) {
			d.Root.Children[1].Children[0].ID = "farming.ore"
		}, shared.ErrInvalidSkillID},
		{"multi-segment top level", func(d *TreeDefinition) { d.Root.Children[1].ID = "mining.deep" }, shared.ErrInvalidSkillID},
		{"leaf with children", func(d *TreeDefinition) { d.Root.Children[1].Type = NodeTypeLeaf }, shared.ErrLeafWithChildren},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := farmingDefinition()
			tt.mutate(&def)

			tree, err := BuildTree(def)
			assert.Nil(t, tree)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, shared.IsValidation(err))
		})
	}
}

func TestParseNodeType(t *testing.T) {
	for in, want := range map[string]NodeType{
		"":       NodeTypeUnspecified,
		"root":   NodeTypeRoot,
		"Branch": NodeTypeBranch,
		" LEAF ": NodeTypeLeaf,
	} {
		got, err := ParseNodeType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseNodeType("trunk")
	assert.ErrorIs(t, err, shared.ErrInvalidFormat)
}
