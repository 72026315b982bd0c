package progression

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alem-hub/skill-progression/internal/domain/ledger"
	"github.com/alem-hub/skill-progression/internal/domain/shared"
	"github.com/alem-hub/skill-progression/internal/domain/skilltree"
)

func leaf(id string, capacity int64) skilltree.NodeDefinition {
	return skilltree.NodeDefinition{ID: id, Capacity: capacity}
}

func branch(id string, capacity int64, children ...skilltree.NodeDefinition) skilltree.NodeDefinition {
	return skilltree.NodeDefinition{ID: id, Capacity: capacity, Children: children}
}

// mainTree: main > farming > farming.crops > {wheat, corn}; main > mining > mining.ore;
// main > a > a.b > a.b.c > {a.b.c.d, a.b.c.e}.
func mainTree() *skilltree.Tree {
	root := branch("main", 10000,
		branch("farming", 1000,
			branch("farming.crops", 1000,
				leaf("farming.crops.wheat", 1000),
				leaf("farming.crops.corn", 1000),
			),
		),
		branch("mining", 1000, leaf("mining.ore", 1000)),
		branch("a", 1000,
			branch("a.b", 1000,
				branch("a.b.c", 1000,
					leaf("a.b.c.d", 1000),
					leaf("a.b.c.e", 1000),
				),
			),
		),
	)
	return skilltree.MustBuildTree(skilltree.TreeDefinition{Name: "main", Weight: 1.0, Root: &root})
}

// seasonalTree shares the skill id "x" with a tree that defines it too.
func seasonalTree() *skilltree.Tree {
	root := branch("seasonal", 1000, leaf("x", 500), leaf("festival", 500))
	return skilltree.MustBuildTree(skilltree.TreeDefinition{Name: "seasonal", Weight: 0.5, Root: &root})
}

func mainWithX() *skilltree.Tree {
	root := branch("main", 10000, leaf("x", 500), branch("mining", 1000, leaf("mining.ore", 1000)))
	return skilltree.MustBuildTree(skilltree.TreeDefinition{Name: "main", Weight: 1.0, Root: &root})
}

func newRegistry(t *testing.T, trees ...*skilltree.Tree) *skilltree.Registry {
	t.Helper()
	r := skilltree.NewRegistry()
	for _, tree := range trees {
		require.NoError(t, r.Register(tree))
	}
	return r
}

func snapshot(entries map[shared.SkillID]shared.XP) ledger.Snapshot {
	return ledger.NewSnapshot("p1", entries)
}

func mustNode(t *testing.T, r skilltree.Resolver, id shared.SkillID) *skilltree.Node {
	t.Helper()
	n, ok := r.Resolve(id)
	require.True(t, ok, "node %s", id)
	return n
}
