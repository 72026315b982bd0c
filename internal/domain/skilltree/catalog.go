package skilltree

import (
	"context"
	"sort"
)

// Catalog is the full set of tree definitions read from one taxonomy source.
type Catalog struct {
	Trees []TreeDefinition

	// Digest identifies the catalog content. Equal digests mean equal catalogs.
	Digest string
}

// Source supplies catalogs. Implementations live in the infrastructure layer.
type Source interface {
	Load(ctx context.Context) (Catalog, error)
}

// Build builds every tree of the catalog. The first invalid tree aborts the build.
func (c Catalog) Build() ([]*Tree, error) {
	trees := make([]*Tree, 0, len(c.Trees))
	for _, def := range c.Trees {
		t, err := BuildTree(def)
		if err != nil {
			return nil, err
		}
		trees = append(trees, t)
	}
	return trees, nil
}

// Names returns the tree names, sorted.
func (c Catalog) Names() []string {
	names := make([]string, 0, len(c.Trees))
	for _, def := range c.Trees {
		names = append(names, def.Name)
	}
	sort.Strings(names)
	return names
}

// CountNodes returns the number of authored nodes across all trees.
func (c Catalog) CountNodes() int {
	var n int
	for _, def := range c.Trees {
		n += def.CountNodes()
	}
	return n
}
