// Package taxonomy reads skill tree catalogs authored as YAML files.
//
// Every document is checked against an embedded JSON schema before it is
// decoded, so authoring mistakes surface with a path into the document rather
// than as a failed tree build.
package taxonomy

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/alem-hub/skill-progression/internal/domain/skilltree"
)

// DefaultTreeWeight applies to trees whose document omits a weight.
const DefaultTreeWeight = 1.0

var (
	// ErrSchemaViolation is returned when a document does not match the taxonomy schema.
	ErrSchemaViolation = errors.New("taxonomy: schema violation")

	// ErrNoFiles is returned when the configured patterns match nothing.
	ErrNoFiles = errors.New("taxonomy: no files matched")
)

//go:embed schema/taxonomy.schema.json
var schemaSource string

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString("taxonomy.schema.json", schemaSource)
	})
	return schema, schemaErr
}

// ══════════════════════════════════════════════════════════════════════════════
// DOCUMENT
// ══════════════════════════════════════════════════════════════════════════════

type document struct {
	Version int       `yaml:"version"`
	Trees   []treeDoc `yaml:"trees"`
}

type treeDoc struct {
	Name   string  `yaml:"name"`
	Weight float64 `yaml:"weight"`
	Root   nodeDoc `yaml:"root"`
}

type nodeDoc struct {
	ID       string    `yaml:"id"`
	Name     string    `yaml:"name"`
	Capacity int64     `yaml:"capacity"`
	Type     string    `yaml:"type"`
	Children []nodeDoc `yaml:"children"`
}

// Parse validates and decodes one YAML document. name is used in error messages.
func Parse(name string, data []byte) ([]skilltree.TreeDefinition, error) {
	if err := Validate(name, data); err != nil {
		return nil, err
	}

	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	defs := make([]skilltree.TreeDefinition, 0, len(doc.Trees))
	for _, td := range doc.Trees {
		root, err := td.Root.definition()
		if err != nil {
			return nil, fmt.Errorf("%s: tree %q: %w", name, td.Name, err)
		}
		weight := td.Weight
		if weight == 0 {
			weight = DefaultTreeWeight
		}
		defs = append(defs, skilltree.TreeDefinition{Name: td.Name, Weight: weight, Root: &root})
	}
	return defs, nil
}

// Validate checks one YAML document against the taxonomy schema.
func Validate(name string, data []byte) error {
	s, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("taxonomy schema: %w", err)
	}

	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	// The validator works on JSON values; round-trip to normalize yaml scalars.
	buf, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	var v any
	if err := json.Unmarshal(buf, &v); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	if err := s.Validate(v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSchemaViolation, name, err)
	}
	return nil
}

func (n nodeDoc) definition() (skilltree.NodeDefinition, error) {
	t, err := skilltree.ParseNodeType(n.Type)
	if err != nil {
		return skilltree.NodeDefinition{}, err
	}
	def := skilltree.NodeDefinition{
		ID:       n.ID,
		Name:     n.Name,
		Capacity: n.Capacity,
		Type:     t,
	}
	if len(n.Children) > 0 {
		def.Children = make([]skilltree.NodeDefinition, 0, len(n.Children))
	}
	for _, c := range n.Children {
		cd, err := c.definition()
		if err != nil {
			return skilltree.NodeDefinition{}, err
		}
		def.Children = append(def.Children, cd)
	}
	return def, nil
}
