// Package model describes the source document types a relation graph can
// reference: per type, its named relations and the fields copied into views.
package model

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"sigs.k8s.io/yaml"
)

// Kind is a relation kind.
type Kind string

const (
	// BelongsTo is a single foreign-key reference held by the parent.
	BelongsTo Kind = "belongsTo"
	// HasMany is a collection of documents whose foreign key points at the parent.
	HasMany Kind = "hasMany"
	// ReferencesMany is a list of ids held by the parent.
	ReferencesMany Kind = "referencesMany"
)

func (k Kind) Valid() bool {
	switch k {
	case BelongsTo, HasMany, ReferencesMany:
		return true
	}
	return false
}

// ErrInvalidRegistry is returned when a registry document is malformed.
var ErrInvalidRegistry = errors.New("model: invalid registry")

type Relation struct {
	Model      string `json:"model"`
	Kind       Kind   `json:"type"`
	ForeignKey string `json:"foreignKey,omitempty"`
}

type Model struct {
	Relations map[string]*Relation `json:"relations,omitempty"`
	Fields    []string             `json:"fields,omitempty"`
}

// Registry maps a type name to its model.
type Registry map[string]*Model

func (r Registry) Lookup(typ string) (*Model, bool) {
	m, ok := r[typ]
	if !ok || m == nil {
		return nil, false
	}
	return m, true
}

// Types returns the registered type names in lexical order.
func (r Registry) Types() []string {
	out := make([]string, 0, len(r))
	for k := range r {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Relation returns the relation with the given name on m.
func (m *Model) Relation(name string) (*Relation, bool) {
	if m == nil {
		return nil, false
	}
	rel, ok := m.Relations[name]
	if !ok || rel == nil {
		return nil, false
	}
	return rel, true
}

// Parse decodes a YAML or JSON registry document.
//
//	Order:
//	  fields: [number, createdAt]
//	  relations:
//	    items: {model: Item, type: hasMany, foreignKey: orderId}
func Parse(data []byte) (Registry, error) {
	var reg Registry
	if err := yaml.UnmarshalStrict(data, &reg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRegistry, err)
	}
	for _, typ := range reg.Types() {
		m := reg[typ]
		if m == nil {
			reg[typ] = &Model{}
			continue
		}
		for name, rel := range m.Relations {
			if rel == nil || rel.Model == "" {
				return nil, fmt.Errorf("%w: %s.%s has no target model", ErrInvalidRegistry, typ, name)
			}
		}
	}
	return reg, nil
}

// LoadFile reads a registry from path.
func LoadFile(path string) (Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model registry %q: %w", path, err)
	}
	reg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return reg, nil
}
