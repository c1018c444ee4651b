// Package graph compiles a parsed relation graph against the model registry
// into an immutable traversal plan and the reverse-key registry derived from it.
package graph

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"go.uber.org/zap"

	"github.com/hanpama/mongoview/internal/language"
	"github.com/hanpama/mongoview/internal/logger"
	"github.com/hanpama/mongoview/internal/model"
)

var (
	// ErrUnresolvableRelation is returned when a method names no relation of its
	// parent's model, neither by name nor by a $relation override.
	ErrUnresolvableRelation = errors.New("graph: unresolvable relation")
	// ErrUnknownModel is returned for unregistered types when strict models are on.
	ErrUnknownModel = errors.New("graph: unknown model")
	// ErrUnknownType is returned by Registry.FilterFor for types not in the plan.
	ErrUnknownType = errors.New("graph: no reverse key for type")
)

// Node is one position of the compiled tree.
type Node struct {
	Name     string
	Path     string
	Type     string
	IsRoot   bool
	Relation *model.Relation
	Args     map[string]any
	Fields   []string
	Children []*Node
	Filter   *FilterConfig
}

// Child returns the child compiled for method name.
func (n *Node) Child(name string) *Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Plan is a compiled relation graph.
type Plan struct {
	Type string
	Root *Node
	Keys *Registry
}

type Option func(*options)

type options struct {
	strictModels   bool
	skipUnresolved bool
	log            logger.Logger
}

// WithStrictModels makes an unregistered node type a compile error instead of
// a leaf.
func WithStrictModels() Option { return func(o *options) { o.strictModels = true } }

// WithSkipUnresolved drops methods that resolve to no relation, with a
// warning, instead of failing the compile.
func WithSkipUnresolved() Option { return func(o *options) { o.skipUnresolved = true } }

func WithLogger(l logger.Logger) Option { return func(o *options) { o.log = l } }

type compiler struct {
	reg  model.Registry
	opts options
	keys *Registry
}

// Compile annotates g with relation metadata and filter configs. Any fatal
// error aborts the whole compile; no partial plan is returned.
func Compile(g *language.Graph, reg model.Registry, opts ...Option) (*Plan, error) {
	o := options{log: logger.NewNoopLogger()}
	for _, f := range opts {
		f(&o)
	}
	if g == nil || g.Root == nil {
		return nil, errors.New("graph: empty relation graph")
	}
	typ := g.Root.Type
	if typ == "" {
		typ = g.Type
	}
	if typ == "" {
		return nil, errors.New("graph: relation graph declares no root type")
	}

	c := &compiler{reg: reg, opts: o, keys: &Registry{}}
	root := &Node{Type: typ, IsRoot: true, Args: cloneArgs(g.Root.Args)}
	c.keys.add(ReverseKey{Type: typ})
	if err := c.compile(g.Root, root); err != nil {
		return nil, err
	}
	return &Plan{Type: typ, Root: root, Keys: c.keys}, nil
}

func (c *compiler) compile(src *language.GraphNode, n *Node) error {
	m, ok := c.reg.Lookup(n.Type)
	if !ok {
		if c.opts.strictModels {
			return fmt.Errorf("%w: %s at %s", ErrUnknownModel, n.Type, displayPath(n))
		}
		if len(src.Methods) > 0 {
			c.opts.log.Debug("unregistered model compiled as a leaf",
				zap.String("type", n.Type), zap.String("path", displayPath(n)))
		}
		return nil
	}
	n.Fields = slices.Clone(m.Fields)

	for _, method := range src.Methods {
		relName := method.Name
		if override, ok := method.Args[language.ArgRelation].(string); ok && override != "" {
			relName = override
		}
		rel, ok := m.Relation(relName)
		if !ok {
			if c.opts.skipUnresolved {
				c.opts.log.Warn("skipping unresolvable relation",
					zap.String("type", n.Type), zap.String("relation", relName))
				continue
			}
			return fmt.Errorf("%w: %s.%s at %s", ErrUnresolvableRelation, n.Type, relName, displayPath(n))
		}
		relCopy := *rel
		child := &Node{
			Name:     method.Name,
			Path:     joinPath(n.Path, method.Name),
			Type:     rel.Model,
			Relation: &relCopy,
			Args:     cloneArgs(method.Args),
			Filter:   newChildFilter(n.Filter, method.Name, rel.Kind),
		}
		n.Children = append(n.Children, child)
		c.keys.add(ReverseKey{Type: child.Type, Path: child.Path, Filter: child.Filter})
		if err := c.compile(method, child); err != nil {
			return err
		}
	}
	return nil
}

func cloneArgs(args map[string]any) map[string]any {
	if args == nil {
		return map[string]any{}
	}
	return maps.Clone(args)
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

func displayPath(n *Node) string {
	if n.IsRoot {
		return "<root>"
	}
	return n.Path
}
