package language

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

// ParseGraph parses a relation graph written in GraphQL selection syntax.
//
//	query Order {
//	  items(status: "active") @limit(n: 5) @orderBy(field: "createdAt") {
//	    product
//	  }
//	  buyer @relation(name: "customer")
//	}
//
// The operation name is the root model type. Every selected field is a relation
// method; field arguments become equality filters and the directives relation,
// limit, orderBy and lastWeekBy become the $-prefixed directive arguments.
//
// A graph without relations may omit the selection set (query Order), leave it
// empty (query Order {}) or select only __typename.
func ParseGraph(name, source string) (*Graph, error) {
	doc, err := parser.ParseQuery(&ast.Source{Name: name, Input: rootOnly(source)})
	if err != nil {
		return nil, err
	}
	if len(doc.Fragments) > 0 {
		return nil, fmt.Errorf("%s: fragments are not supported in relation graphs", name)
	}
	if len(doc.Operations) != 1 {
		return nil, fmt.Errorf("%s: expected exactly one operation, got %d", name, len(doc.Operations))
	}
	op := doc.Operations[0]
	if op.Name == "" {
		return nil, fmt.Errorf("%s: operation name must declare the root type", name)
	}
	if len(op.VariableDefinitions) > 0 {
		return nil, fmt.Errorf("%s: variables are not supported in relation graphs", name)
	}

	root := &GraphNode{Args: map[string]any{}, Position: op.Position}
	if err := parseDirectives(root, op.Directives); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	methods, err := parseSelectionSet(op.SelectionSet)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	root.Methods = methods
	return &Graph{Name: name, Type: op.Name, Root: root}, nil
}

var emptySelection = regexp.MustCompile(`\{\s*\}\s*$`)

// rootOnly rewrites a missing or empty top-level selection set into a
// __typename selection, which the grammar accepts and parseSelectionSet drops.
func rootOnly(source string) string {
	trimmed := strings.TrimRight(source, " \t\r\n")
	if loc := emptySelection.FindStringIndex(trimmed); loc != nil {
		return trimmed[:loc[0]] + "{ " + typenameField + " }"
	}
	if !strings.Contains(trimmed, "{") {
		return trimmed + " { " + typenameField + " }"
	}
	return source
}

const typenameField = "__typename"

func parseSelectionSet(set SelectionSet) ([]*GraphNode, error) {
	var out []*GraphNode
	seen := map[string]struct{}{}
	for _, sel := range set {
		field, ok := sel.(*Field)
		if !ok {
			return nil, fmt.Errorf("%s: only fields may be selected", positionString(selectionPosition(sel)))
		}
		if field.Name == typenameField && field.Alias == "" {
			continue
		}
		node, err := parseField(field)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[node.Name]; dup {
			return nil, fmt.Errorf("%s: duplicate method %q", positionString(field.Position), node.Name)
		}
		seen[node.Name] = struct{}{}
		out = append(out, node)
	}
	return out, nil
}

func parseField(field *Field) (*GraphNode, error) {
	name := field.Alias
	if name == "" {
		name = field.Name
	}
	node := &GraphNode{Name: name, Args: map[string]any{}, Position: field.Position}
	for _, arg := range field.Arguments {
		v, err := valueOf(arg.Value)
		if err != nil {
			return nil, fmt.Errorf("%s: argument %q: %w", positionString(arg.Position), arg.Name, err)
		}
		node.Args[arg.Name] = v
	}
	if err := parseDirectives(node, field.Directives); err != nil {
		return nil, err
	}
	if _, ok := node.Args[ArgRelation]; !ok && field.Name != name {
		node.Args[ArgRelation] = field.Name
	}
	children, err := parseSelectionSet(field.SelectionSet)
	if err != nil {
		return nil, err
	}
	node.Methods = children
	return node, nil
}

var directiveArgs = map[string]struct {
	key   string
	param string
}{
	"relation":   {ArgRelation, "name"},
	"limit":      {ArgLimit, "n"},
	"orderBy":    {ArgOrderBy, "field"},
	"lastWeekBy": {ArgLastWeekBy, "field"},
}

func parseDirectives(node *GraphNode, list ast.DirectiveList) error {
	for _, d := range list {
		def, ok := directiveArgs[d.Name]
		if !ok {
			return fmt.Errorf("%s: unknown directive @%s", positionString(d.Position), d.Name)
		}
		arg := d.Arguments.ForName(def.param)
		if arg == nil {
			return fmt.Errorf("%s: @%s requires argument %q", positionString(d.Position), d.Name, def.param)
		}
		v, err := valueOf(arg.Value)
		if err != nil {
			return fmt.Errorf("%s: @%s: %w", positionString(d.Position), d.Name, err)
		}
		if def.key == ArgLimit {
			n, ok := v.(int64)
			if !ok || n < 0 {
				return fmt.Errorf("%s: @limit expects a non-negative integer", positionString(d.Position))
			}
			v = int(n)
		} else if _, ok := v.(string); !ok {
			return fmt.Errorf("%s: @%s expects a string", positionString(d.Position), d.Name)
		}
		node.Args[def.key] = v
	}
	return nil
}

func valueOf(v *Value) (any, error) {
	if v == nil {
		return nil, nil
	}
	if v.Kind == Variable {
		return nil, fmt.Errorf("variable $%s is not allowed", v.Raw)
	}
	for _, c := range v.Children {
		if _, err := valueOf(c.Value); err != nil {
			return nil, err
		}
	}
	return v.Value(nil)
}

func selectionPosition(sel ast.Selection) *Position {
	switch s := sel.(type) {
	case *ast.FragmentSpread:
		return s.Position
	case *ast.InlineFragment:
		return s.Position
	}
	return nil
}

func positionString(pos *Position) string {
	if pos == nil {
		return "<unknown>"
	}
	if pos.Src != nil && pos.Src.Name != "" {
		return fmt.Sprintf("%s:%d:%d", pos.Src.Name, pos.Line, pos.Column)
	}
	return fmt.Sprintf("%d:%d", pos.Line, pos.Column)
}
