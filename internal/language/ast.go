package language

import "github.com/vektah/gqlparser/v2/ast"

type (
	QueryDocument       = ast.QueryDocument
	OperationDefinition = ast.OperationDefinition
	SelectionSet        = ast.SelectionSet
	Field               = ast.Field
	Directive           = ast.Directive
	ArgumentList        = ast.ArgumentList
	Value               = ast.Value
	Position            = ast.Position
)

type ValueKind = ast.ValueKind

const (
	Variable     ValueKind = ast.Variable
	IntValue     ValueKind = ast.IntValue
	FloatValue   ValueKind = ast.FloatValue
	StringValue  ValueKind = ast.StringValue
	BlockValue   ValueKind = ast.BlockValue
	BooleanValue ValueKind = ast.BooleanValue
	NullValue    ValueKind = ast.NullValue
	EnumValue    ValueKind = ast.EnumValue
	ListValue    ValueKind = ast.ListValue
	ObjectValue  ValueKind = ast.ObjectValue
)

// Directive argument keys stored in GraphNode.Args.
const (
	ArgRelation   = "$relation"
	ArgLimit      = "$limit"
	ArgOrderBy    = "$orderBy"
	ArgLastWeekBy = "$lastWeekBy"
)

// Graph is a parsed relation graph. Type is the declared root model type; the
// root node itself is untyped.
type Graph struct {
	Name string
	Type string
	Root *GraphNode
}

// GraphNode is one position of the parsed graph. Methods keep source order.
type GraphNode struct {
	Name     string
	Type     string
	Args     map[string]any
	Methods  []*GraphNode
	Position *Position
}

// Method returns the child method with the given name.
func (n *GraphNode) Method(name string) *GraphNode {
	for _, m := range n.Methods {
		if m.Name == name {
			return m
		}
	}
	return nil
}
