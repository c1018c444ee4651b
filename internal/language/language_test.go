package language

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseGraph(t *testing.T) {
	g, err := ParseGraph("orders.graphql", `
		query Order @orderBy(field: "number") {
			items(status: "active") @limit(n: 5) @orderBy(field: "createdAt") {
				product
			}
			buyer @relation(name: "customer")
			recent: items @lastWeekBy(field: "createdAt")
		}
	`)
	require.NoError(t, err)
	require.Equal(t, "Order", g.Type)
	require.Equal(t, "orders.graphql", g.Name)
	require.Empty(t, g.Root.Name)
	require.Equal(t, "number", g.Root.Args[ArgOrderBy])

	require.Len(t, g.Root.Methods, 3)
	items := g.Root.Method("items")
	require.NotNil(t, items)
	require.Equal(t, map[string]any{
		"status":   "active",
		ArgLimit:   5,
		ArgOrderBy: "createdAt",
	}, items.Args)
	require.Len(t, items.Methods, 1)
	require.Equal(t, "product", items.Methods[0].Name)

	buyer := g.Root.Method("buyer")
	require.Equal(t, "customer", buyer.Args[ArgRelation])

	recent := g.Root.Method("recent")
	require.Equal(t, "items", recent.Args[ArgRelation])
	require.Equal(t, "createdAt", recent.Args[ArgLastWeekBy])
}

func TestParseGraphErrors(t *testing.T) {
	for _, tc := range []struct {
		name   string
		source string
		errMsg string
	}{
		{"anonymous", `{ items }`, "operation name"},
		{"two operations", `query A { x } query B { y }`, "exactly one operation"},
		{"variables", `query A($x: Int) { items(n: $x) }`, "variables"},
		{"unknown directive", `query A { items @skip(if: true) }`, "unknown directive"},
		{"limit type", `query A { items @limit(n: "5") }`, "@limit"},
		{"orderBy type", `query A { items @orderBy(field: 1) }`, "@orderBy expects a string"},
		{"missing directive arg", `query A { items @relation }`, "requires argument"},
		{"duplicate", `query A { items items }`, "duplicate method"},
		{"fragment", `query A { ...F } fragment F on A { items }`, "fragments"},
		{"syntax", `query A { items(`, ""},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseGraph("g.graphql", tc.source)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.errMsg)
		})
	}
}

func TestParseRootOnlyGraph(t *testing.T) {
	for _, source := range []string{
		`query Order`,
		`query Order {}`,
		"query Order {\n}\n",
		`query Order { __typename }`,
		`query Order @limit(n: 3)`,
	} {
		t.Run(source, func(t *testing.T) {
			g, err := ParseGraph("orders.graphql", source)
			require.NoError(t, err)
			require.Equal(t, "Order", g.Type)
			require.Empty(t, g.Root.Methods)
		})
	}

	g, err := ParseGraph("orders.graphql", `query Order @limit(n: 3)`)
	require.NoError(t, err)
	require.Equal(t, 3, g.Root.Args[ArgLimit])

	// an aliased __typename is an ordinary method
	g, err = ParseGraph("orders.graphql", `query Order { kind: __typename }`)
	require.NoError(t, err)
	require.Len(t, g.Root.Methods, 1)
}
