package graph

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/hanpama/mongoview/internal/language"
	"github.com/hanpama/mongoview/internal/model"
)

const shopYAML = `
Order:
  fields: [number, createdAt]
  relations:
    items: {model: Item, type: hasMany, foreignKey: orderId}
    customer: {model: Customer, type: belongsTo, foreignKey: customerId}
    tags: {model: Tag, type: referencesMany, foreignKey: tagIds}
Item:
  fields: [quantity]
  relations:
    product: {model: Product, type: belongsTo, foreignKey: productId}
    notes: {model: Note, type: hasMany, foreignKey: itemId}
Product:
  fields: [name, price]
  relations:
    brand: {model: Brand, type: belongsTo, foreignKey: brandId}
Customer:
  fields: [name]
  relations:
    addresses: {model: Address, type: hasMany, foreignKey: customerId}
Brand:
  fields: [name]
Tag:
Note:
Address:
`

func compileSource(t *testing.T, source string, opts ...Option) (*Plan, error) {
	t.Helper()
	reg, err := model.Parse([]byte(shopYAML))
	require.NoError(t, err)
	g, err := language.ParseGraph("test.graphql", source)
	require.NoError(t, err)
	return Compile(g, reg, opts...)
}

func mustCompile(t *testing.T, source string, opts ...Option) *Plan {
	t.Helper()
	p, err := compileSource(t, source, opts...)
	require.NoError(t, err)
	return p
}

func TestCompileOrderPlan(t *testing.T) {
	p := mustCompile(t, `
		query Order {
			items @limit(n: 10) {
				product { brand }
				notes
			}
			customer { addresses }
			tags
		}
	`)
	require.Equal(t, "Order", p.Type)
	root := p.Root
	require.True(t, root.IsRoot)
	require.Nil(t, root.Filter)
	require.Equal(t, []string{"number", "createdAt"}, root.Fields)

	items := root.Child("items")
	require.NotNil(t, items)
	require.Equal(t, "Item", items.Type)
	require.Equal(t, model.HasMany, items.Relation.Kind)
	require.Equal(t, 10, items.Args[language.ArgLimit])

	itemsCfg := &FilterConfig{Name: "items", Base: "items", HasArray: true, IsHasMany: true}
	for _, tc := range []struct {
		node *Node
		want *FilterConfig
	}{
		{items, itemsCfg},
		{items.Child("product"), &FilterConfig{Name: "product", Base: "product", HasArray: true, SuperBase: itemsCfg}},
		{items.Child("product").Child("brand"), &FilterConfig{Name: "brand", Base: "product.brand", HasArray: true, SuperBase: itemsCfg}},
		{items.Child("notes"), &FilterConfig{Name: "notes", Base: "notes", HasArray: true, SuperBase: itemsCfg}},
		{root.Child("customer"), &FilterConfig{Name: "customer", Base: "customer"}},
		{root.Child("customer").Child("addresses"), &FilterConfig{Name: "addresses", Base: "customer.addresses", HasArray: true, IsHasMany: true}},
		{root.Child("tags"), &FilterConfig{Name: "tags", Base: "tags"}},
	} {
		require.NotNil(t, tc.node)
		if diff := cmp.Diff(tc.want, tc.node.Filter); diff != "" {
			t.Errorf("%s filter mismatch (-want +got):\n%s", tc.node.Path, diff)
		}
	}
	require.Equal(t, "items.product.brand", items.Child("product").Child("brand").Path)
}

func TestReverseFilters(t *testing.T) {
	p := mustCompile(t, `
		query Order {
			items { product { brand } }
			customer { addresses }
			tags
		}
	`)
	for _, tc := range []struct {
		typ  string
		id   any
		want bson.M
	}{
		{"Order", "O1", bson.M{"_id": "O1"}},
		{"Item", "I1", bson.M{"items": bson.M{"$elemMatch": bson.M{"_id": "I1"}}}},
		{"Product", "P1", bson.M{"items": bson.M{"$elemMatch": bson.M{"product._id": "P1"}}}},
		{"Brand", "B1", bson.M{"items": bson.M{"$elemMatch": bson.M{"product.brand._id": "B1"}}}},
		{"Customer", "C1", bson.M{"customer._id": "C1"}},
		{"Address", "A1", bson.M{"customer.addresses": bson.M{"$elemMatch": bson.M{"_id": "A1"}}}},
		{"Tag", "T1", bson.M{"tags._id": "T1"}},
	} {
		got, err := p.Keys.FilterFor(tc.typ, tc.id)
		require.NoError(t, err, tc.typ)
		if diff := cmp.Diff(tc.want, got); diff != "" {
			t.Errorf("%s filter mismatch (-want +got):\n%s", tc.typ, diff)
		}
	}

	_, err := p.Keys.FilterFor("Nope", "x")
	require.ErrorIs(t, err, ErrUnknownType)
}

func TestReverseFilterWrapsObjectIDs(t *testing.T) {
	hex := "64b7f0c2a1b2c3d4e5f60718"
	oid, err := bson.ObjectIDFromHex(hex)
	require.NoError(t, err)

	require.Equal(t, bson.M{"_id": oid}, ReverseFilter(nil, hex))
	require.Equal(t, bson.M{"customer._id": oid}, ReverseFilter(&FilterConfig{Name: "customer", Base: "customer"}, hex))
	require.Equal(t, bson.M{"customer._id": "short"}, ReverseFilter(&FilterConfig{Name: "customer", Base: "customer"}, "short"))
}

func TestRegistryOrder(t *testing.T) {
	p := mustCompile(t, `
		query Order {
			customer
			items { product }
			featured: items @relation(name: "items") { product }
		}
	`)
	var got []string
	for _, k := range p.Keys.Keys() {
		got = append(got, k.Type+"@"+k.Path)
	}
	require.Equal(t, []string{
		"Order@",
		"Customer@customer",
		"Item@items",
		"Product@items.product",
		"Item@featured",
		"Product@featured.product",
	}, got)

	products := p.Keys.Lookup("Product")
	require.Len(t, products, 2)
	require.Equal(t, "items.product", products[0].Path)

	// first registered position wins
	f, err := p.Keys.FilterFor("Product", "P1")
	require.NoError(t, err)
	require.Equal(t, bson.M{"items": bson.M{"$elemMatch": bson.M{"product._id": "P1"}}}, f)
	require.True(t, p.Keys.Has("Item"))
	require.False(t, p.Keys.Has("Brand"))
}

func TestRelationOverride(t *testing.T) {
	p := mustCompile(t, `query Order { buyer @relation(name: "customer") }`)
	buyer := p.Root.Child("buyer")
	require.NotNil(t, buyer)
	require.Equal(t, "Customer", buyer.Type)
	require.Equal(t, "customerId", buyer.Relation.ForeignKey)
	require.Equal(t, "buyer", buyer.Filter.Base)

	// an override wins over a same-named relation
	_, err := compileSource(t, `query Order { customer @relation(name: "nope") }`)
	require.ErrorIs(t, err, ErrUnresolvableRelation)
}

func TestUnresolvableRelation(t *testing.T) {
	_, err := compileSource(t, `query Order { items { supplier } }`)
	require.ErrorIs(t, err, ErrUnresolvableRelation)
	require.Contains(t, err.Error(), "Item.supplier")

	p := mustCompile(t, `query Order { items { supplier product } }`, WithSkipUnresolved())
	items := p.Root.Child("items")
	require.Len(t, items.Children, 1)
	require.Equal(t, "product", items.Children[0].Name)
}

func TestUnknownModel(t *testing.T) {
	reg := model.Registry{
		"Order": {Relations: map[string]*model.Relation{
			"invoice": {Model: "Invoice", Kind: model.BelongsTo, ForeignKey: "invoiceId"},
		}},
	}
	g, err := language.ParseGraph("x", `query Order { invoice { lines } }`)
	require.NoError(t, err)

	p, err := Compile(g, reg)
	require.NoError(t, err)
	invoice := p.Root.Child("invoice")
	require.NotNil(t, invoice)
	require.Empty(t, invoice.Children)
	require.Empty(t, invoice.Fields)
	require.True(t, p.Keys.Has("Invoice"))

	_, err = Compile(g, reg, WithStrictModels())
	require.ErrorIs(t, err, ErrUnknownModel)

	// an unregistered root type is a leaf too
	g, err = language.ParseGraph("x", `query Ghost { anything }`)
	require.NoError(t, err)
	p, err = Compile(g, reg)
	require.NoError(t, err)
	require.Empty(t, p.Root.Children)
}

func TestCompileDoesNotAliasRegistry(t *testing.T) {
	reg, err := model.Parse([]byte(shopYAML))
	require.NoError(t, err)
	g, err := language.ParseGraph("x", `query Order { customer }`)
	require.NoError(t, err)
	p, err := Compile(g, reg)
	require.NoError(t, err)

	p.Root.Fields[0] = "changed"
	p.Root.Child("customer").Relation.ForeignKey = "changed"
	require.Equal(t, "number", reg["Order"].Fields[0])
	require.Equal(t, "customerId", reg["Order"].Relations["customer"].ForeignKey)
}

func TestRender(t *testing.T) {
	p := mustCompile(t, `query Order { items @limit(n: 2) { product } customer }`)
	want := `Order (root)
  items: Item hasMany(orderId) [$limit=2]
    product: Product belongsTo(productId)
  customer: Customer belongsTo(customerId)

reverse keys:
  Order at <root>: _id
  Item at items: items $elemMatch _id
  Product at items.product: items $elemMatch product._id
  Customer at customer: customer._id
`
	if diff := cmp.Diff(want, Render(p)); diff != "" {
		t.Fatalf("render mismatch (-want +got):\n%s", diff)
	}
}
