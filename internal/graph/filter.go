package graph

import (
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/hanpama/mongoview/internal/model"
	"github.com/hanpama/mongoview/internal/store"
)

// FilterConfig locates a node's documents inside a root document so that an
// id of the node's type can be mapped back to the root documents embedding it.
//
// Base is the dot path from the root, or from the nearest enclosing array
// boundary when HasArray is set. HasArray is true when the node or one of its
// ancestors is a hasMany relation. IsHasMany marks the array boundary itself.
// SuperBase points at the boundary for every node below it.
type FilterConfig struct {
	Name      string
	Base      string
	HasArray  bool
	IsHasMany bool
	SuperBase *FilterConfig
}

// newChildFilter derives a child's config from its parent's. A nil parent is
// the root, whose own filter is {_id: id}.
//
// A hasMany child of a node outside any array becomes a new array boundary.
// Below a boundary every path is relative to the boundary element, since a
// flat dot path cannot tell which element of the array an id belongs to.
func newChildFilter(parent *FilterConfig, name string, kind model.Kind) *FilterConfig {
	switch {
	case parent == nil && kind == model.HasMany:
		return &FilterConfig{Name: name, Base: name, HasArray: true, IsHasMany: true}
	case parent == nil:
		return &FilterConfig{Name: name, Base: name}
	case !parent.HasArray && kind == model.HasMany:
		return &FilterConfig{Name: name, Base: parent.Base + "." + name, HasArray: true, IsHasMany: true}
	case !parent.HasArray:
		return &FilterConfig{Name: name, Base: parent.Base + "." + name}
	case parent.IsHasMany:
		return &FilterConfig{Name: name, Base: name, HasArray: true, SuperBase: parent}
	default:
		return &FilterConfig{Name: name, Base: parent.Base + "." + name, HasArray: true, SuperBase: parent.SuperBase}
	}
}

// ReverseFilter builds the root-collection filter selecting the root documents
// that embed the document id at the position described by cfg. A nil cfg is
// the root itself.
func ReverseFilter(cfg *FilterConfig, id any) bson.M {
	id = store.WrapID(id)
	switch {
	case cfg == nil:
		return bson.M{"_id": id}
	case cfg.HasArray && cfg.SuperBase != nil:
		return bson.M{cfg.SuperBase.Base: bson.M{"$elemMatch": bson.M{cfg.Base + "._id": id}}}
	case cfg.HasArray:
		return bson.M{cfg.Base: bson.M{"$elemMatch": bson.M{"_id": id}}}
	default:
		return bson.M{cfg.Base + "._id": id}
	}
}
