package resolver

import (
	"maps"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/hanpama/mongoview/internal/store"
)

// SelectorKind tells how a Selector picks documents.
type SelectorKind int

const (
	SelectAll SelectorKind = iota
	SelectByID
	SelectByIDs
	SelectByFilter
)

func (k SelectorKind) String() string {
	switch k {
	case SelectAll:
		return "all"
	case SelectByID:
		return "byID"
	case SelectByIDs:
		return "byIDs"
	case SelectByFilter:
		return "byFilter"
	}
	return "unknown"
}

// Selector picks the documents of one node's collection.
type Selector struct {
	kind   SelectorKind
	id     any
	ids    []any
	filter bson.M
}

// All selects every document.
func All() Selector { return Selector{kind: SelectAll} }

// ByID selects the document with the given id.
func ByID(id any) Selector { return Selector{kind: SelectByID, id: id} }

// ByIDs selects the documents whose id is in ids.
func ByIDs(ids []any) Selector { return Selector{kind: SelectByIDs, ids: ids} }

// ByFilter selects the documents matching f.
func ByFilter(f bson.M) Selector { return Selector{kind: SelectByFilter, filter: f} }

func (s Selector) Kind() SelectorKind { return s.kind }

// Filter returns a fresh filter document for s. Ids are passed through
// store.WrapID.
func (s Selector) Filter() bson.M {
	switch s.kind {
	case SelectByID:
		return bson.M{"_id": store.WrapID(s.id)}
	case SelectByIDs:
		in := make(bson.A, len(s.ids))
		for i, id := range s.ids {
			in[i] = store.WrapID(id)
		}
		return bson.M{"_id": bson.M{"$in": in}}
	case SelectByFilter:
		if s.filter == nil {
			return bson.M{}
		}
		return maps.Clone(s.filter)
	default:
		return bson.M{}
	}
}
