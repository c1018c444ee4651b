package graph

import (
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// ReverseKey maps ids of Type at one tree position back to root documents.
type ReverseKey struct {
	Type   string
	Path   string
	Filter *FilterConfig
}

// FilterFor returns the root-collection filter for id.
func (k ReverseKey) FilterFor(id any) bson.M {
	return ReverseFilter(k.Filter, id)
}

// Registry holds the reverse keys of a plan in compile (pre-order) order.
// It is read-only once Compile returns.
type Registry struct {
	keys []ReverseKey
}

func (r *Registry) add(k ReverseKey) {
	r.keys = append(r.keys, k)
}

// Keys returns every registered key in registration order.
func (r *Registry) Keys() []ReverseKey {
	out := make([]ReverseKey, len(r.keys))
	copy(out, r.keys)
	return out
}

// Lookup returns the keys registered for typ in registration order. A type
// reachable at several positions has one key per position.
func (r *Registry) Lookup(typ string) []ReverseKey {
	var out []ReverseKey
	for _, k := range r.keys {
		if k.Type == typ {
			out = append(out, k)
		}
	}
	return out
}

func (r *Registry) Has(typ string) bool {
	for _, k := range r.keys {
		if k.Type == typ {
			return true
		}
	}
	return false
}

// FilterFor builds the root filter for a document of typ with the given id
// using the first key registered for typ.
func (r *Registry) FilterFor(typ string, id any) (bson.M, error) {
	for _, k := range r.keys {
		if k.Type == typ {
			return k.FilterFor(id), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownType, typ)
}
