package memstore

import (
	"bytes"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// normalize deep-copies v, turning every document shape into bson.M and every
// array shape into bson.A, the way the Mongo driver decodes into bson.M.
func normalize(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case bson.M:
		m := make(bson.M, len(t))
		for k, x := range t {
			m[k] = normalize(x)
		}
		return m
	case map[string]any:
		return normalize(bson.M(t))
	case bson.D:
		m := make(bson.M, len(t))
		for _, e := range t {
			m[e.Key] = normalize(e.Value)
		}
		return m
	case bson.A:
		a := make(bson.A, len(t))
		for i, x := range t {
			a[i] = normalize(x)
		}
		return a
	case []any:
		return normalize(bson.A(t))
	case string, bool, int, int32, int64, float64, bson.ObjectID, time.Time, []byte:
		return t
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice:
		a := make(bson.A, rv.Len())
		for i := range a {
			a[i] = normalize(rv.Index(i).Interface())
		}
		return a
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		m := make(bson.M, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = normalize(iter.Value().Interface())
		}
		return m
	}
	return v
}

func normalizeDoc(doc any) bson.M {
	m, _ := normalize(doc).(bson.M)
	if m == nil {
		m = bson.M{}
	}
	return m
}

// match reports whether doc satisfies filter. The supported subset covers
// equality, dotted paths through embedded documents and arrays, $and, $or,
// $eq, $ne, $in, $nin, $gt, $gte, $lt, $lte, $exists and $elemMatch.
func match(doc bson.M, filter bson.M) (bool, error) {
	for key, cond := range filter {
		var ok bool
		var err error
		switch key {
		case "$and", "$or":
			ok, err = matchLogical(doc, key, cond)
		default:
			if strings.HasPrefix(key, "$") {
				return false, fmt.Errorf("memstore: unsupported top-level operator %s", key)
			}
			ok, err = matchPath(doc, key, cond)
		}
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchLogical(doc bson.M, op string, cond any) (bool, error) {
	list, ok := cond.(bson.A)
	if !ok {
		return false, fmt.Errorf("memstore: %s expects an array", op)
	}
	for _, item := range list {
		sub, ok := item.(bson.M)
		if !ok {
			return false, fmt.Errorf("memstore: %s expects documents", op)
		}
		m, err := match(doc, sub)
		if err != nil {
			return false, err
		}
		if op == "$or" && m {
			return true, nil
		}
		if op == "$and" && !m {
			return false, nil
		}
	}
	return op == "$and", nil
}

func matchPath(doc bson.M, path string, cond any) (bool, error) {
	vals := lookup(doc, strings.Split(path, "."))
	if ops, ok := operatorDoc(cond); ok {
		return matchOperators(vals, ops)
	}
	return anyEqual(vals, cond), nil
}

// lookup returns every value reachable at path. Arrays met on the way are
// expanded into their document elements, so "items._id" yields the _id of
// each element of items.
func lookup(v any, parts []string) []any {
	if len(parts) == 0 {
		return []any{v}
	}
	switch t := v.(type) {
	case bson.M:
		x, ok := t[parts[0]]
		if !ok {
			return nil
		}
		return lookup(x, parts[1:])
	case bson.A:
		var out []any
		if idx, err := strconv.Atoi(parts[0]); err == nil && idx >= 0 && idx < len(t) {
			out = append(out, lookup(t[idx], parts[1:])...)
		}
		for _, el := range t {
			if m, ok := el.(bson.M); ok {
				out = append(out, lookup(m, parts)...)
			}
		}
		return out
	}
	return nil
}

func operatorDoc(cond any) (bson.M, bool) {
	m, ok := cond.(bson.M)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

func matchOperators(vals []any, ops bson.M) (bool, error) {
	for op, arg := range ops {
		var ok bool
		switch op {
		case "$eq":
			ok = anyEqual(vals, arg)
		case "$ne":
			ok = !anyEqual(vals, arg)
		case "$in", "$nin":
			list, isList := arg.(bson.A)
			if !isList {
				return false, fmt.Errorf("memstore: %s expects an array", op)
			}
			for _, want := range list {
				if anyEqual(vals, want) {
					ok = true
					break
				}
			}
			if op == "$nin" {
				ok = !ok
			}
		case "$gt", "$gte", "$lt", "$lte":
			ok = anyCompare(vals, op, arg)
		case "$exists":
			want, isBool := arg.(bool)
			if !isBool {
				return false, fmt.Errorf("memstore: $exists expects a boolean")
			}
			ok = (len(vals) > 0) == want
		case "$elemMatch":
			sub, isDoc := arg.(bson.M)
			if !isDoc {
				return false, fmt.Errorf("memstore: $elemMatch expects a document")
			}
			var err error
			ok, err = elemMatch(vals, sub)
			if err != nil {
				return false, err
			}
		default:
			return false, fmt.Errorf("memstore: unsupported operator %s", op)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func elemMatch(vals []any, sub bson.M) (bool, error) {
	ops, isOps := operatorDoc(sub)
	for _, v := range vals {
		arr, ok := v.(bson.A)
		if !ok {
			continue
		}
		for _, el := range arr {
			var m bool
			var err error
			if isOps {
				m, err = matchOperators([]any{el}, ops)
			} else if doc, isDoc := el.(bson.M); isDoc {
				m, err = match(doc, sub)
			}
			if err != nil {
				return false, err
			}
			if m {
				return true, nil
			}
		}
	}
	return false, nil
}

// anyEqual applies Mongo's equality: a field matches when it equals want or,
// when it is an array, when one of its elements does. A nil want also matches
// a missing field.
func anyEqual(vals []any, want any) bool {
	if want == nil && len(vals) == 0 {
		return true
	}
	for _, v := range vals {
		if equal(v, want) {
			return true
		}
		if arr, ok := v.(bson.A); ok {
			for _, el := range arr {
				if equal(el, want) {
					return true
				}
			}
		}
	}
	return false
}

func anyCompare(vals []any, op string, arg any) bool {
	check := func(v any) bool {
		c, ok := compare(v, arg)
		if !ok {
			return false
		}
		switch op {
		case "$gt":
			return c > 0
		case "$gte":
			return c >= 0
		case "$lt":
			return c < 0
		default:
			return c <= 0
		}
	}
	for _, v := range vals {
		if check(v) {
			return true
		}
		if arr, ok := v.(bson.A); ok {
			for _, el := range arr {
				if check(el) {
					return true
				}
			}
		}
	}
	return false
}

func equal(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return reflect.DeepEqual(a, b)
}

// compare orders two values of the same BSON class.
func compare(a, b any) (int, bool) {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		return strings.Compare(x, y), ok
	case time.Time:
		y, ok := b.(time.Time)
		return x.Compare(y), ok
	case bson.ObjectID:
		y, ok := b.(bson.ObjectID)
		return bytes.Compare(x[:], y[:]), ok
	case bool:
		y, ok := b.(bool)
		if !ok || x == y {
			return 0, ok
		}
		if !x {
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

// sortRank follows the BSON comparison order between classes.
func sortRank(v any) int {
	if v == nil {
		return 0
	}
	if _, ok := toFloat(v); ok {
		return 1
	}
	switch v.(type) {
	case string:
		return 2
	case bson.M:
		return 3
	case bson.A:
		return 4
	case bson.ObjectID:
		return 6
	case bool:
		return 7
	case time.Time:
		return 8
	}
	return 9
}

func sortCompare(a, b any) int {
	ra, rb := sortRank(a), sortRank(b)
	if ra != rb {
		return ra - rb
	}
	c, _ := compare(a, b)
	return c
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}
