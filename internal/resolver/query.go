package resolver

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/hanpama/mongoview/internal/language"
	"github.com/hanpama/mongoview/internal/store"
)

// buildQuery combines a selector with a node's args. Directive keys become
// limit, sort and a week window; every other key is an equality filter
// merged over the selector's filter.
func buildQuery(args map[string]any, sel Selector, now time.Time) store.Query {
	q := store.Query{Filter: sel.Filter()}
	var weekField string
	for k, v := range args {
		switch k {
		case language.ArgLimit:
			if n, ok := toInt64(v); ok && n > 0 {
				q.Limit = n
			}
		case language.ArgOrderBy:
			if f, ok := v.(string); ok && f != "" {
				q.Sort = bson.D{{Key: f, Value: 1}}
			}
		case language.ArgLastWeekBy:
			if f, ok := v.(string); ok && f != "" {
				weekField = f
			}
		default:
			if strings.HasPrefix(k, "$") {
				continue
			}
			q.Filter[k] = v
		}
	}
	if weekField != "" {
		from, to := weekWindow(now)
		q.Filter[weekField] = bson.M{"$gte": from, "$lt": to}
	}
	return q
}

// weekWindow returns Monday 00:00 of the week containing now and the Monday
// after it, both in now's location.
func weekWindow(now time.Time) (time.Time, time.Time) {
	offset := (int(now.Weekday()) + 6) % 7
	y, m, d := now.Date()
	start := time.Date(y, m, d-offset, 0, 0, 0, 0, now.Location())
	return start, start.AddDate(0, 0, 7)
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
	}
	return 0, false
}
