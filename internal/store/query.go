package store

import (
	"encoding/json"
	"sort"
	"time"
)

// Query describes collection filtering, ordering and truncation. Filters
// are equality matches on top-level document fields.
type Query struct {
	filters []filter
	orderBy string
	desc    bool
	limit   int
}

type filter struct {
	field string
	value any
}

// Option configures a Query.
type Option func(*Query)

// Where adds an equality filter on a top-level field.
func Where(field string, value any) Option {
	return func(q *Query) {
		q.filters = append(q.filters, filter{field: field, value: value})
	}
}

// OrderBy sorts results by a top-level field.
func OrderBy(field string, desc bool) Option {
	return func(q *Query) {
		q.orderBy = field
		q.desc = desc
	}
}

// Limit truncates results after ordering.
func Limit(n int) Option {
	return func(q *Query) { q.limit = n }
}

// BuildQuery applies options to an empty query.
func BuildQuery(opts ...Option) Query {
	var q Query
	for _, opt := range opts {
		opt(&q)
	}
	return q
}

// Matches reports whether a document payload satisfies every filter.
func (q Query) Matches(data json.RawMessage) bool {
	if len(q.filters) == 0 {
		return true
	}
	fields := decodeFields(data)
	for _, f := range q.filters {
		if !valuesEqual(fields[f.field], f.value) {
			return false
		}
	}
	return true
}

// Apply filters, orders and truncates docs, returning a new slice.
func (q Query) Apply(docs []Document) []Document {
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if q.Matches(d.Data) {
			out = append(out, d)
		}
	}
	if q.orderBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			c := compareField(out[i].Data, out[j].Data, q.orderBy)
			if q.desc {
				return c > 0
			}
			return c < 0
		})
	}
	if q.limit > 0 && len(out) > q.limit {
		out = out[:q.limit]
	}
	return out
}

func decodeFields(data json.RawMessage) map[string]any {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil
	}
	return fields
}

// valuesEqual compares a decoded JSON field value with a caller-supplied
// filter value by normalizing both through JSON.
func valuesEqual(got, want any) bool {
	gb, err := json.Marshal(got)
	if err != nil {
		return false
	}
	wb, err := json.Marshal(want)
	if err != nil {
		return false
	}
	return string(gb) == string(wb)
}

func compareField(a, b json.RawMessage, field string) int {
	av := decodeFields(a)[field]
	bv := decodeFields(b)[field]
	return compareValues(av, bv)
}

// compareValues orders two decoded JSON values. Strings that parse as
// RFC 3339 timestamps compare as instants so that fractional-second
// precision does not skew lexicographic order.
func compareValues(a, b any) int {
	switch av := a.(type) {
	case float64:
		bv, ok := b.(float64)
		if !ok {
			return -1
		}
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case string:
		bv, ok := b.(string)
		if !ok {
			return 1
		}
		at, aerr := time.Parse(time.RFC3339Nano, av)
		bt, berr := time.Parse(time.RFC3339Nano, bv)
		if aerr == nil && berr == nil {
			switch {
			case at.Before(bt):
				return -1
			case at.After(bt):
				return 1
			}
			return 0
		}
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case bool:
		bv, _ := b.(bool)
		switch {
		case !av && bv:
			return -1
		case av && !bv:
			return 1
		}
		return 0
	case nil:
		if b == nil {
			return 0
		}
		return -1
	}
	return 0
}
