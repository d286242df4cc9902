package store

import "sort"

// Operator is a filter comparison. The string values match Firestore's.
type Operator string

const (
	OpEqual          Operator = "=="
	OpNotEqual       Operator = "!="
	OpGreater        Operator = ">"
	OpGreaterOrEqual Operator = ">="
	OpLess           Operator = "<"
	OpLessOrEqual    Operator = "<="
	OpArrayContains  Operator = "array-contains"
)

type matchFunc func(field, value any) bool

var operators = map[Operator]matchFunc{
	OpEqual:    func(f, v any) bool { return compareValues(f, v) == 0 },
	OpNotEqual: func(f, v any) bool { return compareValues(f, v) != 0 },
	OpGreater: func(f, v any) bool {
		return sameRank(f, v) && compareValues(f, v) > 0
	},
	OpGreaterOrEqual: func(f, v any) bool {
		return sameRank(f, v) && compareValues(f, v) >= 0
	},
	OpLess: func(f, v any) bool {
		return sameRank(f, v) && compareValues(f, v) < 0
	},
	OpLessOrEqual: func(f, v any) bool {
		return sameRank(f, v) && compareValues(f, v) <= 0
	},
	OpArrayContains: func(f, v any) bool {
		elems, ok := toSlice(f)
		if !ok {
			return false
		}
		for _, e := range elems {
			if compareValues(e, v) == 0 {
				return true
			}
		}
		return false
	},
}

// Valid reports whether op is a supported operator.
func (op Operator) Valid() bool {
	_, ok := operators[op]
	return ok
}

type filter struct {
	field string
	op    Operator
	value any
}

type ordering struct {
	field string
	dir   Direction
}

// querySpec is the accumulated, purely descriptive state of a query.
type querySpec struct {
	filters []filter
	order   *ordering
	limit   int
	offset  int
}

// The with* methods return modified copies; the filter slice is never
// shared between two specs.

func (q querySpec) withFilter(f filter) querySpec {
	filters := make([]filter, len(q.filters), len(q.filters)+1)
	copy(filters, q.filters)
	q.filters = append(filters, f)
	return q
}

func (q querySpec) withOrder(field string, dir Direction) querySpec {
	q.order = &ordering{field: field, dir: dir}
	return q
}

func (q querySpec) withLimit(n int) querySpec {
	if n < 0 {
		n = 0
	}
	q.limit = n
	return q
}

func (q querySpec) withOffset(n int) querySpec {
	if n < 0 {
		n = 0
	}
	q.offset = n
	return q
}

// supported is false when any filter uses an unknown operator.
func (q querySpec) supported() bool {
	for _, f := range q.filters {
		if !f.op.Valid() {
			return false
		}
	}
	return true
}

func (q querySpec) matches(d Data) bool {
	for _, f := range q.filters {
		v, ok := d[f.field]
		if !ok {
			return false
		}
		match, known := operators[f.op]
		if !known || !match(v, f.value) {
			return false
		}
	}
	return true
}

// apply filters, orders and slices docs, which must be in insertion order.
// An unsupported operator yields no results.
func (q querySpec) apply(docs []*DocumentSnapshot) []*DocumentSnapshot {
	if !q.supported() {
		return []*DocumentSnapshot{}
	}
	out := make([]*DocumentSnapshot, 0, len(docs))
	for _, d := range docs {
		if q.matches(d.data) {
			out = append(out, d)
		}
	}
	if q.order != nil {
		field, desc := q.order.field, q.order.dir == Desc
		sort.SliceStable(out, func(i, j int) bool {
			c := compareField(out[i].data, out[j].data, field)
			if desc {
				return c > 0
			}
			return c < 0
		})
	}
	if q.offset > 0 {
		if q.offset >= len(out) {
			return []*DocumentSnapshot{}
		}
		out = out[q.offset:]
	}
	if q.limit > 0 && len(out) > q.limit {
		out = out[:q.limit]
	}
	return out
}

// compareField orders documents by one field; a missing field sorts before
// any present value.
func compareField(a, b Data, field string) int {
	va, okA := a[field]
	vb, okB := b[field]
	switch {
	case !okA && !okB:
		return 0
	case !okA:
		return -1
	case !okB:
		return 1
	default:
		return compareValues(va, vb)
	}
}
