package store

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewID returns a document ID with a millisecond time prefix and a random
// suffix (UUIDv7). IDs generated by one process are strictly increasing.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// value ranks, lowest first
const (
	rankNull = iota
	rankBool
	rankNumber
	rankTime
	rankString
	rankArray
	rankMap
	rankOther
)

func rankOf(v any) int {
	switch v.(type) {
	case nil:
		return rankNull
	case bool:
		return rankBool
	case time.Time:
		return rankTime
	case string:
		return rankString
	}
	if _, ok := toNumber(v); ok {
		return rankNumber
	}
	if _, ok := toSlice(v); ok {
		return rankArray
	}
	if _, ok := toMap(v); ok {
		return rankMap
	}
	return rankOther
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func toSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case []byte, string, nil:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func toMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Data:
		return m, true
	case nil:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}

// compareValues orders two field values. Values of different kinds order
// by rank; within a rank they use their natural ordering.
func compareValues(a, b any) int {
	ra, rb := rankOf(a), rankOf(b)
	if ra != rb {
		return ra - rb
	}
	switch ra {
	case rankNull:
		return 0
	case rankBool:
		x, y := a.(bool), b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		default:
			return 1
		}
	case rankNumber:
		x, _ := toNumber(a)
		y, _ := toNumber(b)
		return cmpOrdered(x, y)
	case rankTime:
		return a.(time.Time).Compare(b.(time.Time))
	case rankString:
		return strings.Compare(a.(string), b.(string))
	case rankArray:
		x, _ := toSlice(a)
		y, _ := toSlice(b)
		for i := 0; i < len(x) && i < len(y); i++ {
			if c := compareValues(x[i], y[i]); c != 0 {
				return c
			}
		}
		return cmpOrdered(len(x), len(y))
	case rankMap:
		x, _ := toMap(a)
		y, _ := toMap(b)
		return compareMaps(x, y)
	default:
		return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
	}
}

func compareMaps(x, y map[string]any) int {
	kx, ky := sortedKeys(x), sortedKeys(y)
	for i := 0; i < len(kx) && i < len(ky); i++ {
		if c := strings.Compare(kx[i], ky[i]); c != 0 {
			return c
		}
		if c := compareValues(x[kx[i]], y[ky[i]]); c != 0 {
			return c
		}
	}
	return cmpOrdered(len(kx), len(ky))
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func cmpOrdered[T int | float64](x, y T) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	default:
		return 0
	}
}

func sameRank(a, b any) bool {
	return rankOf(a) == rankOf(b)
}

// cloneData deep-copies maps and slices so that stored documents never
// share memory with callers.
func cloneData(d Data) Data {
	if d == nil {
		return nil
	}
	out := make(Data, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = cloneValue(vv)
		}
		return out
	case Data:
		return map[string]any(cloneData(t))
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = cloneValue(vv)
		}
		return out
	default:
		return v
	}
}

// sanitize copies data for writing. Nil map values are dropped when
// ignoreUndefined is set and rejected otherwise; nil slice elements are
// always rejected.
func sanitize(data Data, ignoreUndefined bool) (Data, error) {
	out := make(Data, len(data))
	for k, v := range data {
		if v == nil {
			if ignoreUndefined {
				continue
			}
			return nil, fmt.Errorf("field %q: %w", k, ErrUndefinedValue)
		}
		clean, err := sanitizeValue(v, ignoreUndefined)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out[k] = clean
	}
	return out, nil
}

func sanitizeValue(v any, ignoreUndefined bool) (any, error) {
	switch t := v.(type) {
	case string, bool, time.Time:
		return v, nil
	case map[string]any:
		d, err := sanitize(t, ignoreUndefined)
		return map[string]any(d), err
	case Data:
		d, err := sanitize(t, ignoreUndefined)
		return map[string]any(d), err
	}
	if _, ok := toNumber(v); ok {
		return v, nil
	}
	if s, ok := toSlice(v); ok {
		out := make([]any, len(s))
		for i, e := range s {
			if e == nil {
				return nil, fmt.Errorf("index %d: %w", i, ErrUndefinedValue)
			}
			clean, err := sanitizeValue(e, ignoreUndefined)
			if err != nil {
				return nil, err
			}
			out[i] = clean
		}
		return out, nil
	}
	if m, ok := toMap(v); ok {
		d, err := sanitize(m, ignoreUndefined)
		return map[string]any(d), err
	}
	return v, nil
}
