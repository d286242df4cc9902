package store

import (
	"context"
	"strings"
)

// Field names owned by the store. Both are overwritten on every write;
// FieldCreatedAt keeps the value stamped when the document was first created.
const (
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

// Data is a schema-less document body.
type Data map[string]any

// Settings tunes write behavior of a Store.
type Settings struct {
	// IgnoreUndefinedProperties drops nil map values from writes instead of
	// failing them with ErrUndefinedValue.
	IgnoreUndefinedProperties bool
}

// SetOption modifies a Set write.
type SetOption struct {
	merge bool
}

// MergeAll makes Set shallow-merge the given fields into an existing
// document instead of replacing it.
var MergeAll = SetOption{merge: true}

func isMerge(opts []SetOption) bool {
	for _, o := range opts {
		if o.merge {
			return true
		}
	}
	return false
}

// Direction is the sort direction of an OrderBy clause.
type Direction int

const (
	Asc Direction = iota
	Desc
)

// ParseDirection maps "asc"/"desc" (any case) to a Direction. Anything else
// falls back to def.
func ParseDirection(s string, def Direction) Direction {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "asc":
		return Asc
	case "desc":
		return Desc
	default:
		return def
	}
}

func (d Direction) String() string {
	if d == Desc {
		return "desc"
	}
	return "asc"
}

// Query accumulates filters, ordering and caps against one collection.
// Builders are immutable: every call returns a new Query. Nothing is read
// until Get.
type Query interface {
	Where(field string, op Operator, value any) Query
	OrderBy(field string, dir Direction) Query
	Limit(n int) Query
	Offset(n int) Query
	Get(ctx context.Context) (*QuerySnapshot, error)
}

// Collection is a handle on a named collection. Obtaining one never fails;
// a collection with no documents behaves as empty.
type Collection interface {
	Query
	Name() string
	Doc(id string) DocumentRef
	Add(ctx context.Context, data Data) (DocumentRef, error)
}

// DocumentRef addresses a single document.
type DocumentRef interface {
	ID() string
	CollectionName() string
	Get(ctx context.Context) (*DocumentSnapshot, error)
	Set(ctx context.Context, data Data, opts ...SetOption) error
	// Update shallow-merges data into the document, creating it when absent.
	Update(ctx context.Context, data Data) error
	// Delete removes the document. Deleting a missing document is a no-op.
	Delete(ctx context.Context) error
}

// WriteBatch buffers writes and applies them together on Commit.
type WriteBatch interface {
	Set(ref DocumentRef, data Data, opts ...SetOption) WriteBatch
	Delete(ref DocumentRef) WriteBatch
	Commit(ctx context.Context) error
}

// Store abstracts document persistence.
// Implementations: MemoryStore (in-process fallback), FirestoreStore.
type Store interface {
	Collection(name string) Collection
	Batch() WriteBatch
	Settings(s Settings)
	Close() error
}

// DocumentSnapshot is an immutable read of one document.
type DocumentSnapshot struct {
	ID     string
	Exists bool
	data   Data
}

// Data returns a copy of the document fields, or nil if the document does
// not exist.
func (s *DocumentSnapshot) Data() Data {
	if s == nil || !s.Exists {
		return nil
	}
	return cloneData(s.data)
}

// QuerySnapshot is the result of a query, captured at read time.
type QuerySnapshot struct {
	Docs []*DocumentSnapshot
}

// ForEach calls fn for every document in result order.
func (q *QuerySnapshot) ForEach(fn func(doc *DocumentSnapshot)) {
	for _, d := range q.Docs {
		fn(d)
	}
}

func (q *QuerySnapshot) Size() int { return len(q.Docs) }

func (q *QuerySnapshot) Empty() bool { return len(q.Docs) == 0 }
