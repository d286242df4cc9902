package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

type docRecord struct {
	// data is replaced, never mutated in place, so snapshots may share it.
	data Data
}

type collectionRecord struct {
	docs  map[string]*docRecord
	order []string
}

// MemoryStore is an in-memory implementation of Store. Every operation runs
// to completion under mu, so mutations are totally ordered and a committed
// batch is never observed half-applied.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*collectionRecord
	settings    Settings
	now         func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]*collectionRecord),
		now:         time.Now,
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Collection(name string) Collection {
	return memCollection{memQuery{store: s, collection: name}}
}

func (s *MemoryStore) Batch() WriteBatch {
	return &memBatch{store: s}
}

func (s *MemoryStore) Settings(st Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = st
}

func (s *MemoryStore) Close() error { return nil }

func validateRef(collection, id string) error {
	if collection == "" {
		return fmt.Errorf("empty collection name: %w", ErrInvalidArgument)
	}
	if id == "" || strings.Contains(id, "/") {
		return fmt.Errorf("document id %q: %w", id, ErrInvalidArgument)
	}
	return nil
}

// write sanitizes data and stores it. Callers must not hold mu.
func (s *MemoryStore) write(ctx context.Context, op, collection, id string, data Data, merge bool) error {
	if err := ctx.Err(); err != nil {
		return opError(op, collection, id, err)
	}
	if err := validateRef(collection, id); err != nil {
		return opError(op, collection, id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	clean, err := sanitize(data, s.settings.IgnoreUndefinedProperties)
	if err != nil {
		return opError(op, collection, id, err)
	}
	s.writeLocked(collection, id, clean, merge)
	return nil
}

// writeLocked stores already sanitized data and stamps the timestamps.
func (s *MemoryStore) writeLocked(collection, id string, clean Data, merge bool) {
	now := s.now().UTC()

	c, ok := s.collections[collection]
	if !ok {
		c = &collectionRecord{docs: make(map[string]*docRecord)}
		s.collections[collection] = c
	}

	rec, exists := c.docs[id]
	next := make(Data, len(clean)+2)
	if exists && merge {
		for k, v := range rec.data {
			next[k] = v
		}
	}
	for k, v := range clean {
		next[k] = v
	}
	next[FieldUpdatedAt] = now

	if exists {
		next[FieldCreatedAt] = rec.data[FieldCreatedAt]
		rec.data = next
		return
	}
	next[FieldCreatedAt] = now
	c.docs[id] = &docRecord{data: next}
	c.order = append(c.order, id)
}

func (s *MemoryStore) deleteLocked(collection, id string) {
	c, ok := s.collections[collection]
	if !ok {
		return
	}
	if _, exists := c.docs[id]; !exists {
		return
	}
	delete(c.docs, id)
	if i := slices.Index(c.order, id); i >= 0 {
		c.order = slices.Delete(c.order, i, i+1)
	}
}

// snapshotLocked returns every document of a collection in insertion order.
func (s *MemoryStore) snapshotLocked(collection string) []*DocumentSnapshot {
	c, ok := s.collections[collection]
	if !ok {
		return nil
	}
	docs := make([]*DocumentSnapshot, 0, len(c.order))
	for _, id := range c.order {
		docs = append(docs, &DocumentSnapshot{ID: id, Exists: true, data: c.docs[id].data})
	}
	return docs
}

type memQuery struct {
	store      *MemoryStore
	collection string
	spec       querySpec
}

func (q memQuery) Where(field string, op Operator, value any) Query {
	q.spec = q.spec.withFilter(filter{field: field, op: op, value: value})
	return q
}

func (q memQuery) OrderBy(field string, dir Direction) Query {
	q.spec = q.spec.withOrder(field, dir)
	return q
}

func (q memQuery) Limit(n int) Query {
	q.spec = q.spec.withLimit(n)
	return q
}

func (q memQuery) Offset(n int) Query {
	q.spec = q.spec.withOffset(n)
	return q
}

func (q memQuery) Get(ctx context.Context) (*QuerySnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, opError("query", q.collection, "", err)
	}
	if q.collection == "" {
		return nil, opError("query", q.collection, "", fmt.Errorf("empty collection name: %w", ErrInvalidArgument))
	}

	q.store.mu.RLock()
	docs := q.store.snapshotLocked(q.collection)
	q.store.mu.RUnlock()

	return &QuerySnapshot{Docs: q.spec.apply(docs)}, nil
}

type memCollection struct {
	memQuery
}

func (c memCollection) Name() string { return c.collection }

func (c memCollection) Doc(id string) DocumentRef {
	return &memDocRef{store: c.store, collection: c.collection, id: id}
}

func (c memCollection) Add(ctx context.Context, data Data) (DocumentRef, error) {
	ref := &memDocRef{store: c.store, collection: c.collection, id: NewID()}
	if err := c.store.write(ctx, "add", c.collection, ref.id, data, false); err != nil {
		return nil, err
	}
	return ref, nil
}

type memDocRef struct {
	store      *MemoryStore
	collection string
	id         string
}

func (r *memDocRef) ID() string { return r.id }

func (r *memDocRef) CollectionName() string { return r.collection }

func (r *memDocRef) Get(ctx context.Context) (*DocumentSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, opError("get", r.collection, r.id, err)
	}
	if err := validateRef(r.collection, r.id); err != nil {
		return nil, opError("get", r.collection, r.id, err)
	}

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	snap := &DocumentSnapshot{ID: r.id}
	if c, ok := r.store.collections[r.collection]; ok {
		if rec, ok := c.docs[r.id]; ok {
			snap.Exists = true
			snap.data = rec.data
		}
	}
	return snap, nil
}

func (r *memDocRef) Set(ctx context.Context, data Data, opts ...SetOption) error {
	return r.store.write(ctx, "set", r.collection, r.id, data, isMerge(opts))
}

func (r *memDocRef) Update(ctx context.Context, data Data) error {
	return r.store.write(ctx, "update", r.collection, r.id, data, true)
}

func (r *memDocRef) Delete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return opError("delete", r.collection, r.id, err)
	}
	if err := validateRef(r.collection, r.id); err != nil {
		return opError("delete", r.collection, r.id, err)
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.deleteLocked(r.collection, r.id)
	return nil
}
