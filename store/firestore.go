package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStore is a Firestore-backed implementation of Store.
//
// Writes that must preserve createdAt run in a transaction that reads the
// current document first. Two behaviors differ from MemoryStore because the
// service decides them: documents lacking an OrderBy field are left out of
// ordered results, and unordered queries come back in document ID order.
type FirestoreStore struct {
	client *firestore.Client

	mu       sync.RWMutex
	settings Settings
	now      func() time.Time
}

// NewFirestoreStore creates a new FirestoreStore using the given Firestore client.
func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{
		client: client,
		now:    time.Now,
	}
}

var _ Store = (*FirestoreStore)(nil)

func (s *FirestoreStore) Collection(name string) Collection {
	return fsCollection{fsQuery{store: s, collection: name}}
}

func (s *FirestoreStore) Batch() WriteBatch {
	return &fsBatch{store: s}
}

func (s *FirestoreStore) Settings(st Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = st
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

func (s *FirestoreStore) ignoreUndefined() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.IgnoreUndefinedProperties
}

func (s *FirestoreStore) docRef(collection, id string) *firestore.DocumentRef {
	return s.client.Collection(collection).Doc(id)
}

// stamp sets the store-owned timestamps on clean. prev is the current
// document data, or nil when the document does not exist.
func (s *FirestoreStore) stamp(clean Data, prev map[string]any) map[string]any {
	now := s.now().UTC()
	out := make(map[string]any, len(clean)+2)
	for k, v := range clean {
		out[k] = v
	}
	out[FieldUpdatedAt] = now
	if created, ok := prev[FieldCreatedAt]; ok {
		out[FieldCreatedAt] = created
	} else {
		out[FieldCreatedAt] = now
	}
	return out
}

func setOptions(merge bool) []firestore.SetOption {
	if merge {
		return []firestore.SetOption{firestore.MergeAll}
	}
	return nil
}

func (s *FirestoreStore) write(ctx context.Context, op, collection, id string, data Data, merge bool) error {
	if err := validateRef(collection, id); err != nil {
		return opError(op, collection, id, err)
	}
	clean, err := sanitize(data, s.ignoreUndefined())
	if err != nil {
		return opError(op, collection, id, err)
	}

	ref := s.docRef(collection, id)
	err = s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var prev map[string]any
		snap, err := tx.Get(ref)
		switch {
		case status.Code(err) == codes.NotFound:
		case err != nil:
			return err
		default:
			prev = snap.Data()
		}
		return tx.Set(ref, s.stamp(clean, prev), setOptions(merge)...)
	})
	return opError(op, collection, id, err)
}

type fsQuery struct {
	store      *FirestoreStore
	collection string
	spec       querySpec
}

func (q fsQuery) Where(field string, op Operator, value any) Query {
	q.spec = q.spec.withFilter(filter{field: field, op: op, value: value})
	return q
}

func (q fsQuery) OrderBy(field string, dir Direction) Query {
	q.spec = q.spec.withOrder(field, dir)
	return q
}

func (q fsQuery) Limit(n int) Query {
	q.spec = q.spec.withLimit(n)
	return q
}

func (q fsQuery) Offset(n int) Query {
	q.spec = q.spec.withOffset(n)
	return q
}

// build translates the accumulated spec into a Firestore query.
func (q fsQuery) build() firestore.Query {
	fq := q.store.client.Collection(q.collection).Query
	for _, f := range q.spec.filters {
		fq = fq.Where(f.field, string(f.op), f.value)
	}
	if o := q.spec.order; o != nil {
		dir := firestore.Asc
		if o.dir == Desc {
			dir = firestore.Desc
		}
		fq = fq.OrderBy(o.field, dir)
	}
	if q.spec.offset > 0 {
		fq = fq.Offset(q.spec.offset)
	}
	if q.spec.limit > 0 {
		fq = fq.Limit(q.spec.limit)
	}
	return fq
}

func (q fsQuery) Get(ctx context.Context) (*QuerySnapshot, error) {
	if q.collection == "" {
		return nil, opError("query", q.collection, "", fmt.Errorf("empty collection name: %w", ErrInvalidArgument))
	}
	// Keep the in-memory behavior for unknown operators instead of letting
	// the service reject the query.
	if !q.spec.supported() {
		return &QuerySnapshot{Docs: []*DocumentSnapshot{}}, nil
	}

	snaps, err := q.build().Documents(ctx).GetAll()
	if err != nil {
		return nil, opError("query", q.collection, "", err)
	}
	docs := make([]*DocumentSnapshot, len(snaps))
	for i, snap := range snaps {
		docs[i] = &DocumentSnapshot{ID: snap.Ref.ID, Exists: true, data: Data(snap.Data())}
	}
	return &QuerySnapshot{Docs: docs}, nil
}

type fsCollection struct {
	fsQuery
}

func (c fsCollection) Name() string { return c.collection }

func (c fsCollection) Doc(id string) DocumentRef {
	return &fsDocRef{store: c.store, collection: c.collection, id: id}
}

func (c fsCollection) Add(ctx context.Context, data Data) (DocumentRef, error) {
	if c.collection == "" {
		return nil, opError("add", c.collection, "", fmt.Errorf("empty collection name: %w", ErrInvalidArgument))
	}
	clean, err := sanitize(data, c.store.ignoreUndefined())
	if err != nil {
		return nil, opError("add", c.collection, "", err)
	}
	id := NewID()
	if _, err := c.store.docRef(c.collection, id).Create(ctx, c.store.stamp(clean, nil)); err != nil {
		return nil, opError("add", c.collection, id, err)
	}
	return &fsDocRef{store: c.store, collection: c.collection, id: id}, nil
}

type fsDocRef struct {
	store      *FirestoreStore
	collection string
	id         string
}

func (r *fsDocRef) ID() string { return r.id }

func (r *fsDocRef) CollectionName() string { return r.collection }

func (r *fsDocRef) Get(ctx context.Context) (*DocumentSnapshot, error) {
	if err := validateRef(r.collection, r.id); err != nil {
		return nil, opError("get", r.collection, r.id, err)
	}
	snap, err := r.store.docRef(r.collection, r.id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return &DocumentSnapshot{ID: r.id}, nil
	}
	if err != nil {
		return nil, opError("get", r.collection, r.id, err)
	}
	return &DocumentSnapshot{ID: r.id, Exists: snap.Exists(), data: Data(snap.Data())}, nil
}

func (r *fsDocRef) Set(ctx context.Context, data Data, opts ...SetOption) error {
	return r.store.write(ctx, "set", r.collection, r.id, data, isMerge(opts))
}

func (r *fsDocRef) Update(ctx context.Context, data Data) error {
	return r.store.write(ctx, "update", r.collection, r.id, data, true)
}

func (r *fsDocRef) Delete(ctx context.Context) error {
	if err := validateRef(r.collection, r.id); err != nil {
		return opError("delete", r.collection, r.id, err)
	}
	_, err := r.store.docRef(r.collection, r.id).Delete(ctx)
	return opError("delete", r.collection, r.id, err)
}

// fsBatch commits its writes inside one Firestore transaction so that the
// current documents can be read for timestamp stamping. Firestore caps a
// transaction at 500 writes.
type fsBatch struct {
	store     *FirestoreStore
	ops       []batchOp
	committed bool
}

func (b *fsBatch) Set(ref DocumentRef, data Data, opts ...SetOption) WriteBatch {
	b.ops = append(b.ops, batchOp{kind: batchSet, ref: ref, data: cloneData(data), merge: isMerge(opts)})
	return b
}

func (b *fsBatch) Delete(ref DocumentRef) WriteBatch {
	b.ops = append(b.ops, batchOp{kind: batchDelete, ref: ref})
	return b
}

func (b *fsBatch) Commit(ctx context.Context) error {
	if b.committed {
		return opError("batch.commit", "", "", ErrBatchCommitted)
	}

	ignore := b.store.ignoreUndefined()
	refs := make([]*firestore.DocumentRef, len(b.ops))
	cleaned := make([]Data, len(b.ops))
	var reads []*firestore.DocumentRef
	for i, op := range b.ops {
		r, ok := op.ref.(*fsDocRef)
		if !ok || r.store != b.store {
			return opError("batch.commit", "", "", fmt.Errorf("op %d: ref from another store: %w", i, ErrInvalidArgument))
		}
		if err := validateRef(r.collection, r.id); err != nil {
			return opError("batch.commit", r.collection, r.id, err)
		}
		refs[i] = b.store.docRef(r.collection, r.id)
		if op.kind == batchSet {
			clean, err := sanitize(op.data, ignore)
			if err != nil {
				return opError("batch.commit", r.collection, r.id, err)
			}
			cleaned[i] = clean
			reads = append(reads, refs[i])
		}
	}

	err := b.store.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		prev := make(map[string]map[string]any, len(reads))
		if len(reads) > 0 {
			snaps, err := tx.GetAll(reads)
			if err != nil {
				return err
			}
			for _, snap := range snaps {
				if snap.Exists() {
					prev[snap.Ref.Path] = snap.Data()
				}
			}
		}
		for i, op := range b.ops {
			var err error
			switch op.kind {
			case batchSet:
				err = tx.Set(refs[i], b.store.stamp(cleaned[i], prev[refs[i].Path]), setOptions(op.merge)...)
			case batchDelete:
				err = tx.Delete(refs[i])
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return opError("batch.commit", "", "", err)
	}
	b.committed = true
	return nil
}
