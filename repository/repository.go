// Package repository provides a generic CRUD facade over one store collection.
package repository

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/alimasry/elearning-docstore/store"
)

// FieldID is the key under which records carry their document ID.
const FieldID = "id"

const tracerName = "github.com/alimasry/elearning-docstore/repository"

// Repository exposes CRUD, search and pagination for a single collection.
// Every failure is returned as a *store.OperationError.
type Repository struct {
	store      store.Store
	collection string
	tracer     trace.Tracer
}

func New(st store.Store, collection string) *Repository {
	return &Repository{
		store:      st,
		collection: collection,
		tracer:     otel.Tracer(tracerName),
	}
}

// Collection returns the name of the collection the repository serves.
func (r *Repository) Collection() string { return r.collection }

func (r *Repository) coll() store.Collection {
	return r.store.Collection(r.collection)
}

// start opens a span for op tagged with the collection.
func (r *Repository) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("db.collection", r.collection))
	return r.tracer.Start(ctx, "repository."+op, trace.WithAttributes(attrs...))
}

// fail records err on span and wraps it for the caller.
func (r *Repository) fail(span trace.Span, op, id string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return &store.OperationError{Op: "repository." + op, Collection: r.collection, ID: id, Err: err}
}

// record turns a snapshot into a record with its ID under FieldID.
func record(snap *store.DocumentSnapshot) store.Data {
	data := snap.Data()
	if data == nil {
		return nil
	}
	data[FieldID] = snap.ID
	return data
}

func records(snap *store.QuerySnapshot) []store.Data {
	out := make([]store.Data, 0, snap.Size())
	snap.ForEach(func(doc *store.DocumentSnapshot) {
		out = append(out, record(doc))
	})
	return out
}

// Create stores data under a generated ID and returns the stored record.
func (r *Repository) Create(ctx context.Context, data store.Data) (store.Data, error) {
	ctx, span := r.start(ctx, "create")
	defer span.End()

	ref, err := r.coll().Add(ctx, data)
	if err != nil {
		return nil, r.fail(span, "create", "", err)
	}
	span.SetAttributes(attribute.String("db.document_id", ref.ID()))
	snap, err := ref.Get(ctx)
	if err != nil {
		return nil, r.fail(span, "create", ref.ID(), err)
	}
	return record(snap), nil
}

// CreateWithID replaces the document id with data and returns the stored record.
func (r *Repository) CreateWithID(ctx context.Context, id string, data store.Data) (store.Data, error) {
	ctx, span := r.start(ctx, "create", attribute.String("db.document_id", id))
	defer span.End()

	ref := r.coll().Doc(id)
	if err := ref.Set(ctx, data); err != nil {
		return nil, r.fail(span, "create", id, err)
	}
	snap, err := ref.Get(ctx)
	if err != nil {
		return nil, r.fail(span, "create", id, err)
	}
	return record(snap), nil
}

// FindByID returns the record with the given ID, or nil when it does not exist.
func (r *Repository) FindByID(ctx context.Context, id string) (store.Data, error) {
	ctx, span := r.start(ctx, "find_by_id", attribute.String("db.document_id", id))
	defer span.End()

	snap, err := r.coll().Doc(id).Get(ctx)
	if err != nil {
		return nil, r.fail(span, "find_by_id", id, err)
	}
	return record(snap), nil
}

// FindOne returns the first record whose field equals value, or nil.
func (r *Repository) FindOne(ctx context.Context, field string, value any) (store.Data, error) {
	ctx, span := r.start(ctx, "find_one", attribute.String("db.field", field))
	defer span.End()

	snap, err := r.coll().Where(field, store.OpEqual, value).Limit(1).Get(ctx)
	if err != nil {
		return nil, r.fail(span, "find_one", "", err)
	}
	if snap.Empty() {
		return nil, nil
	}
	return record(snap.Docs[0]), nil
}

// FindAll returns every record matching all filters by equality. Filters
// with a nil value are ignored; no filters returns the whole collection.
func (r *Repository) FindAll(ctx context.Context, filters map[string]any) ([]store.Data, error) {
	ctx, span := r.start(ctx, "find_all", attribute.Int("db.filters", len(filters)))
	defer span.End()

	var q store.Query = r.coll()
	for _, field := range sortedFields(filters) {
		if v := filters[field]; v != nil {
			q = q.Where(field, store.OpEqual, v)
		}
	}
	snap, err := q.Get(ctx)
	if err != nil {
		return nil, r.fail(span, "find_all", "", err)
	}
	return records(snap), nil
}

// Update merges data into the document, creating it when absent, and
// returns the record as stored afterwards.
func (r *Repository) Update(ctx context.Context, id string, data store.Data) (store.Data, error) {
	ctx, span := r.start(ctx, "update", attribute.String("db.document_id", id))
	defer span.End()

	ref := r.coll().Doc(id)
	if err := ref.Update(ctx, data); err != nil {
		return nil, r.fail(span, "update", id, err)
	}
	snap, err := ref.Get(ctx)
	if err != nil {
		return nil, r.fail(span, "update", id, err)
	}
	return record(snap), nil
}

// Delete removes the document. Deleting a missing document succeeds.
func (r *Repository) Delete(ctx context.Context, id string) error {
	ctx, span := r.start(ctx, "delete", attribute.String("db.document_id", id))
	defer span.End()

	if err := r.coll().Doc(id).Delete(ctx); err != nil {
		return r.fail(span, "delete", id, err)
	}
	return nil
}

// Search scans the collection for records whose string value at field
// contains term, ignoring case. Non-string values never match.
func (r *Repository) Search(ctx context.Context, field, term string) ([]store.Data, error) {
	ctx, span := r.start(ctx, "search", attribute.String("db.field", field))
	defer span.End()

	snap, err := r.coll().Get(ctx)
	if err != nil {
		return nil, r.fail(span, "search", "", err)
	}
	needle := strings.ToLower(term)
	out := []store.Data{}
	snap.ForEach(func(doc *store.DocumentSnapshot) {
		rec := record(doc)
		s, ok := rec[field].(string)
		if ok && strings.Contains(strings.ToLower(s), needle) {
			out = append(out, rec)
		}
	})
	span.SetAttributes(attribute.Int("db.matches", len(out)))
	return out, nil
}

// Count returns the number of documents in the collection.
func (r *Repository) Count(ctx context.Context) (int, error) {
	ctx, span := r.start(ctx, "count")
	defer span.End()

	snap, err := r.coll().Get(ctx)
	if err != nil {
		return 0, r.fail(span, "count", "", err)
	}
	return snap.Size(), nil
}

// CreateMany stores every item under a generated ID in one batch and
// returns the IDs in input order. Nothing is stored if the batch fails.
func (r *Repository) CreateMany(ctx context.Context, items []store.Data) ([]string, error) {
	ctx, span := r.start(ctx, "create_many", attribute.Int("db.items", len(items)))
	defer span.End()

	coll := r.coll()
	batch := r.store.Batch()
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = store.NewID()
		batch.Set(coll.Doc(ids[i]), item)
	}
	if err := batch.Commit(ctx); err != nil {
		return nil, r.fail(span, "create_many", "", err)
	}
	return ids, nil
}

// DeleteMany removes the given documents in one batch.
func (r *Repository) DeleteMany(ctx context.Context, ids []string) error {
	ctx, span := r.start(ctx, "delete_many", attribute.Int("db.items", len(ids)))
	defer span.End()

	coll := r.coll()
	batch := r.store.Batch()
	for _, id := range ids {
		batch.Delete(coll.Doc(id))
	}
	if err := batch.Commit(ctx); err != nil {
		return r.fail(span, "delete_many", "", err)
	}
	return nil
}

// Clear deletes every document of the collection in one batch and returns
// how many were removed.
func (r *Repository) Clear(ctx context.Context) (int, error) {
	ctx, span := r.start(ctx, "clear")
	defer span.End()

	coll := r.coll()
	snap, err := coll.Get(ctx)
	if err != nil {
		return 0, r.fail(span, "clear", "", err)
	}
	if snap.Empty() {
		return 0, nil
	}
	batch := r.store.Batch()
	snap.ForEach(func(doc *store.DocumentSnapshot) {
		batch.Delete(coll.Doc(doc.ID))
	})
	if err := batch.Commit(ctx); err != nil {
		return 0, r.fail(span, "clear", "", err)
	}
	return snap.Size(), nil
}
