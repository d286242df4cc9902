package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/alimasry/elearning-docstore/store"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	return New(store.NewMemoryStore(), "courses")
}

func seedNumbered(t *testing.T, r *Repository, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		_, err := r.Create(context.Background(), store.Data{"n": i, "title": fmt.Sprintf("Course %02d", i)})
		require.NoError(t, err)
	}
}

func TestCreate_ReturnsStoredRecord(t *testing.T) {
	r := newTestRepo(t)

	rec, err := r.Create(context.Background(), store.Data{"title": "Intro to Go"})
	require.NoError(t, err)

	id, ok := rec[FieldID].(string)
	require.True(t, ok, "record should carry its id")
	assert.NotEmpty(t, id)
	assert.Equal(t, "Intro to Go", rec["title"])
	assert.Contains(t, rec, store.FieldCreatedAt)
	assert.Contains(t, rec, store.FieldUpdatedAt)

	found, err := r.FindByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, rec, found)
}

func TestCreateWithID(t *testing.T) {
	r := newTestRepo(t)

	rec, err := r.CreateWithID(context.Background(), "go-101", store.Data{"title": "Go"})
	require.NoError(t, err)
	assert.Equal(t, "go-101", rec[FieldID])
}

func TestFindByID_Missing(t *testing.T) {
	r := newTestRepo(t)

	rec, err := r.FindByID(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestFindByID_InvalidID(t *testing.T) {
	r := newTestRepo(t)

	_, err := r.FindByID(context.Background(), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrInvalidArgument))

	var opErr *store.OperationError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, "repository.find_by_id", opErr.Op)
	assert.Equal(t, "courses", opErr.Collection)
}

func TestFindOne(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	_, err := r.CreateWithID(ctx, "a", store.Data{"email": "ann@example.com"})
	require.NoError(t, err)
	_, err = r.CreateWithID(ctx, "b", store.Data{"email": "bob@example.com"})
	require.NoError(t, err)

	rec, err := r.FindOne(ctx, "email", "bob@example.com")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "b", rec[FieldID])

	rec, err = r.FindOne(ctx, "email", "eve@example.com")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestFindAll_Filters(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	for id, data := range map[string]store.Data{
		"a": {"level": "beginner", "published": true},
		"b": {"level": "beginner", "published": false},
		"c": {"level": "advanced", "published": true},
	} {
		_, err := r.CreateWithID(ctx, id, data)
		require.NoError(t, err)
	}

	all, err := r.FindAll(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	got, err := r.FindAll(ctx, map[string]any{"level": "beginner", "published": true})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0][FieldID])

	got, err = r.FindAll(ctx, map[string]any{"level": "beginner", "published": nil})
	require.NoError(t, err)
	assert.Len(t, got, 2, "nil filter values are ignored")
}

func TestFindAll_EqualityFilterKeepsInsertionOrder(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		status := "active"
		if id == "c" {
			status = "inactive"
		}
		_, err := r.CreateWithID(ctx, id, store.Data{"status": status})
		require.NoError(t, err)
	}

	got, err := r.FindAll(ctx, map[string]any{"status": "active"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0][FieldID])
	assert.Equal(t, "b", got[1][FieldID])
}

func TestUpdate_MergesAndUpserts(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	created, err := r.CreateWithID(ctx, "c1", store.Data{"title": "Go", "level": "beginner"})
	require.NoError(t, err)

	updated, err := r.Update(ctx, "c1", store.Data{"level": "advanced"})
	require.NoError(t, err)
	assert.Equal(t, "Go", updated["title"])
	assert.Equal(t, "advanced", updated["level"])
	assert.Equal(t, created[store.FieldCreatedAt], updated[store.FieldCreatedAt])

	upserted, err := r.Update(ctx, "fresh", store.Data{"title": "New"})
	require.NoError(t, err)
	assert.Equal(t, "fresh", upserted[FieldID])
	assert.Equal(t, "New", upserted["title"])
}

func TestDelete_Idempotent(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	_, err := r.CreateWithID(ctx, "c1", store.Data{"title": "Go"})
	require.NoError(t, err)

	require.NoError(t, r.Delete(ctx, "c1"))
	require.NoError(t, r.Delete(ctx, "c1"))

	rec, err := r.FindByID(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestSearch_CaseInsensitiveSubstring(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	for id, title := range map[string]any{
		"a": "Intro to GOLANG",
		"b": "Advanced Go",
		"c": "Rust basics",
		"d": 42,
	} {
		_, err := r.CreateWithID(ctx, id, store.Data{"title": title})
		require.NoError(t, err)
	}

	got, err := r.Search(ctx, "title", "go")
	require.NoError(t, err)
	ids := make([]any, 0, len(got))
	for _, rec := range got {
		ids = append(ids, rec[FieldID])
	}
	assert.ElementsMatch(t, []any{"a", "b"}, ids)

	none, err := r.Search(ctx, "title", "python")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestPaginate_ThirdPageOfTwentyFive(t *testing.T) {
	r := newTestRepo(t)
	seedNumbered(t, r, 25)

	page, err := r.Paginate(context.Background(), PageRequest{Page: 3, Limit: 10, OrderBy: "n", Direction: "asc"})
	require.NoError(t, err)

	require.Len(t, page.Data, 5)
	assert.EqualValues(t, 21, page.Data[0]["n"])
	assert.EqualValues(t, 25, page.Data[4]["n"])
	assert.Equal(t, Pagination{
		Page:       3,
		Limit:      10,
		Total:      25,
		TotalPages: 3,
		HasNext:    false,
		HasPrev:    true,
	}, page.Pagination)
}

func TestPaginate_Defaults(t *testing.T) {
	r := newTestRepo(t)
	seedNumbered(t, r, 12)

	page, err := r.Paginate(context.Background(), PageRequest{})
	require.NoError(t, err)

	assert.Len(t, page.Data, 10)
	assert.Equal(t, Pagination{Page: 1, Limit: 10, Total: 12, TotalPages: 2, HasNext: true, HasPrev: false}, page.Pagination)
}

func TestPaginate_Descending(t *testing.T) {
	r := newTestRepo(t)
	seedNumbered(t, r, 5)

	page, err := r.Paginate(context.Background(), PageRequest{Page: 1, Limit: 2, OrderBy: "n", Direction: "desc"})
	require.NoError(t, err)
	require.Len(t, page.Data, 2)
	assert.EqualValues(t, 5, page.Data[0]["n"])
	assert.EqualValues(t, 4, page.Data[1]["n"])
}

func TestPaginate_PastTheEnd(t *testing.T) {
	r := newTestRepo(t)
	seedNumbered(t, r, 3)

	page, err := r.Paginate(context.Background(), PageRequest{Page: 5, Limit: 10})
	require.NoError(t, err)
	assert.NotNil(t, page.Data)
	assert.Empty(t, page.Data)
	assert.Equal(t, 1, page.Pagination.TotalPages)
	assert.False(t, page.Pagination.HasNext)
	assert.True(t, page.Pagination.HasPrev)
}

func TestPaginate_HugePageIsEmpty(t *testing.T) {
	r := newTestRepo(t)
	seedNumbered(t, r, 25)

	for _, page := range []int{math.MaxInt/10 + 2, math.MaxInt} {
		got, err := r.Paginate(context.Background(), PageRequest{Page: page, Limit: 10, OrderBy: "n", Direction: "asc"})
		require.NoError(t, err)
		assert.NotNil(t, got.Data)
		assert.Empty(t, got.Data, "page %d", page)
		assert.Equal(t, Pagination{Page: page, Limit: 10, Total: 25, TotalPages: 3, HasNext: false, HasPrev: true}, got.Pagination)
	}
}

func TestPaginate_EmptyCollection(t *testing.T) {
	r := newTestRepo(t)

	page, err := r.Paginate(context.Background(), PageRequest{})
	require.NoError(t, err)
	assert.Empty(t, page.Data)
	assert.Equal(t, Pagination{Page: 1, Limit: 10}, page.Pagination)
}

func TestBulkOperations(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	ids, err := r.CreateMany(ctx, []store.Data{{"n": 1}, {"n": 2}, {"n": 3}})
	require.NoError(t, err)
	require.Len(t, ids, 3)

	count, err := r.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	require.NoError(t, r.DeleteMany(ctx, ids[:2]))
	count, err = r.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	removed, err := r.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	removed, err = r.Clear(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestCreateMany_FailureStoresNothing(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	_, err := r.CreateMany(ctx, []store.Data{{"n": 1}, {"n": nil}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrUndefinedValue))

	count, err := r.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestOperationsEmitSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	r := New(store.NewMemoryStore(), "users")
	ctx := context.Background()
	_, err := r.Create(ctx, store.Data{"name": "Ann"})
	require.NoError(t, err)
	_, err = r.FindByID(ctx, "")
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "repository.create", spans[0].Name())
	assert.Equal(t, "repository.find_by_id", spans[1].Name())
	assert.Equal(t, "Error", spans[1].Status().Code.String())
}
