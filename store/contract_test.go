package store

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

var collectionSeq atomic.Int64

// uniqueCollection returns a collection name private to one test so that
// suites can share a backend.
func uniqueCollection(t *testing.T) string {
	t.Helper()
	return fmt.Sprintf("test-%d-%d", time.Now().UnixNano(), collectionSeq.Add(1))
}

func mustSet(t *testing.T, c Collection, id string, data Data, opts ...SetOption) {
	t.Helper()
	if err := c.Doc(id).Set(context.Background(), data, opts...); err != nil {
		t.Fatalf("set %s: %v", id, err)
	}
}

func mustGet(t *testing.T, c Collection, id string) *DocumentSnapshot {
	t.Helper()
	snap, err := c.Doc(id).Get(context.Background())
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	return snap
}

func docIDs(snap *QuerySnapshot) []string {
	ids := make([]string, 0, snap.Size())
	snap.ForEach(func(d *DocumentSnapshot) {
		ids = append(ids, d.ID)
	})
	return ids
}

func equalIDs(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

// runStoreContract runs the behavior every Store implementation must share.
func runStoreContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		c := s.Collection(uniqueCollection(t))
		mustSet(t, c, "doc1", Data{"a": 1})

		snap := mustGet(t, c, "doc1")
		if !snap.Exists {
			t.Fatal("expected document to exist")
		}
		data := snap.Data()
		if n, _ := toNumber(data["a"]); n != 1 {
			t.Errorf("a = %v, want 1", data["a"])
		}
		if data[FieldCreatedAt] == nil || data[FieldUpdatedAt] == nil {
			t.Errorf("timestamps not stamped: %+v", data)
		}
	})

	t.Run("get missing", func(t *testing.T) {
		c := s.Collection(uniqueCollection(t))
		snap := mustGet(t, c, "nope")
		if snap.Exists {
			t.Error("expected exists=false")
		}
		if snap.Data() != nil {
			t.Errorf("expected nil data, got %v", snap.Data())
		}
		if snap.ID != "nope" {
			t.Errorf("ID = %q", snap.ID)
		}
	})

	t.Run("merge vs replace", func(t *testing.T) {
		c := s.Collection(uniqueCollection(t))
		mustSet(t, c, "doc1", Data{"a": 1})
		mustSet(t, c, "doc1", Data{"b": 2}, MergeAll)

		data := mustGet(t, c, "doc1").Data()
		if _, ok := data["a"]; !ok {
			t.Errorf("merge lost field a: %v", data)
		}
		if _, ok := data["b"]; !ok {
			t.Errorf("merge did not add field b: %v", data)
		}

		mustSet(t, c, "doc1", Data{"c": 3})
		data = mustGet(t, c, "doc1").Data()
		if _, ok := data["a"]; ok {
			t.Errorf("replace kept field a: %v", data)
		}
		if _, ok := data["b"]; ok {
			t.Errorf("replace kept field b: %v", data)
		}
		if _, ok := data["c"]; !ok {
			t.Errorf("replace missing field c: %v", data)
		}
	})

	t.Run("createdAt survives writes", func(t *testing.T) {
		c := s.Collection(uniqueCollection(t))
		mustSet(t, c, "doc1", Data{"a": 1})
		created := mustGet(t, c, "doc1").Data()[FieldCreatedAt]

		mustSet(t, c, "doc1", Data{"a": 2})
		if err := c.Doc("doc1").Update(ctx, Data{"b": 1}); err != nil {
			t.Fatal(err)
		}
		got := mustGet(t, c, "doc1").Data()[FieldCreatedAt]
		if compareValues(got, created) != 0 {
			t.Errorf("createdAt changed from %v to %v", created, got)
		}
	})

	t.Run("update upserts", func(t *testing.T) {
		c := s.Collection(uniqueCollection(t))
		if err := c.Doc("fresh").Update(ctx, Data{"title": "x"}); err != nil {
			t.Fatalf("update on missing doc: %v", err)
		}
		snap := mustGet(t, c, "fresh")
		if !snap.Exists || snap.Data()["title"] != "x" {
			t.Errorf("unexpected snapshot: exists=%v data=%v", snap.Exists, snap.Data())
		}
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		c := s.Collection(uniqueCollection(t))
		mustSet(t, c, "keep", Data{"a": 1})
		if err := c.Doc("missing").Delete(ctx); err != nil {
			t.Fatalf("delete missing: %v", err)
		}
		all, err := c.Get(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if all.Size() != 1 {
			t.Errorf("collection size = %d, want 1", all.Size())
		}

		if err := c.Doc("keep").Delete(ctx); err != nil {
			t.Fatal(err)
		}
		if mustGet(t, c, "keep").Exists {
			t.Error("document still exists after delete")
		}
	})

	t.Run("add generates distinct ids", func(t *testing.T) {
		c := s.Collection(uniqueCollection(t))
		seen := make(map[string]bool)
		for i := 0; i < 20; i++ {
			ref, err := c.Add(ctx, Data{"i": i})
			if err != nil {
				t.Fatal(err)
			}
			if seen[ref.ID()] {
				t.Fatalf("duplicate id %s", ref.ID())
			}
			seen[ref.ID()] = true
		}
	})

	t.Run("equality filter", func(t *testing.T) {
		c := s.Collection(uniqueCollection(t))
		mustSet(t, c, "a", Data{"status": "active"})
		mustSet(t, c, "b", Data{"status": "active"})
		mustSet(t, c, "c", Data{"status": "inactive"})

		snap, err := c.Where("status", OpEqual, "active").Get(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if got := docIDs(snap); !equalIDs(got, []string{"a", "b"}) {
			t.Errorf("got %v, want [a b]", got)
		}
	})

	t.Run("ordering", func(t *testing.T) {
		c := s.Collection(uniqueCollection(t))
		mustSet(t, c, "x", Data{"n": 3})
		mustSet(t, c, "y", Data{"n": 1})
		mustSet(t, c, "z", Data{"n": 2})

		asc, err := c.OrderBy("n", Asc).Get(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if got := docIDs(asc); !equalIDs(got, []string{"y", "z", "x"}) {
			t.Errorf("asc = %v, want [y z x]", got)
		}

		desc, err := c.OrderBy("n", Desc).Get(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if got := docIDs(desc); !equalIDs(got, []string{"x", "z", "y"}) {
			t.Errorf("desc = %v, want [x z y]", got)
		}
	})

	t.Run("limit and offset", func(t *testing.T) {
		c := s.Collection(uniqueCollection(t))
		for i := 1; i <= 5; i++ {
			mustSet(t, c, fmt.Sprintf("d%d", i), Data{"n": i})
		}
		snap, err := c.OrderBy("n", Asc).Offset(1).Limit(2).Get(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if got := docIDs(snap); !equalIDs(got, []string{"d2", "d3"}) {
			t.Errorf("got %v, want [d2 d3]", got)
		}
	})

	t.Run("range and array filters", func(t *testing.T) {
		c := s.Collection(uniqueCollection(t))
		mustSet(t, c, "a", Data{"price": 10, "tags": []any{"go", "db"}})
		mustSet(t, c, "b", Data{"price": 20, "tags": []any{"web"}})
		mustSet(t, c, "c", Data{"price": 30, "tags": []any{"go"}})

		snap, err := c.Where("price", OpGreaterOrEqual, 20).Where("price", OpLess, 30).Get(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if got := docIDs(snap); !equalIDs(got, []string{"b"}) {
			t.Errorf("range got %v, want [b]", got)
		}

		snap, err = c.Where("tags", OpArrayContains, "go").Get(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if got := docIDs(snap); !equalIDs(got, []string{"a", "c"}) {
			t.Errorf("array-contains got %v, want [a c]", got)
		}

		snap, err = c.Where("price", OpNotEqual, 20).Get(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if got := docIDs(snap); !equalIDs(got, []string{"a", "c"}) {
			t.Errorf("!= got %v, want [a c]", got)
		}
	})

	t.Run("batch commit", func(t *testing.T) {
		c := s.Collection(uniqueCollection(t))
		mustSet(t, c, "a", Data{"v": 1})
		mustSet(t, c, "b", Data{"v": 2})

		b := s.Batch()
		b.Delete(c.Doc("a")).Delete(c.Doc("b")).Set(c.Doc("c"), Data{"v": 3})
		if err := b.Commit(ctx); err != nil {
			t.Fatal(err)
		}
		if mustGet(t, c, "a").Exists || mustGet(t, c, "b").Exists {
			t.Error("batch deletes not applied")
		}
		if !mustGet(t, c, "c").Exists {
			t.Error("batch set not applied")
		}

		if err := b.Commit(ctx); !errors.Is(err, ErrBatchCommitted) {
			t.Errorf("second commit err = %v, want ErrBatchCommitted", err)
		}
	})

	t.Run("batch set copies data", func(t *testing.T) {
		c := s.Collection(uniqueCollection(t))
		data := Data{"v": "queued", "meta": map[string]any{"tag": "queued"}}

		b := s.Batch().Set(c.Doc("a"), data)
		data["v"] = "changed"
		data["meta"].(map[string]any)["tag"] = "changed"
		if err := b.Commit(ctx); err != nil {
			t.Fatal(err)
		}

		got := mustGet(t, c, "a").Data()
		if got["v"] != "queued" {
			t.Errorf("v = %v, want queued", got["v"])
		}
		if meta, _ := got["meta"].(map[string]any); meta["tag"] != "queued" {
			t.Errorf("meta.tag = %v, want queued", meta["tag"])
		}
	})

	t.Run("undefined values", func(t *testing.T) {
		c := s.Collection(uniqueCollection(t))

		s.Settings(Settings{IgnoreUndefinedProperties: false})
		err := c.Doc("d").Set(ctx, Data{"a": 1, "b": nil})
		if !errors.Is(err, ErrUndefinedValue) {
			t.Fatalf("err = %v, want ErrUndefinedValue", err)
		}
		if mustGet(t, c, "d").Exists {
			t.Error("failed write created a document")
		}

		s.Settings(Settings{IgnoreUndefinedProperties: true})
		defer s.Settings(Settings{})
		if err := c.Doc("d").Set(ctx, Data{"a": 1, "b": nil}); err != nil {
			t.Fatal(err)
		}
		data := mustGet(t, c, "d").Data()
		if _, ok := data["b"]; ok {
			t.Errorf("undefined field was stored: %v", data)
		}
	})
}
