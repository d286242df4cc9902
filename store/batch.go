package store

import (
	"context"
	"fmt"
)

type batchKind int

const (
	batchSet batchKind = iota
	batchDelete
)

type batchOp struct {
	kind  batchKind
	ref   DocumentRef
	data  Data
	merge bool
}

// memBatch buffers writes against a MemoryStore.
type memBatch struct {
	store     *MemoryStore
	ops       []batchOp
	committed bool
}

func (b *memBatch) Set(ref DocumentRef, data Data, opts ...SetOption) WriteBatch {
	b.ops = append(b.ops, batchOp{kind: batchSet, ref: ref, data: cloneData(data), merge: isMerge(opts)})
	return b
}

func (b *memBatch) Delete(ref DocumentRef) WriteBatch {
	b.ops = append(b.ops, batchOp{kind: batchDelete, ref: ref})
	return b
}

// Commit applies the buffered writes in order while holding the store's
// write lock. Every op is validated first; if any fails nothing is applied.
func (b *memBatch) Commit(ctx context.Context) error {
	if b.committed {
		return opError("batch.commit", "", "", ErrBatchCommitted)
	}
	if err := ctx.Err(); err != nil {
		return opError("batch.commit", "", "", err)
	}

	refs := make([]*memDocRef, len(b.ops))
	for i, op := range b.ops {
		r, ok := op.ref.(*memDocRef)
		if !ok || r.store != b.store {
			return opError("batch.commit", "", "", fmt.Errorf("op %d: ref from another store: %w", i, ErrInvalidArgument))
		}
		if err := validateRef(r.collection, r.id); err != nil {
			return opError("batch.commit", r.collection, r.id, err)
		}
		refs[i] = r
	}

	b.store.mu.Lock()
	defer b.store.mu.Unlock()

	cleaned := make([]Data, len(b.ops))
	for i, op := range b.ops {
		if op.kind != batchSet {
			continue
		}
		clean, err := sanitize(op.data, b.store.settings.IgnoreUndefinedProperties)
		if err != nil {
			return opError("batch.commit", refs[i].collection, refs[i].id, err)
		}
		cleaned[i] = clean
	}

	for i, op := range b.ops {
		r := refs[i]
		switch op.kind {
		case batchSet:
			b.store.writeLocked(r.collection, r.id, cleaned[i], op.merge)
		case batchDelete:
			b.store.deleteLocked(r.collection, r.id)
		}
	}
	b.committed = true
	return nil
}
