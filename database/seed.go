package database

import (
	"context"
	_ "embed"
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/alimasry/elearning-docstore/model"
	"github.com/alimasry/elearning-docstore/store"
)

//go:embed seed.yaml
var seedYAML []byte

// SeedSet maps a collection name to its records. Each record carries its
// document ID under "id".
type SeedSet map[string][]map[string]any

// ParseSeed decodes a YAML seed document.
func ParseSeed(raw []byte) (SeedSet, error) {
	var set SeedSet
	if err := yaml.Unmarshal(raw, &set); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	for coll, recs := range set {
		for i, rec := range recs {
			if id, _ := rec["id"].(string); id == "" {
				return nil, fmt.Errorf("parse seed: %s[%d]: missing id", coll, i)
			}
		}
	}
	return set, nil
}

// DefaultSeed returns the embedded sample data set.
func DefaultSeed() SeedSet {
	set, err := ParseSeed(seedYAML)
	if err != nil {
		panic(err)
	}
	return set
}

// Count returns the number of records in the set.
func (s SeedSet) Count() int {
	n := 0
	for _, recs := range s {
		n += len(recs)
	}
	return n
}

// collections returns the domain collections present in the set, followed
// by any other collections sorted by name.
func (s SeedSet) collections() []string {
	out := make([]string, 0, len(s))
	for _, c := range model.Collections() {
		if _, ok := s[c]; ok {
			out = append(out, c)
		}
	}
	var extra []string
	for c := range s {
		if !model.IsCollection(c) {
			extra = append(extra, c)
		}
	}
	slices.Sort(extra)
	return append(out, extra...)
}

// Seed writes set into st through a single batch.
func Seed(ctx context.Context, st store.Store, set SeedSet) error {
	batch := st.Batch()
	for _, name := range set.collections() {
		coll := st.Collection(name)
		for _, rec := range set[name] {
			data := make(store.Data, len(rec))
			for k, v := range rec {
				if k != "id" {
					data[k] = v
				}
			}
			batch.Set(coll.Doc(rec["id"].(string)), data)
		}
	}
	if err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	return nil
}
