package server

import (
	"sync"

	"github.com/alimasry/elearning-docstore/model"
	"github.com/alimasry/elearning-docstore/repository"
	"github.com/alimasry/elearning-docstore/store"
)

// Registry routes API resources to their repositories. Repositories are
// created on first use and shared afterwards.
type Registry struct {
	store store.Store
	repos map[string]*repository.Repository
	mu    sync.RWMutex
}

func NewRegistry(st store.Store) *Registry {
	return &Registry{
		store: st,
		repos: make(map[string]*repository.Repository),
	}
}

// Repository returns the repository for a domain collection. The second
// result is false for names outside the domain.
func (r *Registry) Repository(collection string) (*repository.Repository, bool) {
	if !model.IsCollection(collection) {
		return nil, false
	}

	r.mu.RLock()
	repo, ok := r.repos[collection]
	r.mu.RUnlock()
	if ok {
		return repo, true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if repo, ok := r.repos[collection]; ok {
		return repo, true
	}
	repo = repository.New(r.store, collection)
	r.repos[collection] = repo
	return repo, true
}

// Len reports how many repositories have been created.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.repos)
}
