// Package database picks the document store backing the application: a
// Firestore project when one is reachable, an in-memory store otherwise.
package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"

	"github.com/alimasry/elearning-docstore/config"
	"github.com/alimasry/elearning-docstore/model"
	"github.com/alimasry/elearning-docstore/store"
)

// ErrBackendUnavailable wraps every reason the Firestore backend could not
// be used. It is logged, never returned by Initialize.
var ErrBackendUnavailable = errors.New("firestore backend unavailable")

// State is the lifecycle of the store handle. It only moves forward.
type State int32

const (
	Uninitialized State = iota
	Initializing
	Ready
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	default:
		return "uninitialized"
	}
}

// Backend names the store implementation in use.
type Backend string

const (
	BackendNone      Backend = ""
	BackendFirestore Backend = "firestore"
	BackendMemory    Backend = "memory"
)

var newFirestoreClient = firestore.NewClient

// openBackend builds the persistent store. Tests replace it.
var openBackend = openFirestore

// openFirestore connects to the configured project and proves the
// connection with one bounded read.
func openFirestore(ctx context.Context, cfg config.FirestoreConfig) (store.Store, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("%w: no project id configured", ErrBackendUnavailable)
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := newFirestoreClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: new client: %w", ErrBackendUnavailable, err)
	}

	probeCtx, cancel := context.WithTimeout(ctx, cfg.ProbeTimeout)
	defer cancel()
	if _, err := client.Collection(model.Courses).Limit(1).Documents(probeCtx).GetAll(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: probe: %w", ErrBackendUnavailable, err)
	}
	return store.NewFirestoreStore(client), nil
}

// Selector creates the process store on first use and hands out the same
// handle afterwards.
type Selector struct {
	cfg config.Config
	log *slog.Logger

	mu      sync.Mutex
	db      store.Store
	backend Backend
	state   atomic.Int32
}

func NewSelector(cfg config.Config, log *slog.Logger) *Selector {
	return &Selector{cfg: cfg, log: log}
}

// Initialize builds a store. It tries Firestore first and falls back to a
// seeded MemoryStore on any failure, so it always returns a usable store.
func (s *Selector) Initialize(ctx context.Context) store.Store {
	st, _ := s.initialize(ctx)
	return st
}

func (s *Selector) initialize(ctx context.Context) (store.Store, Backend) {
	settings := store.Settings{IgnoreUndefinedProperties: s.cfg.Store.IgnoreUndefinedProperties}

	st, err := openBackend(ctx, s.cfg.Firestore)
	if err == nil {
		st.Settings(settings)
		s.log.Info("document store ready", "backend", BackendFirestore, "project_id", s.cfg.Firestore.ProjectID)
		return st, BackendFirestore
	}
	s.log.Warn("falling back to in-memory store", "error", err)

	mem := store.NewMemoryStore()
	mem.Settings(settings)
	if s.cfg.Store.Seed {
		set := DefaultSeed()
		if err := Seed(ctx, mem, set); err != nil {
			s.log.Error("seeding in-memory store failed", "error", err)
		} else {
			s.log.Info("seeded in-memory store", "documents", set.Count())
		}
	}
	s.log.Info("document store ready", "backend", BackendMemory)
	return mem, BackendMemory
}

// Database returns the process store, initializing it on the first call.
// Concurrent first callers wait for the same initialization.
func (s *Selector) Database(ctx context.Context) store.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db
	}

	s.state.Store(int32(Initializing))
	s.db, s.backend = s.initialize(ctx)
	s.state.Store(int32(Ready))
	return s.db
}

func (s *Selector) State() State {
	return State(s.state.Load())
}

// Backend reports which store Database returned, or BackendNone before
// the first call.
func (s *Selector) Backend() Backend {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend
}

// Close releases the memoized store, if any.
func (s *Selector) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
