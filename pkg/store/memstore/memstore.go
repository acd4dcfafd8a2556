// Package memstore provides an in-memory EntityStore used by tests and local
// development. Semantics mirror the hosted document database: equality
// filters, shallow partial updates, atomic batches with optional version
// preconditions.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/venuelink/rolodex/pkg/store"
)

// Store is a mutex-guarded in-memory document store.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]store.Document
	maxBatchOps int

	// FailNextBatch forces the next CommitBatch call to fail without
	// applying anything. Used by tests to exercise partial-batch paths.
	FailNextBatch error
}

// New creates an empty store with no batch size limit.
func New() *Store {
	return &Store{collections: make(map[string]map[string]store.Document)}
}

// NewWithBatchLimit creates a store whose atomic batches accept at most n ops.
func NewWithBatchLimit(n int) *Store {
	s := New()
	s.maxBatchOps = n
	return s
}

func (s *Store) MaxBatchOps() int {
	return s.maxBatchOps
}

// Ping always succeeds; the store lives in process memory.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) Get(ctx context.Context, collection, id string) (store.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clone(doc), nil
}

func (s *Store) List(ctx context.Context, collection string, filters ...store.Filter) ([]store.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.Document
	for _, doc := range s.collections[collection] {
		if matches(doc, filters) {
			out = append(out, clone(doc))
		}
	}
	return out, nil
}

func (s *Store) Query(ctx context.Context, collection string, predicate func(id string, doc store.Document) bool) ([]store.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.Document
	for id, doc := range s.collections[collection] {
		if predicate(id, clone(doc)) {
			out = append(out, clone(doc))
		}
	}
	return out, nil
}

func (s *Store) Create(ctx context.Context, collection, id string, doc store.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.create(collection, id, doc)
}

func (s *Store) Update(ctx context.Context, collection, id string, patch store.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.update(collection, id, patch, nil)
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delete(collection, id, nil)
}

// CommitBatch applies all operations or none. Preconditions (existence,
// expected versions) are checked before any mutation.
func (s *Store) CommitBatch(ctx context.Context, ops []store.Op) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailNextBatch != nil {
		err := s.FailNextBatch
		s.FailNextBatch = nil
		return err
	}
	if s.maxBatchOps > 0 && len(ops) > s.maxBatchOps {
		return fmt.Errorf("memstore: batch of %d ops exceeds limit %d", len(ops), s.maxBatchOps)
	}

	for _, op := range ops {
		switch op.Kind {
		case store.OpCreate:
			if _, exists := s.collections[op.Collection][op.ID]; exists {
				return fmt.Errorf("memstore: create %s/%s: already exists", op.Collection, op.ID)
			}
		case store.OpUpdate, store.OpDelete:
			doc, exists := s.collections[op.Collection][op.ID]
			if !exists {
				return store.ErrNotFound
			}
			if op.ExpectedVersion != nil && docVersion(doc) != *op.ExpectedVersion {
				return store.ErrVersionConflict
			}
		default:
			return fmt.Errorf("memstore: unknown op kind %q", op.Kind)
		}
	}

	for _, op := range ops {
		switch op.Kind {
		case store.OpCreate:
			if err := s.create(op.Collection, op.ID, op.Doc); err != nil {
				return err
			}
		case store.OpUpdate:
			if err := s.update(op.Collection, op.ID, op.Patch, op.ExpectedVersion); err != nil {
				return err
			}
		case store.OpDelete:
			if err := s.delete(op.Collection, op.ID, op.ExpectedVersion); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Store) create(collection, id string, doc store.Document) error {
	if s.collections[collection] == nil {
		s.collections[collection] = make(map[string]store.Document)
	}
	if _, exists := s.collections[collection][id]; exists {
		return fmt.Errorf("memstore: create %s/%s: already exists", collection, id)
	}
	s.collections[collection][id] = clone(doc)
	return nil
}

func (s *Store) update(collection, id string, patch store.Document, expected *int64) error {
	doc, ok := s.collections[collection][id]
	if !ok {
		return store.ErrNotFound
	}
	if expected != nil && docVersion(doc) != *expected {
		return store.ErrVersionConflict
	}
	for k, v := range patch {
		if v == nil {
			delete(doc, k)
			continue
		}
		doc[k] = v
	}
	return nil
}

func (s *Store) delete(collection, id string, expected *int64) error {
	doc, ok := s.collections[collection][id]
	if !ok {
		return store.ErrNotFound
	}
	if expected != nil && docVersion(doc) != *expected {
		return store.ErrVersionConflict
	}
	delete(s.collections[collection], id)
	return nil
}

func docVersion(doc store.Document) int64 {
	switch v := doc["version"].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

func matches(doc store.Document, filters []store.Filter) bool {
	for _, f := range filters {
		if !equalValue(doc[f.Field], f.Value) {
			return false
		}
	}
	return true
}

// equalValue compares loosely across the numeric representations produced by
// the JSON round-trip codec.
func equalValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
		return false
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func clone(doc store.Document) store.Document {
	out := make(store.Document, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return map[string]any(clone(val))
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
