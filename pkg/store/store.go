// Package store defines the narrow document-repository interface the contact
// services are written against. The hosted document database behind it has no
// foreign keys or uniqueness constraints; every relational guarantee is
// emulated above this interface.
package store

import (
	"context"
	"encoding/json"
	"errors"
)

// Collection names used by the engine.
const (
	CollectionStructures      = "structures"
	CollectionPersons         = "persons"
	CollectionLiaisons        = "liaisons"
	CollectionDuplicateGroups = "duplicate_groups"
	CollectionArchive         = "archive"
)

var (
	// ErrNotFound is returned by Get when the document does not exist.
	ErrNotFound = errors.New("store: document not found")
	// ErrVersionConflict is returned when a conditional write observes a
	// version other than the expected one.
	ErrVersionConflict = errors.New("store: version conflict")
)

// Document is the raw shape documents travel in.
type Document map[string]any

// Filter is a field equality predicate pushed down to the store.
type Filter struct {
	Field string
	Value any
}

// Where builds an equality filter.
func Where(field string, value any) Filter {
	return Filter{Field: field, Value: value}
}

// OpKind discriminates batch operations.
type OpKind string

const (
	OpCreate OpKind = "create"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
)

// Op is one operation inside an atomic batch. Update ops apply Patch as a
// partial document. ExpectedVersion, when set on update or delete, makes the
// operation conditional and fails the whole batch with ErrVersionConflict on
// mismatch.
type Op struct {
	Kind            OpKind
	Collection      string
	ID              string
	Doc             Document
	Patch           Document
	ExpectedVersion *int64
}

// EntityStore is the abstract document repository. Timestamps are stored in a
// store-native format and surface as RFC 3339 strings in documents; the codec
// converts them to time.Time at the model boundary.
type EntityStore interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	List(ctx context.Context, collection string, filters ...Filter) ([]Document, error)
	Query(ctx context.Context, collection string, predicate func(id string, doc Document) bool) ([]Document, error)
	Create(ctx context.Context, collection, id string, doc Document) error
	Update(ctx context.Context, collection, id string, patch Document) error
	Delete(ctx context.Context, collection, id string) error
	CommitBatch(ctx context.Context, ops []Op) error

	// MaxBatchOps returns the store's atomic batch size limit, or 0 when
	// unbounded. Callers split oversized work into sequential sub-batches.
	MaxBatchOps() int
}

// Encode converts a model into its document shape via JSON round-trip.
func Encode(v any) (Document, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Decode converts a document back into a typed model.
func Decode(doc Document, out any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// DecodeAll converts a document slice into a typed slice.
func DecodeAll[T any](docs []Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		var item T
		if err := Decode(doc, &item); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}
