// Package archive handles persistence for merge tombstones.
package archive

import (
	"context"
	"errors"
	"sort"

	"github.com/Gobusters/ectologger"

	"github.com/venuelink/rolodex/pkg/faults"
	"github.com/venuelink/rolodex/pkg/models"
	"github.com/venuelink/rolodex/pkg/store"
	"github.com/venuelink/rolodex/pkg/tracing"
)

// Repository reads merge tombstones. Writes happen inside merge batches, so
// there is no standalone create here.
type Repository struct {
	store  store.EntityStore
	logger ectologger.Logger
}

// NewRepository creates a new archive repository
func NewRepository(entityStore store.EntityStore, logger ectologger.Logger) *Repository {
	return &Repository{
		store:  entityStore,
		logger: logger,
	}
}

// Get retrieves an archive record by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.ArchiveRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "archive.Repository.Get")
	defer span.End()

	const op = "archive.Get"

	doc, err := r.store.Get(ctx, store.CollectionArchive, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, faults.NotFound(op, "archive", id)
	}
	if err != nil {
		return nil, faults.Wrap(op, "archive", id, err)
	}

	var record models.ArchiveRecord
	if err := store.Decode(doc, &record); err != nil {
		return nil, faults.Wrap(op, "archive", id, err)
	}
	return &record, nil
}

// FindByEntity returns the tombstone of a merged-away entity, or a not-found
// fault when the entity was never merged.
func (r *Repository) FindByEntity(ctx context.Context, entityID string) (*models.ArchiveRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "archive.Repository.FindByEntity")
	defer span.End()

	const op = "archive.FindByEntity"

	docs, err := r.store.List(ctx, store.CollectionArchive, store.Where("entityId", entityID))
	if err != nil {
		return nil, faults.Wrap(op, "archive", entityID, err)
	}
	if len(docs) == 0 {
		return nil, faults.NotFound(op, "archive", entityID)
	}

	var record models.ArchiveRecord
	if err := store.Decode(docs[0], &record); err != nil {
		return nil, faults.Wrap(op, "archive", entityID, err)
	}
	return &record, nil
}

// ListByCanonical lists tombstones pointing at a canonical entity, most
// recent first.
func (r *Repository) ListByCanonical(ctx context.Context, canonicalID string) ([]models.ArchiveRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "archive.Repository.ListByCanonical")
	defer span.End()

	const op = "archive.ListByCanonical"

	docs, err := r.store.List(ctx, store.CollectionArchive, store.Where("mergedInto", canonicalID))
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list archive records")
		return nil, faults.Wrap(op, "archive", canonicalID, err)
	}

	records, err := store.DecodeAll[models.ArchiveRecord](docs)
	if err != nil {
		return nil, faults.Wrap(op, "archive", canonicalID, err)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].ArchivedAt.After(records[j].ArchivedAt)
	})
	return records, nil
}
