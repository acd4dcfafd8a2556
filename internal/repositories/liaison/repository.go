// Package liaison handles persistence for structure/person associations.
package liaison

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/venuelink/rolodex/pkg/faults"
	"github.com/venuelink/rolodex/pkg/models"
	"github.com/venuelink/rolodex/pkg/store"
	"github.com/venuelink/rolodex/pkg/tracing"
)

// Repository handles liaison persistence
type Repository struct {
	store  store.EntityStore
	logger ectologger.Logger
}

// NewRepository creates a new liaison repository
func NewRepository(entityStore store.EntityStore, logger ectologger.Logger) *Repository {
	return &Repository{
		store:  entityStore,
		logger: logger,
	}
}

// Create persists a new liaison record. Pair uniqueness is the manager's
// responsibility; this is a raw write.
func (r *Repository) Create(ctx context.Context, liaison *models.Liaison) (*models.Liaison, error) {
	ctx, span := tracing.StartSpan(ctx, "liaison.Repository.Create")
	defer span.End()

	const op = "liaison.Create"

	if liaison.ID == "" {
		liaison.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	liaison.Version = 1
	liaison.CreatedAt = now
	liaison.UpdatedAt = now
	if liaison.StartDate.IsZero() {
		liaison.StartDate = now
	}

	doc, err := store.Encode(liaison)
	if err != nil {
		return nil, faults.Wrap(op, "liaison", liaison.ID, err)
	}
	if err := r.store.Create(ctx, store.CollectionLiaisons, liaison.ID, doc); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("liaison_id", liaison.ID).Error("Failed to create liaison")
		return nil, faults.Wrap(op, "liaison", liaison.ID, err)
	}

	return liaison, nil
}

// Get retrieves a liaison by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.Liaison, error) {
	ctx, span := tracing.StartSpan(ctx, "liaison.Repository.Get")
	defer span.End()

	const op = "liaison.Get"

	doc, err := r.store.Get(ctx, store.CollectionLiaisons, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, faults.NotFound(op, "liaison", id)
	}
	if err != nil {
		return nil, faults.Wrap(op, "liaison", id, err)
	}

	var liaison models.Liaison
	if err := store.Decode(doc, &liaison); err != nil {
		return nil, faults.Wrap(op, "liaison", id, err)
	}
	return &liaison, nil
}

// Update applies a partial patch with optimistic concurrency.
func (r *Repository) Update(ctx context.Context, id string, patch store.Document, userID string) (*models.Liaison, error) {
	ctx, span := tracing.StartSpan(ctx, "liaison.Repository.Update")
	defer span.End()

	const op = "liaison.Update"

	current, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	expected := current.Version
	patch["version"] = expected + 1
	patch["updatedAt"] = time.Now().UTC().Format(time.RFC3339Nano)
	patch["updatedBy"] = userID

	err = r.store.CommitBatch(ctx, []store.Op{{
		Kind:            store.OpUpdate,
		Collection:      store.CollectionLiaisons,
		ID:              id,
		Patch:           patch,
		ExpectedVersion: &expected,
	}})
	if errors.Is(err, store.ErrVersionConflict) {
		return nil, faults.Conflict(op, "liaison", id)
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, faults.NotFound(op, "liaison", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("liaison_id", id).Error("Failed to update liaison")
		return nil, faults.Wrap(op, "liaison", id, err)
	}

	return r.Get(ctx, id)
}

// FindByPair returns the liaison for an (organization, structure, person)
// triple regardless of its active state, or a not-found fault.
func (r *Repository) FindByPair(ctx context.Context, organizationID, structureID, personID string) (*models.Liaison, error) {
	ctx, span := tracing.StartSpan(ctx, "liaison.Repository.FindByPair")
	defer span.End()

	const op = "liaison.FindByPair"

	docs, err := r.store.List(ctx, store.CollectionLiaisons,
		store.Where("organizationId", organizationID),
		store.Where("structureId", structureID),
		store.Where("personId", personID),
	)
	if err != nil {
		return nil, faults.Wrap(op, "liaison", "", err)
	}
	if len(docs) == 0 {
		return nil, faults.NotFound(op, "liaison", structureID+"/"+personID)
	}

	var liaison models.Liaison
	if err := store.Decode(docs[0], &liaison); err != nil {
		return nil, faults.Wrap(op, "liaison", "", err)
	}
	return &liaison, nil
}

// ListByStructure lists liaisons of a structure, prioritary first then by
// function.
func (r *Repository) ListByStructure(ctx context.Context, structureID string, includeInactive bool) ([]models.Liaison, error) {
	ctx, span := tracing.StartSpan(ctx, "liaison.Repository.ListByStructure")
	defer span.End()

	const op = "liaison.ListByStructure"

	filters := []store.Filter{store.Where("structureId", structureID)}
	if !includeInactive {
		filters = append(filters, store.Where("active", true))
	}

	docs, err := r.store.List(ctx, store.CollectionLiaisons, filters...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list liaisons by structure")
		return nil, faults.Wrap(op, "liaison", "", err)
	}

	liaisons, err := store.DecodeAll[models.Liaison](docs)
	if err != nil {
		return nil, faults.Wrap(op, "liaison", "", err)
	}

	sort.SliceStable(liaisons, func(i, j int) bool {
		if liaisons[i].Prioritary != liaisons[j].Prioritary {
			return liaisons[i].Prioritary
		}
		return liaisons[i].Function < liaisons[j].Function
	})
	return liaisons, nil
}

// ListByPerson lists liaisons of a person, most recent start date first.
func (r *Repository) ListByPerson(ctx context.Context, personID string, includeInactive bool) ([]models.Liaison, error) {
	ctx, span := tracing.StartSpan(ctx, "liaison.Repository.ListByPerson")
	defer span.End()

	const op = "liaison.ListByPerson"

	filters := []store.Filter{store.Where("personId", personID)}
	if !includeInactive {
		filters = append(filters, store.Where("active", true))
	}

	docs, err := r.store.List(ctx, store.CollectionLiaisons, filters...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list liaisons by person")
		return nil, faults.Wrap(op, "liaison", "", err)
	}

	liaisons, err := store.DecodeAll[models.Liaison](docs)
	if err != nil {
		return nil, faults.Wrap(op, "liaison", "", err)
	}

	sort.SliceStable(liaisons, func(i, j int) bool {
		return liaisons[i].StartDate.After(liaisons[j].StartDate)
	})
	return liaisons, nil
}

// ListPrioritary lists a structure's prioritary liaisons regardless of
// active state. The invariant allows at most one, but drift is possible and
// callers flip the extras off.
func (r *Repository) ListPrioritary(ctx context.Context, organizationID, structureID string) ([]models.Liaison, error) {
	ctx, span := tracing.StartSpan(ctx, "liaison.Repository.ListPrioritary")
	defer span.End()

	const op = "liaison.ListPrioritary"

	docs, err := r.store.List(ctx, store.CollectionLiaisons,
		store.Where("organizationId", organizationID),
		store.Where("structureId", structureID),
		store.Where("prioritary", true),
	)
	if err != nil {
		return nil, faults.Wrap(op, "liaison", "", err)
	}

	liaisons, err := store.DecodeAll[models.Liaison](docs)
	if err != nil {
		return nil, faults.Wrap(op, "liaison", "", err)
	}
	return liaisons, nil
}

// ActiveFilters narrows ListActiveByOrganization.
type ActiveFilters struct {
	Prioritary *bool
	Interested *bool
	Function   string
}

// ListActiveByOrganization lists the active liaisons of an organization with
// optional filters.
func (r *Repository) ListActiveByOrganization(ctx context.Context, organizationID string, f ActiveFilters) ([]models.Liaison, error) {
	ctx, span := tracing.StartSpan(ctx, "liaison.Repository.ListActiveByOrganization")
	defer span.End()

	const op = "liaison.ListActiveByOrganization"

	filters := []store.Filter{
		store.Where("organizationId", organizationID),
		store.Where("active", true),
	}
	if f.Prioritary != nil {
		filters = append(filters, store.Where("prioritary", *f.Prioritary))
	}
	if f.Interested != nil {
		filters = append(filters, store.Where("interested", *f.Interested))
	}
	if f.Function != "" {
		filters = append(filters, store.Where("function", f.Function))
	}

	docs, err := r.store.List(ctx, store.CollectionLiaisons, filters...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list active liaisons")
		return nil, faults.Wrap(op, "liaison", "", err)
	}

	liaisons, err := store.DecodeAll[models.Liaison](docs)
	if err != nil {
		return nil, faults.Wrap(op, "liaison", "", err)
	}
	return liaisons, nil
}

// ListByOrganization lists every liaison of an organization, active or not.
func (r *Repository) ListByOrganization(ctx context.Context, organizationID string) ([]models.Liaison, error) {
	ctx, span := tracing.StartSpan(ctx, "liaison.Repository.ListByOrganization")
	defer span.End()

	const op = "liaison.ListByOrganization"

	docs, err := r.store.List(ctx, store.CollectionLiaisons, store.Where("organizationId", organizationID))
	if err != nil {
		return nil, faults.Wrap(op, "liaison", "", err)
	}

	liaisons, err := store.DecodeAll[models.Liaison](docs)
	if err != nil {
		return nil, faults.Wrap(op, "liaison", "", err)
	}
	return liaisons, nil
}

// UpdateWithExclusivePriority applies the patch to the target liaison and
// demotes every other active prioritary liaison of the same structure in the
// same atomic batch, so the one-prioritary-per-structure invariant cannot be
// observed broken.
func (r *Repository) UpdateWithExclusivePriority(ctx context.Context, id string, patch store.Document, userID string) (*models.Liaison, error) {
	ctx, span := tracing.StartSpan(ctx, "liaison.Repository.UpdateWithExclusivePriority")
	defer span.End()

	const op = "liaison.UpdateWithExclusivePriority"

	target, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	others, err := r.ListPrioritary(ctx, target.OrganizationID, target.StructureID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	var ops []store.Op
	for i := range others {
		other := others[i]
		if other.ID == id {
			continue
		}
		expected := other.Version
		ops = append(ops, store.Op{
			Kind:       store.OpUpdate,
			Collection: store.CollectionLiaisons,
			ID:         other.ID,
			Patch: store.Document{
				"prioritary": false,
				"version":    expected + 1,
				"updatedAt":  now,
				"updatedBy":  userID,
			},
			ExpectedVersion: &expected,
		})
	}

	expected := target.Version
	patch["prioritary"] = true
	patch["version"] = expected + 1
	patch["updatedAt"] = now
	patch["updatedBy"] = userID
	ops = append(ops, store.Op{
		Kind:            store.OpUpdate,
		Collection:      store.CollectionLiaisons,
		ID:              id,
		Patch:           patch,
		ExpectedVersion: &expected,
	})

	err = r.store.CommitBatch(ctx, ops)
	if errors.Is(err, store.ErrVersionConflict) {
		return nil, faults.Conflict(op, "liaison", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("liaison_id", id).Error("Failed to flip prioritary liaison")
		return nil, faults.Wrap(op, "liaison", id, err)
	}

	return r.Get(ctx, id)
}
