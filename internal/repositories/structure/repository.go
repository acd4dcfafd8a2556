// Package structure handles persistence for organization-type contacts.
package structure

import (
	"context"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/venuelink/rolodex/pkg/faults"
	"github.com/venuelink/rolodex/pkg/models"
	"github.com/venuelink/rolodex/pkg/normalizers"
	"github.com/venuelink/rolodex/pkg/store"
	"github.com/venuelink/rolodex/pkg/tracing"
)

// Repository handles structure persistence
type Repository struct {
	store  store.EntityStore
	logger ectologger.Logger
}

// NewRepository creates a new structure repository
func NewRepository(entityStore store.EntityStore, logger ectologger.Logger) *Repository {
	return &Repository{
		store:  entityStore,
		logger: logger,
	}
}

// Create creates a new structure after probing legal name uniqueness within
// the organization. The probe and the write are not atomic; concurrent
// creates can still race past it.
func (r *Repository) Create(ctx context.Context, organizationID string, input *models.StructureInput, userID string) (*models.Structure, error) {
	ctx, span := tracing.StartSpan(ctx, "structure.Repository.Create")
	defer span.End()

	const op = "structure.Create"

	existing, err := r.FindByLegalName(ctx, organizationID, input.LegalName)
	if err != nil && !faults.IsKind(err, faults.KindNotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, faults.Uniqueness(op, "structure", "legalName", input.LegalName)
	}

	now := time.Now().UTC()
	structure := &models.Structure{
		ID:             uuid.New().String(),
		OrganizationID: organizationID,
		LegalName:      input.LegalName,
		Email:          input.Email,
		Phone:          input.Phone,
		Address:        input.Address,
		PostalCode:     input.PostalCode,
		City:           input.City,
		Country:        input.Country,
		ContactTags:    input.ContactTags,
		IsClient:       input.IsClient,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
		CreatedBy:      userID,
		UpdatedBy:      userID,
	}

	doc, err := store.Encode(structure)
	if err != nil {
		return nil, faults.Wrap(op, "structure", structure.ID, err)
	}
	if err := r.store.Create(ctx, store.CollectionStructures, structure.ID, doc); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("structure_id", structure.ID).Error("Failed to create structure")
		return nil, faults.Wrap(op, "structure", structure.ID, err)
	}

	return structure, nil
}

// Get retrieves a structure by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.Structure, error) {
	ctx, span := tracing.StartSpan(ctx, "structure.Repository.Get")
	defer span.End()

	const op = "structure.Get"

	doc, err := r.store.Get(ctx, store.CollectionStructures, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, faults.NotFound(op, "structure", id)
	}
	if err != nil {
		return nil, faults.Wrap(op, "structure", id, err)
	}

	var structure models.Structure
	if err := store.Decode(doc, &structure); err != nil {
		return nil, faults.Wrap(op, "structure", id, err)
	}
	return &structure, nil
}

// ListByOrganization retrieves all structures of an organization
func (r *Repository) ListByOrganization(ctx context.Context, organizationID string) ([]models.Structure, error) {
	ctx, span := tracing.StartSpan(ctx, "structure.Repository.ListByOrganization")
	defer span.End()

	const op = "structure.ListByOrganization"

	docs, err := r.store.List(ctx, store.CollectionStructures, store.Where("organizationId", organizationID))
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list structures")
		return nil, faults.Wrap(op, "structure", "", err)
	}

	structures, err := store.DecodeAll[models.Structure](docs)
	if err != nil {
		return nil, faults.Wrap(op, "structure", "", err)
	}
	return structures, nil
}

// FindByLegalName looks a structure up by its normalized legal name. Returns
// a not-found fault when no structure matches.
func (r *Repository) FindByLegalName(ctx context.Context, organizationID, legalName string) (*models.Structure, error) {
	ctx, span := tracing.StartSpan(ctx, "structure.Repository.FindByLegalName")
	defer span.End()

	const op = "structure.FindByLegalName"

	want := normalizers.NormalizeName(legalName)
	if want == "" {
		return nil, faults.NotFound(op, "structure", legalName)
	}

	docs, err := r.store.Query(ctx, store.CollectionStructures, func(id string, doc store.Document) bool {
		org, _ := doc["organizationId"].(string)
		name, _ := doc["legalName"].(string)
		return org == organizationID && normalizers.NormalizeName(name) == want
	})
	if err != nil {
		return nil, faults.Wrap(op, "structure", "", err)
	}
	if len(docs) == 0 {
		return nil, faults.NotFound(op, "structure", legalName)
	}

	var structure models.Structure
	if err := store.Decode(docs[0], &structure); err != nil {
		return nil, faults.Wrap(op, "structure", "", err)
	}
	return &structure, nil
}

// Update applies a partial patch with optimistic concurrency. The version is
// bumped and the write is conditional on the version read here.
func (r *Repository) Update(ctx context.Context, id string, patch store.Document, userID string) (*models.Structure, error) {
	ctx, span := tracing.StartSpan(ctx, "structure.Repository.Update")
	defer span.End()

	const op = "structure.Update"

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
		Collection:      store.CollectionStructures,
		ID:              id,
		Patch:           patch,
		ExpectedVersion: &expected,
	}})
	if errors.Is(err, store.ErrVersionConflict) {
		return nil, faults.Conflict(op, "structure", id)
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, faults.NotFound(op, "structure", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("structure_id", id).Error("Failed to update structure")
		return nil, faults.Wrap(op, "structure", id, err)
	}

	return r.Get(ctx, id)
}

// Delete removes a structure document
func (r *Repository) Delete(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "structure.Repository.Delete")
	defer span.End()

	const op = "structure.Delete"

	err := r.store.Delete(ctx, store.CollectionStructures, id)
	if errors.Is(err, store.ErrNotFound) {
		return faults.NotFound(op, "structure", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("structure_id", id).Error("Failed to delete structure")
		return faults.Wrap(op, "structure", id, err)
	}
	return nil
}
