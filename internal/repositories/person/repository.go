// Package person handles persistence for individual contacts.
package person

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

// Repository handles person persistence
type Repository struct {
	store  store.EntityStore
	logger ectologger.Logger
}

// NewRepository creates a new person repository
func NewRepository(entityStore store.EntityStore, logger ectologger.Logger) *Repository {
	return &Repository{
		store:  entityStore,
		logger: logger,
	}
}

// Create creates a new person. When an email is present it is probed for
// uniqueness within the organization first. New persons start unattached
// until a liaison is created for them.
func (r *Repository) Create(ctx context.Context, organizationID string, input *models.PersonInput, userID string) (*models.Person, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.Create")
	defer span.End()

	const op = "person.Create"

	if input.Email != "" {
		existing, err := r.FindByEmail(ctx, organizationID, input.Email)
		if err != nil && !faults.IsKind(err, faults.KindNotFound) {
			return nil, err
		}
		if existing != nil {
			return nil, faults.Uniqueness(op, "person", "email", input.Email)
		}
	}

	now := time.Now().UTC()
	person := &models.Person{
		ID:             uuid.New().String(),
		OrganizationID: organizationID,
		FirstName:      input.FirstName,
		LastName:       input.LastName,
		Email:          input.Email,
		Phone:          input.Phone,
		Mobile:         input.Mobile,
		Function:       input.Function,
		IsUnattached:   true,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
		CreatedBy:      userID,
		UpdatedBy:      userID,
	}

	doc, err := store.Encode(person)
	if err != nil {
		return nil, faults.Wrap(op, "person", person.ID, err)
	}
	if err := r.store.Create(ctx, store.CollectionPersons, person.ID, doc); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("person_id", person.ID).Error("Failed to create person")
		return nil, faults.Wrap(op, "person", person.ID, err)
	}

	return person, nil
}

// Get retrieves a person by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.Person, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.Get")
	defer span.End()

	const op = "person.Get"

	doc, err := r.store.Get(ctx, store.CollectionPersons, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, faults.NotFound(op, "person", id)
	}
	if err != nil {
		return nil, faults.Wrap(op, "person", id, err)
	}

	var person models.Person
	if err := store.Decode(doc, &person); err != nil {
		return nil, faults.Wrap(op, "person", id, err)
	}
	return &person, nil
}

// ListByOrganization retrieves all persons of an organization
func (r *Repository) ListByOrganization(ctx context.Context, organizationID string) ([]models.Person, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.ListByOrganization")
	defer span.End()

	const op = "person.ListByOrganization"

	docs, err := r.store.List(ctx, store.CollectionPersons, store.Where("organizationId", organizationID))
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list persons")
		return nil, faults.Wrap(op, "person", "", err)
	}

	persons, err := store.DecodeAll[models.Person](docs)
	if err != nil {
		return nil, faults.Wrap(op, "person", "", err)
	}
	return persons, nil
}

// FindByEmail looks a person up by normalized email. Returns a not-found
// fault when no person matches.
func (r *Repository) FindByEmail(ctx context.Context, organizationID, email string) (*models.Person, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.FindByEmail")
	defer span.End()

	const op = "person.FindByEmail"

	want := normalizers.NormalizeEmail(email)
	if want == "" {
		return nil, faults.NotFound(op, "person", email)
	}

	docs, err := r.store.Query(ctx, store.CollectionPersons, func(id string, doc store.Document) bool {
		org, _ := doc["organizationId"].(string)
		mail, _ := doc["email"].(string)
		return org == organizationID && normalizers.NormalizeEmail(mail) == want
	})
	if err != nil {
		return nil, faults.Wrap(op, "person", "", err)
	}
	if len(docs) == 0 {
		return nil, faults.NotFound(op, "person", email)
	}

	var person models.Person
	if err := store.Decode(docs[0], &person); err != nil {
		return nil, faults.Wrap(op, "person", "", err)
	}
	return &person, nil
}

// Update applies a partial patch with optimistic concurrency.
func (r *Repository) Update(ctx context.Context, id string, patch store.Document, userID string) (*models.Person, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.Update")
	defer span.End()

	const op = "person.Update"

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
		Collection:      store.CollectionPersons,
		ID:              id,
		Patch:           patch,
		ExpectedVersion: &expected,
	}})
	if errors.Is(err, store.ErrVersionConflict) {
		return nil, faults.Conflict(op, "person", id)
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, faults.NotFound(op, "person", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("person_id", id).Error("Failed to update person")
		return nil, faults.Wrap(op, "person", id, err)
	}

	return r.Get(ctx, id)
}

// SetUnattached updates the derived isUnattached flag without touching the
// version. The flag is a cache; a lost write here is repaired by the next
// recompute pass.
func (r *Repository) SetUnattached(ctx context.Context, id string, unattached bool) error {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.SetUnattached")
	defer span.End()

	const op = "person.SetUnattached"

	err := r.store.Update(ctx, store.CollectionPersons, id, store.Document{"isUnattached": unattached})
	if errors.Is(err, store.ErrNotFound) {
		return faults.NotFound(op, "person", id)
	}
	if err != nil {
		return faults.Wrap(op, "person", id, err)
	}
	return nil
}

// Delete removes a person document
func (r *Repository) Delete(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.Delete")
	defer span.End()

	const op = "person.Delete"

	err := r.store.Delete(ctx, store.CollectionPersons, id)
	if errors.Is(err, store.ErrNotFound) {
		return faults.NotFound(op, "person", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("person_id", id).Error("Failed to delete person")
		return faults.Wrap(op, "person", id, err)
	}
	return nil
}
