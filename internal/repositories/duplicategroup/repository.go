// Package duplicategroup handles persistence for detected duplicate groups
// awaiting review.
package duplicategroup

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/venuelink/rolodex/pkg/faults"
	"github.com/venuelink/rolodex/pkg/models"
	"github.com/venuelink/rolodex/pkg/store"
	"github.com/venuelink/rolodex/pkg/tracing"
)

// Repository handles duplicate group persistence
type Repository struct {
	store  store.EntityStore
	logger ectologger.Logger
}

// NewRepository creates a new duplicate group repository
func NewRepository(entityStore store.EntityStore, logger ectologger.Logger) *Repository {
	return &Repository{
		store:  entityStore,
		logger: logger,
	}
}

// SaveBatch persists detected groups in one atomic batch. All groups start
// pending. Groups whose member set is already staged as a pending group are
// skipped, so re-running detection over unchanged data does not pile up
// review work.
func (r *Repository) SaveBatch(ctx context.Context, organizationID, userID string, groups []models.DuplicateGroup) ([]models.DuplicateGroup, error) {
	ctx, span := tracing.StartSpan(ctx, "duplicategroup.Repository.SaveBatch")
	defer span.End()

	const op = "duplicategroup.SaveBatch"

	if len(groups) == 0 {
		return nil, nil
	}

	pending, err := r.ListPending(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	staged := make(map[string]bool, len(pending))
	for i := range pending {
		staged[memberKey(&pending[i])] = true
	}

	now := time.Now().UTC()
	ops := make([]store.Op, 0, len(groups))
	saved := make([]models.DuplicateGroup, 0, len(groups))

	for _, group := range groups {
		if staged[memberKey(&group)] {
			continue
		}
		group.ID = uuid.New().String()
		group.OrganizationID = organizationID
		group.Status = models.DuplicateStatusPending
		group.CreatedAt = now
		group.CreatedBy = userID

		doc, err := store.Encode(&group)
		if err != nil {
			return nil, faults.Wrap(op, "duplicate_group", group.ID, err)
		}
		ops = append(ops, store.Op{
			Kind:       store.OpCreate,
			Collection: store.CollectionDuplicateGroups,
			ID:         group.ID,
			Doc:        doc,
		})
		saved = append(saved, group)
	}

	if len(ops) == 0 {
		return nil, nil
	}

	if err := r.store.CommitBatch(ctx, ops); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("count", len(groups)).Error("Failed to save duplicate groups")
		return nil, faults.Wrap(op, "duplicate_group", "", err)
	}

	r.logger.WithContext(ctx).WithField("count", len(saved)).Debug("Saved duplicate groups for review")
	return saved, nil
}

// memberKey identifies a group by its entity type and member set, ignoring
// member order.
func memberKey(g *models.DuplicateGroup) string {
	ids := g.MemberIDs()
	sort.Strings(ids)
	return string(g.EntityType) + ":" + strings.Join(ids, ",")
}

// Get retrieves a duplicate group by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.DuplicateGroup, error) {
	ctx, span := tracing.StartSpan(ctx, "duplicategroup.Repository.Get")
	defer span.End()

	const op = "duplicategroup.Get"

	doc, err := r.store.Get(ctx, store.CollectionDuplicateGroups, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, faults.NotFound(op, "duplicate_group", id)
	}
	if err != nil {
		return nil, faults.Wrap(op, "duplicate_group", id, err)
	}

	var group models.DuplicateGroup
	if err := store.Decode(doc, &group); err != nil {
		return nil, faults.Wrap(op, "duplicate_group", id, err)
	}
	return &group, nil
}

// ListPending lists pending groups of an organization, highest score first.
func (r *Repository) ListPending(ctx context.Context, organizationID string) ([]models.DuplicateGroup, error) {
	ctx, span := tracing.StartSpan(ctx, "duplicategroup.Repository.ListPending")
	defer span.End()

	const op = "duplicategroup.ListPending"

	docs, err := r.store.List(ctx, store.CollectionDuplicateGroups,
		store.Where("organizationId", organizationID),
		store.Where("status", models.DuplicateStatusPending),
	)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list pending duplicate groups")
		return nil, faults.Wrap(op, "duplicate_group", "", err)
	}

	groups, err := store.DecodeAll[models.DuplicateGroup](docs)
	if err != nil {
		return nil, faults.Wrap(op, "duplicate_group", "", err)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Score > groups[j].Score
	})
	return groups, nil
}

// SetStatus transitions a group's review state and stamps the reviewer.
// Terminal states (merged, dismissed) cannot be left.
func (r *Repository) SetStatus(ctx context.Context, id, status, reviewedBy string) (*models.DuplicateGroup, error) {
	ctx, span := tracing.StartSpan(ctx, "duplicategroup.Repository.SetStatus")
	defer span.End()

	const op = "duplicategroup.SetStatus"

	group, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if group.Terminal() {
		return nil, faults.Validationf(op, "duplicate group %s is already %s", id, group.Status)
	}

	now := time.Now().UTC()
	patch := store.Document{
		"status":     status,
		"reviewedAt": now.Format(time.RFC3339Nano),
		"reviewedBy": reviewedBy,
	}
	if err := r.store.Update(ctx, store.CollectionDuplicateGroups, id, patch); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("group_id", id).Error("Failed to update duplicate group status")
		return nil, faults.Wrap(op, "duplicate_group", id, err)
	}

	group.Status = status
	group.ReviewedAt = &now
	group.ReviewedBy = reviewedBy
	return group, nil
}
