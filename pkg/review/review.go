// Package review exposes the human workflow over detected duplicate groups:
// list what is pending, dismiss false positives, approve merges.
package review

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/venuelink/rolodex/internal/repositories/duplicategroup"
	"github.com/venuelink/rolodex/pkg/faults"
	"github.com/venuelink/rolodex/pkg/merging"
	"github.com/venuelink/rolodex/pkg/models"
	"github.com/venuelink/rolodex/pkg/tracing"
)

// Service drives duplicate group review.
type Service struct {
	groups *duplicategroup.Repository
	merger *merging.Engine
	logger ectologger.Logger
}

// NewService creates a new review service.
func NewService(groups *duplicategroup.Repository, merger *merging.Engine, logger ectologger.Logger) *Service {
	return &Service{
		groups: groups,
		merger: merger,
		logger: logger,
	}
}

// ListPending lists an organization's pending groups, highest score first.
func (s *Service) ListPending(ctx context.Context, organizationID string) ([]models.DuplicateGroup, error) {
	return s.groups.ListPending(ctx, organizationID)
}

// Get returns one group.
func (s *Service) Get(ctx context.Context, groupID string) (*models.DuplicateGroup, error) {
	return s.groups.Get(ctx, groupID)
}

// Dismiss marks a group as not-a-duplicate. Terminal groups reject the
// transition.
func (s *Service) Dismiss(ctx context.Context, groupID, userID string) (*models.DuplicateGroup, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Service.Dismiss")
	defer span.End()

	group, err := s.groups.SetStatus(ctx, groupID, models.DuplicateStatusDismissed, userID)
	if err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).WithField("group_id", groupID).Info("Duplicate group dismissed")
	return group, nil
}

// MarkReviewed flags a group as looked at without resolving it.
func (s *Service) MarkReviewed(ctx context.Context, groupID, userID string) (*models.DuplicateGroup, error) {
	return s.groups.SetStatus(ctx, groupID, models.DuplicateStatusReviewed, userID)
}

// ApproveMerge merges every other member of the group into the chosen
// canonical member and marks the group merged. The canonical entity must
// belong to the group. On a partial merge failure the group stays in its
// current state so the retry can resume.
func (s *Service) ApproveMerge(ctx context.Context, groupID, canonicalID, userID string) (*models.MergeResult, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Service.ApproveMerge")
	defer span.End()

	const op = "review.ApproveMerge"

	group, err := s.groups.Get(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group.Terminal() {
		return nil, faults.Validationf(op, "duplicate group %s is already %s", groupID, group.Status)
	}
	if !group.HasMember(canonicalID) {
		return nil, faults.Validationf(op, "entity %s is not a member of group %s", canonicalID, groupID)
	}

	var duplicates []string
	for _, id := range group.MemberIDs() {
		if id != canonicalID {
			duplicates = append(duplicates, id)
		}
	}

	result, err := s.merger.Merge(ctx, group.EntityType, canonicalID, duplicates, userID)
	if err != nil {
		return nil, err
	}

	if _, err := s.groups.SetStatus(ctx, groupID, models.DuplicateStatusMerged, userID); err != nil {
		// The merge itself committed; surface the stale group state but
		// do not fail the call.
		s.logger.WithContext(ctx).WithError(err).WithField("group_id", groupID).Warn("Merge committed but group status update failed")
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"group_id":     groupID,
		"canonical_id": canonicalID,
		"merged":       result.DuplicatesMerged,
	}).Info("Duplicate group merged")
	return result, nil
}
