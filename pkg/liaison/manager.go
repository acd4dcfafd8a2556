// Package liaison implements the lifecycle of structure/person associations:
// associate, dissociate, reactivate, prioritary handling, and the derived
// unattached flag on persons.
package liaison

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	liaisonrepo "github.com/venuelink/rolodex/internal/repositories/liaison"
	"github.com/venuelink/rolodex/internal/repositories/person"
	"github.com/venuelink/rolodex/internal/repositories/structure"
	"github.com/venuelink/rolodex/pkg/events"
	"github.com/venuelink/rolodex/pkg/faults"
	"github.com/venuelink/rolodex/pkg/metrics"
	"github.com/venuelink/rolodex/pkg/models"
	"github.com/venuelink/rolodex/pkg/store"
	"github.com/venuelink/rolodex/pkg/tracing"
)

// Manager coordinates liaison lifecycle operations.
type Manager struct {
	liaisons   *liaisonrepo.Repository
	persons    *person.Repository
	structures *structure.Repository
	emitter    *events.Emitter
	logger     ectologger.Logger
}

// NewManager creates a new liaison Manager. The emitter may be nil.
func NewManager(
	liaisons *liaisonrepo.Repository,
	persons *person.Repository,
	structures *structure.Repository,
	emitter *events.Emitter,
	logger ectologger.Logger,
) *Manager {
	return &Manager{
		liaisons:   liaisons,
		persons:    persons,
		structures: structures,
		emitter:    emitter,
		logger:     logger,
	}
}

// Associate creates the liaison for a structure/person pair. An inactive
// liaison for the same pair is reactivated instead of duplicated; an active
// one is rejected. Both referenced entities must exist.
func (m *Manager) Associate(ctx context.Context, req *models.CreateLiaisonRequest, userID string) (*models.Liaison, error) {
	ctx, span := tracing.StartSpan(ctx, "liaison.Manager.Associate")
	defer span.End()

	const op = "liaison.Associate"

	if _, err := m.structures.Get(ctx, req.StructureID); err != nil {
		metrics.RecordLiaisonOperation("associate", "error")
		return nil, err
	}
	if _, err := m.persons.Get(ctx, req.PersonID); err != nil {
		metrics.RecordLiaisonOperation("associate", "error")
		return nil, err
	}

	existing, err := m.liaisons.FindByPair(ctx, req.OrganizationID, req.StructureID, req.PersonID)
	if err != nil && !faults.IsKind(err, faults.KindNotFound) {
		return nil, err
	}

	if existing != nil {
		if existing.Active {
			metrics.RecordLiaisonOperation("associate", "rejected")
			return nil, faults.DuplicateLiaison(op, req.StructureID, req.PersonID)
		}
		return m.reassociate(ctx, existing, req, userID)
	}

	liaison := &models.Liaison{
		OrganizationID: req.OrganizationID,
		StructureID:    req.StructureID,
		PersonID:       req.PersonID,
		Function:       req.Function,
		Active:         true,
		Interested:     req.Interested,
		CreatedBy:      userID,
		UpdatedBy:      userID,
	}
	liaison, err = m.liaisons.Create(ctx, liaison)
	if err != nil {
		metrics.RecordLiaisonOperation("associate", "error")
		return nil, err
	}

	if req.Prioritary {
		liaison, err = m.liaisons.UpdateWithExclusivePriority(ctx, liaison.ID, store.Document{}, userID)
		if err != nil {
			return nil, err
		}
	}

	m.markAttached(ctx, req.PersonID)
	m.emit(ctx, "created", liaison)
	metrics.RecordLiaisonOperation("associate", "success")

	m.logger.WithContext(ctx).WithFields(map[string]any{
		"liaison_id":   liaison.ID,
		"structure_id": liaison.StructureID,
		"person_id":    liaison.PersonID,
	}).Info("Liaison created")
	return liaison, nil
}

// reassociate revives an ended liaison for the pair, applying the new
// request's fields the same way a fresh association would. A requested
// prioritary goes through the exclusive update so the demotion of the
// structure's current prioritary liaison stays atomic.
func (m *Manager) reassociate(ctx context.Context, existing *models.Liaison, req *models.CreateLiaisonRequest, userID string) (*models.Liaison, error) {
	patch := store.Document{
		"active":     true,
		"startDate":  time.Now().UTC().Format(time.RFC3339Nano),
		"endDate":    nil,
		"interested": req.Interested,
	}
	if req.Function != "" {
		patch["function"] = req.Function
	}

	var liaison *models.Liaison
	var err error
	if req.Prioritary {
		liaison, err = m.liaisons.UpdateWithExclusivePriority(ctx, existing.ID, patch, userID)
	} else {
		liaison, err = m.liaisons.Update(ctx, existing.ID, patch, userID)
	}
	if err != nil {
		metrics.RecordLiaisonOperation("reactivate", "error")
		return nil, err
	}

	m.markAttached(ctx, liaison.PersonID)
	m.emit(ctx, "reactivated", liaison)
	metrics.RecordLiaisonOperation("reactivate", "success")
	return liaison, nil
}

// Update applies a partial update. Setting prioritary demotes every other
// prioritary liaison of the structure in the same atomic batch.
func (m *Manager) Update(ctx context.Context, liaisonID string, req *models.UpdateLiaisonRequest, userID string) (*models.Liaison, error) {
	ctx, span := tracing.StartSpan(ctx, "liaison.Manager.Update")
	defer span.End()

	patch := store.Document{}
	if req.Function != nil {
		patch["function"] = *req.Function
	}
	if req.Interested != nil {
		patch["interested"] = *req.Interested
	}
	if req.Notes != nil {
		patch["notes"] = *req.Notes
	}

	var liaison *models.Liaison
	var err error
	if req.Prioritary != nil && *req.Prioritary {
		liaison, err = m.liaisons.UpdateWithExclusivePriority(ctx, liaisonID, patch, userID)
	} else {
		if req.Prioritary != nil {
			patch["prioritary"] = false
		}
		liaison, err = m.liaisons.Update(ctx, liaisonID, patch, userID)
	}
	if err != nil {
		metrics.RecordLiaisonOperation("update", "error")
		return nil, err
	}

	m.emit(ctx, "updated", liaison)
	metrics.RecordLiaisonOperation("update", "success")
	return liaison, nil
}

// Dissociate soft-deletes a liaison: it stays in place, deactivated, with an
// end date. The person's unattached flag is refreshed best-effort.
func (m *Manager) Dissociate(ctx context.Context, liaisonID, userID string) (*models.Liaison, error) {
	ctx, span := tracing.StartSpan(ctx, "liaison.Manager.Dissociate")
	defer span.End()

	liaison, err := m.liaisons.Update(ctx, liaisonID, store.Document{
		"active":     false,
		"prioritary": false,
		"endDate":    time.Now().UTC().Format(time.RFC3339Nano),
	}, userID)
	if err != nil {
		metrics.RecordLiaisonOperation("dissociate", "error")
		return nil, err
	}

	m.refreshUnattached(ctx, liaison.PersonID)
	m.emit(ctx, "dissociated", liaison)
	metrics.RecordLiaisonOperation("dissociate", "success")

	m.logger.WithContext(ctx).WithField("liaison_id", liaisonID).Info("Liaison dissociated")
	return liaison, nil
}

// Reactivate brings an inactive liaison back: active, fresh start date, end
// date cleared.
func (m *Manager) Reactivate(ctx context.Context, liaisonID, userID string) (*models.Liaison, error) {
	ctx, span := tracing.StartSpan(ctx, "liaison.Manager.Reactivate")
	defer span.End()

	liaison, err := m.liaisons.Update(ctx, liaisonID, store.Document{
		"active":    true,
		"startDate": time.Now().UTC().Format(time.RFC3339Nano),
		"endDate":   nil,
	}, userID)
	if err != nil {
		metrics.RecordLiaisonOperation("reactivate", "error")
		return nil, err
	}

	m.markAttached(ctx, liaison.PersonID)
	m.emit(ctx, "reactivated", liaison)
	metrics.RecordLiaisonOperation("reactivate", "success")
	return liaison, nil
}

// SetPrioritary makes the active liaison of the pair the structure's
// prioritary contact.
func (m *Manager) SetPrioritary(ctx context.Context, organizationID, structureID, personID, userID string) (*models.Liaison, error) {
	ctx, span := tracing.StartSpan(ctx, "liaison.Manager.SetPrioritary")
	defer span.End()

	const op = "liaison.SetPrioritary"

	liaison, err := m.liaisons.FindByPair(ctx, organizationID, structureID, personID)
	if err != nil {
		return nil, err
	}
	if !liaison.Active {
		return nil, faults.NotFound(op, "liaison", structureID+"/"+personID)
	}

	liaison, err = m.liaisons.UpdateWithExclusivePriority(ctx, liaison.ID, store.Document{}, userID)
	if err != nil {
		metrics.RecordLiaisonOperation("set_prioritary", "error")
		return nil, err
	}

	m.emit(ctx, "updated", liaison)
	metrics.RecordLiaisonOperation("set_prioritary", "success")
	return liaison, nil
}

// Get returns one liaison.
func (m *Manager) Get(ctx context.Context, liaisonID string) (*models.Liaison, error) {
	return m.liaisons.Get(ctx, liaisonID)
}

// ListByStructure lists a structure's liaisons.
func (m *Manager) ListByStructure(ctx context.Context, structureID string, includeInactive bool) ([]models.Liaison, error) {
	return m.liaisons.ListByStructure(ctx, structureID, includeInactive)
}

// ListByPerson lists a person's liaisons.
func (m *Manager) ListByPerson(ctx context.Context, personID string, includeInactive bool) ([]models.Liaison, error) {
	return m.liaisons.ListByPerson(ctx, personID, includeInactive)
}

// ActiveContacts lists the active liaisons of an organization with optional
// filters.
func (m *Manager) ActiveContacts(ctx context.Context, organizationID string, filters liaisonrepo.ActiveFilters) ([]models.Liaison, error) {
	return m.liaisons.ListActiveByOrganization(ctx, organizationID, filters)
}

// Statistics summarizes an organization's liaisons.
type Statistics struct {
	Total      int            `json:"total"`
	Active     int            `json:"active"`
	Inactive   int            `json:"inactive"`
	Prioritary int            `json:"prioritary"`
	Interested int            `json:"interested"`
	ByFunction map[string]int `json:"byFunction"`
}

// Stats computes liaison statistics for an organization.
func (m *Manager) Stats(ctx context.Context, organizationID string) (*Statistics, error) {
	ctx, span := tracing.StartSpan(ctx, "liaison.Manager.Stats")
	defer span.End()

	liaisons, err := m.liaisons.ListByOrganization(ctx, organizationID)
	if err != nil {
		return nil, err
	}

	stats := &Statistics{
		Total:      len(liaisons),
		ByFunction: make(map[string]int),
	}
	for _, l := range liaisons {
		if !l.Active {
			stats.Inactive++
			continue
		}
		stats.Active++
		if l.Prioritary {
			stats.Prioritary++
		}
		if l.Interested {
			stats.Interested++
		}
		if l.Function != "" {
			stats.ByFunction[l.Function]++
		}
	}
	return stats, nil
}

// RecomputeUnattachedFlags repairs the derived isUnattached flag for every
// person of the organization and returns how many were corrected.
func (m *Manager) RecomputeUnattachedFlags(ctx context.Context, organizationID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "liaison.Manager.RecomputeUnattachedFlags")
	defer span.End()

	persons, err := m.persons.ListByOrganization(ctx, organizationID)
	if err != nil {
		return 0, err
	}

	fixed := 0
	for i := range persons {
		p := &persons[i]
		active, err := m.liaisons.ListByPerson(ctx, p.ID, false)
		if err != nil {
			return fixed, err
		}
		want := len(active) == 0
		if p.IsUnattached == want {
			continue
		}
		if err := m.persons.SetUnattached(ctx, p.ID, want); err != nil {
			return fixed, err
		}
		fixed++
	}

	if fixed > 0 {
		m.logger.WithContext(ctx).WithFields(map[string]any{
			"organization_id": organizationID,
			"fixed":           fixed,
		}).Info("Repaired unattached flags")
	}
	return fixed, nil
}

// markAttached flips isUnattached off for the person. Best effort: the
// liaison write already happened and wins.
func (m *Manager) markAttached(ctx context.Context, personID string) {
	if err := m.persons.SetUnattached(ctx, personID, false); err != nil {
		m.logger.WithContext(ctx).WithError(err).WithField("person_id", personID).Warn("Failed to clear unattached flag")
	}
}

// refreshUnattached recomputes the flag for one person after a dissociation.
// Best effort.
func (m *Manager) refreshUnattached(ctx context.Context, personID string) {
	active, err := m.liaisons.ListByPerson(ctx, personID, false)
	if err != nil {
		m.logger.WithContext(ctx).WithError(err).WithField("person_id", personID).Warn("Failed to check active liaisons")
		return
	}
	if len(active) == 0 {
		if err := m.persons.SetUnattached(ctx, personID, true); err != nil {
			m.logger.WithContext(ctx).WithError(err).WithField("person_id", personID).Warn("Failed to set unattached flag")
		}
	}
}

func (m *Manager) emit(ctx context.Context, eventType string, liaison *models.Liaison) {
	if m.emitter == nil {
		return
	}
	if err := m.emitter.EmitLiaisonEvent(ctx, eventType, liaison); err != nil {
		m.logger.WithContext(ctx).WithError(err).Warn("Liaison event emission failed")
	}
}
