// Package detection finds likely duplicate structures and persons and stages
// them as groups for human review.
package detection

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Gobusters/ectologger"
	"golang.org/x/sync/errgroup"

	"github.com/venuelink/rolodex/internal/repositories/duplicategroup"
	"github.com/venuelink/rolodex/internal/repositories/person"
	"github.com/venuelink/rolodex/internal/repositories/structure"
	"github.com/venuelink/rolodex/pkg/events"
	"github.com/venuelink/rolodex/pkg/faults"
	"github.com/venuelink/rolodex/pkg/locking"
	"github.com/venuelink/rolodex/pkg/metrics"
	"github.com/venuelink/rolodex/pkg/models"
	"github.com/venuelink/rolodex/pkg/scoring"
	"github.com/venuelink/rolodex/pkg/tracing"
)

const defaultWorkers = 4

// lockTTL bounds how long a full detection run may hold its organization
// lock.
const lockTTL = 5 * time.Minute

// Detector clusters similar entities into duplicate groups.
type Detector struct {
	structures *structure.Repository
	persons    *person.Repository
	groups     *duplicategroup.Repository
	scorer     *scoring.Scorer
	emitter    *events.Emitter
	locker     locking.Locker
	logger     ectologger.Logger
	threshold  float64
	workers    int
}

// Config tunes a Detector.
type Config struct {
	// Threshold is the group admission score. Zero means the default.
	Threshold float64
	// Workers bounds concurrent pair scoring. Zero means the default.
	Workers int
}

// NewDetector creates a new Detector. The emitter may be nil when event
// emission is disabled.
func NewDetector(
	structures *structure.Repository,
	persons *person.Repository,
	groups *duplicategroup.Repository,
	emitter *events.Emitter,
	locker locking.Locker,
	logger ectologger.Logger,
	cfg Config,
) *Detector {
	threshold := cfg.Threshold
	if threshold == 0 {
		threshold = scoring.DefaultThreshold
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Detector{
		structures: structures,
		persons:    persons,
		groups:     groups,
		scorer:     scoring.NewScorer(),
		emitter:    emitter,
		locker:     locker,
		logger:     logger,
		threshold:  threshold,
		workers:    workers,
	}
}

// Stats summarizes a full detection run.
type Stats struct {
	StructureGroups int `json:"structureGroups"`
	PersonGroups    int `json:"personGroups"`
	TotalSaved      int `json:"totalSaved"`
}

// DetectStructures scores every structure pair of the organization and
// returns seed-linked groups. Clustering is seed-linked, not transitive:
// each unprocessed entity seeds a group and claims every later entity whose
// similarity to the seed clears the threshold.
func (d *Detector) DetectStructures(ctx context.Context, organizationID string) ([]models.DuplicateGroup, error) {
	ctx, span := tracing.StartSpan(ctx, "detection.Detector.DetectStructures")
	defer span.End()

	structures, err := d.structures.ListByOrganization(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	sortByAge(structures, func(s models.Structure) (time.Time, string) { return s.CreatedAt, s.ID })

	groups, err := cluster(ctx, structures, d.threshold, d.workers,
		func(a, b *models.Structure) scoring.Similarity { return d.scorer.StructureSimilarity(a, b) },
		func(s *models.Structure) models.GroupMember {
			return models.GroupMember{EntityID: s.ID, DisplayName: s.LegalName}
		},
		models.EntityKindStructure,
	)
	if err != nil {
		return nil, err
	}

	metrics.DuplicateGroupsFound.WithLabelValues(string(models.EntityKindStructure)).Add(float64(len(groups)))
	d.logger.WithContext(ctx).WithFields(map[string]any{
		"organization_id": organizationID,
		"groups":          len(groups),
	}).Info("Structure duplicate detection finished")
	return groups, nil
}

// DetectPersons scores every person pair of the organization and returns
// seed-linked groups.
func (d *Detector) DetectPersons(ctx context.Context, organizationID string) ([]models.DuplicateGroup, error) {
	ctx, span := tracing.StartSpan(ctx, "detection.Detector.DetectPersons")
	defer span.End()

	persons, err := d.persons.ListByOrganization(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	sortByAge(persons, func(p models.Person) (time.Time, string) { return p.CreatedAt, p.ID })

	groups, err := cluster(ctx, persons, d.threshold, d.workers,
		func(a, b *models.Person) scoring.Similarity { return d.scorer.PersonSimilarity(a, b) },
		func(p *models.Person) models.GroupMember {
			return models.GroupMember{EntityID: p.ID, DisplayName: p.FirstName + " " + p.LastName}
		},
		models.EntityKindPerson,
	)
	if err != nil {
		return nil, err
	}

	metrics.DuplicateGroupsFound.WithLabelValues(string(models.EntityKindPerson)).Add(float64(len(groups)))
	d.logger.WithContext(ctx).WithFields(map[string]any{
		"organization_id": organizationID,
		"groups":          len(groups),
	}).Info("Person duplicate detection finished")
	return groups, nil
}

// SaveForReview persists detected groups as pending and emits one event per
// group.
func (d *Detector) SaveForReview(ctx context.Context, organizationID, userID string, groups []models.DuplicateGroup) ([]models.DuplicateGroup, error) {
	ctx, span := tracing.StartSpan(ctx, "detection.Detector.SaveForReview")
	defer span.End()

	saved, err := d.groups.SaveBatch(ctx, organizationID, userID, groups)
	if err != nil {
		return nil, err
	}

	if d.emitter != nil && len(saved) > 0 {
		if err := d.emitter.EmitDuplicatesDetected(ctx, organizationID, saved); err != nil {
			// Groups are saved; the event stream catches up on the next run.
			d.logger.WithContext(ctx).WithError(err).Warn("Saved duplicate groups but event emission failed")
		}
	}
	return saved, nil
}

// RunFull detects duplicates across both entity kinds and stages everything
// found. The run is serialized per organization.
func (d *Detector) RunFull(ctx context.Context, organizationID, userID string) (*Stats, error) {
	ctx, span := tracing.StartSpan(ctx, "detection.Detector.RunFull")
	defer span.End()

	const op = "detection.RunFull"

	var stats *Stats
	err := d.locker.WithLock(ctx, "detection:"+organizationID, lockTTL, func() error {
		start := time.Now()

		structureGroups, err := d.DetectStructures(ctx, organizationID)
		if err != nil {
			metrics.RecordDetectionRun(string(models.EntityKindStructure), "error", time.Since(start).Seconds())
			return err
		}
		metrics.RecordDetectionRun(string(models.EntityKindStructure), "success", time.Since(start).Seconds())

		personStart := time.Now()
		personGroups, err := d.DetectPersons(ctx, organizationID)
		if err != nil {
			metrics.RecordDetectionRun(string(models.EntityKindPerson), "error", time.Since(personStart).Seconds())
			return err
		}
		metrics.RecordDetectionRun(string(models.EntityKindPerson), "success", time.Since(personStart).Seconds())

		all := append(structureGroups, personGroups...)
		var saved []models.DuplicateGroup
		if len(all) > 0 {
			saved, err = d.SaveForReview(ctx, organizationID, userID, all)
			if err != nil {
				return err
			}
		}

		stats = &Stats{
			StructureGroups: len(structureGroups),
			PersonGroups:    len(personGroups),
			TotalSaved:      len(saved),
		}
		return nil
	})
	if err != nil {
		return nil, faults.Wrap(op, "detection", organizationID, err)
	}

	return stats, nil
}

// cluster runs the seed-linkage pass over an ordered entity slice. Pair
// scoring against each seed fans out over a bounded worker group; group
// assignment stays serial in index order so results are deterministic for a
// given input order.
func cluster[T any](
	ctx context.Context,
	entities []T,
	threshold float64,
	workers int,
	similarity func(a, b *T) scoring.Similarity,
	member func(*T) models.GroupMember,
	kind models.EntityKind,
) ([]models.DuplicateGroup, error) {
	var groups []models.DuplicateGroup
	processed := make([]bool, len(entities))

	for i := range entities {
		if processed[i] {
			continue
		}
		processed[i] = true
		seed := &entities[i]

		sims := make([]scoring.Similarity, len(entities))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for j := i + 1; j < len(entities); j++ {
			if processed[j] {
				continue
			}
			j := j
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				sims[j] = similarity(seed, &entities[j])
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, fmt.Errorf("scoring against seed %s: %w", member(seed).EntityID, err)
		}

		group := models.DuplicateGroup{
			EntityType: kind,
			Members:    []models.GroupMember{member(seed)},
		}
		for j := i + 1; j < len(entities); j++ {
			if processed[j] {
				continue
			}
			metrics.PairsScored.WithLabelValues(string(kind)).Inc()
			sim := sims[j]
			if sim.Score >= threshold {
				processed[j] = true
				group.Members = append(group.Members, member(&entities[j]))
				if sim.Score > group.Score {
					group.Score = sim.Score
				}
				if len(group.Members) == 2 {
					// Reasons come from the seed's comparison with the
					// first admitted member.
					group.Reasons = sim.Reasons
				}
			}
		}

		if len(group.Members) > 1 {
			groups = append(groups, group)
		}
	}

	return groups, nil
}

// sortByAge orders entities oldest first with the id as tiebreaker, making
// the oldest record the seed of any group it belongs to.
func sortByAge[T any](entities []T, key func(T) (time.Time, string)) {
	sort.SliceStable(entities, func(i, j int) bool {
		ti, idi := key(entities[i])
		tj, idj := key(entities[j])
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return idi < idj
	})
}
