// Package merging implements canonical-record merges: liaison foreign keys
// are repointed, the merged-away entity is archived as a tombstone, and the
// original document is deleted.
package merging

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	liaisonrepo "github.com/venuelink/rolodex/internal/repositories/liaison"
	"github.com/venuelink/rolodex/pkg/events"
	"github.com/venuelink/rolodex/pkg/faults"
	"github.com/venuelink/rolodex/pkg/locking"
	"github.com/venuelink/rolodex/pkg/metrics"
	"github.com/venuelink/rolodex/pkg/models"
	"github.com/venuelink/rolodex/pkg/store"
	"github.com/venuelink/rolodex/pkg/tracing"
)

// lockTTL bounds how long one merge may hold its organization lock.
const lockTTL = 2 * time.Minute

// Engine performs merges of duplicate entities into a canonical record.
type Engine struct {
	store    store.EntityStore
	liaisons *liaisonrepo.Repository
	emitter  *events.Emitter
	locker   locking.Locker
	logger   ectologger.Logger
}

// NewEngine creates a new merge engine. The emitter may be nil.
func NewEngine(
	entityStore store.EntityStore,
	liaisons *liaisonrepo.Repository,
	emitter *events.Emitter,
	locker locking.Locker,
	logger ectologger.Logger,
) *Engine {
	return &Engine{
		store:    entityStore,
		liaisons: liaisons,
		emitter:  emitter,
		locker:   locker,
		logger:   logger,
	}
}

// duplicatePlan is the op set for one merged-away entity. The ops of one
// duplicate always travel in the same atomic sub-batch.
type duplicatePlan struct {
	entityID string
	liaisons int
	ops      []store.Op
}

// Merge folds the duplicates into the canonical entity. Per duplicate:
// every liaison referencing it is repointed to the canonical id with an
// audit note, a tombstone snapshot goes to the archive, and the duplicate
// document is deleted. Duplicates that no longer exist are skipped, which
// makes a retried merge idempotent.
//
// Sub-batches commit sequentially. When a later sub-batch fails, the merge
// stops and reports what committed and what is still pending; committed
// duplicates stay merged.
func (e *Engine) Merge(ctx context.Context, kind models.EntityKind, canonicalID string, duplicateIDs []string, userID string) (*models.MergeResult, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Engine.Merge")
	defer span.End()

	const op = "merging.Merge"
	start := time.Now()

	if !kind.Valid() {
		return nil, faults.Validationf(op, "unknown entity kind %q", kind)
	}
	if len(duplicateIDs) == 0 {
		return nil, faults.Validation(op, "no duplicates to merge")
	}

	canonicalDoc, err := e.store.Get(ctx, kind.Collection(), canonicalID)
	if err != nil {
		metrics.RecordMerge(string(kind), "error", time.Since(start).Seconds())
		return nil, faults.NotFound(op, string(kind), canonicalID)
	}
	organizationID, _ := canonicalDoc["organizationId"].(string)

	seen := map[string]bool{canonicalID: true}
	var targets []string
	for _, id := range duplicateIDs {
		if id == canonicalID {
			return nil, faults.Validationf(op, "canonical entity %s cannot be merged into itself", canonicalID)
		}
		if !seen[id] {
			seen[id] = true
			targets = append(targets, id)
		}
	}

	var result *models.MergeResult
	err = e.locker.WithLock(ctx, "merge:"+organizationID, lockTTL, func() error {
		var lockErr error
		result, lockErr = e.mergeLocked(ctx, kind, canonicalID, targets, userID)
		return lockErr
	})
	if err != nil {
		metrics.RecordMerge(string(kind), "error", time.Since(start).Seconds())
		return nil, err
	}

	metrics.RecordMerge(string(kind), "success", time.Since(start).Seconds())
	metrics.LiaisonsRelocated.Add(float64(result.LiaisonsRelocated))

	if e.emitter != nil && len(result.Merged) > 0 {
		if err := e.emitter.EmitEntitiesMerged(ctx, organizationID, result); err != nil {
			e.logger.WithContext(ctx).WithError(err).Warn("Merge committed but event emission failed")
		}
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"entity_kind":        string(kind),
		"canonical_id":       canonicalID,
		"duplicates_merged":  result.DuplicatesMerged,
		"liaisons_relocated": result.LiaisonsRelocated,
	}).Info("Merge finished")
	return result, nil
}

func (e *Engine) mergeLocked(ctx context.Context, kind models.EntityKind, canonicalID string, targets []string, userID string) (*models.MergeResult, error) {
	result := &models.MergeResult{
		EntityType:  kind,
		CanonicalID: canonicalID,
	}

	var plans []duplicatePlan
	for _, dupID := range targets {
		plan, err := e.planDuplicate(ctx, kind, canonicalID, dupID, userID)
		if err != nil {
			if faults.IsKind(err, faults.KindNotFound) {
				// Already merged away or never existed.
				e.logger.WithContext(ctx).WithField("duplicate_id", dupID).Warn("Skipping missing duplicate")
				result.Skipped = append(result.Skipped, dupID)
				continue
			}
			return nil, err
		}
		plans = append(plans, *plan)
	}

	for _, batch := range packPlans(plans, e.store.MaxBatchOps()) {
		ops := make([]store.Op, 0)
		for _, plan := range batch {
			ops = append(ops, plan.ops...)
		}

		commitStart := time.Now()
		err := e.store.CommitBatch(ctx, ops)
		metrics.StoreBatchDuration.WithLabelValues("merge").Observe(time.Since(commitStart).Seconds())
		if err != nil {
			merged := make([]string, 0, len(result.Merged))
			for _, m := range result.Merged {
				merged = append(merged, m.EntityID)
			}
			pending := make([]string, 0)
			for _, plan := range plansAfter(plans, len(merged)) {
				pending = append(pending, plan.entityID)
			}
			e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"canonical_id": canonicalID,
				"merged":       len(merged),
				"pending":      len(pending),
			}).Error("Merge stopped partway")
			return nil, &faults.PartialBatchError{
				Op:                "merging.Merge",
				Merged:            merged,
				Pending:           pending,
				LiaisonsRelocated: result.LiaisonsRelocated,
				Err:               err,
			}
		}

		for _, plan := range batch {
			result.Merged = append(result.Merged, models.MergedDuplicate{
				EntityID:      plan.entityID,
				LiaisonsMoved: plan.liaisons,
			})
			result.LiaisonsRelocated += plan.liaisons
		}
	}

	result.DuplicatesMerged = len(result.Merged)
	return result, nil
}

// planDuplicate builds the atomic op set for one duplicate: liaison
// relocations, the tombstone, and the delete.
func (e *Engine) planDuplicate(ctx context.Context, kind models.EntityKind, canonicalID, dupID, userID string) (*duplicatePlan, error) {
	const op = "merging.planDuplicate"

	doc, err := e.store.Get(ctx, kind.Collection(), dupID)
	if err != nil {
		return nil, faults.NotFound(op, string(kind), dupID)
	}

	fkField := "structureId"
	var liaisons []models.Liaison
	if kind == models.EntityKindPerson {
		fkField = "personId"
		liaisons, err = e.liaisons.ListByPerson(ctx, dupID, true)
	} else {
		liaisons, err = e.liaisons.ListByStructure(ctx, dupID, true)
	}
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	nowStr := now.Format(time.RFC3339Nano)

	plan := &duplicatePlan{entityID: dupID, liaisons: len(liaisons)}
	for i := range liaisons {
		l := liaisons[i]
		expected := l.Version
		plan.ops = append(plan.ops, store.Op{
			Kind:       store.OpUpdate,
			Collection: store.CollectionLiaisons,
			ID:         l.ID,
			Patch: store.Document{
				fkField:     canonicalID,
				"notes":     fmt.Sprintf("Merged from %s", dupID),
				"version":   expected + 1,
				"updatedAt": nowStr,
				"updatedBy": userID,
			},
			ExpectedVersion: &expected,
		})
	}

	organizationID, _ := doc["organizationId"].(string)
	record := &models.ArchiveRecord{
		ID:             uuid.New().String(),
		OrganizationID: organizationID,
		EntityType:     kind,
		EntityID:       dupID,
		Snapshot:       map[string]any(doc),
		MergedInto:     canonicalID,
		Reason:         "merge",
		ArchivedAt:     now,
		ArchivedBy:     userID,
	}
	archiveDoc, err := store.Encode(record)
	if err != nil {
		return nil, faults.Wrap(op, "archive", record.ID, err)
	}
	plan.ops = append(plan.ops, store.Op{
		Kind:       store.OpCreate,
		Collection: store.CollectionArchive,
		ID:         record.ID,
		Doc:        archiveDoc,
	})

	entityVersion := docVersion(doc)
	plan.ops = append(plan.ops, store.Op{
		Kind:            store.OpDelete,
		Collection:      kind.Collection(),
		ID:              dupID,
		ExpectedVersion: &entityVersion,
	})

	return plan, nil
}

// packPlans greedily packs duplicate plans into sub-batches under the
// store's op cap. A plan never splits across sub-batches; a plan larger
// than the cap ships alone and surfaces the store's own limit error.
func packPlans(plans []duplicatePlan, maxOps int) [][]duplicatePlan {
	if len(plans) == 0 {
		return nil
	}
	if maxOps <= 0 {
		return [][]duplicatePlan{plans}
	}

	var batches [][]duplicatePlan
	var current []duplicatePlan
	currentOps := 0
	for _, plan := range plans {
		if len(current) > 0 && currentOps+len(plan.ops) > maxOps {
			batches = append(batches, current)
			current = nil
			currentOps = 0
		}
		current = append(current, plan)
		currentOps += len(plan.ops)
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}

func plansAfter(plans []duplicatePlan, committed int) []duplicatePlan {
	if committed >= len(plans) {
		return nil
	}
	return plans[committed:]
}

func docVersion(doc store.Document) int64 {
	switch v := doc["version"].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	default:
		return 0
	}
}
