package merging

import (
	"context"
	"fmt"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	liaisonrepo "github.com/venuelink/rolodex/internal/repositories/liaison"
	"github.com/venuelink/rolodex/pkg/faults"
	"github.com/venuelink/rolodex/pkg/locking"
	"github.com/venuelink/rolodex/pkg/models"
	"github.com/venuelink/rolodex/pkg/store"
	"github.com/venuelink/rolodex/pkg/store/memstore"
)

const testOrg = "org-1"

func newTestEngine(t *testing.T, st *memstore.Store) *Engine {
	t.Helper()
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	liaisons := liaisonrepo.NewRepository(st, logger)
	return NewEngine(st, liaisons, nil, locking.NewLocal(), logger)
}

func seedStructure(t *testing.T, st *memstore.Store, id, legalName string) {
	t.Helper()
	doc, err := store.Encode(&models.Structure{
		ID:             id,
		OrganizationID: testOrg,
		LegalName:      legalName,
		Version:        1,
	})
	require.NoError(t, err)
	require.NoError(t, st.Create(context.Background(), store.CollectionStructures, id, doc))
}

func seedLiaison(t *testing.T, st *memstore.Store, id, structureID, personID string, active bool) {
	t.Helper()
	doc, err := store.Encode(&models.Liaison{
		ID:             id,
		OrganizationID: testOrg,
		StructureID:    structureID,
		PersonID:       personID,
		Active:         active,
		Version:        1,
	})
	require.NoError(t, err)
	require.NoError(t, st.Create(context.Background(), store.CollectionLiaisons, id, doc))
}

func TestMergeRelocatesLiaisonsAndArchivesDuplicate(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	engine := newTestEngine(t, st)

	seedStructure(t, st, "s-canonical", "Le Trianon")
	seedStructure(t, st, "s-dup", "Trianon")
	seedLiaison(t, st, "l-1", "s-dup", "p-1", true)
	seedLiaison(t, st, "l-2", "s-dup", "p-2", false)

	result, err := engine.Merge(ctx, models.EntityKindStructure, "s-canonical", []string{"s-dup"}, "user-1")
	require.NoError(t, err)

	assert.Equal(t, 1, result.DuplicatesMerged)
	assert.Equal(t, 2, result.LiaisonsRelocated)
	assert.Empty(t, result.Skipped)

	// Both liaisons, active and not, now point at the canonical structure.
	for _, id := range []string{"l-1", "l-2"} {
		doc, err := st.Get(ctx, store.CollectionLiaisons, id)
		require.NoError(t, err)

		var l models.Liaison
		require.NoError(t, store.Decode(doc, &l))
		assert.Equal(t, "s-canonical", l.StructureID)
		assert.Equal(t, "Merged from s-dup", l.Notes)
		assert.Equal(t, int64(2), l.Version)
		assert.Equal(t, "user-1", l.UpdatedBy)
	}

	// The duplicate is gone and a tombstone holds its last state.
	_, err = st.Get(ctx, store.CollectionStructures, "s-dup")
	assert.ErrorIs(t, err, store.ErrNotFound)

	archived, err := st.List(ctx, store.CollectionArchive, store.Where("entityId", "s-dup"))
	require.NoError(t, err)
	require.Len(t, archived, 1)

	var record models.ArchiveRecord
	require.NoError(t, store.Decode(archived[0], &record))
	assert.Equal(t, "s-canonical", record.MergedInto)
	assert.Equal(t, "merge", record.Reason)
	assert.Equal(t, models.EntityKindStructure, record.EntityType)
	assert.Equal(t, "Trianon", record.Snapshot["legalName"])
}

func TestMergeSkipsMissingDuplicates(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	engine := newTestEngine(t, st)

	seedStructure(t, st, "s-canonical", "Olympia")
	seedStructure(t, st, "s-dup", "L'Olympia")

	result, err := engine.Merge(ctx, models.EntityKindStructure, "s-canonical", []string{"s-dup", "s-gone"}, "user-1")
	require.NoError(t, err)

	assert.Equal(t, 1, result.DuplicatesMerged)
	assert.Equal(t, []string{"s-gone"}, result.Skipped)
}

func TestMergeRetryIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	engine := newTestEngine(t, st)

	seedStructure(t, st, "s-canonical", "Olympia")
	seedStructure(t, st, "s-dup", "L'Olympia")

	_, err := engine.Merge(ctx, models.EntityKindStructure, "s-canonical", []string{"s-dup"}, "user-1")
	require.NoError(t, err)

	result, err := engine.Merge(ctx, models.EntityKindStructure, "s-canonical", []string{"s-dup"}, "user-1")
	require.NoError(t, err)
	assert.Zero(t, result.DuplicatesMerged)
	assert.Equal(t, []string{"s-dup"}, result.Skipped)
}

func TestMergeRejectsSelfMerge(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	engine := newTestEngine(t, st)

	seedStructure(t, st, "s-1", "Olympia")

	_, err := engine.Merge(ctx, models.EntityKindStructure, "s-1", []string{"s-1"}, "user-1")
	require.Error(t, err)
	assert.True(t, faults.IsKind(err, faults.KindValidation))
}

func TestMergeRejectsEmptyDuplicates(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t, memstore.New())

	_, err := engine.Merge(ctx, models.EntityKindStructure, "s-1", nil, "user-1")
	require.Error(t, err)
	assert.True(t, faults.IsKind(err, faults.KindValidation))
}

func TestMergeRejectsUnknownKind(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t, memstore.New())

	_, err := engine.Merge(ctx, models.EntityKind("venue"), "s-1", []string{"s-2"}, "user-1")
	require.Error(t, err)
	assert.True(t, faults.IsKind(err, faults.KindValidation))
}

func TestMergeMissingCanonical(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t, memstore.New())

	_, err := engine.Merge(ctx, models.EntityKindStructure, "s-none", []string{"s-2"}, "user-1")
	require.Error(t, err)
	assert.True(t, faults.IsKind(err, faults.KindNotFound))
}

func TestMergePartialFailureReportsCommittedAndPending(t *testing.T) {
	ctx := context.Background()
	// Limit of 2: the liaison-free duplicate fits one sub-batch, the
	// duplicate with a liaison needs 3 ops and its sub-batch fails.
	st := memstore.NewWithBatchLimit(2)
	engine := newTestEngine(t, st)

	seedStructure(t, st, "s-canonical", "Olympia")
	seedStructure(t, st, "s-dup-1", "L'Olympia")
	seedStructure(t, st, "s-dup-2", "Olympia Paris")
	seedLiaison(t, st, "l-1", "s-dup-2", "p-1", true)

	_, err := engine.Merge(ctx, models.EntityKindStructure, "s-canonical", []string{"s-dup-1", "s-dup-2"}, "user-1")
	require.Error(t, err)

	var pb *faults.PartialBatchError
	require.ErrorAs(t, err, &pb)
	assert.Equal(t, []string{"s-dup-1"}, pb.Merged)
	assert.Equal(t, []string{"s-dup-2"}, pb.Pending)

	// The first duplicate stays merged, the second is untouched.
	_, err = st.Get(ctx, store.CollectionStructures, "s-dup-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = st.Get(ctx, store.CollectionStructures, "s-dup-2")
	assert.NoError(t, err)
}

func TestMergeInjectedBatchFailure(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	engine := newTestEngine(t, st)

	seedStructure(t, st, "s-canonical", "Olympia")
	seedStructure(t, st, "s-dup", "L'Olympia")

	st.FailNextBatch = fmt.Errorf("write quota exhausted")

	_, err := engine.Merge(ctx, models.EntityKindStructure, "s-canonical", []string{"s-dup"}, "user-1")
	require.Error(t, err)

	var pb *faults.PartialBatchError
	require.ErrorAs(t, err, &pb)
	assert.Empty(t, pb.Merged)
	assert.Equal(t, []string{"s-dup"}, pb.Pending)

	// Nothing applied.
	_, err = st.Get(ctx, store.CollectionStructures, "s-dup")
	assert.NoError(t, err)
}

func TestMergeDeduplicatesTargetList(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	engine := newTestEngine(t, st)

	seedStructure(t, st, "s-canonical", "Olympia")
	seedStructure(t, st, "s-dup", "L'Olympia")

	result, err := engine.Merge(ctx, models.EntityKindStructure, "s-canonical", []string{"s-dup", "s-dup"}, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.DuplicatesMerged)
}
