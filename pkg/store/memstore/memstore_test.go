package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venuelink/rolodex/pkg/store"
)

func TestCRUDRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New()

	err := s.Create(ctx, store.CollectionPersons, "p1", store.Document{
		"id":      "p1",
		"email":   "jane@venue.test",
		"version": int64(1),
	})
	require.NoError(t, err)

	doc, err := s.Get(ctx, store.CollectionPersons, "p1")
	require.NoError(t, err)
	assert.Equal(t, "jane@venue.test", doc["email"])

	err = s.Update(ctx, store.CollectionPersons, "p1", store.Document{"email": "jane@other.test"})
	require.NoError(t, err)

	doc, err = s.Get(ctx, store.CollectionPersons, "p1")
	require.NoError(t, err)
	assert.Equal(t, "jane@other.test", doc["email"])

	require.NoError(t, s.Delete(ctx, store.CollectionPersons, "p1"))
	_, err = s.Get(ctx, store.CollectionPersons, "p1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.Create(ctx, store.CollectionStructures, "s1", store.Document{
		"legalName": "Blue Note",
		"tags":      []any{"venue"},
	}))

	doc, err := s.Get(ctx, store.CollectionStructures, "s1")
	require.NoError(t, err)
	doc["legalName"] = "mutated"
	doc["tags"].([]any)[0] = "mutated"

	fresh, err := s.Get(ctx, store.CollectionStructures, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Blue Note", fresh["legalName"])
	assert.Equal(t, "venue", fresh["tags"].([]any)[0])
}

func TestListEqualityFilters(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.Create(ctx, store.CollectionLiaisons, "l1", store.Document{
		"structureId": "s1", "personId": "p1", "active": true,
	}))
	require.NoError(t, s.Create(ctx, store.CollectionLiaisons, "l2", store.Document{
		"structureId": "s1", "personId": "p2", "active": false,
	}))

	docs, err := s.List(ctx, store.CollectionLiaisons,
		store.Where("structureId", "s1"), store.Where("active", true))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "p1", docs[0]["personId"])
}

func TestListMatchesAcrossNumericRepresentations(t *testing.T) {
	ctx := context.Background()
	s := New()

	// Documents round-tripped through the JSON codec carry float64 numbers.
	require.NoError(t, s.Create(ctx, store.CollectionPersons, "p1", store.Document{
		"version": float64(3),
	}))

	docs, err := s.List(ctx, store.CollectionPersons, store.Where("version", int64(3)))
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestCommitBatchAtomicOnVersionConflict(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.Create(ctx, store.CollectionPersons, "p1", store.Document{"version": int64(1), "name": "a"}))
	require.NoError(t, s.Create(ctx, store.CollectionPersons, "p2", store.Document{"version": int64(5), "name": "b"}))

	expected := int64(1)
	stale := int64(4)
	err := s.CommitBatch(ctx, []store.Op{
		{Kind: store.OpUpdate, Collection: store.CollectionPersons, ID: "p1", Patch: store.Document{"name": "a2"}, ExpectedVersion: &expected},
		{Kind: store.OpUpdate, Collection: store.CollectionPersons, ID: "p2", Patch: store.Document{"name": "b2"}, ExpectedVersion: &stale},
	})
	require.ErrorIs(t, err, store.ErrVersionConflict)

	// First op must not have been applied.
	doc, err := s.Get(ctx, store.CollectionPersons, "p1")
	require.NoError(t, err)
	assert.Equal(t, "a", doc["name"])
}

func TestCommitBatchCreateUpdateDelete(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.Create(ctx, store.CollectionLiaisons, "l1", store.Document{"active": true}))
	require.NoError(t, s.Create(ctx, store.CollectionPersons, "p1", store.Document{"name": "old"}))

	err := s.CommitBatch(ctx, []store.Op{
		{Kind: store.OpCreate, Collection: store.CollectionArchive, ID: "a1", Doc: store.Document{"entityId": "p1"}},
		{Kind: store.OpUpdate, Collection: store.CollectionLiaisons, ID: "l1", Patch: store.Document{"active": false}},
		{Kind: store.OpDelete, Collection: store.CollectionPersons, ID: "p1"},
	})
	require.NoError(t, err)

	_, err = s.Get(ctx, store.CollectionArchive, "a1")
	assert.NoError(t, err)
	liaison, err := s.Get(ctx, store.CollectionLiaisons, "l1")
	require.NoError(t, err)
	assert.Equal(t, false, liaison["active"])
	_, err = s.Get(ctx, store.CollectionPersons, "p1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestBatchLimitEnforced(t *testing.T) {
	ctx := context.Background()
	s := NewWithBatchLimit(1)

	err := s.CommitBatch(ctx, []store.Op{
		{Kind: store.OpCreate, Collection: store.CollectionPersons, ID: "p1", Doc: store.Document{}},
		{Kind: store.OpCreate, Collection: store.CollectionPersons, ID: "p2", Doc: store.Document{}},
	})
	assert.Error(t, err)
}

func TestUpdateNilValueRemovesField(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.Create(ctx, store.CollectionLiaisons, "l1", store.Document{
		"active":  true,
		"endDate": "2025-01-01T00:00:00Z",
	}))
	require.NoError(t, s.Update(ctx, store.CollectionLiaisons, "l1", store.Document{"endDate": nil}))

	doc, err := s.Get(ctx, store.CollectionLiaisons, "l1")
	require.NoError(t, err)
	_, present := doc["endDate"]
	assert.False(t, present)
}
