package liaison

import (
	"context"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	liaisonrepo "github.com/venuelink/rolodex/internal/repositories/liaison"
	"github.com/venuelink/rolodex/internal/repositories/person"
	"github.com/venuelink/rolodex/internal/repositories/structure"
	"github.com/venuelink/rolodex/pkg/faults"
	"github.com/venuelink/rolodex/pkg/models"
	"github.com/venuelink/rolodex/pkg/store/memstore"
)

const testOrg = "org-1"

type fixture struct {
	manager    *Manager
	structures *structure.Repository
	persons    *person.Repository
	liaisons   *liaisonrepo.Repository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memstore.New()
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	structures := structure.NewRepository(st, logger)
	persons := person.NewRepository(st, logger)
	liaisons := liaisonrepo.NewRepository(st, logger)
	return &fixture{
		manager:    NewManager(liaisons, persons, structures, nil, logger),
		structures: structures,
		persons:    persons,
		liaisons:   liaisons,
	}
}

func (f *fixture) structure(t *testing.T, legalName string) *models.Structure {
	t.Helper()
	s, err := f.structures.Create(context.Background(), testOrg, &models.StructureInput{LegalName: legalName}, "user-1")
	require.NoError(t, err)
	return s
}

func (f *fixture) person(t *testing.T, firstName, lastName, email string) *models.Person {
	t.Helper()
	p, err := f.persons.Create(context.Background(), testOrg, &models.PersonInput{
		FirstName: firstName,
		LastName:  lastName,
		Email:     email,
	}, "user-1")
	require.NoError(t, err)
	return p
}

func (f *fixture) associate(t *testing.T, structureID, personID string) *models.Liaison {
	t.Helper()
	l, err := f.manager.Associate(context.Background(), &models.CreateLiaisonRequest{
		OrganizationID: testOrg,
		StructureID:    structureID,
		PersonID:       personID,
	}, "user-1")
	require.NoError(t, err)
	return l
}

func TestAssociateCreatesActiveLiaison(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.structure(t, "Le Trianon")
	p := f.person(t, "Marie", "Dupont", "marie@letrianon.fr")

	l, err := f.manager.Associate(ctx, &models.CreateLiaisonRequest{
		OrganizationID: testOrg,
		StructureID:    s.ID,
		PersonID:       p.ID,
		Function:       "booker",
	}, "user-1")
	require.NoError(t, err)

	assert.True(t, l.Active)
	assert.Equal(t, "booker", l.Function)
	assert.False(t, l.StartDate.IsZero())
	assert.Equal(t, int64(1), l.Version)

	// The person is attached now.
	refreshed, err := f.persons.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, refreshed.IsUnattached)
}

func TestAssociateRejectsActivePair(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.structure(t, "Le Trianon")
	p := f.person(t, "Marie", "Dupont", "marie@letrianon.fr")
	f.associate(t, s.ID, p.ID)

	_, err := f.manager.Associate(ctx, &models.CreateLiaisonRequest{
		OrganizationID: testOrg,
		StructureID:    s.ID,
		PersonID:       p.ID,
	}, "user-1")
	require.Error(t, err)
	assert.True(t, faults.IsKind(err, faults.KindDuplicateLiaison))
}

func TestAssociateRequiresBothEntities(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.structure(t, "Le Trianon")

	_, err := f.manager.Associate(ctx, &models.CreateLiaisonRequest{
		OrganizationID: testOrg,
		StructureID:    s.ID,
		PersonID:       "p-none",
	}, "user-1")
	require.Error(t, err)
	assert.True(t, faults.IsKind(err, faults.KindNotFound))
}

func TestDissociateThenReassociateReactivatesSameRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.structure(t, "Le Trianon")
	p := f.person(t, "Marie", "Dupont", "marie@letrianon.fr")
	original := f.associate(t, s.ID, p.ID)

	dissociated, err := f.manager.Dissociate(ctx, original.ID, "user-1")
	require.NoError(t, err)
	assert.False(t, dissociated.Active)
	require.NotNil(t, dissociated.EndDate)

	// Dissociating the person's only liaison marks them unattached.
	refreshed, err := f.persons.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, refreshed.IsUnattached)

	reactivated, err := f.manager.Associate(ctx, &models.CreateLiaisonRequest{
		OrganizationID: testOrg,
		StructureID:    s.ID,
		PersonID:       p.ID,
		Function:       "tourneur",
	}, "user-1")
	require.NoError(t, err)

	assert.Equal(t, original.ID, reactivated.ID)
	assert.True(t, reactivated.Active)
	assert.Nil(t, reactivated.EndDate)
	assert.Equal(t, "tourneur", reactivated.Function)

	all, err := f.liaisons.ListByStructure(ctx, s.ID, true)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestReassociateAppliesRequestedFlags(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.structure(t, "Le Trianon")
	p1 := f.person(t, "Marie", "Dupont", "marie@letrianon.fr")
	p2 := f.person(t, "Jean", "Martin", "jean@letrianon.fr")
	ended := f.associate(t, s.ID, p1.ID)
	_, err := f.manager.Dissociate(ctx, ended.ID, "user-1")
	require.NoError(t, err)

	// Another contact holds the prioritary slot in the meantime.
	f.associate(t, s.ID, p2.ID)
	_, err = f.manager.SetPrioritary(ctx, testOrg, s.ID, p2.ID, "user-1")
	require.NoError(t, err)

	reactivated, err := f.manager.Associate(ctx, &models.CreateLiaisonRequest{
		OrganizationID: testOrg,
		StructureID:    s.ID,
		PersonID:       p1.ID,
		Prioritary:     true,
		Interested:     true,
	}, "user-1")
	require.NoError(t, err)

	assert.Equal(t, ended.ID, reactivated.ID)
	assert.True(t, reactivated.Prioritary)
	assert.True(t, reactivated.Interested)

	// The reactivation demoted the previous prioritary liaison.
	prioritary, err := f.liaisons.ListPrioritary(ctx, testOrg, s.ID)
	require.NoError(t, err)
	require.Len(t, prioritary, 1)
	assert.Equal(t, p1.ID, prioritary[0].PersonID)
}

func TestPrioritaryIsExclusivePerStructure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.structure(t, "Le Trianon")
	p1 := f.person(t, "Marie", "Dupont", "marie@letrianon.fr")
	p2 := f.person(t, "Jean", "Martin", "jean@letrianon.fr")
	f.associate(t, s.ID, p1.ID)
	f.associate(t, s.ID, p2.ID)

	first, err := f.manager.SetPrioritary(ctx, testOrg, s.ID, p1.ID, "user-1")
	require.NoError(t, err)
	assert.True(t, first.Prioritary)

	second, err := f.manager.SetPrioritary(ctx, testOrg, s.ID, p2.ID, "user-1")
	require.NoError(t, err)
	assert.True(t, second.Prioritary)

	prioritary, err := f.liaisons.ListPrioritary(ctx, testOrg, s.ID)
	require.NoError(t, err)
	require.Len(t, prioritary, 1)
	assert.Equal(t, p2.ID, prioritary[0].PersonID)
}

func TestAssociateWithPrioritaryDemotesCurrent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.structure(t, "Le Trianon")
	p1 := f.person(t, "Marie", "Dupont", "marie@letrianon.fr")
	p2 := f.person(t, "Jean", "Martin", "jean@letrianon.fr")
	f.associate(t, s.ID, p1.ID)
	_, err := f.manager.SetPrioritary(ctx, testOrg, s.ID, p1.ID, "user-1")
	require.NoError(t, err)

	l, err := f.manager.Associate(ctx, &models.CreateLiaisonRequest{
		OrganizationID: testOrg,
		StructureID:    s.ID,
		PersonID:       p2.ID,
		Prioritary:     true,
	}, "user-1")
	require.NoError(t, err)
	assert.True(t, l.Prioritary)

	prioritary, err := f.liaisons.ListPrioritary(ctx, testOrg, s.ID)
	require.NoError(t, err)
	require.Len(t, prioritary, 1)
	assert.Equal(t, p2.ID, prioritary[0].PersonID)
}

func TestSetPrioritaryRequiresActiveLiaison(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.structure(t, "Le Trianon")
	p := f.person(t, "Marie", "Dupont", "marie@letrianon.fr")
	l := f.associate(t, s.ID, p.ID)
	_, err := f.manager.Dissociate(ctx, l.ID, "user-1")
	require.NoError(t, err)

	_, err = f.manager.SetPrioritary(ctx, testOrg, s.ID, p.ID, "user-1")
	require.Error(t, err)
	assert.True(t, faults.IsKind(err, faults.KindNotFound))
}

func TestUpdateClearsPrioritary(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.structure(t, "Le Trianon")
	p := f.person(t, "Marie", "Dupont", "marie@letrianon.fr")
	l := f.associate(t, s.ID, p.ID)
	_, err := f.manager.SetPrioritary(ctx, testOrg, s.ID, p.ID, "user-1")
	require.NoError(t, err)

	off := false
	updated, err := f.manager.Update(ctx, l.ID, &models.UpdateLiaisonRequest{Prioritary: &off}, "user-1")
	require.NoError(t, err)
	assert.False(t, updated.Prioritary)
}

func TestStatsAggregates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.structure(t, "Le Trianon")
	p1 := f.person(t, "Marie", "Dupont", "marie@letrianon.fr")
	p2 := f.person(t, "Jean", "Martin", "jean@letrianon.fr")

	l1, err := f.manager.Associate(ctx, &models.CreateLiaisonRequest{
		OrganizationID: testOrg, StructureID: s.ID, PersonID: p1.ID,
		Function: "booker", Interested: true,
	}, "user-1")
	require.NoError(t, err)
	_ = l1

	l2 := f.associate(t, s.ID, p2.ID)
	_, err = f.manager.Dissociate(ctx, l2.ID, "user-1")
	require.NoError(t, err)

	stats, err := f.manager.Stats(ctx, testOrg)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Active)
	assert.Equal(t, 1, stats.Inactive)
	assert.Equal(t, 1, stats.Interested)
	assert.Equal(t, 1, stats.ByFunction["booker"])
}

func TestRecomputeUnattachedFlagsRepairsDrift(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.structure(t, "Le Trianon")
	p1 := f.person(t, "Marie", "Dupont", "marie@letrianon.fr")
	p2 := f.person(t, "Jean", "Martin", "jean@letrianon.fr")
	f.associate(t, s.ID, p1.ID)

	// Simulate drift: p1 is attached but flagged unattached, p2 the
	// opposite.
	require.NoError(t, f.persons.SetUnattached(ctx, p1.ID, true))
	require.NoError(t, f.persons.SetUnattached(ctx, p2.ID, false))

	fixed, err := f.manager.RecomputeUnattachedFlags(ctx, testOrg)
	require.NoError(t, err)
	assert.Equal(t, 2, fixed)

	p1r, err := f.persons.Get(ctx, p1.ID)
	require.NoError(t, err)
	assert.False(t, p1r.IsUnattached)
	p2r, err := f.persons.Get(ctx, p2.ID)
	require.NoError(t, err)
	assert.True(t, p2r.IsUnattached)
}
