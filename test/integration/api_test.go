package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venuelink/rolodex/internal/repositories/archive"
	"github.com/venuelink/rolodex/internal/repositories/duplicategroup"
	liaisonrepo "github.com/venuelink/rolodex/internal/repositories/liaison"
	"github.com/venuelink/rolodex/internal/repositories/person"
	"github.com/venuelink/rolodex/internal/repositories/structure"
	"github.com/venuelink/rolodex/pkg/detection"
	"github.com/venuelink/rolodex/pkg/importer"
	"github.com/venuelink/rolodex/pkg/liaison"
	"github.com/venuelink/rolodex/pkg/locking"
	"github.com/venuelink/rolodex/pkg/merging"
	"github.com/venuelink/rolodex/pkg/models"
	"github.com/venuelink/rolodex/pkg/review"
	"github.com/venuelink/rolodex/pkg/routes/duplicates"
	"github.com/venuelink/rolodex/pkg/routes/health"
	"github.com/venuelink/rolodex/pkg/routes/imports"
	"github.com/venuelink/rolodex/pkg/routes/liaisons"
	"github.com/venuelink/rolodex/pkg/server"
	"github.com/venuelink/rolodex/pkg/store/memstore"
)

// TestAPIHelpers contains helper functions for API testing
type TestAPIHelpers struct {
	t              *testing.T
	e              *echo.Echo
	store          *memstore.Store
	structures     *structure.Repository
	persons        *person.Repository
	organizationID string
}

func NewTestAPIHelpers(t *testing.T) *TestAPIHelpers {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	st := memstore.New()

	structures := structure.NewRepository(st, logger)
	persons := person.NewRepository(st, logger)
	liaisonRepo := liaisonrepo.NewRepository(st, logger)
	groups := duplicategroup.NewRepository(st, logger)
	archives := archive.NewRepository(st, logger)

	locker := locking.NewLocal()
	detector := detection.NewDetector(structures, persons, groups, nil, locker, logger, detection.Config{})
	manager := liaison.NewManager(liaisonRepo, persons, structures, nil, logger)
	engine := merging.NewEngine(st, liaisonRepo, nil, locker, logger)
	reviews := review.NewService(groups, engine, logger)
	importService := importer.NewService(structures, persons, manager, logger)

	srv := server.New(server.Config{
		AppName:      "rolodex-test",
		Port:         0,
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PATCH", "DELETE"},
	}, logger)

	checker := health.NewChecker(st, nil, "test")
	checker.RegisterRoutes(srv.Echo())
	checker.SetReady(true)

	api := srv.Group("/api/v1")
	duplicates.NewHandler(detector, reviews, archives).Register(api.Group("/duplicates"))
	liaisons.NewHandler(manager).Register(api.Group("/liaisons"))
	imports.NewHandler(importService).Register(api.Group("/import"))

	return &TestAPIHelpers{
		t:              t,
		e:              srv.Echo(),
		store:          st,
		structures:     structures,
		persons:        persons,
		organizationID: "org-test",
	}
}

func (h *TestAPIHelpers) MakeRequest(method, path string, body any) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(h.t, err)
		reqBody = bytes.NewBuffer(data)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Organization-ID", h.organizationID)
	req.Header.Set("X-User-ID", "user-test")

	rec := httptest.NewRecorder()
	h.e.ServeHTTP(rec, req)
	return rec
}

func (h *TestAPIHelpers) Decode(rec *httptest.ResponseRecorder, out any) {
	require.NoError(h.t, json.Unmarshal(rec.Body.Bytes(), out))
}

func (h *TestAPIHelpers) CreateStructure(legalName string) *models.Structure {
	s, err := h.structures.Create(context.Background(), h.organizationID, &models.StructureInput{LegalName: legalName}, "user-test")
	require.NoError(h.t, err)
	return s
}

func (h *TestAPIHelpers) CreatePerson(firstName, lastName, email string) *models.Person {
	p, err := h.persons.Create(context.Background(), h.organizationID, &models.PersonInput{
		FirstName: firstName,
		LastName:  lastName,
		Email:     email,
	}, "user-test")
	require.NoError(h.t, err)
	return p
}

func TestHealthEndpoints(t *testing.T) {
	h := NewTestAPIHelpers(t)

	rec := h.MakeRequest(http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.MakeRequest(http.MethodGet, "/api/v1/health/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLiaisonLifecycleOverHTTP(t *testing.T) {
	h := NewTestAPIHelpers(t)
	s := h.CreateStructure("Le Trianon")
	p := h.CreatePerson("Marie", "Dupont", "marie@letrianon.fr")

	rec := h.MakeRequest(http.MethodPost, "/api/v1/liaisons", map[string]any{
		"structureId": s.ID,
		"personId":    p.ID,
		"function":    "booker",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created models.Liaison
	h.Decode(rec, &created)
	assert.True(t, created.Active)

	// A second association of the same active pair conflicts.
	rec = h.MakeRequest(http.MethodPost, "/api/v1/liaisons", map[string]any{
		"structureId": s.ID,
		"personId":    p.ID,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Dissociate, then the pair is associable again.
	rec = h.MakeRequest(http.MethodPost, "/api/v1/liaisons/"+created.ID+"/dissociate", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.MakeRequest(http.MethodPost, "/api/v1/liaisons", map[string]any{
		"structureId": s.ID,
		"personId":    p.ID,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var reactivated models.Liaison
	h.Decode(rec, &reactivated)
	assert.Equal(t, created.ID, reactivated.ID)

	rec = h.MakeRequest(http.MethodGet, "/api/v1/liaisons/by-structure/"+s.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var list []models.Liaison
	h.Decode(rec, &list)
	assert.Len(t, list, 1)
}

func TestLiaisonRequiresOrganizationHeader(t *testing.T) {
	h := NewTestAPIHelpers(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/liaisons", nil)
	rec := httptest.NewRecorder()
	h.e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDetectReviewMergeFlow(t *testing.T) {
	h := NewTestAPIHelpers(t)
	s1 := h.CreateStructure("Olympia")
	s2 := h.CreateStructure("Olympya")

	rec := h.MakeRequest(http.MethodPost, "/api/v1/duplicates/detect", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var stats detection.Stats
	h.Decode(rec, &stats)
	require.Equal(t, 1, stats.StructureGroups)

	rec = h.MakeRequest(http.MethodGet, "/api/v1/duplicates", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var pending []models.DuplicateGroup
	h.Decode(rec, &pending)
	require.Len(t, pending, 1)
	group := pending[0]
	assert.ElementsMatch(t, []string{s1.ID, s2.ID}, group.MemberIDs())

	rec = h.MakeRequest(http.MethodPost, fmt.Sprintf("/api/v1/duplicates/%s/merge", group.ID), map[string]any{
		"canonicalId": s1.ID,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result models.MergeResult
	h.Decode(rec, &result)
	assert.Equal(t, 1, result.DuplicatesMerged)

	// The merged-away structure leaves a tombstone behind.
	rec = h.MakeRequest(http.MethodGet, "/api/v1/duplicates/archive?canonical_id="+s1.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var records []models.ArchiveRecord
	h.Decode(rec, &records)
	require.Len(t, records, 1)
	assert.Equal(t, s2.ID, records[0].EntityID)

	// The group is closed now.
	rec = h.MakeRequest(http.MethodGet, "/api/v1/duplicates", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pending = nil
	h.Decode(rec, &pending)
	assert.Empty(t, pending)
}

func TestDismissIsTerminalOverHTTP(t *testing.T) {
	h := NewTestAPIHelpers(t)
	h.CreateStructure("Olympia")
	h.CreateStructure("Olympya")

	rec := h.MakeRequest(http.MethodPost, "/api/v1/duplicates/detect", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.MakeRequest(http.MethodGet, "/api/v1/duplicates", nil)
	var pending []models.DuplicateGroup
	h.Decode(rec, &pending)
	require.Len(t, pending, 1)

	rec = h.MakeRequest(http.MethodPost, fmt.Sprintf("/api/v1/duplicates/%s/dismiss", pending[0].ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.MakeRequest(http.MethodPost, fmt.Sprintf("/api/v1/duplicates/%s/dismiss", pending[0].ID), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBulkImportOverHTTP(t *testing.T) {
	h := NewTestAPIHelpers(t)

	rec := h.MakeRequest(http.MethodPost, "/api/v1/import", map[string]any{
		"rows": []map[string]any{
			{
				"line": 2,
				"structure": map[string]any{
					"legalName": "Festival de Jazz de Montreux",
					"city":      "Montreux",
				},
				"contacts": []map[string]any{
					{"firstName": "Claude", "lastName": "Nobs", "email": "claude@montreuxjazz.com"},
				},
			},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result importer.Result
	h.Decode(rec, &result)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.StructuresCreated)
	assert.Equal(t, 1, result.PersonsCreated)
	assert.Equal(t, 1, result.LiaisonsCreated)

	rec = h.MakeRequest(http.MethodPost, "/api/v1/import", map[string]any{"rows": []map[string]any{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
