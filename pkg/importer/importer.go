// Package importer performs bulk contact ingestion: one row carries an
// optional structure plus its contact persons, upserted by their natural
// identities so a re-run of the same file converges instead of duplicating.
package importer

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"

	"github.com/venuelink/rolodex/internal/repositories/person"
	"github.com/venuelink/rolodex/internal/repositories/structure"
	"github.com/venuelink/rolodex/pkg/faults"
	"github.com/venuelink/rolodex/pkg/liaison"
	"github.com/venuelink/rolodex/pkg/metrics"
	"github.com/venuelink/rolodex/pkg/models"
	"github.com/venuelink/rolodex/pkg/normalizers"
	"github.com/venuelink/rolodex/pkg/store"
	"github.com/venuelink/rolodex/pkg/tracing"
)

// ContactRow is one person column set of an import row.
type ContactRow struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Function  string `json:"function,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// Complete reports whether the contact carries the minimum identity fields.
// Partial contacts are skipped with a warning, matching how short columns in
// a spreadsheet row behave.
func (c ContactRow) Complete() bool {
	return c.FirstName != "" && c.LastName != "" && c.Email != ""
}

// Row is one import row: an optional structure and up to a few contacts. The
// first contact becomes the structure's prioritary liaison when the liaison
// is newly created.
type Row struct {
	Line      int                    `json:"line"`
	Structure *models.StructureInput `json:"structure,omitempty"`
	Contacts  []ContactRow           `json:"contacts,omitempty"`
}

// RowIssue is a per-row error or warning, addressed by source line.
type RowIssue struct {
	Line    int    `json:"line"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// Result aggregates a bulk import run.
type Result struct {
	TotalRows         int        `json:"totalRows"`
	Processed         int        `json:"processed"`
	StructuresCreated int        `json:"structuresCreated"`
	StructuresUpdated int        `json:"structuresUpdated"`
	PersonsCreated    int        `json:"personsCreated"`
	PersonsUpdated    int        `json:"personsUpdated"`
	LiaisonsCreated   int        `json:"liaisonsCreated"`
	Errors            []RowIssue `json:"errors,omitempty"`
	Warnings          []RowIssue `json:"warnings,omitempty"`
}

// ProgressFunc receives progress after each processed row.
type ProgressFunc func(processed, total int)

// Options tunes a bulk import run.
type Options struct {
	// DryRun validates rows without writing anything.
	DryRun bool
	// Progress, when set, is called after every row.
	Progress ProgressFunc
}

// Service imports contact rows.
type Service struct {
	structures *structure.Repository
	persons    *person.Repository
	liaisons   *liaison.Manager
	validate   *validator.Validate
	logger     ectologger.Logger
}

// NewService creates a new import service.
func NewService(
	structures *structure.Repository,
	persons *person.Repository,
	liaisons *liaison.Manager,
	logger ectologger.Logger,
) *Service {
	return &Service{
		structures: structures,
		persons:    persons,
		liaisons:   liaisons,
		validate:   validator.New(),
		logger:     logger,
	}
}

// UpsertStructure creates the structure or updates the one already carrying
// the legal name within the organization. Returns whether it was created.
func (s *Service) UpsertStructure(ctx context.Context, organizationID string, input *models.StructureInput, userID string) (*models.Structure, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "importer.Service.UpsertStructure")
	defer span.End()

	existing, err := s.structures.FindByLegalName(ctx, organizationID, input.LegalName)
	if err != nil && !faults.IsKind(err, faults.KindNotFound) {
		return nil, false, err
	}

	if existing == nil {
		created, err := s.structures.Create(ctx, organizationID, input, userID)
		if err != nil {
			return nil, false, err
		}
		return created, true, nil
	}

	patch := store.Document{"legalName": input.LegalName}
	setIfPresent(patch, "email", input.Email)
	setIfPresent(patch, "phone", input.Phone)
	setIfPresent(patch, "address", input.Address)
	setIfPresent(patch, "postalCode", input.PostalCode)
	setIfPresent(patch, "city", input.City)
	setIfPresent(patch, "country", input.Country)
	if len(input.ContactTags) > 0 {
		patch["contactTags"] = input.ContactTags
	}
	if input.IsClient {
		patch["isClient"] = true
	}

	updated, err := s.structures.Update(ctx, existing.ID, patch, userID)
	if err != nil {
		return nil, false, err
	}
	return updated, false, nil
}

// UpsertPerson creates the person or updates the one already carrying the
// email within the organization. A person without an email is always created;
// there is no identity to match on.
func (s *Service) UpsertPerson(ctx context.Context, organizationID string, input *models.PersonInput, userID string) (*models.Person, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "importer.Service.UpsertPerson")
	defer span.End()

	var existing *models.Person
	if input.Email != "" {
		found, err := s.persons.FindByEmail(ctx, organizationID, input.Email)
		if err != nil && !faults.IsKind(err, faults.KindNotFound) {
			return nil, false, err
		}
		existing = found
	}

	if existing == nil {
		created, err := s.persons.Create(ctx, organizationID, input, userID)
		if err != nil {
			return nil, false, err
		}
		return created, true, nil
	}

	patch := store.Document{
		"firstName": input.FirstName,
		"lastName":  input.LastName,
	}
	setIfPresent(patch, "phone", input.Phone)
	setIfPresent(patch, "mobile", input.Mobile)
	setIfPresent(patch, "function", input.Function)

	updated, err := s.persons.Update(ctx, existing.ID, patch, userID)
	if err != nil {
		return nil, false, err
	}
	return updated, false, nil
}

// BulkImport processes every row, collecting per-row failures instead of
// aborting. Rows that fail leave earlier rows applied.
func (s *Service) BulkImport(ctx context.Context, organizationID string, rows []Row, userID string, opts Options) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "importer.Service.BulkImport")
	defer span.End()

	result := &Result{TotalRows: len(rows)}

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		issues := s.validateRow(row)
		fatal := false
		for _, issue := range issues {
			if issue.Field == "" || issue.Field == "structure" {
				result.Errors = append(result.Errors, issue)
				fatal = true
			} else {
				result.Warnings = append(result.Warnings, issue)
			}
		}
		if fatal {
			metrics.ImportRecordsTotal.WithLabelValues("row", "invalid").Inc()
			continue
		}

		if !opts.DryRun {
			if err := s.importRow(ctx, organizationID, row, userID, result); err != nil {
				result.Errors = append(result.Errors, RowIssue{Line: row.Line, Message: err.Error()})
				metrics.ImportRecordsTotal.WithLabelValues("row", "error").Inc()
				s.logger.WithContext(ctx).WithError(err).WithField("line", row.Line).Warn("Import row failed")
				continue
			}
		}

		result.Processed++
		if opts.Progress != nil {
			opts.Progress(result.Processed, result.TotalRows)
		}
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"organization_id": organizationID,
		"total":           result.TotalRows,
		"processed":       result.Processed,
		"errors":          len(result.Errors),
	}).Info("Bulk import finished")
	return result, nil
}

// validateRow checks row-level consistency. Issues with a contact field are
// warnings; the rest reject the row.
func (s *Service) validateRow(row Row) []RowIssue {
	var issues []RowIssue

	hasStructure := row.Structure != nil && row.Structure.LegalName != ""
	hasContact := false
	for _, c := range row.Contacts {
		if c.Complete() {
			hasContact = true
			break
		}
	}
	if !hasStructure && !hasContact {
		return []RowIssue{{Line: row.Line, Message: "row carries neither a structure nor a complete contact"}}
	}

	if hasStructure {
		if err := s.validate.Struct(row.Structure); err != nil {
			return []RowIssue{{Line: row.Line, Field: "structure", Message: err.Error()}}
		}
	}

	seen := make(map[string]bool)
	for _, c := range row.Contacts {
		if !c.Complete() {
			if c.FirstName != "" || c.LastName != "" || c.Email != "" {
				issues = append(issues, RowIssue{
					Line:    row.Line,
					Field:   "contacts",
					Message: "incomplete contact skipped, first name, last name and email are required",
				})
			}
			continue
		}
		email := normalizers.NormalizeEmail(c.Email)
		if seen[email] {
			issues = append(issues, RowIssue{
				Line:    row.Line,
				Field:   "contacts",
				Message: "duplicate contact email on the same row",
			})
		}
		seen[email] = true
	}
	return issues
}

func (s *Service) importRow(ctx context.Context, organizationID string, row Row, userID string, result *Result) error {
	var structureID string
	if row.Structure != nil && row.Structure.LegalName != "" {
		st, created, err := s.UpsertStructure(ctx, organizationID, row.Structure, userID)
		if err != nil {
			metrics.ImportRecordsTotal.WithLabelValues("structure", "error").Inc()
			return err
		}
		structureID = st.ID
		if created {
			result.StructuresCreated++
			metrics.ImportRecordsTotal.WithLabelValues("structure", "created").Inc()
		} else {
			result.StructuresUpdated++
			metrics.ImportRecordsTotal.WithLabelValues("structure", "updated").Inc()
		}
	}

	first := true
	for _, contact := range row.Contacts {
		if !contact.Complete() {
			continue
		}

		p, created, err := s.UpsertPerson(ctx, organizationID, &models.PersonInput{
			FirstName: contact.FirstName,
			LastName:  contact.LastName,
			Email:     contact.Email,
			Phone:     contact.Phone,
			Function:  contact.Function,
		}, userID)
		if err != nil {
			metrics.ImportRecordsTotal.WithLabelValues("person", "error").Inc()
			return err
		}
		if created {
			result.PersonsCreated++
			metrics.ImportRecordsTotal.WithLabelValues("person", "created").Inc()
		} else {
			result.PersonsUpdated++
			metrics.ImportRecordsTotal.WithLabelValues("person", "updated").Inc()
		}

		if structureID != "" {
			_, err := s.liaisons.Associate(ctx, &models.CreateLiaisonRequest{
				OrganizationID: organizationID,
				StructureID:    structureID,
				PersonID:       p.ID,
				Function:       contact.Function,
				Prioritary:     first,
			}, userID)
			switch {
			case err == nil:
				result.LiaisonsCreated++
				metrics.ImportRecordsTotal.WithLabelValues("liaison", "created").Inc()
			case faults.IsKind(err, faults.KindDuplicateLiaison):
				// Already associated, a re-imported file lands here.
			default:
				metrics.ImportRecordsTotal.WithLabelValues("liaison", "error").Inc()
				return err
			}
		}
		first = false
	}

	return nil
}

func setIfPresent(patch store.Document, field, value string) {
	if value != "" {
		patch[field] = value
	}
}
