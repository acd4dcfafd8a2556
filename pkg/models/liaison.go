package models

import "time"

// Liaison is the join record for "person works with structure". At most one
// liaison per (organization, structure, person) pair may be active at a time;
// dissociation soft-deletes and a later association reactivates the same
// record. At most one active liaison per structure may be prioritary.
type Liaison struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organizationId"`
	StructureID    string     `json:"structureId"`
	PersonID       string     `json:"personId"`
	Function       string     `json:"function,omitempty"`
	Active         bool       `json:"active"`
	Prioritary     bool       `json:"prioritary"`
	Interested     bool       `json:"interested"`
	StartDate      time.Time  `json:"startDate"`
	EndDate        *time.Time `json:"endDate,omitempty"`
	Notes          string     `json:"notes,omitempty"`
	Version        int64      `json:"version"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	CreatedBy      string     `json:"createdBy,omitempty"`
	UpdatedBy      string     `json:"updatedBy,omitempty"`
}

// CreateLiaisonRequest is the payload for associating a person to a structure.
type CreateLiaisonRequest struct {
	OrganizationID string `json:"organizationId" validate:"required"`
	StructureID    string `json:"structureId" validate:"required"`
	PersonID       string `json:"personId" validate:"required"`
	Function       string `json:"function,omitempty"`
	Prioritary     bool   `json:"prioritary"`
	Interested     bool   `json:"interested"`
}

// UpdateLiaisonRequest is a partial update. Nil fields are left untouched.
type UpdateLiaisonRequest struct {
	Function   *string `json:"function,omitempty"`
	Prioritary *bool   `json:"prioritary,omitempty"`
	Interested *bool   `json:"interested,omitempty"`
	Notes      *string `json:"notes,omitempty"`
}
