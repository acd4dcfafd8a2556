package models

import "time"

// Structure is an organization-type contact entity (venue, label, festival,
// promoter). Uniqueness of LegalName within an organization is enforced by
// the service layer; the document store has no native constraints.
type Structure struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organizationId"`
	LegalName      string    `json:"legalName"`
	Email          string    `json:"email,omitempty"`
	Phone          string    `json:"phone,omitempty"`
	Address        string    `json:"address,omitempty"`
	PostalCode     string    `json:"postalCode,omitempty"`
	City           string    `json:"city,omitempty"`
	Country        string    `json:"country,omitempty"`
	ContactTags    []string  `json:"contactTags,omitempty"`
	IsClient       bool      `json:"isClient"`
	Version        int64     `json:"version"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	CreatedBy      string    `json:"createdBy,omitempty"`
	UpdatedBy      string    `json:"updatedBy,omitempty"`
}

// StructureInput is the payload for creating or upserting a structure.
type StructureInput struct {
	LegalName   string   `json:"legalName" validate:"required,min=1"`
	Email       string   `json:"email,omitempty" validate:"omitempty,email"`
	Phone       string   `json:"phone,omitempty"`
	Address     string   `json:"address,omitempty"`
	PostalCode  string   `json:"postalCode,omitempty"`
	City        string   `json:"city,omitempty"`
	Country     string   `json:"country,omitempty"`
	ContactTags []string `json:"contactTags,omitempty"`
	IsClient    bool     `json:"isClient"`
}
