package models

import "time"

// Person is an individual contact entity. Email is unique within an
// organization when present. IsUnattached is a derived cache maintained by
// the liaison manager: true iff the person has zero active liaisons. It is
// eventually consistent and repaired by RecomputeUnattachedFlags.
type Person struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organizationId"`
	FirstName      string    `json:"firstName"`
	LastName       string    `json:"lastName"`
	Email          string    `json:"email,omitempty"`
	Phone          string    `json:"phone,omitempty"`
	Mobile         string    `json:"mobile,omitempty"`
	Function       string    `json:"function,omitempty"`
	IsUnattached   bool      `json:"isUnattached"`
	Version        int64     `json:"version"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	CreatedBy      string    `json:"createdBy,omitempty"`
	UpdatedBy      string    `json:"updatedBy,omitempty"`
}

// BestPhone returns the landline when set, otherwise the mobile number.
func (p *Person) BestPhone() string {
	if p.Phone != "" {
		return p.Phone
	}
	return p.Mobile
}

// PersonInput is the payload for creating or upserting a person.
type PersonInput struct {
	FirstName string `json:"firstName" validate:"required,min=1"`
	LastName  string `json:"lastName" validate:"required,min=1"`
	Email     string `json:"email,omitempty" validate:"omitempty,email"`
	Phone     string `json:"phone,omitempty"`
	Mobile    string `json:"mobile,omitempty"`
	Function  string `json:"function,omitempty"`
}
