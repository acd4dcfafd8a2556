package models

import "time"

// EntityKind identifies which first-class entity type a record refers to.
type EntityKind string

const (
	EntityKindStructure EntityKind = "structure"
	EntityKindPerson    EntityKind = "person"
)

// Collection returns the store collection backing the entity kind.
func (k EntityKind) Collection() string {
	if k == EntityKindPerson {
		return "persons"
	}
	return "structures"
}

// Valid reports whether the kind is one of the known entity kinds.
func (k EntityKind) Valid() bool {
	return k == EntityKindStructure || k == EntityKindPerson
}

// Duplicate group review states. Merged and dismissed are terminal.
const (
	DuplicateStatusPending   = "pending"
	DuplicateStatusReviewed  = "reviewed"
	DuplicateStatusMerged    = "merged"
	DuplicateStatusDismissed = "dismissed"
)

// MatchReason records one field-level comparison that contributed evidence
// for a duplicate group.
type MatchReason struct {
	Field     string  `json:"field"`
	Score     float64 `json:"score"`
	Algorithm string  `json:"algorithm"`
}

// GroupMember identifies one entity inside a duplicate group.
type GroupMember struct {
	EntityID    string `json:"entityId"`
	DisplayName string `json:"displayName"`
}

// DuplicateGroup is a detector-produced cluster of entities believed to be
// the same real-world entity, pending human review.
type DuplicateGroup struct {
	ID             string        `json:"id"`
	OrganizationID string        `json:"organizationId"`
	EntityType     EntityKind    `json:"entityType"`
	Score          float64       `json:"score"`
	Reasons        []MatchReason `json:"matchedFieldReasons"`
	Members        []GroupMember `json:"members"`
	Status         string        `json:"status"`
	CreatedAt      time.Time     `json:"createdAt"`
	CreatedBy      string        `json:"createdBy,omitempty"`
	ReviewedAt     *time.Time    `json:"reviewedAt,omitempty"`
	ReviewedBy     string        `json:"reviewedBy,omitempty"`
}

// MemberIDs returns the entity ids of all group members.
func (g *DuplicateGroup) MemberIDs() []string {
	ids := make([]string, len(g.Members))
	for i, m := range g.Members {
		ids[i] = m.EntityID
	}
	return ids
}

// HasMember reports whether the entity id belongs to the group.
func (g *DuplicateGroup) HasMember(entityID string) bool {
	for _, m := range g.Members {
		if m.EntityID == entityID {
			return true
		}
	}
	return false
}

// Terminal reports whether the group can no longer transition.
func (g *DuplicateGroup) Terminal() bool {
	return g.Status == DuplicateStatusMerged || g.Status == DuplicateStatusDismissed
}
