package models

import "time"

// ArchiveRecord is the tombstone written when a duplicate entity is merged
// away. It carries the full prior state of the entity and is never updated.
type ArchiveRecord struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organizationId"`
	EntityType     EntityKind     `json:"entityType"`
	EntityID       string         `json:"entityId"`
	Snapshot       map[string]any `json:"snapshot"`
	MergedInto     string         `json:"mergedInto"`
	Reason         string         `json:"reason"`
	ArchivedAt     time.Time      `json:"archivedAt"`
	ArchivedBy     string         `json:"archivedBy,omitempty"`
}

// MergedDuplicate reports the outcome for a single merged-away entity.
type MergedDuplicate struct {
	EntityID      string `json:"entityId"`
	LiaisonsMoved int    `json:"liaisonsMoved"`
}

// MergeResult is the outcome of a merge invocation.
type MergeResult struct {
	EntityType        EntityKind        `json:"entityType"`
	CanonicalID       string            `json:"canonicalId"`
	Merged            []MergedDuplicate `json:"merged"`
	Skipped           []string          `json:"skipped,omitempty"`
	DuplicatesMerged  int               `json:"duplicatesMerged"`
	LiaisonsRelocated int               `json:"liaisonsRelocated"`
}
