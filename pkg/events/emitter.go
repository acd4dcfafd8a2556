// Package events handles event emission for contact lifecycle changes
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"

	"github.com/venuelink/rolodex/pkg/kafka"
	"github.com/venuelink/rolodex/pkg/models"
	"github.com/venuelink/rolodex/pkg/tracing"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// Emitter handles event emission for Rolodex
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// EmitDuplicatesDetected emits one event per duplicate group found by a
// detection run.
func (e *Emitter) EmitDuplicatesDetected(ctx context.Context, organizationID string, groups []models.DuplicateGroup) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitDuplicatesDetected")
	defer span.End()

	if len(groups) == 0 {
		return nil
	}

	events := make([]*kafka.ContactEvent, 0, len(groups))
	for _, group := range groups {
		if len(group.Members) == 0 {
			continue
		}

		data := map[string]any{
			"schema_version": SchemaVersion,
			"group_id":       group.ID,
			"score":          group.Score,
			"member_ids":     group.MemberIDs(),
		}
		dataJSON, _ := json.Marshal(data)

		// The first member is the seed the rest of the group matched against.
		events = append(events, &kafka.ContactEvent{
			EventType:      "duplicates.detected",
			OrganizationID: organizationID,
			EntityID:       group.Members[0].EntityID,
			EntityKind:     string(group.EntityType),
			Data:           dataJSON,
		})
	}

	if err := e.producer.PublishContactEvents(ctx, events); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit duplicates.detected events")
		return err
	}

	return nil
}

// EmitEntitiesMerged emits the outcome of a merge invocation.
func (e *Emitter) EmitEntitiesMerged(ctx context.Context, organizationID string, result *models.MergeResult) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitEntitiesMerged")
	defer span.End()

	merged := make([]string, 0, len(result.Merged))
	for _, m := range result.Merged {
		merged = append(merged, m.EntityID)
	}

	data := map[string]any{
		"schema_version":     SchemaVersion,
		"liaisons_relocated": result.LiaisonsRelocated,
		"skipped":            result.Skipped,
	}
	dataJSON, _ := json.Marshal(data)

	event := &kafka.ContactEvent{
		EventType:      "entities.merged",
		OrganizationID: organizationID,
		EntityID:       result.CanonicalID,
		EntityKind:     string(result.EntityType),
		Data:           dataJSON,
		SourceEntities: merged,
	}

	if err := e.producer.PublishContactEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit entities.merged event")
		return err
	}

	return nil
}

// EmitLiaisonEvent emits a liaison lifecycle event.
func (e *Emitter) EmitLiaisonEvent(ctx context.Context, eventType string, liaison *models.Liaison) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitLiaisonEvent")
	defer span.End()

	dataJSON, _ := json.Marshal(map[string]any{
		"schema_version": SchemaVersion,
		"active":         liaison.Active,
		"prioritary":     liaison.Prioritary,
	})

	event := &kafka.LiaisonEvent{
		EventType:      "liaison." + eventType,
		OrganizationID: liaison.OrganizationID,
		LiaisonID:      liaison.ID,
		StructureID:    liaison.StructureID,
		PersonID:       liaison.PersonID,
		Data:           dataJSON,
	}

	if err := e.producer.PublishLiaisonEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Errorf("Failed to emit liaison.%s event", eventType)
		return err
	}

	return nil
}
