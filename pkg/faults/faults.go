// Package faults defines the typed error taxonomy shared by the contact
// services. Store-level failures are wrapped with the operation and entity id
// before they reach a caller; handlers translate kinds to HTTP statuses.
package faults

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
)

// Kind classifies a failure.
type Kind string

const (
	// KindValidation marks a malformed or missing required field. Never
	// partially persisted.
	KindValidation Kind = "validation"
	// KindUniqueness marks a duplicate legal name or email on create.
	KindUniqueness Kind = "uniqueness_violation"
	// KindDuplicateLiaison marks an attempt to create a second active
	// liaison for the same structure/person pair.
	KindDuplicateLiaison Kind = "duplicate_liaison"
	// KindNotFound marks a missing referenced entity or liaison.
	KindNotFound Kind = "not_found"
	// KindConflict marks an optimistic version mismatch; callers may retry.
	KindConflict Kind = "concurrency_conflict"
	// KindPartialBatch marks a multi-sub-batch merge that stopped partway.
	KindPartialBatch Kind = "partial_batch_failure"
	// KindInternal marks an unclassified store or infrastructure failure.
	KindInternal Kind = "internal"
)

// Error is the typed error carried across service boundaries.
type Error struct {
	Kind     Kind
	Op       string
	Entity   string
	EntityID string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Entity != "" && e.EntityID != "" {
		return fmt.Sprintf("%s: %s %s: %s", e.Op, e.Entity, e.EntityID, msg)
	}
	if e.Entity != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Entity, msg)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation creates a validation error.
func Validation(op, msg string) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: msg}
}

// Validationf creates a validation error with a formatted message.
func Validationf(op, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Uniqueness creates a uniqueness violation for the given entity and field.
func Uniqueness(op, entity, field, value string) *Error {
	return &Error{
		Kind:    KindUniqueness,
		Op:      op,
		Entity:  entity,
		Message: fmt.Sprintf("%s %q already exists", field, value),
	}
}

// DuplicateLiaison creates the active-pair-already-exists error.
func DuplicateLiaison(op, structureID, personID string) *Error {
	return &Error{
		Kind:    KindDuplicateLiaison,
		Op:      op,
		Entity:  "liaison",
		Message: fmt.Sprintf("person %s is already actively associated with structure %s", personID, structureID),
	}
}

// NotFound creates a missing-entity error.
func NotFound(op, entity, id string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Entity: entity, EntityID: id, Message: "not found"}
}

// Conflict creates an optimistic concurrency conflict error.
func Conflict(op, entity, id string) *Error {
	return &Error{Kind: KindConflict, Op: op, Entity: entity, EntityID: id, Message: "version conflict, retry"}
}

// Wrap wraps an underlying store failure with the operation and entity id.
// Existing *Error values pass through unchanged so the original kind is kept.
func Wrap(op, entity, id string, err error) *Error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	return &Error{Kind: KindInternal, Op: op, Entity: entity, EntityID: id, Err: err}
}

// KindOf returns the kind of err, or KindInternal for untyped errors.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	var pb *PartialBatchError
	if errors.As(err, &pb) {
		return KindPartialBatch
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// ToHTTPError translates a typed error to the transport error used by the
// route layer.
func ToHTTPError(err error) *httperror.HTTPError {
	if err == nil {
		return nil
	}

	status := http.StatusInternalServerError
	switch KindOf(err) {
	case KindValidation:
		status = http.StatusBadRequest
	case KindUniqueness, KindDuplicateLiaison, KindConflict:
		status = http.StatusConflict
	case KindNotFound:
		status = http.StatusNotFound
	case KindPartialBatch:
		status = http.StatusInternalServerError
	}

	httpErr := httperror.NewHTTPError(status, err.Error())

	var fe *Error
	if errors.As(err, &fe) {
		httpErr = httpErr.AddMetaValue("kind", string(fe.Kind))
		if fe.Entity != "" {
			httpErr = httpErr.AddMetaValue("entity", fe.Entity)
		}
		if fe.EntityID != "" {
			httpErr = httpErr.AddMetaValue("entity_id", fe.EntityID)
		}
	}

	var pb *PartialBatchError
	if errors.As(err, &pb) {
		httpErr = httpErr.AddMetaValue("kind", string(KindPartialBatch))
		httpErr = httpErr.AddMetaValue("merged", pb.Merged)
		httpErr = httpErr.AddMetaValue("pending", pb.Pending)
	}

	return httpErr
}
