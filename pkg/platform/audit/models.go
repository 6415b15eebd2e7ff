package audit

import (
	"context"
	"time"

	id "qualtrack/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies and routing downstream.
type EventCategory string

const (
	// CategoryCompliance covers events with regulatory significance: review
	// outcomes, deletions and role changes. Long retention.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers refused privileged actions.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine holder activity. Can be sampled.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	// HolderID is the holder whose data the event is about.
	HolderID id.HolderID
	Subject  string
	Action   string
	Decision string
	Reason   string
	// RequestID is the correlation ID from the HTTP request context.
	RequestID string
	// ActorID tracks who performed the action when different from HolderID,
	// e.g. a reviewer approving someone else's record.
	ActorID string
}

type AuditEvent string

const (
	// Competency record events
	EventRecordCreated         AuditEvent = "record_created"
	EventRecordEdited          AuditEvent = "record_edited"
	EventRecordDocumentRemoved AuditEvent = "record_document_removed"
	EventRecordSubmitted       AuditEvent = "record_submitted"
	EventRecordResubmitted     AuditEvent = "record_resubmitted"
	EventRecordReviewed        AuditEvent = "record_reviewed"
	EventRecordDeleted         AuditEvent = "record_deleted"

	// Permission request events
	EventPermissionRequested AuditEvent = "permission_requested"
	EventPermissionReviewed  AuditEvent = "permission_reviewed"
	EventRoleChanged         AuditEvent = "role_changed"

	// Profile events
	EventAvatarUpdated AuditEvent = "avatar_updated"

	// Access events
	EventAccessDenied      AuditEvent = "access_denied"
	EventRateLimitExceeded AuditEvent = "rate_limit_exceeded"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventRecordReviewed:     CategoryCompliance,
	EventRecordDeleted:      CategoryCompliance,
	EventPermissionReviewed: CategoryCompliance,
	EventRoleChanged:        CategoryCompliance,

	EventAccessDenied:      CategorySecurity,
	EventRateLimitExceeded: CategorySecurity,

	EventRecordCreated:         CategoryOperations,
	EventRecordEdited:          CategoryOperations,
	EventRecordDocumentRemoved: CategoryOperations,
	EventRecordSubmitted:       CategoryOperations,
	EventRecordResubmitted:     CategoryOperations,
	EventPermissionRequested:   CategoryOperations,
	EventAvatarUpdated:         CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}
