package admin

import (
	"time"

	audit "qualtrack/pkg/platform/audit"
)

// AuditEventResponse is the HTTP response DTO for one audit event.
type AuditEventResponse struct {
	Timestamp time.Time `json:"timestamp"`
	Category  string    `json:"category"`
	Action    string    `json:"action"`
	HolderID  string    `json:"holder_id,omitempty"`
	ActorID   string    `json:"actor_id,omitempty"`
	Subject   string    `json:"subject,omitempty"`
	Decision  string    `json:"decision,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
}

// AuditListResponse wraps recent events, oldest first.
type AuditListResponse struct {
	Events []*AuditEventResponse `json:"events"`
	Total  int                   `json:"total"`
}

func toAuditEventResponse(e audit.Event) *AuditEventResponse {
	resp := &AuditEventResponse{
		Timestamp: e.Timestamp,
		Category:  string(e.Category),
		Action:    e.Action,
		ActorID:   e.ActorID,
		Subject:   e.Subject,
		Decision:  e.Decision,
		Reason:    e.Reason,
		RequestID: e.RequestID,
	}
	if !e.HolderID.IsNil() {
		resp.HolderID = e.HolderID.String()
	}
	return resp
}
