package models

import (
	"strings"
	"time"

	id "qualtrack/pkg/domain"
	dErrors "qualtrack/pkg/domain-errors"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// IsTerminal reports whether no further review is possible.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

type Outcome string

const (
	OutcomeApprove Outcome = "approve"
	OutcomeReject  Outcome = "reject"
)

func (o Outcome) IsValid() bool {
	return o == OutcomeApprove || o == OutcomeReject
}

// Request asks for a role upgrade.
//
// Invariants:
//   - RequesterRole is captured at submission and never changes
//   - RequestedRole is strictly above RequesterRole
//   - RejectionReason is set only when Status is rejected
//   - approved and rejected are terminal
type Request struct {
	ID              id.RequestID `json:"id"`
	RequesterID     id.HolderID  `json:"requester_id"`
	RequesterRole   id.Role      `json:"requester_role"`
	RequestedRole   id.Role      `json:"requested_role"`
	Message         string       `json:"message"`
	Status          Status       `json:"status"`
	RejectionReason string       `json:"rejection_reason,omitempty"`
	ReviewedBy      *id.HolderID `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time   `json:"reviewed_at,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
}

func NewRequest(requestID id.RequestID, requesterID id.HolderID, current, requested id.Role, message string, now time.Time) (*Request, error) {
	message = strings.TrimSpace(message)
	if requesterID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "requester id required")
	}
	if message == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "message cannot be empty")
	}
	if !current.IsValid() || !requested.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invalid role")
	}
	if !requested.Above(current) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "requested role must be above the current role")
	}
	return &Request{
		ID:            requestID,
		RequesterID:   requesterID,
		RequesterRole: current,
		RequestedRole: requested,
		Message:       message,
		Status:        StatusPending,
		CreatedAt:     now,
	}, nil
}

func (r *Request) IsPending() bool {
	return r.Status == StatusPending
}

// CanReview rejects a second review of a resolved request.
func (r *Request) CanReview() error {
	if r.Status.IsTerminal() {
		return dErrors.New(dErrors.CodeInvariantViolation, "request has already been "+string(r.Status))
	}
	return nil
}

// ReviewerRole is the lowest role allowed to resolve the request.
func (r *Request) ReviewerRole() id.Role {
	return id.MaxRole(id.RoleOrgAdmin, r.RequestedRole)
}

func (r *Request) ApplyApprove(reviewer id.HolderID, now time.Time) {
	r.Status = StatusApproved
	r.RejectionReason = ""
	r.stamp(reviewer, now)
}

func (r *Request) ApplyReject(reviewer id.HolderID, reason string, now time.Time) {
	r.Status = StatusRejected
	r.RejectionReason = reason
	r.stamp(reviewer, now)
}

func (r *Request) stamp(reviewer id.HolderID, now time.Time) {
	r.ReviewedBy = &reviewer
	r.ReviewedAt = &now
}
