package models

import (
	"strings"
	"time"

	id "qualtrack/pkg/domain"
	dErrors "qualtrack/pkg/domain-errors"
)

// Profile is a holder in the roster.
//
// Invariants:
//   - DisplayName and Email are non-empty
//   - Role is a valid hierarchy level
//   - Role changes only through ApplyRoleChange, which the permission engine's
//     approval path is the sole caller of
type Profile struct {
	ID          id.HolderID `json:"id"`
	DisplayName string      `json:"display_name"`
	Email       string      `json:"email"`
	Role        id.Role     `json:"role"`
	OrgID       id.OrgID    `json:"organization_id"`
	Phone       string      `json:"phone,omitempty"`
	JobTitle    string      `json:"job_title,omitempty"`
	AvatarURL   string      `json:"avatar_url,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

func NewProfile(holderID id.HolderID, displayName, email string, role id.Role, orgID id.OrgID, now time.Time) (*Profile, error) {
	displayName = strings.TrimSpace(displayName)
	email = strings.TrimSpace(email)
	if displayName == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "display name cannot be empty")
	}
	if email == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "email cannot be empty")
	}
	if !role.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invalid role")
	}
	return &Profile{
		ID:          holderID,
		DisplayName: displayName,
		Email:       email,
		Role:        role,
		OrgID:       orgID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// ApplyRoleChange sets the holder's role.
func (p *Profile) ApplyRoleChange(role id.Role, now time.Time) {
	p.Role = role
	p.UpdatedAt = now
}

// ApplyAvatar records a new avatar reference.
func (p *Profile) ApplyAvatar(url string, now time.Time) {
	p.AvatarURL = url
	p.UpdatedAt = now
}
