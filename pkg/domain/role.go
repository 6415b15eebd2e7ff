package domain

import dErrors "qualtrack/pkg/domain-errors"

// Role is a holder's privilege level. Roles are totally ordered:
// viewer < editor < org_admin < admin.
//
// Usage: construct via ParseRole at trust boundaries; direct casting bypasses
// validation and yields a role with rank 0.
type Role string

const (
	RoleViewer   Role = "viewer"
	RoleEditor   Role = "editor"
	RoleOrgAdmin Role = "org_admin"
	RoleAdmin    Role = "admin"
)

// roleRanks is the single source of truth for the hierarchy.
var roleRanks = map[Role]int{
	RoleViewer:   1,
	RoleEditor:   2,
	RoleOrgAdmin: 3,
	RoleAdmin:    4,
}

// ParseRole constructs a Role from external input.
//
// Errors: returns CodeInvalidInput when the value is empty or unknown.
func ParseRole(s string) (Role, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "role cannot be empty")
	}
	r := Role(s)
	if !r.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid role")
	}
	return r, nil
}

// IsValid checks if the role is one of the known levels.
func (r Role) IsValid() bool {
	_, ok := roleRanks[r]
	return ok
}

// Rank returns the position of the role in the hierarchy; unknown roles rank 0.
func (r Role) Rank() int {
	return roleRanks[r]
}

// AtLeast reports whether r is at or above other.
func (r Role) AtLeast(other Role) bool {
	return r.IsValid() && r.Rank() >= other.Rank()
}

// Above reports whether r is strictly above other.
func (r Role) Above(other Role) bool {
	return r.IsValid() && r.Rank() > other.Rank()
}

// IsReviewer reports whether the role may resolve pending records and requests.
func (r Role) IsReviewer() bool {
	return r.AtLeast(RoleOrgAdmin)
}

// MaxRole returns the higher of two roles.
func MaxRole(a, b Role) Role {
	if a.Rank() >= b.Rank() {
		return a
	}
	return b
}

func (r Role) String() string {
	return string(r)
}
