// Package directory filters and orders the holder roster. Filter and Sort are
// pure; Service loads the roster for a caller and applies them.
package directory

import (
	"sort"
	"strings"

	"qualtrack/internal/competency/models"
	profile "qualtrack/internal/profile/models"
	id "qualtrack/pkg/domain"
	dErrors "qualtrack/pkg/domain-errors"
)

// Entry is one roster line: a holder and the records they hold.
type Entry struct {
	Profile *profile.Profile
	Records []*models.Record
}

func (e Entry) holds(defID id.DefinitionID) bool {
	for _, r := range e.Records {
		if r.DefinitionID == defID {
			return true
		}
	}
	return false
}

type PresenceMode string

const (
	PresenceHeld    PresenceMode = "held"
	PresenceMissing PresenceMode = "missing"
)

func ParsePresenceMode(s string) (PresenceMode, error) {
	switch m := PresenceMode(strings.ToLower(s)); m {
	case PresenceHeld, PresenceMissing:
		return m, nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "presence must be held or missing")
}

// Presence keeps holders that hold (or lack) a record for DefinitionID,
// whatever its status.
type Presence struct {
	DefinitionID id.DefinitionID
	Mode         PresenceMode
}

// Criteria are ANDed. Zero-valued fields do not filter.
type Criteria struct {
	Text     string
	OrgID    id.OrgID
	Role     id.Role
	Presence *Presence
}

// Filter returns the entries matching every criterion, in input order.
func Filter(roster []Entry, c Criteria) []Entry {
	text := strings.ToLower(strings.TrimSpace(c.Text))
	out := make([]Entry, 0, len(roster))
	for _, e := range roster {
		p := e.Profile
		if text != "" &&
			!strings.Contains(strings.ToLower(p.DisplayName), text) &&
			!strings.Contains(strings.ToLower(p.Email), text) {
			continue
		}
		if !c.OrgID.IsNil() && p.OrgID != c.OrgID {
			continue
		}
		if c.Role != "" && p.Role != c.Role {
			continue
		}
		if c.Presence != nil && e.holds(c.Presence.DefinitionID) != (c.Presence.Mode == PresenceHeld) {
			continue
		}
		out = append(out, e)
	}
	return out
}

type Column string

const (
	ColumnName      Column = "name"
	ColumnEmail     Column = "email"
	ColumnRole      Column = "role"
	ColumnJobTitle  Column = "job_title"
	ColumnCreatedAt Column = "created_at"
	ColumnRecords   Column = "records"
)

func ParseColumn(s string) (Column, error) {
	switch c := Column(strings.ToLower(s)); c {
	case ColumnName, ColumnEmail, ColumnRole, ColumnJobTitle, ColumnCreatedAt, ColumnRecords:
		return c, nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "unknown sort column")
}

type Direction string

const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

func ParseDirection(s string) (Direction, error) {
	switch d := Direction(strings.ToLower(s)); d {
	case Ascending, Descending:
		return d, nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "direction must be asc or desc")
}

// Sort orders list in place by column. Direction applies to the column only;
// equal keys always fall back to holder id ascending.
func Sort(list []Entry, column Column, direction Direction) {
	cmp := comparator(column)
	sort.SliceStable(list, func(i, j int) bool {
		c := cmp(list[i], list[j])
		if direction == Descending {
			c = -c
		}
		if c != 0 {
			return c < 0
		}
		return list[i].Profile.ID.String() < list[j].Profile.ID.String()
	})
}

func comparator(column Column) func(a, b Entry) int {
	switch column {
	case ColumnEmail:
		return func(a, b Entry) int {
			return strings.Compare(strings.ToLower(a.Profile.Email), strings.ToLower(b.Profile.Email))
		}
	case ColumnRole:
		return func(a, b Entry) int { return a.Profile.Role.Rank() - b.Profile.Role.Rank() }
	case ColumnJobTitle:
		return func(a, b Entry) int {
			return strings.Compare(strings.ToLower(a.Profile.JobTitle), strings.ToLower(b.Profile.JobTitle))
		}
	case ColumnCreatedAt:
		return func(a, b Entry) int { return a.Profile.CreatedAt.Compare(b.Profile.CreatedAt) }
	case ColumnRecords:
		return func(a, b Entry) int { return len(a.Records) - len(b.Records) }
	default:
		return func(a, b Entry) int {
			return strings.Compare(strings.ToLower(a.Profile.DisplayName), strings.ToLower(b.Profile.DisplayName))
		}
	}
}
