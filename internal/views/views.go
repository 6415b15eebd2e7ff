// Package views builds read-only projections over records, definitions and
// the roster: expiring records, the review queue, the attention feed, the
// compliance matrix and the tabular export. Nothing here is persisted.
package views

import (
	"sort"
	"strings"

	catalog "qualtrack/internal/catalog/models"
	"qualtrack/internal/competency/models"
	profile "qualtrack/internal/profile/models"
	id "qualtrack/pkg/domain"
)

// Scope narrows an organization-wide view. A zero OrgID means the caller's
// own organization, or every organization for admins.
type Scope struct {
	OrgID id.OrgID
}

// HolderRecord is a record annotated with its holder and definition.
type HolderRecord struct {
	Holder     *profile.Profile        `json:"holder"`
	Definition *catalog.Definition     `json:"definition"`
	Record     models.ClassifiedRecord `json:"record"`
}

// MatrixCell is one holder's record for one definition. Record is nil when
// the holder has none.
type MatrixCell struct {
	DefinitionID id.DefinitionID          `json:"definition_id"`
	Record       *models.ClassifiedRecord `json:"record,omitempty"`
}

type MatrixRow struct {
	Holder *profile.Profile `json:"holder"`
	Cells  []MatrixCell     `json:"cells"`
}

// Matrix is the holders by compliance definitions cross product. Cells in
// every row follow the order of Definitions.
type Matrix struct {
	Definitions []*catalog.Definition `json:"definitions"`
	Rows        []MatrixRow           `json:"rows"`
}

// Missing returns the holders with no record for defID, in row order.
func (m *Matrix) Missing(defID id.DefinitionID) []*profile.Profile {
	col := -1
	for i, d := range m.Definitions {
		if d.ID == defID {
			col = i
			break
		}
	}
	if col < 0 {
		return nil
	}
	var out []*profile.Profile
	for _, row := range m.Rows {
		if row.Cells[col].Record == nil {
			out = append(out, row.Holder)
		}
	}
	return out
}

// sortHolders orders by display name, case-insensitively, then id.
func sortHolders(holders []*profile.Profile) {
	sort.SliceStable(holders, func(i, j int) bool {
		a, b := strings.ToLower(holders[i].DisplayName), strings.ToLower(holders[j].DisplayName)
		if a != b {
			return a < b
		}
		return holders[i].ID.String() < holders[j].ID.String()
	})
}
