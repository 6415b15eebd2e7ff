package views

import (
	catalog "qualtrack/internal/catalog/models"
	"qualtrack/internal/competency/models"
	profile "qualtrack/internal/profile/models"
	id "qualtrack/pkg/domain"
)

const exportDateLayout = "2006-01-02"

// fixedColumns precede one column per definition in every export row.
var fixedColumns = []string{"holder_id", "display_name", "email", "role", "job_title"}

// ExportRow flattens one holder and their records. Cells follow
// Snapshot.Definitions.
type ExportRow struct {
	HolderID    id.HolderID `json:"holder_id"`
	DisplayName string      `json:"display_name"`
	Email       string      `json:"email"`
	Role        id.Role     `json:"role"`
	JobTitle    string      `json:"job_title,omitempty"`
	Cells       []string    `json:"cells"`
}

type Snapshot struct {
	Definitions []string    `json:"definitions"`
	Rows        []ExportRow `json:"rows"`
}

// Header returns the column names of Table.
func (s *Snapshot) Header() []string {
	out := make([]string, 0, len(fixedColumns)+len(s.Definitions))
	out = append(out, fixedColumns...)
	return append(out, s.Definitions...)
}

// Table returns the snapshot as string rows, header first.
func (s *Snapshot) Table() [][]string {
	out := make([][]string, 0, len(s.Rows)+1)
	out = append(out, s.Header())
	for _, r := range s.Rows {
		line := make([]string, 0, len(fixedColumns)+len(r.Cells))
		line = append(line, r.HolderID.String(), r.DisplayName, r.Email, string(r.Role), r.JobTitle)
		out = append(out, append(line, r.Cells...))
	}
	return out
}

// ExportSnapshot flattens each holder's records into one row of scalar cells,
// one per definition including personal details. It does no I/O.
func ExportSnapshot(holders []*profile.Profile, definitions []*catalog.Definition, records []*models.Record) *Snapshot {
	type key struct {
		holder id.HolderID
		def    id.DefinitionID
	}
	index := make(map[key]*models.Record, len(records))
	for _, r := range records {
		index[key{r.HolderID, r.DefinitionID}] = r
	}

	snap := &Snapshot{Definitions: make([]string, len(definitions))}
	for i, d := range definitions {
		snap.Definitions[i] = d.Name
	}

	sorted := append([]*profile.Profile(nil), holders...)
	sortHolders(sorted)
	snap.Rows = make([]ExportRow, len(sorted))
	for i, h := range sorted {
		cells := make([]string, len(definitions))
		for j, d := range definitions {
			if r, ok := index[key{h.ID, d.ID}]; ok {
				cells[j] = cellValue(d, r)
			}
		}
		snap.Rows[i] = ExportRow{
			HolderID:    h.ID,
			DisplayName: h.DisplayName,
			Email:       h.Email,
			Role:        h.Role,
			JobTitle:    h.JobTitle,
			Cells:       cells,
		}
	}
	return snap
}

// cellValue renders a record as a single scalar. Certifications show their
// expiry date, or "held" when they never expire. Non-active statuses are
// appended in parentheses.
func cellValue(d *catalog.Definition, r *models.Record) string {
	var v string
	switch d.Shape {
	case catalog.ShapeCertification:
		v = "held"
		if r.ExpiryDate != nil {
			v = r.ExpiryDate.Format(exportDateLayout)
		}
	default:
		v = r.Value
	}
	if r.Status != models.StatusActive {
		if v == "" {
			return string(r.Status)
		}
		v += " (" + string(r.Status) + ")"
	}
	return v
}
