package handler

import (
	"strings"
	"time"

	catalog "qualtrack/internal/catalog/models"
	"qualtrack/internal/competency/models"
	"qualtrack/internal/competency/service"
	id "qualtrack/pkg/domain"
	dErrors "qualtrack/pkg/domain-errors"
)

// FieldsRequest carries optional record fields. Dates accept YYYY-MM-DD or RFC 3339.
type FieldsRequest struct {
	Value           *string              `json:"value,omitempty"`
	IssuingBody     *string              `json:"issuing_body,omitempty"`
	CertificationID *string              `json:"certification_id,omitempty"`
	IssuedDate      *string              `json:"issued_date,omitempty"`
	ExpiryDate      *string              `json:"expiry_date,omitempty"`
	Notes           *string              `json:"notes,omitempty"`
	Document        *catalog.DocumentRef `json:"document,omitempty"`
	Clear           []string             `json:"clear,omitempty"`

	issued *time.Time
	expiry *time.Time
}

func (r *FieldsRequest) normalize() {
	for _, p := range []*string{r.IssuedDate, r.ExpiryDate} {
		if p != nil {
			*p = strings.TrimSpace(*p)
		}
	}
	for i, c := range r.Clear {
		r.Clear[i] = strings.ToLower(strings.TrimSpace(c))
	}
}

func (r *FieldsRequest) validate() error {
	var err error
	if r.issued, err = parseDate(r.IssuedDate, "issued_date"); err != nil {
		return err
	}
	if r.expiry, err = parseDate(r.ExpiryDate, "expiry_date"); err != nil {
		return err
	}
	return nil
}

// FieldSet converts the request once it has been validated.
func (r *FieldsRequest) FieldSet() catalog.FieldSet {
	fs := catalog.FieldSet{
		Value:           r.Value,
		IssuingBody:     r.IssuingBody,
		CertificationID: r.CertificationID,
		IssuedDate:      r.issued,
		ExpiryDate:      r.expiry,
		Notes:           r.Notes,
		Document:        r.Document,
	}
	for _, c := range r.Clear {
		fs.Clear = append(fs.Clear, catalog.Field(c))
	}
	return fs
}

func parseDate(s *string, field string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if t, err := time.Parse(layout, *s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, dErrors.New(dErrors.CodeValidation, field+" must be a date (YYYY-MM-DD)")
}

type CreateRecordRequest struct {
	DefinitionID string `json:"definition_id"`
	FieldsRequest

	definitionID id.DefinitionID
}

func (r *CreateRecordRequest) Normalize() {
	r.DefinitionID = strings.TrimSpace(r.DefinitionID)
	r.normalize()
}

func (r *CreateRecordRequest) Validate() error {
	defID, err := id.ParseDefinitionID(r.DefinitionID)
	if err != nil {
		return dErrors.New(dErrors.CodeValidation, "definition_id must be a valid id")
	}
	r.definitionID = defID
	return r.validate()
}

type EditRecordRequest struct {
	FieldsRequest
	ExpectedVersion int64 `json:"expected_version,omitempty"`
}

func (r *EditRecordRequest) Normalize() {
	r.normalize()
}

func (r *EditRecordRequest) Validate() error {
	if r.ExpectedVersion < 0 {
		return dErrors.New(dErrors.CodeValidation, "expected_version cannot be negative")
	}
	return r.validate()
}

func (r *EditRecordRequest) Edit() service.Edit {
	return service.Edit{Fields: r.FieldSet(), ExpectedVersion: r.ExpectedVersion}
}

type ReviewRequest struct {
	Outcome         string `json:"outcome"`
	Note            string `json:"note,omitempty"`
	ExpectedVersion int64  `json:"expected_version,omitempty"`
}

func (r *ReviewRequest) Normalize() {
	r.Outcome = strings.ToLower(strings.TrimSpace(r.Outcome))
	r.Note = strings.TrimSpace(r.Note)
}

func (r *ReviewRequest) Validate() error {
	if !models.Outcome(r.Outcome).IsValid() {
		return dErrors.New(dErrors.CodeValidation, "outcome must be approve or request_changes")
	}
	if r.ExpectedVersion < 0 {
		return dErrors.New(dErrors.CodeValidation, "expected_version cannot be negative")
	}
	return nil
}

func (r *ReviewRequest) Decision() service.ReviewDecision {
	return service.ReviewDecision{
		Outcome:         models.Outcome(r.Outcome),
		Note:            r.Note,
		ExpectedVersion: r.ExpectedVersion,
	}
}
