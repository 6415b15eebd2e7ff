package models

import (
	"strings"
	"time"

	dErrors "qualtrack/pkg/domain-errors"
)

// DocumentRef points at a blob in the document store. URL and Name are
// either both set or both empty.
type DocumentRef struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

// IsZero reports whether no document is referenced.
func (d DocumentRef) IsZero() bool {
	return d.URL == "" && d.Name == ""
}

// Validate enforces the both-or-neither rule.
func (d DocumentRef) Validate() error {
	if (d.URL == "") != (d.Name == "") {
		return dErrors.New(dErrors.CodeValidation, "document url and name must be provided together")
	}
	return nil
}

// FieldSet carries values for a record's optional fields. A nil pointer leaves
// the field untouched; Clear lists fields to reset to empty.
type FieldSet struct {
	Value           *string      `json:"value,omitempty"`
	IssuingBody     *string      `json:"issuing_body,omitempty"`
	CertificationID *string      `json:"certification_id,omitempty"`
	IssuedDate      *time.Time   `json:"issued_date,omitempty"`
	ExpiryDate      *time.Time   `json:"expiry_date,omitempty"`
	Notes           *string      `json:"notes,omitempty"`
	Document        *DocumentRef `json:"document,omitempty"`
	Clear           []Field      `json:"clear,omitempty"`
}

// Has reports whether f is set or cleared.
func (fs FieldSet) Has(f Field) bool {
	if fs.Clears(f) {
		return true
	}
	switch f {
	case FieldValue:
		return fs.Value != nil
	case FieldIssuingBody:
		return fs.IssuingBody != nil
	case FieldCertificationID:
		return fs.CertificationID != nil
	case FieldIssuedDate:
		return fs.IssuedDate != nil
	case FieldExpiryDate:
		return fs.ExpiryDate != nil
	case FieldNotes:
		return fs.Notes != nil
	case FieldDocument:
		return fs.Document != nil
	}
	return false
}

// Clears reports whether f is listed for reset.
func (fs FieldSet) Clears(f Field) bool {
	for _, c := range fs.Clear {
		if c == f {
			return true
		}
	}
	return false
}

// Normalize trims string values. It never writes through the caller's pointers.
func (fs *FieldSet) Normalize() {
	trim := func(p *string) *string {
		if p == nil {
			return nil
		}
		v := strings.TrimSpace(*p)
		return &v
	}
	fs.Value = trim(fs.Value)
	fs.IssuingBody = trim(fs.IssuingBody)
	fs.CertificationID = trim(fs.CertificationID)
	fs.Notes = trim(fs.Notes)
	if fs.Document != nil {
		fs.Document = &DocumentRef{
			URL:  strings.TrimSpace(fs.Document.URL),
			Name: strings.TrimSpace(fs.Document.Name),
		}
	}
}

// Restrict returns a copy of fs holding only the fields the definition's shape
// permits. Values for other fields are dropped silently.
func (d *Definition) Restrict(fs FieldSet) FieldSet {
	var out FieldSet
	if d.Shape.Permits(FieldValue) {
		out.Value = fs.Value
	}
	if d.Shape.Permits(FieldIssuingBody) {
		out.IssuingBody = fs.IssuingBody
	}
	if d.Shape.Permits(FieldCertificationID) {
		out.CertificationID = fs.CertificationID
	}
	if d.Shape.Permits(FieldIssuedDate) {
		out.IssuedDate = fs.IssuedDate
	}
	if d.Shape.Permits(FieldExpiryDate) {
		out.ExpiryDate = fs.ExpiryDate
	}
	if d.Shape.Permits(FieldNotes) {
		out.Notes = fs.Notes
	}
	if d.Shape.Permits(FieldDocument) {
		out.Document = fs.Document
	}
	for _, c := range fs.Clear {
		if d.Shape.Permits(c) {
			out.Clear = append(out.Clear, c)
		}
	}
	return out
}

// Validate checks cross-field rules on the values being set.
func (fs FieldSet) Validate() error {
	if fs.Document != nil {
		if fs.Document.IsZero() {
			return dErrors.New(dErrors.CodeValidation, "document reference cannot be empty")
		}
		if err := fs.Document.Validate(); err != nil {
			return err
		}
	}
	if fs.IssuedDate != nil && fs.ExpiryDate != nil && fs.ExpiryDate.Before(*fs.IssuedDate) {
		return dErrors.New(dErrors.CodeValidation, "expiry date cannot be before issued date")
	}
	for _, c := range fs.Clear {
		if _, known := fieldNames[c]; !known {
			return dErrors.New(dErrors.CodeValidation, "unknown field: "+string(c))
		}
		if fs.Has(c) && !fs.isOnlyCleared(c) {
			return dErrors.New(dErrors.CodeValidation, "field cannot be both set and cleared: "+string(c))
		}
	}
	return nil
}

func (fs FieldSet) isOnlyCleared(f Field) bool {
	cp := fs
	cp.Clear = nil
	return !cp.Has(f)
}

var fieldNames = map[Field]struct{}{
	FieldValue:           {},
	FieldIssuingBody:     {},
	FieldCertificationID: {},
	FieldIssuedDate:      {},
	FieldExpiryDate:      {},
	FieldNotes:           {},
	FieldDocument:        {},
}
