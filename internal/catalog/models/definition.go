package models

import (
	id "qualtrack/pkg/domain"
	dErrors "qualtrack/pkg/domain-errors"
)

// Shape says which optional fields records of a definition may carry.
type Shape string

const (
	ShapePersonalDetail Shape = "personal_detail"
	ShapeCertification  Shape = "certification"
	ShapeFreeValue      Shape = "free_value"
)

// Field names an optional record field.
type Field string

const (
	FieldValue           Field = "value"
	FieldIssuingBody     Field = "issuing_body"
	FieldCertificationID Field = "certification_id"
	FieldIssuedDate      Field = "issued_date"
	FieldExpiryDate      Field = "expiry_date"
	FieldNotes           Field = "notes"
	FieldDocument        Field = "document"
)

var shapeFields = map[Shape]map[Field]bool{
	ShapePersonalDetail: {
		FieldValue:      true,
		FieldIssuedDate: true,
		FieldNotes:      true,
		FieldDocument:   true,
	},
	ShapeCertification: {
		FieldIssuingBody:     true,
		FieldCertificationID: true,
		FieldIssuedDate:      true,
		FieldExpiryDate:      true,
		FieldNotes:           true,
		FieldDocument:        true,
	},
	ShapeFreeValue: {
		FieldValue:    true,
		FieldNotes:    true,
		FieldDocument: true,
	},
}

// ParseShape validates a shape tag from storage or admin input.
func ParseShape(s string) (Shape, error) {
	shape := Shape(s)
	if _, ok := shapeFields[shape]; !ok {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid definition shape")
	}
	return shape, nil
}

// Permits reports whether records of this shape may carry field f.
func (s Shape) Permits(f Field) bool {
	return shapeFields[s][f]
}

// Expires reports whether records of this shape can carry an expiry date.
func (s Shape) Expires() bool {
	return s.Permits(FieldExpiryDate)
}

// Category groups definitions for display.
type Category struct {
	ID   id.CategoryID `json:"id"`
	Name string        `json:"name"`
}

// Definition describes what a competency record certifies.
//
// Invariants:
//   - Name is non-empty
//   - Shape is one of the known shapes and never changes after creation
type Definition struct {
	ID          id.DefinitionID `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Category    Category        `json:"category"`
	Shape       Shape           `json:"shape"`
}

func NewDefinition(defID id.DefinitionID, name, description string, category Category, shape Shape) (*Definition, error) {
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "definition name cannot be empty")
	}
	if _, ok := shapeFields[shape]; !ok {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invalid definition shape")
	}
	return &Definition{
		ID:          defID,
		Name:        name,
		Description: description,
		Category:    category,
		Shape:       shape,
	}, nil
}

// IsPersonalDetail reports whether the definition is excluded from compliance views.
func (d *Definition) IsPersonalDetail() bool {
	return d.Shape == ShapePersonalDetail
}
