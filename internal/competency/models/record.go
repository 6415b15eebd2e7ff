package models

import (
	"time"

	catalog "qualtrack/internal/catalog/models"
	id "qualtrack/pkg/domain"
	dErrors "qualtrack/pkg/domain-errors"
)

// Status is the stored lifecycle state of a record. Expiry is never stored;
// see Classify.
type Status string

const (
	StatusActive           Status = "active"
	StatusPendingApproval  Status = "pending_approval"
	StatusChangesRequested Status = "changes_requested"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusPendingApproval, StatusChangesRequested:
		return true
	}
	return false
}

// Outcome is a reviewer's decision on a record.
type Outcome string

const (
	OutcomeApprove        Outcome = "approve"
	OutcomeRequestChanges Outcome = "request_changes"
)

func (o Outcome) IsValid() bool {
	return o == OutcomeApprove || o == OutcomeRequestChanges
}

// Record is one holder's evidence for one competency definition.
//
// Invariants:
//   - HolderID and DefinitionID never change after creation
//   - Document URL and name are both set or both empty
//   - ReviewNote is non-empty only while Status is changes_requested
//   - Version increases by one on every persisted mutation
type Record struct {
	ID              id.RecordID         `json:"id"`
	HolderID        id.HolderID         `json:"holder_id"`
	DefinitionID    id.DefinitionID     `json:"definition_id"`
	Value           string              `json:"value,omitempty"`
	IssuingBody     string              `json:"issuing_body,omitempty"`
	CertificationID string              `json:"certification_id,omitempty"`
	IssuedDate      *time.Time          `json:"issued_date,omitempty"`
	ExpiryDate      *time.Time          `json:"expiry_date,omitempty"`
	Notes           string              `json:"notes,omitempty"`
	Document        catalog.DocumentRef `json:"document"`
	Status          Status              `json:"status"`
	ReviewNote      string              `json:"review_note,omitempty"`
	ReviewedBy      *id.HolderID        `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time          `json:"reviewed_at,omitempty"`
	SubmittedAt     *time.Time          `json:"submitted_at,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
	Version         int64               `json:"version"`
}

// NewRecord builds a record from fields already restricted to the
// definition's shape. A record created with a document starts pending review.
func NewRecord(recordID id.RecordID, holderID id.HolderID, definitionID id.DefinitionID, fields catalog.FieldSet, now time.Time) (*Record, error) {
	if holderID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "holder id required")
	}
	if definitionID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "definition id required")
	}
	r := &Record{
		ID:           recordID,
		HolderID:     holderID,
		DefinitionID: definitionID,
		Status:       StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
		Version:      1,
	}
	r.applyFields(fields)
	if r.IssuedDate != nil {
		r.CreatedAt = *r.IssuedDate
	}
	if !r.Document.IsZero() {
		r.Status = StatusPendingApproval
		r.SubmittedAt = &now
	}
	if err := r.checkInvariants(); err != nil {
		return nil, err
	}
	return r, nil
}

// HasDocument reports whether a document is attached.
func (r *Record) HasDocument() bool {
	return !r.Document.IsZero()
}

// IsOwnedBy reports whether holderID holds the record.
func (r *Record) IsOwnedBy(holderID id.HolderID) bool {
	return r.HolderID == holderID
}

// CanSubmitForReview checks the record may be sent to reviewers.
func (r *Record) CanSubmitForReview() error {
	if r.Status == StatusPendingApproval {
		return dErrors.New(dErrors.CodeInvariantViolation, "record is already pending approval")
	}
	if !r.HasDocument() {
		return dErrors.New(dErrors.CodeValidation, "a document is required before submitting for review")
	}
	return nil
}

// CanResubmit checks the record is waiting on the holder.
func (r *Record) CanResubmit() error {
	if r.Status != StatusChangesRequested {
		return dErrors.New(dErrors.CodeInvariantViolation, "only records with requested changes can be resubmitted")
	}
	return nil
}

// CanApprove rejects approving a record that is already active.
func (r *Record) CanApprove() error {
	if r.Status == StatusActive {
		return dErrors.New(dErrors.CodeInvariantViolation, "record is already active")
	}
	return nil
}

// ApplyEdit applies restricted fields. Attaching or replacing a document on an
// active or changes_requested record moves it to pending_approval; any other
// edit leaves the status alone.
func (r *Record) ApplyEdit(fields catalog.FieldSet, now time.Time) {
	documentChanged := fields.Document != nil && *fields.Document != r.Document
	r.applyFields(fields)
	if fields.Has(catalog.FieldIssuedDate) {
		if r.IssuedDate != nil {
			r.CreatedAt = *r.IssuedDate
		}
	}
	if documentChanged && (r.Status == StatusActive || r.Status == StatusChangesRequested) {
		r.markSubmitted(now)
	}
	r.touch(now)
}

// ApplyRemoveDocument clears the document. Status is unchanged.
func (r *Record) ApplyRemoveDocument(now time.Time) {
	r.Document = catalog.DocumentRef{}
	r.touch(now)
}

// ApplySubmitForReview moves the record to pending_approval.
func (r *Record) ApplySubmitForReview(now time.Time) {
	r.markSubmitted(now)
	r.touch(now)
}

// ApplyResubmit applies the edit and always moves to pending_approval.
func (r *Record) ApplyResubmit(fields catalog.FieldSet, now time.Time) {
	r.ApplyEdit(fields, now)
	r.markSubmitted(now)
}

// ApplyReview records the reviewer's outcome. Approval clears any note.
func (r *Record) ApplyReview(outcome Outcome, note string, reviewer id.HolderID, now time.Time) {
	switch outcome {
	case OutcomeApprove:
		r.Status = StatusActive
		r.ReviewNote = ""
	case OutcomeRequestChanges:
		r.Status = StatusChangesRequested
		r.ReviewNote = note
	}
	r.ReviewedBy = &reviewer
	r.ReviewedAt = &now
	r.touch(now)
}

func (r *Record) markSubmitted(now time.Time) {
	r.Status = StatusPendingApproval
	r.ReviewNote = ""
	r.SubmittedAt = &now
}

func (r *Record) touch(now time.Time) {
	r.UpdatedAt = now
	r.Version++
}

func (r *Record) applyFields(fs catalog.FieldSet) {
	if fs.Value != nil {
		r.Value = *fs.Value
	}
	if fs.IssuingBody != nil {
		r.IssuingBody = *fs.IssuingBody
	}
	if fs.CertificationID != nil {
		r.CertificationID = *fs.CertificationID
	}
	if fs.IssuedDate != nil {
		d := *fs.IssuedDate
		r.IssuedDate = &d
	}
	if fs.ExpiryDate != nil {
		d := *fs.ExpiryDate
		r.ExpiryDate = &d
	}
	if fs.Notes != nil {
		r.Notes = *fs.Notes
	}
	if fs.Document != nil {
		r.Document = *fs.Document
	}
	for _, f := range fs.Clear {
		switch f {
		case catalog.FieldValue:
			r.Value = ""
		case catalog.FieldIssuingBody:
			r.IssuingBody = ""
		case catalog.FieldCertificationID:
			r.CertificationID = ""
		case catalog.FieldIssuedDate:
			r.IssuedDate = nil
		case catalog.FieldExpiryDate:
			r.ExpiryDate = nil
		case catalog.FieldNotes:
			r.Notes = ""
		case catalog.FieldDocument:
			r.Document = catalog.DocumentRef{}
		}
	}
}

func (r *Record) checkInvariants() error {
	if err := r.Document.Validate(); err != nil {
		return dErrors.New(dErrors.CodeInvariantViolation, err.Error())
	}
	if r.IssuedDate != nil && r.ExpiryDate != nil && r.ExpiryDate.Before(*r.IssuedDate) {
		return dErrors.New(dErrors.CodeInvariantViolation, "expiry date cannot be before issued date")
	}
	return nil
}

// Validate re-checks invariants after an edit.
func (r *Record) Validate() error {
	return r.checkInvariants()
}
