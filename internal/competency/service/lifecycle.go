package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	catalog "qualtrack/internal/catalog/models"
	"qualtrack/internal/competency/models"
	"qualtrack/internal/documents"
	id "qualtrack/pkg/domain"
	dErrors "qualtrack/pkg/domain-errors"
	audit "qualtrack/pkg/platform/audit"
	"qualtrack/pkg/platform/sentinel"
	"qualtrack/pkg/requestcontext"
)

// Create adds a record for the caller. A record created with a document
// starts in pending_approval, otherwise active.
func (s *Service) Create(ctx context.Context, caller requestcontext.Caller, definitionID id.DefinitionID, fields catalog.FieldSet) (record *models.Record, err error) {
	ctx, span, start := s.startSpan(ctx, "Create", caller)
	defer func() { s.endSpan(span, "create", start, err) }()

	if err = requireCaller(caller); err != nil {
		return nil, err
	}
	if definitionID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "definition id required")
	}
	_, restricted, err := s.catalog.Resolve(ctx, definitionID, fields)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if _, findErr := s.records.FindByHolderAndDefinition(txCtx, caller.ID, definitionID); findErr == nil {
			return dErrors.New(dErrors.CodeDuplicateRecord, "a record for this competency already exists")
		} else if !errors.Is(findErr, sentinel.ErrNotFound) {
			return wrapRecordErr(findErr, "check existing record")
		}

		r, newErr := models.NewRecord(id.RecordID(uuid.New()), caller.ID, definitionID, restricted, now)
		if newErr != nil {
			if dErrors.HasCode(newErr, dErrors.CodeInvariantViolation) {
				return dErrors.New(dErrors.CodeValidation, newErr.Error())
			}
			return newErr
		}
		if createErr := s.records.Create(txCtx, r); createErr != nil {
			return wrapRecordErr(createErr, "create record")
		}
		if emitErr := s.emit(txCtx, audit.EventRecordCreated, r, caller, string(r.Status), ""); emitErr != nil {
			return emitErr
		}
		record = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.IncrementCreated()
	}
	return record, nil
}

// Edit applies a holder's field changes. Attaching or replacing a document on
// an active or changes_requested record moves it to pending_approval; other
// edits never change status.
func (s *Service) Edit(ctx context.Context, caller requestcontext.Caller, recordID id.RecordID, edit Edit) (record *models.Record, err error) {
	ctx, span, start := s.startSpan(ctx, "Edit", caller)
	defer func() { s.endSpan(span, "edit", start, err) }()

	return s.applyEdit(ctx, caller, recordID, edit, false)
}

// Resubmit applies an edit to a changes_requested record and always moves it
// to pending_approval.
func (s *Service) Resubmit(ctx context.Context, caller requestcontext.Caller, recordID id.RecordID, edit Edit) (record *models.Record, err error) {
	ctx, span, start := s.startSpan(ctx, "Resubmit", caller)
	defer func() { s.endSpan(span, "resubmit", start, err) }()

	return s.applyEdit(ctx, caller, recordID, edit, true)
}

// AttachDocument stores the upload under the holder's namespace and attaches
// the returned reference through the normal edit path. The blob write and the
// record update are separate; a failed update leaves an orphaned blob.
func (s *Service) AttachDocument(ctx context.Context, caller requestcontext.Caller, recordID id.RecordID, upload *documents.Upload, expectedVersion int64) (record *models.Record, err error) {
	ctx, span, start := s.startSpan(ctx, "AttachDocument", caller)
	defer func() { s.endSpan(span, "attach_document", start, err) }()

	if err = requireCaller(caller); err != nil {
		return nil, err
	}
	if upload == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "document upload required")
	}
	current, err := s.loadOwned(ctx, caller, recordID)
	if err != nil {
		return nil, err
	}
	def, err := s.catalog.Get(ctx, current.DefinitionID)
	if err != nil {
		return nil, err
	}
	if !def.Shape.Permits(catalog.FieldDocument) {
		return nil, dErrors.New(dErrors.CodeValidation, "this competency does not accept documents")
	}

	path := documents.BuildPath(caller.ID, documents.KindCertification, def.Name, upload.Extension, requestcontext.Now(ctx))
	url, err := s.documents.Put(ctx, path, upload.Body, upload.Size, upload.ContentType)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store document")
	}

	name := strings.TrimSpace(upload.Name)
	if name == "" {
		name = path[strings.LastIndex(path, "/")+1:]
	}
	return s.applyEdit(ctx, caller, recordID, Edit{
		Fields:          catalog.FieldSet{Document: &catalog.DocumentRef{URL: url, Name: name}},
		ExpectedVersion: expectedVersion,
	}, false)
}

// RemoveDocument clears the document reference. Status is unchanged.
func (s *Service) RemoveDocument(ctx context.Context, caller requestcontext.Caller, recordID id.RecordID) (record *models.Record, err error) {
	ctx, span, start := s.startSpan(ctx, "RemoveDocument", caller)
	defer func() { s.endSpan(span, "remove_document", start, err) }()

	if err = requireCaller(caller); err != nil {
		return nil, err
	}
	if err = requireRecordID(recordID); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		r, execErr := s.records.Execute(txCtx, recordID,
			func(r *models.Record) error {
				if !r.IsOwnedBy(caller.ID) {
					return errRecordNotFound()
				}
				return nil
			},
			func(r *models.Record) {
				r.ApplyRemoveDocument(now)
			},
		)
		if execErr != nil {
			return wrapRecordErr(execErr, "remove document")
		}
		record = r
		return s.emit(txCtx, audit.EventRecordDocumentRemoved, r, caller, "", "")
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// SubmitForReview sends an active or changes_requested record with a
// document to reviewers.
func (s *Service) SubmitForReview(ctx context.Context, caller requestcontext.Caller, recordID id.RecordID) (record *models.Record, err error) {
	ctx, span, start := s.startSpan(ctx, "SubmitForReview", caller)
	defer func() { s.endSpan(span, "submit_for_review", start, err) }()

	if err = requireCaller(caller); err != nil {
		return nil, err
	}
	if err = requireRecordID(recordID); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	var from models.Status
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		r, execErr := s.records.Execute(txCtx, recordID,
			func(r *models.Record) error {
				if !r.IsOwnedBy(caller.ID) {
					return errRecordNotFound()
				}
				from = r.Status
				return translateGuard(r.CanSubmitForReview())
			},
			func(r *models.Record) {
				r.ApplySubmitForReview(now)
			},
		)
		if execErr != nil {
			return wrapRecordErr(execErr, "submit record for review")
		}
		record = r
		return s.emit(txCtx, audit.EventRecordSubmitted, r, caller, string(r.Status), "")
	})
	if err != nil {
		return nil, err
	}
	s.observeTransition(from, record.Status)
	return record, nil
}

// Delete removes a record. Holders may delete their own records; reviewers
// may delete records of holders they manage.
func (s *Service) Delete(ctx context.Context, caller requestcontext.Caller, recordID id.RecordID) (err error) {
	ctx, span, start := s.startSpan(ctx, "Delete", caller)
	defer func() { s.endSpan(span, "delete", start, err) }()

	if err = requireCaller(caller); err != nil {
		return err
	}
	if err = requireRecordID(recordID); err != nil {
		return err
	}
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		r, findErr := s.records.FindByID(txCtx, recordID)
		if findErr != nil {
			return wrapRecordErr(findErr, "load record")
		}
		if !r.IsOwnedBy(caller.ID) {
			if !caller.IsReviewer() {
				return errRecordNotFound()
			}
			if reachErr := s.requireReach(txCtx, caller, r.HolderID); reachErr != nil {
				return reachErr
			}
		}
		if delErr := s.records.Delete(txCtx, recordID); delErr != nil {
			return wrapRecordErr(delErr, "delete record")
		}
		return s.emit(txCtx, audit.EventRecordDeleted, r, caller, "", "")
	})
	if err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.IncrementDeleted()
	}
	return nil
}

// Review resolves a pending record. Approval moves it to active and clears
// the note; requesting changes requires a note. Approving an active record is
// an invalid transition. Reviewers cannot review their own records.
func (s *Service) Review(ctx context.Context, caller requestcontext.Caller, recordID id.RecordID, decision ReviewDecision) (record *models.Record, err error) {
	ctx, span, start := s.startSpan(ctx, "Review", caller)
	defer func() { s.endSpan(span, "review", start, err) }()

	if err = requireCaller(caller); err != nil {
		return nil, err
	}
	if err = requireRecordID(recordID); err != nil {
		return nil, err
	}
	if !caller.IsReviewer() {
		s.emitDenied(ctx, caller, recordID.String(), "review requires org_admin or admin")
		return nil, dErrors.New(dErrors.CodeUnauthorized, "reviewer role required")
	}
	if !decision.Outcome.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "outcome must be approve or request_changes")
	}
	note := strings.TrimSpace(decision.Note)
	if decision.Outcome == models.OutcomeRequestChanges && note == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "a note is required when requesting changes")
	}

	current, err := s.records.FindByID(ctx, recordID)
	if err != nil {
		return nil, wrapRecordErr(err, "load record")
	}
	if current.IsOwnedBy(caller.ID) {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "reviewers cannot review their own records")
	}
	if err = s.requireReach(ctx, caller, current.HolderID); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	var from models.Status
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		r, execErr := s.records.Execute(txCtx, recordID,
			func(r *models.Record) error {
				if err := checkVersion(r, decision.ExpectedVersion); err != nil {
					return err
				}
				from = r.Status
				if decision.Outcome == models.OutcomeApprove {
					return translateGuard(r.CanApprove())
				}
				return nil
			},
			func(r *models.Record) {
				r.ApplyReview(decision.Outcome, note, caller.ID, now)
			},
		)
		if execErr != nil {
			return wrapRecordErr(execErr, "review record")
		}
		record = r
		return s.emit(txCtx, audit.EventRecordReviewed, r, caller, string(decision.Outcome), note)
	})
	if err != nil {
		return nil, err
	}
	s.observeTransition(from, record.Status)
	if s.metrics != nil {
		s.metrics.IncrementReview(string(decision.Outcome))
	}
	return record, nil
}

// Get returns a record the caller holds or manages, classified as of now.
func (s *Service) Get(ctx context.Context, caller requestcontext.Caller, recordID id.RecordID) (*models.ClassifiedRecord, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if err := requireRecordID(recordID); err != nil {
		return nil, err
	}
	r, err := s.records.FindByID(ctx, recordID)
	if err != nil {
		return nil, wrapRecordErr(err, "load record")
	}
	if !r.IsOwnedBy(caller.ID) {
		if !caller.IsReviewer() {
			return nil, errRecordNotFound()
		}
		if err := s.requireReach(ctx, caller, r.HolderID); err != nil {
			return nil, err
		}
	}
	c := models.WithClassification(r, requestcontext.Now(ctx))
	return &c, nil
}

// ListMine returns the caller's records, classified as of now.
func (s *Service) ListMine(ctx context.Context, caller requestcontext.Caller) ([]models.ClassifiedRecord, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	return s.listFor(ctx, caller.ID)
}

// ListForHolder returns another holder's records for a reviewer who manages them.
func (s *Service) ListForHolder(ctx context.Context, caller requestcontext.Caller, holderID id.HolderID) ([]models.ClassifiedRecord, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if holderID != caller.ID {
		if err := s.requireReach(ctx, caller, holderID); err != nil {
			return nil, err
		}
	}
	return s.listFor(ctx, holderID)
}

func (s *Service) listFor(ctx context.Context, holderID id.HolderID) ([]models.ClassifiedRecord, error) {
	records, err := s.records.ListByHolder(ctx, holderID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list records")
	}
	now := requestcontext.Now(ctx)
	out := make([]models.ClassifiedRecord, len(records))
	for i, r := range records {
		out[i] = models.WithClassification(r, now)
	}
	return out, nil
}

func (s *Service) loadOwned(ctx context.Context, caller requestcontext.Caller, recordID id.RecordID) (*models.Record, error) {
	if err := requireRecordID(recordID); err != nil {
		return nil, err
	}
	r, err := s.records.FindByID(ctx, recordID)
	if err != nil {
		return nil, wrapRecordErr(err, "load record")
	}
	if !r.IsOwnedBy(caller.ID) {
		return nil, errRecordNotFound()
	}
	return r, nil
}

func (s *Service) applyEdit(ctx context.Context, caller requestcontext.Caller, recordID id.RecordID, edit Edit, resubmit bool) (*models.Record, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	current, err := s.loadOwned(ctx, caller, recordID)
	if err != nil {
		return nil, err
	}
	_, fields, err := s.catalog.Resolve(ctx, current.DefinitionID, edit.Fields)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	var from models.Status
	var record *models.Record
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		r, execErr := s.records.Execute(txCtx, recordID,
			func(r *models.Record) error {
				if !r.IsOwnedBy(caller.ID) {
					return errRecordNotFound()
				}
				if err := checkVersion(r, edit.ExpectedVersion); err != nil {
					return err
				}
				if resubmit {
					if err := r.CanResubmit(); err != nil {
						return translateGuard(err)
					}
				}
				trial := *r
				trial.ApplyEdit(fields, now)
				if err := trial.Validate(); err != nil {
					return dErrors.New(dErrors.CodeValidation, err.Error())
				}
				from = r.Status
				return nil
			},
			func(r *models.Record) {
				if resubmit {
					r.ApplyResubmit(fields, now)
					return
				}
				r.ApplyEdit(fields, now)
			},
		)
		if execErr != nil {
			return wrapRecordErr(execErr, "update record")
		}
		record = r
		event := audit.EventRecordEdited
		if resubmit {
			event = audit.EventRecordResubmitted
		}
		return s.emit(txCtx, event, r, caller, string(r.Status), "")
	})
	if err != nil {
		return nil, err
	}
	s.observeTransition(from, record.Status)
	return record, nil
}

func (s *Service) emitDenied(ctx context.Context, caller requestcontext.Caller, subject, reason string) {
	if s.logger != nil {
		s.logger.WarnContext(ctx, "access denied",
			"event", string(audit.EventAccessDenied),
			"log_type", "audit",
			"request_id", requestcontext.RequestID(ctx),
			"actor_id", caller.ID.String(),
			"subject", subject,
		)
	}
	if s.auditPublisher == nil {
		return
	}
	// Security events are best effort; the refusal itself is the result.
	_ = s.auditPublisher.Emit(ctx, audit.Event{
		HolderID:  caller.ID,
		Subject:   subject,
		Action:    string(audit.EventAccessDenied),
		Decision:  "denied",
		Reason:    reason,
		RequestID: requestcontext.RequestID(ctx),
		Timestamp: requestcontext.Now(ctx),
	})
}
