package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	catalog "qualtrack/internal/catalog/models"
	"qualtrack/internal/competency/metrics"
	"qualtrack/internal/competency/models"
	"qualtrack/internal/documents"
	profile "qualtrack/internal/profile/models"
	id "qualtrack/pkg/domain"
	dErrors "qualtrack/pkg/domain-errors"
	audit "qualtrack/pkg/platform/audit"
	"qualtrack/pkg/platform/sentinel"
	txcontext "qualtrack/pkg/platform/tx"
	"qualtrack/pkg/requestcontext"
)

type RecordStore interface {
	Create(ctx context.Context, r *models.Record) error
	FindByID(ctx context.Context, recordID id.RecordID) (*models.Record, error)
	FindByHolderAndDefinition(ctx context.Context, holderID id.HolderID, definitionID id.DefinitionID) (*models.Record, error)
	ListByHolder(ctx context.Context, holderID id.HolderID) ([]*models.Record, error)
	Execute(ctx context.Context, recordID id.RecordID, validate func(*models.Record) error, mutate func(*models.Record)) (*models.Record, error)
	Delete(ctx context.Context, recordID id.RecordID) error
}

// Catalog resolves definitions and restricts fields to their shape.
type Catalog interface {
	Get(ctx context.Context, defID id.DefinitionID) (*catalog.Definition, error)
	Resolve(ctx context.Context, defID id.DefinitionID, fields catalog.FieldSet) (*catalog.Definition, catalog.FieldSet, error)
}

// Holders looks up profiles for organization scoping.
type Holders interface {
	FindByID(ctx context.Context, holderID id.HolderID) (*profile.Profile, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is the competency lifecycle engine. It is stateless; every
// mutation goes through RecordStore.Execute so validate and mutate see the
// same row.
type Service struct {
	records        RecordStore
	catalog        Catalog
	holders        Holders
	documents      documents.Store
	tx             txcontext.Runner
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	tracer         trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTx sets the transaction runner. Defaults to an in-memory runner.
func WithTx(runner txcontext.Runner) Option {
	return func(s *Service) {
		s.tx = runner
	}
}

func New(records RecordStore, cat Catalog, holders Holders, docs documents.Store, opts ...Option) *Service {
	s := &Service{
		records:   records,
		catalog:   cat,
		holders:   holders,
		documents: docs,
		tracer:    otel.Tracer("qualtrack/internal/competency"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.tx == nil {
		s.tx = txcontext.NewMemoryRunner()
	}
	return s
}

// Edit is a holder's change to a record. ExpectedVersion, when non-zero, must
// match the stored version.
type Edit struct {
	Fields          catalog.FieldSet
	ExpectedVersion int64
}

// ReviewDecision is a reviewer's outcome for one record.
type ReviewDecision struct {
	Outcome         models.Outcome
	Note            string
	ExpectedVersion int64
}

func (s *Service) startSpan(ctx context.Context, op string, caller requestcontext.Caller) (context.Context, trace.Span, time.Time) {
	ctx, span := s.tracer.Start(ctx, "competency."+op, trace.WithAttributes(
		attribute.String("caller.id", caller.ID.String()),
		attribute.String("caller.role", caller.Role.String()),
	))
	return ctx, span, time.Now()
}

func (s *Service) endSpan(span trace.Span, op string, start time.Time, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
	if s.metrics != nil {
		s.metrics.ObserveOperation(op, start)
	}
}

func requireCaller(caller requestcontext.Caller) error {
	if caller.IsZero() {
		return dErrors.New(dErrors.CodeUnauthenticated, "authentication required")
	}
	if !caller.Role.IsValid() {
		return dErrors.New(dErrors.CodeUnauthorized, "caller role is not recognised")
	}
	return nil
}

func requireRecordID(recordID id.RecordID) error {
	if recordID.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "record id required")
	}
	return nil
}

// requireReach checks a reviewer may act on holderID's records. Holders
// outside the reviewer's organization are reported as not found.
func (s *Service) requireReach(ctx context.Context, caller requestcontext.Caller, holderID id.HolderID) error {
	if !caller.IsReviewer() {
		return dErrors.New(dErrors.CodeUnauthorized, "reviewer role required")
	}
	if caller.Role == id.RoleAdmin {
		return nil
	}
	holder, err := s.holders.FindByID(ctx, holderID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return errRecordNotFound()
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load holder")
	}
	if !caller.CanManage(holder.OrgID) {
		return errRecordNotFound()
	}
	return nil
}

func errRecordNotFound() error {
	return dErrors.New(dErrors.CodeNotFound, "competency record not found")
}

func checkVersion(r *models.Record, expected int64) error {
	if expected != 0 && r.Version != expected {
		return dErrors.New(dErrors.CodeConflict, "record was modified since it was read")
	}
	return nil
}

// translateGuard maps model-level guard failures to caller-facing errors.
func translateGuard(err error) error {
	if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
		return dErrors.New(dErrors.CodeInvalidTransition, err.Error())
	}
	return err
}

// wrapRecordErr translates store sentinels into domain errors.
func wrapRecordErr(err error, action string) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return errRecordNotFound()
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return dErrors.New(dErrors.CodeDuplicateRecord, "a record for this competency already exists")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "record was modified concurrently")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to "+action)
	}
}

func (s *Service) emit(ctx context.Context, event audit.AuditEvent, r *models.Record, caller requestcontext.Caller, decision, reason string) error {
	if s.logger != nil {
		s.logger.InfoContext(ctx, string(event),
			"event", string(event),
			"log_type", "audit",
			"request_id", requestcontext.RequestID(ctx),
			"record_id", r.ID.String(),
			"holder_id", r.HolderID.String(),
			"actor_id", caller.ID.String(),
			"status", string(r.Status),
		)
	}
	if s.auditPublisher == nil {
		return nil
	}
	ev := audit.Event{
		HolderID:  r.HolderID,
		Subject:   r.ID.String(),
		Action:    string(event),
		Decision:  decision,
		Reason:    reason,
		RequestID: requestcontext.RequestID(ctx),
		Timestamp: requestcontext.Now(ctx),
	}
	if caller.ID != r.HolderID {
		ev.ActorID = caller.ID.String()
	}
	if err := s.auditPublisher.Emit(ctx, ev); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit event")
	}
	return nil
}

func (s *Service) observeTransition(from, to models.Status) {
	if s.metrics != nil {
		s.metrics.ObserveTransition(string(from), string(to))
	}
}
