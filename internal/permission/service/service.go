package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"qualtrack/internal/permission/metrics"
	"qualtrack/internal/permission/models"
	profile "qualtrack/internal/profile/models"
	id "qualtrack/pkg/domain"
	dErrors "qualtrack/pkg/domain-errors"
	audit "qualtrack/pkg/platform/audit"
	"qualtrack/pkg/platform/sentinel"
	txcontext "qualtrack/pkg/platform/tx"
	"qualtrack/pkg/requestcontext"
)

type RequestStore interface {
	Create(ctx context.Context, r *models.Request) error
	FindByID(ctx context.Context, requestID id.RequestID) (*models.Request, error)
	FindPendingByRequester(ctx context.Context, requesterID id.HolderID) (*models.Request, error)
	ListByRequester(ctx context.Context, requesterID id.HolderID) ([]*models.Request, error)
	ListByStatus(ctx context.Context, status models.Status) ([]*models.Request, error)
	Execute(ctx context.Context, requestID id.RequestID, validate func(*models.Request) error, mutate func(*models.Request)) (*models.Request, error)
}

// Profiles is the holder roster. Update is only called on the approval path.
type Profiles interface {
	FindByID(ctx context.Context, holderID id.HolderID) (*profile.Profile, error)
	List(ctx context.Context, orgID id.OrgID) ([]*profile.Profile, error)
	Update(ctx context.Context, p *profile.Profile) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is the permission request engine.
type Service struct {
	requests       RequestStore
	profiles       Profiles
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

// WithTx sets the runner that wraps the request and profile writes of an
// approval. Both stores must share it.
func WithTx(runner txcontext.Runner) Option {
	return func(s *Service) {
		s.tx = runner
	}
}

func New(requests RequestStore, profiles Profiles, opts ...Option) *Service {
	s := &Service{
		requests: requests,
		profiles: profiles,
		tracer:   otel.Tracer("qualtrack/internal/permission"),
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

// Decision is a reviewer's resolution of a request.
type Decision struct {
	Outcome models.Outcome
	Reason  string
}

// Submit files a role upgrade for the caller. The caller's stored role, not
// the token role, is captured on the request. An existing pending request is
// reported before any other validation.
func (s *Service) Submit(ctx context.Context, caller requestcontext.Caller, requested id.Role, message string) (request *models.Request, err error) {
	ctx, span := s.startSpan(ctx, "Submit", caller)
	defer func() { endSpan(span, err) }()

	if err = requireCaller(caller); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if _, findErr := s.requests.FindPendingByRequester(txCtx, caller.ID); findErr == nil {
			return errDuplicatePending()
		} else if !errors.Is(findErr, sentinel.ErrNotFound) {
			return dErrors.Wrap(findErr, dErrors.CodeInternal, "failed to check pending requests")
		}

		if strings.TrimSpace(message) == "" {
			return dErrors.New(dErrors.CodeValidation, "a message explaining the request is required")
		}
		if !requested.IsValid() {
			return dErrors.New(dErrors.CodeValidation, "requested role is not recognised")
		}
		holder, findErr := s.profiles.FindByID(txCtx, caller.ID)
		if findErr != nil {
			if errors.Is(findErr, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "profile not found")
			}
			return dErrors.Wrap(findErr, dErrors.CodeInternal, "failed to load profile")
		}
		if !requested.Above(holder.Role) {
			return dErrors.New(dErrors.CodeValidation, "requested role must be above your current role")
		}

		r, newErr := models.NewRequest(id.RequestID(uuid.New()), caller.ID, holder.Role, requested, message, now)
		if newErr != nil {
			return dErrors.New(dErrors.CodeValidation, newErr.Error())
		}
		if createErr := s.requests.Create(txCtx, r); createErr != nil {
			if errors.Is(createErr, sentinel.ErrAlreadyUsed) {
				return errDuplicatePending()
			}
			return dErrors.Wrap(createErr, dErrors.CodeInternal, "failed to create permission request")
		}
		request = r
		return s.emit(txCtx, audit.EventPermissionRequested, r, caller, string(r.RequestedRole), "")
	})
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.IncrementSubmitted(string(request.RequestedRole))
	}
	return request, nil
}

// Review resolves a pending request. The reviewer must rank at least
// org_admin and at least the requested role. Approval updates the requester's
// role and the request in one transaction. Both outcomes are terminal.
func (s *Service) Review(ctx context.Context, caller requestcontext.Caller, requestID id.RequestID, decision Decision) (request *models.Request, err error) {
	ctx, span := s.startSpan(ctx, "Review", caller)
	defer func() { endSpan(span, err) }()

	if err = requireCaller(caller); err != nil {
		return nil, err
	}
	if requestID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "request id required")
	}
	if !decision.Outcome.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "outcome must be approve or reject")
	}
	reason := strings.TrimSpace(decision.Reason)
	if decision.Outcome == models.OutcomeReject && reason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "a rejection reason is required")
	}

	current, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return nil, wrapRequestErr(err)
	}
	if !caller.Role.AtLeast(current.ReviewerRole()) {
		s.emitDenied(ctx, caller, current, "reviewer role below "+current.ReviewerRole().String())
		return nil, dErrors.New(dErrors.CodeUnauthorized, "reviewing this request requires "+current.ReviewerRole().String())
	}
	if current.RequesterID == caller.ID {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "reviewers cannot review their own requests")
	}
	requester, err := s.profiles.FindByID(ctx, current.RequesterID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, errRequestNotFound()
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load requester")
	}
	if !caller.CanManage(requester.OrgID) {
		return nil, errRequestNotFound()
	}

	now := requestcontext.Now(ctx)
	var roleChange *[2]id.Role
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		r, execErr := s.requests.Execute(txCtx, requestID,
			func(r *models.Request) error {
				if err := r.CanReview(); err != nil {
					return dErrors.New(dErrors.CodeInvalidTransition, err.Error())
				}
				return nil
			},
			func(r *models.Request) {
				if decision.Outcome == models.OutcomeApprove {
					r.ApplyApprove(caller.ID, now)
					return
				}
				r.ApplyReject(caller.ID, reason, now)
			},
		)
		if execErr != nil {
			return wrapRequestErr(execErr)
		}
		request = r
		if emitErr := s.emit(txCtx, audit.EventPermissionReviewed, r, caller, string(decision.Outcome), reason); emitErr != nil {
			return emitErr
		}
		if decision.Outcome != models.OutcomeApprove {
			return nil
		}

		holder, findErr := s.profiles.FindByID(txCtx, r.RequesterID)
		if findErr != nil {
			return dErrors.Wrap(findErr, dErrors.CodeInternal, "failed to load requester")
		}
		// A role raised elsewhere since submission is never lowered.
		if !r.RequestedRole.Above(holder.Role) {
			return nil
		}
		from := holder.Role
		holder.ApplyRoleChange(r.RequestedRole, now)
		if updateErr := s.profiles.Update(txCtx, holder); updateErr != nil {
			return dErrors.Wrap(updateErr, dErrors.CodeInternal, "failed to update requester role")
		}
		roleChange = &[2]id.Role{from, holder.Role}
		return s.emit(txCtx, audit.EventRoleChanged, r, caller, holder.Role.String(), "from "+from.String())
	})
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.IncrementReviewed(string(decision.Outcome))
		if roleChange != nil {
			s.metrics.IncrementRoleChange(roleChange[0].String(), roleChange[1].String())
		}
	}
	return request, nil
}

// ListMine returns the caller's requests, newest first.
func (s *Service) ListMine(ctx context.Context, caller requestcontext.Caller) ([]*models.Request, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	out, err := s.requests.ListByRequester(ctx, caller.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list permission requests")
	}
	return out, nil
}

// ListPending returns the pending requests the caller could review, newest
// first. Org admins see requests from their organization that they rank high
// enough to resolve.
func (s *Service) ListPending(ctx context.Context, caller requestcontext.Caller) ([]*models.Request, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if !caller.IsReviewer() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "reviewer role required")
	}
	pending, err := s.requests.ListByStatus(ctx, models.StatusPending)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list pending requests")
	}
	if caller.Role == id.RoleAdmin {
		return excludeOwn(pending, caller.ID), nil
	}

	members, err := s.profiles.List(ctx, caller.OrgID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list organization members")
	}
	inOrg := make(map[id.HolderID]struct{}, len(members))
	for _, p := range members {
		if caller.CanManage(p.OrgID) {
			inOrg[p.ID] = struct{}{}
		}
	}
	out := make([]*models.Request, 0, len(pending))
	for _, r := range excludeOwn(pending, caller.ID) {
		if _, ok := inOrg[r.RequesterID]; ok && caller.Role.AtLeast(r.ReviewerRole()) {
			out = append(out, r)
		}
	}
	return out, nil
}

func excludeOwn(requests []*models.Request, holderID id.HolderID) []*models.Request {
	out := make([]*models.Request, 0, len(requests))
	for _, r := range requests {
		if r.RequesterID != holderID {
			out = append(out, r)
		}
	}
	return out
}

func (s *Service) startSpan(ctx context.Context, op string, caller requestcontext.Caller) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "permission."+op, trace.WithAttributes(
		attribute.String("caller.id", caller.ID.String()),
		attribute.String("caller.role", caller.Role.String()),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
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

func errDuplicatePending() error {
	return dErrors.New(dErrors.CodeDuplicatePendingRequest, "a permission request is already pending")
}

func errRequestNotFound() error {
	return dErrors.New(dErrors.CodeNotFound, "permission request not found")
}

func wrapRequestErr(err error) error {
	if _, ok := dErrors.As(err); ok {
		return err
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return errRequestNotFound()
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update permission request")
}

func (s *Service) emit(ctx context.Context, event audit.AuditEvent, r *models.Request, caller requestcontext.Caller, decision, reason string) error {
	if s.logger != nil {
		s.logger.InfoContext(ctx, string(event),
			"event", string(event),
			"log_type", "audit",
			"request_id", requestcontext.RequestID(ctx),
			"permission_request_id", r.ID.String(),
			"requester_id", r.RequesterID.String(),
			"actor_id", caller.ID.String(),
			"requested_role", r.RequestedRole.String(),
			"decision", decision,
		)
	}
	if s.auditPublisher == nil {
		return nil
	}
	ev := audit.Event{
		HolderID:  r.RequesterID,
		Subject:   r.ID.String(),
		Action:    string(event),
		Decision:  decision,
		Reason:    reason,
		RequestID: requestcontext.RequestID(ctx),
		Timestamp: requestcontext.Now(ctx),
	}
	if caller.ID != r.RequesterID {
		ev.ActorID = caller.ID.String()
	}
	if err := s.auditPublisher.Emit(ctx, ev); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit event")
	}
	return nil
}

func (s *Service) emitDenied(ctx context.Context, caller requestcontext.Caller, r *models.Request, reason string) {
	if s.logger != nil {
		s.logger.WarnContext(ctx, "access denied",
			"event", string(audit.EventAccessDenied),
			"log_type", "audit",
			"request_id", requestcontext.RequestID(ctx),
			"actor_id", caller.ID.String(),
			"subject", r.ID.String(),
		)
	}
	if s.auditPublisher == nil {
		return
	}
	_ = s.auditPublisher.Emit(ctx, audit.Event{
		HolderID:  caller.ID,
		Subject:   r.ID.String(),
		Action:    string(audit.EventAccessDenied),
		Decision:  "denied",
		Reason:    reason,
		RequestID: requestcontext.RequestID(ctx),
		Timestamp: requestcontext.Now(ctx),
	})
}
