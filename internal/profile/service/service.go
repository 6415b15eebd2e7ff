package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"qualtrack/internal/documents"
	"qualtrack/internal/profile/models"
	id "qualtrack/pkg/domain"
	dErrors "qualtrack/pkg/domain-errors"
	audit "qualtrack/pkg/platform/audit"
	"qualtrack/pkg/platform/sentinel"
	"qualtrack/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, p *models.Profile) error
	FindByID(ctx context.Context, holderID id.HolderID) (*models.Profile, error)
	List(ctx context.Context, orgID id.OrgID) ([]*models.Profile, error)
	Update(ctx context.Context, p *models.Profile) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service reads the roster and manages avatar references. Roles are never
// changed here.
type Service struct {
	store          Store
	documents      documents.Store
	logger         *slog.Logger
	auditPublisher AuditPublisher
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

func New(store Store, docs documents.Store, opts ...Option) *Service {
	s := &Service{store: store, documents: docs}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewProfileInput describes a holder provisioned by an administrator.
type NewProfileInput struct {
	ID          id.HolderID
	DisplayName string
	Email       string
	Role        id.Role
	OrgID       id.OrgID
	Phone       string
	JobTitle    string
}

// Create provisions a holder. Admins may create anyone; org admins only
// members of their organization below their own rank.
func (s *Service) Create(ctx context.Context, caller requestcontext.Caller, in NewProfileInput) (*models.Profile, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if !caller.CanManage(in.OrgID) || (caller.Role != id.RoleAdmin && !caller.Role.Above(in.Role)) {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "not allowed to provision this holder")
	}
	if in.ID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "holder id required")
	}
	p, err := models.NewProfile(in.ID, in.DisplayName, in.Email, in.Role, in.OrgID, requestcontext.Now(ctx))
	if err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, err.Error())
	}
	p.Phone = strings.TrimSpace(in.Phone)
	p.JobTitle = strings.TrimSpace(in.JobTitle)
	if err := s.store.Create(ctx, p); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConflict, "holder already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create profile")
	}
	return p, nil
}

// Get returns a profile visible to the caller: their own, anyone in their
// organization, or anyone for admins.
func (s *Service) Get(ctx context.Context, caller requestcontext.Caller, holderID id.HolderID) (*models.Profile, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	p, err := s.store.FindByID(ctx, holderID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, errProfileNotFound()
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load profile")
	}
	if !visible(caller, p) {
		return nil, errProfileNotFound()
	}
	return p, nil
}

// List returns the roster the caller can see. Admins see every holder.
func (s *Service) List(ctx context.Context, caller requestcontext.Caller) ([]*models.Profile, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	orgID := caller.OrgID
	if caller.Role == id.RoleAdmin {
		orgID = id.OrgID{}
	} else if orgID.IsNil() {
		self, err := s.Get(ctx, caller, caller.ID)
		if err != nil {
			return nil, err
		}
		return []*models.Profile{self}, nil
	}
	roster, err := s.store.List(ctx, orgID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list profiles")
	}
	return roster, nil
}

// SetAvatar stores an already checked image and points the caller's profile at it.
func (s *Service) SetAvatar(ctx context.Context, caller requestcontext.Caller, upload *documents.Upload) (*models.Profile, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if upload == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "avatar upload required")
	}
	p, err := s.Get(ctx, caller, caller.ID)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	path := documents.BuildPath(caller.ID, documents.KindAvatar, "avatar", upload.Extension, now)
	url, err := s.documents.Put(ctx, path, upload.Body, upload.Size, upload.ContentType)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store avatar")
	}
	p.ApplyAvatar(url, now)
	if err := s.store.Update(ctx, p); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update profile")
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, string(audit.EventAvatarUpdated),
			"event", string(audit.EventAvatarUpdated),
			"log_type", "audit",
			"request_id", requestcontext.RequestID(ctx),
			"holder_id", caller.ID.String(),
		)
	}
	if s.auditPublisher != nil {
		if err := s.auditPublisher.Emit(ctx, audit.Event{
			HolderID:  caller.ID,
			Subject:   caller.ID.String(),
			Action:    string(audit.EventAvatarUpdated),
			RequestID: requestcontext.RequestID(ctx),
			Timestamp: now,
		}); err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "failed to emit avatar audit event", "error", err)
		}
	}
	return p, nil
}

func visible(caller requestcontext.Caller, p *models.Profile) bool {
	if caller.ID == p.ID || caller.Role == id.RoleAdmin {
		return true
	}
	return !caller.OrgID.IsNil() && caller.OrgID == p.OrgID
}

func requireCaller(caller requestcontext.Caller) error {
	if caller.IsZero() {
		return dErrors.New(dErrors.CodeUnauthenticated, "authentication required")
	}
	return nil
}

func errProfileNotFound() error {
	return dErrors.New(dErrors.CodeNotFound, "profile not found")
}
