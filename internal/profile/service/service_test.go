package service

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"qualtrack/internal/documents"
	"qualtrack/internal/profile/store"
	id "qualtrack/pkg/domain"
	dErrors "qualtrack/pkg/domain-errors"
	audit "qualtrack/pkg/platform/audit"
	"qualtrack/pkg/platform/audit/publisher"
	auditmemory "qualtrack/pkg/platform/audit/store/memory"
	"qualtrack/pkg/requestcontext"
)

var (
	orgA = id.OrgID(uuid.MustParse("7f3e2d1c-0b9a-4876-9543-0000000000a1"))
	orgB = id.OrgID(uuid.MustParse("7f3e2d1c-0b9a-4876-9543-0000000000b2"))
)

type ProfileServiceSuite struct {
	suite.Suite
	ctx     context.Context
	docs    *documents.InMemory
	audit   *auditmemory.InMemoryStore
	service *Service
	admin   requestcontext.Caller
}

func TestProfileServiceSuite(t *testing.T) {
	suite.Run(t, new(ProfileServiceSuite))
}

func (s *ProfileServiceSuite) SetupTest() {
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC))
	s.docs = documents.NewInMemory("https://cdn.test")
	s.audit = auditmemory.NewInMemoryStore()
	s.service = New(store.NewInMemory(), s.docs, WithAuditPublisher(publisher.NewPublisher(s.audit)))
	s.admin = requestcontext.Caller{ID: id.HolderID(uuid.New()), Role: id.RoleAdmin}
}

func (s *ProfileServiceSuite) provision(name string, role id.Role, org id.OrgID) requestcontext.Caller {
	p, err := s.service.Create(s.ctx, s.admin, NewProfileInput{
		ID: id.HolderID(uuid.New()), DisplayName: name, Email: name + "@example.test", Role: role, OrgID: org,
	})
	s.Require().NoError(err)
	return requestcontext.Caller{ID: p.ID, Role: p.Role, OrgID: p.OrgID}
}

func (s *ProfileServiceSuite) TestVisibilityFollowsOrganization() {
	ann := s.provision("Ann", id.RoleEditor, orgA)
	bob := s.provision("Bob", id.RoleViewer, orgA)
	cat := s.provision("Cat", id.RoleEditor, orgB)

	_, err := s.service.Get(s.ctx, ann, bob.ID)
	s.Require().NoError(err)

	_, err = s.service.Get(s.ctx, ann, cat.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	roster, err := s.service.List(s.ctx, ann)
	s.Require().NoError(err)
	s.Len(roster, 2)

	all, err := s.service.List(s.ctx, s.admin)
	s.Require().NoError(err)
	s.Len(all, 3)
}

func (s *ProfileServiceSuite) TestCreateScope() {
	lead := s.provision("Lead", id.RoleOrgAdmin, orgA)

	_, err := s.service.Create(s.ctx, lead, NewProfileInput{
		ID: id.HolderID(uuid.New()), DisplayName: "New", Email: "new@example.test", Role: id.RoleEditor, OrgID: orgA,
	})
	s.Require().NoError(err)

	_, err = s.service.Create(s.ctx, lead, NewProfileInput{
		ID: id.HolderID(uuid.New()), DisplayName: "Peer", Email: "peer@example.test", Role: id.RoleOrgAdmin, OrgID: orgA,
	})
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	_, err = s.service.Create(s.ctx, lead, NewProfileInput{
		ID: id.HolderID(uuid.New()), DisplayName: "Other", Email: "o@example.test", Role: id.RoleViewer, OrgID: orgB,
	})
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	_, err = s.service.Create(s.ctx, s.admin, NewProfileInput{
		ID: id.HolderID(uuid.New()), DisplayName: " ", Email: "x@example.test", Role: id.RoleViewer, OrgID: orgB,
	})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ProfileServiceSuite) TestSetAvatar() {
	ann := s.provision("Ann", id.RoleEditor, orgA)
	png := []byte("\x89PNG\r\n\x1a\nfake")

	p, err := s.service.SetAvatar(s.ctx, ann, &documents.Upload{
		Name: "me.png", Body: bytes.NewReader(png), Size: int64(len(png)), ContentType: "image/png", Extension: ".png",
	})
	s.Require().NoError(err)
	s.Contains(p.AvatarURL, "https://cdn.test/holders/"+ann.ID.String()+"/avatars/avatar-")
	s.Equal(id.RoleEditor, p.Role)

	events, err := s.audit.ListByHolder(s.ctx, ann.ID)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(string(audit.EventAvatarUpdated), events[0].Action)
	s.Equal(audit.CategoryOperations, events[0].Category)
}
