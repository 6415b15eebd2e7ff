package views

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	catalogmodels "qualtrack/internal/catalog/models"
	catalogservice "qualtrack/internal/catalog/service"
	catalogstore "qualtrack/internal/catalog/store"
	"qualtrack/internal/competency/models"
	"qualtrack/internal/competency/store"
	profile "qualtrack/internal/profile/models"
	profilestore "qualtrack/internal/profile/store"
	id "qualtrack/pkg/domain"
	dErrors "qualtrack/pkg/domain-errors"
	"qualtrack/pkg/requestcontext"
)

var (
	niNumber   = catalogstore.DefaultDefinitions()[0]
	firstAid   = catalogstore.DefaultDefinitions()[2]
	atHeight   = catalogstore.DefaultDefinitions()[3]
	confined   = catalogstore.DefaultDefinitions()[4]
	experience = catalogstore.DefaultDefinitions()[5]
	orgNorth   = id.OrgID(uuid.MustParse("4d2e0c1a-6b7f-4e21-8a3c-00000000000a"))
	orgSouth   = id.OrgID(uuid.MustParse("4d2e0c1a-6b7f-4e21-8a3c-00000000000b"))
	now        = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
)

type ViewsSuite struct {
	suite.Suite
	ctx      context.Context
	records  *store.InMemory
	profiles *profilestore.InMemory
	service  *Service

	ada, ben, sol      requestcontext.Caller
	reviewer, admin    requestcontext.Caller
	adaAtHeight        *models.Record
	benPending         *models.Record
	solPending         *models.Record
	unsubmittedPending *models.Record
}

func TestViewsSuite(t *testing.T) {
	suite.Run(t, new(ViewsSuite))
}

func (s *ViewsSuite) SetupTest() {
	s.ctx = requestcontext.WithTime(context.Background(), now)
	defs := catalogstore.NewInMemory()
	s.Require().NoError(catalogstore.SeedDefaults(s.ctx, defs))
	s.records = store.NewInMemory()
	s.profiles = profilestore.NewInMemory()
	s.service = New(s.records, catalogservice.New(defs), s.profiles)

	s.ada = s.addProfile("Ada North", id.RoleEditor, orgNorth)
	s.ben = s.addProfile("ben north", id.RoleEditor, orgNorth)
	s.sol = s.addProfile("Sol South", id.RoleEditor, orgSouth)
	s.reviewer = s.addProfile("Rita Reviewer", id.RoleOrgAdmin, orgNorth)
	s.admin = s.addProfile("Zed Admin", id.RoleAdmin, orgSouth)

	s.put(s.ada, niNumber, models.StatusActive, day(6), nil, func(r *models.Record) { r.Value = "AB123456C" })
	s.put(s.ada, firstAid, models.StatusActive, day(20), nil)
	s.adaAtHeight = s.put(s.ada, atHeight, models.StatusChangesRequested, day(10), nil, func(r *models.Record) {
		r.ReviewNote = "scan unreadable"
		r.ReviewedAt = &now
	})
	s.put(s.ada, confined, models.StatusActive, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), nil)

	s.put(s.ben, firstAid, models.StatusActive, day(20), nil)
	s.benPending = s.put(s.ben, atHeight, models.StatusPendingApproval, day(8), at(now.Add(-2*time.Hour)))
	s.put(s.ben, confined, models.StatusActive, time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC), nil)

	s.put(s.sol, firstAid, models.StatusActive, day(15), nil)
	s.solPending = s.put(s.sol, atHeight, models.StatusPendingApproval, day(25), at(now.Add(-time.Hour)))
	s.unsubmittedPending = s.put(s.sol, confined, models.StatusPendingApproval, day(25), nil)
}

func (s *ViewsSuite) addProfile(name string, role id.Role, org id.OrgID) requestcontext.Caller {
	p, err := profile.NewProfile(id.HolderID(uuid.New()), name, "x@example.test", role, org, now)
	s.Require().NoError(err)
	s.Require().NoError(s.profiles.Create(s.ctx, p))
	return requestcontext.Caller{ID: p.ID, Role: role, OrgID: org}
}

func (s *ViewsSuite) put(holder requestcontext.Caller, def *catalogmodels.Definition, status models.Status, expiry time.Time, submitted *time.Time, opts ...func(*models.Record)) *models.Record {
	r := &models.Record{
		ID:           id.RecordID(uuid.New()),
		HolderID:     holder.ID,
		DefinitionID: def.ID,
		ExpiryDate:   &expiry,
		Status:       status,
		SubmittedAt:  submitted,
		CreatedAt:    now,
		UpdatedAt:    now,
		Version:      1,
	}
	for _, opt := range opts {
		opt(r)
	}
	s.Require().NoError(s.records.Create(s.ctx, r))
	return r
}

func day(d int) time.Time {
	return time.Date(2026, 5, d, 0, 0, 0, 0, time.UTC)
}

func at(t time.Time) *time.Time { return &t }

func (s *ViewsSuite) requireCode(err error, code dErrors.Code) {
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, code), "expected %s, got %v", code, err)
}

type row struct {
	holder id.HolderID
	def    id.DefinitionID
}

func rows(in []HolderRecord) []row {
	out := make([]row, len(in))
	for i, hr := range in {
		out[i] = row{hr.Holder.ID, hr.Definition.ID}
	}
	return out
}

func (s *ViewsSuite) TestExpiringWithin() {
	s.Run("org admin sees own organization, soonest first, name breaks ties", func() {
		out, err := s.service.ExpiringWithin(s.ctx, s.reviewer, 30, Scope{})
		s.Require().NoError(err)
		s.Equal([]row{
			{s.ada.ID, atHeight.ID},
			{s.ada.ID, firstAid.ID},
			{s.ben.ID, firstAid.ID},
		}, rows(out))
		s.Equal(catalogmodels.ShapeCertification, out[0].Definition.Shape)
		s.Equal(models.ClassificationExpiringSoon, out[0].Record.Classification)
	})

	s.Run("admin without scope sees every organization", func() {
		out, err := s.service.ExpiringWithin(s.ctx, s.admin, 30, Scope{})
		s.Require().NoError(err)
		s.Equal([]row{
			{s.ada.ID, atHeight.ID},
			{s.sol.ID, firstAid.ID},
			{s.ada.ID, firstAid.ID},
			{s.ben.ID, firstAid.ID},
		}, rows(out))
	})

	s.Run("never includes personal details and stays sorted", func() {
		out, err := s.service.ExpiringWithin(s.ctx, s.admin, 365, Scope{})
		s.Require().NoError(err)
		for i, hr := range out {
			s.False(hr.Definition.IsPersonalDetail())
			if i > 0 {
				s.False(hr.Record.ExpiryDate.Before(*out[i-1].Record.ExpiryDate))
			}
		}
		s.Len(out, 5)
	})

	s.Run("narrow window", func() {
		out, err := s.service.ExpiringWithin(s.ctx, s.reviewer, 7, Scope{})
		s.Require().NoError(err)
		s.Equal([]row{{s.ada.ID, atHeight.ID}}, rows(out))
	})

	s.Run("zero uses the default window", func() {
		out, err := s.service.ExpiringWithin(s.ctx, s.reviewer, 0, Scope{})
		s.Require().NoError(err)
		s.Len(out, 3)
	})

	s.Run("negative window", func() {
		_, err := s.service.ExpiringWithin(s.ctx, s.reviewer, -1, Scope{})
		s.requireCode(err, dErrors.CodeValidation)
	})
}

func (s *ViewsSuite) TestScope() {
	_, err := s.service.ExpiringWithin(s.ctx, s.ada, 30, Scope{})
	s.requireCode(err, dErrors.CodeUnauthorized)

	_, err = s.service.PendingForReview(s.ctx, s.reviewer, Scope{OrgID: orgSouth})
	s.requireCode(err, dErrors.CodeUnauthorized)

	_, err = s.service.ComplianceMatrix(s.ctx, requestcontext.Caller{}, Scope{})
	s.requireCode(err, dErrors.CodeUnauthenticated)

	out, err := s.service.PendingForReview(s.ctx, s.admin, Scope{OrgID: orgNorth})
	s.Require().NoError(err)
	s.Equal([]row{{s.ben.ID, atHeight.ID}}, rows(out))
}

func (s *ViewsSuite) TestPendingForReview() {
	out, err := s.service.PendingForReview(s.ctx, s.admin, Scope{})
	s.Require().NoError(err)
	s.Require().Len(out, 3)
	s.Equal(s.solPending.ID, out[0].Record.ID)
	s.Equal(s.benPending.ID, out[1].Record.ID)
	s.Equal(s.unsubmittedPending.ID, out[2].Record.ID)

	out, err = s.service.PendingForReview(s.ctx, s.reviewer, Scope{})
	s.Require().NoError(err)
	s.Require().Len(out, 1)
	s.Equal(s.benPending.ID, out[0].Record.ID)
}

func (s *ViewsSuite) TestAttentionRequired() {
	s.Run("holder reads own feed with the review note", func() {
		out, err := s.service.AttentionRequired(s.ctx, s.ada, s.ada.ID)
		s.Require().NoError(err)
		s.Require().Len(out, 1)
		s.Equal(s.adaAtHeight.ID, out[0].Record.ID)
		s.Equal("scan unreadable", out[0].Record.ReviewNote)
	})

	s.Run("reviewer in reach", func() {
		out, err := s.service.AttentionRequired(s.ctx, s.reviewer, s.ada.ID)
		s.Require().NoError(err)
		s.Len(out, 1)
	})

	s.Run("empty feed", func() {
		out, err := s.service.AttentionRequired(s.ctx, s.ben, s.ben.ID)
		s.Require().NoError(err)
		s.Empty(out)
	})

	s.Run("colleague refused", func() {
		_, err := s.service.AttentionRequired(s.ctx, s.ben, s.ada.ID)
		s.requireCode(err, dErrors.CodeUnauthorized)
	})

	s.Run("reviewer outside organization", func() {
		far := requestcontext.Caller{ID: id.HolderID(uuid.New()), Role: id.RoleOrgAdmin, OrgID: orgSouth}
		_, err := s.service.AttentionRequired(s.ctx, far, s.ada.ID)
		s.requireCode(err, dErrors.CodeNotFound)
	})

	s.Run("unknown holder", func() {
		_, err := s.service.AttentionRequired(s.ctx, s.admin, id.HolderID(uuid.New()))
		s.requireCode(err, dErrors.CodeNotFound)
	})
}

func (s *ViewsSuite) TestComplianceMatrix() {
	m, err := s.service.ComplianceMatrix(s.ctx, s.reviewer, Scope{})
	s.Require().NoError(err)

	s.Require().Len(m.Definitions, 4)
	for _, d := range m.Definitions {
		s.False(d.IsPersonalDetail())
	}
	s.Require().Len(m.Rows, 3)
	s.Equal(s.ada.ID, m.Rows[0].Holder.ID)
	s.Equal(s.ben.ID, m.Rows[1].Holder.ID)
	s.Equal(s.reviewer.ID, m.Rows[2].Holder.ID)
	for _, r := range m.Rows {
		s.Len(r.Cells, 4)
	}

	missing := m.Missing(experience.ID)
	s.Len(missing, 3)
	missing = m.Missing(atHeight.ID)
	s.Require().Len(missing, 1)
	s.Equal(s.reviewer.ID, missing[0].ID)
	s.Nil(m.Missing(niNumber.ID))
}

func (s *ViewsSuite) TestExport() {
	snap, err := s.service.Export(s.ctx, s.reviewer, Scope{})
	s.Require().NoError(err)
	s.Require().Len(snap.Rows, 3)
	s.Len(snap.Definitions, 6)

	ada := snap.Rows[0]
	s.Equal(s.ada.ID, ada.HolderID)
	// Definitions are listed by category, then name.
	s.Equal([]string{
		"",
		"AB123456C",
		"2026-05-01",
		"2026-05-20",
		"2026-05-10 (changes_requested)",
		"",
	}, ada.Cells)

	table := snap.Table()
	s.Len(table, 4)
	s.Equal("holder_id", table[0][0])
	s.Equal("Driving licence", table[0][5])
	s.Len(table[1], 11)
}

func TestCellValue(t *testing.T) {
	cert := &catalogmodels.Definition{Shape: catalogmodels.ShapeCertification}
	free := &catalogmodels.Definition{Shape: catalogmodels.ShapeFreeValue}
	expiry := time.Date(2027, 1, 2, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		def  *catalogmodels.Definition
		rec  *models.Record
		want string
	}{
		{"certification with expiry", cert, &models.Record{ExpiryDate: &expiry, Status: models.StatusActive}, "2027-01-02"},
		{"certification without expiry", cert, &models.Record{Status: models.StatusActive}, "held"},
		{"pending certification", cert, &models.Record{Status: models.StatusPendingApproval}, "held (pending_approval)"},
		{"free value", free, &models.Record{Value: "7", Status: models.StatusActive}, "7"},
		{"empty free value with status", free, &models.Record{Status: models.StatusChangesRequested}, "changes_requested"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cellValue(tt.def, tt.rec); got != tt.want {
				t.Errorf("cellValue() = %q, want %q", got, tt.want)
			}
		})
	}
}
