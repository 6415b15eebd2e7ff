package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	catalog "qualtrack/internal/catalog/models"
	id "qualtrack/pkg/domain"
	dErrors "qualtrack/pkg/domain-errors"
)

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func doc(name string) *catalog.DocumentRef {
	return &catalog.DocumentRef{URL: "https://docs.example/" + name, Name: name}
}

func newRecord(t *testing.T, fields catalog.FieldSet) *Record {
	t.Helper()
	r, err := NewRecord(id.RecordID(uuid.New()), id.HolderID(uuid.New()), id.DefinitionID(uuid.New()), fields, now)
	require.NoError(t, err)
	return r
}

type RecordLifecycleSuite struct {
	suite.Suite
}

func TestRecordLifecycleSuite(t *testing.T) {
	suite.Run(t, new(RecordLifecycleSuite))
}

func (s *RecordLifecycleSuite) TestNewRecord() {
	s.Run("without document starts active", func() {
		r := newRecord(s.T(), catalog.FieldSet{})
		s.Equal(StatusActive, r.Status)
		s.Nil(r.SubmittedAt)
		s.Equal(int64(1), r.Version)
	})

	s.Run("with document starts pending approval", func() {
		r := newRecord(s.T(), catalog.FieldSet{Document: doc("cert.pdf")})
		s.Equal(StatusPendingApproval, r.Status)
		s.Require().NotNil(r.SubmittedAt)
	})

	s.Run("issued date becomes created at", func() {
		issued := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
		r := newRecord(s.T(), catalog.FieldSet{IssuedDate: &issued})
		s.Equal(issued, r.CreatedAt)
	})

	s.Run("missing holder is an invariant violation", func() {
		_, err := NewRecord(id.RecordID(uuid.New()), id.HolderID{}, id.DefinitionID(uuid.New()), catalog.FieldSet{}, now)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})
}

func (s *RecordLifecycleSuite) TestApplyEdit() {
	notes := "updated notes"

	s.Run("attaching a document to an active record submits it", func() {
		r := newRecord(s.T(), catalog.FieldSet{})
		r.ApplyEdit(catalog.FieldSet{Document: doc("a.pdf")}, now)
		s.Equal(StatusPendingApproval, r.Status)
		s.Equal(int64(2), r.Version)
	})

	s.Run("replacing a document on changes requested submits it", func() {
		r := newRecord(s.T(), catalog.FieldSet{Document: doc("a.pdf")})
		r.ApplyReview(OutcomeRequestChanges, "blurry", id.HolderID(uuid.New()), now)
		r.ApplyEdit(catalog.FieldSet{Document: doc("b.pdf")}, now)
		s.Equal(StatusPendingApproval, r.Status)
		s.Empty(r.ReviewNote)
	})

	s.Run("non-document edit keeps changes requested and its note", func() {
		r := newRecord(s.T(), catalog.FieldSet{Document: doc("a.pdf")})
		r.ApplyReview(OutcomeRequestChanges, "blurry", id.HolderID(uuid.New()), now)
		r.ApplyEdit(catalog.FieldSet{Notes: &notes}, now)
		s.Equal(StatusChangesRequested, r.Status)
		s.Equal("blurry", r.ReviewNote)
		s.Equal(notes, r.Notes)
	})

	s.Run("re-sending the same document does not submit", func() {
		r := newRecord(s.T(), catalog.FieldSet{Document: doc("a.pdf")})
		r.ApplyReview(OutcomeApprove, "", id.HolderID(uuid.New()), now)
		r.ApplyEdit(catalog.FieldSet{Document: doc("a.pdf")}, now)
		s.Equal(StatusActive, r.Status)
	})

	s.Run("editing issued date rewrites created at", func() {
		r := newRecord(s.T(), catalog.FieldSet{})
		issued := time.Date(2023, 9, 9, 0, 0, 0, 0, time.UTC)
		r.ApplyEdit(catalog.FieldSet{IssuedDate: &issued}, now)
		s.Equal(issued, r.CreatedAt)
	})

	s.Run("clear resets fields", func() {
		expiry := now.AddDate(1, 0, 0)
		r := newRecord(s.T(), catalog.FieldSet{ExpiryDate: &expiry, Notes: &notes})
		r.ApplyEdit(catalog.FieldSet{Clear: []catalog.Field{catalog.FieldExpiryDate, catalog.FieldNotes}}, now)
		s.Nil(r.ExpiryDate)
		s.Empty(r.Notes)
	})
}

func (s *RecordLifecycleSuite) TestRemoveDocumentKeepsStatus() {
	r := newRecord(s.T(), catalog.FieldSet{Document: doc("a.pdf")})
	r.ApplyRemoveDocument(now)
	s.False(r.HasDocument())
	s.Equal(StatusPendingApproval, r.Status)
}

// TestApproveFromAnyPendingState verifies approval always lands on active with
// no note, and that approving an active record is refused.
func (s *RecordLifecycleSuite) TestApproveFromAnyPendingState() {
	reviewer := id.HolderID(uuid.New())
	for _, prior := range []Status{StatusPendingApproval, StatusChangesRequested} {
		s.Run(string(prior), func() {
			r := newRecord(s.T(), catalog.FieldSet{Document: doc("a.pdf")})
			r.Status = prior
			r.ReviewNote = "old note"
			s.Require().NoError(r.CanApprove())
			r.ApplyReview(OutcomeApprove, "", reviewer, now)
			s.Equal(StatusActive, r.Status)
			s.Empty(r.ReviewNote)
			s.Equal(&reviewer, r.ReviewedBy)
		})
	}

	s.Run("active", func() {
		r := newRecord(s.T(), catalog.FieldSet{})
		s.True(dErrors.HasCode(r.CanApprove(), dErrors.CodeInvariantViolation))
	})
}

func (s *RecordLifecycleSuite) TestSubmitAndResubmitGuards() {
	s.Run("submit requires a document", func() {
		r := newRecord(s.T(), catalog.FieldSet{})
		s.True(dErrors.HasCode(r.CanSubmitForReview(), dErrors.CodeValidation))
	})

	s.Run("submit refuses pending records", func() {
		r := newRecord(s.T(), catalog.FieldSet{Document: doc("a.pdf")})
		s.True(dErrors.HasCode(r.CanSubmitForReview(), dErrors.CodeInvariantViolation))
	})

	s.Run("resubmit only from changes requested", func() {
		r := newRecord(s.T(), catalog.FieldSet{})
		s.Error(r.CanResubmit())
		r.ApplyReview(OutcomeRequestChanges, "fix", id.HolderID(uuid.New()), now)
		s.NoError(r.CanResubmit())
		r.ApplyResubmit(catalog.FieldSet{}, now)
		s.Equal(StatusPendingApproval, r.Status)
	})
}

func TestClassify(t *testing.T) {
	at := func(d time.Duration) *time.Time {
		v := now.Add(d)
		return &v
	}
	day := 24 * time.Hour

	cases := []struct {
		name   string
		expiry *time.Time
		want   Classification
	}{
		{"no expiry", nil, ClassificationActive},
		{"yesterday", at(-day), ClassificationExpired},
		{"exactly now", at(0), ClassificationExpiringSoon},
		{"exactly 30 days", at(30 * day), ClassificationExpiringSoon},
		{"31 days", at(31 * day), ClassificationActive},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := &Record{ExpiryDate: tc.expiry, Status: StatusPendingApproval}
			assert.Equal(t, tc.want, Classify(r, now))
			assert.Equal(t, tc.want, Classify(r, now), "classification is repeatable")
			assert.Equal(t, StatusPendingApproval, r.Status, "classification never touches status")
		})
	}
}
