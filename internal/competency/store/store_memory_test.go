package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	catalog "qualtrack/internal/catalog/models"
	"qualtrack/internal/competency/models"
	id "qualtrack/pkg/domain"
	"qualtrack/pkg/platform/sentinel"
	txcontext "qualtrack/pkg/platform/tx"
)

type RecordStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func TestRecordStoreSuite(t *testing.T) {
	suite.Run(t, new(RecordStoreSuite))
}

func (s *RecordStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func (s *RecordStoreSuite) newRecord(holder id.HolderID, def id.DefinitionID) *models.Record {
	r, err := models.NewRecord(id.RecordID(uuid.New()), holder, def, catalog.FieldSet{}, time.Now())
	s.Require().NoError(err)
	return r
}

// TestOneRecordPerHolderAndDefinition verifies the pair uniqueness rule
// under concurrent creation.
func (s *RecordStoreSuite) TestOneRecordPerHolderAndDefinition() {
	holder := id.HolderID(uuid.New())
	def := id.DefinitionID(uuid.New())

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.store.Create(s.ctx, s.newRecord(holder, def))
		}()
	}
	wg.Wait()
	close(errs)

	created := 0
	for err := range errs {
		if err == nil {
			created++
			continue
		}
		s.ErrorIs(err, sentinel.ErrAlreadyUsed)
	}
	s.Equal(1, created)

	records, err := s.store.ListByHolder(s.ctx, holder)
	s.Require().NoError(err)
	s.Len(records, 1)
}

func (s *RecordStoreSuite) TestDeleteFreesThePair() {
	holder := id.HolderID(uuid.New())
	def := id.DefinitionID(uuid.New())
	r := s.newRecord(holder, def)
	s.Require().NoError(s.store.Create(s.ctx, r))
	s.Require().NoError(s.store.Delete(s.ctx, r.ID))

	s.ErrorIs(s.store.Delete(s.ctx, r.ID), sentinel.ErrNotFound)
	s.NoError(s.store.Create(s.ctx, s.newRecord(holder, def)))
}

func (s *RecordStoreSuite) TestExecute() {
	r := s.newRecord(id.HolderID(uuid.New()), id.DefinitionID(uuid.New()))
	s.Require().NoError(s.store.Create(s.ctx, r))

	s.Run("validation failure writes nothing", func() {
		_, err := s.store.Execute(s.ctx, r.ID,
			func(*models.Record) error { return errors.New("nope") },
			func(rec *models.Record) { rec.Notes = "changed" },
		)
		s.Error(err)
		found, err := s.store.FindByID(s.ctx, r.ID)
		s.Require().NoError(err)
		s.Empty(found.Notes)
	})

	s.Run("mutation is persisted", func() {
		updated, err := s.store.Execute(s.ctx, r.ID,
			func(*models.Record) error { return nil },
			func(rec *models.Record) { rec.Notes = "changed" },
		)
		s.Require().NoError(err)
		s.Equal("changed", updated.Notes)
		found, err := s.store.FindByID(s.ctx, r.ID)
		s.Require().NoError(err)
		s.Equal("changed", found.Notes)
	})

	s.Run("unknown id", func() {
		_, err := s.store.Execute(s.ctx, id.RecordID(uuid.New()),
			func(*models.Record) error { return nil },
			func(*models.Record) {},
		)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *RecordStoreSuite) TestFailedTxRestoresRecords() {
	holder := id.HolderID(uuid.New())
	kept := s.newRecord(holder, id.DefinitionID(uuid.New()))
	gone := s.newRecord(holder, id.DefinitionID(uuid.New()))
	s.Require().NoError(s.store.Create(s.ctx, kept))
	s.Require().NoError(s.store.Create(s.ctx, gone))
	fresh := s.newRecord(holder, id.DefinitionID(uuid.New()))

	boom := errors.New("audit append failed")
	err := txcontext.NewMemoryRunner().RunInTx(s.ctx, func(ctx context.Context) error {
		if _, err := s.store.Execute(ctx, kept.ID,
			func(*models.Record) error { return nil },
			func(rec *models.Record) { rec.Notes = "changed" },
		); err != nil {
			return err
		}
		if err := s.store.Delete(ctx, gone.ID); err != nil {
			return err
		}
		if err := s.store.Create(ctx, fresh); err != nil {
			return err
		}
		return boom
	})
	s.Require().ErrorIs(err, boom)

	found, err := s.store.FindByID(s.ctx, kept.ID)
	s.Require().NoError(err)
	s.Empty(found.Notes)
	_, err = s.store.FindByHolderAndDefinition(s.ctx, holder, gone.DefinitionID)
	s.Require().NoError(err, "deleted record is back with its pair index")
	_, err = s.store.FindByID(s.ctx, fresh.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.NoError(s.store.Create(s.ctx, s.newRecord(holder, fresh.DefinitionID)), "created pair was released")
}

func (s *RecordStoreSuite) TestListFilters() {
	h1, h2, h3 := id.HolderID(uuid.New()), id.HolderID(uuid.New()), id.HolderID(uuid.New())
	for _, h := range []id.HolderID{h1, h2, h3} {
		s.Require().NoError(s.store.Create(s.ctx, s.newRecord(h, id.DefinitionID(uuid.New()))))
	}

	some, err := s.store.ListByHolders(s.ctx, []id.HolderID{h1, h3})
	s.Require().NoError(err)
	s.Len(some, 2)

	none, err := s.store.ListByHolders(s.ctx, []id.HolderID{})
	s.Require().NoError(err)
	s.Empty(none)

	all, err := s.store.ListByHolders(s.ctx, nil)
	s.Require().NoError(err)
	s.Len(all, 3)

	active, err := s.store.ListByStatus(s.ctx, models.StatusActive)
	s.Require().NoError(err)
	s.Len(active, 3)
}

func emptyFields() catalog.FieldSet { return catalog.FieldSet{} }
