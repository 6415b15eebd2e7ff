package directory

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"qualtrack/internal/competency/models"
	profile "qualtrack/internal/profile/models"
	id "qualtrack/pkg/domain"
	dErrors "qualtrack/pkg/domain-errors"
	"qualtrack/pkg/requestcontext"
)

type Roster interface {
	List(ctx context.Context, orgID id.OrgID) ([]*profile.Profile, error)
}

type Records interface {
	ListByHolders(ctx context.Context, holderIDs []id.HolderID) ([]*models.Record, error)
}

// Query is a filter plus an ordering.
type Query struct {
	Criteria  Criteria
	Column    Column
	Direction Direction
}

type Service struct {
	roster  Roster
	records Records
	logger  *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(roster Roster, records Records, opts ...Option) *Service {
	s := &Service{roster: roster, records: records}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search loads the roster visible to caller and applies q. Admins see every
// organization; everyone else sees their own.
func (s *Service) Search(ctx context.Context, caller requestcontext.Caller, q Query) ([]Entry, error) {
	if caller.IsZero() {
		return nil, dErrors.New(dErrors.CodeUnauthenticated, "authentication required")
	}
	orgID := q.Criteria.OrgID
	if caller.Role != id.RoleAdmin {
		if caller.OrgID.IsNil() {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "caller has no organization")
		}
		if !orgID.IsNil() && orgID != caller.OrgID {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "organization is outside your scope")
		}
		orgID = caller.OrgID
	}

	var (
		holders []*profile.Profile
		records []*models.Record
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		holders, err = s.roster.List(gctx, orgID)
		return err
	})
	if orgID.IsNil() {
		g.Go(func() (err error) {
			records, err = s.records.ListByHolders(gctx, nil)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load roster")
	}
	if !orgID.IsNil() {
		holderIDs := make([]id.HolderID, len(holders))
		for i, h := range holders {
			holderIDs[i] = h.ID
		}
		var err error
		records, err = s.records.ListByHolders(ctx, holderIDs)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load roster records")
		}
	}

	byHolder := make(map[id.HolderID][]*models.Record, len(holders))
	for _, r := range records {
		byHolder[r.HolderID] = append(byHolder[r.HolderID], r)
	}
	roster := make([]Entry, len(holders))
	for i, h := range holders {
		roster[i] = Entry{Profile: h, Records: byHolder[h.ID]}
	}

	criteria := q.Criteria
	criteria.OrgID = orgID
	out := Filter(roster, criteria)
	column, direction := q.Column, q.Direction
	if column == "" {
		column = ColumnName
	}
	if direction == "" {
		direction = Ascending
	}
	Sort(out, column, direction)
	return out, nil
}
