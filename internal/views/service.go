package views

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	catalog "qualtrack/internal/catalog/models"
	"qualtrack/internal/competency/models"
	profile "qualtrack/internal/profile/models"
	id "qualtrack/pkg/domain"
	dErrors "qualtrack/pkg/domain-errors"
	"qualtrack/pkg/platform/sentinel"
	"qualtrack/pkg/requestcontext"
)

// DefaultExpiryWindowDays is used when a caller does not pass a window.
const DefaultExpiryWindowDays = 30

const maxExpiryWindowDays = 3650

type RecordReader interface {
	ListByHolder(ctx context.Context, holderID id.HolderID) ([]*models.Record, error)
	ListByHolders(ctx context.Context, holderIDs []id.HolderID) ([]*models.Record, error)
	ListByStatus(ctx context.Context, status models.Status) ([]*models.Record, error)
}

type DefinitionReader interface {
	List(ctx context.Context) ([]*catalog.Definition, error)
}

type Roster interface {
	FindByID(ctx context.Context, holderID id.HolderID) (*profile.Profile, error)
	List(ctx context.Context, orgID id.OrgID) ([]*profile.Profile, error)
}

// Service builds derived views. Each call reads a fresh snapshot.
type Service struct {
	records     RecordReader
	definitions DefinitionReader
	roster      Roster
	logger      *slog.Logger
	windowDays  int
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithDefaultWindow sets the expiry window used when callers pass zero.
func WithDefaultWindow(days int) Option {
	return func(s *Service) {
		if days > 0 {
			s.windowDays = days
		}
	}
}

func New(records RecordReader, definitions DefinitionReader, roster Roster, opts ...Option) *Service {
	s := &Service{
		records:     records,
		definitions: definitions,
		roster:      roster,
		windowDays:  DefaultExpiryWindowDays,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type dataset struct {
	holders     map[id.HolderID]*profile.Profile
	roster      []*profile.Profile
	definitions []*catalog.Definition
	byID        map[id.DefinitionID]*catalog.Definition
	records     []*models.Record
}

// load reads roster, definitions and records concurrently. records selects
// which records to read; holderIDs is nil when the scope is every holder.
func (s *Service) load(ctx context.Context, orgID id.OrgID, records func(ctx context.Context, holderIDs []id.HolderID) ([]*models.Record, error)) (*dataset, error) {
	ds := &dataset{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defs, err := s.definitions.List(gctx)
		if err != nil {
			return err
		}
		ds.definitions = defs
		return nil
	})

	if orgID.IsNil() {
		g.Go(func() error {
			roster, err := s.roster.List(gctx, id.OrgID{})
			ds.roster = roster
			return err
		})
		g.Go(func() error {
			recs, err := records(gctx, nil)
			ds.records = recs
			return err
		})
	} else {
		g.Go(func() error {
			roster, err := s.roster.List(gctx, orgID)
			if err != nil {
				return err
			}
			ds.roster = roster
			holderIDs := make([]id.HolderID, len(roster))
			for i, p := range roster {
				holderIDs[i] = p.ID
			}
			recs, err := records(gctx, holderIDs)
			ds.records = recs
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load view data")
	}

	ds.holders = make(map[id.HolderID]*profile.Profile, len(ds.roster))
	for _, p := range ds.roster {
		ds.holders[p.ID] = p
	}
	ds.byID = make(map[id.DefinitionID]*catalog.Definition, len(ds.definitions))
	for _, d := range ds.definitions {
		ds.byID[d.ID] = d
	}
	return ds, nil
}

func (s *Service) allRecords(ctx context.Context, holderIDs []id.HolderID) ([]*models.Record, error) {
	return s.records.ListByHolders(ctx, holderIDs)
}

// ExpiringWithin lists active and changes_requested records whose expiry falls
// in [now, now+windowDays], soonest first, ties by holder display name.
// Personal details never appear.
func (s *Service) ExpiringWithin(ctx context.Context, caller requestcontext.Caller, windowDays int, scope Scope) ([]HolderRecord, error) {
	if windowDays < 0 || windowDays > maxExpiryWindowDays {
		return nil, dErrors.New(dErrors.CodeValidation, "window must be between 0 and 3650 days")
	}
	if windowDays == 0 {
		windowDays = s.windowDays
	}
	orgID, err := resolveScope(caller, scope)
	if err != nil {
		return nil, err
	}
	ds, err := s.load(ctx, orgID, s.allRecords)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	until := now.Add(time.Duration(windowDays) * 24 * time.Hour)
	var out []HolderRecord
	for _, r := range ds.records {
		if r.Status != models.StatusActive && r.Status != models.StatusChangesRequested {
			continue
		}
		if r.ExpiryDate == nil || r.ExpiryDate.Before(now) || r.ExpiryDate.After(until) {
			continue
		}
		hr, ok := annotate(ds, r, now)
		if !ok || hr.Definition.IsPersonalDetail() {
			continue
		}
		out = append(out, hr)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Record.ExpiryDate.Equal(*b.Record.ExpiryDate) {
			return a.Record.ExpiryDate.Before(*b.Record.ExpiryDate)
		}
		return holderLess(a, b)
	})
	return out, nil
}

// PendingForReview lists pending_approval records, newest submission first.
func (s *Service) PendingForReview(ctx context.Context, caller requestcontext.Caller, scope Scope) ([]HolderRecord, error) {
	orgID, err := resolveScope(caller, scope)
	if err != nil {
		return nil, err
	}
	pending := func(ctx context.Context, holderIDs []id.HolderID) ([]*models.Record, error) {
		recs, err := s.records.ListByStatus(ctx, models.StatusPendingApproval)
		if err != nil || holderIDs == nil {
			return recs, err
		}
		return onlyHolders(recs, holderIDs), nil
	}
	ds, err := s.load(ctx, orgID, pending)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	out := make([]HolderRecord, 0, len(ds.records))
	for _, r := range ds.records {
		if hr, ok := annotate(ds, r, now); ok {
			out = append(out, hr)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Record.SubmittedAt, out[j].Record.SubmittedAt
		switch {
		case a != nil && b != nil && !a.Equal(*b):
			return a.After(*b)
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return out[i].Record.ID.String() < out[j].Record.ID.String()
	})
	return out, nil
}

// AttentionRequired lists the holder's changes_requested records with their
// review notes, most recently reviewed first. Holders may read their own feed;
// reviewers may read the feed of holders they manage.
func (s *Service) AttentionRequired(ctx context.Context, caller requestcontext.Caller, holderID id.HolderID) ([]HolderRecord, error) {
	if caller.IsZero() {
		return nil, dErrors.New(dErrors.CodeUnauthenticated, "authentication required")
	}
	holder, err := s.roster.FindByID(ctx, holderID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "holder not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load holder")
	}
	if holder.ID != caller.ID {
		if !caller.IsReviewer() {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "reviewer role required")
		}
		if !caller.CanManage(holder.OrgID) {
			return nil, dErrors.New(dErrors.CodeNotFound, "holder not found")
		}
	}

	var (
		records []*models.Record
		defs    []*catalog.Definition
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		records, err = s.records.ListByHolder(gctx, holderID)
		return err
	})
	g.Go(func() (err error) {
		defs, err = s.definitions.List(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load attention feed")
	}

	ds := &dataset{
		holders: map[id.HolderID]*profile.Profile{holder.ID: holder},
		byID:    make(map[id.DefinitionID]*catalog.Definition, len(defs)),
	}
	for _, d := range defs {
		ds.byID[d.ID] = d
	}
	now := requestcontext.Now(ctx)
	var out []HolderRecord
	for _, r := range records {
		if r.Status != models.StatusChangesRequested {
			continue
		}
		if hr, ok := annotate(ds, r, now); ok {
			out = append(out, hr)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Record.ReviewedAt, out[j].Record.ReviewedAt
		if a != nil && b != nil && !a.Equal(*b) {
			return a.After(*b)
		}
		return out[i].Record.ID.String() < out[j].Record.ID.String()
	})
	return out, nil
}

// ComplianceMatrix builds holders by non-personal-detail definitions.
func (s *Service) ComplianceMatrix(ctx context.Context, caller requestcontext.Caller, scope Scope) (*Matrix, error) {
	orgID, err := resolveScope(caller, scope)
	if err != nil {
		return nil, err
	}
	ds, err := s.load(ctx, orgID, s.allRecords)
	if err != nil {
		return nil, err
	}
	return BuildMatrix(ds.roster, ds.definitions, ds.records, requestcontext.Now(ctx)), nil
}

// Export returns the tabular snapshot for the caller's scope.
func (s *Service) Export(ctx context.Context, caller requestcontext.Caller, scope Scope) (*Snapshot, error) {
	orgID, err := resolveScope(caller, scope)
	if err != nil {
		return nil, err
	}
	ds, err := s.load(ctx, orgID, s.allRecords)
	if err != nil {
		return nil, err
	}
	return ExportSnapshot(ds.roster, ds.definitions, ds.records), nil
}

// BuildMatrix is the pure core of ComplianceMatrix.
func BuildMatrix(holders []*profile.Profile, definitions []*catalog.Definition, records []*models.Record, now time.Time) *Matrix {
	cols := make([]*catalog.Definition, 0, len(definitions))
	for _, d := range definitions {
		if !d.IsPersonalDetail() {
			cols = append(cols, d)
		}
	}
	type key struct {
		holder id.HolderID
		def    id.DefinitionID
	}
	index := make(map[key]*models.Record, len(records))
	for _, r := range records {
		index[key{r.HolderID, r.DefinitionID}] = r
	}

	rows := append([]*profile.Profile(nil), holders...)
	sortHolders(rows)
	m := &Matrix{Definitions: cols, Rows: make([]MatrixRow, len(rows))}
	for i, h := range rows {
		cells := make([]MatrixCell, len(cols))
		for j, d := range cols {
			cells[j] = MatrixCell{DefinitionID: d.ID}
			if r, ok := index[key{h.ID, d.ID}]; ok {
				c := models.WithClassification(r, now)
				cells[j].Record = &c
			}
		}
		m.Rows[i] = MatrixRow{Holder: h, Cells: cells}
	}
	return m
}

// resolveScope returns the organization a reviewer may see. The nil org means
// every organization and is only returned for admins.
func resolveScope(caller requestcontext.Caller, scope Scope) (id.OrgID, error) {
	if caller.IsZero() {
		return id.OrgID{}, dErrors.New(dErrors.CodeUnauthenticated, "authentication required")
	}
	if !caller.IsReviewer() {
		return id.OrgID{}, dErrors.New(dErrors.CodeUnauthorized, "reviewer role required")
	}
	if caller.Role == id.RoleAdmin {
		return scope.OrgID, nil
	}
	if caller.OrgID.IsNil() {
		return id.OrgID{}, dErrors.New(dErrors.CodeUnauthorized, "caller has no organization")
	}
	if !scope.OrgID.IsNil() && scope.OrgID != caller.OrgID {
		return id.OrgID{}, dErrors.New(dErrors.CodeUnauthorized, "organization is outside your scope")
	}
	return caller.OrgID, nil
}

func annotate(ds *dataset, r *models.Record, now time.Time) (HolderRecord, bool) {
	holder, ok := ds.holders[r.HolderID]
	if !ok {
		return HolderRecord{}, false
	}
	def, ok := ds.byID[r.DefinitionID]
	if !ok {
		return HolderRecord{}, false
	}
	return HolderRecord{Holder: holder, Definition: def, Record: models.WithClassification(r, now)}, true
}

func holderLess(a, b HolderRecord) bool {
	an, bn := strings.ToLower(a.Holder.DisplayName), strings.ToLower(b.Holder.DisplayName)
	if an != bn {
		return an < bn
	}
	if a.Holder.ID != b.Holder.ID {
		return a.Holder.ID.String() < b.Holder.ID.String()
	}
	return a.Record.ID.String() < b.Record.ID.String()
}

func onlyHolders(records []*models.Record, holderIDs []id.HolderID) []*models.Record {
	set := make(map[id.HolderID]struct{}, len(holderIDs))
	for _, h := range holderIDs {
		set[h] = struct{}{}
	}
	out := records[:0]
	for _, r := range records {
		if _, ok := set[r.HolderID]; ok {
			out = append(out, r)
		}
	}
	return out
}
