package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"qualtrack/internal/permission/models"
	id "qualtrack/pkg/domain"
	"qualtrack/pkg/platform/sentinel"
	txcontext "qualtrack/pkg/platform/tx"
)

const pgUniqueViolation = "23505"

// PostgresStore persists permission requests. A partial unique index on
// requester_id WHERE status = 'pending' backs the one-pending-request rule.
type PostgresStore struct {
	db *sql.DB
	tx *txcontext.SQLRunner
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, tx: txcontext.NewSQLRunner(db)}
}

const requestColumns = `id, requester_id, requester_role, requested_role, message, status,
	rejection_reason, reviewed_by, reviewed_at, created_at`

func (s *PostgresStore) Create(ctx context.Context, r *models.Request) error {
	query := `INSERT INTO permission_requests (` + requestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, query, requestArgs(r)...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("create permission request: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, requestID id.RequestID) (*models.Request, error) {
	return s.findOne(ctx, `WHERE id = $1`, uuid.UUID(requestID))
}

func (s *PostgresStore) FindPendingByRequester(ctx context.Context, requesterID id.HolderID) (*models.Request, error) {
	return s.findOne(ctx, `WHERE requester_id = $1 AND status = 'pending'`, uuid.UUID(requesterID))
}

func (s *PostgresStore) ListByRequester(ctx context.Context, requesterID id.HolderID) ([]*models.Request, error) {
	return s.list(ctx, `WHERE requester_id = $1`, uuid.UUID(requesterID))
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status models.Status) ([]*models.Request, error) {
	return s.list(ctx, `WHERE status = $1`, string(status))
}

// Execute locks the row, validates and writes the mutated request in one transaction.
func (s *PostgresStore) Execute(ctx context.Context, requestID id.RequestID, validate func(*models.Request) error, mutate func(*models.Request)) (*models.Request, error) {
	var result *models.Request
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		exec := txcontext.Exec(txCtx, s.db)
		query := `SELECT ` + requestColumns + ` FROM permission_requests WHERE id = $1 FOR UPDATE`
		r, err := scanRequest(exec.QueryRowContext(txCtx, query, uuid.UUID(requestID)))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return sentinel.ErrNotFound
			}
			return fmt.Errorf("lock permission request: %w", err)
		}
		if err := validate(r); err != nil {
			return err
		}
		mutate(r)

		update := `UPDATE permission_requests
			SET status = $2, rejection_reason = $3, reviewed_by = $4, reviewed_at = $5
			WHERE id = $1`
		var reviewedBy uuid.NullUUID
		if r.ReviewedBy != nil {
			reviewedBy = uuid.NullUUID{UUID: uuid.UUID(*r.ReviewedBy), Valid: true}
		}
		if _, err := exec.ExecContext(txCtx, update,
			uuid.UUID(r.ID), string(r.Status), r.RejectionReason, reviewedBy, nullTime(r.ReviewedAt),
		); err != nil {
			return fmt.Errorf("update permission request: %w", err)
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *PostgresStore) findOne(ctx context.Context, where string, args ...any) (*models.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM permission_requests ` + where
	r, err := scanRequest(txcontext.Exec(ctx, s.db).QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find permission request: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) list(ctx context.Context, where string, args ...any) ([]*models.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM permission_requests ` + where + ` ORDER BY created_at DESC, id`
	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list permission requests: %w", err)
	}
	defer rows.Close()

	var out []*models.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan permission request: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate permission requests: %w", err)
	}
	return out, nil
}

func requestArgs(r *models.Request) []any {
	var reviewedBy uuid.NullUUID
	if r.ReviewedBy != nil {
		reviewedBy = uuid.NullUUID{UUID: uuid.UUID(*r.ReviewedBy), Valid: true}
	}
	return []any{
		uuid.UUID(r.ID), uuid.UUID(r.RequesterID), string(r.RequesterRole), string(r.RequestedRole),
		r.Message, string(r.Status), r.RejectionReason, reviewedBy, nullTime(r.ReviewedAt), r.CreatedAt,
	}
}

type requestRow interface {
	Scan(dest ...any) error
}

func scanRequest(row requestRow) (*models.Request, error) {
	var (
		r          models.Request
		reqID      uuid.UUID
		requester  uuid.UUID
		current    string
		requested  string
		status     string
		reviewedBy uuid.NullUUID
		reviewedAt sql.NullTime
	)
	if err := row.Scan(&reqID, &requester, &current, &requested, &r.Message, &status,
		&r.RejectionReason, &reviewedBy, &reviewedAt, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.ID = id.RequestID(reqID)
	r.RequesterID = id.HolderID(requester)
	r.RequesterRole = id.Role(current)
	r.RequestedRole = id.Role(requested)
	r.Status = models.Status(status)
	if !r.Status.IsValid() {
		return nil, fmt.Errorf("unknown permission request status %q", status)
	}
	if reviewedBy.Valid {
		by := id.HolderID(reviewedBy.UUID)
		r.ReviewedBy = &by
	}
	if reviewedAt.Valid {
		at := reviewedAt.Time
		r.ReviewedAt = &at
	}
	return &r, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
