package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	catalog "qualtrack/internal/catalog/models"
	"qualtrack/internal/competency/models"
	id "qualtrack/pkg/domain"
	"qualtrack/pkg/platform/sentinel"
	txcontext "qualtrack/pkg/platform/tx"
)

const pgUniqueViolation = "23505"

// PostgresStore persists competency records. A unique index on
// (holder_id, definition_id) backs the one-record-per-definition rule.
type PostgresStore struct {
	db *sql.DB
	tx *txcontext.SQLRunner
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, tx: txcontext.NewSQLRunner(db)}
}

const recordColumns = `id, holder_id, definition_id, value, issuing_body, certification_id,
	issued_date, expiry_date, notes, document_url, document_name, status, review_note,
	reviewed_by, reviewed_at, submitted_at, created_at, updated_at, version`

func (s *PostgresStore) Create(ctx context.Context, r *models.Record) error {
	query := `INSERT INTO competency_records (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`
	_, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, query, recordArgs(r)...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("create competency record: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, recordID id.RecordID) (*models.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM competency_records WHERE id = $1`
	r, err := scanRecord(txcontext.Exec(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(recordID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find competency record: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) FindByHolderAndDefinition(ctx context.Context, holderID id.HolderID, definitionID id.DefinitionID) (*models.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM competency_records WHERE holder_id = $1 AND definition_id = $2`
	r, err := scanRecord(txcontext.Exec(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(holderID), uuid.UUID(definitionID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find competency record by holder and definition: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) ListByHolder(ctx context.Context, holderID id.HolderID) ([]*models.Record, error) {
	return s.list(ctx, `WHERE holder_id = $1 ORDER BY created_at, id`, uuid.UUID(holderID))
}

// ListByHolders returns records for any of holderIDs. A nil slice means every holder.
func (s *PostgresStore) ListByHolders(ctx context.Context, holderIDs []id.HolderID) ([]*models.Record, error) {
	if holderIDs == nil {
		return s.list(ctx, `ORDER BY holder_id, id`)
	}
	ids := make([]string, len(holderIDs))
	for i, h := range holderIDs {
		ids[i] = h.String()
	}
	return s.list(ctx, `WHERE holder_id = ANY($1::uuid[]) ORDER BY holder_id, id`, pq.Array(ids))
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status models.Status) ([]*models.Record, error) {
	return s.list(ctx, `WHERE status = $1 ORDER BY submitted_at DESC NULLS LAST, id`, string(status))
}

// Execute locks the row with SELECT ... FOR UPDATE, runs validate and mutate,
// and writes the result inside one transaction.
func (s *PostgresStore) Execute(ctx context.Context, recordID id.RecordID, validate func(*models.Record) error, mutate func(*models.Record)) (*models.Record, error) {
	var result *models.Record
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		exec := txcontext.Exec(txCtx, s.db)
		query := `SELECT ` + recordColumns + ` FROM competency_records WHERE id = $1 FOR UPDATE`
		r, err := scanRecord(exec.QueryRowContext(txCtx, query, uuid.UUID(recordID)))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return sentinel.ErrNotFound
			}
			return fmt.Errorf("lock competency record: %w", err)
		}
		if err := validate(r); err != nil {
			return err
		}
		prevVersion := r.Version
		mutate(r)

		update := `UPDATE competency_records SET
			value = $4, issuing_body = $5, certification_id = $6, issued_date = $7, expiry_date = $8,
			notes = $9, document_url = $10, document_name = $11, status = $12, review_note = $13,
			reviewed_by = $14, reviewed_at = $15, submitted_at = $16, created_at = $17,
			updated_at = $18, version = $19
			WHERE id = $1 AND holder_id = $2 AND definition_id = $3 AND version = $20`
		args := append(recordArgs(r), prevVersion)
		res, err := exec.ExecContext(txCtx, update, args...)
		if err != nil {
			return fmt.Errorf("update competency record: %w", err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update competency record rows affected: %w", err)
		}
		if rows == 0 {
			return sentinel.ErrConflict
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *PostgresStore) Delete(ctx context.Context, recordID id.RecordID) error {
	res, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, `DELETE FROM competency_records WHERE id = $1`, uuid.UUID(recordID))
	if err != nil {
		return fmt.Errorf("delete competency record: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete competency record rows affected: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) list(ctx context.Context, where string, args ...any) ([]*models.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM competency_records ` + where
	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list competency records: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Record, 0)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan competency record: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate competency records: %w", err)
	}
	return out, nil
}

func recordArgs(r *models.Record) []any {
	var reviewedBy *uuid.UUID
	if r.ReviewedBy != nil {
		v := uuid.UUID(*r.ReviewedBy)
		reviewedBy = &v
	}
	return []any{
		uuid.UUID(r.ID), uuid.UUID(r.HolderID), uuid.UUID(r.DefinitionID),
		r.Value, r.IssuingBody, r.CertificationID,
		r.IssuedDate, r.ExpiryDate, r.Notes,
		r.Document.URL, r.Document.Name, string(r.Status), r.ReviewNote,
		reviewedBy, r.ReviewedAt, r.SubmittedAt,
		r.CreatedAt, r.UpdatedAt, r.Version,
	}
}

type recordRow interface {
	Scan(dest ...any) error
}

func scanRecord(row recordRow) (*models.Record, error) {
	var (
		recordID, holderID, definitionID   uuid.UUID
		reviewedBy                         uuid.NullUUID
		issuedDate, expiryDate, reviewedAt sql.NullTime
		submittedAt                        sql.NullTime
		status                             string
		r                                  models.Record
		docURL, docName                    string
	)
	err := row.Scan(
		&recordID, &holderID, &definitionID,
		&r.Value, &r.IssuingBody, &r.CertificationID,
		&issuedDate, &expiryDate, &r.Notes,
		&docURL, &docName, &status, &r.ReviewNote,
		&reviewedBy, &reviewedAt, &submittedAt,
		&r.CreatedAt, &r.UpdatedAt, &r.Version,
	)
	if err != nil {
		return nil, err
	}
	r.ID = id.RecordID(recordID)
	r.HolderID = id.HolderID(holderID)
	r.DefinitionID = id.DefinitionID(definitionID)
	r.Document = catalog.DocumentRef{URL: docURL, Name: docName}
	r.Status = models.Status(status)
	if !r.Status.IsValid() {
		return nil, fmt.Errorf("record %s: unknown status %q", recordID, status)
	}
	r.IssuedDate = nullTime(issuedDate)
	r.ExpiryDate = nullTime(expiryDate)
	r.ReviewedAt = nullTime(reviewedAt)
	r.SubmittedAt = nullTime(submittedAt)
	if reviewedBy.Valid {
		v := id.HolderID(reviewedBy.UUID)
		r.ReviewedBy = &v
	}
	return &r, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
