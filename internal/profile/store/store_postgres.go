package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"qualtrack/internal/profile/models"
	id "qualtrack/pkg/domain"
	"qualtrack/pkg/platform/sentinel"
	txcontext "qualtrack/pkg/platform/tx"
)

// PostgresStore persists profiles in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const profileColumns = `id, display_name, email, role, organization_id, phone, job_title, avatar_url, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, p *models.Profile) error {
	query := `
		INSERT INTO profiles (` + profileColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`
	res, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(p.ID), p.DisplayName, p.Email, string(p.Role), uuid.UUID(p.OrgID),
		p.Phone, p.JobTitle, p.AvatarURL, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create profile: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create profile rows affected: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrAlreadyUsed
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, holderID id.HolderID) (*models.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1`
	p, err := scanProfile(txcontext.Exec(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(holderID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find profile by id: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) List(ctx context.Context, orgID id.OrgID) ([]*models.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles`
	args := []any{}
	if !orgID.IsNil() {
		query += ` WHERE organization_id = $1`
		args = append(args, uuid.UUID(orgID))
	}
	query += ` ORDER BY id`

	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var out []*models.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Update(ctx context.Context, p *models.Profile) error {
	query := `
		UPDATE profiles
		SET display_name = $2, email = $3, role = $4, organization_id = $5,
		    phone = $6, job_title = $7, avatar_url = $8, updated_at = $9
		WHERE id = $1
	`
	res, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(p.ID), p.DisplayName, p.Email, string(p.Role), uuid.UUID(p.OrgID),
		p.Phone, p.JobTitle, p.AvatarURL, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update profile rows affected: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type profileRow interface {
	Scan(dest ...any) error
}

func scanProfile(row profileRow) (*models.Profile, error) {
	var (
		p      models.Profile
		holder uuid.UUID
		org    uuid.UUID
		role   string
	)
	if err := row.Scan(&holder, &p.DisplayName, &p.Email, &role, &org,
		&p.Phone, &p.JobTitle, &p.AvatarURL, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.ID = id.HolderID(holder)
	p.OrgID = id.OrgID(org)
	p.Role = id.Role(role)
	return &p, nil
}
