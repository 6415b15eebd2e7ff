package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"qualtrack/internal/catalog/models"
	id "qualtrack/pkg/domain"
	"qualtrack/pkg/platform/sentinel"
	txcontext "qualtrack/pkg/platform/tx"
)

// PostgresStore reads definitions joined with their categories.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const definitionSelect = `
	SELECT d.id, d.name, d.description, d.shape, c.id, c.name
	FROM competency_definitions d
	JOIN competency_categories c ON c.id = d.category_id
`

// Create upserts the category and inserts the definition. Used by the seed loader.
func (s *PostgresStore) Create(ctx context.Context, d *models.Definition) error {
	exec := txcontext.Exec(ctx, s.db)
	_, err := exec.ExecContext(ctx, `
		INSERT INTO competency_categories (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
	`, uuid.UUID(d.Category.ID), d.Category.Name)
	if err != nil {
		return fmt.Errorf("upsert category: %w", err)
	}
	res, err := exec.ExecContext(ctx, `
		INSERT INTO competency_definitions (id, name, description, shape, category_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`, uuid.UUID(d.ID), d.Name, d.Description, string(d.Shape), uuid.UUID(d.Category.ID))
	if err != nil {
		return fmt.Errorf("create definition: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create definition rows affected: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrAlreadyUsed
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, defID id.DefinitionID) (*models.Definition, error) {
	row := txcontext.Exec(ctx, s.db).QueryRowContext(ctx, definitionSelect+` WHERE d.id = $1`, uuid.UUID(defID))
	d, err := scanDefinition(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find definition by id: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.Definition, error) {
	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx, definitionSelect+` ORDER BY c.name, d.name, d.id`)
	if err != nil {
		return nil, fmt.Errorf("list definitions: %w", err)
	}
	defer rows.Close()

	var out []*models.Definition
	for rows.Next() {
		d, err := scanDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan definition: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate definitions: %w", err)
	}
	return out, nil
}

type definitionRow interface {
	Scan(dest ...any) error
}

func scanDefinition(row definitionRow) (*models.Definition, error) {
	var (
		defID, catID uuid.UUID
		shape        string
		d            models.Definition
	)
	if err := row.Scan(&defID, &d.Name, &d.Description, &shape, &catID, &d.Category.Name); err != nil {
		return nil, err
	}
	parsed, err := models.ParseShape(shape)
	if err != nil {
		return nil, fmt.Errorf("definition %s: %w", defID, err)
	}
	d.ID = id.DefinitionID(defID)
	d.Category.ID = id.CategoryID(catID)
	d.Shape = parsed
	return &d, nil
}
