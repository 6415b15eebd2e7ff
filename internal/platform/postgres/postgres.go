// Package postgres opens the database through the pgx stdlib driver and
// applies the embedded schema migrations.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	txcontext "qualtrack/pkg/platform/tx"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const migrationsTable = "schema_migrations"

// Open connects and pings. Pool sizes suit a single API instance.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Migrate applies every pending *.up.sql file in name order, each in its own
// transaction together with its bookkeeping row. It returns the names applied.
func Migrate(ctx context.Context, db *sql.DB) ([]string, error) {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+migrationsTable+` (
		name TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return nil, fmt.Errorf("create %s: %w", migrationsTable, err)
	}

	applied, err := appliedMigrations(ctx, db)
	if err != nil {
		return nil, err
	}
	names, err := upMigrations()
	if err != nil {
		return nil, err
	}

	runner := txcontext.NewSQLRunner(db)
	var ran []string
	for _, name := range names {
		if applied[name] {
			continue
		}
		body, err := migrationFiles.ReadFile("migrations/" + name)
		if err != nil {
			return ran, fmt.Errorf("read migration %s: %w", name, err)
		}
		err = runner.RunInTx(ctx, func(txCtx context.Context) error {
			exec := txcontext.Exec(txCtx, db)
			if _, err := exec.ExecContext(txCtx, string(body)); err != nil {
				return err
			}
			_, err := exec.ExecContext(txCtx, `INSERT INTO `+migrationsTable+` (name) VALUES ($1)`, name)
			return err
		})
		if err != nil {
			return ran, fmt.Errorf("apply migration %s: %w", name, err)
		}
		ran = append(ran, name)
	}
	return ran, nil
}

func appliedMigrations(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT name FROM `+migrationsTable)
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	defer rows.Close()
	out := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan migration name: %w", err)
		}
		out[name] = true
	}
	return out, rows.Err()
}

func upMigrations() ([]string, error) {
	entries, err := fs.ReadDir(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("read embedded migrations: %w", err)
	}
	var names []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
