package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	catalogservice "qualtrack/internal/catalog/service"
	catalogstore "qualtrack/internal/catalog/store"
	competencyservice "qualtrack/internal/competency/service"
	competencystore "qualtrack/internal/competency/store"
	"qualtrack/internal/documents"
	permissionservice "qualtrack/internal/permission/service"
	permissionstore "qualtrack/internal/permission/store"
	"qualtrack/internal/platform/config"
	"qualtrack/internal/platform/postgres"
	profileservice "qualtrack/internal/profile/service"
	profilestore "qualtrack/internal/profile/store"
	"qualtrack/internal/views"
	audit "qualtrack/pkg/platform/audit"
	auditmemory "qualtrack/pkg/platform/audit/store/memory"
	auditpostgres "qualtrack/pkg/platform/audit/store/postgres"
	txcontext "qualtrack/pkg/platform/tx"
)

type catalogBackend interface {
	catalogstore.Creator
	catalogservice.Store
}

type recordBackend interface {
	competencyservice.RecordStore
	views.RecordReader
}

// auditBackend is an audit store the admin surface can read back.
type auditBackend interface {
	audit.Store
	ListRecent(ctx context.Context, limit int) ([]audit.Event, error)
}

// stores groups the persistence adapters chosen at boot.
type stores struct {
	db          *sql.DB
	catalog     catalogBackend
	records     recordBackend
	profiles    profileservice.Store
	permissions permissionservice.RequestStore
	audit       auditBackend
	outbox      *auditpostgres.Store
	tx          txcontext.Runner
}

// buildStores uses Postgres when a DSN is configured and in-memory adapters
// otherwise.
func buildStores(ctx context.Context, cfg config.Server, log *slog.Logger) (*stores, error) {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, using in-memory stores")
		return &stores{
			catalog:     catalogstore.NewInMemory(),
			records:     competencystore.NewInMemory(),
			profiles:    profilestore.NewInMemory(),
			permissions: permissionstore.NewInMemory(),
			audit:       auditmemory.NewInMemoryStore(),
			tx:          txcontext.NewMemoryRunner(),
		}, nil
	}

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	applied, err := postgres.Migrate(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if len(applied) > 0 {
		log.Info("applied migrations", "files", applied)
	}

	outbox := auditpostgres.New(db)
	return &stores{
		db:          db,
		catalog:     catalogstore.NewPostgres(db),
		records:     competencystore.NewPostgres(db),
		profiles:    profilestore.NewPostgres(db),
		permissions: permissionstore.NewPostgres(db),
		audit:       outbox,
		outbox:      outbox,
		tx:          txcontext.NewSQLRunner(db),
	}, nil
}

func (s *stores) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// buildDocuments returns the MinIO store when an endpoint is configured.
func buildDocuments(ctx context.Context, cfg config.MinIOConfig, log *slog.Logger) (documents.Store, error) {
	if cfg.Endpoint == "" {
		log.Warn("MINIO_ENDPOINT not set, documents are kept in memory")
		return documents.NewInMemory("memory://documents"), nil
	}
	store, err := documents.NewMinIO(ctx, documents.MinIOConfig{
		Endpoint:        cfg.Endpoint,
		AccessKeyID:     cfg.AccessKey,
		SecretAccessKey: cfg.SecretKey,
		Bucket:          cfg.Bucket,
		Region:          cfg.Region,
		UseSSL:          cfg.UseSSL,
		PublicBaseURL:   cfg.PublicBaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect document storage: %w", err)
	}
	return store, nil
}
