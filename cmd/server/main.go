package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"qualtrack/internal/admin"
	"qualtrack/internal/catalog/cache"
	cataloghandler "qualtrack/internal/catalog/handler"
	catalogservice "qualtrack/internal/catalog/service"
	catalogstore "qualtrack/internal/catalog/store"
	competencyhandler "qualtrack/internal/competency/handler"
	competencymetrics "qualtrack/internal/competency/metrics"
	competencyservice "qualtrack/internal/competency/service"
	"qualtrack/internal/directory"
	directoryhandler "qualtrack/internal/directory/handler"
	httpapi "qualtrack/internal/http"
	jwttoken "qualtrack/internal/jwt_token"
	permissionhandler "qualtrack/internal/permission/handler"
	permissionmetrics "qualtrack/internal/permission/metrics"
	permissionservice "qualtrack/internal/permission/service"
	"qualtrack/internal/platform/config"
	"qualtrack/internal/platform/httpserver"
	"qualtrack/internal/platform/logger"
	"qualtrack/internal/platform/metrics"
	platformredis "qualtrack/internal/platform/redis"
	profilehandler "qualtrack/internal/profile/handler"
	profileservice "qualtrack/internal/profile/service"
	ratelimitmetrics "qualtrack/internal/ratelimit/metrics"
	ratelimitmw "qualtrack/internal/ratelimit/middleware"
	"qualtrack/internal/ratelimit/store/bucket"
	"qualtrack/internal/views"
	viewshandler "qualtrack/internal/views/handler"
	"qualtrack/pkg/platform/audit/publisher"
	"qualtrack/pkg/platform/audit/relay"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.IsDevelopment())

	if err := run(cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := buildStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	if cfg.SeedCatalog {
		if err := catalogstore.SeedDefaults(ctx, st.catalog); err != nil {
			return err
		}
	}

	checks := map[string]httpapi.HealthCheck{}
	if st.db != nil {
		checks["postgres"] = st.db.PingContext
	}

	var catalogSource catalogservice.Store = st.catalog
	rc, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if rc != nil {
		defer rc.Close()
		catalogSource = cache.NewRedis(rc.Client, st.catalog, cfg.CatalogCacheTTL, cache.WithLogger(log))
		checks["redis"] = rc.Health
	}

	docs, err := buildDocuments(ctx, cfg.MinIO, log)
	if err != nil {
		return err
	}

	auditPublisher := publisher.NewPublisher(st.audit, publisher.WithLogger(log))
	defer auditPublisher.Close()

	catalogSvc := catalogservice.New(catalogSource, catalogservice.WithLogger(log))
	competencySvc := competencyservice.New(st.records, catalogSvc, st.profiles, docs,
		competencyservice.WithLogger(log),
		competencyservice.WithAuditPublisher(auditPublisher),
		competencyservice.WithMetrics(competencymetrics.New()),
		competencyservice.WithTx(st.tx),
	)
	permissionSvc := permissionservice.New(st.permissions, st.profiles,
		permissionservice.WithLogger(log),
		permissionservice.WithAuditPublisher(auditPublisher),
		permissionservice.WithMetrics(permissionmetrics.New()),
		permissionservice.WithTx(st.tx),
	)
	profileSvc := profileservice.New(st.profiles, docs,
		profileservice.WithLogger(log),
		profileservice.WithAuditPublisher(auditPublisher),
	)
	viewsSvc := views.New(st.records, catalogSvc, st.profiles,
		views.WithLogger(log),
		views.WithDefaultWindow(cfg.ExpiryWindowDays),
	)
	directorySvc := directory.New(st.profiles, st.records, directory.WithLogger(log))

	buckets := bucket.NewInMemoryBucketStore(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst)
	limiter := ratelimitmw.New(buckets, log,
		ratelimitmw.WithDisabled(cfg.RateLimit.Disabled),
		ratelimitmw.WithMetrics(ratelimitmetrics.New()),
		ratelimitmw.WithAuditPublisher(auditPublisher),
	)

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)

	router := httpapi.NewRouter(httpapi.Deps{
		Logger:     log,
		Metrics:    metrics.New(),
		Validator:  jwttoken.NewJWTServiceAdapter(jwtService),
		RateLimit:  limiter.RateLimit(),
		AdminToken: cfg.AdminToken,
		Handlers: []httpapi.Registrar{
			cataloghandler.New(catalogSvc, log),
			competencyhandler.New(competencySvc, log),
			permissionhandler.New(permissionSvc, log),
			profilehandler.New(profileSvc, log),
			viewshandler.New(viewsSvc, log),
			directoryhandler.New(directorySvc, log),
		},
		AdminHandlers: []httpapi.Registrar{
			admin.New(st.audit, log, admin.WithTokenIssuer(jwtService, st.profiles)),
		},
		Checks: checks,
	})

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting qualtrack", "addr", cfg.Addr, "env", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		buckets.Run(gctx, time.Minute)
		return nil
	})
	if st.outbox != nil && len(cfg.Kafka.Brokers) > 0 {
		g.Go(func() error {
			return runAuditRelay(gctx, cfg.Kafka, st, log)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// runAuditRelay forwards outbox rows to Kafka until ctx is cancelled.
func runAuditRelay(ctx context.Context, cfg config.KafkaConfig, st *stores, log *slog.Logger) error {
	client, err := relay.NewClient(cfg.Brokers)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := relay.EnsureTopic(ctx, client, cfg.AuditTopic, 3, cfg.TopicReplica); err != nil {
		return err
	}

	r := relay.New(st.outbox, client, cfg.AuditTopic,
		relay.WithLogger(log),
		relay.WithBatchSize(cfg.RelayBatch),
		relay.WithInterval(cfg.RelayEvery),
		relay.WithTx(st.tx),
	)
	if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
