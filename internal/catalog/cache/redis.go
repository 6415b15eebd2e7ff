package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"qualtrack/internal/catalog/models"
	id "qualtrack/pkg/domain"
)

var cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "qualtrack_catalog_cache_lookups_total",
	Help: "Catalog cache lookups by result (hit, miss, error)",
}, []string{"result"})

const (
	definitionKeyPrefix = "catalog:def:"
	listKey             = "catalog:list"
)

// Source is the backing store the cache reads through to.
type Source interface {
	FindByID(ctx context.Context, defID id.DefinitionID) (*models.Definition, error)
	List(ctx context.Context) ([]*models.Definition, error)
}

// Redis caches definitions in Redis as JSON with a fixed TTL.
// Definitions are read-only to the core, so entries are never invalidated
// before they expire. Redis failures fall back to the source.
type Redis struct {
	client *redis.Client
	source Source
	ttl    time.Duration
	logger *slog.Logger
}

type Option func(*Redis)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Redis) {
		r.logger = logger
	}
}

func NewRedis(client *redis.Client, source Source, ttl time.Duration, opts ...Option) *Redis {
	r := &Redis{client: client, source: source, ttl: ttl}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func (r *Redis) FindByID(ctx context.Context, defID id.DefinitionID) (*models.Definition, error) {
	key := definitionKeyPrefix + defID.String()
	var cached models.Definition
	if r.get(ctx, key, &cached) {
		return &cached, nil
	}
	d, err := r.source.FindByID(ctx, defID)
	if err != nil {
		return nil, err
	}
	r.set(ctx, key, d)
	return d, nil
}

func (r *Redis) List(ctx context.Context) ([]*models.Definition, error) {
	var cached []*models.Definition
	if r.get(ctx, listKey, &cached) {
		return cached, nil
	}
	defs, err := r.source.List(ctx)
	if err != nil {
		return nil, err
	}
	r.set(ctx, listKey, defs)
	return defs, nil
}

func (r *Redis) get(ctx context.Context, key string, dst any) bool {
	raw, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		cacheLookups.WithLabelValues("miss").Inc()
		return false
	}
	if err == nil {
		err = json.Unmarshal(raw, dst)
	}
	if err != nil {
		cacheLookups.WithLabelValues("error").Inc()
		r.warn(ctx, "catalog cache read failed", key, err)
		return false
	}
	cacheLookups.WithLabelValues("hit").Inc()
	return true
}

func (r *Redis) set(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		r.warn(ctx, "catalog cache encode failed", key, fmt.Errorf("marshal: %w", err))
		return
	}
	if err := r.client.Set(ctx, key, raw, r.ttl).Err(); err != nil {
		r.warn(ctx, "catalog cache write failed", key, err)
	}
}

func (r *Redis) warn(ctx context.Context, msg, key string, err error) {
	if r.logger == nil {
		return
	}
	r.logger.WarnContext(ctx, msg, "key", key, "error", err)
}
