package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string
	Environment   string
	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string
	// AdminToken guards the /admin routes, plain or as a bcrypt hash. Empty
	// disables them.
	AdminToken string

	DatabaseURL string
	Redis       RedisConfig
	MinIO       MinIOConfig
	Kafka       KafkaConfig
	RateLimit   RateLimitConfig

	// ExpiryWindowDays is the default look-ahead for the expiring view.
	ExpiryWindowDays int
	CatalogCacheTTL  time.Duration
	// SeedCatalog loads the starter definitions on boot.
	SeedCatalog bool
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type MinIOConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	Region        string
	UseSSL        bool
	PublicBaseURL string
}

type KafkaConfig struct {
	Brokers      []string
	AuditTopic   string
	RelayBatch   int
	RelayEvery   time.Duration
	TopicReplica int16
}

// RateLimitConfig applies per caller on mutating routes.
type RateLimitConfig struct {
	Disabled  bool
	PerSecond float64
	Burst     int
}

// FromEnv builds a Server config from environment variables so main stays lean.
// Empty URLs select in-memory adapters.
func FromEnv() Server {
	return Server{
		Addr:          getEnv("QUALTRACK_ADDR", ":8080"),
		Environment:   getEnv("QUALTRACK_ENV", "development"),
		JWTSigningKey: getEnv("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		JWTIssuer:     getEnv("JWT_ISSUER", "qualtrack"),
		JWTAudience:   getEnv("JWT_AUDIENCE", "qualtrack-api"),
		AdminToken:    os.Getenv("ADMIN_API_TOKEN"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		MinIO: MinIOConfig{
			Endpoint:      os.Getenv("MINIO_ENDPOINT"),
			AccessKey:     os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey:     os.Getenv("MINIO_SECRET_KEY"),
			Bucket:        getEnv("MINIO_BUCKET", "qualtrack-documents"),
			Region:        os.Getenv("MINIO_REGION"),
			UseSSL:        getBool("MINIO_USE_SSL", false),
			PublicBaseURL: os.Getenv("MINIO_PUBLIC_BASE_URL"),
		},
		Kafka: KafkaConfig{
			Brokers:      splitList(os.Getenv("KAFKA_BROKERS")),
			AuditTopic:   getEnv("AUDIT_TOPIC", "qualtrack.audit"),
			RelayBatch:   getInt("AUDIT_RELAY_BATCH", 100),
			RelayEvery:   getDuration("AUDIT_RELAY_INTERVAL", time.Second),
			TopicReplica: int16(getInt("AUDIT_TOPIC_REPLICATION", 1)),
		},
		RateLimit: RateLimitConfig{
			Disabled:  getBool("RATE_LIMIT_DISABLED", false),
			PerSecond: getFloat("RATE_LIMIT_PER_SECOND", 5),
			Burst:     getInt("RATE_LIMIT_BURST", 20),
		},
		ExpiryWindowDays: getInt("EXPIRY_WINDOW_DAYS", 30),
		CatalogCacheTTL:  getDuration("CATALOG_CACHE_TTL", 5*time.Minute),
		SeedCatalog:      getBool("SEED_CATALOG", true),
	}
}

// IsDevelopment reports whether the server runs with development defaults.
func (s Server) IsDevelopment() bool {
	return s.Environment == "development"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
