package config

import (
	"os"
	"time"

	platformstrings "intake/pkg/platform/strings"
)

// Server captures process-level configuration for the intake binaries.
type Server struct {
	Addr          string
	Env           string
	LogLevel      string
	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string
	HTTPTimeout   time.Duration

	DraftStoreURL  string
	DraftLocalPath string
	SubmissionURL  string
	DocumentsURL   string
	Redis          RedisConfig
	DatabaseURL    string
	Kafka          KafkaConfig

	Drafts DraftConfig
}

// RedisConfig configures the Redis-backed draft store.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the application-submitted publisher.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// DraftConfig holds autosave timings and the retention window.
type DraftConfig struct {
	AutosaveInterval time.Duration
	Debounce         time.Duration
	Expiry           time.Duration
}

// Draft defaults.
const (
	DefaultAutosaveInterval = 60 * time.Second
	DefaultDebounce         = time.Second
	DefaultDraftExpiry      = 30 * 24 * time.Hour
)

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	return Server{
		Addr:           envOr("INTAKE_ADDR", ":8080"),
		Env:            envOr("INTAKE_ENV", "development"),
		LogLevel:       envOr("LOG_LEVEL", "info"),
		JWTSigningKey:  jwtSigningKey,
		JWTIssuer:      envOr("JWT_ISSUER", "intake"),
		JWTAudience:    envOr("JWT_AUDIENCE", "intake-api"),
		HTTPTimeout:    durationOr("HTTP_TIMEOUT", 15*time.Second),
		DraftStoreURL:  os.Getenv("DRAFT_STORE_URL"),
		DraftLocalPath: envOr("DRAFT_LOCAL_PATH", "intake-drafts.db"),
		SubmissionURL:  os.Getenv("SUBMISSION_URL"),
		DocumentsURL:   os.Getenv("DOCUMENT_SERVICE_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Kafka: KafkaConfig{
			Brokers: splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:   envOr("KAFKA_TOPIC", "intake.applications"),
		},
		Drafts: DraftConfig{
			AutosaveInterval: durationOr("AUTOSAVE_INTERVAL", DefaultAutosaveInterval),
			Debounce:         durationOr("AUTOSAVE_DEBOUNCE", DefaultDebounce),
			Expiry:           durationOr("DRAFT_EXPIRY", DefaultDraftExpiry),
		},
	}
}

// IsProduction reports whether the process runs with production settings.
func (s Server) IsProduction() bool {
	return s.Env == "production"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func splitList(v string) []string {
	return platformstrings.SplitList(v, ",")
}
