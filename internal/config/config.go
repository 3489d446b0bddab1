package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for our application
type Config struct {
	Port        string
	Origin      string
	Environment string
	Database    DatabaseConfig
	Queue       QueueConfig
	Auth        AuthConfig
	Identity    IdentityConfig
	Worker      WorkerConfig
	Analytics   AnalyticsConfig
}

// DatabaseConfig holds database connection details
type DatabaseConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Name     string
	SSLMode  string
	DSN      string
}

// QueueConfig holds the Redis stream that backs the ingestion queue
type QueueConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	Group    string
}

// AuthConfig holds the identity-provider token validation settings
type AuthConfig struct {
	Issuer       string
	Audience     string
	JWKSURL      string
	JWKSCacheTTL time.Duration
}

// IdentityConfig holds the identity provider's admin API settings,
// used for role assignment.
type IdentityConfig struct {
	AdminURL   string
	AdminToken string
}

// WorkerConfig holds ingestion worker tuning knobs
type WorkerConfig struct {
	BatchSize         int64
	PollWait          time.Duration
	ErrorBackoff      time.Duration
	VisibilityTimeout time.Duration
	MaxDeliveries     int64
}

// AnalyticsConfig holds the risk-heuristic thresholds and window sizes.
// The defaults mirror the original clinical rollout; they are surfaced
// here rather than hidden as literals.
type AnalyticsConfig struct {
	MovingAvgWindow int
	RiskFetchLimit  int
	RiskMeanWindow  int
	RiskMinPoints   int
	WarningPercent  float64
	CriticalPercent float64
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	dbConfig := DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnv("DB_PORT", "5432"),
		Username: getEnv("DB_USERNAME", "postgres"),
		Password: getEnv("DB_PASSWORD", ""),
		Name:     getEnv("DB_NAME", "postgres"),
		SSLMode:  getEnv("DB_SSLMODE", "disable"),
	}

	// Build DSN for the PostgreSQL connection
	dbConfig.DSN = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		dbConfig.Host, dbConfig.Port, dbConfig.Username, dbConfig.Password, dbConfig.Name, dbConfig.SSLMode)

	redisDB, err := strconv.Atoi(getEnv("QUEUE_REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid QUEUE_REDIS_DB: %w", err)
	}

	queueConfig := QueueConfig{
		Addr:     getEnv("QUEUE_REDIS_ADDR", "localhost:6379"),
		Password: getEnv("QUEUE_REDIS_PASSWORD", ""),
		DB:       redisDB,
		Stream:   getEnv("QUEUE_STREAM", "lab-results-ingest"),
		Group:    getEnv("QUEUE_GROUP", "ingestion-workers"),
	}

	jwksTTL, err := strconv.Atoi(getEnv("JWKS_CACHE_TTL_MINUTES", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid JWKS_CACHE_TTL_MINUTES: %w", err)
	}

	authConfig := AuthConfig{
		Issuer:       getEnv("AUTH_ISSUER", ""),
		Audience:     getEnv("AUTH_AUDIENCE", ""),
		JWKSURL:      getEnv("AUTH_JWKS_URL", ""),
		JWKSCacheTTL: time.Duration(jwksTTL) * time.Minute,
	}
	if authConfig.JWKSURL == "" && authConfig.Issuer != "" {
		authConfig.JWKSURL = authConfig.Issuer + "/.well-known/jwks.json"
	}

	identityConfig := IdentityConfig{
		AdminURL:   getEnv("IDP_ADMIN_URL", ""),
		AdminToken: getEnv("IDP_ADMIN_TOKEN", ""),
	}

	batchSize, err := strconv.ParseInt(getEnv("WORKER_BATCH_SIZE", "10"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid WORKER_BATCH_SIZE: %w", err)
	}
	pollWait, err := strconv.Atoi(getEnv("WORKER_POLL_WAIT_SECONDS", "20"))
	if err != nil {
		return nil, fmt.Errorf("invalid WORKER_POLL_WAIT_SECONDS: %w", err)
	}
	errorBackoff, err := strconv.Atoi(getEnv("WORKER_ERROR_BACKOFF_SECONDS", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid WORKER_ERROR_BACKOFF_SECONDS: %w", err)
	}
	visibility, err := strconv.Atoi(getEnv("WORKER_VISIBILITY_TIMEOUT_SECONDS", "60"))
	if err != nil {
		return nil, fmt.Errorf("invalid WORKER_VISIBILITY_TIMEOUT_SECONDS: %w", err)
	}
	maxDeliveries, err := strconv.ParseInt(getEnv("WORKER_MAX_DELIVERIES", "5"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid WORKER_MAX_DELIVERIES: %w", err)
	}

	workerConfig := WorkerConfig{
		BatchSize:         batchSize,
		PollWait:          time.Duration(pollWait) * time.Second,
		ErrorBackoff:      time.Duration(errorBackoff) * time.Second,
		VisibilityTimeout: time.Duration(visibility) * time.Second,
		MaxDeliveries:     maxDeliveries,
	}

	warningPct, err := strconv.ParseFloat(getEnv("RISK_WARNING_PERCENT", "5"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid RISK_WARNING_PERCENT: %w", err)
	}
	criticalPct, err := strconv.ParseFloat(getEnv("RISK_CRITICAL_PERCENT", "15"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid RISK_CRITICAL_PERCENT: %w", err)
	}

	analyticsConfig := AnalyticsConfig{
		MovingAvgWindow: 3,
		RiskFetchLimit:  9,
		RiskMeanWindow:  3,
		RiskMinPoints:   3,
		WarningPercent:  warningPct,
		CriticalPercent: criticalPct,
	}

	// Return complete configuration
	return &Config{
		Port:        getEnv("PORT", "3001"),
		Origin:      getEnv("ORIGIN", "http://localhost:5173"),
		Environment: getEnv("APP_ENV", "development"),
		Database:    dbConfig,
		Queue:       queueConfig,
		Auth:        authConfig,
		Identity:    identityConfig,
		Worker:      workerConfig,
		Analytics:   analyticsConfig,
	}, nil
}

// Helper function to get environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
