package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Typesense  TypesenseConfig
	Generation GenerationConfig
	OpenFDA    OpenFDAConfig
	Enrichment EnrichmentConfig
	Breaker    BreakerConfig
	Retry      RetryConfig
	Security   SecurityConfig
	OTEL       OTELConfig
	Log        LogConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	AllowedOrigins []string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// TypesenseConfig holds Typesense configuration
type TypesenseConfig struct {
	Enabled    bool
	URL        string
	APIKey     string
	Collection string
}

// GenerationConfig selects and tunes the content generation provider
type GenerationConfig struct {
	Provider        string
	AnthropicAPIKey string
	AnthropicModel  string
	AnthropicURL    string
	OpenAIAPIKey    string
	OpenAIModel     string
	OpenAIURL       string
	Timeout         time.Duration
	MaxTokens       int
	Temperature     float64
	RateLimitRPM    int
	RateLimitBurst  int
}

// OpenFDAConfig holds the drug label source configuration
type OpenFDAConfig struct {
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// EnrichmentConfig holds publication gates and orchestration limits
type EnrichmentConfig struct {
	PublishThreshold float64
	AcceptThreshold  float64
	ValidityWindow   time.Duration
	LockTTL          time.Duration
	BatchConcurrency int
	BatchMaxIDs      int
	SummaryMinChars  int
	SummaryMaxChars  int
	SweepInterval    time.Duration
	RetryAfter       time.Duration
}

// BreakerConfig holds circuit breaker tuning shared by all operations
type BreakerConfig struct {
	FailureThreshold int
	Cooldown         time.Duration
	MaxCooldown      time.Duration
}

// RetryConfig holds retry tuning for generation calls
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// SecurityConfig holds shared secrets for webhook and admin endpoints
type SecurityConfig struct {
	WebhookSecret string
	AdminToken    string
}

// OTELConfig holds OpenTelemetry configuration
type OTELConfig struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Enabled        bool
}

// LogConfig holds logger configuration
type LogConfig struct {
	Env   string
	Level string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnvAsInt("DB_PORT", 5432),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", ""),
			Database:     getEnv("DB_NAME", "prescriber_point"),
			SSLMode:      getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Typesense: TypesenseConfig{
			Enabled:    getEnvAsBool("TYPESENSE_ENABLED", false),
			URL:        getEnv("TYPESENSE_URL", "http://localhost:8108"),
			APIKey:     getEnv("TYPESENSE_API_KEY", "xyz"),
			Collection: getEnv("TYPESENSE_COLLECTION", "drugs"),
		},
		Generation: GenerationConfig{
			Provider:        strings.ToLower(getEnv("GENERATION_PROVIDER", "anthropic")),
			AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
			AnthropicModel:  getEnv("ANTHROPIC_MODEL", "claude-3-5-haiku-latest"),
			AnthropicURL:    getEnv("ANTHROPIC_BASE_URL", ""),
			OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
			OpenAIModel:     getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			OpenAIURL:       getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Timeout:         getEnvAsDuration("GENERATION_TIMEOUT", 20*time.Second),
			MaxTokens:       getEnvAsInt("GENERATION_MAX_TOKENS", 1000),
			Temperature:     getEnvAsFloat("GENERATION_TEMPERATURE", 0.3),
			RateLimitRPM:    getEnvAsInt("GENERATION_RATE_LIMIT_RPM", 60),
			RateLimitBurst:  getEnvAsInt("GENERATION_RATE_LIMIT_BURST", 5),
		},
		OpenFDA: OpenFDAConfig{
			BaseURL:  getEnv("OPENFDA_BASE_URL", "https://api.fda.gov"),
			APIKey:   getEnv("OPENFDA_API_KEY", ""),
			Timeout:  getEnvAsDuration("OPENFDA_TIMEOUT", 10*time.Second),
			CacheTTL: getEnvAsDuration("SOURCE_CACHE_TTL", 24*time.Hour),
		},
		Enrichment: EnrichmentConfig{
			PublishThreshold: getEnvAsFloat("ENRICHMENT_PUBLISH_THRESHOLD", 0.7),
			AcceptThreshold:  getEnvAsFloat("ENRICHMENT_ACCEPT_THRESHOLD", 0.4),
			ValidityWindow:   getEnvAsDuration("ENRICHMENT_VALIDITY", 7*24*time.Hour),
			LockTTL:          getEnvAsDuration("ENRICHMENT_LOCK_TTL", 90*time.Second),
			BatchConcurrency: getEnvAsInt("ENRICHMENT_BATCH_CONCURRENCY", 3),
			BatchMaxIDs:      getEnvAsInt("ENRICHMENT_BATCH_MAX_IDS", 100),
			SummaryMinChars:  getEnvAsInt("ENRICHMENT_SUMMARY_MIN_CHARS", 40),
			SummaryMaxChars:  getEnvAsInt("ENRICHMENT_SUMMARY_MAX_CHARS", 1200),
			SweepInterval:    getEnvAsDuration("ENRICHMENT_SWEEP_INTERVAL", 0),
			RetryAfter:       getEnvAsDuration("ENRICHMENT_RETRY_AFTER", time.Hour),
		},
		Breaker: BreakerConfig{
			FailureThreshold: getEnvAsInt("BREAKER_FAILURE_THRESHOLD", 5),
			Cooldown:         getEnvAsDuration("BREAKER_COOLDOWN", 30*time.Second),
			MaxCooldown:      getEnvAsDuration("BREAKER_MAX_COOLDOWN", 5*time.Minute),
		},
		Retry: RetryConfig{
			MaxAttempts: getEnvAsInt("RETRY_MAX_ATTEMPTS", 3),
			BaseDelay:   getEnvAsDuration("RETRY_BASE_DELAY", 500*time.Millisecond),
			MaxDelay:    getEnvAsDuration("RETRY_MAX_DELAY", 8*time.Second),
		},
		Security: SecurityConfig{
			WebhookSecret: getEnv("WEBHOOK_SECRET", ""),
			AdminToken:    getEnv("ADMIN_TOKEN", ""),
		},
		OTEL: OTELConfig{
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "prescriber-point"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Enabled:        getEnvAsBool("OTEL_ENABLED", false),
		},
		Log: LogConfig{
			Env:   getEnv("LOG_ENV", "development"),
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects tuning combinations the enrichment pipeline cannot honor
func (c *Config) Validate() error {
	e := c.Enrichment
	if e.PublishThreshold < 0 || e.PublishThreshold > 1 {
		return fmt.Errorf("ENRICHMENT_PUBLISH_THRESHOLD must be within [0,1], got %v", e.PublishThreshold)
	}
	if e.AcceptThreshold < 0 || e.AcceptThreshold > 1 {
		return fmt.Errorf("ENRICHMENT_ACCEPT_THRESHOLD must be within [0,1], got %v", e.AcceptThreshold)
	}
	if e.AcceptThreshold > e.PublishThreshold {
		return fmt.Errorf("ENRICHMENT_ACCEPT_THRESHOLD (%v) exceeds ENRICHMENT_PUBLISH_THRESHOLD (%v)", e.AcceptThreshold, e.PublishThreshold)
	}
	if e.SummaryMinChars > e.SummaryMaxChars {
		return fmt.Errorf("ENRICHMENT_SUMMARY_MIN_CHARS (%d) exceeds ENRICHMENT_SUMMARY_MAX_CHARS (%d)", e.SummaryMinChars, e.SummaryMaxChars)
	}
	if e.LockTTL <= 0 {
		return fmt.Errorf("ENRICHMENT_LOCK_TTL must be positive")
	}
	if e.BatchConcurrency < 1 {
		return fmt.Errorf("ENRICHMENT_BATCH_CONCURRENCY must be at least 1")
	}

	b := c.Breaker
	if b.FailureThreshold < 1 {
		return fmt.Errorf("BREAKER_FAILURE_THRESHOLD must be at least 1")
	}
	if b.Cooldown <= 0 {
		return fmt.Errorf("BREAKER_COOLDOWN must be positive")
	}
	if b.MaxCooldown < b.Cooldown {
		return fmt.Errorf("BREAKER_MAX_COOLDOWN (%s) is shorter than BREAKER_COOLDOWN (%s)", b.MaxCooldown, b.Cooldown)
	}

	r := c.Retry
	if r.MaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1")
	}
	if r.BaseDelay > r.MaxDelay {
		return fmt.Errorf("RETRY_BASE_DELAY (%s) exceeds RETRY_MAX_DELAY (%s)", r.BaseDelay, r.MaxDelay)
	}

	switch c.Generation.Provider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("GENERATION_PROVIDER must be anthropic or openai, got %q", c.Generation.Provider)
	}
	return nil
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Addr returns the HTTP listen address
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
