package env

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv      string
	AppPort     string
	TZ          string
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
	AccessTTLMin int

	RedisURL string

	MongoURI string
	DBName   string

	// Read-only replica of the claims CRM (Postgres). The dialler never
	// writes here.
	ReplicaDatabaseURL string

	// Telephony provider (Twilio)
	TwilioAccountSID    string
	TwilioAuthToken     string
	TwilioCallerID      string
	TwilioWebhookSecret string

	// Public HTTPS base URL for webhook callbacks and the AI bridge stream
	// (e.g. https://dialler.example.com)
	PublicBaseURL string

	// AI voice agent routing
	FeatureAIRouting bool
	AIRouteFirst     bool

	// Seconds the provider lets an agent dial ring before falling through
	DialTimeoutSec int

	// Minutes quoted to callers as the expected wait for a call back
	// when every agent is busy
	BusyWaitEstimateMin int

	// Fallback window for resolving agent-leg SIDs to the originating
	// inbound session
	SessionLookupWindowMin int

	// Score aging job
	AgingBatchSize        int
	AgingIncrement        int
	AgingMinRecordAgeDays int
	AgingRecheckDays      int
	AgingSafetyMinAgeHours float64
	AgingWindowEnforced   bool
	AgingWindowHour       int
	AgingWallBudgetMin    int
	AgingIntervalMin      int

	// Secure portal links
	PortalBaseURL    string
	MagicLinkTTLMin  int

	StorageDriver    string
	LocalStoragePath string

	APIRateLimitRPM int

	LogLevel           string
	CORSAllowedOrigins string

	OTELEndpoint string
	OTELEnabled  bool
}

func Load(envFile string) (*Config, error) {
	if envFile != "" {
		// Missing .env is fine; production runs on environment variables only.
		if err := godotenv.Load(envFile); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	cfg := &Config{
		AppEnv:       getEnv("APP_ENV", "development"),
		AppPort:      getEnv("APP_PORT", "8080"),
		TZ:           getEnv("TZ", "Europe/London"),
		JWTSecret:    mustGetEnv("JWT_SECRET"),
		JWTIssuer:    getEnv("JWT_ISSUER", "claimtech-dialler"),
		JWTAudience:  getEnv("JWT_AUDIENCE", "dialler-api"),
		AccessTTLMin: getEnvInt("ACCESS_TTL_MIN", 15),

		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),

		MongoURI: getEnv("MONGO_URI", "mongodb://localhost:27017"),
		DBName:   getEnv("DB_NAME", "dialler"),

		ReplicaDatabaseURL: getEnv("REPLICA_DATABASE_URL", "postgres://localhost:5432/crm_replica"),

		TwilioAccountSID:    getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:     getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioCallerID:      getEnv("TWILIO_CALLER_ID", ""),
		TwilioWebhookSecret: getEnv("TWILIO_WEBHOOK_SECRET", ""),

		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),

		FeatureAIRouting: getEnvBool("FEATURE_AI_ROUTING", true),
		AIRouteFirst:     getEnvBool("AI_ROUTE_FIRST", false),

		DialTimeoutSec: getEnvInt("DIAL_TIMEOUT_SEC", 25),

		BusyWaitEstimateMin: getEnvInt("BUSY_WAIT_ESTIMATE_MIN", 15),

		SessionLookupWindowMin: getEnvInt("SESSION_LOOKUP_WINDOW_MIN", 5),

		AgingBatchSize:         getEnvInt("AGING_BATCH_SIZE", 500),
		AgingIncrement:         getEnvInt("AGING_INCREMENT", 5),
		AgingMinRecordAgeDays:  getEnvInt("AGING_MIN_RECORD_AGE_DAYS", 7),
		AgingRecheckDays:       getEnvInt("AGING_RECHECK_DAYS", 7),
		AgingSafetyMinAgeHours: getEnvFloat("AGING_SAFETY_MIN_AGE_HOURS", 156), // 6.5 days
		AgingWindowEnforced:    getEnvBool("AGING_WINDOW_ENFORCED", false),
		AgingWindowHour:        getEnvInt("AGING_WINDOW_HOUR", 0),
		AgingWallBudgetMin:     getEnvInt("AGING_WALL_BUDGET_MIN", 4),
		AgingIntervalMin:       getEnvInt("AGING_INTERVAL_MIN", 60),

		PortalBaseURL:   getEnv("PORTAL_BASE_URL", "https://claim.example.com"),
		MagicLinkTTLMin: getEnvInt("MAGIC_LINK_TTL_MIN", 60),

		StorageDriver:    getEnv("STORAGE_DRIVER", "twilio-proxy"),
		LocalStoragePath: getEnv("LOCAL_STORAGE_PATH", "/data/recordings"),

		APIRateLimitRPM: getEnvInt("API_RATE_LIMIT_RPM", 180),

		LogLevel:           getEnv("LOG_LEVEL", "info"),
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),

		OTELEndpoint: getEnv("OTEL_ENDPOINT", ""),
		OTELEnabled:  getEnvBool("OTEL_ENABLED", false),
	}

	loc, err := time.LoadLocation(cfg.TZ)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %s: %w", cfg.TZ, err)
	}
	time.Local = loc

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func mustGetEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	strValue := os.Getenv(key)
	if strValue == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(strValue)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvFloat(key string, defaultValue float64) float64 {
	strValue := os.Getenv(key)
	if strValue == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(strValue, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	strValue := os.Getenv(key)
	if strValue == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(strValue)
	if err != nil {
		return defaultValue
	}
	return value
}
