package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Record store
	DBURL            string
	DBEngine         string
	DBMaxConnections int // connection pool size (default: 20)
	FoldersTable     string
	TopicsTable      string
	AttachmentsTable string
	KeyPrefix        string // For Redis

	// Blob store
	StorageType   string // "s3" or "local"
	StoragePath   string // For local filesystem storage
	StorageBucket string // bucket (S3) or sub-directory (local) holding attachments

	// S3
	S3Endpoint        string
	S3Region          string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3UsePathStyle    bool

	// Security
	EnforceSigning bool
	SigningSecret  []byte

	// Timeouts
	DatabaseQueryTimeout time.Duration
	StorageFetchTimeout  time.Duration
	RequestTimeout       time.Duration

	// Resource Limits
	MaxActiveExports  int // max concurrent exports, 0 = unlimited
	MaxFilesPerExport int // max attachments per export, 0 = unlimited

	// Retries
	StorageMaxRetries int
	StorageRetryDelay time.Duration

	// Circuit Breaker
	CircuitBreakerThreshold   int           // failures before opening
	CircuitBreakerTimeout     time.Duration // time to wait before half-open
	CircuitBreakerMaxRequests int           // max requests in half-open state

	// Export
	MaxConcurrent          int64
	AllowPasswordProtected bool

	// Callback
	CallbackURL        string
	CallbackMaxRetries int
	CallbackRetryDelay time.Duration

	// Server
	Port        string
	EnableHTTPS bool

	// Let's Encrypt
	LetsEncryptDomains  []string
	LetsEncryptCacheDir string
	LetsEncryptEmail    string

	// Metrics
	MetricsUsername string
	MetricsPassword string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	dbURL := os.Getenv("DB_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DB_URL required")
	}

	u, err := url.Parse(dbURL)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_URL: %w", err)
	}

	maxConcurrentStr := os.Getenv("MAX_CONCURRENT_FETCHES")
	maxConcurrent := int64(4) // default
	if maxConcurrentStr != "" {
		maxConcurrent, err = strconv.ParseInt(maxConcurrentStr, 10, 64)
		if err != nil || maxConcurrent < 1 {
			return nil, fmt.Errorf("invalid MAX_CONCURRENT_FETCHES: %q", maxConcurrentStr)
		}
	}

	enforceSigning, _ := strconv.ParseBool(os.Getenv("ENFORCE_SIGNING"))
	enableHTTPS, _ := strconv.ParseBool(os.Getenv("ENABLE_HTTPS"))
	allowPasswordProtected, _ := strconv.ParseBool(os.Getenv("ALLOW_PASSWORD_PROTECTED"))

	if enforceSigning && os.Getenv("SIGNING_SECRET") == "" {
		return nil, fmt.Errorf("SIGNING_SECRET required when ENFORCE_SIGNING=true")
	}

	s3UsePathStyle := false
	if v := os.Getenv("S3_USE_PATH_STYLE"); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			s3UsePathStyle = parsed
		}
	}

	var letsEncryptDomains []string
	if enableHTTPS {
		letsEncryptDomains = parseStringList(os.Getenv("LETSENCRYPT_DOMAINS"))
		if len(letsEncryptDomains) == 0 {
			return nil, fmt.Errorf("LETSENCRYPT_DOMAINS required when ENABLE_HTTPS=true")
		}
	}

	// Determine storage type
	storageType := os.Getenv("STORAGE_TYPE")
	storagePath := os.Getenv("STORAGE_PATH")

	// Auto-detect storage type if not specified
	if storageType == "" {
		if storagePath != "" {
			storageType = "local"
		} else {
			storageType = "s3"
		}
	}

	storageBucket := os.Getenv("STORAGE_BUCKET")
	if storageBucket == "" && storageType == "s3" {
		storageBucket = "attachments"
	}

	return &Config{
		DBURL:            dbURL,
		DBEngine:         u.Scheme,
		DBMaxConnections: parseInt(os.Getenv("DB_MAX_CONNECTIONS"), 20),
		FoldersTable:     envOr("FOLDERS_TABLE", "folders"),
		TopicsTable:      envOr("TOPICS_TABLE", "topics"),
		AttachmentsTable: envOr("ATTACHMENTS_TABLE", "attachments"),
		KeyPrefix:        os.Getenv("KEY_PREFIX"),

		StorageType:   storageType,
		StoragePath:   storagePath,
		StorageBucket: storageBucket,

		S3Endpoint:        os.Getenv("S3_ENDPOINT"),
		S3Region:          envOr("S3_REGION", "auto"),
		S3AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
		S3SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
		S3UsePathStyle:    s3UsePathStyle,

		EnforceSigning: enforceSigning,
		SigningSecret:  []byte(os.Getenv("SIGNING_SECRET")),

		DatabaseQueryTimeout: parseDuration(os.Getenv("DATABASE_QUERY_TIMEOUT"), 5*time.Second),
		StorageFetchTimeout:  parseDuration(os.Getenv("STORAGE_FETCH_TIMEOUT"), 60*time.Second),
		RequestTimeout:       parseDuration(os.Getenv("REQUEST_TIMEOUT"), 300*time.Second),

		MaxActiveExports:  parseInt(os.Getenv("MAX_ACTIVE_EXPORTS"), 0),
		MaxFilesPerExport: parseInt(os.Getenv("MAX_FILES_PER_EXPORT"), 0),

		// A failed download is terminal for its attachment unless retries are opted into.
		StorageMaxRetries: parseInt(os.Getenv("STORAGE_MAX_RETRIES"), 0),
		StorageRetryDelay: parseDuration(os.Getenv("STORAGE_RETRY_DELAY"), 1*time.Second),

		CircuitBreakerThreshold:   parseInt(os.Getenv("CIRCUIT_BREAKER_THRESHOLD"), 5),
		CircuitBreakerTimeout:     parseDuration(os.Getenv("CIRCUIT_BREAKER_TIMEOUT"), 60*time.Second),
		CircuitBreakerMaxRequests: parseInt(os.Getenv("CIRCUIT_BREAKER_MAX_REQUESTS"), 2),

		MaxConcurrent:          maxConcurrent,
		AllowPasswordProtected: allowPasswordProtected,

		CallbackURL:        os.Getenv("CALLBACK_URL"),
		CallbackMaxRetries: parseInt(os.Getenv("CALLBACK_MAX_RETRIES"), 3),
		CallbackRetryDelay: parseDuration(os.Getenv("CALLBACK_RETRY_DELAY"), 5*time.Second),

		Port:        envOr("PORT", "8080"),
		EnableHTTPS: enableHTTPS,

		LetsEncryptDomains:  letsEncryptDomains,
		LetsEncryptCacheDir: envOr("LETSENCRYPT_CACHE_DIR", "./certs"),
		LetsEncryptEmail:    os.Getenv("LETSENCRYPT_EMAIL"),

		MetricsUsername: os.Getenv("METRICS_USERNAME"),
		MetricsPassword: os.Getenv("METRICS_PASSWORD"),
	}, nil
}

// Helper functions for parsing configuration values

func envOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func parseDuration(s string, defaultValue time.Duration) time.Duration {
	if s == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultValue
	}
	return d
}

func parseInt(s string, defaultValue int) int {
	if s == "" {
		return defaultValue
	}
	val, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return val
}

func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
