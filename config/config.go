package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrMissingToken is returned by Load when no bot credential is configured.
var ErrMissingToken = errors.New("TELEGRAM_TOKEN is not set")

type Config struct {
	TelegramToken string
	// ObserverID receives admission notices and result copies. Zero disables
	// the side-channel.
	ObserverID int64

	LibreOfficeCommand string
	ConversionTimeout  time.Duration
	TransportTimeout   time.Duration
	DownloadDir        string
	OutputDir          string

	Port string

	UserRatePerMinute int
	UserRateBurst     int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
	JobStatusTTL  time.Duration

	DatabaseURL string

	S3Bucket       string
	S3Region       string
	AWSS3AccessKey string
	AWSS3SecretKey string
	S3Endpoint     string
	S3UsePathStyle bool
	S3Prefix       string

	LogLevel    string
	Environment string
}

func Load() (*Config, error) {
	token := strings.TrimSpace(os.Getenv("TELEGRAM_TOKEN"))
	if token == "" {
		return nil, ErrMissingToken
	}

	downloadDir, err := filepath.Abs(getEnv("DOWNLOAD_DIR", "downloads"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve download dir: %w", err)
	}
	outputDir, err := filepath.Abs(getEnv("OUTPUT_DIR", "converted"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve output dir: %w", err)
	}

	return &Config{
		TelegramToken:      token,
		ObserverID:         getEnvInt64("ADMIN_ID", 0),
		LibreOfficeCommand: getEnv("LIBREOFFICE_COMMAND", "libreoffice"),
		ConversionTimeout:  getEnvSeconds("CONVERSION_TIMEOUT", 60),
		TransportTimeout:   getEnvSeconds("TRANSPORT_TIMEOUT", 120),
		DownloadDir:        downloadDir,
		OutputDir:          outputDir,
		Port:               getEnv("PORT", "8080"),
		UserRatePerMinute:  getEnvInt("USER_RATE_PER_MINUTE", 0),
		UserRateBurst:      getEnvInt("USER_RATE_BURST", 3),
		RedisAddr:          getEnv("REDIS_ADDR", ""),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisDB:            getEnvInt("REDIS_DB", 0),
		RedisPrefix:        getEnv("REDIS_PREFIX", "slidebot:"),
		JobStatusTTL:       getEnvSeconds("JOB_STATUS_TTL", 24*60*60),
		DatabaseURL:        databaseURL(),
		S3Bucket:           getEnv("AWS_BUCKET", ""),
		// Prefer unified S3_* vars, fall back to legacy AWS_* vars for compatibility
		S3Region:       getEnvWithFallback("S3_REGION", "AWS_DEFAULT_REGION", "us-east-1"),
		AWSS3AccessKey: getEnvWithFallback("S3_KEY", "AWS_ACCESS_KEY_ID", ""),
		AWSS3SecretKey: getEnvWithFallback("S3_SECRET", "AWS_SECRET_ACCESS_KEY", ""),
		S3Endpoint:     getEnv("S3_ENDPOINT", ""),
		S3UsePathStyle: getEnvBool("S3_USE_PATH_STYLE_ENDPOINT", false),
		S3Prefix:       getEnv("S3_PREFIX", "converted"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		Environment:    getEnv("ENV", "production"),
	}, nil
}

// databaseURL builds a lib/pq key=value connection string. History recording
// is disabled when DB_HOST is unset.
func databaseURL() string {
	dbHost := getEnv("DB_HOST", "")
	if dbHost == "" {
		return ""
	}
	dbPort := getEnv("DB_PORT", "5432")
	dbName := getEnv("DB_DATABASE", "slidebot")
	dbUser := getEnv("DB_USERNAME", "slidebot")
	dbPassword := getEnv("DB_PASSWORD", "")
	dbSSLMode := getEnv("DB_SSLMODE", "disable")

	dbURL := fmt.Sprintf(
		"host=%s port=%s dbname=%s user=%s sslmode=%s",
		dbHost, dbPort, dbName, dbUser, dbSSLMode,
	)
	if dbPassword != "" {
		dbURL += fmt.Sprintf(" password=%s", dbPassword)
	}
	if v := getEnv("DB_SSLCERT", ""); v != "" {
		dbURL += fmt.Sprintf(" sslcert=%s", v)
	}
	if v := getEnv("DB_SSLKEY", ""); v != "" {
		dbURL += fmt.Sprintf(" sslkey=%s", v)
	}
	if v := getEnv("DB_SSLROOTCERT", ""); v != "" {
		dbURL += fmt.Sprintf(" sslrootcert=%s", v)
	}
	return dbURL
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvWithFallback(primaryKey, secondaryKey, fallback string) string {
	if value := os.Getenv(primaryKey); value != "" {
		return value
	}
	if value := os.Getenv(secondaryKey); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvSeconds(key string, fallback int) time.Duration {
	seconds := getEnvInt(key, fallback)
	if seconds <= 0 {
		seconds = fallback
	}
	return time.Duration(seconds) * time.Second
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return fallback
}
