package config

import (
	"encoding/hex"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
)

// DatabaseConfig holds PostgreSQL database connection settings.
type DatabaseConfig struct {
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
}

// MinIOConfig holds object storage settings for the ciphertext replica.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// VaultConfig holds the encryption engine settings.
type VaultConfig struct {
	// BaseDir is where encrypted containers live on disk.
	BaseDir string
	// Key is the decoded 256-bit encryption key (VAULT_ENCRYPTION_KEY, hex).
	Key []byte
	// Production is derived from VAULT_ENV; a missing key is fatal when set.
	Production bool
	// AllowEphemeralKey permits a generated throwaway key outside production.
	AllowEphemeralKey bool
}

// UploadConfig constrains document ingestion.
type UploadConfig struct {
	MaxUploadBytes    int64
	AllowedExtensions []string
}

// RateLimitConfig holds the sliding-window parameters for ingestion.
type RateLimitConfig struct {
	Window    time.Duration
	MaxEvents int
}

// RetentionConfig drives soft-delete grace and the purge schedule.
type RetentionConfig struct {
	// GraceDays is the soft-delete grace period before purge eligibility.
	GraceDays int
	// RetentionMonths bounds how long active documents are kept before the
	// retention sweep soft-deletes them. Zero disables the sweep.
	RetentionMonths int
	// PurgeCron is the cron expression of the daily purge run.
	PurgeCron string
}

// AppConfig is the centralized configuration struct for the library.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	Database  DatabaseConfig
	MinIO     MinIOConfig
	Vault     VaultConfig
	Upload    UploadConfig
	RateLimit RateLimitConfig
	Retention RetentionConfig
}

// Load reads configuration from environment variables. A .env file in the
// working directory is auto-loaded; real environment variables take
// precedence and no .env file is required.
func Load() *AppConfig {
	return &AppConfig{
		Database: DatabaseConfig{
			Host:               getEnv("DB_HOST", ""),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", ""),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", ""),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", ""),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		Vault: VaultConfig{
			BaseDir:           getEnv("VAULT_BASE_DIR", "encrypted_documents"),
			Key:               getEnvHex("VAULT_ENCRYPTION_KEY"),
			Production:        strings.EqualFold(getEnv("VAULT_ENV", "development"), "production"),
			AllowEphemeralKey: getEnvBool("VAULT_ALLOW_EPHEMERAL_KEY", false),
		},
		Upload: UploadConfig{
			MaxUploadBytes:    getEnvInt64("VAULT_MAX_UPLOAD_BYTES", 10<<20), // 10 MiB
			AllowedExtensions: getEnvList("VAULT_ALLOWED_EXTENSIONS", ".pdf,.png,.jpg,.jpeg,.txt"),
		},
		RateLimit: RateLimitConfig{
			Window:    getEnvDuration("VAULT_RATELIMIT_WINDOW", time.Minute),
			MaxEvents: getEnvInt("VAULT_RATELIMIT_MAX", 10),
		},
		Retention: RetentionConfig{
			GraceDays:       getEnvInt("VAULT_GRACE_DAYS", 30),
			RetentionMonths: getEnvInt("VAULT_RETENTION_MONTHS", 84),
			PurgeCron:       getEnv("VAULT_PURGE_CRON", "0 2 * * *"),
		},
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.ParseInt(v, 10, 64)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getEnvList(key, def string) []string {
	parts := strings.Split(getEnv(key, def), ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, strings.ToLower(p))
		}
	}
	return out
}

// getEnvHex decodes a hex-encoded secret; malformed values are treated as
// unset so key validation happens in one place (the encryption engine).
func getEnvHex(key string) []byte {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := hex.DecodeString(v)
	if err != nil {
		return nil
	}
	return b
}
