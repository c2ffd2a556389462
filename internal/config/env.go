package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL  string
	DatabaseName string
	SslCertPath  string

	Port            string
	AppEnv          string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	RateLimitRPS    float64
	RateLimitBurst  int

	JWTSecret     string
	JWTExpire     time.Duration
	APIKey        string
	AdminEmail    string
	AdminPassword string

	UploadDir       string
	MaxUploadMB     int
	IngestBatchSize int

	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	AwsEndpoint  string
	BucketName   string

	LogLevel  string
	LogFormat string
}

const (
	defaultPort        = "5000"
	defaultJWTExpire   = 7 * 24 * time.Hour
	defaultMaxUploadMB = 50
	defaultBatchSize   = 1000
	// 100 requests per 15 minutes per client.
	defaultRateLimitRPS = 100.0 / (15 * 60)
)

// LoadConfig loads the environment variables and returns the config.
func LoadConfig() (*Config, error) {

	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		DatabaseName:    getEnv("DATABASE_NAME", "presco"),
		SslCertPath:     getEnv("SSL_CERT_PATH", ""),
		Port:            getEnv("PORT", defaultPort),
		AppEnv:          strings.ToLower(getEnv("APP_ENV", "development")),
		AllowedOrigins:  getEnvList("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		RateLimitBurst:  getEnvInt("RATE_LIMIT_BURST", 100),
		JWTSecret:       getEnv("JWT_SECRET", ""),
		APIKey:          getEnv("API_KEY", ""),
		AdminEmail:      getEnv("ADMIN_EMAIL", ""),
		AdminPassword:   getEnv("ADMIN_PASSWORD", ""),
		UploadDir:       getEnv("UPLOAD_DIR", "uploads"),
		MaxUploadMB:     getEnvInt("MAX_UPLOAD_MB", defaultMaxUploadMB),
		IngestBatchSize: getEnvInt("INGEST_BATCH_SIZE", defaultBatchSize),
		AwsAccessKey:    getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey:    getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:       getEnv("AWS_REGION", "us-east-2"),
		AwsEndpoint:     getEnv("AWS_ENDPOINT_URL", ""),
		BucketName:      getEnv("BUCKET_NAME", ""),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "text"),
	}

	var err error
	if cfg.JWTExpire, err = getEnvDuration("JWT_EXPIRE", defaultJWTExpire); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout, err = getEnvDuration("REQUEST_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.RateLimitRPS, err = getEnvFloat("RATE_LIMIT_RPS", defaultRateLimitRPS); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsProduction() bool { return c.AppEnv == "production" }

// ArchiveEnabled reports whether raw uploads are copied to object storage.
func (c *Config) ArchiveEnabled() bool { return c.BucketName != "" }

// MaxUploadBytes is the upload size limit in bytes.
func (c *Config) MaxUploadBytes() int64 { return int64(c.MaxUploadMB) << 20 }

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL not set")
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("MAX_UPLOAD_MB must be positive, got %d", c.MaxUploadMB)
	}
	if c.IngestBatchSize <= 0 {
		return fmt.Errorf("INGEST_BATCH_SIZE must be positive, got %d", c.IngestBatchSize)
	}
	if c.JWTExpire <= 0 {
		return fmt.Errorf("JWT_EXPIRE must be positive")
	}
	if c.IsProduction() {
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		if c.APIKey == "" {
			return fmt.Errorf("API_KEY is required in production")
		}
	}
	return nil
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) (float64, error) {
	v := getEnv(key, "")
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return 0, fmt.Errorf("invalid %s value %q", key, v)
	}
	return f, nil
}

func getEnvList(key string, def []string) []string {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	v := getEnv(key, "")
	if v == "" {
		return def, nil
	}
	d, err := ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

// ParseDuration extends time.ParseDuration with a day unit ("7d").
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("bad day count %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}
