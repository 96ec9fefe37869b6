package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/docker/go-units"
)

type Config struct {
	JWTSecret      string
	HTTPAddr       string
	HTTPMaxConns   int
	DBDriver       string
	DBHost         string
	DBPort         string
	DBUser         string
	DBPass         string
	DBName         string
	SQLitePath     string
	RedisHost      string
	RedisPort      string
	RedisPassword  string
	RedisDB        int
	RedisEnabled   bool
	MinioHost      string
	MinioPort      string
	MinioUsername  string
	MinioPassword  string
	MinioUseSSL    bool
	BucketName     string
	RabbitMQURL    string
	RabbitMQHost   string
	RabbitMQPort   string
	RabbitMQUser   string
	RabbitMQPass   string
	RabbitMQVhost  string
	RabbitMQEnable bool

	RabbitMQPrefetch      int
	UploadChunkSize       int64
	UploadPoolSize        int
	UploadPollInterval    time.Duration
	UploadRate            float64
	UploadBurst           int
	UploadTransferTimeout time.Duration
	UploadLockTTL         time.Duration
	UploadSnapshotTTL     time.Duration
	UploadRetryMax        int
	UploadRetryDelays     []time.Duration
	UploadReportTo        string

	SMTPHost     string
	SMTPPort     string
	SMTPUser     string
	SMTPPass     string
	SMTPFrom     string
	SMTPTLS      bool
	SMTPStartTLS bool
}

const (
	DefaultChunkSize    = 1 << 20 // 1 MiB
	DefaultPoolSize     = 5
	DefaultPollInterval = 500 * time.Millisecond
)

var AppConfig Config

// getEnv returns the environment value or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvBool(key string, defaultValue bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if value == "" {
		return defaultValue
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return defaultValue
	}
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// getEnvDurations parses a comma separated list such as "5s,30s,2m".
func getEnvDurations(key string, defaultValue []time.Duration) []time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	parts := strings.Split(raw, ",")
	out := make([]time.Duration, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := time.ParseDuration(part)
		if err != nil || d < 0 {
			return defaultValue
		}
		out = append(out, d)
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// getEnvSize accepts plain byte counts as well as "1MiB", "512k", "4m".
// Units are binary.
func getEnvSize(key string, defaultValue int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	parsed, err := units.RAMInBytes(raw)
	if err != nil || parsed <= 0 {
		return defaultValue
	}
	return parsed
}

// InitConfig loads configuration and initializes sub-configs.
func InitConfig() {
	rabbitHost := getEnv("RABBITMQ_HOST", "localhost")
	rabbitPort := getEnv("RABBITMQ_PORT", "5672")
	rabbitUser := getEnv("RABBITMQ_USER", "guest")
	rabbitPass := getEnv("RABBITMQ_PASSWORD", "guest")
	rabbitVhost := getEnv("RABBITMQ_VHOST", "/")
	rabbitURL := getEnv("RABBITMQ_URL", "")
	if rabbitURL == "" {
		rabbitURL = fmt.Sprintf(
			"amqp://%s:%s@%s:%s/%s",
			url.PathEscape(rabbitUser),
			url.PathEscape(rabbitPass),
			rabbitHost,
			rabbitPort,
			url.PathEscape(rabbitVhost),
		)
	}
	AppConfig = Config{
		JWTSecret:      getEnv("JWT_SECRET", "l=ax+b"),
		HTTPAddr:       getEnv("HTTP_ADDR", ":8000"),
		HTTPMaxConns:   getEnvInt("HTTP_MAX_CONNS", 256),
		DBDriver:       strings.ToLower(getEnv("DB_DRIVER", "mysql")),
		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "3306"),
		DBUser:         getEnv("DB_USER", "root"),
		DBPass:         getEnv("DB_PASS", "root"),
		DBName:         getEnv("DB_NAME", "Go_Uploader"),
		SQLitePath:     getEnv("SQLITE_PATH", "uploader.db"),
		RedisHost:      getEnv("REDIS_HOST", "localhost"),
		RedisPort:      getEnv("REDIS_PORT", "6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getEnvInt("REDIS_DB", 0),
		RedisEnabled:   getEnvBool("REDIS_ENABLED", true),
		MinioHost:      getEnv("MINIO_HOST", "localhost"),
		MinioPort:      getEnv("MINIO_PORT", "9000"),
		MinioUsername:  getEnv("MINIO_USERNAME", "minioadmin"),
		MinioPassword:  getEnv("MINIO_PASSWORD", "minioadmin"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
		BucketName:     getEnv("BUCKET_NAME", "uploads"),
		RabbitMQURL:    rabbitURL,
		RabbitMQHost:   rabbitHost,
		RabbitMQPort:   rabbitPort,
		RabbitMQUser:   rabbitUser,
		RabbitMQPass:   rabbitPass,
		RabbitMQVhost:  rabbitVhost,
		RabbitMQEnable: getEnvBool("RABBITMQ_ENABLED", true),

		RabbitMQPrefetch:      getEnvInt("RABBITMQ_PREFETCH", 8),
		UploadChunkSize:       getEnvSize("UPLOAD_CHUNK_SIZE", DefaultChunkSize),
		UploadPoolSize:        getEnvInt("UPLOAD_POOL_SIZE", DefaultPoolSize),
		UploadPollInterval:    getEnvDuration("UPLOAD_POLL_INTERVAL", DefaultPollInterval),
		UploadRate:            getEnvFloat("UPLOAD_RATE", 0),
		UploadBurst:           getEnvInt("UPLOAD_BURST", 4),
		UploadTransferTimeout: getEnvDuration("UPLOAD_TRANSFER_TIMEOUT", 0),
		UploadLockTTL:         getEnvDuration("UPLOAD_LOCK_TTL", 30*time.Second),
		UploadSnapshotTTL:     getEnvDuration("UPLOAD_SNAPSHOT_TTL", 24*time.Hour),
		UploadRetryMax:        getEnvInt("UPLOAD_RETRY_MAX", 5),
		UploadRetryDelays:     getEnvDurations("UPLOAD_RETRY_DELAYS", []time.Duration{5 * time.Second, 30 * time.Second, 2 * time.Minute}),
		UploadReportTo:        getEnv("UPLOAD_REPORT_TO", ""),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnv("SMTP_PORT", ""),
		SMTPUser:     getEnv("SMTP_USER", ""),
		SMTPPass:     getEnv("SMTP_PASS", ""),
		SMTPFrom:     getEnv("SMTP_FROM", ""),
		SMTPTLS:      getEnvBool("SMTP_TLS", false),
		SMTPStartTLS: getEnvBool("SMTP_STARTTLS", false),
	}

	InitTransferConfig()
}

// SMTPConfigured reports whether report mails can be sent.
func (c Config) SMTPConfigured() bool {
	return c.SMTPHost != "" && c.SMTPPort != "" && c.SMTPUser != "" && c.SMTPPass != "" && c.SMTPFrom != ""
}
