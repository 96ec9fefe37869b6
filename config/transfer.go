package config

import (
	"strings"
	"sync"
	"time"
)

const (
	BackendMinio = "minio"
	BackendS3    = "s3"
	BackendDelay = "delay"
)

// TransferConfig selects and configures the per-chunk transfer backend.
type TransferConfig struct {
	Backend     string        `json:"backend"`      // minio, s3, delay
	ChunkPrefix string        `json:"chunk_prefix"` // object key prefix for uploaded chunks
	Delay       time.Duration `json:"delay"`        // per-chunk latency of the delay backend
	S3          S3Config      `json:"s3"`
}

// S3Config describes an S3 (or S3-compatible) endpoint.
type S3Config struct {
	Region         string `json:"region"`
	Endpoint       string `json:"endpoint"` // empty means AWS
	Bucket         string `json:"bucket"`
	AccessKey      string `json:"access_key"`
	SecretKey      string `json:"secret_key"`
	ForcePathStyle bool   `json:"force_path_style"`
}

var TransferConfigInstance *TransferConfig
var transferConfigOnce sync.Once

// InitTransferConfig initializes transfer backend config.
func InitTransferConfig() {
	transferConfigOnce.Do(func() {
		TransferConfigInstance = &TransferConfig{
			Backend:     strings.ToLower(getEnv("TRANSFER_BACKEND", BackendMinio)),
			ChunkPrefix: strings.Trim(getEnv("TRANSFER_CHUNK_PREFIX", "chunks"), "/"),
			Delay:       getEnvDuration("TRANSFER_DELAY", 100*time.Millisecond),
			S3: S3Config{
				Region:         getEnv("S3_REGION", "us-east-1"),
				Endpoint:       getEnv("S3_ENDPOINT", ""),
				Bucket:         getEnv("S3_BUCKET", getEnv("BUCKET_NAME", "uploads")),
				AccessKey:      getEnv("S3_ACCESS_KEY", ""),
				SecretKey:      getEnv("S3_SECRET_KEY", ""),
				ForcePathStyle: getEnvBool("S3_FORCE_PATH_STYLE", false),
			},
		}
	})
}
