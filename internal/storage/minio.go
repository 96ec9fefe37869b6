package storage

import (
	"Go_Uploader/config"
	"context"
	"io"
	"log"
	"net"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStore implements Store with a MinIO client.
type MinioStore struct {
	client *minio.Client
}

// NewMinioStore builds a Store from a MinIO client.
func NewMinioStore(client *minio.Client) *MinioStore {
	return &MinioStore{client: client}
}

// PutObject uploads an object to MinIO.
func (s *MinioStore) PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts PutOptions) error {
	_, err := s.client.PutObject(ctx, bucket, object, reader, size, minio.PutObjectOptions{
		ContentType:  opts.ContentType,
		UserMetadata: opts.Metadata,
	})
	return err
}

// RemoveObject deletes an object from MinIO. Missing objects are not an error.
func (s *MinioStore) RemoveObject(ctx context.Context, bucket, object string) error {
	err := s.client.RemoveObject(ctx, bucket, object, minio.RemoveObjectOptions{})
	if err != nil && minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return nil
	}
	return err
}

// InitMinio connects to MinIO, creates the chunk bucket when missing and makes
// the store the default.
func InitMinio() {
	endpoint := net.JoinHostPort(config.AppConfig.MinioHost, config.AppConfig.MinioPort)
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AppConfig.MinioUsername, config.AppConfig.MinioPassword, ""),
		Secure: config.AppConfig.MinioUseSSL,
	})
	if err != nil {
		log.Fatalf("minio client %s: %v", endpoint, err)
	}
	bucket := config.AppConfig.BucketName
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ensureBucket(ctx, client, bucket); err != nil {
		log.Fatalf("minio bucket %s: %v", bucket, err)
	}
	log.Printf("init minio success: %s/%s", endpoint, bucket)
	Default = NewMinioStore(client)
	DefaultBucket = bucket
}

func ensureBucket(ctx context.Context, client *minio.Client, bucket string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil || exists {
		return err
	}
	return client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{})
}
