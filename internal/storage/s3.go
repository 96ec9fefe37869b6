package storage

import (
	"Go_Uploader/config"
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// S3Store implements Store on the AWS S3 API (or an S3-compatible endpoint).
type S3Store struct {
	client *s3.Client
}

// NewS3Store builds a Store from an S3 client.
func NewS3Store(client *s3.Client) *S3Store {
	return &S3Store{client: client}
}

// NewS3Client loads an AWS config for cfg. Static keys are used when both are
// set; otherwise the default credential chain applies.
func NewS3Client(ctx context.Context, cfg config.S3Config) (*s3.Client, error) {
	if cfg.Region == "" {
		return nil, fmt.Errorf("region must not be empty")
	}
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts,
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	}), nil
}

// PutObject uploads an object to S3.
func (s *S3Store) PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts PutOptions) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(object),
		Body:          reader,
		ContentLength: aws.Int64(size),
		Metadata:      opts.Metadata,
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("put object %s: %w", object, err)
	}
	return nil
}

// RemoveObject deletes an object from S3. Missing objects are not an error.
func (s *S3Store) RemoveObject(ctx context.Context, bucket, object string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(object),
	})
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && (apiErr.ErrorCode() == "NoSuchKey" || apiErr.ErrorCode() == "NotFound") {
		return nil
	}
	return fmt.Errorf("delete object %s: %w", object, err)
}

// InitS3 initializes the S3 store from config.TransferConfigInstance.
func InitS3() {
	cfg := config.TransferConfigInstance.S3
	client, err := NewS3Client(context.Background(), cfg)
	if err != nil {
		log.Fatalln("s3 error:", err)
	}
	log.Println("init s3 success")
	Default = NewS3Store(client)
	DefaultBucket = cfg.Bucket
}
