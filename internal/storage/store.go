package storage

import (
	"context"
	"io"
)

// PutOptions describes upload options for object storage.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// Store abstracts the object storage that receives chunk data.
type Store interface {
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts PutOptions) error
	RemoveObject(ctx context.Context, bucket, object string) error
}

// Default is the main object store instance.
var Default Store

// DefaultBucket is the bucket Default writes to.
var DefaultBucket string
