package storage

import (
	"context"
	"fmt"
	"strings"

	"label-printer/internal/capture"
)

type Storage interface {
	// Put stores the blob under the given name and returns its location
	Put(ctx context.Context, name string, blob capture.Blob) (string, error)
}

// New returns an S3 backend for "s3://bucket/prefix" targets and a directory
// backend for anything else.
func New(ctx context.Context, target string) (Storage, error) {
	if rest, ok := strings.CutPrefix(target, "s3://"); ok {
		bucket, prefix, _ := strings.Cut(rest, "/")
		if bucket == "" {
			return nil, fmt.Errorf("invalid S3 target %q: missing bucket", target)
		}
		return NewS3Storage(ctx, S3Config{
			Bucket: bucket,
			Prefix: strings.Trim(prefix, "/"),
		})
	}

	return NewFileStorage(ctx, FileConfig{
		Directory: target,
	})
}
