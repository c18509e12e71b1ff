package storage

import (
	"context"
	"errors"
	"io"
	"strings"

	gos3 "lvfs/pkg/s3"
)

type objectAPI interface {
	PutObject(ctx context.Context, bucket, key string, data []byte) error
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	DeleteObject(ctx context.Context, bucket, key string) error
}

// S3 stores blobs as objects under a key prefix in one bucket.
type S3 struct {
	api    objectAPI
	bucket string
	prefix string
}

// NewS3 returns an S3 backed store.
func NewS3(api objectAPI, bucket, prefix string) (*S3, error) {
	if api == nil {
		return nil, errors.New("s3 client is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("bucket is required")
	}
	return &S3{api: api, bucket: bucket, prefix: prefix}, nil
}

func (s *S3) key(name string) string {
	return s.prefix + name
}

// Put uploads the blob.
func (s *S3) Put(ctx context.Context, name string, data []byte) error {
	if err := validName(name); err != nil {
		return err
	}
	return s.api.PutObject(ctx, s.bucket, s.key(name), data)
}

// Open downloads the blob.
func (s *S3) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	body, err := s.api.GetObject(ctx, s.bucket, s.key(name))
	if errors.Is(err, gos3.ErrNoSuchKey) {
		return nil, ErrNotFound
	}
	return body, err
}

// Delete removes the blob.
func (s *S3) Delete(ctx context.Context, name string) error {
	if err := validName(name); err != nil {
		return err
	}
	return s.api.DeleteObject(ctx, s.bucket, s.key(name))
}
