// Package storage keeps firmware blobs under content-addressed names.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"lvfs/pkg/config"
	gos3 "lvfs/pkg/s3"
)

// Extension is appended to the content hash to form a blob name.
const Extension = ".cab"

var (
	// ErrNotFound is returned by Open when the blob does not exist.
	ErrNotFound = errors.New("blob not found")
	// ErrInvalidName is returned for names that could escape the store.
	ErrInvalidName = errors.New("invalid blob name")
)

// Store persists opaque blobs by name.
type Store interface {
	// Put writes data under name, replacing any existing blob atomically.
	Put(ctx context.Context, name string, data []byte) error
	// Open returns a reader for the named blob.
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	// Delete removes the named blob. Missing blobs are not an error.
	Delete(ctx context.Context, name string) error
}

// Name returns the blob name for a hex content digest.
func Name(checksum string) string {
	return checksum + Extension
}

// New builds the backend selected in cfg.
func New(ctx context.Context, cfg config.Storage) (Store, error) {
	switch cfg.Backend {
	case config.StorageFS, "":
		return NewFS(cfg.Dir)
	case config.StorageS3:
		client, err := gos3.NewClient(ctx, cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("s3 client: %w", err)
		}
		return NewS3(client, cfg.S3.Bucket, cfg.S3.Prefix)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func validName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
