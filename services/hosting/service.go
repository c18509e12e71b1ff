// Package hosting implements vendor authorization, firmware upload acceptance
// and vendor provisioning for the firmware hosting site.
package hosting

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"lvfs/pkg/db"
	"lvfs/pkg/storage"
)

var checksumPattern = regexp.MustCompile(`^[0-9a-f]{40}$`)

// Options configures a Service.
type Options struct {
	DB             *sql.DB
	Blobs          storage.Store
	Events         Publisher
	SigningContact string
	Logger         zerolog.Logger
}

// Service coordinates the repository, blob store and event publisher.
type Service struct {
	db             *sql.DB
	repos          func(db.DBTX) Repository
	blobs          storage.Store
	events         Publisher
	signingContact string
	log            zerolog.Logger

	now      func() time.Time
	newToken func() string
}

// NewService validates opts and returns a Service.
func NewService(opts Options) (*Service, error) {
	if opts.DB == nil {
		return nil, errors.New("database is required")
	}
	if opts.Blobs == nil {
		return nil, errors.New("blob store is required")
	}
	if opts.SigningContact == "" {
		return nil, errors.New("signing contact is required")
	}
	return &Service{
		db:             opts.DB,
		repos:          func(conn db.DBTX) Repository { return NewPostgresRepository(conn) },
		blobs:          opts.Blobs,
		events:         opts.Events,
		signingContact: opts.SigningContact,
		log:            opts.Logger,
		now:            time.Now,
		newToken:       func() string { return uuid.NewString() },
	}, nil
}

// SigningContact returns the contact address identifying the master vendor.
func (s *Service) SigningContact() string {
	return s.signingContact
}

// History returns every firmware record with its vendor name, in upload order.
func (s *Service) History(ctx context.Context) ([]HistoryEntry, error) {
	out, err := s.repos(s.db).ListHistory(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabase, err)
	}
	return out, nil
}

// Vendors lists every vendor account.
func (s *Service) Vendors(ctx context.Context) ([]Vendor, error) {
	out, err := s.repos(s.db).ListVendors(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabase, err)
	}
	return out, nil
}

// OpenFirmware returns the stored blob for a checksum. Unknown or malformed
// checksums yield ErrNotFound.
func (s *Service) OpenFirmware(ctx context.Context, checksum string) (*Firmware, io.ReadCloser, error) {
	if !checksumPattern.MatchString(checksum) {
		return nil, nil, ErrNotFound
	}
	fw, err := s.repos(s.db).FindFirmware(ctx, checksum)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("%w: %w", ErrDatabase, err)
	}
	rc, err := s.blobs.Open(ctx, storage.Name(checksum))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return fw, rc, nil
}

func (s *Service) removeBlob(ctx context.Context, name string) {
	if err := s.blobs.Delete(ctx, name); err != nil {
		s.log.Warn().Err(err).Str("blob", name).Msg("delete blob")
	}
}
