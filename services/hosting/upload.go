package hosting

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"strings"

	"lvfs/pkg/db"
	"lvfs/pkg/storage"
)

// Upload size bounds, inclusive.
const (
	MinFirmwareSize = 1280
	MaxFirmwareSize = 100 * 1024
)

var (
	cabinetMagic   = []byte("MSCF")
	metadataMarker = []byte(".metainfo.xml")
)

// SizeOK reports whether n bytes is an acceptable upload size.
func SizeOK(n int) bool {
	return n >= MinFirmwareSize && n <= MaxFirmwareSize
}

// IsCabinet reports whether data starts with the cabinet archive magic.
func IsCabinet(data []byte) bool {
	return bytes.HasPrefix(data, cabinetMagic)
}

// HasMetadata reports whether data embeds a .metainfo.xml file name.
func HasMetadata(data []byte) bool {
	return bytes.Contains(data, metadataMarker)
}

// Checksum returns the hex SHA-1 of data.
func Checksum(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}

// Upload is one submitted firmware file.
type Upload struct {
	Token    string
	Contact  string
	Addr     string
	Filename string
	Data     []byte
}

// Upload runs every check independently and stores the file only when all of
// them pass. The firmware row and the blob are written together: a blob write
// failure rolls the row back and a failed commit removes the blob unless
// another row now holds the same checksum.
func (s *Service) Upload(ctx context.Context, up Upload) (*Outcome, *Firmware, error) {
	out := NewOutcome(OpUpload)

	cred, err := s.Authenticate(ctx, up.Token)
	if err != nil {
		return nil, nil, err
	}
	if !cred.Active() {
		out.Fail(CheckAuthKey)
	}
	if !SizeOK(len(up.Data)) {
		out.Fail(CheckSize)
	}
	if !IsCabinet(up.Data) {
		out.Fail(CheckFileType)
	}
	if !HasMetadata(up.Data) {
		out.Fail(CheckMetadata)
	}

	sum := Checksum(up.Data)
	dup, err := s.repos(s.db).ChecksumExists(ctx, sum)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrDatabase, err)
	}
	if dup {
		out.Fail(CheckExists)
	}

	if !out.OK() {
		return out, nil, nil
	}

	fw := &Firmware{
		VendorGUID: cred.Token,
		Contact:    up.Contact,
		Addr:       up.Addr,
		CreatedAt:  s.now().UTC(),
		Filename:   cleanFilename(up.Filename),
		Checksum:   sum,
	}
	name := storage.Name(sum)

	written := false
	err = db.WithTx(ctx, s.db, func(ctx context.Context, tx db.DBTX) error {
		if err := s.repos(tx).CreateFirmware(ctx, fw); err != nil {
			return err
		}
		if err := s.blobs.Put(ctx, name, up.Data); err != nil {
			return fmt.Errorf("%w: write %s: %w", ErrStorage, name, err)
		}
		written = true
		return nil
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrAlreadyExists):
		out.Fail(CheckExists)
		return out, nil, nil
	case errors.Is(err, ErrStorage):
		return nil, nil, err
	default:
		if written {
			s.removeUnheldBlob(ctx, sum, name)
		}
		return nil, nil, fmt.Errorf("%w: %w", ErrDatabase, err)
	}

	s.log.Info().
		Str("vendor", vendorLabel(cred.Vendor)).
		Str("checksum", sum).
		Int("size", len(up.Data)).
		Msg("firmware accepted")

	s.publish(ctx, EventFirmwareUploaded, vendorLabel(cred.Vendor), sum, map[string]any{
		"filename": fw.Filename,
		"size":     len(up.Data),
		"addr":     fw.Addr,
	})

	return out, fw, nil
}

// removeUnheldBlob deletes a blob left by a failed commit. A concurrent upload
// of the same bytes may have committed its row against the same name, so the
// blob is kept when a row holds the checksum or ownership cannot be read.
func (s *Service) removeUnheldBlob(ctx context.Context, sum, name string) {
	held, err := s.repos(s.db).ChecksumExists(ctx, sum)
	if err != nil {
		s.log.Warn().Err(err).Str("blob", name).Msg("keep blob: checksum lookup failed")
		return
	}
	if held {
		return
	}
	s.removeBlob(ctx, name)
}

func cleanFilename(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = path.Base(name)
	if name == "." || name == "/" {
		return ""
	}
	return name
}
