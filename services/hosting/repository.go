package hosting

import (
	"context"
	"fmt"

	"github.com/georgysavva/scany/v2/sqlscan"

	"lvfs/pkg/db"
)

// Repository is the persistence surface used by the Service.
type Repository interface {
	FindVendor(ctx context.Context, guid string) (*Vendor, error)
	ListVendors(ctx context.Context) ([]Vendor, error)
	CreateVendor(ctx context.Context, v *Vendor) error
	SetVendorEnabled(ctx context.Context, guid string, enabled bool) error
	DeleteVendor(ctx context.Context, guid string) error

	ChecksumExists(ctx context.Context, checksum string) (bool, error)
	CreateFirmware(ctx context.Context, fw *Firmware) error
	FindFirmware(ctx context.Context, checksum string) (*Firmware, error)
	DeleteFirmwareByVendor(ctx context.Context, guid string) ([]string, error)
	ListHistory(ctx context.Context) ([]HistoryEntry, error)
}

// PostgresRepository implements Repository over a db.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// FindVendor returns the vendor with the given guid or ErrNotFound.
func (r *PostgresRepository) FindVendor(ctx context.Context, guid string) (*Vendor, error) {
	query := `SELECT guid, name, contact, enabled, created_at FROM vendors WHERE guid = $1`

	var v Vendor
	if err := sqlscan.Get(ctx, r.db, &v, query, guid); err != nil {
		if sqlscan.NotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select vendor: %w", err)
	}
	return &v, nil
}

// ListVendors returns every vendor ordered by creation time.
func (r *PostgresRepository) ListVendors(ctx context.Context) ([]Vendor, error) {
	query := `SELECT guid, name, contact, enabled, created_at FROM vendors ORDER BY created_at, guid`

	var out []Vendor
	if err := sqlscan.Select(ctx, r.db, &out, query); err != nil {
		return nil, fmt.Errorf("select vendors: %w", err)
	}
	return out, nil
}

// CreateVendor inserts v. Returns ErrAlreadyExists when the guid is taken.
func (r *PostgresRepository) CreateVendor(ctx context.Context, v *Vendor) error {
	query := `
		INSERT INTO vendors (guid, name, contact, enabled, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := r.db.ExecContext(ctx, query, v.GUID, v.Name, v.Contact, v.Enabled, v.CreatedAt); err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("vendor: %w", ErrAlreadyExists)
		}
		return fmt.Errorf("insert vendor: %w", err)
	}
	return nil
}

// SetVendorEnabled flips the enabled flag. Returns ErrNotFound if no row matched.
func (r *PostgresRepository) SetVendorEnabled(ctx context.Context, guid string, enabled bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE vendors SET enabled = $2 WHERE guid = $1`, guid, enabled)
	if err != nil {
		return fmt.Errorf("update vendor: %w", err)
	}
	return exactlyOne(res.RowsAffected())
}

// DeleteVendor removes the vendor row. Returns ErrNotFound if no row matched.
func (r *PostgresRepository) DeleteVendor(ctx context.Context, guid string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM vendors WHERE guid = $1`, guid)
	if err != nil {
		return fmt.Errorf("delete vendor: %w", err)
	}
	return exactlyOne(res.RowsAffected())
}

// ChecksumExists reports whether any firmware row carries checksum.
func (r *PostgresRepository) ChecksumExists(ctx context.Context, checksum string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM firmware WHERE checksum = $1)`, checksum).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check checksum: %w", err)
	}
	return exists, nil
}

// CreateFirmware inserts fw and sets its ID. Returns ErrAlreadyExists when the
// checksum is already stored.
func (r *PostgresRepository) CreateFirmware(ctx context.Context, fw *Firmware) error {
	query := `
		INSERT INTO firmware (vendor_guid, contact, addr, created_at, filename, checksum)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query,
		fw.VendorGUID, fw.Contact, fw.Addr, fw.CreatedAt, fw.Filename, fw.Checksum).Scan(&fw.ID)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("firmware: %w", ErrAlreadyExists)
		}
		return fmt.Errorf("insert firmware: %w", err)
	}
	return nil
}

// FindFirmware returns the firmware row with the given checksum or ErrNotFound.
func (r *PostgresRepository) FindFirmware(ctx context.Context, checksum string) (*Firmware, error) {
	query := `
		SELECT id, vendor_guid, contact, addr, created_at, filename, checksum
		FROM firmware WHERE checksum = $1
	`
	var fw Firmware
	if err := sqlscan.Get(ctx, r.db, &fw, query, checksum); err != nil {
		if sqlscan.NotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select firmware: %w", err)
	}
	return &fw, nil
}

// DeleteFirmwareByVendor deletes every firmware row owned by guid and returns
// the checksums of the deleted rows.
func (r *PostgresRepository) DeleteFirmwareByVendor(ctx context.Context, guid string) ([]string, error) {
	var sums []string
	if err := sqlscan.Select(ctx, r.db, &sums, `DELETE FROM firmware WHERE vendor_guid = $1 RETURNING checksum`, guid); err != nil {
		return nil, fmt.Errorf("delete firmware: %w", err)
	}
	return sums, nil
}

// ListHistory returns every firmware row in insertion order with vendor names.
func (r *PostgresRepository) ListHistory(ctx context.Context) ([]HistoryEntry, error) {
	query := `
		SELECT f.id, f.vendor_guid, f.contact, f.addr, f.created_at, f.filename, f.checksum,
		       COALESCE(v.name, '') AS vendor_name
		FROM firmware f
		LEFT JOIN vendors v ON v.guid = f.vendor_guid
		ORDER BY f.id
	`
	var out []HistoryEntry
	if err := sqlscan.Select(ctx, r.db, &out, query); err != nil {
		return nil, fmt.Errorf("select history: %w", err)
	}
	return out, nil
}

func exactlyOne(n int64, err error) error {
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return ErrNotFound
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}
