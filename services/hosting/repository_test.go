package hosting

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepo(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		_ = sqlDB.Close()
	})
	return NewPostgresRepository(sqlDB), mock
}

var vendorColumns = []string{"guid", "name", "contact", "enabled", "created_at"}

func TestRepository_FindVendor(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM vendors WHERE guid = $1`)).
		WithArgs("vendor-guid-1").
		WillReturnRows(sqlmock.NewRows(vendorColumns).
			AddRow("vendor-guid-1", "Acme", "acme@example.com", false, testNow))

	v, err := repo.FindVendor(context.Background(), "vendor-guid-1")
	require.NoError(t, err)
	assert.Equal(t, "Acme", v.Name)
	assert.False(t, v.Enabled)
	assert.Equal(t, testNow, v.CreatedAt)
}

func TestRepository_FindVendor_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM vendors WHERE guid = $1`)).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(vendorColumns))

	_, err := repo.FindVendor(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRepository_CreateVendor_UniqueViolation(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO vendors`)).
		WithArgs("vendor-guid-1", "Acme", "acme@example.com", true, testNow).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "vendors_pkey"})

	err := repo.CreateVendor(context.Background(), &Vendor{
		GUID: "vendor-guid-1", Name: "Acme", Contact: "acme@example.com", Enabled: true, CreatedAt: testNow,
	})
	require.ErrorIs(t, err, ErrAlreadyExists)
}

func TestRepository_SetVendorEnabled(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE vendors SET enabled = $2 WHERE guid = $1`)).
		WithArgs("vendor-guid-1", false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE vendors`)).
		WithArgs("missing", false).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.SetVendorEnabled(context.Background(), "vendor-guid-1", false))
	require.ErrorIs(t, repo.SetVendorEnabled(context.Background(), "missing", false), ErrNotFound)
}

func TestRepository_DeleteVendor_Error(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM vendors`)).
		WithArgs("vendor-guid-1").
		WillReturnError(sql.ErrConnDone)

	err := repo.DeleteVendor(context.Background(), "vendor-guid-1")
	require.ErrorIs(t, err, sql.ErrConnDone)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestRepository_ChecksumExists(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS`)).
		WithArgs("abc").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := repo.ChecksumExists(context.Background(), "abc")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRepository_CreateFirmware(t *testing.T) {
	repo, mock := newMockRepo(t)

	fw := &Firmware{
		VendorGUID: "vendor-guid-1",
		Contact:    "dev@acme.example",
		Addr:       "192.0.2.10",
		CreatedAt:  testNow,
		Filename:   "a.cab",
		Checksum:   "abc",
	}
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO firmware`)).
		WithArgs(fw.VendorGUID, fw.Contact, fw.Addr, fw.CreatedAt, fw.Filename, fw.Checksum).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO firmware`)).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "firmware_checksum_key"})

	require.NoError(t, repo.CreateFirmware(context.Background(), fw))
	assert.Equal(t, int64(42), fw.ID)

	err := repo.CreateFirmware(context.Background(), &Firmware{Checksum: "abc"})
	require.ErrorIs(t, err, ErrAlreadyExists)
}

func TestRepository_DeleteFirmwareByVendor(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(`DELETE FROM firmware WHERE vendor_guid = $1 RETURNING checksum`)).
		WithArgs("vendor-guid-1").
		WillReturnRows(sqlmock.NewRows([]string{"checksum"}).AddRow("aaa").AddRow("bbb"))

	sums, err := repo.DeleteFirmwareByVendor(context.Background(), "vendor-guid-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"aaa", "bbb"}, sums)
}

func TestRepository_ListHistory(t *testing.T) {
	repo, mock := newMockRepo(t)

	cols := []string{"id", "vendor_guid", "contact", "addr", "created_at", "filename", "checksum", "vendor_name"}
	mock.ExpectQuery(regexp.QuoteMeta(`LEFT JOIN vendors v ON v.guid = f.vendor_guid`)).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(int64(1), "vendor-guid-1", "a@example.com", "192.0.2.1", testNow, "a.cab", "aaa", "Acme").
			AddRow(int64(2), "removed-guid", "b@example.com", "192.0.2.2", testNow, "b.cab", "bbb", ""))

	out, err := repo.ListHistory(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, int64(1), out[0].ID)
	assert.Equal(t, "Acme", out[0].VendorName)
	assert.Equal(t, "b.cab", out[1].Filename)
	assert.Empty(t, out[1].VendorName)
}
