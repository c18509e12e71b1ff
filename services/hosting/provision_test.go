package hosting

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lvfs/pkg/storage"
)

const masterToken = "master-guid-0000"

func seededHarness(t *testing.T) *harness {
	t.Helper()
	h := newHarness(t)
	h.repo.addVendor(masterToken, "Signing", testSigningContact, true)
	h.repo.addVendor("vendor-guid-1", "Acme", "acme@example.com", true)
	return h
}

func TestAddVendor(t *testing.T) {
	h := seededHarness(t)

	out, err := h.svc.AddVendor(context.Background(), masterToken, "vendor-guid-2", "Globex", "ops@globex.example")
	require.NoError(t, err)
	require.True(t, out.OK())
	assert.Empty(t, out.Token)

	ok, err := h.svc.IsActive(context.Background(), "vendor-guid-2")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{EventVendorAdded}, h.events.types())
}

func TestAddVendor_GeneratesToken(t *testing.T) {
	h := seededHarness(t)

	out, err := h.svc.AddVendor(context.Background(), masterToken, "", "Initech", "it@initech.example")
	require.NoError(t, err)
	require.True(t, out.OK())
	assert.Equal(t, "generated-token-0001", out.Token)

	exists, err := h.svc.Exists(context.Background(), "generated-token-0001")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestAddVendor_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		master  string
		target  string
		authkey bool
		exists  bool
	}{
		{name: "non-master", master: "vendor-guid-1", target: "vendor-guid-9", authkey: true},
		{name: "empty master", master: "", target: "vendor-guid-9", authkey: true},
		{name: "target exists", master: masterToken, target: "vendor-guid-1", exists: true},
		{name: "both", master: "nope", target: "vendor-guid-1", authkey: true, exists: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := seededHarness(t)
			out, err := h.svc.AddVendor(context.Background(), tt.master, tt.target, "X", "x@example.com")
			require.NoError(t, err)
			assert.Equal(t, tt.authkey, out.Failed(CheckAuthKey))
			assert.Equal(t, tt.exists, out.Failed(CheckExists))
			assert.NotContains(t, h.repo.calls, "CreateVendor")
			assert.Empty(t, h.events.types())
		})
	}
}

func TestAddVendor_InsertConflictReportsExists(t *testing.T) {
	h := seededHarness(t)
	h.repo.createVnErr = ErrAlreadyExists

	out, err := h.svc.AddVendor(context.Background(), masterToken, "vendor-guid-3", "Racer", "r@example.com")
	require.NoError(t, err)
	assert.True(t, out.Failed(CheckExists))
}

func TestAddVendor_DisabledMasterStillAuthorizes(t *testing.T) {
	h := newHarness(t)
	h.repo.addVendor(masterToken, "Signing", testSigningContact, false)

	out, err := h.svc.AddVendor(context.Background(), masterToken, "vendor-guid-4", "Y", "y@example.com")
	require.NoError(t, err)
	assert.True(t, out.OK())
}

func TestDisableVendor(t *testing.T) {
	h := seededHarness(t)

	out, err := h.svc.DisableVendor(context.Background(), masterToken, "vendor-guid-1")
	require.NoError(t, err)
	require.True(t, out.OK())

	active, err := h.svc.IsActive(context.Background(), "vendor-guid-1")
	require.NoError(t, err)
	assert.False(t, active)
	exists, err := h.svc.Exists(context.Background(), "vendor-guid-1")
	require.NoError(t, err)
	assert.True(t, exists)

	// A disabled vendor can no longer upload but still counts as existing.
	upload, _, err := h.svc.Upload(context.Background(), Upload{Token: "vendor-guid-1", Data: cabinet(2048, 20)})
	require.NoError(t, err)
	assert.True(t, upload.Failed(CheckAuthKey))

	add, err := h.svc.AddVendor(context.Background(), masterToken, "vendor-guid-1", "Acme", "acme@example.com")
	require.NoError(t, err)
	assert.True(t, add.Failed(CheckExists))
}

func TestDisableVendor_Rejections(t *testing.T) {
	h := seededHarness(t)

	out, err := h.svc.DisableVendor(context.Background(), "vendor-guid-1", "unknown")
	require.NoError(t, err)
	assert.True(t, out.Failed(CheckAuthKey))
	assert.True(t, out.Failed(CheckExists))
	assert.NotContains(t, h.repo.calls, "SetVendorEnabled")
}

func TestRemoveVendor(t *testing.T) {
	h := seededHarness(t)
	h.repo.addFirmware("vendor-guid-1", "1111111111111111111111111111111111111111")
	h.repo.addFirmware("vendor-guid-1", "2222222222222222222222222222222222222222")
	h.repo.addFirmware(masterToken, "3333333333333333333333333333333333333333")
	h.mock.ExpectBegin()
	h.mock.ExpectCommit()

	out, err := h.svc.RemoveVendor(context.Background(), masterToken, "vendor-guid-1")
	require.NoError(t, err)
	require.True(t, out.OK())

	exists, err := h.svc.Exists(context.Background(), "vendor-guid-1")
	require.NoError(t, err)
	assert.False(t, exists)

	history, err := h.svc.History(context.Background())
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "3333333333333333333333333333333333333333", history[0].Checksum)

	assert.ElementsMatch(t, []string{
		storage.Name("1111111111111111111111111111111111111111"),
		storage.Name("2222222222222222222222222222222222222222"),
	}, h.blobs.deleted)
	assert.Equal(t, []string{EventVendorRemoved}, h.events.types())
}

func TestRemoveVendor_BlobDeleteFailureIsNotFatal(t *testing.T) {
	h := seededHarness(t)
	h.repo.addFirmware("vendor-guid-1", "1111111111111111111111111111111111111111")
	h.blobs.delErr = errors.New("permission denied")
	h.mock.ExpectBegin()
	h.mock.ExpectCommit()

	out, err := h.svc.RemoveVendor(context.Background(), masterToken, "vendor-guid-1")
	require.NoError(t, err)
	assert.True(t, out.OK())
}

func TestRemoveVendor_DatabaseFailureRollsBack(t *testing.T) {
	h := seededHarness(t)
	h.repo.deleteErr = errors.New("deadlock detected")
	h.mock.ExpectBegin()
	h.mock.ExpectRollback()

	out, err := h.svc.RemoveVendor(context.Background(), masterToken, "vendor-guid-1")
	require.ErrorIs(t, err, ErrDatabase)
	assert.Nil(t, out)
	assert.Empty(t, h.blobs.deleted)
}

func TestRemoveVendor_Rejections(t *testing.T) {
	h := seededHarness(t)

	out, err := h.svc.RemoveVendor(context.Background(), masterToken, "unknown")
	require.NoError(t, err)
	assert.False(t, out.Failed(CheckAuthKey))
	assert.True(t, out.Failed(CheckExists))
	assert.NotContains(t, h.repo.calls, "DeleteVendor")
}

func TestAdminister(t *testing.T) {
	h := seededHarness(t)

	out, err := h.svc.Administer(context.Background(), AdminRequest{
		Action:      OpDisable,
		MasterToken: masterToken,
		Target:      "vendor-guid-1",
	})
	require.NoError(t, err)
	assert.Equal(t, OpDisable, out.Op)
	assert.True(t, out.OK())

	_, err = h.svc.Administer(context.Background(), AdminRequest{Action: OpUpload})
	require.ErrorIs(t, err, ErrUnknownAction)
	_, err = h.svc.Administer(context.Background(), AdminRequest{Action: "explode"})
	require.ErrorIs(t, err, ErrUnknownAction)
}

func TestBootstrap(t *testing.T) {
	h := newHarness(t)

	v, err := h.svc.Bootstrap(context.Background(), "Signing")
	require.NoError(t, err)
	assert.Equal(t, "generated-token-0001", v.GUID)
	assert.Equal(t, testSigningContact, v.Contact)

	master, err := h.svc.IsMaster(context.Background(), v.GUID)
	require.NoError(t, err)
	assert.True(t, master)

	_, err = h.svc.Bootstrap(context.Background(), "Again")
	require.ErrorIs(t, err, ErrAlreadyExists)
}
