package hosting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"lvfs/pkg/db"
	"lvfs/pkg/storage"
)

const testSigningContact = "sign@fwupd.org"

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeRepo is an in-memory Repository. It ignores the DBTX it is bound to;
// transactions are asserted through sqlmock instead.
type fakeRepo struct {
	mu       sync.Mutex
	vendors  map[string]Vendor
	firmware []Firmware
	nextID   int64

	// failure injection
	findErr     error
	existsErr   error
	createFwErr error
	createVnErr error
	deleteErr   error
	calls       []string

	// discardInserts drops created firmware rows, as a rolled back
	// transaction would.
	discardInserts bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{vendors: map[string]Vendor{}}
}

func (f *fakeRepo) record(name string) {
	f.calls = append(f.calls, name)
}

func (f *fakeRepo) addVendor(guid, name, contact string, enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vendors[guid] = Vendor{GUID: guid, Name: name, Contact: contact, Enabled: enabled, CreatedAt: testNow}
}

func (f *fakeRepo) addFirmware(guid, checksum string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.firmware = append(f.firmware, Firmware{ID: f.nextID, VendorGUID: guid, Checksum: checksum, CreatedAt: testNow})
}

func (f *fakeRepo) FindVendor(_ context.Context, guid string) (*Vendor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("FindVendor")
	if f.findErr != nil {
		return nil, f.findErr
	}
	v, ok := f.vendors[guid]
	if !ok {
		return nil, ErrNotFound
	}
	return &v, nil
}

func (f *fakeRepo) ListVendors(context.Context) ([]Vendor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Vendor, 0, len(f.vendors))
	for _, v := range f.vendors {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GUID < out[j].GUID })
	return out, nil
}

func (f *fakeRepo) CreateVendor(_ context.Context, v *Vendor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreateVendor")
	if f.createVnErr != nil {
		return f.createVnErr
	}
	if _, ok := f.vendors[v.GUID]; ok {
		return ErrAlreadyExists
	}
	f.vendors[v.GUID] = *v
	return nil
}

func (f *fakeRepo) SetVendorEnabled(_ context.Context, guid string, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SetVendorEnabled")
	v, ok := f.vendors[guid]
	if !ok {
		return ErrNotFound
	}
	v.Enabled = enabled
	f.vendors[guid] = v
	return nil
}

func (f *fakeRepo) DeleteVendor(_ context.Context, guid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("DeleteVendor")
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.vendors[guid]; !ok {
		return ErrNotFound
	}
	delete(f.vendors, guid)
	return nil
}

func (f *fakeRepo) ChecksumExists(_ context.Context, checksum string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ChecksumExists")
	if f.existsErr != nil {
		return false, f.existsErr
	}
	for _, fw := range f.firmware {
		if fw.Checksum == checksum {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRepo) CreateFirmware(_ context.Context, fw *Firmware) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreateFirmware")
	if f.createFwErr != nil {
		return f.createFwErr
	}
	for _, x := range f.firmware {
		if x.Checksum == fw.Checksum {
			return ErrAlreadyExists
		}
	}
	f.nextID++
	fw.ID = f.nextID
	if !f.discardInserts {
		f.firmware = append(f.firmware, *fw)
	}
	return nil
}

func (f *fakeRepo) FindFirmware(_ context.Context, checksum string) (*Firmware, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, fw := range f.firmware {
		if fw.Checksum == checksum {
			out := fw
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeRepo) DeleteFirmwareByVendor(_ context.Context, guid string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("DeleteFirmwareByVendor")
	var sums []string
	kept := f.firmware[:0]
	for _, fw := range f.firmware {
		if fw.VendorGUID == guid {
			sums = append(sums, fw.Checksum)
			continue
		}
		kept = append(kept, fw)
	}
	f.firmware = kept
	return sums, nil
}

func (f *fakeRepo) ListHistory(context.Context) ([]HistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]HistoryEntry, 0, len(f.firmware))
	for _, fw := range f.firmware {
		out = append(out, HistoryEntry{Firmware: fw, VendorName: f.vendors[fw.VendorGUID].Name})
	}
	return out, nil
}

// memStore is an in-memory storage.Store.
type memStore struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	putErr  error
	delErr  error
	deleted []string
	onPut   func(name string)
}

func newMemStore() *memStore {
	return &memStore{blobs: map[string][]byte{}}
}

func (m *memStore) Put(_ context.Context, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.blobs[name] = bytes.Clone(data)
	if m.onPut != nil {
		m.onPut(name)
	}
	return nil
}

func (m *memStore) Open(_ context.Context, name string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[name]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memStore) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, name)
	if m.delErr != nil {
		return m.delErr
	}
	delete(m.blobs, name)
	return nil
}

func (m *memStore) has(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.blobs[name]
	return ok
}

// recorder captures published events.
type recorder struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (r *recorder) Publish(_ context.Context, subj string, v any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	ev, ok := v.(Event)
	if !ok {
		return errors.New("unexpected payload")
	}
	if subj != ev.Subject() {
		return errors.New("subject mismatch")
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

type harness struct {
	svc    *Service
	repo   *fakeRepo
	blobs  *memStore
	events *recorder
	mock   sqlmock.Sqlmock
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		_ = sqlDB.Close()
	})

	h := &harness{
		repo:   newFakeRepo(),
		blobs:  newMemStore(),
		events: &recorder{},
		mock:   mock,
	}
	svc, err := NewService(Options{
		DB:             sqlDB,
		Blobs:          h.blobs,
		Events:         h.events,
		SigningContact: testSigningContact,
		Logger:         zerolog.Nop(),
	})
	require.NoError(t, err)
	svc.repos = func(db.DBTX) Repository { return h.repo }
	svc.now = func() time.Time { return testNow }
	svc.newToken = func() string { return "generated-token-0001" }
	h.svc = svc
	return h
}

// cabinet builds an upload body of the given size that passes the type and
// metadata checks. seed varies the content so checksums differ.
func cabinet(size int, seed byte) []byte {
	data := bytes.Repeat([]byte{seed}, size)
	copy(data, "MSCF")
	copy(data[64:], "firmware.metainfo.xml")
	return data
}

func eventJSON(t *testing.T, ev Event) map[string]any {
	t.Helper()
	raw, err := json.Marshal(ev)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}
