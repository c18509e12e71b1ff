package hosting

import "time"

// Vendor is a firmware vendor account. GUID is both the primary key and the
// bearer credential used for uploads.
type Vendor struct {
	GUID      string    `json:"-" db:"guid"`
	Name      string    `json:"name" db:"name"`
	Contact   string    `json:"contact" db:"contact"`
	Enabled   bool      `json:"enabled" db:"enabled"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Firmware records one accepted upload.
type Firmware struct {
	ID         int64     `json:"id" db:"id"`
	VendorGUID string    `json:"-" db:"vendor_guid"`
	Contact    string    `json:"contact" db:"contact"`
	Addr       string    `json:"addr" db:"addr"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	Filename   string    `json:"filename" db:"filename"`
	Checksum   string    `json:"checksum" db:"checksum"`
}

// HistoryEntry is a firmware row with its vendor name resolved.
type HistoryEntry struct {
	Firmware
	VendorName string `json:"vendor" db:"vendor_name"`
}
