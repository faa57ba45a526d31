package models

import "gorm.io/gorm"

// CatalogEntry is a cached index row over a recording directory's
// header.json. It exists so recordings can be listed and searched without
// walking the filesystem; on disagreement the header.json on disk is
// authoritative and Reconcile refreshes the row from it.
type CatalogEntry struct {
	BaseModel

	// Dir is the absolute path to the recording directory.
	Dir string `gorm:"not null;uniqueIndex;size:1024" json:"dir"`

	// TickRate is the recorder's ticks-per-second rate.
	TickRate int `gorm:"not null" json:"tick_rate"`

	// SegmentSize is the ticks-per-segment-file boundary.
	SegmentSize int `gorm:"not null" json:"segment_size"`

	// TotalTicks is the highest tick number recorded, as of last scan.
	TotalTicks int64 `gorm:"not null" json:"total_ticks"`

	// TotalDuration is the recording length in milliseconds, as of last scan.
	TotalDuration float64 `gorm:"not null" json:"total_duration"`

	// Codec names the payload codec recorded in header.json.
	Codec string `gorm:"size:50" json:"codec"`

	// Compression is the codec's compression scheme: none, brotli, or xz.
	Compression string `gorm:"size:20" json:"compression"`

	// SizeBytes is the cumulative on-disk size of the recording's segment
	// files, as of last scan.
	SizeBytes int64 `gorm:"not null" json:"size_bytes"`

	// LastScannedAt is when this row was last refreshed from header.json.
	LastScannedAt *Time `json:"last_scanned_at,omitempty"`
}

// TableName returns the table name for CatalogEntry.
func (CatalogEntry) TableName() string {
	return "catalog_entries"
}

// Validate performs basic validation on the catalog entry.
func (c *CatalogEntry) Validate() error {
	if c.Dir == "" {
		return ErrDirRequired
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the entry and generates a ULID.
func (c *CatalogEntry) BeforeCreate(tx *gorm.DB) error {
	if err := c.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return c.Validate()
}

// BeforeUpdate is a GORM hook that validates the entry before update.
func (c *CatalogEntry) BeforeUpdate(tx *gorm.DB) error {
	return c.Validate()
}
