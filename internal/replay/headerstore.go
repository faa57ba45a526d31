package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// HeaderMeta is the persisted replay metadata document, written once per
// recording directory as header.json.
type HeaderMeta struct {
	CreatedAt     string  `json:"createdAt"`
	TickRate      int     `json:"tickRate"`
	SegmentSize   int     `json:"segmentSize"`
	TotalTicks    int64   `json:"totalTicks"`
	TotalDuration float64 `json:"totalDuration"`

	// Codec names the PayloadCodec used for this recording's segments.
	// Omitted by older headers; a reader that only looks at the
	// original five fields is unaffected.
	Codec string `json:"codec,omitempty"`
}

const headerFileName = "header.json"

// HeaderStore persists and reads the replay metadata document for a
// recording directory.
type HeaderStore struct {
	dir string
}

// NewHeaderStore returns a HeaderStore rooted at dir.
func NewHeaderStore(dir string) *HeaderStore {
	return &HeaderStore{dir: dir}
}

func (h *HeaderStore) path() string {
	return filepath.Join(h.dir, headerFileName)
}

// WriteMeta durably writes m to header.json, replacing any prior
// contents via a temp-file-then-rename so a crash mid-write never leaves
// a truncated header.json observable.
func (h *HeaderStore) WriteMeta(m HeaderMeta) error {
	encoded, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding header: %w", err)
	}

	tempFile, err := os.CreateTemp(h.dir, ".header-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: creating temp header: %v", ErrIO, err)
	}
	tempPath := tempFile.Name()

	if _, err := tempFile.Write(encoded); err != nil {
		tempFile.Close()
		os.Remove(tempPath)
		return fmt.Errorf("%w: writing header: %v", ErrIO, err)
	}
	if err := tempFile.Sync(); err != nil {
		tempFile.Close()
		os.Remove(tempPath)
		return fmt.Errorf("%w: syncing header: %v", ErrIO, err)
	}
	if err := tempFile.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("%w: closing header: %v", ErrIO, err)
	}

	if err := os.Rename(tempPath, h.path()); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("%w: renaming header: %v", ErrIO, err)
	}
	return nil
}

// ReadMeta reads and parses header.json.
func (h *HeaderStore) ReadMeta() (HeaderMeta, error) {
	raw, err := os.ReadFile(h.path())
	if err != nil {
		if os.IsNotExist(err) {
			return HeaderMeta{}, fmt.Errorf("%w: %s", ErrNotFound, h.path())
		}
		return HeaderMeta{}, fmt.Errorf("%w: reading header: %v", ErrIO, err)
	}

	var m HeaderMeta
	if err := json.Unmarshal(raw, &m); err != nil {
		return HeaderMeta{}, fmt.Errorf("%w: parsing header: %v", ErrCorrupt, err)
	}
	return m, nil
}

// NewHeaderMeta builds the initial metadata document for a freshly
// started recording.
func NewHeaderMeta(tickRate, segmentSize int, codec string, now time.Time) HeaderMeta {
	return HeaderMeta{
		CreatedAt:     now.UTC().Format(time.RFC3339),
		TickRate:      tickRate,
		SegmentSize:   segmentSize,
		TotalTicks:    0,
		TotalDuration: 0,
		Codec:         codec,
	}
}
