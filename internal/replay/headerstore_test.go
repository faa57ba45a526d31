package replay

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderStoreWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewHeaderStore(dir)

	meta := NewHeaderMeta(30, 1000, "json", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, store.WriteMeta(meta))

	got, err := store.ReadMeta()
	require.NoError(t, err)
	assert.Equal(t, meta, got)
}

func TestHeaderStoreReadMissingReturnsNotFound(t *testing.T) {
	dir := t.TempDir()
	store := NewHeaderStore(dir)

	_, err := store.ReadMeta()
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestHeaderStoreReadCorruptReturnsCorrupt(t *testing.T) {
	dir := t.TempDir()
	store := NewHeaderStore(dir)
	require.NoError(t, store.WriteMeta(NewHeaderMeta(30, 1000, "json", time.Now())))

	require.NoError(t, os.WriteFile(store.path(), []byte("not json"), 0o644))

	_, err := store.ReadMeta()
	assert.True(t, errors.Is(err, ErrCorrupt))
}

func TestNewHeaderMetaOmitsCodecWhenEmpty(t *testing.T) {
	meta := NewHeaderMeta(30, 1000, "", time.Now())
	assert.Empty(t, meta.Codec)
}
