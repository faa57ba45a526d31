package replay

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegmentStoreWriteLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewSegmentStore[payload](dir, JSONCodec[payload]{})

	data := map[int64]payload{0: {X: 1, Y: "a"}, 1: {X: 2, Y: "b"}}
	require.NoError(t, store.WriteSegment(0, data))

	seg, err := store.LoadSegment(0)
	require.NoError(t, err)
	assert.Equal(t, data, seg.Data)
	assert.Equal(t, int64(0), seg.FirstTick)
	assert.Equal(t, int64(1), seg.LastTick)
}

func TestSegmentStoreWriteSegmentEmptyIsNoop(t *testing.T) {
	dir := t.TempDir()
	store := NewSegmentStore[payload](dir, JSONCodec[payload]{})
	require.NoError(t, store.WriteSegment(0, map[int64]payload{}))

	_, err := store.LoadSegment(0)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSegmentStoreLoadMissingSegment(t *testing.T) {
	dir := t.TempDir()
	store := NewSegmentStore[payload](dir, JSONCodec[payload]{})

	_, err := store.LoadSegment(99)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSegmentStoreLoadCorruptSegment(t *testing.T) {
	dir := t.TempDir()
	store := NewSegmentStore[payload](dir, JSONCodec[payload]{})
	require.NoError(t, store.WriteSegment(0, map[int64]payload{0: {}}))

	// Replace with garbage so decode fails.
	path := store.segmentPath(0)
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	_, err := store.LoadSegment(0)
	assert.True(t, errors.Is(err, ErrCorrupt))
}

func TestSegmentStoreCacheHitAvoidsDisk(t *testing.T) {
	dir := t.TempDir()
	store := NewSegmentStore[payload](dir, JSONCodec[payload]{})
	data := map[int64]payload{0: {X: 1}}
	require.NoError(t, store.WriteSegment(0, data))

	// Corrupt the on-disk file; cache should still serve the prior load.
	require.NoError(t, os.WriteFile(store.segmentPath(0), []byte("garbage"), 0o644))

	seg, err := store.LoadSegment(0)
	require.NoError(t, err)
	assert.Equal(t, data, seg.Data)
}

func TestSegmentStoreEvictFarFrom(t *testing.T) {
	dir := t.TempDir()
	store := NewSegmentStore[payload](dir, JSONCodec[payload]{})
	for i := int64(0); i < 5; i++ {
		require.NoError(t, store.WriteSegment(i, map[int64]payload{i: {}}))
		_, err := store.LoadSegment(i)
		require.NoError(t, err)
	}

	store.EvictFarFrom(2, 1)
	stats := store.Stats()
	assert.Equal(t, 3, stats.CachedSegments)
	assert.Equal(t, 5, stats.SegmentsOnDisk)
}

func TestSegmentStoreStatsTracksBytesWritten(t *testing.T) {
	dir := t.TempDir()
	store := NewSegmentStore[payload](dir, JSONCodec[payload]{})
	require.NoError(t, store.WriteSegment(0, map[int64]payload{0: {X: 1, Y: "hello"}}))

	stats := store.Stats()
	assert.Greater(t, stats.BytesWritten, int64(0))
	assert.Equal(t, 1, stats.SegmentsOnDisk)
}
