package replay

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newGappyReplayerForTest records payloads only on even ticks 2..10 at
// tickRate 10, mirroring the range-query-with-gaps scenario.
func newGappyReplayerForTest(t *testing.T) *Replayer[payload] {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "rec")

	rec := NewRecorder[payload](dir, Options{SegmentSize: 100, TickRate: 10, Codec: "json"}, nil)
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	rec.now = clock.now
	require.NoError(t, rec.Start())

	for i := 1; i <= 5; i++ {
		clock.advance(200 * time.Millisecond)
		require.NoError(t, rec.Record(payload{X: i}))
	}
	// Stop one tick after the last payload so tick 10 lies inside
	// [0, totalTicks-1].
	clock.advance(100 * time.Millisecond)
	_, err := rec.Stop()
	require.NoError(t, err)

	p := NewReplayer[payload](dir, Options{}, Callbacks[payload]{}, nil)
	require.NoError(t, p.Init())
	return p
}

func TestGetRangeDataIncludePartialTicksPadsGaps(t *testing.T) {
	p := newGappyReplayerForTest(t)

	result, err := p.GetRangeData(RangeOptions{
		TickRange:           &TickRange{StartTick: 1, EndTick: 10},
		IncludePartialTicks: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 10, result.Len())

	present := 0
	require.NoError(t, result.For(func(i int, e *Entry[payload]) bool {
		if e.Present {
			present++
			assert.Equal(t, int64(0), e.Meta.Tick%2)
		}
		return true
	}))
	assert.Equal(t, 5, present)
}

func TestGetRangeDataSkipsMissingTicksByDefault(t *testing.T) {
	p := newGappyReplayerForTest(t)

	result, err := p.GetRangeData(RangeOptions{
		TickRange: &TickRange{StartTick: 1, EndTick: 10},
	})
	require.NoError(t, err)
	assert.Equal(t, 5, result.Len())

	require.NoError(t, result.For(func(i int, e *Entry[payload]) bool {
		assert.True(t, e.Present)
		return true
	}))
}

func TestGetRangeDataRequiresExactlyOneRangeKind(t *testing.T) {
	p := newGappyReplayerForTest(t)

	_, err := p.GetRangeData(RangeOptions{})
	assert.ErrorIs(t, err, ErrInvalidArgs)

	_, err = p.GetRangeData(RangeOptions{
		TickRange: &TickRange{StartTick: 1, EndTick: 2},
		TimeRange: &TimeRange{StartMs: 0, EndMs: 200},
	})
	assert.ErrorIs(t, err, ErrInvalidArgs)
}

func TestGetRangeDataByTimeRange(t *testing.T) {
	p := newGappyReplayerForTest(t)

	result, err := p.GetRangeData(RangeOptions{
		TimeRange:           &TimeRange{StartMs: 0, EndMs: 1000},
		IncludePartialTicks: true,
	})
	require.NoError(t, err)
	assert.Greater(t, result.Len(), 0)
}

func TestRangeChunksSplitsByAdvisorySize(t *testing.T) {
	p := newGappyReplayerForTest(t)

	result, err := p.GetRangeData(RangeOptions{
		TickRange:           &TickRange{StartTick: 1, EndTick: 10},
		IncludePartialTicks: true,
	})
	require.NoError(t, err)

	chunks, err := RangeChunks(result, 4)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 4)
	assert.Len(t, chunks[1], 4)
	assert.Len(t, chunks[2], 2)
}

func TestRangeChunksZeroSizeReturnsSingleChunk(t *testing.T) {
	p := newGappyReplayerForTest(t)

	result, err := p.GetRangeData(RangeOptions{
		TickRange:           &TickRange{StartTick: 1, EndTick: 10},
		IncludePartialTicks: true,
	})
	require.NoError(t, err)

	chunks, err := RangeChunks(result, 0)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Len(t, chunks[0], 10)
}
