package replay

import (
	"crypto/rand"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Recorder accepts a stream of payloads and persists them as segments,
// deriving the tick index from the wall clock rather than trusting the
// caller's cadence.
type Recorder[T any] struct {
	dir     string
	opts    Options
	headers *HeaderStore
	store   *SegmentStore[T]
	logger  *slog.Logger

	now func() time.Time

	mu    sync.Mutex
	state State

	id RecordingID

	startTime      time.Time
	pauseStartTime time.Time
	pausedDuration time.Duration

	segmentIndex int64
	pending      map[int64]T
}

// RecordingID identifies one recorder lifetime. It is assigned on start
// using a ULID so recording IDs sort chronologically, matching the
// catalog's indexing scheme.
type RecordingID string

// NewRecorder constructs a Recorder rooted at dir. dir is created on
// start if it does not already exist.
func NewRecorder[T any](dir string, opts Options, logger *slog.Logger) *Recorder[T] {
	o := opts.WithDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder[T]{
		dir:     dir,
		opts:    o,
		headers: NewHeaderStore(dir),
		logger:  logger,
		now:     time.Now,
		state:   StateIdle,
	}
}

// ID returns the current recording's identifier. Zero value before the
// first Start.
func (r *Recorder[T]) ID() RecordingID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.id
}

// GetState returns the current state machine state.
func (r *Recorder[T]) GetState() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// GetCurrentTick returns the tick the recorder is currently deriving from
// the wall clock, or 0 outside of Recording.
func (r *Recorder[T]) GetCurrentTick() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentTickLocked()
}

func (r *Recorder[T]) currentTickLocked() int64 {
	if r.state != StateRecording {
		return 0
	}
	elapsed := r.now().Sub(r.startTime) - r.pausedDuration
	tick := elapsed.Milliseconds() * int64(r.opts.TickRate) / 1000
	if tick < 1 {
		tick = 1
	}
	return tick
}

// Start transitions Idle -> Recording, initializing the directory and
// writing the initial metadata.
func (r *Recorder[T]) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateIdle {
		return newStateError("start", r.state)
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return newSegmentError("initializing directory", -1, ErrIO, err)
	}

	codec := CodecByName[T](r.opts.Codec)
	r.store = NewSegmentStore[T](r.dir, codec)
	id, err := ulid.New(ulid.Timestamp(r.now()), ulid.Monotonic(rand.Reader, 0))
	if err != nil {
		return newSegmentError("initializing directory", -1, ErrIO, err)
	}
	r.id = RecordingID(id.String())

	meta := NewHeaderMeta(r.opts.TickRate, r.opts.SegmentSize, codec.Name(), r.now())
	if err := r.headers.WriteMeta(meta); err != nil {
		return err
	}

	r.startTime = r.now()
	r.pausedDuration = 0
	r.segmentIndex = 0
	r.pending = make(map[int64]T)
	r.state = StateRecording

	r.logger.Info("recording started", slog.String("dir", r.dir), slog.Int("tickRate", r.opts.TickRate), slog.Int("segmentSize", r.opts.SegmentSize))
	return nil
}

// Record inserts data for the tick derived from the wall clock,
// overwriting any prior payload recorded within the same tick. Crossing
// into a new segment's tick range flushes the previous segment's pending
// buffer first. If that flush fails, its payloads are merged back into
// pending rather than dropped, so a later flush can retry them alongside
// whatever the new segment has since accumulated.
func (r *Recorder[T]) Record(data T) error {
	r.mu.Lock()
	if r.state != StateRecording {
		state := r.state
		r.mu.Unlock()
		return newStateError("record", state)
	}

	tick := r.currentTickLocked()
	segIdx := SegmentIndex(tick, r.opts.SegmentSize)

	if segIdx == r.segmentIndex {
		r.pending[tick] = data
		r.mu.Unlock()
		return nil
	}

	flushIndex := r.segmentIndex
	flushData := r.pending
	r.pending = make(map[int64]T)
	r.pending[tick] = data
	r.segmentIndex = segIdx
	r.mu.Unlock()

	if err := r.flushSegment(flushIndex, flushData); err != nil {
		r.mu.Lock()
		for t, v := range flushData {
			if _, ok := r.pending[t]; !ok {
				r.pending[t] = v
			}
		}
		r.mu.Unlock()
		return err
	}
	return nil
}

// flushSegment writes data to segment flushIndex. A no-op when data is
// empty, matching the case where no ticks ever landed in that segment's
// range (e.g. recording stopped on the very first tick of a new segment).
func (r *Recorder[T]) flushSegment(index int64, data map[int64]T) error {
	if len(data) == 0 {
		return nil
	}
	return r.store.WriteSegment(index, data)
}

// flushPending checkpoints whatever has accumulated in the segment
// currently being filled, without advancing segmentIndex or clearing
// pending: a later Resume keeps appending to the same in-memory buffer,
// and the next checkpoint (another pause, or the eventual rollover flush)
// rewrites the segment file wholesale with the fuller buffer. Used by
// Pause and Stop, where unlike a mid-recording segment rollover there is
// no next tick already known to belong to a new segment.
func (r *Recorder[T]) flushPending() error {
	r.mu.Lock()
	index := r.segmentIndex
	data := r.pending
	r.mu.Unlock()

	return r.flushSegment(index, data)
}

// Pause transitions Recording -> Paused, flushing the pending segment
// first.
func (r *Recorder[T]) Pause() error {
	r.mu.Lock()
	if r.state != StateRecording {
		state := r.state
		r.mu.Unlock()
		return newStateError("pause", state)
	}
	r.mu.Unlock()

	if err := r.flushPending(); err != nil {
		return err
	}

	r.mu.Lock()
	r.pauseStartTime = r.now()
	r.state = StatePaused
	r.mu.Unlock()
	return nil
}

// Resume transitions Paused -> Recording, folding the elapsed pause into
// pausedDuration.
func (r *Recorder[T]) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StatePaused {
		return newStateError("resume", r.state)
	}
	r.pausedDuration += r.now().Sub(r.pauseStartTime)
	r.state = StateRecording
	return nil
}

// Stop transitions {Recording, Paused} -> Idle, folding any in-progress
// pause, flushing the pending segment synchronously, and returning the
// final metadata.
func (r *Recorder[T]) Stop() (HeaderMeta, error) {
	r.mu.Lock()
	state := r.state
	if state != StateRecording && state != StatePaused {
		r.mu.Unlock()
		return HeaderMeta{}, newStateError("stop", state)
	}
	if state == StatePaused {
		r.pausedDuration += r.now().Sub(r.pauseStartTime)
		r.state = StateRecording
	}
	r.mu.Unlock()

	if err := r.flushPending(); err != nil {
		return HeaderMeta{}, err
	}

	r.mu.Lock()
	totalTicks := r.currentTickLocked()
	totalDuration := r.now().Sub(r.startTime) - r.pausedDuration
	r.state = StateIdle
	r.mu.Unlock()

	meta, err := r.headers.ReadMeta()
	if err != nil {
		return HeaderMeta{}, err
	}
	meta.TotalTicks = totalTicks
	meta.TotalDuration = float64(totalDuration.Milliseconds())

	if err := r.headers.WriteMeta(meta); err != nil {
		return HeaderMeta{}, err
	}

	r.logger.Info("recording stopped", slog.String("dir", r.dir), slog.Int64("totalTicks", meta.TotalTicks), slog.Float64("totalDurationMs", meta.TotalDuration))
	return meta, nil
}

// StoreStats exposes the underlying segment store's bookkeeping, used by
// the control API's /stats endpoint.
func (r *Recorder[T]) StoreStats() SegmentStoreStats {
	r.mu.Lock()
	store := r.store
	r.mu.Unlock()
	if store == nil {
		return SegmentStoreStats{}
	}
	return store.Stats()
}
