package replay

import (
	"log/slog"
	"sync"
	"time"
)

// Callbacks bundles the observer functions a Replayer drives.
type Callbacks[T any] struct {
	// OnStart is invoked once when Play first transitions out of Idle.
	OnStart func()

	// OnTick is invoked for every delivered tick, in the order described
	// by the ordering guarantees in the design (strictly increasing
	// except for the single out-of-order delivery on seek).
	OnTick func(data T, meta Meta)

	// OnEnd is invoked when the replayer terminates because a payload is
	// missing for the requested tick (end of recording, or a gap).
	OnEnd func()
}

// timerHandle abstracts the single pending timer a Replayer may hold, so
// tests can substitute a deterministic fake clock/timer pair.
type timerHandle interface {
	Stop() bool
}

// Replayer drives tick callbacks at the wall-clock time implied by
// tickRate and speed, exclusively owning the scheduling timer and the
// currentTick cursor.
type Replayer[T any] struct {
	dir     string
	opts    Options
	headers *HeaderStore
	store   *SegmentStore[T]
	cb      Callbacks[T]
	logger  *slog.Logger

	now      func() time.Time
	newTimer func(d time.Duration, f func()) timerHandle

	mu    sync.Mutex
	state State

	meta HeaderMeta

	playStartTime  time.Time
	pausedDuration time.Duration
	pauseStartedAt time.Time

	speed float64

	currentTick    int64
	lastPlayedMeta Meta
	currentSegment int64

	timer timerHandle

	// generation is bumped on every stop/seek so a timer callback firing
	// after a subsequent seek/stop can detect it is stale and no-op; this
	// models "an in-flight segment load/timer is allowed to complete, its
	// result is discarded if it arrives after a subsequent seek".
	generation uint64
}

// realTimer adapts time.AfterFunc to the timerHandle interface.
type realTimer struct{ t *time.Timer }

func (r realTimer) Stop() bool { return r.t.Stop() }

func defaultNewTimer(d time.Duration, f func()) timerHandle {
	return realTimer{t: time.AfterFunc(d, f)}
}

// NewReplayer constructs a Replayer rooted at dir. Call Init before Play.
func NewReplayer[T any](dir string, opts Options, cb Callbacks[T], logger *slog.Logger) *Replayer[T] {
	o := opts.WithDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Replayer[T]{
		dir:      dir,
		opts:     o,
		headers:  NewHeaderStore(dir),
		cb:       cb,
		logger:   logger,
		now:      time.Now,
		newTimer: defaultNewTimer,
		state:    StateIdle,
		speed:    o.Speed,
	}
}

// Init reads header.json and attaches the segment store. Must succeed
// before Play.
func (p *Replayer[T]) Init() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	meta, err := p.headers.ReadMeta()
	if err != nil {
		return err
	}
	p.meta = meta
	if meta.TickRate > 0 {
		p.opts.TickRate = meta.TickRate
	}
	if meta.SegmentSize > 0 {
		p.opts.SegmentSize = meta.SegmentSize
	}
	codec := CodecByName[T](meta.Codec)
	p.store = NewSegmentStore[T](p.dir, codec)
	return nil
}

// GetState returns the current state machine state.
func (p *Replayer[T]) GetState() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// GetCurrentTick returns the tick most recently delivered via OnTick.
func (p *Replayer[T]) GetCurrentTick() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentTick
}

// GetCurrentTime returns the current tick's offset in milliseconds.
func (p *Replayer[T]) GetCurrentTime() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return TickTime(p.currentTick, p.opts.TickRate)
}

// GetSpeed returns the current playback speed multiplier.
func (p *Replayer[T]) GetSpeed() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speed
}

// expectedTick computes the tick the wall clock implies we should be at,
// per the clock model in the design.
func (p *Replayer[T]) expectedTickLocked() int64 {
	elapsedMs := p.now().Sub(p.playStartTime).Milliseconds() - p.pausedDuration.Milliseconds()
	return int64(float64(elapsedMs) * float64(p.opts.TickRate) * p.speed / 1000)
}

// Play transitions {Idle, Paused} -> Playing and starts the scheduling
// loop from currentTick.
func (p *Replayer[T]) Play() error {
	p.mu.Lock()
	if p.state == StateReplaying {
		state := p.state
		p.mu.Unlock()
		return newStateError("play", state)
	}
	firstStart := p.state == StateIdle
	wasPaused := p.state == StatePaused
	if wasPaused {
		p.pausedDuration += p.now().Sub(p.pauseStartedAt)
	}
	if firstStart {
		p.playStartTime = p.now()
		p.pausedDuration = 0
		if p.currentTick == 0 {
			p.currentTick = p.clampTick(1)
		}
	}
	p.state = StateReplaying
	p.generation++
	gen := p.generation
	cb := p.cb.OnStart
	p.mu.Unlock()

	if firstStart && cb != nil {
		cb()
	}

	p.processTickAndScheduleNext(gen)
	return nil
}

// Pause transitions Playing -> Paused, cancelling any pending timer.
func (p *Replayer[T]) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateReplaying {
		return newStateError("pause", p.state)
	}
	p.cancelTimerLocked()
	p.pauseStartedAt = p.now()
	p.state = StatePaused
	return nil
}

// Resume transitions Paused -> Playing, resuming the scheduling loop.
func (p *Replayer[T]) Resume() error {
	return p.Play()
}

// Stop transitions {Playing, Paused} -> Idle, cancelling any pending
// timer. An in-flight segment load is allowed to complete; its result is
// discarded since the generation counter has advanced.
func (p *Replayer[T]) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateReplaying && p.state != StatePaused {
		return newStateError("stop", p.state)
	}
	p.cancelTimerLocked()
	p.generation++
	p.state = StateIdle
	return nil
}

func (p *Replayer[T]) cancelTimerLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

// clampTick clamps t to [0, totalTicks-1], the valid tick domain. The
// recorder sets totalTicks to the tick it had reached when it stopped, so
// a payload recorded on that very tick lies outside this domain. A
// recording with no ticks at all (totalTicks == 0) has no valid tick and
// clamps to 0, which fetchTick then reports as not found.
func (p *Replayer[T]) clampTick(t int64) int64 {
	if p.meta.TotalTicks < 1 {
		return 0
	}
	if t < 0 {
		return 0
	}
	if t > p.meta.TotalTicks-1 {
		return p.meta.TotalTicks - 1
	}
	return t
}

// Seek clamps tick, stops any active timer, loads the containing segment,
// and delivers exactly one OnTick for the new position without entering
// Playing. playStartTime is left untouched, so a subsequent Play treats
// the seek as instantaneous.
func (p *Replayer[T]) Seek(tick int64) error {
	p.mu.Lock()
	p.cancelTimerLocked()
	p.generation++
	target := p.clampTick(tick)
	p.currentTick = target
	p.mu.Unlock()

	payload, meta, err := p.fetchTick(target)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.lastPlayedMeta = meta
	p.updateSegmentWindowLocked(meta.SegmentIndex)
	cb := p.cb.OnTick
	p.mu.Unlock()

	if cb != nil {
		cb(payload, meta)
	}
	return nil
}

// SeekToTime converts ms to a tick and seeks to it.
func (p *Replayer[T]) SeekToTime(ms int64) error {
	p.mu.Lock()
	rate := p.opts.TickRate
	p.mu.Unlock()
	return p.Seek(TimeToTick(ms, rate))
}

// StepForward seeks n ticks ahead of currentTick (default n=1).
func (p *Replayer[T]) StepForward(n int64) error {
	if n <= 0 {
		n = 1
	}
	return p.Seek(p.GetCurrentTick() + n)
}

// StepBackward seeks n ticks behind currentTick (default n=1), clamped
// to 0.
func (p *Replayer[T]) StepBackward(n int64) error {
	if n <= 0 {
		n = 1
	}
	target := p.GetCurrentTick() - n
	if target < 0 {
		target = 0
	}
	return p.Seek(target)
}

// SetSpeed clamps x to [MinSpeed, MaxSpeed] and, if a timer is pending,
// cancels and reschedules it using the new speed. Requires Playing.
func (p *Replayer[T]) SetSpeed(x float64) error {
	p.mu.Lock()
	if p.state != StateReplaying {
		state := p.state
		p.mu.Unlock()
		return newStateError("setSpeed", state)
	}
	p.speed = ClampSpeed(x)
	hadTimer := p.timer != nil
	p.cancelTimerLocked()
	gen := p.generation
	lastMeta := p.lastPlayedMeta
	p.mu.Unlock()

	if hadTimer {
		p.scheduleFrom(gen, lastMeta)
	}
	return nil
}

// fetchTick loads the payload for tick, returning ErrNotFound wrapped if
// the segment file is absent or the tick is missing within it.
func (p *Replayer[T]) fetchTick(tick int64) (T, Meta, error) {
	var zero T
	p.mu.Lock()
	rate, size := p.opts.TickRate, p.opts.SegmentSize
	p.mu.Unlock()

	meta := NewMeta(tick, rate, size)
	seg, err := p.store.LoadSegment(meta.SegmentIndex)
	if err != nil {
		return zero, meta, err
	}
	payload, ok := seg.Data[tick]
	if !ok {
		return zero, meta, newSegmentError("fetching tick", meta.SegmentIndex, ErrNotFound, nil)
	}
	return payload, meta, nil
}

// updateSegmentWindowLocked evicts cached segments that fall outside the
// new window. Eviction runs off the goroutine driving playback so a slow
// cache sweep never delays tick delivery; this is the one place that
// departs from the otherwise single-goroutine cooperative scheduling
// model, and it's safe only because the segment store guards its own
// cache with its own mutex.
func (p *Replayer[T]) updateSegmentWindowLocked(segIndex int64) {
	if segIndex == p.currentSegment {
		return
	}
	p.currentSegment = segIndex
	store := p.store
	window := p.opts.CacheWindow
	go func() {
		store.EvictFarFrom(segIndex, window)
	}()
}

// processTickAndScheduleNext implements the scheduling algorithm: fetch,
// deliver, drift-correct, then either tail-call synchronously (the <4ms
// fast path) or arm a single-shot timer.
func (p *Replayer[T]) processTickAndScheduleNext(gen uint64) {
	for {
		p.mu.Lock()
		if p.generation != gen || p.state != StateReplaying {
			p.mu.Unlock()
			return
		}
		tick := p.currentTick
		p.mu.Unlock()

		payload, meta, err := p.fetchTick(tick)
		if err != nil {
			p.mu.Lock()
			if p.generation == gen {
				p.state = StateIdle
			}
			onEnd := p.cb.OnEnd
			p.mu.Unlock()
			if onEnd != nil {
				onEnd()
			}
			return
		}

		p.mu.Lock()
		if p.generation != gen {
			p.mu.Unlock()
			return
		}
		p.lastPlayedMeta = meta
		p.updateSegmentWindowLocked(meta.SegmentIndex)
		onTick := p.cb.OnTick
		p.mu.Unlock()

		if onTick != nil {
			onTick(payload, meta)
		}

		p.mu.Lock()
		if p.generation != gen || p.state != StateReplaying {
			p.mu.Unlock()
			return
		}
		// Drift correction: if the wall clock has raced ahead of
		// currentTick, jump forward to catch up before scheduling the
		// next tick. This reuses the fetch-and-deliver step the same way
		// an explicit Seek does, loading whatever segment the jump lands
		// in.
		expected := p.expectedTickLocked()
		if expected > p.currentTick {
			target := p.clampTick(expected)
			p.currentTick = target
			p.mu.Unlock()

			payload, meta, err := p.fetchTick(target)
			if err != nil {
				p.mu.Lock()
				if p.generation == gen {
					p.state = StateIdle
				}
				onEnd := p.cb.OnEnd
				p.mu.Unlock()
				if onEnd != nil {
					onEnd()
				}
				return
			}
			p.mu.Lock()
			if p.generation != gen {
				p.mu.Unlock()
				return
			}
			p.lastPlayedMeta = meta
			p.updateSegmentWindowLocked(meta.SegmentIndex)
			onTick := p.cb.OnTick
			p.mu.Unlock()

			if onTick != nil {
				onTick(payload, meta)
			}
		} else {
			p.mu.Unlock()
		}

		p.mu.Lock()
		speed := p.speed
		last := p.lastPlayedMeta
		rate := p.opts.TickRate
		p.mu.Unlock()

		delay := p.delayUntilNextTick(last, rate, speed)

		if delay < FastPathThreshold {
			p.mu.Lock()
			if p.generation != gen || p.state != StateReplaying {
				p.mu.Unlock()
				return
			}
			p.currentTick++
			p.mu.Unlock()
			continue
		}

		p.scheduleFrom(gen, last)
		return
	}
}

// delayUntilNextTick computes how long to wait before the tick following
// last should be delivered, given the wall clock elapsed since
// playStartTime net of any paused time, scaled by speed. Negative results
// (the wall clock already passed the next tick's time) clamp to zero;
// the caller either takes the synchronous fast path or arms a timer.
func (p *Replayer[T]) delayUntilNextTick(last Meta, rate int, speed float64) time.Duration {
	elapsedMs := float64(p.now().Sub(p.playStartTime).Milliseconds() - p.pausedDuration.Milliseconds())
	nextTickTimeMs := float64(last.TimeMs) + 1000.0/float64(rate)
	delayMs := (nextTickTimeMs - elapsedMs) / speed
	if delayMs < 0 {
		delayMs = 0
	}
	return time.Duration(delayMs * float64(time.Millisecond))
}

// scheduleFrom arms a single-shot timer computed from lastMeta and the
// current speed, firing processTickAndScheduleNext after incrementing
// currentTick.
func (p *Replayer[T]) scheduleFrom(gen uint64, lastMeta Meta) {
	p.mu.Lock()
	if p.generation != gen || p.state != StateReplaying {
		p.mu.Unlock()
		return
	}
	speed := p.speed
	rate := p.opts.TickRate
	delay := p.delayUntilNextTick(lastMeta, rate, speed)

	p.timer = p.newTimer(delay, func() {
		p.mu.Lock()
		if p.generation != gen || p.state != StateReplaying {
			p.mu.Unlock()
			return
		}
		p.currentTick++
		p.timer = nil
		p.mu.Unlock()
		p.processTickAndScheduleNext(gen)
	})
	p.mu.Unlock()
}
