// Package controlapi adapts the in-process Recorder/Replayer API to an
// HTTP control plane: VCR-style playback controls, range queries, and
// catalog browsing, wired with chi + huma the way the rest of this
// codebase's HTTP surface is.
package controlapi

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/jmylchreest/tvarr-replay/internal/replay"
)

// Payload is the wire type the control API speaks for tick data: an
// opaque JSON value. The control API never interprets payload bytes,
// so it never needs a concrete T beyond "whatever JSON the recorder
// originally wrote".
type Payload = json.RawMessage

// session pairs a live Replayer with the recording directory it was
// opened against, so multiple independent clients can replay the same
// directory concurrently, each with its own cursor and segment cache.
// Replayer itself assumes no concurrent writer and tolerates concurrent
// readers, which is what makes this safe.
type session struct {
	id       uuid.UUID
	dir      string
	replayer *replay.Replayer[Payload]
}

// sessionManager owns the set of live replay sessions, keyed by UUID so
// independent control-API clients can't interfere with each other's
// seek/play state on the same recording.
type sessionManager struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*session
	logger   *slog.Logger
}

func newSessionManager(logger *slog.Logger) *sessionManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &sessionManager{
		sessions: make(map[uuid.UUID]*session),
		logger:   logger,
	}
}

// open creates and initializes a new session rooted at dir. Init reads
// header.json, so it fails with ErrNotFound if dir isn't a recording.
func (m *sessionManager) open(dir string) (*session, error) {
	r := replay.NewReplayer[Payload](dir, replay.Options{}.WithDefaults(), replay.Callbacks[Payload]{}, m.logger)
	if err := r.Init(); err != nil {
		return nil, err
	}

	s := &session{id: uuid.New(), dir: dir, replayer: r}

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	return s, nil
}

func (m *sessionManager) get(id uuid.UUID) (*session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

func (m *sessionManager) close(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// count reports the number of live sessions, used by the stats endpoint.
func (m *sessionManager) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
