package controlapi

import (
	"context"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"
	"github.com/jmylchreest/tvarr-replay/internal/repository"
)

// ReplayHandler serves the VCR control routes: play/pause/resume/stop,
// seek, speed, and state, each scoped to a session so concurrent
// clients replaying the same recording don't interfere with each
// other's cursor.
type ReplayHandler struct {
	repo     repository.CatalogRepository
	sessions *sessionManager
	logger   *slog.Logger
}

// NewReplayHandler creates a new replay control handler.
func NewReplayHandler(repo repository.CatalogRepository, logger *slog.Logger) *ReplayHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReplayHandler{
		repo:     repo,
		sessions: newSessionManager(logger),
		logger:   logger,
	}
}

// Register registers the replay control routes with the API.
func (h *ReplayHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "playRecording",
		Method:      "POST",
		Path:        "/recordings/{id}/replay/play",
		Summary:     "Start or resume playback",
		Description: "Opens a new session (if sessionId is omitted) and starts playback from the current cursor",
		Tags:        []string{"Replay"},
	}, h.Play)

	huma.Register(api, huma.Operation{
		OperationID: "pauseRecording",
		Method:      "POST",
		Path:        "/recordings/{id}/replay/pause",
		Summary:     "Pause playback",
		Tags:        []string{"Replay"},
	}, h.Pause)

	huma.Register(api, huma.Operation{
		OperationID: "resumeRecording",
		Method:      "POST",
		Path:        "/recordings/{id}/replay/resume",
		Summary:     "Resume playback",
		Tags:        []string{"Replay"},
	}, h.Resume)

	huma.Register(api, huma.Operation{
		OperationID: "stopRecording",
		Method:      "POST",
		Path:        "/recordings/{id}/replay/stop",
		Summary:     "Stop playback and close the session",
		Tags:        []string{"Replay"},
	}, h.Stop)

	huma.Register(api, huma.Operation{
		OperationID: "seekRecording",
		Method:      "POST",
		Path:        "/recordings/{id}/replay/seek",
		Summary:     "Seek to a tick",
		Tags:        []string{"Replay"},
	}, h.Seek)

	huma.Register(api, huma.Operation{
		OperationID: "seekRecordingToTime",
		Method:      "POST",
		Path:        "/recordings/{id}/replay/seekToTime",
		Summary:     "Seek to a millisecond offset",
		Tags:        []string{"Replay"},
	}, h.SeekToTime)

	huma.Register(api, huma.Operation{
		OperationID: "setRecordingSpeed",
		Method:      "POST",
		Path:        "/recordings/{id}/replay/speed",
		Summary:     "Set playback speed",
		Tags:        []string{"Replay"},
	}, h.SetSpeed)

	huma.Register(api, huma.Operation{
		OperationID: "getRecordingReplayState",
		Method:      "GET",
		Path:        "/recordings/{id}/replay/state",
		Summary:     "Get current playback state",
		Tags:        []string{"Replay"},
	}, h.State)
}

// resolveSession looks up an existing session by sessionID, or opens a
// new one against the recording's directory when sessionID is empty.
func (h *ReplayHandler) resolveSession(ctx context.Context, recordingID, sessionID string) (*session, error) {
	if sessionID != "" {
		id, err := uuid.Parse(sessionID)
		if err != nil {
			return nil, huma.Error400BadRequest("invalid session id", err)
		}
		s, ok := h.sessions.get(id)
		if !ok {
			return nil, huma.Error404NotFound("session not found")
		}
		return s, nil
	}

	dir, err := dirForID(ctx, h.repo, recordingID)
	if err != nil {
		return nil, err
	}
	s, err := h.sessions.open(dir)
	if err != nil {
		return nil, mapReplayErr(err)
	}
	return s, nil
}

// PlayInput is the input for starting or resuming playback.
type PlayInput struct {
	ID        string `path:"id" doc:"Catalog entry ID (ULID)"`
	SessionID string `query:"sessionId" doc:"Existing session to resume; a new session opens if omitted"`
}

// PlayOutput is the output for a playback control call.
type PlayOutput struct {
	Body ReplayStateResponse
}

// Play starts or resumes playback on a session.
func (h *ReplayHandler) Play(ctx context.Context, input *PlayInput) (*PlayOutput, error) {
	s, err := h.resolveSession(ctx, input.ID, input.SessionID)
	if err != nil {
		return nil, err
	}
	if err := s.replayer.Play(); err != nil {
		return nil, mapReplayErr(err)
	}
	return &PlayOutput{Body: stateResponse(s)}, nil
}

// PauseInput is the input for pausing playback.
type PauseInput struct {
	ID        string `path:"id" doc:"Catalog entry ID (ULID)"`
	SessionID string `query:"sessionId" required:"true" doc:"Session to pause"`
}

// PauseOutput is the output for pausing playback.
type PauseOutput struct {
	Body ReplayStateResponse
}

// Pause pauses an active session.
func (h *ReplayHandler) Pause(ctx context.Context, input *PauseInput) (*PauseOutput, error) {
	s, err := h.resolveSession(ctx, input.ID, input.SessionID)
	if err != nil {
		return nil, err
	}
	if err := s.replayer.Pause(); err != nil {
		return nil, mapReplayErr(err)
	}
	return &PauseOutput{Body: stateResponse(s)}, nil
}

// ResumeInput is the input for resuming playback.
type ResumeInput struct {
	ID        string `path:"id" doc:"Catalog entry ID (ULID)"`
	SessionID string `query:"sessionId" required:"true" doc:"Session to resume"`
}

// ResumeOutput is the output for resuming playback.
type ResumeOutput struct {
	Body ReplayStateResponse
}

// Resume resumes a paused session.
func (h *ReplayHandler) Resume(ctx context.Context, input *ResumeInput) (*ResumeOutput, error) {
	s, err := h.resolveSession(ctx, input.ID, input.SessionID)
	if err != nil {
		return nil, err
	}
	if err := s.replayer.Resume(); err != nil {
		return nil, mapReplayErr(err)
	}
	return &ResumeOutput{Body: stateResponse(s)}, nil
}

// StopInput is the input for stopping playback.
type StopInput struct {
	ID        string `path:"id" doc:"Catalog entry ID (ULID)"`
	SessionID string `query:"sessionId" required:"true" doc:"Session to stop and close"`
}

// StopOutput is the output for stopping playback.
type StopOutput struct {
	Body ReplayStateResponse
}

// Stop stops a session and releases it, freeing its segment cache.
func (h *ReplayHandler) Stop(ctx context.Context, input *StopInput) (*StopOutput, error) {
	s, err := h.resolveSession(ctx, input.ID, input.SessionID)
	if err != nil {
		return nil, err
	}
	if err := s.replayer.Stop(); err != nil {
		return nil, mapReplayErr(err)
	}
	resp := stateResponse(s)
	h.sessions.close(s.id)
	return &StopOutput{Body: resp}, nil
}

// SeekInput is the input for seeking to a tick.
type SeekInput struct {
	ID        string `path:"id" doc:"Catalog entry ID (ULID)"`
	SessionID string `query:"sessionId" doc:"Existing session to seek; a new session opens if omitted"`
	Body      struct {
		Tick int64 `json:"tick" doc:"Target tick index"`
	}
}

// SeekOutput is the output for a seek call.
type SeekOutput struct {
	Body ReplayStateResponse
}

// Seek jumps a session to an absolute tick.
func (h *ReplayHandler) Seek(ctx context.Context, input *SeekInput) (*SeekOutput, error) {
	s, err := h.resolveSession(ctx, input.ID, input.SessionID)
	if err != nil {
		return nil, err
	}
	if err := s.replayer.Seek(input.Body.Tick); err != nil {
		return nil, mapReplayErr(err)
	}
	return &SeekOutput{Body: stateResponse(s)}, nil
}

// SeekToTimeInput is the input for seeking to a millisecond offset.
type SeekToTimeInput struct {
	ID        string `path:"id" doc:"Catalog entry ID (ULID)"`
	SessionID string `query:"sessionId" doc:"Existing session to seek; a new session opens if omitted"`
	Body      struct {
		TimeMs int64 `json:"timeMs" doc:"Target offset in milliseconds"`
	}
}

// SeekToTimeOutput is the output for a seekToTime call.
type SeekToTimeOutput struct {
	Body ReplayStateResponse
}

// SeekToTime jumps a session to the tick nearest a millisecond offset.
func (h *ReplayHandler) SeekToTime(ctx context.Context, input *SeekToTimeInput) (*SeekToTimeOutput, error) {
	s, err := h.resolveSession(ctx, input.ID, input.SessionID)
	if err != nil {
		return nil, err
	}
	if err := s.replayer.SeekToTime(input.Body.TimeMs); err != nil {
		return nil, mapReplayErr(err)
	}
	return &SeekToTimeOutput{Body: stateResponse(s)}, nil
}

// SetSpeedInput is the input for changing playback speed.
type SetSpeedInput struct {
	ID        string `path:"id" doc:"Catalog entry ID (ULID)"`
	SessionID string `query:"sessionId" required:"true" doc:"Session to retarget"`
	Body      struct {
		Speed float64 `json:"speed" doc:"Playback speed multiplier"`
	}
}

// SetSpeedOutput is the output for a speed change.
type SetSpeedOutput struct {
	Body ReplayStateResponse
}

// SetSpeed changes a session's playback speed multiplier.
func (h *ReplayHandler) SetSpeed(ctx context.Context, input *SetSpeedInput) (*SetSpeedOutput, error) {
	s, err := h.resolveSession(ctx, input.ID, input.SessionID)
	if err != nil {
		return nil, err
	}
	if err := s.replayer.SetSpeed(input.Body.Speed); err != nil {
		return nil, mapReplayErr(err)
	}
	return &SetSpeedOutput{Body: stateResponse(s)}, nil
}

// StateInput is the input for reading playback state.
type StateInput struct {
	ID        string `path:"id" doc:"Catalog entry ID (ULID)"`
	SessionID string `query:"sessionId" required:"true" doc:"Session to inspect"`
}

// StateOutput is the output for reading playback state.
type StateOutput struct {
	Body ReplayStateResponse
}

// State reports a session's current tick, time, speed, and state.
func (h *ReplayHandler) State(ctx context.Context, input *StateInput) (*StateOutput, error) {
	s, err := h.resolveSession(ctx, input.ID, input.SessionID)
	if err != nil {
		return nil, err
	}
	return &StateOutput{Body: stateResponse(s)}, nil
}

// SessionCount exposes the number of live sessions for the stats handler.
func (h *ReplayHandler) SessionCount() int {
	return h.sessions.count()
}
