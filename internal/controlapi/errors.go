package controlapi

import (
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jmylchreest/tvarr-replay/internal/replay"
)

// mapReplayErr translates a core replay package sentinel error into the
// HTTP status the house error-handling style assigns it: InvalidState ->
// 409, InvalidArgs -> 400, NotFound -> 404, everything else (IoError,
// CorruptError) -> 500.
func mapReplayErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, replay.ErrInvalidState):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, replay.ErrInvalidArgs):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, replay.ErrNotFound):
		return huma.Error404NotFound(err.Error())
	default:
		return huma.Error500InternalServerError(err.Error())
	}
}
