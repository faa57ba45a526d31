package controlapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jmylchreest/tvarr-replay/internal/models"
	"github.com/jmylchreest/tvarr-replay/internal/replay"
	"github.com/jmylchreest/tvarr-replay/internal/repository"
)

// CatalogHandler serves the recording-browsing routes: GET /recordings
// and GET /recordings/{id}.
type CatalogHandler struct {
	repo   repository.CatalogRepository
	logger *slog.Logger
}

// NewCatalogHandler creates a new catalog handler.
func NewCatalogHandler(repo repository.CatalogRepository, logger *slog.Logger) *CatalogHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogHandler{repo: repo, logger: logger}
}

// Register registers the catalog routes with the API.
func (h *CatalogHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listRecordings",
		Method:      "GET",
		Path:        "/recordings",
		Summary:     "List recordings",
		Description: "Returns catalog entries, optionally filtered by creation time range",
		Tags:        []string{"Recordings"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID: "getRecording",
		Method:      "GET",
		Path:        "/recordings/{id}",
		Summary:     "Get a recording",
		Description: "Returns a catalog entry, refreshed from its header.json if still present on disk",
		Tags:        []string{"Recordings"},
	}, h.Get)
}

// ListRecordingsInput is the input for listing recordings.
type ListRecordingsInput struct {
	Since time.Time `query:"since" doc:"Only include recordings created at or after this time"`
	Until time.Time `query:"until" doc:"Only include recordings created at or before this time"`
	Limit int       `query:"limit" doc:"Maximum number of recordings to return"`
}

// ListRecordingsOutput is the output for listing recordings.
type ListRecordingsOutput struct {
	Body struct {
		Recordings []RecordingResponse `json:"recordings"`
	}
}

// List returns catalog entries matching the given time range filter.
func (h *CatalogHandler) List(ctx context.Context, input *ListRecordingsInput) (*ListRecordingsOutput, error) {
	entries, err := h.repo.List(ctx, repository.CatalogFilter{
		Since: input.Since,
		Until: input.Until,
		Limit: input.Limit,
	})
	if err != nil {
		return nil, huma.Error500InternalServerError("listing recordings", err)
	}

	resp := &ListRecordingsOutput{}
	resp.Body.Recordings = make([]RecordingResponse, 0, len(entries))
	for _, e := range entries {
		resp.Body.Recordings = append(resp.Body.Recordings, RecordingFromModel(e))
	}
	return resp, nil
}

// GetRecordingInput is the input for getting a recording.
type GetRecordingInput struct {
	ID string `path:"id" doc:"Catalog entry ID (ULID)"`
}

// GetRecordingOutput is the output for getting a recording.
type GetRecordingOutput struct {
	Body RecordingResponse
}

// Get returns a catalog entry by ID, refreshed against header.json on
// disk when it's still readable: the header is authoritative, and the
// catalog row is a cache of it.
func (h *CatalogHandler) Get(ctx context.Context, input *GetRecordingInput) (*GetRecordingOutput, error) {
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid id format", err)
	}

	entry, err := h.repo.GetByID(ctx, id)
	if err != nil {
		return nil, huma.Error500InternalServerError("getting recording", err)
	}
	if entry == nil {
		return nil, huma.Error404NotFound(fmt.Sprintf("recording %s not found", input.ID))
	}

	if meta, err := replay.NewHeaderStore(entry.Dir).ReadMeta(); err == nil {
		entry.TickRate = meta.TickRate
		entry.SegmentSize = meta.SegmentSize
		entry.TotalTicks = meta.TotalTicks
		entry.TotalDuration = meta.TotalDuration
		entry.Codec = meta.Codec
	} else if !errors.Is(err, replay.ErrNotFound) {
		h.logger.Warn("failed to refresh recording header",
			slog.String("dir", entry.Dir), slog.Any("error", err))
	}

	return &GetRecordingOutput{Body: RecordingFromModel(entry)}, nil
}

// dirForID resolves a catalog ID to its recording directory, used by the
// replay and range handlers which operate on directories, not IDs.
func dirForID(ctx context.Context, repo repository.CatalogRepository, rawID string) (string, error) {
	id, err := models.ParseULID(rawID)
	if err != nil {
		return "", huma.Error400BadRequest("invalid id format", err)
	}
	entry, err := repo.GetByID(ctx, id)
	if err != nil {
		return "", huma.Error500InternalServerError("looking up recording", err)
	}
	if entry == nil {
		return "", huma.Error404NotFound(fmt.Sprintf("recording %s not found", rawID))
	}
	return entry.Dir, nil
}
