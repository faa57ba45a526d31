package controlapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"
	"github.com/jmylchreest/tvarr-replay/internal/replay"
	"github.com/jmylchreest/tvarr-replay/internal/repository"
)

// RangeHandler serves GET /recordings/{id}/range, translating the core
// GetRangeData/RangeChunks contract to an HTTP query.
type RangeHandler struct {
	repo   repository.CatalogRepository
	logger *slog.Logger
}

// NewRangeHandler creates a new range query handler.
func NewRangeHandler(repo repository.CatalogRepository, logger *slog.Logger) *RangeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RangeHandler{repo: repo, logger: logger}
}

// Register registers the range query route with the API.
func (h *RangeHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getRecordingRange",
		Method:      "GET",
		Path:        "/recordings/{id}/range",
		Summary:     "Query a tick range",
		Description: "Returns entries for [startTick, endTick] or [startMs, endMs]; exactly one pair must be given",
		Tags:        []string{"Replay"},
	}, h.Get)
}

// GetRangeInput is the input for a range query. Exactly one of
// (StartTick, EndTick) or (StartMs, EndMs) must be set, per the core
// contract's "exactly one of TimeRange or TickRange" requirement.
type GetRangeInput struct {
	ID                  string `path:"id" doc:"Catalog entry ID (ULID)"`
	StartTick           *int64 `query:"startTick"`
	EndTick             *int64 `query:"endTick"`
	StartMs             *int64 `query:"startMs"`
	EndMs               *int64 `query:"endMs"`
	IncludePartialTicks bool   `query:"includePartialTicks"`
	ChunkSize           int    `query:"chunkSize" doc:"Advisory chunk size; does not change the result, only how it is grouped"`
}

// GetRangeOutput is the output for a range query.
type GetRangeOutput struct {
	Body struct {
		Entries []RangeEntryResponse `json:"entries"`
		Chunks  int                  `json:"chunks"`
	}
}

// Get resolves a tick or time range against the recording and returns
// every entry it touches.
func (h *RangeHandler) Get(ctx context.Context, input *GetRangeInput) (*GetRangeOutput, error) {
	byTick := input.StartTick != nil && input.EndTick != nil
	byTime := input.StartMs != nil && input.EndMs != nil
	if byTick == byTime {
		return nil, huma.Error400BadRequest("exactly one of startTick/endTick or startMs/endMs must be set")
	}

	dir, err := dirForID(ctx, h.repo, input.ID)
	if err != nil {
		return nil, err
	}

	r := replay.NewReplayer[Payload](dir, replay.Options{}.WithDefaults(), replay.Callbacks[Payload]{}, h.logger)
	if err := r.Init(); err != nil {
		return nil, mapReplayErr(err)
	}

	opts := replay.RangeOptions{
		IncludePartialTicks: input.IncludePartialTicks,
		ChunkSize:           input.ChunkSize,
	}
	if byTick {
		opts.TickRange = &replay.TickRange{StartTick: *input.StartTick, EndTick: *input.EndTick}
	} else {
		opts.TimeRange = &replay.TimeRange{StartMs: *input.StartMs, EndMs: *input.EndMs}
	}

	result, err := r.GetRangeData(opts)
	if err != nil {
		return nil, mapReplayErr(err)
	}
	defer result.Close()

	chunks, err := replay.RangeChunks(result, input.ChunkSize)
	if err != nil {
		return nil, huma.Error500InternalServerError("materializing range", err)
	}

	resp := &GetRangeOutput{}
	resp.Body.Chunks = len(chunks)
	for _, chunk := range chunks {
		for _, e := range chunk {
			resp.Body.Entries = append(resp.Body.Entries, rangeEntryResponse(e))
		}
	}
	return resp, nil
}

// RegisterChiRoutes registers a raw-HTTP streaming variant of the range
// query that writes newline-delimited JSON as entries are read off the
// result's iterator, rather than buffering the whole range into a huma
// response body. Huma commits the response body in one write, which
// defeats the point of a memory-bounded diskslice.DiskSlice for a range
// spanning a high-resolution recording, so this route is registered on
// the chi router directly instead of through huma.Register.
func (h *RangeHandler) RegisterChiRoutes(router chi.Router) {
	router.Get("/recordings/{id}/range/stream", h.handleRangeStream)
}

func (h *RangeHandler) handleRangeStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	q := r.URL.Query()

	dir, err := dirForID(ctx, h.repo, id)
	if err != nil {
		writeStreamError(w, err)
		return
	}

	replayer := replay.NewReplayer[Payload](dir, replay.Options{}.WithDefaults(), replay.Callbacks[Payload]{}, h.logger)
	if err := replayer.Init(); err != nil {
		writeStreamError(w, mapReplayErr(err))
		return
	}

	opts := replay.RangeOptions{IncludePartialTicks: q.Get("includePartialTicks") == "true"}
	byTick := q.Get("startTick") != "" && q.Get("endTick") != ""
	byTime := q.Get("startMs") != "" && q.Get("endMs") != ""
	if byTick == byTime {
		http.Error(w, "exactly one of startTick/endTick or startMs/endMs must be set", http.StatusBadRequest)
		return
	}
	if byTick {
		start, _ := strconv.ParseInt(q.Get("startTick"), 10, 64)
		end, _ := strconv.ParseInt(q.Get("endTick"), 10, 64)
		opts.TickRange = &replay.TickRange{StartTick: start, EndTick: end}
	} else {
		start, _ := strconv.ParseInt(q.Get("startMs"), 10, 64)
		end, _ := strconv.ParseInt(q.Get("endMs"), 10, 64)
		opts.TimeRange = &replay.TimeRange{StartMs: start, EndMs: end}
	}

	result, err := replayer.GetRangeData(opts)
	if err != nil {
		writeStreamError(w, mapReplayErr(err))
		return
	}
	defer result.Close()

	it, err := result.NewIterator()
	if err != nil {
		writeStreamError(w, err)
		return
	}
	defer it.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("X-Accel-Buffering", "no")

	rc := http.NewResponseController(w)
	enc := json.NewEncoder(w)
	for item := it.Next(); item != nil; item = it.Next() {
		if err := enc.Encode(rangeEntryResponse(*item)); err != nil {
			return
		}
		rc.Flush()
	}
	if err := it.Err(); err != nil {
		h.logger.Error("range stream iterator failed", slog.Any("error", err))
	}
}

func writeStreamError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if se, ok := err.(huma.StatusError); ok {
		status = se.GetStatus()
	}
	http.Error(w, err.Error(), status)
}
