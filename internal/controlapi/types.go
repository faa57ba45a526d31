package controlapi

import (
	"time"

	"github.com/jmylchreest/tvarr-replay/internal/models"
	"github.com/jmylchreest/tvarr-replay/internal/replay"
)

// RecordingResponse is the catalog-facing view of a recording: the
// indexed CatalogEntry row, optionally refreshed from a live
// header.json read (GET /recordings/{id} merges the two).
type RecordingResponse struct {
	ID            string  `json:"id"`
	Dir           string  `json:"dir"`
	CreatedAt     string  `json:"createdAt"`
	TickRate      int     `json:"tickRate"`
	SegmentSize   int     `json:"segmentSize"`
	TotalTicks    int64   `json:"totalTicks"`
	TotalDuration float64 `json:"totalDuration"`
	Codec         string  `json:"codec"`
	Compression   string  `json:"compression"`
	SizeBytes     int64   `json:"sizeBytes"`
	LastScannedAt *string `json:"lastScannedAt,omitempty"`
}

// RecordingFromModel converts a catalog entry to its API representation.
func RecordingFromModel(e *models.CatalogEntry) RecordingResponse {
	resp := RecordingResponse{
		ID:            e.ID.String(),
		Dir:           e.Dir,
		CreatedAt:     time.Time(e.CreatedAt).UTC().Format(time.RFC3339),
		TickRate:      e.TickRate,
		SegmentSize:   e.SegmentSize,
		TotalTicks:    e.TotalTicks,
		TotalDuration: e.TotalDuration,
		Codec:         e.Codec,
		Compression:   e.Compression,
		SizeBytes:     e.SizeBytes,
	}
	if e.LastScannedAt != nil {
		s := time.Time(*e.LastScannedAt).UTC().Format(time.RFC3339)
		resp.LastScannedAt = &s
	}
	return resp
}

// ReplayStateResponse reports a session's current playback position,
// matching what GET /recordings/{id}/replay/state exposes.
type ReplayStateResponse struct {
	SessionID     string  `json:"sessionId"`
	State         string  `json:"state"`
	CurrentTick   int64   `json:"currentTick"`
	CurrentTimeMs int64   `json:"currentTimeMs"`
	Speed         float64 `json:"speed"`
}

func stateResponse(s *session) ReplayStateResponse {
	return ReplayStateResponse{
		SessionID:     s.id.String(),
		State:         string(s.replayer.GetState()),
		CurrentTick:   s.replayer.GetCurrentTick(),
		CurrentTimeMs: s.replayer.GetCurrentTime(),
		Speed:         s.replayer.GetSpeed(),
	}
}

// RangeEntryResponse is one tick of a range-query result.
type RangeEntryResponse struct {
	Tick    int64   `json:"tick"`
	TimeMs  int64   `json:"timeMs"`
	Present bool    `json:"present"`
	Data    Payload `json:"data,omitempty"`
}

func rangeEntryResponse(e replay.Entry[Payload]) RangeEntryResponse {
	return RangeEntryResponse{
		Tick:    e.Meta.Tick,
		TimeMs:  e.Meta.TimeMs,
		Present: e.Present,
		Data:    e.Data,
	}
}
