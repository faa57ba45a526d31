package controlapi

import (
	"log/slog"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"
	"github.com/jmylchreest/tvarr-replay/internal/repository"
)

// API bundles the control-plane handlers and registers them as a unit,
// the way cmd/tvarr-replay/cmd/serve.go wires them
// against the shared huma.API/chi.Mux pair.
type API struct {
	Catalog *CatalogHandler
	Replay  *ReplayHandler
	Range   *RangeHandler
	Stats   *StatsHandler
}

// New builds the full control API surface over a catalog repository and
// recordings root directory.
func New(repo repository.CatalogRepository, rootDir string, logger *slog.Logger) *API {
	replayHandler := NewReplayHandler(repo, logger)
	return &API{
		Catalog: NewCatalogHandler(repo, logger),
		Replay:  replayHandler,
		Range:   NewRangeHandler(repo, logger),
		Stats:   NewStatsHandler(rootDir, replayHandler),
	}
}

// Register registers every huma-declared route with api.
func (a *API) Register(api huma.API) {
	a.Catalog.Register(api)
	a.Replay.Register(api)
	a.Range.Register(api)
	a.Stats.Register(api)
}

// RegisterChiRoutes registers the raw-HTTP routes that huma cannot
// express (streaming range queries).
func (a *API) RegisterChiRoutes(router chi.Router) {
	a.Range.RegisterChiRoutes(router)
}
