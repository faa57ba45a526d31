// Package catalog indexes recording directories into a searchable
// database, so recordings can be listed and filtered without walking the
// filesystem on every request.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmylchreest/tvarr-replay/internal/models"
	"github.com/jmylchreest/tvarr-replay/internal/replay"
	"github.com/jmylchreest/tvarr-replay/internal/repository"
)

// Service reconciles the catalog database against a recordings root
// directory on disk.
type Service struct {
	repo   repository.CatalogRepository
	logger *slog.Logger
}

// NewService creates a new catalog Service.
func NewService(repo repository.CatalogRepository) *Service {
	return &Service{repo: repo, logger: slog.Default()}
}

// WithLogger sets a custom logger.
func (s *Service) WithLogger(logger *slog.Logger) *Service {
	s.logger = logger
	return s
}

// Reconcile walks rootDir's immediate subdirectories, and for every one
// carrying a header.json, upserts a catalog entry built from it. It
// returns the number of recordings scanned. Subdirectories without a
// header.json are skipped; a header.json that fails to parse logs a
// warning and is skipped rather than aborting the whole walk.
func (s *Service) Reconcile(ctx context.Context, rootDir string) (int, error) {
	entries, err := os.ReadDir(rootDir)
	if err != nil {
		return 0, fmt.Errorf("reading recordings root %s: %w", rootDir, err)
	}

	scanned := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(rootDir, e.Name())

		meta, err := replay.NewHeaderStore(dir).ReadMeta()
		if err != nil {
			if errors.Is(err, replay.ErrNotFound) {
				continue
			}
			s.logger.Warn("skipping recording with unreadable header",
				slog.String("dir", dir), slog.Any("error", err))
			continue
		}

		size, err := dirSize(dir)
		if err != nil {
			s.logger.Warn("failed to compute recording size",
				slog.String("dir", dir), slog.Any("error", err))
		}

		entry := &models.CatalogEntry{
			Dir:           dir,
			TickRate:      meta.TickRate,
			SegmentSize:   meta.SegmentSize,
			TotalTicks:    meta.TotalTicks,
			TotalDuration: meta.TotalDuration,
			Codec:         meta.Codec,
			Compression:   compressionOf(meta.Codec),
			SizeBytes:     size,
		}

		if existing, err := s.repo.GetByDir(ctx, dir); err == nil && existing != nil {
			entry.ID = existing.ID
		}

		if err := s.repo.Upsert(ctx, entry); err != nil {
			return scanned, fmt.Errorf("upserting catalog entry for %s: %w", dir, err)
		}
		scanned++
	}

	s.logger.Info("catalog reconciliation complete",
		slog.String("root_dir", rootDir), slog.Int("scanned", scanned))
	return scanned, nil
}

// PruneStale removes catalog entries whose backing directory no longer
// exists on disk, returning the number of rows removed.
func (s *Service) PruneStale(ctx context.Context) (int, error) {
	rows, err := s.repo.List(ctx, repository.CatalogFilter{})
	if err != nil {
		return 0, fmt.Errorf("listing catalog entries: %w", err)
	}

	pruned := 0
	for _, row := range rows {
		if _, err := os.Stat(row.Dir); os.IsNotExist(err) {
			if err := s.repo.Delete(ctx, row.ID); err != nil {
				return pruned, fmt.Errorf("deleting stale catalog entry %s: %w", row.Dir, err)
			}
			pruned++
		}
	}

	s.logger.Info("stale catalog entries pruned", slog.Int("pruned", pruned))
	return pruned, nil
}

// Get retrieves a single catalog entry by ID.
func (s *Service) Get(ctx context.Context, id models.ULID) (*models.CatalogEntry, error) {
	return s.repo.GetByID(ctx, id)
}

// List retrieves catalog entries matching filter.
func (s *Service) List(ctx context.Context, filter repository.CatalogFilter) ([]*models.CatalogEntry, error) {
	return s.repo.List(ctx, filter)
}

// compressionOf derives the compression scheme name from a codec name
// such as "brotli+json" or "xz+json". Codecs with no "+" separator (e.g.
// bare "json") are uncompressed.
func compressionOf(codec string) string {
	if before, _, ok := strings.Cut(codec, "+"); ok {
		return before
	}
	return "none"
}

// dirSize sums the size of all regular files directly inside dir.
func dirSize(dir string) (int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		total += info.Size()
	}
	return total, nil
}
