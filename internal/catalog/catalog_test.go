package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmylchreest/tvarr-replay/internal/models"
	"github.com/jmylchreest/tvarr-replay/internal/replay"
	"github.com/jmylchreest/tvarr-replay/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCatalogRepo implements repository.CatalogRepository in memory.
type fakeCatalogRepo struct {
	byDir map[string]*models.CatalogEntry
}

func newFakeCatalogRepo() *fakeCatalogRepo {
	return &fakeCatalogRepo{byDir: make(map[string]*models.CatalogEntry)}
}

func (f *fakeCatalogRepo) Upsert(ctx context.Context, entry *models.CatalogEntry) error {
	if entry.ID.IsZero() {
		entry.ID = models.NewULID()
	}
	f.byDir[entry.Dir] = entry
	return nil
}

func (f *fakeCatalogRepo) GetByID(ctx context.Context, id models.ULID) (*models.CatalogEntry, error) {
	for _, e := range f.byDir {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, nil
}

func (f *fakeCatalogRepo) GetByDir(ctx context.Context, dir string) (*models.CatalogEntry, error) {
	return f.byDir[dir], nil
}

func (f *fakeCatalogRepo) List(ctx context.Context, filter repository.CatalogFilter) ([]*models.CatalogEntry, error) {
	var out []*models.CatalogEntry
	for _, e := range f.byDir {
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeCatalogRepo) FindByTimeRange(ctx context.Context, since, until time.Time) ([]*models.CatalogEntry, error) {
	return nil, nil
}

func (f *fakeCatalogRepo) Delete(ctx context.Context, id models.ULID) error {
	for dir, e := range f.byDir {
		if e.ID == id {
			delete(f.byDir, dir)
		}
	}
	return nil
}

func (f *fakeCatalogRepo) DeleteByDir(ctx context.Context, dir string) error {
	delete(f.byDir, dir)
	return nil
}

func writeRecording(t *testing.T, dir string, ticks int64) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	meta := replay.NewHeaderMeta(30, 1000, "brotli+json", time.Now())
	meta.TotalTicks = ticks
	meta.TotalDuration = float64(ticks) * 1000 / 30.0
	require.NoError(t, replay.NewHeaderStore(dir).WriteMeta(meta))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "segment_0.dat"), []byte("data"), 0o644))
}

func TestService_Reconcile(t *testing.T) {
	root := t.TempDir()
	writeRecording(t, filepath.Join(root, "session-a"), 5000)
	writeRecording(t, filepath.Join(root, "session-b"), 9000)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty-dir"), 0o755))

	repo := newFakeCatalogRepo()
	svc := NewService(repo)

	scanned, err := svc.Reconcile(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 2, scanned)

	entries, err := svc.List(context.Background(), repository.CatalogFilter{})
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	entry, err := svc.repo.GetByDir(context.Background(), filepath.Join(root, "session-a"))
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, int64(5000), entry.TotalTicks)
	assert.Equal(t, "brotli", entry.Compression)
	assert.Equal(t, "brotli+json", entry.Codec)
}

func TestService_Reconcile_Idempotent(t *testing.T) {
	root := t.TempDir()
	writeRecording(t, filepath.Join(root, "session-a"), 1000)

	repo := newFakeCatalogRepo()
	svc := NewService(repo)

	_, err := svc.Reconcile(context.Background(), root)
	require.NoError(t, err)
	first, err := repo.GetByDir(context.Background(), filepath.Join(root, "session-a"))
	require.NoError(t, err)

	_, err = svc.Reconcile(context.Background(), root)
	require.NoError(t, err)
	second, err := repo.GetByDir(context.Background(), filepath.Join(root, "session-a"))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, repo.byDir, 1)
}

func TestService_PruneStale(t *testing.T) {
	root := t.TempDir()
	keep := filepath.Join(root, "keep")
	gone := filepath.Join(root, "gone")
	writeRecording(t, keep, 100)

	repo := newFakeCatalogRepo()
	repo.byDir[keep] = &models.CatalogEntry{BaseModel: models.BaseModel{ID: models.NewULID()}, Dir: keep}
	repo.byDir[gone] = &models.CatalogEntry{BaseModel: models.BaseModel{ID: models.NewULID()}, Dir: gone}

	svc := NewService(repo)
	pruned, err := svc.PruneStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)

	_, ok := repo.byDir[gone]
	assert.False(t, ok)
	_, ok = repo.byDir[keep]
	assert.True(t, ok)
}

func TestCompressionOf(t *testing.T) {
	assert.Equal(t, "brotli", compressionOf("brotli+json"))
	assert.Equal(t, "xz", compressionOf("xz+json"))
	assert.Equal(t, "none", compressionOf("json"))
}
