package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmylchreest/tvarr-replay/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// catalogRepo implements CatalogRepository using GORM.
type catalogRepo struct {
	db *gorm.DB
}

// NewCatalogRepository creates a new CatalogRepository.
func NewCatalogRepository(db *gorm.DB) *catalogRepo {
	return &catalogRepo{db: db}
}

// Upsert creates or updates a catalog entry keyed by Dir.
func (r *catalogRepo) Upsert(ctx context.Context, entry *models.CatalogEntry) error {
	if entry.ID.IsZero() {
		entry.ID = models.NewULID()
	}
	now := models.Now()
	entry.LastScannedAt = &now

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "dir"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"tick_rate", "segment_size", "total_ticks", "total_duration",
				"codec", "compression", "size_bytes", "last_scanned_at", "updated_at",
			}),
		}).
		Create(entry).Error
	if err != nil {
		return fmt.Errorf("upserting catalog entry: %w", err)
	}
	return nil
}

// GetByID retrieves a catalog entry by ID.
func (r *catalogRepo) GetByID(ctx context.Context, id models.ULID) (*models.CatalogEntry, error) {
	var entry models.CatalogEntry
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&entry).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting catalog entry by ID: %w", err)
	}
	return &entry, nil
}

// GetByDir retrieves a catalog entry by its recording directory.
func (r *catalogRepo) GetByDir(ctx context.Context, dir string) (*models.CatalogEntry, error) {
	var entry models.CatalogEntry
	if err := r.db.WithContext(ctx).Where("dir = ?", dir).First(&entry).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting catalog entry by dir: %w", err)
	}
	return &entry, nil
}

// List retrieves catalog entries matching filter, newest first.
func (r *catalogRepo) List(ctx context.Context, filter CatalogFilter) ([]*models.CatalogEntry, error) {
	query := r.db.WithContext(ctx).Order("created_at DESC")

	if !filter.Since.IsZero() {
		query = query.Where("created_at >= ?", filter.Since)
	}
	if !filter.Until.IsZero() {
		query = query.Where("created_at <= ?", filter.Until)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var entries []*models.CatalogEntry
	if err := query.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("listing catalog entries: %w", err)
	}
	return entries, nil
}

// FindByTimeRange retrieves entries created within [since, until].
func (r *catalogRepo) FindByTimeRange(ctx context.Context, since, until time.Time) ([]*models.CatalogEntry, error) {
	return r.List(ctx, CatalogFilter{Since: since, Until: until})
}

// Delete removes a catalog entry by ID.
func (r *catalogRepo) Delete(ctx context.Context, id models.ULID) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.CatalogEntry{}).Error; err != nil {
		return fmt.Errorf("deleting catalog entry: %w", err)
	}
	return nil
}

// DeleteByDir removes a catalog entry by its recording directory.
func (r *catalogRepo) DeleteByDir(ctx context.Context, dir string) error {
	if err := r.db.WithContext(ctx).Where("dir = ?", dir).Delete(&models.CatalogEntry{}).Error; err != nil {
		return fmt.Errorf("deleting catalog entry by dir: %w", err)
	}
	return nil
}
