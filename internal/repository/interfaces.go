// Package repository defines data access interfaces for tvarr-replay
// entities. All database access goes through these interfaces, enabling
// easy testing and database backend switching.
package repository

import (
	"context"
	"time"

	"github.com/jmylchreest/tvarr-replay/internal/models"
)

// CatalogFilter narrows CatalogRepository.List results.
type CatalogFilter struct {
	// Since/Until filter on CreatedAt, inclusive. Zero values mean unbounded.
	Since time.Time
	Until time.Time
	// Limit caps the number of rows returned. Zero means unlimited.
	Limit int
}

// CatalogRepository defines operations for the recording catalog.
type CatalogRepository interface {
	// Upsert creates or updates a catalog entry keyed by Dir.
	Upsert(ctx context.Context, entry *models.CatalogEntry) error
	// GetByID retrieves a catalog entry by ID.
	GetByID(ctx context.Context, id models.ULID) (*models.CatalogEntry, error)
	// GetByDir retrieves a catalog entry by its recording directory.
	GetByDir(ctx context.Context, dir string) (*models.CatalogEntry, error)
	// List retrieves catalog entries matching filter, newest first.
	List(ctx context.Context, filter CatalogFilter) ([]*models.CatalogEntry, error)
	// FindByTimeRange retrieves entries created within [since, until].
	FindByTimeRange(ctx context.Context, since, until time.Time) ([]*models.CatalogEntry, error)
	// Delete removes a catalog entry by ID.
	Delete(ctx context.Context, id models.ULID) error
	// DeleteByDir removes a catalog entry by its recording directory.
	DeleteByDir(ctx context.Context, dir string) error
}

// JobRepository defines operations for job persistence.
type JobRepository interface {
	// Create creates a new job.
	Create(ctx context.Context, job *models.Job) error
	// GetByID retrieves a job by ID.
	GetByID(ctx context.Context, id models.ULID) (*models.Job, error)
	// GetAll retrieves all jobs.
	GetAll(ctx context.Context) ([]*models.Job, error)
	// GetPending retrieves all pending/scheduled jobs ready for execution.
	GetPending(ctx context.Context) ([]*models.Job, error)
	// GetByStatus retrieves jobs by status.
	GetByStatus(ctx context.Context, status models.JobStatus) ([]*models.Job, error)
	// GetByType retrieves jobs by type.
	GetByType(ctx context.Context, jobType models.JobType) ([]*models.Job, error)
	// GetByTargetID retrieves jobs for a specific target.
	GetByTargetID(ctx context.Context, targetID models.ULID) ([]*models.Job, error)
	// GetRunning retrieves all currently running jobs.
	GetRunning(ctx context.Context) ([]*models.Job, error)
	// Update updates an existing job.
	Update(ctx context.Context, job *models.Job) error
	// Delete deletes a job by ID.
	Delete(ctx context.Context, id models.ULID) error
	// DeleteCompleted deletes completed jobs older than the specified duration.
	DeleteCompleted(ctx context.Context, before time.Time) (int64, error)
	// AcquireJob atomically acquires a pending job for execution (sets status to running).
	// Returns nil if no jobs are available or if another worker acquired it first.
	AcquireJob(ctx context.Context, workerID string) (*models.Job, error)
	// ReleaseJob releases a job lock (used when a worker fails unexpectedly).
	ReleaseJob(ctx context.Context, id models.ULID) error
	// FindDuplicatePending finds an existing pending/scheduled job for the same type and target.
	// Used for deduplication of concurrent job requests.
	FindDuplicatePending(ctx context.Context, jobType models.JobType, targetID models.ULID) (*models.Job, error)
	// CreateHistory creates a job history record.
	CreateHistory(ctx context.Context, history *models.JobHistory) error
	// GetHistory retrieves job history with pagination.
	GetHistory(ctx context.Context, jobType *models.JobType, offset, limit int) ([]*models.JobHistory, int64, error)
	// DeleteHistory deletes history records older than the specified time.
	DeleteHistory(ctx context.Context, before time.Time) (int64, error)
}
