package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmylchreest/tvarr-replay/internal/models"
	"github.com/jmylchreest/tvarr-replay/internal/repository"
)

// JobHandler defines the interface for handling specific job types.
type JobHandler interface {
	// Execute runs the job and returns a result string or error.
	Execute(ctx context.Context, job *models.Job) (string, error)
}

// CatalogReconciler reconciles the catalog database against the recordings
// root directory.
type CatalogReconciler interface {
	Reconcile(ctx context.Context, rootDir string) (scanned int, err error)
}

// CatalogPruner removes catalog entries whose backing directory no longer
// exists on disk.
type CatalogPruner interface {
	PruneStale(ctx context.Context) (pruned int, err error)
}

// CatalogReconcileHandler handles catalog reconciliation jobs: walking the
// recordings root directory and upserting a catalog row for every
// subdirectory with a header.json.
type CatalogReconcileHandler struct {
	catalog CatalogReconciler
	rootDir string
	logger  *slog.Logger
}

// NewCatalogReconcileHandler creates a new handler for catalog
// reconciliation jobs.
func NewCatalogReconcileHandler(catalog CatalogReconciler, rootDir string) *CatalogReconcileHandler {
	return &CatalogReconcileHandler{
		catalog: catalog,
		rootDir: rootDir,
		logger:  slog.Default(),
	}
}

// WithLogger sets the logger.
func (h *CatalogReconcileHandler) WithLogger(logger *slog.Logger) *CatalogReconcileHandler {
	h.logger = logger
	return h
}

// Execute runs a catalog reconciliation job.
func (h *CatalogReconcileHandler) Execute(ctx context.Context, job *models.Job) (string, error) {
	scanned, err := h.catalog.Reconcile(ctx, h.rootDir)
	if err != nil {
		return "", fmt.Errorf("reconciling catalog: %w", err)
	}
	return fmt.Sprintf("reconciled %d recording(s) under %s", scanned, h.rootDir), nil
}

// PruneStaleHandler handles stale-recording pruning jobs: removing catalog
// entries whose backing directory has been deleted.
type PruneStaleHandler struct {
	catalog CatalogPruner
	logger  *slog.Logger
}

// NewPruneStaleHandler creates a new handler for stale-recording pruning jobs.
func NewPruneStaleHandler(catalog CatalogPruner) *PruneStaleHandler {
	return &PruneStaleHandler{
		catalog: catalog,
		logger:  slog.Default(),
	}
}

// WithLogger sets the logger.
func (h *PruneStaleHandler) WithLogger(logger *slog.Logger) *PruneStaleHandler {
	h.logger = logger
	return h
}

// Execute runs a stale-recording pruning job.
func (h *PruneStaleHandler) Execute(ctx context.Context, job *models.Job) (string, error) {
	pruned, err := h.catalog.PruneStale(ctx)
	if err != nil {
		return "", fmt.Errorf("pruning stale catalog entries: %w", err)
	}
	return fmt.Sprintf("pruned %d stale catalog entries", pruned), nil
}

// Executor dispatches jobs to the appropriate handlers.
type Executor struct {
	handlers map[models.JobType]JobHandler
	jobRepo  repository.JobRepository
	logger   *slog.Logger
}

// NewExecutor creates a new job executor.
func NewExecutor(jobRepo repository.JobRepository) *Executor {
	return &Executor{
		handlers: make(map[models.JobType]JobHandler),
		jobRepo:  jobRepo,
		logger:   slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (e *Executor) WithLogger(logger *slog.Logger) *Executor {
	e.logger = logger
	return e
}

// RegisterHandler registers a handler for a job type.
func (e *Executor) RegisterHandler(jobType models.JobType, handler JobHandler) {
	e.handlers[jobType] = handler
}

// Execute runs a job and updates its status.
func (e *Executor) Execute(ctx context.Context, job *models.Job) error {
	handler, ok := e.handlers[job.Type]
	if !ok {
		return fmt.Errorf("no handler registered for job type: %s", job.Type)
	}

	e.logger.Info("executing job",
		slog.String("job_id", job.ID.String()),
		slog.String("type", string(job.Type)),
		slog.String("target", job.TargetName))

	result, err := handler.Execute(ctx, job)

	if err != nil {
		e.logger.Error("job failed",
			slog.String("job_id", job.ID.String()),
			slog.String("type", string(job.Type)),
			slog.Any("error", err))

		job.MarkFailed(err)

		if job.CanRetry() {
			job.ScheduleRetry()
			e.logger.Info("job scheduled for retry",
				slog.String("job_id", job.ID.String()),
				slog.Int("attempt", job.AttemptCount),
				slog.Time("next_run", job.NextRunAt.UTC()))
		}
	} else {
		e.logger.Info("job completed",
			slog.String("job_id", job.ID.String()),
			slog.String("type", string(job.Type)),
			slog.String("result", result))

		job.MarkCompleted(result)
	}

	if err := e.jobRepo.Update(ctx, job); err != nil {
		e.logger.Error("failed to update job status",
			slog.String("job_id", job.ID.String()),
			slog.Any("error", err))
		return fmt.Errorf("updating job status: %w", err)
	}

	if job.IsFinished() {
		e.createHistoryRecord(ctx, job)
	}

	return nil
}

// createHistoryRecord creates a job history record.
func (e *Executor) createHistoryRecord(ctx context.Context, job *models.Job) {
	history := &models.JobHistory{
		JobID:         job.ID,
		Type:          job.Type,
		TargetID:      job.TargetID,
		TargetName:    job.TargetName,
		Status:        job.Status,
		StartedAt:     job.StartedAt,
		CompletedAt:   job.CompletedAt,
		DurationMs:    job.DurationMs,
		AttemptNumber: job.AttemptCount,
		Error:         job.LastError,
		Result:        job.Result,
	}

	if err := e.jobRepo.CreateHistory(ctx, history); err != nil {
		e.logger.Error("failed to create job history",
			slog.String("job_id", job.ID.String()),
			slog.Any("error", err))
	}
}
