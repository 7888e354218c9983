package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kaiwen/pricewatch/internal/domain"
	"github.com/kaiwen/pricewatch/internal/keepa"
	"github.com/kaiwen/pricewatch/internal/logger"
	"github.com/kaiwen/pricewatch/internal/repository"
)

// ProductLookup is the external lookup collaborator. keepa.Client implements
// it; tests substitute fakes.
type ProductLookup interface {
	Lookup(ctx context.Context, upc string) (*keepa.Result, error)
	Ping(ctx context.Context) error
}

// JobServiceConfig holds orchestration tuning.
type JobServiceConfig struct {
	BatchSize     int
	Workers       int
	LookupTimeout time.Duration
}

// JobService orchestrates batch jobs: creation, triggering, the worker
// pool, progress aggregation, and stop control. It is the single writer of
// job-level aggregate fields; per-job locks serialize recomputation while
// batches complete concurrently.
type JobService struct {
	jobRepo   *repository.JobRepository
	batchRepo *repository.BatchRepository
	alertRepo *repository.AlertRepository
	lookup    ProductLookup
	analyzer  *PriceAnalyzer
	notifier  Notifier
	reporter  *ReportService

	batchSize     int
	workers       int
	lookupTimeout time.Duration

	mu       sync.Mutex
	cancels  map[string]context.CancelFunc
	jobLocks map[string]*sync.Mutex
}

// NewJobService creates a new job orchestrator. notifier and reporter are
// optional; pass nil to disable completion side effects.
func NewJobService(
	jobRepo *repository.JobRepository,
	batchRepo *repository.BatchRepository,
	alertRepo *repository.AlertRepository,
	lookup ProductLookup,
	analyzer *PriceAnalyzer,
	notifier Notifier,
	reporter *ReportService,
	cfg *JobServiceConfig,
) *JobService {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	lookupTimeout := cfg.LookupTimeout
	if lookupTimeout <= 0 {
		lookupTimeout = 30 * time.Second
	}

	return &JobService{
		jobRepo:       jobRepo,
		batchRepo:     batchRepo,
		alertRepo:     alertRepo,
		lookup:        lookup,
		analyzer:      analyzer,
		notifier:      notifier,
		reporter:      reporter,
		batchSize:     batchSize,
		workers:       workers,
		lookupTimeout: lookupTimeout,
		cancels:       make(map[string]context.CancelFunc),
		jobLocks:      make(map[string]*sync.Mutex),
	}
}

func newID() string {
	return uuid.New().String()
}

// CreateJob partitions the UPC snapshot and persists the job, its batches,
// and its items atomically. Returns ErrEmptyInput for an empty snapshot
// without persisting anything. The created job is pending until triggered.
func (s *JobService) CreateJob(ctx context.Context, name string, upcs []string) (*domain.BatchJob, error) {
	if len(upcs) == 0 {
		return nil, fmt.Errorf("%w: job %q", ErrEmptyInput, name)
	}

	parts := SplitUPCs(upcs, s.batchSize)
	now := time.Now().UTC()

	job := &domain.BatchJob{
		ID:           newID(),
		JobName:      name,
		Status:       domain.JobStatusPending,
		TotalBatches: len(parts),
		CreatedAt:    now,
	}

	batches := make([]domain.UPCBatch, 0, len(parts))
	items := make([]domain.UPCBatchItem, 0, len(upcs))
	for i, part := range parts {
		batch := domain.UPCBatch{
			ID:          newID(),
			BatchJobID:  job.ID,
			BatchNumber: i + 1,
			Status:      domain.BatchStatusPending,
			UPCCount:    len(part),
			CreatedAt:   now,
		}
		batches = append(batches, batch)
		for _, upc := range part {
			items = append(items, domain.UPCBatchItem{
				ID:         newID(),
				UPCBatchID: batch.ID,
				UPC:        upc,
				Status:     domain.ItemStatusPending,
			})
		}
	}

	if err := s.jobRepo.CreateWithBatches(ctx, job, batches, items); err != nil {
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}

	logger.CtxInfo(ctx, "Created job %s (%q) with %d batches over %d UPCs",
		job.ID, name, len(parts), len(upcs))
	return job, nil
}

// Trigger transitions a job to processing, resets its batches to a clean
// slate, and dispatches the worker pool in the background. Returns
// ErrInvalidState when the job is already processing.
func (s *JobService) Trigger(ctx context.Context, jobID string) error {
	if _, err := s.jobRepo.GetByID(ctx, jobID); err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}

	ok, err := s.jobRepo.MarkProcessing(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to transition job: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: job %s is already processing", ErrInvalidState, jobID)
	}

	if err := s.batchRepo.ResetForJob(ctx, jobID); err != nil {
		return fmt.Errorf("failed to reset batches: %w", err)
	}

	// Detach from the caller's lifetime (an HTTP request context would
	// cancel the run on response write).
	runCtx := logger.SetJobID(context.WithoutCancel(ctx), jobID)
	go s.executeJob(runCtx, jobID)
	return nil
}

// executeJob fans batches out to a bounded worker pool. Batch completion
// order is unconstrained; each worker folds its own terminal state into the
// job aggregates.
func (s *JobService) executeJob(ctx context.Context, jobID string) {
	batches, err := s.batchRepo.ListByJob(ctx, jobID)
	if err != nil {
		logger.CtxError(ctx, "Failed to list batches for job %s: %v", jobID, err)
		return
	}

	batchChan := make(chan domain.UPCBatch)

	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range batchChan {
				batchCtx, cancel := context.WithCancel(ctx)
				s.registerCancel(batch.ID, cancel)
				s.processBatch(batchCtx, batch.ID)
				s.unregisterCancel(batch.ID)
				cancel()
			}
		}()
	}

	for _, batch := range batches {
		batchChan <- batch
	}
	close(batchChan)
	wg.Wait()

	logger.CtxInfo(ctx, "Worker pool drained for job %s", jobID)
}

// RecordBatchProgress upserts batch progress and recomputes the job
// aggregates. Idempotent: terminal batch statuses are sinks, so repeated
// reports of the same terminal state are no-ops.
func (s *JobService) RecordBatchProgress(ctx context.Context, batchID string, processed int, status domain.BatchStatus) error {
	batch, err := s.batchRepo.GetByID(ctx, batchID)
	if err != nil {
		return fmt.Errorf("failed to load batch: %w", err)
	}

	if status.IsTerminal() {
		if _, err := s.batchRepo.Finish(ctx, batchID, status, processed, ""); err != nil {
			return fmt.Errorf("failed to finish batch: %w", err)
		}
	} else {
		if err := s.batchRepo.UpdateProcessedCount(ctx, batchID, processed); err != nil {
			return fmt.Errorf("failed to update batch progress: %w", err)
		}
	}

	s.recomputeJobAggregates(ctx, batch.BatchJobID)
	return nil
}

// StopBatch requests cooperative cancellation of a batch. Running batches
// are signalled and mark themselves cancelled at the next item boundary;
// batches not yet picked up are cancelled directly. Terminal batches return
// ErrInvalidState untouched. A signal that lands after the worker passed its
// last boundary check is lost: the batch still finishes completed, and the
// caller sees the final outcome on the next status poll.
func (s *JobService) StopBatch(ctx context.Context, batchID string) error {
	batch, err := s.batchRepo.GetByID(ctx, batchID)
	if err != nil {
		return fmt.Errorf("failed to load batch: %w", err)
	}
	if batch.Status.IsTerminal() {
		return fmt.Errorf("%w: batch %s is already %s", ErrInvalidState, batchID, batch.Status)
	}

	s.mu.Lock()
	cancel, running := s.cancels[batchID]
	s.mu.Unlock()

	if running {
		logger.CtxInfo(ctx, "Signalling cancellation to batch %s", batchID)
		cancel()
		return nil
	}

	transitioned, err := s.batchRepo.Finish(ctx, batchID, domain.BatchStatusCancelled, batch.ProcessedCount, "cancelled by user")
	if err != nil {
		return fmt.Errorf("failed to cancel batch: %w", err)
	}
	if !transitioned {
		return fmt.Errorf("%w: batch %s is already terminal", ErrInvalidState, batchID)
	}

	logger.CtxInfo(ctx, "Batch %s cancelled before start", batchID)
	s.recomputeJobAggregates(ctx, batch.BatchJobID)
	return nil
}

// recomputeJobAggregates recounts terminal batches and, once every batch is
// terminal, settles the job. Guarded by a per-job lock because multiple
// workers report completion concurrently; the terminal count only ever
// grows, so completed_batches is monotonically non-decreasing for readers.
func (s *JobService) recomputeJobAggregates(ctx context.Context, jobID string) {
	lock := s.jobLock(jobID)
	lock.Lock()
	defer lock.Unlock()

	batches, err := s.batchRepo.ListByJob(ctx, jobID)
	if err != nil {
		logger.CtxError(ctx, "Failed to list batches for job %s: %v", jobID, err)
		return
	}

	terminal := 0
	anyFailed := false
	for _, batch := range batches {
		if batch.Status.IsTerminal() {
			terminal++
		}
		if batch.Status == domain.BatchStatusFailed {
			anyFailed = true
		}
	}

	if err := s.jobRepo.UpdateCompletedBatches(ctx, jobID, terminal); err != nil {
		logger.CtxError(ctx, "Failed to update job aggregates for %s: %v", jobID, err)
		return
	}

	if terminal < len(batches) {
		return
	}

	status := domain.JobStatusCompleted
	errMsg := ""
	if anyFailed {
		status = domain.JobStatusFailed
		errMsg = "one or more batches failed"
	}
	if err := s.jobRepo.Finish(ctx, jobID, status, errMsg); err != nil {
		logger.CtxError(ctx, "Failed to finish job %s: %v", jobID, err)
		return
	}

	job, err := s.jobRepo.GetByID(ctx, jobID)
	if err != nil || !job.Status.IsTerminal() {
		// Job was not processing (e.g. a pre-trigger batch cancellation);
		// nothing to settle yet.
		return
	}

	logger.CtxInfo(ctx, "Job %s finished: status=%s batches=%d", jobID, job.Status, len(batches))
	s.dropJobLock(jobID)
	go s.onJobFinished(context.WithoutCancel(ctx), job)
}

// onJobFinished runs best-effort completion side effects: the notification
// sink and the CSV report archive. Their failures never fail the job.
func (s *JobService) onJobFinished(ctx context.Context, job *domain.BatchJob) {
	alertCount, err := s.alertRepo.CountByJob(ctx, job.ID)
	if err != nil {
		logger.CtxWarn(ctx, "Failed to count alerts for job %s: %v", job.ID, err)
	}

	reportURL := ""
	if s.reporter != nil {
		if url, err := s.reporter.ArchiveJobReport(ctx, job); err != nil {
			logger.CtxWarn(ctx, "Failed to archive report for job %s: %v", job.ID, err)
		} else {
			reportURL = url
		}
	}

	if s.notifier != nil {
		if err := s.notifier.NotifyJobFinished(ctx, job, alertCount, reportURL); err != nil {
			logger.CtxWarn(ctx, "Failed to notify completion of job %s: %v", job.ID, err)
		}
	}
}

func (s *JobService) registerCancel(batchID string, cancel context.CancelFunc) {
	s.mu.Lock()
	s.cancels[batchID] = cancel
	s.mu.Unlock()
}

func (s *JobService) unregisterCancel(batchID string) {
	s.mu.Lock()
	delete(s.cancels, batchID)
	s.mu.Unlock()
}

func (s *JobService) jobLock(jobID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.jobLocks[jobID]
	if !ok {
		lock = &sync.Mutex{}
		s.jobLocks[jobID] = lock
	}
	return lock
}

func (s *JobService) dropJobLock(jobID string) {
	s.mu.Lock()
	delete(s.jobLocks, jobID)
	s.mu.Unlock()
}
