package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kaiwen/pricewatch/internal/domain"
)

// BatchProgress is the per-batch slice of a job status report.
type BatchProgress struct {
	ID             string             `json:"id"`
	BatchNumber    int                `json:"batch_number"`
	Status         domain.BatchStatus `json:"status"`
	UPCCount       int                `json:"upc_count"`
	ProcessedCount int                `json:"processed_count"`
	ErrorMessage   string             `json:"error_message,omitempty"`
	CompletedAt    *time.Time         `json:"completed_at,omitempty"`
}

// JobStatus is a consistent point-in-time view of a job and its batches.
type JobStatus struct {
	ID               string           `json:"id"`
	JobName          string           `json:"job_name"`
	Status           domain.JobStatus `json:"status"`
	TotalBatches     int              `json:"total_batches"`
	CompletedBatches int              `json:"completed_batches"`
	ProgressPercent  int              `json:"progress_percent"`
	CreatedAt        time.Time        `json:"created_at"`
	CompletedAt      *time.Time       `json:"completed_at,omitempty"`
	ErrorMessage     string           `json:"error_message,omitempty"`
	Batches          []BatchProgress  `json:"batches"`
}

// GetStatus assembles the job view clients poll: job aggregates, the floor
// completion percentage, and per-batch progress ordered by batch number.
func (s *JobService) GetStatus(ctx context.Context, jobID string) (*JobStatus, error) {
	job, err := s.jobRepo.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to load job: %w", err)
	}
	batches, err := s.batchRepo.ListByJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to load batches: %w", err)
	}

	percent := 0
	if job.TotalBatches > 0 {
		percent = job.CompletedBatches * 100 / job.TotalBatches
	}

	status := &JobStatus{
		ID:               job.ID,
		JobName:          job.JobName,
		Status:           job.Status,
		TotalBatches:     job.TotalBatches,
		CompletedBatches: job.CompletedBatches,
		ProgressPercent:  percent,
		CreatedAt:        job.CreatedAt,
		CompletedAt:      job.CompletedAt,
		ErrorMessage:     job.ErrorMessage,
		Batches:          make([]BatchProgress, 0, len(batches)),
	}
	for _, batch := range batches {
		status.Batches = append(status.Batches, BatchProgress{
			ID:             batch.ID,
			BatchNumber:    batch.BatchNumber,
			Status:         batch.Status,
			UPCCount:       batch.UPCCount,
			ProcessedCount: batch.ProcessedCount,
			ErrorMessage:   batch.ErrorMessage,
			CompletedAt:    batch.CompletedAt,
		})
	}
	return status, nil
}

// ListJobs returns all jobs, newest first.
func (s *JobService) ListJobs(ctx context.Context) ([]domain.BatchJob, error) {
	return s.jobRepo.List(ctx)
}

// GetJob returns a single job.
func (s *JobService) GetJob(ctx context.Context, jobID string) (*domain.BatchJob, error) {
	return s.jobRepo.GetByID(ctx, jobID)
}

// GetBatch returns a single batch.
func (s *JobService) GetBatch(ctx context.Context, batchID string) (*domain.UPCBatch, error) {
	return s.batchRepo.GetByID(ctx, batchID)
}

// ListBatchItems returns a batch's items ordered by UPC.
func (s *JobService) ListBatchItems(ctx context.Context, batchID string) ([]domain.UPCBatchItem, error) {
	return s.batchRepo.ListItems(ctx, batchID)
}

// ListAlerts returns the price alerts raised by a job.
func (s *JobService) ListAlerts(ctx context.Context, jobID string) ([]domain.PriceAlert, error) {
	return s.alertRepo.ListByJob(ctx, jobID)
}
