package repository

import (
	"context"
	"time"

	"github.com/kaiwen/pricewatch/internal/domain"
	"gorm.io/gorm"
)

// JobRepository handles batch job persistence.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// CreateWithBatches persists a job, its batches, and its items as one
// transaction. A job is never observable with a partial batch set.
func (r *JobRepository) CreateWithBatches(ctx context.Context, job *domain.BatchJob, batches []domain.UPCBatch, items []domain.UPCBatchItem) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(job).Error; err != nil {
			return err
		}
		if err := tx.Create(&batches).Error; err != nil {
			return err
		}
		return tx.CreateInBatches(&items, 500).Error
	})
}

// GetByID retrieves a job by its ID.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.BatchJob, error) {
	var job domain.BatchJob
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// List returns all jobs, newest first.
func (r *JobRepository) List(ctx context.Context) ([]domain.BatchJob, error) {
	var jobs []domain.BatchJob
	if err := r.db.WithContext(ctx).Order("created_at desc").Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// MarkProcessing atomically transitions a job to processing. Returns false
// without error when the job is already processing, which callers surface as
// an invalid-state condition.
func (r *JobRepository) MarkProcessing(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.BatchJob{}).
		Where("id = ? AND status <> ?", id, domain.JobStatusProcessing).
		Updates(map[string]interface{}{
			"status":        domain.JobStatusProcessing,
			"error_message": "",
			"completed_at":  nil,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UpdateCompletedBatches writes the job-level aggregate counter. Callers
// serialize invocations per job, so the counter never moves backward.
func (r *JobRepository) UpdateCompletedBatches(ctx context.Context, id string, completed int) error {
	return r.db.WithContext(ctx).Model(&domain.BatchJob{}).
		Where("id = ?", id).
		Update("completed_batches", completed).Error
}

// Finish transitions a processing job to a terminal status and stamps
// completed_at. The status guard makes repeated calls no-ops.
func (r *JobRepository) Finish(ctx context.Context, id string, status domain.JobStatus, errMsg string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Model(&domain.BatchJob{}).
		Where("id = ? AND status = ?", id, domain.JobStatusProcessing).
		Updates(map[string]interface{}{
			"status":        status,
			"error_message": errMsg,
			"completed_at":  &now,
		}).Error
}
