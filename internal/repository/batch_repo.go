package repository

import (
	"context"
	"time"

	"github.com/kaiwen/pricewatch/internal/domain"
	"gorm.io/gorm"
)

// BatchRepository handles UPC batch and batch item persistence.
type BatchRepository struct {
	db *gorm.DB
}

// NewBatchRepository creates a new BatchRepository.
func NewBatchRepository(db *gorm.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// GetByID retrieves a batch by its ID.
func (r *BatchRepository) GetByID(ctx context.Context, id string) (*domain.UPCBatch, error) {
	var batch domain.UPCBatch
	if err := r.db.WithContext(ctx).First(&batch, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &batch, nil
}

// ListByJob returns a job's batches ordered by batch number.
func (r *BatchRepository) ListByJob(ctx context.Context, jobID string) ([]domain.UPCBatch, error) {
	var batches []domain.UPCBatch
	if err := r.db.WithContext(ctx).
		Where("batch_job_id = ?", jobID).
		Order("batch_number").
		Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}

// MarkProcessing transitions a pending batch to processing. Returns false
// when the batch left pending in the meantime (e.g. stopped before start).
func (r *BatchRepository) MarkProcessing(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.UPCBatch{}).
		Where("id = ? AND status = ?", id, domain.BatchStatusPending).
		Update("status", domain.BatchStatusProcessing)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UpdateProcessedCount persists incremental item progress so polling clients
// see live movement inside a batch.
func (r *BatchRepository) UpdateProcessedCount(ctx context.Context, id string, processed int) error {
	return r.db.WithContext(ctx).Model(&domain.UPCBatch{}).
		Where("id = ?", id).
		Update("processed_count", processed).Error
}

// Finish transitions a batch to a terminal status. The guard excludes rows
// already terminal, so a finished batch never regresses and repeated calls
// are idempotent. Returns whether this call performed the transition.
func (r *BatchRepository) Finish(ctx context.Context, id string, status domain.BatchStatus, processed int, errMsg string) (bool, error) {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&domain.UPCBatch{}).
		Where("id = ? AND status NOT IN ?", id, domain.TerminalBatchStatuses).
		Updates(map[string]interface{}{
			"status":          status,
			"processed_count": processed,
			"error_message":   errMsg,
			"completed_at":    &now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ResetForJob returns every batch and item of a job to pending so the job
// can be re-triggered from a clean slate.
func (r *BatchRepository) ResetForJob(ctx context.Context, jobID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&domain.UPCBatch{}).
			Where("batch_job_id = ?", jobID).
			Updates(map[string]interface{}{
				"status":          domain.BatchStatusPending,
				"processed_count": 0,
				"error_message":   "",
				"completed_at":    nil,
			}).Error; err != nil {
			return err
		}
		if err := tx.Model(&domain.UPCBatchItem{}).
			Where("upc_batch_id IN (?)",
				tx.Model(&domain.UPCBatch{}).Select("id").Where("batch_job_id = ?", jobID)).
			Updates(map[string]interface{}{
				"status":        domain.ItemStatusPending,
				"keepa_data":    nil,
				"error_message": "",
				"processed_at":  nil,
			}).Error; err != nil {
			return err
		}
		return tx.Model(&domain.BatchJob{}).
			Where("id = ?", jobID).
			Update("completed_batches", 0).Error
	})
}

// ListItems returns a batch's items ordered by UPC.
func (r *BatchRepository) ListItems(ctx context.Context, batchID string) ([]domain.UPCBatchItem, error) {
	var items []domain.UPCBatchItem
	if err := r.db.WithContext(ctx).
		Where("upc_batch_id = ?", batchID).
		Order("upc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// MarkItemProcessing moves an item to processing before the lookup call.
func (r *BatchRepository) MarkItemProcessing(ctx context.Context, itemID string) error {
	return r.db.WithContext(ctx).Model(&domain.UPCBatchItem{}).
		Where("id = ?", itemID).
		Update("status", domain.ItemStatusProcessing).Error
}

// CompleteItem stores the lookup payload and marks the item completed.
// errMsg carries soft outcomes like "no data found in Keepa".
func (r *BatchRepository) CompleteItem(ctx context.Context, itemID string, payload domain.JSONMap, errMsg string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Model(&domain.UPCBatchItem{}).
		Where("id = ?", itemID).
		Updates(map[string]interface{}{
			"status":        domain.ItemStatusCompleted,
			"keepa_data":    payload,
			"error_message": errMsg,
			"processed_at":  &now,
		}).Error
}

// FailItem records a per-item lookup failure. Sibling items are unaffected.
func (r *BatchRepository) FailItem(ctx context.Context, itemID string, errMsg string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Model(&domain.UPCBatchItem{}).
		Where("id = ?", itemID).
		Updates(map[string]interface{}{
			"status":        domain.ItemStatusFailed,
			"error_message": errMsg,
			"processed_at":  &now,
		}).Error
}
