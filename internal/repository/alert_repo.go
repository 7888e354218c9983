package repository

import (
	"context"

	"github.com/kaiwen/pricewatch/internal/domain"
	"gorm.io/gorm"
)

// AlertRepository handles price alert persistence. Alerts are append-only.
type AlertRepository struct {
	db *gorm.DB
}

// NewAlertRepository creates a new AlertRepository.
func NewAlertRepository(db *gorm.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// Create appends a price alert.
func (r *AlertRepository) Create(ctx context.Context, alert *domain.PriceAlert) error {
	return r.db.WithContext(ctx).Create(alert).Error
}

// ListByJob returns all alerts detected during a job, oldest first.
func (r *AlertRepository) ListByJob(ctx context.Context, jobID string) ([]domain.PriceAlert, error) {
	var alerts []domain.PriceAlert
	if err := r.db.WithContext(ctx).
		Where("batch_job_id = ?", jobID).
		Order("detected_at").
		Find(&alerts).Error; err != nil {
		return nil, err
	}
	return alerts, nil
}

// CountByJob returns the number of alerts for a job.
func (r *AlertRepository) CountByJob(ctx context.Context, jobID string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.PriceAlert{}).
		Where("batch_job_id = ?", jobID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
