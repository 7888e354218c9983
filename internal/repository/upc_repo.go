package repository

import (
	"context"

	"github.com/kaiwen/pricewatch/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UPCRepository handles the UPC universe (the identifier store).
type UPCRepository struct {
	db *gorm.DB
}

// NewUPCRepository creates a new UPCRepository.
func NewUPCRepository(db *gorm.DB) *UPCRepository {
	return &UPCRepository{db: db}
}

// Create inserts a UPC, silently ignoring duplicates so re-imports of the
// same list stay idempotent.
func (r *UPCRepository) Create(ctx context.Context, upc *domain.UPC) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "upc"}},
		DoNothing: true,
	}).Create(upc).Error
}

// CreateBatch inserts many UPCs at once with the same duplicate handling
// as Create.
func (r *UPCRepository) CreateBatch(ctx context.Context, upcs []domain.UPC) error {
	if len(upcs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "upc"}},
		DoNothing: true,
	}).CreateInBatches(&upcs, 500).Error
}

// List returns all UPCs ordered by code. The stable ordering matters: job
// creation snapshots this list and partitioning must be reproducible.
func (r *UPCRepository) List(ctx context.Context) ([]domain.UPC, error) {
	var upcs []domain.UPC
	if err := r.db.WithContext(ctx).Order("upc").Find(&upcs).Error; err != nil {
		return nil, err
	}
	return upcs, nil
}

// ListCodes returns the ordered, deduplicated UPC codes only.
func (r *UPCRepository) ListCodes(ctx context.Context) ([]string, error) {
	var codes []string
	if err := r.db.WithContext(ctx).Model(&domain.UPC{}).
		Order("upc").Pluck("upc", &codes).Error; err != nil {
		return nil, err
	}
	return codes, nil
}

// Delete removes a UPC by code. Already-created jobs keep their snapshot.
// Returns gorm.ErrRecordNotFound when the code is not in the store.
func (r *UPCRepository) Delete(ctx context.Context, upc string) error {
	res := r.db.WithContext(ctx).Delete(&domain.UPC{}, "upc = ?", upc)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Count returns the number of UPCs in the store.
func (r *UPCRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.UPC{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
