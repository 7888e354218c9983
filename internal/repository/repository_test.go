package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kaiwen/pricewatch/internal/domain"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, Migrate(db))
	return db
}

func seedJob(t *testing.T, jobRepo *JobRepository, batchCount, itemsPerBatch int) (*domain.BatchJob, []domain.UPCBatch) {
	t.Helper()
	now := time.Now().UTC()
	job := &domain.BatchJob{
		ID:           uuid.New().String(),
		JobName:      "test job",
		Status:       domain.JobStatusPending,
		TotalBatches: batchCount,
		CreatedAt:    now,
	}

	var batches []domain.UPCBatch
	var items []domain.UPCBatchItem
	for i := 0; i < batchCount; i++ {
		batch := domain.UPCBatch{
			ID:          uuid.New().String(),
			BatchJobID:  job.ID,
			BatchNumber: i + 1,
			Status:      domain.BatchStatusPending,
			UPCCount:    itemsPerBatch,
			CreatedAt:   now,
		}
		batches = append(batches, batch)
		for j := 0; j < itemsPerBatch; j++ {
			items = append(items, domain.UPCBatchItem{
				ID:         uuid.New().String(),
				UPCBatchID: batch.ID,
				UPC:        uuid.New().String()[:12],
				Status:     domain.ItemStatusPending,
			})
		}
	}

	require.NoError(t, jobRepo.CreateWithBatches(context.Background(), job, batches, items))
	return job, batches
}

func TestUPCCreateIgnoresDuplicates(t *testing.T) {
	db := newTestDB(t)
	repo := NewUPCRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &domain.UPC{ID: uuid.New().String(), UPC: "012345678905"}))
	require.NoError(t, repo.Create(ctx, &domain.UPC{ID: uuid.New().String(), UPC: "012345678905"}))

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestUPCListCodesIsOrdered(t *testing.T) {
	db := newTestDB(t)
	repo := NewUPCRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.CreateBatch(ctx, []domain.UPC{
		{ID: uuid.New().String(), UPC: "300000000000"},
		{ID: uuid.New().String(), UPC: "100000000000"},
		{ID: uuid.New().String(), UPC: "200000000000"},
	}))

	codes, err := repo.ListCodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"100000000000", "200000000000", "300000000000"}, codes)
}

func TestUPCDelete(t *testing.T) {
	db := newTestDB(t)
	repo := NewUPCRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &domain.UPC{ID: uuid.New().String(), UPC: "012345678905"}))
	require.NoError(t, repo.Delete(ctx, "012345678905"))

	err := repo.Delete(ctx, "012345678905")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestJobMarkProcessingIsConditional(t *testing.T) {
	db := newTestDB(t)
	jobRepo := NewJobRepository(db)
	ctx := context.Background()

	job, _ := seedJob(t, jobRepo, 1, 1)

	ok, err := jobRepo.MarkProcessing(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	// Already processing: the guard refuses a second transition.
	ok, err = jobRepo.MarkProcessing(ctx, job.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestJobFinishOnlyFromProcessing(t *testing.T) {
	db := newTestDB(t)
	jobRepo := NewJobRepository(db)
	ctx := context.Background()

	job, _ := seedJob(t, jobRepo, 1, 1)

	// Pending jobs cannot finish.
	require.NoError(t, jobRepo.Finish(ctx, job.ID, domain.JobStatusCompleted, ""))
	got, err := jobRepo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, got.Status)
	assert.Nil(t, got.CompletedAt)

	ok, err := jobRepo.MarkProcessing(ctx, job.ID)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, jobRepo.Finish(ctx, job.ID, domain.JobStatusCompleted, ""))
	got, err = jobRepo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
}

func TestBatchFinishIsTerminalSink(t *testing.T) {
	db := newTestDB(t)
	jobRepo := NewJobRepository(db)
	batchRepo := NewBatchRepository(db)
	ctx := context.Background()

	_, batches := seedJob(t, jobRepo, 1, 2)
	batchID := batches[0].ID

	ok, err := batchRepo.Finish(ctx, batchID, domain.BatchStatusCancelled, 1, "cancelled by user")
	require.NoError(t, err)
	assert.True(t, ok)

	// A terminal batch never regresses, whatever status is reported later.
	ok, err = batchRepo.Finish(ctx, batchID, domain.BatchStatusCompleted, 2, "")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := batchRepo.GetByID(ctx, batchID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchStatusCancelled, got.Status)
	assert.Equal(t, 1, got.ProcessedCount)
	assert.Equal(t, "cancelled by user", got.ErrorMessage)
}

func TestBatchMarkProcessingOnlyFromPending(t *testing.T) {
	db := newTestDB(t)
	jobRepo := NewJobRepository(db)
	batchRepo := NewBatchRepository(db)
	ctx := context.Background()

	_, batches := seedJob(t, jobRepo, 1, 1)
	batchID := batches[0].ID

	ok, err := batchRepo.Finish(ctx, batchID, domain.BatchStatusCancelled, 0, "cancelled by user")
	require.NoError(t, err)
	require.True(t, ok)

	// A stop that landed first wins over the worker pickup.
	ok, err = batchRepo.MarkProcessing(ctx, batchID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResetForJobReturnsCleanSlate(t *testing.T) {
	db := newTestDB(t)
	jobRepo := NewJobRepository(db)
	batchRepo := NewBatchRepository(db)
	ctx := context.Background()

	job, batches := seedJob(t, jobRepo, 2, 2)

	ok, err := jobRepo.MarkProcessing(ctx, job.ID)
	require.NoError(t, err)
	require.True(t, ok)

	// Run one batch to completion with item payloads.
	items, err := batchRepo.ListItems(ctx, batches[0].ID)
	require.NoError(t, err)
	for _, item := range items {
		require.NoError(t, batchRepo.CompleteItem(ctx, item.ID, domain.JSONMap{"asin": "B000TEST01"}, ""))
	}
	_, err = batchRepo.Finish(ctx, batches[0].ID, domain.BatchStatusCompleted, 2, "")
	require.NoError(t, err)
	require.NoError(t, jobRepo.UpdateCompletedBatches(ctx, job.ID, 1))

	require.NoError(t, batchRepo.ResetForJob(ctx, job.ID))

	got, err := jobRepo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.CompletedBatches)

	for _, batch := range batches {
		b, err := batchRepo.GetByID(ctx, batch.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.BatchStatusPending, b.Status)
		assert.Equal(t, 0, b.ProcessedCount)
		assert.Nil(t, b.CompletedAt)

		items, err := batchRepo.ListItems(ctx, batch.ID)
		require.NoError(t, err)
		for _, item := range items {
			assert.Equal(t, domain.ItemStatusPending, item.Status)
			assert.Nil(t, item.KeepaData)
			assert.Nil(t, item.ProcessedAt)
		}
	}
}
