package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kaiwen/pricewatch/internal/domain"
	"github.com/kaiwen/pricewatch/internal/keepa"
	"github.com/kaiwen/pricewatch/internal/repository"
)

// fakeLookup is an in-memory ProductLookup. Lookups resolve from the results
// and errs maps; unknown UPCs behave like Keepa having no data. A non-nil
// gate blocks every lookup until the gate closes or the context cancels.
type fakeLookup struct {
	pingErr error
	results map[string]*keepa.Result
	errs    map[string]error

	gate      chan struct{}
	started   chan struct{}
	startOnce sync.Once

	pingGate    chan struct{}
	pingStarted chan struct{}
	pingOnce    sync.Once
}

func (f *fakeLookup) Lookup(ctx context.Context, upc string) (*keepa.Result, error) {
	if f.started != nil {
		f.startOnce.Do(func() { close(f.started) })
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err, ok := f.errs[upc]; ok {
		return nil, err
	}
	if result, ok := f.results[upc]; ok {
		return result, nil
	}
	return nil, nil
}

func (f *fakeLookup) Ping(ctx context.Context) error {
	if f.pingStarted != nil {
		f.pingOnce.Do(func() { close(f.pingStarted) })
	}
	if f.pingGate != nil {
		select {
		case <-f.pingGate:
		case <-ctx.Done():
			// The real client wraps a cancelled availability check the same
			// way it wraps an outage.
			return fmt.Errorf("%w: %v", keepa.ErrServiceUnavailable, ctx.Err())
		}
	}
	return f.pingErr
}

type testEnv struct {
	jobs      *JobService
	jobRepo   *repository.JobRepository
	batchRepo *repository.BatchRepository
	alertRepo *repository.AlertRepository
}

func newTestEnv(t *testing.T, lookup ProductLookup, batchSize, workers int) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, repository.Migrate(db))

	jobRepo := repository.NewJobRepository(db)
	batchRepo := repository.NewBatchRepository(db)
	alertRepo := repository.NewAlertRepository(db)

	jobs := NewJobService(
		jobRepo,
		batchRepo,
		alertRepo,
		lookup,
		NewPriceAnalyzer(30),
		nil,
		nil,
		&JobServiceConfig{
			BatchSize:     batchSize,
			Workers:       workers,
			LookupTimeout: 5 * time.Second,
		},
	)

	return &testEnv{
		jobs:      jobs,
		jobRepo:   jobRepo,
		batchRepo: batchRepo,
		alertRepo: alertRepo,
	}
}

func makeUPCs(n int) []string {
	upcs := make([]string, n)
	for i := range upcs {
		upcs[i] = fmt.Sprintf("%012d", i)
	}
	return upcs
}

// offPriceResult builds a lookup result whose single seller undercuts the
// historical average of 100.
func offPriceResult() *keepa.Result {
	nowMinutes := float64(time.Now().Unix()) / 60
	return &keepa.Result{
		Product: &keepa.Product{
			ASIN: "B000TEST01",
			CSV: [][]float64{
				{nowMinutes - 24*60, 100, -1},
			},
			CurrentSellers: []keepa.Seller{
				{SellerID: "A1", SellerName: "Discounter", Price: 70},
			},
		},
		Raw: map[string]interface{}{"asin": "B000TEST01"},
	}
}

func waitForJob(t *testing.T, env *testEnv, jobID string) *JobStatus {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	prevCompleted := 0
	for time.Now().Before(deadline) {
		status, err := env.jobs.GetStatus(context.Background(), jobID)
		require.NoError(t, err)

		// Readers must observe completed_batches monotonically.
		require.GreaterOrEqual(t, status.CompletedBatches, prevCompleted,
			"completed_batches regressed from %d to %d", prevCompleted, status.CompletedBatches)
		prevCompleted = status.CompletedBatches

		if status.Status.IsTerminal() {
			return status
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job did not reach a terminal state in time")
	return nil
}

func TestCreateJobEmptyInput(t *testing.T) {
	env := newTestEnv(t, &fakeLookup{}, 2, 1)

	_, err := env.jobs.CreateJob(context.Background(), "empty", nil)
	require.ErrorIs(t, err, ErrEmptyInput)

	jobs, err := env.jobRepo.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestCreateJobPartitionsSnapshot(t *testing.T) {
	env := newTestEnv(t, &fakeLookup{}, 119, 1)

	job, err := env.jobs.CreateJob(context.Background(), "nightly", makeUPCs(238))
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, job.Status)
	assert.Equal(t, 2, job.TotalBatches)

	batches, err := env.batchRepo.ListByJob(context.Background(), job.ID)
	require.NoError(t, err)
	require.Len(t, batches, 2)

	totalItems := 0
	for i, batch := range batches {
		assert.Equal(t, i+1, batch.BatchNumber)
		assert.Equal(t, 119, batch.UPCCount)
		assert.Equal(t, domain.BatchStatusPending, batch.Status)

		items, err := env.batchRepo.ListItems(context.Background(), batch.ID)
		require.NoError(t, err)
		totalItems += len(items)
	}
	assert.Equal(t, 238, totalItems)
}

func TestJobRunsToCompletion(t *testing.T) {
	upcs := makeUPCs(5)
	lookup := &fakeLookup{
		results: map[string]*keepa.Result{
			upcs[0]: offPriceResult(),
		},
	}
	env := newTestEnv(t, lookup, 2, 2)

	job, err := env.jobs.CreateJob(context.Background(), "run", upcs)
	require.NoError(t, err)
	require.NoError(t, env.jobs.Trigger(context.Background(), job.ID))

	status := waitForJob(t, env, job.ID)
	assert.Equal(t, domain.JobStatusCompleted, status.Status)
	assert.Equal(t, 100, status.ProgressPercent)
	assert.Equal(t, 3, status.CompletedBatches)
	require.NotNil(t, status.CompletedAt)

	for _, batch := range status.Batches {
		assert.Equal(t, domain.BatchStatusCompleted, batch.Status)
		assert.Equal(t, batch.UPCCount, batch.ProcessedCount)
	}

	alerts, err := env.alertRepo.ListByJob(context.Background(), job.ID)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "Discounter", alerts[0].SellerName)
	assert.Equal(t, upcs[0], alerts[0].UPC)
}

func TestTriggerWhileProcessing(t *testing.T) {
	lookup := &fakeLookup{
		gate:    make(chan struct{}),
		started: make(chan struct{}),
	}
	env := newTestEnv(t, lookup, 10, 1)

	job, err := env.jobs.CreateJob(context.Background(), "busy", makeUPCs(3))
	require.NoError(t, err)
	require.NoError(t, env.jobs.Trigger(context.Background(), job.ID))

	<-lookup.started
	err = env.jobs.Trigger(context.Background(), job.ID)
	require.ErrorIs(t, err, ErrInvalidState)

	close(lookup.gate)
	status := waitForJob(t, env, job.ID)
	assert.Equal(t, domain.JobStatusCompleted, status.Status)
}

func TestTransientLookupFailureIsolation(t *testing.T) {
	upcs := makeUPCs(3)
	lookup := &fakeLookup{
		errs: map[string]error{
			upcs[1]: fmt.Errorf("keepa rate limit exceeded for upc %s", upcs[1]),
		},
	}
	env := newTestEnv(t, lookup, 10, 1)

	job, err := env.jobs.CreateJob(context.Background(), "flaky", upcs)
	require.NoError(t, err)
	require.NoError(t, env.jobs.Trigger(context.Background(), job.ID))

	status := waitForJob(t, env, job.ID)
	assert.Equal(t, domain.JobStatusCompleted, status.Status)
	require.Len(t, status.Batches, 1)
	assert.Equal(t, domain.BatchStatusCompleted, status.Batches[0].Status)

	items, err := env.batchRepo.ListItems(context.Background(), status.Batches[0].ID)
	require.NoError(t, err)

	failed := 0
	for _, item := range items {
		if item.Status == domain.ItemStatusFailed {
			failed++
			assert.Contains(t, item.ErrorMessage, "rate limit")
		} else {
			assert.Equal(t, domain.ItemStatusCompleted, item.Status)
		}
	}
	assert.Equal(t, 1, failed)
}

func TestUnreachableServiceFailsJob(t *testing.T) {
	lookup := &fakeLookup{
		pingErr: fmt.Errorf("%w: connection refused", keepa.ErrServiceUnavailable),
	}
	env := newTestEnv(t, lookup, 2, 1)

	job, err := env.jobs.CreateJob(context.Background(), "down", makeUPCs(4))
	require.NoError(t, err)
	require.NoError(t, env.jobs.Trigger(context.Background(), job.ID))

	status := waitForJob(t, env, job.ID)
	assert.Equal(t, domain.JobStatusFailed, status.Status)
	assert.NotEmpty(t, status.ErrorMessage)
	for _, batch := range status.Batches {
		assert.Equal(t, domain.BatchStatusFailed, batch.Status)
	}
}

func TestStopBatchBeforeTrigger(t *testing.T) {
	env := newTestEnv(t, &fakeLookup{}, 2, 1)

	job, err := env.jobs.CreateJob(context.Background(), "stopped", makeUPCs(2))
	require.NoError(t, err)

	batches, err := env.batchRepo.ListByJob(context.Background(), job.ID)
	require.NoError(t, err)
	require.Len(t, batches, 1)

	require.NoError(t, env.jobs.StopBatch(context.Background(), batches[0].ID))

	batch, err := env.batchRepo.GetByID(context.Background(), batches[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchStatusCancelled, batch.Status)

	// Stopping a terminal batch is rejected.
	err = env.jobs.StopBatch(context.Background(), batches[0].ID)
	require.ErrorIs(t, err, ErrInvalidState)

	// The job was never triggered, so it stays pending.
	got, err := env.jobRepo.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, got.Status)
}

func TestStopRunningBatch(t *testing.T) {
	lookup := &fakeLookup{
		gate:    make(chan struct{}),
		started: make(chan struct{}),
	}
	env := newTestEnv(t, lookup, 10, 1)

	job, err := env.jobs.CreateJob(context.Background(), "cancel-me", makeUPCs(3))
	require.NoError(t, err)

	batches, err := env.batchRepo.ListByJob(context.Background(), job.ID)
	require.NoError(t, err)
	require.Len(t, batches, 1)

	require.NoError(t, env.jobs.Trigger(context.Background(), job.ID))
	<-lookup.started

	require.NoError(t, env.jobs.StopBatch(context.Background(), batches[0].ID))

	status := waitForJob(t, env, job.ID)
	require.Len(t, status.Batches, 1)
	assert.Equal(t, domain.BatchStatusCancelled, status.Batches[0].Status)

	// Cancelled batches still count toward job completion.
	assert.Equal(t, domain.JobStatusCompleted, status.Status)
	assert.Equal(t, 1, status.CompletedBatches)

	// Items past the cancellation point were never touched.
	items, err := env.batchRepo.ListItems(context.Background(), batches[0].ID)
	require.NoError(t, err)
	pending := 0
	for _, item := range items {
		if item.Status == domain.ItemStatusPending {
			pending++
		}
	}
	assert.Greater(t, pending, 0)
}

func TestStopDuringAvailabilityCheck(t *testing.T) {
	lookup := &fakeLookup{
		pingGate:    make(chan struct{}),
		pingStarted: make(chan struct{}),
	}
	env := newTestEnv(t, lookup, 10, 1)

	job, err := env.jobs.CreateJob(context.Background(), "stop-early", makeUPCs(3))
	require.NoError(t, err)

	batches, err := env.batchRepo.ListByJob(context.Background(), job.ID)
	require.NoError(t, err)
	require.Len(t, batches, 1)

	require.NoError(t, env.jobs.Trigger(context.Background(), job.ID))
	<-lookup.pingStarted

	require.NoError(t, env.jobs.StopBatch(context.Background(), batches[0].ID))

	// A cancel racing the availability check is a cancellation, not an
	// outage: the batch ends cancelled and the job completes.
	status := waitForJob(t, env, job.ID)
	require.Len(t, status.Batches, 1)
	assert.Equal(t, domain.BatchStatusCancelled, status.Batches[0].Status)
	assert.Equal(t, 0, status.Batches[0].ProcessedCount)
	assert.Equal(t, domain.JobStatusCompleted, status.Status)

	items, err := env.batchRepo.ListItems(context.Background(), batches[0].ID)
	require.NoError(t, err)
	for _, item := range items {
		assert.Equal(t, domain.ItemStatusPending, item.Status)
	}
}

func TestRetriggerResetsCompletedJob(t *testing.T) {
	upcs := makeUPCs(3)
	lookup := &fakeLookup{
		results: map[string]*keepa.Result{upcs[0]: offPriceResult()},
	}
	env := newTestEnv(t, lookup, 10, 1)

	job, err := env.jobs.CreateJob(context.Background(), "rerun", upcs)
	require.NoError(t, err)
	require.NoError(t, env.jobs.Trigger(context.Background(), job.ID))
	first := waitForJob(t, env, job.ID)
	require.Equal(t, domain.JobStatusCompleted, first.Status)

	require.NoError(t, env.jobs.Trigger(context.Background(), job.ID))
	second := waitForJob(t, env, job.ID)
	assert.Equal(t, domain.JobStatusCompleted, second.Status)
	assert.Equal(t, 100, second.ProgressPercent)
}
