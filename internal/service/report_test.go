package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaiwen/pricewatch/internal/domain"
)

// memStore is an in-memory ObjectStorage for report tests.
type memStore struct {
	objects map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte)}
}

func (m *memStore) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	m.objects[key] = data
	return nil
}

func (m *memStore) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(m.objects[key])), nil
}

func (m *memStore) GetURL(key string) string {
	return "https://reports.example.com/" + key
}

func (m *memStore) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := m.objects[key]
	return ok, nil
}

func (m *memStore) Delete(ctx context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

func seedAlerts(t *testing.T, env *testEnv, jobID string) {
	t.Helper()
	detected := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	for i, alert := range []domain.PriceAlert{
		{UPC: "000000000001", SellerName: "Discounter", CurrentPrice: 70, HistoricalPrice: 100, PriceChangePercent: -30},
		{UPC: "000000000002", SellerName: "Bargain Bin", CurrentPrice: 45.5, HistoricalPrice: 50, PriceChangePercent: -9},
	} {
		alert.ID = newID()
		alert.BatchJobID = jobID
		alert.DetectedAt = detected.Add(time.Duration(i) * time.Minute)
		require.NoError(t, env.alertRepo.Create(context.Background(), &alert))
	}
}

func TestGenerateCSV(t *testing.T) {
	env := newTestEnv(t, &fakeLookup{}, 2, 1)

	job, err := env.jobs.CreateJob(context.Background(), "report", makeUPCs(2))
	require.NoError(t, err)
	seedAlerts(t, env, job.ID)

	reporter := NewReportService(env.alertRepo, nil)
	data, err := reporter.GenerateCSV(context.Background(), job)
	require.NoError(t, err)

	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, []string{"upc", "seller_name", "current_price", "historical_price", "price_change_percent", "detected_at"}, rows[0])
	assert.Equal(t, []string{"000000000001", "Discounter", "70.00", "100.00", "-30.0", "2026-08-30T12:00:00Z"}, rows[1])
	assert.Equal(t, "Bargain Bin", rows[2][1])
}

func TestGenerateCSVWithoutAlerts(t *testing.T) {
	env := newTestEnv(t, &fakeLookup{}, 2, 1)

	job, err := env.jobs.CreateJob(context.Background(), "quiet", makeUPCs(2))
	require.NoError(t, err)

	reporter := NewReportService(env.alertRepo, nil)
	data, err := reporter.GenerateCSV(context.Background(), job)
	require.NoError(t, err)

	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestArchiveJobReport(t *testing.T) {
	env := newTestEnv(t, &fakeLookup{}, 2, 1)

	job, err := env.jobs.CreateJob(context.Background(), "archive", makeUPCs(2))
	require.NoError(t, err)
	seedAlerts(t, env, job.ID)

	store := newMemStore()
	reporter := NewReportService(env.alertRepo, store)

	url, err := reporter.ArchiveJobReport(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, "https://reports.example.com/reports/"+job.ID+".csv", url)

	exists, err := store.Exists(context.Background(), ReportKey(job.ID))
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestArchiveJobReportWithoutStore(t *testing.T) {
	env := newTestEnv(t, &fakeLookup{}, 2, 1)

	job, err := env.jobs.CreateJob(context.Background(), "no-store", makeUPCs(2))
	require.NoError(t, err)

	reporter := NewReportService(env.alertRepo, nil)
	url, err := reporter.ArchiveJobReport(context.Background(), job)
	require.NoError(t, err)
	assert.Empty(t, url)
}
