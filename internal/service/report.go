package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/kaiwen/pricewatch/internal/domain"
	"github.com/kaiwen/pricewatch/internal/logger"
	"github.com/kaiwen/pricewatch/internal/repository"
	"github.com/kaiwen/pricewatch/internal/storage"
)

// ReportService renders a job's price alerts as a CSV report and archives
// it to object storage. The store is optional; without one reports are only
// generated on demand.
type ReportService struct {
	alertRepo *repository.AlertRepository
	store     storage.ObjectStorage
}

// NewReportService creates a report service. Pass a nil store to disable
// archiving.
func NewReportService(alertRepo *repository.AlertRepository, store storage.ObjectStorage) *ReportService {
	return &ReportService{alertRepo: alertRepo, store: store}
}

// GenerateCSV renders the alert report for a job.
func (s *ReportService) GenerateCSV(ctx context.Context, job *domain.BatchJob) ([]byte, error) {
	alerts, err := s.alertRepo.ListByJob(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load alerts: %w", err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"upc", "seller_name", "current_price", "historical_price", "price_change_percent", "detected_at"}
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write report header: %w", err)
	}
	for _, alert := range alerts {
		row := []string{
			alert.UPC,
			alert.SellerName,
			strconv.FormatFloat(alert.CurrentPrice, 'f', 2, 64),
			strconv.FormatFloat(alert.HistoricalPrice, 'f', 2, 64),
			strconv.FormatFloat(alert.PriceChangePercent, 'f', 1, 64),
			alert.DetectedAt.UTC().Format(time.RFC3339),
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write report row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush report: %w", err)
	}
	return buf.Bytes(), nil
}

// ReportKey returns the archive object key for a job's report.
func ReportKey(jobID string) string {
	return fmt.Sprintf("reports/%s.csv", jobID)
}

// ArchiveJobReport generates the CSV and uploads it, returning the public
// URL. With no store configured it returns an empty URL without error.
func (s *ReportService) ArchiveJobReport(ctx context.Context, job *domain.BatchJob) (string, error) {
	if s.store == nil {
		return "", nil
	}

	data, err := s.GenerateCSV(ctx, job)
	if err != nil {
		return "", err
	}

	key := ReportKey(job.ID)
	if err := s.store.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), "text/csv"); err != nil {
		return "", fmt.Errorf("failed to archive report: %w", err)
	}

	url := s.store.GetURL(key)
	logger.CtxInfo(ctx, "Archived report for job %s at %s (%d bytes)", job.ID, url, len(data))
	return url, nil
}
