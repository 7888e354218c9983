package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kaiwen/pricewatch/internal/domain"
	"github.com/kaiwen/pricewatch/internal/logger"
)

// Notifier receives job completion events. Implementations must be safe for
// concurrent use.
type Notifier interface {
	NotifyJobFinished(ctx context.Context, job *domain.BatchJob, alertCount int64, reportURL string) error
}

// WebhookNotifier posts a JSON completion summary to a configured endpoint.
type WebhookNotifier struct {
	client *resty.Client
	url    string
}

// NewWebhookNotifier creates a webhook notifier posting to the given URL.
func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(1 * time.Second)
	return &WebhookNotifier{client: client, url: url}
}

type webhookPayload struct {
	JobID            string     `json:"job_id"`
	JobName          string     `json:"job_name"`
	Status           string     `json:"status"`
	TotalBatches     int        `json:"total_batches"`
	CompletedBatches int        `json:"completed_batches"`
	AlertCount       int64      `json:"alert_count"`
	ReportURL        string     `json:"report_url,omitempty"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// NotifyJobFinished posts the completion summary. Non-2xx responses are
// reported as errors so the caller can log them.
func (n *WebhookNotifier) NotifyJobFinished(ctx context.Context, job *domain.BatchJob, alertCount int64, reportURL string) error {
	payload := webhookPayload{
		JobID:            job.ID,
		JobName:          job.JobName,
		Status:           string(job.Status),
		TotalBatches:     job.TotalBatches,
		CompletedBatches: job.CompletedBatches,
		AlertCount:       alertCount,
		ReportURL:        reportURL,
		ErrorMessage:     job.ErrorMessage,
		CompletedAt:      job.CompletedAt,
	}

	resp, err := n.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(n.url)
	if err != nil {
		return fmt.Errorf("failed to post webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode())
	}
	return nil
}

// LogNotifier writes completion events to the log. Used when no webhook is
// configured.
type LogNotifier struct{}

// NotifyJobFinished logs the completion summary.
func (LogNotifier) NotifyJobFinished(ctx context.Context, job *domain.BatchJob, alertCount int64, reportURL string) error {
	logger.CtxInfo(ctx, "Job %s (%q) finished: status=%s batches=%d/%d alerts=%d report=%s",
		job.ID, job.JobName, job.Status, job.CompletedBatches, job.TotalBatches, alertCount, reportURL)
	return nil
}
