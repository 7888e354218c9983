package domain

import "time"

// JobStatus represents the status of a batch job.
// Values include JobStatusPending, JobStatusProcessing, JobStatusCompleted,
// and JobStatusFailed. Completed and failed are terminal.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether the job status permits no further transitions.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// BatchJob represents one end-to-end run over a UPC snapshot. The number of
// batches is fixed at creation time; only the orchestrator mutates a job.
type BatchJob struct {
	ID               string     `gorm:"type:text;primaryKey" json:"id"`
	JobName          string     `gorm:"type:text;not null" json:"job_name"`
	Status           JobStatus  `gorm:"type:text;index;default:pending" json:"status"`
	TotalBatches     int        `gorm:"default:0" json:"total_batches"`
	CompletedBatches int        `gorm:"default:0" json:"completed_batches"`
	CreatedAt        time.Time  `json:"created_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	ErrorMessage     string     `json:"error_message,omitempty"`
}

// TableName returns the database table name for BatchJob.
func (BatchJob) TableName() string {
	return "batch_jobs"
}
