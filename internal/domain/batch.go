package domain

import "time"

// BatchStatus represents the status of a UPC batch.
// Completed, failed, and cancelled are terminal sinks.
type BatchStatus string

const (
	BatchStatusPending    BatchStatus = "pending"
	BatchStatusProcessing BatchStatus = "processing"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusFailed     BatchStatus = "failed"
	BatchStatusCancelled  BatchStatus = "cancelled"
)

// IsTerminal reports whether the batch status permits no further transitions.
func (s BatchStatus) IsTerminal() bool {
	return s == BatchStatusCompleted || s == BatchStatusFailed || s == BatchStatusCancelled
}

// TerminalBatchStatuses lists every terminal batch status. Used by
// conditional updates that must never regress a finished batch.
var TerminalBatchStatuses = []BatchStatus{
	BatchStatusCompleted,
	BatchStatusFailed,
	BatchStatusCancelled,
}

// UPCBatch is a fixed-size partition of a job's UPC snapshot. Batch numbers
// are 1-based, gapless, and unique per job. Exactly one worker ever writes a
// given batch.
type UPCBatch struct {
	ID             string      `gorm:"type:text;primaryKey" json:"id"`
	BatchJobID     string      `gorm:"type:text;not null;index;uniqueIndex:idx_upc_batches_job_number" json:"batch_job_id"`
	BatchNumber    int         `gorm:"not null;uniqueIndex:idx_upc_batches_job_number" json:"batch_number"`
	Status         BatchStatus `gorm:"type:text;index;default:pending" json:"status"`
	UPCCount       int         `gorm:"default:0" json:"upc_count"`
	ProcessedCount int         `gorm:"default:0" json:"processed_count"`
	CreatedAt      time.Time   `json:"created_at"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty"`
	ErrorMessage   string      `json:"error_message,omitempty"`
}

// TableName returns the database table name for UPCBatch.
func (UPCBatch) TableName() string {
	return "upc_batches"
}

// ItemStatus represents the status of a single UPC lookup within a batch.
type ItemStatus string

const (
	ItemStatusPending    ItemStatus = "pending"
	ItemStatusProcessing ItemStatus = "processing"
	ItemStatusCompleted  ItemStatus = "completed"
	ItemStatusFailed     ItemStatus = "failed"
)

// UPCBatchItem is one UPC within a batch. Created when the batch is
// materialized and mutated once, by the worker processing that batch.
type UPCBatchItem struct {
	ID           string     `gorm:"type:text;primaryKey" json:"id"`
	UPCBatchID   string     `gorm:"type:text;not null;index" json:"upc_batch_id"`
	UPC          string     `gorm:"type:text;not null" json:"upc"`
	KeepaData    JSONMap    `gorm:"type:text" json:"keepa_data,omitempty"`
	Status       ItemStatus `gorm:"type:text;default:pending" json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
}

// TableName returns the database table name for UPCBatchItem.
func (UPCBatchItem) TableName() string {
	return "upc_batch_items"
}
