package domain

import "time"

// UPC is a single product identifier in the lookup universe. Rows are
// immutable once created; uniqueness is enforced by the database index.
type UPC struct {
	ID        string    `gorm:"type:text;primaryKey" json:"id"`
	UPC       string    `gorm:"type:text;not null;uniqueIndex:idx_upcs_upc" json:"upc"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for UPC.
func (UPC) TableName() string {
	return "upcs"
}
