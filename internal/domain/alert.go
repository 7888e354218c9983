package domain

import "time"

// PriceAlert records a seller currently offering a product below its
// historical average price. Alerts are append-only and never mutated.
type PriceAlert struct {
	ID                 string    `gorm:"type:text;primaryKey" json:"id"`
	BatchJobID         string    `gorm:"type:text;not null;index" json:"batch_job_id"`
	UPC                string    `gorm:"type:text;not null;index" json:"upc"`
	SellerName         string    `json:"seller_name,omitempty"`
	CurrentPrice       float64   `json:"current_price"`
	HistoricalPrice    float64   `json:"historical_price"`
	PriceChangePercent float64   `json:"price_change_percent"`
	KeepaData          JSONMap   `gorm:"type:text" json:"keepa_data,omitempty"`
	DetectedAt         time.Time `json:"detected_at"`
}

// TableName returns the database table name for PriceAlert.
func (PriceAlert) TableName() string {
	return "price_alerts"
}
