package service

import (
	"time"

	"github.com/kaiwen/pricewatch/internal/keepa"
)

// OffPriceSeller is a current offer priced below the historical average.
type OffPriceSeller struct {
	SellerID           string  `json:"seller_id"`
	SellerName         string  `json:"seller_name"`
	CurrentPrice       float64 `json:"current_price"`
	HistoricalPrice    float64 `json:"historical_price"`
	PriceChange        float64 `json:"price_change"`
	PriceChangePercent float64 `json:"price_change_percent"`
	IsFBA              bool    `json:"is_fba"`
	Condition          string  `json:"condition"`
}

// pricePoint is one entry of a product's price history. Timestamps are unix
// minutes, matching the Keepa CSV encoding.
type pricePoint struct {
	minutes float64
	price   float64
}

// PriceAnalyzer detects sellers whose current price sits below the average
// historical price of the product.
type PriceAnalyzer struct {
	historicalDays int
	now            func() time.Time
}

// NewPriceAnalyzer creates an analyzer averaging over the given number of
// days of price history (falls back to all history when the window is empty).
func NewPriceAnalyzer(historicalDays int) *PriceAnalyzer {
	if historicalDays <= 0 {
		historicalDays = 30
	}
	return &PriceAnalyzer{
		historicalDays: historicalDays,
		now:            time.Now,
	}
}

// Analyze returns every current seller offering below the historical
// average. An empty slice means no alert condition was crossed; products
// without sellers or history never alert.
func (a *PriceAnalyzer) Analyze(product *keepa.Product) []OffPriceSeller {
	if product == nil || len(product.CurrentSellers) == 0 {
		return nil
	}

	history := extractPriceHistory(product.CSV)
	if len(history) == 0 {
		return nil
	}

	nowMinutes := float64(a.now().Unix()) / 60
	avg, ok := averagePrice(history, nowMinutes-float64(a.historicalDays)*24*60)
	if !ok {
		return nil
	}

	var offPrice []OffPriceSeller
	for _, seller := range product.CurrentSellers {
		if seller.Price <= 0 || seller.Price >= avg {
			continue
		}
		change := seller.Price - avg
		offPrice = append(offPrice, OffPriceSeller{
			SellerID:           seller.SellerID,
			SellerName:         seller.SellerName,
			CurrentPrice:       seller.Price,
			HistoricalPrice:    avg,
			PriceChange:        change,
			PriceChangePercent: change / avg * 100,
			IsFBA:              seller.IsFBA,
			Condition:          seller.Condition,
		})
	}
	return offPrice
}

// extractPriceHistory flattens Keepa CSV rows ([timestamp, new, used], -1
// meaning no data) into price points, preferring the new price.
func extractPriceHistory(csv [][]float64) []pricePoint {
	var history []pricePoint
	for _, entry := range csv {
		if len(entry) < 3 {
			continue
		}
		price := entry[1]
		if price == -1 {
			price = entry[2]
		}
		if price == -1 {
			continue
		}
		history = append(history, pricePoint{minutes: entry[0], price: price})
	}
	return history
}

// averagePrice averages prices newer than cutoff, falling back to the whole
// history when the window holds no samples.
func averagePrice(history []pricePoint, cutoffMinutes float64) (float64, bool) {
	sum, n := 0.0, 0
	for _, p := range history {
		if p.minutes >= cutoffMinutes {
			sum += p.price
			n++
		}
	}
	if n == 0 {
		for _, p := range history {
			sum += p.price
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
