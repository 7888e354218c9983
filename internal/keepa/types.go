package keepa

// Seller is one current offer for a product.
type Seller struct {
	SellerID   string  `json:"sellerId"`
	SellerName string  `json:"sellerName"`
	Price      float64 `json:"price"`
	IsFBA      bool    `json:"isFBA"`
	Condition  string  `json:"condition"`
}

// Product is the subset of a Keepa product record the analyzer consumes.
// CSV rows are [timestamp, newPrice, usedPrice] with timestamps in unix
// minutes and -1 marking missing data.
type Product struct {
	ASIN           string                 `json:"asin"`
	Title          string                 `json:"title"`
	Brand          string                 `json:"brand"`
	CurrentSellers []Seller               `json:"current_sellers"`
	Stats          map[string]interface{} `json:"stats"`
	CSV            [][]float64            `json:"csv"`
}

// Result pairs the parsed product with the raw payload, which is persisted
// verbatim on the batch item.
type Result struct {
	Product *Product
	Raw     map[string]interface{}
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type productResponse struct {
	Products   []Product `json:"products"`
	TokensLeft int       `json:"tokensLeft"`
	Error      *apiError `json:"error,omitempty"`
}

type tokenResponse struct {
	TokensLeft int       `json:"tokensLeft"`
	Error      *apiError `json:"error,omitempty"`
}
