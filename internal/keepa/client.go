package keepa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// ErrServiceUnavailable signals that Keepa is wholly unreachable. Batch
// workers treat it as fatal for the batch; every other lookup error is a
// transient per-item failure.
var ErrServiceUnavailable = errors.New("keepa service unavailable")

// Config holds Keepa client configuration.
type Config struct {
	APIKey         string
	APIURL         string
	Timeout        time.Duration
	RequestsPerSec float64
	MaxRetries     int
	RetryWaitTime  time.Duration
	StatsDays      int
	AmazonDomainID int
}

// Client is a rate-limited Keepa API client. Safe for concurrent use by
// multiple batch workers; the limiter spreads requests across them.
type Client struct {
	http      *resty.Client
	limiter   *rate.Limiter
	apiKey    string
	statsDays int
	domainID  int
}

// NewClient creates a new Keepa client. Retries with backoff on 429 and 5xx
// responses before surfacing an error to the caller.
func NewClient(cfg *Config) *Client {
	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 1.0
	}
	statsDays := cfg.StatsDays
	if statsDays <= 0 {
		statsDays = 180
	}
	domainID := cfg.AmazonDomainID
	if domainID <= 0 {
		domainID = 1 // amazon.com
	}

	client := resty.New().
		SetBaseURL(cfg.APIURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(cfg.RetryWaitTime).
		SetRetryMaxWaitTime(30 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil || r == nil {
				return false
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
		})

	return &Client{
		http:      client,
		limiter:   rate.NewLimiter(rate.Limit(rps), 1),
		apiKey:    cfg.APIKey,
		statsDays: statsDays,
		domainID:  domainID,
	}
}

// Lookup fetches product data for a single UPC. Returns (nil, nil) when
// Keepa has no data for the code. The caller's context bounds the total
// call time including rate-limiter wait and retries.
func (c *Client) Lookup(ctx context.Context, upc string) (*Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"key":     c.apiKey,
			"code":    upc,
			"domain":  strconv.Itoa(c.domainID),
			"stats":   strconv.Itoa(c.statsDays),
			"history": "1",
		}).
		Get("/product")
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("keepa request timed out for upc %s: %w", upc, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}

	switch {
	case resp.StatusCode() == http.StatusServiceUnavailable:
		return nil, fmt.Errorf("%w: status %d", ErrServiceUnavailable, resp.StatusCode())
	case resp.StatusCode() == http.StatusTooManyRequests:
		return nil, fmt.Errorf("keepa rate limit exceeded for upc %s", upc)
	case !resp.IsSuccess():
		return nil, fmt.Errorf("keepa request failed for upc %s: status %d", upc, resp.StatusCode())
	}

	var parsed productResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode keepa response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("keepa api error: %s", parsed.Error.Message)
	}
	if len(parsed.Products) == 0 {
		return nil, nil
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(resp.Body(), &raw); err != nil {
		return nil, fmt.Errorf("failed to decode keepa response: %w", err)
	}

	return &Result{Product: &parsed.Products[0], Raw: raw}, nil
}

// Ping checks Keepa availability via the token endpoint. Batch workers call
// it once before item processing to take the fatal-abort path early.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("key", c.apiKey).
		Get("/token")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	if resp.StatusCode() >= 500 {
		return fmt.Errorf("%w: status %d", ErrServiceUnavailable, resp.StatusCode())
	}

	var parsed tokenResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err == nil && parsed.Error != nil {
		return fmt.Errorf("%w: %s", ErrServiceUnavailable, parsed.Error.Message)
	}
	return nil
}

// isTimeout distinguishes per-call timeouts (transient, item-level) from
// connectivity failures (fatal, batch-level).
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
