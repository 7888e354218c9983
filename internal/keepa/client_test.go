package keepa

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string) *Client {
	return NewClient(&Config{
		APIKey:         "test-key",
		APIURL:         url,
		Timeout:        2 * time.Second,
		RequestsPerSec: 1000,
		MaxRetries:     0,
	})
}

func TestLookupParsesProduct(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/product", r.URL.Path)
		gotQuery = map[string]string{
			"key":     r.URL.Query().Get("key"),
			"code":    r.URL.Query().Get("code"),
			"domain":  r.URL.Query().Get("domain"),
			"history": r.URL.Query().Get("history"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"products": [{
				"asin": "B000TEST01",
				"title": "Widget",
				"current_sellers": [{"sellerName": "Shop", "price": 9.99}],
				"csv": [[29000000, 12.5, -1]]
			}],
			"tokensLeft": 100
		}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	result, err := client.Lookup(context.Background(), "012345678905")
	require.NoError(t, err)
	require.NotNil(t, result)
	require.NotNil(t, result.Product)

	assert.Equal(t, "B000TEST01", result.Product.ASIN)
	require.Len(t, result.Product.CurrentSellers, 1)
	assert.InDelta(t, 9.99, result.Product.CurrentSellers[0].Price, 0.001)
	assert.NotNil(t, result.Raw["products"])

	assert.Equal(t, "test-key", gotQuery["key"])
	assert.Equal(t, "012345678905", gotQuery["code"])
	assert.Equal(t, "1", gotQuery["domain"])
	assert.Equal(t, "1", gotQuery["history"])
}

func TestLookupNoDataReturnsNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"products": [], "tokensLeft": 100}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	result, err := client.Lookup(context.Background(), "000000000000")
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestLookupServiceUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	_, err := client.Lookup(context.Background(), "000000000000")
	require.ErrorIs(t, err, ErrServiceUnavailable)
}

func TestLookupConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := newTestClient(srv.URL)
	_, err := client.Lookup(context.Background(), "000000000000")
	require.ErrorIs(t, err, ErrServiceUnavailable)
}

func TestLookupRateLimitedIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	_, err := client.Lookup(context.Background(), "000000000000")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrServiceUnavailable)
}

func TestLookupAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"products": [{}], "error": {"type": "keyInvalid", "message": "invalid api key"}}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	_, err := client.Lookup(context.Background(), "000000000000")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid api key")
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/token", r.URL.Path)
		w.Write([]byte(`{"tokensLeft": 42}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	require.NoError(t, client.Ping(context.Background()))
}

func TestPingUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	err := client.Ping(context.Background())
	require.ErrorIs(t, err, ErrServiceUnavailable)
}
