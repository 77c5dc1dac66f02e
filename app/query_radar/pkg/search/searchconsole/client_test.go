package searchconsole

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iWorld-y/query_radar/app/query_radar/pkg/model"
	"github.com/iWorld-y/query_radar/app/query_radar/pkg/search"
)

func testRequest() *search.Request {
	d := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return &search.Request{
		URL:        "https://example.com/a/",
		Period:     model.Period{Start: d, End: d.AddDate(0, 0, 6)},
		Dimensions: []model.Dimension{model.Device},
	}
}

func TestSiteURL(t *testing.T) {
	assert.Equal(t, "https://example.com", SiteURL("https://example.com/blog/post"))
	assert.Equal(t, "example.com", SiteURL("example.com"))
}

func TestClient_FetchPaginatesAndFilters(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/sites/https%3A%2F%2Fexample.com/searchAnalytics/query", r.URL.EscapedPath())
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		var req QueryRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "2024-01-01", req.StartDate)
		assert.Equal(t, "2024-01-07", req.EndDate)
		assert.Equal(t, []string{"page", "query", "device"}, req.Dimensions)
		assert.Equal(t, 2, req.RowLimit)

		var resp QueryResponse
		switch req.StartRow {
		case 0:
			resp.Rows = []QueryRow{
				{Keys: []string{"https://example.com/a", "shoes", "MOBILE"}, Impressions: 10, Clicks: 1, Position: 2.5},
				{Keys: []string{"https://example.com/b", "boots", "MOBILE"}, Impressions: 3},
			}
		case 2:
			resp.Rows = []QueryRow{
				{Keys: []string{"https://example.com/a/", "sandals", "DESKTOP"}, Impressions: 4, Position: 7},
			}
		default:
			t.Errorf("unexpected startRow %d", req.StartRow)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewClient(StaticToken("test-token"), Options{Endpoint: srv.URL, RowLimit: 2})
	resp, err := c.Fetch(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	require.Len(t, resp.Rows, 2)
	assert.Equal(t, "shoes", resp.Rows[0].Query)
	assert.Equal(t, "MOBILE", resp.Rows[0].Dimensions[model.Device])
	assert.Equal(t, 2.5, resp.Rows[0].Position)
	assert.Equal(t, "sandals", resp.Rows[1].Query)
}

func TestClient_RetriesOnRateLimit(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(QueryResponse{})
	}))
	defer srv.Close()

	c := NewClient(StaticToken("t"), Options{Endpoint: srv.URL, MaxRetries: 2, BaseDelay: time.Millisecond})
	resp, err := c.Fetch(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Empty(t, resp.Rows)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClient_GivesUpAfterRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(StaticToken("t"), Options{Endpoint: srv.URL, MaxRetries: 1, BaseDelay: time.Millisecond})
	_, err := c.Fetch(context.Background(), testRequest())
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestClient_ClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(StaticToken("t"), Options{Endpoint: srv.URL, MaxRetries: 3, BaseDelay: time.Millisecond})
	_, err := c.Fetch(context.Background(), testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
