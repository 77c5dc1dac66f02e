package searchconsole

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/iWorld-y/query_radar/app/query_radar/pkg/model"
	"github.com/iWorld-y/query_radar/app/query_radar/pkg/period"
	"github.com/iWorld-y/query_radar/app/query_radar/pkg/search"
)

const (
	// DefaultEndpoint Search Console API 地址
	DefaultEndpoint = "https://searchconsole.googleapis.com/webmasters/v3"
	// DefaultRowLimit 单次请求的最大行数
	DefaultRowLimit = 25000
)

// ErrRateLimited 重试后仍被限流
var ErrRateLimited = errors.New("search console rate limit exceeded")

// Options 客户端配置
type Options struct {
	Endpoint   string
	RowLimit   int
	Timeout    time.Duration
	Limiter    *rate.Limiter
	MaxRetries int
	BaseDelay  time.Duration
	HTTPClient *http.Client
}

// Client Search Console searchAnalytics 客户端
type Client struct {
	endpoint   string
	tokens     TokenSource
	client     *http.Client
	limiter    *rate.Limiter
	rowLimit   int
	maxRetries int
	baseDelay  time.Duration
}

// Ensure Client implements search.Fetcher
var _ search.Fetcher = (*Client)(nil)

// NewClient 创建客户端，未设置的选项使用默认值
func NewClient(tokens TokenSource, opts Options) *Client {
	c := &Client{
		endpoint:   strings.TrimRight(opts.Endpoint, "/"),
		tokens:     tokens,
		client:     opts.HTTPClient,
		limiter:    opts.Limiter,
		rowLimit:   opts.RowLimit,
		maxRetries: opts.MaxRetries,
		baseDelay:  opts.BaseDelay,
	}
	if c.endpoint == "" {
		c.endpoint = DefaultEndpoint
	}
	if c.rowLimit <= 0 {
		c.rowLimit = DefaultRowLimit
	}
	if c.client == nil {
		t := opts.Timeout
		if t == 0 {
			t = 60 * time.Second
		}
		c.client = &http.Client{Timeout: t}
	}
	if c.limiter == nil {
		c.limiter = rate.NewLimiter(rate.Inf, 1)
	}
	if c.baseDelay == 0 {
		c.baseDelay = 2 * time.Second
	}
	return c
}

// QueryRequest searchAnalytics.query 请求体
type QueryRequest struct {
	StartDate  string   `json:"startDate"`
	EndDate    string   `json:"endDate"`
	Dimensions []string `json:"dimensions"`
	RowLimit   int      `json:"rowLimit"`
	StartRow   int      `json:"startRow"`
}

// QueryResponse searchAnalytics.query 响应
type QueryResponse struct {
	Rows []QueryRow `json:"rows"`
}

// QueryRow 单行结果，keys 与请求的 dimensions 一一对应
type QueryRow struct {
	Keys        []string `json:"keys"`
	Clicks      float64  `json:"clicks"`
	Impressions float64  `json:"impressions"`
	CTR         float64  `json:"ctr"`
	Position    float64  `json:"position"`
}

// SiteURL 取页面地址的协议和主机部分作为 Search Console 资源
func SiteURL(page string) string {
	parts := strings.Split(page, "/")
	if len(parts) < 3 {
		return page
	}
	return parts[0] + "//" + parts[2]
}

// Fetch 按 startRow 分页拉取整个周期的数据，只保留与跟踪页面一致的行
func (c *Client) Fetch(ctx context.Context, req *search.Request) (*search.Response, error) {
	dims := []string{"page", "query"}
	for _, d := range req.Dimensions {
		dims = append(dims, string(d))
	}

	site := SiteURL(req.URL)
	var rows []search.Row
	for startRow := 0; ; startRow += c.rowLimit {
		body := QueryRequest{
			StartDate:  period.APIDate(req.Period.Start),
			EndDate:    period.APIDate(req.Period.End),
			Dimensions: dims,
			RowLimit:   c.rowLimit,
			StartRow:   startRow,
		}
		resp, err := c.query(ctx, site, body)
		if err != nil {
			return nil, err
		}
		for _, r := range resp.Rows {
			row := toRow(dims, r)
			if search.SameURL(row.Page, req.URL) {
				rows = append(rows, row)
			}
		}
		if len(resp.Rows) < c.rowLimit {
			break
		}
	}
	return &search.Response{Rows: rows}, nil
}

func toRow(dims []string, r QueryRow) search.Row {
	row := search.Row{
		Impressions: r.Impressions,
		Clicks:      r.Clicks,
		CTR:         r.CTR,
		Position:    r.Position,
		Dimensions:  make(map[model.Dimension]string),
	}
	for i, key := range r.Keys {
		if i >= len(dims) {
			break
		}
		switch dims[i] {
		case "page":
			row.Page = key
		case "query":
			row.Query = key
		default:
			row.Dimensions[model.Dimension(dims[i])] = key
		}
	}
	return row
}

// query 执行一次请求，遇到 429 和 5xx 时指数退避重试
func (c *Client) query(ctx context.Context, site string, body QueryRequest) (*QueryResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request failed: %w", err)
	}
	endpoint := fmt.Sprintf("%s/sites/%s/searchAnalytics/query", c.endpoint, url.QueryEscape(site))

	var lastErr error
	for i := 0; i <= c.maxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.baseDelay * time.Duration(1<<(i-1))):
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		status, data, err := c.do(ctx, endpoint, payload)
		if err != nil {
			return nil, err
		}
		switch {
		case status == http.StatusOK:
			var resp QueryResponse
			if err := json.Unmarshal(data, &resp); err != nil {
				return nil, fmt.Errorf("unmarshal response failed: %w", err)
			}
			return &resp, nil
		case status == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("%w: %s", ErrRateLimited, string(data))
		case status >= http.StatusInternalServerError:
			lastErr = fmt.Errorf("search console api error (status %d): %s", status, string(data))
		default:
			return nil, fmt.Errorf("search console api error (status %d): %s", status, string(data))
		}
	}
	return nil, lastErr
}

func (c *Client) do(ctx context.Context, endpoint string, payload []byte) (int, []byte, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("get access token: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("create request failed: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(httpReq)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read body failed: %w", err)
	}
	return res.StatusCode, data, nil
}
