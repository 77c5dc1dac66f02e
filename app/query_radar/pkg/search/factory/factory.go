package factory

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/iWorld-y/query_radar/app/query_radar/pkg/config"
	"github.com/iWorld-y/query_radar/app/query_radar/pkg/search"
	"github.com/iWorld-y/query_radar/app/query_radar/pkg/search/csvsource"
	"github.com/iWorld-y/query_radar/app/query_radar/pkg/search/searchconsole"
)

// NewLimiter 按每分钟请求数限流，QPS 作为突发容量；RPM 未配置时不限流
func NewLimiter(c config.ConcurrencyConfig) *rate.Limiter {
	if c.RPM <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := c.QPS
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(float64(c.RPM)/60.0), burst)
}

// NewFetcher 根据配置创建数据源
// ctx 用于后续刷新访问令牌，需要在整个运行期间有效
func NewFetcher(ctx context.Context, cfg *config.Config) (search.Fetcher, error) {
	switch cfg.Search.Provider {
	case "", "searchconsole":
		sc := cfg.Search.SearchConsole
		tokens, err := searchconsole.LoadServiceAccount(ctx, cfg.CredentialsFile, sc.TokenURL)
		if err != nil {
			return nil, fmt.Errorf("load credentials: %w", err)
		}
		return searchconsole.NewClient(tokens, searchconsole.Options{
			Endpoint:   sc.Endpoint,
			RowLimit:   sc.RowLimit,
			Timeout:    time.Duration(sc.Timeout) * time.Second,
			Limiter:    NewLimiter(cfg.Concurrency),
			MaxRetries: cfg.Concurrency.MaxRetries,
		}), nil

	case "csv":
		dir := cfg.Search.CSV.Dir
		if dir == "" {
			return nil, fmt.Errorf("csv source dir is missing")
		}
		return csvsource.New(dir), nil

	default:
		return nil, fmt.Errorf("unknown search provider: %s", cfg.Search.Provider)
	}
}
