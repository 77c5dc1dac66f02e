package search

import (
	"context"
	"strings"

	"github.com/iWorld-y/query_radar/app/query_radar/pkg/model"
)

// Fetcher 定义通用的数据拉取接口
type Fetcher interface {
	Fetch(ctx context.Context, req *Request) (*Response, error)
}

// Request 通用拉取请求
type Request struct {
	URL        string // 跟踪的页面地址
	Period     model.Period
	Dimensions []model.Dimension // 除 page/query 以外的分组维度
}

// Response 通用拉取响应
type Response struct {
	Rows []Row
}

// Row 单条搜索表现数据
type Row struct {
	Page        string
	Query       string
	Impressions float64
	Clicks      float64
	CTR         float64
	Position    float64
	// Dimensions 分组维度的原始取值，缺失的维度不在 map 中
	Dimensions map[model.Dimension]string
}

// SameURL 比较两个地址时忽略末尾的 "/"
func SameURL(a, b string) bool {
	return strings.TrimRight(a, "/") == strings.TrimRight(b, "/")
}

// ToDataset 把拉取结果转换为一个周期的数据集。
// 缺少已启用维度取值的记录被标记为不完整，之后不会与任何记录匹配。
func ToDataset(url string, p model.Period, resp *Response, dims []model.Dimension, countries *CountryNamer) model.PeriodDataset {
	ds := model.PeriodDataset{Period: p}
	if resp == nil {
		return ds
	}
	ds.Records = make([]model.Record, 0, len(resp.Rows))
	for _, r := range resp.Rows {
		key := model.CompositeKey{URL: url, Query: r.Query}
		for _, d := range dims {
			v, ok := r.Dimensions[d]
			if !ok {
				key.Incomplete = true
				continue
			}
			switch d {
			case model.Country:
				key.Country = countries.Name(v)
			case model.Device:
				key.Device = v
			}
		}
		ds.Records = append(ds.Records, model.Record{
			Key: key,
			Metrics: model.MetricRecord{
				model.Impressions: r.Impressions,
				model.Clicks:      r.Clicks,
				model.Position:    r.Position,
			},
		})
	}
	return ds
}
