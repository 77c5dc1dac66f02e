package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownDimension 不支持的分组维度
var ErrUnknownDimension = errors.New("unknown breakdown dimension")

// Metric 指标名称
type Metric string

const (
	Impressions Metric = "Impressions"
	Clicks      Metric = "Clicks"
	Position    Metric = "Position" // 排名指标，数值越小越好，0 表示未排名
)

// Metrics 报表中指标的固定顺序
var Metrics = []Metric{Impressions, Clicks, Position}

// Dimension 分组维度
type Dimension string

const (
	Country Dimension = "country"
	Device  Dimension = "device"
)

// Dimensions 身份列中分组维度的声明顺序
var Dimensions = []Dimension{Country, Device}

// ParseDimension 解析配置中的维度名称（大小写不敏感）
func ParseDimension(s string) (Dimension, error) {
	switch d := Dimension(strings.ToLower(strings.TrimSpace(s))); d {
	case Country, Device:
		return d, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDimension, s)
	}
}

// Column 维度在报表中的列名
func (d Dimension) Column() string {
	s := string(d)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// CompositeKey 跨周期识别同一条记录的复合键
type CompositeKey struct {
	URL     string
	Query   string
	Country string
	Device  string
	// Incomplete 表示缺少某个已启用维度的取值，这样的键不与任何键相等
	Incomplete bool
}

// Equal 逐字段比较，任何一方不完整时都不相等
func (k CompositeKey) Equal(o CompositeKey) bool {
	if k.Incomplete || o.Incomplete {
		return false
	}
	return k.URL == o.URL && k.Query == o.Query && k.Country == o.Country && k.Device == o.Device
}

// Dimension 返回指定维度的取值
func (k CompositeKey) Dimension(d Dimension) string {
	switch d {
	case Country:
		return k.Country
	case Device:
		return k.Device
	}
	return ""
}

// Identity 按 URL、Query、维度的顺序输出身份字段
func (k CompositeKey) Identity(dims []Dimension) []string {
	out := make([]string, 0, 2+len(dims))
	out = append(out, k.URL, k.Query)
	for _, d := range dims {
		out = append(out, k.Dimension(d))
	}
	return out
}

// MetricRecord 指标名到数值的映射
type MetricRecord map[Metric]float64

// Record 单条原始记录
type Record struct {
	Key     CompositeKey
	Metrics MetricRecord
}

// Period 一个统计周期：单日或日期区间
type Period struct {
	Start time.Time
	End   time.Time
}

// Day 创建单日周期
func Day(t time.Time) Period {
	return Period{Start: t, End: t}
}

// Single 是否为单日周期
func (p Period) Single() bool {
	return p.Start.Equal(p.End)
}

// Token 周期在列名和文件名中的标识：单日为 YYYYMMDD，区间为 YYYYMMDD-YYYYMMDD
func (p Period) Token() string {
	if p.Single() {
		return p.Start.Format("20060102")
	}
	return p.Start.Format("20060102") + "-" + p.End.Format("20060102")
}

// PeriodDataset 某个周期内按顺序排列的原始记录
type PeriodDataset struct {
	Period  Period
	Records []Record
}

// MergedRow 一个复合键在所有周期上的指标对齐结果
type MergedRow struct {
	Key CompositeKey
	// Slots 按周期顺序排列，nil 表示该周期没有出现
	Slots []MetricRecord
}

// Present 该周期是否有记录
func (r MergedRow) Present(slot int) bool {
	return slot >= 0 && slot < len(r.Slots) && r.Slots[slot] != nil
}

// Value 取指定周期的指标值，缺失时为 0
func (r MergedRow) Value(slot int, m Metric) float64 {
	if !r.Present(slot) {
		return 0
	}
	return r.Slots[slot][m]
}

// Populated 已填充的周期数量
func (r MergedRow) Populated() int {
	n := 0
	for _, s := range r.Slots {
		if s != nil {
			n++
		}
	}
	return n
}
