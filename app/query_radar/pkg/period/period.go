package period

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iWorld-y/query_radar/app/query_radar/pkg/model"
)

var (
	// ErrNoPeriods 没有配置任何日期区间
	ErrNoPeriods = errors.New("no date ranges configured")
	// ErrInvalidDate 日期不是 YYYYMMDD 格式
	ErrInvalidDate = errors.New("invalid date, expected YYYYMMDD")
	// ErrOverlappingPeriods 同一份报表中的日期区间有重叠
	ErrOverlappingPeriods = errors.New("date ranges overlap")
)

// Range 用户输入的一个日期区间（闭区间）
type Range struct {
	Start time.Time
	End   time.Time
}

// ParseDate 解析 YYYYMMDD 格式的日期
func ParseDate(s string) (time.Time, error) {
	if len(s) != 8 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	t, err := time.Parse("20060102", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t, nil
}

// ParseRange 解析 "YYYYMMDD YYYYMMDD" 或单个日期
func ParseRange(s string) (Range, error) {
	fields := strings.Fields(s)
	switch len(fields) {
	case 1:
		d, err := ParseDate(fields[0])
		if err != nil {
			return Range{}, err
		}
		return Range{Start: d, End: d}, nil
	case 2:
		start, err := ParseDate(fields[0])
		if err != nil {
			return Range{}, err
		}
		end, err := ParseDate(fields[1])
		if err != nil {
			return Range{}, err
		}
		if end.Before(start) {
			return Range{}, fmt.Errorf("date range %q ends before it starts", s)
		}
		return Range{Start: start, End: end}, nil
	default:
		return Range{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
}

// Parse 解析以 # 分隔的多个日期区间，例如 "20240101 20240107#20240108 20240114"
func Parse(s string) ([]Range, error) {
	return ParseAll(strings.Split(s, "#"))
}

// ParseAll 逐个解析日期区间，空白项被忽略
func ParseAll(items []string) ([]Range, error) {
	var ranges []Range
	for _, s := range items {
		if strings.TrimSpace(s) == "" {
			continue
		}
		r, err := ParseRange(s)
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, r)
	}
	if len(ranges) == 0 {
		return nil, ErrNoPeriods
	}
	return ranges, nil
}

// Days 区间内的每一天
func (r Range) Days() []time.Time {
	var out []time.Time
	for d := r.Start; !d.After(r.End); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

// Plan 报表使用的周期列表
type Plan struct {
	Periods []model.Period
	// Granular 只有一个区间时按天拆分
	Granular bool
}

// Overlaps 两个闭区间是否有公共日期
func (r Range) Overlaps(o Range) bool {
	return !r.Start.After(o.End) && !o.Start.After(r.End)
}

// Expand 一个区间按天拆分为逐日周期，多个区间则每个区间作为一个聚合周期。
// 区间之间不能重叠，否则列名重复且差值失去意义。
func Expand(ranges []Range) (Plan, error) {
	if len(ranges) == 0 {
		return Plan{}, ErrNoPeriods
	}
	for i := range ranges {
		for j := i + 1; j < len(ranges); j++ {
			if ranges[i].Overlaps(ranges[j]) {
				return Plan{}, fmt.Errorf("%w: %s and %s", ErrOverlappingPeriods,
					model.Period(ranges[i]).Token(), model.Period(ranges[j]).Token())
			}
		}
	}
	if len(ranges) == 1 {
		days := ranges[0].Days()
		periods := make([]model.Period, len(days))
		for i, d := range days {
			periods[i] = model.Day(d)
		}
		return Plan{Periods: periods, Granular: true}, nil
	}
	periods := make([]model.Period, len(ranges))
	for i, r := range ranges {
		periods[i] = model.Period{Start: r.Start, End: r.End}
	}
	return Plan{Periods: periods}, nil
}

// Tokens 各周期的标识
func (p Plan) Tokens() []string {
	out := make([]string, len(p.Periods))
	for i, pr := range p.Periods {
		out[i] = pr.Token()
	}
	return out
}

// ReportSuffix 报表文件名中的周期部分：逐日为 首日-末日，聚合为用 # 连接的各区间
func (p Plan) ReportSuffix() string {
	tokens := p.Tokens()
	if len(tokens) == 0 {
		return ""
	}
	if p.Granular {
		return tokens[0] + "-" + tokens[len(tokens)-1]
	}
	return strings.Join(tokens, "#")
}

// APIDate Search Console 接口使用的日期格式
func APIDate(t time.Time) string {
	return t.Format(time.DateOnly)
}
