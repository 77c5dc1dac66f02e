package report

import (
	"fmt"
	"sort"

	"github.com/samber/lo"

	"github.com/iWorld-y/query_radar/app/query_radar/pkg/delta"
	"github.com/iWorld-y/query_radar/app/query_radar/pkg/model"
)

// Row 报表中的一行
type Row struct {
	// Identity 身份字段，顺序与 Layout 的身份列一致
	Identity []string
	// Values 指标列名 -> 数值
	Values map[string]float64
}

// Layout 报表的列布局，一次报表内所有行共用
type Layout struct {
	dims     []model.Dimension
	metrics  []model.Metric
	tokens   []string
	identity []string
	header   []string
}

// ValueColumn 某指标在某周期的取值列名
func ValueColumn(m model.Metric, token string) string {
	return fmt.Sprintf("%s_%s", m, token)
}

// DiffColumn 差值列名
func DiffColumn(m model.Metric, cur, prev string) string {
	return fmt.Sprintf("%s_diff_%s_%s", m, cur, prev)
}

// PctColumn 百分比列名
func PctColumn(m model.Metric, cur, prev string) string {
	return fmt.Sprintf("%s_pct_%s_%s", m, cur, prev)
}

// IdentityColumns 身份列：URL、Query，然后是按声明顺序启用的维度
func IdentityColumns(dims []model.Dimension) []string {
	cols := []string{"URL", "Query"}
	for _, d := range model.Dimensions {
		if lo.Contains(dims, d) {
			cols = append(cols, d.Column())
		}
	}
	return cols
}

// NewLayout 按维度、周期和指标顺序计算表头。
// 每个指标先输出各周期的取值列，再输出排好序的 diff/pct 列。
func NewLayout(dims []model.Dimension, periods []model.Period, metrics []model.Metric) *Layout {
	l := &Layout{
		dims:     lo.Filter(model.Dimensions, func(d model.Dimension, _ int) bool { return lo.Contains(dims, d) }),
		metrics:  metrics,
		tokens:   lo.Map(periods, func(p model.Period, _ int) string { return p.Token() }),
		identity: IdentityColumns(dims),
	}

	l.header = append(l.header, l.identity...)
	for _, m := range metrics {
		var comparisons []string
		for i, tok := range l.tokens {
			l.header = append(l.header, ValueColumn(m, tok))
			if i > 0 {
				comparisons = append(comparisons,
					DiffColumn(m, tok, l.tokens[i-1]),
					PctColumn(m, tok, l.tokens[i-1]))
			}
		}
		sort.Strings(comparisons)
		l.header = append(l.header, comparisons...)
	}
	return l
}

// Header 完整表头
func (l *Layout) Header() []string {
	return l.header
}

// Dimensions 布局启用的维度
func (l *Layout) Dimensions() []model.Dimension {
	return l.dims
}

// Build 把一条合并行展开为报表行。缺失的周期按 0 处理，差值基于已展开的取值计算。
func (l *Layout) Build(row model.MergedRow) Row {
	out := Row{
		Identity: row.Key.Identity(l.dims),
		Values:   make(map[string]float64, len(l.header)-len(l.identity)),
	}
	for _, m := range l.metrics {
		policy := delta.PolicyFor(m)
		for i, tok := range l.tokens {
			cur := row.Value(i, m)
			out.Values[ValueColumn(m, tok)] = cur
			if i == 0 {
				continue
			}
			prevTok := l.tokens[i-1]
			diff, pct := policy.Compare(out.Values[ValueColumn(m, prevTok)], cur)
			out.Values[DiffColumn(m, tok, prevTok)] = diff
			out.Values[PctColumn(m, tok, prevTok)] = pct
		}
	}
	return out
}

// BuildAll 依次展开所有合并行
func (l *Layout) BuildAll(rows []model.MergedRow) []Row {
	return lo.Map(rows, func(r model.MergedRow, _ int) Row { return l.Build(r) })
}
