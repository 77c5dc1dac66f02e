package delta

import "github.com/iWorld-y/query_radar/app/query_radar/pkg/model"

// RankSentinel 排名为 0（未排名）时代入的值，表示比任何真实排名都差
const RankSentinel = 1000.0

// Policy 指标的比较策略
type Policy int

const (
	// Linear 数值越大越好
	Linear Policy = iota
	// Rank 数值越小越好，0 表示未排名
	Rank
)

// String 实现 fmt.Stringer
func (p Policy) String() string {
	switch p {
	case Linear:
		return "linear"
	case Rank:
		return "rank"
	}
	return "unknown"
}

// PolicyFor 按指标选择比较策略
func PolicyFor(m model.Metric) Policy {
	if m == model.Position {
		return Rank
	}
	return Linear
}

// Compare 计算前后两个周期的差值和百分比变化，正数总是表示变好
func (p Policy) Compare(prev, cur float64) (diff, pct float64) {
	return p.Diff(prev, cur), p.Pct(prev, cur)
}

// Diff 绝对差值
func (p Policy) Diff(prev, cur float64) float64 {
	if p == Rank {
		// 0 - x 而不是 -x，避免产生 -0
		return 0 - (sentinel(cur) - sentinel(prev))
	}
	return cur - prev
}

// Pct 百分比变化。
// 线性指标的基数为 0 时退化为 cur*100；排名指标的基数为 0 时除数取 1，
// 但分子仍使用哨兵值 1000。
func (p Policy) Pct(prev, cur float64) float64 {
	if p == Rank {
		div := sentinel(prev)
		if prev == 0 {
			div = 1
		}
		return 0 - (sentinel(cur)-sentinel(prev))/div*100
	}
	if prev == 0 {
		return cur * 100
	}
	return (cur - prev) / prev * 100
}

func sentinel(v float64) float64 {
	if v == 0 {
		return RankSentinel
	}
	return v
}
