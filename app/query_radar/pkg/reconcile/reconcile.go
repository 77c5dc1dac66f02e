// Package reconcile 将多个周期的原始记录按复合键对齐为合并行。
//
// 匹配采用从左到右的贪心策略：每条尚未被消费的记录作为种子，在之后的每个周期中
// 取第一条键相等且未被消费的记录。同一周期内存在重复键时按位置先后决定，
// 这可能把本应区分的两条记录合并在一起，属于已知限制。
package reconcile

import (
	"github.com/iWorld-y/query_radar/app/query_radar/pkg/model"
)

// periodIndex 单个周期的候选索引：复合键 -> 按位置排列的记录下标队列
type periodIndex struct {
	records  []model.Record
	queues   map[model.CompositeKey][]int
	consumed []bool
}

func newPeriodIndex(records []model.Record) *periodIndex {
	idx := &periodIndex{
		records:  records,
		queues:   make(map[model.CompositeKey][]int),
		consumed: make([]bool, len(records)),
	}
	for i, rec := range records {
		idx.queues[rec.Key] = append(idx.queues[rec.Key], i)
	}
	return idx
}

// take 取出第一条与 key 相等（CompositeKey.Equal）且未消费的记录并标记为已消费。
// 队列只用于缩小候选范围，是否相等由 Equal 决定。
func (idx *periodIndex) take(key model.CompositeKey) (model.Record, bool) {
	q := idx.queues[key]
	for len(q) > 0 {
		i := q[0]
		q = q[1:]
		if idx.consumed[i] || !idx.records[i].Key.Equal(key) {
			continue
		}
		idx.consumed[i] = true
		idx.queues[key] = q
		return idx.records[i], true
	}
	delete(idx.queues, key)
	return model.Record{}, false
}

// Reconcile 按周期顺序对齐记录，每个种子产生一条合并行。
// 输出顺序为种子首次出现的顺序（先周期，后周期内位置）。
func Reconcile(datasets []model.PeriodDataset) []model.MergedRow {
	indexes := make([]*periodIndex, len(datasets))
	total := 0
	for j, ds := range datasets {
		indexes[j] = newPeriodIndex(ds.Records)
		total += len(ds.Records)
	}

	rows := make([]model.MergedRow, 0, total)
	for j0, idx := range indexes {
		for k0, seed := range idx.records {
			if idx.consumed[k0] {
				continue
			}
			idx.consumed[k0] = true

			row := model.MergedRow{
				Key:   seed.Key,
				Slots: make([]model.MetricRecord, len(datasets)),
			}
			row.Slots[j0] = metricsOf(seed)

			for j1 := j0 + 1; j1 < len(indexes); j1++ {
				if match, ok := indexes[j1].take(seed.Key); ok {
					row.Slots[j1] = metricsOf(match)
				}
			}
			rows = append(rows, row)
		}
	}
	return rows
}

// metricsOf 保证已出现的周期不会被当作缺失
func metricsOf(rec model.Record) model.MetricRecord {
	if rec.Metrics == nil {
		return model.MetricRecord{}
	}
	return rec.Metrics
}
