// Package csvsource 从之前导出的原始数据文件中读取数据，用于离线重跑报表。
package csvsource

import (
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/iWorld-y/query_radar/app/query_radar/pkg/model"
	"github.com/iWorld-y/query_radar/app/query_radar/pkg/report"
	"github.com/iWorld-y/query_radar/app/query_radar/pkg/search"
)

// Source 读取 dir 下按 report.DataFileName 命名的文件
type Source struct {
	dir string
}

// Ensure Source implements search.Fetcher
var _ search.Fetcher = (*Source)(nil)

// New 创建离线数据源
func New(dir string) *Source {
	return &Source{dir: dir}
}

// Fetch implements search.Fetcher
func (s *Source) Fetch(ctx context.Context, req *search.Request) (*search.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := filepath.Join(s.dir, report.DataFileName(req.URL, req.Period))
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dump: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = report.Delimiter
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(records) == 0 {
		return &search.Response{}, nil
	}

	cols := make(map[string]int, len(records[0]))
	for i, h := range records[0] {
		cols[h] = i
	}
	get := func(rec []string, name string) (string, bool) {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return "", false
		}
		return rec[i], true
	}
	num := func(rec []string, m model.Metric) (float64, error) {
		v, ok := get(rec, string(m))
		if !ok || v == "" {
			return 0, nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, err
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("%s: value %q is not a finite number", m, v)
		}
		return f, nil
	}

	resp := &search.Response{Rows: make([]search.Row, 0, len(records)-1)}
	for line, rec := range records[1:] {
		row := search.Row{Dimensions: make(map[model.Dimension]string)}
		row.Page, _ = get(rec, "URL")
		row.Query, _ = get(rec, "Query")
		if row.Impressions, err = num(rec, model.Impressions); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line+2, err)
		}
		if row.Clicks, err = num(rec, model.Clicks); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line+2, err)
		}
		if row.Position, err = num(rec, model.Position); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line+2, err)
		}
		for _, d := range req.Dimensions {
			if v, ok := get(rec, d.Column()); ok && v != "" {
				row.Dimensions[d] = v
			}
		}
		resp.Rows = append(resp.Rows, row)
	}
	return resp, nil
}
