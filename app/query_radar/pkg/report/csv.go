package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/iWorld-y/query_radar/app/query_radar/pkg/model"
)

// Delimiter 报表和原始数据文件的分隔符
const Delimiter = ';'

// Slug 把 URL 转成文件名：去掉协议，"." 换成 "_"，"/" 换成 "~"
func Slug(url string) string {
	if i := strings.LastIndex(url, "//"); i >= 0 {
		url = url[i+2:]
	}
	return strings.NewReplacer(".", "_", "/", "~").Replace(url)
}

// ReportFileName 合并报表的文件名
func ReportFileName(url, suffix string) string {
	return fmt.Sprintf("%s_%s.csv", Slug(url), suffix)
}

// DataFileName 单个周期原始数据的文件名，单日为 YYYYMMDD，区间为 YYYYMMDD-YYYYMMDD
func DataFileName(url string, p model.Period) string {
	return fmt.Sprintf("%s_%s.csv", Slug(url), p.Token())
}

// FormatValue 以最短的十进制形式输出数值
func FormatValue(v float64) string {
	return decimal.NewFromFloat(v).String()
}

// Writer 以 ";" 分隔写出 CSV 文件
type Writer struct {
	file   *os.File
	csv    *csv.Writer
	header []string
}

// Create 创建文件并写入表头
func Create(path string, header []string) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	w.Comma = Delimiter
	if err := w.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}
	return &Writer{file: f, csv: w, header: header}, nil
}

// WriteRow 按表头顺序写出一行报表
func (w *Writer) WriteRow(row Row) error {
	rec := make([]string, len(w.header))
	n := copy(rec, row.Identity)
	for i := n; i < len(w.header); i++ {
		rec[i] = FormatValue(row.Values[w.header[i]])
	}
	return w.csv.Write(rec)
}

// WriteStrings 写出一行原始字段
func (w *Writer) WriteStrings(rec []string) error {
	return w.csv.Write(rec)
}

// Close 刷新缓冲并关闭文件
func (w *Writer) Close() error {
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

// WriteReport 写出完整的合并报表
func WriteReport(path string, layout *Layout, rows []Row) error {
	w, err := Create(path, layout.Header())
	if err != nil {
		return err
	}
	for _, row := range rows {
		if err := w.WriteRow(row); err != nil {
			w.Close()
			return fmt.Errorf("write row: %w", err)
		}
	}
	return w.Close()
}

// DataHeader 原始数据文件的表头
func DataHeader(dims []model.Dimension) []string {
	header := []string{"URL", "Query"}
	for _, m := range model.Metrics {
		header = append(header, string(m))
	}
	for _, d := range dims {
		header = append(header, d.Column())
	}
	return header
}

// WriteDataset 写出单个周期的原始数据
func WriteDataset(path string, dims []model.Dimension, ds model.PeriodDataset) error {
	w, err := Create(path, DataHeader(dims))
	if err != nil {
		return err
	}
	for _, r := range ds.Records {
		rec := []string{r.Key.URL, r.Key.Query}
		for _, m := range model.Metrics {
			rec = append(rec, FormatValue(r.Metrics[m]))
		}
		for _, d := range dims {
			rec = append(rec, r.Key.Dimension(d))
		}
		if err := w.WriteStrings(rec); err != nil {
			w.Close()
			return fmt.Errorf("write record: %w", err)
		}
	}
	return w.Close()
}
