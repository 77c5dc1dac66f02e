package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/iWorld-y/query_radar/app/query_radar/pkg/config"
	"github.com/iWorld-y/query_radar/app/query_radar/pkg/logger"
	"github.com/iWorld-y/query_radar/app/query_radar/pkg/model"
	"github.com/iWorld-y/query_radar/app/query_radar/pkg/period"
	"github.com/iWorld-y/query_radar/app/query_radar/pkg/publish"
	"github.com/iWorld-y/query_radar/app/query_radar/pkg/reconcile"
	"github.com/iWorld-y/query_radar/app/query_radar/pkg/report"
	"github.com/iWorld-y/query_radar/app/query_radar/pkg/search"
	"github.com/iWorld-y/query_radar/app/query_radar/pkg/storage"
)

// ErrOutputExists 输出目录已存在且未允许覆盖
var ErrOutputExists = errors.New("output directory already exists")

// Archive 报表归档
type Archive interface {
	CreateRun(ctx context.Context) (string, error)
	SaveReport(ctx context.Context, runID string, rep *storage.Report) error
}

var _ Archive = (*storage.Storage)(nil)

// Engine 核心处理引擎
type Engine struct {
	cfg       *config.Config
	fetcher   search.Fetcher
	archive   Archive
	publisher publish.Publisher
	countries *search.CountryNamer
	dims      []model.Dimension
	plan      period.Plan
	dumpRaw   bool
}

// Option 引擎可选组件
type Option func(*Engine)

// WithArchive 保存报表到数据库
func WithArchive(a Archive) Option {
	return func(e *Engine) { e.archive = a }
}

// WithPublisher 上传生成的报表
func WithPublisher(p publish.Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// NewEngine 校验配置并创建引擎实例
func NewEngine(cfg *config.Config, fetcher search.Fetcher, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dims, err := cfg.BreakdownDimensions()
	if err != nil {
		return nil, err
	}
	plan, err := cfg.Plan()
	if err != nil {
		return nil, err
	}
	countries, err := search.NewCountryNamer(cfg.CountryLanguage)
	if err != nil {
		return nil, fmt.Errorf("country language: %w", err)
	}

	e := &Engine{
		cfg:       cfg,
		fetcher:   fetcher,
		countries: countries,
		dims:      dims,
		plan:      plan,
		// 离线重跑时原始数据就是输入，不再导出
		dumpRaw: cfg.Search.Provider != "csv",
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Plan 本次运行的周期
func (e *Engine) Plan() period.Plan {
	return e.plan
}

// RunOptions 运行选项
type RunOptions struct {
	URLs             []string
	ProgressCallback func(status string, progress int)
}

// URLReport 单个 URL 的处理结果
type URLReport struct {
	URL     string
	File    string
	Rows    int
	Records int
}

// Summary 一次运行的汇总
type Summary struct {
	RunID   string
	Reports []URLReport
}

// PrepareDirs 重新创建输出目录，已存在的目录只有在允许覆盖时才会被删除
func (e *Engine) PrepareDirs() error {
	dirs := []string{e.cfg.OutputDir}
	if e.dumpRaw {
		dirs = append(dirs, e.cfg.DataDir)
	}
	for _, dir := range dirs {
		if _, err := os.Stat(dir); err == nil {
			if !e.cfg.Overwrite {
				return fmt.Errorf("%w: %s", ErrOutputExists, dir)
			}
			logger.Log.Warnf("目录 %s 将被覆盖", dir)
			if err := os.RemoveAll(dir); err != nil {
				return fmt.Errorf("remove %s: %w", dir, err)
			}
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// Run 逐个处理 URL。任一 URL 拉取失败都会终止整个运行。
func (e *Engine) Run(ctx context.Context, opts RunOptions) (*Summary, error) {
	if len(opts.URLs) == 0 {
		return nil, fmt.Errorf("no urls provided")
	}
	logger.Log.Infof("开始生成报表，共 %d 个 URL，%d 个周期", len(opts.URLs), len(e.plan.Periods))
	progress(opts, "starting", 0)

	summary := &Summary{}
	if e.archive != nil {
		runID, err := e.archive.CreateRun(ctx)
		if err != nil {
			logger.Log.Errorf("无法创建运行记录: %v", err)
		} else {
			summary.RunID = runID
		}
	}

	for i, url := range opts.URLs {
		rep, err := e.ProcessURL(ctx, summary.RunID, url)
		if err != nil {
			return summary, fmt.Errorf("process %s: %w", url, err)
		}
		summary.Reports = append(summary.Reports, *rep)
		progress(opts, fmt.Sprintf("processed url: %s", url), (i+1)*100/len(opts.URLs))
	}

	progress(opts, "completed", 100)
	return summary, nil
}

func progress(opts RunOptions, status string, pct int) {
	if opts.ProgressCallback != nil {
		opts.ProgressCallback(status, pct)
	}
}

// Fetch 按时间顺序拉取一个 URL 所有周期的数据
func (e *Engine) Fetch(ctx context.Context, url string) ([]model.PeriodDataset, error) {
	datasets := make([]model.PeriodDataset, 0, len(e.plan.Periods))
	for _, p := range e.plan.Periods {
		resp, err := e.fetcher.Fetch(ctx, &search.Request{URL: url, Period: p, Dimensions: e.dims})
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", p.Token(), err)
		}
		ds := search.ToDataset(url, p, resp, e.dims, e.countries)
		logger.Log.WithField("url", url).Debugf("周期 %s 拉取到 %d 条记录", p.Token(), len(ds.Records))

		if e.dumpRaw {
			path := filepath.Join(e.cfg.DataDir, report.DataFileName(url, p))
			if err := report.WriteDataset(path, e.dims, ds); err != nil {
				return nil, fmt.Errorf("dump raw data: %w", err)
			}
		}
		datasets = append(datasets, ds)
	}
	return datasets, nil
}

// ProcessURL 拉取、对齐并写出单个 URL 的合并报表
func (e *Engine) ProcessURL(ctx context.Context, runID, url string) (*URLReport, error) {
	log := logger.Log.WithField("url", url)

	datasets, err := e.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	records := 0
	for _, ds := range datasets {
		records += len(ds.Records)
	}

	merged := reconcile.Reconcile(datasets)
	layout := report.NewLayout(e.dims, e.plan.Periods, model.Metrics)
	rows := layout.BuildAll(merged)

	file := report.ReportFileName(url, e.plan.ReportSuffix())
	path := filepath.Join(e.cfg.OutputDir, file)
	if err := report.WriteReport(path, layout, rows); err != nil {
		return nil, fmt.Errorf("write report: %w", err)
	}
	log.Infof("报表已生成: %s (%d 行，%d 条原始记录)", path, len(rows), records)

	if e.archive != nil && runID != "" {
		rep := &storage.Report{URL: url, File: file, Header: layout.Header(), Rows: rows}
		if err := e.archive.SaveReport(ctx, runID, rep); err != nil {
			log.Errorf("保存报表失败: %v", err)
		}
	}
	if e.publisher != nil {
		if key, err := e.publisher.Publish(ctx, path); err != nil {
			log.Errorf("上传报表失败: %v", err)
		} else {
			log.Infof("报表已上传: %s", key)
		}
	}

	return &URLReport{URL: url, File: file, Rows: len(rows), Records: records}, nil
}

// LoadURLs 读取 URL 列表，每行一个，忽略空行
func LoadURLs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			urls = append(urls, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return urls, nil
}
