package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iWorld-y/query_radar/app/query_radar/pkg/config"
	"github.com/iWorld-y/query_radar/app/query_radar/pkg/model"
	"github.com/iWorld-y/query_radar/app/query_radar/pkg/search"
	"github.com/iWorld-y/query_radar/app/query_radar/pkg/storage"
)

// fakeFetcher 按周期标识返回预置数据
type fakeFetcher struct {
	rows  map[string][]search.Row
	err   error
	calls []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, req *search.Request) (*search.Response, error) {
	f.calls = append(f.calls, req.URL+"@"+req.Period.Token())
	if f.err != nil {
		return nil, f.err
	}
	return &search.Response{Rows: f.rows[req.Period.Token()]}, nil
}

type fakeArchive struct {
	reports []*storage.Report
}

func (a *fakeArchive) CreateRun(ctx context.Context) (string, error) {
	return "run-1", nil
}

func (a *fakeArchive) SaveReport(ctx context.Context, runID string, rep *storage.Report) error {
	if runID != "run-1" {
		return errors.New("unexpected run id")
	}
	a.reports = append(a.reports, rep)
	return nil
}

type fakePublisher struct {
	paths []string
}

func (p *fakePublisher) Publish(ctx context.Context, path string) (string, error) {
	p.paths = append(p.paths, path)
	return filepath.Base(path), nil
}

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		OutputDir:  filepath.Join(dir, "output"),
		DataDir:    filepath.Join(dir, "data"),
		Dimensions: []string{"device"},
		Periods:    []string{"20240101 20240102"},
		Search:     config.SearchConfig{Provider: "searchconsole"},
	}
}

func readLines(t *testing.T, path string) []string {
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestEngine_Run(t *testing.T) {
	cfg := testConfig(t)
	url := "https://example.com/page"
	fetcher := &fakeFetcher{rows: map[string][]search.Row{
		"20240101": {
			{Query: "go", Impressions: 10, Clicks: 1, Position: 4, Dimensions: map[model.Dimension]string{model.Device: "MOBILE"}},
		},
		"20240102": {
			{Query: "go", Impressions: 15, Clicks: 3, Position: 2, Dimensions: map[model.Dimension]string{model.Device: "MOBILE"}},
			{Query: "rust", Impressions: 5, Clicks: 0, Position: 9, Dimensions: map[model.Dimension]string{model.Device: "DESKTOP"}},
		},
	}}
	archive := &fakeArchive{}
	pub := &fakePublisher{}

	e, err := NewEngine(cfg, fetcher, WithArchive(archive), WithPublisher(pub))
	require.NoError(t, err)
	require.NoError(t, e.PrepareDirs())

	var statuses []string
	summary, err := e.Run(context.Background(), RunOptions{
		URLs:             []string{url},
		ProgressCallback: func(status string, _ int) { statuses = append(statuses, status) },
	})
	require.NoError(t, err)

	assert.Equal(t, "run-1", summary.RunID)
	require.Len(t, summary.Reports, 1)
	assert.Equal(t, "example_com~page_20240101-20240102.csv", summary.Reports[0].File)
	assert.Equal(t, 2, summary.Reports[0].Rows)
	assert.Equal(t, 3, summary.Reports[0].Records)
	assert.Equal(t, []string{url + "@20240101", url + "@20240102"}, fetcher.calls)
	assert.Equal(t, "completed", statuses[len(statuses)-1])

	lines := readLines(t, filepath.Join(cfg.OutputDir, summary.Reports[0].File))
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "URL;Query;Device;Impressions_20240101;Impressions_20240102;Impressions_diff_20240102_20240101"))
	assert.Contains(t, lines[0], "Position_pct_20240102_20240101")
	// 第一行 go 在两天都出现，第二行 rust 只在第二天出现
	assert.True(t, strings.HasPrefix(lines[1], url+";go;MOBILE;10;15;5;50;"))
	assert.True(t, strings.HasPrefix(lines[2], url+";rust;DESKTOP;0;5;5;500;"))

	// 原始数据按周期导出
	raw := readLines(t, filepath.Join(cfg.DataDir, "example_com~page_20240102.csv"))
	assert.Equal(t, "URL;Query;Impressions;Clicks;Position;Device", raw[0])
	assert.Len(t, raw, 3)

	require.Len(t, archive.reports, 1)
	assert.Equal(t, url, archive.reports[0].URL)
	assert.Len(t, archive.reports[0].Rows, 2)
	assert.Equal(t, []string{filepath.Join(cfg.OutputDir, summary.Reports[0].File)}, pub.paths)
}

func TestEngine_RunAggregatedPeriods(t *testing.T) {
	cfg := testConfig(t)
	cfg.Dimensions = nil
	cfg.Periods = []string{"20240101 20240107", "20240108 20240114"}
	fetcher := &fakeFetcher{rows: map[string][]search.Row{
		"20240101-20240107": {{Query: "go", Impressions: 100, Position: 4}},
		"20240108-20240114": {{Query: "go", Impressions: 80, Position: 5}},
	}}

	e, err := NewEngine(cfg, fetcher)
	require.NoError(t, err)
	require.NoError(t, e.PrepareDirs())
	assert.False(t, e.Plan().Granular)

	summary, err := e.Run(context.Background(), RunOptions{URLs: []string{"https://example.com/"}})
	require.NoError(t, err)
	assert.Empty(t, summary.RunID)
	assert.Equal(t, "example_com~_20240101-20240107#20240108-20240114.csv", summary.Reports[0].File)

	lines := readLines(t, filepath.Join(cfg.OutputDir, summary.Reports[0].File))
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[1], ";4;5;-1;-25"), lines[1])
}

func TestEngine_RunStopsOnFetchError(t *testing.T) {
	cfg := testConfig(t)
	fetcher := &fakeFetcher{err: errors.New("quota exceeded")}

	e, err := NewEngine(cfg, fetcher)
	require.NoError(t, err)
	require.NoError(t, e.PrepareDirs())

	_, err = e.Run(context.Background(), RunOptions{URLs: []string{"https://a.com/", "https://b.com/"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
	assert.Len(t, fetcher.calls, 1)

	_, err = e.Run(context.Background(), RunOptions{})
	assert.Error(t, err)
}

func TestEngine_PrepareDirs(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(cfg.OutputDir, 0o755))
	stale := filepath.Join(cfg.OutputDir, "stale.csv")
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0o644))

	e, err := NewEngine(cfg, &fakeFetcher{})
	require.NoError(t, err)
	err = e.PrepareDirs()
	assert.ErrorIs(t, err, ErrOutputExists)
	assert.FileExists(t, stale)

	cfg.Overwrite = true
	require.NoError(t, e.PrepareDirs())
	assert.NoFileExists(t, stale)
	assert.DirExists(t, cfg.OutputDir)
	assert.DirExists(t, cfg.DataDir)
}

func TestEngine_CSVProviderKeepsDataDir(t *testing.T) {
	cfg := testConfig(t)
	cfg.Search = config.SearchConfig{Provider: "csv", CSV: config.CSVConfig{Dir: cfg.DataDir}}
	require.NoError(t, os.MkdirAll(cfg.DataDir, 0o755))
	input := filepath.Join(cfg.DataDir, "example_com~_20240101.csv")
	require.NoError(t, os.WriteFile(input, []byte("URL;Query\n"), 0o644))

	e, err := NewEngine(cfg, &fakeFetcher{})
	require.NoError(t, err)
	require.NoError(t, e.PrepareDirs())
	assert.FileExists(t, input)
}

func TestNewEngine_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Dimensions = []string{"browser"}
	_, err := NewEngine(cfg, &fakeFetcher{})
	assert.ErrorIs(t, err, model.ErrUnknownDimension)

	cfg = testConfig(t)
	cfg.Periods = nil
	_, err = NewEngine(cfg, &fakeFetcher{})
	assert.Error(t, err)
}

func TestLoadURLs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "urls.txt")
	require.NoError(t, os.WriteFile(path, []byte("https://a.com/\n\n  https://b.com/x  \n"), 0o644))

	urls, err := LoadURLs(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.com/", "https://b.com/x"}, urls)

	_, err = LoadURLs(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}
