package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/iWorld-y/query_radar/app/query_radar/pkg/config"
	"github.com/iWorld-y/query_radar/app/query_radar/pkg/engine"
	"github.com/iWorld-y/query_radar/app/query_radar/pkg/logger"
	"github.com/iWorld-y/query_radar/app/query_radar/pkg/publish"
	"github.com/iWorld-y/query_radar/app/query_radar/pkg/search/factory"
	"github.com/iWorld-y/query_radar/app/query_radar/pkg/storage"
)

var (
	// flagconf 配置文件路径
	flagconf string
	// flagperiods 覆盖配置中的日期区间，多个区间用 # 分隔
	flagperiods string
	// flagdims 覆盖配置中的分组维度，逗号分隔
	flagdims string
	// flagforce 允许覆盖已有的输出目录
	flagforce bool
)

func init() {
	flag.StringVar(&flagconf, "conf", "app/query_radar/configs/config.yaml", "config path, eg: -conf config.yaml")
	flag.StringVar(&flagperiods, "periods", "", `date ranges, eg: -periods "20240101 20240107#20240108 20240114"`)
	flag.StringVar(&flagdims, "dims", "", "breakdown dimensions, eg: -dims country,device")
	flag.BoolVar(&flagforce, "force", false, "overwrite existing output directories")
}

func main() {
	flag.Parse()

	// 1. 加载配置
	cfg, err := config.LoadConfig(flagconf)
	if err != nil {
		log.Fatalf("无法加载配置文件: %v", err)
	}
	if flagperiods != "" {
		cfg.Periods = strings.Split(flagperiods, "#")
	}
	if flagdims != "" {
		cfg.Dimensions = strings.Split(flagdims, ",")
	}
	if flagforce {
		cfg.Overwrite = true
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("配置错误: %v", err)
	}

	// 2. 初始化日志
	cleanup, err := logger.InitLogger(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		log.Fatalf("无法初始化日志: %v", err)
	}
	defer cleanup()
	logger.Log.Info("启动搜索表现报表...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. 可选的数据库归档和报表上传
	var opts []engine.Option
	if cfg.DB.Driver != "" {
		store, err := storage.Open(cfg.DB)
		if err != nil {
			logger.Log.Errorf("无法连接数据库: %v. 将仅生成 CSV 文件。", err)
		} else {
			defer store.Close()
			opts = append(opts, engine.WithArchive(store))
			logger.Log.Info("已成功连接到数据库")
		}
	} else {
		logger.Log.Info("未配置数据库信息，跳过数据库连接")
	}
	if cfg.Publish.Bucket != "" {
		pub, err := publish.NewS3Publisher(ctx, cfg.Publish)
		if err != nil {
			logger.Log.Fatalf("无法初始化 S3 上传: %v", err)
		}
		opts = append(opts, engine.WithPublisher(pub))
	}

	// 4. 初始化数据源
	fetcher, err := factory.NewFetcher(ctx, cfg)
	if err != nil {
		logger.Log.Fatalf("数据源初始化失败: %v", err)
	}

	urls, err := engine.LoadURLs(cfg.URLsFile)
	if err != nil {
		logger.Log.Fatalf("无法读取 URL 列表: %v", err)
	}

	// 5. 生成报表
	eng, err := engine.NewEngine(cfg, fetcher, opts...)
	if err != nil {
		logger.Log.Fatalf("引擎初始化失败: %v", err)
	}
	if err := eng.PrepareDirs(); err != nil {
		logger.Log.Fatalf("无法准备输出目录: %v", err)
	}

	summary, err := eng.Run(ctx, engine.RunOptions{URLs: urls})
	if err != nil {
		logger.Log.Fatalf("生成报表失败: %v", err)
	}
	for _, r := range summary.Reports {
		logger.Log.WithField("rows", r.Rows).Infof("%s -> %s", r.URL, r.File)
	}
	logger.Log.Info("全部完成")
}
