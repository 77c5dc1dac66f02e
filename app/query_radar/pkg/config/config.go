package config

import (
	"fmt"
	"os"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/iWorld-y/query_radar/app/query_radar/pkg/model"
	"github.com/iWorld-y/query_radar/app/query_radar/pkg/period"
)

// Config 项目配置结构体
type Config struct {
	CredentialsFile string            `yaml:"credentials_file"`
	URLsFile        string            `yaml:"urls_file"`
	OutputDir       string            `yaml:"output_dir"`
	DataDir         string            `yaml:"data_dir"`
	Overwrite       bool              `yaml:"overwrite"`
	Dimensions      []string          `yaml:"dimensions"`
	Periods         []string          `yaml:"periods"`
	CountryLanguage string            `yaml:"country_language"`
	Search          SearchConfig      `yaml:"search"`
	Log             LogConfig         `yaml:"log"`
	Concurrency     ConcurrencyConfig `yaml:"concurrency"`
	DB              DBConfig          `yaml:"db"`
	Publish         PublishConfig     `yaml:"publish"`
}

// SearchConfig 数据源相关配置
type SearchConfig struct {
	Provider      string              `yaml:"provider"`
	SearchConsole SearchConsoleConfig `yaml:"searchconsole"`
	CSV           CSVConfig           `yaml:"csv"`
}

// SearchConsoleConfig Search Console API 配置
type SearchConsoleConfig struct {
	Endpoint string `yaml:"endpoint"`
	TokenURL string `yaml:"token_url"`
	RowLimit int    `yaml:"row_limit"`
	Timeout  int    `yaml:"timeout"`
}

// CSVConfig 离线数据源配置
type CSVConfig struct {
	Dir string `yaml:"dir"`
}

// LogConfig 日志相关配置
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// ConcurrencyConfig 接口限流配置
type ConcurrencyConfig struct {
	QPS        int `yaml:"qps"`
	RPM        int `yaml:"rpm"`
	MaxRetries int `yaml:"max_retries"`
}

// DBConfig 数据库相关配置，Driver 为空时不做持久化
type DBConfig struct {
	Driver   string `yaml:"driver"` // postgres 或 sqlite
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	Path     string `yaml:"path"` // sqlite 文件路径
}

// PublishConfig S3 上传配置，Bucket 为空时不上传
type PublishConfig struct {
	Bucket   string `yaml:"bucket"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
	Prefix   string `yaml:"prefix"`
}

// LoadConfig 从指定路径加载配置并补齐默认值
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.CredentialsFile == "" {
		c.CredentialsFile = "creds.json"
	}
	if c.URLsFile == "" {
		c.URLsFile = "urls.txt"
	}
	if c.OutputDir == "" {
		c.OutputDir = "output"
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.Search.Provider == "" {
		c.Search.Provider = "searchconsole"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	// 空路径会让每个连接各自打开一个内存数据库
	if c.DB.Driver == "sqlite" && c.DB.Path == "" {
		c.DB.Path = "query_radar.db"
	}
}

// BreakdownDimensions 解析并去重分组维度，保持配置中的顺序
func (c *Config) BreakdownDimensions() ([]model.Dimension, error) {
	dims := make([]model.Dimension, 0, len(c.Dimensions))
	for _, s := range c.Dimensions {
		d, err := model.ParseDimension(s)
		if err != nil {
			return nil, err
		}
		dims = append(dims, d)
	}
	return lo.Uniq(dims), nil
}

// Plan 解析日期区间并展开为报表周期
func (c *Config) Plan() (period.Plan, error) {
	ranges, err := period.ParseAll(c.Periods)
	if err != nil {
		return period.Plan{}, err
	}
	return period.Expand(ranges)
}

// Validate 在开始拉取之前检查配置
func (c *Config) Validate() error {
	if _, err := c.BreakdownDimensions(); err != nil {
		return fmt.Errorf("dimensions: %w", err)
	}
	if _, err := c.Plan(); err != nil {
		return fmt.Errorf("periods: %w", err)
	}
	switch c.Search.Provider {
	case "searchconsole", "csv":
	default:
		return fmt.Errorf("unknown search provider: %s", c.Search.Provider)
	}
	switch c.DB.Driver {
	case "", "postgres":
	case "sqlite":
		if c.DB.Path == "" {
			return fmt.Errorf("db path is required for sqlite")
		}
	default:
		return fmt.Errorf("unknown db driver: %s", c.DB.Driver)
	}
	return nil
}
