package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// Log 全局日志实例，未初始化时输出到标准错误
var Log = logrus.New()

// LineFormatter 单行日志格式: [TIME] [LEVEL] [FILE:LINE] MSG key=value...
type LineFormatter struct{}

// Format 实现 logrus.Formatter 接口
func (f *LineFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var fileLine string
	if entry.HasCaller() {
		fileLine = fmt.Sprintf("%s:%d", filepath.Base(entry.Caller.File), entry.Caller.Line)
	}

	// 级别统一截成 4 个字符，例如 INFO, WARN, ERRO
	level := strings.ToUpper(entry.Level.String())
	if len(level) > 4 {
		level = level[:4]
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] [%s] [%s] %s", entry.Time.Format("2006-01-02 15:04:05"), level, fileLine, entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%v", k, entry.Data[k])
	}
	sb.WriteByte('\n')

	return []byte(sb.String()), nil
}

// InitLogger 初始化日志，返回关闭日志文件的函数
func InitLogger(levelStr string, filePath string) (func(), error) {
	Log = logrus.New()
	Log.SetReportCaller(true)
	Log.SetFormatter(&LineFormatter{})

	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.InfoLevel
	}
	Log.SetLevel(level)

	// 同时输出到控制台和文件
	writers := []io.Writer{os.Stdout}
	closer := func() {}
	if filePath != "" {
		if logDir := filepath.Dir(filePath); logDir != "." {
			if err := os.MkdirAll(logDir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create log directory: %w", err)
			}
		}

		file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err != nil {
			return nil, err
		}
		writers = append(writers, file)
		closer = func() { _ = file.Close() }
	}
	Log.SetOutput(io.MultiWriter(writers...))

	return closer, nil
}
