package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineFormatter(t *testing.T) {
	entry := &logrus.Entry{
		Logger:  logrus.New(),
		Time:    time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Level:   logrus.WarnLevel,
		Message: "rows written",
		Data:    logrus.Fields{"url": "https://example.com/", "rows": 3},
	}
	out, err := (&LineFormatter{}).Format(entry)
	require.NoError(t, err)
	assert.Equal(t, "[2024-01-02 03:04:05] [WARN] [] rows written rows=3 url=https://example.com/\n", string(out))
}

func TestInitLogger_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "radar.log")
	closeLog, err := InitLogger("debug", path)
	require.NoError(t, err)

	Log.Debug("hello")
	closeLog()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "[DEBU]"))
	assert.True(t, strings.Contains(string(data), "logger_test.go"))
	assert.Equal(t, logrus.DebugLevel, Log.GetLevel())
}

func TestInitLogger_BadLevelFallsBackToInfo(t *testing.T) {
	closeLog, err := InitLogger("loud", "")
	require.NoError(t, err)
	defer closeLog()
	assert.Equal(t, logrus.InfoLevel, Log.GetLevel())
}
