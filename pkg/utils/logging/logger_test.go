package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLogFileName(t *testing.T) {
	start := time.Date(2025, 1, 7, 6, 30, 0, 0, time.UTC)

	assert.Equal(t, filepath.Join("logs", "prod_2025-01-07_06-30-00.log"), LogFileName("logs", "prod", start))
	assert.Equal(t, filepath.Join("logs", "planner_2025-01-07_06-30-00.log"), LogFileName("logs", "", start))
}

func TestInitLogger(t *testing.T) {
	tests := []struct {
		name           string
		verbose        bool
		debugOnConsole bool
	}{
		{"info on console", false, false},
		{"verbose console", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			var console bytes.Buffer

			logger, err := InitLogger("test", Options{Dir: dir, Verbose: tt.verbose, Console: &console})
			require.NoError(t, err)

			logger.Debug("Building model", zap.Int("variables", 12))
			logger.Info("Solved model", zap.String("status", "optimal"))
			_ = logger.Sync()

			assert.Contains(t, console.String(), "Solved model")
			assert.Equal(t, tt.debugOnConsole, strings.Contains(console.String(), "Building model"))

			files, err := filepath.Glob(filepath.Join(dir, "test_*.log"))
			require.NoError(t, err)
			require.Len(t, files, 1)

			content, err := os.ReadFile(files[0])
			require.NoError(t, err)
			lines := strings.Split(strings.TrimSpace(string(content)), "\n")
			require.Len(t, lines, 2)

			var entry map[string]interface{}
			require.NoError(t, json.Unmarshal([]byte(lines[1]), &entry))
			assert.Equal(t, "Solved model", entry["msg"])
			assert.Equal(t, "optimal", entry["status"])
			assert.Contains(t, entry, "timestamp")
		})
	}
}
