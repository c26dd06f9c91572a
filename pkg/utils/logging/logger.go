package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const defaultLogsDir = "logs"

// Options tune the planner logger. The zero value logs Info to stdout and Debug
// to a JSON file under ./logs.
type Options struct {
	// Dir holds the run log files
	Dir string
	// Verbose lowers the console level to Debug
	Verbose bool
	// Console receives the human-readable output, stdout when nil
	Console io.Writer
}

// InitLogger initializes a zap logger writing to the console and to a JSON file
// named after the environment and the start time of the run
func InitLogger(env string, opts Options) (*zap.Logger, error) {
	dir := opts.Dir
	if dir == "" {
		dir = defaultLogsDir
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	logFile, err := os.OpenFile(LogFileName(dir, env, time.Now()), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	console := opts.Console
	if console == nil {
		console = os.Stdout
	}

	consoleLevel := zapcore.InfoLevel
	if opts.Verbose {
		consoleLevel = zapcore.DebugLevel
	}

	core := zapcore.NewTee(
		zapcore.NewCore(consoleEncoder(), zapcore.AddSync(console), consoleLevel),
		zapcore.NewCore(fileEncoder(), zapcore.AddSync(logFile), zapcore.DebugLevel),
	)

	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

// LogFileName is the path of the log file of a run started at t
func LogFileName(dir, env string, t time.Time) string {
	if env == "" {
		env = "planner"
	}
	return filepath.Join(dir, fmt.Sprintf("%s_%s.log", env, t.Format("2006-01-02_15-04-05")))
}

func consoleEncoder() zapcore.Encoder {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewConsoleEncoder(cfg)
}

func fileEncoder() zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "timestamp"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapcore.NewJSONEncoder(cfg)
}
