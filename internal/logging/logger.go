// Package logging provides the JSON runtime logger shared by the CLI and the
// scenario harness.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// FilePrefix starts every log file name written by New.
const FilePrefix = "hub-completion-"

// Option configures RuntimeLogger creation.
type Option func(*newOptions)

type newOptions struct {
	runID  string
	dir    string
	level  string
	output io.Writer
}

// WithRunID configures the run_id field used in emitted log records.
func WithRunID(runID string) Option {
	return func(opts *newOptions) {
		opts.runID = strings.TrimSpace(runID)
	}
}

// WithDir writes the log file under dir instead of ~/.hub-completion/logs.
func WithDir(dir string) Option {
	return func(opts *newOptions) {
		opts.dir = strings.TrimSpace(dir)
	}
}

// WithLevel sets the minimum level (debug, info, warn, error).
func WithLevel(level string) Option {
	return func(opts *newOptions) {
		opts.level = strings.TrimSpace(level)
	}
}

// WithOutput sends records to w and skips the log file.
func WithOutput(w io.Writer) Option {
	return func(opts *newOptions) {
		opts.output = w
	}
}

// RuntimeLogger writes structured JSON logs to disk. Scenario loggers
// derived from Logger add a trace_id field.
type RuntimeLogger struct {
	Logger     *log.Logger
	file       *os.File
	path       string
	baseLogger *log.Logger
	runID      string
}

// New initializes logging without writing to stdout.
func New(ctx context.Context, options ...Option) (*RuntimeLogger, error) {
	resolved := resolveOptions(options)

	level := log.InfoLevel
	if resolved.level != "" {
		parsed, err := log.ParseLevel(resolved.level)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		level = parsed
	}

	runtimeLogger := &RuntimeLogger{runID: resolved.runID}

	out := resolved.output
	if out == nil {
		file, path, err := openLogFile(resolved)
		if err != nil {
			return nil, err
		}
		runtimeLogger.file = file
		runtimeLogger.path = path
		out = file
	}

	logger := log.NewWithOptions(out, log.Options{
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
	})
	logger.SetFormatter(log.JSONFormatter)

	runtimeLogger.baseLogger = logger
	runtimeLogger.rebuildLogger()
	if runtimeLogger.path != "" {
		runtimeLogger.Logger.With("log_file", runtimeLogger.path).Info("logger initialized")
	}

	_ = ctx
	return runtimeLogger, nil
}

func openLogFile(opts newOptions) (*os.File, string, error) {
	logDir := opts.dir
	if logDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, "", fmt.Errorf("resolve home directory: %w", err)
		}
		logDir = filepath.Join(homeDir, ".hub-completion", "logs")
	}
	if err := os.MkdirAll(logDir, 0o750); err != nil {
		return nil, "", fmt.Errorf("create log directory: %w", err)
	}

	timestamp := time.Now().UTC().Format("20060102-150405")
	fileName := fmt.Sprintf("%s%s.log", FilePrefix, timestamp)
	if opts.runID != "" {
		fileName = fmt.Sprintf("%s%s-%s.log", FilePrefix, timestamp, opts.runID)
	}
	filePath := filepath.Join(logDir, fileName)
	// #nosec G304 -- filePath is constructed from trusted local paths.
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, "", fmt.Errorf("open log file: %w", err)
	}
	return file, filePath, nil
}

// Discard returns a logger that drops every record.
func Discard() *log.Logger {
	return log.New(io.Discard)
}

// Close flushes and closes the log file.
func (r *RuntimeLogger) Close() error {
	if r == nil || r.file == nil {
		return nil
	}
	return r.file.Close()
}

// Path returns the current log file path, empty when logging to a writer.
func (r *RuntimeLogger) Path() string {
	if r == nil {
		return ""
	}
	return r.path
}

func (r *RuntimeLogger) rebuildLogger() {
	if r == nil || r.baseLogger == nil {
		return
	}
	r.Logger = r.baseLogger.With("run_id", r.runID)
}

func resolveOptions(options []Option) newOptions {
	resolved := newOptions{}
	for _, option := range options {
		if option == nil {
			continue
		}
		option(&resolved)
	}
	return resolved
}
