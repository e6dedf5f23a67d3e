package main

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/petems/hub/internal/completion"
	"github.com/petems/hub/internal/config"
	"github.com/petems/hub/internal/prereq"
	"github.com/petems/hub/internal/session"
	"github.com/petems/hub/internal/shell"
)

const (
	bugreportLogLimit = 3
	sessionDirName    = "hub-test"
)

var (
	bugreportNowFn = func() time.Time {
		return time.Now().UTC()
	}
	bugreportHomeDirFn = os.UserHomeDir
	bugreportGetwdFn   = os.Getwd
	bugreportDetectFn  = func(ctx context.Context) prereq.Report {
		return prereq.NewDetector().Detect(ctx)
	}
)

func newBugreportCommand(cfg *config.Config, logger *log.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "bugreport",
		Short: "Collect session files, logs and tool versions for debugging",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if logger != nil {
				logger.With("command", "bugreport").Info("collecting diagnostic bundle")
			}
			return runBugReport(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}
}

func runBugReport(ctx context.Context, cfg *config.Config, out io.Writer) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	homeDir, err := bugreportHomeDirFn()
	if err != nil {
		return fmt.Errorf("resolve home directory: %w", err)
	}
	homeDir = filepath.Clean(homeDir)
	if strings.TrimSpace(homeDir) == "" || homeDir == "." {
		return fmt.Errorf("home directory is not valid")
	}

	cwd, err := bugreportGetwdFn()
	if err != nil {
		return fmt.Errorf("resolve current directory: %w", err)
	}
	cwd = filepath.Clean(cwd)

	timestamp := bugreportNowFn().Format("20060102-150405")
	bundlePath := filepath.Join(cwd, fmt.Sprintf(".hub-completion-bugreport-%s.tar.gz", timestamp))

	stagingDir, err := os.MkdirTemp("", "hub-completion-bugreport-*")
	if err != nil {
		return fmt.Errorf("create staging directory: %w", err)
	}
	defer func() {
		_ = os.RemoveAll(stagingDir)
	}()

	report, err := collectBugreportArtifacts(ctx, cfg, homeDir, stagingDir)
	if err != nil {
		return err
	}
	if err := writeBugreportREADME(stagingDir, report); err != nil {
		return err
	}
	if err := archiveBugreport(stagingDir, bundlePath); err != nil {
		return err
	}

	if out == nil {
		out = os.Stdout
	}
	if _, err := fmt.Fprintf(out, "Bug report written to: %s. Share for debugging.\n", bundlePath); err != nil {
		return fmt.Errorf("write bugreport output: %w", err)
	}
	return nil
}

type bugreportSummary struct {
	Timestamp string
	Version   string
	LogFiles  []string
	RunID     string
	TraceID   string
	Warnings  []string
}

func collectBugreportArtifacts(
	ctx context.Context,
	cfg *config.Config,
	homeDir string,
	stagingDir string,
) (bugreportSummary, error) {
	summary := bugreportSummary{
		Timestamp: bugreportNowFn().Format(time.RFC3339),
		Version:   Version,
		Warnings:  make([]string, 0),
	}

	logFiles, warnings := copyRecentLogs(cfg.LogDir, stagingDir, bugreportLogLimit)
	summary.LogFiles = logFiles
	summary.Warnings = append(summary.Warnings, warnings...)

	runID, traceID := extractLastCorrelation(logFiles)
	summary.RunID = runID
	summary.TraceID = traceID
	if runID == "" && traceID == "" {
		summary.Warnings = append(summary.Warnings, "no run_id/trace_id found in copied logs")
	}

	if err := writeLastRunFile(stagingDir, runID, traceID); err != nil {
		return bugreportSummary{}, err
	}
	if err := writeVersionFile(stagingDir, summary.Version); err != nil {
		return bugreportSummary{}, err
	}
	if err := copyRedactedConfig(homeDir, stagingDir, &summary); err != nil {
		return bugreportSummary{}, err
	}
	if err := writeSessionState(cfg, stagingDir, &summary); err != nil {
		return bugreportSummary{}, err
	}
	if err := copyLastSnapshot(cfg.LogDir, stagingDir, &summary); err != nil {
		return bugreportSummary{}, err
	}
	if err := writeToolVersions(ctx, stagingDir); err != nil {
		return bugreportSummary{}, err
	}

	return summary, nil
}

func copyRecentLogs(logsDir string, stagingDir string, limit int) ([]string, []string) {
	files, err := newestFiles(logsDir, limit, func(name string) bool {
		return strings.HasSuffix(name, ".log")
	})
	if err != nil {
		return nil, []string{fmt.Sprintf("unable to read logs directory: %v", err)}
	}

	destDir := filepath.Join(stagingDir, "logs")
	if err := os.MkdirAll(destDir, 0o750); err != nil {
		return nil, []string{fmt.Sprintf("unable to create logs staging directory: %v", err)}
	}

	warnings := make([]string, 0)
	copiedPaths := make([]string, 0, len(files))
	for _, file := range files {
		// #nosec G304 -- source path comes from the configured log directory listing.
		data, readErr := os.ReadFile(file.path)
		if readErr != nil {
			warnings = append(warnings, fmt.Sprintf("unable to read log %s: %v", file.path, readErr))
			continue
		}
		dstPath := filepath.Join(destDir, filepath.Base(file.path))
		if writeErr := os.WriteFile(dstPath, data, 0o600); writeErr != nil {
			warnings = append(warnings, fmt.Sprintf("unable to stage log %s: %v", file.path, writeErr))
			continue
		}
		copiedPaths = append(copiedPaths, file.path)
	}
	return copiedPaths, warnings
}

func extractLastCorrelation(logPaths []string) (string, string) {
	for _, logPath := range logPaths {
		// #nosec G304 -- log paths are selected from the configured log directory.
		data, err := os.ReadFile(logPath)
		if err != nil {
			continue
		}
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		for i := len(lines) - 1; i >= 0; i-- {
			line := strings.TrimSpace(lines[i])
			if line == "" {
				continue
			}
			record := map[string]any{}
			if err := json.Unmarshal([]byte(line), &record); err != nil {
				continue
			}
			runID := asString(record["run_id"])
			traceID := asString(record["trace_id"])
			if runID == "" && traceID == "" {
				continue
			}
			return runID, traceID
		}
	}
	return "", ""
}

func writeLastRunFile(stagingDir, runID, traceID string) error {
	content := strings.TrimSpace(fmt.Sprintf("run_id: %s\ntrace_id: %s\n", runID, traceID))
	path := filepath.Join(stagingDir, "last-run.txt")
	if err := os.WriteFile(path, []byte(content+"\n"), 0o600); err != nil {
		return fmt.Errorf("write last-run.txt: %w", err)
	}
	return nil
}

func writeVersionFile(stagingDir, version string) error {
	content := fmt.Sprintf("hub-completion version: %s\n", strings.TrimSpace(version))
	path := filepath.Join(stagingDir, "version.txt")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return fmt.Errorf("write version.txt: %w", err)
	}
	return nil
}

func copyRedactedConfig(homeDir, stagingDir string, summary *bugreportSummary) error {
	configPath := filepath.Join(homeDir, ".hub-completion", "config.toml")
	// #nosec G304 -- config path is fixed under ~/.hub-completion.
	configData, err := os.ReadFile(configPath)
	if err != nil {
		summary.Warnings = append(summary.Warnings, fmt.Sprintf("unable to read config: %v", err))
		configData = []byte("# config unavailable\n")
	}
	redacted := redactSensitiveConfig(string(configData))
	if err := os.WriteFile(filepath.Join(stagingDir, "config.toml"), []byte(redacted), 0o600); err != nil {
		return fmt.Errorf("write redacted config: %w", err)
	}
	return nil
}

func redactSensitiveConfig(configText string) string {
	lines := strings.Split(configText, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		key, _, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		if !isSensitiveKey(strings.ToLower(strings.TrimSpace(key))) {
			continue
		}
		lines[i] = key + "= \"***REDACTED***\""
	}
	return strings.Join(lines, "\n")
}

func isSensitiveKey(key string) bool {
	for _, marker := range []string{"token", "secret", "password", "auth", "credential"} {
		if strings.Contains(key, marker) {
			return true
		}
	}
	return false
}

// writeSessionState stages the rc file and completion links of every shell
// session found under the configured session root.
func writeSessionState(cfg *config.Config, stagingDir string, summary *bugreportSummary) error {
	roots, err := filepath.Glob(filepath.Join(cfg.TmpDir, sessionDirName+"*"))
	if err != nil {
		return fmt.Errorf("find session roots: %w", err)
	}
	sort.Strings(roots)

	builder := strings.Builder{}
	found := false
	for _, root := range roots {
		for _, kind := range shell.Kinds() {
			rc := filepath.Join(root, kind.RCFile())
			// #nosec G304 -- rc paths are derived from the configured session root.
			data, err := os.ReadFile(rc)
			if err != nil {
				continue
			}
			found = true

			name := filepath.Join("session", filepath.Base(root), kind.RCFile())
			if err := stageFile(stagingDir, name, data); err != nil {
				return err
			}

			s := &session.Session{Root: root, Shell: kind}
			builder.WriteString(fmt.Sprintf("[%s %s]\n", root, kind))
			links, err := s.Links()
			if err != nil {
				builder.WriteString(fmt.Sprintf("error: %v\n", err))
			}
			for _, link := range links {
				builder.WriteString(fmt.Sprintf("%s -> %s\n", link.Name, link.Target))
			}
			builder.WriteString("\n")
		}
	}

	if !found {
		summary.Warnings = append(summary.Warnings, "no session directory found under "+cfg.TmpDir)
		builder.WriteString("No session directory found.\n")
	}
	return stageFile(stagingDir, "links.txt", []byte(builder.String()))
}

func copyLastSnapshot(logDir, stagingDir string, summary *bugreportSummary) error {
	// #nosec G304 -- snapshot path is fixed under the configured log directory.
	snapshot, err := os.ReadFile(filepath.Join(logDir, completion.SnapshotFile))
	if err != nil {
		summary.Warnings = append(summary.Warnings, "no failing scenario snapshot found")
		snapshot = []byte("No failing scenario snapshot found.\n")
	}
	return stageFile(stagingDir, completion.SnapshotFile, snapshot)
}

func writeToolVersions(ctx context.Context, stagingDir string) error {
	report := bugreportDetectFn(ctx)
	builder := strings.Builder{}
	for _, tool := range report.Tools {
		if !tool.Available {
			builder.WriteString(fmt.Sprintf("%s: missing\n", tool.Name))
			continue
		}
		builder.WriteString(fmt.Sprintf("%s: %s (%s)\n", tool.Name, tool.Version, tool.Path))
	}
	return stageFile(stagingDir, "tools.txt", []byte(builder.String()))
}

func stageFile(stagingDir, name string, data []byte) error {
	path := filepath.Join(stagingDir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create directory for %s: %w", name, err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func writeBugreportREADME(stagingDir string, summary bugreportSummary) error {
	builder := strings.Builder{}
	builder.WriteString("hub completion harness bug report\n")
	builder.WriteString("=================================\n\n")
	builder.WriteString(fmt.Sprintf("Generated: %s\n", summary.Timestamp))
	builder.WriteString(fmt.Sprintf("Version: %s\n", summary.Version))
	builder.WriteString(fmt.Sprintf("run_id: %s\n", summary.RunID))
	builder.WriteString(fmt.Sprintf("trace_id: %s\n\n", summary.TraceID))
	builder.WriteString("Included artifacts:\n")
	builder.WriteString("- logs/ (up to last 3 log files)\n")
	builder.WriteString("- config.toml (redacted)\n")
	builder.WriteString("- version.txt\n")
	builder.WriteString("- last-run.txt\n")
	builder.WriteString("- session/ (shell rc files)\n")
	builder.WriteString("- links.txt (completion directory listing)\n")
	builder.WriteString("- last-snapshot.txt\n")
	builder.WriteString("- tools.txt\n")
	if len(summary.Warnings) > 0 {
		builder.WriteString("\nWarnings:\n")
		for _, warning := range summary.Warnings {
			builder.WriteString("- " + warning + "\n")
		}
	}

	return stageFile(stagingDir, "README.txt", []byte(builder.String()))
}

func archiveBugreport(stagingDir, destination string) error {
	// #nosec G304 -- destination is generated in the working directory with a fixed name pattern.
	archiveFile, err := os.OpenFile(destination, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create archive %s: %w", destination, err)
	}
	defer func() {
		_ = archiveFile.Close()
	}()

	gzipWriter := gzip.NewWriter(archiveFile)
	defer func() {
		_ = gzipWriter.Close()
	}()

	tarWriter := tar.NewWriter(gzipWriter)
	defer func() {
		_ = tarWriter.Close()
	}()

	walkErr := filepath.WalkDir(stagingDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("read file info for %s: %w", path, err)
		}

		relPath, err := filepath.Rel(stagingDir, path)
		if err != nil {
			return fmt.Errorf("compute archive path for %s: %w", path, err)
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return fmt.Errorf("create tar header for %s: %w", path, err)
		}
		header.Name = filepath.ToSlash(relPath)
		if err := tarWriter.WriteHeader(header); err != nil {
			return fmt.Errorf("write tar header for %s: %w", path, err)
		}

		// #nosec G304 -- walk paths originate from the staging directory.
		file, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s for archive: %w", path, err)
		}
		if _, err := io.Copy(tarWriter, file); err != nil {
			_ = file.Close()
			return fmt.Errorf("copy %s into archive: %w", path, err)
		}
		return file.Close()
	})
	if walkErr != nil {
		return fmt.Errorf("archive bugreport: %w", walkErr)
	}

	return nil
}

type datedFile struct {
	path    string
	modTime time.Time
}

func newestFiles(dir string, limit int, keep func(name string) bool) ([]datedFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	files := make([]datedFile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || (keep != nil && !keep(entry.Name())) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, datedFile{
			path:    filepath.Join(dir, entry.Name()),
			modTime: info.ModTime(),
		})
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.After(files[j].modTime)
	})
	if limit > 0 && len(files) > limit {
		files = files[:limit]
	}
	return files, nil
}

func asString(value any) string {
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	default:
		return ""
	}
}
