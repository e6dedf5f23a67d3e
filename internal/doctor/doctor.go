// Package doctor checks that a machine can run completion scenarios and
// sweeps up panes left behind by runs that never reached their teardown.
package doctor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/petems/hub/internal/logging"
	"github.com/petems/hub/internal/prereq"
	"github.com/petems/hub/internal/tmux"
)

// ToolDetector reports tool availability.
type ToolDetector interface {
	Detect(ctx context.Context, tools ...string) prereq.Report
}

// PaneManager lists and kills tmux panes.
type PaneManager interface {
	ListPanes(ctx context.Context) ([]tmux.PaneInfo, error)
	KillPane(ctx context.Context, id string) error
}

// Config controls one check.
type Config struct {
	Tools []string
	// WindowPrefix identifies harness windows.
	WindowPrefix string
	// Live holds pane ids still owned by a running harness.
	Live map[string]struct{}
	// Fix kills stale panes instead of only reporting them.
	Fix bool
}

// HealthReport is the result of one check.
type HealthReport struct {
	Tools      prereq.Report   `json:"tools" yaml:"tools"`
	StalePanes []tmux.PaneInfo `json:"stale_panes" yaml:"stale_panes"`
	Cleaned    int             `json:"cleaned" yaml:"cleaned"`
	CheckedAt  time.Time       `json:"checked_at" yaml:"checked_at"`
}

// Healthy reports whether every tool is present and no stale pane remains.
func (r HealthReport) Healthy() bool {
	return len(r.Tools.Missing()) == 0 && r.Cleaned == len(r.StalePanes)
}

// Manager runs health checks.
type Manager struct {
	tools  ToolDetector
	panes  PaneManager
	logger *log.Logger
	now    func() time.Time
}

// NewManager builds a Manager.
func NewManager(tools ToolDetector, panes PaneManager, logger *log.Logger) (*Manager, error) {
	if tools == nil {
		return nil, errors.New("tool detector is required")
	}
	if panes == nil {
		return nil, errors.New("pane manager is required")
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Manager{
		tools:  tools,
		panes:  panes,
		logger: logger.With("component", "doctor"),
		now:    time.Now,
	}, nil
}

// RunOnce checks tools, then finds harness panes not in cfg.Live. With
// cfg.Fix set the stale panes are killed.
func (m *Manager) RunOnce(ctx context.Context, cfg Config) (HealthReport, error) {
	if m == nil {
		return HealthReport{}, errors.New("doctor manager is nil")
	}

	report := HealthReport{
		Tools:     m.tools.Detect(ctx, cfg.Tools...),
		CheckedAt: m.now().UTC(),
	}

	if !report.Tools.Available("tmux") {
		m.logger.Warn("tmux unavailable, skipping pane sweep")
		return report, nil
	}

	panes, err := m.panes.ListPanes(ctx)
	if err != nil {
		return HealthReport{}, fmt.Errorf("query panes: %w", err)
	}
	report.StalePanes = stalePanes(panes, cfg.WindowPrefix, cfg.Live)

	if !cfg.Fix {
		return report, nil
	}
	cleaned, err := m.cleanupStalePanes(ctx, report.StalePanes)
	report.Cleaned = cleaned
	if err != nil {
		return report, err
	}
	return report, nil
}

func (m *Manager) cleanupStalePanes(ctx context.Context, stale []tmux.PaneInfo) (int, error) {
	cleaned := 0
	for _, pane := range stale {
		if err := m.panes.KillPane(ctx, pane.ID); err != nil {
			return cleaned, fmt.Errorf("cleanup stale pane %s: %w", pane.ID, err)
		}
		m.logger.Info("stale pane killed", "pane", pane.ID, "window", pane.Window)
		cleaned++
	}
	return cleaned, nil
}

func stalePanes(panes []tmux.PaneInfo, prefix string, live map[string]struct{}) []tmux.PaneInfo {
	if prefix == "" {
		return nil
	}
	var stale []tmux.PaneInfo
	for _, pane := range panes {
		if !strings.HasPrefix(pane.Window, prefix) {
			continue
		}
		if _, ok := live[pane.ID]; ok {
			continue
		}
		stale = append(stale, pane)
	}
	return stale
}

// TmuxPanes adapts the tmux package to PaneManager.
type TmuxPanes struct {
	Runner tmux.CommandRunner
	Binary string
}

func (t TmuxPanes) ListPanes(ctx context.Context) ([]tmux.PaneInfo, error) {
	return tmux.ListPanes(ctx, t.Runner, t.Binary)
}

func (t TmuxPanes) KillPane(ctx context.Context, id string) error {
	return tmux.KillPane(ctx, t.Runner, t.Binary, id)
}
