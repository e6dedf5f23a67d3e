package tmux

import (
	"context"
	"fmt"
	"strings"
)

// PaneInfo is one pane reported by the tmux server.
type PaneInfo struct {
	ID     string `json:"id" yaml:"id"`
	Window string `json:"window" yaml:"window"`
}

// ListPanes returns every pane on the server. No running server means no
// panes.
func ListPanes(ctx context.Context, runner CommandRunner, binary string) ([]PaneInfo, error) {
	if binary == "" {
		binary = DefaultBinary
	}
	out, err := runner.Run(ctx, binary, "list-panes", "-a", "-F", "#{pane_id} #{window_name}")
	if err != nil {
		if isNoTmuxServerError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list panes: %w", err)
	}

	var panes []PaneInfo
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		id, window, _ := strings.Cut(line, " ")
		panes = append(panes, PaneInfo{ID: id, Window: window})
	}
	return panes, nil
}

// KillPane kills pane id. A pane that is already gone is not an error.
func KillPane(ctx context.Context, runner CommandRunner, binary, id string) error {
	if binary == "" {
		binary = DefaultBinary
	}
	if _, err := runner.Run(ctx, binary, "kill-pane", "-t", id); err != nil {
		if isMissingPaneError(err) || isNoTmuxServerError(err) {
			return nil
		}
		return fmt.Errorf("kill pane %s: %w", id, err)
	}
	return nil
}
