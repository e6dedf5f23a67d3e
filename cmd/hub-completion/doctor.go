package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/petems/hub/internal/completion"
	"github.com/petems/hub/internal/config"
	"github.com/petems/hub/internal/doctor"
	"github.com/petems/hub/internal/prereq"
	"github.com/petems/hub/internal/tmux"
)

var errUnhealthy = errors.New("environment is not ready for completion scenarios")

// newDoctor is swapped in tests.
var newDoctor = func(cfg *config.Config, logger *log.Logger) (*doctor.Manager, error) {
	runner, err := tmux.NewRunner(cfg.TmuxBackend)
	if err != nil {
		return nil, err
	}
	return doctor.NewManager(prereq.NewDetector(), doctor.TmuxPanes{Runner: runner, Binary: cfg.TmuxPath}, logger)
}

func newDoctorCommand(cfg *config.Config, logger *log.Logger) *cobra.Command {
	var (
		fix    bool
		format string
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check required tools and clean up panes left by interrupted runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			manager, err := newDoctor(cfg, logger)
			if err != nil {
				return err
			}
			report, err := manager.RunOnce(cmd.Context(), doctor.Config{
				Tools:        toolsFor(cfg),
				WindowPrefix: completion.WindowPrefix,
				Fix:          fix,
			})
			if err != nil {
				return err
			}

			if format == formatText {
				err = writeHealthText(cmd.OutOrStdout(), report)
			} else {
				err = encode(cmd.OutOrStdout(), format, report)
			}
			if err != nil {
				return err
			}
			if !report.Healthy() {
				return errUnhealthy
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&fix, "fix", false, "kill stale hub-test panes")
	cmd.Flags().StringVar(&format, "format", formatText, "output format: text, json or yaml")
	return cmd
}

func toolsFor(cfg *config.Config) []string {
	tools := []string{"tmux", "bash", "zsh", "git", "hub"}
	if cfg == nil {
		return tools
	}
	tools[3] = cfg.Wrapped
	tools[4] = cfg.Wrapper
	return tools
}

var (
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	missingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
)

func writeHealthText(out io.Writer, report doctor.HealthReport) error {
	rows := make([][]string, 0, len(report.Tools.Tools))
	for _, tool := range report.Tools.Tools {
		status := "missing"
		if tool.Available {
			status = "ok"
		}
		rows = append(rows, []string{tool.Name, status, tool.Version, tool.Path})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("TOOL", "STATUS", "VERSION", "PATH").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row < 0 || row >= len(rows) || col != 1 {
				return cellStyle
			}
			if rows[row][1] == "ok" {
				return cellStyle.Inherit(okStyle)
			}
			return cellStyle.Inherit(missingStyle)
		})
	if _, err := fmt.Fprintln(out, t.Render()); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	for _, pane := range report.StalePanes {
		fmt.Fprintf(out, "stale pane %s (%s)\n", pane.ID, pane.Window)
	}
	if report.Cleaned > 0 {
		fmt.Fprintf(out, "cleaned %d stale pane(s)\n", report.Cleaned)
	}
	return nil
}
