// Package prereq detects the external tools completion scenarios drive.
package prereq

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/petems/hub/internal/shell"
	"github.com/petems/hub/internal/tracing"
)

// ErrMissingTool is returned by Report.Require when a tool is not on PATH.
var ErrMissingTool = errors.New("required tool not found on PATH")

// DefaultTools lists every tool a full scenario run can touch.
var DefaultTools = []string{"tmux", "bash", "zsh", "git", "hub"}

var versionArgs = map[string][]string{
	"tmux": {"-V"},
}

// Status is the availability of one tool.
type Status struct {
	Name      string `json:"name" yaml:"name"`
	Available bool   `json:"available" yaml:"available"`
	Path      string `json:"path,omitempty" yaml:"path,omitempty"`
	Version   string `json:"version,omitempty" yaml:"version,omitempty"`
}

// Report holds tool statuses in the order they were requested.
type Report struct {
	Tools []Status `json:"tools" yaml:"tools"`
}

// Detector looks tools up on PATH and asks each for its version.
type Detector struct {
	lookPath func(file string) (string, error)
	version  func(ctx context.Context, path string, args []string) (string, error)
}

// NewDetector returns a Detector backed by exec.LookPath and traced version
// probes.
func NewDetector() *Detector {
	return &Detector{
		lookPath: exec.LookPath,
		version: func(ctx context.Context, path string, args []string) (string, error) {
			_, stdout, _, err := tracing.ExecuteTool(ctx, path, args, "")
			return stdout, err
		},
	}
}

// Detect checks tools, defaulting to DefaultTools. Version probe failures
// leave Version empty but keep the tool available.
func (d *Detector) Detect(ctx context.Context, tools ...string) Report {
	if len(tools) == 0 {
		tools = DefaultTools
	}

	report := Report{Tools: make([]Status, 0, len(tools))}
	for _, tool := range tools {
		tool = strings.TrimSpace(tool)
		if tool == "" {
			continue
		}

		status := Status{Name: tool}
		path, err := d.lookPath(tool)
		if err == nil {
			status.Available = true
			status.Path = path
			if d.version != nil {
				if out, err := d.version(ctx, path, argsFor(tool)); err == nil {
					status.Version = versionLine(tool, out)
				}
			}
		}
		report.Tools = append(report.Tools, status)
	}
	return report
}

// ForShell lists the tools one scenario in kind needs.
func ForShell(kind shell.Kind, wrapper string) []string {
	wrapper = strings.TrimSpace(wrapper)
	if wrapper == "" {
		wrapper = "hub"
	}
	return []string{"tmux", "git", wrapper, kind.String()}
}

// Missing returns the unavailable tool names in report order.
func (r Report) Missing() []string {
	missing := make([]string, 0)
	for _, status := range r.Tools {
		if !status.Available {
			missing = append(missing, status.Name)
		}
	}
	return missing
}

// Available reports whether name was detected.
func (r Report) Available(name string) bool {
	for _, status := range r.Tools {
		if status.Name == name {
			return status.Available
		}
	}
	return false
}

// Require fails when any of tools was not detected.
func (r Report) Require(tools ...string) error {
	missing := make([]string, 0)
	for _, tool := range tools {
		if !r.Available(tool) {
			missing = append(missing, tool)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingTool, strings.Join(missing, ", "))
	}
	return nil
}

func argsFor(tool string) []string {
	if args, ok := versionArgs[tool]; ok {
		return args
	}
	return []string{"--version"}
}

// versionLine picks the line mentioning the tool, since wrappers such as hub
// print the wrapped tool's version first.
func versionLine(tool, out string) string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	for _, line := range lines {
		if strings.Contains(strings.ToLower(line), strings.ToLower(tool)) {
			return strings.TrimSpace(line)
		}
	}
	return strings.TrimSpace(lines[0])
}
