package tmux

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/GianlucaP106/gotmux/gotmux"
)

// Backend names accepted by NewRunner.
const (
	BackendExec   = "exec"
	BackendGotmux = "gotmux"
)

// ErrUnknownBackend is returned by NewRunner for an unrecognised backend name.
var ErrUnknownBackend = errors.New("unknown tmux backend")

// CommandRunner executes tmux commands.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// CommandError is a failed tmux invocation.
type CommandError struct {
	Args   []string
	Output string
	Err    error
}

func (e *CommandError) Error() string {
	cmd := formatCommand(e.Args)
	if e.Output == "" {
		return fmt.Sprintf("run %s: %v", cmd, e.Err)
	}
	return fmt.Sprintf("run %s: %v (%s)", cmd, e.Err, e.Output)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewRunner returns the control surface for backend. An empty backend
// selects BackendExec.
func NewRunner(backend string) (CommandRunner, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendExec:
		return execRunner{}, nil
	case BackendGotmux:
		return NewGotmuxRunner("")
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.Output()
	if err != nil {
		detail := strings.TrimSpace(string(out))
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			detail = strings.TrimSpace(string(exitErr.Stderr))
		}
		return nil, &CommandError{
			Args:   append([]string{name}, args...),
			Output: detail,
			Err:    err,
		}
	}
	return out, nil
}

// GotmuxRunner drives tmux through gotmux. The binary name passed to Run is
// ignored; gotmux always invokes tmux from PATH.
//
// gotmux reports every failure as "failed to run command" without tmux's
// stderr, so missing-pane and no-server errors cannot be told apart on this
// backend: KillPane and ListPanes surface them as ordinary errors. The
// context is only checked before the command starts.
type GotmuxRunner struct {
	tmux *gotmux.Tmux
}

// NewGotmuxRunner connects to the default server, or to socketPath when set.
func NewGotmuxRunner(socketPath string) (*GotmuxRunner, error) {
	var (
		t   *gotmux.Tmux
		err error
	)
	if strings.TrimSpace(socketPath) == "" {
		t, err = gotmux.DefaultTmux()
	} else {
		t, err = gotmux.NewTmux(socketPath)
	}
	if err != nil {
		return nil, fmt.Errorf("init gotmux: %w", err)
	}
	return &GotmuxRunner{tmux: t}, nil
}

func (r *GotmuxRunner) Run(ctx context.Context, _ string, args ...string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, err := r.tmux.Command(args...)
	if err != nil {
		return nil, &CommandError{Args: append([]string{"tmux"}, args...), Err: err}
	}
	return []byte(out), nil
}

func isNoTmuxServerError(err error) bool {
	if err == nil {
		return false
	}
	text := strings.ToLower(err.Error())
	return strings.Contains(text, "no server running") || strings.Contains(text, "failed to connect to server")
}

func isMissingPaneError(err error) bool {
	if err == nil {
		return false
	}
	text := strings.ToLower(err.Error())
	return strings.Contains(text, "can't find pane") || strings.Contains(text, "no such pane")
}

func formatCommand(parts []string) string {
	sanitized := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		sanitized = append(sanitized, part)
	}
	return strings.Join(sanitized, " ")
}

var (
	_ CommandRunner = execRunner{}
	_ CommandRunner = (*GotmuxRunner)(nil)
)
