// Package tmux owns the single interactive shell pane a completion scenario
// types into.
package tmux

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"al.essio.dev/pkg/shellescape"
	"github.com/charmbracelet/log"

	"github.com/petems/hub/internal/screen"
	"github.com/petems/hub/internal/shell"
)

// DefaultBinary is the tmux executable used by the exec backend.
const DefaultBinary = "tmux"

// ErrPaneTerminated is returned when a killed pane is used again.
var ErrPaneTerminated = errors.New("pane already terminated")

// State is the lifecycle position of a Pane.
type State int

const (
	StateUnstarted State = iota
	StateRunning
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StateRunning:
		return "running"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Options configures a Pane.
type Options struct {
	Runner     CommandRunner
	Binary     string
	WindowName string
	Shell      shell.Kind
	Dir        string
	Logger     *log.Logger
}

// Pane is one tmux pane running an interactive shell with HOME set to Dir.
// The pane is started on first use and must be terminated by its owner.
type Pane struct {
	runner CommandRunner
	binary string
	window string
	shell  shell.Kind
	dir    string
	logger *log.Logger

	mu    sync.Mutex
	state State
	id    string
}

// NewPane validates opts and returns an Unstarted pane.
func NewPane(opts Options) (*Pane, error) {
	if _, err := shell.Parse(string(opts.Shell)); err != nil {
		return nil, err
	}

	dir := strings.TrimSpace(opts.Dir)
	if dir == "" {
		return nil, errors.New("pane directory is required")
	}

	window := strings.TrimSpace(opts.WindowName)
	if window == "" {
		return nil, errors.New("window name is required")
	}

	runner := opts.Runner
	if runner == nil {
		runner = execRunner{}
	}

	binary := strings.TrimSpace(opts.Binary)
	if binary == "" {
		binary = DefaultBinary
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	return &Pane{
		runner: runner,
		binary: binary,
		window: window,
		shell:  opts.Shell,
		dir:    dir,
		logger: logger.With("component", "tmux", "window", window),
	}, nil
}

// LaunchCommand is the shell command a pane runs.
func LaunchCommand(kind shell.Kind, home string) string {
	return "env HOME=" + shellescape.Quote(home) + " " + kind.String()
}

// Acquire starts the pane when Unstarted and returns its tmux id. A new
// window is opened in the current server; if that fails a detached session
// is started instead.
func (p *Pane) Acquire(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acquireLocked(ctx)
}

func (p *Pane) acquireLocked(ctx context.Context) (string, error) {
	switch p.state {
	case StateRunning:
		return p.id, nil
	case StateTerminated:
		return "", ErrPaneTerminated
	}

	launch := LaunchCommand(p.shell, p.dir)
	out, err := p.runner.Run(ctx, p.binary,
		"new-window", "-d", "-P", "-F", "#{pane_id}", "-n", p.window, "-c", p.dir, launch)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("start %s pane: %w", p.shell, ctxErr)
		}
		if isNoTmuxServerError(err) {
			p.logger.Debug("no tmux server running, starting detached session")
		} else {
			p.logger.Debug("new-window failed, starting detached session", "err", err)
		}

		var sessionErr error
		out, sessionErr = p.runner.Run(ctx, p.binary,
			"new-session", "-d", "-P", "-F", "#{pane_id}", "-s", p.window, "-c", p.dir, launch)
		if sessionErr != nil {
			return "", fmt.Errorf("start %s pane: %w", p.shell, errors.Join(err, sessionErr))
		}
	}

	id := strings.TrimSpace(string(out))
	if id == "" {
		return "", fmt.Errorf("start %s pane: tmux returned no pane id", p.shell)
	}

	p.id = id
	p.state = StateRunning
	p.logger.Info("pane started", "pane", id, "shell", p.shell.String(), "dir", p.dir)
	return id, nil
}

// SendKeys forwards keys to the pane. Symbolic names such as Tab are
// interpreted by tmux.
func (p *Pane) SendKeys(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return errors.New("keys are required")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	id, err := p.acquireLocked(ctx)
	if err != nil {
		return err
	}

	args := append([]string{"send-keys", "-t", id}, keys...)
	if _, err := p.runner.Run(ctx, p.binary, args...); err != nil {
		return fmt.Errorf("send keys to pane %s: %w", id, err)
	}
	p.logger.Debug("keys sent", "pane", id, "keys", keys)
	return nil
}

// Snapshot captures the visible pane contents.
func (p *Pane) Snapshot(ctx context.Context) (screen.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id, err := p.acquireLocked(ctx)
	if err != nil {
		return screen.Snapshot{}, err
	}

	out, err := p.runner.Run(ctx, p.binary, "capture-pane", "-p", "-t", id)
	if err != nil {
		return screen.Snapshot{}, fmt.Errorf("capture pane %s: %w", id, err)
	}
	return screen.New(string(out)), nil
}

// Terminate kills a running pane. Failures are logged and dropped. An
// Unstarted pane is left untouched.
func (p *Pane) Terminate(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateRunning {
		return
	}
	p.state = StateTerminated

	if _, err := p.runner.Run(ctx, p.binary, "kill-pane", "-t", p.id); err != nil {
		if isMissingPaneError(err) || isNoTmuxServerError(err) {
			p.logger.Debug("pane already gone", "pane", p.id)
			return
		}
		p.logger.Debug("kill pane failed", "pane", p.id, "err", err)
		return
	}
	p.logger.Info("pane terminated", "pane", p.id)
}

// ID returns the tmux pane id, empty until the pane has started.
func (p *Pane) ID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.id
}

// State returns the current lifecycle state.
func (p *Pane) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Shell returns the shell the pane runs.
func (p *Pane) Shell() shell.Kind {
	return p.shell
}

// Window returns the tmux window (or session) name.
func (p *Pane) Window() string {
	return p.window
}
