// Package completion drives one completion scenario: it prepares a session,
// types into a tmux pane and reads the resulting completion menu back.
package completion

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/petems/hub/internal/config"
	"github.com/petems/hub/internal/logging"
	"github.com/petems/hub/internal/screen"
	"github.com/petems/hub/internal/session"
	"github.com/petems/hub/internal/shell"
	"github.com/petems/hub/internal/tmux"
	"github.com/petems/hub/internal/tracing"
)

// Base completion setups understood by UseBaseCompletions.
const (
	BaseZshDistributed = "zsh-distributed"
	BaseGitDistributed = "git-distributed"
)

// SnapshotFile is the name DumpSnapshot writes.
const SnapshotFile = "last-snapshot.txt"

// WindowPrefix starts the name of every window a harness opens.
const WindowPrefix = "hub-test-"

const (
	sessionDirName = "hub-test"
	tracerName     = "hub/completion"
)

var (
	// ErrShellNotSet is returned when an operation needs a session first.
	ErrShellNotSet = errors.New("shell not set")
	// ErrInvalidCombination is returned for base completions that cannot
	// apply to the current shell.
	ErrInvalidCombination = errors.New("this combination makes no sense")
	// ErrUnknownBaseCompletion is returned for an unrecognised base setup.
	ErrUnknownBaseCompletion = errors.New("unknown base completion")
	// ErrUnexpectedCommandLine is returned when the prompt line does not
	// show what an expansion check expects.
	ErrUnexpectedCommandLine = errors.New("unexpected command line")
)

// Options configures a Harness.
type Options struct {
	Config *config.Config
	Logger *log.Logger
	// Runner defaults to the backend named by Config.TmuxBackend.
	Runner tmux.CommandRunner
	// GitPrefix defaults to session.DefaultGitPrefix.
	GitPrefix *session.GitPrefix
	// Sleep replaces the real clock in waits.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Harness is the state of one scenario: its session, its pane and the last
// command typed. Scenarios never share a Harness.
type Harness struct {
	id     string
	cfg    *config.Config
	logger *log.Logger
	runner tmux.CommandRunner
	git    *session.GitPrefix
	waiter *Waiter
	tracer trace.Tracer

	kind         shell.Kind
	session      *session.Session
	pane         *tmux.Pane
	lastCommand  string
	lastSnapshot screen.Snapshot
}

// New returns a Harness with no shell selected.
func New(opts Options) (*Harness, error) {
	cfg := opts.Config
	if cfg == nil {
		var err error
		if cfg, err = config.Default(); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	runner := opts.Runner
	if runner == nil {
		var err error
		if runner, err = tmux.NewRunner(cfg.TmuxBackend); err != nil {
			return nil, err
		}
	}

	git := opts.GitPrefix
	if git == nil {
		git = session.DefaultGitPrefix
	}

	id := uuid.NewString()
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logger.With("component", "completion", "harness_id", id)

	waiter := NewWaiter(cfg, logger)
	if opts.Sleep != nil {
		waiter.sleep = opts.Sleep
	}

	return &Harness{
		id:     id,
		cfg:    cfg,
		logger: logger,
		runner: runner,
		git:    git,
		waiter: waiter,
		tracer: otel.Tracer(tracerName),
	}, nil
}

// ID uniquely identifies the harness.
func (h *Harness) ID() string {
	return h.id
}

// Root is the session directory this harness prepares.
func (h *Harness) Root() string {
	name := sessionDirName
	if h.cfg.Isolate {
		name += "-" + h.id
	}
	return filepath.Join(h.cfg.TmpDir, name)
}

// WindowName is the tmux window the pane opens in.
func (h *Harness) WindowName() string {
	return WindowPrefix + strings.ReplaceAll(h.id, "-", "")[:8]
}

// Shell returns the selected shell, empty before SetShell.
func (h *Harness) Shell() shell.Kind {
	return h.kind
}

// Session returns the prepared session, nil before SetShell.
func (h *Harness) Session() *session.Session {
	return h.session
}

// Pane returns the scenario pane, nil before SetShell.
func (h *Harness) Pane() *tmux.Pane {
	return h.pane
}

// LastCommand is the most recent literal typed by TypeAndTab.
func (h *Harness) LastCommand() string {
	return h.lastCommand
}

// LastSnapshot is the most recent screen captured by any operation.
func (h *Harness) LastSnapshot() screen.Snapshot {
	return h.lastSnapshot
}

// SetShell rebuilds the session for name and binds a fresh, unstarted pane
// to it. A pane from an earlier call is terminated first.
func (h *Harness) SetShell(ctx context.Context, name string) (err error) {
	ctx, span := h.tracer.Start(ctx, "completion.set_shell",
		trace.WithAttributes(attribute.String("shell", name)))
	defer func() { tracing.Finish(span, err) }()

	kind, err := shell.Parse(name)
	if err != nil {
		return err
	}

	opts := session.Options{
		Prompt:  h.cfg.Prompt,
		Wrapper: h.cfg.Wrapper,
		Wrapped: h.cfg.Wrapped,
	}
	if kind == shell.Bash {
		if opts.GitBashCompletion, err = h.gitBashCompletion(ctx); err != nil {
			return err
		}
		if opts.HubBashCompletion, err = filepath.Abs(h.cfg.HubBashCompletion); err != nil {
			return fmt.Errorf("resolve %s bash completion: %w", h.cfg.Wrapper, err)
		}
	}

	if h.pane != nil {
		h.pane.Terminate(ctx)
		h.pane = nil
	}

	sess, err := session.Prepare(h.Root(), kind, opts)
	if err != nil {
		return err
	}

	pane, err := tmux.NewPane(tmux.Options{
		Runner:     h.runner,
		Binary:     h.cfg.TmuxPath,
		WindowName: h.WindowName(),
		Shell:      kind,
		Dir:        sess.Root,
		Logger:     h.logger,
	})
	if err != nil {
		return err
	}

	h.kind = kind
	h.session = sess
	h.pane = pane
	h.lastCommand = ""
	h.logger.Info("session prepared", "shell", kind.String(), "root", sess.Root)
	return nil
}

// UseBaseCompletions links the wrapper's zsh completion as _hub plus the
// base git completions named by base.
func (h *Harness) UseBaseCompletions(ctx context.Context, base string) (err error) {
	ctx, span := h.tracer.Start(ctx, "completion.use_base_completions",
		trace.WithAttributes(attribute.String("base", base)))
	defer func() { tracing.Finish(span, err) }()

	if h.session == nil {
		return ErrShellNotSet
	}

	switch base {
	case BaseZshDistributed:
		if h.kind == shell.Bash {
			return fmt.Errorf("%w: %s with %s", ErrInvalidCombination, base, h.kind)
		}
		if h.session.HasLink("_git") {
			return fmt.Errorf("%s requires zsh's own _git, but _git is already linked", base)
		}
	case BaseGitDistributed:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBaseCompletion, base)
	}

	if _, err := h.session.Link(h.cfg.HubZshCompletion, "_hub"); err != nil {
		return err
	}

	if base == BaseGitDistributed && h.kind == shell.Zsh {
		zshCompletion, err := h.gitZshCompletion(ctx)
		if err != nil {
			return err
		}
		if _, err := h.session.Link(zshCompletion, ""); err != nil {
			return err
		}
		bashCompletion, err := h.gitBashCompletion(ctx)
		if err != nil {
			return err
		}
		if _, err := h.session.Link(bashCompletion, ""); err != nil {
			return err
		}
	}

	h.logger.Info("base completions linked", "base", base)
	return nil
}

// TypeAndTab waits for an idle prompt, types text and presses Tab.
func (h *Harness) TypeAndTab(ctx context.Context, text string) (err error) {
	ctx, span := h.tracer.Start(ctx, "completion.type_and_tab",
		trace.WithAttributes(attribute.String("text", text)))
	defer func() { tracing.Finish(span, err) }()

	if h.pane == nil {
		return ErrShellNotSet
	}

	if _, err := h.waiter.WaitForPrompt(ctx, h.capture); err != nil {
		return err
	}

	h.lastCommand = text
	if err := h.pane.SendKeys(ctx, text); err != nil {
		return err
	}
	return h.pane.SendKeys(ctx, "Tab")
}

// PressTab sends one more Tab.
func (h *Harness) PressTab(ctx context.Context) (err error) {
	ctx, span := h.tracer.Start(ctx, "completion.press_tab")
	defer func() { tracing.Finish(span, err) }()

	if h.pane == nil {
		return ErrShellNotSet
	}
	return h.pane.SendKeys(ctx, "Tab")
}

// Menu waits for completion output to settle and returns the described
// entries on screen.
func (h *Harness) Menu(ctx context.Context) (menu map[string]string, err error) {
	ctx, span := h.tracer.Start(ctx, "completion.menu")
	defer func() { tracing.Finish(span, err) }()

	snap, err := h.settled(ctx)
	if err != nil {
		return nil, err
	}
	menu = screen.ParseDescribed(snap, h.cfg.Prompt)
	span.SetAttributes(attribute.Int("entries", len(menu)))
	return menu, nil
}

// MenuBasic waits for completion output to settle and returns every token
// outside the prompt lines.
func (h *Harness) MenuBasic(ctx context.Context) (tokens []string, err error) {
	ctx, span := h.tracer.Start(ctx, "completion.menu_basic")
	defer func() { tracing.Finish(span, err) }()

	snap, err := h.settled(ctx)
	if err != nil {
		return nil, err
	}
	tokens = screen.ParseBasic(snap, h.cfg.Prompt)
	span.SetAttributes(attribute.Int("entries", len(tokens)))
	return tokens, nil
}

// ExpectExpansion checks that the prompt line reads exactly prompt+command.
func (h *Harness) ExpectExpansion(ctx context.Context, command string) (err error) {
	ctx, span := h.tracer.Start(ctx, "completion.expect_expansion",
		trace.WithAttributes(attribute.String("command", command)))
	defer func() { tracing.Finish(span, err) }()

	snap, err := h.settled(ctx)
	if err != nil {
		return err
	}
	if !screen.ExpandsTo(snap, h.cfg.Prompt, command) {
		return h.mismatch(snap, command)
	}
	return nil
}

// ExpectNoExpansion checks that the prompt line still shows the literal
// last typed by TypeAndTab.
func (h *Harness) ExpectNoExpansion(ctx context.Context) (err error) {
	ctx, span := h.tracer.Start(ctx, "completion.expect_no_expansion",
		trace.WithAttributes(attribute.String("typed", h.lastCommand)))
	defer func() { tracing.Finish(span, err) }()

	if h.lastCommand == "" {
		return errors.New("nothing has been typed yet")
	}

	snap, err := h.settled(ctx)
	if err != nil {
		return err
	}
	if !screen.NotExpanded(snap, h.cfg.Prompt, h.lastCommand) {
		return h.mismatch(snap, h.lastCommand)
	}
	return nil
}

// Snapshot captures the pane immediately.
func (h *Harness) Snapshot(ctx context.Context) (snap screen.Snapshot, err error) {
	ctx, span := h.tracer.Start(ctx, "completion.snapshot")
	defer func() { tracing.Finish(span, err) }()

	return h.capture(ctx)
}

// DumpSnapshot writes the last captured screen to dir/SnapshotFile.
func (h *Harness) DumpSnapshot(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create snapshot directory: %w", err)
	}
	path := filepath.Join(dir, SnapshotFile)
	if err := os.WriteFile(path, []byte(h.lastSnapshot.String()+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return path, nil
}

// Close terminates the pane. Teardown failures are only logged.
func (h *Harness) Close(ctx context.Context) {
	if h.pane == nil {
		return
	}
	h.pane.Terminate(ctx)
	h.logger.Debug("harness closed", "pane", h.pane.ID())
}

func (h *Harness) capture(ctx context.Context) (screen.Snapshot, error) {
	if h.pane == nil {
		return screen.Snapshot{}, ErrShellNotSet
	}
	snap, err := h.pane.Snapshot(ctx)
	if err != nil {
		return screen.Snapshot{}, err
	}
	h.lastSnapshot = snap
	return snap, nil
}

func (h *Harness) settled(ctx context.Context) (screen.Snapshot, error) {
	if h.pane == nil {
		return screen.Snapshot{}, ErrShellNotSet
	}
	if err := h.waiter.WaitForSettle(ctx, h.capture); err != nil {
		return screen.Snapshot{}, err
	}
	return h.capture(ctx)
}

func (h *Harness) mismatch(snap screen.Snapshot, want string) error {
	got, ok := snap.CommandLine(h.cfg.Prompt)
	if !ok {
		return fmt.Errorf("%w: want %q after the prompt, but no prompt line is visible:\n%s",
			ErrUnexpectedCommandLine, want, snap.String())
	}
	return fmt.Errorf("%w: want %q, got %q", ErrUnexpectedCommandLine, want, got)
}

func (h *Harness) gitZshCompletion(ctx context.Context) (string, error) {
	if h.cfg.GitZshCompletion != "" {
		return h.cfg.GitZshCompletion, nil
	}
	return h.git.ZshCompletion(ctx)
}

func (h *Harness) gitBashCompletion(ctx context.Context) (string, error) {
	if h.cfg.GitBashCompletion != "" {
		return h.cfg.GitBashCompletion, nil
	}
	return h.git.BashCompletion(ctx)
}
