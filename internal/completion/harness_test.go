package completion

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/petems/hub/internal/config"
	"github.com/petems/hub/internal/session"
	"github.com/petems/hub/internal/shell"
	"github.com/petems/hub/internal/testutil"
	"github.com/petems/hub/internal/tmux"
)

const (
	paneID     = "%1"
	captureKey = "tmux capture-pane -p -t %1"
)

type fixture struct {
	harness *Harness
	runner  *testutil.FakeRunner
	cfg     *config.Config
	gitDir  string
}

func newFixture(t *testing.T, mutate func(*config.Config)) *fixture {
	t.Helper()

	scripts := t.TempDir()
	gitPrefix := t.TempDir()
	writeScript(t, filepath.Join(scripts, "hub.zsh_completion"))
	writeScript(t, filepath.Join(scripts, "hub.bash_completion.sh"))
	writeScript(t, filepath.Join(gitPrefix, "share", "zsh", "site-functions", "_git"))
	writeScript(t, filepath.Join(gitPrefix, "etc", "bash_completion.d", "git-completion.bash"))

	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.TmpDir = t.TempDir()
	cfg.HubZshCompletion = filepath.Join(scripts, "hub.zsh_completion")
	cfg.HubBashCompletion = filepath.Join(scripts, "hub.bash_completion.sh")
	if mutate != nil {
		mutate(cfg)
	}

	runner := testutil.NewFakeRunner()
	h, err := New(Options{
		Config: cfg,
		Runner: runner,
		GitPrefix: session.NewGitPrefix(func(context.Context) ([]byte, error) {
			return []byte(filepath.Join(gitPrefix, "libexec", "git-core")), nil
		}),
		Sleep: func(ctx context.Context, _ time.Duration) error { return ctx.Err() },
	})
	require.NoError(t, err)

	return &fixture{harness: h, runner: runner, cfg: cfg, gitDir: gitPrefix}
}

func writeScript(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte("# completion\n"), 0o600))
}

// started selects kind and scripts the pane start plus the given screens.
func (f *fixture) started(t *testing.T, kind shell.Kind, screens ...string) {
	t.Helper()
	require.NoError(t, f.harness.SetShell(context.Background(), kind.String()))

	root := f.harness.Session().Root
	f.runner.Queue(testutil.CallKey("tmux", "new-window", "-d", "-P", "-F", "#{pane_id}",
		"-n", f.harness.WindowName(), "-c", root, tmux.LaunchCommand(kind, root)), paneID)
	f.runner.Queue(captureKey, screens...)
}

func (f *fixture) sentKeys() [][]string {
	var sent [][]string
	for _, call := range f.runner.Calls() {
		if len(call.Args) > 3 && call.Args[0] == "send-keys" {
			sent = append(sent, call.Args[3:])
		}
	}
	return sent
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.SettleMode = "guess"

	_, err = New(Options{Config: cfg, Runner: testutil.NewFakeRunner()})
	assert.Error(t, err)
}

func TestRootAndWindowName(t *testing.T) {
	t.Parallel()

	shared := newFixture(t, nil)
	assert.Equal(t, filepath.Join(shared.cfg.TmpDir, "hub-test"), shared.harness.Root())
	assert.Len(t, shared.harness.WindowName(), len("hub-test-")+8)
	assert.True(t, strings.HasPrefix(shared.harness.WindowName(), "hub-test-"))

	isolated := newFixture(t, func(cfg *config.Config) { cfg.Isolate = true })
	assert.Equal(t, filepath.Join(isolated.cfg.TmpDir, "hub-test-"+isolated.harness.ID()), isolated.harness.Root())
}

func TestSetShellPreparesSessionWithoutStartingPane(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	require.NoError(t, f.harness.SetShell(context.Background(), "zsh"))

	assert.Equal(t, shell.Zsh, f.harness.Shell())
	assert.FileExists(t, filepath.Join(f.harness.Root(), ".zshrc"))
	assert.DirExists(t, filepath.Join(f.harness.Root(), "completion"))
	assert.Equal(t, tmux.StateUnstarted, f.harness.Pane().State())
	assert.Empty(t, f.runner.Calls())
}

func TestSetShellBashSourcesGitThenWrapperCompletion(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	require.NoError(t, f.harness.SetShell(context.Background(), "bash"))

	rc, err := os.ReadFile(filepath.Join(f.harness.Root(), ".bashrc"))
	require.NoError(t, err)
	gitIdx := strings.Index(string(rc), filepath.Join(f.gitDir, "etc", "bash_completion.d", "git-completion.bash"))
	hubIdx := strings.Index(string(rc), f.cfg.HubBashCompletion)
	require.NotEqual(t, -1, gitIdx)
	require.NotEqual(t, -1, hubIdx)
	assert.Less(t, gitIdx, hubIdx)
}

func TestSetShellRejectsUnknownShell(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	err := f.harness.SetShell(context.Background(), "fish")
	assert.ErrorIs(t, err, shell.ErrUnsupported)
	assert.Nil(t, f.harness.Session())
}

func TestSetShellAgainTerminatesPreviousPane(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.started(t, shell.Zsh, "$ ")
	require.NoError(t, f.harness.TypeAndTab(context.Background(), "git "))

	previous := f.harness.Pane()
	require.NoError(t, f.harness.SetShell(context.Background(), "zsh"))

	assert.Equal(t, tmux.StateTerminated, previous.State())
	assert.Equal(t, tmux.StateUnstarted, f.harness.Pane().State())
	assert.Empty(t, f.harness.LastCommand())
	assert.Equal(t, 1, f.runner.Count("kill-pane"))
}

func TestUseBaseCompletionsRequiresShell(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	err := f.harness.UseBaseCompletions(context.Background(), BaseGitDistributed)
	assert.ErrorIs(t, err, ErrShellNotSet)
}

func TestUseBaseCompletionsGitDistributedWithZsh(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	require.NoError(t, f.harness.SetShell(context.Background(), "zsh"))
	require.NoError(t, f.harness.UseBaseCompletions(context.Background(), BaseGitDistributed))

	links, err := f.harness.Session().Links()
	require.NoError(t, err)
	assert.Equal(t, []session.Link{
		{Name: "_git", Target: filepath.Join(f.gitDir, "share", "zsh", "site-functions", "_git")},
		{Name: "_hub", Target: f.cfg.HubZshCompletion},
		{Name: "git-completion.bash", Target: filepath.Join(f.gitDir, "etc", "bash_completion.d", "git-completion.bash")},
	}, links)
}

func TestUseBaseCompletionsGitDistributedWithBashLinksOnlyHub(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	require.NoError(t, f.harness.SetShell(context.Background(), "bash"))
	require.NoError(t, f.harness.UseBaseCompletions(context.Background(), BaseGitDistributed))

	links, err := f.harness.Session().Links()
	require.NoError(t, err)
	assert.Equal(t, []session.Link{{Name: "_hub", Target: f.cfg.HubZshCompletion}}, links)
}

func TestUseBaseCompletionsZshDistributed(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	require.NoError(t, f.harness.SetShell(context.Background(), "zsh"))
	require.NoError(t, f.harness.UseBaseCompletions(context.Background(), BaseZshDistributed))

	assert.True(t, f.harness.Session().HasLink("_hub"))
	assert.False(t, f.harness.Session().HasLink("_git"))
}

func TestUseBaseCompletionsRejectsBadCombinations(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	require.NoError(t, f.harness.SetShell(context.Background(), "bash"))

	err := f.harness.UseBaseCompletions(context.Background(), BaseZshDistributed)
	require.ErrorIs(t, err, ErrInvalidCombination)

	err = f.harness.UseBaseCompletions(context.Background(), "fish-distributed")
	require.ErrorIs(t, err, ErrUnknownBaseCompletion)

	links, err := f.harness.Session().Links()
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestUseBaseCompletionsRejectsExistingGitForZshDistributed(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	require.NoError(t, f.harness.SetShell(context.Background(), "zsh"))
	require.NoError(t, f.harness.UseBaseCompletions(context.Background(), BaseGitDistributed))

	err := f.harness.UseBaseCompletions(context.Background(), BaseZshDistributed)
	assert.ErrorContains(t, err, "_git is already linked")
}

func TestUseBaseCompletionsMissingWrapperScript(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(cfg *config.Config) {
		cfg.HubZshCompletion = filepath.Join(cfg.TmpDir, "nope", "hub.zsh_completion")
	})
	require.NoError(t, f.harness.SetShell(context.Background(), "zsh"))

	err := f.harness.UseBaseCompletions(context.Background(), BaseZshDistributed)
	require.ErrorIs(t, err, session.ErrMissingSource)
	assert.False(t, f.harness.Session().HasLink("_hub"))
}

func TestTypeAndTabWaitsForPromptThenSendsKeys(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.started(t, shell.Zsh, "", "", "$ ")

	require.NoError(t, f.harness.TypeAndTab(context.Background(), "git ch"))

	assert.Equal(t, "git ch", f.harness.LastCommand())
	assert.Equal(t, 3, f.runner.Count("capture-pane"))
	assert.Equal(t, [][]string{{"git ch"}, {"Tab"}}, f.sentKeys())
}

func TestTypeAndTabRequiresShell(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	assert.ErrorIs(t, f.harness.TypeAndTab(context.Background(), "git "), ErrShellNotSet)
	assert.ErrorIs(t, f.harness.PressTab(context.Background()), ErrShellNotSet)
	_, err := f.harness.Menu(context.Background())
	assert.ErrorIs(t, err, ErrShellNotSet)
}

func TestTypeAndTabTimesOutWithoutPrompt(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(cfg *config.Config) { cfg.PromptMaxAttempts = 5 })
	f.started(t, shell.Zsh, "zsh: corrupt history file")

	err := f.harness.TypeAndTab(context.Background(), "git ch")
	require.ErrorIs(t, err, ErrPromptTimeout)

	assert.Equal(t, 6, f.runner.Count("capture-pane"))
	assert.Empty(t, f.sentKeys())
	assert.Empty(t, f.harness.LastCommand())
}

func TestMenuParsesDescribedEntries(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.started(t, shell.Zsh,
		"$ ",
		"$ git ch\ncheckout     -- switch branches or restore working tree files\ncherry-pick  -- apply changes introduced by some existing commits",
	)
	ctx := context.Background()

	require.NoError(t, f.harness.TypeAndTab(ctx, "git ch"))
	menu, err := f.harness.Menu(ctx)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"checkout":    "switch branches or restore working tree files",
		"cherry-pick": "apply changes introduced by some existing commits",
	}, menu)
	assert.Equal(t, "$ git ch", f.harness.LastSnapshot().Lines()[0])
}

func TestMenuBasicAfterSecondTab(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.started(t, shell.Bash, "$ ", "$ git ch\ncheckout      cherry-pick\n$ git ch")
	ctx := context.Background()

	require.NoError(t, f.harness.TypeAndTab(ctx, "git ch"))
	require.NoError(t, f.harness.PressTab(ctx))
	tokens, err := f.harness.MenuBasic(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"checkout", "cherry-pick"}, tokens)
	assert.Equal(t, [][]string{{"git ch"}, {"Tab"}, {"Tab"}}, f.sentKeys())
	require.NoError(t, f.harness.ExpectNoExpansion(ctx))
}

func TestExpectExpansion(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.started(t, shell.Zsh, "$ ", "$ git checkout ")
	ctx := context.Background()

	require.NoError(t, f.harness.TypeAndTab(ctx, "git check"))
	require.NoError(t, f.harness.ExpectExpansion(ctx, "git checkout"))

	err := f.harness.ExpectExpansion(ctx, "git checkout-index")
	require.ErrorIs(t, err, ErrUnexpectedCommandLine)
	assert.Contains(t, err.Error(), `got "git checkout"`)

	err = f.harness.ExpectNoExpansion(ctx)
	require.ErrorIs(t, err, ErrUnexpectedCommandLine)
	assert.Contains(t, err.Error(), `want "git check", got "git checkout"`)
}

func TestExpectExpansionRejectsTrailingText(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.started(t, shell.Zsh, "$ ", "$ git checkout --")
	ctx := context.Background()

	require.NoError(t, f.harness.TypeAndTab(ctx, "git check"))
	assert.ErrorIs(t, f.harness.ExpectExpansion(ctx, "git checkout"), ErrUnexpectedCommandLine)
}

func TestExpectNoExpansionRequiresTypedCommand(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	require.NoError(t, f.harness.SetShell(context.Background(), "zsh"))
	assert.Error(t, f.harness.ExpectNoExpansion(context.Background()))
}

func TestCloseTerminatesPaneAndDumpSnapshot(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.started(t, shell.Zsh, "$ git ch")
	ctx := context.Background()

	_, err := f.harness.Snapshot(ctx)
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "logs")
	path, err := f.harness.DumpSnapshot(dir)
	require.NoError(t, err)
	testutil.AssertFileContent(t, path, "$ git ch\n")

	f.harness.Close(ctx)
	f.harness.Close(ctx)
	assert.Equal(t, 1, f.runner.Count("kill-pane"))
	assert.Equal(t, tmux.StateTerminated, f.harness.Pane().State())
}

func TestCloseWithoutShellIsNoop(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	assert.NotPanics(t, func() { f.harness.Close(context.Background()) })
	assert.Empty(t, f.runner.Calls())
}

func TestOperationsEmitSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
		otel.SetTracerProvider(previous)
	})

	f := newFixture(t, nil)
	require.NoError(t, f.harness.SetShell(context.Background(), "bash"))
	require.Error(t, f.harness.UseBaseCompletions(context.Background(), BaseZshDistributed))

	spans := map[string]sdktrace.ReadOnlySpan{}
	for _, span := range recorder.Ended() {
		spans[span.Name()] = span
	}
	require.Contains(t, spans, "completion.set_shell")
	require.Contains(t, spans, "completion.use_base_completions")
	assert.Equal(t, codes.Ok, spans["completion.set_shell"].Status().Code)
	assert.Equal(t, codes.Error, spans["completion.use_base_completions"].Status().Code)
}
