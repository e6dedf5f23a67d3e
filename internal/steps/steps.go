// Package steps binds the completion scenario vocabulary to godog.
package steps

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/cucumber/godog"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/petems/hub/internal/completion"
	"github.com/petems/hub/internal/config"
	"github.com/petems/hub/internal/logging"
	"github.com/petems/hub/internal/session"
	"github.com/petems/hub/internal/tmux"
)

// Options configures the harness every scenario gets.
type Options struct {
	Config    *config.Config
	Logger    *log.Logger
	Runner    tmux.CommandRunner
	GitPrefix *session.GitPrefix
	Sleep     func(ctx context.Context, d time.Duration) error
	// SnapshotDir receives the screen of a failed scenario. Defaults to
	// Config.LogDir; "-" disables dumps.
	SnapshotDir string
}

const tracerName = "hub/steps"

type scenario struct {
	opts    Options
	base    *log.Logger
	logger  *log.Logger
	span    trace.Span
	harness *completion.Harness
}

// InitializeScenario returns a godog scenario initializer. godog calls it
// once per scenario, so every scenario owns its harness.
func InitializeScenario(opts Options) func(*godog.ScenarioContext) {
	return func(sc *godog.ScenarioContext) {
		s := &scenario{opts: opts, base: opts.Logger}
		if s.base == nil {
			s.base = logging.Discard()
		}
		s.logger = s.base

		sc.Before(s.before)
		sc.After(s.after)

		sc.Step(`^my shell is (\w+)$`, s.myShellIs)
		sc.Step(`^I'm using ((?:zsh|git)-distributed) base git completions$`, s.usingBaseCompletions)
		sc.Step(`^I type "(.+?)" and press <Tab>$`, s.typeAndPressTab)
		sc.Step(`^I press <Tab> again$`, s.pressTabAgain)
		sc.Step(`^the completion menu should offer "([^"]+?)"$`, s.menuShouldOffer)
		sc.Step(`^the completion menu should offer "(.+?)" with description "(.+?)"$`, s.menuShouldOfferWithDescription)
		sc.Step(`^the completion menu should offer:$`, s.menuShouldOfferTable)
		sc.Step(`^the command should expand to "(.+?)"$`, s.commandShouldExpandTo)
		sc.Step(`^the command should not expand$`, s.commandShouldNotExpand)
	}
}

func (s *scenario) before(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
	ctx, s.span = otel.Tracer(tracerName).Start(ctx, "completion.scenario")
	s.logger = s.base.With("trace_id", traceID(s.span))

	h, err := completion.New(completion.Options{
		Config:    s.opts.Config,
		Logger:    s.logger,
		Runner:    s.opts.Runner,
		GitPrefix: s.opts.GitPrefix,
		Sleep:     s.opts.Sleep,
	})
	if err != nil {
		return ctx, err
	}
	s.harness = h
	s.logger.Info("scenario started", "scenario", sc.Name, "harness_id", h.ID())
	return ctx, nil
}

func (s *scenario) after(ctx context.Context, sc *godog.Scenario, scenarioErr error) (context.Context, error) {
	if s.span != nil {
		defer s.span.End()
	}
	if s.harness == nil {
		return ctx, nil
	}
	if scenarioErr != nil {
		s.recordFailure(ctx, sc, scenarioErr)
	}
	s.harness.Close(ctx)
	return ctx, nil
}

// traceID returns the span's trace id. The no-op provider yields invalid
// span contexts, so a random id stands in to keep scenario logs correlated.
func traceID(span trace.Span) string {
	id := span.SpanContext().TraceID()
	if !id.IsValid() {
		id = trace.TraceID(uuid.New())
	}
	return id.String()
}

func (s *scenario) recordFailure(ctx context.Context, sc *godog.Scenario, scenarioErr error) {
	if pane := s.harness.Pane(); pane != nil && pane.State() == tmux.StateRunning {
		if _, err := s.harness.Snapshot(ctx); err != nil {
			s.logger.Debug("final snapshot failed", "err", err)
		}
	}

	dir := s.snapshotDir()
	if dir == "" {
		s.logger.Error("scenario failed", "scenario", sc.Name, "err", scenarioErr)
		return
	}
	path, err := s.harness.DumpSnapshot(dir)
	if err != nil {
		s.logger.Debug("snapshot dump failed", "err", err)
	}
	s.logger.Error("scenario failed", "scenario", sc.Name, "err", scenarioErr, "snapshot", path)
}

func (s *scenario) snapshotDir() string {
	switch {
	case s.opts.SnapshotDir == "-":
		return ""
	case s.opts.SnapshotDir != "":
		return s.opts.SnapshotDir
	case s.opts.Config != nil:
		return s.opts.Config.LogDir
	default:
		return ""
	}
}

func (s *scenario) myShellIs(ctx context.Context, name string) error {
	return s.harness.SetShell(ctx, name)
}

func (s *scenario) usingBaseCompletions(ctx context.Context, base string) error {
	return s.harness.UseBaseCompletions(ctx, base)
}

func (s *scenario) typeAndPressTab(ctx context.Context, text string) error {
	return s.harness.TypeAndTab(ctx, text)
}

func (s *scenario) pressTabAgain(ctx context.Context) error {
	return s.harness.PressTab(ctx)
}

func (s *scenario) menuShouldOffer(ctx context.Context, items string) error {
	tokens, err := s.harness.MenuBasic(ctx)
	if err != nil {
		return err
	}
	return assertExpectedAndActual(equal, items, strings.Join(tokens, " "),
		"completion menu on screen:\n%s", s.harness.LastSnapshot())
}

func (s *scenario) menuShouldOfferWithDescription(ctx context.Context, item, description string) error {
	menu, err := s.harness.Menu(ctx)
	if err != nil {
		return err
	}
	if err := assertActual(contains, menu, item,
		"completion menu on screen:\n%s", s.harness.LastSnapshot()); err != nil {
		return err
	}
	return assertExpectedAndActual(equal, description, menu[item], "description of %q", item)
}

func (s *scenario) menuShouldOfferTable(ctx context.Context, table *godog.Table) error {
	want, err := rowsHash(table)
	if err != nil {
		return err
	}
	menu, err := s.harness.Menu(ctx)
	if err != nil {
		return err
	}
	return assertExpectedAndActual(equal, want, menu,
		"completion menu on screen:\n%s", s.harness.LastSnapshot())
}

func (s *scenario) commandShouldExpandTo(ctx context.Context, command string) error {
	return s.harness.ExpectExpansion(ctx, command)
}

func (s *scenario) commandShouldNotExpand(ctx context.Context) error {
	return s.harness.ExpectNoExpansion(ctx)
}

// rowsHash reads a two-column table into item -> description.
func rowsHash(table *godog.Table) (map[string]string, error) {
	rows := map[string]string{}
	if table == nil {
		return rows, nil
	}
	for i, row := range table.Rows {
		if len(row.Cells) != 2 {
			return nil, fmt.Errorf("table row %d: want 2 cells, got %d", i+1, len(row.Cells))
		}
		rows[row.Cells[0].Value] = row.Cells[1].Value
	}
	return rows, nil
}
