package steps

import (
	"io"
	"testing"

	"github.com/cucumber/godog"
)

// SuiteName names the godog suite in reports.
const SuiteName = "hub-completion"

// RunOptions selects which features run and how results are reported.
type RunOptions struct {
	Paths    []string
	Tags     string
	Format   string
	Strict   bool
	NoColors bool
	Output   io.Writer
	TestingT *testing.T
	// Features are in-memory feature files used instead of Paths.
	Features []godog.Feature
}

// Run executes the suite and returns godog's exit status: 0 passed, 1
// failed, 2 invalid options.
func Run(opts Options, run RunOptions) int {
	format := run.Format
	if format == "" {
		format = "pretty"
	}

	suite := godog.TestSuite{
		Name:                SuiteName,
		ScenarioInitializer: InitializeScenario(opts),
		Options: &godog.Options{
			Paths:           run.Paths,
			Tags:            run.Tags,
			Format:          format,
			Strict:          run.Strict,
			NoColors:        run.NoColors,
			Output:          run.Output,
			TestingT:        run.TestingT,
			FeatureContents: run.Features,
			// One pane per scenario, scenarios in sequence.
			Concurrency: 1,
		},
	}
	return suite.Run()
}
